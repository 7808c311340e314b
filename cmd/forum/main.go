package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/bicommunity/forum/internal/config"
	"github.com/bicommunity/forum/internal/db"
	"github.com/bicommunity/forum/internal/forum"
	"github.com/bicommunity/forum/internal/handlers"
	"github.com/bicommunity/forum/internal/ingest"
	"github.com/bicommunity/forum/internal/logger"
	"github.com/bicommunity/forum/internal/server"
	"github.com/bicommunity/forum/internal/storage/uploads"
	"github.com/bicommunity/forum/internal/telegram"
)

func main() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBPool,
			provideForumService,
			provideUploadsProvider,
			provideServer,
		),
		fx.Invoke(
			startIngestPipeline,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideForumService(log *slog.Logger, pool *pgxpool.Pool) *forum.Service {
	return forum.NewService(log, pool)
}

func provideUploadsProvider(cfg config.Config) (*uploads.Provider, error) {
	provider, err := uploads.New(cfg.Server.UploadsDir)
	if err != nil {
		return nil, fmt.Errorf("init uploads provider: %w", err)
	}
	return provider, nil
}

func provideServer(log *slog.Logger, cfg config.Config, forumService *forum.Service) *server.Server {
	return server.NewServer(
		cfg.Server.Addr,
		cfg.Server.UploadsDir,
		handlers.NewHealthHandler(log),
		handlers.NewForumHandler(log, forumService),
	)
}

// startIngestPipeline wires the Telegram ingestion pipeline and binds it to
// the application lifecycle. Without a bot token the forum runs with
// ingestion disabled.
func startIngestPipeline(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, store *forum.Service, media *uploads.Provider) error {
	if strings.TrimSpace(cfg.Telegram.BotToken) == "" {
		log.Warn("telegram bot token not set, ingestion pipeline disabled")
		return nil
	}
	bot, err := telegram.New(log, cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("telegram connect: %w", err)
	}
	fetcher := ingest.NewFetcher(log, bot, media, nil)
	coordinator := ingest.NewCoordinator(log, store, fetcher, bot, clockwork.NewRealClock(), ingest.Config{
		CategoryName:        cfg.Telegram.CategoryName,
		CategoryDescription: cfg.Telegram.CategoryDesc,
		SystemUsername:      cfg.Telegram.SystemUsername,
		QuietPeriod:         time.Duration(cfg.Telegram.QuietPeriodSecs) * time.Second,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := coordinator.Bootstrap(ctx); err != nil {
				return fmt.Errorf("bootstrap pipeline: %w", err)
			}
			// Decouple the long-lived polling loop from the startup context.
			bot.Start(context.WithoutCancel(ctx), cfg.Telegram.PollTimeoutSecs, func(ctx context.Context, msg ingest.InboundMessage) {
				_ = coordinator.Handle(ctx, msg)
			})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			err := bot.Stop(ctx)
			coordinator.Shutdown(ctx)
			return err
		},
	})
	return nil
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server failed", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
