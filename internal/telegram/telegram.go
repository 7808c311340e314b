// Package telegram implements the bot connection: a long-polling update
// loop that feeds forwarded messages into the ingestion pipeline, plus the
// outbound calls the pipeline needs (acknowledgements, file URL resolution).
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bicommunity/forum/internal/ingest"
)

const helpText = `Forward any message from a channel or user and the bot will create a forum topic from it. Albums are grouped into a single topic automatically.

Commands:
/myid — show this chat's id
/help — show this message`

// Handler consumes one converted inbound message.
type Handler func(ctx context.Context, msg ingest.InboundMessage)

// Bot wraps the Telegram Bot API connection.
type Bot struct {
	logger *slog.Logger
	api    *tgbotapi.BotAPI

	mu      sync.Mutex
	cancel  context.CancelFunc
	updates tgbotapi.UpdatesChannel
	done    chan struct{}
}

// New authenticates against the Bot API.
func New(log *slog.Logger, token string) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	b := &Bot{
		logger: log.With(slog.String("service", "telegram")),
		api:    api,
	}
	b.logger.Info("bot authenticated", slog.String("username", api.Self.UserName))
	return b, nil
}

// Start begins long polling and dispatches each update to handler in its own
// goroutine, so one slow download never stalls intake of unrelated events.
func (b *Bot) Start(ctx context.Context, pollTimeout int, handler Handler) {
	if pollTimeout <= 0 {
		pollTimeout = 30
	}
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout

	b.mu.Lock()
	connCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.updates = b.api.GetUpdatesChan(cfg)
	b.done = make(chan struct{})
	updates := b.updates
	done := b.done
	b.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-connCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					b.logger.Info("updates channel closed")
					return
				}
				if update.Message == nil {
					continue
				}
				if update.Message.IsCommand() {
					b.handleCommand(connCtx, update.Message)
					continue
				}
				msg := FromAPIMessage(update.Message)
				go handler(connCtx, msg)
			}
		}
	}()
}

// Stop ends long polling and waits for the update loop to exit. The updates
// channel is drained so the library's polling goroutine can finish its
// in-flight request; otherwise the next start with the same token hits
// "Conflict: terminated by other getUpdates request".
func (b *Bot) Stop(ctx context.Context) error {
	b.mu.Lock()
	cancel := b.cancel
	updates := b.updates
	done := b.done
	b.cancel = nil
	b.updates = nil
	b.done = nil
	b.mu.Unlock()

	if cancel == nil {
		return nil
	}
	b.api.StopReceivingUpdates()
	cancel()
	for range updates {
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	b.logger.Info("bot stopped")
	return nil
}

// SendMessage implements ingest.Notifier.
func (b *Bot) SendMessage(_ context.Context, chatID int64, text string) error {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// FileURL implements ingest.FileResolver via the Bot API file metadata call.
func (b *Bot) FileURL(_ context.Context, fileID string) (string, error) {
	u, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ingest.ErrFilePathUnavailable, err)
	}
	return u, nil
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	var reply string
	switch msg.Command() {
	case "myid":
		reply = "Your chat id: " + strconv.FormatInt(msg.Chat.ID, 10)
	case "help", "start":
		reply = helpText
	default:
		return
	}
	if err := b.SendMessage(ctx, msg.Chat.ID, reply); err != nil {
		b.logger.Warn("command reply failed",
			slog.String("command", msg.Command()),
			slog.Any("error", err),
		)
	}
}
