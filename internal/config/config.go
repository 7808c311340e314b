package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultUploadsDir      = "uploads"
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "forum"
	DefaultPGSSLMode       = "disable"
	DefaultCategoryName    = "Telegram"
	DefaultCategoryDesc    = "Topics created from Telegram channels"
	DefaultSystemUsername  = "telegram_bot"
	DefaultQuietPeriodSecs = 2
	DefaultPollTimeoutSecs = 30
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Telegram TelegramConfig `toml:"telegram"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr       string `toml:"addr"`
	UploadsDir string `toml:"uploads_dir"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the pgx connection string for this configuration.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type TelegramConfig struct {
	BotToken        string `toml:"bot_token"`
	CategoryName    string `toml:"category_name"`
	CategoryDesc    string `toml:"category_description"`
	SystemUsername  string `toml:"system_username"`
	QuietPeriodSecs int    `toml:"quiet_period_seconds"`
	PollTimeoutSecs int    `toml:"poll_timeout_seconds"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:       DefaultHTTPAddr,
			UploadsDir: DefaultUploadsDir,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Telegram: TelegramConfig{
			CategoryName:    DefaultCategoryName,
			CategoryDesc:    DefaultCategoryDesc,
			SystemUsername:  DefaultSystemUsername,
			QuietPeriodSecs: DefaultQuietPeriodSecs,
			PollTimeoutSecs: DefaultPollTimeoutSecs,
		},
	}
	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultConfigPath {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
