// Package config reads the bot settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"git.skobk.in/skobkin/telegram-group-mention-bot/db"
)

var ErrMissingToken = errors.New("TELEGRAM_BOT_TOKEN environment variable is required")

type Config struct {
	Token          string
	Driver         db.Dialect
	DSN            string
	LockTimeout    time.Duration
	CallbackSecret string
	MetricsAddr    string
	SendRate       float64
	SendBurst      int
}

// LoadDotEnv loads variables from .env files without overriding ones that
// are already set. A missing file is not an error.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		slog.Warn("config: Failed to load .env file", "error", err)
		return
	}
	slog.Debug("config: Environment variables loaded from .env file")
}

// Load reads and validates the configuration.
func Load() (Config, error) {
	cfg := Config{
		Token:          os.Getenv("TELEGRAM_BOT_TOKEN"),
		CallbackSecret: os.Getenv("CALLBACK_SECRET"),
		MetricsAddr:    os.Getenv("METRICS_ADDR"),
	}
	if cfg.Token == "" {
		return Config{}, ErrMissingToken
	}

	var err error
	cfg.Driver, err = db.ParseDialect(getenv("DATABASE_DRIVER", string(db.SQLite)))
	if err != nil {
		return Config{}, err
	}

	cfg.DSN = os.Getenv("DATABASE_DSN")
	if cfg.DSN == "" {
		if cfg.Driver != db.SQLite {
			return Config{}, fmt.Errorf("DATABASE_DSN is required for %s", cfg.Driver)
		}
		cfg.DSN = getenv("DATABASE_PATH", "data.sqlite")
	}

	cfg.LockTimeout, err = time.ParseDuration(getenv("LOCK_TIMEOUT", "5s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid LOCK_TIMEOUT: %w", err)
	}
	if cfg.LockTimeout <= 0 {
		return Config{}, fmt.Errorf("LOCK_TIMEOUT must be positive, got %s", cfg.LockTimeout)
	}

	cfg.SendRate, err = strconv.ParseFloat(getenv("SEND_RATE", "25"), 64)
	if err != nil || cfg.SendRate <= 0 {
		return Config{}, fmt.Errorf("invalid SEND_RATE %q", os.Getenv("SEND_RATE"))
	}

	cfg.SendBurst, err = strconv.Atoi(getenv("SEND_BURST", "5"))
	if err != nil || cfg.SendBurst < 1 {
		return Config{}, fmt.Errorf("invalid SEND_BURST %q", os.Getenv("SEND_BURST"))
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
