package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mymmrac/telego"
	flag "github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"git.skobk.in/skobkin/telegram-group-mention-bot/access"
	"git.skobk.in/skobkin/telegram-group-mention-bot/bot"
	"git.skobk.in/skobkin/telegram-group-mention-bot/callback"
	"git.skobk.in/skobkin/telegram-group-mention-bot/config"
	"git.skobk.in/skobkin/telegram-group-mention-bot/db"
	"git.skobk.in/skobkin/telegram-group-mention-bot/directory"
	"git.skobk.in/skobkin/telegram-group-mention-bot/metrics"
	"git.skobk.in/skobkin/telegram-group-mention-bot/storage"
)

func main() {
	// -v for Info, -vv for Debug
	verbosity := flag.CountP("verbose", "v", "Increase logging verbosity (-v info, -vv debug)")
	envFile := flag.String("env-file", ".env", "Path to the .env file")
	flag.Parse()

	setLogLevel(*verbosity)

	slog.Debug("main: Command-line flags parsed", "verbosity", *verbosity, "env_file", *envFile)

	config.LoadDotEnv(*envFile)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("main: Invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Debug("main: Opening database", "driver", cfg.Driver)
	conn, err := db.Open(db.Options{
		Dialect:     cfg.Driver,
		DSN:         cfg.DSN,
		BusyTimeout: cfg.LockTimeout,
		Verbose:     *verbosity >= 2,
	})
	if err != nil {
		slog.Error("main: Failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(conn); err != nil {
			slog.Warn("main: Failed to close database", "error", err)
		}
	}()

	if err := db.Migrate(conn); err != nil {
		slog.Error("main: Failed to migrate database", "error", err)
		os.Exit(1)
	}

	manager := directory.NewManager(
		storage.New(conn),
		directory.NewLocker(cfg.Driver, cfg.LockTimeout),
		cfg.LockTimeout,
	)
	picker := callback.NewPicker(callback.NewCodec(cfg.CallbackSecret), manager)
	if cfg.CallbackSecret == "" {
		slog.Warn("main: CALLBACK_SECRET is not set, picker tokens are not authenticated")
	}

	var botOptions []telego.BotOption
	if *verbosity >= 2 {
		botOptions = append(botOptions, telego.WithDefaultDebugLogger())
	}
	api, err := telego.NewBot(cfg.Token, botOptions...)
	if err != nil {
		slog.Error("main: Failed to initialize bot", "error", err)
		os.Exit(1)
	}

	b := bot.NewBot(
		api,
		manager,
		access.NewEngine(manager),
		picker,
		rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr)
	}

	slog.Info("main: Starting bot...")
	if err := b.Run(ctx); err != nil {
		slog.Error("main: Bot stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("main: Bot stopped")
}

func serveMetrics(ctx context.Context, addr string) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("main: Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("main: Metrics server failed", "error", err)
	}
}

// setLogLevel configures the logging level based on the verbosity count
func setLogLevel(verbosity int) {
	logLevel := slog.LevelWarn
	switch {
	case verbosity >= 2:
		logLevel = slog.LevelDebug
	case verbosity == 1:
		logLevel = slog.LevelInfo
	}

	// Configure structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Debug("main: Log level set to", "level", logLevel.String())
}
