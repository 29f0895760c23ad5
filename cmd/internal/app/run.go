package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

// Run is the CLI entrypoint used by cmd/goban.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run() error {
	// .env is a development convenience; absence is not an error.
	dotenvLoaded := godotenv.Load() == nil

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	log := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if dotenvLoaded {
		log.Info("env.dotenv_loaded")
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}

	return a.Run(ctx)
}
