package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Run loads config from the environment and serves until SIGINT or SIGTERM.
// Errors are returned so cmd/warden can log them after deferred cleanup.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)
	log.Info("warden.boot", "pid", os.Getpid(), "addr", cfg.HTTPAddr,
		"postgres", cfg.DatabaseURL != "", "redis", cfg.RedisURL != "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("warden: init: %w", err)
	}
	return a.Run(ctx)
}
