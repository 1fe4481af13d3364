package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sevigo/release-warden/internal/app"
	"github.com/sevigo/release-warden/internal/config"
	"github.com/sevigo/release-warden/internal/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application failed to run", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.NewLogger(logger.Config{Level: cfg.LogLevel.String()}, nil)
	slog.SetDefault(log)

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	go func() {
		if err := application.Start(ctx); err != nil {
			log.Error("server error", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info("received shutdown signal")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down")
	}

	if err := application.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}
	return nil
}
