package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sevigo/release-warden/internal/app"
	"github.com/sevigo/release-warden/internal/config"
	"github.com/sevigo/release-warden/internal/logger"
)

var babysitCmd = &cobra.Command{
	Use:   "babysit",
	Short: "Run one reconciliation pass over stuck builds and tests.",
	Long:  `Connects to the configured database and external farms, then runs the build and test reconciliation sweeps exactly once. Useful after an outage instead of waiting for the periodic loop.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		log := logger.NewLogger(logger.Config{Level: cfg.LogLevel.String(), Format: "text"}, nil)
		slog.SetDefault(log)

		application, err := app.NewApp(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer func() {
			if err := application.Stop(); err != nil {
				log.Error("failed to stop application", "error", err)
			}
		}()

		b := application.Babysitter()
		if err := b.SweepBuilds(ctx); err != nil {
			return fmt.Errorf("build sweep failed: %w", err)
		}
		if err := b.SweepTests(ctx); err != nil {
			return fmt.Errorf("test sweep failed: %w", err)
		}
		log.Info("reconciliation pass finished")
		return nil
	},
}
