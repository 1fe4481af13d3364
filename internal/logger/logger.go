// Package logger builds the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Config holds the logger configuration.
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NewLogger initializes a new slog logger based on the provided configuration.
// A nil output defaults to stdout.
func NewLogger(cfg Config, output io.Writer) *slog.Logger {
	if output == nil {
		output = os.Stdout
	}

	level := new(slog.Level)
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = new(slog.Level)
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(output, &slog.HandlerOptions{Level: level})
	default:
		handler = slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}
