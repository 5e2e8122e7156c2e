// Package logger configures the forecaster's structured logging.
//
// It builds a slog.Logger from Config: text or JSON output, configurable
// level, always to stdout for container-friendly log collection.
package logger

import (
	"log/slog"
	"os"

	"github.com/sunwatt/forecaster/cmd/forecaster/config"
)

// New builds a slog.Logger from cfg's LogLevel/LogFormat settings.
func New(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
