// Package logger provides structured logging utilities for slipway.
// It includes run-scoped logging and log level management.
package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
)

// Initialize sets up the global slog logger. JSON output is intended for
// CI pipelines and log collectors; the tinted handler is for humans.
func Initialize(jsonOutput bool, level slog.Level) *slog.Logger {
	var handler slog.Handler

	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    color.NoColor,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("logger initialized", "json", jsonOutput, "level", level)

	return logger
}

// ParseLevel maps a user-supplied level name to a slog.Level.
// Unknown names fall back to info so a typo never silences errors.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
