// Package logger configures the process-wide slog logger.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// L is the configured root logger. Init replaces it; packages derive
// their own child loggers with With.
var L = slog.Default()

// Init configures the root logger from the config values and installs it
// as the slog default.
func Init(level, format string) {
	var leveler slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		leveler = slog.LevelDebug
	case "warn", "warning":
		leveler = slog.LevelWarn
	case "error":
		leveler = slog.LevelError
	default:
		leveler = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: leveler}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	L = slog.New(handler)
	slog.SetDefault(L)
}
