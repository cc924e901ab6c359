package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// parseLogLevel maps a config string onto a slog level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (must be error, warn, info, or debug)", level)
	}
}

// setupLogger creates a text logger at the given level.
func setupLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
