// Package logging configures the process-wide structured logger for
// moodlesync. Pipeline stages receive the logger explicitly; it is also
// installed as the default so incidental library output matches.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup builds a text-format slog logger writing to stderr, installs it as
// the default, and returns it. Debug level also records source positions,
// since it exists to trace the capture and fetch stages.
func Setup(level string) *slog.Logger {
	lvl := ParseLevel(level)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level string to its slog level. It accepts "debug",
// "info", "warn" and "error", case-insensitively; anything else means info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
