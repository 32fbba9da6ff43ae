package runtime

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

func NewLogger(service string) *slog.Logger {
	return NewLoggerWithWriter(os.Stdout, service, Getenv("LOG_LEVEL", "info"))
}

func NewLoggerWithWriter(w io.Writer, service string, level string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(h).With("service", service)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
