package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a leveled key/value logger that writes to the console.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger at info level.
func NewLogger() *Logger {
	return New(os.Stdout, "info")
}

// New creates a Logger writing text records to w at the named level
// (debug, info, warn or error).
func New(w io.Writer, level string) *Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{Logger: slog.New(h)}
}

// Discard returns a Logger that drops every record.
func Discard() *Logger {
	return New(io.Discard, "error")
}

// With returns a Logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
