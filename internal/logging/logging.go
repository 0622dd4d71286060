package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init creates and sets the package-level default slog logger on stderr.
// format is "json" or "text"; when empty, JSON is used if stdoutIsData is true
// (avoids mixing human logs into a piped NDJSON stream) and text otherwise.
func Init(format string, level slog.Level, stdoutIsData bool) error {
	h, err := NewHandler(os.Stderr, resolveFormat(format, stdoutIsData), level)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(h))
	return nil
}

func resolveFormat(format string, stdoutIsData bool) string {
	if format != "" {
		return strings.ToLower(format)
	}
	if stdoutIsData {
		return "json"
	}
	return "text"
}

// NewHandler returns a JSON or text handler writing to w.
func NewHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "text", "console":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("logging: unknown format %q", format)
	}
}

// ParseLevel converts a string ("debug", "info", "warn", "error") to slog.Level.
// Unknown strings default to LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
