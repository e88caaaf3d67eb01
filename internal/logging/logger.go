// Package logging builds the leveled slog loggers used by the simulators and
// the CLI.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// LevelTrace is a custom level below Debug.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a level name to a slog.Level. Supported values are
// "error", "warn", "info", "debug" and "trace", case-insensitive. Unknown
// values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "error":
		return slog.LevelError
	case "warn":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled text logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
