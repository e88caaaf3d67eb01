package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"info":  slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"trace": LevelTrace,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerFiltersAndLabelsTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("debug", &buf)
	logger.Log(context.Background(), LevelTrace, "hidden")
	logger.Debug("shown", "alias", "gibson-bruck")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("trace message logged at debug level: %s", out)
	}
	if !strings.Contains(out, "alias=gibson-bruck") {
		t.Fatalf("missing debug message: %s", out)
	}

	buf.Reset()
	NewLogger("trace", &buf).Log(context.Background(), LevelTrace, "step")
	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Fatalf("expected TRACE label, got %s", buf.String())
	}
}
