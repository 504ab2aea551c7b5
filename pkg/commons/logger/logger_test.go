package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{" DEBUG ", slog.LevelDebug},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Info("quiet", "key", "value")
	if buf.Len() != 0 {
		t.Fatalf("info leaked below warn: %s", buf.String())
	}

	log.Warn("loud", "key", "value")
	out := buf.String()
	if !strings.Contains(out, "msg=loud") || !strings.Contains(out, "key=value") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error("discarded", "key", "value")
	if log.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("nop logger should not enable any level")
	}
}
