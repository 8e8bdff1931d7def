package logsink

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestRingKeepsNewest(t *testing.T) {
	ring := NewRing(3, slog.LevelInfo)
	logger := slog.New(ring)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		logger.Info(msg)
	}
	got := ring.Entries(0)
	if len(got) != 3 {
		t.Fatalf("len(Entries) = %d; want 3", len(got))
	}
	for i, want := range []string{"c", "d", "e"} {
		if got[i].Message != want {
			t.Fatalf("Entries[%d] = %q; want %q", i, got[i].Message, want)
		}
	}
	if last := ring.Entries(1); len(last) != 1 || last[0].Message != "e" {
		t.Fatalf("Entries(1) = %+v; want [e]", last)
	}
}

func TestRingLevelAndAttrs(t *testing.T) {
	ring := NewRing(10, slog.LevelInfo)
	logger := slog.New(ring).With("task", "t1").WithGroup("fb")
	logger.Debug("hidden")
	logger.Warn("step failed", "locator", "fb.composer_trigger", slog.Group("wait", "ms", 30000))

	got := ring.Entries(0)
	if len(got) != 1 {
		t.Fatalf("len(Entries) = %d; want 1", len(got))
	}
	e := got[0]
	if e.Level != "WARN" {
		t.Fatalf("Level = %q; want WARN", e.Level)
	}
	want := map[string]string{
		"task":       "t1",
		"fb.locator": "fb.composer_trigger",
		"fb.wait.ms": "30000",
	}
	for k, v := range want {
		if e.Attrs[k] != v {
			t.Fatalf("Attrs[%q] = %q; want %q (all: %v)", k, e.Attrs[k], v, e.Attrs)
		}
	}
}

func TestFanout(t *testing.T) {
	var buf bytes.Buffer
	ring := NewRing(5, slog.LevelWarn)
	text := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(Fanout{text, ring})

	logger.Info("info line")
	logger.Error("error line", "k", "v")

	if !strings.Contains(buf.String(), "info line") || !strings.Contains(buf.String(), "error line") {
		t.Fatalf("text handler output = %q", buf.String())
	}
	got := ring.Entries(0)
	if len(got) != 1 || got[0].Message != "error line" || got[0].Attrs["k"] != "v" {
		t.Fatalf("ring entries = %+v; want only the error", got)
	}
}
