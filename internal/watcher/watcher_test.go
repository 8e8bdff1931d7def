package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgnsrekt/shotpost/internal/types"
)

func startWatcher(t *testing.T, dir string) <-chan types.ScreenshotEvent {
	t.Helper()
	w := New(dir, nil)
	events := make(chan types.ScreenshotEvent, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(ev types.ScreenshotEvent) { events <- ev })
	}()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() = %v; want nil", err)
		}
	})
	select {
	case <-w.Ready():
	case err := <-done:
		done <- nil
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}
	return events
}

func next(t *testing.T, events <-chan types.ScreenshotEvent) types.ScreenshotEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for screenshot event")
		return types.ScreenshotEvent{}
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunEmitsOnlyScreenshots(t *testing.T) {
	dir := t.TempDir()
	events := startWatcher(t, dir)

	touch(t, filepath.Join(dir, "notes.txt"))
	if err := os.Mkdir(filepath.Join(dir, "folder.png"), 0o755); err != nil {
		t.Fatal(err)
	}
	touch(t, filepath.Join(dir, "shot.png"))
	touch(t, filepath.Join(dir, "SHOT2.JPG"))

	for _, want := range []string{"shot.png", "SHOT2.JPG"} {
		ev := next(t, events)
		if got := filepath.Base(ev.Path); got != want {
			t.Fatalf("event path = %q; want %q", got, want)
		}
		if ev.DetectedAt.IsZero() {
			t.Fatal("DetectedAt not set")
		}
	}
}

func TestRunIsNotRecursive(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	events := startWatcher(t, dir)

	touch(t, filepath.Join(sub, "deep.png"))
	touch(t, filepath.Join(dir, "top.jpeg"))

	if got := filepath.Base(next(t, events).Path); got != "top.jpeg" {
		t.Fatalf("first event = %q; want top.jpeg", got)
	}
}

func TestRunCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "screenshots")
	events := startWatcher(t, dir)

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
	touch(t, filepath.Join(dir, "a.png"))
	if got := filepath.Base(next(t, events).Path); got != "a.png" {
		t.Fatalf("event = %q; want a.png", got)
	}
}
