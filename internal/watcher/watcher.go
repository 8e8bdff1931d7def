// Package watcher turns new screenshot files in a directory into events.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/dgnsrekt/shotpost/internal/types"
)

// Watcher reports files created directly inside one directory. It does not
// recurse and ignores directories and non-screenshot extensions.
type Watcher struct {
	dir    string
	logger *slog.Logger
	ready  chan struct{}
}

// New returns a watcher for dir.
func New(dir string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dir: dir, logger: logger.With("dir", dir), ready: make(chan struct{})}
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Ready is closed once the directory watch is registered.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run watches until ctx is done, calling emit on the Run goroutine for every
// new screenshot. The directory is created when missing.
func (w *Watcher) Run(ctx context.Context, emit func(types.ScreenshotEvent)) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("watcher: create %s: %w", w.dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watcher: watch %s: %w", w.dir, err)
	}
	close(w.ready)
	w.logger.Info("watching for screenshots")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("screenshot watcher stopped")
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if e, ok := w.accept(ev); ok {
				w.logger.Info("new screenshot detected", "path", e.Path)
				emit(e)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) accept(ev fsnotify.Event) (types.ScreenshotEvent, bool) {
	if !ev.Has(fsnotify.Create) {
		return types.ScreenshotEvent{}, false
	}
	if !types.IsScreenshot(ev.Name) {
		w.logger.Debug("ignoring non-screenshot file", "path", ev.Name)
		return types.ScreenshotEvent{}, false
	}
	info, err := os.Stat(ev.Name)
	switch {
	case errors.Is(err, os.ErrNotExist):
		w.logger.Warn("screenshot vanished before dispatch", "path", ev.Name)
		return types.ScreenshotEvent{}, false
	case err == nil && info.IsDir():
		return types.ScreenshotEvent{}, false
	}
	return types.NewScreenshotEvent(ev.Name), true
}
