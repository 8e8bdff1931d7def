// Package logsink keeps recent log records in memory for the control API.
package logsink

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is one retained log record with attributes flattened to strings.
type Entry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

type buffer struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// Ring is a slog.Handler retaining the last N records.
type Ring struct {
	buf    *buffer
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewRing returns a handler keeping up to size records at or above level.
func NewRing(size int, level slog.Leveler) *Ring {
	if size < 1 {
		size = 1
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &Ring{buf: &buffer{entries: make([]Entry, size)}, level: level}
}

func (r *Ring) Enabled(_ context.Context, l slog.Level) bool {
	return l >= r.level.Level()
}

func (r *Ring) Handle(_ context.Context, rec slog.Record) error {
	e := Entry{
		Time:    rec.Time,
		Level:   rec.Level.String(),
		Message: rec.Message,
	}
	if n := len(r.attrs) + rec.NumAttrs(); n > 0 {
		e.Attrs = make(map[string]string, n)
	}
	prefix := groupPrefix(r.groups)
	for _, a := range r.attrs {
		flatten(e.Attrs, "", a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		flatten(e.Attrs, prefix, a)
		return true
	})

	b := r.buf
	b.mu.Lock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()
	return nil
}

func (r *Ring) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return r
	}
	clone := *r
	clone.attrs = append(append([]slog.Attr(nil), r.attrs...), qualify(r.groups, attrs)...)
	return &clone
}

func (r *Ring) WithGroup(name string) slog.Handler {
	if name == "" {
		return r
	}
	clone := *r
	clone.groups = append(append([]string(nil), r.groups...), name)
	return &clone
}

// Entries returns up to limit of the newest records, oldest first. A
// non-positive limit returns everything retained.
func (r *Ring) Entries(limit int) []Entry {
	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()

	var all []Entry
	if b.full {
		all = append(all, b.entries[b.next:]...)
	}
	all = append(all, b.entries[:b.next]...)
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

// qualify bakes the current groups into attrs added via WithAttrs so later
// groups do not re-prefix them.
func qualify(groups []string, attrs []slog.Attr) []slog.Attr {
	if len(groups) == 0 {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: groupPrefix(groups) + a.Key, Value: a.Value}
	}
	return out
}

func groupPrefix(groups []string) string {
	p := ""
	for _, g := range groups {
		p += g + "."
	}
	return p
}

func flatten(dst map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			flatten(dst, inner, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	dst[prefix+a.Key] = a.Value.String()
}

// Fanout forwards every record to all handlers that accept its level.
type Fanout []slog.Handler

func (f Fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f Fanout) Handle(ctx context.Context, rec slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := h.Handle(ctx, rec.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(Fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f Fanout) WithGroup(name string) slog.Handler {
	out := make(Fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
