// Package counter persists the per-platform post counters used in captions.
package counter

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Key names one counter.
type Key string

const (
	Facebook  Key = "fb"
	Instagram Key = "ig"
)

// ErrUnknownKey is returned for keys the store was not configured with.
var ErrUnknownKey = errors.New("counter: unknown key")

// ErrAbsent is returned by a Backend that holds no value yet.
var ErrAbsent = errors.New("counter: value absent")

// Backend loads and saves one integer counter.
type Backend interface {
	Load() (int, error)
	Save(int) error
}

// PersistenceError reports a counter backend that could not be read or
// written. It is logged, never returned from Store methods.
type PersistenceError struct {
	Key   Key
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("counter %s: %s: %v", e.Key, e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

type slot struct {
	mu       sync.Mutex
	backend  Backend
	fallback int
	// issued is the highest value handed out by this process; it covers
	// saves that failed.
	issued int
	seen   bool
}

// Store serializes read-modify-write cycles per key.
type Store struct {
	slots  map[Key]*slot
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithKey registers a counter. def is reported when the backend holds no value.
func WithKey(key Key, backend Backend, def int) Option {
	return func(s *Store) {
		s.slots[key] = &slot{backend: backend, fallback: def}
	}
}

// NewStore builds a store from options.
func NewStore(opts ...Option) *Store {
	s := &Store{slots: make(map[Key]*slot), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current value of key.
func (s *Store) Get(key Key) (int, error) {
	sl, ok := s.slots[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return s.current(key, sl), nil
}

// Increment persists and returns Get(key)+1.
func (s *Store) Increment(key Key) (int, error) {
	sl, ok := s.slots[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	next := s.current(key, sl) + 1
	sl.issued = next
	sl.seen = true
	if err := sl.backend.Save(next); err != nil {
		s.logger.Error("counter save failed",
			"error", &PersistenceError{Key: key, Op: "save", Cause: err},
			"key", string(key), "value", next)
	}
	return next, nil
}

// Snapshot returns every configured counter.
func (s *Store) Snapshot() map[Key]int {
	out := make(map[Key]int, len(s.slots))
	for key := range s.slots {
		v, _ := s.Get(key)
		out[key] = v
	}
	return out
}

func (s *Store) current(key Key, sl *slot) int {
	v, err := sl.backend.Load()
	switch {
	case err == nil:
		if v < 0 {
			s.logger.Warn("counter value negative, using 0", "key", string(key), "value", v)
			v = 0
		}
	case errors.Is(err, ErrAbsent):
		v = sl.fallback
	default:
		s.logger.Warn("counter unreadable, using 0",
			"error", &PersistenceError{Key: key, Op: "load", Cause: err},
			"key", string(key))
		v = 0
	}
	if sl.seen && sl.issued > v {
		v = sl.issued
	}
	return v
}
