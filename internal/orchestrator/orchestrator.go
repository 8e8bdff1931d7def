// Package orchestrator runs the per-screenshot upload workflow against the
// shared browser session, one task at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/shotpost/internal/platform"
	"github.com/dgnsrekt/shotpost/internal/session"
	"github.com/dgnsrekt/shotpost/internal/types"
)

// ErrShuttingDown is reported for tasks submitted after Shutdown.
var ErrShuttingDown = errors.New("orchestrator: shutting down")

// DefaultHistory is the number of finished reports kept in memory.
const DefaultHistory = 100

// Config holds workflow timings and URLs.
type Config struct {
	// InterPlatformDelay is the pause between the Facebook and Instagram stages.
	InterPlatformDelay time.Duration
	// InstagramURL is opened in a new tab before the Instagram stage.
	InstagramURL string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers fn for every state transition.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, fn) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHistory sets how many finished reports are retained.
func WithHistory(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.history.max = n
		}
	}
}

// WithOnFinish registers fn for every finished task report.
func WithOnFinish(fn func(Report)) Option {
	return func(o *Orchestrator) { o.onFinish = append(o.onFinish, fn) }
}

// Orchestrator owns the exclusive lease on the browser session. Every task
// holds the lease for its whole workflow, so concurrent events queue.
type Orchestrator struct {
	sess      session.Session
	facebook  platform.Uploader
	instagram platform.Uploader
	cfg       Config
	logger    *slog.Logger
	observers []Observer
	onFinish  []func(Report)

	lease chan struct{}

	root       context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	mu       sync.Mutex
	stopped  bool
	inflight map[string]*task
	history  *history
}

// New builds an orchestrator over sess.
func New(sess session.Session, facebook, instagram platform.Uploader, cfg Config, opts ...Option) *Orchestrator {
	root, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		sess:       sess,
		facebook:   facebook,
		instagram:  instagram,
		cfg:        cfg,
		logger:     slog.Default(),
		lease:      make(chan struct{}, 1),
		root:       root,
		rootCancel: cancel,
		inflight:   make(map[string]*task),
		history:    &history{max: DefaultHistory},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type taskKey struct{}

// TaskIDFromContext returns the id of the task running on ctx, or "".
func TaskIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(taskKey{}).(string)
	return id
}

var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run performs the full workflow for ev on the calling goroutine.
func (o *Orchestrator) Run(ctx context.Context, ev types.ScreenshotEvent) Report {
	return o.runNow(ctx, o.newTask(ev, ModeFull))
}

// RunInstagram runs only the Instagram stage for ev in a new tab.
func (o *Orchestrator) RunInstagram(ctx context.Context, ev types.ScreenshotEvent) Report {
	return o.runNow(ctx, o.newTask(ev, ModeInstagram))
}

// Dispatch starts the full workflow for ev on its own goroutine and returns
// the task id.
func (o *Orchestrator) Dispatch(ev types.ScreenshotEvent) string {
	return o.dispatch(o.newTask(ev, ModeFull))
}

// DispatchInstagram starts an Instagram-only task on its own goroutine.
func (o *Orchestrator) DispatchInstagram(ev types.ScreenshotEvent) string {
	return o.dispatch(o.newTask(ev, ModeInstagram))
}

func (o *Orchestrator) dispatch(t *task) string {
	if !o.enter() {
		o.finish(t.reject())
		return t.id
	}
	go func() {
		defer o.wg.Done()
		o.execute(o.root, t)
	}()
	return t.id
}

func (o *Orchestrator) runNow(ctx context.Context, t *task) Report {
	if !o.enter() {
		rep := t.reject()
		o.finish(rep)
		return rep
	}
	defer o.wg.Done()
	return o.execute(ctx, t)
}

func (o *Orchestrator) enter() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return false
	}
	o.wg.Add(1)
	return true
}

// Shutdown stops accepting tasks and cancels running ones. Tasks abort into
// Failed at their next checkpoint.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()
	o.rootCancel()
}

// Wait blocks until no task holds or waits for the lease.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Tasks lists unfinished tasks, oldest first.
func (o *Orchestrator) Tasks() []TaskStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]TaskStatus, 0, len(o.inflight))
	for _, t := range o.inflight {
		out = append(out, t.status())
	}
	sortStatuses(out)
	return out
}

// History returns finished reports, oldest first.
func (o *Orchestrator) History() []Report {
	return o.history.list()
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	select {
	case o.lease <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) release() {
	<-o.lease
}

func (o *Orchestrator) finish(rep Report) {
	o.history.add(rep)
	for _, fn := range o.onFinish {
		fn(rep)
	}
}

func (o *Orchestrator) execute(parent context.Context, t *task) (rep Report) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	stop := context.AfterFunc(o.root, cancel)
	defer stop()
	ctx = context.WithValue(ctx, taskKey{}, t.id)

	o.mu.Lock()
	o.inflight[t.id] = t
	o.mu.Unlock()

	logger := o.logger.With("task", t.id, "path", t.event.Path)
	t.logger = logger

	defer func() {
		if r := recover(); r != nil {
			t.fail(fmt.Errorf("orchestrator: panic: %v", r))
		}
		o.mu.Lock()
		delete(o.inflight, t.id)
		o.mu.Unlock()
		rep = t.report()
		if rep.Final == Failed {
			logger.Error("upload task failed", "states", len(rep.States), "error", rep.Err)
		} else {
			logger.Info("upload task done", "elapsed_ms", rep.FinishedAt.Sub(rep.StartedAt).Milliseconds())
		}
		o.finish(rep)
	}()

	if err := o.acquire(ctx); err != nil {
		t.fail(fmt.Errorf("orchestrator: waiting for browser: %w", err))
		return
	}
	defer o.release()
	t.begin()

	switch t.mode {
	case ModeInstagram:
		o.instagramOnly(ctx, t)
	default:
		o.full(ctx, t)
	}
	return
}

// checkpoint moves t to Failed when ctx is done.
func checkpoint(ctx context.Context, t *task) bool {
	if err := ctx.Err(); err != nil {
		t.fail(fmt.Errorf("orchestrator: cancelled in %s: %w", t.current(), err))
		return false
	}
	return true
}

func (o *Orchestrator) full(ctx context.Context, t *task) {
	path := t.event.Path

	t.to(PostingFB)
	fb := o.facebook.Upload(ctx, o.sess, path)
	t.facebook = &fb
	if !checkpoint(ctx, t) {
		return
	}
	if fb.Err != nil {
		t.logger.Warn("facebook stage failed, continuing with instagram", "error", fb.Err)
	}

	t.to(WaitingTransition)
	if err := sleep(ctx, o.cfg.InterPlatformDelay); err != nil {
		checkpoint(ctx, t)
		return
	}
	fbHandle := o.sess.ActiveTab()
	if fb.Tab == "" {
		// The Facebook stage never reached a tab; do not close whatever is active.
		fbHandle = ""
	}

	if !o.openInstagram(ctx, t) {
		return
	}

	t.to(PostingIG)
	ig := o.instagram.Upload(ctx, o.sess, path)
	t.instagram = &ig
	if !checkpoint(ctx, t) {
		return
	}

	t.to(ClosingFB)
	o.closeTab(ctx, t, fbHandle)
	if !checkpoint(ctx, t) {
		return
	}
	o.switchTopmost(ctx, t)
	t.to(Done)
}

func (o *Orchestrator) instagramOnly(ctx context.Context, t *task) {
	if !o.openInstagram(ctx, t) {
		return
	}
	t.to(PostingIG)
	ig := o.instagram.Upload(ctx, o.sess, t.event.Path)
	t.instagram = &ig
	if !checkpoint(ctx, t) {
		return
	}
	t.to(Done)
}

func (o *Orchestrator) openInstagram(ctx context.Context, t *task) bool {
	t.to(OpeningIG)
	h, err := o.sess.OpenNewTab(ctx, o.cfg.InstagramURL)
	if err != nil {
		t.fail(fmt.Errorf("orchestrator: open instagram tab: %w", err))
		return false
	}
	if err := o.sess.SwitchTo(ctx, h); err != nil {
		t.fail(fmt.Errorf("orchestrator: switch to instagram tab: %w", err))
		return false
	}
	return checkpoint(ctx, t)
}

func (o *Orchestrator) closeTab(ctx context.Context, t *task, h session.TabHandle) {
	if h == "" {
		t.logger.Info("no facebook tab to close")
		return
	}
	tabs, err := o.sess.ListTabs(ctx)
	if err != nil {
		t.logger.Warn("closing facebook tab: list tabs failed", "error", err)
		return
	}
	if !contains(tabs, h) {
		t.logger.Info("facebook tab already closed", "tab", h.String())
		return
	}
	if err := o.sess.SwitchTo(ctx, h); err != nil {
		t.logger.Warn("closing facebook tab: switch failed", "tab", h.String(), "error", err)
		return
	}
	if err := o.sess.CloseTab(ctx, h); err != nil {
		t.logger.Warn("closing facebook tab failed", "tab", h.String(), "error", err)
	}
}

func (o *Orchestrator) switchTopmost(ctx context.Context, t *task) {
	tabs, err := o.sess.ListTabs(ctx)
	if err != nil || len(tabs) == 0 {
		t.logger.Warn("no tab left to activate", "error", err)
		return
	}
	top := tabs[len(tabs)-1]
	if err := o.sess.SwitchTo(ctx, top); err != nil {
		t.logger.Warn("switch to topmost tab failed", "tab", top.String(), "error", err)
	}
}

func contains(tabs []session.TabHandle, h session.TabHandle) bool {
	for _, x := range tabs {
		if x == h {
			return true
		}
	}
	return false
}

func (o *Orchestrator) newTask(ev types.ScreenshotEvent, mode Mode) *task {
	if ev.DetectedAt.IsZero() {
		ev.DetectedAt = time.Now()
	}
	return &task{
		id:        uuid.NewString(),
		mode:      mode,
		event:     ev,
		queuedAt:  time.Now(),
		states:    []State{Idle},
		observers: o.observers,
		logger:    o.logger,
	}
}
