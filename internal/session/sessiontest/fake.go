// Package sessiontest provides an in-memory session.Session for tests.
package sessiontest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgnsrekt/shotpost/internal/locator"
	"github.com/dgnsrekt/shotpost/internal/session"
)

// Call records one operation against the fake.
type Call struct {
	Op     string
	Key    string // locator key for waits and element actions
	Arg    string
	Tab    session.TabHandle // tab the operation targeted
	Active session.TabHandle // active tab when the operation ran
	Task   string
}

// Behavior scripts the outcome of operations on one locator key. The
// per-attempt slices are consumed in order; once empty, the fallback error
// (nil by default) applies.
type Behavior struct {
	WaitErrs  []error
	WaitErr   error
	ClickErrs []error
	TypeErrs  []error
	SendErrs  []error
}

type tab struct {
	handle session.TabHandle
	url    string
}

// Fake is a scripted browser session. The zero value is not usable; call New.
type Fake struct {
	mu        sync.Mutex
	tabs      []tab
	active    session.TabHandle
	nextID    int
	behaviors map[string]*Behavior
	calls     []Call
	alive     bool
	closed    bool

	// OpenErr and SwitchErr fail every OpenNewTab or SwitchTo call.
	OpenErr   error
	SwitchErr error
	// TaskOf labels calls with the caller's task id.
	TaskOf func(context.Context) string
	// Hook runs after each call is recorded, outside the lock.
	Hook func(ctx context.Context, c Call)
}

var _ session.Session = (*Fake)(nil)

// New returns a fake with one tab per url; the first tab is active.
func New(urls ...string) *Fake {
	f := &Fake{behaviors: make(map[string]*Behavior), alive: true}
	for _, u := range urls {
		f.tabs = append(f.tabs, tab{handle: f.newHandle(), url: u})
	}
	if len(f.tabs) > 0 {
		f.active = f.tabs[0].handle
	}
	return f
}

func (f *Fake) newHandle() session.TabHandle {
	f.nextID++
	return session.TabHandle(fmt.Sprintf("TAB%05d", f.nextID))
}

// On returns the behavior for locator key, creating it when absent.
func (f *Fake) On(key string) *Behavior {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.behaviors[key]
	if !ok {
		b = &Behavior{}
		f.behaviors[key] = b
	}
	return b
}

// SetAlive sets the IsAlive answer.
func (f *Fake) SetAlive(alive bool) {
	f.mu.Lock()
	f.alive = alive
	f.mu.Unlock()
}

// Calls returns a copy of every recorded call.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns recorded calls with the given op.
func (f *Fake) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// URLs returns the URL of every open tab in order.
func (f *Fake) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.tabs))
	for i, t := range f.tabs {
		out[i] = t.url
	}
	return out
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) record(ctx context.Context, op, key, arg string, target session.TabHandle) Call {
	task := ""
	if f.TaskOf != nil {
		task = f.TaskOf(ctx)
	}
	f.mu.Lock()
	if target == "" {
		target = f.active
	}
	c := Call{Op: op, Key: key, Arg: arg, Tab: target, Active: f.active, Task: task}
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.Hook != nil {
		f.Hook(ctx, c)
	}
	return c
}

func (f *Fake) indexOf(h session.TabHandle) int {
	for i, t := range f.tabs {
		if t.handle == h {
			return i
		}
	}
	return -1
}

func pop(errs *[]error, fallback error) error {
	if len(*errs) == 0 {
		return fallback
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *Fake) ListTabs(ctx context.Context) ([]session.TabHandle, error) {
	f.record(ctx, "list_tabs", "", "", "")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]session.TabHandle, len(f.tabs))
	for i, t := range f.tabs {
		out[i] = t.handle
	}
	return out, nil
}

func (f *Fake) ActiveTab() session.TabHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *Fake) SwitchTo(ctx context.Context, h session.TabHandle) error {
	f.mu.Lock()
	err := f.SwitchErr
	exists := f.indexOf(h) >= 0
	if err == nil && exists {
		f.active = h
	}
	f.mu.Unlock()
	f.record(ctx, "switch", "", string(h), h)
	if err != nil {
		return err
	}
	if !exists {
		return session.SessionError(fmt.Sprintf("tab %s no longer exists", h), nil)
	}
	return nil
}

func (f *Fake) OpenNewTab(ctx context.Context, url string) (session.TabHandle, error) {
	f.mu.Lock()
	if err := f.OpenErr; err != nil {
		f.mu.Unlock()
		f.record(ctx, "open", "", url, "")
		return "", err
	}
	h := f.newHandle()
	f.tabs = append(f.tabs, tab{handle: h, url: url})
	f.mu.Unlock()
	f.record(ctx, "open", "", url, h)
	return h, nil
}

func (f *Fake) CloseTab(ctx context.Context, h session.TabHandle) error {
	f.mu.Lock()
	if i := f.indexOf(h); i >= 0 {
		f.tabs = append(f.tabs[:i], f.tabs[i+1:]...)
		if f.active == h {
			f.active = ""
		}
	}
	f.mu.Unlock()
	f.record(ctx, "close", "", string(h), h)
	return nil
}

func (f *Fake) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	i := f.indexOf(f.active)
	url := ""
	if i >= 0 {
		url = f.tabs[i].url
	}
	f.mu.Unlock()
	f.record(ctx, "current_url", "", url, "")
	if i < 0 {
		return "", session.SessionError("no active tab", nil)
	}
	return url, nil
}

func (f *Fake) WaitForClickable(ctx context.Context, loc locator.Locator, timeout time.Duration) (session.Element, error) {
	return f.wait(ctx, "wait_clickable", loc)
}

func (f *Fake) WaitForVisible(ctx context.Context, loc locator.Locator, timeout time.Duration) (session.Element, error) {
	return f.wait(ctx, "wait_visible", loc)
}

func (f *Fake) WaitForPresent(ctx context.Context, loc locator.Locator, timeout time.Duration) (session.Element, error) {
	return f.wait(ctx, "wait_present", loc)
}

func (f *Fake) wait(ctx context.Context, op string, loc locator.Locator) (session.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := f.On(loc.Key)
	c := f.record(ctx, op, loc.Key, "", "")
	f.mu.Lock()
	err := pop(&b.WaitErrs, b.WaitErr)
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &element{f: f, key: loc.Key, tab: c.Active}, nil
}

func (f *Fake) IsAlive(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive && !f.closed
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

type element struct {
	f   *Fake
	key string
	tab session.TabHandle
}

func (e *element) act(ctx context.Context, op, arg string, errs func(*Behavior) *[]error) error {
	e.f.record(ctx, op, e.key, arg, e.tab)
	b := e.f.On(e.key)
	e.f.mu.Lock()
	defer e.f.mu.Unlock()
	return pop(errs(b), nil)
}

func (e *element) Click(ctx context.Context) error {
	return e.act(ctx, "click", "", func(b *Behavior) *[]error { return &b.ClickErrs })
}

func (e *element) TypeText(ctx context.Context, text string) error {
	return e.act(ctx, "type", text, func(b *Behavior) *[]error { return &b.TypeErrs })
}

func (e *element) SendFilePath(ctx context.Context, path string) error {
	return e.act(ctx, "send_file", path, func(b *Behavior) *[]error { return &b.SendErrs })
}
