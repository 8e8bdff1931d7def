package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/shotpost/internal/locator"
	"github.com/dgnsrekt/shotpost/internal/types"
)

// Options tunes a CDPSession. Zero values pick defaults.
type Options struct {
	// AttachTimeout bounds the first attach to a tab.
	AttachTimeout time.Duration
	// ActionTimeout bounds tab operations and element actions.
	ActionTimeout time.Duration
	Probe         Prober
	Logger        *slog.Logger
}

// CDPSession is a Session over a remote Chromium DevTools endpoint.
type CDPSession struct {
	cdpURL        string
	logger        *slog.Logger
	probe         Prober
	attachTimeout time.Duration
	actionTimeout time.Duration

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	tabs *tabRegistry

	attachMu sync.Mutex
	mu       sync.Mutex
	tabCtxs  map[TabHandle]*tabContext
	closed   bool
}

type tabContext struct {
	ctx    context.Context
	cancel context.CancelFunc
}

var _ Session = (*CDPSession)(nil)

// CDP round trips go through these so tests can script the browser.
var (
	runActions      = chromedp.Run
	browserExecutor = func(browserCtx context.Context) cdp.Executor {
		c := chromedp.FromContext(browserCtx)
		if c == nil || c.Browser == nil {
			return nil
		}
		return c.Browser
	}
	getTargets = func(ctx context.Context) ([]*target.Info, error) {
		return target.GetTargets().Do(ctx)
	}
	activateTarget = func(ctx context.Context, id target.ID) error {
		return target.ActivateTarget(id).Do(ctx)
	}
	closeTarget = func(ctx context.Context, id target.ID) error {
		return target.CloseTarget(id).Do(ctx)
	}
)

// Connect attaches to the browser serving cdpURL without opening a tab.
// The first page target becomes the active tab.
func Connect(ctx context.Context, cdpURL string, opts Options) (*CDPSession, error) {
	if opts.AttachTimeout <= 0 {
		opts.AttachTimeout = 15 * time.Second
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	opts.Logger.Info("connecting to chromium", "url", cdpURL)
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), cdpURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	type result struct {
		infos []*target.Info
		err   error
	}
	ready := make(chan result, 1)
	go func() {
		// Targets dials the browser connection without creating a page.
		infos, err := chromedp.Targets(browserCtx)
		ready <- result{infos, err}
	}()

	var res result
	select {
	case res = <-ready:
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, ctx.Err()
	}
	if res.err != nil {
		browserCancel()
		allocCancel()
		return nil, SessionError("failed to connect to browser", res.err)
	}

	s := &CDPSession{
		cdpURL:        cdpURL,
		logger:        opts.Logger,
		probe:         opts.Probe,
		attachTimeout: opts.AttachTimeout,
		actionTimeout: opts.ActionTimeout,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		tabs:          newTabRegistry(),
		tabCtxs:       make(map[TabHandle]*tabContext),
	}
	s.tabs.sync(pageInfos(res.infos))
	if handles := s.tabs.handles(); len(handles) > 0 {
		s.tabs.setActive(handles[0])
	}
	s.logger.Info("connected to chromium", "tabs", s.tabs.count(), "active", s.tabs.getActive().String())
	return s, nil
}

func pageInfos(infos []*target.Info) []types.TabInfo {
	out := make([]types.TabInfo, 0, len(infos))
	for _, info := range infos {
		if info == nil || info.Type != "page" {
			continue
		}
		if strings.HasPrefix(info.URL, "devtools://") {
			continue
		}
		out = append(out, types.TabInfo{TargetID: string(info.TargetID), URL: info.URL, Title: info.Title})
	}
	return out
}

// browserExec returns ctx bound to the browser-level executor, bounded by
// the action timeout.
func (s *CDPSession) browserExec(ctx context.Context) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, nil, SessionError("session closed", nil)
	}
	exec := browserExecutor(s.browserCtx)
	if exec == nil {
		return nil, nil, SessionError("browser not connected", nil)
	}
	tctx, cancel := context.WithTimeout(ctx, s.actionTimeout)
	return cdp.WithExecutor(tctx, exec), cancel, nil
}

func (s *CDPSession) refresh(ctx context.Context) error {
	exec, cancel, err := s.browserExec(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	infos, err := getTargets(exec)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return SessionError("failed to list targets", err)
	}
	for _, h := range s.tabs.sync(pageInfos(infos)) {
		s.forget(h)
		s.logger.Debug("tab gone", "tab", h.String())
	}
	return nil
}

// forget drops the tab context for h without cancelling it, since
// cancelling an attached context closes its tab.
func (s *CDPSession) forget(h TabHandle) {
	s.mu.Lock()
	delete(s.tabCtxs, h)
	s.mu.Unlock()
}

func (s *CDPSession) ListTabs(ctx context.Context) ([]TabHandle, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	return s.tabs.handles(), nil
}

// Tabs returns the last known metadata of every tab in order.
func (s *CDPSession) Tabs() []types.TabInfo {
	return s.tabs.infos()
}

func (s *CDPSession) ActiveTab() TabHandle {
	return s.tabs.getActive()
}

func (s *CDPSession) SwitchTo(ctx context.Context, h TabHandle) error {
	if err := s.refresh(ctx); err != nil {
		return err
	}
	if _, ok := s.tabs.get(h); !ok {
		return SessionError(fmt.Sprintf("tab %s no longer exists", h), nil)
	}
	exec, cancel, err := s.browserExec(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	if err := activateTarget(exec, target.ID(h)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return SessionError(fmt.Sprintf("failed to activate tab %s", h), err)
	}
	s.tabs.setActive(h)
	s.logger.Debug("switched tab", "tab", h.String())
	return nil
}

func (s *CDPSession) OpenNewTab(ctx context.Context, url string) (TabHandle, error) {
	exec, cancel, err := s.browserExec(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()
	id, err := target.CreateTarget(url).Do(exec)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", SessionError("failed to open tab", err)
	}
	h := s.tabs.add(types.TabInfo{TargetID: string(id), URL: url})
	s.logger.Info("opened tab", "tab", h.String(), "url", url)
	return h, nil
}

func (s *CDPSession) CloseTab(ctx context.Context, h TabHandle) error {
	if err := s.refresh(ctx); err != nil {
		return err
	}
	if _, ok := s.tabs.get(h); !ok {
		s.forget(h)
		return nil
	}

	s.mu.Lock()
	tc, attached := s.tabCtxs[h]
	delete(s.tabCtxs, h)
	s.mu.Unlock()

	if attached {
		// Cancelling an attached chromedp context detaches and closes the target.
		tc.cancel()
	} else {
		exec, cancel, err := s.browserExec(ctx)
		if err != nil {
			return err
		}
		defer cancel()
		if err := closeTarget(exec, target.ID(h)); err != nil && !isLostText(err) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return SessionError(fmt.Sprintf("failed to close tab %s", h), err)
		}
	}
	s.tabs.remove(h)
	s.logger.Info("closed tab", "tab", h.String())
	return nil
}

func (s *CDPSession) CurrentURL(ctx context.Context) (string, error) {
	h := s.tabs.getActive()
	if h == "" {
		return "", SessionError("no active tab", nil)
	}
	exec, cancel, err := s.browserExec(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()
	info, err := target.GetTargetInfo().WithTargetID(target.ID(h)).Do(exec)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", SessionError(fmt.Sprintf("tab %s no longer exists", h), err)
	}
	s.tabs.add(types.TabInfo{TargetID: string(info.TargetID), URL: info.URL, Title: info.Title})
	return info.URL, nil
}

// tabContext returns the chromedp context attached to h, attaching on
// first use. The first Run must use the tab context itself because chromedp
// ties the target's event loop to it.
func (s *CDPSession) tabContext(ctx context.Context, h TabHandle) (context.Context, error) {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, SessionError("session closed", nil)
	}
	if tc, ok := s.tabCtxs[h]; ok {
		s.mu.Unlock()
		return tc.ctx, nil
	}
	s.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(context.WithoutCancel(s.browserCtx), chromedp.WithTargetID(target.ID(h)))
	done := make(chan error, 1)
	go func() { done <- runActions(tabCtx) }()

	timer := time.NewTimer(s.attachTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return nil, SessionError(fmt.Sprintf("failed to attach to tab %s", h), err)
		}
	case <-ctx.Done():
		go s.adoptLate(h, tabCtx, cancel, done)
		return nil, ctx.Err()
	case <-timer.C:
		go s.adoptLate(h, tabCtx, cancel, done)
		return nil, SessionError(fmt.Sprintf("attach to tab %s timed out", h), nil)
	}

	s.mu.Lock()
	s.tabCtxs[h] = &tabContext{ctx: tabCtx, cancel: cancel}
	s.mu.Unlock()
	s.logger.Debug("attached to tab", "tab", h.String())
	return tabCtx, nil
}

// adoptLate keeps an attach that finished after its caller gave up.
func (s *CDPSession) adoptLate(h TabHandle, tabCtx context.Context, cancel context.CancelFunc, done <-chan error) {
	if err := <-done; err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tabCtxs[h]; ok || s.closed {
		return
	}
	s.tabCtxs[h] = &tabContext{ctx: tabCtx, cancel: cancel}
}

type waitMode int

const (
	waitPresent waitMode = iota
	waitVisible
	waitClickable
)

func (m waitMode) String() string {
	switch m {
	case waitVisible:
		return "visible"
	case waitClickable:
		return "clickable"
	default:
		return "present"
	}
}

func (s *CDPSession) WaitForClickable(ctx context.Context, loc locator.Locator, timeout time.Duration) (Element, error) {
	return s.wait(ctx, loc, timeout, waitClickable)
}

func (s *CDPSession) WaitForVisible(ctx context.Context, loc locator.Locator, timeout time.Duration) (Element, error) {
	return s.wait(ctx, loc, timeout, waitVisible)
}

func (s *CDPSession) WaitForPresent(ctx context.Context, loc locator.Locator, timeout time.Duration) (Element, error) {
	return s.wait(ctx, loc, timeout, waitPresent)
}

func (s *CDPSession) wait(ctx context.Context, loc locator.Locator, timeout time.Duration, mode waitMode) (Element, error) {
	h := s.tabs.getActive()
	if h == "" {
		return nil, SessionError("no active tab", nil)
	}
	tabCtx, err := s.tabContext(ctx, h)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	condition := chromedp.NodeReady
	if mode != waitPresent {
		condition = chromedp.NodeVisible
	}
	var nodes []*cdp.Node
	actions := chromedp.Tasks{chromedp.Nodes(loc.XPath, &nodes, chromedp.BySearch, condition)}
	if mode == waitClickable {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			if len(nodes) == 0 {
				return nil
			}
			return chromedp.WaitEnabled([]cdp.NodeID{nodes[0].NodeID}, chromedp.ByNodeID).Do(ctx)
		}))
	}

	start := time.Now()
	err = runActions(runCtx, actions)
	switch {
	case err == nil && len(nodes) > 0:
		s.logger.Debug("wait satisfied", "locator", loc.Key, "mode", mode.String(), "elapsed_ms", time.Since(start).Milliseconds())
		return &cdpElement{s: s, tab: h, node: nodes[0], loc: loc}, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err == nil, errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return nil, TimeoutError(loc.Key, timeout)
	case isStaleText(err):
		return nil, StaleReferenceError(loc.Key, err)
	default:
		return nil, &CodedError{Code: CodeSession, Message: "wait " + mode.String() + " failed", Locator: loc.Key, Cause: err}
	}
}

func (s *CDPSession) IsAlive(ctx context.Context) bool {
	if s.probe != nil {
		return s.probe.IsAlive(ctx)
	}
	exec, cancel, err := s.browserExec(ctx)
	if err != nil {
		return false
	}
	defer cancel()
	_, _, _, _, _, err = browser.GetVersion().Do(exec)
	return err == nil
}

// Close drops the browser connection. Tabs stay open in the browser.
func (s *CDPSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.tabCtxs = make(map[TabHandle]*tabContext)
	s.mu.Unlock()

	s.browserCancel()
	s.allocCancel()
	s.logger.Info("cdp session closed")
	return nil
}

type cdpElement struct {
	s    *CDPSession
	tab  TabHandle
	node *cdp.Node
	loc  locator.Locator
}

func (e *cdpElement) Click(ctx context.Context) error {
	return e.do(ctx, "click", chromedp.MouseClickNode(e.node))
}

func (e *cdpElement) TypeText(ctx context.Context, text string) error {
	id := e.node.NodeID
	return e.do(ctx, "type", chromedp.ActionFunc(func(ctx context.Context) error {
		if err := dom.Focus().WithNodeID(id).Do(ctx); err != nil {
			return err
		}
		return input.InsertText(text).Do(ctx)
	}))
}

func (e *cdpElement) SendFilePath(ctx context.Context, path string) error {
	id := e.node.NodeID
	return e.do(ctx, "set file", chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.SetFileInputFiles([]string{path}).WithNodeID(id).Do(ctx)
	}))
}

func (e *cdpElement) do(ctx context.Context, what string, action chromedp.Action) error {
	tabCtx, err := e.s.tabContext(ctx, e.tab)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(tabCtx, e.s.actionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err = runActions(runCtx, action)
	switch {
	case err == nil:
		e.s.logger.Debug("element action", "action", what, "locator", e.loc.Key)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return &CodedError{Code: CodeTimeout, Message: what + " timed out", Locator: e.loc.Key, Cause: err}
	case isStaleText(err):
		return StaleReferenceError(e.loc.Key, err)
	default:
		return &CodedError{Code: CodeSession, Message: what + " failed", Locator: e.loc.Key, Cause: err}
	}
}
