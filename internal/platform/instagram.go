package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dgnsrekt/shotpost/internal/caption"
	"github.com/dgnsrekt/shotpost/internal/counter"
	"github.com/dgnsrekt/shotpost/internal/locator"
	"github.com/dgnsrekt/shotpost/internal/retry"
	"github.com/dgnsrekt/shotpost/internal/session"
)

const (
	DefaultInstagramSettle = 60 * time.Second
	CaptionAttempts        = 3
	CaptionBackoff         = time.Second
)

var instagramSteps = []stepDef{
	{name: "create", wait: Clickable, action: Click},
	{name: "post", wait: Clickable, action: Click},
	{name: "select_from_computer", wait: Clickable, action: Click},
	{name: "file_input", wait: Present, action: SendFile},
	{name: "next", wait: Clickable, action: Click},
	{name: "next", wait: Clickable, action: Click},
}

// InstagramConfig holds the tunables of the Instagram stage.
type InstagramConfig struct {
	Template    string
	Hashtags    string
	WaitTimeout time.Duration
	// Settle is the wait after the screenshot is trashed. Zero selects
	// DefaultInstagramSettle; NoSettle skips it.
	Settle time.Duration
}

// Instagram stages a post through the Create dialog.
type Instagram struct {
	cfg        InstagramConfig
	steps      []Step
	captionBox locator.Locator
	homeURL    string
	counters   Counters
	trash      Disposer
	logger     *slog.Logger
}

// NewInstagram resolves the Instagram steps from tbl. trash may be nil.
func NewInstagram(tbl *locator.Table, counters Counters, trash Disposer, cfg InstagramConfig, logger *slog.Logger) (*Instagram, error) {
	p, err := tbl.Platform(locator.Instagram)
	if err != nil {
		return nil, err
	}
	steps, err := resolve(tbl, locator.Instagram, instagramSteps)
	if err != nil {
		return nil, err
	}
	box, err := tbl.Get(locator.Instagram, "caption_box")
	if err != nil {
		return nil, err
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	cfg.Settle = settleOrDefault(cfg.Settle, DefaultInstagramSettle)
	if logger == nil {
		logger = slog.Default()
	}
	return &Instagram{
		cfg:        cfg,
		steps:      steps,
		captionBox: box,
		homeURL:    p.HomeURL,
		counters:   counters,
		trash:      trash,
		logger:     logger.With("platform", NameInstagram),
	}, nil
}

func (ig *Instagram) Name() string { return NameInstagram }

// HomeURL is the page a fresh Instagram tab opens on.
func (ig *Instagram) HomeURL() string { return ig.homeURL }

// Upload stages imagePath on the active tab, which must already show
// Instagram. The share button is never pressed. After three stale caption
// attempts the current tab is closed and the result is marked degraded.
func (ig *Instagram) Upload(ctx context.Context, sess session.Session, imagePath string) Result {
	start := time.Now()
	res := Result{Platform: NameInstagram, Tab: sess.ActiveTab()}
	finish := func(err error) Result {
		res.Err = err
		res.Duration = time.Since(start)
		if err != nil {
			res.Error = err.Error()
			ig.logger.Error("instagram upload failed", "path", imagePath, "error", err)
		}
		return res
	}

	abs, err := filepath.Abs(imagePath)
	if err != nil {
		return finish(fmt.Errorf("instagram: %w", err))
	}
	if _, err := runSteps(ctx, sess, ig.steps, ig.cfg.WaitTimeout, abs, ig.logger); err != nil {
		return finish(fmt.Errorf("instagram: %w", err))
	}

	act := context.WithoutCancel(ctx)
	allocated := false
	policy := retry.Policy{
		Attempts:  CaptionAttempts,
		Backoff:   CaptionBackoff,
		Retryable: session.IsStale,
		Sleep:     func(ctx context.Context, d time.Duration) error { return sleep(ctx, d) },
	}
	out := retry.Do(ctx, policy,
		func(ctx context.Context, attempt int) error {
			box, err := sess.WaitForVisible(ctx, ig.captionBox, ig.cfg.WaitTimeout)
			if err != nil {
				return err
			}
			if err := box.Click(act); err != nil {
				ig.logger.Warn("caption box stale", "attempt", attempt, "error", err)
				return err
			}
			if !allocated {
				n, err := ig.counters.Increment(counter.Instagram)
				if err != nil {
					return fmt.Errorf("counter: %w", err)
				}
				allocated = true
				res.Counter = n
				res.Caption = caption.WithHashtags(caption.Generate(ig.cfg.Template, n), ig.cfg.Hashtags)
			}
			if err := box.TypeText(act, res.Caption); err != nil {
				ig.logger.Warn("caption box stale while typing", "attempt", attempt, "error", err)
				return err
			}
			return nil
		})

	switch {
	case out.Exhausted():
		res.Degraded = true
		res.Cause = out.Err
		res.Error = "caption degraded: " + out.Err.Error()
		ig.logger.Warn("caption box unusable, degraded exit", "attempts", out.Attempts, "error", out.Err)
		ig.degrade(act, sess)
		return finish(nil)
	case out.Err != nil:
		return finish(fmt.Errorf("instagram: caption: %w", out.Err))
	}

	ig.logger.Info("instagram post staged, share skipped", "path", abs, "counter", res.Counter, "attempts", out.Attempts)
	res.Trashed = ig.dispose(abs)

	if err := sleep(ctx, ig.cfg.Settle); err != nil {
		return finish(fmt.Errorf("instagram: settle: %w", err))
	}
	return finish(nil)
}

func (ig *Instagram) dispose(path string) bool {
	if ig.trash == nil {
		return false
	}
	if err := ig.trash.Trash(path); err != nil {
		ig.logger.Error("screenshot trash failed", "path", path, "error", err)
		return false
	}
	ig.logger.Info("screenshot moved to trash", "path", path)
	return true
}

// degrade closes the current tab and falls back to the first remaining one.
func (ig *Instagram) degrade(ctx context.Context, sess session.Session) {
	if cur := sess.ActiveTab(); cur != "" {
		if err := sess.CloseTab(ctx, cur); err != nil {
			ig.logger.Warn("degraded exit: close tab failed", "tab", cur.String(), "error", err)
		}
	}
	tabs, err := sess.ListTabs(ctx)
	if err != nil {
		ig.logger.Warn("degraded exit: list tabs failed", "error", err)
		return
	}
	if len(tabs) == 0 {
		return
	}
	if err := sess.SwitchTo(ctx, tabs[0]); err != nil && !errors.Is(err, context.Canceled) {
		ig.logger.Warn("degraded exit: switch failed", "tab", tabs[0].String(), "error", err)
	}
}
