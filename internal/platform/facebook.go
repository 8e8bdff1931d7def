package platform

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgnsrekt/shotpost/internal/caption"
	"github.com/dgnsrekt/shotpost/internal/counter"
	"github.com/dgnsrekt/shotpost/internal/locator"
	"github.com/dgnsrekt/shotpost/internal/session"
)

// DefaultFacebookSettle replaces the wait a submit would need.
const DefaultFacebookSettle = 5 * time.Second

var facebookSteps = []stepDef{
	{name: "composer_trigger", wait: Clickable, action: Click},
	{name: "composer_textbox", wait: Present, action: Retain},
	{name: "photo_video", wait: Clickable, action: Click},
	{name: "file_input", wait: Present, action: SendFile},
}

// FacebookConfig holds the tunables of the Facebook stage.
type FacebookConfig struct {
	Template    string
	WaitTimeout time.Duration
	// Settle is the wait after the caption is typed. Zero selects
	// DefaultFacebookSettle; NoSettle skips it.
	Settle time.Duration
}

// Facebook stages a photo post in the feed composer.
type Facebook struct {
	cfg      FacebookConfig
	steps    []Step
	textbox  string
	homeURL  string
	domain   string
	counters Counters
	logger   *slog.Logger
}

// NewFacebook resolves the Facebook steps from tbl.
func NewFacebook(tbl *locator.Table, counters Counters, cfg FacebookConfig, logger *slog.Logger) (*Facebook, error) {
	p, err := tbl.Platform(locator.Facebook)
	if err != nil {
		return nil, err
	}
	steps, err := resolve(tbl, locator.Facebook, facebookSteps)
	if err != nil {
		return nil, err
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	cfg.Settle = settleOrDefault(cfg.Settle, DefaultFacebookSettle)
	if logger == nil {
		logger = slog.Default()
	}
	return &Facebook{
		cfg:      cfg,
		steps:    steps,
		textbox:  locator.Facebook + ".composer_textbox",
		homeURL:  p.HomeURL,
		domain:   p.Domain,
		counters: counters,
		logger:   logger.With("platform", NameFacebook),
	}, nil
}

func (f *Facebook) Name() string { return NameFacebook }

// Upload stages imagePath with a fresh caption. The post button is never
// pressed.
func (f *Facebook) Upload(ctx context.Context, sess session.Session, imagePath string) Result {
	start := time.Now()
	res := Result{Platform: NameFacebook}
	finish := func(err error) Result {
		res.Err = err
		res.Duration = time.Since(start)
		if err != nil {
			res.Error = err.Error()
			f.logger.Error("facebook upload failed", "path", imagePath, "error", err)
		}
		return res
	}

	abs, err := filepath.Abs(imagePath)
	if err != nil {
		return finish(fmt.Errorf("facebook: %w", err))
	}

	tab, err := FindOrOpen(ctx, sess, f.domain, f.homeURL)
	if err != nil {
		return finish(fmt.Errorf("facebook: find tab: %w", err))
	}
	res.Tab = tab
	f.logger.Info("facebook tab ready", "tab", tab.String())

	retained, err := runSteps(ctx, sess, f.steps, f.cfg.WaitTimeout, abs, f.logger)
	if err != nil {
		return finish(fmt.Errorf("facebook: %w", err))
	}
	textbox, ok := retained[f.textbox]
	if !ok {
		return finish(fmt.Errorf("facebook: composer text box not retained"))
	}

	n, err := f.counters.Increment(counter.Facebook)
	if err != nil {
		return finish(fmt.Errorf("facebook: counter: %w", err))
	}
	res.Counter = n
	res.Caption = caption.Generate(f.cfg.Template, n)
	if err := textbox.TypeText(context.WithoutCancel(ctx), res.Caption); err != nil {
		return finish(fmt.Errorf("facebook: type caption: %w", err))
	}

	f.logger.Info("facebook post staged, submit skipped", "path", abs, "counter", n)
	if err := sleep(ctx, f.cfg.Settle); err != nil {
		return finish(fmt.Errorf("facebook: settle: %w", err))
	}
	return finish(nil)
}

// FindOrOpen makes the first tab whose URL contains domain active, or opens
// homeURL in a new tab and switches to it.
func FindOrOpen(ctx context.Context, sess session.Session, domain, homeURL string) (session.TabHandle, error) {
	tabs, err := sess.ListTabs(ctx)
	if err != nil {
		return "", err
	}
	for _, h := range tabs {
		url, err := session.TabURL(ctx, sess, h)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if strings.Contains(strings.ToLower(url), domain) {
			return h, nil
		}
	}
	h, err := sess.OpenNewTab(ctx, homeURL)
	if err != nil {
		return "", err
	}
	if err := sess.SwitchTo(ctx, h); err != nil {
		return "", err
	}
	return h, nil
}
