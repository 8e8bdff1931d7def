// Package platform stages posts on the supported sites by driving a
// browser session through ordered locator/action steps.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/shotpost/internal/counter"
	"github.com/dgnsrekt/shotpost/internal/locator"
	"github.com/dgnsrekt/shotpost/internal/session"
)

const (
	NameFacebook  = "facebook"
	NameInstagram = "instagram"
)

// DefaultWaitTimeout bounds each element wait.
const DefaultWaitTimeout = 30 * time.Second

// NoSettle skips a stage's settle wait. A zero Settle selects the stage
// default instead.
const NoSettle time.Duration = -1

func settleOrDefault(d, def time.Duration) time.Duration {
	switch {
	case d == 0:
		return def
	case d < 0:
		return 0
	default:
		return d
	}
}

// Counters hands out caption counter values.
type Counters interface {
	Increment(key counter.Key) (int, error)
}

// Disposer moves a finished screenshot somewhere recoverable.
type Disposer interface {
	Trash(path string) error
}

// Uploader stages one screenshot on one site.
type Uploader interface {
	Name() string
	Upload(ctx context.Context, sess session.Session, imagePath string) Result
}

// Wait selects the element condition a step waits for.
type Wait int

const (
	Present Wait = iota
	Visible
	Clickable
)

// Action is what a step does with the element once the wait succeeds.
type Action int

const (
	// Retain keeps the element for a later step.
	Retain Action = iota
	Click
	SendFile
)

func (a Action) String() string {
	switch a {
	case Click:
		return "click"
	case SendFile:
		return "send_file"
	default:
		return "retain"
	}
}

// Step pairs a locator with a wait condition and an action.
type Step struct {
	Locator locator.Locator
	Wait    Wait
	Action  Action
}

// stepDef names a step by locator name before the table is resolved.
type stepDef struct {
	name   string
	wait   Wait
	action Action
}

func resolve(tbl *locator.Table, platform string, defs []stepDef) ([]Step, error) {
	steps := make([]Step, 0, len(defs))
	for _, sp := range defs {
		loc, err := tbl.Get(platform, sp.name)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Locator: loc, Wait: sp.wait, Action: sp.action})
	}
	return steps, nil
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

func waitFor(ctx context.Context, sess session.Session, loc locator.Locator, w Wait, timeout time.Duration) (session.Element, error) {
	switch w {
	case Clickable:
		return sess.WaitForClickable(ctx, loc, timeout)
	case Visible:
		return sess.WaitForVisible(ctx, loc, timeout)
	default:
		return sess.WaitForPresent(ctx, loc, timeout)
	}
}

// runSteps executes steps in order and returns the retained elements by
// locator key. Waits observe ctx; actions on found elements run to
// completion even if ctx is cancelled meanwhile.
func runSteps(ctx context.Context, sess session.Session, steps []Step, timeout time.Duration, filePath string, logger *slog.Logger) (map[string]session.Element, error) {
	retained := make(map[string]session.Element)
	act := context.WithoutCancel(ctx)
	for i, st := range steps {
		el, err := waitFor(ctx, sess, st.Locator, st.Wait, timeout)
		if err != nil {
			return retained, fmt.Errorf("step %d %s: %w", i+1, st.Locator, err)
		}
		switch st.Action {
		case Click:
			err = el.Click(act)
		case SendFile:
			err = el.SendFilePath(act, filePath)
		case Retain:
			retained[st.Locator.Key] = el
		}
		if err != nil {
			return retained, fmt.Errorf("step %d %s %s: %w", i+1, st.Action, st.Locator, err)
		}
		logger.Debug("step done", "step", i+1, "locator", st.Locator.Key, "action", st.Action.String())
	}
	return retained, nil
}
