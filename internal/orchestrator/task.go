package orchestrator

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/shotpost/internal/platform"
	"github.com/dgnsrekt/shotpost/internal/types"
)

// task is one workflow run. Fields other than mu-guarded ones are only
// touched by the goroutine executing it.
type task struct {
	id        string
	mode      Mode
	event     types.ScreenshotEvent
	queuedAt  time.Time
	observers []Observer
	logger    *slog.Logger

	mu        sync.Mutex
	state     State
	states    []State
	startedAt time.Time
	err       error
	facebook  *platform.Result
	instagram *platform.Result
}

func (t *task) begin() {
	t.mu.Lock()
	t.startedAt = time.Now()
	t.mu.Unlock()
}

func (t *task) current() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *task) to(next State) {
	t.transition(next, nil)
}

// fail moves t to Failed once; later calls are ignored.
func (t *task) fail(err error) {
	t.mu.Lock()
	terminal := t.state.Terminal()
	if !terminal {
		t.err = err
	}
	t.mu.Unlock()
	if !terminal {
		t.transition(Failed, err)
	}
}

func (t *task) transition(next State, err error) {
	t.mu.Lock()
	from := t.state
	if from.Terminal() {
		t.mu.Unlock()
		return
	}
	t.state = next
	t.states = append(t.states, next)
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn("orchestrator state", "from", from.String(), "to", next.String(), "error", err)
	} else {
		t.logger.Info("orchestrator state", "from", from.String(), "to", next.String())
	}
	tr := Transition{TaskID: t.id, From: from, To: next, At: time.Now(), Err: err}
	for _, fn := range t.observers {
		fn(tr)
	}
}

// reject records a task that never ran because the orchestrator stopped.
func (t *task) reject() Report {
	t.fail(ErrShuttingDown)
	return t.report()
}

func (t *task) report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	started := t.startedAt
	if started.IsZero() {
		started = t.queuedAt
	}
	rep := Report{
		TaskID:     t.id,
		Mode:       t.mode,
		Path:       t.event.Path,
		DetectedAt: t.event.DetectedAt,
		StartedAt:  started,
		FinishedAt: time.Now(),
		States:     append([]State(nil), t.states...),
		Final:      t.state,
		Facebook:   t.facebook,
		Instagram:  t.instagram,
		Err:        t.err,
	}
	if rep.Err != nil {
		rep.Error = rep.Err.Error()
	}
	return rep
}

func (t *task) status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskStatus{
		TaskID:    t.id,
		Mode:      t.mode,
		Path:      t.event.Path,
		State:     t.state,
		QueuedAt:  t.queuedAt,
		StartedAt: t.startedAt,
	}
}

func sortStatuses(s []TaskStatus) {
	sort.Slice(s, func(i, j int) bool { return s[i].QueuedAt.Before(s[j].QueuedAt) })
}
