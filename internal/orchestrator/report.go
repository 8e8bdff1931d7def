package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/shotpost/internal/platform"
)

// Mode selects which stages a task runs.
type Mode string

const (
	// ModeFull runs Facebook then Instagram.
	ModeFull Mode = "full"
	// ModeInstagram runs only the Instagram stage in a fresh tab.
	ModeInstagram Mode = "instagram"
)

// Report is the record of one finished task.
type Report struct {
	TaskID     string           `json:"task_id"`
	Mode       Mode             `json:"mode"`
	Path       string           `json:"path"`
	DetectedAt time.Time        `json:"detected_at"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	States     []State          `json:"states"`
	Final      State            `json:"final"`
	Facebook   *platform.Result `json:"facebook,omitempty"`
	Instagram  *platform.Result `json:"instagram,omitempty"`
	Error      string           `json:"error,omitempty"`
	Err        error            `json:"-"`
}

// Summary is a single line suitable for notifications.
func (r Report) Summary() string {
	parts := []string{fmt.Sprintf("%s %s", r.Final, shortPath(r.Path))}
	if r.Facebook != nil {
		parts = append(parts, "fb="+r.Facebook.Status())
	}
	if r.Instagram != nil {
		parts = append(parts, "ig="+r.Instagram.Status())
	}
	if r.Err != nil {
		parts = append(parts, "error="+r.Err.Error())
	}
	return strings.Join(parts, " ")
}

func shortPath(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// TaskStatus describes a task that has not finished yet.
type TaskStatus struct {
	TaskID    string    `json:"task_id"`
	Mode      Mode      `json:"mode"`
	Path      string    `json:"path"`
	State     State     `json:"state"`
	QueuedAt  time.Time `json:"queued_at"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

type history struct {
	mu      sync.Mutex
	max     int
	reports []Report
}

func (h *history) add(r Report) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, r)
	if over := len(h.reports) - h.max; over > 0 {
		h.reports = append([]Report(nil), h.reports[over:]...)
	}
}

func (h *history) list() []Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Report(nil), h.reports...)
}
