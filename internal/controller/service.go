// Package controller exposes the running uploader to the control API.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"github.com/dgnsrekt/shotpost/internal/counter"
	"github.com/dgnsrekt/shotpost/internal/logsink"
	"github.com/dgnsrekt/shotpost/internal/orchestrator"
	"github.com/dgnsrekt/shotpost/internal/session"
	"github.com/dgnsrekt/shotpost/internal/types"
)

// MaxLogEntries caps one logs request.
const MaxLogEntries = 1000

// Browser is the part of the session the control surface reads.
type Browser interface {
	IsAlive(ctx context.Context) bool
	ActiveTab() session.TabHandle
	Tabs() []types.TabInfo
}

// VersionProber reports the browser product string.
type VersionProber interface {
	Version(ctx context.Context) (*session.BrowserVersion, error)
}

// Runner submits and lists upload tasks.
type Runner interface {
	Dispatch(ev types.ScreenshotEvent) string
	DispatchInstagram(ev types.ScreenshotEvent) string
	Tasks() []orchestrator.TaskStatus
	History() []orchestrator.Report
}

// Counters reads the current caption counters.
type Counters interface {
	Snapshot() map[counter.Key]int
}

// LogSource returns retained log records.
type LogSource interface {
	Entries(limit int) []logsink.Entry
}

// Deps wires a Service. Prober, Logs and Limiter may be nil.
type Deps struct {
	Browser  Browser
	Prober   VersionProber
	Runner   Runner
	Counters Counters
	Logs     LogSource
	// Limiter throttles manual upload submissions.
	Limiter *rate.Limiter
}

// Service backs the control API.
type Service struct {
	browser  Browser
	prober   VersionProber
	runner   Runner
	counters Counters
	logs     LogSource
	limiter  *rate.Limiter
}

func NewService(d Deps) *Service {
	return &Service{
		browser:  d.Browser,
		prober:   d.Prober,
		runner:   d.Runner,
		counters: d.Counters,
		logs:     d.Logs,
		limiter:  d.Limiter,
	}
}

// BrowserHealth describes the attached browser.
type BrowserHealth struct {
	Alive           bool            `json:"alive"`
	Product         string          `json:"product,omitempty"`
	ProtocolVersion string          `json:"protocol_version,omitempty"`
	ActiveTab       string          `json:"active_tab,omitempty"`
	Tabs            []types.TabInfo `json:"tabs"`
}

// CounterValues are the current caption counters.
type CounterValues struct {
	Facebook  int `json:"fb"`
	Instagram int `json:"ig"`
}

// TaskList holds running tasks and recently finished reports.
type TaskList struct {
	Running  []orchestrator.TaskStatus `json:"running"`
	Finished []orchestrator.Report     `json:"finished"`
}

// TaskDetail is either a running task status or a finished report.
type TaskDetail struct {
	TaskID  string                   `json:"task_id"`
	State   orchestrator.State       `json:"state"`
	Running bool                     `json:"running"`
	Status  *orchestrator.TaskStatus `json:"status,omitempty"`
	Report  *orchestrator.Report     `json:"report,omitempty"`
}

// Submission acknowledges a queued upload.
type Submission struct {
	TaskID string            `json:"task_id"`
	Mode   orchestrator.Mode `json:"mode"`
	Path   string            `json:"path"`
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return newError(CodeValidation, fieldName+" is required", nil)
	}
	return nil
}

func (s *Service) BrowserHealth(ctx context.Context) (BrowserHealth, error) {
	h := BrowserHealth{Alive: s.browser.IsAlive(ctx), Tabs: s.browser.Tabs()}
	if h.Tabs == nil {
		h.Tabs = []types.TabInfo{}
	}
	if active := s.browser.ActiveTab(); active != "" {
		h.ActiveTab = string(active)
	}
	if h.Alive && s.prober != nil {
		if v, err := s.prober.Version(ctx); err == nil {
			h.Product = v.Product
			h.ProtocolVersion = v.ProtocolVersion
		}
	}
	return h, nil
}

func (s *Service) Counters(ctx context.Context) (CounterValues, error) {
	snap := s.counters.Snapshot()
	return CounterValues{Facebook: snap[counter.Facebook], Instagram: snap[counter.Instagram]}, nil
}

func (s *Service) ListTasks(ctx context.Context) (TaskList, error) {
	list := TaskList{Running: s.runner.Tasks(), Finished: s.runner.History()}
	if list.Running == nil {
		list.Running = []orchestrator.TaskStatus{}
	}
	if list.Finished == nil {
		list.Finished = []orchestrator.Report{}
	}
	return list, nil
}

func (s *Service) GetTask(ctx context.Context, id string) (TaskDetail, error) {
	if err := s.requireNonEmpty(id, "task_id"); err != nil {
		return TaskDetail{}, err
	}
	id = strings.TrimSpace(id)
	for _, st := range s.runner.Tasks() {
		if st.TaskID == id {
			return TaskDetail{TaskID: id, State: st.State, Running: true, Status: &st}, nil
		}
	}
	hist := s.runner.History()
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i].TaskID == id {
			rep := hist[i]
			return TaskDetail{TaskID: id, State: rep.Final, Report: &rep}, nil
		}
	}
	return TaskDetail{}, newError(CodeNotFound, fmt.Sprintf("task %s not found", id), nil)
}

// SubmitUpload queues path for the full workflow, or only the Instagram
// stage when instagramOnly is set.
func (s *Service) SubmitUpload(ctx context.Context, path string, instagramOnly bool) (Submission, error) {
	if err := s.requireNonEmpty(path, "path"); err != nil {
		return Submission{}, err
	}
	abs, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		return Submission{}, newError(CodeValidation, "invalid path", err)
	}
	if !types.IsScreenshot(abs) {
		return Submission{}, newError(CodeValidation, fmt.Sprintf("unsupported file type, want one of %s", strings.Join(types.ScreenshotExtensions, " ")), nil)
	}
	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Submission{}, newError(CodeNotFound, fmt.Sprintf("file %s not found", abs), nil)
	case err != nil:
		return Submission{}, newError(CodeValidation, "cannot read file", err)
	case info.IsDir():
		return Submission{}, newError(CodeValidation, fmt.Sprintf("%s is a directory", abs), nil)
	}
	if !s.browser.IsAlive(ctx) {
		return Submission{}, newError(CodeBrowserUnavailable, "browser session is not alive", nil)
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return Submission{}, newError(CodeRateLimited, "too many uploads submitted, try again shortly", nil)
	}

	ev := types.NewScreenshotEvent(abs)
	sub := Submission{Path: abs, Mode: orchestrator.ModeFull}
	if instagramOnly {
		sub.Mode = orchestrator.ModeInstagram
		sub.TaskID = s.runner.DispatchInstagram(ev)
	} else {
		sub.TaskID = s.runner.Dispatch(ev)
	}
	return sub, nil
}

func (s *Service) Logs(ctx context.Context, limit int) ([]logsink.Entry, error) {
	if s.logs == nil {
		return []logsink.Entry{}, nil
	}
	if limit <= 0 || limit > MaxLogEntries {
		limit = MaxLogEntries
	}
	entries := s.logs.Entries(limit)
	if entries == nil {
		entries = []logsink.Entry{}
	}
	return entries, nil
}
