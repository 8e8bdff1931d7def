package platform

import (
	"fmt"
	"time"

	"github.com/dgnsrekt/shotpost/internal/session"
)

// Result is the outcome of one platform upload. A degraded exit is a
// result, not an error.
type Result struct {
	Platform string            `json:"platform"`
	Tab      session.TabHandle `json:"tab,omitempty"`
	Counter  int               `json:"counter,omitempty"`
	Caption  string            `json:"caption,omitempty"`
	Degraded bool              `json:"degraded"`
	Trashed  bool              `json:"trashed"`
	Err      error             `json:"-"`
	Cause    error             `json:"-"`
	Error    string            `json:"error,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// OK reports a fully staged post.
func (r Result) OK() bool {
	return r.Err == nil && !r.Degraded
}

// Status is a one-word summary for logs and the control API.
func (r Result) Status() string {
	switch {
	case r.Err != nil:
		return "failed"
	case r.Degraded:
		return "degraded"
	default:
		return "staged"
	}
}

func (r Result) String() string {
	s := fmt.Sprintf("%s %s", r.Platform, r.Status())
	if r.Err != nil {
		s += ": " + r.Err.Error()
	}
	return s
}
