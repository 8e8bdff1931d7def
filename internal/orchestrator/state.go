package orchestrator

import (
	"fmt"
	"time"
)

// State is one step of the per-screenshot workflow.
type State int

const (
	Idle State = iota
	PostingFB
	WaitingTransition
	OpeningIG
	PostingIG
	ClosingFB
	Done
	Failed
)

var stateNames = [...]string{
	Idle:              "Idle",
	PostingFB:         "PostingFB",
	WaitingTransition: "WaitingTransition",
	OpeningIG:         "OpeningIG",
	PostingIG:         "PostingIG",
	ClosingFB:         "ClosingFB",
	Done:              "Done",
	Failed:            "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Transition is delivered to observers on every state change.
type Transition struct {
	TaskID string
	From   State
	To     State
	At     time.Time
	Err    error
}

// Observer receives transitions synchronously on the task goroutine.
type Observer func(Transition)

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("orchestrator: unknown state %q", b)
}
