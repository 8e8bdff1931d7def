package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	CodeTimeout        = "TIMEOUT"
	CodeStaleReference = "STALE_REFERENCE"
	CodeSession        = "SESSION"
)

// CodedError is the error type returned by Session and Element methods.
type CodedError struct {
	Code    string
	Message string
	Locator string
	Cause   error
}

func (e *CodedError) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Locator != "" {
		msg += " [" + e.Locator + "]"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// TimeoutError reports a wait on loc that did not succeed within timeout.
func TimeoutError(loc string, timeout time.Duration) error {
	return &CodedError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("condition not met within %s", timeout),
		Locator: loc,
		Cause:   context.DeadlineExceeded,
	}
}

// StaleReferenceError reports an action on an element the page re-rendered.
func StaleReferenceError(loc string, cause error) error {
	return &CodedError{Code: CodeStaleReference, Message: "element reference is stale", Locator: loc, Cause: cause}
}

// SessionError reports a lost browser connection or a vanished tab.
func SessionError(msg string, cause error) error {
	return newError(CodeSession, msg, cause)
}

func hasCode(err error, code string) bool {
	var ce *CodedError
	return errors.As(err, &ce) && ce.Code == code
}

func IsTimeout(err error) bool { return hasCode(err, CodeTimeout) }

func IsStale(err error) bool { return hasCode(err, CodeStaleReference) }

func IsSession(err error) bool { return hasCode(err, CodeSession) }

var staleHints = []string{
	"no node with given id",
	"could not find node",
	"node is detached",
	"does not belong to the document",
	"node with given id does not belong",
	"cannot find context with specified id",
}

// isStaleText reports whether a CDP error message describes a node that is
// no longer part of the document.
func isStaleText(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, hint := range staleHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

var lostHints = []string{
	"websocket",
	"use of closed network connection",
	"connection reset",
	"broken pipe",
	"invalid context",
	"target closed",
	"no target with given id",
	"session with given id not found",
}

func isLostText(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, hint := range lostHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
