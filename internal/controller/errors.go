package controller

import "fmt"

const (
	CodeValidation         = "VALIDATION"
	CodeNotFound           = "NOT_FOUND"
	CodeBrowserUnavailable = "BROWSER_UNAVAILABLE"
	CodeRateLimited        = "RATE_LIMITED"
)

// CodedError is returned for request problems the API maps to a status.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, message string, cause error) *CodedError {
	return &CodedError{Code: code, Message: message, Cause: cause}
}
