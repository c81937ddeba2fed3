package oracle

import (
	"errors"
	"fmt"
)

// Error types for oracle operations

const (
	// ErrorTypeTransient marks server-side or network failures worth retrying.
	ErrorTypeTransient = "transient"
	// ErrorTypePermanent marks request-shaped failures that retrying cannot fix.
	ErrorTypePermanent = "permanent"
)

// CallError represents a failed oracle invocation
type CallError struct {
	Type       string
	StatusCode int
	Message    string
	Cause      error
}

func (e *CallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("oracle error [%s] status %d: %s (caused by: %v)", e.Type, e.StatusCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("oracle error [%s] status %d: %s", e.Type, e.StatusCode, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Cause
}

// NewTransientError creates an error for retryable server-side failures
func NewTransientError(statusCode int, message string, cause error) *CallError {
	return &CallError{
		Type:       ErrorTypeTransient,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// NewPermanentError creates an error for failures that must not be retried
func NewPermanentError(statusCode int, message string, cause error) *CallError {
	return &CallError{
		Type:       ErrorTypePermanent,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// IsTransient reports whether err is a retryable oracle failure.
func IsTransient(err error) bool {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Type == ErrorTypeTransient
	}
	return false
}
