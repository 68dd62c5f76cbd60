package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

const (
	// ErrNotFound indicates an unknown session id.
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrNotReady indicates results were requested before the session completed.
	ErrNotReady ErrorCode = "NOT_READY"
	// ErrInvalidConfig indicates a rejected task configuration
	// (negative worker count, unknown mode, invalid group size).
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrUnitFailure indicates a single worker or synthesis unit failed.
	// Unit failures are recorded in the corresponding AgentResult and never
	// abort sibling units or the pipeline.
	ErrUnitFailure ErrorCode = "UNIT_FAILURE"
	// ErrPipelineFailure indicates an unexpected internal error during
	// pipeline assembly. Fatal to the session.
	ErrPipelineFailure ErrorCode = "PIPELINE_FAILURE"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
// Returns the empty string when err carries no code.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
