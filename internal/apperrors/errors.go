// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
	ErrUpstream     = errors.New("upstream failure")
	ErrStreaming    = errors.New("streaming failure")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "jobId", "filename")
	Resource string // For not found/unauthorized (e.g., "job", "series")
	Action   string // Denied or rejected action (e.g., "cancel", "delete")
	Op       string // Upstream operation that failed (e.g., "s3.listObjects")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Unauthorized creates an error for an action the caller may not perform on a resource.
func Unauthorized(action, resource string) error {
	return &Error{
		Sentinel: ErrUnauthorized,
		Message:  fmt.Sprintf("You are not authorised to %s %s.", action, resource),
		Resource: resource,
		Action:   action,
	}
}

// InvalidState creates an error for an operation that is illegal in the current state.
func InvalidState(action, reason string) error {
	return &Error{
		Sentinel: ErrInvalidState,
		Message:  reason,
		Action:   action,
	}
}

// Upstream creates an error for a failed object store or compute provider call.
func Upstream(op string, cause error) error {
	return &Error{
		Sentinel: ErrUpstream,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Streaming creates an error for a failure after response bytes were sent.
func Streaming(op string, cause error) error {
	return &Error{
		Sentinel: ErrStreaming,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
