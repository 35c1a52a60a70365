package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestValidation(t *testing.T) {
	t.Parallel()
	err := Validation("filename", "No filename provided!")

	if !errors.Is(err, ErrValidation) {
		t.Error("expected error to match ErrValidation")
	}
	if err.Error() != "No filename provided!" {
		t.Errorf("expected message 'No filename provided!', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "filename" {
		t.Errorf("expected field 'filename', got %q", appErr.Field)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	err := NotFound("job", "42")

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to match ErrNotFound")
	}
	if err.Error() != "job 42 not found" {
		t.Errorf("expected message 'job 42 not found', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Resource != "job" {
		t.Errorf("expected resource 'job', got %q", appErr.Resource)
	}
}

func TestUnauthorized(t *testing.T) {
	t.Parallel()
	err := Unauthorized("cancel", "this job")

	if !errors.Is(err, ErrUnauthorized) {
		t.Error("expected error to match ErrUnauthorized")
	}
	if err.Error() != "You are not authorised to cancel this job." {
		t.Errorf("unexpected message: %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Action != "cancel" {
		t.Errorf("expected action 'cancel', got %q", appErr.Action)
	}
}

func TestInvalidState(t *testing.T) {
	t.Parallel()
	err := InvalidState("delete", "cannot delete series while jobs are running")

	if !errors.Is(err, ErrInvalidState) {
		t.Error("expected error to match ErrInvalidState")
	}
	if err.Error() != "cannot delete series while jobs are running" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestUpstream(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("connection refused")
	err := Upstream("ec2.terminateInstances", cause)

	if !errors.Is(err, ErrUpstream) {
		t.Error("expected error to match ErrUpstream")
	}
	if err.Error() != "ec2.terminateInstances: connection refused" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Op != "ec2.terminateInstances" {
		t.Errorf("expected op 'ec2.terminateInstances', got %q", appErr.Op)
	}
	if appErr.Cause != cause {
		t.Error("expected cause to be preserved")
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", Validation("id", "required"), http.StatusBadRequest},
		{"not found", NotFound("job", "123"), http.StatusNotFound},
		{"unauthorized", Unauthorized("delete", "this job"), http.StatusForbidden},
		{"invalid state", InvalidState("delete", "running"), http.StatusConflict},
		{"upstream", Upstream("op", fmt.Errorf("fail")), http.StatusBadGateway},
		{"streaming", Streaming("op", fmt.Errorf("fail")), http.StatusInternalServerError},
		{"sentinel not found", ErrNotFound, http.StatusNotFound},
		{"sentinel unauthorized", ErrUnauthorized, http.StatusForbidden},
		{"wrapped invalid state", fmt.Errorf("wrap: %w", InvalidState("a", "b")), http.StatusConflict},
		{"unknown error", fmt.Errorf("unknown"), http.StatusInternalServerError},
		{"nil error", nil, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := HTTPStatus(tt.err)
			if got != tt.expected {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestErrorsIsWithWrapping(t *testing.T) {
	t.Parallel()
	original := Unauthorized("delete", "this job")
	wrapped := fmt.Errorf("service error: %w", original)
	doubleWrapped := fmt.Errorf("handler error: %w", wrapped)

	if !errors.Is(doubleWrapped, ErrUnauthorized) {
		t.Error("expected errors.Is to find ErrUnauthorized through multiple wraps")
	}
}
