package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// CheckpointStoreMessage describes a failed conversation checkpoint read or write.
	CheckpointStoreMessage = "conversation store unavailable"
	// CheckpointTimeoutMessage describes a checkpoint call that ran out of time.
	CheckpointTimeoutMessage = "conversation store timed out"
	// CheckpointNotFoundMessage describes a session without a checkpoint.
	CheckpointNotFoundMessage = "conversation checkpoint not found"
	// DatabaseErrorMessage describes relational storage failures.
	DatabaseErrorMessage = "database operation failed"
	// NotFoundMessage describes a missing row.
	NotFoundMessage = "record not found"
	// ModelErrorMessage describes a failed language-model or moderation call.
	ModelErrorMessage = "model invocation failed"
	// ModelTimeoutMessage describes a model call that exceeded its deadline.
	ModelTimeoutMessage = "model invocation timed out"
)

// Error wraps an underlying error with an HTTP-like status and a safe message.
type Error struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error with the provided information.
func New(err error, status int, message string) *Error {
	return &Error{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// StatusOf returns the status carried by err, or 500 when err is not an *Error.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether err was classified as a missing record or key.
func IsNotFound(err error) bool {
	return err != nil && StatusOf(err) == http.StatusNotFound
}

// WrapModel classifies a failed model or moderation call. Deadline overruns
// are reported as gateway timeouts so callers can tell them apart.
func WrapModel(err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(err, http.StatusGatewayTimeout, ModelTimeoutMessage)
	}
	return New(err, http.StatusBadGateway, ModelErrorMessage)
}
