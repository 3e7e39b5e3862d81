package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
)

// Kind classifies an engine failure. Kinds are stable identifiers carried
// into ToolResult payloads and logs; they are never shown raw to end users.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindValidationFailed   Kind = "validation_failed"
	KindMissingParameter   Kind = "missing_parameter"
	KindToolTimeout        Kind = "tool_timeout"
	KindToolFailure        Kind = "tool_failure"
	KindUnknownIntent      Kind = "unknown_intent"
	KindSessionUnavailable Kind = "session_unavailable"
)

// Error wraps an underlying error with a kind, an HTTP status and a safe
// message that can cross the rendering boundary.
type Error struct {
	Err     error
	Kind    Kind
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

// NewKind creates an Error tagged with a Kind.
func NewKind(err error, kind Kind, status int, message string) *Error {
	return &Error{
		Err:     err,
		Kind:    kind,
		Status:  status,
		Message: message,
	}
}

// InvalidInput builds the error returned when an inbound message is empty
// or otherwise unusable before any session mutation happens.
func InvalidInput(message string) *Error {
	return NewKind(nil, KindInvalidInput, http.StatusBadRequest, message)
}

// SessionUnavailable wraps a fatal session store failure. The orchestrator
// turns this into a generic "technical problem" reply rather than a partial
// session update.
func SessionUnavailable(err error) *Error {
	return NewKind(err, KindSessionUnavailable, http.StatusServiceUnavailable, "session store unavailable")
}

// KindOf extracts the Kind from an error chain, or the empty Kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether the target matches the underlying error or the Error itself.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to Error or the wrapped error in a chain.
func (e *Error) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**Error); ok {
		*t = e
		return true
	}
	return false
}
