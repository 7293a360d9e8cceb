// Package apperr defines the error taxonomy shared by the billing and claims
// domains and its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
)

// TransitionError reports a rejected status change. It matches
// ErrInvalidTransition, and additionally ErrInvalidState when the source
// status is terminal.
type TransitionError struct {
	Entity   string
	From     string
	To       string
	Terminal bool
}

func (e *TransitionError) Error() string {
	from := e.From
	if from == "" {
		from = "<unset>"
	}
	if e.Terminal {
		return fmt.Sprintf("%s is in terminal status %s and cannot move to %s", e.Entity, from, e.To)
	}
	return fmt.Sprintf("invalid %s status transition from %s to %s", e.Entity, from, e.To)
}

func (e *TransitionError) Is(target error) bool {
	switch target {
	case ErrInvalidTransition:
		return true
	case ErrInvalidState:
		return e.Terminal
	}
	return false
}

// InvalidArgument wraps ErrInvalidArgument with a formatted message.
func InvalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// InvalidState wraps ErrInvalidState with a formatted message.
func InvalidState(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound for the given entity and key, reading as
// "<entity> not found: <key>".
func NotFound(entity, key string) error {
	return fmt.Errorf("%s %w: %s", entity, ErrNotFound, key)
}

// Conflict wraps ErrConflict with a formatted message.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// HTTPStatus maps an error from the domain layer to a response code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInvalidState):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
