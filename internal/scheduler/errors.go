package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveSlots is returned when scheduling is requested but the
	// owner has no active posting slots to resolve against.
	ErrNoActiveSlots = errors.New("no active posting slots")

	// ErrConflict is returned when repeated schedule collisions exhaust
	// the retry budget. The operation can be retried later.
	ErrConflict = errors.New("could not resolve a free posting time")
)

// ValidationError reports a rejected input field. Handlers map it to a 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a field-level validation failure.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
