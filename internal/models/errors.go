package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a subscription does not exist
	ErrNotFound = errors.New("subscription not found")

	// ErrNotAuthorized is returned when the caller does not own the subscription
	ErrNotAuthorized = errors.New("caller does not own this subscription")
)

// ValidationError reports malformed registration or update input. It is
// rejected synchronously before any state is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for a field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
