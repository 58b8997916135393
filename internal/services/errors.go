package services

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced occurrence, assignment,
// department or user does not exist. Nothing is mutated.
var ErrNotFound = errors.New("record not found")

// ErrOccurrenceClosed is returned when an action would mutate an occurrence
// that already reached its terminal CLOSED status.
var ErrOccurrenceClosed = errors.New("occurrence is closed")

// ValidationError reports malformed caller input. Nothing is mutated.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is (or wraps) a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
