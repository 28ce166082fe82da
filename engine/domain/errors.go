package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrSymptomsEmpty    = errors.New("symptoms text is empty")
	ErrSymptomsTooShort = errors.New("symptoms text too short")
	ErrSymptomsTooLong  = errors.New("symptoms text too long")
	ErrAgeOutOfRange    = errors.New("age out of range")
	ErrQueryInjection   = errors.New("query contains suspicious content")
)

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
