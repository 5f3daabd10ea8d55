package domain

import (
	"errors"
	"fmt"
)

// ErrorKind tags a degraded or failed outcome in responses and logs.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindConnection         ErrorKind = "CONNECTION_ERROR"
	KindTimeout            ErrorKind = "TIMEOUT"
	KindGeneric            ErrorKind = "GENERIC_ERROR"
	KindServiceUnavailable ErrorKind = "SERVICE_UNAVAILABLE"
	KindStructural         ErrorKind = "STRUCTURAL_STORE_ERROR"
	KindValidation         ErrorKind = "VALIDATION_ERROR"
)

// Sentinel errors.
var (
	ErrNotFound   = errors.New("employee not found")
	ErrStructural = errors.New("vector store unavailable")

	ErrEmptyName     = errors.New("name is required")
	ErrNoPeriods     = errors.New("at least one period is required")
	ErrNegativeHours = errors.New("hours must not be negative")
	ErrEmptyRange    = errors.New("date range is required")
	ErrMissingColumn = errors.New("missing required column")
	ErrEmptyCell     = errors.New("required cell is empty")
	ErrInvalidNumber = errors.New("invalid number")
)

// ValidationError wraps a sentinel with context.
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

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
