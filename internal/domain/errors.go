package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across all layers. Each maps to exactly one error kind
// surfaced by the user-facing operations.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrStaleFeature        = errors.New("stale feature")
	ErrExternalUnavailable = errors.New("external unavailable")
	ErrConflict            = errors.New("conflicting write")
	ErrCorrupt             = errors.New("corrupt")
)

// ErrorKind names one member of the error taxonomy.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindNotFound            ErrorKind = "not_found"
	KindInvalidArgument     ErrorKind = "invalid_argument"
	KindStaleFeature        ErrorKind = "stale_feature"
	KindExternalUnavailable ErrorKind = "external_unavailable"
	KindConflictingWrite    ErrorKind = "conflicting_write"
	KindCorrupt             ErrorKind = "corrupt"
	KindInternal            ErrorKind = "internal"
)

// Kind classifies err into the taxonomy. Unclassified errors are internal.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrCorrupt):
		return KindCorrupt
	case errors.Is(err, ErrConflict):
		return KindConflictingWrite
	case errors.Is(err, ErrStaleFeature):
		return KindStaleFeature
	case errors.Is(err, ErrExternalUnavailable):
		return KindExternalUnavailable
	default:
		return KindInternal
	}
}

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("invalid argument: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("invalid argument: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// NewValidationErrors creates a ValidationError from multiple field errors.
func NewValidationErrors(errs []FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}

// CorruptError reports a persisted invariant violation detected on read.
// The engine never repairs history silently; RepairHint tells the operator
// what to do instead.
type CorruptError struct {
	Entity     string
	ID         string
	Detail     string
	RepairHint string
}

func (e *CorruptError) Error() string {
	msg := fmt.Sprintf("corrupt %s %s: %s", e.Entity, e.ID, e.Detail)
	if e.RepairHint != "" {
		msg += " (hint: " + e.RepairHint + ")"
	}
	return msg
}

func (e *CorruptError) Unwrap() error { return ErrCorrupt }

// NotFoundf wraps ErrNotFound with a formatted entity description.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}
