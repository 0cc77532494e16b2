package kstep

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every error caused by a malformed or inconsistent request.
	ErrValidation = errors.New("invalid clustering request")

	// ErrUnknownInitMethod is returned when an init method name is not recognized.
	ErrUnknownInitMethod = errors.New("unknown init method")
)

// ValidationError describes which request constraint failed.
//
// It matches ErrValidation via errors.Is. The underlying error (if any) can be
// accessed via errors.Unwrap.
type ValidationError struct {
	Field  string
	Reason string
	cause  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.cause }

// ErrDimensionMismatch indicates a point or centroid whose dimensionality
// differs from the first input point.
type ErrDimensionMismatch struct {
	Field    string
	Index    int
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch at %s[%d]: expected %d, got %d", e.Field, e.Index, e.Expected, e.Actual)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func dimensionMismatch(field string, index, expected, actual int) *ValidationError {
	dm := &ErrDimensionMismatch{Field: field, Index: index, Expected: expected, Actual: actual}
	return &ValidationError{Field: field, Reason: dm.Error(), cause: dm}
}
