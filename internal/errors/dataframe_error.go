// Package errors provides standardized error types for expression evaluation.
// Recoverable failures are returned as DataFrameError values; broken internal
// invariants are raised with panic as InvariantError because they mean the
// expression tree or grouping was built inconsistently upstream.
package errors

import (
	stderrors "errors"
	"fmt"
)

// DataFrameError represents standardized errors across all evaluation operations
type DataFrameError struct {
	Op      string // Operation name (e.g., "Ternary", "Sum", "GroupBy")
	Column  string // Column name if applicable
	Message string // Human-readable error description
	Cause   error  // Underlying error cause
}

// Error implements the error interface
func (e *DataFrameError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s operation failed on column '%s': %s", e.Op, e.Column, e.Message)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Op, e.Message)
}

// Unwrap returns the underlying cause for error wrapping support
func (e *DataFrameError) Unwrap() error {
	return e.Cause
}

// Is implements error equality checking for errors.Is()
func (e *DataFrameError) Is(target error) bool {
	if df, ok := target.(*DataFrameError); ok {
		return e.Op == df.Op && e.Column == df.Column && e.Message == df.Message
	}
	return false
}

// InvariantError reports a violated internal invariant. It is never returned,
// only raised with panic, and aborts the running query.
type InvariantError struct {
	Op      string
	Message string
}

// Error implements the error interface
func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s invariant violated: %s", e.Op, e.Message)
}

// Invariant panics with an InvariantError built from the format and args.
func Invariant(op, format string, args ...interface{}) {
	panic(&InvariantError{Op: op, Message: fmt.Sprintf(format, args...)})
}

// Common error constructors for consistent error creation

// NewColumnNotFoundError creates an error for operations on non-existent columns
func NewColumnNotFoundError(op, column string) *DataFrameError {
	return &DataFrameError{
		Op:      op,
		Column:  column,
		Message: "column does not exist",
	}
}

// NewInvalidInputError creates an error for invalid operation inputs
func NewInvalidInputError(op, message string) *DataFrameError {
	return &DataFrameError{
		Op:      op,
		Message: message,
	}
}

// NewUnsupportedTypeError creates an error for unsupported data types
func NewUnsupportedTypeError(op, typeName string) *DataFrameError {
	return &DataFrameError{
		Op:      op,
		Message: fmt.Sprintf("unsupported type: %s", typeName),
		Cause:   ErrCompute,
	}
}

// NewComputeError creates a recoverable computation error. Every error built
// here matches ErrCompute with errors.Is.
func NewComputeError(op, message string) *DataFrameError {
	return &DataFrameError{
		Op:      op,
		Message: message,
		Cause:   ErrCompute,
	}
}

// NewTypeMismatchError creates a compute error for a value of the wrong type
func NewTypeMismatchError(op, expected, got string) *DataFrameError {
	return NewComputeError(op, fmt.Sprintf("expected %s, got %s", expected, got))
}

// NewInternalError creates an error for internal operation failures
func NewInternalError(op string, cause error) *DataFrameError {
	return &DataFrameError{
		Op:      op,
		Message: "internal error occurred",
		Cause:   cause,
	}
}

// Predefined error variables for common cases
var (
	// ErrCompute is the cause shared by all compute errors
	ErrCompute = &DataFrameError{
		Op:      "compute",
		Message: "computation failed",
	}

	// ErrMismatchedLength indicates length mismatches in operations
	ErrMismatchedLength = &DataFrameError{
		Op:      "validation",
		Message: "arrays must have the same length",
	}

	// ErrInvalidIndex indicates out-of-bounds index access
	ErrInvalidIndex = &DataFrameError{
		Op:      "indexing",
		Message: "index out of bounds",
	}
)

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
