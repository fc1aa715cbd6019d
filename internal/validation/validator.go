// Package validation holds the reusable input checks of table operations.
package validation

import (
	"fmt"

	"github.com/paveg/whenthen/internal/errors"
)

// Validator interface for input validation
type Validator interface {
	Validate() error
}

// ColumnProvider is anything that can answer whether a column exists
type ColumnProvider interface {
	HasColumn(name string) bool
}

// ColumnValidator validates column existence
type ColumnValidator struct {
	df      ColumnProvider
	columns []string
	op      string
}

// NewColumnValidator creates a validator for column operations
func NewColumnValidator(df ColumnProvider, op string, columns ...string) *ColumnValidator {
	return &ColumnValidator{df: df, columns: columns, op: op}
}

// Validate checks if all columns exist, reporting the first missing one
func (v *ColumnValidator) Validate() error {
	for _, column := range v.columns {
		if !v.df.HasColumn(column) {
			return errors.NewColumnNotFoundError(v.op, column)
		}
	}
	return nil
}

// RequiredValidator rejects an empty list of something the operation needs
type RequiredValidator struct {
	count int
	what  string
	op    string
}

// NewRequiredValidator creates a validator requiring count > 0
func NewRequiredValidator(count int, op, what string) *RequiredValidator {
	return &RequiredValidator{count: count, what: what, op: op}
}

// Validate checks the count
func (v *RequiredValidator) Validate() error {
	if v.count == 0 {
		return errors.NewInvalidInputError(v.op, fmt.Sprintf("at least one %s is required", v.what))
	}
	return nil
}

// UniqueValidator rejects repeated names
type UniqueValidator struct {
	names []string
	hint  string
	op    string
}

// NewUniqueValidator creates a validator for distinct names. hint, when
// set, is appended to the error message.
func NewUniqueValidator(op string, names []string, hint string) *UniqueValidator {
	return &UniqueValidator{names: names, hint: hint, op: op}
}

// Validate reports the first repeated name
func (v *UniqueValidator) Validate() error {
	seen := make(map[string]struct{}, len(v.names))
	for _, name := range v.names {
		if _, ok := seen[name]; ok {
			msg := fmt.Sprintf("duplicate output column %s", name)
			if v.hint != "" {
				msg += ", " + v.hint
			}
			return errors.NewInvalidInputError(v.op, msg)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// CompoundValidator combines multiple validators
type CompoundValidator struct {
	validators []Validator
}

// NewCompoundValidator creates a validator that checks multiple conditions
func NewCompoundValidator(validators ...Validator) *CompoundValidator {
	return &CompoundValidator{validators: validators}
}

// Validate runs all validators and returns the first error encountered
func (v *CompoundValidator) Validate() error {
	for _, validator := range v.validators {
		if err := validator.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateColumns is a convenience function for column validation
func ValidateColumns(df ColumnProvider, op string, columns ...string) error {
	return NewColumnValidator(df, op, columns...).Validate()
}

// ValidateKeys checks a non-empty list of existing key columns
func ValidateKeys(df ColumnProvider, op string, keys ...string) error {
	return NewCompoundValidator(
		NewRequiredValidator(len(keys), op, "key column"),
		NewColumnValidator(df, op, keys...),
	).Validate()
}

// ValidateUnique is a convenience function for distinct output names
func ValidateUnique(op string, names []string, hint string) error {
	return NewUniqueValidator(op, names, hint).Validate()
}
