package schema

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator checks records read back from disk before they re-enter the
// rolling window. A line that parses as JSON but is not a usable record is
// treated the same as a malformed line: skipped, never fatal.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a record validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate checks structural integrity of one record.
func (v *Validator) Validate(rec *Record) error {
	if !rec.Kind.IsValid() {
		return fmt.Errorf("invalid kind %q", rec.Kind)
	}
	if err := v.validate.Struct(rec); err != nil {
		return fmt.Errorf("invalid record %q: %w", rec.ID, err)
	}
	return nil
}
