package lifecycle

import (
	"errors"
	"fmt"
)

var (
	ErrContestNotFound  = errors.New("contest instance not found")
	ErrTemplateNotFound = errors.New("contest template not found")
)

// ValidationError reports caller input that was rejected before any
// statement reached the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
