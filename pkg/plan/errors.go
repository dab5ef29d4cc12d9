package plan

import (
	"errors"
	"fmt"
)

// ErrPrecondition is matched by every PreconditionError.
var ErrPrecondition = errors.New("precondition violated")

// PreconditionError reports an invalid run configuration detected before
// any remote call is issued.
type PreconditionError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrPrecondition, e.Field, e.Reason)
}

// Is reports whether target is ErrPrecondition.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

func precondition(field, format string, args ...any) error {
	return &PreconditionError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
