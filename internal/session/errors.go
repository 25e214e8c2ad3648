package session

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition matches every *PreconditionError.
	ErrPrecondition = errors.New("precondition not met")
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("invalid input")
	// ErrSuperseded is returned when a newer request of the same kind was
	// issued before this one settled. The result was discarded.
	ErrSuperseded = errors.New("superseded by a newer request")
)

// PreconditionError reports that a downstream stage was started before the
// cached input it depends on exists. No network call was made.
type PreconditionError struct {
	Op      string
	Missing string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Missing)
}

func (e *PreconditionError) Is(target error) bool { return target == ErrPrecondition }

// ValidationError reports missing or invalid user input. Field names the
// wizard step or the edited field.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

func precondition(op, missing string) error {
	return &PreconditionError{Op: op, Missing: missing}
}
