package studio

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput rejects blank descriptions and empty user turns before any collaborator call.
	ErrEmptyInput = errors.New("input is empty")
	// ErrIllegalTransition rejects a trigger that has no row for the current phase.
	ErrIllegalTransition = errors.New("transition not allowed in current phase")
)

// CollaboratorError reports a failed external call that aborted a transition.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

func collaboratorError(op string, err error) error {
	return &CollaboratorError{Op: op, Err: err}
}
