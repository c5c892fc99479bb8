package engine

import (
	"errors"
	"fmt"

	"github.com/danieljhkim/lndir/internal/planner"
)

var (
	// ErrConflict indicates two sources claim the same relative path.
	ErrConflict = errors.New("conflict detected")

	// ErrValidation indicates an invalid request.
	ErrValidation = errors.New("validation failed")

	// ErrDestination indicates the destination is not an existing directory.
	ErrDestination = errors.New("destination is not a readable directory")
)

// ConflictError carries every conflict found while building the merge plan.
// It matches ErrConflict with errors.Is.
type ConflictError struct {
	Conflicts []planner.Conflict
}

func (e *ConflictError) Error() string {
	switch len(e.Conflicts) {
	case 0:
		return ErrConflict.Error()
	case 1:
		return fmt.Sprintf("%s: %s", ErrConflict, e.Conflicts[0])
	default:
		return fmt.Sprintf("%s: %s (and %d more)", ErrConflict, e.Conflicts[0], len(e.Conflicts)-1)
	}
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
