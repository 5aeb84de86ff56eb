package engine

import (
	"errors"
	"fmt"

	"github.com/fxsettle/confirm-cli/internal/model"
)

// NotFoundError indicates no document exists with the requested id.
type NotFoundError struct {
	DocumentID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document not found: %s", e.DocumentID)
}

// InvalidTransitionError indicates the document exists but its current
// status is not in the transition's expected source set. The current status
// comes from a follow-up unlocked read and is diagnostic only.
type InvalidTransitionError struct {
	DocumentID    string
	CurrentStatus model.ProcessingStatus
	Expected      []model.ProcessingStatus
	Target        model.ProcessingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition for document %s: status %q, expected one of %v to advance to %s",
		e.DocumentID, e.CurrentStatus.String(), e.Expected, e.Target)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInvalidTransition reports whether err wraps an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var it *InvalidTransitionError
	return errors.As(err, &it)
}
