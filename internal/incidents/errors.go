package incidents

import (
	"errors"
	"fmt"

	"github.com/statusdeck-dev/statusdeck/internal/types"
)

var (
	// ErrUnauthorized is returned when the actor lacks the capability
	// an operation requires. Never retried.
	ErrUnauthorized = errors.New("actor lacks required capability")
	// ErrNotFound is returned when the incident or referenced record
	// does not exist in the actor's tenant or is soft-deleted.
	ErrNotFound = errors.New("incident not found")
	// ErrConcurrentModification is returned after a serialization
	// conflict survives the single transparent retry.
	ErrConcurrentModification = errors.New("incident was modified concurrently")
)

// InvalidTransitionError reports an illegal lifecycle transition with
// enough context to explain the rejection.
type InvalidTransitionError struct {
	Current   types.IncidentStatus
	Requested types.IncidentStatus
	Allowed   []types.IncidentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition incident from %s to %s (allowed: %v)",
		e.Current, e.Requested, e.Allowed)
}

// CascadeError wraps a failed entity-status read or write during a
// cascade batch. It always causes the whole transaction to roll back.
type CascadeError struct {
	Ref types.EntityRef
	Err error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("cascade write failed for %s: %v", e.Ref, e.Err)
}

func (e *CascadeError) Unwrap() error {
	return e.Err
}
