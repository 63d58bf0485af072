package incidents

import (
	"context"

	"github.com/statusdeck-dev/statusdeck/internal/store"
	"github.com/statusdeck-dev/statusdeck/internal/types"
)

// Cascade propagates incident severity onto the operational status of
// affected entities. It runs entirely inside the caller's transaction,
// so a batch over several entities commits or rolls back as one.
//
// The two update paths are deliberately asymmetric and deliberately
// separate methods: ApplyImpact can only hold or worsen a status,
// Recalculate rewrites it from scratch and is the only path that can
// improve one.
type Cascade struct{}

// ApplyImpact raises the entity's status to the worse of its current
// value and the status implied by the severity. Idempotent: a second
// call with the same severity changes nothing. Returns the resulting
// status and whether it changed.
func (Cascade) ApplyImpact(ctx context.Context, tx store.Tx, ref types.EntityRef, severity types.IncidentSeverity) (types.OperationalStatus, bool, error) {
	candidate := types.StatusForSeverity(severity)

	current, err := tx.GetEntityStatusForUpdate(ctx, ref)
	if err != nil {
		return "", false, &CascadeError{Ref: ref, Err: err}
	}

	next := types.WorseOf(current, candidate)
	if next == current {
		return current, false, nil
	}

	if err := tx.SetEntityStatus(ctx, ref, next); err != nil {
		return "", false, &CascadeError{Ref: ref, Err: err}
	}
	return next, true, nil
}

// Recalculate derives the entity's status from every other open
// incident affecting it and writes the result unconditionally,
// defaulting to operational when no open incident remains. The status
// row is locked first so two concurrent recalculations against the
// same entity cannot interleave.
func (Cascade) Recalculate(ctx context.Context, tx store.Tx, ref types.EntityRef, excludeIncidentID uint) (types.OperationalStatus, error) {
	if _, err := tx.GetEntityStatusForUpdate(ctx, ref); err != nil {
		return "", &CascadeError{Ref: ref, Err: err}
	}

	open, err := tx.OpenIncidentsAffecting(ctx, ref, excludeIncidentID)
	if err != nil {
		return "", &CascadeError{Ref: ref, Err: err}
	}

	statuses := make([]types.OperationalStatus, 0, len(open))
	for _, incident := range open {
		statuses = append(statuses, types.StatusForSeverity(incident.Severity))
	}
	worst := types.WorstOf(statuses)

	if err := tx.SetEntityStatus(ctx, ref, worst); err != nil {
		return "", &CascadeError{Ref: ref, Err: err}
	}
	return worst, nil
}
