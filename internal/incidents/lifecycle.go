package incidents

import (
	"context"
	"fmt"
	"time"

	"github.com/statusdeck-dev/statusdeck/internal/models"
	"github.com/statusdeck-dev/statusdeck/internal/store"
	"github.com/statusdeck-dev/statusdeck/internal/types"
)

// allowedTransitions is the complete lifecycle table. There is no
// implicit chaining: identified -> resolved is legal without passing
// through monitoring, and resolved only reopens to investigating.
var allowedTransitions = map[types.IncidentStatus][]types.IncidentStatus{
	types.StatusInvestigating: {types.StatusIdentified, types.StatusMonitoring, types.StatusResolved},
	types.StatusIdentified:    {types.StatusMonitoring, types.StatusResolved},
	types.StatusMonitoring:    {types.StatusResolved},
	types.StatusResolved:      {types.StatusInvestigating},
}

// AllowedNext returns the legal target statuses from the given one.
func AllowedNext(current types.IncidentStatus) []types.IncidentStatus {
	next := allowedTransitions[current]
	out := make([]types.IncidentStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether current -> target is in the table.
func CanTransition(current, target types.IncidentStatus) bool {
	for _, allowed := range allowedTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// transition validates and executes one lifecycle step against a locked
// incident, appending the status_change entry and running the cascade
// side effects in the same transaction.
//
// Entering resolved recalculates every affected entity excluding this
// incident (it no longer counts). Leaving resolved re-asserts the
// incident's impact on every affected entity, since nothing tracked it
// while it was closed.
func (s *Service) transition(ctx context.Context, tx store.Tx, incident *models.Incident, target types.IncidentStatus, note string, actor *uint, changed statusChanges) error {
	if !CanTransition(incident.Status, target) {
		return &InvalidTransitionError{
			Current:   incident.Status,
			Requested: target,
			Allowed:   AllowedNext(incident.Status),
		}
	}

	previous := incident.Status
	now := time.Now().UTC()

	incident.Status = target
	if target == types.StatusResolved {
		resolvedAt := now
		incident.ResolvedAt = &resolvedAt
	} else if previous == types.StatusResolved {
		incident.ResolvedAt = nil
	}

	if err := tx.SaveIncident(ctx, incident); err != nil {
		return fmt.Errorf("save incident: %w", err)
	}

	content := fmt.Sprintf("Status changed from %s to %s", previous, target)
	if note != "" {
		content += ": " + note
	}
	if _, err := appendTimeline(ctx, tx, incident.ID, models.EntryStatusChange, content, actor); err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}

	links, err := tx.ListAffectedEntities(ctx, incident.ID)
	if err != nil {
		return fmt.Errorf("list affected entities: %w", err)
	}

	switch {
	case target == types.StatusResolved:
		for _, link := range links {
			status, err := s.cascade.Recalculate(ctx, tx, link.Ref(), incident.ID)
			if err != nil {
				return err
			}
			changed.record(link.Ref(), status)
		}
	case previous == types.StatusResolved:
		for _, link := range links {
			status, wasChanged, err := s.cascade.ApplyImpact(ctx, tx, link.Ref(), incident.Severity)
			if err != nil {
				return err
			}
			if wasChanged {
				changed.record(link.Ref(), status)
			}
		}
	}

	return nil
}
