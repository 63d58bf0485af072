package incidents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/statusdeck-dev/statusdeck/internal/auth"
	"github.com/statusdeck-dev/statusdeck/internal/models"
	"github.com/statusdeck-dev/statusdeck/internal/store"
	"github.com/statusdeck-dev/statusdeck/internal/types"
)

// Actor is the authenticated principal performing an operation.
type Actor struct {
	ID       uint
	TenantID uint
	Role     auth.Role
}

// Authorizer is the capability gate consulted before privileged
// operations.
type Authorizer interface {
	HasCapability(actor Actor, capability auth.Capability) bool
}

// RoleAuthorizer answers capability checks from the built-in role
// hierarchy.
type RoleAuthorizer struct{}

func (RoleAuthorizer) HasCapability(actor Actor, capability auth.Capability) bool {
	return auth.HasCapability(actor.Role, capability)
}

// StatusMirror receives committed entity-status values for best-effort
// replication (e.g. the Redis mirror). Never part of the transaction.
type StatusMirror interface {
	SetEntityStatus(ctx context.Context, ref types.EntityRef, status types.OperationalStatus) error
}

// Notifier receives committed incident lifecycle events, best-effort.
type Notifier interface {
	IncidentCreated(incident *models.Incident)
	IncidentResolved(incident *models.Incident)
}

// statusChanges accumulates entity-status writes made inside a
// transaction so they can be fanned out after commit.
type statusChanges map[types.EntityRef]types.OperationalStatus

func (c statusChanges) record(ref types.EntityRef, status types.OperationalStatus) {
	c[ref] = status
}

// Service is the incident orchestrator: every public operation runs as
// one transaction covering the incident mutation, its timeline entries
// and the full cascade batch.
type Service struct {
	store    store.Store
	authz    Authorizer
	logger   *slog.Logger
	cascade  Cascade
	mirror   StatusMirror
	notifier Notifier
}

func NewService(st store.Store, authz Authorizer, logger *slog.Logger) *Service {
	return &Service{store: st, authz: authz, logger: logger}
}

// WithMirror attaches a post-commit status mirror.
func (s *Service) WithMirror(mirror StatusMirror) *Service {
	s.mirror = mirror
	return s
}

// WithNotifier attaches a post-commit lifecycle notifier.
func (s *Service) WithNotifier(notifier Notifier) *Service {
	s.notifier = notifier
	return s
}

type CreateParams struct {
	Title       string
	Description string
	Severity    types.IncidentSeverity
	ImpactType  types.ImpactType
	Entities    []types.EntityRef
}

func (p CreateParams) validate() error {
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !p.Severity.Valid() {
		return fmt.Errorf("invalid severity %q", p.Severity)
	}
	if !p.ImpactType.Valid() {
		return fmt.Errorf("invalid impact type %q", p.ImpactType)
	}
	for _, ref := range p.Entities {
		if !ref.Type.Valid() {
			return fmt.Errorf("invalid entity type %q", ref.Type)
		}
		if ref.ID == "" {
			return fmt.Errorf("entity id is required")
		}
	}
	return nil
}

// Create opens a new incident in investigating, links its affected
// entities, writes the creation timeline entry and applies the
// severity impact to every entity — all in one transaction.
func (s *Service) Create(ctx context.Context, actor Actor, params CreateParams) (*models.Incident, error) {
	if !s.authz.HasCapability(actor, auth.CapabilityEditIncidents) {
		return nil, ErrUnauthorized
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	var incident *models.Incident
	changed := statusChanges{}

	err := s.inTransaction(ctx, func(tx store.Tx) error {
		clear(changed)

		actorID := actor.ID
		incident = &models.Incident{
			TenantID:    actor.TenantID,
			Title:       params.Title,
			Description: params.Description,
			Severity:    params.Severity,
			Status:      types.StatusInvestigating,
			ImpactType:  params.ImpactType,
			StartedAt:   time.Now().UTC(),
			CreatedBy:   actorID,
		}
		if err := tx.CreateIncident(ctx, incident); err != nil {
			return fmt.Errorf("create incident: %w", err)
		}

		seen := make(map[types.EntityRef]bool, len(params.Entities))
		for _, ref := range params.Entities {
			if seen[ref] {
				continue
			}
			seen[ref] = true

			link := &models.AffectedEntity{
				IncidentID: incident.ID,
				EntityType: ref.Type,
				EntityID:   ref.ID,
			}
			if err := tx.AddAffectedEntity(ctx, link); err != nil {
				return fmt.Errorf("link entity %s: %w", ref, err)
			}
		}

		content := fmt.Sprintf("Incident created with severity %s", params.Severity)
		if _, err := appendTimeline(ctx, tx, incident.ID, models.EntryStatusChange, content, &actorID); err != nil {
			return fmt.Errorf("append timeline: %w", err)
		}

		for ref := range seen {
			status, wasChanged, err := s.cascade.ApplyImpact(ctx, tx, ref, params.Severity)
			if err != nil {
				return err
			}
			if wasChanged {
				changed.record(ref, status)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("incident created",
		"incident_id", incident.ID, "severity", incident.Severity, "actor", actor.ID)
	s.fanOut(ctx, changed)
	if s.notifier != nil {
		s.notifier.IncidentCreated(incident)
	}
	return incident, nil
}

// Advance moves an incident through its lifecycle. Resolve and Reopen
// are the same operation with fixed targets.
func (s *Service) Advance(ctx context.Context, actor Actor, incidentID uint, target types.IncidentStatus, note string) (*models.Incident, error) {
	if !s.authz.HasCapability(actor, auth.CapabilityCommandIncidents) {
		return nil, ErrUnauthorized
	}
	if !target.Valid() {
		return nil, fmt.Errorf("invalid status %q", target)
	}

	var incident *models.Incident
	changed := statusChanges{}

	err := s.inTransaction(ctx, func(tx store.Tx) error {
		clear(changed)

		var err error
		incident, err = tx.GetIncidentForUpdate(ctx, actor.TenantID, incidentID)
		if err != nil {
			return s.mapStoreError(err)
		}
		actorID := actor.ID
		return s.transition(ctx, tx, incident, target, note, &actorID, changed)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("incident advanced",
		"incident_id", incident.ID, "status", incident.Status, "actor", actor.ID)
	s.fanOut(ctx, changed)
	if s.notifier != nil && incident.Status == types.StatusResolved {
		s.notifier.IncidentResolved(incident)
	}
	return incident, nil
}

// Resolve marks the incident resolved and recalculates every affected
// entity from the remaining open incidents.
func (s *Service) Resolve(ctx context.Context, actor Actor, incidentID uint, note string) (*models.Incident, error) {
	return s.Advance(ctx, actor, incidentID, types.StatusResolved, note)
}

// Reopen returns a resolved incident to investigating and re-asserts
// its impact on every affected entity.
func (s *Service) Reopen(ctx context.Context, actor Actor, incidentID uint, note string) (*models.Incident, error) {
	return s.Advance(ctx, actor, incidentID, types.StatusInvestigating, note)
}

// AddAffectedEntity links an entity to the incident. Idempotent: an
// existing link is left untouched with no timeline entry. The impact
// applies only while the incident is open.
func (s *Service) AddAffectedEntity(ctx context.Context, actor Actor, incidentID uint, ref types.EntityRef) error {
	if !s.authz.HasCapability(actor, auth.CapabilityCommandIncidents) {
		return ErrUnauthorized
	}
	if !ref.Type.Valid() || ref.ID == "" {
		return fmt.Errorf("invalid entity reference %q", ref)
	}

	changed := statusChanges{}

	err := s.inTransaction(ctx, func(tx store.Tx) error {
		clear(changed)

		incident, err := tx.GetIncidentForUpdate(ctx, actor.TenantID, incidentID)
		if err != nil {
			return s.mapStoreError(err)
		}

		exists, err := tx.HasAffectedEntity(ctx, incident.ID, ref)
		if err != nil {
			return fmt.Errorf("check link: %w", err)
		}
		if exists {
			return nil
		}

		link := &models.AffectedEntity{
			IncidentID: incident.ID,
			EntityType: ref.Type,
			EntityID:   ref.ID,
		}
		if err := tx.AddAffectedEntity(ctx, link); err != nil {
			return fmt.Errorf("link entity %s: %w", ref, err)
		}

		actorID := actor.ID
		content := fmt.Sprintf("Affected entity %s added", ref)
		if _, err := appendTimeline(ctx, tx, incident.ID, models.EntryEntityAdded, content, &actorID); err != nil {
			return fmt.Errorf("append timeline: %w", err)
		}

		if incident.Open() {
			status, wasChanged, err := s.cascade.ApplyImpact(ctx, tx, ref, incident.Severity)
			if err != nil {
				return err
			}
			if wasChanged {
				changed.record(ref, status)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.fanOut(ctx, changed)
	return nil
}

// RemoveAffectedEntity detaches an entity and recalculates its status
// from the incidents that still affect it. The deleted link excludes
// this incident from consideration on its own.
func (s *Service) RemoveAffectedEntity(ctx context.Context, actor Actor, incidentID uint, ref types.EntityRef) error {
	if !s.authz.HasCapability(actor, auth.CapabilityCommandIncidents) {
		return ErrUnauthorized
	}

	changed := statusChanges{}

	err := s.inTransaction(ctx, func(tx store.Tx) error {
		clear(changed)

		incident, err := tx.GetIncidentForUpdate(ctx, actor.TenantID, incidentID)
		if err != nil {
			return s.mapStoreError(err)
		}

		removed, err := tx.RemoveAffectedEntity(ctx, incident.ID, ref)
		if err != nil {
			return fmt.Errorf("remove link: %w", err)
		}
		if !removed {
			return ErrNotFound
		}

		actorID := actor.ID
		content := fmt.Sprintf("Affected entity %s removed", ref)
		if _, err := appendTimeline(ctx, tx, incident.ID, models.EntryEntityRemoved, content, &actorID); err != nil {
			return fmt.Errorf("append timeline: %w", err)
		}

		status, err := s.cascade.Recalculate(ctx, tx, ref, 0)
		if err != nil {
			return err
		}
		changed.record(ref, status)
		return nil
	})
	if err != nil {
		return err
	}

	s.fanOut(ctx, changed)
	return nil
}

// AddNote appends a manual free-text timeline entry. No cascade effect.
func (s *Service) AddNote(ctx context.Context, actor Actor, incidentID uint, content string) (*models.TimelineEntry, error) {
	if !s.authz.HasCapability(actor, auth.CapabilityEditIncidents) {
		return nil, ErrUnauthorized
	}
	if content == "" {
		return nil, fmt.Errorf("note content is required")
	}

	var entry *models.TimelineEntry

	err := s.inTransaction(ctx, func(tx store.Tx) error {
		incident, err := tx.GetIncidentForUpdate(ctx, actor.TenantID, incidentID)
		if err != nil {
			return s.mapStoreError(err)
		}

		actorID := actor.ID
		entry, err = appendTimeline(ctx, tx, incident.ID, models.EntryNote, content, &actorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateSeverity changes the incident's severity and, while the
// incident is open, re-applies its impact to every affected entity.
// ApplyImpact never downgrades, so a severity decrease only takes
// effect on an entity through a later recalculation.
func (s *Service) UpdateSeverity(ctx context.Context, actor Actor, incidentID uint, severity types.IncidentSeverity) (*models.Incident, error) {
	if !s.authz.HasCapability(actor, auth.CapabilityCommandIncidents) {
		return nil, ErrUnauthorized
	}
	if !severity.Valid() {
		return nil, fmt.Errorf("invalid severity %q", severity)
	}

	var incident *models.Incident
	changed := statusChanges{}

	err := s.inTransaction(ctx, func(tx store.Tx) error {
		clear(changed)

		var err error
		incident, err = tx.GetIncidentForUpdate(ctx, actor.TenantID, incidentID)
		if err != nil {
			return s.mapStoreError(err)
		}
		if incident.Severity == severity {
			return nil
		}

		previous := incident.Severity
		incident.Severity = severity
		if err := tx.SaveIncident(ctx, incident); err != nil {
			return fmt.Errorf("save incident: %w", err)
		}

		actorID := actor.ID
		content := fmt.Sprintf("Severity changed from %s to %s", previous, severity)
		if _, err := appendTimeline(ctx, tx, incident.ID, models.EntryStatusChange, content, &actorID); err != nil {
			return fmt.Errorf("append timeline: %w", err)
		}

		if !incident.Open() {
			return nil
		}
		links, err := tx.ListAffectedEntities(ctx, incident.ID)
		if err != nil {
			return fmt.Errorf("list affected entities: %w", err)
		}
		for _, link := range links {
			status, wasChanged, err := s.cascade.ApplyImpact(ctx, tx, link.Ref(), severity)
			if err != nil {
				return err
			}
			if wasChanged {
				changed.record(link.Ref(), status)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fanOut(ctx, changed)
	return incident, nil
}

// Delete soft-deletes an incident. A deleted incident stops counting
// toward worst-wins, so every affected entity is recalculated.
func (s *Service) Delete(ctx context.Context, actor Actor, incidentID uint) error {
	if !s.authz.HasCapability(actor, auth.CapabilityAdmin) {
		return ErrUnauthorized
	}

	changed := statusChanges{}

	err := s.inTransaction(ctx, func(tx store.Tx) error {
		clear(changed)

		incident, err := tx.GetIncidentForUpdate(ctx, actor.TenantID, incidentID)
		if err != nil {
			return s.mapStoreError(err)
		}

		links, err := tx.ListAffectedEntities(ctx, incident.ID)
		if err != nil {
			return fmt.Errorf("list affected entities: %w", err)
		}

		if err := tx.SoftDeleteIncident(ctx, incident); err != nil {
			return fmt.Errorf("delete incident: %w", err)
		}

		for _, link := range links {
			status, err := s.cascade.Recalculate(ctx, tx, link.Ref(), incident.ID)
			if err != nil {
				return err
			}
			changed.record(link.Ref(), status)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("incident deleted", "incident_id", incidentID, "actor", actor.ID)
	s.fanOut(ctx, changed)
	return nil
}

// Get returns one incident in the actor's tenant.
func (s *Service) Get(ctx context.Context, actor Actor, incidentID uint) (*models.Incident, error) {
	incident, err := s.store.GetIncident(ctx, actor.TenantID, incidentID)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	return incident, nil
}

// List returns the actor's tenant's incidents, newest first.
func (s *Service) List(ctx context.Context, actor Actor) ([]models.Incident, error) {
	return s.store.ListIncidents(ctx, actor.TenantID)
}

// ListTimeline returns the incident's audit trail ordered by
// occurrence time, ties broken by insertion order.
func (s *Service) ListTimeline(ctx context.Context, actor Actor, incidentID uint) ([]models.TimelineEntry, error) {
	if _, err := s.store.GetIncident(ctx, actor.TenantID, incidentID); err != nil {
		return nil, s.mapStoreError(err)
	}
	return s.store.ListTimeline(ctx, incidentID)
}

// EntityStatus returns the current operational status of a catalog
// entity; entities with no recorded status are operational.
func (s *Service) EntityStatus(ctx context.Context, ref types.EntityRef) (types.OperationalStatus, error) {
	if !ref.Type.Valid() || ref.ID == "" {
		return "", fmt.Errorf("invalid entity reference %q", ref)
	}
	return s.store.GetEntityStatus(ctx, ref)
}

// inTransaction runs fn in one transaction, retrying exactly once on a
// serialization conflict before surfacing ErrConcurrentModification.
// fn must reset any captured accumulators at its top so a retry starts
// clean.
func (s *Service) inTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.store.Transaction(ctx, fn)
	if !errors.Is(err, store.ErrSerialization) {
		return err
	}

	s.logger.Warn("transaction serialization conflict, retrying")
	err = s.store.Transaction(ctx, fn)
	if errors.Is(err, store.ErrSerialization) {
		return ErrConcurrentModification
	}
	return err
}

func (s *Service) mapStoreError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// fanOut pushes committed status changes to the mirror. Best-effort:
// failures are logged, never surfaced — the database already holds the
// truth.
func (s *Service) fanOut(ctx context.Context, changed statusChanges) {
	if s.mirror == nil || len(changed) == 0 {
		return
	}
	for ref, status := range changed {
		if err := s.mirror.SetEntityStatus(ctx, ref, status); err != nil {
			s.logger.Warn("status mirror update failed",
				"entity", ref.String(), "status", status, "error", err)
		}
	}
}
