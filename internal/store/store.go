// Package store is the persistence boundary for the incident core. All
// multi-record mutations go through Store.Transaction, which hands the
// caller a Tx scoped to one database transaction; the entity-status
// reads and writes live on the same Tx so cascade updates commit or
// roll back together with the incident mutation that caused them.
package store

import (
	"context"
	"errors"

	"github.com/statusdeck-dev/statusdeck/internal/models"
	"github.com/statusdeck-dev/statusdeck/internal/types"
)

var (
	// ErrNotFound is returned when a record does not exist or is
	// soft-deleted.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned on unique-constraint violations.
	ErrDuplicate = errors.New("record already exists")
	// ErrSerialization is returned when the database aborts a
	// transaction due to lock contention or serialization failure.
	// Callers may retry the whole transaction.
	ErrSerialization = errors.New("transaction serialization conflict")
)

// Tx is one open transaction. Every method sees the transaction's own
// uncommitted writes.
type Tx interface {
	CreateIncident(ctx context.Context, incident *models.Incident) error
	// GetIncidentForUpdate loads an incident by ID within the tenant
	// and takes a row lock on it, serializing concurrent lifecycle
	// operations against the same incident.
	GetIncidentForUpdate(ctx context.Context, tenantID, id uint) (*models.Incident, error)
	SaveIncident(ctx context.Context, incident *models.Incident) error
	SoftDeleteIncident(ctx context.Context, incident *models.Incident) error
	// OpenIncidentsAffecting returns all non-resolved, non-deleted
	// incidents linked to the entity, excluding excludeIncidentID when
	// non-zero.
	OpenIncidentsAffecting(ctx context.Context, ref types.EntityRef, excludeIncidentID uint) ([]models.Incident, error)

	AddAffectedEntity(ctx context.Context, link *models.AffectedEntity) error
	HasAffectedEntity(ctx context.Context, incidentID uint, ref types.EntityRef) (bool, error)
	// RemoveAffectedEntity hard-deletes the link and reports whether it
	// existed.
	RemoveAffectedEntity(ctx context.Context, incidentID uint, ref types.EntityRef) (bool, error)
	ListAffectedEntities(ctx context.Context, incidentID uint) ([]models.AffectedEntity, error)

	AppendTimelineEntry(ctx context.Context, entry *models.TimelineEntry) error

	// GetEntityStatusForUpdate reads the entity's current operational
	// status, locking the row for the rest of the transaction. An
	// entity with no status row is operational.
	GetEntityStatusForUpdate(ctx context.Context, ref types.EntityRef) (types.OperationalStatus, error)
	SetEntityStatus(ctx context.Context, ref types.EntityRef, status types.OperationalStatus) error
}

// Store opens transactions and serves read-only queries that need no
// transactional context.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Tx) error) error

	GetIncident(ctx context.Context, tenantID, id uint) (*models.Incident, error)
	ListIncidents(ctx context.Context, tenantID uint) ([]models.Incident, error)
	// ListTimeline returns entries ordered by occurrence time, ties
	// broken by insertion order.
	ListTimeline(ctx context.Context, incidentID uint) ([]models.TimelineEntry, error)
	GetEntityStatus(ctx context.Context, ref types.EntityRef) (types.OperationalStatus, error)
}
