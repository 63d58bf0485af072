package models

import (
	"time"

	"github.com/statusdeck-dev/statusdeck/internal/types"
	"gorm.io/gorm"
)

type Incident struct {
	gorm.Model

	TenantID    uint                   `gorm:"not null;index"`
	Title       string                 `gorm:"not null;size:512"`
	Description string                 `gorm:"type:text"`
	Severity    types.IncidentSeverity `gorm:"not null;size:50"`
	Status      types.IncidentStatus   `gorm:"not null;size:50;index"`
	ImpactType  types.ImpactType       `gorm:"not null;size:50"`
	StartedAt   time.Time              `gorm:"not null"`
	ResolvedAt  *time.Time
	CreatedBy   uint `gorm:"not null;index"`

	// Relationships
	AffectedEntities []AffectedEntity `gorm:"foreignKey:IncidentID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Timeline         []TimelineEntry  `gorm:"foreignKey:IncidentID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}

// Open reports whether the incident still counts toward the worst-wins
// status of its affected entities.
func (i *Incident) Open() bool {
	return i.Status != types.StatusResolved
}

// AffectedEntity links an incident to an entity in the catalog. The
// entity reference is polymorphic: no foreign key, the ID is opaque.
// Links are hard-deleted on detach, so there is no DeletedAt here.
type AffectedEntity struct {
	ID         uint             `gorm:"primarykey"`
	IncidentID uint             `gorm:"not null;index;uniqueIndex:uq_incident_affected_entity"`
	EntityType types.EntityType `gorm:"not null;size:50;uniqueIndex:uq_incident_affected_entity"`
	EntityID   string           `gorm:"not null;size:255;uniqueIndex:uq_incident_affected_entity"`
	CreatedAt  time.Time
}

func (e AffectedEntity) Ref() types.EntityRef {
	return types.EntityRef{Type: e.EntityType, ID: e.EntityID}
}

type TimelineEntryType string

const (
	EntryStatusChange  TimelineEntryType = "status_change"
	EntryNote          TimelineEntryType = "note"
	EntryEntityAdded   TimelineEntryType = "entity_added"
	EntryEntityRemoved TimelineEntryType = "entity_removed"
)

// TimelineEntry is one immutable line in an incident's audit trail.
// Entries are only ever appended; corrections are new entries.
// CreatedBy is nil for system-generated entries. Display order is
// OccurredAt ascending, ties broken by ID (insertion order).
type TimelineEntry struct {
	ID         uint              `gorm:"primarykey"`
	IncidentID uint              `gorm:"not null;index"`
	OccurredAt time.Time         `gorm:"not null;index"`
	EntryType  TimelineEntryType `gorm:"not null;size:100"`
	Content    string            `gorm:"not null;type:text"`
	CreatedBy  *uint
	CreatedAt  time.Time
}

// EntityStatus is the current operational status of one catalog entity.
// The cascade engine is the only writer on the incident-driven path.
type EntityStatus struct {
	ID         uint                    `gorm:"primarykey"`
	EntityType types.EntityType        `gorm:"not null;size:50;uniqueIndex:uq_entity_status"`
	EntityID   string                  `gorm:"not null;size:255;uniqueIndex:uq_entity_status"`
	Status     types.OperationalStatus `gorm:"not null;size:50"`
	UpdatedAt  time.Time
}
