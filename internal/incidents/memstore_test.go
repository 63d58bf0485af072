package incidents

import (
	"context"
	"sort"
	"time"

	"github.com/statusdeck-dev/statusdeck/internal/models"
	"github.com/statusdeck-dev/statusdeck/internal/store"
	"github.com/statusdeck-dev/statusdeck/internal/types"
	"gorm.io/gorm"
)

// memStore is an in-memory store.Store used to exercise the orchestrator
// without a database. Transaction snapshots all state up front and
// restores it when the closure fails, which is how the tests prove that
// a mid-batch cascade failure rolls back the incident mutation and its
// timeline entries too.
type memStore struct {
	incidents map[uint]models.Incident
	links     []models.AffectedEntity
	timeline  []models.TimelineEntry
	statuses  map[types.EntityRef]types.OperationalStatus

	nextIncidentID uint
	nextLinkID     uint
	nextEntryID    uint

	// failSetStatus makes SetEntityStatus fail for the given entity.
	failSetStatus map[types.EntityRef]error
	// pendingConflicts fails that many upcoming transactions with
	// ErrSerialization before letting one through.
	pendingConflicts int
}

func newMemStore() *memStore {
	return &memStore{
		incidents:     make(map[uint]models.Incident),
		statuses:      make(map[types.EntityRef]types.OperationalStatus),
		failSetStatus: make(map[types.EntityRef]error),
	}
}

func (m *memStore) snapshot() *memStore {
	clone := &memStore{
		incidents:      make(map[uint]models.Incident, len(m.incidents)),
		links:          append([]models.AffectedEntity(nil), m.links...),
		timeline:       append([]models.TimelineEntry(nil), m.timeline...),
		statuses:       make(map[types.EntityRef]types.OperationalStatus, len(m.statuses)),
		nextIncidentID: m.nextIncidentID,
		nextLinkID:     m.nextLinkID,
		nextEntryID:    m.nextEntryID,
	}
	for id, incident := range m.incidents {
		clone.incidents[id] = incident
	}
	for ref, status := range m.statuses {
		clone.statuses[ref] = status
	}
	return clone
}

func (m *memStore) restore(snap *memStore) {
	m.incidents = snap.incidents
	m.links = snap.links
	m.timeline = snap.timeline
	m.statuses = snap.statuses
	m.nextIncidentID = snap.nextIncidentID
	m.nextLinkID = snap.nextLinkID
	m.nextEntryID = snap.nextEntryID
}

func (m *memStore) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	if m.pendingConflicts > 0 {
		m.pendingConflicts--
		return store.ErrSerialization
	}
	snap := m.snapshot()
	if err := fn(&memTx{store: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) GetIncident(ctx context.Context, tenantID, id uint) (*models.Incident, error) {
	incident, ok := m.incidents[id]
	if !ok || incident.DeletedAt.Valid || incident.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	copied := incident
	return &copied, nil
}

func (m *memStore) ListIncidents(ctx context.Context, tenantID uint) ([]models.Incident, error) {
	var out []models.Incident
	for _, incident := range m.incidents {
		if incident.TenantID == tenantID && !incident.DeletedAt.Valid {
			out = append(out, incident)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *memStore) ListTimeline(ctx context.Context, incidentID uint) ([]models.TimelineEntry, error) {
	var out []models.TimelineEntry
	for _, entry := range m.timeline {
		if entry.IncidentID == incidentID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out, nil
}

func (m *memStore) GetEntityStatus(ctx context.Context, ref types.EntityRef) (types.OperationalStatus, error) {
	if status, ok := m.statuses[ref]; ok {
		return status, nil
	}
	return types.StatusOperational, nil
}

type memTx struct {
	store *memStore
}

func (t *memTx) CreateIncident(ctx context.Context, incident *models.Incident) error {
	t.store.nextIncidentID++
	incident.ID = t.store.nextIncidentID
	incident.CreatedAt = time.Now().UTC()
	t.store.incidents[incident.ID] = *incident
	return nil
}

func (t *memTx) GetIncidentForUpdate(ctx context.Context, tenantID, id uint) (*models.Incident, error) {
	incident, ok := t.store.incidents[id]
	if !ok || incident.DeletedAt.Valid || incident.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	copied := incident
	return &copied, nil
}

func (t *memTx) SaveIncident(ctx context.Context, incident *models.Incident) error {
	t.store.incidents[incident.ID] = *incident
	return nil
}

func (t *memTx) SoftDeleteIncident(ctx context.Context, incident *models.Incident) error {
	stored := t.store.incidents[incident.ID]
	stored.DeletedAt = gorm.DeletedAt{Time: time.Now().UTC(), Valid: true}
	t.store.incidents[incident.ID] = stored
	return nil
}

func (t *memTx) OpenIncidentsAffecting(ctx context.Context, ref types.EntityRef, excludeIncidentID uint) ([]models.Incident, error) {
	var out []models.Incident
	for _, link := range t.store.links {
		if link.EntityType != ref.Type || link.EntityID != ref.ID {
			continue
		}
		if link.IncidentID == excludeIncidentID {
			continue
		}
		incident, ok := t.store.incidents[link.IncidentID]
		if !ok || incident.DeletedAt.Valid || incident.Status == types.StatusResolved {
			continue
		}
		out = append(out, incident)
	}
	return out, nil
}

func (t *memTx) AddAffectedEntity(ctx context.Context, link *models.AffectedEntity) error {
	for _, existing := range t.store.links {
		if existing.IncidentID == link.IncidentID &&
			existing.EntityType == link.EntityType && existing.EntityID == link.EntityID {
			return store.ErrDuplicate
		}
	}
	t.store.nextLinkID++
	link.ID = t.store.nextLinkID
	link.CreatedAt = time.Now().UTC()
	t.store.links = append(t.store.links, *link)
	return nil
}

func (t *memTx) HasAffectedEntity(ctx context.Context, incidentID uint, ref types.EntityRef) (bool, error) {
	for _, link := range t.store.links {
		if link.IncidentID == incidentID && link.EntityType == ref.Type && link.EntityID == ref.ID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) RemoveAffectedEntity(ctx context.Context, incidentID uint, ref types.EntityRef) (bool, error) {
	for i, link := range t.store.links {
		if link.IncidentID == incidentID && link.EntityType == ref.Type && link.EntityID == ref.ID {
			t.store.links = append(t.store.links[:i], t.store.links[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) ListAffectedEntities(ctx context.Context, incidentID uint) ([]models.AffectedEntity, error) {
	var out []models.AffectedEntity
	for _, link := range t.store.links {
		if link.IncidentID == incidentID {
			out = append(out, link)
		}
	}
	return out, nil
}

func (t *memTx) AppendTimelineEntry(ctx context.Context, entry *models.TimelineEntry) error {
	t.store.nextEntryID++
	entry.ID = t.store.nextEntryID
	entry.CreatedAt = time.Now().UTC()
	t.store.timeline = append(t.store.timeline, *entry)
	return nil
}

func (t *memTx) GetEntityStatusForUpdate(ctx context.Context, ref types.EntityRef) (types.OperationalStatus, error) {
	if status, ok := t.store.statuses[ref]; ok {
		return status, nil
	}
	return types.StatusOperational, nil
}

func (t *memTx) SetEntityStatus(ctx context.Context, ref types.EntityRef, status types.OperationalStatus) error {
	if err := t.store.failSetStatus[ref]; err != nil {
		return err
	}
	t.store.statuses[ref] = status
	return nil
}
