package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/statusdeck-dev/statusdeck/internal/models"
	"github.com/statusdeck-dev/statusdeck/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres SQLSTATEs that mean the transaction lost a race and can be
// retried as a whole.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

type GormStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
	return translateError(err)
}

func (s *GormStore) GetIncident(ctx context.Context, tenantID, id uint) (*models.Incident, error) {
	var incident models.Incident
	err := s.db.WithContext(ctx).
		Preload("AffectedEntities").
		Where("tenant_id = ?", tenantID).
		First(&incident, id).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &incident, nil
}

func (s *GormStore) ListIncidents(ctx context.Context, tenantID uint) ([]models.Incident, error) {
	var incidents []models.Incident
	err := s.db.WithContext(ctx).
		Preload("AffectedEntities").
		Where("tenant_id = ?", tenantID).
		Order("started_at DESC").
		Find(&incidents).Error
	if err != nil {
		return nil, translateError(err)
	}
	return incidents, nil
}

func (s *GormStore) ListTimeline(ctx context.Context, incidentID uint) ([]models.TimelineEntry, error) {
	var entries []models.TimelineEntry
	err := s.db.WithContext(ctx).
		Where("incident_id = ?", incidentID).
		Order("occurred_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, translateError(err)
	}
	return entries, nil
}

func (s *GormStore) GetEntityStatus(ctx context.Context, ref types.EntityRef) (types.OperationalStatus, error) {
	var record models.EntityStatus
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", ref.Type, ref.ID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.StatusOperational, nil
	}
	if err != nil {
		return "", translateError(err)
	}
	return record.Status, nil
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) CreateIncident(ctx context.Context, incident *models.Incident) error {
	return translateError(t.db.WithContext(ctx).Create(incident).Error)
}

func (t *gormTx) GetIncidentForUpdate(ctx context.Context, tenantID, id uint) (*models.Incident, error) {
	var incident models.Incident
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ?", tenantID).
		First(&incident, id).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &incident, nil
}

func (t *gormTx) SaveIncident(ctx context.Context, incident *models.Incident) error {
	return translateError(t.db.WithContext(ctx).Save(incident).Error)
}

func (t *gormTx) SoftDeleteIncident(ctx context.Context, incident *models.Incident) error {
	return translateError(t.db.WithContext(ctx).Delete(incident).Error)
}

func (t *gormTx) OpenIncidentsAffecting(ctx context.Context, ref types.EntityRef, excludeIncidentID uint) ([]models.Incident, error) {
	query := t.db.WithContext(ctx).
		Joins("JOIN affected_entities ON affected_entities.incident_id = incidents.id").
		Where("affected_entities.entity_type = ? AND affected_entities.entity_id = ?", ref.Type, ref.ID).
		Where("incidents.status <> ?", types.StatusResolved)
	if excludeIncidentID != 0 {
		query = query.Where("incidents.id <> ?", excludeIncidentID)
	}

	var incidents []models.Incident
	if err := query.Find(&incidents).Error; err != nil {
		return nil, translateError(err)
	}
	return incidents, nil
}

func (t *gormTx) AddAffectedEntity(ctx context.Context, link *models.AffectedEntity) error {
	return translateError(t.db.WithContext(ctx).Create(link).Error)
}

func (t *gormTx) HasAffectedEntity(ctx context.Context, incidentID uint, ref types.EntityRef) (bool, error) {
	var count int64
	err := t.db.WithContext(ctx).
		Model(&models.AffectedEntity{}).
		Where("incident_id = ? AND entity_type = ? AND entity_id = ?", incidentID, ref.Type, ref.ID).
		Count(&count).Error
	if err != nil {
		return false, translateError(err)
	}
	return count > 0, nil
}

func (t *gormTx) RemoveAffectedEntity(ctx context.Context, incidentID uint, ref types.EntityRef) (bool, error) {
	result := t.db.WithContext(ctx).
		Where("incident_id = ? AND entity_type = ? AND entity_id = ?", incidentID, ref.Type, ref.ID).
		Delete(&models.AffectedEntity{})
	if result.Error != nil {
		return false, translateError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (t *gormTx) ListAffectedEntities(ctx context.Context, incidentID uint) ([]models.AffectedEntity, error) {
	var links []models.AffectedEntity
	err := t.db.WithContext(ctx).
		Where("incident_id = ?", incidentID).
		Order("id ASC").
		Find(&links).Error
	if err != nil {
		return nil, translateError(err)
	}
	return links, nil
}

func (t *gormTx) AppendTimelineEntry(ctx context.Context, entry *models.TimelineEntry) error {
	return translateError(t.db.WithContext(ctx).Create(entry).Error)
}

func (t *gormTx) GetEntityStatusForUpdate(ctx context.Context, ref types.EntityRef) (types.OperationalStatus, error) {
	var record models.EntityStatus
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("entity_type = ? AND entity_id = ?", ref.Type, ref.ID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// No row yet: the entity has never been impacted. The upsert in
		// SetEntityStatus creates it; a concurrent insert surfaces as a
		// retryable conflict.
		return types.StatusOperational, nil
	}
	if err != nil {
		return "", translateError(err)
	}
	return record.Status, nil
}

func (t *gormTx) SetEntityStatus(ctx context.Context, ref types.EntityRef, status types.OperationalStatus) error {
	record := models.EntityStatus{
		EntityType: ref.Type,
		EntityID:   ref.ID,
		Status:     status,
	}
	err := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_type"}, {Name: "entity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
		}).
		Create(&record).Error
	return translateError(err)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return ErrSerialization
		case pgUniqueViolation:
			return ErrDuplicate
		}
	}
	return err
}
