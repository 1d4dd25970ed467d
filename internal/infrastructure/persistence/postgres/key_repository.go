package postgres

import (
	"context"
	goerrors "errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/repository"
	"github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/pkg/errors"
)

// KeyRepository is a gorm implementation of repository.KeyRepository.
type KeyRepository struct {
	db      *gorm.DB
	metrics service.Metrics
}

// NewKeyRepository creates a new KeyRepository.
func NewKeyRepository(db *gorm.DB, metrics service.Metrics) *KeyRepository {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	return &KeyRepository{db: db, metrics: metrics}
}

var _ repository.KeyRepository = (*KeyRepository)(nil)

// Add inserts the record. A missing ID or CreatedAt is filled in.
func (r *KeyRepository) Add(ctx context.Context, record *models.KeyRecord) (string, error) {
	defer r.observe("key_records.insert", time.Now())

	rec := record.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = models.KeyStatusEnabled
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if goerrors.Is(err, gorm.ErrDuplicatedKey) {
			return "", errors.ErrInvalidRequest("key id already exists")
		}
		return "", err
	}
	return rec.ID, nil
}

// Remove deletes the record and reports whether a row was affected.
func (r *KeyRepository) Remove(ctx context.Context, tenantID, id string) (bool, error) {
	defer r.observe("key_records.delete", time.Now())

	res := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.KeyRecord{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// List returns the tenant's records in creation order.
func (r *KeyRepository) List(ctx context.Context, tenantID string) ([]*models.KeyRecord, error) {
	defer r.observe("key_records.list", time.Now())

	var records []*models.KeyRecord
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	return records, err
}

// Get returns the record or errors.ErrKeyNotFound.
func (r *KeyRepository) Get(ctx context.Context, tenantID, id string) (*models.KeyRecord, error) {
	defer r.observe("key_records.get", time.Now())

	var rec models.KeyRecord
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&rec).Error
	if goerrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *KeyRepository) observe(operation string, start time.Time) {
	r.metrics.RecordDBQuery(operation, time.Since(start))
}
