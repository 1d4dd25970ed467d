package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/service"
)

// KLRRepository persists key lifecycle events.
type KLRRepository struct {
	db *gorm.DB
}

// NewKLRRepository creates a new KLR repository.
func NewKLRRepository(db *gorm.DB) *KLRRepository {
	return &KLRRepository{db: db}
}

var _ service.KeyLifecycleRegistry = (*KLRRepository)(nil)

// LogEvent logs a key lifecycle event to the database.
func (r *KLRRepository) LogEvent(ctx context.Context, event models.KeyLifecycleEvent) error {
	return r.db.WithContext(ctx).Create(&event).Error
}

// ListEvents returns the tenant's events, oldest first.
func (r *KLRRepository) ListEvents(ctx context.Context, tenantID string) ([]models.KeyLifecycleEvent, error) {
	var events []models.KeyLifecycleEvent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("event_timestamp ASC").
		Find(&events).Error
	return events, err
}
