// Package memory provides in-process implementations of the key record store and the session store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/repository"
	"github.com/turtacn/realmkeys/pkg/errors"
)

// KeyRepository keeps key records in memory, in creation order per tenant.
type KeyRepository struct {
	mu      sync.RWMutex
	tenants map[string][]*models.KeyRecord
	now     func() time.Time
}

// NewKeyRepository creates a new in-memory KeyRepository.
func NewKeyRepository() *KeyRepository {
	return &KeyRepository{
		tenants: make(map[string][]*models.KeyRecord),
		now:     time.Now,
	}
}

var _ repository.KeyRepository = (*KeyRepository)(nil)

// Add stores a copy of record. A missing ID or CreatedAt is filled in.
func (r *KeyRepository) Add(ctx context.Context, record *models.KeyRecord) (string, error) {
	if record.TenantID == "" {
		return "", errors.ErrInvalidRequest("tenant id is required")
	}
	rec := record.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}
	if rec.Status == "" {
		rec.Status = models.KeyStatusEnabled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tenants[rec.TenantID] {
		if existing.ID == rec.ID {
			return "", errors.ErrInvalidRequest("key id already exists")
		}
	}
	r.tenants[rec.TenantID] = append(r.tenants[rec.TenantID], rec)
	return rec.ID, nil
}

// Remove deletes the record with id.
func (r *KeyRepository) Remove(ctx context.Context, tenantID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := r.tenants[tenantID]
	for i, rec := range records {
		if rec.ID == id {
			r.tenants[tenantID] = append(records[:i:i], records[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// List returns copies of the tenant's records in creation order.
func (r *KeyRepository) List(ctx context.Context, tenantID string) ([]*models.KeyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	records := r.tenants[tenantID]
	out := make([]*models.KeyRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

// Get returns a copy of the record or errors.ErrKeyNotFound.
func (r *KeyRepository) Get(ctx context.Context, tenantID, id string) (*models.KeyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.tenants[tenantID] {
		if rec.ID == id {
			return rec.Clone(), nil
		}
	}
	return nil, errors.ErrKeyNotFound
}
