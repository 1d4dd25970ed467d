package repository

import (
	"context"
	"sync"

	"github.com/turtacn/realmkeys/internal/domain/models"
)

// KeyRepository defines the interface for key record persistence. It performs no
// cryptographic validation; that belongs to the key providers.
// KeyRepository 定义了密钥记录持久化的接口。它不做任何加密校验，校验由密钥提供者负责。
type KeyRepository interface {
	// Add stores a new record and returns its ID.
	Add(ctx context.Context, record *models.KeyRecord) (string, error)
	// Remove deletes the record. It reports false when the record did not exist.
	Remove(ctx context.Context, tenantID, id string) (bool, error)
	// List returns every record of the tenant in creation order.
	List(ctx context.Context, tenantID string) ([]*models.KeyRecord, error)
	// Get returns errors.ErrKeyNotFound when the record does not exist.
	Get(ctx context.Context, tenantID, id string) (*models.KeyRecord, error)
}

// KeyChangeListener is told synchronously about every completed mutation of a tenant's key set.
// KeyChangeListener 会同步接收租户密钥集合每一次已完成变更的通知。
type KeyChangeListener interface {
	KeysChanged(ctx context.Context, tenantID string)
}

// NotifyingKeyRepository wraps a KeyRepository so that Add and Remove notify the
// listener before returning. Mutations of one tenant are serialized.
// NotifyingKeyRepository 包装 KeyRepository，使 Add 和 Remove 在返回前通知监听器。
// 同一租户的变更是串行执行的。
type NotifyingKeyRepository struct {
	KeyRepository
	listener KeyChangeListener
	locks    sync.Map // tenantID -> *sync.Mutex
}

// NewNotifyingKeyRepository creates a new NotifyingKeyRepository.
func NewNotifyingKeyRepository(inner KeyRepository, listener KeyChangeListener) *NotifyingKeyRepository {
	return &NotifyingKeyRepository{KeyRepository: inner, listener: listener}
}

func (r *NotifyingKeyRepository) tenantLock(tenantID string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(tenantID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Add stores the record and invalidates the tenant's cached key view.
func (r *NotifyingKeyRepository) Add(ctx context.Context, record *models.KeyRecord) (string, error) {
	mu := r.tenantLock(record.TenantID)
	mu.Lock()
	defer mu.Unlock()

	id, err := r.KeyRepository.Add(ctx, record)
	if err != nil {
		return "", err
	}
	r.listener.KeysChanged(ctx, record.TenantID)
	return id, nil
}

// Remove deletes the record and invalidates the tenant's cached key view.
// The listener is notified even when the store reports the record absent.
func (r *NotifyingKeyRepository) Remove(ctx context.Context, tenantID, id string) (bool, error) {
	mu := r.tenantLock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	removed, err := r.KeyRepository.Remove(ctx, tenantID, id)
	if err != nil {
		return false, err
	}
	r.listener.KeysChanged(ctx, tenantID)
	return removed, nil
}
