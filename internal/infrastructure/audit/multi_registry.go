package audit

import (
	"context"
	"errors"
	"sync"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/pkg/logger"
)

// MultiRegistry fans every event out to all registries.
// A failing registry does not stop the others; the errors are joined.
type MultiRegistry struct {
	registries []service.KeyLifecycleRegistry
	logger     logger.Logger
}

// NewMultiRegistry creates a fan-out registry. Nil registries are skipped.
func NewMultiRegistry(log logger.Logger, registries ...service.KeyLifecycleRegistry) *MultiRegistry {
	m := &MultiRegistry{logger: log.WithComponent("LifecycleRegistry")}
	for _, r := range registries {
		if r != nil {
			m.registries = append(m.registries, r)
		}
	}
	return m
}

// LogEvent records event in every registry.
func (m *MultiRegistry) LogEvent(ctx context.Context, event models.KeyLifecycleEvent) error {
	var errs []error
	for _, r := range m.registries {
		if err := r.LogEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		m.logger.Warn(ctx, "lifecycle event not recorded everywhere",
			logger.String("event_type", string(event.EventType)),
			logger.String("kid", event.KeyID),
			logger.Error(err),
		)
		return err
	}
	return nil
}

// MemoryRegistry keeps lifecycle events in process.
type MemoryRegistry struct {
	mu     sync.RWMutex
	events []models.KeyLifecycleEvent
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{}
}

// LogEvent appends event.
func (m *MemoryRegistry) LogEvent(ctx context.Context, event models.KeyLifecycleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// ListEvents returns the tenant's events in the order they were logged.
func (m *MemoryRegistry) ListEvents(ctx context.Context, tenantID string) ([]models.KeyLifecycleEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.KeyLifecycleEvent
	for _, e := range m.events {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}
