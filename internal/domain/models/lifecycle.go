package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/realmkeys/pkg/constants"
)

// KeyLifecycleEvent records the creation or removal of a key record.
// KeyLifecycleEvent 记录密钥记录的创建或删除。
type KeyLifecycleEvent struct {
	EventID        uuid.UUID              `gorm:"type:uuid;primaryKey" json:"event_id"`
	KeyID          string                 `gorm:"type:varchar(64);index;not null" json:"key_id"`
	TenantID       string                 `gorm:"type:varchar(255);index;not null" json:"tenant_id"`
	EventType      constants.KeyEventType `gorm:"type:varchar(16);not null" json:"event_type"`
	ProviderID     constants.ProviderID   `gorm:"type:varchar(64)" json:"provider_id,omitempty"`
	Algorithm      constants.JWTAlgorithm `gorm:"type:varchar(16)" json:"algorithm,omitempty"`
	Priority       int64                  `json:"priority"`
	EventTimestamp time.Time              `gorm:"not null" json:"event_timestamp"`
}

// TableName overrides the gorm table name.
func (KeyLifecycleEvent) TableName() string {
	return "key_lifecycle_events"
}

// NewKeyLifecycleEvent builds an event for record.
func NewKeyLifecycleEvent(eventType constants.KeyEventType, record *KeyRecord) KeyLifecycleEvent {
	return KeyLifecycleEvent{
		EventID:        uuid.New(),
		KeyID:          record.ID,
		TenantID:       record.TenantID,
		EventType:      eventType,
		ProviderID:     record.ProviderID,
		Algorithm:      record.Algorithm,
		Priority:       record.Priority,
		EventTimestamp: time.Now().UTC(),
	}
}
