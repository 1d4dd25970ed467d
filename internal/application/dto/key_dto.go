package dto

import "time"

// CreateKeyRequest 创建密钥请求 DTO
type CreateKeyRequest struct {
	ProviderID    string `json:"provider_id" validate:"required,oneof=rsa-generated rsa ecdsa-generated"`
	Name          string `json:"name" validate:"omitempty,max=255"`
	Priority      *int64 `json:"priority"`
	PrivateKeyPEM string `json:"private_key_pem" validate:"required_if=ProviderID rsa"`
	KeySize       int    `json:"key_size" validate:"omitempty,oneof=2048 3072 4096"`
	Disabled      bool   `json:"disabled"`
}

// CreateKeyResponse 创建密钥响应 DTO
type CreateKeyResponse struct {
	ID string `json:"id"`
}

// KeyMetadata 密钥元数据 DTO（从不包含私钥）
type KeyMetadata struct {
	ID           string    `json:"kid"`
	ProviderID   string    `json:"provider_id"`
	Name         string    `json:"name,omitempty"`
	Algorithm    string    `json:"algorithm"`
	Priority     int64     `json:"priority"`
	PublicKeyPEM string    `json:"public_key"`
	Status       string    `json:"status"`
	Active       bool      `json:"active"`
	CanSign      bool      `json:"can_sign"`
	CreatedAt    time.Time `json:"created_at"`
}

// KeysMetadata 租户密钥元数据列表，Active 为算法到活动密钥 ID 的映射
type KeysMetadata struct {
	Active map[string]string `json:"active"`
	Keys   []KeyMetadata     `json:"keys"`
}
