package models

import (
	"crypto"
	"time"

	"github.com/turtacn/realmkeys/pkg/constants"
)

// KeyStatus is the administrative status of a key record.
// KeyStatus 是密钥记录的管理状态。
type KeyStatus string

const (
	// KeyStatusEnabled marks a record eligible for signing (if it has private material) and verification.
	// KeyStatusEnabled 表示记录可用于签名（如果包含私钥）和验证。
	KeyStatusEnabled KeyStatus = "enabled"
	// KeyStatusDisabled records are kept for administrative history and never used to sign or verify.
	// KeyStatusDisabled 记录仅用于管理审计，从不用于签名或验证。
	KeyStatusDisabled KeyStatus = "disabled"
)

// KeyRecord is one cryptographic key belonging to one tenant and one provider.
// Public material never changes once stored; a rotation is always a new record.
// KeyRecord 代表属于一个租户和一个提供者的加密密钥。
// 公钥一旦存储便不会改变；轮换总是创建新记录。
type KeyRecord struct {
	// ID is the unique identifier of the key, also used as the JWS "kid" header.
	// ID 是密钥的唯一标识符，同时作为 JWS 的 "kid" 头。
	ID string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	// TenantID is the owning tenant (realm).
	// TenantID 是所属租户（领域）。
	TenantID string `gorm:"type:varchar(255);index:idx_key_records_tenant_created,priority:1;not null" json:"tenant_id"`
	// ProviderID names the provider that produced the material (e.g. "rsa-generated").
	// ProviderID 是生成密钥材料的提供者（例如 "rsa-generated"）。
	ProviderID constants.ProviderID `gorm:"type:varchar(64);not null" json:"provider_id"`
	// Name is an optional administrative label.
	Name string `gorm:"type:varchar(255)" json:"name,omitempty"`
	// Algorithm is the JWS algorithm this key signs with.
	// Algorithm 是此密钥使用的 JWS 签名算法。
	Algorithm constants.JWTAlgorithm `gorm:"type:varchar(16);not null" json:"algorithm"`
	// Priority orders keys for signing; higher is preferred.
	// Priority 决定签名的优先顺序；数值越大越优先。
	Priority int64 `gorm:"not null;default:0" json:"priority"`
	// PublicKeyPEM is the PKIX public key in PEM format.
	PublicKeyPEM string `gorm:"type:text;not null" json:"public_key_pem"`
	// PrivateKeyPEM is the PKCS#8 private key in PEM format. Empty for verify-only records.
	// PrivateKeyPEM 是 PEM 格式的 PKCS#8 私钥。仅验证的记录为空。
	PrivateKeyPEM string `gorm:"type:text" json:"private_key_pem,omitempty"`
	// Status is enabled or disabled.
	Status KeyStatus `gorm:"type:varchar(16);not null;default:'enabled'" json:"status"`
	// CreatedAt orders records and breaks priority ties.
	// CreatedAt 用于排序记录并在优先级相同时作为决胜依据。
	CreatedAt time.Time `gorm:"index:idx_key_records_tenant_created,priority:2;not null" json:"created_at"`
}

// TableName overrides the gorm table name.
func (KeyRecord) TableName() string {
	return "key_records"
}

// Enabled reports whether the record may take part in signing or verification.
func (k *KeyRecord) Enabled() bool {
	return k.Status == KeyStatusEnabled
}

// CanSign reports whether the record carries private material and is enabled.
// CanSign 报告记录是否包含私钥且处于启用状态。
func (k *KeyRecord) CanSign() bool {
	return k.Enabled() && k.PrivateKeyPEM != ""
}

// Clone returns a copy so callers never share a stored record.
func (k *KeyRecord) Clone() *KeyRecord {
	if k == nil {
		return nil
	}
	cp := *k
	return &cp
}

// KeySpec defines the specifications for generating a new cryptographic key.
// KeySpec 定义了生成新加密密钥的规范。
type KeySpec struct {
	// Bits is the key size in bits for RSA providers. Zero selects the provider default.
	// Bits 是 RSA 提供者的密钥长度（位）。零表示使用默认值。
	Bits int
}

// KeyMaterial is the PEM encoded output of a provider's Generate or Import.
// KeyMaterial 是提供者 Generate 或 Import 输出的 PEM 编码材料。
type KeyMaterial struct {
	Algorithm     constants.JWTAlgorithm
	PublicKeyPEM  string
	PrivateKeyPEM string
}

// ResolvedKey is a key record with its parsed material, ready for use by the signer and verifier.
// ResolvedKey 是已解析密钥材料的密钥记录，可直接供签名器和验证器使用。
type ResolvedKey struct {
	Record *KeyRecord
	// PublicKey is *rsa.PublicKey or *ecdsa.PublicKey.
	PublicKey crypto.PublicKey
	// PrivateKey is nil for verify-only records.
	PrivateKey crypto.Signer
}

// ID returns the key identifier.
func (r *ResolvedKey) ID() string {
	return r.Record.ID
}

// Algorithm returns the key's algorithm.
func (r *ResolvedKey) Algorithm() constants.JWTAlgorithm {
	return r.Record.Algorithm
}

// KeySetView is a tenant's records together with the active key id per algorithm,
// both taken from the same registry snapshot.
type KeySetView struct {
	Records []*KeyRecord
	Active  map[constants.JWTAlgorithm]string
}
