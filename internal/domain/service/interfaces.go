// Package service holds the key registry and verification engine: key providers,
// the per-tenant registry, the signer, the verifier and the cookie refresh policy.
package service

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/pkg/constants"
)

//go:generate mockery --name KeyProvider --output mocks --outpkg mocks
// KeyProvider produces and parses key material for exactly one algorithm family.
// KeyProvider 为唯一的一个算法族生成并解析密钥材料。
type KeyProvider interface {
	// ID returns the provider identifier stored on the records it creates.
	// ID 返回存储在其创建记录上的提供者标识符。
	ID() constants.ProviderID

	// Algorithm returns the algorithm every key of this provider signs with.
	// Algorithm 返回该提供者所有密钥使用的签名算法。
	Algorithm() constants.JWTAlgorithm

	// Generate creates a fresh key pair.
	// Generate 创建新的密钥对。
	Generate(ctx context.Context, spec models.KeySpec) (*models.KeyMaterial, error)

	// Import validates externally supplied private material (PEM) and derives the public half.
	// Import 校验外部提供的私钥材料（PEM）并导出公钥。
	Import(ctx context.Context, privateKeyPEM string) (*models.KeyMaterial, error)

	// Load parses a stored record's material.
	// Load 解析已存储记录的密钥材料。
	Load(record *models.KeyRecord) (*models.ResolvedKey, error)
}

// ProviderResolver maps provider identifiers to providers and parses records.
// ProviderResolver 将提供者标识符映射到提供者并解析记录。
type ProviderResolver interface {
	// Provider returns the provider registered under id.
	Provider(id constants.ProviderID) (KeyProvider, bool)
	// Load parses record with a provider serving the record's algorithm.
	Load(record *models.KeyRecord) (*models.ResolvedKey, error)
}

// KeyRegistry is the single source of truth for which key signs new artifacts and
// which keys may verify existing ones.
// KeyRegistry 是“哪个密钥签发新制品”以及“哪些密钥可验证已有制品”的唯一事实来源。
type KeyRegistry interface {
	// ActiveKey returns the highest priority signing-capable key, or errors.ErrNoActiveKey.
	// ActiveKey 返回优先级最高且可签名的密钥，否则返回 errors.ErrNoActiveKey。
	ActiveKey(ctx context.Context, tenantID string, alg constants.JWTAlgorithm) (*models.ResolvedKey, error)

	// Lookup resolves any enabled record that has not been removed, or returns errors.ErrUnknownKey.
	// Lookup 解析任何未被删除的已启用记录，否则返回 errors.ErrUnknownKey。
	Lookup(ctx context.Context, tenantID, keyID string) (*models.ResolvedKey, error)

	// AllActive returns every trusted key ordered by priority then recency.
	// AllActive 按优先级、再按创建时间返回所有受信任的密钥。
	AllActive(ctx context.Context, tenantID string) ([]*models.ResolvedKey, error)

	// Records returns every record including disabled ones, in the same order as AllActive.
	Records(ctx context.Context, tenantID string) ([]*models.KeyRecord, error)

	// KeySet returns Records and the active key id per algorithm from one consistent view.
	KeySet(ctx context.Context, tenantID string) (*models.KeySetView, error)

	// KeysChanged drops the tenant's cached view.
	KeysChanged(ctx context.Context, tenantID string)
}

// Signer signs claims with the tenant's active key.
// Signer 使用租户的活动密钥对声明进行签名。
type Signer interface {
	Sign(ctx context.Context, tenantID string, alg constants.JWTAlgorithm, claims jwt.Claims) (*models.SignedArtifact, error)
}

// Verifier checks an artifact's signature against every retained key of the tenant.
// On success the decoded claims are written into claims. Claims are not validated.
// Verifier 使用租户所有保留的密钥校验制品签名。成功时解码后的声明写入 claims，但不校验声明内容。
type Verifier interface {
	Verify(ctx context.Context, tenantID, token string, claims jwt.Claims) models.VerificationResult
}

//go:generate mockery --name KeyLifecycleRegistry --output mocks --outpkg mocks
// KeyLifecycleRegistry records key lifecycle events for auditing.
// KeyLifecycleRegistry 记录密钥生命周期事件以供审计。
type KeyLifecycleRegistry interface {
	LogEvent(ctx context.Context, event models.KeyLifecycleEvent) error
}

// Authenticator checks realm user credentials.
// Authenticator 校验领域用户的凭据。
type Authenticator interface {
	// Authenticate returns errors.ErrInvalidCredentials() on a wrong username or password.
	Authenticate(ctx context.Context, tenantID, username, password string) (*models.User, error)
}
