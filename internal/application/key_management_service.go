// Package application provides the application layer services.
package application

import (
	"context"
	goerrors "errors"

	"github.com/go-jose/go-jose/v4"

	"github.com/turtacn/realmkeys/internal/application/dto"
	"github.com/turtacn/realmkeys/internal/config"
	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/repository"
	"github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
	"github.com/turtacn/realmkeys/pkg/utils"
)

// KeyManager is the administrative surface over a tenant's signing keys.
// KeyManager 是租户签名密钥的管理接口。
type KeyManager interface {
	CreateKey(ctx context.Context, tenantID string, req *dto.CreateKeyRequest) (string, error)
	DeleteKey(ctx context.Context, tenantID, keyID string) error
	ListKeys(ctx context.Context, tenantID string) (*dto.KeysMetadata, error)
	GetActive(ctx context.Context, tenantID string) (map[string]string, error)
	JWKS(ctx context.Context, tenantID string) (*jose.JSONWebKeySet, error)
}

// KeyManagementService is the application-layer service responsible for orchestrating cryptographic key lifecycle events.
// It coordinates between key providers, the key record store and the registry that serves signers and verifiers.
// KeyManagementService 是负责协调加密密钥生命周期事件的应用层服务。
// 它在密钥提供者、密钥记录存储以及为签名器和验证器服务的注册表之间进行协调。
type KeyManagementService struct {
	providers service.ProviderResolver
	keyRepo   repository.KeyRepository
	registry  service.KeyRegistry
	klr       service.KeyLifecycleRegistry
	metrics   service.Metrics
	logger    logger.Logger
}

var _ KeyManager = (*KeyManagementService)(nil)

// NewKeyManagementService creates a new instance of the KeyManagementService.
// keyRepo must invalidate registry on every mutation, normally a repository.NotifyingKeyRepository.
// NewKeyManagementService 创建 KeyManagementService 的一个新实例。
// keyRepo 必须在每次变更时使 registry 失效，通常是 repository.NotifyingKeyRepository。
func NewKeyManagementService(
	providers service.ProviderResolver,
	keyRepo repository.KeyRepository,
	registry service.KeyRegistry,
	klr service.KeyLifecycleRegistry,
	metrics service.Metrics,
	log logger.Logger,
) *KeyManagementService {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	return &KeyManagementService{
		providers: providers,
		keyRepo:   keyRepo,
		registry:  registry,
		klr:       klr,
		metrics:   metrics,
		logger:    log.WithComponent("KeyManagementService"),
	}
}

// CreateKey generates or imports key material through the requested provider and stores it.
// Once it returns, the new key takes part in signing and verification for the tenant.
// CreateKey 通过请求的提供者生成或导入密钥材料并存储。
// 返回后，新密钥即参与该租户的签名与验证。
func (s *KeyManagementService) CreateKey(ctx context.Context, tenantID string, req *dto.CreateKeyRequest) (string, error) {
	// 1. Validate request payload
	if !utils.ValidateNotEmpty(tenantID) {
		return "", errors.ErrInvalidRequest("realm is required")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return "", err
	}

	provider, ok := s.providers.Provider(constants.ProviderID(req.ProviderID))
	if !ok {
		return "", errors.ErrInvalidRequest("unknown provider_id " + req.ProviderID)
	}

	// 2. Produce key material
	var (
		material *models.KeyMaterial
		err      error
	)
	if req.PrivateKeyPEM != "" {
		material, err = provider.Import(ctx, req.PrivateKeyPEM)
	} else {
		material, err = provider.Generate(ctx, models.KeySpec{Bits: req.KeySize})
	}
	if err != nil {
		s.metrics.RecordKeyMutation(tenantID, "create", false)
		return "", err
	}

	// 3. Persist; the store invalidates the registry before returning
	record := &models.KeyRecord{
		TenantID:      tenantID,
		ProviderID:    provider.ID(),
		Name:          req.Name,
		Algorithm:     material.Algorithm,
		Priority:      constants.DefaultKeyPriority,
		PublicKeyPEM:  material.PublicKeyPEM,
		PrivateKeyPEM: material.PrivateKeyPEM,
		Status:        models.KeyStatusEnabled,
	}
	if req.Priority != nil {
		record.Priority = *req.Priority
	}
	if req.Disabled {
		record.Status = models.KeyStatusDisabled
	}

	kid, err := s.keyRepo.Add(ctx, record)
	if err != nil {
		s.metrics.RecordKeyMutation(tenantID, "create", false)
		s.logger.Error(ctx, "failed to save new key", err, logger.String("tenant_id", tenantID))
		return "", errors.WrapError(err, "failed to save new key")
	}
	s.metrics.RecordKeyMutation(tenantID, "create", true)
	record.ID = kid

	// 4. Record the lifecycle event
	if err := s.klr.LogEvent(ctx, models.NewKeyLifecycleEvent(constants.KeyEventCreated, record)); err != nil {
		s.logger.Error(ctx, "failed to log key creation event", err, logger.String("kid", kid))
	}

	s.logger.Info(ctx, "key created",
		logger.String("tenant_id", tenantID),
		logger.String("kid", kid),
		logger.String("provider_id", string(provider.ID())),
		logger.Int64("priority", record.Priority),
	)
	return kid, nil
}

// DeleteKey removes a key. Artifacts carrying its kid fail verification from the moment it returns.
// DeleteKey 删除密钥。从返回那一刻起，携带该 kid 的制品都将验证失败。
func (s *KeyManagementService) DeleteKey(ctx context.Context, tenantID, keyID string) error {
	record, err := s.keyRepo.Get(ctx, tenantID, keyID)
	if err != nil {
		return err
	}

	removed, err := s.keyRepo.Remove(ctx, tenantID, keyID)
	if err != nil {
		s.metrics.RecordKeyMutation(tenantID, "delete", false)
		s.logger.Error(ctx, "failed to remove key", err, logger.String("kid", keyID))
		return errors.WrapError(err, "failed to remove key")
	}
	if !removed {
		// Removed concurrently by another caller.
		return errors.ErrKeyNotFound
	}
	s.metrics.RecordKeyMutation(tenantID, "delete", true)

	if err := s.klr.LogEvent(ctx, models.NewKeyLifecycleEvent(constants.KeyEventRemoved, record)); err != nil {
		s.logger.Error(ctx, "failed to log key removal event", err, logger.String("kid", keyID))
	}

	s.logger.Info(ctx, "key removed", logger.String("tenant_id", tenantID), logger.String("kid", keyID))
	return nil
}

// ListKeys returns the metadata of every key of the tenant ordered by priority, highest first,
// together with the active key id per algorithm.
// ListKeys 返回租户所有密钥的元数据（按优先级从高到低），以及每种算法的活动密钥 ID。
func (s *KeyManagementService) ListKeys(ctx context.Context, tenantID string) (*dto.KeysMetadata, error) {
	set, err := s.registry.KeySet(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	active := activeIDs(set)

	out := &dto.KeysMetadata{Active: active, Keys: make([]dto.KeyMetadata, 0, len(set.Records))}
	for _, r := range set.Records {
		out.Keys = append(out.Keys, dto.KeyMetadata{
			ID:           r.ID,
			ProviderID:   string(r.ProviderID),
			Name:         r.Name,
			Algorithm:    string(r.Algorithm),
			Priority:     r.Priority,
			PublicKeyPEM: r.PublicKeyPEM,
			Status:       string(r.Status),
			Active:       active[string(r.Algorithm)] == r.ID,
			CanSign:      r.CanSign(),
			CreatedAt:    r.CreatedAt,
		})
	}
	return out, nil
}

// GetActive returns the active key id for every algorithm the tenant has a signing key for.
// GetActive 返回租户每种拥有签名密钥的算法所对应的活动密钥 ID。
func (s *KeyManagementService) GetActive(ctx context.Context, tenantID string) (map[string]string, error) {
	set, err := s.registry.KeySet(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return activeIDs(set), nil
}

func activeIDs(set *models.KeySetView) map[string]string {
	active := make(map[string]string, len(set.Active))
	for alg, kid := range set.Active {
		active[string(alg)] = kid
	}
	return active
}

// JWKS returns the public half of every key that may verify artifacts of the tenant.
// JWKS 返回可用于验证该租户制品的所有密钥的公钥部分。
func (s *KeyManagementService) JWKS(ctx context.Context, tenantID string) (*jose.JSONWebKeySet, error) {
	keys, err := s.registry.AllActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	set := &jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(keys))}
	for _, k := range keys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       k.PublicKey,
			KeyID:     k.ID(),
			Algorithm: string(k.Algorithm()),
			Use:       "sig",
		})
	}
	return set, nil
}

// Bootstrap creates a generated key for every configured tenant that has no active key
// for the provider's algorithm. Tenants are processed in configuration order.
// Bootstrap 为每个在该提供者算法下没有活动密钥的已配置租户创建生成的密钥。
func (s *KeyManagementService) Bootstrap(ctx context.Context, entries []config.BootstrapKeyConfig) error {
	for _, entry := range entries {
		providerID := constants.ProviderID(entry.Provider)
		if providerID == "" {
			providerID = constants.ProviderRSAGenerated
		}
		provider, ok := s.providers.Provider(providerID)
		if !ok {
			return errors.ErrInvalidRequest("unknown bootstrap provider " + entry.Provider)
		}

		_, err := s.registry.ActiveKey(ctx, entry.Tenant, provider.Algorithm())
		if err == nil {
			continue
		}
		if !goerrors.Is(err, errors.ErrNoActiveKey) {
			return err
		}

		priority := entry.Priority
		kid, err := s.CreateKey(ctx, entry.Tenant, &dto.CreateKeyRequest{
			ProviderID: string(providerID),
			Name:       "bootstrap",
			Priority:   &priority,
			KeySize:    entry.KeySize,
		})
		if err != nil {
			return err
		}
		s.logger.Info(ctx, "bootstrap key created", logger.String("tenant_id", entry.Tenant), logger.String("kid", kid))
	}
	return nil
}
