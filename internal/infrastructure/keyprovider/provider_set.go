package keyprovider

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/pkg/constants"
)

// DefaultCacheSize bounds the parsed key cache when no size is configured.
const DefaultCacheSize = 1024

// ProviderSet maps provider identifiers to providers, resolved once at startup.
// Parsed material is cached by key ID; records are immutable so an entry only
// goes stale when a record with the same ID but different material appears.
type ProviderSet struct {
	providers   map[constants.ProviderID]service.KeyProvider
	byAlgorithm map[constants.JWTAlgorithm]service.KeyProvider
	cache       *lru.Cache[string, *models.ResolvedKey]
	metrics     service.Metrics
}

// NewProviderSet creates a ProviderSet with the given providers.
func NewProviderSet(cacheSize int, metrics service.Metrics, providers ...service.KeyProvider) (*ProviderSet, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	cache, err := lru.New[string, *models.ResolvedKey](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create key cache: %w", err)
	}

	set := &ProviderSet{
		providers:   make(map[constants.ProviderID]service.KeyProvider, len(providers)),
		byAlgorithm: make(map[constants.JWTAlgorithm]service.KeyProvider),
		cache:       cache,
		metrics:     metrics,
	}
	for _, p := range providers {
		if _, dup := set.providers[p.ID()]; dup {
			return nil, fmt.Errorf("duplicate key provider %s", p.ID())
		}
		set.providers[p.ID()] = p
		if _, ok := set.byAlgorithm[p.Algorithm()]; !ok {
			set.byAlgorithm[p.Algorithm()] = p
		}
	}
	return set, nil
}

// NewDefaultProviderSet registers rsa-generated, rsa and ecdsa-generated.
func NewDefaultProviderSet(cacheSize int, metrics service.Metrics) (*ProviderSet, error) {
	return NewProviderSet(cacheSize, metrics,
		NewRSAGeneratedProvider(),
		NewRSAImportProvider(),
		NewECDSAGeneratedProvider(),
	)
}

var _ service.ProviderResolver = (*ProviderSet)(nil)

// Provider returns the provider registered under id.
func (s *ProviderSet) Provider(id constants.ProviderID) (service.KeyProvider, bool) {
	p, ok := s.providers[id]
	return p, ok
}

// Load parses record with the provider serving its algorithm. Material of one
// algorithm is never parsed by a provider of another.
func (s *ProviderSet) Load(record *models.KeyRecord) (*models.ResolvedKey, error) {
	if cached, ok := s.cache.Get(record.ID); ok && sameMaterial(cached.Record, record) {
		s.metrics.RecordCacheAccess("key_material", true)
		return &models.ResolvedKey{
			Record:     record.Clone(),
			PublicKey:  cached.PublicKey,
			PrivateKey: cached.PrivateKey,
		}, nil
	}
	s.metrics.RecordCacheAccess("key_material", false)

	provider, ok := s.byAlgorithm[record.Algorithm]
	if !ok {
		return nil, fmt.Errorf("no key provider for algorithm %s", record.Algorithm)
	}
	resolved, err := provider.Load(record)
	if err != nil {
		return nil, err
	}
	s.cache.Add(record.ID, resolved)
	return resolved, nil
}

func sameMaterial(a, b *models.KeyRecord) bool {
	return a.TenantID == b.TenantID &&
		a.Algorithm == b.Algorithm &&
		a.PublicKeyPEM == b.PublicKeyPEM &&
		a.PrivateKeyPEM == b.PrivateKeyPEM
}
