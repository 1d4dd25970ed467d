package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/repository"
	"github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/internal/infrastructure/keyprovider"
	"github.com/turtacn/realmkeys/internal/infrastructure/persistence/memory"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/logger"
)

const testIssuerBase = "http://localhost:8080"

type fixture struct {
	store     *countingStore
	keys      *repository.NotifyingKeyRepository
	providers *keyprovider.ProviderSet
	registry  *service.DefaultKeyRegistry
	signer    *service.JWTSigner
	verifier  *service.JWTVerifier
	claims    *service.ClaimsPolicy
	cookies   *service.CookieRefreshPolicy

	used map[constants.ProviderID]int
}

func newFixture(t *testing.T, opts ...service.RegistryOption) *fixture {
	t.Helper()
	log := logger.NewNoopLogger()

	providers, err := keyprovider.NewDefaultProviderSet(64, nil)
	require.NoError(t, err)

	store := &countingStore{KeyRepository: memory.NewKeyRepository()}
	registry := service.NewKeyRegistry(store, providers, log, nil, opts...)
	signer := service.NewJWTSigner(registry, log, nil)
	verifier := service.NewJWTVerifier(registry, log, nil)
	claims := service.NewClaimsPolicy(testIssuerBase, constants.ClockSkewTolerance)

	return &fixture{
		store:     store,
		keys:      repository.NewNotifyingKeyRepository(store, registry),
		providers: providers,
		registry:  registry,
		signer:    signer,
		verifier:  verifier,
		claims:    claims,
		cookies:   service.NewCookieRefreshPolicy(registry, verifier, signer, claims, log, nil),
		used:      make(map[constants.ProviderID]int),
	}
}

// materialPool shares generated key pairs between fixtures so RSA generation cost is
// paid once per test run. Within one fixture every key gets distinct material.
var (
	materialMu   sync.Mutex
	materialPool = map[constants.ProviderID][]*models.KeyMaterial{}
)

func (f *fixture) freshMaterial(t *testing.T, provider service.KeyProvider) *models.KeyMaterial {
	t.Helper()
	materialMu.Lock()
	defer materialMu.Unlock()

	id := provider.ID()
	i := f.used[id]
	f.used[id] = i + 1
	if i < len(materialPool[id]) {
		return materialPool[id][i]
	}
	m, err := provider.Generate(context.Background(), models.KeySpec{})
	require.NoError(t, err)
	materialPool[id] = append(materialPool[id], m)
	return m
}

type keyOpts struct {
	provider   service.KeyProvider
	createdAt  time.Time
	id         string
	verifyOnly bool
	disabled   bool
}

func (f *fixture) addKey(t *testing.T, tenantID string, priority int64, opts ...func(*keyOpts)) string {
	t.Helper()
	o := keyOpts{provider: keyprovider.NewRSAGeneratedProvider()}
	for _, fn := range opts {
		fn(&o)
	}
	m := f.freshMaterial(t, o.provider)

	rec := &models.KeyRecord{
		ID:           o.id,
		TenantID:     tenantID,
		ProviderID:   o.provider.ID(),
		Algorithm:    m.Algorithm,
		Priority:     priority,
		PublicKeyPEM: m.PublicKeyPEM,
		Status:       models.KeyStatusEnabled,
		CreatedAt:    o.createdAt,
	}
	if !o.verifyOnly {
		rec.PrivateKeyPEM = m.PrivateKeyPEM
	}
	if o.disabled {
		rec.Status = models.KeyStatusDisabled
	}
	id, err := f.keys.Add(context.Background(), rec)
	require.NoError(t, err)
	return id
}

func (f *fixture) removeKey(t *testing.T, tenantID, id string) {
	t.Helper()
	removed, err := f.keys.Remove(context.Background(), tenantID, id)
	require.NoError(t, err)
	require.True(t, removed)
}

func withECDSA() func(*keyOpts) {
	return func(o *keyOpts) { o.provider = keyprovider.NewECDSAGeneratedProvider() }
}

func withCreatedAt(ts time.Time) func(*keyOpts) {
	return func(o *keyOpts) { o.createdAt = ts }
}

func withID(id string) func(*keyOpts) {
	return func(o *keyOpts) { o.id = id }
}

func verifyOnly() func(*keyOpts) {
	return func(o *keyOpts) { o.verifyOnly = true }
}

func disabled() func(*keyOpts) {
	return func(o *keyOpts) { o.disabled = true }
}

func (f *fixture) tokenClaims(tenantID string, typ constants.TokenType, ttl time.Duration) *models.TokenClaims {
	now := time.Now()
	return &models.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    f.claims.Issuer(tenantID),
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type:              typ,
		SessionID:         "session-1",
		PreferredUsername: "alice",
	}
}

// countingStore counts List calls and can hold the first List after it has read the store.
type countingStore struct {
	repository.KeyRepository
	lists atomic.Int64

	holdMu  sync.Mutex
	hold    bool
	listed  chan struct{}
	release chan struct{}
}

func (s *countingStore) List(ctx context.Context, tenantID string) ([]*models.KeyRecord, error) {
	s.lists.Add(1)
	records, err := s.KeyRepository.List(ctx, tenantID)

	s.holdMu.Lock()
	hold := s.hold
	s.hold = false
	s.holdMu.Unlock()
	if hold {
		close(s.listed)
		<-s.release
	}
	return records, err
}

// holdNextList makes the next List call block after reading the store until release is closed.
func (s *countingStore) holdNextList() (listed <-chan struct{}, release chan<- struct{}) {
	s.holdMu.Lock()
	defer s.holdMu.Unlock()
	s.hold = true
	s.listed = make(chan struct{})
	s.release = make(chan struct{})
	return s.listed, s.release
}
