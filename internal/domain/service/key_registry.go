package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/repository"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
)

// keySnapshot is an immutable view of one tenant's key set. It is never modified after publication.
// keySnapshot 是单个租户密钥集合的不可变视图，发布后不会再被修改。
type keySnapshot struct {
	gen     uint64
	records []*models.KeyRecord
	trusted []*models.ResolvedKey
	byID    map[string]*models.ResolvedKey
	active  map[constants.JWTAlgorithm]*models.ResolvedKey
}

// tenantEntry holds the current snapshot of a tenant and the generation it must carry to be served.
// Generations come from a registry-wide counter, so an entry created after an eviction never
// shares a generation (or a rebuild flight) with the entry it replaces.
// tenantEntry 保存租户的当前快照以及该快照可被使用时必须携带的代数。
// 代数来自注册表级计数器，淘汰后重建的条目不会与旧条目共享代数或重建过程。
type tenantEntry struct {
	mu       sync.Mutex
	gen      atomic.Uint64
	snapshot atomic.Pointer[keySnapshot]
}

func (e *tenantEntry) current() (*keySnapshot, uint64) {
	gen := e.gen.Load()
	snap := e.snapshot.Load()
	if snap != nil && snap.gen == gen {
		return snap, gen
	}
	return nil, gen
}

func (e *tenantEntry) invalidate(gen uint64) {
	e.mu.Lock()
	e.gen.Store(gen)
	e.snapshot.Store(nil)
	e.mu.Unlock()
}

// publish stores snap only if no invalidation happened since its rebuild started.
func (e *tenantEntry) publish(snap *keySnapshot) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen.Load() != snap.gen {
		return false
	}
	e.snapshot.Store(snap)
	return true
}

// DefaultKeyRegistry implements KeyRegistry on top of a KeyRepository.
// Reads are lock free; KeysChanged makes every later read rebuild from the store.
// Tenant entries live in a bounded LRU and tenants without records are not retained.
// DefaultKeyRegistry 基于 KeyRepository 实现 KeyRegistry。
// 读取无锁；KeysChanged 之后的每次读取都会从存储重建视图。租户条目保存在有界 LRU 中，没有记录的租户不会被保留。
type DefaultKeyRegistry struct {
	store     repository.KeyRepository
	providers ProviderResolver
	logger    logger.Logger
	metrics   Metrics
	tracer    trace.Tracer

	capacity int
	tenants  *lru.Cache[string, *tenantEntry]
	gens     atomic.Uint64
	group    singleflight.Group
}

// RegistryOption configures a DefaultKeyRegistry.
type RegistryOption func(*DefaultKeyRegistry)

// WithTenantCapacity bounds the number of tenants whose key view is kept in memory.
// Non-positive values keep the default.
func WithTenantCapacity(n int) RegistryOption {
	return func(r *DefaultKeyRegistry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// NewKeyRegistry creates a new DefaultKeyRegistry.
// The store passed here must be the raw store; callers mutate through a
// repository.NotifyingKeyRepository that reports to this registry.
func NewKeyRegistry(store repository.KeyRepository, providers ProviderResolver, log logger.Logger, metrics Metrics, opts ...RegistryOption) *DefaultKeyRegistry {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	r := &DefaultKeyRegistry{
		store:     store,
		providers: providers,
		logger:    log.WithComponent("KeyRegistry"),
		metrics:   metrics,
		tracer:    otel.Tracer("realmkeys/domain/service"),
		capacity:  constants.RegistryTenantCapacity,
	}
	for _, opt := range opts {
		opt(r)
	}
	// capacity is always positive here, which is the only error lru.New reports.
	r.tenants, _ = lru.New[string, *tenantEntry](r.capacity)
	return r
}

var _ KeyRegistry = (*DefaultKeyRegistry)(nil)
var _ repository.KeyChangeListener = (*DefaultKeyRegistry)(nil)

// entry returns the tenant's cached entry or installs a new one. An evicted entry is
// never reinstalled, so a read that starts after KeysChanged cannot reach a stale snapshot.
func (r *DefaultKeyRegistry) entry(tenantID string) *tenantEntry {
	if e, ok := r.tenants.Get(tenantID); ok {
		return e
	}
	fresh := &tenantEntry{}
	fresh.gen.Store(r.gens.Add(1))
	if prev, ok, _ := r.tenants.PeekOrAdd(tenantID, fresh); ok {
		return prev
	}
	return fresh
}

// CachedTenants reports how many tenant entries are currently retained.
func (r *DefaultKeyRegistry) CachedTenants() int {
	return r.tenants.Len()
}

// KeysChanged drops the tenant's snapshot. It returns only after every later read
// is guaranteed to rebuild from the store.
// KeysChanged 丢弃租户快照。返回后，之后的每次读取都保证会从存储重建。
func (r *DefaultKeyRegistry) KeysChanged(ctx context.Context, tenantID string) {
	r.entry(tenantID).invalidate(r.gens.Add(1))
	r.logger.Debug(ctx, "key set invalidated", logger.String("tenant_id", tenantID))
}

// ActiveKey returns the key that signs new artifacts for tenantID and alg.
func (r *DefaultKeyRegistry) ActiveKey(ctx context.Context, tenantID string, alg constants.JWTAlgorithm) (*models.ResolvedKey, error) {
	snap, err := r.view(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	key, ok := snap.active[alg]
	if !ok {
		return nil, errors.ErrNoActiveKey.
			WithMetadata("tenant_id", tenantID).
			WithMetadata("algorithm", string(alg))
	}
	return key, nil
}

// Lookup resolves keyID among the tenant's enabled, non-removed keys.
func (r *DefaultKeyRegistry) Lookup(ctx context.Context, tenantID, keyID string) (*models.ResolvedKey, error) {
	if keyID == "" {
		return nil, errors.ErrUnknownKey
	}
	snap, err := r.view(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	key, ok := snap.byID[keyID]
	if !ok {
		return nil, errors.ErrUnknownKey.WithMetadata("kid", keyID)
	}
	return key, nil
}

// AllActive returns the trusted keys, highest priority first.
func (r *DefaultKeyRegistry) AllActive(ctx context.Context, tenantID string) ([]*models.ResolvedKey, error) {
	snap, err := r.view(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ResolvedKey, len(snap.trusted))
	copy(out, snap.trusted)
	return out, nil
}

// Records returns copies of all records, disabled ones included, highest priority first.
func (r *DefaultKeyRegistry) Records(ctx context.Context, tenantID string) ([]*models.KeyRecord, error) {
	set, err := r.KeySet(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return set.Records, nil
}

// KeySet returns the records and the active key ids read from one snapshot.
// KeySet 返回从同一快照读取的记录列表与活动密钥 ID。
func (r *DefaultKeyRegistry) KeySet(ctx context.Context, tenantID string) (*models.KeySetView, error) {
	snap, err := r.view(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	set := &models.KeySetView{
		Records: make([]*models.KeyRecord, 0, len(snap.records)),
		Active:  make(map[constants.JWTAlgorithm]string, len(snap.active)),
	}
	for _, rec := range snap.records {
		set.Records = append(set.Records, rec.Clone())
	}
	for alg, key := range snap.active {
		set.Active[alg] = key.ID()
	}
	return set, nil
}

func (r *DefaultKeyRegistry) view(ctx context.Context, tenantID string) (*keySnapshot, error) {
	entry := r.entry(tenantID)
	snap, gen := entry.current()
	if snap != nil {
		r.metrics.RecordCacheAccess("key_snapshot", true)
		return snap, nil
	}
	r.metrics.RecordCacheAccess("key_snapshot", false)

	// Callers that observed the same generation share one rebuild. A caller that
	// observed a newer generation never joins an older flight.
	flightKey := tenantID + "/" + strconv.FormatUint(gen, 10)
	v, err, _ := r.group.Do(flightKey, func() (interface{}, error) {
		return r.rebuild(context.WithoutCancel(ctx), tenantID, entry, gen)
	})
	if err != nil {
		return nil, err
	}
	return v.(*keySnapshot), nil
}

func (r *DefaultKeyRegistry) rebuild(ctx context.Context, tenantID string, entry *tenantEntry, gen uint64) (*keySnapshot, error) {
	ctx, span := r.tracer.Start(ctx, "KeyRegistry.rebuild",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	start := time.Now()
	records, err := r.store.List(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list key records")
		r.metrics.RecordRegistryRebuild(tenantID, time.Since(start), err)
		r.logger.Error(ctx, "failed to list key records", err, logger.String("tenant_id", tenantID))
		return nil, fmt.Errorf("list key records for tenant %s: %w", tenantID, err)
	}

	snap := r.buildSnapshot(ctx, gen, records)
	var published bool
	if len(records) == 0 {
		// Unknown realms cost one List per read instead of a retained entry.
		r.tenants.Remove(tenantID)
	} else {
		published = entry.publish(snap)
	}

	span.SetAttributes(
		attribute.Int("key_count", len(snap.records)),
		attribute.Bool("published", published),
	)
	r.metrics.RecordRegistryRebuild(tenantID, time.Since(start), nil)
	r.logger.Debug(ctx, "key set rebuilt",
		logger.String("tenant_id", tenantID),
		logger.Uint64("generation", gen),
		logger.Int("records", len(snap.records)),
		logger.Int("trusted", len(snap.trusted)),
		logger.Bool("published", published),
	)
	return snap, nil
}

// buildSnapshot is a deterministic function of records.
func (r *DefaultKeyRegistry) buildSnapshot(ctx context.Context, gen uint64, records []*models.KeyRecord) *keySnapshot {
	sorted := make([]*models.KeyRecord, 0, len(records))
	for _, rec := range records {
		sorted = append(sorted, rec.Clone())
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return keyPrecedes(sorted[i], sorted[j])
	})

	snap := &keySnapshot{
		gen:     gen,
		records: sorted,
		byID:    make(map[string]*models.ResolvedKey, len(sorted)),
		active:  make(map[constants.JWTAlgorithm]*models.ResolvedKey),
	}
	for _, rec := range sorted {
		if !rec.Enabled() {
			continue
		}
		resolved, err := r.providers.Load(rec)
		if err != nil {
			r.logger.Warn(ctx, "skipping key record with unusable material",
				logger.String("tenant_id", rec.TenantID),
				logger.String("kid", rec.ID),
				logger.String("provider_id", string(rec.ProviderID)),
				logger.Error(err),
			)
			continue
		}
		snap.byID[rec.ID] = resolved
		snap.trusted = append(snap.trusted, resolved)
		if _, taken := snap.active[rec.Algorithm]; !taken && rec.CanSign() && resolved.PrivateKey != nil {
			snap.active[rec.Algorithm] = resolved
		}
	}
	return snap
}

// keyPrecedes orders records by priority desc, then creation time desc, then ID desc.
// keyPrecedes 按优先级降序、创建时间降序、ID 降序排列记录。
func keyPrecedes(a, b *models.KeyRecord) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
