package redis

import (
	"context"
	goerrors "errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/realmkeys/internal/config"
	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisConnection) {
	t.Helper()
	mr := miniredis.RunT(t)
	conn := NewRedisConnection(&config.RedisConfig{Addresses: []string{mr.Addr()}}, logger.NewNoopLogger())
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(func() { _ = conn.Close() })
	return mr, conn
}

func newSession(tenantID, id string, ttl time.Duration) *models.Session {
	now := time.Now()
	return &models.Session{
		ID:        id,
		TenantID:  tenantID,
		Subject:   "user-1",
		Username:  "alice",
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestRedisConnection_HealthCheck(t *testing.T) {
	_, conn := setupRedis(t)

	health, err := conn.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health["status"])

	assert.NoError(t, conn.Connect(context.Background()))
}

func TestRedisConnection_ConnectFailure(t *testing.T) {
	conn := NewRedisConnection(&config.RedisConfig{}, logger.NewNoopLogger())
	assert.Error(t, conn.Connect(context.Background()))

	_, err := conn.HealthCheck(context.Background())
	assert.Error(t, err)
}

func TestSessionStore_SaveGetDelete(t *testing.T) {
	mr, conn := setupRedis(t)
	store := NewSessionStore(conn.Client(), "realmkeys:", nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("test", "s1", time.Hour)))
	assert.True(t, mr.Exists("realmkeys:session:test:s1"))
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL("realmkeys:session:test:s1").Seconds(), 5)

	got, err := store.Get(ctx, "test", "s1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = store.Get(ctx, "other", "s1")
	assert.True(t, goerrors.Is(err, errors.ErrLoginRequired))

	require.NoError(t, store.Delete(ctx, "test", "s1"))
	_, err = store.Get(ctx, "test", "s1")
	assert.True(t, goerrors.Is(err, errors.ErrLoginRequired))

	assert.NoError(t, store.Delete(ctx, "test", "missing"))
}

func TestSessionStore_Expiry(t *testing.T) {
	mr, conn := setupRedis(t)
	store := NewSessionStore(conn.Client(), "", nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("test", "s1", time.Minute)))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "test", "s1")
	assert.True(t, goerrors.Is(err, errors.ErrLoginRequired))

	assert.Error(t, store.Save(ctx, newSession("test", "s2", -time.Minute)))
}
