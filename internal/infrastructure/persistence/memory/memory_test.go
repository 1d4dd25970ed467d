package memory

import (
	"context"
	goerrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/errors"
)

func TestKeyRepository_AddListRemove(t *testing.T) {
	repo := NewKeyRepository()
	ctx := context.Background()

	_, err := repo.Add(ctx, &models.KeyRecord{Algorithm: constants.AlgorithmRS256})
	assert.Error(t, err)

	rec := &models.KeyRecord{TenantID: "test", Algorithm: constants.AlgorithmRS256, Priority: 10}
	id1, err := repo.Add(ctx, rec)
	require.NoError(t, err)
	assert.Empty(t, rec.ID, "caller's record is not modified")
	id2, err := repo.Add(ctx, &models.KeyRecord{TenantID: "test", Algorithm: constants.AlgorithmRS256})
	require.NoError(t, err)

	records, err := repo.List(ctx, "test")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, id1, records[0].ID)
	assert.Equal(t, id2, records[1].ID)
	assert.Equal(t, models.KeyStatusEnabled, records[0].Status)

	records[0].Priority = 99
	got, err := repo.Get(ctx, "test", id1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Priority)

	removed, err := repo.Remove(ctx, "test", id1)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.Remove(ctx, "test", id1)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = repo.Get(ctx, "test", id1)
	assert.True(t, goerrors.Is(err, errors.ErrKeyNotFound))

	records, err = repo.List(ctx, "test")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id2, records[0].ID)
}

func TestKeyRepository_DuplicateID(t *testing.T) {
	repo := NewKeyRepository()
	ctx := context.Background()
	rec := &models.KeyRecord{ID: "fixed", TenantID: "test"}

	_, err := repo.Add(ctx, rec)
	require.NoError(t, err)
	_, err = repo.Add(ctx, rec)
	assert.Error(t, err)

	// The same id is fine in another tenant.
	rec.TenantID = "other"
	_, err = repo.Add(ctx, rec)
	assert.NoError(t, err)
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore(time.Minute)
	ctx := context.Background()
	now := time.Now()

	session := &models.Session{ID: "s1", TenantID: "test", Username: "alice", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, store.Save(ctx, session))

	got, err := store.Get(ctx, "test", "s1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = store.Get(ctx, "other", "s1")
	assert.True(t, goerrors.Is(err, errors.ErrLoginRequired))

	store.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = store.Get(ctx, "test", "s1")
	assert.True(t, goerrors.Is(err, errors.ErrLoginRequired))
	store.now = time.Now

	require.NoError(t, store.Delete(ctx, "test", "s1"))
	_, err = store.Get(ctx, "test", "s1")
	assert.True(t, goerrors.Is(err, errors.ErrLoginRequired))

	expired := &models.Session{ID: "s2", TenantID: "test", ExpiresAt: now.Add(-time.Second)}
	assert.Error(t, store.Save(ctx, expired))
}
