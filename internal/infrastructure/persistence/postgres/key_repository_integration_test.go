//go:build integration

package postgres

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/realmkeys/internal/config"
	"github.com/turtacn/realmkeys/pkg/logger"
)

func TestKeyRepository_Postgres(t *testing.T) {
	if os.Getenv("SKIP_DOCKER_TESTS") == "true" {
		t.Skip("Skipping Docker-dependent tests")
	}

	ctx := context.Background()
	pgContainer, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("realmkeys"),
		tcpostgres.WithUsername("realmkeys"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	}()

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	conn, err := NewDBConnection(ctx, &config.DatabaseConfig{
		Host:     host,
		Port:     portNum,
		User:     "realmkeys",
		Password: "password",
		Database: "realmkeys",
		SSLMode:  "disable",
		MaxConns: 4,
	}, logger.NewNoopLogger())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Migrate(ctx))

	health, err := conn.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health["status"])

	repo := NewKeyRepository(conn.DB(), nil)
	id, err := repo.Add(ctx, testRecord("test", 100))
	require.NoError(t, err)

	records, err := repo.List(ctx, "test")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)

	removed, err := repo.Remove(ctx, "test", id)
	require.NoError(t, err)
	assert.True(t, removed)
}
