package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a PostgreSQL container for testing and applies the schema.
// Returns a cleanup function that must be called after tests complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	runTestMigrations(t, ctx, pool)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// runTestMigrations creates the tables directly. The migrations package
// imports this one, so its embedded runner can't be called from here.
func runTestMigrations(t *testing.T, ctx context.Context, pool *Pool) {
	t.Helper()

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS purchases (
			purchase_id TEXT PRIMARY KEY,
			buyer       TEXT NOT NULL,
			amount      NUMERIC(78, 0) NOT NULL,
			cost        NUMERIC(78, 0) NOT NULL,
			price       NUMERIC(78, 0) NOT NULL,
			timestamp   BIGINT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_purchases_buyer ON purchases (buyer);
		CREATE INDEX IF NOT EXISTS idx_purchases_timestamp ON purchases (timestamp);
	`)
	require.NoError(t, err, "failed to create purchases schema")

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sale_events (
			event_id        TEXT PRIMARY KEY,
			sequence        BIGINT NOT NULL UNIQUE,
			event_type      TEXT NOT NULL,
			timestamp       BIGINT NOT NULL,
			from_addr       TEXT NOT NULL,
			to_addr         TEXT NOT NULL,
			buyer           TEXT NOT NULL,
			subject         TEXT NOT NULL,
			status          TEXT NOT NULL,
			amount          NUMERIC(78, 0) NOT NULL,
			currency_amount NUMERIC(78, 0) NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_sale_events_type ON sale_events (event_type);
	`)
	require.NoError(t, err, "failed to create sale_events schema")
}
