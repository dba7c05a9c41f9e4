package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestStore opens a Store against an external PostgreSQL service
// container when CI_DATABASE_URL is set, or a disposable testcontainer in
// local dev, mirroring the teacher's test/database/client.go. The
// container/connection is torn down automatically via t.Cleanup. The
// resolved DSN is returned alongside the Store so tests can re-run
// migrations against the same database.
func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	ctx := context.Background()

	ciDatabaseURL := os.Getenv("CI_DATABASE_URL")

	cfg := Config{Database: "caliber_test", SSLMode: "disable"}
	var dsn string

	if ciDatabaseURL != "" {
		t.Log("using external PostgreSQL from CI_DATABASE_URL")
		dsn = ciDatabaseURL
	} else {
		t.Log("using testcontainers for PostgreSQL")
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase(cfg.Database),
			postgres.WithUsername("caliber"),
			postgres.WithPassword("caliber"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)
		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
		dsn = connStr
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	require.NoError(t, runMigrations(ctx, configFromDSN(dsn, cfg.Database)))

	t.Cleanup(pool.Close)
	return NewFromPool(pool), dsn
}

func configFromDSN(dsn, database string) Config {
	// runMigrations only needs cfg.dsn(); route the already-resolved DSN
	// straight through via a Config whose dsn() we bypass by embedding it.
	return Config{dsnOverride: dsn, Database: database}
}
