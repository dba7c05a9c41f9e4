// Package dbtest provides a shared Store fixture for integration tests
// across packages (messages, coordination, ...), so each package's test
// suite does not re-implement the testcontainers/CI_DATABASE_URL dance
// store's own testhelper_test.go already does for package store's tests.
package dbtest

import (
	"context"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Heyoub/caliber-sub001/internal/store"
)

// NewStore opens a *store.Store (migrated, ready to use) against an
// external PostgreSQL service when CI_DATABASE_URL is set, or a disposable
// testcontainer otherwise. The container and pool are torn down via
// t.Cleanup.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	if raw := os.Getenv("CI_DATABASE_URL"); raw != "" {
		t.Log("using external PostgreSQL from CI_DATABASE_URL")
		cfg := configFromURL(t, raw)
		st, err := store.New(ctx, cfg)
		require.NoError(t, err)
		t.Cleanup(st.Close)
		return st
	}

	t.Log("using testcontainers for PostgreSQL")
	const database = "caliber_test"
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(database),
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

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := store.Config{
		Host:     host,
		Port:     mappedPort.Int(),
		User:     "caliber",
		Password: "caliber",
		Database: database,
		SSLMode:  "disable",
	}
	st, err := store.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func configFromURL(t *testing.T, raw string) store.Config {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)

	port := 5432
	if p := u.Port(); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			port = parsed
		}
	}
	password, _ := u.User.Password()
	database := u.Path
	if len(database) > 0 && database[0] == '/' {
		database = database[1:]
	}
	sslMode := "disable"
	if m := u.Query().Get("sslmode"); m != "" {
		sslMode = m
	}

	return store.Config{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		Database: database,
		SSLMode:  sslMode,
	}
}
