// Package store implements CALIBER's persistent store (spec C2): a
// pgxpool-backed Postgres client with idempotent schema bootstrap,
// row-level tenant isolation, and a single-transaction boundary for
// cross-entity operations.
//
// This package plays the role the teacher's pkg/database + generated ent
// client play together. Because the retrieval pack carries only
// ent/schema/*.go (declarative field definitions) and not the
// entc-generated query client, and this task forbids invoking the Go
// toolchain (so entc cannot be run here), the query layer below is
// hand-written pgx, not ent — see DESIGN.md "Persistent store (C2)" for the
// adaptation rationale. Pool configuration, migration embedding, and the
// pgx/golang-migrate stack are otherwise unchanged from pkg/database/client.go.
package store

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver used for migrations

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds Postgres connection and pool tuning parameters.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// dsnOverride lets tests hand runMigrations an already-resolved DSN (for
	// example a testcontainers connection string) instead of assembling one
	// from the discrete fields above.
	dsnOverride string
}

func (c Config) dsn() string {
	if c.dsnOverride != "" {
		return c.dsnOverride
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Store wraps a pgx connection pool and exposes per-entity query methods
// (see tenant.go, agent.go, trajectory.go, ... in this package).
type Store struct {
	pool *pgxpool.Pool

	// tenantViolations counts cross-tenant read/write attempts rejected by
	// the store (spec §4.2: "emit a warning counter"). Surfaced via Stats().
	tenantViolations atomic.Int64
}

// Pool returns the underlying pgxpool.Pool for health checks or advisory
// lock calls made directly against a connection (see internal/locks).
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// TenantViolations returns the running count of rejected cross-tenant
// operations since process start.
func (s *Store) TenantViolations() int64 { return s.tenantViolations.Load() }

func (s *Store) recordTenantViolation() { s.tenantViolations.Add(1) }

// classifyMiss resolves a zero-row tenant-scoped read or write: a probe by
// primary key without the tenant predicate distinguishes a row owned by
// another tenant — recorded on the violation counter, and PermissionDenied
// for writes — from a row that never existed (spec §4.2, §8). Reads stay
// NotFound either way so the entity's existence is not leaked to
// unauthorized callers beyond a boolean (spec §4.4). The probe sees other
// tenants' rows because the application role owns the tables (RLS does not
// bind the owner); under FORCE ROW LEVEL SECURITY it degrades to plain
// NotFound. table is always a compile-time constant at call sites.
func (s *Store) classifyMiss(ctx context.Context, table, entity, id string, write bool) error {
	var exists bool
	err := s.querier(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT true FROM %s WHERE id = $1`, table), id,
	).Scan(&exists)
	if err == nil && exists {
		s.recordTenantViolation()
		if write {
			return caliberr.PermissionDenied("tenant_isolation")
		}
	}
	return caliberr.NotFound(entity, id)
}

// tenantRowExists probes whether a row is present under the caller's own
// tenant, used by state-conditioned updates (FSM transitions, scope close)
// to tell "wrong state" (Conflict) apart from "missing or another
// tenant's" (classifyMiss) after a zero-row update.
func (s *Store) tenantRowExists(ctx context.Context, table, tenantID, id string) bool {
	var exists bool
	err := s.querier(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT true FROM %s WHERE tenant_id = $1 AND id = $2`, table),
		tenantID, id,
	).Scan(&exists)
	return err == nil && exists
}

// New opens a connection pool, pings it, and runs schema bootstrap.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("store: parse pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := runMigrations(ctx, cfg); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// NewFromPool wraps an already-open pool (used by tests against a
// testcontainers-managed Postgres instance).
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// runMigrations applies every embedded *.sql migration exactly once,
// tracked by golang-migrate's schema_migrations table — idempotent per
// spec §4.2 ("init() creates all tables ... if missing"). It opens a short
// lived database/sql connection over the pgx stdlib driver solely for the
// migration run, mirroring pkg/database/client.go's runMigrations, and
// leaves the long-lived pgxpool.Pool for application queries.
func runMigrations(ctx context.Context, cfg Config) error {
	db, err := stdsql.Open("pgx", cfg.dsn())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres migrate driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, cfg.Database, driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Close only the source driver; closing m would also close db via the
	// postgres driver, which we manage ourselves above.
	return sourceDriver.Close()
}

// Health pings the pool with a bounded deadline.
func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Stats is a cross-tenant operational rollup for the REST facade's
// /health endpoint (SPEC_FULL.md supplemented feature, mirroring tarsy's
// healthHandler database+worker_pool aggregation but widened to
// CALIBER's own components: active agents, held locks, pending messages).
type Stats struct {
	ActiveAgents    int64
	HeldLocks       int64
	PendingMessages int64
	TenantViolations int64
}

// Stats runs the rollup queries Health's caller needs. It intentionally
// does not take a tenant_id — this is an operator-facing, cross-tenant
// view, not an entity-service read subject to access.Enforcer.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var stats Stats
	stats.TenantViolations = s.TenantViolations()

	row := s.pool.QueryRow(ctx, `SELECT count(*) FROM agents WHERE status = 'active'`)
	if err := row.Scan(&stats.ActiveAgents); err != nil {
		return Stats{}, fmt.Errorf("count active agents: %w", err)
	}

	row = s.pool.QueryRow(ctx, `SELECT count(*) FROM locks WHERE expires_at IS NULL OR expires_at > now()`)
	if err := row.Scan(&stats.HeldLocks); err != nil {
		return Stats{}, fmt.Errorf("count held locks: %w", err)
	}

	row = s.pool.QueryRow(ctx, `SELECT count(*) FROM messages WHERE delivered_at IS NULL`)
	if err := row.Scan(&stats.PendingMessages); err != nil {
		return Stats{}, fmt.Errorf("count pending messages: %w", err)
	}

	return stats, nil
}
