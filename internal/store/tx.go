package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/ids"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting per-entity
// query methods run either directly against the pool or inside WithTx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txKey scopes a Querier into a context so per-entity repository methods
// can transparently run inside an ambient transaction started by WithTx.
type txKey struct{}

// tenantKey scopes the acting tenant into a context. WithTx reads it to
// set the caliber.tenant_id session variable on the transaction it opens,
// arming the row-level security policies from migration 0001.
type tenantKey struct{}

// WithTenant tags ctx with the tenant whose rows the enclosed operations
// may touch. The REST facade tags every request context after resolving
// the actor; services that open transactions with an explicit tenant id
// (coordination, note and artifact batch creation, turn append, scope
// close) tag the
// context they hand WithTx themselves.
func WithTenant(ctx context.Context, tenantID ids.TenantID) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

func tenantFrom(ctx context.Context) (ids.TenantID, bool) {
	id, ok := ctx.Value(tenantKey{}).(ids.TenantID)
	return id, ok
}

func withQuerier(ctx context.Context, q Querier) context.Context {
	return context.WithValue(ctx, txKey{}, q)
}

func (s *Store) querier(ctx context.Context) Querier {
	if q, ok := ctx.Value(txKey{}).(Querier); ok {
		return q
	}
	return s.pool
}

// WithTx runs fn inside a single Postgres transaction. A panic inside fn is
// recovered, the transaction rolled back, and surfaced to the caller as a
// caliberr.LockPoisoned error (spec §4.2/§7: a panicking holder poisons the
// operation rather than leaving a half-applied write).
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("begin tx: %w", err))
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			err = caliberr.LockPoisoned(fmt.Errorf("panic in transaction: %v", r))
		}
	}()

	txCtx := withQuerier(ctx, tx)
	if tenantID, ok := tenantFrom(ctx); ok {
		if err = s.setTenant(txCtx, tenantID.String()); err != nil {
			_ = tx.Rollback(ctx)
			return caliberr.Storage(fmt.Errorf("set tenant for tx: %w", err))
		}
	}
	if err = fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return caliberr.Storage(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// setTenant sets the caliber.tenant_id session variable for the lifetime
// of the current transaction (set_config with is_local=true resets at
// commit/rollback), backing the row-level security policies created in
// migration 0001. WithTx calls it whenever the incoming context carries a
// WithTenant tag. Application code still applies tenant_id predicates
// directly in every query; RLS is the defense-in-depth layer (spec §4.2),
// and it only constrains roles other than the table owner unless the
// deployment also sets FORCE ROW LEVEL SECURITY.
func (s *Store) setTenant(ctx context.Context, tenantID string) error {
	_, err := s.querier(ctx).Exec(ctx, "SELECT set_config('caliber.tenant_id', $1, true)", tenantID)
	return err
}
