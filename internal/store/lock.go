package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// advisoryLockFn names the Postgres advisory-lock function for a given
// (level, mode) pair: Session vs Transaction lifetime, Exclusive vs Shared
// (Postgres has native support for both via the "_shared" suffix, so no
// application-level emulation of Shared mode is needed).
func advisoryLockFn(level enums.LockLevel, mode enums.LockMode) string {
	switch {
	case level == enums.LockTransaction && mode == enums.LockShared:
		return "pg_try_advisory_xact_lock_shared"
	case level == enums.LockTransaction:
		return "pg_try_advisory_xact_lock"
	case mode == enums.LockShared:
		return "pg_try_advisory_lock_shared"
	default:
		return "pg_try_advisory_lock"
	}
}

// TryAdvisoryLockOn attempts the appropriate pg_try_advisory_lock* variant
// for (level, mode) against q directly — used by internal/locks for
// Session-level locks, which must run on a connection pinned for the
// lock's lifetime rather than a pool-borrowed one (spec §4.5's Session
// lock persists "until released or the session ends").
func TryAdvisoryLockOn(ctx context.Context, q Querier, key int64, level enums.LockLevel, mode enums.LockMode) (bool, error) {
	var acquired bool
	err := q.QueryRow(ctx, fmt.Sprintf("SELECT %s($1)", advisoryLockFn(level, mode)), key).Scan(&acquired)
	if err != nil {
		return false, caliberr.Storage(fmt.Errorf("try advisory lock: %w", err))
	}
	return acquired, nil
}

// TryAdvisoryLock is TryAdvisoryLockOn against the Store's ambient querier
// (the pool, or the current transaction via WithTx) — correct for
// Transaction-level locks, where the surrounding transaction is the lock's
// scope regardless of which pooled connection runs the statement.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64, level enums.LockLevel) (bool, error) {
	return TryAdvisoryLockOn(ctx, s.querier(ctx), key, level, enums.LockExclusive)
}

// TryAdvisoryLockMode is TryAdvisoryLock generalized to Shared mode.
func (s *Store) TryAdvisoryLockMode(ctx context.Context, key int64, level enums.LockLevel, mode enums.LockMode) (bool, error) {
	return TryAdvisoryLockOn(ctx, s.querier(ctx), key, level, mode)
}

// ReleaseAdvisoryLockOn releases a Session-level advisory lock on q,
// mirroring TryAdvisoryLockOn's connection-pinning requirement.
func ReleaseAdvisoryLockOn(ctx context.Context, q Querier, key int64, mode enums.LockMode) (bool, error) {
	fn := "pg_advisory_unlock"
	if mode == enums.LockShared {
		fn = "pg_advisory_unlock_shared"
	}
	var released bool
	err := q.QueryRow(ctx, fmt.Sprintf("SELECT %s($1)", fn), key).Scan(&released)
	if err != nil {
		return false, caliberr.Storage(fmt.Errorf("release advisory lock: %w", err))
	}
	return released, nil
}

// ReleaseAdvisoryLock releases a Session-level advisory lock previously
// acquired with TryAdvisoryLock. Transaction-level locks release
// automatically at commit/rollback and have no explicit release call.
func (s *Store) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return ReleaseAdvisoryLockOn(ctx, s.querier(ctx), key, enums.LockExclusive)
}

// CreateLock records the bookkeeping row for an acquired advisory lock.
func (s *Store) CreateLock(ctx context.Context, l models.Lock) error {
	_, err := s.querier(ctx).Exec(ctx, `
		INSERT INTO locks (
			id, tenant_id, resource_type, resource_id, holder_agent_id, mode,
			level, advisory_key, acquired_at, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		l.ID.String(), l.TenantID.String(), l.ResourceType, l.ResourceID,
		l.HolderAgentID.String(), string(l.Mode), string(l.Level), l.AdvisoryKey,
		l.AcquiredAt, l.ExpiresAt,
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("create lock: %w", err))
	}
	return nil
}

// GetLockByResource fetches the current Lock row for a resource, if any.
func (s *Store) GetLockByResource(ctx context.Context, tenantID ids.TenantID, resourceType, resourceID string) (models.Lock, bool, error) {
	var l models.Lock
	var idStr, tenantStr, holderStr, mode, level string

	err := s.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, resource_type, resource_id, holder_agent_id,
		       mode, level, advisory_key, acquired_at, expires_at
		FROM locks WHERE tenant_id = $1 AND resource_type = $2 AND resource_id = $3`,
		tenantID.String(), resourceType, resourceID,
	).Scan(&idStr, &tenantStr, &l.ResourceType, &l.ResourceID, &holderStr,
		&mode, &level, &l.AdvisoryKey, &l.AcquiredAt, &l.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Lock{}, false, nil
	}
	if err != nil {
		return models.Lock{}, false, caliberr.Storage(fmt.Errorf("get lock by resource: %w", err))
	}

	parsedID, err := ids.ParseLockID(idStr)
	if err != nil {
		return models.Lock{}, false, caliberr.Internal("lock row %s has malformed id: %v", idStr, err)
	}
	parsedTenant, err := ids.ParseTenantID(tenantStr)
	if err != nil {
		return models.Lock{}, false, caliberr.Internal("lock row %s has malformed tenant_id: %v", idStr, err)
	}
	parsedHolder, err := ids.ParseAgentID(holderStr)
	if err != nil {
		return models.Lock{}, false, caliberr.Internal("lock row %s has malformed holder_agent_id: %v", idStr, err)
	}
	l.ID = parsedID
	l.TenantID = parsedTenant
	l.HolderAgentID = parsedHolder
	l.Mode = enums.LockMode(mode)
	l.Level = enums.LockLevel(level)
	return l, true, nil
}

// GetLockByResourceAndHolder fetches the Lock row for a resource held by a
// specific agent, if any. Unlike GetLockByResource, this disambiguates
// between multiple coexisting Shared holders of the same (resource_type,
// resource_id) — there is no unique constraint on that pair alone, since
// spec §4.5 "Shared allows other Shared holders" means more than one row can
// legitimately exist for one key at a time.
func (s *Store) GetLockByResourceAndHolder(ctx context.Context, tenantID ids.TenantID, resourceType, resourceID string, holder ids.AgentID) (models.Lock, bool, error) {
	var l models.Lock
	var idStr, tenantStr, holderStr, mode, level string

	err := s.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, resource_type, resource_id, holder_agent_id,
		       mode, level, advisory_key, acquired_at, expires_at
		FROM locks WHERE tenant_id = $1 AND resource_type = $2 AND resource_id = $3 AND holder_agent_id = $4`,
		tenantID.String(), resourceType, resourceID, holder.String(),
	).Scan(&idStr, &tenantStr, &l.ResourceType, &l.ResourceID, &holderStr,
		&mode, &level, &l.AdvisoryKey, &l.AcquiredAt, &l.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Lock{}, false, nil
	}
	if err != nil {
		return models.Lock{}, false, caliberr.Storage(fmt.Errorf("get lock by resource and holder: %w", err))
	}

	parsedID, err := ids.ParseLockID(idStr)
	if err != nil {
		return models.Lock{}, false, caliberr.Internal("lock row %s has malformed id: %v", idStr, err)
	}
	parsedTenant, err := ids.ParseTenantID(tenantStr)
	if err != nil {
		return models.Lock{}, false, caliberr.Internal("lock row %s has malformed tenant_id: %v", idStr, err)
	}
	l.ID = parsedID
	l.TenantID = parsedTenant
	l.HolderAgentID = holder
	l.Mode = enums.LockMode(mode)
	l.Level = enums.LockLevel(level)
	return l, true, nil
}

// DeleteLock removes a Lock's bookkeeping row after release.
func (s *Store) DeleteLock(ctx context.Context, tenantID ids.TenantID, id ids.LockID) error {
	_, err := s.querier(ctx).Exec(ctx,
		`DELETE FROM locks WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(),
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("delete lock: %w", err))
	}
	return nil
}

// ReapExpiredLocks deletes Lock rows past their expiry, used by the
// cron-driven reaper to recover from an agent that died holding a lock
// (spec §4.5 "expired locks are reclaimed").
func (s *Store) ReapExpiredLocks(ctx context.Context, asOf time.Time) ([]models.Lock, error) {
	rows, err := s.querier(ctx).Query(ctx, `
		DELETE FROM locks WHERE expires_at IS NOT NULL AND expires_at < $1
		RETURNING id, tenant_id, resource_type, resource_id, holder_agent_id, mode, level, advisory_key, acquired_at, expires_at`,
		asOf,
	)
	if err != nil {
		return nil, caliberr.Storage(fmt.Errorf("reap expired locks: %w", err))
	}
	defer rows.Close()

	var out []models.Lock
	for rows.Next() {
		var l models.Lock
		var idStr, tenantStr, holderStr, mode, level string
		if err := rows.Scan(&idStr, &tenantStr, &l.ResourceType, &l.ResourceID,
			&holderStr, &mode, &level, &l.AdvisoryKey, &l.AcquiredAt, &l.ExpiresAt); err != nil {
			return nil, caliberr.Storage(fmt.Errorf("scan reaped lock: %w", err))
		}
		id, err := ids.ParseLockID(idStr)
		if err != nil {
			return nil, caliberr.Internal("lock row %s has malformed id: %v", idStr, err)
		}
		tid, err := ids.ParseTenantID(tenantStr)
		if err != nil {
			return nil, caliberr.Internal("lock row %s has malformed tenant_id: %v", idStr, err)
		}
		hid, err := ids.ParseAgentID(holderStr)
		if err != nil {
			return nil, caliberr.Internal("lock row %s has malformed holder_agent_id: %v", idStr, err)
		}
		l.ID = id
		l.TenantID = tid
		l.HolderAgentID = hid
		l.Mode = enums.LockMode(mode)
		l.Level = enums.LockLevel(level)
		out = append(out, l)
	}
	return out, rows.Err()
}
