// Package locks implements CALIBER's advisory lock arbiter (spec C5):
// FNV-1a key derivation, non-blocking try-acquire over Postgres advisory
// locks at Session or Transaction level, extend, release, and orphan
// reaping.
//
// The pairing of a database primitive with a bookkeeping row plus a
// background reaper follows the same shape as the teacher's
// pkg/queue/orphan.go (stale-worker detection) and pkg/cleanup/service.go
// (periodic retention reaping), generalized from "detect a dead worker" to
// "detect a released-but-still-recorded lock".
//
// Session-level locks are tied to a Postgres backend connection, not to a
// logical "session" pgxpool can express on its own: acquiring one pins a
// dedicated *pgxpool.Conn for the lock's lifetime (held in sessionConns),
// released back to the pool only when the lock is released or reaped.
// Transaction-level locks need no such pinning — they ride whatever
// connection the caller's ambient *pgx.Tx (via Store.WithTx) already holds.
package locks

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
	"github.com/Heyoub/caliber-sub001/internal/store"
)

// DeriveKey computes the 64-bit FNV-1a advisory key for (resourceType,
// resourceID), spec §4.5: "a 64-bit FNV-1a hash of the UTF-8 bytes of
// resource_type concatenated with a delimiter byte and resource_id". The
// hash must be identical across processes, which hash/fnv guarantees since
// it implements a fixed, unseeded algorithm.
func DeriveKey(resourceType, resourceID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(resourceType))
	h.Write([]byte{0x1f}) // ASCII unit separator, an unambiguous delimiter
	h.Write([]byte(resourceID))
	return int64(h.Sum64())
}

// Arbiter is CALIBER's lock arbiter, backed by a Store.
type Arbiter struct {
	store *store.Store

	mu           sync.Mutex
	sessionConns map[ids.LockID]*pgxpool.Conn
}

// New builds an Arbiter over the given store.
func New(s *store.Store) *Arbiter {
	return &Arbiter{store: s, sessionConns: make(map[ids.LockID]*pgxpool.Conn)}
}

// Acquire attempts a non-blocking try-lock (spec §4.5: "Acquisition is
// non-blocking try-lock; on contention, the arbiter returns Conflict
// immediately"). timeout is a context deadline over the whole call (the
// try-lock, the bookkeeping insert and any stale-row reap); Acquire does
// not retry and the server does not wait. Session-level locks
// pin a dedicated pool connection for their lifetime; Transaction-level
// locks ride whatever querier is ambient on ctx (the pool, or the current
// WithTx transaction).
func (a *Arbiter) Acquire(ctx context.Context, tenantID ids.TenantID, resourceType, resourceID string, holder ids.AgentID, mode enums.LockMode, level enums.LockLevel, timeout time.Duration) (models.Lock, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	key := DeriveKey(resourceType, resourceID)

	if level == enums.LockTransaction {
		return a.acquireTransaction(ctx, tenantID, resourceType, resourceID, holder, mode, key)
	}
	return a.acquireSession(ctx, tenantID, resourceType, resourceID, holder, mode, key)
}

func (a *Arbiter) acquireTransaction(ctx context.Context, tenantID ids.TenantID, resourceType, resourceID string, holder ids.AgentID, mode enums.LockMode, key int64) (models.Lock, error) {
	acquired, err := a.store.TryAdvisoryLockMode(ctx, key, enums.LockTransaction, mode)
	if err != nil {
		return models.Lock{}, err
	}
	if !acquired {
		return models.Lock{}, caliberr.Conflict(caliberr.ReasonLockContention, "resource %s/%s is held", resourceType, resourceID)
	}

	lock := newLockRecord(tenantID, resourceType, resourceID, holder, mode, enums.LockTransaction, key)
	if err := a.store.CreateLock(ctx, lock); err != nil {
		return models.Lock{}, err
	}
	return lock, nil
}

func (a *Arbiter) acquireSession(ctx context.Context, tenantID ids.TenantID, resourceType, resourceID string, holder ids.AgentID, mode enums.LockMode, key int64) (models.Lock, error) {
	conn, err := a.store.Pool().Acquire(ctx)
	if err != nil {
		return models.Lock{}, caliberr.Storage(err)
	}

	acquired, err := store.TryAdvisoryLockOn(ctx, conn, key, enums.LockSession, mode)
	if err != nil {
		conn.Release()
		return models.Lock{}, err
	}
	if !acquired {
		conn.Release()
		return models.Lock{}, caliberr.Conflict(caliberr.ReasonLockContention, "resource %s/%s is held", resourceType, resourceID)
	}

	lock := newLockRecord(tenantID, resourceType, resourceID, holder, mode, enums.LockSession, key)
	if err := a.store.CreateLock(ctx, lock); err != nil {
		_, _ = store.ReleaseAdvisoryLockOn(ctx, conn, key, mode)
		conn.Release()
		return models.Lock{}, err
	}

	a.mu.Lock()
	a.sessionConns[lock.ID] = conn
	a.mu.Unlock()

	// Reap a stale bookkeeping row left by a prior holder whose connection
	// died without releasing (spec §4.5 "reaped on next acquisition attempt
	// on the same key"). This is only sound for Exclusive mode: Exclusive
	// conflicts with every other holder, so our own successful acquire above
	// proves the primitive was free, and any remaining row for this resource
	// must be dead leftover bookkeeping. For Shared mode the primitive
	// legitimately allows concurrent holders (spec §4.5 "Shared allows other
	// Shared holders"), so a differing row may be a live second holder, not
	// an orphan — leave it alone and let the cron-driven ReapExpired path
	// (which checks primitive freeness directly) clean up real orphans.
	if mode == enums.LockExclusive {
		if existing, held, err := a.store.GetLockByResource(ctx, tenantID, resourceType, resourceID); err == nil && held && existing.ID != lock.ID {
			_ = a.store.DeleteLock(ctx, tenantID, existing.ID)
		}
	}

	return lock, nil
}

func newLockRecord(tenantID ids.TenantID, resourceType, resourceID string, holder ids.AgentID, mode enums.LockMode, level enums.LockLevel, key int64) models.Lock {
	return models.Lock{
		ID:            ids.NewLockID(),
		TenantID:      tenantID,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		HolderAgentID: holder,
		Mode:          mode,
		Level:         level,
		AdvisoryKey:   key,
		AcquiredAt:    time.Now().UTC(),
	}
}

// Release releases a Session-level lock by id; only the holder may release
// it. Transaction-level locks have no explicit release (spec §4.5) and
// return Conflict if attempted here.
func (a *Arbiter) Release(ctx context.Context, tenantID ids.TenantID, lockID ids.LockID, holder ids.AgentID, resourceType, resourceID string) error {
	l, held, err := a.store.GetLockByResourceAndHolder(ctx, tenantID, resourceType, resourceID, holder)
	if err != nil {
		return err
	}
	if !held || l.ID != lockID {
		// holder doesn't own a row for this resource (or holds a different
		// lock ID); distinguish "nobody holds it" from "someone else does"
		// without assuming GetLockByResource's arbitrary pick is holder's row.
		if _, anyHeld, err := a.store.GetLockByResource(ctx, tenantID, resourceType, resourceID); err == nil && anyHeld {
			return caliberr.Conflict(caliberr.ReasonInvalidTransition, "lock %s is not held by %s", lockID.String(), holder.String())
		}
		return caliberr.NotFound("Lock", lockID.String())
	}
	if l.Level == enums.LockTransaction {
		return caliberr.Conflict(caliberr.ReasonInvalidTransition, "transaction-level locks release automatically at commit/rollback")
	}

	a.mu.Lock()
	conn, ok := a.sessionConns[lockID]
	delete(a.sessionConns, lockID)
	a.mu.Unlock()

	if ok {
		_, _ = store.ReleaseAdvisoryLockOn(ctx, conn, l.AdvisoryKey, l.Mode)
		conn.Release()
	}
	return a.store.DeleteLock(ctx, tenantID, lockID)
}

// Extend updates a lock's expires_at; only the holder may extend (spec §4.5).
func (a *Arbiter) Extend(ctx context.Context, tenantID ids.TenantID, resourceType, resourceID string, holder ids.AgentID, additional time.Duration) (models.Lock, error) {
	l, held, err := a.store.GetLockByResourceAndHolder(ctx, tenantID, resourceType, resourceID, holder)
	if err != nil {
		return models.Lock{}, err
	}
	if !held {
		if _, anyHeld, err := a.store.GetLockByResource(ctx, tenantID, resourceType, resourceID); err == nil && anyHeld {
			return models.Lock{}, caliberr.Conflict(caliberr.ReasonInvalidTransition, "lock %s/%s is not held by %s", resourceType, resourceID, holder.String())
		}
		return models.Lock{}, caliberr.NotFound("Lock", resourceType+"/"+resourceID)
	}

	expires := time.Now().UTC().Add(additional)
	if l.ExpiresAt != nil && l.ExpiresAt.After(expires) {
		expires = *l.ExpiresAt
	}
	l.ExpiresAt = &expires
	if err := a.store.DeleteLock(ctx, tenantID, l.ID); err != nil {
		return models.Lock{}, err
	}
	if err := a.store.CreateLock(ctx, l); err != nil {
		return models.Lock{}, err
	}
	return l, nil
}

// ReapExpired purges bookkeeping rows past their expiry and releases any
// pinned connection the arbiter itself still holds for them.
func (a *Arbiter) ReapExpired(ctx context.Context) ([]models.Lock, error) {
	reaped, err := a.store.ReapExpiredLocks(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	for _, l := range reaped {
		a.mu.Lock()
		conn, ok := a.sessionConns[l.ID]
		delete(a.sessionConns, l.ID)
		a.mu.Unlock()

		if ok {
			_, _ = store.ReleaseAdvisoryLockOn(ctx, conn, l.AdvisoryKey, l.Mode)
			conn.Release()
		} else if l.Level == enums.LockSession {
			// No pinned connection in this process (e.g. after a restart);
			// try-locking from a pool connection tells us whether the
			// primitive is actually free. If so it was already orphaned by
			// the original holder's connection closing; release it back on
			// the same connection, in the same mode.
			if conn, err := a.store.Pool().Acquire(ctx); err == nil {
				if acquired, _ := store.TryAdvisoryLockOn(ctx, conn, l.AdvisoryKey, enums.LockSession, l.Mode); acquired {
					_, _ = store.ReleaseAdvisoryLockOn(ctx, conn, l.AdvisoryKey, l.Mode)
				}
				conn.Release()
			}
		}
	}
	return reaped, nil
}
