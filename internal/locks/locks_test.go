package locks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/dbtest"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	a := DeriveKey("trajectory", "abc")
	b := DeriveKey("trajectory", "abc")
	assert.Equal(t, a, b)

	c := DeriveKey("trajectory", "xyz")
	assert.NotEqual(t, a, c)

	// The delimiter byte must keep "ab"+"c" distinct from "a"+"bc".
	d := DeriveKey("ab", "c")
	e := DeriveKey("a", "bc")
	assert.NotEqual(t, d, e)
}

func newTestArbiter(t *testing.T) (*Arbiter, ids.TenantID) {
	t.Helper()
	st := dbtest.NewStore(t)

	tenantID := ids.NewTenantID()
	require.NoError(t, st.CreateTenant(t.Context(), models.Tenant{ID: tenantID, Name: "locks-test", CreatedAt: time.Now().UTC()}))

	return New(st), tenantID
}

func TestArbiter_AcquireSession_ConflictsOnSecondExclusive(t *testing.T) {
	a, tenantID := newTestArbiter(t)
	ctx := t.Context()
	holder1 := ids.NewAgentID()
	holder2 := ids.NewAgentID()

	lock, err := a.Acquire(ctx, tenantID, "trajectory", "traj-1", holder1, enums.LockExclusive, enums.LockSession, time.Second)
	require.NoError(t, err)
	defer a.Release(ctx, tenantID, lock.ID, holder1, "trajectory", "traj-1")

	_, err = a.Acquire(ctx, tenantID, "trajectory", "traj-1", holder2, enums.LockExclusive, enums.LockSession, time.Second)
	require.Error(t, err)
	assert.True(t, caliberr.HasKind(err, caliberr.KindConflict))
}

func TestArbiter_AcquireSession_SharedHoldersCoexist(t *testing.T) {
	a, tenantID := newTestArbiter(t)
	ctx := t.Context()
	holder1 := ids.NewAgentID()
	holder2 := ids.NewAgentID()

	lock1, err := a.Acquire(ctx, tenantID, "scope", "scope-1", holder1, enums.LockShared, enums.LockSession, time.Second)
	require.NoError(t, err)

	// Postgres's native pg_try_advisory_lock_shared permits a second shared
	// holder on the same key; both bookkeeping rows must survive since
	// GetLockByResourceAndHolder disambiguates by holder, not just resource.
	lock2, err := a.Acquire(ctx, tenantID, "scope", "scope-1", holder2, enums.LockShared, enums.LockSession, time.Second)
	require.NoError(t, err)

	// holder1's row (and pinned connection) must not have been reaped by
	// holder2's acquire: releasing it must still succeed.
	require.NoError(t, a.Release(ctx, tenantID, lock1.ID, holder1, "scope", "scope-1"))
	require.NoError(t, a.Release(ctx, tenantID, lock2.ID, holder2, "scope", "scope-1"))
}

func TestArbiter_ReleaseByWrongHolder_Conflict(t *testing.T) {
	a, tenantID := newTestArbiter(t)
	ctx := t.Context()
	holder := ids.NewAgentID()
	other := ids.NewAgentID()

	lock, err := a.Acquire(ctx, tenantID, "turn", "turn-1", holder, enums.LockExclusive, enums.LockSession, time.Second)
	require.NoError(t, err)
	defer a.Release(ctx, tenantID, lock.ID, holder, "turn", "turn-1")

	err = a.Release(ctx, tenantID, lock.ID, other, "turn", "turn-1")
	require.Error(t, err)
	assert.True(t, caliberr.HasKind(err, caliberr.KindConflict))
}

func TestArbiter_ReleaseThenReacquire(t *testing.T) {
	a, tenantID := newTestArbiter(t)
	ctx := t.Context()
	holder := ids.NewAgentID()

	lock, err := a.Acquire(ctx, tenantID, "note", "note-1", holder, enums.LockExclusive, enums.LockSession, time.Second)
	require.NoError(t, err)
	require.NoError(t, a.Release(ctx, tenantID, lock.ID, holder, "note", "note-1"))

	lock2, err := a.Acquire(ctx, tenantID, "note", "note-1", holder, enums.LockExclusive, enums.LockSession, time.Second)
	require.NoError(t, err)
	require.NoError(t, a.Release(ctx, tenantID, lock2.ID, holder, "note", "note-1"))
}

func TestArbiter_Extend_ExtendsExpiry(t *testing.T) {
	a, tenantID := newTestArbiter(t)
	ctx := t.Context()
	holder := ids.NewAgentID()

	lock, err := a.Acquire(ctx, tenantID, "artifact", "artifact-1", holder, enums.LockExclusive, enums.LockSession, time.Second)
	require.NoError(t, err)
	defer a.Release(ctx, tenantID, lock.ID, holder, "artifact", "artifact-1")

	extended, err := a.Extend(ctx, tenantID, "artifact", "artifact-1", holder, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, extended.ExpiresAt)
	assert.True(t, extended.ExpiresAt.After(time.Now().UTC().Add(time.Minute)))
}

func TestArbiter_ReapExpired_ReleasesOrphans(t *testing.T) {
	a, tenantID := newTestArbiter(t)
	ctx := t.Context()
	holder := ids.NewAgentID()

	lock, err := a.Acquire(ctx, tenantID, "delegation", "deleg-1", holder, enums.LockExclusive, enums.LockSession, time.Second)
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	lock.ExpiresAt = &past
	require.NoError(t, a.store.DeleteLock(ctx, tenantID, lock.ID))
	require.NoError(t, a.store.CreateLock(ctx, lock))

	reaped, err := a.ReapExpired(ctx)
	require.NoError(t, err)
	require.Len(t, reaped, 1)
	assert.Equal(t, lock.ID, reaped[0].ID)

	// Once reaped, the same resource should be acquirable again.
	_, err = a.Acquire(ctx, tenantID, "delegation", "deleg-1", ids.NewAgentID(), enums.LockExclusive, enums.LockSession, time.Second)
	require.NoError(t, err)
}
