package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

func seedTenant(t *testing.T, st *Store, name string) ids.TenantID {
	t.Helper()
	tenantID := ids.NewTenantID()
	require.NoError(t, st.CreateTenant(context.Background(), models.Tenant{
		ID: tenantID, Name: name, CreatedAt: time.Now().UTC(),
	}))
	return tenantID
}

func seedTrajectory(t *testing.T, st *Store, tenantID ids.TenantID) models.Trajectory {
	t.Helper()
	now := time.Now().UTC()
	tr := models.Trajectory{
		ID:        ids.NewTrajectoryID(),
		TenantID:  tenantID,
		Name:      "traj",
		Status:    enums.TrajectoryActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.CreateTrajectory(context.Background(), tr))
	return tr
}

func seedScope(t *testing.T, st *Store, tenantID ids.TenantID, trajectoryID ids.TrajectoryID, budget int64) models.Scope {
	t.Helper()
	sc := models.Scope{
		ID:           ids.NewScopeID(),
		TenantID:     tenantID,
		TrajectoryID: trajectoryID,
		Name:         "scope",
		TokenBudget:  budget,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.CreateScope(context.Background(), sc))
	return sc
}

func TestRunMigrations_Idempotent(t *testing.T) {
	st, dsn := newTestStore(t)
	ctx := context.Background()

	// A second run against the already-migrated database is a no-op, not an
	// error (spec: "Schema bootstrap is idempotent").
	require.NoError(t, runMigrations(ctx, configFromDSN(dsn, "caliber_test")))

	var version int64
	require.NoError(t, st.pool.QueryRow(ctx,
		`SELECT max(version) FROM caliber_schema_version`).Scan(&version))
	assert.Equal(t, int64(1), version)
}

func TestCrossTenantReads_ReturnEmptyNotLeak(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	owner := seedTenant(t, st, "owner")
	other := seedTenant(t, st, "other")
	tr := seedTrajectory(t, st, owner)
	sc := seedScope(t, st, owner, tr.ID, 1000)

	art := models.Artifact{
		ID:           ids.NewArtifactID(),
		TenantID:     owner,
		TrajectoryID: tr.ID,
		ScopeID:      sc.ID,
		ArtifactType: enums.ArtifactFact,
		Name:         "fact-1",
		Content:      "the sky is blue",
		Provenance:   models.Provenance{ExtractionMethod: enums.ExtractionExplicit},
		TTL:          enums.TTL{Class: enums.TTLPersistent},
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.CreateArtifact(ctx, art))

	// The owner sees it; the other tenant gets NotFound, indistinguishable
	// from the artifact never existing (spec §8 scenario 6).
	got, err := st.GetArtifact(ctx, owner, art.ID)
	require.NoError(t, err)
	assert.Equal(t, "the sky is blue", got.Content)

	_, err = st.GetArtifact(ctx, other, art.ID)
	assert.True(t, caliberr.HasKind(err, caliberr.KindNotFound))
	assert.EqualValues(t, 1, st.TenantViolations(), "cross-tenant read bumps the warning counter")

	list, err := st.ListArtifactsByType(ctx, other, tr.ID, enums.ArtifactFact)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCrossTenantWrites_ReturnPermissionDenied(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	owner := seedTenant(t, st, "owner")
	other := seedTenant(t, st, "other")
	tr := seedTrajectory(t, st, owner)
	sc := seedScope(t, st, owner, tr.ID, 1000)

	art := models.Artifact{
		ID:           ids.NewArtifactID(),
		TenantID:     owner,
		TrajectoryID: tr.ID,
		ScopeID:      sc.ID,
		ArtifactType: enums.ArtifactFact,
		Name:         "fact-1",
		Content:      "owned elsewhere",
		Provenance:   models.Provenance{ExtractionMethod: enums.ExtractionExplicit},
		TTL:          enums.TTL{Class: enums.TTLPersistent},
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.CreateArtifact(ctx, art))

	before := st.TenantViolations()

	// Deleting another tenant's artifact, mutating its trajectory, and
	// closing its scope are all cross-tenant writes: PermissionDenied, not
	// NotFound (spec §8 "cross-tenant writes return PermissionDenied").
	err := st.DeleteArtifact(ctx, other, art.ID)
	assert.True(t, caliberr.HasKind(err, caliberr.KindPermissionDenied))

	err = st.UpdateTrajectoryStatus(ctx, other, tr.ID, enums.TrajectoryCompleted, nil, time.Now().UTC())
	assert.True(t, caliberr.HasKind(err, caliberr.KindPermissionDenied))

	err = st.CloseScope(ctx, other, sc.ID, models.Checkpoint{}, time.Now().UTC())
	assert.True(t, caliberr.HasKind(err, caliberr.KindPermissionDenied))

	assert.Greater(t, st.TenantViolations(), before, "cross-tenant writes bump the warning counter")

	// A genuinely absent row stays NotFound and does not move the counter.
	counted := st.TenantViolations()
	err = st.DeleteArtifact(ctx, other, ids.NewArtifactID())
	assert.True(t, caliberr.HasKind(err, caliberr.KindNotFound))
	assert.Equal(t, counted, st.TenantViolations())
}

func TestWithTx_SetsTenantSessionVariable(t *testing.T) {
	st, _ := newTestStore(t)
	tenantID := seedTenant(t, st, "rls")

	err := st.WithTx(WithTenant(context.Background(), tenantID), func(txCtx context.Context) error {
		var current string
		if err := st.querier(txCtx).QueryRow(txCtx,
			`SELECT current_setting('caliber.tenant_id', true)`).Scan(&current); err != nil {
			return err
		}
		assert.Equal(t, tenantID.String(), current)
		return nil
	})
	require.NoError(t, err)

	// Outside any transaction the setting is unset again (set_config used
	// is_local=true), so pooled connections do not leak a tenant across
	// requests.
	var after *string
	require.NoError(t, st.pool.QueryRow(context.Background(),
		`SELECT nullif(current_setting('caliber.tenant_id', true), '')`).Scan(&after))
	assert.Nil(t, after)
}

func TestCreateTurn_DuplicateSequenceIsConflict(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	tenantID := seedTenant(t, st, "turns")
	tr := seedTrajectory(t, st, tenantID)
	sc := seedScope(t, st, tenantID, tr.ID, 1000)

	turn := models.Turn{
		ID: ids.NewTurnID(), TenantID: tenantID, ScopeID: sc.ID,
		Sequence: 0, Role: enums.RoleUser, Content: "hi", TokenCount: 3,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateTurn(ctx, turn))

	dup := turn
	dup.ID = ids.NewTurnID()
	err := st.CreateTurn(ctx, dup)
	require.Error(t, err)
	assert.True(t, caliberr.HasKind(err, caliberr.KindConflict))
}

func TestWithTx_PanicRollsBackAndSurfacesLockPoisoned(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	tenantID := seedTenant(t, st, "poison")
	tr := seedTrajectory(t, st, tenantID)

	scopeID := ids.NewScopeID()
	err := st.WithTx(ctx, func(txCtx context.Context) error {
		sc := models.Scope{
			ID: scopeID, TenantID: tenantID, TrajectoryID: tr.ID,
			Name: "doomed", TokenBudget: 10, IsActive: true, CreatedAt: time.Now().UTC(),
		}
		if err := st.CreateScope(txCtx, sc); err != nil {
			return err
		}
		panic("holder died mid-transaction")
	})
	require.Error(t, err)
	assert.True(t, caliberr.HasKind(err, caliberr.KindLockPoisoned))

	// No partial state: the insert inside the poisoned transaction is gone.
	_, err = st.GetScope(ctx, tenantID, scopeID)
	assert.True(t, caliberr.HasKind(err, caliberr.KindNotFound))
}

func TestCloseScope_IsConflictWhenAlreadyClosed(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	tenantID := seedTenant(t, st, "close")
	tr := seedTrajectory(t, st, tenantID)
	sc := seedScope(t, st, tenantID, tr.ID, 100)

	require.NoError(t, st.CloseScope(ctx, tenantID, sc.ID, models.Checkpoint{}, time.Now().UTC()))

	err := st.CloseScope(ctx, tenantID, sc.ID, models.Checkpoint{}, time.Now().UTC())
	require.Error(t, err)
	assert.True(t, caliberr.HasKind(err, caliberr.KindConflict))
}
