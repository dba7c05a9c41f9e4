package entities_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Heyoub/caliber-sub001/internal/access"
	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/dbtest"
	"github.com/Heyoub/caliber-sub001/internal/entities"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// newFixture wires a Service over a fresh store and registers an agent
// granted ScopeAll read/write over every memory type the tests below touch,
// mirroring the way a pack-declared agent profile would in production.
func newFixture(t *testing.T) (*entities.Service, models.Agent) {
	t.Helper()
	st := dbtest.NewStore(t)
	ctx := context.Background()
	svc := entities.New(st, access.New(st))

	tenant, err := svc.CreateTenant(ctx, "entities-test")
	require.NoError(t, err)

	allScope := func(kinds ...enums.EntityType) []models.MemoryAccessEntry {
		out := make([]models.MemoryAccessEntry, len(kinds))
		for i, k := range kinds {
			out[i] = models.MemoryAccessEntry{MemoryType: k, Scope: enums.ScopeAll}
		}
		return out
	}
	kinds := []enums.EntityType{
		enums.EntityTrajectory, enums.EntityScope, enums.EntityTurn,
		enums.EntityArtifact, enums.EntityNote,
	}

	agent, err := svc.RegisterAgent(ctx, tenant.ID, "tester", nil, nil, models.MemoryAccess{
		Read:  allScope(kinds...),
		Write: allScope(kinds...),
	})
	require.NoError(t, err)
	return svc, agent
}

func TestScopeLifecycle_TokensUsedAndTurnDeletionOnClose(t *testing.T) {
	svc, agent := newFixture(t)
	ctx := context.Background()

	traj, err := svc.CreateTrajectory(ctx, agent, "T1", "", nil)
	require.NoError(t, err)

	scope, err := svc.CreateScope(ctx, agent, traj.ID, "S1", "", 100, nil)
	require.NoError(t, err)

	artifact, err := svc.CreateArtifact(ctx, agent, traj.ID, entities.ArtifactInput{
		ScopeID:      scope.ID,
		ArtifactType: enums.ArtifactDecision,
		Name:         "decision-1",
		Content:      "use postgres advisory locks",
		TTL:          enums.TTL{Class: enums.TTLPersistent},
	})
	require.NoError(t, err)

	turnInputs := []struct {
		content string
		tokens  int64
	}{
		{"first", 30}, {"second", 40}, {"third", 20},
	}
	for _, tc := range turnInputs {
		_, err := svc.AppendTurn(ctx, agent, traj.ID, scope.ID, enums.RoleUser, tc.content, tc.tokens, nil, nil, nil)
		require.NoError(t, err)
	}

	turns, err := svc.ListTurns(ctx, agent, traj.ID, scope.ID)
	require.NoError(t, err)
	require.Len(t, turns, 3)

	var total int64
	for _, tn := range turns {
		total += tn.TokenCount
	}
	require.EqualValues(t, 90, total)

	require.NoError(t, svc.CloseScope(ctx, agent, traj.ID, scope.ID, nil))

	turns, err = svc.ListTurns(ctx, agent, traj.ID, scope.ID)
	require.NoError(t, err)
	require.Empty(t, turns)

	closed, err := svc.GetScope(ctx, agent, traj.ID, scope.ID)
	require.NoError(t, err)
	require.False(t, closed.IsActive)
	require.EqualValues(t, 90, closed.TokensUsed)

	// Artifacts of the closed scope remain addressable (spec §3.2, §8).
	survived, err := svc.GetArtifact(ctx, agent, traj.ID, artifact.ID)
	require.NoError(t, err)
	require.Equal(t, artifact.ID, survived.ID)
}

func TestAppendTurn_ExceedingTokenBudgetIsConflict(t *testing.T) {
	svc, agent := newFixture(t)
	ctx := context.Background()

	traj, err := svc.CreateTrajectory(ctx, agent, "T1", "", nil)
	require.NoError(t, err)
	scope, err := svc.CreateScope(ctx, agent, traj.ID, "S1", "", 1000, nil)
	require.NoError(t, err)

	_, err = svc.AppendTurn(ctx, agent, traj.ID, scope.ID, enums.RoleUser, "a", 10, nil, nil, nil)
	require.NoError(t, err)

	_, err = svc.AppendTurn(ctx, agent, traj.ID, scope.ID, enums.RoleUser, "b", 10000, nil, nil, nil)
	require.Error(t, err)
	require.True(t, caliberr.HasKind(err, caliberr.KindConflict))
}

func TestAppendTurn_DuplicateSequenceIsConflict(t *testing.T) {
	svc, agent := newFixture(t)
	ctx := context.Background()

	traj, err := svc.CreateTrajectory(ctx, agent, "T1", "", nil)
	require.NoError(t, err)
	scope, err := svc.CreateScope(ctx, agent, traj.ID, "S1", "", 1000, nil)
	require.NoError(t, err)

	seq := int64(0)
	_, err = svc.AppendTurn(ctx, agent, traj.ID, scope.ID, enums.RoleUser, "a", 10, nil, nil, &seq)
	require.NoError(t, err)

	_, err = svc.AppendTurn(ctx, agent, traj.ID, scope.ID, enums.RoleAssistant, "b", 10, nil, nil, &seq)
	require.Error(t, err)
	require.True(t, caliberr.HasKind(err, caliberr.KindConflict))
}

func TestCrossTenantRead_ReturnsNotFoundNotLeaked(t *testing.T) {
	svcA, agentA := newFixture(t)
	_, agentB := newFixture(t)
	ctx := context.Background()

	traj, err := svcA.CreateTrajectory(ctx, agentA, "T1", "", nil)
	require.NoError(t, err)

	// agentB belongs to a different tenant; its own Service instance has no
	// row for traj.ID under tenant B, so the get must come back NotFound
	// rather than returning tenant A's data.
	svcB, _ := newFixture(t)
	_, err = svcB.GetTrajectory(ctx, agentB, traj.ID)
	require.Error(t, err)
	require.True(t, caliberr.HasKind(err, caliberr.KindNotFound))
}

func TestRegion_CreateAndMembershipGatesCollaborativeWrite(t *testing.T) {
	st := dbtest.NewStore(t)
	ctx := context.Background()
	svc := entities.New(st, access.New(st))

	tenant, err := svc.CreateTenant(ctx, "region-test")
	require.NoError(t, err)

	owner, err := svc.RegisterAgent(ctx, tenant.ID, "owner", nil, nil, models.MemoryAccess{})
	require.NoError(t, err)

	region, err := svc.CreateRegion(ctx, owner, "shared-notes", enums.RegionCollaborative)
	require.NoError(t, err)
	require.Equal(t, enums.RegionCollaborative, region.RegionType)
	require.Contains(t, region.Writers, owner.ID)

	other, err := svc.RegisterAgent(ctx, tenant.ID, "other", nil, nil, models.MemoryAccess{})
	require.NoError(t, err)

	_, err = svc.UpdateRegionMembers(ctx, other, region.ID, region.Readers, region.Writers)
	require.Error(t, err)
	require.True(t, caliberr.HasKind(err, caliberr.KindPermissionDenied))

	updated, err := svc.UpdateRegionMembers(ctx, owner, region.ID,
		append(region.Readers, other.ID), append(region.Writers, other.ID))
	require.NoError(t, err)
	require.Contains(t, updated.Writers, other.ID)

	regions, err := svc.ListRegions(ctx, owner)
	require.NoError(t, err)
	require.Len(t, regions, 1)
}
