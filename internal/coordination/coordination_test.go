package coordination_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Heyoub/caliber-sub001/internal/coordination"
	"github.com/Heyoub/caliber-sub001/internal/dbtest"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/locks"
	"github.com/Heyoub/caliber-sub001/internal/models"
	"github.com/Heyoub/caliber-sub001/internal/store"
)

// newFixture seeds a tenant and a root trajectory, the two rows every
// Delegation/Handoff transition's foreign keys require, and returns a
// ready-to-use Coordinator alongside them.
func newFixture(t *testing.T) (*coordination.Coordinator, *store.Store, ids.TenantID, ids.TrajectoryID) {
	t.Helper()
	st := dbtest.NewStore(t)
	ctx := context.Background()

	tenantID := ids.NewTenantID()
	require.NoError(t, st.CreateTenant(ctx, models.Tenant{ID: tenantID, Name: "coord-test", CreatedAt: time.Now().UTC()}))

	trajectoryID := ids.NewTrajectoryID()
	require.NoError(t, st.CreateTrajectory(ctx, models.Trajectory{
		ID:        trajectoryID,
		TenantID:  tenantID,
		Name:      "root",
		Status:    enums.TrajectoryActive,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}))

	return coordination.New(st, locks.New(st)), st, tenantID, trajectoryID
}

func TestDelegation_FullLifecycleAcceptThenComplete(t *testing.T) {
	c, _, tenantID, trajectoryID := newFixture(t)
	ctx := context.Background()
	from, to := ids.NewAgentID(), ids.NewAgentID()

	d, err := c.ProposeDelegation(ctx, tenantID, trajectoryID, from, to)
	require.NoError(t, err)
	require.Equal(t, enums.DelegationProposed, d.State)

	require.NoError(t, c.AcceptDelegation(ctx, tenantID, d.ID, to))
	// Idempotent re-accept.
	require.NoError(t, c.AcceptDelegation(ctx, tenantID, d.ID, to))

	err = c.CompleteDelegation(ctx, tenantID, d.ID, to, models.DelegationOutcome{Status: enums.OutcomeSuccess})
	require.NoError(t, err)
	// Idempotent re-complete.
	require.NoError(t, c.CompleteDelegation(ctx, tenantID, d.ID, to, models.DelegationOutcome{Status: enums.OutcomeSuccess}))
}

func TestDelegation_AcceptByNonRecipientIsDenied(t *testing.T) {
	c, _, tenantID, trajectoryID := newFixture(t)
	ctx := context.Background()
	from, to := ids.NewAgentID(), ids.NewAgentID()

	d, err := c.ProposeDelegation(ctx, tenantID, trajectoryID, from, to)
	require.NoError(t, err)

	err = c.AcceptDelegation(ctx, tenantID, d.ID, ids.NewAgentID())
	require.Error(t, err)
}

func TestDelegation_CompleteBeforeAcceptIsInvalidTransition(t *testing.T) {
	c, _, tenantID, trajectoryID := newFixture(t)
	ctx := context.Background()
	from, to := ids.NewAgentID(), ids.NewAgentID()

	d, err := c.ProposeDelegation(ctx, tenantID, trajectoryID, from, to)
	require.NoError(t, err)

	err = c.CompleteDelegation(ctx, tenantID, d.ID, to, models.DelegationOutcome{Status: enums.OutcomeSuccess})
	require.Error(t, err)
}

func TestDelegation_RejectIsTerminalAndIdempotent(t *testing.T) {
	c, _, tenantID, trajectoryID := newFixture(t)
	ctx := context.Background()
	from, to := ids.NewAgentID(), ids.NewAgentID()

	d, err := c.ProposeDelegation(ctx, tenantID, trajectoryID, from, to)
	require.NoError(t, err)

	require.NoError(t, c.RejectDelegation(ctx, tenantID, d.ID, to, "not applicable"))
	require.NoError(t, c.RejectDelegation(ctx, tenantID, d.ID, to, "not applicable"))

	err = c.AcceptDelegation(ctx, tenantID, d.ID, to)
	require.Error(t, err)
}

func TestHandoff_AcceptReassignsTrajectoryAndClearsSender(t *testing.T) {
	c, st, tenantID, trajectoryID := newFixture(t)
	ctx := context.Background()
	from, to := ids.NewAgentID(), ids.NewAgentID()

	require.NoError(t, st.CreateAgent(ctx, models.Agent{
		ID: from, TenantID: tenantID, AgentType: "planner",
		Status: enums.AgentActive, CurrentTrajectoryID: &trajectoryID,
		LastHeartbeatAt: time.Now().UTC(),
	}))
	require.NoError(t, st.CreateAgent(ctx, models.Agent{
		ID: to, TenantID: tenantID, AgentType: "executor",
		Status: enums.AgentIdle, LastHeartbeatAt: time.Now().UTC(),
	}))

	h, err := c.ProposeHandoff(ctx, tenantID, trajectoryID, from, to, []byte(`{"note":"carry on"}`))
	require.NoError(t, err)
	require.Equal(t, enums.HandoffProposed, h.State)

	require.NoError(t, c.AcceptHandoff(ctx, tenantID, h.ID, to))

	tr, err := st.GetTrajectory(ctx, tenantID, trajectoryID)
	require.NoError(t, err)
	require.NotNil(t, tr.AgentID)
	require.Equal(t, to, *tr.AgentID)

	sender, err := st.GetAgent(ctx, tenantID, from)
	require.NoError(t, err)
	require.Nil(t, sender.CurrentTrajectoryID)

	require.NoError(t, c.CompleteHandoff(ctx, tenantID, h.ID, to))
	require.NoError(t, c.CompleteHandoff(ctx, tenantID, h.ID, to))
}

func TestHandoff_AcceptByNonRecipientIsDenied(t *testing.T) {
	c, _, tenantID, trajectoryID := newFixture(t)
	ctx := context.Background()
	from, to := ids.NewAgentID(), ids.NewAgentID()

	h, err := c.ProposeHandoff(ctx, tenantID, trajectoryID, from, to, nil)
	require.NoError(t, err)

	err = c.AcceptHandoff(ctx, tenantID, h.ID, ids.NewAgentID())
	require.Error(t, err)
}
