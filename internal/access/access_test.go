package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

func TestCheck_ScopeAll_Grants(t *testing.T) {
	e := New(nil)
	trajID := ids.NewTrajectoryID()
	agent := models.Agent{
		ID: ids.NewAgentID(),
		MemoryAccess: models.MemoryAccess{
			Read: []models.MemoryAccessEntry{{MemoryType: enums.EntityArtifact, Scope: enums.ScopeAll}},
		},
	}

	err := e.Check(t.Context(), agent, Read, Target{EntityType: enums.EntityArtifact, TrajectoryID: trajID})
	require.NoError(t, err)
}

func TestCheck_NoMatchingEntry_Denied(t *testing.T) {
	e := New(nil)
	agent := models.Agent{ID: ids.NewAgentID()}

	err := e.Check(t.Context(), agent, Read, Target{EntityType: enums.EntityNote})
	require.Error(t, err)
	assert.True(t, caliberr.HasKind(err, caliberr.KindPermissionDenied))
}

func TestCheck_OwnTrajectory(t *testing.T) {
	e := New(nil)
	trajID := ids.NewTrajectoryID()
	otherTraj := ids.NewTrajectoryID()
	agent := models.Agent{
		ID:                  ids.NewAgentID(),
		CurrentTrajectoryID: &trajID,
		MemoryAccess: models.MemoryAccess{
			Write: []models.MemoryAccessEntry{{MemoryType: enums.EntityScope, Scope: enums.ScopeOwnTrajectory}},
		},
	}

	require.NoError(t, e.Check(t.Context(), agent, Write, Target{EntityType: enums.EntityScope, TrajectoryID: trajID}))

	err := e.Check(t.Context(), agent, Write, Target{EntityType: enums.EntityScope, TrajectoryID: otherTraj})
	require.Error(t, err)
	assert.True(t, caliberr.HasKind(err, caliberr.KindPermissionDenied))
}
