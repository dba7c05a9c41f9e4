package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrajectoryStatus_UnmarshalText(t *testing.T) {
	var s TrajectoryStatus
	require.NoError(t, s.UnmarshalText([]byte("Active")))
	assert.Equal(t, TrajectoryActive, s)

	err := s.UnmarshalText([]byte("bogus"))
	require.Error(t, err)
	var enumErr *ErrUnknownEnum
	require.ErrorAs(t, err, &enumErr)
	assert.Equal(t, "trajectory.status", enumErr.Field)
	assert.Equal(t, "bogus", enumErr.Value)
}

func TestMessagePriority_Rank(t *testing.T) {
	assert.Greater(t, PriorityUrgent.Rank(), PriorityHigh.Rank())
	assert.Greater(t, PriorityHigh.Rank(), PriorityNormal.Rank())
	assert.Greater(t, PriorityNormal.Rank(), PriorityLow.Rank())
}

func TestArtifactType_UnknownRejected(t *testing.T) {
	var a ArtifactType
	require.Error(t, a.UnmarshalText([]byte("NotAType")))
	require.NoError(t, a.UnmarshalText([]byte("CodePatch")))
	assert.Equal(t, ArtifactCodePatch, a)
}

func TestTTL_Validate(t *testing.T) {
	ttl := TTL{Class: TTLDuration, DurationMS: 0}
	require.Error(t, ttl.Validate())

	ttl = TTL{Class: TTLDuration, DurationMS: 500}
	require.NoError(t, ttl.Validate())

	ttl = TTL{Class: TTLPersistent}
	require.NoError(t, ttl.Validate())

	ttl = TTL{Class: "bogus"}
	require.Error(t, ttl.Validate())
}

func TestDelegationState_Terminal(t *testing.T) {
	assert.True(t, DelegationCompleted.IsTerminal())
	assert.True(t, DelegationRejected.IsTerminal())
	assert.False(t, DelegationAccepted.IsTerminal())
}
