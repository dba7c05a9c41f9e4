package caliberr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidation_Details(t *testing.T) {
	err := Validation("alert_data", "required")
	assert.Equal(t, KindValidation, err.Kind)
	assert.Equal(t, "alert_data", err.Details["field"])
}

func TestHasKind(t *testing.T) {
	err := NotFound("Trajectory", "abc")
	assert.True(t, HasKind(err, KindNotFound))
	assert.False(t, HasKind(err, KindConflict))
}

func TestIs_SentinelStyle(t *testing.T) {
	a := Conflict(ReasonInvalidTransition, "bad transition")
	b := Conflict(ReasonUniqueViolation, "dup")
	assert.True(t, errors.Is(a, b), "both are Conflict kind regardless of reason")

	c := Timeout("acquire")
	assert.False(t, errors.Is(a, c))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("pq: connection reset")
	err := Storage(cause)
	assert.ErrorIs(t, err, cause)
}

func TestLockPoisoned_WrapsPanic(t *testing.T) {
	cause := errors.New("runtime error: invalid memory address")
	err := LockPoisoned(cause)
	require.Equal(t, KindLockPoisoned, err.Kind)
	assert.Contains(t, err.Error(), "poisoned")
}
