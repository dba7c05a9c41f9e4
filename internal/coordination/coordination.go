// Package coordination implements CALIBER's Delegation and Handoff state
// machines (spec C7): state transitions validated against the exact
// enumerated set in spec §4.7, each transition serialized by an exclusive
// internal/locks acquisition on the delegation/handoff row (spec §5), and
// idempotent once a terminal state is reached.
//
// The status-as-a-guarded-field idiom generalizes
// pkg/services/session_service.go's single linear AlertSession status
// transition into two explicit FSMs, using internal/locks (C5) as the
// serialization primitive spec §5 calls for instead of tarsy's in-process
// mutex.
package coordination

import (
	"context"
	"time"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/locks"
	"github.com/Heyoub/caliber-sub001/internal/models"
	"github.com/Heyoub/caliber-sub001/internal/store"
)

// lockTimeout is the deadline Arbiter.Acquire runs under for a transition's
// row lock. Acquire makes a single non-blocking try; on contention the
// transition returns Conflict at once, and withRowLock does not retry.
const lockTimeout = 2 * time.Second

// Coordinator drives both FSMs over a Store, serialized through an Arbiter.
type Coordinator struct {
	store *store.Store
	locks *locks.Arbiter
}

// New builds a Coordinator.
func New(s *store.Store, arbiter *locks.Arbiter) *Coordinator {
	return &Coordinator{store: s, locks: arbiter}
}

func (c *Coordinator) withRowLock(ctx context.Context, tenantID ids.TenantID, resourceType, resourceID string, holder ids.AgentID, fn func(ctx context.Context) error) error {
	lock, err := c.locks.Acquire(ctx, tenantID, resourceType, resourceID, holder, enums.LockExclusive, enums.LockTransaction, lockTimeout)
	if err != nil {
		return err
	}
	// Transaction-level locks release automatically at commit/rollback
	// (spec §4.5); every caller runs withRowLock inside its own
	// store.WithTx, so the lock ends with that transaction and no explicit
	// release call belongs here.
	_ = lock
	return fn(ctx)
}

// ---- Delegation ----

// ProposeDelegation creates a Delegation in the Proposed state (spec §4.7).
func (c *Coordinator) ProposeDelegation(ctx context.Context, tenantID ids.TenantID, trajectoryID ids.TrajectoryID, from, to ids.AgentID) (models.Delegation, error) {
	now := time.Now().UTC()
	d := models.Delegation{
		ID:           ids.NewDelegationID(),
		TenantID:     tenantID,
		TrajectoryID: trajectoryID,
		FromAgentID:  from,
		ToAgentID:    to,
		State:        enums.DelegationProposed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.store.CreateDelegation(ctx, d); err != nil {
		return models.Delegation{}, err
	}
	return d, nil
}

// AcceptDelegation transitions Proposed → Accepted. Only the recipient
// agent may accept (spec §4.7 "accept requires the recipient agent").
func (c *Coordinator) AcceptDelegation(ctx context.Context, tenantID ids.TenantID, id ids.DelegationID, acceptor ids.AgentID) error {
	return c.store.WithTx(store.WithTenant(ctx, tenantID), func(txCtx context.Context) error {
		return c.withRowLock(txCtx, tenantID, "delegation", id.String(), acceptor, func(txCtx context.Context) error {
			d, err := c.store.GetDelegation(txCtx, tenantID, id)
			if err != nil {
				return err
			}
			if d.State == enums.DelegationAccepted {
				return nil // idempotent on the already-reached state
			}
			if d.ToAgentID != acceptor {
				return caliberr.PermissionDenied("delegation.accept.not_recipient")
			}
			if d.State != enums.DelegationProposed {
				return invalidDelegationTransition(d.State, enums.DelegationAccepted)
			}
			return c.store.TransitionDelegation(txCtx, tenantID, id, enums.DelegationProposed, enums.DelegationAccepted, "", nil, time.Now().UTC())
		})
	})
}

// RejectDelegation transitions Proposed → Rejected with a reason (spec
// §4.7's alternative terminal branch).
func (c *Coordinator) RejectDelegation(ctx context.Context, tenantID ids.TenantID, id ids.DelegationID, rejector ids.AgentID, reason string) error {
	return c.store.WithTx(store.WithTenant(ctx, tenantID), func(txCtx context.Context) error {
		return c.withRowLock(txCtx, tenantID, "delegation", id.String(), rejector, func(txCtx context.Context) error {
			d, err := c.store.GetDelegation(txCtx, tenantID, id)
			if err != nil {
				return err
			}
			if d.State == enums.DelegationRejected {
				return nil
			}
			if d.ToAgentID != rejector {
				return caliberr.PermissionDenied("delegation.reject.not_recipient")
			}
			if d.State != enums.DelegationProposed {
				return invalidDelegationTransition(d.State, enums.DelegationRejected)
			}
			return c.store.TransitionDelegation(txCtx, tenantID, id, enums.DelegationProposed, enums.DelegationRejected, reason, nil, time.Now().UTC())
		})
	})
}

// CompleteDelegation attaches a terminal outcome and, in the same
// transaction, folds the delegation's produced artifacts into the parent
// trajectory's outcome aggregate (spec §4.7 "is the only transition that
// may also update the parent trajectory's outcome aggregate"). Idempotent:
// a call against an already-Completed delegation returns success with no
// mutation (spec §8 scenario 3).
func (c *Coordinator) CompleteDelegation(ctx context.Context, tenantID ids.TenantID, id ids.DelegationID, completer ids.AgentID, outcome models.DelegationOutcome) error {
	return c.store.WithTx(store.WithTenant(ctx, tenantID), func(txCtx context.Context) error {
		return c.withRowLock(txCtx, tenantID, "delegation", id.String(), completer, func(txCtx context.Context) error {
			d, err := c.store.GetDelegation(txCtx, tenantID, id)
			if err != nil {
				return err
			}
			if d.State == enums.DelegationCompleted {
				return nil
			}
			if d.ToAgentID != completer {
				return caliberr.PermissionDenied("delegation.complete.not_recipient")
			}
			if d.State != enums.DelegationAccepted {
				return invalidDelegationTransition(d.State, enums.DelegationCompleted)
			}
			if err := c.store.TransitionDelegation(txCtx, tenantID, id, enums.DelegationAccepted, enums.DelegationCompleted, "", &outcome, time.Now().UTC()); err != nil {
				return err
			}
			return c.store.MergeTrajectoryOutcomeArtifacts(txCtx, tenantID, d.TrajectoryID, outcome.ArtifactIDs)
		})
	})
}

func invalidDelegationTransition(from, to enums.DelegationState) error {
	return caliberr.Conflict(caliberr.ReasonInvalidTransition, "delegation transition %s -> %s is not permitted", from, to)
}

// ---- Handoff ----

// ProposeHandoff creates a Handoff in the Proposed state, carrying an
// opaque context_snapshot the recipient can re-hydrate (spec §4.7).
func (c *Coordinator) ProposeHandoff(ctx context.Context, tenantID ids.TenantID, trajectoryID ids.TrajectoryID, from, to ids.AgentID, contextSnapshot []byte) (models.Handoff, error) {
	now := time.Now().UTC()
	h := models.Handoff{
		ID:              ids.NewHandoffID(),
		TenantID:        tenantID,
		TrajectoryID:    trajectoryID,
		FromAgentID:     from,
		ToAgentID:       to,
		State:           enums.HandoffProposed,
		ContextSnapshot: contextSnapshot,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.store.CreateHandoff(ctx, h); err != nil {
		return models.Handoff{}, err
	}
	return h, nil
}

// AcceptHandoff transitions Proposed → Accepted and, in the same
// transaction, reassigns the trajectory's agent_id to the recipient and
// clears the sender's current_trajectory_id (spec §4.7 "On Accepted, the
// trajectory's agent_id is atomically set to the recipient and the
// sender's current_trajectory_id is cleared").
func (c *Coordinator) AcceptHandoff(ctx context.Context, tenantID ids.TenantID, id ids.HandoffID, acceptor ids.AgentID) error {
	return c.store.WithTx(store.WithTenant(ctx, tenantID), func(txCtx context.Context) error {
		return c.withRowLock(txCtx, tenantID, "handoff", id.String(), acceptor, func(txCtx context.Context) error {
			h, err := c.store.GetHandoff(txCtx, tenantID, id)
			if err != nil {
				return err
			}
			if h.State == enums.HandoffAccepted {
				return nil
			}
			if h.ToAgentID != acceptor {
				return caliberr.PermissionDenied("handoff.accept.not_recipient")
			}
			if h.State != enums.HandoffProposed {
				return invalidHandoffTransition(h.State, enums.HandoffAccepted)
			}
			if err := c.store.TransitionHandoff(txCtx, tenantID, id, enums.HandoffProposed, enums.HandoffAccepted, time.Now().UTC()); err != nil {
				return err
			}
			if err := c.store.SetTrajectoryAgent(txCtx, tenantID, h.TrajectoryID, h.ToAgentID); err != nil {
				return err
			}
			return c.store.SetAgentTrajectory(txCtx, tenantID, h.FromAgentID, nil)
		})
	})
}

// CompleteHandoff transitions Accepted → Completed. Idempotent on the
// terminal state.
func (c *Coordinator) CompleteHandoff(ctx context.Context, tenantID ids.TenantID, id ids.HandoffID, completer ids.AgentID) error {
	return c.store.WithTx(store.WithTenant(ctx, tenantID), func(txCtx context.Context) error {
		return c.withRowLock(txCtx, tenantID, "handoff", id.String(), completer, func(txCtx context.Context) error {
			h, err := c.store.GetHandoff(txCtx, tenantID, id)
			if err != nil {
				return err
			}
			if h.State == enums.HandoffCompleted {
				return nil
			}
			if h.ToAgentID != completer {
				return caliberr.PermissionDenied("handoff.complete.not_recipient")
			}
			if h.State != enums.HandoffAccepted {
				return invalidHandoffTransition(h.State, enums.HandoffCompleted)
			}
			return c.store.TransitionHandoff(txCtx, tenantID, id, enums.HandoffAccepted, enums.HandoffCompleted, time.Now().UTC())
		})
	})
}

func invalidHandoffTransition(from, to enums.HandoffState) error {
	return caliberr.Conflict(caliberr.ReasonInvalidTransition, "handoff transition %s -> %s is not permitted", from, to)
}
