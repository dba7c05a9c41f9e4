package entities

import (
	"context"
	"time"

	"github.com/Heyoub/caliber-sub001/internal/access"
	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
	"github.com/Heyoub/caliber-sub001/internal/store"
)

// AppendTurn creates a new Turn in scopeID: the parent scope must exist and
// be active, the (scope_id, sequence) pair must be unique, and
// scope.tokens_used is incremented atomically with the insert (spec §4.3).
// Pushing tokens_used past token_budget is rejected with Conflict and the
// whole append rolls back. sequence is optional (spec §3.1 "sequence
// (integer ≥ 0, unique within scope)" leaves assignment to the caller): pass
// nil to have the next sequence computed automatically, or a specific value
// to let a caller-supplied, out-of-band sequence collide and surface
// Conflict via internal/store's (scope_id, sequence) unique index.
func (s *Service) AppendTurn(ctx context.Context, actor models.Agent, trajectoryID ids.TrajectoryID, scopeID ids.ScopeID, role enums.TurnRole, content string, tokenCount int64, toolCalls []models.ToolCall, toolResults []models.ToolResult, sequence *int64) (models.Turn, error) {
	if !role.IsValid() {
		return models.Turn{}, caliberr.Validation("role", "invalid turn role %q", role)
	}
	if sequence != nil && *sequence < 0 {
		return models.Turn{}, caliberr.Validation("sequence", "sequence must be >= 0")
	}
	if err := s.access.Check(ctx, actor, access.Write, access.Target{EntityType: enums.EntityTurn, TrajectoryID: trajectoryID}); err != nil {
		return models.Turn{}, err
	}

	var turn models.Turn
	err := s.store.WithTx(store.WithTenant(ctx, actor.TenantID), func(txCtx context.Context) error {
		scope, err := s.store.GetScope(txCtx, actor.TenantID, scopeID)
		if err != nil {
			return err
		}
		if !scope.IsActive {
			return caliberr.Conflict(caliberr.ReasonInvalidTransition, "scope %s is closed", scopeID.String())
		}

		seq := int64(0)
		if sequence != nil {
			seq = *sequence
		} else {
			seq, err = s.store.NextTurnSequence(txCtx, scopeID)
			if err != nil {
				return err
			}
		}

		turn = models.Turn{
			ID:          ids.NewTurnID(),
			TenantID:    actor.TenantID,
			ScopeID:     scopeID,
			Sequence:    seq,
			Role:        role,
			Content:     content,
			TokenCount:  tokenCount,
			ToolCalls:   toolCalls,
			ToolResults: toolResults,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.store.CreateTurn(txCtx, turn); err != nil {
			return err
		}

		total, err := s.store.IncrementScopeTokens(txCtx, actor.TenantID, scopeID, tokenCount)
		if err != nil {
			return err
		}
		if total > scope.TokenBudget {
			return caliberr.Conflict(caliberr.ReasonInvalidTransition, "scope %s token budget exceeded (%d > %d)", scopeID.String(), total, scope.TokenBudget)
		}
		return nil
	})
	if err != nil {
		return models.Turn{}, err
	}
	return turn, nil
}

// ListTurns returns every Turn in scopeID ordered by sequence.
func (s *Service) ListTurns(ctx context.Context, actor models.Agent, trajectoryID ids.TrajectoryID, scopeID ids.ScopeID) ([]models.Turn, error) {
	if err := s.access.Check(ctx, actor, access.Read, access.Target{EntityType: enums.EntityTurn, TrajectoryID: trajectoryID}); err != nil {
		return nil, err
	}
	return s.store.ListTurnsByScope(ctx, actor.TenantID, scopeID)
}
