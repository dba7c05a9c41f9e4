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

// CreateScope opens a new token-budgeted context window inside trajectoryID.
func (s *Service) CreateScope(ctx context.Context, actor models.Agent, trajectoryID ids.TrajectoryID, name, purpose string, tokenBudget int64, parent *ids.ScopeID) (models.Scope, error) {
	if name == "" {
		return models.Scope{}, caliberr.Validation("name", "name is required")
	}
	if tokenBudget <= 0 {
		return models.Scope{}, caliberr.Validation("token_budget", "token_budget must be positive")
	}
	if err := s.access.Check(ctx, actor, access.Write, access.Target{EntityType: enums.EntityScope, TrajectoryID: trajectoryID}); err != nil {
		return models.Scope{}, err
	}

	sc := models.Scope{
		ID:            ids.NewScopeID(),
		TenantID:      actor.TenantID,
		TrajectoryID:  trajectoryID,
		Name:          name,
		Purpose:       purpose,
		TokenBudget:   tokenBudget,
		ParentScopeID: parent,
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateScope(ctx, sc); err != nil {
		return models.Scope{}, err
	}
	return sc, nil
}

// GetScope fetches a Scope, gated on read access over its owning trajectory.
func (s *Service) GetScope(ctx context.Context, actor models.Agent, trajectoryID ids.TrajectoryID, id ids.ScopeID) (models.Scope, error) {
	if err := s.access.Check(ctx, actor, access.Read, access.Target{EntityType: enums.EntityScope, TrajectoryID: trajectoryID}); err != nil {
		return models.Scope{}, err
	}
	return s.store.GetScope(ctx, actor.TenantID, id)
}

// CloseScope ends a Scope's lifetime: every Turn is deleted and the final
// checkpoint (if any) preserved in one transaction (spec §4.3 "Scope close:
// deletes all turns of the scope in one statement, sets is_active=false,
// records a final tokens_used. If a checkpoint is present, it is
// preserved.").
func (s *Service) CloseScope(ctx context.Context, actor models.Agent, trajectoryID ids.TrajectoryID, id ids.ScopeID, checkpoint *models.Checkpoint) error {
	if err := s.access.Check(ctx, actor, access.Write, access.Target{EntityType: enums.EntityScope, TrajectoryID: trajectoryID}); err != nil {
		return err
	}

	cp := models.Checkpoint{}
	if checkpoint != nil {
		cp = *checkpoint
	}

	return s.store.WithTx(store.WithTenant(ctx, actor.TenantID), func(txCtx context.Context) error {
		if err := s.store.DeleteTurnsForScope(txCtx, actor.TenantID, id); err != nil {
			return err
		}
		return s.store.CloseScope(txCtx, actor.TenantID, id, cp, time.Now().UTC())
	})
}
