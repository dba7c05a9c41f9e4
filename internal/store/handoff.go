package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// CreateHandoff inserts a new Handoff proposal (spec §4.7).
func (s *Store) CreateHandoff(ctx context.Context, h models.Handoff) error {
	_, err := s.querier(ctx).Exec(ctx, `
		INSERT INTO handoffs (
			id, tenant_id, trajectory_id, from_agent_id, to_agent_id, state,
			context_snapshot, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		h.ID.String(), h.TenantID.String(), h.TrajectoryID.String(),
		h.FromAgentID.String(), h.ToAgentID.String(), string(h.State),
		h.ContextSnapshot, h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("create handoff: %w", err))
	}
	return nil
}

// GetHandoff fetches a Handoff by tenant and id.
func (s *Store) GetHandoff(ctx context.Context, tenantID ids.TenantID, id ids.HandoffID) (models.Handoff, error) {
	var h models.Handoff
	var idStr, tenantStr, trajStr, fromStr, toStr, state string

	err := s.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, trajectory_id, from_agent_id, to_agent_id, state,
		       context_snapshot, created_at, updated_at
		FROM handoffs WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(),
	).Scan(&idStr, &tenantStr, &trajStr, &fromStr, &toStr, &state,
		&h.ContextSnapshot, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Handoff{}, s.classifyMiss(ctx, "handoffs", "Handoff", id.String(), false)
	}
	if err != nil {
		return models.Handoff{}, caliberr.Storage(fmt.Errorf("get handoff: %w", err))
	}

	var perr error
	h.ID, perr = ids.ParseHandoffID(idStr)
	if perr != nil {
		return models.Handoff{}, caliberr.Internal("handoff row %s has malformed id: %v", idStr, perr)
	}
	h.TenantID, perr = ids.ParseTenantID(tenantStr)
	if perr != nil {
		return models.Handoff{}, caliberr.Internal("handoff row %s has malformed tenant_id: %v", idStr, perr)
	}
	h.TrajectoryID, perr = ids.ParseTrajectoryID(trajStr)
	if perr != nil {
		return models.Handoff{}, caliberr.Internal("handoff row %s has malformed trajectory_id: %v", idStr, perr)
	}
	h.FromAgentID, perr = ids.ParseAgentID(fromStr)
	if perr != nil {
		return models.Handoff{}, caliberr.Internal("handoff row %s has malformed from_agent_id: %v", idStr, perr)
	}
	h.ToAgentID, perr = ids.ParseAgentID(toStr)
	if perr != nil {
		return models.Handoff{}, caliberr.Internal("handoff row %s has malformed to_agent_id: %v", idStr, perr)
	}
	h.State = enums.HandoffState(state)
	return h, nil
}

// TransitionHandoff moves a Handoff to a new state, enforcing the expected
// prior state the same way TransitionDelegation does.
func (s *Store) TransitionHandoff(ctx context.Context, tenantID ids.TenantID, id ids.HandoffID, from, to enums.HandoffState, updatedAt time.Time) error {
	tag, err := s.querier(ctx).Exec(ctx, `
		UPDATE handoffs SET state = $1, updated_at = $2
		WHERE tenant_id = $3 AND id = $4 AND state = $5`,
		string(to), updatedAt, tenantID.String(), id.String(), string(from),
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("transition handoff: %w", err))
	}
	if tag.RowsAffected() == 0 {
		if !s.tenantRowExists(ctx, "handoffs", tenantID.String(), id.String()) {
			return s.classifyMiss(ctx, "handoffs", "Handoff", id.String(), true)
		}
		return caliberr.Conflict(caliberr.ReasonInvalidTransition, "handoff %s is not in state %s", id.String(), from)
	}
	return nil
}
