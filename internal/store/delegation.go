package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// CreateDelegation inserts a new Delegation proposal (spec §4.7 FSM initial
// Proposed state).
func (s *Store) CreateDelegation(ctx context.Context, d models.Delegation) error {
	_, err := s.querier(ctx).Exec(ctx, `
		INSERT INTO delegations (
			id, tenant_id, trajectory_id, from_agent_id, to_agent_id, state,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		d.ID.String(), d.TenantID.String(), d.TrajectoryID.String(),
		d.FromAgentID.String(), d.ToAgentID.String(), string(d.State),
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("create delegation: %w", err))
	}
	return nil
}

// GetDelegation fetches a Delegation by tenant and id.
func (s *Store) GetDelegation(ctx context.Context, tenantID ids.TenantID, id ids.DelegationID) (models.Delegation, error) {
	var d models.Delegation
	var idStr, tenantStr, trajStr, fromStr, toStr, state string
	var rejectReason *string
	var outcomeRaw []byte

	err := s.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, trajectory_id, from_agent_id, to_agent_id, state,
		       reject_reason, outcome, created_at, updated_at
		FROM delegations WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(),
	).Scan(&idStr, &tenantStr, &trajStr, &fromStr, &toStr, &state,
		&rejectReason, &outcomeRaw, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Delegation{}, s.classifyMiss(ctx, "delegations", "Delegation", id.String(), false)
	}
	if err != nil {
		return models.Delegation{}, caliberr.Storage(fmt.Errorf("get delegation: %w", err))
	}

	d.ID, err = ids.ParseDelegationID(idStr)
	if err != nil {
		return models.Delegation{}, caliberr.Internal("delegation row %s has malformed id: %v", idStr, err)
	}
	d.TenantID, err = ids.ParseTenantID(tenantStr)
	if err != nil {
		return models.Delegation{}, caliberr.Internal("delegation row %s has malformed tenant_id: %v", idStr, err)
	}
	d.TrajectoryID, err = ids.ParseTrajectoryID(trajStr)
	if err != nil {
		return models.Delegation{}, caliberr.Internal("delegation row %s has malformed trajectory_id: %v", idStr, err)
	}
	d.FromAgentID, err = ids.ParseAgentID(fromStr)
	if err != nil {
		return models.Delegation{}, caliberr.Internal("delegation row %s has malformed from_agent_id: %v", idStr, err)
	}
	d.ToAgentID, err = ids.ParseAgentID(toStr)
	if err != nil {
		return models.Delegation{}, caliberr.Internal("delegation row %s has malformed to_agent_id: %v", idStr, err)
	}
	d.State = enums.DelegationState(state)
	if rejectReason != nil {
		d.RejectReason = *rejectReason
	}
	if len(outcomeRaw) > 0 {
		var outcome models.DelegationOutcome
		if err := json.Unmarshal(outcomeRaw, &outcome); err != nil {
			return models.Delegation{}, caliberr.Internal("unmarshal delegation outcome: %v", err)
		}
		d.Outcome = &outcome
	}
	return d, nil
}

// TransitionDelegation moves a Delegation to a new state, optionally
// attaching a reject reason or terminal outcome. The WHERE clause enforces
// the caller-supplied expected prior state, turning a stale-state race into
// a Conflict rather than a silently lost transition (spec §4.7).
func (s *Store) TransitionDelegation(ctx context.Context, tenantID ids.TenantID, id ids.DelegationID, from, to enums.DelegationState, rejectReason string, outcome *models.DelegationOutcome, updatedAt time.Time) error {
	var outcomeRaw []byte
	if outcome != nil {
		raw, err := json.Marshal(outcome)
		if err != nil {
			return caliberr.Internal("marshal delegation outcome: %v", err)
		}
		outcomeRaw = raw
	}

	tag, err := s.querier(ctx).Exec(ctx, `
		UPDATE delegations
		SET state = $1, reject_reason = NULLIF($2, ''), outcome = COALESCE($3, outcome), updated_at = $4
		WHERE tenant_id = $5 AND id = $6 AND state = $7`,
		string(to), rejectReason, nullIfEmpty(outcomeRaw), updatedAt,
		tenantID.String(), id.String(), string(from),
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("transition delegation: %w", err))
	}
	if tag.RowsAffected() == 0 {
		if !s.tenantRowExists(ctx, "delegations", tenantID.String(), id.String()) {
			return s.classifyMiss(ctx, "delegations", "Delegation", id.String(), true)
		}
		return caliberr.Conflict(caliberr.ReasonInvalidTransition, "delegation %s is not in state %s", id.String(), from)
	}
	return nil
}
