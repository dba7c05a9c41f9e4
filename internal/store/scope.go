package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// CreateScope inserts a new Scope row.
func (s *Store) CreateScope(ctx context.Context, sc models.Scope) error {
	var parent any
	if sc.ParentScopeID != nil {
		parent = sc.ParentScopeID.String()
	}

	_, err := s.querier(ctx).Exec(ctx, `
		INSERT INTO scopes (
			id, tenant_id, trajectory_id, name, purpose, token_budget,
			tokens_used, parent_scope_id, is_active, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		sc.ID.String(), sc.TenantID.String(), sc.TrajectoryID.String(), sc.Name,
		sc.Purpose, sc.TokenBudget, sc.TokensUsed, parent, sc.IsActive, sc.CreatedAt,
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("create scope: %w", err))
	}
	return nil
}

// GetScope fetches a Scope by tenant and id.
func (s *Store) GetScope(ctx context.Context, tenantID ids.TenantID, id ids.ScopeID) (models.Scope, error) {
	var sc models.Scope
	var idStr, tenantStr, trajStr string
	var parent *string
	var checkpointRaw []byte

	err := s.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, trajectory_id, name, purpose, token_budget,
		       tokens_used, parent_scope_id, is_active, checkpoint, created_at, closed_at
		FROM scopes WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(),
	).Scan(&idStr, &tenantStr, &trajStr, &sc.Name, &sc.Purpose, &sc.TokenBudget,
		&sc.TokensUsed, &parent, &sc.IsActive, &checkpointRaw, &sc.CreatedAt, &sc.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Scope{}, s.classifyMiss(ctx, "scopes", "Scope", id.String(), false)
	}
	if err != nil {
		return models.Scope{}, caliberr.Storage(fmt.Errorf("get scope: %w", err))
	}

	parsedID, err := ids.ParseScopeID(idStr)
	if err != nil {
		return models.Scope{}, caliberr.Internal("scope row %s has malformed id: %v", idStr, err)
	}
	parsedTenant, err := ids.ParseTenantID(tenantStr)
	if err != nil {
		return models.Scope{}, caliberr.Internal("scope row %s has malformed tenant_id: %v", idStr, err)
	}
	parsedTraj, err := ids.ParseTrajectoryID(trajStr)
	if err != nil {
		return models.Scope{}, caliberr.Internal("scope row %s has malformed trajectory_id: %v", idStr, err)
	}
	sc.ID = parsedID
	sc.TenantID = parsedTenant
	sc.TrajectoryID = parsedTraj
	if parent != nil {
		pid, err := ids.ParseScopeID(*parent)
		if err != nil {
			return models.Scope{}, caliberr.Internal("scope row %s has malformed parent_scope_id: %v", idStr, err)
		}
		sc.ParentScopeID = &pid
	}
	if len(checkpointRaw) > 0 {
		var cp models.Checkpoint
		if err := json.Unmarshal(checkpointRaw, &cp); err != nil {
			return models.Scope{}, caliberr.Internal("unmarshal scope checkpoint: %v", err)
		}
		sc.Checkpoint = &cp
	}
	return sc, nil
}

// IncrementScopeTokens atomically adds delta to tokens_used and reports the
// resulting total, so callers can enforce the token budget invariant (spec
// §4.3 "writes past token_budget are rejected with Conflict") without a
// separate read-modify-write race.
func (s *Store) IncrementScopeTokens(ctx context.Context, tenantID ids.TenantID, id ids.ScopeID, delta int64) (int64, error) {
	var total int64
	err := s.querier(ctx).QueryRow(ctx, `
		UPDATE scopes SET tokens_used = tokens_used + $1
		WHERE tenant_id = $2 AND id = $3 AND is_active
		RETURNING tokens_used`,
		delta, tenantID.String(), id.String(),
	).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, s.scopeWriteMiss(ctx, tenantID, id)
	}
	if err != nil {
		return 0, caliberr.Storage(fmt.Errorf("increment scope tokens: %w", err))
	}
	return total, nil
}

// CloseScope marks a Scope inactive and stores its final checkpoint. Closed
// scopes are immutable; resuming one means creating a new Scope with
// parent_scope_id pointing back at it (spec §9 decision on checkpoint
// retention).
func (s *Store) CloseScope(ctx context.Context, tenantID ids.TenantID, id ids.ScopeID, checkpoint models.Checkpoint, closedAt time.Time) error {
	raw, err := json.Marshal(checkpoint)
	if err != nil {
		return caliberr.Internal("marshal scope checkpoint: %v", err)
	}

	tag, err := s.querier(ctx).Exec(ctx, `
		UPDATE scopes SET is_active = false, checkpoint = $1, closed_at = $2
		WHERE tenant_id = $3 AND id = $4 AND is_active`,
		raw, closedAt, tenantID.String(), id.String(),
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("close scope: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return s.scopeWriteMiss(ctx, tenantID, id)
	}
	return nil
}

// scopeWriteMiss resolves a zero-row scope write: a same-tenant row that
// exists but failed the is_active predicate is a Conflict (the scope is
// already closed); otherwise classifyMiss decides between NotFound and a
// cross-tenant PermissionDenied.
func (s *Store) scopeWriteMiss(ctx context.Context, tenantID ids.TenantID, id ids.ScopeID) error {
	if s.tenantRowExists(ctx, "scopes", tenantID.String(), id.String()) {
		return caliberr.Conflict(caliberr.ReasonInvalidTransition, "scope %s is already closed", id.String())
	}
	return s.classifyMiss(ctx, "scopes", "Scope", id.String(), true)
}

// DeleteTurnsForScope removes every Turn belonging to a Scope, used when a
// Scope closes (spec §3.1 "Turn ... deleted when its owning Scope is
// closed"). Kept as an explicit call so callers control whether deletion
// happens before or after the checkpoint snapshot is taken.
func (s *Store) DeleteTurnsForScope(ctx context.Context, tenantID ids.TenantID, scopeID ids.ScopeID) error {
	_, err := s.querier(ctx).Exec(ctx,
		`DELETE FROM turns WHERE tenant_id = $1 AND scope_id = $2`,
		tenantID.String(), scopeID.String(),
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("delete turns for scope: %w", err))
	}
	return nil
}
