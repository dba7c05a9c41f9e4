package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// NextTurnSequence returns the next sequence number for a Scope, read
// inside the caller's transaction so the insert that follows cannot race
// against a concurrent Turn append (the (scope_id, sequence) UNIQUE index
// turns a lost race into a Conflict instead of silent corruption).
func (s *Store) NextTurnSequence(ctx context.Context, scopeID ids.ScopeID) (int64, error) {
	var max *int64
	err := s.querier(ctx).QueryRow(ctx,
		`SELECT max(sequence) FROM turns WHERE scope_id = $1`, scopeID.String(),
	).Scan(&max)
	if err != nil {
		return 0, caliberr.Storage(fmt.Errorf("next turn sequence: %w", err))
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

// CreateTurn inserts a new Turn row.
func (s *Store) CreateTurn(ctx context.Context, t models.Turn) error {
	toolCalls, err := json.Marshal(t.ToolCalls)
	if err != nil {
		return caliberr.Internal("marshal tool_calls: %v", err)
	}
	toolResults, err := json.Marshal(t.ToolResults)
	if err != nil {
		return caliberr.Internal("marshal tool_results: %v", err)
	}

	_, err = s.querier(ctx).Exec(ctx, `
		INSERT INTO turns (
			id, tenant_id, scope_id, sequence, role, content, token_count,
			tool_calls, tool_results, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID.String(), t.TenantID.String(), t.ScopeID.String(), t.Sequence,
		string(t.Role), t.Content, t.TokenCount, toolCalls, toolResults, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return caliberr.Conflict(caliberr.ReasonUniqueViolation, "turn sequence %d already exists in scope %s", t.Sequence, t.ScopeID.String())
		}
		return caliberr.Storage(fmt.Errorf("create turn: %w", err))
	}
	return nil
}

// ListTurnsByScope returns every Turn in a Scope ordered by sequence, the
// order context assembly replays a conversation in (spec §4.8).
func (s *Store) ListTurnsByScope(ctx context.Context, tenantID ids.TenantID, scopeID ids.ScopeID) ([]models.Turn, error) {
	rows, err := s.querier(ctx).Query(ctx, `
		SELECT id, sequence, role, content, token_count, tool_calls, tool_results, created_at
		FROM turns WHERE tenant_id = $1 AND scope_id = $2 ORDER BY sequence ASC`,
		tenantID.String(), scopeID.String(),
	)
	if err != nil {
		return nil, caliberr.Storage(fmt.Errorf("list turns: %w", err))
	}
	defer rows.Close()

	var out []models.Turn
	for rows.Next() {
		var turn models.Turn
		var idStr, role string
		var toolCalls, toolResults []byte
		if err := rows.Scan(&idStr, &turn.Sequence, &role, &turn.Content, &turn.TokenCount, &toolCalls, &toolResults, &turn.CreatedAt); err != nil {
			return nil, caliberr.Storage(fmt.Errorf("scan turn: %w", err))
		}
		id, err := ids.ParseTurnID(idStr)
		if err != nil {
			return nil, caliberr.Internal("turn row %s has malformed id: %v", idStr, err)
		}
		turn.ID = id
		turn.TenantID = tenantID
		turn.ScopeID = scopeID
		turn.Role = enums.TurnRole(role)
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &turn.ToolCalls); err != nil {
				return nil, caliberr.Internal("unmarshal tool_calls: %v", err)
			}
		}
		if len(toolResults) > 0 {
			if err := json.Unmarshal(toolResults, &turn.ToolResults); err != nil {
				return nil, caliberr.Internal("unmarshal tool_results: %v", err)
			}
		}
		out = append(out, turn)
	}
	return out, rows.Err()
}
