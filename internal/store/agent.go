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

// CreateAgent registers a new Agent.
func (s *Store) CreateAgent(ctx context.Context, a models.Agent) error {
	caps, err := json.Marshal(a.Capabilities)
	if err != nil {
		return caliberr.Internal("marshal capabilities: %v", err)
	}
	access, err := json.Marshal(a.MemoryAccess)
	if err != nil {
		return caliberr.Internal("marshal memory_access: %v", err)
	}
	delegateTo, err := json.Marshal(a.CanDelegateTo)
	if err != nil {
		return caliberr.Internal("marshal can_delegate_to: %v", err)
	}

	var currentTrajectory, reportsTo any
	if a.CurrentTrajectoryID != nil {
		currentTrajectory = a.CurrentTrajectoryID.String()
	}
	if a.ReportsTo != nil {
		reportsTo = a.ReportsTo.String()
	}

	_, err = s.querier(ctx).Exec(ctx, `
		INSERT INTO agents (
			id, tenant_id, agent_type, capabilities, memory_access,
			can_delegate_to, status, current_trajectory_id, reports_to,
			last_heartbeat_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID.String(), a.TenantID.String(), a.AgentType, caps, access,
		delegateTo, string(a.Status), currentTrajectory, reportsTo,
		a.LastHeartbeatAt,
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("create agent: %w", err))
	}
	return nil
}

// GetAgent fetches an Agent by tenant and id, enforcing the tenant
// predicate at the query layer (spec §4.2) in addition to the RLS policy.
func (s *Store) GetAgent(ctx context.Context, tenantID ids.TenantID, id ids.AgentID) (models.Agent, error) {
	var a models.Agent
	var idStr, tenantStr, status string
	var caps, access, delegateTo []byte
	var currentTrajectory, reportsTo *string

	err := s.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, agent_type, capabilities, memory_access,
		       can_delegate_to, status, current_trajectory_id, reports_to,
		       last_heartbeat_at
		FROM agents WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(),
	).Scan(&idStr, &tenantStr, &a.AgentType, &caps, &access, &delegateTo,
		&status, &currentTrajectory, &reportsTo, &a.LastHeartbeatAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Agent{}, s.classifyMiss(ctx, "agents", "Agent", id.String(), false)
	}
	if err != nil {
		return models.Agent{}, caliberr.Storage(fmt.Errorf("get agent: %w", err))
	}

	if err := json.Unmarshal(caps, &a.Capabilities); err != nil {
		return models.Agent{}, caliberr.Internal("unmarshal capabilities: %v", err)
	}
	if err := json.Unmarshal(access, &a.MemoryAccess); err != nil {
		return models.Agent{}, caliberr.Internal("unmarshal memory_access: %v", err)
	}
	if err := json.Unmarshal(delegateTo, &a.CanDelegateTo); err != nil {
		return models.Agent{}, caliberr.Internal("unmarshal can_delegate_to: %v", err)
	}

	parsedID, err := ids.ParseAgentID(idStr)
	if err != nil {
		return models.Agent{}, caliberr.Internal("agent row %s has malformed id: %v", idStr, err)
	}
	parsedTenant, err := ids.ParseTenantID(tenantStr)
	if err != nil {
		return models.Agent{}, caliberr.Internal("agent row %s has malformed tenant_id: %v", idStr, err)
	}
	a.ID = parsedID
	a.TenantID = parsedTenant
	a.Status = enums.AgentStatus(status)

	if currentTrajectory != nil {
		tid, err := ids.ParseTrajectoryID(*currentTrajectory)
		if err != nil {
			return models.Agent{}, caliberr.Internal("agent row %s has malformed current_trajectory_id: %v", idStr, err)
		}
		a.CurrentTrajectoryID = &tid
	}
	if reportsTo != nil {
		rid, err := ids.ParseAgentID(*reportsTo)
		if err != nil {
			return models.Agent{}, caliberr.Internal("agent row %s has malformed reports_to: %v", idStr, err)
		}
		a.ReportsTo = &rid
	}

	return a, nil
}

// UpdateAgentStatus sets an Agent's status and refreshes its heartbeat
// timestamp (spec §4.5 "heartbeat updates status and last_heartbeat_at").
func (s *Store) UpdateAgentStatus(ctx context.Context, tenantID ids.TenantID, id ids.AgentID, status enums.AgentStatus, heartbeatAt time.Time) error {
	tag, err := s.querier(ctx).Exec(ctx, `
		UPDATE agents SET status = $1, last_heartbeat_at = $2
		WHERE tenant_id = $3 AND id = $4`,
		string(status), heartbeatAt, tenantID.String(), id.String(),
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("update agent status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMiss(ctx, "agents", "Agent", id.String(), true)
	}
	return nil
}

// SetAgentTrajectory sets or clears an Agent's current_trajectory_id, used
// by the Handoff FSM's Accepted transition to atomically move an agent onto
// (or off of) a trajectory (spec §4.7).
func (s *Store) SetAgentTrajectory(ctx context.Context, tenantID ids.TenantID, id ids.AgentID, trajectoryID *ids.TrajectoryID) error {
	var traj any
	if trajectoryID != nil {
		traj = trajectoryID.String()
	}
	tag, err := s.querier(ctx).Exec(ctx, `
		UPDATE agents SET current_trajectory_id = $1
		WHERE tenant_id = $2 AND id = $3`,
		traj, tenantID.String(), id.String(),
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("set agent trajectory: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMiss(ctx, "agents", "Agent", id.String(), true)
	}
	return nil
}

// ListAgentsByTenant returns every Agent registered under a tenant.
func (s *Store) ListAgentsByTenant(ctx context.Context, tenantID ids.TenantID) ([]models.Agent, error) {
	rows, err := s.querier(ctx).Query(ctx, `SELECT id FROM agents WHERE tenant_id = $1`, tenantID.String())
	if err != nil {
		return nil, caliberr.Storage(fmt.Errorf("list agents: %w", err))
	}
	defer rows.Close()

	var out []models.Agent
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, caliberr.Storage(fmt.Errorf("scan agent id: %w", err))
		}
		id, err := ids.ParseAgentID(idStr)
		if err != nil {
			return nil, caliberr.Internal("agent row %s has malformed id: %v", idStr, err)
		}
		agent, err := s.GetAgent(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, agent)
	}
	return out, rows.Err()
}
