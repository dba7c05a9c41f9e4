package entities

import (
	"context"
	"time"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// RegisterAgent creates a new Agent in Idle status. Agents are the callers
// of every other entity service method, so registration itself is
// unguarded — there is no acting agent yet to gate against.
func (s *Service) RegisterAgent(ctx context.Context, tenantID ids.TenantID, agentType string, capabilities, canDelegateTo []string, access models.MemoryAccess) (models.Agent, error) {
	if agentType == "" {
		return models.Agent{}, caliberr.Validation("agent_type", "agent_type is required")
	}

	a := models.Agent{
		ID:              ids.NewAgentID(),
		TenantID:        tenantID,
		AgentType:       agentType,
		Capabilities:    capabilities,
		MemoryAccess:    access,
		CanDelegateTo:   canDelegateTo,
		Status:          enums.AgentIdle,
		LastHeartbeatAt: time.Now().UTC(),
	}
	if err := s.store.CreateAgent(ctx, a); err != nil {
		return models.Agent{}, err
	}
	return a, nil
}

// GetAgent fetches an Agent by id.
func (s *Service) GetAgent(ctx context.Context, tenantID ids.TenantID, id ids.AgentID) (models.Agent, error) {
	return s.store.GetAgent(ctx, tenantID, id)
}

// ListAgents returns every Agent registered under a tenant.
func (s *Service) ListAgents(ctx context.Context, tenantID ids.TenantID) ([]models.Agent, error) {
	return s.store.ListAgentsByTenant(ctx, tenantID)
}

// Heartbeat updates an Agent's status and last_heartbeat_at (spec §4.5
// heartbeat semantics referenced by the Handoff/Delegation liveness check).
func (s *Service) Heartbeat(ctx context.Context, tenantID ids.TenantID, id ids.AgentID, status enums.AgentStatus) error {
	if !status.IsValid() {
		return caliberr.Validation("status", "invalid agent status %q", status)
	}
	return s.store.UpdateAgentStatus(ctx, tenantID, id, status, time.Now().UTC())
}
