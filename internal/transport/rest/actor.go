package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
	"github.com/Heyoub/caliber-sub001/internal/store"
)

// resolveActor reads the tenant and agent identifiers every operation
// requires from the transport (spec §6.1: "Each operation requires a
// tenant identifier and an authenticated agent identifier from the
// transport") and loads the full Agent record access.Enforcer needs.
// Auth token issuance/verification is out of scope (spec §1 Non-goals);
// this trusts the headers as already-authenticated, the way a sidecar or
// gateway in front of caliberd would populate them.
func (s *Server) resolveActor(c *gin.Context) (models.Agent, bool) {
	tenantRaw := c.GetHeader("X-Caliber-Tenant-Id")
	agentRaw := c.GetHeader("X-Caliber-Agent-Id")
	if tenantRaw == "" || agentRaw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-Caliber-Tenant-Id and X-Caliber-Agent-Id headers are required"})
		return models.Agent{}, false
	}

	tenantID, err := ids.ParseTenantID(tenantRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid X-Caliber-Tenant-Id"})
		return models.Agent{}, false
	}
	agentID, err := ids.ParseAgentID(agentRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid X-Caliber-Agent-Id"})
		return models.Agent{}, false
	}

	agent, err := s.deps.Entities.GetAgent(c.Request.Context(), tenantID, agentID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown agent for tenant"})
		return models.Agent{}, false
	}

	// Tag the request context with the resolved tenant so every transaction
	// opened further down (store.WithTx) sets the caliber.tenant_id session
	// variable and the row-level security policies actually engage.
	c.Request = c.Request.WithContext(store.WithTenant(c.Request.Context(), tenantID))

	return agent, true
}
