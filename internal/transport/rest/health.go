package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health, mirroring cmd/tarsy/main.go's
// database-ping health check widened to the store Stats rollup
// (SPEC_FULL.md supplemented feature).
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.deps.Store.Health(reqCtx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": statusUnhealthy, "error": err.Error()})
		return
	}

	stats, err := s.deps.Store.Stats(reqCtx)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": statusHealthy, "stats_error": err.Error()})
		return
	}

	packVersion := ""
	if s.deps.Pack != nil {
		packVersion = s.deps.Pack.PackName + "@" + s.deps.Pack.PackVersion
	}

	c.JSON(http.StatusOK, gin.H{
		"status": statusHealthy,
		"stats": gin.H{
			"active_agents":     stats.ActiveAgents,
			"held_locks":        stats.HeldLocks,
			"pending_messages":  stats.PendingMessages,
			"tenant_violations": stats.TenantViolations,
		},
		"compiled_pack": packVersion,
	})
}
