package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Heyoub/caliber-sub001/internal/assembler"
	"github.com/Heyoub/caliber-sub001/internal/ids"
)

// assembleRequest is POST /context/assemble's body: the caller names a
// trajectory, its currently-active scope, a token budget (8000 when
// omitted) and optional section priorities, which are taken from the
// request only; the bundle format comes from the active compiled pack
// when the caller omits it.
type assembleRequest struct {
	TrajectoryID string                   `json:"trajectory_id"`
	ScopeID      string                   `json:"scope_id"`
	BudgetTokens int                      `json:"budget_tokens"`
	Priorities   map[string]int32         `json:"priorities"`
	Format       assembler.ContextFormat  `json:"format"`
}

func (s *Server) assembleHandler(c *gin.Context) {
	actor, ok := s.resolveActor(c)
	if !ok {
		return
	}

	var req assembleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trajectoryID, err := ids.ParseTrajectoryID(req.TrajectoryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trajectory_id"})
		return
	}
	scopeID, err := ids.ParseScopeID(req.ScopeID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scope_id"})
		return
	}

	weights := make(map[assembler.Section]int32, len(req.Priorities))
	for k, v := range req.Priorities {
		weights[assembler.Section(k)] = v
	}

	budget := req.BudgetTokens
	if budget <= 0 {
		budget = 8000
	}

	// Persona sections and the default bundle format come from the active
	// compiled pack: the caller's agent_type selects the pack agent whose
	// prompt supplies them.
	var persona []assembler.PersonaSection
	format := req.Format
	if active := s.activePack(c, actor.TenantID); active != nil {
		if pa, ok := active.Agents[actor.AgentType]; ok {
			if pa.System != "" {
				persona = append(persona, assembler.PersonaSection{ID: "system", Content: pa.System})
			}
			if pa.PCP != "" {
				persona = append(persona, assembler.PersonaSection{ID: "pcp", Content: pa.PCP})
			}
		}
		if format == "" {
			if f, ok := active.ContextFormatFor(actor.AgentType); ok {
				format = assembler.ContextFormat(f)
			}
		}
	}

	bundleReq := assembler.Request{
		TenantID:      actor.TenantID,
		TrajectoryID:  trajectoryID,
		ActiveScopeID: scopeID,
		CallerAgent:   actor,
		BudgetTokens:  budget,
		Priorities:    assembler.SectionPriorities{Weights: weights},
		Persona:       persona,
		Format:        format,
	}

	bundle, err := s.deps.Assembler.Assemble(c.Request.Context(), bundleReq)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bundle)
}
