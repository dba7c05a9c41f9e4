package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/pack"
)

// packSourceRequest is the body of POST /pack/validate, /pack/parse, and
// /pack/compose: the pack's files keyed by pack-relative path, cal.toml
// included.
type packSourceRequest struct {
	Files map[string]string `json:"files"`
}

func (s *Server) bindPackSource(c *gin.Context) (pack.Source, bool) {
	var req packSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if _, ok := req.Files["cal.toml"]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "files must include cal.toml"})
		return nil, false
	}
	return pack.Source(req.Files), true
}

// packValidateHandler handles POST /pack/validate: run the analysis
// stages and report diagnostics without persisting anything.
func (s *Server) packValidateHandler(c *gin.Context) {
	if _, ok := s.resolveActor(c); !ok {
		return
	}
	src, ok := s.bindPackSource(c)
	if !ok {
		return
	}

	diags, err := s.deps.PackOps.Validate(src)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": !hasErrorDiag(diags), "diagnostics": diagsJSON(diags)})
}

// packParseHandler handles POST /pack/parse: return the lowered IR
// summary alongside the diagnostics.
func (s *Server) packParseHandler(c *gin.Context) {
	if _, ok := s.resolveActor(c); !ok {
		return
	}
	src, ok := s.bindPackSource(c)
	if !ok {
		return
	}

	ir, diags, err := s.deps.PackOps.Parse(src)
	if err != nil {
		writeError(c, err)
		return
	}
	if hasErrorDiag(diags) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"diagnostics": diagsJSON(diags)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ir": ir, "diagnostics": diagsJSON(diags)})
}

// packComposeHandler handles POST /pack/compose: compile and persist a
// versioned caliber_dsl_config row. The composed config is inert until
// /pack/deploy activates it.
func (s *Server) packComposeHandler(c *gin.Context) {
	actor, ok := s.resolveActor(c)
	if !ok {
		return
	}
	src, ok := s.bindPackSource(c)
	if !ok {
		return
	}

	cfg, result, err := s.deps.PackOps.Compose(c.Request.Context(), actor.TenantID, src)
	if err != nil {
		writeError(c, err)
		return
	}
	if result.Compiled == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"diagnostics": diagsJSON(result.Diagnostics)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"config_id":       cfg.ID.String(),
		"version":         cfg.Version,
		"pack_source_ref": result.PackSourceRef,
		"diagnostics":     diagsJSON(result.Diagnostics),
	})
}

// packDeployHandler handles POST /pack/deploy: activate a composed
// config, retiring the previously active one.
func (s *Server) packDeployHandler(c *gin.Context) {
	actor, ok := s.resolveActor(c)
	if !ok {
		return
	}

	var req struct {
		ConfigID string `json:"config_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	configID, err := ids.ParseConfigID(req.ConfigID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config_id"})
		return
	}

	if err := s.deps.PackOps.Deploy(c.Request.Context(), actor.TenantID, configID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config_id": configID.String(), "active": true})
}

// packInspectHandler handles GET /pack/inspect, returning a summary of the
// active compiled config (spec §6.1): its pack_source_ref, agent names,
// tool ids, routing strategy and provider hints, and whether an embedder
// and a summarizer are registered. Toolsets are not listed and the full
// compiled config is not returned. The caller's deployed config takes precedence;
// the process-wide pack compiled at startup is the fallback for tenants
// that have not deployed one of their own.
func (s *Server) packInspectHandler(c *gin.Context) {
	actor, ok := s.resolveActor(c)
	if !ok {
		return
	}

	active := s.activePack(c, actor.TenantID)
	if active == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no compiled pack is active"})
		return
	}

	agentNames := make([]string, 0, len(active.Agents))
	for name := range active.Agents {
		agentNames = append(agentNames, name)
	}
	toolIDs := make([]string, 0, len(active.Tools))
	for id := range active.Tools {
		toolIDs = append(toolIDs, id)
	}

	c.JSON(http.StatusOK, gin.H{
		"pack_source_ref": active.PackName + "@" + active.PackVersion,
		"agents":          agentNames,
		"tools":           toolIDs,
		"routing": gin.H{
			"strategy":  active.Routing.Strategy,
			"providers": active.Routing.Providers,
		},
		"effective_providers": gin.H{
			"embedder_configured":   s.deps.Providers != nil && s.deps.Providers.HasEmbedder(),
			"summarizer_configured": s.deps.Providers != nil && s.deps.Providers.HasSummarizer(),
		},
	})
}

// activePack resolves the compiled pack a handler should read: the
// tenant's deployed config when one exists, else the process-wide pack
// compiled at startup.
func (s *Server) activePack(c *gin.Context, tenantID ids.TenantID) *pack.CompiledConfig {
	if s.deps.PackOps != nil {
		if cfg, err := s.deps.PackOps.ActiveConfig(c.Request.Context(), tenantID); err == nil {
			return cfg
		}
	}
	return s.deps.Pack
}

func hasErrorDiag(diags []pack.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == pack.SeverityError {
			return true
		}
	}
	return false
}

type diagJSON struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

func diagsJSON(diags []pack.Diagnostic) []diagJSON {
	out := make([]diagJSON, 0, len(diags))
	for _, d := range diags {
		out = append(out, diagJSON{File: d.File, Line: d.Line, Col: d.Col, Severity: string(d.Severity), Message: d.Message})
	}
	return out
}
