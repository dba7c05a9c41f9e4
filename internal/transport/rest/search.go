package rest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
)

// searchRequest is POST /search's body (spec §6.1: "search (POST /search
// with {query, entity_types, filters, limit})").
type searchRequest struct {
	Query       string   `json:"query"`
	EntityTypes []string `json:"entity_types"`
	Filters     struct {
		NoteType     string `json:"note_type"`
		ArtifactType string `json:"artifact_type"`
		TrajectoryID string `json:"trajectory_id"`
	} `json:"filters"`
	Limit int `json:"limit"`
}

type searchHit struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Content    string `json:"content"`
}

// searchHandler handles POST /search. It is a thin, substring-matching
// facade over the typed entity services, not a search engine — spec §1
// excludes "a general graph database" and full query-planning from core
// scope, and the entity services' access.Enforcer gate is still honored
// on every underlying read.
func (s *Server) searchHandler(c *gin.Context) {
	actor, ok := s.resolveActor(c)
	if !ok {
		return
	}

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}

	var hits []searchHit
	for _, et := range req.EntityTypes {
		switch et {
		case "note":
			noteType := enums.NoteType(req.Filters.NoteType)
			if !noteType.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "filters.note_type is required and must be valid when entity_types includes note"})
				return
			}
			notes, err := s.deps.Entities.ListNotesByType(c.Request.Context(), actor, noteType)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			for _, n := range notes {
				if req.Query == "" || strings.Contains(strings.ToLower(n.Content), strings.ToLower(req.Query)) {
					hits = append(hits, searchHit{EntityType: "note", EntityID: n.ID.String(), Content: n.Content})
				}
			}
		case "artifact":
			artifactType := enums.ArtifactType(req.Filters.ArtifactType)
			if !artifactType.IsValid() || req.Filters.TrajectoryID == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "filters.artifact_type and filters.trajectory_id are required when entity_types includes artifact"})
				return
			}
			trajectoryID, err := ids.ParseTrajectoryID(req.Filters.TrajectoryID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filters.trajectory_id"})
				return
			}
			artifacts, err := s.deps.Entities.ListArtifactsByType(c.Request.Context(), actor, trajectoryID, artifactType)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			for _, a := range artifacts {
				if req.Query == "" || strings.Contains(strings.ToLower(a.Content), strings.ToLower(req.Query)) {
					hits = append(hits, searchHit{EntityType: "artifact", EntityID: a.ID.String(), Content: a.Content})
				}
			}
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "entity_types must be a subset of [note, artifact]"})
			return
		}
		if len(hits) >= req.Limit {
			break
		}
	}

	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	c.JSON(http.StatusOK, gin.H{"hits": hits, "count": len(hits)})
}
