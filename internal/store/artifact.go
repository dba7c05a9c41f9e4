package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// CreateArtifact inserts a new Artifact row.
func (s *Store) CreateArtifact(ctx context.Context, a models.Artifact) error {
	provenance, err := json.Marshal(a.Provenance)
	if err != nil {
		return caliberr.Internal("marshal provenance: %v", err)
	}
	ttl, err := json.Marshal(a.TTL)
	if err != nil {
		return caliberr.Internal("marshal ttl: %v", err)
	}
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return caliberr.Internal("marshal metadata: %v", err)
	}

	_, err = s.querier(ctx).Exec(ctx, `
		INSERT INTO artifacts (
			id, tenant_id, trajectory_id, scope_id, artifact_type, name,
			content, provenance, ttl, metadata, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID.String(), a.TenantID.String(), a.TrajectoryID.String(), a.ScopeID.String(),
		string(a.ArtifactType), a.Name, a.Content, provenance, ttl, metadata, a.CreatedAt,
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("create artifact: %w", err))
	}
	return nil
}

// GetArtifact fetches an Artifact by tenant and id.
func (s *Store) GetArtifact(ctx context.Context, tenantID ids.TenantID, id ids.ArtifactID) (models.Artifact, error) {
	var a models.Artifact
	var idStr, tenantStr, trajStr, scopeStr, artifactType string
	var provenanceRaw, ttlRaw, metadataRaw []byte

	err := s.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, trajectory_id, scope_id, artifact_type, name,
		       content, provenance, ttl, metadata, created_at
		FROM artifacts WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(),
	).Scan(&idStr, &tenantStr, &trajStr, &scopeStr, &artifactType, &a.Name,
		&a.Content, &provenanceRaw, &ttlRaw, &metadataRaw, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Artifact{}, s.classifyMiss(ctx, "artifacts", "Artifact", id.String(), false)
	}
	if err != nil {
		return models.Artifact{}, caliberr.Storage(fmt.Errorf("get artifact: %w", err))
	}

	parsedID, err := ids.ParseArtifactID(idStr)
	if err != nil {
		return models.Artifact{}, caliberr.Internal("artifact row %s has malformed id: %v", idStr, err)
	}
	parsedTenant, err := ids.ParseTenantID(tenantStr)
	if err != nil {
		return models.Artifact{}, caliberr.Internal("artifact row %s has malformed tenant_id: %v", idStr, err)
	}
	parsedTraj, err := ids.ParseTrajectoryID(trajStr)
	if err != nil {
		return models.Artifact{}, caliberr.Internal("artifact row %s has malformed trajectory_id: %v", idStr, err)
	}
	parsedScope, err := ids.ParseScopeID(scopeStr)
	if err != nil {
		return models.Artifact{}, caliberr.Internal("artifact row %s has malformed scope_id: %v", idStr, err)
	}
	a.ID = parsedID
	a.TenantID = parsedTenant
	a.TrajectoryID = parsedTraj
	a.ScopeID = parsedScope
	a.ArtifactType = enums.ArtifactType(artifactType)

	if err := json.Unmarshal(provenanceRaw, &a.Provenance); err != nil {
		return models.Artifact{}, caliberr.Internal("unmarshal provenance: %v", err)
	}
	if err := json.Unmarshal(ttlRaw, &a.TTL); err != nil {
		return models.Artifact{}, caliberr.Internal("unmarshal ttl: %v", err)
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &a.Metadata); err != nil {
			return models.Artifact{}, caliberr.Internal("unmarshal metadata: %v", err)
		}
	}
	return a, nil
}

// ListArtifactsByType returns every Artifact of a given type within a
// trajectory, the filter spec §4.8's candidate gathering stage uses most.
func (s *Store) ListArtifactsByType(ctx context.Context, tenantID ids.TenantID, trajectoryID ids.TrajectoryID, artifactType enums.ArtifactType) ([]models.Artifact, error) {
	rows, err := s.querier(ctx).Query(ctx, `
		SELECT id FROM artifacts
		WHERE tenant_id = $1 AND trajectory_id = $2 AND artifact_type = $3
		ORDER BY created_at DESC`,
		tenantID.String(), trajectoryID.String(), string(artifactType),
	)
	if err != nil {
		return nil, caliberr.Storage(fmt.Errorf("list artifacts by type: %w", err))
	}
	defer rows.Close()

	var out []models.Artifact
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, caliberr.Storage(fmt.Errorf("scan artifact id: %w", err))
		}
		id, err := ids.ParseArtifactID(idStr)
		if err != nil {
			return nil, caliberr.Internal("artifact row %s has malformed id: %v", idStr, err)
		}
		artifact, err := s.GetArtifact(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, artifact)
	}
	return out, rows.Err()
}

// DeleteArtifact removes an Artifact explicitly; deletion is never implicit
// (spec §3.1 "deletion is explicit and requires write permission" — the
// permission check itself happens one layer up in internal/entities via
// internal/access).
func (s *Store) DeleteArtifact(ctx context.Context, tenantID ids.TenantID, id ids.ArtifactID) error {
	tag, err := s.querier(ctx).Exec(ctx,
		`DELETE FROM artifacts WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(),
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("delete artifact: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMiss(ctx, "artifacts", "Artifact", id.String(), true)
	}
	return nil
}

// DeleteExpiredArtifacts removes Artifacts whose Duration-class TTL has
// lapsed before `before` (epoch milliseconds). caliberd's reaper cron job
// does not call it.
func (s *Store) DeleteExpiredArtifacts(ctx context.Context, before int64) (int64, error) {
	tag, err := s.querier(ctx).Exec(ctx, `
		DELETE FROM artifacts
		WHERE ttl->>'class' = 'Duration'
		  AND (EXTRACT(EPOCH FROM created_at) * 1000 + (ttl->>'duration_ms')::bigint) < $1`,
		before,
	)
	if err != nil {
		return 0, caliberr.Storage(fmt.Errorf("delete expired artifacts: %w", err))
	}
	return tag.RowsAffected(), nil
}
