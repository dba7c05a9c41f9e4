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

// CreateNote inserts a new Note row.
func (s *Store) CreateNote(ctx context.Context, n models.Note) error {
	sourceTraj, err := json.Marshal(n.SourceTrajectoryIDs)
	if err != nil {
		return caliberr.Internal("marshal source_trajectory_ids: %v", err)
	}
	sourceArtifacts, err := json.Marshal(n.SourceArtifactIDs)
	if err != nil {
		return caliberr.Internal("marshal source_artifact_ids: %v", err)
	}
	ttl, err := json.Marshal(n.TTL)
	if err != nil {
		return caliberr.Internal("marshal ttl: %v", err)
	}
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return caliberr.Internal("marshal metadata: %v", err)
	}

	var vector []float32
	var modelID any
	var dimensions any
	if n.Embedding != nil {
		vector = n.Embedding.Vector
		modelID = n.Embedding.ModelID
		dimensions = n.Embedding.Dimensions
	}

	_, err = s.querier(ctx).Exec(ctx, `
		INSERT INTO notes (
			id, tenant_id, note_type, title, content, source_trajectory_ids,
			source_artifact_ids, embedding_vector, embedding_model_id,
			embedding_dimensions, ttl, metadata, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		n.ID.String(), n.TenantID.String(), string(n.NoteType), n.Title, n.Content,
		sourceTraj, sourceArtifacts, vector, modelID, dimensions, ttl, metadata, n.CreatedAt,
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("create note: %w", err))
	}
	return nil
}

// GetNote fetches a Note by tenant and id.
func (s *Store) GetNote(ctx context.Context, tenantID ids.TenantID, id ids.NoteID) (models.Note, error) {
	var n models.Note
	var idStr, tenantStr, noteType string
	var sourceTrajRaw, sourceArtifactRaw, ttlRaw, metadataRaw []byte
	var vector []float32
	var modelID *string
	var dimensions *int

	err := s.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, note_type, title, content, source_trajectory_ids,
		       source_artifact_ids, embedding_vector, embedding_model_id,
		       embedding_dimensions, access_count, accessed_at, ttl, metadata, created_at
		FROM notes WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(),
	).Scan(&idStr, &tenantStr, &noteType, &n.Title, &n.Content, &sourceTrajRaw,
		&sourceArtifactRaw, &vector, &modelID, &dimensions, &n.AccessCount,
		&n.AccessedAt, &ttlRaw, &metadataRaw, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Note{}, s.classifyMiss(ctx, "notes", "Note", id.String(), false)
	}
	if err != nil {
		return models.Note{}, caliberr.Storage(fmt.Errorf("get note: %w", err))
	}

	parsedID, err := ids.ParseNoteID(idStr)
	if err != nil {
		return models.Note{}, caliberr.Internal("note row %s has malformed id: %v", idStr, err)
	}
	parsedTenant, err := ids.ParseTenantID(tenantStr)
	if err != nil {
		return models.Note{}, caliberr.Internal("note row %s has malformed tenant_id: %v", idStr, err)
	}
	n.ID = parsedID
	n.TenantID = parsedTenant
	n.NoteType = enums.NoteType(noteType)

	if len(sourceTrajRaw) > 0 {
		if err := json.Unmarshal(sourceTrajRaw, &n.SourceTrajectoryIDs); err != nil {
			return models.Note{}, caliberr.Internal("unmarshal source_trajectory_ids: %v", err)
		}
	}
	if len(sourceArtifactRaw) > 0 {
		if err := json.Unmarshal(sourceArtifactRaw, &n.SourceArtifactIDs); err != nil {
			return models.Note{}, caliberr.Internal("unmarshal source_artifact_ids: %v", err)
		}
	}
	if len(ttlRaw) > 0 {
		if err := json.Unmarshal(ttlRaw, &n.TTL); err != nil {
			return models.Note{}, caliberr.Internal("unmarshal ttl: %v", err)
		}
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &n.Metadata); err != nil {
			return models.Note{}, caliberr.Internal("unmarshal metadata: %v", err)
		}
	}
	if modelID != nil {
		n.Embedding = &models.Embedding{
			Vector:  vector,
			ModelID: *modelID,
		}
		if dimensions != nil {
			n.Embedding.Dimensions = *dimensions
		}
	}
	return n, nil
}

// ListNotesByType returns every Note of a given type for a tenant, ordered
// newest-first (spec §4.8 candidate gathering).
func (s *Store) ListNotesByType(ctx context.Context, tenantID ids.TenantID, noteType enums.NoteType) ([]models.Note, error) {
	rows, err := s.querier(ctx).Query(ctx,
		`SELECT id FROM notes WHERE tenant_id = $1 AND note_type = $2 ORDER BY created_at DESC`,
		tenantID.String(), string(noteType),
	)
	if err != nil {
		return nil, caliberr.Storage(fmt.Errorf("list notes by type: %w", err))
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, caliberr.Storage(fmt.Errorf("scan note id: %w", err))
		}
		id, err := ids.ParseNoteID(idStr)
		if err != nil {
			return nil, caliberr.Internal("note row %s has malformed id: %v", idStr, err)
		}
		note, err := s.GetNote(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, note)
	}
	return out, rows.Err()
}

// DeleteNote removes a Note explicitly (spec §3.1 "deletion is explicit").
func (s *Store) DeleteNote(ctx context.Context, tenantID ids.TenantID, id ids.NoteID) error {
	tag, err := s.querier(ctx).Exec(ctx,
		`DELETE FROM notes WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(),
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("delete note: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMiss(ctx, "notes", "Note", id.String(), true)
	}
	return nil
}

// TouchNote bumps a Note's access_count and accessed_at, a best-effort
// stamp made by the entity service's note get and query reads (spec
// §4.3); a failed update is ignored.
func (s *Store) TouchNote(ctx context.Context, tenantID ids.TenantID, id ids.NoteID, at time.Time) {
	_, _ = s.querier(ctx).Exec(ctx, `
		UPDATE notes SET access_count = access_count + 1, accessed_at = $1
		WHERE tenant_id = $2 AND id = $3`,
		at, tenantID.String(), id.String(),
	)
}

// DeleteExpiredNotes removes Notes whose Duration-class TTL has lapsed,
// mirroring DeleteExpiredArtifacts; caliberd's reaper cron job does not
// call it either.
func (s *Store) DeleteExpiredNotes(ctx context.Context, before int64) (int64, error) {
	tag, err := s.querier(ctx).Exec(ctx, `
		DELETE FROM notes
		WHERE ttl->>'class' = 'Duration'
		  AND (EXTRACT(EPOCH FROM created_at) * 1000 + (ttl->>'duration_ms')::bigint) < $1`,
		before,
	)
	if err != nil {
		return 0, caliberr.Storage(fmt.Errorf("delete expired notes: %w", err))
	}
	return tag.RowsAffected(), nil
}
