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

// CreateTrajectory inserts a new Trajectory row.
func (s *Store) CreateTrajectory(ctx context.Context, tr models.Trajectory) error {
	metadata, err := json.Marshal(tr.Metadata)
	if err != nil {
		return caliberr.Internal("marshal trajectory metadata: %v", err)
	}

	var parent, agent any
	if tr.ParentTrajectoryID != nil {
		parent = tr.ParentTrajectoryID.String()
	}
	if tr.AgentID != nil {
		agent = tr.AgentID.String()
	}

	_, err = s.querier(ctx).Exec(ctx, `
		INSERT INTO trajectories (
			id, tenant_id, name, description, parent_trajectory_id, agent_id,
			status, metadata, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		tr.ID.String(), tr.TenantID.String(), tr.Name, tr.Description, parent,
		agent, string(tr.Status), metadata, tr.CreatedAt, tr.UpdatedAt,
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("create trajectory: %w", err))
	}
	return nil
}

// GetTrajectory fetches a Trajectory by tenant and id.
func (s *Store) GetTrajectory(ctx context.Context, tenantID ids.TenantID, id ids.TrajectoryID) (models.Trajectory, error) {
	var tr models.Trajectory
	var idStr, tenantStr, status string
	var description *string
	var parent, agent *string
	var outcomeRaw, metadataRaw []byte

	err := s.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, name, description, parent_trajectory_id, agent_id,
		       status, outcome, metadata, created_at, updated_at
		FROM trajectories WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(),
	).Scan(&idStr, &tenantStr, &tr.Name, &description, &parent, &agent,
		&status, &outcomeRaw, &metadataRaw, &tr.CreatedAt, &tr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Trajectory{}, s.classifyMiss(ctx, "trajectories", "Trajectory", id.String(), false)
	}
	if err != nil {
		return models.Trajectory{}, caliberr.Storage(fmt.Errorf("get trajectory: %w", err))
	}

	parsedID, err := ids.ParseTrajectoryID(idStr)
	if err != nil {
		return models.Trajectory{}, caliberr.Internal("trajectory row %s has malformed id: %v", idStr, err)
	}
	parsedTenant, err := ids.ParseTenantID(tenantStr)
	if err != nil {
		return models.Trajectory{}, caliberr.Internal("trajectory row %s has malformed tenant_id: %v", idStr, err)
	}
	tr.ID = parsedID
	tr.TenantID = parsedTenant
	tr.Status = enums.TrajectoryStatus(status)
	if description != nil {
		tr.Description = *description
	}
	if parent != nil {
		pid, err := ids.ParseTrajectoryID(*parent)
		if err != nil {
			return models.Trajectory{}, caliberr.Internal("trajectory row %s has malformed parent_trajectory_id: %v", idStr, err)
		}
		tr.ParentTrajectoryID = &pid
	}
	if agent != nil {
		aid, err := ids.ParseAgentID(*agent)
		if err != nil {
			return models.Trajectory{}, caliberr.Internal("trajectory row %s has malformed agent_id: %v", idStr, err)
		}
		tr.AgentID = &aid
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &tr.Metadata); err != nil {
			return models.Trajectory{}, caliberr.Internal("unmarshal trajectory metadata: %v", err)
		}
	}
	if len(outcomeRaw) > 0 {
		var outcome models.TrajectoryOutcome
		if err := json.Unmarshal(outcomeRaw, &outcome); err != nil {
			return models.Trajectory{}, caliberr.Internal("unmarshal trajectory outcome: %v", err)
		}
		tr.Outcome = &outcome
	}
	return tr, nil
}

// UpdateTrajectoryStatus transitions a Trajectory's status, and optionally
// records its terminal Outcome (spec §4.3 "complete/fail transition").
func (s *Store) UpdateTrajectoryStatus(ctx context.Context, tenantID ids.TenantID, id ids.TrajectoryID, status enums.TrajectoryStatus, outcome *models.TrajectoryOutcome, updatedAt time.Time) error {
	var outcomeRaw []byte
	if outcome != nil {
		raw, err := json.Marshal(outcome)
		if err != nil {
			return caliberr.Internal("marshal trajectory outcome: %v", err)
		}
		outcomeRaw = raw
	}

	tag, err := s.querier(ctx).Exec(ctx, `
		UPDATE trajectories SET status = $1, outcome = COALESCE($2, outcome), updated_at = $3
		WHERE tenant_id = $4 AND id = $5`,
		string(status), nullIfEmpty(outcomeRaw), updatedAt, tenantID.String(), id.String(),
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("update trajectory status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMiss(ctx, "trajectories", "Trajectory", id.String(), true)
	}
	return nil
}

// SetTrajectoryAgent reassigns a Trajectory's owning agent, used by the
// Handoff FSM's Accepted transition (spec §4.7).
func (s *Store) SetTrajectoryAgent(ctx context.Context, tenantID ids.TenantID, id ids.TrajectoryID, agentID ids.AgentID) error {
	tag, err := s.querier(ctx).Exec(ctx, `
		UPDATE trajectories SET agent_id = $1, updated_at = $2
		WHERE tenant_id = $3 AND id = $4`,
		agentID.String(), time.Now().UTC(), tenantID.String(), id.String(),
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("set trajectory agent: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMiss(ctx, "trajectories", "Trajectory", id.String(), true)
	}
	return nil
}

// MergeTrajectoryOutcomeArtifacts appends artifactIDs to a Trajectory's
// outcome.produced_artifacts, creating a minimal Outcome if none exists
// yet. Used by the Delegation FSM's complete transition, the only
// transition permitted to update the parent trajectory's outcome aggregate
// (spec §4.7).
func (s *Store) MergeTrajectoryOutcomeArtifacts(ctx context.Context, tenantID ids.TenantID, id ids.TrajectoryID, artifactIDs []ids.ArtifactID) error {
	if len(artifactIDs) == 0 {
		return nil
	}
	tr, err := s.GetTrajectory(ctx, tenantID, id)
	if err != nil {
		return err
	}
	outcome := tr.Outcome
	if outcome == nil {
		outcome = &models.TrajectoryOutcome{Status: enums.OutcomePartial}
	}
	seen := make(map[ids.ArtifactID]bool, len(outcome.ProducedArtifacts))
	for _, a := range outcome.ProducedArtifacts {
		seen[a] = true
	}
	for _, a := range artifactIDs {
		if !seen[a] {
			outcome.ProducedArtifacts = append(outcome.ProducedArtifacts, a)
			seen[a] = true
		}
	}
	return s.UpdateTrajectoryStatus(ctx, tenantID, id, tr.Status, outcome, time.Now().UTC())
}

// DeleteTrajectory removes a Trajectory; ON DELETE CASCADE on scopes (and
// transitively turns) handles the cascade spec §3.2 requires.
func (s *Store) DeleteTrajectory(ctx context.Context, tenantID ids.TenantID, id ids.TrajectoryID) error {
	tag, err := s.querier(ctx).Exec(ctx,
		`DELETE FROM trajectories WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(),
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("delete trajectory: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMiss(ctx, "trajectories", "Trajectory", id.String(), true)
	}
	return nil
}

// ListChildTrajectories returns every Trajectory whose parent_trajectory_id
// is parentID, the decomposition edge spec §4.3 describes.
func (s *Store) ListChildTrajectories(ctx context.Context, tenantID ids.TenantID, parentID ids.TrajectoryID) ([]models.Trajectory, error) {
	rows, err := s.querier(ctx).Query(ctx,
		`SELECT id FROM trajectories WHERE tenant_id = $1 AND parent_trajectory_id = $2`,
		tenantID.String(), parentID.String(),
	)
	if err != nil {
		return nil, caliberr.Storage(fmt.Errorf("list child trajectories: %w", err))
	}
	defer rows.Close()

	var out []models.Trajectory
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, caliberr.Storage(fmt.Errorf("scan trajectory id: %w", err))
		}
		id, err := ids.ParseTrajectoryID(idStr)
		if err != nil {
			return nil, caliberr.Internal("trajectory row %s has malformed id: %v", idStr, err)
		}
		tr, err := s.GetTrajectory(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func nullIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
