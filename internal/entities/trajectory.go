package entities

import (
	"context"
	"time"

	"github.com/Heyoub/caliber-sub001/internal/access"
	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// CreateTrajectory starts a new task container, optionally decomposed from
// a parent (spec §4.3 "decomposition edge"). The acting agent is assigned
// as owner and must hold write access over Trajectory at the parent's scope
// (or ScopeAll, for a root trajectory with no parent).
func (s *Service) CreateTrajectory(ctx context.Context, actor models.Agent, name, description string, parent *ids.TrajectoryID) (models.Trajectory, error) {
	if name == "" {
		return models.Trajectory{}, caliberr.Validation("name", "name is required")
	}

	target := access.Target{EntityType: enums.EntityTrajectory}
	if parent != nil {
		target.TrajectoryID = *parent
	}
	if err := s.access.Check(ctx, actor, access.Write, target); err != nil {
		return models.Trajectory{}, err
	}

	now := time.Now().UTC()
	agentID := actor.ID
	tr := models.Trajectory{
		ID:                 ids.NewTrajectoryID(),
		TenantID:           actor.TenantID,
		Name:               name,
		Description:        description,
		ParentTrajectoryID: parent,
		AgentID:            &agentID,
		Status:             enums.TrajectoryActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateTrajectory(ctx, tr); err != nil {
		return models.Trajectory{}, err
	}
	return tr, nil
}

// GetTrajectory fetches a Trajectory, gated on read access.
func (s *Service) GetTrajectory(ctx context.Context, actor models.Agent, id ids.TrajectoryID) (models.Trajectory, error) {
	if err := s.access.Check(ctx, actor, access.Read, access.Target{EntityType: enums.EntityTrajectory, TrajectoryID: id}); err != nil {
		return models.Trajectory{}, err
	}
	return s.store.GetTrajectory(ctx, actor.TenantID, id)
}

// CompleteTrajectory transitions a Trajectory to Completed or Failed and
// records its terminal Outcome (spec §4.3 "complete/fail transition").
func (s *Service) CompleteTrajectory(ctx context.Context, actor models.Agent, id ids.TrajectoryID, status enums.OutcomeStatus, summary string, artifacts []ids.ArtifactID, notes []ids.NoteID) (models.Trajectory, error) {
	if err := s.access.Check(ctx, actor, access.Write, access.Target{EntityType: enums.EntityTrajectory, TrajectoryID: id}); err != nil {
		return models.Trajectory{}, err
	}

	trajStatus := enums.TrajectoryCompleted
	if status == enums.OutcomeFailure {
		trajStatus = enums.TrajectoryFailed
	}
	outcome := &models.TrajectoryOutcome{
		Status:            status,
		Summary:           summary,
		ProducedArtifacts: artifacts,
		ProducedNotes:     notes,
	}

	if err := s.store.UpdateTrajectoryStatus(ctx, actor.TenantID, id, trajStatus, outcome, time.Now().UTC()); err != nil {
		return models.Trajectory{}, err
	}
	return s.store.GetTrajectory(ctx, actor.TenantID, id)
}

// ListChildTrajectories returns every Trajectory decomposed from parent.
func (s *Service) ListChildTrajectories(ctx context.Context, actor models.Agent, parent ids.TrajectoryID) ([]models.Trajectory, error) {
	if err := s.access.Check(ctx, actor, access.Read, access.Target{EntityType: enums.EntityTrajectory, TrajectoryID: parent}); err != nil {
		return nil, err
	}
	return s.store.ListChildTrajectories(ctx, actor.TenantID, parent)
}

// DeleteTrajectory removes a Trajectory and (via ON DELETE CASCADE) its
// Scopes and Turns (spec §3.2).
func (s *Service) DeleteTrajectory(ctx context.Context, actor models.Agent, id ids.TrajectoryID) error {
	if err := s.access.Check(ctx, actor, access.Write, access.Target{EntityType: enums.EntityTrajectory, TrajectoryID: id}); err != nil {
		return err
	}
	return s.store.DeleteTrajectory(ctx, actor.TenantID, id)
}
