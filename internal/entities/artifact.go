package entities

import (
	"context"
	"time"

	"github.com/Heyoub/caliber-sub001/internal/access"
	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
	"github.com/Heyoub/caliber-sub001/internal/store"
)

// ArtifactInput is one item of a CreateArtifactsBatch call.
type ArtifactInput struct {
	ScopeID      ids.ScopeID
	ArtifactType enums.ArtifactType
	Name         string
	Content      string
	Provenance   models.Provenance
	TTL          enums.TTL
	Metadata     map[string]any
}

// CreateArtifact persists a single extracted Artifact under trajectoryID.
func (s *Service) CreateArtifact(ctx context.Context, actor models.Agent, trajectoryID ids.TrajectoryID, in ArtifactInput) (models.Artifact, error) {
	if err := validateArtifactInput(in); err != nil {
		return models.Artifact{}, err
	}
	if err := s.access.Check(ctx, actor, access.Write, access.Target{EntityType: enums.EntityArtifact, TrajectoryID: trajectoryID}); err != nil {
		return models.Artifact{}, err
	}

	a := models.Artifact{
		ID:           ids.NewArtifactID(),
		TenantID:     actor.TenantID,
		TrajectoryID: trajectoryID,
		ScopeID:      in.ScopeID,
		ArtifactType: in.ArtifactType,
		Name:         in.Name,
		Content:      in.Content,
		Provenance:   in.Provenance,
		TTL:          in.TTL,
		Metadata:     in.Metadata,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateArtifact(ctx, a); err != nil {
		return models.Artifact{}, err
	}
	return a, nil
}

// CreateArtifactsBatch creates every item in order (spec §4.3 "Artifact and
// note batch operations are ordered").
func (s *Service) CreateArtifactsBatch(ctx context.Context, actor models.Agent, trajectoryID ids.TrajectoryID, items []ArtifactInput, stopOnError bool) ([]BatchResult, error) {
	if err := s.access.Check(ctx, actor, access.Write, access.Target{EntityType: enums.EntityArtifact, TrajectoryID: trajectoryID}); err != nil {
		return nil, err
	}

	return runBatch(store.WithTenant(ctx, actor.TenantID), s.store, stopOnError, items, func(txCtx context.Context, in ArtifactInput) error {
		if err := validateArtifactInput(in); err != nil {
			return err
		}
		a := models.Artifact{
			ID:           ids.NewArtifactID(),
			TenantID:     actor.TenantID,
			TrajectoryID: trajectoryID,
			ScopeID:      in.ScopeID,
			ArtifactType: in.ArtifactType,
			Name:         in.Name,
			Content:      in.Content,
			Provenance:   in.Provenance,
			TTL:          in.TTL,
			Metadata:     in.Metadata,
			CreatedAt:    time.Now().UTC(),
		}
		return s.store.CreateArtifact(txCtx, a)
	})
}

func validateArtifactInput(in ArtifactInput) error {
	if in.Name == "" {
		return caliberr.Validation("name", "name is required")
	}
	if !in.ArtifactType.IsValid() {
		return caliberr.Validation("artifact_type", "invalid artifact type %q", in.ArtifactType)
	}
	return in.TTL.Validate()
}

// GetArtifact fetches an Artifact, gated on read access.
func (s *Service) GetArtifact(ctx context.Context, actor models.Agent, trajectoryID ids.TrajectoryID, id ids.ArtifactID) (models.Artifact, error) {
	if err := s.access.Check(ctx, actor, access.Read, access.Target{EntityType: enums.EntityArtifact, TrajectoryID: trajectoryID}); err != nil {
		return models.Artifact{}, err
	}
	return s.store.GetArtifact(ctx, actor.TenantID, id)
}

// ListArtifactsByType returns every Artifact of artifactType in trajectoryID.
func (s *Service) ListArtifactsByType(ctx context.Context, actor models.Agent, trajectoryID ids.TrajectoryID, artifactType enums.ArtifactType) ([]models.Artifact, error) {
	if err := s.access.Check(ctx, actor, access.Read, access.Target{EntityType: enums.EntityArtifact, TrajectoryID: trajectoryID}); err != nil {
		return nil, err
	}
	return s.store.ListArtifactsByType(ctx, actor.TenantID, trajectoryID, artifactType)
}

// DeleteArtifact removes an Artifact; deletion always requires write access
// (spec §3.1 "deletion is explicit and requires write permission").
func (s *Service) DeleteArtifact(ctx context.Context, actor models.Agent, trajectoryID ids.TrajectoryID, id ids.ArtifactID) error {
	if err := s.access.Check(ctx, actor, access.Write, access.Target{EntityType: enums.EntityArtifact, TrajectoryID: trajectoryID}); err != nil {
		return err
	}
	return s.store.DeleteArtifact(ctx, actor.TenantID, id)
}
