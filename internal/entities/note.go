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

// NoteInput is one item of a CreateNotesBatch call.
type NoteInput struct {
	NoteType            enums.NoteType
	Title               string
	Content             string
	SourceTrajectoryIDs []ids.TrajectoryID
	SourceArtifactIDs   []ids.ArtifactID
	Embedding           *models.Embedding
	TTL                 enums.TTL
	Metadata            map[string]any
}

// CreateNote persists cross-trajectory knowledge at the tenant level (spec
// §3.1). Notes have no single owning trajectory, so access is evaluated
// with a zero TrajectoryID — only a ScopeAll entry grants it.
func (s *Service) CreateNote(ctx context.Context, actor models.Agent, in NoteInput) (models.Note, error) {
	if err := validateNoteInput(in); err != nil {
		return models.Note{}, err
	}
	if err := s.access.Check(ctx, actor, access.Write, access.Target{EntityType: enums.EntityNote}); err != nil {
		return models.Note{}, err
	}

	n := newNoteFromInput(actor.TenantID, in)
	if err := s.store.CreateNote(ctx, n); err != nil {
		return models.Note{}, err
	}
	return n, nil
}

// CreateNotesBatch creates every item in order (spec §4.3).
func (s *Service) CreateNotesBatch(ctx context.Context, actor models.Agent, items []NoteInput, stopOnError bool) ([]BatchResult, error) {
	if err := s.access.Check(ctx, actor, access.Write, access.Target{EntityType: enums.EntityNote}); err != nil {
		return nil, err
	}
	return runBatch(store.WithTenant(ctx, actor.TenantID), s.store, stopOnError, items, func(txCtx context.Context, in NoteInput) error {
		if err := validateNoteInput(in); err != nil {
			return err
		}
		return s.store.CreateNote(txCtx, newNoteFromInput(actor.TenantID, in))
	})
}

func newNoteFromInput(tenantID ids.TenantID, in NoteInput) models.Note {
	return models.Note{
		ID:                  ids.NewNoteID(),
		TenantID:            tenantID,
		NoteType:            in.NoteType,
		Title:               in.Title,
		Content:             in.Content,
		SourceTrajectoryIDs: in.SourceTrajectoryIDs,
		SourceArtifactIDs:   in.SourceArtifactIDs,
		Embedding:           in.Embedding,
		TTL:                 in.TTL,
		Metadata:            in.Metadata,
		CreatedAt:           time.Now().UTC(),
	}
}

func validateNoteInput(in NoteInput) error {
	if in.Title == "" {
		return caliberr.Validation("title", "title is required")
	}
	if !in.NoteType.IsValid() {
		return caliberr.Validation("note_type", "invalid note type %q", in.NoteType)
	}
	return in.TTL.Validate()
}

// GetNote fetches a Note and bumps its access_count/accessed_at
// best-effort: the counter update never fails the read (spec §4.3).
func (s *Service) GetNote(ctx context.Context, actor models.Agent, id ids.NoteID) (models.Note, error) {
	if err := s.access.Check(ctx, actor, access.Read, access.Target{EntityType: enums.EntityNote}); err != nil {
		return models.Note{}, err
	}

	n, err := s.store.GetNote(ctx, actor.TenantID, id)
	if err != nil {
		return models.Note{}, err
	}
	touchBestEffort(func() error {
		s.store.TouchNote(ctx, actor.TenantID, id, time.Now().UTC())
		return nil
	})
	return n, nil
}

// ListNotesByType returns every Note of noteType, each touched
// best-effort as it is read.
func (s *Service) ListNotesByType(ctx context.Context, actor models.Agent, noteType enums.NoteType) ([]models.Note, error) {
	if err := s.access.Check(ctx, actor, access.Read, access.Target{EntityType: enums.EntityNote}); err != nil {
		return nil, err
	}

	notes, err := s.store.ListNotesByType(ctx, actor.TenantID, noteType)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		id := n.ID
		touchBestEffort(func() error {
			s.store.TouchNote(ctx, actor.TenantID, id, time.Now().UTC())
			return nil
		})
	}
	return notes, nil
}

// DeleteNote removes a Note explicitly.
func (s *Service) DeleteNote(ctx context.Context, actor models.Agent, id ids.NoteID) error {
	if err := s.access.Check(ctx, actor, access.Write, access.Target{EntityType: enums.EntityNote}); err != nil {
		return err
	}
	return s.store.DeleteNote(ctx, actor.TenantID, id)
}
