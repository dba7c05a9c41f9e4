package entities

import (
	"context"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// CreateRegion registers a new MemoryRegion (spec §3.1). Creating a region
// is itself unguarded by Enforcer.Check — regions are the thing access
// control gates against, not an entity kind memory_access names — but the
// creating agent is recorded as the first writer/reader so a Collaborative
// region is never created ownerless.
func (s *Service) CreateRegion(ctx context.Context, actor models.Agent, name string, regionType enums.RegionType) (models.MemoryRegion, error) {
	if name == "" {
		return models.MemoryRegion{}, caliberr.Validation("name", "region name is required")
	}
	if !regionType.IsValid() {
		return models.MemoryRegion{}, caliberr.Validation("region_type", string(regionType))
	}

	r := models.MemoryRegion{
		ID:         ids.NewRegionID(),
		TenantID:   actor.TenantID,
		Name:       name,
		RegionType: regionType,
		Readers:    []ids.AgentID{actor.ID},
		Writers:    []ids.AgentID{actor.ID},
	}
	if err := s.store.CreateRegion(ctx, r); err != nil {
		return models.MemoryRegion{}, err
	}
	return r, nil
}

// GetRegion fetches a MemoryRegion by id within actor's tenant.
func (s *Service) GetRegion(ctx context.Context, actor models.Agent, id ids.RegionID) (models.MemoryRegion, error) {
	return s.store.GetRegion(ctx, actor.TenantID, id)
}

// ListRegions returns every MemoryRegion in actor's tenant.
func (s *Service) ListRegions(ctx context.Context, actor models.Agent) ([]models.MemoryRegion, error) {
	return s.store.ListRegions(ctx, actor.TenantID)
}

// UpdateRegionMembers replaces a region's readers/writers sets. Only an
// existing writer may grant or revoke membership.
func (s *Service) UpdateRegionMembers(ctx context.Context, actor models.Agent, id ids.RegionID, readers, writers []ids.AgentID) (models.MemoryRegion, error) {
	region, err := s.store.GetRegion(ctx, actor.TenantID, id)
	if err != nil {
		return models.MemoryRegion{}, err
	}
	if !containsAgent(region.Writers, actor.ID) {
		return models.MemoryRegion{}, caliberr.PermissionDenied("region.members.writer_required")
	}
	if err := s.store.UpdateRegionMembers(ctx, actor.TenantID, id, readers, writers); err != nil {
		return models.MemoryRegion{}, err
	}
	region.Readers, region.Writers = readers, writers
	return region, nil
}

func containsAgent(set []ids.AgentID, id ids.AgentID) bool {
	for _, a := range set {
		if a == id {
			return true
		}
	}
	return false
}
