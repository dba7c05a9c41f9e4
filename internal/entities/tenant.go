package entities

import (
	"context"
	"time"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// CreateTenant registers a new isolation boundary. Tenants sit above
// memory_access entirely (spec §3.1), so no Enforcer check applies here.
func (s *Service) CreateTenant(ctx context.Context, name string) (models.Tenant, error) {
	if name == "" {
		return models.Tenant{}, caliberr.Validation("name", "tenant name is required")
	}

	t := models.Tenant{ID: ids.NewTenantID(), Name: name, CreatedAt: time.Now().UTC()}
	if err := s.store.CreateTenant(ctx, t); err != nil {
		return models.Tenant{}, err
	}
	return t, nil
}

// GetTenant fetches a Tenant by id.
func (s *Service) GetTenant(ctx context.Context, id ids.TenantID) (models.Tenant, error) {
	return s.store.GetTenant(ctx, id)
}
