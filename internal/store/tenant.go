package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// CreateTenant inserts a new Tenant row.
func (s *Store) CreateTenant(ctx context.Context, t models.Tenant) error {
	_, err := s.querier(ctx).Exec(ctx,
		`INSERT INTO tenants (id, name, created_at) VALUES ($1, $2, $3)`,
		t.ID.String(), t.Name, t.CreatedAt,
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("create tenant: %w", err))
	}
	return nil
}

// GetTenant fetches a Tenant by id.
func (s *Store) GetTenant(ctx context.Context, id ids.TenantID) (models.Tenant, error) {
	var t models.Tenant
	var idStr string
	err := s.querier(ctx).QueryRow(ctx,
		`SELECT id, name, created_at FROM tenants WHERE id = $1`, id.String(),
	).Scan(&idStr, &t.Name, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Tenant{}, caliberr.NotFound("Tenant", id.String())
	}
	if err != nil {
		return models.Tenant{}, caliberr.Storage(fmt.Errorf("get tenant: %w", err))
	}
	parsed, perr := ids.ParseTenantID(idStr)
	if perr != nil {
		return models.Tenant{}, caliberr.Internal("tenant row %s has malformed id: %v", idStr, perr)
	}
	t.ID = parsed
	return t, nil
}
