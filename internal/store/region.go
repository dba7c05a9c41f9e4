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

// CreateRegion inserts a new MemoryRegion (spec §4.4 region-scoped access).
func (s *Store) CreateRegion(ctx context.Context, r models.MemoryRegion) error {
	readers, err := json.Marshal(r.Readers)
	if err != nil {
		return caliberr.Internal("marshal readers: %v", err)
	}
	writers, err := json.Marshal(r.Writers)
	if err != nil {
		return caliberr.Internal("marshal writers: %v", err)
	}

	_, err = s.querier(ctx).Exec(ctx, `
		INSERT INTO caliber_region (id, tenant_id, name, region_type, readers, writers)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		r.ID.String(), r.TenantID.String(), r.Name, string(r.RegionType), readers, writers,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return caliberr.Conflict(caliberr.ReasonUniqueViolation, "region %q already exists for tenant", r.Name)
		}
		return caliberr.Storage(fmt.Errorf("create region: %w", err))
	}
	return nil
}

// GetRegion fetches a MemoryRegion by tenant and id.
func (s *Store) GetRegion(ctx context.Context, tenantID ids.TenantID, id ids.RegionID) (models.MemoryRegion, error) {
	var r models.MemoryRegion
	var idStr, tenantStr, regionType string
	var readersRaw, writersRaw []byte

	err := s.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, name, region_type, readers, writers
		FROM caliber_region WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(),
	).Scan(&idStr, &tenantStr, &r.Name, &regionType, &readersRaw, &writersRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.MemoryRegion{}, s.classifyMiss(ctx, "caliber_region", "MemoryRegion", id.String(), false)
	}
	if err != nil {
		return models.MemoryRegion{}, caliberr.Storage(fmt.Errorf("get region: %w", err))
	}

	r.ID, err = ids.ParseRegionID(idStr)
	if err != nil {
		return models.MemoryRegion{}, caliberr.Internal("region row %s has malformed id: %v", idStr, err)
	}
	r.TenantID, err = ids.ParseTenantID(tenantStr)
	if err != nil {
		return models.MemoryRegion{}, caliberr.Internal("region row %s has malformed tenant_id: %v", idStr, err)
	}
	r.RegionType = enums.RegionType(regionType)
	if err := json.Unmarshal(readersRaw, &r.Readers); err != nil {
		return models.MemoryRegion{}, caliberr.Internal("unmarshal readers: %v", err)
	}
	if err := json.Unmarshal(writersRaw, &r.Writers); err != nil {
		return models.MemoryRegion{}, caliberr.Internal("unmarshal writers: %v", err)
	}
	return r, nil
}

// UpdateRegionMembers replaces the readers/writers sets of a MemoryRegion.
func (s *Store) UpdateRegionMembers(ctx context.Context, tenantID ids.TenantID, id ids.RegionID, readers, writers []ids.AgentID) error {
	readersRaw, err := json.Marshal(readers)
	if err != nil {
		return caliberr.Internal("marshal readers: %v", err)
	}
	writersRaw, err := json.Marshal(writers)
	if err != nil {
		return caliberr.Internal("marshal writers: %v", err)
	}

	tag, err := s.querier(ctx).Exec(ctx, `
		UPDATE caliber_region SET readers = $3, writers = $4
		WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(), readersRaw, writersRaw,
	)
	if err != nil {
		return caliberr.Storage(fmt.Errorf("update region members: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMiss(ctx, "caliber_region", "MemoryRegion", id.String(), true)
	}
	return nil
}

// ListRegions returns every MemoryRegion owned by tenantID.
func (s *Store) ListRegions(ctx context.Context, tenantID ids.TenantID) ([]models.MemoryRegion, error) {
	rows, err := s.querier(ctx).Query(ctx, `
		SELECT id, tenant_id, name, region_type, readers, writers
		FROM caliber_region WHERE tenant_id = $1 ORDER BY name`,
		tenantID.String(),
	)
	if err != nil {
		return nil, caliberr.Storage(fmt.Errorf("list regions: %w", err))
	}
	defer rows.Close()

	var out []models.MemoryRegion
	for rows.Next() {
		var r models.MemoryRegion
		var idStr, tenantStr, regionType string
		var readersRaw, writersRaw []byte
		if err := rows.Scan(&idStr, &tenantStr, &r.Name, &regionType, &readersRaw, &writersRaw); err != nil {
			return nil, caliberr.Storage(fmt.Errorf("scan region: %w", err))
		}
		r.ID, err = ids.ParseRegionID(idStr)
		if err != nil {
			return nil, caliberr.Internal("region row %s has malformed id: %v", idStr, err)
		}
		r.TenantID, err = ids.ParseTenantID(tenantStr)
		if err != nil {
			return nil, caliberr.Internal("region row %s has malformed tenant_id: %v", idStr, err)
		}
		r.RegionType = enums.RegionType(regionType)
		if err := json.Unmarshal(readersRaw, &r.Readers); err != nil {
			return nil, caliberr.Internal("unmarshal readers: %v", err)
		}
		if err := json.Unmarshal(writersRaw, &r.Writers); err != nil {
			return nil, caliberr.Internal("unmarshal writers: %v", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, caliberr.Storage(fmt.Errorf("list regions rows: %w", err))
	}
	return out, nil
}
