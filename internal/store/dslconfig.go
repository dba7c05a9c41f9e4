package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// SavePackConfig inserts a composed pack into caliber_dsl_config, assigning
// the next per-tenant version (spec §4.10 stage 6: "Store the pack source
// and the compiled artifact together, linked by version"). The version
// assignment and insert run in one transaction so concurrent composes for
// the same tenant cannot race to the same version.
func (s *Store) SavePackConfig(ctx context.Context, cfg *models.PackConfig) error {
	return s.WithTx(WithTenant(ctx, cfg.TenantID), func(ctx context.Context) error {
		q := s.querier(ctx)

		var version int64
		err := q.QueryRow(ctx, `
			SELECT COALESCE(MAX(version), 0) + 1 FROM caliber_dsl_config
			WHERE tenant_id = $1`,
			cfg.TenantID.String(),
		).Scan(&version)
		if err != nil {
			return caliberr.Storage(fmt.Errorf("next pack config version: %w", err))
		}
		cfg.Version = version

		_, err = q.Exec(ctx, `
			INSERT INTO caliber_dsl_config (id, tenant_id, version, pack_source, ast, compiled, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			cfg.ID.String(), cfg.TenantID.String(), cfg.Version,
			cfg.PackSource, cfg.AST, cfg.Compiled, string(cfg.Status),
		)
		if err != nil {
			return caliberr.Storage(fmt.Errorf("save pack config: %w", err))
		}
		return nil
	})
}

// GetPackConfig fetches one stored pack compilation by tenant and id.
func (s *Store) GetPackConfig(ctx context.Context, tenantID ids.TenantID, id ids.ConfigID) (models.PackConfig, error) {
	row := s.querier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, version, pack_source, ast, compiled, status, created_at
		FROM caliber_dsl_config WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(),
	)
	return scanPackConfig(row)
}

// GetActivePackConfig returns the tenant's currently deployed pack, or
// NotFound when no deployment is active.
func (s *Store) GetActivePackConfig(ctx context.Context, tenantID ids.TenantID) (models.PackConfig, error) {
	row := s.querier(ctx).QueryRow(ctx, `
		SELECT c.id, c.tenant_id, c.version, c.pack_source, c.ast, c.compiled, c.status, c.created_at
		FROM caliber_dsl_config c
		JOIN caliber_dsl_deployment d ON d.config_id = c.id AND d.active
		WHERE c.tenant_id = $1`,
		tenantID.String(),
	)
	return scanPackConfig(row)
}

// DeployPackConfig activates the given stored pack for its tenant and
// retires any previously active deployment, all in one transaction (spec
// §6.2: exactly one caliber_dsl_deployment row is active per tenant).
func (s *Store) DeployPackConfig(ctx context.Context, tenantID ids.TenantID, id ids.ConfigID) error {
	return s.WithTx(WithTenant(ctx, tenantID), func(ctx context.Context) error {
		q := s.querier(ctx)

		var exists bool
		err := q.QueryRow(ctx, `
			SELECT true FROM caliber_dsl_config WHERE tenant_id = $1 AND id = $2`,
			tenantID.String(), id.String(),
		).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return caliberr.NotFound("PackConfig", id.String())
		}
		if err != nil {
			return caliberr.Storage(fmt.Errorf("check pack config: %w", err))
		}

		_, err = q.Exec(ctx, `
			UPDATE caliber_dsl_deployment d SET active = false
			FROM caliber_dsl_config c
			WHERE d.config_id = c.id AND c.tenant_id = $1 AND d.active`,
			tenantID.String(),
		)
		if err != nil {
			return caliberr.Storage(fmt.Errorf("retire active deployment: %w", err))
		}
		_, err = q.Exec(ctx, `
			UPDATE caliber_dsl_config SET status = $2
			WHERE tenant_id = $1 AND status = $3`,
			tenantID.String(), string(enums.PackConfigRetired), string(enums.PackConfigDeployed),
		)
		if err != nil {
			return caliberr.Storage(fmt.Errorf("retire active config: %w", err))
		}

		_, err = q.Exec(ctx, `
			INSERT INTO caliber_dsl_deployment (config_id, active, deployed_at)
			VALUES ($1, true, now())
			ON CONFLICT (config_id) DO UPDATE SET active = true, deployed_at = now()`,
			id.String(),
		)
		if err != nil {
			return caliberr.Storage(fmt.Errorf("activate deployment: %w", err))
		}
		_, err = q.Exec(ctx, `
			UPDATE caliber_dsl_config SET status = $3 WHERE tenant_id = $1 AND id = $2`,
			tenantID.String(), id.String(), string(enums.PackConfigDeployed),
		)
		if err != nil {
			return caliberr.Storage(fmt.Errorf("mark config deployed: %w", err))
		}
		return nil
	})
}

// ListPackConfigs returns every stored pack compilation for tenantID,
// newest version first.
func (s *Store) ListPackConfigs(ctx context.Context, tenantID ids.TenantID) ([]models.PackConfig, error) {
	rows, err := s.querier(ctx).Query(ctx, `
		SELECT id, tenant_id, version, pack_source, ast, compiled, status, created_at
		FROM caliber_dsl_config WHERE tenant_id = $1 ORDER BY version DESC`,
		tenantID.String(),
	)
	if err != nil {
		return nil, caliberr.Storage(fmt.Errorf("list pack configs: %w", err))
	}
	defer rows.Close()

	var out []models.PackConfig
	for rows.Next() {
		cfg, err := scanPackConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, caliberr.Storage(fmt.Errorf("list pack configs rows: %w", err))
	}
	return out, nil
}

func scanPackConfig(row pgx.Row) (models.PackConfig, error) {
	var cfg models.PackConfig
	var idStr, tenantStr, status string

	err := row.Scan(&idStr, &tenantStr, &cfg.Version, &cfg.PackSource, &cfg.AST, &cfg.Compiled, &status, &cfg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PackConfig{}, caliberr.NotFound("PackConfig", "")
	}
	if err != nil {
		return models.PackConfig{}, caliberr.Storage(fmt.Errorf("scan pack config: %w", err))
	}

	cfg.ID, err = ids.ParseConfigID(idStr)
	if err != nil {
		return models.PackConfig{}, caliberr.Internal("pack config row %s has malformed id: %v", idStr, err)
	}
	cfg.TenantID, err = ids.ParseTenantID(tenantStr)
	if err != nil {
		return models.PackConfig{}, caliberr.Internal("pack config row %s has malformed tenant_id: %v", idStr, err)
	}
	cfg.Status = enums.PackConfigStatus(status)
	if !cfg.Status.IsValid() {
		return models.PackConfig{}, caliberr.Internal("pack config row %s has unknown status %q", idStr, status)
	}
	return cfg, nil
}
