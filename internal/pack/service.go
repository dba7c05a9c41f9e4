package pack

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
	"github.com/Heyoub/caliber-sub001/internal/store"
)

// Source is an in-memory pack: file contents keyed by pack-relative path.
// "cal.toml" is required at the root; prompt files sit at whatever path
// the manifest's prompt_file fields name. Transports hand a Source to the
// pack operations below instead of requiring a directory on the server's
// filesystem.
type Source map[string]string

// materialize writes the source files into a fresh temp directory so the
// directory-oriented compile stages can walk them. The cleanup func
// removes the tree; it is safe to call even when err != nil.
func (src Source) materialize() (string, func(), error) {
	dir, err := os.MkdirTemp("", "caliber-pack-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("pack: temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	for rel, content := range src {
		if rel == "" || filepath.IsAbs(rel) || strings.Contains(rel, "..") {
			cleanup()
			return "", func() {}, caliberr.Validation("files", "illegal pack file path %q", rel)
		}
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			cleanup()
			return "", func() {}, fmt.Errorf("pack: mkdir for %s: %w", rel, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			cleanup()
			return "", func() {}, fmt.Errorf("pack: write %s: %w", rel, err)
		}
	}
	return dir, cleanup, nil
}

// Service exposes the transport-facing pack operations (spec §6.1:
// "pack operations (validate, parse, compose, deploy)") over the store's
// caliber_dsl_config / caliber_dsl_deployment tables.
type Service struct {
	store *store.Store
}

// NewService builds a Service over st.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Validate runs the analysis stages (load, matrix, lint, tool resolution,
// IR lowering) and returns every diagnostic found. Nothing is persisted.
func (s *Service) Validate(src Source) ([]Diagnostic, error) {
	dir, cleanup, err := src.materialize()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	_, diags := analyze(dir)
	return diags, nil
}

// Parse runs the analysis stages and returns the lowered IR alongside the
// diagnostics. On a hard error the IR is the zero value.
func (s *Service) Parse(src Source) (IR, []Diagnostic, error) {
	dir, cleanup, err := src.materialize()
	if err != nil {
		return IR{}, nil, err
	}
	defer cleanup()

	ir, diags := analyze(dir)
	if hasError(diags) {
		return IR{}, diags, nil
	}
	return ir, diags, nil
}

// Compose compiles the pack and, when compilation succeeds, persists the
// source, the lowered IR, and the compiled artifact as one versioned
// caliber_dsl_config row (spec §4.10 stage 6: "Store the pack source and
// the compiled artifact together, linked by version"). The stored config
// is not live until Deploy activates it.
func (s *Service) Compose(ctx context.Context, tenantID ids.TenantID, src Source) (models.PackConfig, CompileResult, error) {
	dir, cleanup, err := src.materialize()
	if err != nil {
		return models.PackConfig{}, CompileResult{}, err
	}
	defer cleanup()

	ir, diags := analyze(dir)
	if hasError(diags) {
		return models.PackConfig{}, CompileResult{Diagnostics: diags}, nil
	}
	compiled := buildAST(ir)
	result := CompileResult{
		Compiled:      compiled,
		Diagnostics:   diags,
		PackSourceRef: ir.Meta.Name + "@" + ir.Meta.Version,
	}

	sourceJSON, err := json.Marshal(src)
	if err != nil {
		return models.PackConfig{}, result, caliberr.Internal("marshal pack source: %v", err)
	}
	astJSON, err := json.Marshal(ir)
	if err != nil {
		return models.PackConfig{}, result, caliberr.Internal("marshal pack IR: %v", err)
	}
	compiledJSON, err := json.Marshal(compiled)
	if err != nil {
		return models.PackConfig{}, result, caliberr.Internal("marshal compiled pack: %v", err)
	}

	cfg := models.PackConfig{
		ID:         ids.NewConfigID(),
		TenantID:   tenantID,
		PackSource: sourceJSON,
		AST:        astJSON,
		Compiled:   compiledJSON,
		Status:     enums.PackConfigCompiled,
	}
	if err := s.store.SavePackConfig(ctx, &cfg); err != nil {
		return models.PackConfig{}, result, err
	}
	return cfg, result, nil
}

// Deploy activates a previously composed config for its tenant, retiring
// whichever config was active before.
func (s *Service) Deploy(ctx context.Context, tenantID ids.TenantID, configID ids.ConfigID) error {
	return s.store.DeployPackConfig(ctx, tenantID, configID)
}

// ActiveConfig loads the tenant's deployed pack and rehydrates its
// CompiledConfig from the stored IR — rebuilding the AST rather than
// trusting a serialized form keeps tool contracts as compiled schema
// values, which do not round-trip through JSON.
func (s *Service) ActiveConfig(ctx context.Context, tenantID ids.TenantID) (*CompiledConfig, error) {
	cfg, err := s.store.GetActivePackConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var ir IR
	if err := json.Unmarshal(cfg.AST, &ir); err != nil {
		return nil, caliberr.Internal("stored pack config %s has malformed IR: %v", cfg.ID.String(), err)
	}
	return buildAST(ir), nil
}
