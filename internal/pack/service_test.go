package pack

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/dbtest"
	"github.com/Heyoub/caliber-sub001/internal/enums"
	"github.com/Heyoub/caliber-sub001/internal/ids"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

// sourceFixture mirrors writePack's on-disk fixture as an in-memory Source.
func sourceFixture(t *testing.T) Source {
	t.Helper()
	dir := t.TempDir()
	writePack(t, dir)

	src := Source{}
	for _, rel := range []string{"cal.toml", "agents/support.md"} {
		body, err := readPromptFile(dir, rel)
		require.NoError(t, err)
		src[rel] = body
	}
	return src
}

func TestSourceMaterialize_RejectsPathTraversal(t *testing.T) {
	svc := NewService(nil)

	for _, bad := range []string{"../escape.toml", "/abs/cal.toml", ""} {
		_, err := svc.Validate(Source{bad: "x"})
		require.Error(t, err, "path %q should be rejected", bad)
		assert.True(t, caliberr.HasKind(err, caliberr.KindValidation))
	}
}

func TestServiceValidate_ReportsDiagnosticsWithoutPersisting(t *testing.T) {
	svc := NewService(nil)

	src := sourceFixture(t)
	diags, err := svc.Validate(src)
	require.NoError(t, err)
	assert.Empty(t, diags)

	src["agents/support.md"] = "# System\nhi\n### User\nhi\n"
	diags, err = svc.Validate(src)
	require.NoError(t, err)
	require.NotEmpty(t, diags)
}

func TestServiceParse_ReturnsLoweredIR(t *testing.T) {
	svc := NewService(nil)

	ir, diags, err := svc.Parse(sourceFixture(t))
	require.NoError(t, err)
	require.Empty(t, diags)
	assert.Equal(t, "demo", ir.Meta.Name)
	assert.Contains(t, ir.Agents, "support")
	assert.Equal(t, []string{"search"}, ir.Agents["support"].ToolIDs)
}

func TestServiceComposeDeploy_Lifecycle(t *testing.T) {
	st := dbtest.NewStore(t)
	ctx := context.Background()
	svc := NewService(st)

	tenantID := ids.NewTenantID()
	require.NoError(t, st.CreateTenant(ctx, models.Tenant{ID: tenantID, Name: "pack-test", CreatedAt: time.Now().UTC()}))

	cfg1, result, err := svc.Compose(ctx, tenantID, sourceFixture(t))
	require.NoError(t, err)
	require.NotNil(t, result.Compiled)
	assert.Equal(t, int64(1), cfg1.Version)
	assert.Equal(t, enums.PackConfigCompiled, cfg1.Status)

	// Not live until deployed.
	_, err = svc.ActiveConfig(ctx, tenantID)
	assert.True(t, caliberr.HasKind(err, caliberr.KindNotFound))

	require.NoError(t, svc.Deploy(ctx, tenantID, cfg1.ID))
	active, err := svc.ActiveConfig(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, "demo", active.PackName)
	assert.Contains(t, active.Agents, "support")
	assert.Equal(t, []string{"search"}, active.Agents["support"].ToolIDs)

	// A second compose bumps the version; deploying it retires the first.
	cfg2, result, err := svc.Compose(ctx, tenantID, sourceFixture(t))
	require.NoError(t, err)
	require.NotNil(t, result.Compiled)
	assert.Equal(t, int64(2), cfg2.Version)

	require.NoError(t, svc.Deploy(ctx, tenantID, cfg2.ID))
	stored1, err := st.GetPackConfig(ctx, tenantID, cfg1.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PackConfigRetired, stored1.Status)
	stored2, err := st.GetPackConfig(ctx, tenantID, cfg2.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PackConfigDeployed, stored2.Status)

	// Deploying an unknown config is NotFound and leaves the active one alone.
	err = svc.Deploy(ctx, tenantID, ids.NewConfigID())
	assert.True(t, caliberr.HasKind(err, caliberr.KindNotFound))
	active, err = svc.ActiveConfig(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, "demo", active.PackName)

	configs, err := st.ListPackConfigs(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, int64(2), configs[0].Version)
}

func TestServiceCompose_HardErrorPersistsNothing(t *testing.T) {
	st := dbtest.NewStore(t)
	ctx := context.Background()
	svc := NewService(st)

	tenantID := ids.NewTenantID()
	require.NoError(t, st.CreateTenant(ctx, models.Tenant{ID: tenantID, Name: "pack-err-test", CreatedAt: time.Now().UTC()}))

	src := sourceFixture(t)
	src["agents/support.md"] = "# System\nhi\n### User\nhi\n"

	_, result, err := svc.Compose(ctx, tenantID, src)
	require.NoError(t, err)
	assert.Nil(t, result.Compiled)
	require.NotEmpty(t, result.Diagnostics)

	configs, err := st.ListPackConfigs(ctx, tenantID)
	require.NoError(t, err)
	assert.Empty(t, configs)
}
