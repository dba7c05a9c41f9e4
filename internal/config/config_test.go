package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_AppliesDefaultsOnTopOfPartialYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "caliber.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  database: caliber\n  host: db.internal\n"), 0o644))

	cfg, err := Initialize(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Store.Host)
	assert.Equal(t, "caliber", cfg.Store.Database)
	assert.Equal(t, 5432, cfg.Store.Port, "unset port falls back to default")
	assert.Equal(t, "cl100k_base", cfg.Assembler.TokenEncoding)
}

func TestInitialize_MissingDatabaseFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "caliber.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))

	_, err := Initialize(path)
	require.Error(t, err)
}

func TestExpandEnv_ExpandsBracedAndBareForms(t *testing.T) {
	t.Setenv("CALIBER_TEST_HOST", "expanded-host")
	t.Setenv("CALIBER_TEST_PORT", "6543")
	out := ExpandEnv([]byte("host: ${CALIBER_TEST_HOST}\nport: $CALIBER_TEST_PORT\n"))
	assert.Contains(t, string(out), "expanded-host")
	assert.Contains(t, string(out), "port: 6543")
}
