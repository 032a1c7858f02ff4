package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithNoFileAndNoEnvUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestLoadReadsTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".axiograph.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
prepared_cache_capacity = 64
min_confidence = 0.5
max_hops = 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 64, cfg.PreparedCacheCapacity)
	require.Equal(t, 0.5, cfg.MinConfidence)
	require.Equal(t, 4, cfg.MaxHops)
	require.Equal(t, 2*time.Second, cfg.PollInterval) // untouched default
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".axiograph.toml")
	require.NoError(t, os.WriteFile(path, []byte(`prepared_cache_capacity = 64`), 0o644))

	t.Setenv("AXIOGRAPH_PREPARED_CACHE_CAPACITY", "128")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 128, cfg.PreparedCacheCapacity)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestValidateRejectsOutOfRangeMinConfidence(t *testing.T) {
	cfg := Defaults()
	cfg.MinConfidence = 1.5
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveCacheCapacity(t *testing.T) {
	cfg := Defaults()
	cfg.PreparedCacheCapacity = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeVerifyTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.VerifyTimeout = -1
	require.Error(t, cfg.Validate())
}
