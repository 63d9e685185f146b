package ghostconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlabarca/ghost/internal/ghostconfig"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := ghostconfig.Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.True(t, cfg.EnableRetry, "expected EnableRetry to default true")
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ghost.yaml")
	contents := "cache_backend: redis\nenable_encryption: true\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := ghostconfig.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.CacheBackend)
	assert.True(t, cfg.EnableEncryption)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ghost.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis_connection: file-value\n"), 0o600))
	t.Setenv("GHOST_REDIS_CONNECTION", "env-value")

	cfg, err := ghostconfig.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-value", cfg.RedisConnection)
}
