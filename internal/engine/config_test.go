package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecsdb/ecsdb/internal/registry"
)

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, registry.StrategyList, cfg.PartitionStrategy)
	assert.Equal(t, 16, cfg.HashPartitionCount)
	assert.Equal(t, 50, cfg.PreparedCacheSize)
	assert.Equal(t, 30_000, cfg.SaveTimeoutMs)
	assert.Equal(t, 30*time.Second, cfg.SaveTimeout())
}

func TestLoadConfigWithNoFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().PreparedCacheSize, cfg.PreparedCacheSize)
	assert.Equal(t, DefaultConfig().Cache.Provider, cfg.Cache.Provider)
}

func TestLoadConfigOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ecsdb.toml")
	contents := `
partitionStrategy = "hash"
hashPartitionCount = 32
preparedCacheSize = 200

[conn]
host = "db.internal"
port = 6543

[cache]
enabled = true
provider = "external"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, registry.StrategyHash, cfg.PartitionStrategy)
	assert.Equal(t, 32, cfg.HashPartitionCount)
	assert.Equal(t, 200, cfg.PreparedCacheSize)
	assert.Equal(t, "db.internal", cfg.Conn.Host)
	assert.Equal(t, 6543, cfg.Conn.Port)
	assert.Equal(t, "external", cfg.Cache.Provider)
	// Untouched sections still carry their defaults.
	assert.Equal(t, DefaultConfig().Cache.Component.TTL, cfg.Cache.Component.TTL)
}

func TestWriteDefaultConfigProducesLoadableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.toml")
	require.NoError(t, WriteDefaultConfig(path, DefaultConfig()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
