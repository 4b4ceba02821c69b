package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 4*1024*1024, cfg.PerMemtableSizeLimit)
	assert.Equal(t, 64*1024*1024, cfg.TotalMemtableSizeLimit)
	assert.Equal(t, 32*1024, cfg.BlockSize)
	assert.Equal(t, 1024, cfg.BlockCacheCapacity)
	assert.Equal(t, 8, cfg.BlockCacheK)
	assert.Equal(t, 16, cfg.SkipListMaxLevel)
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := "block_cache_capacity: 2048\nblock_cache_k: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.BlockCacheCapacity)
	assert.Equal(t, 4, cfg.BlockCacheK)
	assert.Equal(t, Default().BlockSize, cfg.BlockSize)
}
