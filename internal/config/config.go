// Package config holds the engine's tunables (spec §6), defaulted to
// the spec's compile-time values and overridable from a YAML file,
// generalizing the teacher's SSTableConfig and lizzy-0323-oasisdb's
// YAML-config-file pattern into one runtime record.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine's full set of tunables.
type Config struct {
	// PerMemtableSizeLimit triggers freezing `current` into the frozen
	// queue once its used bytes exceed this (LSM_PER_MEM_SIZE_LIMIT).
	PerMemtableSizeLimit int `yaml:"per_memtable_size_limit"`

	// TotalMemtableSizeLimit triggers Engine.Flush once total memtable
	// bytes (current + frozen) reach this (LSM_TOL_MEM_SIZE_LIMIT).
	TotalMemtableSizeLimit int `yaml:"total_memtable_size_limit"`

	// BlockSize is an SST block's soft byte cap (LSM_BLOCK_SIZE).
	BlockSize int `yaml:"block_size"`

	// BlockCacheCapacity bounds the number of decoded blocks resident
	// in the block cache (BLOCK_CACHE_CAPACITY).
	BlockCacheCapacity int `yaml:"block_cache_capacity"`

	// BlockCacheK is the LRU-K access count before a block is promoted
	// to the hot list (BLOCK_CACHE_K).
	BlockCacheK int `yaml:"block_cache_k"`

	// SkipListMaxLevel bounds the memtable index's level count
	// (MAX_LEVEL).
	SkipListMaxLevel int `yaml:"skiplist_max_level"`

	// FilterFalsePositiveRate governs each SST's bloom filter sizing.
	FilterFalsePositiveRate float64 `yaml:"filter_false_positive_rate"`

	// FilterExpectedEntries seeds a new SST's bloom filter sizing; it
	// is a hint, not a hard cap.
	FilterExpectedEntries int `yaml:"filter_expected_entries"`
}

// Default returns the spec's compile-time tunables (§6).
func Default() Config {
	return Config{
		PerMemtableSizeLimit:    4 * 1024 * 1024,
		TotalMemtableSizeLimit:  64 * 1024 * 1024,
		BlockSize:               32 * 1024,
		BlockCacheCapacity:      1024,
		BlockCacheK:             8,
		SkipListMaxLevel:        16,
		FilterFalsePositiveRate: 0.01,
		FilterExpectedEntries:   1000,
	}
}

// Load reads YAML overrides from path on top of Default. A missing file
// is not an error — callers get the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
