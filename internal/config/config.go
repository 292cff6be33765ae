// Package config loads and validates the tunables that govern the LSM
// engine, the HNSW index, and the read-path caches.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds all store configuration parameters. Load starts from
// Default() and overwrites only the fields the JSON file sets.
type Config struct {
	Vector struct {
		Dim uint64 `json:"dim"`
	} `json:"vector"`

	LSM struct {
		MaxLevels       uint64 `json:"max_levels"`
		MaxTablesPerLvl uint64 `json:"max_tables_per_level"`
		FlushLimitBytes uint64 `json:"flush_limit_bytes"`
		CompactionType  string `json:"compaction_type"` // "leveled" or "size"
		DataRoot        string `json:"data_root"`
	} `json:"lsm"`

	BloomFilter struct {
		Bytes uint64 `json:"bytes"`
	} `json:"bloom_filter"`

	Cache struct {
		ReadPathCapacity uint32 `json:"read_path_capacity"`
		VectorCapacity   uint32 `json:"vector_capacity"`
	} `json:"cache"`

	HNSW struct {
		M              int `json:"m"`
		MMax           int `json:"m_max"`
		EfConstruction int `json:"ef_construction"`
		MLNorm         int `json:"m_l"`
	} `json:"hnsw"`
}

// Default returns the configuration baked into spec.md §6: a 768-dim
// vector space, 2 MiB flush threshold, 10240-byte bloom filters, and the
// (8, 16, 25, 9) HNSW defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Vector.Dim = 768
	cfg.LSM.MaxLevels = 7
	cfg.LSM.MaxTablesPerLvl = 4
	cfg.LSM.FlushLimitBytes = 2 * 1024 * 1024
	cfg.LSM.CompactionType = "leveled"
	cfg.LSM.DataRoot = "./data"
	cfg.BloomFilter.Bytes = 10240
	cfg.Cache.ReadPathCapacity = 4096
	cfg.Cache.VectorCapacity = 0 // unbounded: the vector cache must mirror every live key (I9)
	cfg.HNSW.M = 8
	cfg.HNSW.MMax = 16
	cfg.HNSW.EfConstruction = 25
	cfg.HNSW.MLNorm = 9
	return cfg
}

// Load reads a JSON configuration file, falling back to Default() values
// for any field the file does not set (a field set to zero stays zero and
// is then validated). A missing file is not an error; Load simply returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	loaded := Default()
	if err := json.Unmarshal(data, loaded); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := validate(loaded); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return loaded, nil
}

func validate(cfg *Config) error {
	if cfg.Vector.Dim < 1 {
		return fmt.Errorf("vector.dim must be at least 1")
	}
	if cfg.LSM.MaxLevels < 1 {
		return fmt.Errorf("lsm.max_levels must be at least 1")
	}
	if cfg.LSM.FlushLimitBytes < 1 {
		return fmt.Errorf("lsm.flush_limit_bytes must be at least 1")
	}
	if cfg.LSM.CompactionType != "leveled" && cfg.LSM.CompactionType != "size" {
		return fmt.Errorf("lsm.compaction_type must be 'leveled' or 'size'")
	}
	if cfg.LSM.DataRoot == "" {
		return fmt.Errorf("lsm.data_root cannot be empty")
	}
	if cfg.BloomFilter.Bytes < 1 {
		return fmt.Errorf("bloom_filter.bytes must be at least 1")
	}
	if cfg.HNSW.M < 1 || cfg.HNSW.MMax < cfg.HNSW.M || cfg.HNSW.EfConstruction < 1 || cfg.HNSW.MLNorm < 1 {
		return fmt.Errorf("hnsw parameters must be positive and m_max >= m")
	}
	return nil
}
