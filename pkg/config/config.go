package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Quarry configuration.
type Config struct {
	DBPath      string            `yaml:"db_path"`
	CacheDir    string            `yaml:"cache_dir"`
	LogLevel    string            `yaml:"log_level"`
	Pool        PoolConfig        `yaml:"pool"`
	ResultCache ResultCacheConfig `yaml:"result_cache"`
	FileCache   FileCacheConfig   `yaml:"file_cache"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Quota       QuotaConfig       `yaml:"quota"`
}

// PoolConfig controls the worker process pool.
type PoolConfig struct {
	Size         int           `yaml:"size"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// ResultCacheConfig controls the in-memory result cache tier. The persistent
// tier shares the TTL.
type ResultCacheConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// FileCacheConfig bounds the on-disk dataset cache.
type FileCacheConfig struct {
	MaxBytes     int64         `yaml:"max_bytes"`
	MaxAge       time.Duration `yaml:"max_age"`
	StaleTempAge time.Duration `yaml:"stale_temp_age"`
}

// FetchConfig controls dataset retrieval.
type FetchConfig struct {
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	RequestsPerSec  float64       `yaml:"requests_per_sec"`
	Burst           int           `yaml:"burst"`
}

// QuotaConfig controls per-user token budgets. Period is one of
// "hourly", "daily", or "monthly".
type QuotaConfig struct {
	LimitTokens int64  `yaml:"limit_tokens"`
	Period      string `yaml:"period"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath:   "quarry.db",
		CacheDir: "quarry-cache",
		LogLevel: "info",
		Pool: PoolConfig{
			Size:         4,
			QueryTimeout: 30 * time.Second,
		},
		ResultCache: ResultCacheConfig{
			Capacity: 100,
			TTL:      5 * time.Minute,
		},
		FileCache: FileCacheConfig{
			MaxBytes:     1 << 30, // 1 GiB
			MaxAge:       7 * 24 * time.Hour,
			StaleTempAge: time.Hour,
		},
		Fetch: FetchConfig{
			ProbeTimeout:    10 * time.Second,
			DownloadTimeout: 2 * time.Minute,
			RequestsPerSec:  4,
			Burst:           8,
		},
		Quota: QuotaConfig{
			LimitTokens: 5_000_000,
			Period:      "daily",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
