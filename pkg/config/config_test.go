package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Pool.Size != 4 || cfg.Pool.QueryTimeout != 30*time.Second {
		t.Errorf("unexpected pool defaults: %+v", cfg.Pool)
	}
	if cfg.ResultCache.Capacity != 100 || cfg.ResultCache.TTL != 5*time.Minute {
		t.Errorf("unexpected result cache defaults: %+v", cfg.ResultCache)
	}
	if cfg.Quota.LimitTokens != 5_000_000 || cfg.Quota.Period != "daily" {
		t.Errorf("unexpected quota defaults: %+v", cfg.Quota)
	}
	if cfg.FileCache.MaxBytes != 1<<30 {
		t.Errorf("unexpected file cache size bound: %d", cfg.FileCache.MaxBytes)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pool.Size != Default().Pool.Size {
		t.Errorf("missing file should fall back to defaults: %+v", cfg)
	}
}

func TestLoadOverridesAndKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarry.yaml")
	data := `
db_path: /tmp/custom.db
pool:
  size: 8
  query_timeout: 45s
result_cache:
  capacity: 50
quota:
  limit_tokens: 1000000
  period: hourly
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DBPath != "/tmp/custom.db" {
		t.Errorf("db_path not applied: %q", cfg.DBPath)
	}
	if cfg.Pool.Size != 8 || cfg.Pool.QueryTimeout != 45*time.Second {
		t.Errorf("pool overrides not applied: %+v", cfg.Pool)
	}
	if cfg.ResultCache.Capacity != 50 {
		t.Errorf("capacity override not applied: %d", cfg.ResultCache.Capacity)
	}
	if cfg.ResultCache.TTL != 5*time.Minute {
		t.Errorf("unset fields should keep defaults, TTL became %s", cfg.ResultCache.TTL)
	}
	if cfg.Quota.LimitTokens != 1_000_000 || cfg.Quota.Period != "hourly" {
		t.Errorf("quota overrides not applied: %+v", cfg.Quota)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("QUARRY_TEST_DB", "/data/env.db")

	path := filepath.Join(t.TempDir(), "quarry.yaml")
	if err := os.WriteFile(path, []byte("db_path: ${QUARRY_TEST_DB}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath != "/data/env.db" {
		t.Errorf("env expansion failed: %q", cfg.DBPath)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("pool: [not, a, map"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("malformed config should fail loudly")
	}
}
