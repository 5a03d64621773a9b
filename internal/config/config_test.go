package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultProducesValidPoolConfig(t *testing.T) {
	cfg := Default()
	if _, err := cfg.PoolConfig(); err != nil {
		t.Fatalf("PoolConfig from defaults: %v", err)
	}
}

func TestLoadMergesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := []byte("pool:\n  max_size: 8\n  warmup_count: 2\nserver:\n  listen_addr: \":9090\"\n")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pool.MaxSize != 8 {
		t.Fatalf("expected overridden max_size 8, got %d", cfg.Pool.MaxSize)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Fatalf("expected overridden listen_addr, got %q", cfg.Server.ListenAddr)
	}
	// Untouched fields keep their defaults.
	if cfg.Log.Level != "info" {
		t.Fatalf("expected default log level to survive merge, got %q", cfg.Log.Level)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error loading a nonexistent config file")
	}
}

func TestEnvOverrideWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("pool:\n  max_size: 4\n"), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	t.Setenv("HTML2PDF_POOL_MAX_SIZE", "12")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pool.MaxSize != 12 {
		t.Fatalf("expected env override to win, got %d", cfg.Pool.MaxSize)
	}
}

func TestPoolConfigRejectsBadDuration(t *testing.T) {
	cfg := Default()
	cfg.Pool.PingInterval = "not-a-duration"
	if _, err := cfg.PoolConfig(); err == nil {
		t.Fatal("expected an error for an unparseable duration")
	}
}

func TestPoolConfigRejectsOversizedWarmup(t *testing.T) {
	cfg := Default()
	cfg.Pool.MaxSize = 2
	cfg.Pool.WarmupCount = 5
	if _, err := cfg.PoolConfig(); err == nil {
		t.Fatal("expected an error when warmup_count exceeds max_size")
	}
}
