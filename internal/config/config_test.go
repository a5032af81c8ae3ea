// Copyright 2025 James Ross
package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("THPOS_COLLECTOR_WORKER_POOL_SIZE")
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Collector.WorkerPoolSize != 8 {
		t.Fatalf("expected default worker pool size 8, got %d", cfg.Collector.WorkerPoolSize)
	}
	if cfg.Database.DSN == "" {
		t.Fatalf("expected default database dsn")
	}
	if len(cfg.Shame.ParkTypeOverrides) == 0 {
		t.Fatalf("expected default park type overrides")
	}
}

func TestValidateFails(t *testing.T) {
	cfg := defaultConfig()
	cfg.Collector.WorkerPoolSize = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for collector.worker_pool_size < 1")
	}
	cfg = defaultConfig()
	cfg.Collector.SnapshotIntervalMinutes = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for snapshot_interval_minutes < 1")
	}
	cfg = defaultConfig()
	cfg.Shame.DisneyUniversalWindow = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for zero shame window")
	}
	cfg = defaultConfig()
	cfg.Observability.MetricsPort = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for invalid metrics port")
	}
}
