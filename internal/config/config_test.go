package config

import (
	"os"
	"testing"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MemoryCeilingMB != 8192 {
		t.Errorf("MemoryCeilingMB = %d, want default 8192", cfg.MemoryCeilingMB)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want default :8080", cfg.Server.Addr)
	}
	if cfg.Circuit.FailuresToOpen != 5 {
		t.Errorf("Circuit.FailuresToOpen = %d, want default 5", cfg.Circuit.FailuresToOpen)
	}
}

func TestLoadFromYAML(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	yamlBody := "memory_ceiling_mb: 4096\nserver:\n  addr: \":9999\"\n"
	if _, err := f.WriteString(yamlBody); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg, err := Load(f.Name())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MemoryCeilingMB != 4096 {
		t.Errorf("MemoryCeilingMB = %d, want 4096", cfg.MemoryCeilingMB)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Server.Addr = %q, want :9999", cfg.Server.Addr)
	}
	if cfg.IdleTTLSecs != 300 {
		t.Errorf("IdleTTLSecs = %d, want default 300", cfg.IdleTTLSecs)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("MODELRUN_MEMORY_CEILING_MB", "2048")
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MemoryCeilingMB != 2048 {
		t.Errorf("MemoryCeilingMB = %d, want env override 2048", cfg.MemoryCeilingMB)
	}
}
