package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	cfg, err := Load(filepath.Join(tmpDir, "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "INFO" {
		t.Fatalf("Logging.Level = %q, want INFO", cfg.Logging.Level)
	}
	if cfg.Metrics.Port != 9090 {
		t.Fatalf("Metrics.Port = %d, want 9090", cfg.Metrics.Port)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
logging:
  level: "debug"
  format: "json"
  output: "stderr"
shutdown_timeout: 10s
metrics:
  enabled: true
  port: 9999
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Fatalf("Logging.Level = %q, want normalized DEBUG", cfg.Logging.Level)
	}
	if cfg.Metrics.Port != 9999 {
		t.Fatalf("Metrics.Port = %d, want 9999", cfg.Metrics.Port)
	}
	if cfg.ShutdownTimeout.Seconds() != 10 {
		t.Fatalf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
	// Sections left unset in the file still pick up defaults.
	if cfg.Client.MaxSupersedeRetries != 4 {
		t.Fatalf("Client.MaxSupersedeRetries = %d, want default 4", cfg.Client.MaxSupersedeRetries)
	}
}

func TestSaveRoundTrips(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Logging.Level = "WARN"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Logging.Level != "WARN" {
		t.Fatalf("Logging.Level = %q, want WARN", got.Logging.Level)
	}
}
