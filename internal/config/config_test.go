package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies default configuration values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if cfg.QueueCapacity != 500 {
		t.Errorf("QueueCapacity = %d, want 500", cfg.QueueCapacity)
	}
	if cfg.TaskTimeout != 10*time.Minute {
		t.Errorf("TaskTimeout = %v, want 10m", cfg.TaskTimeout)
	}
	if cfg.ExportInterval != 5*time.Second {
		t.Errorf("ExportInterval = %v, want 5s", cfg.ExportInterval)
	}
	if cfg.PersistInterval != 10*time.Second {
		t.Errorf("PersistInterval = %v, want 10s", cfg.PersistInterval)
	}
	if cfg.ProgressInterval != 5*time.Minute {
		t.Errorf("ProgressInterval = %v, want 5m", cfg.ProgressInterval)
	}
	if cfg.ExecutorKind != "cli" {
		t.Errorf("ExecutorKind = %q, want cli", cfg.ExecutorKind)
	}
	if cfg.Recovery.AllowMockFallback {
		t.Error("AllowMockFallback = true, want false by default")
	}
	if cfg.Rotation.RotateThreshold != 3 || cfg.Rotation.BreakerThreshold != 8 {
		t.Errorf("Rotation = %+v, want 3/8", cfg.Rotation)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

// TestLoadConfigValidFile tests loading a valid YAML config file
func TestLoadConfigValidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `workers: 5
task_timeout: 30m
log_level: debug
state_dir: /tmp/foreman
executor_kind: mock
max_retries: 0
rotation:
  rotate_threshold: 2
  breaker_threshold: 6
recovery:
  allow_mock_fallback: true
  base_backoff: 1s
history:
  enabled: false
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Workers != 5 {
		t.Errorf("Workers = %d, want 5", cfg.Workers)
	}
	if cfg.TaskTimeout != 30*time.Minute {
		t.Errorf("TaskTimeout = %v, want 30m", cfg.TaskTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want explicit 0", cfg.MaxRetries)
	}
	if cfg.Rotation.RotateThreshold != 2 || cfg.Rotation.BreakerThreshold != 6 {
		t.Errorf("Rotation = %+v", cfg.Rotation)
	}
	if !cfg.Recovery.AllowMockFallback {
		t.Error("AllowMockFallback = false, want true")
	}
	if cfg.Recovery.BaseBackoff != time.Second {
		t.Errorf("BaseBackoff = %v, want 1s", cfg.Recovery.BaseBackoff)
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled = true, want false")
	}
	// Unset fields keep their defaults.
	if cfg.QueueCapacity != 500 {
		t.Errorf("QueueCapacity = %d, want default 500", cfg.QueueCapacity)
	}
}

// TestLoadConfigMissingFile verifies defaults are returned for a missing file
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want default 3", cfg.Workers)
	}
}

// TestLoadConfigMalformed verifies malformed YAML errors
func TestLoadConfigMalformed(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(configPath, []byte("workers: [not a number"), 0o644)

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

// TestLoadConfigBadDuration verifies duration parse failures error
func TestLoadConfigBadDuration(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(configPath, []byte("task_timeout: tomorrow\n"), 0o644)

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("expected error for unparseable duration")
	}
}

func TestLoadConfigFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	confDir := filepath.Join(tmpDir, ".foreman")
	os.MkdirAll(confDir, 0o755)
	os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte("workers: 7\n"), 0o644)

	cfg, err := LoadConfigFromDir(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfigFromDir: %v", err)
	}
	if cfg.Workers != 7 {
		t.Errorf("Workers = %d, want 7", cfg.Workers)
	}
}

func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()

	workers := 9
	timeout := time.Hour
	executor := "mock"
	cfg.MergeWithFlags(&workers, &timeout, nil, &executor)

	if cfg.Workers != 9 {
		t.Errorf("Workers = %d, want 9", cfg.Workers)
	}
	if cfg.TaskTimeout != time.Hour {
		t.Errorf("TaskTimeout = %v, want 1h", cfg.TaskTimeout)
	}
	if cfg.StateDir != ".foreman" {
		t.Errorf("StateDir = %q, nil flag must not override", cfg.StateDir)
	}
	if cfg.ExecutorKind != "mock" {
		t.Errorf("ExecutorKind = %q, want mock", cfg.ExecutorKind)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"zero capacity", func(c *Config) { c.QueueCapacity = 0 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad executor kind", func(c *Config) { c.ExecutorKind = "fax" }},
		{"zero rotate threshold", func(c *Config) { c.Rotation.RotateThreshold = 0 }},
		{"breaker below rotate", func(c *Config) { c.Rotation.BreakerThreshold = 1 }},
		{"history without path", func(c *Config) { c.History.DBPath = "" }},
	}

	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: Validate() = nil, want error", tc.name)
		}
	}
}

func TestStatePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StateDir = "/var/lib/foreman"

	if got := cfg.QueuePath(); got != "/var/lib/foreman/queue.json" {
		t.Errorf("QueuePath = %q", got)
	}
	if got := cfg.ExportPath(); got != "/var/lib/foreman/state.json" {
		t.Errorf("ExportPath = %q", got)
	}
}
