package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SelectorConfig holds model selection thresholds.
type SelectorConfig struct {
	// MinQuality is the default quality floor applied when a task does not
	// carry its own requirement
	MinQuality float64 `yaml:"min_quality"`

	// MaxModelFailures marks a model unavailable once exceeded
	MaxModelFailures int `yaml:"max_model_failures"`
}

// RotationConfig holds failover chain thresholds.
type RotationConfig struct {
	// RotateThreshold is the consecutive-failure count that triggers rotation
	RotateThreshold int `yaml:"rotate_threshold"`

	// BreakerThreshold is the higher consecutive-failure count that opens the
	// circuit breaker and halts attempts against the whole chain
	BreakerThreshold int `yaml:"breaker_threshold"`
}

// RecoveryConfig holds error-recovery behaviour.
type RecoveryConfig struct {
	// AllowMockFallback enables the FALLBACK_MOCK strategy for validation
	// errors; disabled by default so failures surface
	AllowMockFallback bool `yaml:"allow_mock_fallback"`

	// BaseBackoff is the first retry delay; doubles per attempt
	BaseBackoff time.Duration `yaml:"base_backoff"`

	// MaxBackoff caps the exponential schedule
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// HistoryConfig holds execution-history persistence settings.
type HistoryConfig struct {
	// Enabled turns on sqlite execution history
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database
	DBPath string `yaml:"db_path"`
}

// Config represents foreman engine configuration options.
type Config struct {
	// Workers is the worker pool size
	Workers int `yaml:"workers"`

	// QueueCapacity bounds the task queue; enqueue fails at capacity
	QueueCapacity int `yaml:"queue_capacity"`

	// TaskTimeout bounds a single executor call
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// MaxRetries is the default per-task retry cap
	MaxRetries int `yaml:"max_retries"`

	// PollInterval is how long an idle worker sleeps on an empty queue
	PollInterval time.Duration `yaml:"poll_interval"`

	// ExportInterval drives the monitoring snapshot job
	ExportInterval time.Duration `yaml:"export_interval"`

	// PersistInterval drives the durable queue save job
	PersistInterval time.Duration `yaml:"persist_interval"`

	// ProgressInterval drives the throughput/ETA log job
	ProgressInterval time.Duration `yaml:"progress_interval"`

	// StateDir is where queue and export snapshots are written
	StateDir string `yaml:"state_dir"`

	// ExecutorKind selects the executor variant: "cli" or "mock"
	ExecutorKind string `yaml:"executor_kind"`

	// ExecutorPath is the CLI executor binary (default "claude")
	ExecutorPath string `yaml:"executor_path"`

	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	Selector SelectorConfig `yaml:"selector"`
	Rotation RotationConfig `yaml:"rotation"`
	Recovery RecoveryConfig `yaml:"recovery"`
	History  HistoryConfig  `yaml:"history"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Workers:          3,
		QueueCapacity:    500,
		TaskTimeout:      10 * time.Minute,
		MaxRetries:       3,
		PollInterval:     500 * time.Millisecond,
		ExportInterval:   5 * time.Second,
		PersistInterval:  10 * time.Second,
		ProgressInterval: 5 * time.Minute,
		StateDir:         ".foreman",
		ExecutorKind:     "cli",
		ExecutorPath:     "claude",
		LogLevel:         "info",
		Selector: SelectorConfig{
			MinQuality:       0.0,
			MaxModelFailures: 5,
		},
		Rotation: RotationConfig{
			RotateThreshold:  3,
			BreakerThreshold: 8,
		},
		Recovery: RecoveryConfig{
			AllowMockFallback: false,
			BaseBackoff:       2 * time.Second,
			MaxBackoff:        60 * time.Second,
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  ".foreman/history.db",
		},
	}
}

// QueuePath returns the durable queue snapshot path under StateDir.
func (c *Config) QueuePath() string {
	return filepath.Join(c.StateDir, "queue.json")
}

// ExportPath returns the monitoring snapshot path under StateDir.
func (c *Config) ExportPath() string {
	return filepath.Join(c.StateDir, "state.json")
}

// LoadConfig loads configuration from the specified file path.
// A missing file returns defaults without error; a malformed file errors.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations arrive as strings ("30s", "5m"); parse through a shadow struct.
	type yamlConfig struct {
		Workers          int    `yaml:"workers"`
		QueueCapacity    int    `yaml:"queue_capacity"`
		TaskTimeout      string `yaml:"task_timeout"`
		MaxRetries       *int   `yaml:"max_retries"`
		PollInterval     string `yaml:"poll_interval"`
		ExportInterval   string `yaml:"export_interval"`
		PersistInterval  string `yaml:"persist_interval"`
		ProgressInterval string `yaml:"progress_interval"`
		StateDir         string `yaml:"state_dir"`
		ExecutorKind     string `yaml:"executor_kind"`
		ExecutorPath     string `yaml:"executor_path"`
		LogLevel         string `yaml:"log_level"`
		Selector         *SelectorConfig `yaml:"selector"`
		Rotation         *RotationConfig `yaml:"rotation"`
		Recovery         *struct {
			AllowMockFallback *bool  `yaml:"allow_mock_fallback"`
			BaseBackoff       string `yaml:"base_backoff"`
			MaxBackoff        string `yaml:"max_backoff"`
		} `yaml:"recovery"`
		History *struct {
			Enabled *bool  `yaml:"enabled"`
			DBPath  string `yaml:"db_path"`
		} `yaml:"history"`
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	if yc.QueueCapacity != 0 {
		cfg.QueueCapacity = yc.QueueCapacity
	}
	if yc.MaxRetries != nil {
		cfg.MaxRetries = *yc.MaxRetries
	}
	if yc.StateDir != "" {
		cfg.StateDir = yc.StateDir
	}
	if yc.ExecutorKind != "" {
		cfg.ExecutorKind = yc.ExecutorKind
	}
	if yc.ExecutorPath != "" {
		cfg.ExecutorPath = yc.ExecutorPath
	}
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}

	durations := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{yc.TaskTimeout, &cfg.TaskTimeout, "task_timeout"},
		{yc.PollInterval, &cfg.PollInterval, "poll_interval"},
		{yc.ExportInterval, &cfg.ExportInterval, "export_interval"},
		{yc.PersistInterval, &cfg.PersistInterval, "persist_interval"},
		{yc.ProgressInterval, &cfg.ProgressInterval, "progress_interval"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s format %q: %w", d.name, d.raw, err)
		}
		*d.dst = parsed
	}

	if yc.Selector != nil {
		if yc.Selector.MinQuality != 0 {
			cfg.Selector.MinQuality = yc.Selector.MinQuality
		}
		if yc.Selector.MaxModelFailures != 0 {
			cfg.Selector.MaxModelFailures = yc.Selector.MaxModelFailures
		}
	}
	if yc.Rotation != nil {
		if yc.Rotation.RotateThreshold != 0 {
			cfg.Rotation.RotateThreshold = yc.Rotation.RotateThreshold
		}
		if yc.Rotation.BreakerThreshold != 0 {
			cfg.Rotation.BreakerThreshold = yc.Rotation.BreakerThreshold
		}
	}
	if yc.Recovery != nil {
		if yc.Recovery.AllowMockFallback != nil {
			cfg.Recovery.AllowMockFallback = *yc.Recovery.AllowMockFallback
		}
		if yc.Recovery.BaseBackoff != "" {
			parsed, err := time.ParseDuration(yc.Recovery.BaseBackoff)
			if err != nil {
				return nil, fmt.Errorf("invalid base_backoff format %q: %w", yc.Recovery.BaseBackoff, err)
			}
			cfg.Recovery.BaseBackoff = parsed
		}
		if yc.Recovery.MaxBackoff != "" {
			parsed, err := time.ParseDuration(yc.Recovery.MaxBackoff)
			if err != nil {
				return nil, fmt.Errorf("invalid max_backoff format %q: %w", yc.Recovery.MaxBackoff, err)
			}
			cfg.Recovery.MaxBackoff = parsed
		}
	}
	if yc.History != nil {
		if yc.History.Enabled != nil {
			cfg.History.Enabled = *yc.History.Enabled
		}
		if yc.History.DBPath != "" {
			cfg.History.DBPath = yc.History.DBPath
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .foreman/config.yaml in dir.
// A missing directory or file returns defaults without error.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".foreman", "config.yaml"))
}

// MergeWithFlags merges CLI flags into the configuration. Non-nil flag
// values override config file settings.
func (c *Config) MergeWithFlags(workers *int, timeout *time.Duration, stateDir *string, executorKind *string) {
	if workers != nil {
		c.Workers = *workers
	}
	if timeout != nil {
		c.TaskTimeout = *timeout
	}
	if stateDir != nil {
		c.StateDir = *stateDir
	}
	if executorKind != nil {
		c.ExecutorKind = *executorKind
	}
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0, got %d", c.Workers)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be > 0, got %d", c.QueueCapacity)
	}
	if c.TaskTimeout < 0 {
		return fmt.Errorf("task_timeout must be >= 0, got %v", c.TaskTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	switch c.ExecutorKind {
	case "cli", "mock":
	default:
		return fmt.Errorf("invalid executor_kind %q, must be one of: cli, mock", c.ExecutorKind)
	}
	if c.Rotation.RotateThreshold <= 0 {
		return fmt.Errorf("rotation.rotate_threshold must be > 0, got %d", c.Rotation.RotateThreshold)
	}
	if c.Rotation.BreakerThreshold < c.Rotation.RotateThreshold {
		return fmt.Errorf("rotation.breaker_threshold must be >= rotate_threshold, got %d < %d",
			c.Rotation.BreakerThreshold, c.Rotation.RotateThreshold)
	}
	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path cannot be empty when history is enabled")
	}
	return nil
}
