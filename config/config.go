// Package config provides unified configuration loading for cascade,
// supporting YAML files with environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("cascade.yaml").
//	    WithEnvPrefix("CASCADE").
//	    Load()
//
// Precedence: defaults -> YAML file -> environment variables.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the complete cascade configuration.
type Config struct {
	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Orchestrator configures pipeline execution.
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`

	// Executor configures the worker executor.
	Executor ExecutorConfig `yaml:"executor" env:"EXECUTOR"`

	// Store configures session persistence.
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures OpenTelemetry export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// RateLimit is the per-client request rate (requests/second); 0 disables.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	// RateBurst is the per-client burst allowance.
	RateBurst int `yaml:"rate_burst" env:"RATE_BURST"`
}

// OrchestratorConfig configures pipeline scheduling and tier execution.
type OrchestratorConfig struct {
	// MaxConcurrentUnits caps concurrently executing units within one tier.
	MaxConcurrentUnits int64 `yaml:"max_concurrent_units" env:"MAX_CONCURRENT_UNITS"`

	// MaxPipelines caps concurrently running session pipelines.
	MaxPipelines int `yaml:"max_pipelines" env:"MAX_PIPELINES"`

	// PipelineQueueSize bounds pipelines accepted but not yet running.
	PipelineQueueSize int `yaml:"pipeline_queue_size" env:"PIPELINE_QUEUE_SIZE"`

	// DefaultMidTierGroupSize is the cluster size when a task enables the
	// mid tier without specifying one.
	DefaultMidTierGroupSize int `yaml:"default_mid_tier_group_size" env:"DEFAULT_MID_TIER_GROUP_SIZE"`

	// CostPerKiloToken estimates run cost from total token usage (USD).
	CostPerKiloToken float64 `yaml:"cost_per_kilo_token" env:"COST_PER_KILO_TOKEN"`
}

// ExecutorConfig configures the worker executor.
type ExecutorConfig struct {
	// UnitTimeout bounds a single unit execution; 0 disables.
	UnitTimeout time.Duration `yaml:"unit_timeout" env:"UNIT_TIMEOUT"`

	// RateLimit caps executor calls per second; 0 disables.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	// RateBurst is the executor burst allowance.
	RateBurst int `yaml:"rate_burst" env:"RATE_BURST"`

	// Sim configures the simulated executor used for development.
	Sim SimConfig `yaml:"sim" env:"SIM"`
}

// SimConfig configures the simulated executor.
type SimConfig struct {
	BaseDelay time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	Jitter    time.Duration `yaml:"jitter" env:"JITTER"`
	FailEvery int           `yaml:"fail_every" env:"FAIL_EVERY"`
	Seed      int64         `yaml:"seed" env:"SEED"`
}

// StoreConfig configures session persistence.
type StoreConfig struct {
	// Type selects the backend: memory or redis.
	Type string `yaml:"type" env:"TYPE"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Cleanup configures periodic removal of old terminal sessions.
	Cleanup CleanupConfig `yaml:"cleanup" env:"CLEANUP"`
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	PoolSize  int    `yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// CleanupConfig configures terminal session expiry.
type CleanupConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	MaxAge   time.Duration `yaml:"max_age" env:"MAX_AGE"`
}

// LogConfig configures zap logging.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap sink URLs.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller annotates entries with the call site.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       50,
			RateBurst:       100,
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrentUnits:      8,
			MaxPipelines:            16,
			PipelineQueueSize:       64,
			DefaultMidTierGroupSize: 3,
			CostPerKiloToken:        0.015,
		},
		Executor: ExecutorConfig{
			UnitTimeout: 2 * time.Minute,
			Sim: SimConfig{
				BaseDelay: 200 * time.Millisecond,
				Jitter:    300 * time.Millisecond,
			},
		},
		Store: StoreConfig{
			Type: "memory",
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
			Cleanup: CleanupConfig{
				Enabled:  true,
				Interval: 10 * time.Minute,
				MaxAge:   24 * time.Hour,
			},
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "cascade",
			SampleRate:  1.0,
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, "invalid server port")
	}
	if c.Orchestrator.MaxPipelines <= 0 {
		errs = append(errs, "max_pipelines must be positive")
	}
	if c.Orchestrator.DefaultMidTierGroupSize <= 0 {
		errs = append(errs, "default_mid_tier_group_size must be positive")
	}
	if c.Orchestrator.CostPerKiloToken < 0 {
		errs = append(errs, "cost_per_kilo_token must not be negative")
	}
	switch c.Store.Type {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown store type: %q", c.Store.Type))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("unknown log format: %q", c.Log.Format))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
