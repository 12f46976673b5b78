package config

import (
	"fmt"
	"time"
)

// Config represents the main Prism configuration. It is loaded once at
// startup and treated as read-only afterwards; components receive the
// sections they need through their constructors.
type Config struct {
	// Providers holds per-backend credentials and endpoints
	Providers ProvidersConfig `json:"providers" mapstructure:"providers"`

	// Router holds selection, pricing and timeout configuration
	Router RouterConfig `json:"router" mapstructure:"router"`

	// Memory holds short/long-term memory configuration
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`

	// Runtime holds agent runtime configuration
	Runtime RuntimeConfig `json:"runtime" mapstructure:"runtime"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing holds span sampling configuration
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory (sqlite files, logs)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ProvidersConfig holds configuration for each backend family.
type ProvidersConfig struct {
	HighReasoning ProviderConfig `json:"high_reasoning" mapstructure:"high_reasoning"`
	FastIteration ProviderConfig `json:"fast_iteration" mapstructure:"fast_iteration"`
	LowCost       ProviderConfig `json:"low_cost" mapstructure:"low_cost"`
}

// ProviderConfig holds one backend's credentials and tuning.
type ProviderConfig struct {
	APIKey string `json:"api_key" mapstructure:"api_key"`
	Model  string `json:"model" mapstructure:"model"`
	// BaseURL overrides the SDK default endpoint. Used by the low-cost
	// backend, which speaks the OpenAI wire protocol on another host.
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	// RequestsPerMinute enables a client-side limiter when > 0
	RequestsPerMinute float64 `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	// Breaker settings; zero values fall back to defaults
	BreakerMaxFailures uint32        `json:"breaker_max_failures" mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `json:"breaker_timeout" mapstructure:"breaker_timeout"`
}

// RouterConfig holds the price table and routing behavior.
type RouterConfig struct {
	// PricePerToken maps backend ID to USD per token
	PricePerToken map[string]float64 `json:"price_per_token" mapstructure:"price_per_token"`
	// AttemptTimeout is the hard deadline for one adapter attempt
	AttemptTimeout time.Duration `json:"attempt_timeout" mapstructure:"attempt_timeout"`
	// MaxTokens is the default completion budget per call
	MaxTokens int `json:"max_tokens" mapstructure:"max_tokens"`
}

// MemoryConfig holds memory tuning.
type MemoryConfig struct {
	// ShortTermCapacity is the FIFO cap on the per-agent turn buffer
	ShortTermCapacity int `json:"short_term_capacity" mapstructure:"short_term_capacity"`
	// LongTermDBPath is the sqlite file backing long-term retrieval;
	// empty disables long-term memory
	LongTermDBPath string `json:"long_term_db_path" mapstructure:"long_term_db_path"`
	// RetrieveLimit caps fragments injected into a prompt
	RetrieveLimit int `json:"retrieve_limit" mapstructure:"retrieve_limit"`
}

// RuntimeConfig holds agent runtime tuning.
type RuntimeConfig struct {
	// LaneIdleTTL is how long an idle agent lane survives before the
	// janitor sweeps it
	LaneIdleTTL time.Duration `json:"lane_idle_ttl" mapstructure:"lane_idle_ttl"`
	// JanitorSchedule is a cron expression for the sweep job
	JanitorSchedule string `json:"janitor_schedule" mapstructure:"janitor_schedule"`
	// ToolTimeout bounds one tool handler invocation
	ToolTimeout time.Duration `json:"tool_timeout" mapstructure:"tool_timeout"`
}

// TracingConfig holds tracer provider tuning.
type TracingConfig struct {
	// SampleRatio is the fraction of root traces kept, in [0, 1]
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Providers: ProvidersConfig{
			HighReasoning: ProviderConfig{Model: "claude-3-5-sonnet-20241022"},
			FastIteration: ProviderConfig{Model: "gpt-4o-mini"},
			LowCost:       ProviderConfig{Model: "deepseek-chat", BaseURL: "https://api.deepseek.com/v1"},
		},
		Router: RouterConfig{
			PricePerToken: map[string]float64{
				"high-reasoning": 0.000009,
				"fast-iteration": 0.0000006,
				"low-cost":       0.0000003,
			},
			AttemptTimeout: 30 * time.Second,
			MaxTokens:      4096,
		},
		Memory: MemoryConfig{
			ShortTermCapacity: 20,
			RetrieveLimit:     3,
		},
		Runtime: RuntimeConfig{
			LaneIdleTTL:     30 * time.Minute,
			JanitorSchedule: "*/10 * * * *",
			ToolTimeout:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// Validate checks invariants the rest of the system relies on.
func (c *Config) Validate() error {
	if c.Router.AttemptTimeout <= 0 {
		return fmt.Errorf("router attempt timeout must be positive")
	}
	if c.Router.MaxTokens <= 0 {
		return fmt.Errorf("router max tokens must be positive")
	}
	if c.Memory.ShortTermCapacity <= 0 {
		return fmt.Errorf("short-term capacity must be positive")
	}
	for backend, price := range c.Router.PricePerToken {
		if price < 0 {
			return fmt.Errorf("price for backend %s cannot be negative", backend)
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio must be within [0, 1]")
	}
	return nil
}
