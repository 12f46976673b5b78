package provider

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/prismworks/prism/internal/config"
)

// ConfigFactory builds adapters from process configuration, layering
// the rate limiter and circuit breaker around each concrete adapter.
type ConfigFactory struct {
	cfg    config.ProvidersConfig
	logger zerolog.Logger

	// adapters are built once and reused so breaker state survives
	// across router calls
	mu       sync.Mutex
	adapters map[string]Adapter
}

// NewConfigFactory creates a factory over the configured backends.
func NewConfigFactory(cfg config.ProvidersConfig, logger zerolog.Logger) *ConfigFactory {
	return &ConfigFactory{
		cfg:      cfg,
		logger:   logger,
		adapters: make(map[string]Adapter),
	}
}

// Adapter returns the adapter for a backend identifier.
func (f *ConfigFactory) Adapter(backend string) (Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if adapter, ok := f.adapters[backend]; ok {
		return adapter, nil
	}

	var base Adapter
	var pc config.ProviderConfig

	switch backend {
	case BackendHighReasoning:
		pc = f.cfg.HighReasoning
		base = NewAnthropicAdapter(pc.APIKey, pc.Model)
	case BackendFastIteration:
		pc = f.cfg.FastIteration
		base = NewOpenAIAdapter(pc.APIKey, pc.Model)
	case BackendLowCost:
		pc = f.cfg.LowCost
		base = NewLowCostAdapter(pc.APIKey, pc.Model, pc.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}

	adapter := NewLimitedAdapter(base, pc.RequestsPerMinute, 1)
	adapter = NewBreakerAdapter(adapter, BreakerConfig{
		MaxFailures: pc.BreakerMaxFailures,
		Timeout:     pc.BreakerTimeout,
	}, f.logger)

	f.adapters[backend] = adapter
	return adapter, nil
}

var _ Factory = (*ConfigFactory)(nil)
