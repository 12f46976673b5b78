package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Default circuit breaker settings.
const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerTimeout     time.Duration = 30 * time.Second
	defaultBreakerInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the circuit breaker behavior.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens
	MaxFailures uint32
	// Timeout is how long the circuit stays open before transitioning to half-open
	Timeout time.Duration
	// Interval is the cyclic period of the closed state for clearing failure counts
	Interval time.Duration
}

// BreakerAdapter wraps an Adapter with circuit breaker protection. When
// the wrapped backend fails repeatedly the circuit opens and subsequent
// calls fail fast as Unavailable, so the router falls through to the
// next candidate without burning its attempt deadline.
type BreakerAdapter struct {
	inner   Adapter
	breaker *gobreaker.CircuitBreaker[*Response]
	logger  zerolog.Logger
}

// NewBreakerAdapter wraps inner with a circuit breaker. Zero-valued
// config fields fall back to defaults.
func NewBreakerAdapter(inner Adapter, cfg BreakerConfig, logger zerolog.Logger) *BreakerAdapter {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	backend := inner.Backend()
	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        "llm:" + backend,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &BreakerAdapter{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// Backend returns the wrapped backend identifier
func (a *BreakerAdapter) Backend() string {
	return a.inner.Backend()
}

// Invoke routes the call through the circuit breaker
func (a *BreakerAdapter) Invoke(ctx context.Context, req Request) (*Response, error) {
	resp, err := a.breaker.Execute(func() (*Response, error) {
		return a.inner.Invoke(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, NewError(a.inner.Backend(), KindUnavailable, err)
		}
		return nil, normalize(a.inner.Backend(), err)
	}
	return resp, nil
}

// State returns the current circuit breaker state for monitoring.
func (a *BreakerAdapter) State() gobreaker.State {
	return a.breaker.State()
}

var _ Adapter = (*BreakerAdapter)(nil)
