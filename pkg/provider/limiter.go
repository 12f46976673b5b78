package provider

import (
	"context"

	"golang.org/x/time/rate"
)

// LimitedAdapter throttles calls to one backend with a client-side
// token bucket, so Prism stops tripping the backend's own limiter and
// converting every burst into RateLimited fallbacks.
type LimitedAdapter struct {
	inner   Adapter
	limiter *rate.Limiter
}

// NewLimitedAdapter wraps inner with a requests-per-minute cap. A zero
// or negative cap returns inner unchanged.
func NewLimitedAdapter(inner Adapter, requestsPerMinute float64, burst int) Adapter {
	if requestsPerMinute <= 0 {
		return inner
	}
	if burst <= 0 {
		burst = 1
	}
	return &LimitedAdapter{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerMinute)/60.0, burst),
	}
}

// Backend returns the wrapped backend identifier
func (a *LimitedAdapter) Backend() string {
	return a.inner.Backend()
}

// Invoke waits for a limiter slot, bounded by ctx, then delegates.
func (a *LimitedAdapter) Invoke(ctx context.Context, req Request) (*Response, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		// The attempt deadline expired while queued behind the limiter
		return nil, normalize(a.inner.Backend(), err)
	}
	return a.inner.Invoke(ctx, req)
}

var _ Adapter = (*LimitedAdapter)(nil)
