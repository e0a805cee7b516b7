package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds the request rate against a backend.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// RateLimitedBackend wraps a Backend with a token-bucket limiter so a large
// run cannot trip a vendor's rate limits.
type RateLimitedBackend struct {
	inner   Backend
	limiter *rate.Limiter
}

// NewRateLimitedBackend wraps inner with the given rate limit.
func NewRateLimitedBackend(inner Backend, cfg RateLimitConfig) (*RateLimitedBackend, error) {
	if cfg.RequestsPerMinute <= 0 {
		return nil, fmt.Errorf("rate limit: RequestsPerMinute must be positive, got %d", cfg.RequestsPerMinute)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	rps := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	return &RateLimitedBackend{
		inner:   inner,
		limiter: rate.NewLimiter(rps, burst),
	}, nil
}

func (r *RateLimitedBackend) Name() string { return r.inner.Name() }

func (r *RateLimitedBackend) Workers() int { return r.inner.Workers() }

func (r *RateLimitedBackend) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Invoke(ctx, req)
}

// InvokeBatch reserves one token per case before delegating, when the inner
// backend supports batching.
func (r *RateLimitedBackend) InvokeBatch(ctx context.Context, reqs []*Request) (map[string]*Response, error) {
	bb, ok := r.inner.(BatchBackend)
	if !ok {
		return nil, fmt.Errorf("backend %s does not support batch dispatch", r.inner.Name())
	}
	if err := r.limiter.WaitN(ctx, len(reqs)); err != nil {
		return nil, err
	}
	return bb.InvokeBatch(ctx, reqs)
}
