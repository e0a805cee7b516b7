package provider

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// FaultConfig defines the fault injection parameters for a FaultBackend.
type FaultConfig struct {
	ErrorRate     float64       // Probability [0,1] of returning a transport error
	ErrorStatus   int           // HTTP status of injected errors, default 503
	LatencyJitter time.Duration // Random additional latency [0, LatencyJitter)
	TimeoutAfter  time.Duration // If > 0, every call times out after this duration
}

// FaultBackend wraps a Backend and injects configurable faults. It is
// used to exercise retry and settle-all behavior against a misbehaving
// backend without a real network.
type FaultBackend struct {
	inner Backend
	cfg   FaultConfig
	rng   *rand.Rand
	mu    sync.Mutex
}

// NewFaultBackend creates a FaultBackend with a time-based seed.
func NewFaultBackend(inner Backend, cfg FaultConfig) *FaultBackend {
	return NewFaultBackendWithSeed(inner, cfg, time.Now().UnixNano())
}

// NewFaultBackendWithSeed creates a FaultBackend with a deterministic
// seed for testing.
func NewFaultBackendWithSeed(inner Backend, cfg FaultConfig, seed int64) *FaultBackend {
	if cfg.ErrorStatus == 0 {
		cfg.ErrorStatus = 503
	}
	return &FaultBackend{
		inner: inner,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)), //nolint:gosec
	}
}

func (f *FaultBackend) Name() string { return "fault:" + f.inner.Name() }

func (f *FaultBackend) Workers() int { return f.inner.Workers() }

// Invoke injects faults according to FaultConfig before delegating.
func (f *FaultBackend) Invoke(ctx context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	errorRoll := f.rng.Float64()
	var jitter time.Duration
	if f.cfg.LatencyJitter > 0 {
		jitter = time.Duration(f.rng.Int63n(int64(f.cfg.LatencyJitter)))
	}
	f.mu.Unlock()

	if f.cfg.ErrorRate > 0 && errorRoll < f.cfg.ErrorRate {
		return nil, &types.TransportError{
			Status: f.cfg.ErrorStatus,
			Err:    errors.New("injected fault"),
		}
	}

	if f.cfg.TimeoutAfter > 0 {
		select {
		case <-time.After(f.cfg.TimeoutAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return nil, &types.TimeoutError{CaseID: req.CaseID, Elapsed: f.cfg.TimeoutAfter}
	}

	if jitter > 0 {
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return f.inner.Invoke(ctx, req)
}
