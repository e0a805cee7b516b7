package provider

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// Gateway wraps a Backend with the retry, timeout, and concurrency policy.
type Gateway struct {
	backend Backend
	cfg     RetryConfig
	logger  *slog.Logger

	// jitter returns a uniform sample from [0,1); swapped out in tests.
	jitter func() float64
	// sleep waits out a backoff delay; tests replace it with a no-op.
	sleep func(context.Context, time.Duration) error
}

// NewGateway creates a Gateway around backend with the given retry policy.
func NewGateway(backend Backend, cfg RetryConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BackoffFactor <= 0 {
		cfg = DefaultRetryConfig()
	}
	return &Gateway{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		jitter:  rand.Float64,
		sleep:   sleepBackoff,
	}
}

// sleepBackoff waits out the delay, returning early when ctx is cancelled
// so a cancelled run never sits through a full backoff.
func sleepBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff computes the pre-sleep delay for the given zero-based attempt:
// min(maxDelay, initial·factor^attempt) scaled by uniform(0.75, 1.25).
// jitter must be in [0,1).
func Backoff(cfg RetryConfig, attempt int, jitter float64) time.Duration {
	base := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))
	if capped := float64(cfg.MaxDelay); base > capped {
		base = capped
	}
	scale := 0.75 + jitter*0.5
	return time.Duration(base * scale)
}

// Invoke runs one eval case against the backend, retrying per policy.
// Transport errors with a retryable status and case-level timeouts are
// retried on separate budgets; anything else fails immediately so the run
// can move on to the next case.
func (g *Gateway) Invoke(ctx context.Context, req *Request) (*Response, error) {
	var retries, timeoutRetries int

	for attempt := 0; ; attempt++ {
		resp, err := g.invokeOnce(ctx, req)
		if err == nil {
			return resp, nil
		}

		var tErr *types.TransportError
		var toErr *types.TimeoutError
		switch {
		case errors.As(err, &toErr):
			if timeoutRetries >= g.cfg.MaxTimeoutRetries {
				return nil, &types.RetryExhaustedError{Attempts: attempt + 1, Last: err}
			}
			timeoutRetries++
		case errors.As(err, &tErr):
			if !g.cfg.RetryableStatus(tErr.Status) {
				return nil, err
			}
			if retries >= g.cfg.MaxRetries {
				return nil, &types.RetryExhaustedError{Attempts: attempt + 1, Last: err}
			}
			retries++
		default:
			return nil, err
		}

		delay := Backoff(g.cfg, attempt, g.jitter())
		g.logger.Warn("backend invocation failed, retrying",
			"backend", g.backend.Name(),
			"case", req.CaseID,
			"attempt", attempt,
			"delay", delay,
			"err", err)

		if err := g.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// invokeOnce runs a single attempt under the case's timeout, translating a
// deadline hit into a TimeoutError.
func (g *Gateway) invokeOnce(ctx context.Context, req *Request) (*Response, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.backend.Invoke(callCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &types.TimeoutError{CaseID: req.CaseID, Elapsed: time.Since(start)}
		}
		return nil, err
	}
	if resp.CaseID == "" {
		resp.CaseID = req.CaseID
	}
	return resp, nil
}
