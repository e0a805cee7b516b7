// Package provider dispatches eval cases to pluggable execution backends,
// enforcing the timeout, retry, and concurrency policy. The rest of the
// engine depends only on the Backend interface, never on a vendor SDK type.
package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// Request is one backend invocation for one eval case.
type Request struct {
	CaseID   string
	Messages []types.Message
	Timeout  time.Duration
}

// Response is what a backend returns. Text is always present;
// OutputMessages and TraceRaw are optional richer views of the same run.
type Response struct {
	CaseID         string
	Text           string
	OutputMessages []types.Message
	TraceRaw       json.RawMessage
}

// Backend is the narrow adapter interface every execution backend
// implements. Workers reports the backend's declared concurrency; 0 means
// no preference.
type Backend interface {
	Name() string
	Invoke(ctx context.Context, req *Request) (*Response, error)
	Workers() int
}

// BatchBackend is implemented by backends that accept a whole run in one
// call. Responses are keyed by case ID, never by position.
type BatchBackend interface {
	Backend
	InvokeBatch(ctx context.Context, reqs []*Request) (map[string]*Response, error)
}

// RetryConfig controls backoff between attempts. Timeouts consume their own
// budget so a slow backend cannot burn the transport-retry allowance.
type RetryConfig struct {
	MaxRetries           int
	MaxTimeoutRetries    int
	InitialDelay         time.Duration
	MaxDelay             time.Duration
	BackoffFactor        float64
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the standard policy: 3 retries, 1s initial
// delay doubling up to 60s, retrying 500/408/429/502/503/504.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:           3,
		MaxTimeoutRetries:    3,
		InitialDelay:         time.Second,
		MaxDelay:             60 * time.Second,
		BackoffFactor:        2,
		RetryableStatusCodes: []int{500, 408, 429, 502, 503, 504},
	}
}

// RetryableStatus reports whether a transport failure with the given HTTP
// status should be retried. 401 and 403 are never retryable.
func (c RetryConfig) RetryableStatus(status int) bool {
	if status == 401 || status == 403 {
		return false
	}
	for _, s := range c.RetryableStatusCodes {
		if s == status {
			return true
		}
	}
	return false
}
