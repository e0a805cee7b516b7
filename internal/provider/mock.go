package provider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockBackend implements Backend (and BatchBackend) with configurable
// responses for testing. Zero value is usable: it echoes a default response.
type MockBackend struct {
	mu               sync.Mutex
	Responses        []*Response
	Errors           []error
	CallCount        int
	LastRequest      *Request
	RequestHistory   []Request
	ReplayMode       bool
	SimulatedLatency time.Duration
	WorkerCount      int
	BatchErr         error
	BatchResponses   map[string]*Response
	BatchCalls       int

	inflight    int
	maxInflight int
}

// NewMockBackend creates a MockBackend cycling through the given responses,
// returning configured errors by call index first.
func NewMockBackend(responses []*Response, errs []error) *MockBackend {
	return &MockBackend{Responses: responses, Errors: errs}
}

// NewReplayBackend creates a MockBackend that consumes responses exactly
// once in order and errors when they run out.
func NewReplayBackend(responses []*Response) *MockBackend {
	return &MockBackend{Responses: responses, ReplayMode: true}
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) Workers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.WorkerCount
}

func (m *MockBackend) Invoke(ctx context.Context, req *Request) (*Response, error) {
	m.mu.Lock()
	m.inflight++
	if m.inflight > m.maxInflight {
		m.maxInflight = m.inflight
	}
	idx := m.CallCount
	m.CallCount++
	m.LastRequest = req
	m.RequestHistory = append(m.RequestHistory, *req)
	latency := m.SimulatedLatency
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inflight--
		m.mu.Unlock()
	}()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if idx < len(m.Errors) && m.Errors[idx] != nil {
		return nil, m.Errors[idx]
	}

	if m.ReplayMode {
		if idx >= len(m.Responses) {
			return nil, fmt.Errorf("mock backend: all %d responses exhausted at call %d", len(m.Responses), idx)
		}
		return m.Responses[idx], nil
	}

	if len(m.Responses) > 0 {
		return m.Responses[idx%len(m.Responses)], nil
	}

	return &Response{CaseID: req.CaseID, Text: "mock response"}, nil
}

// InvokeBatch returns BatchResponses or BatchErr when configured, otherwise
// answers every request with a default response keyed by case ID.
func (m *MockBackend) InvokeBatch(_ context.Context, reqs []*Request) (map[string]*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.BatchCalls++
	if m.BatchErr != nil {
		return nil, m.BatchErr
	}
	if m.BatchResponses != nil {
		return m.BatchResponses, nil
	}

	out := make(map[string]*Response, len(reqs))
	for _, req := range reqs {
		out[req.CaseID] = &Response{CaseID: req.CaseID, Text: "mock batch response"}
	}
	return out, nil
}

// GetCallCount returns how many times Invoke has been called.
func (m *MockBackend) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// MaxInflight returns the highest number of concurrent Invoke calls seen.
func (m *MockBackend) MaxInflight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInflight
}
