package provider

import (
	"context"
	"fmt"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// InvokeBatch dispatches all requests as one backend call when the backend
// supports it, mapping responses back by case ID. A failed batch call, a
// missing case ID, or a backend without batch support all degrade
// transparently to per-case dispatch; a batch problem is never a run
// failure.
func (g *Gateway) InvokeBatch(ctx context.Context, reqs []*Request, maxConcurrency int) []Outcome {
	bb, ok := g.backend.(BatchBackend)
	if !ok {
		return g.InvokeAll(ctx, reqs, maxConcurrency)
	}

	responses, err := bb.InvokeBatch(ctx, reqs)
	if err != nil {
		batchErr := &types.BatchDispatchError{Err: err}
		g.logger.Warn("batch dispatch failed, falling back to per-case",
			"backend", g.backend.Name(), "cases", len(reqs), "err", batchErr)
		return g.InvokeAll(ctx, reqs, maxConcurrency)
	}

	if err := validateBatch(reqs, responses); err != nil {
		batchErr := &types.BatchDispatchError{Err: err}
		g.logger.Warn("batch response mismatch, falling back to per-case",
			"backend", g.backend.Name(), "err", batchErr)
		return g.InvokeAll(ctx, reqs, maxConcurrency)
	}

	outcomes := make([]Outcome, len(reqs))
	for i, req := range reqs {
		resp := responses[req.CaseID]
		resp.CaseID = req.CaseID
		outcomes[i] = Outcome{CaseID: req.CaseID, Response: resp}
	}
	return outcomes
}

// validateBatch checks that every requested case ID has exactly one
// response. Position in the response map is never trusted.
func validateBatch(reqs []*Request, responses map[string]*Response) error {
	for _, req := range reqs {
		resp, ok := responses[req.CaseID]
		if !ok || resp == nil {
			return fmt.Errorf("no response for case %s", req.CaseID)
		}
	}
	if len(responses) != len(reqs) {
		return fmt.Errorf("got %d responses for %d requests", len(responses), len(reqs))
	}
	return nil
}
