// Package runner orchestrates an evaluation run: dispatch each case to
// the provider gateway, normalize the returned trace, run the configured
// evaluators, aggregate, and emit one result per case.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterlabs/arbiter/internal/evaluator"
	"github.com/arbiterlabs/arbiter/internal/provider"
	"github.com/arbiterlabs/arbiter/internal/report"
	"github.com/arbiterlabs/arbiter/internal/trace"
	"github.com/arbiterlabs/arbiter/pkg/types"
)

// Runner drives evaluation runs.
type Runner struct {
	gateway        *provider.Gateway
	registry       *evaluator.Registry
	logger         *slog.Logger
	writer         *report.Writer
	maxConcurrency int
	batch          bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithWriter streams each settled result to w as it completes.
func WithWriter(w *report.Writer) Option {
	return func(r *Runner) { r.writer = w }
}

// WithConcurrency overrides the worker count for dispatch and evaluation.
// Zero falls back to the backend's declared worker count.
func WithConcurrency(n int) Option {
	return func(r *Runner) { r.maxConcurrency = n }
}

// WithBatch dispatches all cases as one batch call when the backend
// supports it, falling back to per-case dispatch on any mismatch.
func WithBatch(enabled bool) Option {
	return func(r *Runner) { r.batch = enabled }
}

// New creates a Runner. logger may be nil for the default logger.
func New(gateway *provider.Gateway, registry *evaluator.Registry, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{gateway: gateway, registry: registry, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RunResult is the outcome of a full run. Results are ordered by the
// input case order regardless of completion order.
type RunResult struct {
	RunID   string
	Results []types.EvaluationResult
	Summary report.RunSummary
}

// Run evaluates every case and settles them all: a case's failure is
// captured in its own result and never aborts siblings.
func (r *Runner) Run(ctx context.Context, cases []types.EvalCase) (*RunResult, error) {
	runID := uuid.NewString()
	start := time.Now()
	r.logger.Info("run started", "run_id", runID, "cases", len(cases))

	reqs := make([]*provider.Request, len(cases))
	byID := make(map[string]*types.EvalCase, len(cases))
	for i := range cases {
		c := &cases[i]
		byID[c.ID] = c
		reqs[i] = &provider.Request{
			CaseID:   c.ID,
			Messages: c.Input,
			Timeout:  time.Duration(c.TimeoutMS) * time.Millisecond,
		}
	}

	var outcomes []provider.Outcome
	if r.batch {
		outcomes = r.gateway.InvokeBatch(ctx, reqs, r.maxConcurrency)
	} else {
		outcomes = r.gateway.InvokeAll(ctx, reqs, r.maxConcurrency)
	}

	results := r.evaluateAll(ctx, runID, byID, outcomes)

	summary := report.Summarize(runID, results, time.Since(start))
	r.logger.Info("run finished",
		"run_id", runID,
		"pass", summary.Pass,
		"fail", summary.Fail,
		"errored", summary.Errored,
		"mean_score", summary.MeanScore,
	)

	return &RunResult{RunID: runID, Results: results, Summary: summary}, nil
}

// evaluateAll scores settled outcomes with a bounded worker pool,
// preserving input order in the returned slice.
func (r *Runner) evaluateAll(ctx context.Context, runID string, byID map[string]*types.EvalCase, outcomes []provider.Outcome) []types.EvaluationResult {
	workers := r.maxConcurrency
	if workers < 1 {
		workers = 1
	}

	results := make([]types.EvaluationResult, len(outcomes))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := range outcomes {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			o := &outcomes[idx]
			res := r.evaluateOutcome(ctx, runID, byID[o.CaseID], o)
			results[idx] = *res

			if r.writer != nil {
				if err := r.writer.Write(res); err != nil {
					r.logger.Error("result write failed", "case", res.CaseID, "err", err)
				}
			}
		}(i)
	}
	wg.Wait()

	return results
}

// evaluateOutcome turns one settled dispatch outcome into an
// EvaluationResult. Dispatch failures still produce a result carrying
// the error and a zero score.
func (r *Runner) evaluateOutcome(ctx context.Context, runID string, ec *types.EvalCase, o *provider.Outcome) *types.EvaluationResult {
	started := time.Now()
	res := &types.EvaluationResult{
		CaseID:    o.CaseID,
		RunID:     runID,
		StartedAt: started.UTC().Format(time.RFC3339Nano),
	}

	if ec == nil {
		res.Verdict = types.VerdictFail
		res.Error = "response for unknown case ID"
		res.CompletedAt = time.Now().UTC().Format(time.RFC3339Nano)
		return res
	}

	if o.Err != nil {
		r.logger.Warn("case dispatch failed", "case", o.CaseID, "err", o.Err)
		res.Verdict = types.VerdictFail
		res.Error = o.Err.Error()
		res.CompletedAt = time.Now().UTC().Format(time.RFC3339Nano)
		return res
	}

	ectx := &evaluator.Context{
		Case:           ec,
		Output:         o.Response.Text,
		OutputMessages: o.Response.OutputMessages,
	}
	if len(o.Response.TraceRaw) > 0 {
		if events, ok := trace.Normalize(o.Response.TraceRaw); ok {
			ectx.Events = events
			s := trace.ComputeSummary(events)
			ectx.Summary = &s
			res.Trace = events
			res.Summary = &s
		}
	}
	if ectx.Summary == nil && len(o.Response.OutputMessages) > 0 {
		s := trace.SummaryFromMessages(o.Response.OutputMessages)
		ectx.Summary = &s
		res.Summary = &s
	}

	evaluators, score, verdict := r.registry.EvaluateAll(ctx, ectx)
	res.Evaluators = evaluators
	res.Score = score
	res.Verdict = verdict
	res.Output = o.Response.Text
	res.OutputMessages = o.Response.OutputMessages
	res.CompletedAt = time.Now().UTC().Format(time.RFC3339Nano)
	return res
}
