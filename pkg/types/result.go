package types

import "math"

const (
	VerdictPass       = "pass"
	VerdictBorderline = "borderline"
	VerdictPartial    = "partial"
	VerdictFail       = "fail"
)

// EvaluatorResult is the outcome of one scoring unit. Score is always in
// [0,1]; Weight is the effective weight used during aggregation, persisted
// for audit. Children carries per-child results for composites, recursively.
type EvaluatorResult struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Score      float64           `json:"score"`
	Verdict    string            `json:"verdict"`
	Hits       []string          `json:"hits,omitempty"`
	Misses     []string          `json:"misses,omitempty"`
	Reasoning  string            `json:"reasoning,omitempty"`
	Weight     float64           `json:"weight"`
	Children   []EvaluatorResult `json:"evaluator_results,omitempty"`
	DurationMS int64             `json:"duration_ms,omitempty"`
}

// EvaluationResult is the case-level record: aggregate score, ordered
// evaluator results, candidate output, and the trace if one was captured.
// It is written once per case and never updated.
type EvaluationResult struct {
	CaseID         string            `json:"case_id"`
	RunID          string            `json:"run_id,omitempty"`
	Score          float64           `json:"score"`
	Verdict        string            `json:"verdict"`
	Evaluators     []EvaluatorResult `json:"evaluator_results"`
	Output         string            `json:"candidate_output,omitempty"`
	OutputMessages []Message         `json:"output_messages,omitempty"`
	Trace          []TraceEvent      `json:"trace,omitempty"`
	Summary        *TraceSummary     `json:"trace_summary,omitempty"`
	Error          string            `json:"error,omitempty"`
	StartedAt      string            `json:"started_at"`
	CompletedAt    string            `json:"completed_at"`
}

// ClampScore forces a score into [0,1]. NaN clamps to 0 so malformed judge
// arithmetic can never poison an aggregate.
func ClampScore(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
