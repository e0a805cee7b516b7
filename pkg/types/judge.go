package types

import "strings"

// JudgeInput is the single JSON object written to a judge subprocess's
// stdin. Top-level keys are snake_case so any language's SDK can consume it;
// nested messages and summaries keep their canonical JSON shape.
type JudgeInput struct {
	Question                string                     `json:"question"`
	ExpectedOutcome         string                     `json:"expected_outcome"`
	ReferenceAnswer         string                     `json:"reference_answer,omitempty"`
	CandidateAnswer         string                     `json:"candidate_answer"`
	OutputMessages          []Message                  `json:"output_messages,omitempty"`
	ReferenceOutputMessages []Message                  `json:"reference_output_messages,omitempty"`
	CandidateTraceSummary   *TraceSummary              `json:"candidate_trace_summary,omitempty"`
	ExecutionMetrics        map[string]any             `json:"execution_metrics,omitempty"`
	Files                   []string                   `json:"files,omitempty"`
	ChildResults            map[string]EvaluatorResult `json:"child_results,omitempty"`
}

// JudgeOutput is the single JSON object a judge subprocess writes to stdout.
type JudgeOutput struct {
	Score     float64  `json:"score"`
	Verdict   string   `json:"verdict,omitempty"`
	Hits      []string `json:"hits,omitempty"`
	Misses    []string `json:"misses,omitempty"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// Sanitize clamps the score into [0,1] and drops empty or whitespace-only
// hit/miss entries in place.
func (o *JudgeOutput) Sanitize() {
	o.Score = ClampScore(o.Score)
	o.Hits = trimNonEmpty(o.Hits)
	o.Misses = trimNonEmpty(o.Misses)
}

func trimNonEmpty(in []string) []string {
	if in == nil {
		return nil
	}
	out := in[:0]
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
