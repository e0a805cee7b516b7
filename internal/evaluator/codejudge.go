package evaluator

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

const defaultCodeJudgeTimeout = 30 * time.Second

// CodeJudgeEvaluator delegates scoring to a user-supplied script run as a
// one-shot subprocess. Script failures become zero-score results; they
// never abort the run.
type CodeJudgeEvaluator struct {
	runner ScriptRunner
}

// NewCodeJudgeEvaluator creates an evaluator backed by the given runner.
func NewCodeJudgeEvaluator(r ScriptRunner) *CodeJudgeEvaluator {
	return &CodeJudgeEvaluator{runner: r}
}

// codeJudgeSpec is the expected structure of the evaluator spec JSON.
type codeJudgeSpec struct {
	Script    string   `json:"script"`
	Args      []string `json:"args,omitempty"`
	TimeoutMS int      `json:"timeout_ms,omitempty"`
}

func (e *CodeJudgeEvaluator) Evaluate(ctx context.Context, ec *Context, cfg *types.EvaluatorConfig) *types.EvaluatorResult {
	start := time.Now()

	var spec codeJudgeSpec
	if err := json.Unmarshal(cfg.Spec, &spec); err != nil {
		return failResult(cfg, start, "invalid code_judge spec: %v", err)
	}
	if spec.Script == "" {
		return failResult(cfg, start, "code_judge spec missing required field: script")
	}
	timeout := defaultCodeJudgeTimeout
	if spec.TimeoutMS > 0 {
		timeout = time.Duration(spec.TimeoutMS) * time.Millisecond
	}

	out, err := e.runner.RunJudge(ctx, spec.Script, spec.Args, timeout, ec.JudgeInput())
	if err != nil {
		slog.Warn("code judge failed", "script", spec.Script, "case", ec.Case.ID, "err", err)
	}
	if out == nil {
		return failResult(cfg, start, "code judge produced no output: %v", err)
	}
	out.Sanitize()
	verdict := out.Verdict
	if verdict == "" {
		verdict = VerdictForScore(out.Score)
	}

	return &types.EvaluatorResult{
		Score:      out.Score,
		Verdict:    verdict,
		Hits:       out.Hits,
		Misses:     out.Misses,
		Reasoning:  out.Reasoning,
		DurationMS: time.Since(start).Milliseconds(),
	}
}
