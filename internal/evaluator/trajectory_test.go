package evaluator

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

func trajConfig(t *testing.T, spec string) *types.EvaluatorConfig {
	t.Helper()
	return &types.EvaluatorConfig{
		Name: "trajectory",
		Type: types.TypeToolTrajectory,
		Spec: json.RawMessage(spec),
	}
}

func callCtx(calls ...types.ToolCall) *Context {
	return &Context{
		Case:           &types.EvalCase{ID: "c1"},
		OutputMessages: []types.Message{{Role: types.RoleAssistant, ToolCalls: calls}},
	}
}

func approx(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("score = %v, want %v", got, want)
	}
}

func TestTrajectoryNoTrace(t *testing.T) {
	e := &TrajectoryEvaluator{}
	ec := &Context{Case: &types.EvalCase{ID: "c1"}}

	res := e.Evaluate(context.Background(), ec, trajConfig(t, `{"expected":[{"tool":"lookup"}]}`))

	approx(t, res.Score, 0)
	if len(res.Misses) != 1 || res.Misses[0] != types.NoTraceMiss {
		t.Errorf("misses = %v, want exactly [%q]", res.Misses, types.NoTraceMiss)
	}
}

func TestTrajectoryAnyOrderMinimums(t *testing.T) {
	e := &TrajectoryEvaluator{}
	ec := callCtx(
		types.ToolCall{Tool: "search"},
		types.ToolCall{Tool: "search"},
	)

	res := e.Evaluate(context.Background(), ec, trajConfig(t,
		`{"mode":"any_order","minimums":{"search":2,"fetch":1}}`))

	// search minimum met, fetch minimum not: 1 of 2 aspects.
	approx(t, res.Score, 0.5)
	if len(res.Hits) != 1 || len(res.Misses) != 1 {
		t.Errorf("hits = %v, misses = %v", res.Hits, res.Misses)
	}
}

func TestTrajectoryAnyOrderIgnoresPosition(t *testing.T) {
	e := &TrajectoryEvaluator{}
	ec := callCtx(
		types.ToolCall{Tool: "refund"},
		types.ToolCall{Tool: "lookup_order"},
	)

	res := e.Evaluate(context.Background(), ec, trajConfig(t,
		`{"expected":[{"tool":"lookup_order"},{"tool":"refund"}]}`))

	approx(t, res.Score, 1.0)
	if res.Verdict != types.VerdictPass {
		t.Errorf("verdict = %s, want pass", res.Verdict)
	}
}

func TestTrajectoryInOrderAllowsInterleaving(t *testing.T) {
	e := &TrajectoryEvaluator{}
	ec := callCtx(
		types.ToolCall{Tool: "a"},
		types.ToolCall{Tool: "x"},
		types.ToolCall{Tool: "b"},
		types.ToolCall{Tool: "y"},
		types.ToolCall{Tool: "c"},
	)

	res := e.Evaluate(context.Background(), ec, trajConfig(t,
		`{"mode":"in_order","expected":[{"tool":"a"},{"tool":"b"},{"tool":"c"}]}`))

	approx(t, res.Score, 1.0)
}

func TestTrajectoryInOrderCursorSurvivesMiss(t *testing.T) {
	e := &TrajectoryEvaluator{}
	ec := callCtx(types.ToolCall{Tool: "b"})

	res := e.Evaluate(context.Background(), ec, trajConfig(t,
		`{"mode":"in_order","expected":[{"tool":"a"},{"tool":"b"}]}`))

	// a is missing but b still matches from the unmoved cursor.
	approx(t, res.Score, 0.5)
	if len(res.Misses) != 1 || !strings.Contains(res.Misses[0], "a") {
		t.Errorf("misses = %v", res.Misses)
	}
}

func TestTrajectoryExactLengthMismatchIsScored(t *testing.T) {
	e := &TrajectoryEvaluator{}
	ec := callCtx(
		types.ToolCall{Tool: "a"},
		types.ToolCall{Tool: "b"},
		types.ToolCall{Tool: "c"},
	)

	res := e.Evaluate(context.Background(), ec, trajConfig(t,
		`{"mode":"exact","expected":[{"tool":"a"},{"tool":"b"}]}`))

	// Two positional hits plus one length miss: 2/3.
	approx(t, res.Score, 2.0/3.0)
	found := false
	for _, m := range res.Misses {
		if m == "Expected 2 tool calls, got 3" {
			found = true
		}
	}
	if !found {
		t.Errorf("misses = %v, want length-mismatch entry", res.Misses)
	}
}

func TestTrajectoryExactWrongPosition(t *testing.T) {
	e := &TrajectoryEvaluator{}
	ec := callCtx(
		types.ToolCall{Tool: "b"},
		types.ToolCall{Tool: "a"},
	)

	res := e.Evaluate(context.Background(), ec, trajConfig(t,
		`{"mode":"exact","expected":[{"tool":"a"},{"tool":"b"}]}`))

	approx(t, res.Score, 0)
	if res.Verdict != types.VerdictFail {
		t.Errorf("verdict = %s, want fail", res.Verdict)
	}
}

func TestTrajectoryArgsPartialMatch(t *testing.T) {
	e := &TrajectoryEvaluator{}
	ec := callCtx(types.ToolCall{
		Tool: "lookup",
		Args: map[string]any{"user": "u1", "verbose": true},
	})

	res := e.Evaluate(context.Background(), ec, trajConfig(t,
		`{"expected":[{"tool":"lookup","args":{"user":"u1"}}]}`))

	approx(t, res.Score, 1.0)
}

func TestTrajectoryArgsMismatch(t *testing.T) {
	e := &TrajectoryEvaluator{}
	ec := callCtx(types.ToolCall{Tool: "lookup", Args: map[string]any{"user": "u2"}})

	res := e.Evaluate(context.Background(), ec, trajConfig(t,
		`{"expected":[{"tool":"lookup","args":{"user":"u1"}}]}`))

	approx(t, res.Score, 0)
	if len(res.Misses) != 1 || !strings.Contains(res.Misses[0], "unexpected arguments") {
		t.Errorf("misses = %v", res.Misses)
	}
}

func TestTrajectoryArgsAnySkipsCheck(t *testing.T) {
	e := &TrajectoryEvaluator{}
	ec := callCtx(types.ToolCall{Tool: "lookup", Args: map[string]any{"user": "whatever"}})

	res := e.Evaluate(context.Background(), ec, trajConfig(t,
		`{"expected":[{"tool":"lookup","args":"any"}]}`))

	approx(t, res.Score, 1.0)
}

func TestTrajectoryNestedArgsMatchRecursively(t *testing.T) {
	e := &TrajectoryEvaluator{}
	ec := callCtx(types.ToolCall{
		Tool: "update",
		Args: map[string]any{"order": map[string]any{"id": float64(7), "state": "open", "note": "x"}},
	})

	res := e.Evaluate(context.Background(), ec, trajConfig(t,
		`{"expected":[{"tool":"update","args":{"order":{"id":7,"state":"open"}}}]}`))

	approx(t, res.Score, 1.0)
}

func TestTrajectoryLatencyBound(t *testing.T) {
	fast := int64(120)
	slow := int64(900)
	e := &TrajectoryEvaluator{}
	ec := callCtx(
		types.ToolCall{Tool: "fast", DurationMS: &fast},
		types.ToolCall{Tool: "slow", DurationMS: &slow},
	)

	res := e.Evaluate(context.Background(), ec, trajConfig(t,
		`{"expected":[{"tool":"fast","max_duration_ms":500},{"tool":"slow","max_duration_ms":500}]}`))

	// fast: presence + latency hit, slow: presence hit + latency miss.
	approx(t, res.Score, 0.75)
}

func TestTrajectoryLatencyNeutralWithoutDuration(t *testing.T) {
	e := &TrajectoryEvaluator{}
	ec := callCtx(types.ToolCall{Tool: "fast"})

	res := e.Evaluate(context.Background(), ec, trajConfig(t,
		`{"expected":[{"tool":"fast","max_duration_ms":500}]}`))

	// Unrecorded duration is not scored either way.
	approx(t, res.Score, 1.0)
	if !strings.Contains(res.Reasoning, "no recorded duration") {
		t.Errorf("reasoning = %q", res.Reasoning)
	}
}

func TestTrajectoryReadsEventsOverMessages(t *testing.T) {
	e := &TrajectoryEvaluator{}
	ec := &Context{
		Case: &types.EvalCase{ID: "c1"},
		Events: []types.TraceEvent{
			{Kind: types.EventToolCall, Name: "lookup", Input: json.RawMessage(`{"user":"u1"}`)},
		},
		OutputMessages: []types.Message{{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{{Tool: "other"}}}},
	}

	res := e.Evaluate(context.Background(), ec, trajConfig(t,
		`{"expected":[{"tool":"lookup"}]}`))

	approx(t, res.Score, 1.0)
}

func TestTrajectoryEmptySpecRejected(t *testing.T) {
	e := &TrajectoryEvaluator{}
	res := e.Evaluate(context.Background(), callCtx(), trajConfig(t, `{}`))

	approx(t, res.Score, 0)
	if len(res.Misses) == 0 {
		t.Error("expected a miss explaining the empty spec")
	}
}
