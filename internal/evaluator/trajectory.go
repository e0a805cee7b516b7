package evaluator

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/arbiterlabs/arbiter/internal/trace"
	"github.com/arbiterlabs/arbiter/pkg/types"
)

// TrajectoryEvaluator scores the sequence of tool calls an agent made
// against a declared expectation, under one of three ordering disciplines.
type TrajectoryEvaluator struct{}

// trajectorySpec is the expected structure of the evaluator spec JSON.
type trajectorySpec struct {
	Mode     string         `json:"mode"`
	Expected []expectedCall `json:"expected,omitempty"`
	Minimums map[string]int `json:"minimums,omitempty"`
}

// expectedCall declares one expected tool invocation. Args of null or
// "any" skip argument checking.
type expectedCall struct {
	Tool          string          `json:"tool"`
	Args          json.RawMessage `json:"args,omitempty"`
	MaxDurationMS *int64          `json:"max_duration_ms,omitempty"`
}

// wantArgs decodes the expected args, reporting checked=false when the
// entry matches any arguments.
func (e *expectedCall) wantArgs() (args map[string]any, checked bool, err error) {
	if len(e.Args) == 0 || bytes.Equal(e.Args, []byte("null")) || bytes.Equal(e.Args, []byte(`"any"`)) {
		return nil, false, nil
	}
	if err := json.Unmarshal(e.Args, &args); err != nil {
		return nil, false, fmt.Errorf("expected args for %s: %w", e.Tool, err)
	}
	return args, true, nil
}

func (e *TrajectoryEvaluator) Evaluate(_ context.Context, ec *Context, cfg *types.EvaluatorConfig) *types.EvaluatorResult {
	start := time.Now()

	var spec trajectorySpec
	if len(cfg.Spec) > 0 {
		if err := json.Unmarshal(cfg.Spec, &spec); err != nil {
			return failResult(cfg, start, "invalid trajectory spec: %v", err)
		}
	}
	mode := spec.Mode
	if mode == "" {
		mode = "any_order"
	}
	if len(spec.Expected) == 0 && len(spec.Minimums) == 0 {
		return failResult(cfg, start, "trajectory spec declares no expected calls or minimums")
	}

	calls, ok := ec.Calls()
	if !ok {
		return failResult(cfg, start, "%s", types.NoTraceMiss)
	}

	var hits, misses, notes []string
	switch mode {
	case "any_order":
		hits, misses, notes = scoreAnyOrder(&spec, calls)
	case "in_order":
		hits, misses, notes = scoreInOrder(spec.Expected, calls)
	case "exact":
		hits, misses, notes = scoreExact(spec.Expected, calls)
	default:
		return failResult(cfg, start, "unknown trajectory mode: %s", mode)
	}

	total := len(hits) + len(misses)
	score := 0.0
	if total > 0 {
		score = float64(len(hits)) / float64(total)
	}

	return &types.EvaluatorResult{
		Score:      score,
		Verdict:    VerdictForScore(score),
		Hits:       hits,
		Misses:     misses,
		Reasoning:  strings.Join(notes, " "),
		DurationMS: time.Since(start).Milliseconds(),
	}
}

// scoreAnyOrder checks presence without regard to position. Each expected
// entry and each minimum is one scored aspect.
func scoreAnyOrder(spec *trajectorySpec, calls []trace.Call) (hits, misses, notes []string) {
	used := make([]bool, len(calls))
	for i := range spec.Expected {
		exp := &spec.Expected[i]
		idx := findCall(exp, calls, used, 0)
		if idx < 0 {
			misses = append(misses, missFor(exp, calls))
			continue
		}
		used[idx] = true
		hits = append(hits, fmt.Sprintf("called %s", exp.Tool))
		h, m, n := checkLatency(exp, &calls[idx])
		hits, misses, notes = append(hits, h...), append(misses, m...), append(notes, n...)
	}

	counts := make(map[string]int, len(calls))
	for i := range calls {
		counts[calls[i].Tool]++
	}
	tools := make([]string, 0, len(spec.Minimums))
	for tool := range spec.Minimums {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	for _, tool := range tools {
		min := spec.Minimums[tool]
		if counts[tool] >= min {
			hits = append(hits, fmt.Sprintf("%s called %d times (minimum %d)", tool, counts[tool], min))
		} else {
			misses = append(misses, fmt.Sprintf("%s called %d times, minimum %d", tool, counts[tool], min))
		}
	}
	return hits, misses, notes
}

// scoreInOrder requires expected calls to appear as a subsequence of the
// actual calls. The cursor does not advance past a miss, so later
// expectations can still match.
func scoreInOrder(expected []expectedCall, calls []trace.Call) (hits, misses, notes []string) {
	used := make([]bool, len(calls))
	cursor := 0
	for i := range expected {
		exp := &expected[i]
		idx := findCall(exp, calls, used, cursor)
		if idx < 0 {
			misses = append(misses, missFor(exp, calls))
			continue
		}
		used[idx] = true
		cursor = idx + 1
		hits = append(hits, fmt.Sprintf("called %s in order", exp.Tool))
		h, m, n := checkLatency(exp, &calls[idx])
		hits, misses, notes = append(hits, h...), append(misses, m...), append(notes, n...)
	}
	return hits, misses, notes
}

// scoreExact requires position-by-position agreement. A length mismatch
// is itself a scored miss, so [A,B] against [A,B,C] scores 2/3.
func scoreExact(expected []expectedCall, calls []trace.Call) (hits, misses, notes []string) {
	n := len(expected)
	if len(calls) < n {
		n = len(calls)
	}
	for i := 0; i < n; i++ {
		exp := &expected[i]
		ok, err := callMatches(exp, &calls[i])
		if err != nil {
			misses = append(misses, err.Error())
			continue
		}
		if !ok {
			misses = append(misses, fmt.Sprintf("position %d: expected %s, got %s", i, exp.Tool, calls[i].Tool))
			continue
		}
		hits = append(hits, fmt.Sprintf("position %d: %s", i, exp.Tool))
		h, m, nn := checkLatency(exp, &calls[i])
		hits, misses, notes = append(hits, h...), append(misses, m...), append(notes, nn...)
	}
	for i := n; i < len(expected); i++ {
		misses = append(misses, fmt.Sprintf("position %d: expected %s, got nothing", i, expected[i].Tool))
	}
	if len(calls) != len(expected) {
		misses = append(misses, fmt.Sprintf("Expected %d tool calls, got %d", len(expected), len(calls)))
	}
	return hits, misses, notes
}

// findCall returns the index of the first unused call at or after from
// matching the expectation, or -1.
func findCall(exp *expectedCall, calls []trace.Call, used []bool, from int) int {
	for i := from; i < len(calls); i++ {
		if used[i] {
			continue
		}
		if ok, err := callMatches(exp, &calls[i]); err == nil && ok {
			return i
		}
	}
	return -1
}

func callMatches(exp *expectedCall, call *trace.Call) (bool, error) {
	if call.Tool != exp.Tool {
		return false, nil
	}
	want, checked, err := exp.wantArgs()
	if err != nil {
		return false, err
	}
	if !checked {
		return true, nil
	}
	return argsMatch(want, call.Args), nil
}

// missFor distinguishes a wrong-arguments miss from an absent tool.
func missFor(exp *expectedCall, calls []trace.Call) string {
	for i := range calls {
		if calls[i].Tool == exp.Tool {
			return fmt.Sprintf("%s called with unexpected arguments", exp.Tool)
		}
	}
	return fmt.Sprintf("missing tool call: %s", exp.Tool)
}

// checkLatency scores a max_duration_ms bound when the call's duration is
// known. An unrecorded duration is neutral and only noted.
func checkLatency(exp *expectedCall, call *trace.Call) (hits, misses, notes []string) {
	if exp.MaxDurationMS == nil {
		return nil, nil, nil
	}
	if call.DurationMS == nil {
		return nil, nil, []string{fmt.Sprintf("%s has no recorded duration; latency bound not scored.", exp.Tool)}
	}
	if *call.DurationMS <= *exp.MaxDurationMS {
		return []string{fmt.Sprintf("%s completed in %dms (limit %dms)", exp.Tool, *call.DurationMS, *exp.MaxDurationMS)}, nil, nil
	}
	return nil, []string{fmt.Sprintf("%s took %dms, limit %dms", exp.Tool, *call.DurationMS, *exp.MaxDurationMS)}, nil
}
