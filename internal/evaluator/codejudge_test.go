package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// fakeRunner returns canned judge outputs and records the invocation.
type fakeRunner struct {
	out         *types.JudgeOutput
	err         error
	lastScript  string
	lastArgs    []string
	lastTimeout time.Duration
	lastInput   *types.JudgeInput
}

func (f *fakeRunner) RunJudge(_ context.Context, script string, args []string, timeout time.Duration, input *types.JudgeInput) (*types.JudgeOutput, error) {
	f.lastScript = script
	f.lastArgs = args
	f.lastTimeout = timeout
	f.lastInput = input
	return f.out, f.err
}

func codeJudgeConfig(spec string) *types.EvaluatorConfig {
	return &types.EvaluatorConfig{
		Name: "grader",
		Type: types.TypeCodeJudge,
		Spec: json.RawMessage(spec),
	}
}

func TestCodeJudgeMapsOutput(t *testing.T) {
	runner := &fakeRunner{out: &types.JudgeOutput{
		Score:     0.75,
		Hits:      []string{"format ok"},
		Misses:    []string{"missing citation"},
		Reasoning: "mostly correct",
	}}
	e := NewCodeJudgeEvaluator(runner)

	res := e.Evaluate(context.Background(), judgeCtx(), codeJudgeConfig(
		`{"script":"./grade.py","args":["--strict"],"timeout_ms":5000}`))

	approx(t, res.Score, 0.75)
	if res.Verdict != types.VerdictBorderline {
		t.Errorf("verdict = %s", res.Verdict)
	}
	if runner.lastScript != "./grade.py" {
		t.Errorf("script = %s", runner.lastScript)
	}
	if len(runner.lastArgs) != 1 || runner.lastArgs[0] != "--strict" {
		t.Errorf("args = %v", runner.lastArgs)
	}
	if runner.lastTimeout != 5*time.Second {
		t.Errorf("timeout = %v", runner.lastTimeout)
	}
}

func TestCodeJudgeDefaultTimeout(t *testing.T) {
	runner := &fakeRunner{out: &types.JudgeOutput{Score: 1}}
	e := NewCodeJudgeEvaluator(runner)

	e.Evaluate(context.Background(), judgeCtx(), codeJudgeConfig(`{"script":"./g"}`))

	if runner.lastTimeout != defaultCodeJudgeTimeout {
		t.Errorf("timeout = %v, want %v", runner.lastTimeout, defaultCodeJudgeTimeout)
	}
}

func TestCodeJudgeSynthesizedFailureStillScores(t *testing.T) {
	// A crashed script yields a synthesized zero-score output plus an error.
	runner := &fakeRunner{
		out: &types.JudgeOutput{Score: 0, Misses: []string{"judge script failed: exit status 1"}},
		err: errors.New("exit status 1"),
	}
	e := NewCodeJudgeEvaluator(runner)

	res := e.Evaluate(context.Background(), judgeCtx(), codeJudgeConfig(`{"script":"./g"}`))

	approx(t, res.Score, 0)
	if len(res.Misses) != 1 {
		t.Errorf("misses = %v", res.Misses)
	}
}

func TestCodeJudgeMissingScript(t *testing.T) {
	e := NewCodeJudgeEvaluator(&fakeRunner{})
	res := e.Evaluate(context.Background(), judgeCtx(), codeJudgeConfig(`{}`))

	approx(t, res.Score, 0)
	if len(res.Misses) == 0 {
		t.Error("expected miss for missing script")
	}
}

func TestCodeJudgeInputCarriesCase(t *testing.T) {
	runner := &fakeRunner{out: &types.JudgeOutput{Score: 1}}
	e := NewCodeJudgeEvaluator(runner)

	e.Evaluate(context.Background(), judgeCtx(), codeJudgeConfig(`{"script":"./g"}`))

	if runner.lastInput == nil {
		t.Fatal("runner never received input")
	}
	if runner.lastInput.Question != "What is the refund policy?" {
		t.Errorf("question = %q", runner.lastInput.Question)
	}
	if runner.lastInput.CandidateAnswer == "" {
		t.Error("candidate answer missing")
	}
}
