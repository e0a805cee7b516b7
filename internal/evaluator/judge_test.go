package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arbiterlabs/arbiter/internal/cache"
	"github.com/arbiterlabs/arbiter/pkg/types"
)

// fakeModel returns canned completions and records calls.
type fakeModel struct {
	content string
	err     error
	calls   int
	lastReq *ModelRequest
}

func (f *fakeModel) Complete(_ context.Context, req *ModelRequest) (*ModelResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &ModelResponse{Content: f.content}, nil
}

func (f *fakeModel) DefaultModel() string { return "judge-model" }

func judgeConfig(spec string) *types.EvaluatorConfig {
	cfg := &types.EvaluatorConfig{Name: "judge", Type: types.TypeLLMJudge}
	if spec != "" {
		cfg.Spec = json.RawMessage(spec)
	}
	return cfg
}

func judgeCtx() *Context {
	return &Context{
		Case: &types.EvalCase{
			ID:       "c1",
			Input:    []types.Message{{Role: types.RoleUser, Content: "What is the refund policy?"}},
			Expected: types.Expectation{Outcome: "Explains the 30-day policy"},
		},
		Output: "Refunds are accepted within 30 days.",
	}
}

func TestJudgeScoresFromModelResponse(t *testing.T) {
	model := &fakeModel{content: `{"score":0.9,"verdict":"pass","hits":["policy stated"],"reasoning":"correct"}`}
	e := NewJudgeEvaluator(model, nil)

	res := e.Evaluate(context.Background(), judgeCtx(), judgeConfig(""))

	approx(t, res.Score, 0.9)
	if res.Verdict != types.VerdictPass {
		t.Errorf("verdict = %s", res.Verdict)
	}
	if len(res.Hits) != 1 {
		t.Errorf("hits = %v", res.Hits)
	}
}

func TestJudgeToleratesFencedResponse(t *testing.T) {
	model := &fakeModel{content: "Here is my assessment:\n```json\n{\"score\": 0.7}\n```"}
	e := NewJudgeEvaluator(model, nil)

	res := e.Evaluate(context.Background(), judgeCtx(), judgeConfig(""))

	approx(t, res.Score, 0.7)
	if res.Verdict != types.VerdictBorderline {
		t.Errorf("verdict = %s, want borderline from score gate", res.Verdict)
	}
}

func TestJudgeMalformedResponseFails(t *testing.T) {
	model := &fakeModel{content: "I think it's pretty good."}
	e := NewJudgeEvaluator(model, nil)

	res := e.Evaluate(context.Background(), judgeCtx(), judgeConfig(""))

	approx(t, res.Score, 0)
	if len(res.Misses) == 0 || !strings.Contains(res.Misses[0], "parse judge response") {
		t.Errorf("misses = %v", res.Misses)
	}
}

func TestJudgeModelErrorFails(t *testing.T) {
	model := &fakeModel{err: errors.New("model unreachable")}
	e := NewJudgeEvaluator(model, nil)

	res := e.Evaluate(context.Background(), judgeCtx(), judgeConfig(""))

	approx(t, res.Score, 0)
	if res.Verdict != types.VerdictFail {
		t.Errorf("verdict = %s", res.Verdict)
	}
}

func TestJudgeClampsOutOfRangeScore(t *testing.T) {
	model := &fakeModel{content: `{"score":1.7}`}
	e := NewJudgeEvaluator(model, nil)

	res := e.Evaluate(context.Background(), judgeCtx(), judgeConfig(""))

	approx(t, res.Score, 1.0)
}

func TestJudgePromptCarriesCaseContent(t *testing.T) {
	model := &fakeModel{content: `{"score":1.0}`}
	e := NewJudgeEvaluator(model, nil)

	e.Evaluate(context.Background(), judgeCtx(), judgeConfig(`{"criteria":"be strict"}`))

	if model.lastReq == nil {
		t.Fatal("model never called")
	}
	prompt := model.lastReq.Prompt
	for _, want := range []string{"What is the refund policy?", "30-day policy", "Refunds are accepted", "be strict"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if model.lastReq.Model != "judge-model" {
		t.Errorf("model = %s, want default", model.lastReq.Model)
	}
}

func TestRenderJudgePromptChildResults(t *testing.T) {
	in := &types.JudgeInput{
		Question:        "q",
		CandidateAnswer: "a",
		ChildResults: map[string]types.EvaluatorResult{
			"zeta": {Type: types.TypeRubric, Score: 0.5, Verdict: types.VerdictPartial, Misses: []string{"missing beta"}},
			"alef": {Type: types.TypeToolTrajectory, Score: 1.0, Verdict: types.VerdictPass, Hits: []string{"called lookup"}},
		},
	}

	prompt := RenderJudgePrompt(in, "")

	// Children render sorted by name so cache keys stay stable.
	alef := strings.Index(prompt, "- alef (tool_trajectory): score 1.000, verdict pass")
	zeta := strings.Index(prompt, "- zeta (rubric): score 0.500, verdict partial")
	if alef < 0 || zeta < 0 || alef > zeta {
		t.Fatalf("child lines wrong or unordered:\n%s", prompt)
	}
	if !strings.Contains(prompt, "  hit: called lookup") {
		t.Errorf("hit line missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "  miss: missing beta") {
		t.Errorf("miss line missing:\n%s", prompt)
	}
}

func TestJudgeUsesCache(t *testing.T) {
	c, err := cache.NewJudgeCache(filepath.Join(t.TempDir(), "judge.db"))
	if err != nil {
		t.Fatalf("NewJudgeCache: %v", err)
	}
	defer c.Close()

	model := &fakeModel{content: `{"score":0.85,"verdict":"pass","reasoning":"good"}`}
	e := NewJudgeEvaluator(model, c)

	first := e.Evaluate(context.Background(), judgeCtx(), judgeConfig(""))
	second := e.Evaluate(context.Background(), judgeCtx(), judgeConfig(""))

	if model.calls != 1 {
		t.Errorf("model calls = %d, want 1 (second call cached)", model.calls)
	}
	approx(t, first.Score, 0.85)
	approx(t, second.Score, 0.85)
	if second.Verdict != types.VerdictPass || second.Reasoning != "good" {
		t.Errorf("cached result = %+v", second)
	}
}

func TestParseJudgeOutputErrors(t *testing.T) {
	_, err := ParseJudgeOutput("no json here")
	var mErr *types.MalformedJudgeOutputError
	if !errors.As(err, &mErr) {
		t.Errorf("err = %v, want MalformedJudgeOutputError", err)
	}

	_, err = ParseJudgeOutput(`{"score": "not a number"}`)
	if !errors.As(err, &mErr) {
		t.Errorf("err = %v, want MalformedJudgeOutputError", err)
	}
}
