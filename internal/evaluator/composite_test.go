package evaluator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

func weight(w float64) *float64 { return &w }

func TestCompositeWeightedAverage(t *testing.T) {
	r := NewRegistry()
	ec := outputCtx("alpha and beta are both here")

	cfg := &types.EvaluatorConfig{
		Name: "combo",
		Type: types.TypeComposite,
		Children: []types.EvaluatorConfig{
			{
				Name:   "has-alpha",
				Type:   types.TypeRubric,
				Weight: weight(3),
				Spec:   json.RawMessage(`{"criteria":[{"check":"contains","value":"alpha"}]}`),
			},
			{
				Name:   "has-gamma",
				Type:   types.TypeRubric,
				Weight: weight(1),
				Spec:   json.RawMessage(`{"criteria":[{"check":"contains","value":"gamma"}]}`),
			},
		},
	}

	res := r.Run(context.Background(), ec, cfg)

	approx(t, res.Score, 0.75)
	if len(res.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(res.Children))
	}
	if res.Children[0].Name != "has-alpha" || res.Children[0].Score != 1.0 {
		t.Errorf("child[0] = %+v", res.Children[0])
	}
}

func TestCompositeNested(t *testing.T) {
	r := NewRegistry()
	ec := outputCtx("alpha")

	cfg := &types.EvaluatorConfig{
		Name: "outer",
		Type: types.TypeComposite,
		Children: []types.EvaluatorConfig{
			{
				Name: "inner",
				Type: types.TypeComposite,
				Children: []types.EvaluatorConfig{
					{
						Name: "leaf",
						Type: types.TypeRubric,
						Spec: json.RawMessage(`{"criteria":[{"check":"contains","value":"alpha"}]}`),
					},
				},
			},
		},
	}

	res := r.Run(context.Background(), ec, cfg)

	approx(t, res.Score, 1.0)
	if len(res.Children) != 1 || len(res.Children[0].Children) != 1 {
		t.Errorf("nested children not preserved: %+v", res.Children)
	}
}

func TestCompositeNoChildren(t *testing.T) {
	r := NewRegistry()
	res := r.Run(context.Background(), outputCtx("x"), &types.EvaluatorConfig{
		Name: "empty",
		Type: types.TypeComposite,
	})

	approx(t, res.Score, 0)
	if res.Verdict != types.VerdictFail {
		t.Errorf("verdict = %s", res.Verdict)
	}
}

func TestCompositeUnknownChildTypeSettles(t *testing.T) {
	r := NewRegistry()
	ec := outputCtx("alpha")

	cfg := &types.EvaluatorConfig{
		Name: "combo",
		Type: types.TypeComposite,
		Children: []types.EvaluatorConfig{
			{Name: "bad", Type: "does_not_exist"},
			{
				Name: "good",
				Type: types.TypeRubric,
				Spec: json.RawMessage(`{"criteria":[{"check":"contains","value":"alpha"}]}`),
			},
		},
	}

	res := r.Run(context.Background(), ec, cfg)

	// The unknown child scores zero but the composite still settles.
	approx(t, res.Score, 0.5)
	if len(res.Children) != 2 {
		t.Fatalf("children = %d", len(res.Children))
	}
	if res.Children[0].Verdict != types.VerdictFail {
		t.Errorf("bad child verdict = %s", res.Children[0].Verdict)
	}
}

func TestCompositeJudgeAggregatorSeesChildResults(t *testing.T) {
	model := &fakeModel{content: `{"score":0.9,"verdict":"pass","reasoning":"children look good"}`}
	r := NewRegistry(WithJudge(model, nil))
	ec := outputCtx("alpha")

	cfg := &types.EvaluatorConfig{
		Name:       "judged-combo",
		Type:       types.TypeComposite,
		Aggregator: types.TypeLLMJudge,
		Children: []types.EvaluatorConfig{
			{
				Name: "has-alpha",
				Type: types.TypeRubric,
				Spec: json.RawMessage(`{"criteria":[{"check":"contains","value":"alpha"}]}`),
			},
		},
	}

	res := r.Run(context.Background(), ec, cfg)

	approx(t, res.Score, 0.9)
	if len(res.Children) != 1 {
		t.Errorf("children = %d", len(res.Children))
	}
	if model.calls != 1 {
		t.Errorf("model calls = %d", model.calls)
	}
	if model.lastReq == nil {
		t.Fatal("model never called")
	}
	// The judge must see the children it is aggregating.
	prompt := model.lastReq.Prompt
	if !strings.Contains(prompt, "Child evaluator results:") {
		t.Fatalf("prompt carries no child section:\n%s", prompt)
	}
	if !strings.Contains(prompt, "has-alpha (rubric): score 1.000, verdict pass") {
		t.Errorf("prompt omits child score line:\n%s", prompt)
	}
}

func TestCompositeCodeJudgeAggregator(t *testing.T) {
	runner := &fakeRunner{out: &types.JudgeOutput{Score: 0.6, Reasoning: "aggregated"}}
	r := NewRegistry(WithScriptRunner(runner))
	ec := outputCtx("alpha")

	cfg := &types.EvaluatorConfig{
		Name:       "scripted-combo",
		Type:       types.TypeComposite,
		Aggregator: types.TypeCodeJudge,
		Spec:       json.RawMessage(`{"script":"./agg.py"}`),
		Children: []types.EvaluatorConfig{
			{
				Name: "has-alpha",
				Type: types.TypeRubric,
				Spec: json.RawMessage(`{"criteria":[{"check":"contains","value":"alpha"}]}`),
			},
		},
	}

	res := r.Run(context.Background(), ec, cfg)

	approx(t, res.Score, 0.6)
	if runner.lastInput == nil {
		t.Fatal("runner never called")
	}
	child, ok := runner.lastInput.ChildResults["has-alpha"]
	if !ok {
		t.Fatalf("child results = %v, want has-alpha", runner.lastInput.ChildResults)
	}
	if child.Score != 1.0 {
		t.Errorf("child score = %v", child.Score)
	}
}

func TestCompositeUnknownAggregator(t *testing.T) {
	r := NewRegistry()
	res := r.Run(context.Background(), outputCtx("x"), &types.EvaluatorConfig{
		Name:       "combo",
		Type:       types.TypeComposite,
		Aggregator: "median",
		Children: []types.EvaluatorConfig{
			{Name: "c", Type: types.TypeRubric, Spec: json.RawMessage(`{"criteria":[{"check":"contains","value":"x"}]}`)},
		},
	})

	approx(t, res.Score, 0)
	if len(res.Misses) == 0 {
		t.Error("expected miss naming unknown aggregator")
	}
}
