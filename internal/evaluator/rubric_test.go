package evaluator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

func rubricConfig(spec string) *types.EvaluatorConfig {
	return &types.EvaluatorConfig{
		Name: "rubric",
		Type: types.TypeRubric,
		Spec: json.RawMessage(spec),
	}
}

func outputCtx(output string) *Context {
	return &Context{Case: &types.EvalCase{ID: "c1"}, Output: output}
}

func TestRubricContains(t *testing.T) {
	e := &RubricEvaluator{}
	res := e.Evaluate(context.Background(), outputCtx("The refund was issued."),
		rubricConfig(`{"criteria":[{"check":"contains","value":"refund"}]}`))

	approx(t, res.Score, 1.0)
}

func TestRubricCaseInsensitiveByDefault(t *testing.T) {
	e := &RubricEvaluator{}
	res := e.Evaluate(context.Background(), outputCtx("REFUND issued"),
		rubricConfig(`{"criteria":[{"check":"contains","value":"refund"}]}`))

	approx(t, res.Score, 1.0)

	res = e.Evaluate(context.Background(), outputCtx("REFUND issued"),
		rubricConfig(`{"criteria":[{"check":"contains","value":"refund","case_sensitive":true}]}`))
	approx(t, res.Score, 0)
}

func TestRubricWeightedCriteria(t *testing.T) {
	e := &RubricEvaluator{}
	res := e.Evaluate(context.Background(), outputCtx("alpha present"),
		rubricConfig(`{"criteria":[
			{"check":"contains","value":"alpha","weight":3},
			{"check":"contains","value":"beta","weight":1}
		]}`))

	approx(t, res.Score, 0.75)
	if len(res.Hits) != 1 || len(res.Misses) != 1 {
		t.Errorf("hits = %v, misses = %v", res.Hits, res.Misses)
	}
}

func TestRubricNotContains(t *testing.T) {
	e := &RubricEvaluator{}
	res := e.Evaluate(context.Background(), outputCtx("all good"),
		rubricConfig(`{"criteria":[{"check":"not_contains","value":"error"}]}`))
	approx(t, res.Score, 1.0)

	res = e.Evaluate(context.Background(), outputCtx("an error occurred"),
		rubricConfig(`{"criteria":[{"check":"not_contains","value":"error"}]}`))
	approx(t, res.Score, 0)
}

func TestRubricRegexMatch(t *testing.T) {
	e := &RubricEvaluator{}
	res := e.Evaluate(context.Background(), outputCtx("order ORD-1234 confirmed"),
		rubricConfig(`{"criteria":[{"check":"regex_match","value":"ORD-\\d{4}"}]}`))
	approx(t, res.Score, 1.0)
}

func TestRubricInvalidRegexIsMiss(t *testing.T) {
	e := &RubricEvaluator{}
	res := e.Evaluate(context.Background(), outputCtx("anything"),
		rubricConfig(`{"criteria":[{"check":"regex_match","value":"("}]}`))
	approx(t, res.Score, 0)
	if len(res.Misses) != 1 {
		t.Errorf("misses = %v", res.Misses)
	}
}

func TestRubricKeywordAll(t *testing.T) {
	e := &RubricEvaluator{}
	res := e.Evaluate(context.Background(), outputCtx("fast and cheap"),
		rubricConfig(`{"criteria":[{"check":"keyword_all","values":["fast","cheap","good"]}]}`))
	// keyword_all is one criterion: all or nothing.
	approx(t, res.Score, 0)

	res = e.Evaluate(context.Background(), outputCtx("fast, cheap, good"),
		rubricConfig(`{"criteria":[{"check":"keyword_all","values":["fast","cheap","good"]}]}`))
	approx(t, res.Score, 1.0)
}

func TestRubricKeywordAny(t *testing.T) {
	e := &RubricEvaluator{}
	res := e.Evaluate(context.Background(), outputCtx("shipped yesterday"),
		rubricConfig(`{"criteria":[{"check":"keyword_any","values":["shipped","delivered"]}]}`))
	approx(t, res.Score, 1.0)
}

func TestRubricUnknownCheckIsMiss(t *testing.T) {
	e := &RubricEvaluator{}
	res := e.Evaluate(context.Background(), outputCtx("x"),
		rubricConfig(`{"criteria":[{"check":"sentiment","value":"positive"}]}`))
	approx(t, res.Score, 0)
}

func TestRubricEmptySpecRejected(t *testing.T) {
	e := &RubricEvaluator{}
	res := e.Evaluate(context.Background(), outputCtx("x"), rubricConfig(`{}`))
	approx(t, res.Score, 0)
	if len(res.Misses) == 0 {
		t.Error("expected a miss for empty criteria")
	}
}
