package evaluator

import (
	"context"
	"time"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// CompositeEvaluator runs child evaluators and folds their results into a
// single score, either by weighted average or by handing the child
// results to a judge aggregator.
type CompositeEvaluator struct {
	registry *Registry
}

// NewCompositeEvaluator creates a composite evaluator resolving children
// through the given registry.
func NewCompositeEvaluator(r *Registry) *CompositeEvaluator {
	return &CompositeEvaluator{registry: r}
}

func (e *CompositeEvaluator) Evaluate(ctx context.Context, ec *Context, cfg *types.EvaluatorConfig) *types.EvaluatorResult {
	start := time.Now()

	if len(cfg.Children) == 0 {
		return failResult(cfg, start, "composite evaluator declares no children")
	}

	children := make([]types.EvaluatorResult, 0, len(cfg.Children))
	byName := make(map[string]types.EvaluatorResult, len(cfg.Children))
	for i := range cfg.Children {
		child := cfg.Children[i]
		res := e.registry.Run(ctx, ec, &child)
		children = append(children, *res)
		key := child.Name
		if key == "" {
			key = child.Type
		}
		byName[key] = *res
	}

	aggregator := cfg.Aggregator
	if aggregator == "" {
		aggregator = "weighted_average"
	}

	var res *types.EvaluatorResult
	switch aggregator {
	case "weighted_average":
		score := Aggregate(children)
		res = &types.EvaluatorResult{
			Score:   score,
			Verdict: VerdictForScore(score),
		}

	case types.TypeLLMJudge, types.TypeCodeJudge:
		// The judge sees both the case and the children's scores; its spec
		// comes from the composite config.
		judged := *ec
		judged.ChildResults = byName
		sub := &types.EvaluatorConfig{
			Name: cfg.Name,
			Type: aggregator,
			Spec: cfg.Spec,
		}
		res = e.registry.Run(ctx, &judged, sub)

	default:
		res = failResult(cfg, start, "unknown composite aggregator: %s", aggregator)
	}

	res.Children = children
	res.DurationMS = time.Since(start).Milliseconds()
	return res
}
