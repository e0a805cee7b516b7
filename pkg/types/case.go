package types

import "encoding/json"

const (
	TypeToolTrajectory     = "tool_trajectory"
	TypeRubric             = "rubric"
	TypeFieldAccuracy      = "field_accuracy"
	TypeLLMJudge           = "llm_judge"
	TypeCodeJudge          = "code_judge"
	TypeComposite          = "composite"
	TypeSemanticSimilarity = "semantic_similarity"
)

// EvalCase is one declarative test scenario. Cases are immutable once loaded;
// the runtime never mutates them.
type EvalCase struct {
	ID         string            `json:"id"`
	Input      []Message         `json:"input"`
	Expected   Expectation       `json:"expected"`
	Evaluators []EvaluatorConfig `json:"evaluators"`
	Files      []string          `json:"files,omitempty"`
	TimeoutMS  int               `json:"timeout_ms,omitempty"`
}

// Question returns the last user message text, which judges receive as the
// task under evaluation.
func (c *EvalCase) Question() string {
	for i := len(c.Input) - 1; i >= 0; i-- {
		if c.Input[i].Role == RoleUser {
			return c.Input[i].Text()
		}
	}
	return ""
}

// Expectation declares what a correct response looks like.
type Expectation struct {
	Outcome  string    `json:"outcome,omitempty"`
	Answer   string    `json:"answer,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

// EvaluatorConfig selects and parameterizes one scoring unit. Spec holds the
// type-specific parameters and is decoded by the evaluator itself.
type EvaluatorConfig struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Weight     *float64          `json:"weight,omitempty"`
	Spec       json.RawMessage   `json:"spec,omitempty"`
	Children   []EvaluatorConfig `json:"children,omitempty"`
	Aggregator string            `json:"aggregator,omitempty"`
}

// EffectiveWeight returns the configured weight, defaulting to 1.0 when
// unset. A weight of 0 excludes the evaluator from aggregation.
func (c *EvaluatorConfig) EffectiveWeight() float64 {
	if c.Weight == nil {
		return 1.0
	}
	if *c.Weight < 0 {
		return 0
	}
	return *c.Weight
}
