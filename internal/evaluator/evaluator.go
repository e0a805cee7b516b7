package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/arbiterlabs/arbiter/internal/cache"
	"github.com/arbiterlabs/arbiter/internal/evaluator/embed"
	"github.com/arbiterlabs/arbiter/internal/trace"
	"github.com/arbiterlabs/arbiter/pkg/types"
)

// Context carries everything evaluators may score for one case: the
// candidate output, its messages, the normalized trace, and run metrics.
type Context struct {
	Case           *types.EvalCase
	Output         string
	OutputMessages []types.Message
	Events         []types.TraceEvent
	Summary        *types.TraceSummary
	Metrics        map[string]any

	// ChildResults is set by composite evaluators so judge aggregators can
	// see their children's scores.
	ChildResults map[string]types.EvaluatorResult
}

// Calls extracts the ordered tool-call sequence, preferring the normalized
// trace over output messages. ok is false when neither source is present.
func (c *Context) Calls() (calls []trace.Call, ok bool) {
	if c.Events != nil {
		return trace.CallsFromEvents(c.Events), true
	}
	if c.OutputMessages != nil {
		return trace.CallsFromMessages(c.OutputMessages), true
	}
	return nil, false
}

// JudgeInput builds the wire envelope handed to judge subprocesses and
// judge prompts.
func (c *Context) JudgeInput() *types.JudgeInput {
	in := &types.JudgeInput{
		Question:                c.Case.Question(),
		ExpectedOutcome:         c.Case.Expected.Outcome,
		ReferenceAnswer:         c.Case.Expected.Answer,
		CandidateAnswer:         c.Output,
		OutputMessages:          c.OutputMessages,
		ReferenceOutputMessages: c.Case.Expected.Messages,
		CandidateTraceSummary:   c.Summary,
		ExecutionMetrics:        c.Metrics,
		Files:                   c.Case.Files,
		ChildResults:            c.ChildResults,
	}
	if in.CandidateTraceSummary == nil && c.Events != nil {
		s := trace.ComputeSummary(c.Events)
		in.CandidateTraceSummary = &s
	}
	return in
}

// Evaluator is the interface for scoring units. Implementations never
// return errors; failures become zero-score results with a miss entry.
type Evaluator interface {
	Evaluate(ctx context.Context, ec *Context, cfg *types.EvaluatorConfig) *types.EvaluatorResult
}

// ScriptRunner executes a judge subprocess. On infrastructure failure it
// returns a synthesized zero-score output alongside the error.
type ScriptRunner interface {
	RunJudge(ctx context.Context, script string, args []string, timeout time.Duration, input *types.JudgeInput) (*types.JudgeOutput, error)
}

// Registry maps evaluator type strings to Evaluator implementations.
type Registry struct {
	evaluators map[string]Evaluator
}

// registryConfig holds optional model-backed evaluator configuration.
type registryConfig struct {
	model      ModelClient
	judgeCache *cache.JudgeCache
	runner     ScriptRunner
	embedder   embed.Embedder
	embCache   *cache.EmbeddingCache
}

// RegistryOption configures optional evaluators on a Registry.
type RegistryOption func(*registryConfig)

// WithJudge enables llm_judge evaluation (and llm_judge composite
// aggregation). c may be nil to disable caching.
func WithJudge(model ModelClient, c *cache.JudgeCache) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.model = model
		cfg.judgeCache = c
	}
}

// WithScriptRunner enables code_judge evaluation (and code_judge
// composite aggregation).
func WithScriptRunner(r ScriptRunner) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.runner = r
	}
}

// WithEmbedding enables semantic_similarity evaluation. c may be nil to
// disable caching.
func WithEmbedding(e embed.Embedder, c *cache.EmbeddingCache) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.embedder = e
		cfg.embCache = c
	}
}

// NewRegistry creates a registry with built-in evaluators registered.
// Deterministic evaluators are always registered; model-, script-, and
// embedding-backed evaluators register when the corresponding option is
// provided.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{evaluators: make(map[string]Evaluator)}
	r.Register(types.TypeToolTrajectory, &TrajectoryEvaluator{})
	r.Register(types.TypeRubric, &RubricEvaluator{})
	r.Register(types.TypeFieldAccuracy, &FieldAccuracyEvaluator{})

	var cfg registryConfig
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.model != nil {
		r.Register(types.TypeLLMJudge, NewJudgeEvaluator(cfg.model, cfg.judgeCache))
	}
	if cfg.runner != nil {
		r.Register(types.TypeCodeJudge, NewCodeJudgeEvaluator(cfg.runner))
	}
	if cfg.embedder != nil {
		r.Register(types.TypeSemanticSimilarity, NewSemanticEvaluator(cfg.embedder, cfg.embCache))
	}
	r.Register(types.TypeComposite, NewCompositeEvaluator(r))

	return r
}

// Register adds an evaluator for a type string.
func (r *Registry) Register(evalType string, eval Evaluator) {
	r.evaluators[evalType] = eval
}

// Has reports whether an evaluator is registered for the given type.
func (r *Registry) Has(evalType string) bool {
	_, ok := r.evaluators[evalType]
	return ok
}

// Get returns the evaluator for a type, or an error if not registered.
func (r *Registry) Get(evalType string) (Evaluator, error) {
	eval, ok := r.evaluators[evalType]
	if !ok {
		return nil, fmt.Errorf("unknown evaluator type: %s", evalType)
	}
	return eval, nil
}

// Run resolves and runs one configured evaluator, normalizing the result:
// name, type, and weight are filled from config and the score is clamped.
// An unknown type yields a zero-score result, never a panic.
func (r *Registry) Run(ctx context.Context, ec *Context, cfg *types.EvaluatorConfig) *types.EvaluatorResult {
	start := time.Now()

	eval, err := r.Get(cfg.Type)
	if err != nil {
		return failResult(cfg, start, "%v", err)
	}

	res := eval.Evaluate(ctx, ec, cfg)
	if res == nil {
		return failResult(cfg, start, "evaluator %s returned no result", cfg.Type)
	}
	res.Name = cfg.Name
	res.Type = cfg.Type
	res.Weight = cfg.EffectiveWeight()
	res.Score = types.ClampScore(res.Score)
	if res.Verdict == "" {
		res.Verdict = VerdictForScore(res.Score)
	}
	return res
}

// EvaluateAll runs every evaluator configured on the case and aggregates
// their weighted scores into a composite score and verdict.
func (r *Registry) EvaluateAll(ctx context.Context, ec *Context) ([]types.EvaluatorResult, float64, string) {
	results := make([]types.EvaluatorResult, 0, len(ec.Case.Evaluators))
	for i := range ec.Case.Evaluators {
		cfg := &ec.Case.Evaluators[i]
		results = append(results, *r.Run(ctx, ec, cfg))
	}
	score := Aggregate(results)
	return results, score, VerdictForScore(score)
}

// failResult builds a zero-score result carrying the failure as a miss.
func failResult(cfg *types.EvaluatorConfig, start time.Time, format string, args ...any) *types.EvaluatorResult {
	return &types.EvaluatorResult{
		Name:       cfg.Name,
		Type:       cfg.Type,
		Score:      0,
		Verdict:    types.VerdictFail,
		Weight:     cfg.EffectiveWeight(),
		Misses:     []string{fmt.Sprintf(format, args...)},
		DurationMS: time.Since(start).Milliseconds(),
	}
}
