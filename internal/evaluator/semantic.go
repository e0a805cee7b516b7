package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/arbiterlabs/arbiter/internal/cache"
	"github.com/arbiterlabs/arbiter/internal/evaluator/embed"
	"github.com/arbiterlabs/arbiter/pkg/types"
)

const defaultSimilarityThreshold = 0.8

// SemanticEvaluator scores the candidate answer by embedding similarity
// against a reference text. Negative similarity floors at zero.
type SemanticEvaluator struct {
	embedder embed.Embedder
	cache    *cache.EmbeddingCache
}

// NewSemanticEvaluator creates an evaluator using the given embedder and
// optional vector cache. c may be nil to disable caching.
func NewSemanticEvaluator(e embed.Embedder, c *cache.EmbeddingCache) *SemanticEvaluator {
	return &SemanticEvaluator{embedder: e, cache: c}
}

// semanticSpec is the expected structure of the evaluator spec JSON.
type semanticSpec struct {
	Reference string  `json:"reference,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

func (e *SemanticEvaluator) Evaluate(ctx context.Context, ec *Context, cfg *types.EvaluatorConfig) *types.EvaluatorResult {
	start := time.Now()

	var spec semanticSpec
	if len(cfg.Spec) > 0 {
		if err := json.Unmarshal(cfg.Spec, &spec); err != nil {
			return failResult(cfg, start, "invalid semantic_similarity spec: %v", err)
		}
	}
	reference := spec.Reference
	if reference == "" {
		reference = ec.Case.Expected.Answer
	}
	if reference == "" {
		return failResult(cfg, start, "semantic_similarity has no reference text")
	}
	if ec.Output == "" {
		return failResult(cfg, start, "candidate output is empty")
	}
	threshold := spec.Threshold
	if threshold <= 0 {
		threshold = defaultSimilarityThreshold
	}

	candVec, err := e.vector(ctx, ec.Output)
	if err != nil {
		return failResult(cfg, start, "embed candidate: %v", err)
	}
	refVec, err := e.vector(ctx, reference)
	if err != nil {
		return failResult(cfg, start, "embed reference: %v", err)
	}

	sim, err := embed.CosineSimilarity(candVec, refVec)
	if err != nil {
		return failResult(cfg, start, "similarity: %v", err)
	}
	score := sim
	if score < 0 {
		score = 0
	}

	verdict := VerdictForScore(score)
	if score >= threshold {
		verdict = types.VerdictPass
	} else if verdict == types.VerdictPass {
		verdict = types.VerdictBorderline
	}

	return &types.EvaluatorResult{
		Score:      score,
		Verdict:    verdict,
		Reasoning:  fmt.Sprintf("cosine similarity %.3f against reference (threshold %.2f)", sim, threshold),
		DurationMS: time.Since(start).Milliseconds(),
	}
}

// vector embeds text, consulting the cache first. Cache write failures
// are logged and otherwise ignored.
func (e *SemanticEvaluator) vector(ctx context.Context, text string) ([]float32, error) {
	if e.cache == nil {
		return e.embedder.Embed(ctx, text)
	}

	hash := cache.JudgeContentHash(text)
	if vec, err := e.cache.Get(hash, e.embedder.Model()); err == nil && vec != nil {
		return vec, nil
	}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if putErr := e.cache.Put(hash, e.embedder.Model(), vec); putErr != nil {
		slog.Error("embedding cache write error", "err", putErr)
	}
	return vec, nil
}
