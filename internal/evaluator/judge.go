package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/arbiterlabs/arbiter/internal/cache"
	"github.com/arbiterlabs/arbiter/pkg/types"
)

// defaultJudgeSystemPrompt is used when the config carries no rubric text.
const defaultJudgeSystemPrompt = `You are an impartial evaluator of AI assistant answers.
Score the candidate answer against the task and expected outcome.
Respond with only a JSON object:
{"score": <0.0-1.0>, "verdict": "<pass|borderline|partial|fail>", "hits": ["..."], "misses": ["..."], "reasoning": "..."}`

const judgeMaxTokens = 512

// JudgeEvaluator scores answers by asking a judge model, with optional
// verdict caching keyed by prompt content, rubric, and model.
type JudgeEvaluator struct {
	model ModelClient
	cache *cache.JudgeCache
}

// NewJudgeEvaluator creates an evaluator using the given model client and
// optional cache. c may be nil to disable caching.
func NewJudgeEvaluator(model ModelClient, c *cache.JudgeCache) *JudgeEvaluator {
	return &JudgeEvaluator{model: model, cache: c}
}

// judgeSpec is the expected structure of the evaluator spec JSON.
type judgeSpec struct {
	Criteria string `json:"criteria,omitempty"`
	Rubric   string `json:"rubric,omitempty"`
	Model    string `json:"model,omitempty"`
}

func (e *JudgeEvaluator) Evaluate(ctx context.Context, ec *Context, cfg *types.EvaluatorConfig) *types.EvaluatorResult {
	start := time.Now()

	var spec judgeSpec
	if len(cfg.Spec) > 0 {
		if err := json.Unmarshal(cfg.Spec, &spec); err != nil {
			return failResult(cfg, start, "invalid judge spec: %v", err)
		}
	}

	model := spec.Model
	if model == "" {
		model = e.model.DefaultModel()
	}
	system := spec.Rubric
	rubricName := "inline"
	if system == "" {
		system = defaultJudgeSystemPrompt
		rubricName = "default"
	}

	prompt := RenderJudgePrompt(ec.JudgeInput(), spec.Criteria)

	var contentHash string
	if e.cache != nil {
		contentHash = cache.JudgeContentHash(system + "\n" + prompt)
		if cached, cErr := e.cache.Get(contentHash, rubricName, model); cErr == nil && cached != nil {
			return &types.EvaluatorResult{
				Score:      cached.Score,
				Verdict:    cached.Verdict,
				Reasoning:  cached.Reasoning,
				DurationMS: time.Since(start).Milliseconds(),
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, judgeTimeout())
	defer cancel()

	resp, err := e.model.Complete(callCtx, &ModelRequest{
		Model:       model,
		System:      system,
		Prompt:      prompt,
		Temperature: 0.0,
		MaxTokens:   judgeMaxTokens,
	})
	if err != nil {
		return failResult(cfg, start, "judge model call failed: %v", err)
	}

	out, err := ParseJudgeOutput(resp.Content)
	if err != nil {
		return failResult(cfg, start, "parse judge response: %v", err)
	}
	out.Sanitize()
	verdict := out.Verdict
	if verdict == "" {
		verdict = VerdictForScore(out.Score)
	}

	if e.cache != nil {
		if putErr := e.cache.Put(contentHash, rubricName, model, &cache.JudgeCacheEntry{
			Score:     out.Score,
			Verdict:   verdict,
			Reasoning: out.Reasoning,
		}); putErr != nil {
			slog.Error("judge cache write error", "err", putErr)
		}
	}

	return &types.EvaluatorResult{
		Score:      out.Score,
		Verdict:    verdict,
		Hits:       out.Hits,
		Misses:     out.Misses,
		Reasoning:  out.Reasoning,
		DurationMS: time.Since(start).Milliseconds(),
	}
}

// RenderJudgePrompt serializes the judge input into the user prompt.
// Sections with no content are omitted.
func RenderJudgePrompt(in *types.JudgeInput, criteria string) string {
	var b strings.Builder
	if criteria != "" {
		fmt.Fprintf(&b, "Evaluation criteria: %s\n\n", criteria)
	}
	fmt.Fprintf(&b, "Task:\n%s\n\n", in.Question)
	if in.ExpectedOutcome != "" {
		fmt.Fprintf(&b, "Expected outcome:\n%s\n\n", in.ExpectedOutcome)
	}
	if in.ReferenceAnswer != "" {
		fmt.Fprintf(&b, "Reference answer:\n%s\n\n", in.ReferenceAnswer)
	}
	b.WriteString("Candidate answer:\n<<<\n")
	b.WriteString(in.CandidateAnswer)
	b.WriteString("\n>>>\n")
	if in.CandidateTraceSummary != nil {
		if raw, err := json.Marshal(in.CandidateTraceSummary); err == nil {
			fmt.Fprintf(&b, "\nTrace summary:\n%s\n", raw)
		}
	}
	if len(in.ChildResults) > 0 {
		names := make([]string, 0, len(in.ChildResults))
		for name := range in.ChildResults {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("\nChild evaluator results:\n")
		for _, name := range names {
			child := in.ChildResults[name]
			fmt.Fprintf(&b, "- %s (%s): score %.3f, verdict %s\n", name, child.Type, child.Score, child.Verdict)
			for _, hit := range child.Hits {
				fmt.Fprintf(&b, "  hit: %s\n", hit)
			}
			for _, miss := range child.Misses {
				fmt.Fprintf(&b, "  miss: %s\n", miss)
			}
		}
	}
	return b.String()
}

// ParseJudgeOutput extracts the JSON verdict from judge model output,
// tolerating code fences and surrounding prose.
func ParseJudgeOutput(content string) (*types.JudgeOutput, error) {
	first := strings.Index(content, "{")
	last := strings.LastIndex(content, "}")
	if first < 0 || last <= first {
		return nil, &types.MalformedJudgeOutputError{Detail: "no JSON object found", Raw: content}
	}
	var out types.JudgeOutput
	if err := json.Unmarshal([]byte(content[first:last+1]), &out); err != nil {
		return nil, &types.MalformedJudgeOutputError{Detail: err.Error(), Raw: content}
	}
	return &out, nil
}

// judgeTimeout reads the judge call timeout from ARBITER_JUDGE_TIMEOUT_S.
// Defaults to 30 seconds when unset or invalid.
func judgeTimeout() time.Duration {
	v := os.Getenv("ARBITER_JUDGE_TIMEOUT_S")
	if v == "" {
		return 30 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 30 * time.Second
	}
	return time.Duration(n) * time.Second
}
