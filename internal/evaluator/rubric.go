package evaluator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// maxRegexPatternLength caps regex criteria to prevent ReDoS from
// untrusted case files.
const maxRegexPatternLength = 10000

// RubricEvaluator scores the candidate answer against a list of
// deterministic text criteria. Each criterion contributes its weight to
// the score when satisfied.
type RubricEvaluator struct{}

type rubricSpec struct {
	Criteria []rubricCriterion `json:"criteria"`
}

type rubricCriterion struct {
	Check         string   `json:"check"`
	Value         string   `json:"value,omitempty"`
	Values        []string `json:"values,omitempty"`
	Weight        *float64 `json:"weight,omitempty"`
	CaseSensitive bool     `json:"case_sensitive,omitempty"`
}

func (c *rubricCriterion) weight() float64 {
	if c.Weight == nil {
		return 1.0
	}
	if *c.Weight < 0 {
		return 0
	}
	return *c.Weight
}

func (e *RubricEvaluator) Evaluate(_ context.Context, ec *Context, cfg *types.EvaluatorConfig) *types.EvaluatorResult {
	start := time.Now()

	var spec rubricSpec
	if err := json.Unmarshal(cfg.Spec, &spec); err != nil {
		return failResult(cfg, start, "invalid rubric spec: %v", err)
	}
	if len(spec.Criteria) == 0 {
		return failResult(cfg, start, "rubric spec declares no criteria")
	}

	var hits, misses []string
	var earned, total float64
	for i := range spec.Criteria {
		c := &spec.Criteria[i]
		w := c.weight()
		total += w

		ok, desc, err := checkCriterion(c, ec.Output)
		if err != nil {
			misses = append(misses, err.Error())
			continue
		}
		if ok {
			earned += w
			hits = append(hits, desc)
		} else {
			misses = append(misses, desc)
		}
	}

	score := 0.0
	if total > 0 {
		score = earned / total
	}

	return &types.EvaluatorResult{
		Score:      score,
		Verdict:    VerdictForScore(score),
		Hits:       hits,
		Misses:     misses,
		DurationMS: time.Since(start).Milliseconds(),
	}
}

// checkCriterion evaluates one criterion against the output text,
// returning whether it held and a human-readable description.
func checkCriterion(c *rubricCriterion, output string) (bool, string, error) {
	target := output
	value := c.Value
	if !c.CaseSensitive {
		target = strings.ToLower(output)
		value = strings.ToLower(c.Value)
	}

	switch c.Check {
	case "contains":
		if strings.Contains(target, value) {
			return true, fmt.Sprintf("output contains %q", c.Value), nil
		}
		return false, fmt.Sprintf("output does not contain %q", c.Value), nil

	case "not_contains":
		if !strings.Contains(target, value) {
			return true, fmt.Sprintf("output does not contain %q", c.Value), nil
		}
		return false, fmt.Sprintf("output contains %q but should not", c.Value), nil

	case "regex_match":
		if len(c.Value) > maxRegexPatternLength {
			return false, "", fmt.Errorf("regex pattern exceeds maximum length: %d > %d", len(c.Value), maxRegexPatternLength)
		}
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return false, "", fmt.Errorf("invalid regex %q: %v", c.Value, err)
		}
		if re.MatchString(output) {
			return true, fmt.Sprintf("output matches regex %q", c.Value), nil
		}
		return false, fmt.Sprintf("output does not match regex %q", c.Value), nil

	case "keyword_all":
		var missing []string
		for _, kw := range c.Values {
			cmp := kw
			if !c.CaseSensitive {
				cmp = strings.ToLower(kw)
			}
			if !strings.Contains(target, cmp) {
				missing = append(missing, kw)
			}
		}
		if len(missing) == 0 {
			return true, "output contains all keywords", nil
		}
		return false, fmt.Sprintf("output missing keywords: %v", missing), nil

	case "keyword_any":
		for _, kw := range c.Values {
			cmp := kw
			if !c.CaseSensitive {
				cmp = strings.ToLower(kw)
			}
			if strings.Contains(target, cmp) {
				return true, fmt.Sprintf("output contains keyword %q", kw), nil
			}
		}
		return false, fmt.Sprintf("output contains none of keywords: %v", c.Values), nil

	case "equals":
		if strings.TrimSpace(target) == strings.TrimSpace(value) {
			return true, "output equals expected value", nil
		}
		return false, fmt.Sprintf("output does not equal %q", c.Value), nil

	default:
		return false, "", fmt.Errorf("unknown rubric check: %s", c.Check)
	}
}
