package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/segmentio/encoding/json"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// FieldAccuracyEvaluator scores structured output field by field. The
// candidate answer is parsed as JSON (tolerating surrounding prose and
// code fences) and each declared field check is one scored aspect. An
// optional JSON Schema adds a validation aspect.
type FieldAccuracyEvaluator struct{}

type fieldAccuracySpec struct {
	Fields []fieldCheck    `json:"fields"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

// fieldCheck declares one expectation about a dot-path field. Exactly one
// of Equals, Contains, or Op should be set.
type fieldCheck struct {
	Path     string          `json:"path"`
	Equals   json.RawMessage `json:"equals,omitempty"`
	Contains string          `json:"contains,omitempty"`
	Op       string          `json:"op,omitempty"`
	Value    *float64        `json:"value,omitempty"`
	Max      *float64        `json:"max,omitempty"`
}

func (e *FieldAccuracyEvaluator) Evaluate(_ context.Context, ec *Context, cfg *types.EvaluatorConfig) *types.EvaluatorResult {
	start := time.Now()

	var spec fieldAccuracySpec
	if err := json.Unmarshal(cfg.Spec, &spec); err != nil {
		return failResult(cfg, start, "invalid field_accuracy spec: %v", err)
	}
	if len(spec.Fields) == 0 && len(spec.Schema) == 0 {
		return failResult(cfg, start, "field_accuracy spec declares no fields or schema")
	}

	payload, ok := extractJSON(ec.Output)
	if !ok {
		return failResult(cfg, start, "candidate output contains no parseable JSON")
	}

	var root map[string]any
	if err := json.Unmarshal([]byte(payload), &root); err != nil {
		return failResult(cfg, start, "candidate JSON is not an object: %v", err)
	}

	var hits, misses []string
	for i := range spec.Fields {
		f := &spec.Fields[i]
		if ok, desc := checkField(f, root); ok {
			hits = append(hits, desc)
		} else {
			misses = append(misses, desc)
		}
	}

	if len(spec.Schema) > 0 {
		if err := validateSchema(spec.Schema, payload); err != nil {
			misses = append(misses, fmt.Sprintf("schema validation failed: %v", err))
		} else {
			hits = append(hits, "output conforms to schema")
		}
	}

	total := len(hits) + len(misses)
	score := 0.0
	if total > 0 {
		score = float64(len(hits)) / float64(total)
	}

	return &types.EvaluatorResult{
		Score:      score,
		Verdict:    VerdictForScore(score),
		Hits:       hits,
		Misses:     misses,
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func checkField(f *fieldCheck, root map[string]any) (bool, string) {
	val, found := lookupPath(root, f.Path)
	if !found {
		return false, fmt.Sprintf("field %s not found", f.Path)
	}

	switch {
	case len(f.Equals) > 0:
		var want any
		if err := json.Unmarshal(f.Equals, &want); err != nil {
			return false, fmt.Sprintf("field %s: invalid expected value: %v", f.Path, err)
		}
		if valueMatch(want, val) {
			return true, fmt.Sprintf("field %s equals expected value", f.Path)
		}
		return false, fmt.Sprintf("field %s = %v, want %v", f.Path, val, want)

	case f.Contains != "":
		s, ok := val.(string)
		if !ok {
			return false, fmt.Sprintf("field %s is not a string", f.Path)
		}
		if strings.Contains(s, f.Contains) {
			return true, fmt.Sprintf("field %s contains %q", f.Path, f.Contains)
		}
		return false, fmt.Sprintf("field %s does not contain %q", f.Path, f.Contains)

	case f.Op != "":
		n, ok := asFloat(val)
		if !ok {
			return false, fmt.Sprintf("field %s is not numeric", f.Path)
		}
		return checkNumeric(f, n)

	default:
		// Bare path check: presence is enough.
		return true, fmt.Sprintf("field %s present", f.Path)
	}
}

func checkNumeric(f *fieldCheck, n float64) (bool, string) {
	if f.Value == nil {
		return false, fmt.Sprintf("field %s: op %q requires value", f.Path, f.Op)
	}
	v := *f.Value
	var ok bool
	switch f.Op {
	case "lt":
		ok = n < v
	case "lte":
		ok = n <= v
	case "gt":
		ok = n > v
	case "gte":
		ok = n >= v
	case "eq":
		ok = n == v
	case "between":
		if f.Max == nil {
			return false, fmt.Sprintf("field %s: op between requires max", f.Path)
		}
		ok = n >= v && n <= *f.Max
	default:
		return false, fmt.Sprintf("field %s: unknown op %q", f.Path, f.Op)
	}
	if ok {
		return true, fmt.Sprintf("field %s satisfies %s %v", f.Path, f.Op, v)
	}
	return false, fmt.Sprintf("field %s = %v, fails %s %v", f.Path, n, f.Op, v)
}

// lookupPath traverses a dot-separated key path through nested objects.
func lookupPath(root map[string]any, path string) (any, bool) {
	cur := any(root)
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// extractJSON pulls a JSON object out of model output: the whole string,
// a fenced code block, or the outermost braces, in that order.
func extractJSON(output string) (string, bool) {
	trimmed := strings.TrimSpace(output)
	if json.Valid([]byte(trimmed)) && strings.HasPrefix(trimmed, "{") {
		return trimmed, true
	}

	if i := strings.Index(output, "```"); i >= 0 {
		rest := output[i+3:]
		if strings.HasPrefix(rest, "json") {
			rest = rest[4:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			candidate := strings.TrimSpace(rest[:j])
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
	}

	first := strings.Index(output, "{")
	last := strings.LastIndex(output, "}")
	if first >= 0 && last > first {
		candidate := output[first : last+1]
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// validateSchema compiles the inline schema and validates the payload.
func validateSchema(schema json.RawMessage, payload string) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(schema)))
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("inline://schema.json", doc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := compiler.Compile("inline://schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(payload))
	if err != nil {
		return fmt.Errorf("parse candidate: %w", err)
	}
	return sch.Validate(inst)
}
