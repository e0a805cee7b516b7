package evaluator

import "reflect"

// argsMatch reports whether actual tool-call args satisfy the expected
// args. Matching is partial: every expected key must be present and match,
// extra actual keys are ignored. Nested objects match recursively under
// the same partial rule; arrays must match element-wise and in length.
func argsMatch(expected, actual map[string]any) bool {
	for k, ev := range expected {
		av, ok := actual[k]
		if !ok {
			return false
		}
		if !valueMatch(ev, av) {
			return false
		}
	}
	return true
}

func valueMatch(expected, actual any) bool {
	switch e := expected.(type) {
	case map[string]any:
		a, ok := actual.(map[string]any)
		return ok && argsMatch(e, a)
	case []any:
		a, ok := actual.([]any)
		if !ok || len(a) != len(e) {
			return false
		}
		for i := range e {
			if !valueMatch(e[i], a[i]) {
				return false
			}
		}
		return true
	default:
		if ef, ok := asFloat(expected); ok {
			af, aok := asFloat(actual)
			return aok && ef == af
		}
		return reflect.DeepEqual(expected, actual)
	}
}

// asFloat normalizes JSON numbers so int-typed expectations compare equal
// to float64-decoded actuals.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
