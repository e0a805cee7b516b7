package evaluator

import "github.com/arbiterlabs/arbiter/pkg/types"

// Verdict gates. A composite score at or above Pass is a pass, at or
// above Borderline a borderline; anything positive below that is partial
// and exactly zero is a fail.
const (
	PassGate       = 0.8
	BorderlineGate = 0.6
)

// Aggregate computes the weighted mean of evaluator scores:
// sum(weight*score) / sum(weight). When every weight is zero the result
// is 0, never NaN.
func Aggregate(results []types.EvaluatorResult) float64 {
	var weighted, total float64
	for i := range results {
		w := results[i].Weight
		if w <= 0 {
			continue
		}
		weighted += w * results[i].Score
		total += w
	}
	if total == 0 {
		return 0
	}
	return types.ClampScore(weighted / total)
}

// VerdictForScore maps a clamped score to a verdict string.
func VerdictForScore(score float64) string {
	score = types.ClampScore(score)
	switch {
	case score >= PassGate:
		return types.VerdictPass
	case score >= BorderlineGate:
		return types.VerdictBorderline
	case score > 0:
		return types.VerdictPartial
	default:
		return types.VerdictFail
	}
}
