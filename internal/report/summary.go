package report

import (
	"fmt"
	"io"
	"time"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// RunSummary aggregates a run's results by verdict.
type RunSummary struct {
	RunID      string  `json:"run_id"`
	Total      int     `json:"total"`
	Pass       int     `json:"pass"`
	Borderline int     `json:"borderline"`
	Partial    int     `json:"partial"`
	Fail       int     `json:"fail"`
	Errored    int     `json:"errored"`
	MeanScore  float64 `json:"mean_score"`
	DurationMS int64   `json:"duration_ms"`
}

// Summarize tallies results into a RunSummary.
func Summarize(runID string, results []types.EvaluationResult, duration time.Duration) RunSummary {
	s := RunSummary{
		RunID:      runID,
		Total:      len(results),
		DurationMS: duration.Milliseconds(),
	}
	var sum float64
	for i := range results {
		r := &results[i]
		sum += r.Score
		if r.Error != "" {
			s.Errored++
		}
		switch r.Verdict {
		case types.VerdictPass:
			s.Pass++
		case types.VerdictBorderline:
			s.Borderline++
		case types.VerdictPartial:
			s.Partial++
		case types.VerdictFail:
			s.Fail++
		}
	}
	if s.Total > 0 {
		s.MeanScore = sum / float64(s.Total)
	}
	return s
}

// WriteText renders a short human-readable summary.
func (s RunSummary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"run %s: %d cases: %d pass, %d borderline, %d partial, %d fail (%d errored), mean score %.3f in %dms\n",
		s.RunID, s.Total, s.Pass, s.Borderline, s.Partial, s.Fail, s.Errored, s.MeanScore, s.DurationMS)
	return err
}
