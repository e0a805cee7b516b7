package trace

import (
	"sort"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// ComputeSummary derives the fixed-shape summary from canonical events.
// ToolNames is lexicographically sorted and deduplicated; ErrorCount counts
// only error-kind events.
func ComputeSummary(events []types.TraceEvent) types.TraceSummary {
	s := types.TraceSummary{
		EventCount:      len(events),
		ToolNames:       []string{},
		ToolCallsByName: map[string]int{},
	}
	for _, ev := range events {
		switch ev.Kind {
		case types.EventToolCall:
			s.ToolCallsByName[ev.Name]++
		case types.EventError:
			s.ErrorCount++
		}
	}
	for name := range s.ToolCallsByName {
		s.ToolNames = append(s.ToolNames, name)
	}
	sort.Strings(s.ToolNames)
	return s
}

// SummaryFromMessages derives a summary from output messages. It routes
// through the same event derivation as ComputeSummary so both sources yield
// identical summaries for equivalent conversations; evaluators and judges
// may rely on that equivalence.
func SummaryFromMessages(msgs []types.Message) types.TraceSummary {
	return ComputeSummary(EventsFromMessages(msgs))
}
