package trace

import (
	"github.com/segmentio/encoding/json"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// Call is one tool invocation in execution order, with just the fields
// trajectory scoring needs.
type Call struct {
	Tool       string
	Args       map[string]any
	DurationMS *int64
}

// CallsFromEvents extracts the ordered tool-call sequence from events.
func CallsFromEvents(events []types.TraceEvent) []Call {
	out := make([]Call, 0)
	for _, ev := range events {
		if ev.Kind != types.EventToolCall {
			continue
		}
		c := Call{Tool: ev.Name, DurationMS: ev.DurationMS}
		if len(ev.Input) > 0 {
			var args map[string]any
			if err := json.Unmarshal(ev.Input, &args); err == nil {
				c.Args = args
			}
		}
		out = append(out, c)
	}
	return out
}

// CallsFromMessages extracts the ordered tool-call sequence from output
// messages, the fallback source when no trace was captured.
func CallsFromMessages(msgs []types.Message) []Call {
	out := make([]Call, 0)
	for _, m := range msgs {
		for _, tc := range m.ToolCalls {
			out = append(out, Call{
				Tool:       tc.Tool,
				Args:       tc.Args,
				DurationMS: tc.DurationMS,
			})
		}
	}
	return out
}
