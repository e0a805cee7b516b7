// Package trace converts provider-specific execution records into the
// canonical event form that evaluators consume, and derives fixed-shape
// summaries from either events or output messages.
package trace

import (
	"strings"

	"github.com/segmentio/encoding/json"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// MaxEvents caps how many events a single normalized trace may carry.
// Oversized traces are truncated rather than rejected.
const MaxEvents = 10000

var validKinds = map[string]struct{}{
	types.EventModelStep:  {},
	types.EventToolCall:   {},
	types.EventToolResult: {},
	types.EventMessage:    {},
	types.EventError:      {},
}

// rawRecord covers the provider record shapes the engine understands:
// canonical events, step lists, and message lists. Exactly one of the
// collections is expected to be populated.
type rawRecord struct {
	Events   []types.TraceEvent `json:"events"`
	Steps    []rawStep          `json:"steps"`
	Messages []types.Message    `json:"messages"`
}

// rawStep is the step shape emitted by step-logging harnesses: a type tag
// plus name/args/result.
type rawStep struct {
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
	DurationMS *int64          `json:"duration_ms,omitempty"`
}

// Normalize converts a raw provider execution record into canonical events.
// Returns (nil, false) when raw is empty or not a recognizable record; the
// caller treats that as "no trace", never as a failure.
func Normalize(raw json.RawMessage) ([]types.TraceEvent, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	// A bare array is taken as canonical events.
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var events []types.TraceEvent
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, false
		}
		return sanitizeEvents(events), true
	}

	var rec rawRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false
	}

	switch {
	case len(rec.Events) > 0:
		return sanitizeEvents(rec.Events), true
	case len(rec.Steps) > 0:
		return eventsFromSteps(rec.Steps), true
	case len(rec.Messages) > 0:
		return EventsFromMessages(rec.Messages), true
	}
	return nil, false
}

// sanitizeEvents drops events with unknown kinds and truncates to MaxEvents.
func sanitizeEvents(events []types.TraceEvent) []types.TraceEvent {
	out := make([]types.TraceEvent, 0, len(events))
	for _, ev := range events {
		if _, ok := validKinds[ev.Kind]; !ok {
			continue
		}
		out = append(out, ev)
		if len(out) == MaxEvents {
			break
		}
	}
	return out
}

func eventsFromSteps(steps []rawStep) []types.TraceEvent {
	out := make([]types.TraceEvent, 0, len(steps))
	for _, s := range steps {
		if len(out) == MaxEvents {
			break
		}
		ev := types.TraceEvent{
			Timestamp:  s.Timestamp,
			Name:       s.Name,
			DurationMS: s.DurationMS,
		}
		switch s.Type {
		case "tool_call", "tool":
			ev.Kind = types.EventToolCall
			ev.Input = json.RawMessage(s.Args)
			ev.Output = json.RawMessage(s.Result)
		case "llm_call", "model_step", "completion":
			ev.Kind = types.EventModelStep
			ev.Input = json.RawMessage(s.Args)
			ev.Output = json.RawMessage(s.Result)
		case "error":
			ev.Kind = types.EventError
			ev.Text = s.Error
		default:
			continue
		}
		if s.Error != "" && ev.Kind != types.EventError {
			out = append(out, ev)
			if len(out) == MaxEvents {
				break
			}
			out = append(out, types.TraceEvent{
				Kind: types.EventError,
				Name: s.Name,
				Text: s.Error,
			})
			continue
		}
		out = append(out, ev)
	}
	return out
}

// EventsFromMessages derives canonical events from conversation messages:
// one message event per turn plus one tool_call event per recorded call.
// Summaries computed over either representation of the same conversation
// agree on every tool-derived field.
func EventsFromMessages(msgs []types.Message) []types.TraceEvent {
	out := make([]types.TraceEvent, 0, len(msgs))
	for _, m := range msgs {
		if len(out) == MaxEvents {
			break
		}
		out = append(out, types.TraceEvent{
			Kind: types.EventMessage,
			Name: m.Role,
			Text: m.Text(),
		})
		for _, tc := range m.ToolCalls {
			if len(out) == MaxEvents {
				return out
			}
			var input json.RawMessage
			if tc.Args != nil {
				if raw, err := json.Marshal(tc.Args); err == nil {
					input = raw
				}
			}
			out = append(out, types.TraceEvent{
				Kind:       types.EventToolCall,
				Timestamp:  tc.Timestamp,
				Name:       tc.Tool,
				Input:      input,
				Output:     json.RawMessage(tc.Output),
				DurationMS: tc.DurationMS,
			})
		}
	}
	return out
}
