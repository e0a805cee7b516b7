package types

import "encoding/json"

const (
	EventModelStep  = "model_step"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventMessage    = "message"
	EventError      = "error"
)

// TraceEvent is one normalized execution event. Kind selects which of the
// optional fields are meaningful.
type TraceEvent struct {
	Kind       string          `json:"kind"`
	Timestamp  string          `json:"timestamp,omitempty"`
	Name       string          `json:"name,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Text       string          `json:"text,omitempty"`
	DurationMS *int64          `json:"duration_ms,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// TraceSummary is the fixed-shape aggregate derived from a trace. The JSON
// field names are part of the judge wire contract and must not change.
type TraceSummary struct {
	EventCount      int            `json:"eventCount"`
	ToolNames       []string       `json:"toolNames"`
	ToolCallsByName map[string]int `json:"toolCallsByName"`
	ErrorCount      int            `json:"errorCount"`
}
