package types

import (
	"encoding/json"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

const (
	BlockText = "text"
	BlockFile = "file"
)

// ContentBlock is one typed element of a structured message body.
type ContentBlock struct {
	Kind      string `json:"kind"`
	Text      string `json:"text,omitempty"`
	Path      string `json:"path,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// Message is a single conversation turn. Content carries plain text;
// Blocks carries an ordered list of typed blocks. At most one of the two
// is set on a well-formed message.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content,omitempty"`
	Blocks    []ContentBlock `json:"blocks,omitempty"`
	ToolCalls []ToolCall     `json:"toolCalls,omitempty"`
}

// Text returns the message's textual content: Content when set, otherwise
// the concatenation of its text blocks.
func (m *Message) Text() string {
	if m.Content != "" {
		return m.Content
	}
	var sb strings.Builder
	for _, b := range m.Blocks {
		if b.Kind == BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ToolCall records one tool invocation made by the agent under test.
type ToolCall struct {
	Tool       string          `json:"tool"`
	Args       map[string]any  `json:"args,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ID         string          `json:"id,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
	DurationMS *int64          `json:"duration_ms,omitempty"`
}
