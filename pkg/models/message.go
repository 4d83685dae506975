package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
	RolePlatform  Role = "platform"
)

// ValidRole reports whether r is one of the roles the prompt builder
// accepts. Unknown roles are mapped to RoleUser before a provider call.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool, RolePlatform:
		return true
	}
	return false
}

// Message is one turn in a thread.
//
// Invariants:
//   - A message saved with a non-empty ToolCalls list has Content == "".
//   - A tool message carries the ToolCallID of the call it answers.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	SenderID  string    `json:"sender_id,omitempty"`

	// ToolID and RunID tie tool messages back to their originating run.
	ToolID string `json:"tool_id,omitempty"`
	RunID  string `json:"run_id,omitempty"`

	// ToolCalls is set on assistant messages that requested tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool message to the assistant tool call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name on tool messages.
	Name string `json:"name,omitempty"`

	// IsError marks tool outputs and partial assistant replies persisted on
	// an error path.
	IsError bool `json:"is_error,omitempty"`
}

// ToolCall is a model request to execute one tool. Arguments hold the raw
// JSON argument bytes exactly as streamed by the provider; they may be an
// object or a JSON-encoded string that parses to an object.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ArgumentsMap decodes the call arguments into a map, unwrapping one level
// of string encoding if the provider stringified the object.
func (c ToolCall) ArgumentsMap() (map[string]any, error) {
	raw := c.Arguments
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(s)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
