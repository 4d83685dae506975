package models

// EventType tags a canonical stream event. The canonical event is the unit
// exchanged internally after normalization; a thin transport layer encodes
// the same records for end clients, and the fan-out mirrors them to Redis.
type EventType string

const (
	// EventStatus is a lifecycle marker carrying {status, run_id}.
	EventStatus EventType = "status"

	// EventContent is an assistant-visible text fragment.
	EventContent EventType = "content"

	// EventReasoning is a hidden chain-of-thought fragment.
	EventReasoning EventType = "reasoning"

	// EventToolName declares the tool about to be called.
	EventToolName EventType = "tool_name"

	// EventCallArguments is a streamed fragment of JSON argument bytes.
	EventCallArguments EventType = "call_arguments"

	// EventToolCall is a full tool call, terminal for its span.
	EventToolCall EventType = "tool_call"

	// EventDecision is a telemetry JSON fragment explaining tool choice.
	EventDecision EventType = "decision"

	// EventHotCode is code being composed for the code interpreter.
	EventHotCode EventType = "hot_code"

	// EventError is an unrecoverable stream error.
	EventError EventType = "error"

	// EventToolCallManifest announces a consumer tool call and carries the
	// action id the external consumer must answer.
	EventToolCallManifest EventType = "tool_call_manifest"

	// EventScratchpadStatus reports a scratchpad mutation.
	EventScratchpadStatus EventType = "scratchpad_status"

	// EventFilePreview carries a base64 artifact discovered during code
	// interpreter execution.
	EventFilePreview EventType = "file_preview"
)

// Stream lifecycle markers carried by status events. These are stream-level
// states, not run statuses: a run-level status change is reported with the
// RunStatus string instead.
const (
	StreamStarted            = "started"
	StreamComplete           = "complete"
	StreamInProgress         = "in_progress"
	StreamToolOutputReceived = "tool_output_received"
)

// ToolCallPayload is the fully accumulated {name, arguments} pair carried by
// a terminal tool_call event. Arguments is the raw streamed JSON text.
type ToolCallPayload struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCallManifest announces a consumer tool call.
type ToolCallManifest struct {
	RunID    string         `json:"run_id"`
	ActionID string         `json:"action_id"`
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args,omitempty"`
}

// ScratchpadStatus reports the outcome of a scratchpad operation.
type ScratchpadStatus struct {
	Operation   string `json:"operation"`
	State       string `json:"state"`
	Entry       string `json:"entry,omitempty"`
	AssistantID string `json:"assistant_id,omitempty"`
}

// FilePreview carries an artifact produced by a platform tool.
type FilePreview struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Base64   string `json:"base64"`
}

// StreamEvent is the canonical, provider-agnostic stream record.
//
// Within one run the event sequence always matches
//
//	status(started) (content|reasoning|tool_name|call_arguments|tool_call|
//	                 decision|hot_code|error|...)* status(complete)
//
// and no provider tag bytes ever leak into content events.
type StreamEvent struct {
	Type  EventType `json:"type"`
	RunID string    `json:"run_id,omitempty"`

	// Status is set on status events (stream markers or RunStatus values).
	Status string `json:"status,omitempty"`

	// Content carries the fragment for content, reasoning, call_arguments,
	// decision, hot_code, and error events.
	Content string `json:"content,omitempty"`

	// ToolName is set on tool_name events.
	ToolName string `json:"tool_name,omitempty"`

	ToolCall   *ToolCallPayload  `json:"tool_call,omitempty"`
	Manifest   *ToolCallManifest `json:"manifest,omitempty"`
	Scratchpad *ScratchpadStatus `json:"scratchpad,omitempty"`
	File       *FilePreview      `json:"file,omitempty"`
}

// StatusEvent builds a lifecycle marker event.
func StatusEvent(runID, status string) StreamEvent {
	return StreamEvent{Type: EventStatus, RunID: runID, Status: status}
}

// ContentEvent builds an assistant-visible text fragment.
func ContentEvent(text string) StreamEvent {
	return StreamEvent{Type: EventContent, Content: text}
}

// ReasoningEvent builds a hidden chain-of-thought fragment.
func ReasoningEvent(text string) StreamEvent {
	return StreamEvent{Type: EventReasoning, Content: text}
}

// ErrorEvent builds a terminal stream error event.
func ErrorEvent(runID, message string) StreamEvent {
	return StreamEvent{Type: EventError, RunID: runID, Content: message}
}
