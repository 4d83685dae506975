package models

import (
	"encoding/json"
	"time"
)

// ActionStatus is the lifecycle state of one tool invocation within a run.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in_progress"
	ActionCompleted  ActionStatus = "completed"
	ActionFailed     ActionStatus = "failed"
	ActionExpired    ActionStatus = "expired"
	ActionCancelled  ActionStatus = "cancelled"
)

// Terminal reports whether s is a terminal action status.
func (s ActionStatus) Terminal() bool {
	switch s {
	case ActionCompleted, ActionFailed, ActionExpired, ActionCancelled:
		return true
	}
	return false
}

// Action is the persisted record of one tool invocation inside a run. A run
// exclusively owns its actions; deleting the run cascades to them.
type Action struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	ToolID     string `json:"tool_id,omitempty"`
	ToolName   string `json:"tool_name"`
	ToolCallID string `json:"tool_call_id"`

	// FunctionArgs are the parsed call arguments.
	FunctionArgs map[string]any `json:"function_args,omitempty"`

	Status ActionStatus `json:"status"`
	Result string       `json:"result,omitempty"`

	// Decision carries the telemetry payload captured by the
	// record_tool_decision call that preceded this action, if any.
	Decision json.RawMessage `json:"decision,omitempty"`

	TriggeredAt time.Time  `json:"triggered_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
