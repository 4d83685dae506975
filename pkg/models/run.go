package models

import "time"

// RunStatus is the closed set of run lifecycle states.
type RunStatus string

const (
	RunQueued        RunStatus = "queued"
	RunInProgress    RunStatus = "in_progress"
	RunPendingAction RunStatus = "pending_action"
	RunCompleted     RunStatus = "completed"
	RunFailed        RunStatus = "failed"
	RunCancelling    RunStatus = "cancelling"
	RunCancelled     RunStatus = "cancelled"
	RunPending       RunStatus = "pending"
	RunProcessing    RunStatus = "processing"
	RunExpired       RunStatus = "expired"
	RunRetrying      RunStatus = "retrying"
	RunDeleted       RunStatus = "deleted"
)

// Terminal reports whether s is a terminal run status. Once a run reaches a
// terminal status no further transitions are allowed.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired, RunDeleted:
		return true
	}
	return false
}

// Run is the execution record of one assistant invocation against a thread.
//
// Lifecycle: queued → in_progress → (pending_action ↔ in_progress)* →
// completed | failed | cancelled | expired.
type Run struct {
	ID          string    `json:"id"`
	AssistantID string    `json:"assistant_id"`
	ThreadID    string    `json:"thread_id"`
	UserID      string    `json:"user_id,omitempty"`
	Status      RunStatus `json:"status"`
	CreatedAt   time.Time `json:"created_at"`

	Model       string   `json:"model"`
	Temperature float32  `json:"temperature,omitempty"`
	TopP        float32  `json:"top_p,omitempty"`
	ToolChoice  string   `json:"tool_choice,omitempty"`
	Tools       []Tool   `json:"tools,omitempty"`
	Metadata    Metadata `json:"metadata,omitempty"`

	// Status transition timestamps. Each is set once, when the run first
	// enters the corresponding state.
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastActionAt *time.Time `json:"last_action_at,omitempty"`
}

// Metadata is an open key-value bag attached to runs and threads.
type Metadata map[string]any
