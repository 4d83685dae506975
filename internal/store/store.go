// Package store defines the persistence boundary of the orchestration core.
//
// The core never talks to a database directly: it consumes the small set of
// operations below and treats whatever implements them — the control-plane
// HTTP client in production, MemoryStore in tests — as the authoritative
// state. Redis-backed structures elsewhere in the core are caches over this
// boundary and may be evicted at any time.
package store

import (
	"context"
	"time"

	"github.com/projectdavid/orchestrator/pkg/models"
)

// Messages persists thread messages.
type Messages interface {
	// CreateMessage appends a message to its thread and returns the stored
	// copy with generated fields filled in.
	CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error)

	// GetFormattedMessages returns the thread's dialogue oldest-first, in
	// the shape the prompt builder consumes.
	GetFormattedMessages(ctx context.Context, threadID string) ([]models.Message, error)

	// SubmitToolOutput appends a tool message answering one tool call and
	// resolves the matching pending action.
	SubmitToolOutput(ctx context.Context, params SubmitToolOutputParams) (*models.Message, error)

	// SaveAssistantMessageChunk persists the assistant reply for a turn,
	// either plain text or a structured tool_calls message.
	SaveAssistantMessageChunk(ctx context.Context, params SaveAssistantParams) (*models.Message, error)
}

// SubmitToolOutputParams carries one tool output submission.
type SubmitToolOutputParams struct {
	ThreadID   string
	RunID      string
	ToolCallID string
	ToolName   string
	Content    string
	SenderID   string
	IsError    bool
}

// SaveAssistantParams carries one assistant reply.
type SaveAssistantParams struct {
	ThreadID  string
	RunID     string
	SenderID  string
	Content   string
	ToolCalls []models.ToolCall
	IsError   bool
}

// Runs persists run lifecycle state.
type Runs interface {
	CreateRun(ctx context.Context, run *models.Run) (*models.Run, error)
	RetrieveRun(ctx context.Context, id string) (*models.Run, error)

	// UpdateRunStatus transitions the run and stamps the transition time.
	// Transitions out of a terminal status are rejected.
	UpdateRunStatus(ctx context.Context, id string, status models.RunStatus) error

	// ListRuns returns the thread's runs, newest first. Soft-deleted runs
	// never appear.
	ListRuns(ctx context.Context, threadID string) ([]models.Run, error)
}

// Actions persists tool invocations within runs.
type Actions interface {
	CreateAction(ctx context.Context, action *models.Action) (*models.Action, error)
	UpdateAction(ctx context.Context, id string, update ActionUpdate) error

	// GetPendingActions returns the run's actions that have not reached a
	// terminal status.
	GetPendingActions(ctx context.Context, runID string) ([]models.Action, error)
}

// ActionUpdate is a partial action mutation. Nil fields are left unchanged.
type ActionUpdate struct {
	Status      models.ActionStatus
	Result      *string
	ProcessedAt *time.Time
}

// Assistants reads and creates assistant definitions. Creation exists for
// the delegation path, which needs an ephemeral worker assistant.
type Assistants interface {
	RetrieveAssistant(ctx context.Context, id string) (*models.Assistant, error)
	CreateAssistant(ctx context.Context, assistant *models.Assistant) (*models.Assistant, error)
}

// Threads persists conversation threads.
type Threads interface {
	CreateThread(ctx context.Context, thread *models.Thread) (*models.Thread, error)
	RetrieveThread(ctx context.Context, id string) (*models.Thread, error)

	// DeleteThread soft-deletes. Deleting an already-deleted or missing
	// thread is a no-op.
	DeleteThread(ctx context.Context, id string) error
}

// Files fetches stored file content.
type Files interface {
	GetFileAsBase64(ctx context.Context, fileID string) (string, error)
}

// Backend is the full persistence surface the orchestrator is wired with.
type Backend interface {
	Messages
	Runs
	Actions
	Assistants
	Threads
	Files
}
