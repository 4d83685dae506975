package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/projectdavid/orchestrator/pkg/models"
)

// MemoryStore is an in-memory Backend for tests and local embedding. It
// enforces the same invariants the control plane does: tool_calls messages
// carry empty content, terminal statuses are final, and soft-deleted rows
// are excluded from listings.
type MemoryStore struct {
	mu         sync.RWMutex
	threads    map[string]*models.Thread
	messages   map[string][]*models.Message
	runs       map[string]*models.Run
	actions    map[string]*models.Action
	assistants map[string]*models.Assistant
	files      map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:    map[string]*models.Thread{},
		messages:   map[string][]*models.Message{},
		runs:       map[string]*models.Run{},
		actions:    map[string]*models.Action{},
		assistants: map[string]*models.Assistant{},
		files:      map[string]string{},
	}
}

// SeedAssistant registers an assistant definition.
func (m *MemoryStore) SeedAssistant(a *models.Assistant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *a
	m.assistants[a.ID] = &clone
}

// SeedFile registers file content by id, already base64-encoded.
func (m *MemoryStore) SeedFile(fileID, base64Content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[fileID] = base64Content
}

func (m *MemoryStore) CreateThread(ctx context.Context, thread *models.Thread) (*models.Thread, error) {
	if thread == nil {
		return nil, errors.New("thread is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *thread
	if clone.ID == "" {
		clone.ID = "thread_" + uuid.NewString()[:8]
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	m.threads[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (m *MemoryStore) RetrieveThread(ctx context.Context, id string) (*models.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.threads[id]
	if !ok || t.Deleted {
		return nil, NotFound("thread", id)
	}
	out := *t
	return &out, nil
}

func (m *MemoryStore) DeleteThread(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok || t.Deleted {
		// Already gone; deletion is idempotent.
		return nil
	}
	now := time.Now()
	t.Deleted = true
	t.DeletedAt = &now
	return nil
}

func (m *MemoryStore) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if msg == nil {
		return nil, errors.New("message is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendMessageLocked(msg), nil
}

func (m *MemoryStore) appendMessageLocked(msg *models.Message) *models.Message {
	clone := *msg
	if clone.ID == "" {
		clone.ID = "msg_" + uuid.NewString()[:8]
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	if len(clone.ToolCalls) > 0 {
		clone.Content = ""
	}
	m.messages[clone.ThreadID] = append(m.messages[clone.ThreadID], &clone)
	out := clone
	return &out
}

func (m *MemoryStore) GetFormattedMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.messages[threadID]
	out := make([]models.Message, 0, len(stored))
	for _, msg := range stored {
		out = append(out, *msg)
	}
	return out, nil
}

func (m *MemoryStore) SubmitToolOutput(ctx context.Context, params SubmitToolOutputParams) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := &models.Message{
		ThreadID:   params.ThreadID,
		RunID:      params.RunID,
		Role:       models.RoleTool,
		Content:    params.Content,
		ToolCallID: params.ToolCallID,
		Name:       params.ToolName,
		SenderID:   params.SenderID,
		IsError:    params.IsError,
	}
	saved := m.appendMessageLocked(msg)

	// Resolve the matching pending action so dispatcher polls observe the
	// submission.
	now := time.Now()
	for _, action := range m.actions {
		if action.RunID == params.RunID && action.ToolCallID == params.ToolCallID && !action.Status.Terminal() {
			action.Status = models.ActionCompleted
			action.Result = params.Content
			action.ProcessedAt = &now
			if params.IsError {
				action.Status = models.ActionFailed
			}
		}
	}
	return saved, nil
}

func (m *MemoryStore) SaveAssistantMessageChunk(ctx context.Context, params SaveAssistantParams) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := &models.Message{
		ThreadID:  params.ThreadID,
		RunID:     params.RunID,
		Role:      models.RoleAssistant,
		Content:   params.Content,
		ToolCalls: params.ToolCalls,
		SenderID:  params.SenderID,
		IsError:   params.IsError,
	}
	return m.appendMessageLocked(msg), nil
}

func (m *MemoryStore) CreateRun(ctx context.Context, run *models.Run) (*models.Run, error) {
	if run == nil {
		return nil, errors.New("run is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *run
	if clone.ID == "" {
		clone.ID = "run_" + uuid.NewString()[:8]
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	if clone.Status == "" {
		clone.Status = models.RunQueued
	}
	m.runs[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (m *MemoryStore) RetrieveRun(ctx context.Context, id string) (*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, NotFound("run", id)
	}
	out := *run
	return &out, nil
}

func (m *MemoryStore) UpdateRunStatus(ctx context.Context, id string, status models.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return NotFound("run", id)
	}
	if run.Status.Terminal() {
		// Same terminal status twice is idempotent; a new transition is not.
		if run.Status == status {
			return nil
		}
		return ErrTerminal
	}
	run.Status = status
	now := time.Now()
	switch status {
	case models.RunInProgress:
		if run.StartedAt == nil {
			run.StartedAt = &now
		}
	case models.RunCompleted:
		run.CompletedAt = &now
	case models.RunFailed:
		run.FailedAt = &now
	case models.RunCancelled:
		run.CancelledAt = &now
	case models.RunPendingAction:
		run.LastActionAt = &now
	}
	return nil
}

func (m *MemoryStore) ListRuns(ctx context.Context, threadID string) ([]models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Run, 0)
	for _, run := range m.runs {
		if run.ThreadID != threadID || run.Status == models.RunDeleted {
			continue
		}
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListStaleRuns returns non-terminal runs that have seen no activity since
// olderThan, oldest first.
func (m *MemoryStore) ListStaleRuns(ctx context.Context, olderThan time.Time) ([]models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Run, 0)
	for _, run := range m.runs {
		if run.Status.Terminal() {
			continue
		}
		last := run.CreatedAt
		if run.StartedAt != nil {
			last = *run.StartedAt
		}
		if run.LastActionAt != nil {
			last = *run.LastActionAt
		}
		if last.Before(olderThan) {
			out = append(out, *run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CreateAction(ctx context.Context, action *models.Action) (*models.Action, error) {
	if action == nil {
		return nil, errors.New("action is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *action
	if clone.ID == "" {
		clone.ID = "action_" + uuid.NewString()[:8]
	}
	if clone.TriggeredAt.IsZero() {
		clone.TriggeredAt = time.Now()
	}
	if clone.Status == "" {
		clone.Status = models.ActionPending
	}
	m.actions[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (m *MemoryStore) UpdateAction(ctx context.Context, id string, update ActionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	action, ok := m.actions[id]
	if !ok {
		return NotFound("action", id)
	}
	if update.Status != "" {
		action.Status = update.Status
	}
	if update.Result != nil {
		action.Result = *update.Result
	}
	if update.ProcessedAt != nil {
		action.ProcessedAt = update.ProcessedAt
	}
	return nil
}

func (m *MemoryStore) GetPendingActions(ctx context.Context, runID string) ([]models.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Action, 0)
	for _, action := range m.actions {
		if action.RunID == runID && !action.Status.Terminal() {
			out = append(out, *action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.Before(out[j].TriggeredAt) })
	return out, nil
}

func (m *MemoryStore) CreateAssistant(ctx context.Context, assistant *models.Assistant) (*models.Assistant, error) {
	if assistant == nil {
		return nil, errors.New("assistant is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *assistant
	if clone.ID == "" {
		clone.ID = "asst_" + uuid.NewString()[:8]
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	m.assistants[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (m *MemoryStore) RetrieveAssistant(ctx context.Context, id string) (*models.Assistant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assistants[id]
	if !ok {
		return nil, NotFound("assistant", id)
	}
	out := *a
	return &out, nil
}

func (m *MemoryStore) GetFileAsBase64(ctx context.Context, fileID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[fileID]
	if !ok {
		return "", NotFound("file", fileID)
	}
	return content, nil
}

// Action returns a copy of one action row for test assertions.
func (m *MemoryStore) Action(id string) (*models.Action, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, false
	}
	out := *a
	return &out, true
}

// ActionsForRun returns copies of all actions for a run, oldest first.
func (m *MemoryStore) ActionsForRun(runID string) []models.Action {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Action
	for _, action := range m.actions {
		if action.RunID == runID {
			out = append(out, *action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.Before(out[j].TriggeredAt) })
	return out
}
