package controlplane

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/projectdavid/orchestrator/internal/store"
	"github.com/projectdavid/orchestrator/pkg/models"
)

var _ store.Backend = (*Client)(nil)

func (c *Client) CreateThread(ctx context.Context, thread *models.Thread) (*models.Thread, error) {
	var out models.Thread
	if err := c.doJSON(ctx, http.MethodPost, "/v1/threads", thread, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RetrieveThread(ctx context.Context, id string) (*models.Thread, error) {
	var out models.Thread
	if err := c.doJSON(ctx, http.MethodGet, "/v1/threads/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteThread(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/threads/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	var out models.Message
	if err := c.doJSON(ctx, http.MethodPost, "/v1/messages", msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetFormattedMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	path := "/v1/threads/" + url.PathEscape(threadID) + "/formatted_messages"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) SubmitToolOutput(ctx context.Context, params store.SubmitToolOutputParams) (*models.Message, error) {
	payload := struct {
		ThreadID   string `json:"thread_id"`
		RunID      string `json:"run_id"`
		ToolCallID string `json:"tool_call_id"`
		ToolName   string `json:"tool_name,omitempty"`
		Content    string `json:"content"`
		SenderID   string `json:"sender_id,omitempty"`
		IsError    bool   `json:"is_error,omitempty"`
	}{params.ThreadID, params.RunID, params.ToolCallID, params.ToolName, params.Content, params.SenderID, params.IsError}

	var out models.Message
	if err := c.doJSON(ctx, http.MethodPost, "/v1/messages/tools", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SaveAssistantMessageChunk(ctx context.Context, params store.SaveAssistantParams) (*models.Message, error) {
	payload := struct {
		ThreadID  string            `json:"thread_id"`
		RunID     string            `json:"run_id"`
		SenderID  string            `json:"sender_id,omitempty"`
		Content   string            `json:"content"`
		ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`
		IsError   bool              `json:"is_error,omitempty"`
	}{params.ThreadID, params.RunID, params.SenderID, params.Content, params.ToolCalls, params.IsError}

	var out models.Message
	if err := c.doJSON(ctx, http.MethodPost, "/v1/messages/assistant", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateRun(ctx context.Context, run *models.Run) (*models.Run, error) {
	var out models.Run
	if err := c.doJSON(ctx, http.MethodPost, "/v1/runs", run, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RetrieveRun(ctx context.Context, id string) (*models.Run, error) {
	var out models.Run
	if err := c.doJSON(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateRunStatus(ctx context.Context, id string, status models.RunStatus) error {
	payload := struct {
		Status models.RunStatus `json:"status"`
	}{status}
	return c.doJSON(ctx, http.MethodPut, "/v1/runs/"+url.PathEscape(id)+"/status", payload, nil)
}

func (c *Client) ListRuns(ctx context.Context, threadID string) ([]models.Run, error) {
	var out struct {
		Runs []models.Run `json:"runs"`
	}
	path := "/v1/threads/" + url.PathEscape(threadID) + "/runs"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// ListStaleRuns feeds the expiry sweeper: non-terminal runs with no
// activity since olderThan.
func (c *Client) ListStaleRuns(ctx context.Context, olderThan time.Time) ([]models.Run, error) {
	var out struct {
		Runs []models.Run `json:"runs"`
	}
	path := "/v1/runs/stale?before=" + url.QueryEscape(olderThan.UTC().Format(time.RFC3339))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

func (c *Client) CreateAction(ctx context.Context, action *models.Action) (*models.Action, error) {
	var out models.Action
	if err := c.doJSON(ctx, http.MethodPost, "/v1/actions", action, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateAction(ctx context.Context, id string, update store.ActionUpdate) error {
	payload := struct {
		Status      models.ActionStatus `json:"status,omitempty"`
		Result      *string             `json:"result,omitempty"`
		ProcessedAt *string             `json:"processed_at,omitempty"`
	}{Status: update.Status, Result: update.Result}
	if update.ProcessedAt != nil {
		ts := update.ProcessedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
		payload.ProcessedAt = &ts
	}
	return c.doJSON(ctx, http.MethodPut, "/v1/actions/"+url.PathEscape(id), payload, nil)
}

func (c *Client) GetPendingActions(ctx context.Context, runID string) ([]models.Action, error) {
	var out struct {
		Actions []models.Action `json:"actions"`
	}
	path := "/v1/runs/" + url.PathEscape(runID) + "/pending_actions"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Actions, nil
}

func (c *Client) CreateAssistant(ctx context.Context, assistant *models.Assistant) (*models.Assistant, error) {
	var out models.Assistant
	if err := c.doJSON(ctx, http.MethodPost, "/v1/assistants", assistant, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RetrieveAssistant(ctx context.Context, id string) (*models.Assistant, error) {
	var out models.Assistant
	if err := c.doJSON(ctx, http.MethodGet, "/v1/assistants/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetFileAsBase64(ctx context.Context, fileID string) (string, error) {
	var out struct {
		Base64 string `json:"base64"`
	}
	path := "/v1/files/" + url.PathEscape(fileID) + "/base64"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Base64, nil
}
