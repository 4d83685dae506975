package controlplane

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/projectdavid/orchestrator/internal/store"
)

var (
	_ store.ToolService    = (*Client)(nil)
	_ store.VectorService  = (*Client)(nil)
	_ store.SandboxService = (*Client)(nil)
)

func (c *Client) WebRead(ctx context.Context, pageURL string) (*store.WebPage, error) {
	payload := struct {
		URL string `json:"url"`
	}{pageURL}
	var out store.WebPage
	if err := c.doJSON(ctx, http.MethodPost, "/v1/tools/web/read", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) WebScroll(ctx context.Context, pageURL string, page int) (*store.WebPage, error) {
	payload := struct {
		URL  string `json:"url"`
		Page int    `json:"page"`
	}{pageURL, page}
	var out store.WebPage
	if err := c.doJSON(ctx, http.MethodPost, "/v1/tools/web/scroll", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) WebSearch(ctx context.Context, serpURL string) (string, error) {
	payload := struct {
		URL string `json:"url"`
	}{serpURL}
	var out struct {
		Content string `json:"content"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/tools/web/search", payload, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

func (c *Client) ScratchpadRead(ctx context.Context, threadID string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	path := "/v1/threads/" + url.PathEscape(threadID) + "/scratchpad"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

func (c *Client) ScratchpadUpdate(ctx context.Context, threadID, content string) error {
	payload := struct {
		Content string `json:"content"`
	}{content}
	path := "/v1/threads/" + url.PathEscape(threadID) + "/scratchpad"
	return c.doJSON(ctx, http.MethodPut, path, payload, nil)
}

func (c *Client) ScratchpadAppend(ctx context.Context, threadID, entry string) error {
	payload := struct {
		Entry string `json:"entry"`
	}{entry}
	path := "/v1/threads/" + url.PathEscape(threadID) + "/scratchpad/append"
	return c.doJSON(ctx, http.MethodPost, path, payload, nil)
}

func (c *Client) UnattendedFileSearch(ctx context.Context, storeID, query string) (json.RawMessage, error) {
	payload := struct {
		StoreID string `json:"store_id"`
		Query   string `json:"query"`
	}{storeID, query}
	var out json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/v1/vector_stores/search", payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetOrCreateFileSearchStore(ctx context.Context, assistantID string) (string, error) {
	var out struct {
		StoreID string `json:"store_id"`
	}
	path := "/v1/assistants/" + url.PathEscape(assistantID) + "/file_search_store"
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &out); err != nil {
		return "", err
	}
	return out.StoreID, nil
}

func (c *Client) ExecuteCode(ctx context.Context, runID, code string) (<-chan store.ExecChunk, error) {
	payload := struct {
		RunID string `json:"run_id"`
		Code  string `json:"code"`
	}{runID, code}
	return c.streamExec(ctx, "/v1/sandbox/execute", payload)
}

func (c *Client) RunCommands(ctx context.Context, runID string, commands []string) (<-chan store.ExecChunk, error) {
	payload := struct {
		RunID    string   `json:"run_id"`
		Commands []string `json:"commands"`
	}{runID, commands}
	return c.streamExec(ctx, "/v1/sandbox/commands", payload)
}

// streamExec starts a sandbox execution and decodes the newline-delimited
// JSON response into a chunk channel. Sandbox calls are not retried: a
// partially executed request must not run twice.
func (c *Client) streamExec(ctx context.Context, path string, payload any) (<-chan store.ExecChunk, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, readAPIError(resp, path)
	}

	chunks := make(chan store.ExecChunk)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var chunk store.ExecChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				c.logger.Warn(ctx, "dropping malformed sandbox chunk", "path", path, "error", err)
				continue
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			c.logger.Warn(ctx, "sandbox stream ended with error", "path", path, "error", err)
		}
	}()
	return chunks, nil
}
