package store

import (
	"context"
	"encoding/json"
)

// WebPage is one paginated chunk of a fetched document.
type WebPage struct {
	Content string `json:"content"`

	// Page is 1-indexed; TotalPages is the chunk count for the document.
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
}

// ToolService is the external tools client: web fetching and the shared
// per-thread scratchpad. Implemented by the control-plane client.
type ToolService interface {
	// WebRead fetches the first page of a URL.
	WebRead(ctx context.Context, url string) (*WebPage, error)

	// WebScroll fetches one 0-indexed page of a previously chunked URL.
	WebScroll(ctx context.Context, url string, page int) (*WebPage, error)

	// WebSearch fetches the raw SERP body for a query URL.
	WebSearch(ctx context.Context, url string) (string, error)

	ScratchpadRead(ctx context.Context, threadID string) (string, error)
	ScratchpadUpdate(ctx context.Context, threadID, content string) error
	ScratchpadAppend(ctx context.Context, threadID, entry string) error
}

// VectorService is the vector-store client used by file_search. The search
// implementation itself lives outside the core.
type VectorService interface {
	// UnattendedFileSearch runs a semantic search and returns the raw
	// result payload.
	UnattendedFileSearch(ctx context.Context, storeID, query string) (json.RawMessage, error)

	// GetOrCreateFileSearchStore resolves the assistant's file-search
	// vector store, creating it on first use.
	GetOrCreateFileSearchStore(ctx context.Context, assistantID string) (string, error)
}

// ExecChunk is one streamed fragment from the sandbox executor.
type ExecChunk struct {
	// Type is "hot_code", "output", or "artifact".
	Type string `json:"type"`

	// Content carries code or output text.
	Content string `json:"content,omitempty"`

	// Artifact fields, set when Type == "artifact".
	FileID   string `json:"file_id,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// SandboxService streams execution from the external sandbox engine. The
// engine itself is outside the core; only its call contract appears here.
type SandboxService interface {
	// ExecuteCode runs code in the sandbox, streaming chunks until done.
	ExecuteCode(ctx context.Context, runID, code string) (<-chan ExecChunk, error)

	// RunCommands runs shell commands in order, streaming combined
	// stdout/stderr.
	RunCommands(ctx context.Context, runID string, commands []string) (<-chan ExecChunk, error)
}
