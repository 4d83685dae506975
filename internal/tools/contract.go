// Package tools implements the platform built-in tool handlers. Each
// handler executes one call, streaming canonical events while it works and
// returning the text submitted as the tool output.
package tools

import (
	"context"

	"github.com/projectdavid/orchestrator/pkg/models"
)

// Invocation carries the call context a handler needs.
type Invocation struct {
	RunID       string
	ThreadID    string
	AssistantID string
	SenderID    string

	// ActionID is the persisted Action row backing this call.
	ActionID string

	// ToolCallID is the opaque id minted by the router.
	ToolCallID string

	// Args are the parsed, schema-validated call arguments.
	Args map[string]any

	// Assistant is the resolved assistant definition, for handlers that
	// read tool_resources.
	Assistant *models.Assistant
}

// EmitFunc forwards one canonical event to the client stream. The
// orchestrator mirrors every emitted event to Redis.
type EmitFunc func(models.StreamEvent)

// Handler is one platform built-in tool.
type Handler interface {
	// Name is the routable tool name.
	Name() string

	// Definition is the canonical schema substituted into prompts.
	Definition() models.Tool

	// Execute runs the call. The returned string is submitted as the tool
	// output; a non-nil error is formatted into a pedagogical payload and
	// submitted with is_error set.
	Execute(ctx context.Context, inv Invocation, emit EmitFunc) (string, error)
}

// argString fetches a string argument, tolerating absence.
func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// argInt fetches an integer argument; JSON decoding yields float64.
func argInt(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// argStrings fetches a string-list argument.
func argStrings(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
