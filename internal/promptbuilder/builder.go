// Package promptbuilder assembles the final message array for a provider
// call: a freshly built system message, the cached dialogue with roles
// normalized, and the merged tool list, optionally token-truncated.
package promptbuilder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/projectdavid/orchestrator/internal/history"
	"github.com/projectdavid/orchestrator/internal/observability"
	"github.com/projectdavid/orchestrator/pkg/models"
)

// toolListMarker separates the prose part of the system message from the
// inline tool JSON, so structured extraction can split them back apart.
const toolListMarker = "\n\nAvailable tools:\n"

// Options are the per-call build flags.
type Options struct {
	// ForceRefresh bypasses the message cache and cold-loads from the
	// store. The orchestrator sets this on every turn after the first.
	ForceRefresh bool

	// Trunk runs the prompt through the token truncator.
	Trunk bool

	// StructuredToolCall extracts the inline tool JSON into Prompt.Tools
	// for providers in native tool mode.
	StructuredToolCall bool

	// DecisionTelemetry prepends the mandatory record_tool_decision tool.
	DecisionTelemetry bool
}

// Prompt is the assembled provider input.
type Prompt struct {
	Messages []models.Message

	// Tools is populated only when Options.StructuredToolCall is set.
	Tools []models.Tool

	// Merged is the full resolved tool list regardless of mode, for
	// argument validation downstream.
	Merged []models.Tool

	Assistant *models.Assistant
}

// SchemaSource yields the current canonical platform-tool declarations by
// name. It is queried on every build so tools registered after wiring, such
// as the delegation handler, still reach the prompt.
type SchemaSource interface {
	Schemas() map[string]models.Tool
}

// StaticSchemas adapts a fixed declaration map to a SchemaSource.
func StaticSchemas(schemas map[string]models.Tool) SchemaSource {
	return staticSchemas(schemas)
}

type staticSchemas map[string]models.Tool

func (s staticSchemas) Schemas() map[string]models.Tool { return s }

// Builder produces prompts for one deployment. Safe for concurrent use.
type Builder struct {
	assistants *history.AssistantCache
	messages   *history.MessageCache

	// platform resolves platform tool names to canonical schemas.
	platform SchemaSource

	// decisionTool is the record_tool_decision declaration.
	decisionTool models.Tool

	truncator *Truncator
	logger    *observability.Logger
	now       func() time.Time
}

// NewBuilder creates a Builder. platform is the canonical platform-tool
// schema source; decisionTool is the record_tool_decision declaration.
func NewBuilder(assistants *history.AssistantCache, messages *history.MessageCache, platform SchemaSource, decisionTool models.Tool, truncator *Truncator, logger *observability.Logger) *Builder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Builder{
		assistants:   assistants,
		messages:     messages,
		platform:     platform,
		decisionTool: decisionTool,
		truncator:    truncator,
		logger:       logger,
		now:          time.Now,
	}
}

// Build assembles the prompt for one provider call.
func (b *Builder) Build(ctx context.Context, assistantID, threadID string, opts Options) (*Prompt, error) {
	assistant, err := b.assistants.Get(ctx, assistantID)
	if err != nil {
		return nil, fmt.Errorf("load assistant %s: %w", assistantID, err)
	}

	tools := b.mergeTools(assistant, opts.DecisionTelemetry)
	system := b.buildSystemMessage(assistant, tools)

	var raw []models.Message
	if opts.ForceRefresh {
		raw, err = b.messages.Refresh(ctx, threadID)
	} else {
		raw, err = b.messages.Get(ctx, threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("load history for thread %s: %w", threadID, err)
	}

	msgs := make([]models.Message, 0, len(raw)+1)
	msgs = append(msgs, system)
	for _, m := range raw {
		if m.Role == models.RoleSystem {
			// Prior system messages are always replaced by the fresh one.
			continue
		}
		msgs = append(msgs, normalizeMessage(m))
	}

	prompt := &Prompt{Messages: msgs, Assistant: assistant, Merged: tools}
	if opts.StructuredToolCall {
		prompt.Tools = tools
		prompt.Messages[0].Content = stripToolList(prompt.Messages[0].Content)
	}
	if opts.Trunk && b.truncator != nil {
		prompt.Messages = b.truncator.Truncate(prompt.Messages)
	}
	return prompt, nil
}

// mergeTools resolves the assistant's declared tools against the canonical
// platform schemas, prepending record_tool_decision when telemetry is on and
// deduplicating by function name.
func (b *Builder) mergeTools(assistant *models.Assistant, telemetry bool) []models.Tool {
	var platform map[string]models.Tool
	if b.platform != nil {
		platform = b.platform.Schemas()
	}
	merged := make([]models.Tool, 0, len(assistant.Tools)+len(assistant.PlatformTools)+1)
	seen := make(map[string]bool)

	add := func(t models.Tool) {
		name := t.Function.Name
		if name == "" {
			name = t.Name
		}
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		merged = append(merged, t)
	}

	if telemetry {
		add(b.decisionTool)
	}
	for _, t := range assistant.Tools {
		if t.Type == models.ToolTypePlatformBuiltin {
			if canonical, ok := platform[t.Name]; ok {
				add(canonical)
				continue
			}
			b.logger.Warn(context.Background(), "unknown platform tool declared", "tool", t.Name, "assistant_id", assistant.ID)
			continue
		}
		add(t)
	}
	for _, name := range assistant.PlatformTools {
		if canonical, ok := platform[name]; ok {
			add(canonical)
		}
	}
	return merged
}

// buildSystemMessage renders timestamp, instructions, protocols, and the
// inline tool JSON into one system message.
func (b *Builder) buildSystemMessage(assistant *models.Assistant, tools []models.Tool) models.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current time: %s", b.now().UTC().Format(time.RFC3339))
	if assistant.Instructions != "" {
		sb.WriteString("\n\n")
		sb.WriteString(assistant.Instructions)
	}
	sb.WriteString("\n\n")
	sb.WriteString(protocolBlock())
	if len(tools) > 0 {
		if encoded, err := json.Marshal(tools); err == nil {
			sb.WriteString(toolListMarker)
			sb.Write(encoded)
		}
	}
	return models.Message{Role: models.RoleSystem, Content: sb.String()}
}

// stripToolList returns the system content up to the inline tool JSON.
func stripToolList(content string) string {
	if i := strings.Index(content, toolListMarker); i >= 0 {
		return content[:i]
	}
	return content
}

// normalizeMessage maps unknown roles to user and promotes JSON-encoded
// tool-call arrays hiding in assistant content into structured tool_calls.
func normalizeMessage(m models.Message) models.Message {
	if !models.ValidRole(m.Role) {
		m.Role = models.RoleUser
	}
	if m.Role == models.RoleAssistant && len(m.ToolCalls) == 0 {
		if calls, ok := parseInlineToolCalls(m.Content); ok {
			m.ToolCalls = calls
			m.Content = ""
		}
	}
	return m
}

// parseInlineToolCalls detects assistant content of the legacy persisted
// shape: a JSON array starting "[{" whose elements carry a "function" key.
func parseInlineToolCalls(content string) ([]models.ToolCall, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "[{") || !strings.Contains(trimmed, `"function"`) {
		return nil, false
	}
	var entries []struct {
		ID       string `json:"id"`
		Function struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"function"`
	}
	if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
		return nil, false
	}
	calls := make([]models.ToolCall, 0, len(entries))
	for _, e := range entries {
		if e.Function.Name == "" {
			continue
		}
		calls = append(calls, models.ToolCall{ID: e.ID, Name: e.Function.Name, Arguments: e.Function.Arguments})
	}
	if len(calls) == 0 {
		return nil, false
	}
	return calls, true
}
