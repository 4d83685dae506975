// Package router detects and classifies tool calls in model output. It
// operates in two modes: regex/text mode scans the accumulated stream text
// for a single call, native mode composes the call from normalizer events.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/projectdavid/orchestrator/internal/observability"
	"github.com/projectdavid/orchestrator/pkg/models"
)

// Platform built-in tool names. Anything else routes to the consumer.
var platformToolNames = map[string]bool{
	"code_interpreter":       true,
	"web_search":             true,
	"vector_store_search":    true,
	"computer":               true,
	"perform_web_search":     true,
	"read_web_page":          true,
	"search_web_page":        true,
	"scroll_web_page":        true,
	"file_search":            true,
	"read_scratchpad":        true,
	"update_scratchpad":      true,
	"append_scratchpad":      true,
	"record_tool_decision":   true,
	"delegate_research_task": true,
}

// Kind classifies a detected call.
type Kind string

const (
	KindPlatform Kind = "platform"
	KindConsumer Kind = "consumer"
)

// Classify routes a tool name to its executor.
func Classify(name string) Kind {
	if platformToolNames[name] {
		return KindPlatform
	}
	return KindConsumer
}

// IsPlatformTool reports whether name is a platform built-in.
func IsPlatformTool(name string) bool {
	return platformToolNames[name]
}

// NewCallID mints an opaque tool call id: "call_" plus 8 random hex chars.
func NewCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// fcBlock extracts the first <fc>{…}</fc> span, case-insensitive, dot
// matching newlines.
var fcBlock = regexp.MustCompile(`(?is)<fc>\s*(\{.*?\})\s*</fc>`)

// Router detects tool calls and validates their arguments against the
// declared schemas. It is immutable after construction.
type Router struct {
	schemas  map[string]*jsonschema.Schema
	declared map[string]bool
	logger   *observability.Logger
}

// New compiles the argument schemas of the given tools. Tools whose schema
// does not compile are still routable, just not validated.
func New(tools []models.Tool, logger *observability.Logger) *Router {
	if logger == nil {
		logger = observability.NopLogger()
	}
	r := &Router{
		schemas:  make(map[string]*jsonschema.Schema),
		declared: make(map[string]bool, len(tools)),
		logger:   logger,
	}
	for _, t := range tools {
		name := t.Function.Name
		if name == "" {
			name = t.Name
		}
		if name != "" {
			r.declared[name] = true
		}
		if name == "" || len(t.Function.Parameters) == 0 {
			continue
		}
		schema, err := jsonschema.CompileString(name+".json", string(t.Function.Parameters))
		if err != nil {
			logger.Warn(context.Background(), "tool schema does not compile, skipping validation", "tool", name, "error", err)
			continue
		}
		r.schemas[name] = schema
	}
	return r
}

// ParseTextOutput scans accumulated stream text for one tool call. The
// returned call carries a freshly minted id. Detection order: <fc> block,
// whole-payload JSON, legacy free-text extraction.
func (r *Router) ParseTextOutput(text string) (*models.ToolCall, bool) {
	if m := fcBlock.FindStringSubmatch(text); m != nil {
		if call, ok := parseCallJSON(m[1]); ok {
			return call, true
		}
	}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		if call, ok := parseCallJSON(trimmed); ok {
			return call, true
		}
	}
	return r.parseLegacy(text)
}

// FromPayload composes a call from a normalizer tool_call event.
func (r *Router) FromPayload(payload *models.ToolCallPayload) (*models.ToolCall, bool) {
	if payload == nil || payload.Name == "" {
		return nil, false
	}
	args := strings.TrimSpace(payload.Arguments)
	if args == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		return nil, false
	}
	return &models.ToolCall{ID: NewCallID(), Name: payload.Name, Arguments: json.RawMessage(args)}, true
}

// Declared reports whether the tool was in the list this router was built
// from, i.e. whether the assistant may call it this turn.
func (r *Router) Declared(name string) bool {
	return r.declared[name]
}

// ValidateArgs checks parsed arguments against the tool's declared schema.
// Tools without a compiled schema pass.
func (r *Router) ValidateArgs(name string, args map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return nil
	}
	if err := schema.Validate(map[string]any(args)); err != nil {
		return fmt.Errorf("arguments for %s: %w", name, err)
	}
	return nil
}

// parseLegacy is the last-ditch extractor: find balanced JSON objects in
// free text and accept the first that looks like a tool call.
func (r *Router) parseLegacy(text string) (*models.ToolCall, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end, ok := balancedObjectEnd(text, i)
		if !ok {
			continue
		}
		if call, ok := parseCallJSON(text[i : end+1]); ok {
			return call, true
		}
		i = end
	}
	return nil, false
}

// balancedObjectEnd finds the closing brace matching the one at start,
// respecting strings and escapes.
func balancedObjectEnd(text string, start int) (int, bool) {
	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// parseCallJSON accepts a payload matching {name: str, arguments: dict|str}.
// Arguments stay raw; dispatch unwraps them lazily.
func parseCallJSON(payload string) (*models.ToolCall, bool) {
	var probe struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(payload), &probe); err != nil {
		return nil, false
	}
	if probe.Name == "" {
		return nil, false
	}
	if len(probe.Arguments) > 0 && !validArgumentsShape(probe.Arguments) {
		return nil, false
	}
	return &models.ToolCall{ID: NewCallID(), Name: probe.Name, Arguments: probe.Arguments}, true
}

// validArgumentsShape accepts an object, or a JSON string that itself
// decodes to an object.
func validArgumentsShape(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		return json.Valid(raw)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	inner := strings.TrimSpace(s)
	return strings.HasPrefix(inner, "{") && json.Valid([]byte(inner))
}
