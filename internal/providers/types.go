// Package providers implements the upstream model clients. Every supported
// provider speaks the OpenAI-compatible chat-completions SSE protocol; the
// variants differ only in base URL, authentication and model naming.
package providers

import (
	"context"

	"github.com/projectdavid/orchestrator/pkg/models"
)

// Provider names accepted by the factory.
const (
	ProviderOpenAI       = "openai"
	ProviderTogether     = "together"
	ProviderHyperbolic   = "hyperbolic"
	ProviderControlPlane = "controlplane"
)

// DetectProvider infers the provider from a namespaced model id like
// "hyperbolic/meta-llama/Llama-3.3-70B-Instruct". Unprefixed ids route to
// OpenAI.
func DetectProvider(model string) string {
	switch {
	case hasPrefix(model, "hyperbolic/"):
		return ProviderHyperbolic
	case hasPrefix(model, "together/"), hasPrefix(model, "together-ai/"), hasPrefix(model, "together_ai/"):
		return ProviderTogether
	case hasPrefix(model, "controlplane/"), hasPrefix(model, "local/"):
		return ProviderControlPlane
	default:
		return ProviderOpenAI
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Request is one streaming chat-completion call.
type Request struct {
	Model    string
	Messages []models.Message

	// Tools, when non-empty, switches the call to native tool mode.
	Tools []models.Tool

	Temperature float32
	TopP        float32
	MaxTokens   int
}

// ToolCallDelta is one streamed fragment of a native tool call. OpenAI
// interleaves fragments for concurrent calls; Index correlates them.
type ToolCallDelta struct {
	Index int
	ID    string
	Name  string

	// ArgumentsDelta is the next run of argument JSON text.
	ArgumentsDelta string
}

// Chunk is one decoded SSE payload from a provider stream.
type Chunk struct {
	// Content is the visible text delta, possibly containing inline control
	// tags that the normalizer strips.
	Content string

	// ReasoningContent is the dedicated reasoning delta emitted by models
	// that separate thinking from the reply. It bypasses tag scanning.
	ReasoningContent string

	ToolCalls []ToolCallDelta

	// FinishReason is set on the final content chunk: "stop", "tool_calls",
	// "length".
	FinishReason string

	// Err terminates the stream when set. The channel closes after it.
	Err error
}

// StreamingClient issues one chat-completion call and streams decoded
// chunks. The channel closes when the stream ends, errors, or ctx is done.
type StreamingClient interface {
	StreamChatCompletion(ctx context.Context, req Request) (<-chan Chunk, error)
}
