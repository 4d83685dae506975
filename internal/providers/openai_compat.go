package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/projectdavid/orchestrator/internal/backoff"
	"github.com/projectdavid/orchestrator/internal/observability"
	"github.com/projectdavid/orchestrator/pkg/models"
)

// openAICompatClient streams chat completions from any OpenAI-compatible
// endpoint. Stream creation is retried on 429/5xx; once the stream is open,
// failures surface as a terminal Chunk with Err set.
type openAICompatClient struct {
	name    string
	client  *openai.Client
	policy  backoff.Policy
	logger  *observability.Logger
	metrics *observability.Metrics
}

func newOpenAICompatClient(name, apiKey, baseURL string, timeout time.Duration, logger *observability.Logger, metrics *observability.Metrics) *openAICompatClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &openAICompatClient{
		name:    name,
		client:  openai.NewClientWithConfig(cfg),
		policy:  backoff.Policy{Initial: time.Second, Max: 10 * time.Second, Factor: 2, Jitter: 0.1},
		logger:  logger,
		metrics: metrics,
	}
}

func (c *openAICompatClient) StreamChatCompletion(ctx context.Context, req Request) (<-chan Chunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       stripModelPrefix(c.name, req.Model),
		Messages:    toWireMessages(req.Messages),
		Stream:      true,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toWireTools(req.Tools)
	}

	started := time.Now()
	var stream *openai.ChatCompletionStream
	err := backoff.Retry(ctx, c.policy, 3, retryableUpstream, func(attempt int) error {
		if attempt > 1 {
			c.logger.Warn(ctx, "retrying provider stream open", "provider", c.name, "model", chatReq.Model, "attempt", attempt)
		}
		var openErr error
		stream, openErr = c.client.CreateChatCompletionStream(ctx, chatReq)
		return openErr
	})
	c.metrics.ProviderRequests.WithLabelValues(c.name, chatReq.Model, outcome(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("%s stream: %w", c.name, err)
	}

	chunks := make(chan Chunk)
	go func() {
		defer close(chunks)
		defer stream.Close()
		defer func() {
			c.metrics.ProviderLatency.WithLabelValues(c.name, chatReq.Model).Observe(time.Since(started).Seconds())
		}()
		for {
			resp, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					select {
					case chunks <- Chunk{Err: fmt.Errorf("%s stream read: %w", c.name, err)}:
					case <-ctx.Done():
					}
				}
				return
			}
			chunk, ok := fromWireResponse(resp)
			if !ok {
				continue
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return chunks, nil
}

// retryableUpstream treats rate limits and server errors as transient.
// Everything else in the 4xx range is fatal for the turn.
func retryableUpstream(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// stripModelPrefix removes a routing prefix like "hyperbolic/" when it names
// the provider the request is already bound to.
func stripModelPrefix(provider, model string) string {
	head, rest, found := strings.Cut(model, "/")
	if !found {
		return model
	}
	head = strings.ToLower(head)
	if head == provider ||
		(provider == ProviderTogether && (head == "together-ai" || head == "together_ai")) ||
		(provider == ProviderControlPlane && head == "local") {
		return rest
	}
	return model
}

func toWireMessages(msgs []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		wire := openai.ChatCompletionMessage{
			Role:       wireRole(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wire.ToolCalls = append(wire.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, wire)
	}
	return out
}

// wireRole maps internal roles onto the wire's role set. The platform role
// exists only internally; upstream it reads as a user turn.
func wireRole(r models.Role) string {
	if r == models.RolePlatform {
		return openai.ChatMessageRoleUser
	}
	return string(r)
}

func toWireTools(tools []models.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out
}

// fromWireResponse converts one SSE payload. Empty keep-alive payloads are
// dropped.
func fromWireResponse(resp openai.ChatCompletionStreamResponse) (Chunk, bool) {
	if len(resp.Choices) == 0 {
		return Chunk{}, false
	}
	choice := resp.Choices[0]
	chunk := Chunk{
		Content:          choice.Delta.Content,
		ReasoningContent: choice.Delta.ReasoningContent,
		FinishReason:     string(choice.FinishReason),
	}
	for _, tc := range choice.Delta.ToolCalls {
		delta := ToolCallDelta{
			ID:             tc.ID,
			Name:           tc.Function.Name,
			ArgumentsDelta: tc.Function.Arguments,
		}
		if tc.Index != nil {
			delta.Index = *tc.Index
		}
		chunk.ToolCalls = append(chunk.ToolCalls, delta)
	}
	if chunk.Content == "" && chunk.ReasoningContent == "" && len(chunk.ToolCalls) == 0 && chunk.FinishReason == "" {
		return Chunk{}, false
	}
	return chunk, true
}
