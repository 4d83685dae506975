package providers

import (
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/projectdavid/orchestrator/pkg/models"
)

func TestToWireMessagesMapsRolesAndToolCalls(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleSystem, Content: "instructions"},
		{Role: models.RolePlatform, Content: "tool digest"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "call_ab12cd34", Name: "read_web_page", Arguments: json.RawMessage(`{"url":"https://example.com"}`)},
		}},
		{Role: models.RoleTool, Content: "page text", ToolCallID: "call_ab12cd34", Name: "read_web_page"},
	}

	wire := toWireMessages(msgs)
	if len(wire) != 4 {
		t.Fatalf("got %d wire messages", len(wire))
	}
	if wire[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("system role mapped to %q", wire[0].Role)
	}
	if wire[1].Role != openai.ChatMessageRoleUser {
		t.Errorf("platform role mapped to %q, want user", wire[1].Role)
	}
	if len(wire[2].ToolCalls) != 1 || wire[2].ToolCalls[0].Function.Name != "read_web_page" {
		t.Errorf("tool calls not carried: %+v", wire[2].ToolCalls)
	}
	if wire[3].ToolCallID != "call_ab12cd34" || wire[3].Name != "read_web_page" {
		t.Errorf("tool message lost linkage: %+v", wire[3])
	}
}

func TestFromWireResponseDropsKeepAlives(t *testing.T) {
	if _, ok := fromWireResponse(openai.ChatCompletionStreamResponse{}); ok {
		t.Fatal("empty response should be dropped")
	}
	resp := openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{Delta: openai.ChatCompletionStreamChoiceDelta{}}},
	}
	if _, ok := fromWireResponse(resp); ok {
		t.Fatal("empty delta should be dropped")
	}
}

func TestFromWireResponseCarriesReasoningAndToolDeltas(t *testing.T) {
	idx := 1
	resp := openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{
				ReasoningContent: "thinking…",
				ToolCalls: []openai.ToolCall{{
					Index:    &idx,
					ID:       "call_x",
					Function: openai.FunctionCall{Name: "file_search", Arguments: `{"que`},
				}},
			},
		}},
	}
	chunk, ok := fromWireResponse(resp)
	if !ok {
		t.Fatal("chunk dropped")
	}
	if chunk.ReasoningContent != "thinking…" {
		t.Errorf("reasoning = %q", chunk.ReasoningContent)
	}
	if len(chunk.ToolCalls) != 1 || chunk.ToolCalls[0].Index != 1 || chunk.ToolCalls[0].ArgumentsDelta != `{"que` {
		t.Errorf("tool deltas = %+v", chunk.ToolCalls)
	}
}

func TestFromWireResponseFinishReason(t *testing.T) {
	resp := openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta:        openai.ChatCompletionStreamChoiceDelta{Content: "done."},
			FinishReason: openai.FinishReasonStop,
		}},
	}
	chunk, ok := fromWireResponse(resp)
	if !ok || chunk.FinishReason != "stop" || chunk.Content != "done." {
		t.Fatalf("chunk = %+v, ok = %v", chunk, ok)
	}
}
