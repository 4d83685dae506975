package normalizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/projectdavid/orchestrator/internal/providers"
	"github.com/projectdavid/orchestrator/pkg/models"
)

func feedContent(n *Normalizer, chunks ...string) []models.StreamEvent {
	var out []models.StreamEvent
	for _, c := range chunks {
		out = append(out, n.Feed(providers.Chunk{Content: c})...)
	}
	return append(out, n.Flush()...)
}

func joinByType(events []models.StreamEvent, t models.EventType) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == t {
			b.WriteString(ev.Content)
		}
	}
	return b.String()
}

func TestThinkTagSplitAcrossChunks(t *testing.T) {
	// The tag boundary lands mid-chunk on both the opener and the closer.
	events := feedContent(New(), "abc<thi", "nk>hidden</thi", "nk>visible")

	var kinds []models.EventType
	for _, ev := range events {
		kinds = append(kinds, ev.Type)
	}
	if got := joinByType(events, models.EventContent); got != "abcvisible" {
		t.Errorf("content = %q, want %q", got, "abcvisible")
	}
	if got := joinByType(events, models.EventReasoning); got != "hidden" {
		t.Errorf("reasoning = %q, want %q", got, "hidden")
	}
	// Order: content before reasoning before trailing content.
	want := []models.EventType{models.EventContent, models.EventReasoning, models.EventContent}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event kinds = %v, want %v", kinds, want)
		}
	}
}

func TestNoTagBytesLeakIntoContent(t *testing.T) {
	events := feedContent(New(),
		"start<think>a<b>c</think>",
		"<plan>route</plan>",
		"mid<fc>{\"name\":\"x\"}</fc>end")
	content := joinByType(events, models.EventContent)
	for _, marker := range []string{"<think>", "</think>", "<plan>", "</plan>", "<fc>", "</fc>"} {
		if strings.Contains(content, marker) {
			t.Errorf("content %q leaks %q", content, marker)
		}
	}
	if content != "startmidend" {
		t.Errorf("content = %q, want %q", content, "startmidend")
	}
	// Literal '<' inside a think span stays in the reasoning stream.
	if got := joinByType(events, models.EventReasoning); got != "a<b>croute" {
		t.Errorf("reasoning = %q", got)
	}
	if got := joinByType(events, models.EventCallArguments); got != "{\"name\":\"x\"}" {
		t.Errorf("call_arguments = %q", got)
	}
}

func TestHarmonyAnalysisAndFinalChannels(t *testing.T) {
	events := feedContent(New(),
		"<|channel|>analysis<|message|>let me think<|end|><|start|>assistant",
		"<|channel|>final<|message|>The answer is 4.")
	if got := joinByType(events, models.EventReasoning); got != "let me think" {
		t.Errorf("reasoning = %q", got)
	}
	if got := joinByType(events, models.EventContent); got != "The answer is 4." {
		t.Errorf("content = %q", got)
	}
}

func TestHarmonyCommentaryToolCall(t *testing.T) {
	events := feedContent(New(),
		"<|channel|>commentary to=functions.get_weather <|constrain|>json<|message|>",
		`{"location":"Oslo"}`,
		"<|call|>")

	var toolName string
	var call *models.ToolCallPayload
	for _, ev := range events {
		switch ev.Type {
		case models.EventToolName:
			toolName = ev.ToolName
		case models.EventToolCall:
			call = ev.ToolCall
		}
	}
	if toolName != "get_weather" {
		t.Errorf("tool_name = %q", toolName)
	}
	if call == nil || call.Name != "get_weather" || call.Arguments != `{"location":"Oslo"}` {
		t.Fatalf("tool_call = %+v", call)
	}
	if got := joinByType(events, models.EventCallArguments); got != `{"location":"Oslo"}` {
		t.Errorf("call_arguments = %q", got)
	}
	if got := joinByType(events, models.EventContent); got != "" {
		t.Errorf("content should be empty, got %q", got)
	}
}

func TestTransitionGarbageScrubbed(t *testing.T) {
	events := feedContent(New(), "done.<|end|><|start|>assistant")
	if got := joinByType(events, models.EventContent); got != "done." {
		t.Errorf("content = %q", got)
	}
}

func TestStartTagAmbiguityHeldAcrossChunks(t *testing.T) {
	// "<|start|>" alone could still grow into "<|start|>assistant".
	events := feedContent(New(), "a<|start|>", "assistant", "b")
	if got := joinByType(events, models.EventContent); got != "ab" {
		t.Errorf("content = %q, want %q", got, "ab")
	}
}

func TestReasoningContentBypassesTagParser(t *testing.T) {
	n := New()
	events := n.Feed(providers.Chunk{ReasoningContent: "chain", Content: "<think>"})
	events = append(events, n.Flush()...)

	if got := joinByType(events, models.EventReasoning); got != "chain" {
		t.Errorf("reasoning = %q", got)
	}
	// Content passes through untouched on reasoning chunks.
	if got := joinByType(events, models.EventContent); got != "<think>" {
		t.Errorf("content = %q", got)
	}
}

func TestNativeToolCallAccumulation(t *testing.T) {
	n := New()
	var events []models.StreamEvent
	events = append(events, n.Feed(providers.Chunk{ToolCalls: []providers.ToolCallDelta{
		{Index: 0, ID: "call_1", Name: "file_search", ArgumentsDelta: `{"que`},
	}})...)
	events = append(events, n.Feed(providers.Chunk{ToolCalls: []providers.ToolCallDelta{
		{Index: 0, ArgumentsDelta: `ry":"go"}`},
	}})...)
	events = append(events, n.Feed(providers.Chunk{FinishReason: "tool_calls"})...)

	var names []string
	var calls []*models.ToolCallPayload
	for _, ev := range events {
		switch ev.Type {
		case models.EventToolName:
			names = append(names, ev.ToolName)
		case models.EventToolCall:
			calls = append(calls, ev.ToolCall)
		}
	}
	if len(names) != 1 || names[0] != "file_search" {
		t.Errorf("tool_name events = %v", names)
	}
	if len(calls) != 1 || calls[0].Arguments != `{"query":"go"}` {
		t.Fatalf("tool_call events = %+v", calls)
	}
	if got := joinByType(events, models.EventCallArguments); got != `{"query":"go"}` {
		t.Errorf("call_arguments = %q", got)
	}
}

func TestParallelNativeToolCalls(t *testing.T) {
	n := New()
	var events []models.StreamEvent
	events = append(events, n.Feed(providers.Chunk{ToolCalls: []providers.ToolCallDelta{
		{Index: 0, Name: "a", ArgumentsDelta: `{}`},
		{Index: 1, Name: "b", ArgumentsDelta: `{"x":1}`},
	}})...)
	events = append(events, n.Feed(providers.Chunk{FinishReason: "tool_calls"})...)

	var calls []*models.ToolCallPayload
	for _, ev := range events {
		if ev.Type == models.EventToolCall {
			calls = append(calls, ev.ToolCall)
		}
	}
	if len(calls) != 2 || calls[0].Name != "a" || calls[1].Name != "b" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestStreamErrorFlushesThenErrors(t *testing.T) {
	n := New()
	n.Feed(providers.Chunk{Content: "partial<thi"})
	events := n.Feed(providers.Chunk{Err: errors.New("connection reset")})

	if len(events) < 2 {
		t.Fatalf("events = %+v", events)
	}
	last := events[len(events)-1]
	if last.Type != models.EventError || !strings.Contains(last.Content, "connection reset") {
		t.Fatalf("last event = %+v", last)
	}
	// The held-back partial tag surfaces as best-effort content.
	if got := joinByType(events, models.EventContent); got != "<thi" {
		t.Errorf("flushed content = %q", got)
	}
}

func TestEmptyStream(t *testing.T) {
	n := New()
	if events := n.Flush(); len(events) != 0 {
		t.Fatalf("empty stream produced %+v", events)
	}
}

func TestDanglingOpenTagFlushedAsState(t *testing.T) {
	events := feedContent(New(), "<think>never closed")
	if got := joinByType(events, models.EventReasoning); got != "never closed" {
		t.Errorf("reasoning = %q", got)
	}
	if got := joinByType(events, models.EventContent); got != "" {
		t.Errorf("content = %q", got)
	}
}

func TestMalformedInputStaysContent(t *testing.T) {
	events := feedContent(New(), "a < b and 1<2 </notatag> c")
	if got := joinByType(events, models.EventContent); got != "a < b and 1<2 </notatag> c" {
		t.Errorf("content = %q", got)
	}
}

func TestReasoningChunkKeepsToolDeltas(t *testing.T) {
	n := New()
	events := n.Feed(providers.Chunk{
		ReasoningContent: "picking a tool",
		ToolCalls: []providers.ToolCallDelta{
			{Index: 0, Name: "get_weather", ArgumentsDelta: `{"city":`},
		},
	})
	events = append(events, n.Feed(providers.Chunk{
		ToolCalls:    []providers.ToolCallDelta{{Index: 0, ArgumentsDelta: `"Paris"}`}},
		FinishReason: "tool_calls",
	})...)
	events = append(events, n.Flush()...)

	if got := joinByType(events, models.EventReasoning); got != "picking a tool" {
		t.Errorf("reasoning = %q", got)
	}
	var call *models.ToolCallPayload
	for _, ev := range events {
		if ev.Type == models.EventToolCall {
			call = ev.ToolCall
		}
	}
	if call == nil {
		t.Fatal("tool deltas on a reasoning chunk were dropped")
	}
	if call.Name != "get_weather" || call.Arguments != `{"city":"Paris"}` {
		t.Errorf("tool_call = %+v", call)
	}
}
