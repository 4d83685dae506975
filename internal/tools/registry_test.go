package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/projectdavid/orchestrator/pkg/models"
)

func testRegistry() *Registry {
	return NewRegistry(Deps{
		Web:     newFakeWeb(),
		Vector:  &fakeVector{storeID: "vs_1", results: json.RawMessage(`[]`)},
		Sandbox: &fakeSandbox{},
		Files:   &fakeFiles{},
	})
}

func TestRegistryCoversPlatformSet(t *testing.T) {
	r := testRegistry()
	want := []string{
		"code_interpreter", "computer",
		"perform_web_search", "web_search",
		"read_web_page", "search_web_page", "scroll_web_page",
		"file_search", "vector_store_search",
		"read_scratchpad", "update_scratchpad", "append_scratchpad",
	}
	for _, name := range want {
		h, ok := r.Get(name)
		if !ok {
			t.Errorf("missing handler %q", name)
			continue
		}
		if h.Name() != name {
			t.Errorf("handler %q reports name %q", name, h.Name())
		}
	}
	if _, ok := r.Get("delegate_research_task"); ok {
		t.Error("delegation should be unregistered without a runner")
	}
}

func TestSchemasAreValidObjects(t *testing.T) {
	r := testRegistry()
	schemas := r.Schemas()
	if _, ok := schemas[DecisionToolName]; !ok {
		t.Fatal("decision declaration missing from schema map")
	}
	for name, tool := range schemas {
		if tool.Type != models.ToolTypePlatformBuiltin {
			t.Errorf("%s: type = %q", name, tool.Type)
		}
		if tool.Function.Name != name {
			t.Errorf("%s: function name = %q", name, tool.Function.Name)
		}
		var decoded map[string]any
		if err := json.Unmarshal(tool.Function.Parameters, &decoded); err != nil {
			t.Errorf("%s: parameters not valid JSON: %v", name, err)
		}
	}
}

func TestDecisionSchemaRequiresBothFields(t *testing.T) {
	def := DecisionDefinition()
	var schema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(def.Function.Parameters, &schema); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	got := strings.Join(schema.Required, ",")
	if !strings.Contains(got, "tool_name") || !strings.Contains(got, "reasoning") {
		t.Errorf("required = %v", schema.Required)
	}
}

func TestScratchpadRoundTrip(t *testing.T) {
	web := newFakeWeb()
	ctx := context.Background()

	var events []models.StreamEvent
	update := newScratchpad(web, "update_scratchpad")
	if _, err := update.Execute(ctx, inv(map[string]any{"content": "plan: step one"}), collectEmit(&events)); err != nil {
		t.Fatalf("update: %v", err)
	}

	appendH := newScratchpad(web, "append_scratchpad")
	if _, err := appendH.Execute(ctx, inv(map[string]any{"entry": "step two done"}), collectEmit(&events)); err != nil {
		t.Fatalf("append: %v", err)
	}

	read := newScratchpad(web, "read_scratchpad")
	out, err := read.Execute(ctx, inv(map[string]any{}), collectEmit(&events))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(out, "plan: step one") || !strings.Contains(out, "step two done") {
		t.Errorf("read = %q", out)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 scratchpad_status events, got %d", len(events))
	}
	ops := []string{"update", "append", "read"}
	for i, ev := range events {
		if ev.Type != models.EventScratchpadStatus {
			t.Fatalf("event %d type = %q", i, ev.Type)
		}
		if ev.Scratchpad.Operation != ops[i] {
			t.Errorf("event %d operation = %q, want %q", i, ev.Scratchpad.Operation, ops[i])
		}
		if ev.Scratchpad.AssistantID != "asst_1" {
			t.Errorf("event %d assistant = %q", i, ev.Scratchpad.AssistantID)
		}
	}
	if events[1].Scratchpad.Entry != "step two done" {
		t.Errorf("append event entry = %q", events[1].Scratchpad.Entry)
	}
}

func TestFileSearchUsesResolvedStore(t *testing.T) {
	vector := &fakeVector{storeID: "vs_42", results: json.RawMessage(`[{"text":"hit","score":0.9}]`)}
	h := newFileSearch(vector, "file_search")

	out, err := h.Execute(context.Background(), inv(map[string]any{"query": "quarterly revenue"}), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != `[{"text":"hit","score":0.9}]` {
		t.Errorf("output = %q", out)
	}
	if len(vector.queries) != 1 || vector.queries[0] != "quarterly revenue" {
		t.Errorf("queries = %v", vector.queries)
	}
}

func TestDelegateBuildsBriefAndReturnsReport(t *testing.T) {
	runner := &stubRunner{report: "Findings: all good."}
	h := newDelegate(runner)

	out, err := h.Execute(context.Background(), inv(map[string]any{
		"task":             "Summarize recent papers on RAG.",
		"constraints":      "Peer-reviewed sources only.",
		"success_criteria": "Three citations minimum.",
	}), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "Findings: all good." {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(runner.task, "Summarize recent papers") ||
		!strings.Contains(runner.task, "Constraints:\nPeer-reviewed sources only.") ||
		!strings.Contains(runner.task, "Success criteria:\nThree citations minimum.") {
		t.Errorf("brief = %q", runner.task)
	}
}

type stubRunner struct {
	report string
	task   string
}

func (s *stubRunner) RunDelegation(_ context.Context, _ Invocation, task string, _ EmitFunc) (string, error) {
	s.task = task
	return s.report, nil
}
