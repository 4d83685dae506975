package router

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/projectdavid/orchestrator/pkg/models"
)

func testRouter() *Router {
	return New([]models.Tool{
		{Name: "get_weather", Type: models.ToolTypeFunction, Function: models.FunctionDefinition{
			Name:       "get_weather",
			Parameters: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`),
		}},
	}, nil)
}

func TestParseFCBlock(t *testing.T) {
	text := "Let me look that up.\n<FC>\n{\"name\": \"get_weather\", \"arguments\": {\"city\": \"Oslo\"}}\n</FC>"
	call, ok := testRouter().ParseTextOutput(text)
	if !ok {
		t.Fatal("no call detected")
	}
	if call.Name != "get_weather" {
		t.Errorf("name = %q", call.Name)
	}
	args, err := call.ArgumentsMap()
	if err != nil {
		t.Fatalf("ArgumentsMap: %v", err)
	}
	if args["city"] != "Oslo" {
		t.Errorf("args = %v", args)
	}
}

func TestParseFCBlockSpansLines(t *testing.T) {
	text := "<fc>{\n  \"name\": \"foo\",\n  \"arguments\": {\n    \"a\": 1\n  }\n}</fc>"
	if _, ok := testRouter().ParseTextOutput(text); !ok {
		t.Fatal("multiline fc block not detected")
	}
}

func TestParseBareJSONPayload(t *testing.T) {
	call, ok := testRouter().ParseTextOutput(`  {"name":"get_weather","arguments":{"city":"Oslo"}}  `)
	if !ok || call.Name != "get_weather" {
		t.Fatalf("call = %+v, ok = %v", call, ok)
	}
}

func TestParseLegacyFreeText(t *testing.T) {
	text := `I will call the tool now: {"name":"get_weather","arguments":{"city":"Oslo"}} — stand by.`
	call, ok := testRouter().ParseTextOutput(text)
	if !ok || call.Name != "get_weather" {
		t.Fatalf("call = %+v, ok = %v", call, ok)
	}
}

func TestMalformedJSONYieldsNoCall(t *testing.T) {
	// Scenario: broken arguments inside an fc block must not produce a call.
	text := `<fc>{ "name": "foo", "arguments": {broken</fc>`
	if call, ok := testRouter().ParseTextOutput(text); ok {
		t.Fatalf("detected call from malformed JSON: %+v", call)
	}
}

func TestPlainProseYieldsNoCall(t *testing.T) {
	if _, ok := testRouter().ParseTextOutput("The weather in Oslo is usually mild."); ok {
		t.Fatal("detected call in plain prose")
	}
}

func TestStringifiedArgumentsAccepted(t *testing.T) {
	call, ok := testRouter().ParseTextOutput(`{"name":"get_weather","arguments":"{\"city\":\"Oslo\"}"}`)
	if !ok {
		t.Fatal("stringified arguments rejected")
	}
	args, err := call.ArgumentsMap()
	if err != nil || args["city"] != "Oslo" {
		t.Fatalf("args = %v, err = %v", args, err)
	}
}

func TestNonObjectArgumentsRejected(t *testing.T) {
	if _, ok := testRouter().ParseTextOutput(`{"name":"foo","arguments":[1,2]}`); ok {
		t.Fatal("array arguments accepted")
	}
	if _, ok := testRouter().ParseTextOutput(`{"name":"foo","arguments":"not json"}`); ok {
		t.Fatal("non-JSON string arguments accepted")
	}
}

func TestFromPayload(t *testing.T) {
	r := testRouter()
	call, ok := r.FromPayload(&models.ToolCallPayload{Name: "get_weather", Arguments: `{"city":"Oslo"}`})
	if !ok || call.Name != "get_weather" {
		t.Fatalf("call = %+v", call)
	}
	if _, ok := r.FromPayload(&models.ToolCallPayload{Name: "x", Arguments: "{bad"}); ok {
		t.Fatal("invalid payload accepted")
	}
}

func TestCallIDShape(t *testing.T) {
	pattern := regexp.MustCompile(`^call_[0-9a-f]{8}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := NewCallID()
		if !pattern.MatchString(id) {
			t.Fatalf("id %q does not match call_ + 8 hex", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestClassify(t *testing.T) {
	for _, name := range []string{
		"code_interpreter", "web_search", "vector_store_search", "computer",
		"perform_web_search", "read_web_page", "search_web_page", "scroll_web_page",
		"file_search", "read_scratchpad", "update_scratchpad", "append_scratchpad",
		"record_tool_decision", "delegate_research_task",
	} {
		if Classify(name) != KindPlatform {
			t.Errorf("%s classified as consumer", name)
		}
	}
	if Classify("get_weather") != KindConsumer {
		t.Error("get_weather classified as platform")
	}
}

func TestValidateArgs(t *testing.T) {
	r := testRouter()
	if err := r.ValidateArgs("get_weather", map[string]any{"city": "Oslo"}); err != nil {
		t.Fatalf("valid args rejected: %v", err)
	}
	if err := r.ValidateArgs("get_weather", map[string]any{"city": 7}); err == nil {
		t.Fatal("schema violation accepted")
	}
	// Unknown tools pass without validation.
	if err := r.ValidateArgs("unknown_tool", map[string]any{}); err != nil {
		t.Fatalf("unknown tool rejected: %v", err)
	}
}
