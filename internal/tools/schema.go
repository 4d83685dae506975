package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/projectdavid/orchestrator/pkg/models"
)

// reflectParams turns an argument struct into the JSON schema the model sees.
// Definitions are inlined so the schema stands alone inside the prompt.
func reflectParams(v any) json.RawMessage {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(v)
	schema.Version = ""
	raw, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return raw
}

// definition assembles a platform-builtin tool declaration.
func definition(name, description string, params any) models.Tool {
	return models.Tool{
		ID:   name,
		Name: name,
		Type: models.ToolTypePlatformBuiltin,
		Function: models.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  reflectParams(params),
		},
	}
}

// decisionArgs is the telemetry payload the assistant records before picking
// a tool. Recording never produces output and never blocks the run.
type decisionArgs struct {
	ToolName  string `json:"tool_name" jsonschema:"required,description=The tool you are about to call."`
	Reasoning string `json:"reasoning" jsonschema:"required,description=One sentence on why this tool fits the current step."`
}

// DecisionToolName is intercepted by the orchestrator and never dispatched
// as an ordinary platform call.
const DecisionToolName = "record_tool_decision"

// DecisionDefinition is the telemetry declaration injected ahead of the tool
// list when decision telemetry is enabled.
func DecisionDefinition() models.Tool {
	return definition(DecisionToolName,
		"Record which tool you are about to use and why. Call this before any other tool call. It produces no output.",
		decisionArgs{})
}
