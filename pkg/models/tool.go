package models

import "encoding/json"

// ToolType distinguishes consumer-declared functions from platform built-ins.
type ToolType string

const (
	ToolTypeFunction        ToolType = "function"
	ToolTypePlatformBuiltin ToolType = "platform-builtin"
)

// Tool is a callable declaration. Tool names are unique; platform built-ins
// have fixed well-known ids.
type Tool struct {
	ID       string             `json:"id,omitempty"`
	Name     string             `json:"name"`
	Type     ToolType           `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition is the JSON-schema declaration the model sees.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}
