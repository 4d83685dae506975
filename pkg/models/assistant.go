package models

import "time"

// Assistant is the conversational agent definition. It is read-only during a
// run and cached in Redis by id.
type Assistant struct {
	ID           string    `json:"id"`
	Model        string    `json:"model"`
	Instructions string    `json:"instructions,omitempty"`
	Tools        []Tool    `json:"tools,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`

	// ToolResources maps a tool name to its resource configuration, e.g.
	// the vector store ids available to file_search.
	ToolResources map[string]map[string]any `json:"tool_resources,omitempty"`

	// PlatformTools lists the platform built-ins enabled for this
	// assistant by name.
	PlatformTools []string `json:"platform_tools,omitempty"`

	TopP        float32 `json:"top_p,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}
