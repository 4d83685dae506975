package promptbuilder

import "strings"

// Operational protocol blocks appended to every system message. The registry
// is static: protocols are prompt contracts, not configuration.
var protocolRegistry = []struct {
	name string
	text string
}{
	{
		name: "tool_usage",
		text: "When a tool is required, emit exactly one tool call and wait for its " +
			"output before continuing. Never fabricate tool output. Arguments must be " +
			"valid JSON matching the declared schema.",
	},
	{
		name: "reasoning",
		text: "Keep internal reasoning inside <think> tags. Text outside reasoning " +
			"tags is shown to the user verbatim.",
	},
	{
		name: "scratchpad",
		text: "The scratchpad is shared across this conversation. Read it before " +
			"relying on prior notes; append findings worth keeping across turns.",
	},
	{
		name: "web_results",
		text: "Cite fetched pages by URL. If a search returns nothing useful, retry " +
			"once with synonyms before telling the user nothing was found.",
	},
}

// protocolBlock renders the registry as one block for the system message.
func protocolBlock() string {
	var b strings.Builder
	b.WriteString("Operational protocols:")
	for _, p := range protocolRegistry {
		b.WriteString("\n- [")
		b.WriteString(p.name)
		b.WriteString("] ")
		b.WriteString(p.text)
	}
	return b.String()
}
