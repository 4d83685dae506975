package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/projectdavid/orchestrator/internal/store"
	"github.com/projectdavid/orchestrator/pkg/models"
)

type computerArgs struct {
	Commands []string `json:"commands" jsonschema:"required,description=Shell commands to run in order inside the sandbox."`
}

// computer runs shell commands in the sandbox, streaming combined output.
type computer struct {
	sandbox store.SandboxService
}

func newComputer(sandbox store.SandboxService) *computer {
	return &computer{sandbox: sandbox}
}

func (c *computer) Name() string { return "computer" }

func (c *computer) Definition() models.Tool {
	return definition(c.Name(),
		"Run shell commands in the sandbox. Commands execute in order and share one working directory.",
		computerArgs{})
}

func (c *computer) Execute(ctx context.Context, inv Invocation, emit EmitFunc) (string, error) {
	commands := argStrings(inv.Args, "commands")
	if len(commands) == 0 {
		return "", ValidationError("missing required argument %q; retry with a non-empty list of shell commands", "commands")
	}

	chunks, err := c.sandbox.RunCommands(ctx, inv.RunID, commands)
	if err != nil {
		return "", fmt.Errorf("sandbox commands: %w", err)
	}

	var output strings.Builder
	for chunk := range chunks {
		if chunk.Type != "output" {
			continue
		}
		output.WriteString(chunk.Content)
		emit(models.StreamEvent{Type: models.EventContent, RunID: inv.RunID, Content: chunk.Content})
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if strings.TrimSpace(output.String()) == "" {
		return "Commands finished with no output.", nil
	}
	return output.String(), nil
}
