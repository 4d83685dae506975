package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/projectdavid/orchestrator/internal/store"
	"github.com/projectdavid/orchestrator/pkg/models"
)

type codeInterpArgs struct {
	Code string `json:"code" jsonschema:"required,description=Python source to execute in the sandbox."`
}

// codeInterpreter streams sandbox execution: hot_code frames while the code
// is echoed, content frames for output, and file_preview frames for every
// artifact the run produces.
type codeInterpreter struct {
	sandbox store.SandboxService
	files   store.Files
}

func newCodeInterpreter(sandbox store.SandboxService, files store.Files) *codeInterpreter {
	return &codeInterpreter{sandbox: sandbox, files: files}
}

func (c *codeInterpreter) Name() string { return "code_interpreter" }

func (c *codeInterpreter) Definition() models.Tool {
	return definition(c.Name(),
		"Execute Python code in a stateful sandbox. Output and generated files stream back as they appear.",
		codeInterpArgs{})
}

func (c *codeInterpreter) Execute(ctx context.Context, inv Invocation, emit EmitFunc) (string, error) {
	code := argString(inv.Args, "code")
	if strings.TrimSpace(code) == "" {
		return "", ValidationError("missing required argument %q; retry with the source to run, e.g. {\"code\": \"print(1+1)\"}", "code")
	}

	chunks, err := c.sandbox.ExecuteCode(ctx, inv.RunID, code)
	if err != nil {
		return "", fmt.Errorf("sandbox execute: %w", err)
	}

	var output strings.Builder
	var artifacts []string
	for chunk := range chunks {
		switch chunk.Type {
		case "hot_code":
			emit(models.StreamEvent{Type: models.EventHotCode, RunID: inv.RunID, Content: chunk.Content})
		case "output":
			output.WriteString(chunk.Content)
			emit(models.StreamEvent{Type: models.EventContent, RunID: inv.RunID, Content: chunk.Content})
		case "artifact":
			c.emitArtifact(ctx, inv, chunk, emit)
			artifacts = append(artifacts, chunk.Filename)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	return executionSummary(output.String(), artifacts), nil
}

// emitArtifact resolves the artifact bytes and streams a preview. A fetch
// failure degrades to a content note rather than failing the whole call.
func (c *codeInterpreter) emitArtifact(ctx context.Context, inv Invocation, chunk store.ExecChunk, emit EmitFunc) {
	b64, err := c.files.GetFileAsBase64(ctx, chunk.FileID)
	if err != nil {
		emit(models.ContentEvent(fmt.Sprintf("[generated file %s is available as %s]", chunk.Filename, chunk.FileID)))
		return
	}
	emit(models.StreamEvent{
		Type:  models.EventFilePreview,
		RunID: inv.RunID,
		File: &models.FilePreview{
			FileID:   chunk.FileID,
			Filename: chunk.Filename,
			MimeType: chunk.MimeType,
			Base64:   b64,
		},
	})
}

// executionSummary is the textual output submitted back to the model.
func executionSummary(output string, artifacts []string) string {
	var b strings.Builder
	if strings.TrimSpace(output) == "" {
		b.WriteString("Execution finished with no output.")
	} else {
		b.WriteString("Execution output:\n")
		b.WriteString(output)
	}
	if len(artifacts) > 0 {
		b.WriteString("\nGenerated files: ")
		b.WriteString(strings.Join(artifacts, ", "))
	}
	return b.String()
}
