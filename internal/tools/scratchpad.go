package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/projectdavid/orchestrator/internal/store"
	"github.com/projectdavid/orchestrator/pkg/models"
)

type scratchpadReadArgs struct{}

type scratchpadWriteArgs struct {
	Content string `json:"content" jsonschema:"required,description=Full replacement text for the scratchpad."`
}

type scratchpadAppendArgs struct {
	Entry string `json:"entry" jsonschema:"required,description=Entry to append to the scratchpad."`
}

// scratchpad serves the shared per-thread notepad. One struct covers the
// read, update, and append variants; the operation is derived from the name.
type scratchpad struct {
	web  store.ToolService
	name string
}

func newScratchpad(web store.ToolService, name string) *scratchpad {
	return &scratchpad{web: web, name: name}
}

func (s *scratchpad) Name() string { return s.name }

func (s *scratchpad) Definition() models.Tool {
	switch s.name {
	case "update_scratchpad":
		return definition(s.name,
			"Replace the shared scratchpad for this thread. All assistants on the thread see the new state.",
			scratchpadWriteArgs{})
	case "append_scratchpad":
		return definition(s.name,
			"Append an entry to the shared scratchpad without touching existing content.",
			scratchpadAppendArgs{})
	default:
		return definition(s.name,
			"Read the shared scratchpad for this thread.",
			scratchpadReadArgs{})
	}
}

func (s *scratchpad) Execute(ctx context.Context, inv Invocation, emit EmitFunc) (string, error) {
	switch s.name {
	case "update_scratchpad":
		content := argString(inv.Args, "content")
		if content == "" {
			return "", ValidationError("missing required argument %q; retry with the replacement text", "content")
		}
		if err := s.web.ScratchpadUpdate(ctx, inv.ThreadID, content); err != nil {
			return "", fmt.Errorf("scratchpad update: %w", err)
		}
		s.emitStatus(inv, emit, "update", content, "")
		return "Scratchpad updated.", nil

	case "append_scratchpad":
		entry := argString(inv.Args, "entry")
		if strings.TrimSpace(entry) == "" {
			return "", ValidationError("missing required argument %q; retry with the text to append", "entry")
		}
		if err := s.web.ScratchpadAppend(ctx, inv.ThreadID, entry); err != nil {
			return "", fmt.Errorf("scratchpad append: %w", err)
		}
		s.emitStatus(inv, emit, "append", "", entry)
		return "Entry appended to scratchpad.", nil

	default:
		content, err := s.web.ScratchpadRead(ctx, inv.ThreadID)
		if err != nil {
			return "", fmt.Errorf("scratchpad read: %w", err)
		}
		s.emitStatus(inv, emit, "read", content, "")
		if strings.TrimSpace(content) == "" {
			return "The scratchpad is empty.", nil
		}
		return content, nil
	}
}

func (s *scratchpad) emitStatus(inv Invocation, emit EmitFunc, operation, state, entry string) {
	emit(models.StreamEvent{
		Type:  models.EventScratchpadStatus,
		RunID: inv.RunID,
		Scratchpad: &models.ScratchpadStatus{
			Operation:   operation,
			State:       state,
			Entry:       entry,
			AssistantID: inv.AssistantID,
		},
	})
}
