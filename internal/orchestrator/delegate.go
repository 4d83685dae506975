package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/projectdavid/orchestrator/internal/tools"
	"github.com/projectdavid/orchestrator/pkg/models"
)

// workerInstructions scope the ephemeral research assistant. The worker
// gets web tools only, and in particular cannot delegate further.
const workerInstructions = `You are a focused research worker. Complete the task handed to you using the
available web tools, then write one final report containing everything the
requester needs. Do not ask questions back; make reasonable assumptions and
state them in the report.`

// workerTools is the fixed platform set for delegation workers.
var workerTools = []string{
	"perform_web_search",
	"read_web_page",
	"search_web_page",
	"scroll_web_page",
}

// RunDelegation drives an ephemeral assistant+thread+run for one research
// task and returns its final report. content and reasoning events from the
// worker are forwarded upstream tagged with the parent run id; the worker's
// own tool traffic stays scoped to the ephemeral run.
func (o *Orchestrator) RunDelegation(ctx context.Context, parent tools.Invocation, task string, emit tools.EmitFunc) (string, error) {
	val, ok := o.sessions.Load(parent.RunID)
	if !ok {
		return "", errors.New("no live session for parent run")
	}
	ps := val.(*session)

	worker, err := o.backend.CreateAssistant(ctx, &models.Assistant{
		Model:         ps.req.Model,
		Instructions:  workerInstructions,
		PlatformTools: workerTools,
	})
	if err != nil {
		return "", fmt.Errorf("create worker assistant: %w", err)
	}

	thread, err := o.backend.CreateThread(ctx, &models.Thread{
		Metadata: models.Metadata{
			"ephemeral":     true,
			"parent_run_id": parent.RunID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("create worker thread: %w", err)
	}
	defer func() {
		if derr := o.backend.DeleteThread(context.WithoutCancel(ctx), thread.ID); derr != nil {
			o.logger.Warn(ctx, "cleaning up delegation thread", "thread_id", thread.ID, "error", derr)
		}
	}()

	if _, err := o.backend.CreateMessage(ctx, &models.Message{
		ThreadID: thread.ID,
		Role:     models.RoleUser,
		Content:  handoffPrompt(task),
	}); err != nil {
		return "", fmt.Errorf("seed worker thread: %w", err)
	}

	run, err := o.backend.CreateRun(ctx, &models.Run{
		AssistantID: worker.ID,
		ThreadID:    thread.ID,
		Model:       ps.req.Model,
		Status:      models.RunQueued,
	})
	if err != nil {
		return "", fmt.Errorf("create worker run: %w", err)
	}

	forward := func(ev models.StreamEvent) {
		switch ev.Type {
		case models.EventContent, models.EventReasoning:
			ev.RunID = parent.RunID
			emit(ev)
		}
	}

	err = o.ProcessConversation(ctx, Request{
		RunID:       run.ID,
		SenderID:    worker.ID,
		Model:       ps.req.Model,
		Provider:    ps.req.Provider,
		APIKey:      ps.req.APIKey,
		NativeTools: ps.req.NativeTools,
	}, forward)
	if err != nil {
		return "", fmt.Errorf("worker run: %w", err)
	}

	// Only the worker's final synthesis crosses back; its intermediate
	// tool traffic never reaches the supervisor's context.
	msgs, err := o.backend.GetFormattedMessages(ctx, thread.ID)
	if err != nil {
		return "", fmt.Errorf("read worker thread: %w", err)
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleAssistant && msgs[i].Content != "" {
			return msgs[i].Content, nil
		}
	}
	return "", nil
}

func handoffPrompt(task string) string {
	return "You have been delegated the following research task. Complete it and finish with a single self-contained report.\n\n" + task
}
