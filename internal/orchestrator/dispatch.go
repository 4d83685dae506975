package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/projectdavid/orchestrator/internal/observability"
	"github.com/projectdavid/orchestrator/internal/router"
	"github.com/projectdavid/orchestrator/internal/store"
	"github.com/projectdavid/orchestrator/internal/tools"
	"github.com/projectdavid/orchestrator/pkg/models"
)

// processToolCalls dispatches the detected batch. Platform calls run in
// parallel; a consumer call is handled after them and ends the run's
// involvement here, so at most one consumer call is dispatched.
func (s *session) processToolCalls(ctx context.Context, hasConsumer bool) error {
	var platform, consumer []models.ToolCall
	for _, call := range s.batch {
		if router.IsPlatformTool(call.Name) {
			platform = append(platform, call)
		} else {
			consumer = append(consumer, call)
		}
	}

	if len(platform) > 0 {
		var wg sync.WaitGroup
		errs := make([]error, len(platform))
		for i, call := range platform {
			wg.Add(1)
			go func(i int, call models.ToolCall) {
				defer wg.Done()
				errs[i] = s.dispatchPlatform(ctx, call)
			}(i, call)
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return err
			}
		}
	}

	if !hasConsumer {
		return nil
	}
	for _, extra := range consumer[1:] {
		s.log.Warn(ctx, "skipping extra consumer call in batch", "tool", extra.Name)
	}
	return s.runConsumer(ctx, consumer[0])
}

// dispatchPlatform executes one built-in call end to end: Action lifecycle,
// handler execution, output submission. Handler failures become structured
// error outputs the model reads next turn; only store failures and
// cancellation propagate.
func (s *session) dispatchPlatform(ctx context.Context, call models.ToolCall) error {
	args, argsErr := call.ArgumentsMap()

	action, err := s.createAction(ctx, call, args)
	if err != nil {
		return fmt.Errorf("create action for %s: %w", call.Name, err)
	}
	s.emit(ctx, models.StatusEvent(s.run.ID, models.StreamInProgress))
	if err := s.o.backend.UpdateAction(ctx, action.ID, store.ActionUpdate{Status: models.ActionInProgress}); err != nil {
		s.log.Warn(ctx, "marking action in_progress", "action_id", action.ID, "error", err)
	}

	tctx, span := observability.StartTool(ctx, call.Name, call.ID)
	started := time.Now()
	output, execErr := s.executePlatform(tctx, call, args, argsErr, action)
	observability.EndSpan(span, execErr)
	s.o.metrics.ToolLatency.WithLabelValues(call.Name).Observe(time.Since(started).Seconds())

	if execErr != nil {
		if errors.Is(execErr, context.Canceled) || s.stop.Load() {
			return ErrCancelled
		}
		s.o.metrics.ToolExecutions.WithLabelValues(call.Name, "error").Inc()
		payload := tools.FormatErrorPayload(execErr, s.o.surface)
		s.log.Warn(ctx, "platform tool failed", "tool", call.Name, "error", execErr)
		return s.submitOutput(ctx, call, payload, true)
	}

	s.o.metrics.ToolExecutions.WithLabelValues(call.Name, "success").Inc()
	return s.submitOutput(ctx, call, output, false)
}

// executePlatform resolves and runs the handler, folding argument and
// schema problems into pedagogical errors.
func (s *session) executePlatform(ctx context.Context, call models.ToolCall, args map[string]any, argsErr error, action *models.Action) (string, error) {
	if !s.router.Declared(call.Name) {
		// Keeps workers inside their fixed tool set; in particular a
		// delegated worker cannot delegate again.
		return "", tools.ValidationError("tool %s is not available to this assistant; call one of its declared tools", call.Name)
	}
	if argsErr != nil {
		return "", tools.ValidationError("the arguments for %s are not a JSON object; retry with an object matching the tool schema", call.Name)
	}
	if err := s.router.ValidateArgs(call.Name, args); err != nil {
		return "", tools.ValidationError("%v; fix the listed argument and call %s again", err, call.Name)
	}
	handler, ok := s.o.tools.Get(call.Name)
	if !ok {
		return "", fmt.Errorf("no handler registered for platform tool %s", call.Name)
	}

	inv := tools.Invocation{
		RunID:       s.run.ID,
		ThreadID:    s.req.ThreadID,
		AssistantID: s.req.AssistantID,
		SenderID:    s.req.SenderID,
		ActionID:    action.ID,
		ToolCallID:  call.ID,
		Args:        args,
	}
	return handler.Execute(ctx, inv, s.emitter(ctx))
}

// runConsumer announces a consumer call and polls until the external actor
// submits the output, the run turns terminal, or max_wait elapses.
func (s *session) runConsumer(ctx context.Context, call models.ToolCall) error {
	args, _ := call.ArgumentsMap()

	action, err := s.createAction(ctx, call, args)
	if err != nil {
		return fmt.Errorf("create action for %s: %w", call.Name, err)
	}
	s.emit(ctx, models.StreamEvent{
		Type:  models.EventToolCallManifest,
		RunID: s.run.ID,
		Manifest: &models.ToolCallManifest{
			RunID:    s.run.ID,
			ActionID: action.ID,
			Tool:     call.Name,
			Args:     args,
		},
	})

	interval := s.o.cfg.ConsumerPollInterval
	if interval <= 0 {
		interval = time.Second
	}
	maxWait := s.o.cfg.ConsumerMaxWait
	if maxWait <= 0 {
		maxWait = 60 * time.Second
	}
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if s.stop.Load() {
			return ErrCancelled
		}

		pending, err := s.o.backend.GetPendingActions(ctx, s.run.ID)
		if err != nil {
			s.log.Warn(ctx, "polling pending actions", "error", err)
		} else if len(pending) == 0 {
			s.o.metrics.ToolExecutions.WithLabelValues(call.Name, "success").Inc()
			s.emit(ctx, models.StatusEvent(s.run.ID, models.StreamToolOutputReceived))
			return nil
		}

		run, err := s.o.backend.RetrieveRun(ctx, s.run.ID)
		if err == nil && run.Status.Terminal() {
			if run.Status == models.RunCancelled {
				return ErrCancelled
			}
			return fmt.Errorf("run entered %s while waiting for consumer tool %s", run.Status, call.Name)
		}

		if time.Now().After(deadline) {
			s.o.metrics.ConsumerTimeouts.Inc()
			s.o.metrics.ToolExecutions.WithLabelValues(call.Name, "timeout").Inc()
			timeout := &ConsumerTimeout{ActionID: action.ID, Tool: call.Name, Waited: maxWait}
			payload := tools.FormatErrorPayload(&tools.ExecError{
				Type:    "consumer_timeout",
				Message: timeout.Error(),
			}, false)
			if err := s.submitOutput(ctx, call, payload, true); err != nil {
				s.log.Warn(ctx, "submitting timeout payload", "error", err)
			}
			return timeout
		}
	}
}

// createAction persists the Action row for one detected call, attaching any
// captured decision telemetry.
func (s *session) createAction(ctx context.Context, call models.ToolCall, args map[string]any) (*models.Action, error) {
	return s.o.backend.CreateAction(ctx, &models.Action{
		RunID:        s.run.ID,
		ToolName:     call.Name,
		ToolCallID:   call.ID,
		FunctionArgs: args,
		Status:       models.ActionPending,
		Decision:     s.decision,
		TriggeredAt:  time.Now().UTC(),
	})
}

// submitOutput appends the tool message; the store resolves the matching
// action to completed or failed as part of the same operation.
func (s *session) submitOutput(ctx context.Context, call models.ToolCall, content string, isError bool) error {
	_, err := s.o.backend.SubmitToolOutput(ctx, store.SubmitToolOutputParams{
		ThreadID:   s.req.ThreadID,
		RunID:      s.run.ID,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    content,
		SenderID:   s.req.SenderID,
		IsError:    isError,
	})
	if err != nil {
		return fmt.Errorf("submit output for %s: %w", call.Name, err)
	}
	return nil
}
