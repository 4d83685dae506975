package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/projectdavid/orchestrator/internal/normalizer"
	"github.com/projectdavid/orchestrator/internal/observability"
	"github.com/projectdavid/orchestrator/internal/promptbuilder"
	"github.com/projectdavid/orchestrator/internal/providers"
	"github.com/projectdavid/orchestrator/internal/router"
	"github.com/projectdavid/orchestrator/internal/store"
	"github.com/projectdavid/orchestrator/internal/tools"
	"github.com/projectdavid/orchestrator/pkg/models"
)

// session holds the mutable state of one driven run. It is owned by a
// single ProcessConversation call; only emit and the cancellation flag are
// touched from other goroutines.
type session struct {
	o    *Orchestrator
	req  Request
	run  *models.Run
	log  *observability.Logger
	sink func(models.StreamEvent)

	// stop flips when the cancellation monitor observes a cancelled run.
	// After that nothing further is emitted.
	stop atomic.Bool

	emitMu  sync.Mutex
	errored bool

	// Per-turn state, cleared by resetTurn.
	visible  strings.Builder
	raw      strings.Builder
	callText strings.Builder
	batch    []models.ToolCall
	decision json.RawMessage
	router   *router.Router
}

func (s *session) resetTurn() {
	s.visible.Reset()
	s.raw.Reset()
	s.callText.Reset()
	s.batch = nil
	s.decision = nil
	s.emitMu.Lock()
	s.errored = false
	s.emitMu.Unlock()
}

// emit delivers one event to the client sink and the Redis mirror,
// preserving order under concurrent platform dispatch.
func (s *session) emit(ctx context.Context, ev models.StreamEvent) {
	if s.stop.Load() {
		return
	}
	if ev.RunID == "" {
		ev.RunID = s.run.ID
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if ev.Type == models.EventError {
		s.errored = true
	}
	s.sink(ev)
	if s.o.mirror != nil {
		s.o.mirror.Publish(ctx, s.run.ID, ev)
	}
}

// emitter adapts emit to the tool handler callback shape.
func (s *session) emitter(ctx context.Context) tools.EmitFunc {
	return func(ev models.StreamEvent) { s.emit(ctx, ev) }
}

// monitor polls the run status and flips the stop flag on cancellation.
// Any terminal status ends the monitor.
func (s *session) monitor(ctx context.Context) {
	interval := s.o.cfg.CancelPollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run, err := s.o.backend.RetrieveRun(ctx, s.run.ID)
			if err != nil {
				continue
			}
			if run.Status == models.RunCancelled || run.Status == models.RunCancelling {
				s.stop.Store(true)
				return
			}
			if run.Status.Terminal() {
				return
			}
		}
	}
}

// streamTurn runs one provider stream: build the prompt, normalize deltas,
// persist the assistant reply, and set the run status for what follows.
func (s *session) streamTurn(ctx context.Context, forceRefresh bool) error {
	prompt, err := s.o.builder.Build(ctx, s.req.AssistantID, s.req.ThreadID, promptbuilder.Options{
		ForceRefresh:       forceRefresh,
		Trunk:              true,
		StructuredToolCall: s.req.NativeTools,
		DecisionTelemetry:  s.req.DecisionTelemetry,
	})
	if err != nil {
		return fmt.Errorf("build context: %w", err)
	}
	s.router = router.New(prompt.Merged, s.log)

	client, err := s.o.clients.Get(s.req.Provider, s.req.APIKey, "")
	if err != nil {
		return fmt.Errorf("resolve provider %s: %w", s.req.Provider, err)
	}

	provReq := providers.Request{
		Model:       s.req.Model,
		Messages:    prompt.Messages,
		Tools:       prompt.Tools,
		Temperature: s.run.Temperature,
		TopP:        s.run.TopP,
	}
	if provReq.Temperature == 0 && prompt.Assistant != nil {
		provReq.Temperature = prompt.Assistant.Temperature
	}
	if provReq.TopP == 0 && prompt.Assistant != nil {
		provReq.TopP = prompt.Assistant.TopP
	}

	sctx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()
	pctx, span := observability.StartProviderStream(sctx, s.req.Provider, s.req.Model)
	chunks, err := client.StreamChatCompletion(pctx, provReq)
	if err != nil {
		uerr := &UpstreamError{Provider: s.req.Provider, Model: s.req.Model, Err: err}
		observability.EndSpan(span, uerr)
		return uerr
	}

	norm := normalizer.New()
	var streamErr error
receive:
	for chunk := range chunks {
		for _, ev := range norm.Feed(chunk) {
			if err := s.handleEvent(ctx, ev); err != nil {
				streamErr = err
				break receive
			}
			if s.stop.Load() {
				streamErr = ErrCancelled
				break receive
			}
		}
		if s.stop.Load() {
			streamErr = ErrCancelled
			break
		}
	}
	if streamErr == nil {
		for _, ev := range norm.Flush() {
			if err := s.handleEvent(ctx, ev); err != nil {
				streamErr = err
				break
			}
		}
	}
	observability.EndSpan(span, streamErr)
	if streamErr != nil {
		return streamErr
	}
	if s.stop.Load() {
		return ErrCancelled
	}

	s.collectTextCall()
	return s.persistTurn(ctx)
}

// handleEvent folds one normalized event into per-turn state and forwards
// it. A terminal stream error stops the turn.
func (s *session) handleEvent(ctx context.Context, ev models.StreamEvent) error {
	switch ev.Type {
	case models.EventContent:
		s.visible.WriteString(ev.Content)
		s.raw.WriteString(ev.Content)
	case models.EventCallArguments:
		s.callText.WriteString(ev.Content)
		s.raw.WriteString(ev.Content)
	case models.EventToolCall:
		return s.handleToolCall(ctx, ev)
	case models.EventError:
		s.emit(ctx, ev)
		return &UpstreamError{Provider: s.req.Provider, Model: s.req.Model,
			Err: errors.New(ev.Content)}
	}
	s.emit(ctx, ev)
	return nil
}

// handleToolCall processes a terminal tool_call event from the normalizer
// (native finish or a channel-mode <|call|>).
func (s *session) handleToolCall(ctx context.Context, ev models.StreamEvent) error {
	if ev.ToolCall == nil {
		return nil
	}
	if ev.ToolCall.Name == tools.DecisionToolName {
		s.captureDecision(ctx, ev.ToolCall.Arguments)
		return nil
	}
	call, ok := s.router.FromPayload(ev.ToolCall)
	if !ok {
		s.log.Warn(ctx, "dropping malformed tool call", "tool", ev.ToolCall.Name)
		return nil
	}
	s.batch = append(s.batch, *call)
	s.emit(ctx, ev)
	return nil
}

// captureDecision records the telemetry payload and emits it as a decision
// event. It never becomes an Action or a tool output.
func (s *session) captureDecision(ctx context.Context, args string) {
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	s.decision = json.RawMessage(args)
	s.emit(ctx, models.StreamEvent{Type: models.EventDecision, RunID: s.run.ID, Content: args})
}

// collectTextCall parses the accumulated turn output into the batch: the
// <fc> span text when one was seen, and otherwise the whole raw output, so
// bare-JSON and free-text calls are still detected. A parse failure means no
// tool call; the raw text stays assistant content.
func (s *session) collectTextCall() {
	if len(s.batch) > 0 {
		return
	}
	text := s.callText.String()
	if strings.TrimSpace(text) == "" {
		text = s.raw.String()
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	call, ok := s.router.ParseTextOutput(text)
	if !ok {
		return
	}
	if call.Name == tools.DecisionToolName {
		s.decision = call.Arguments
		return
	}
	s.batch = append(s.batch, *call)
}

// persistTurn writes back the assistant reply and moves the run status:
// pending_action when tools were detected, otherwise the turn is complete.
func (s *session) persistTurn(ctx context.Context) error {
	params := store.SaveAssistantParams{
		ThreadID: s.req.ThreadID,
		RunID:    s.run.ID,
		SenderID: s.req.SenderID,
	}
	if len(s.batch) > 0 {
		params.ToolCalls = s.batch
	} else {
		params.Content = s.raw.String()
	}
	if _, err := s.o.backend.SaveAssistantMessageChunk(ctx, params); err != nil {
		return fmt.Errorf("save assistant message: %w", err)
	}

	if len(s.batch) > 0 {
		if err := s.o.backend.UpdateRunStatus(ctx, s.run.ID, models.RunPendingAction); err != nil {
			return fmt.Errorf("set run pending_action: %w", err)
		}
		s.emit(ctx, models.StatusEvent(s.run.ID, string(models.RunPendingAction)))
	}
	return nil
}

// failRun closes out an errored run: persist the partial reply on upstream
// failures, surface one error event, and mark the run failed.
func (s *session) failRun(ctx context.Context, cause error) {
	var uerr *UpstreamError
	if errors.As(cause, &uerr) && s.raw.Len() > 0 {
		_, err := s.o.backend.SaveAssistantMessageChunk(ctx, store.SaveAssistantParams{
			ThreadID: s.req.ThreadID,
			RunID:    s.run.ID,
			SenderID: s.req.SenderID,
			Content:  s.raw.String(),
			IsError:  true,
		})
		if err != nil {
			s.log.Warn(ctx, "saving partial reply", "error", err)
		}
	}

	s.emitMu.Lock()
	alreadyErrored := s.errored
	s.emitMu.Unlock()
	if !alreadyErrored {
		s.emit(ctx, models.ErrorEvent(s.run.ID, cause.Error()))
	}

	if err := s.o.backend.UpdateRunStatus(ctx, s.run.ID, models.RunFailed); err != nil {
		s.log.Warn(ctx, "failing run", "error", err)
	}
	s.log.Error(ctx, "run failed", "error", cause)
}
