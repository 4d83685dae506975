// Package orchestrator drives the turn loop: build context, stream the
// provider reply through the normalizer, detect tool calls, dispatch them,
// and re-enter until the model stops asking for tools or the turn bound is
// hit.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/projectdavid/orchestrator/internal/config"
	"github.com/projectdavid/orchestrator/internal/observability"
	"github.com/projectdavid/orchestrator/internal/promptbuilder"
	"github.com/projectdavid/orchestrator/internal/providers"
	"github.com/projectdavid/orchestrator/internal/router"
	"github.com/projectdavid/orchestrator/internal/store"
	"github.com/projectdavid/orchestrator/internal/tools"
	"github.com/projectdavid/orchestrator/pkg/models"
)

// ClientFactory resolves provider streaming clients. Implemented by
// providers.Factory.
type ClientFactory interface {
	Get(provider, apiKey, baseURL string) (providers.StreamingClient, error)
}

// EventMirror replays canonical events into Redis. Implemented by
// fanout.Mirror; nil disables mirroring.
type EventMirror interface {
	Publish(ctx context.Context, runID string, event models.StreamEvent)
}

// Deps are the collaborators one Orchestrator is wired with.
type Deps struct {
	Backend  store.Backend
	Builder  *promptbuilder.Builder
	Clients  ClientFactory
	Registry *tools.Registry
	Mirror   EventMirror
	Logger   *observability.Logger
	Metrics  *observability.Metrics

	// SurfaceTraceback attaches Go stacks to submitted tool-error payloads.
	SurfaceTraceback bool
}

// Orchestrator drives runs. Safe for concurrent use; every run gets its own
// session and per-turn state is never shared.
type Orchestrator struct {
	cfg     config.OrchestratorConfig
	backend store.Backend
	builder *promptbuilder.Builder
	clients ClientFactory
	tools   *tools.Registry
	mirror  EventMirror
	logger  *observability.Logger
	metrics *observability.Metrics
	surface bool

	// sessions indexes live sessions by run id, so the delegation runner
	// can inherit the parent run's provider credentials.
	sessions sync.Map
}

// New wires an orchestrator and registers the delegation handler on the
// given tool registry.
func New(cfg config.OrchestratorConfig, deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NopMetrics()
	}
	o := &Orchestrator{
		cfg:     cfg,
		backend: deps.Backend,
		builder: deps.Builder,
		clients: deps.Clients,
		tools:   deps.Registry,
		mirror:  deps.Mirror,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		surface: deps.SurfaceTraceback,
	}
	if o.tools != nil {
		o.tools.Register(tools.NewDelegateHandler(o))
	}
	return o
}

// Request identifies one conversation turn sequence to drive.
type Request struct {
	RunID string

	// ThreadID and AssistantID default to the run's own when empty.
	ThreadID    string
	AssistantID string

	// SenderID attributes persisted assistant and tool messages.
	SenderID string

	// Model defaults to the run's model. Provider is detected from the
	// model prefix when empty.
	Model    string
	Provider string
	APIKey   string

	// NativeTools sends the merged tool list in the provider's structured
	// tool field instead of inlining it into the system message.
	NativeTools bool

	// DecisionTelemetry injects the record_tool_decision declaration.
	DecisionTelemetry bool

	// MaxTurns overrides the configured bound when positive.
	MaxTurns int
}

// ProcessConversation drives the run until the model completes, a consumer
// tool hands off, the run errors, or the turn bound is reached. Every
// canonical event is delivered to sink in order and mirrored to Redis.
func (o *Orchestrator) ProcessConversation(ctx context.Context, req Request, sink func(models.StreamEvent)) error {
	run, err := o.backend.RetrieveRun(ctx, req.RunID)
	if err != nil {
		return err
	}
	if req.ThreadID == "" {
		req.ThreadID = run.ThreadID
	}
	if req.AssistantID == "" {
		req.AssistantID = run.AssistantID
	}
	if req.Model == "" {
		req.Model = run.Model
	}
	if req.Provider == "" {
		req.Provider = providers.DetectProvider(req.Model)
	}
	maxTurns := o.cfg.MaxTurns
	if req.MaxTurns > 0 {
		maxTurns = req.MaxTurns
	}

	s := &session{o: o, req: req, run: run, sink: sink,
		log: o.logger.WithRun(run.ID, req.ThreadID)}
	o.sessions.Store(run.ID, s)
	defer o.sessions.Delete(run.ID)

	o.metrics.ActiveRuns.Inc()
	defer o.metrics.ActiveRuns.Dec()

	monCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go s.monitor(monCtx)

	if err := o.backend.UpdateRunStatus(ctx, run.ID, models.RunInProgress); err != nil {
		return err
	}
	s.emit(ctx, models.StatusEvent(run.ID, models.StreamStarted))

	for turn := 1; turn <= maxTurns; turn++ {
		if turn > 1 {
			// Leaving pending_action: the tool outputs are in and the model
			// is streaming again.
			if err := o.backend.UpdateRunStatus(ctx, run.ID, models.RunInProgress); err != nil {
				s.log.Warn(ctx, "resuming run", "error", err)
			}
		}
		tctx, span := observability.StartTurn(ctx, run.ID, turn)
		s.resetTurn()
		err := s.streamTurn(tctx, turn > 1)
		observability.EndSpan(span, err)
		if errors.Is(err, ErrCancelled) {
			return ErrCancelled
		}
		if err != nil {
			s.failRun(ctx, err)
			return err
		}

		if len(s.batch) == 0 {
			if err := o.backend.UpdateRunStatus(ctx, run.ID, models.RunCompleted); err != nil {
				s.log.Warn(ctx, "completing run", "error", err)
			}
			s.emit(ctx, models.StatusEvent(run.ID, models.StreamComplete))
			return nil
		}

		hasConsumer := false
		for _, call := range s.batch {
			if !router.IsPlatformTool(call.Name) {
				hasConsumer = true
			}
		}

		if err := s.processToolCalls(ctx, hasConsumer); err != nil {
			if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
				return ErrCancelled
			}
			s.failRun(ctx, err)
			return err
		}

		if hasConsumer {
			// The external SDK owns the conversation from here; the run
			// stays pending_action until it continues it.
			s.emit(ctx, models.StatusEvent(run.ID, models.StreamComplete))
			return nil
		}

		// Platform-only turn: give the store a moment to settle before the
		// next context build sees the fresh tool outputs.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.TurnSettle):
		}
	}

	s.log.Warn(ctx, "turn limit reached", "max_turns", maxTurns)
	s.emit(ctx, models.ErrorEvent(run.ID, "the assistant stopped: tool-call turn limit reached"))
	if err := o.backend.UpdateRunStatus(ctx, run.ID, models.RunFailed); err != nil {
		s.log.Warn(ctx, "failing run at turn limit", "error", err)
	}
	return ErrMaxTurns
}
