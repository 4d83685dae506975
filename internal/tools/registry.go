package tools

import (
	"context"

	"github.com/projectdavid/orchestrator/internal/observability"
	"github.com/projectdavid/orchestrator/internal/store"
	"github.com/projectdavid/orchestrator/pkg/models"
)

// DelegateRunner drives an ephemeral research delegation. The orchestrator
// implements it; the indirection keeps the handler package free of the loop.
type DelegateRunner interface {
	// RunDelegation spins a sub-run for the task and returns its final
	// report. Events forwarded while it runs carry the parent run id.
	RunDelegation(ctx context.Context, parent Invocation, task string, emit EmitFunc) (string, error)
}

// Deps are the external services the handlers call into.
type Deps struct {
	Web     store.ToolService
	Vector  store.VectorService
	Sandbox store.SandboxService
	Files   store.Files
	Runner  DelegateRunner
	Logger  *observability.Logger
}

// Registry holds the platform handler set keyed by tool name.
type Registry struct {
	handlers map[string]Handler
	logger   *observability.Logger
}

// NewRegistry builds the full built-in set. A nil Runner leaves delegation
// unregistered, which routes delegate_research_task calls to a validation
// error instead of a panic.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	r := &Registry{handlers: map[string]Handler{}, logger: deps.Logger}

	r.register(newCodeInterpreter(deps.Sandbox, deps.Files))
	r.register(newComputer(deps.Sandbox))
	r.register(newWebSearch(deps.Web, "perform_web_search"))
	r.register(newWebSearch(deps.Web, "web_search"))
	r.register(newReadWebPage(deps.Web))
	r.register(newSearchWebPage(deps.Web))
	r.register(newScrollWebPage(deps.Web))
	r.register(newFileSearch(deps.Vector, "file_search"))
	r.register(newFileSearch(deps.Vector, "vector_store_search"))
	r.register(newScratchpad(deps.Web, "read_scratchpad"))
	r.register(newScratchpad(deps.Web, "update_scratchpad"))
	r.register(newScratchpad(deps.Web, "append_scratchpad"))
	if deps.Runner != nil {
		r.register(newDelegate(deps.Runner))
	}
	return r
}

func (r *Registry) register(h Handler) {
	r.handlers[h.Name()] = h
}

// Register adds or replaces a handler. Used by the orchestrator to wire the
// delegation handler after both sides exist.
func (r *Registry) Register(h Handler) {
	r.register(h)
}

// Get resolves a handler by tool name.
func (r *Registry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Schemas returns the canonical declarations by name, used to substitute
// authoritative schemas for bare platform-builtin references in prompts.
func (r *Registry) Schemas() map[string]models.Tool {
	out := make(map[string]models.Tool, len(r.handlers)+1)
	for name, h := range r.handlers {
		out[name] = h.Definition()
	}
	out[DecisionToolName] = DecisionDefinition()
	return out
}
