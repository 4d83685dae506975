package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/projectdavid/orchestrator/pkg/models"
)

type delegateArgs struct {
	Task            string `json:"task" jsonschema:"required,description=Self-contained research task for the delegate. Include all context it needs."`
	Constraints     string `json:"constraints,omitempty" jsonschema:"description=Boundaries the delegate must respect (sources, scope, time range)."`
	SuccessCriteria string `json:"success_criteria,omitempty" jsonschema:"description=What a complete answer looks like."`
}

// delegate hands a research task to an ephemeral sub-run. The runner owns
// the sub-run lifecycle; the handler only shapes the brief and relays the
// final report as tool output.
type delegate struct {
	runner DelegateRunner
}

func newDelegate(runner DelegateRunner) *delegate {
	return &delegate{runner: runner}
}

// NewDelegateHandler exposes the delegation handler for late registration.
func NewDelegateHandler(runner DelegateRunner) Handler {
	return newDelegate(runner)
}

func (d *delegate) Name() string { return "delegate_research_task" }

func (d *delegate) Definition() models.Tool {
	return definition(d.Name(),
		"Delegate a self-contained research task to a supervised sub-assistant and receive its final report.",
		delegateArgs{})
}

func (d *delegate) Execute(ctx context.Context, inv Invocation, emit EmitFunc) (string, error) {
	task := strings.TrimSpace(argString(inv.Args, "task"))
	if task == "" {
		return "", ValidationError("missing required argument %q; retry with a self-contained description of the research task", "task")
	}

	brief := task
	if c := strings.TrimSpace(argString(inv.Args, "constraints")); c != "" {
		brief += "\n\nConstraints:\n" + c
	}
	if sc := strings.TrimSpace(argString(inv.Args, "success_criteria")); sc != "" {
		brief += "\n\nSuccess criteria:\n" + sc
	}

	report, err := d.runner.RunDelegation(ctx, inv, brief, emit)
	if err != nil {
		return "", fmt.Errorf("delegation: %w", err)
	}
	if strings.TrimSpace(report) == "" {
		return "The delegate finished without producing a report.", nil
	}
	return report, nil
}
