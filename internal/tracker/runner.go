package tracker

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-tracker/internal/model"
)

// ErrUnknownAgent is returned for an agent type the runner does not know.
var ErrUnknownAgent = eris.New("tracker: unknown agent")

// Agent is one tracking orchestrator.
type Agent interface {
	Type() model.AgentType
	Run(ctx context.Context, trigger model.Trigger) (*model.RunResult, error)
}

// Runner dispatches runs by agent type for the HTTP layer, CLI and scheduler.
type Runner struct {
	agents map[model.AgentType]Agent
}

// NewRunner builds every agent over d.
func NewRunner(d *Deps) *Runner {
	return NewRunnerWith(
		NewDetectionAgent(d),
		NewMonitoringAgent(d),
		NewRecapAggregator(d),
		NewCaseDetectionAgent(d),
	)
}

// NewRunnerWith builds a runner over the given agents.
func NewRunnerWith(agents ...Agent) *Runner {
	r := &Runner{agents: make(map[model.AgentType]Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.Type()] = a
	}
	return r
}

// Has reports whether t is registered.
func (r *Runner) Has(t model.AgentType) bool {
	_, ok := r.agents[t]
	return ok
}

// Run runs agent t.
func (r *Runner) Run(ctx context.Context, t model.AgentType, trigger model.Trigger) (*model.RunResult, error) {
	a, ok := r.agents[t]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownAgent, "%q", t)
	}
	return a.Run(ctx, trigger)
}

// Types returns the registered agent types in canonical order.
func (r *Runner) Types() []model.AgentType {
	var out []model.AgentType
	for _, t := range model.AllAgents {
		if r.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

func newTimeline(d *Deps) *Timeline {
	return &Timeline{store: d.Store, guard: NewGuard(d.Store), now: d.now}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
