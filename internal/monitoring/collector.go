package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/store"
)

// maxRunLogs caps how many run logs one collection reads.
const maxRunLogs = 10000

// AgentStats summarizes one agent's runs inside the lookback window.
type AgentStats struct {
	Agent        model.AgentType `json:"agent"`
	Runs         int             `json:"runs"`
	Failures     int             `json:"failures"`
	FailureRate  float64         `json:"failure_rate"`
	ItemsFound   int             `json:"items_found"`
	ItemsUpdated int             `json:"items_updated"`
	CostUSD      float64         `json:"cost_usd"`
	LastRunAt    *time.Time      `json:"last_run_at,omitempty"`
	LastSuccess  *time.Time      `json:"last_success_at,omitempty"`
}

// Snapshot holds a point-in-time view of agent health.
type Snapshot struct {
	Agents        []AgentStats `json:"agents"`
	TotalRuns     int          `json:"total_runs"`
	TotalFailures int          `json:"total_failures"`
	TotalCostUSD  float64      `json:"total_cost_usd"`
	LookbackHours int          `json:"lookback_hours"`
	CollectedAt   time.Time    `json:"collected_at"`
}

// Agent returns the stats for a, or nil when a is not in the snapshot.
func (s *Snapshot) Agent(a model.AgentType) *AgentStats {
	for i := range s.Agents {
		if s.Agents[i].Agent == a {
			return &s.Agents[i]
		}
	}
	return nil
}

// RunLogLister is the slice of the store the collector reads.
type RunLogLister interface {
	ListAgentRunLogs(ctx context.Context, filter store.RunLogFilter) ([]model.AgentRunLog, error)
}

// Collector gathers run statistics from the agent run logs.
type Collector struct {
	logs RunLogLister
	now  func() time.Time
}

// NewCollector creates a new collector.
func NewCollector(logs RunLogLister) *Collector {
	return &Collector{logs: logs, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window. Every known
// agent appears in the result, including those with no runs.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	logs, err := c.logs.ListAgentRunLogs(ctx, store.RunLogFilter{Since: cutoff, Limit: maxRunLogs})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list run logs")
	}

	byAgent := make(map[model.AgentType]*AgentStats, len(model.AllAgents))
	for _, a := range model.AllAgents {
		snap.Agents = append(snap.Agents, AgentStats{Agent: a})
	}
	for i := range snap.Agents {
		byAgent[snap.Agents[i].Agent] = &snap.Agents[i]
	}

	for _, l := range logs {
		st, ok := byAgent[l.Agent]
		if !ok {
			continue
		}
		st.Runs++
		st.ItemsFound += l.ItemsFound
		st.ItemsUpdated += l.ItemsUpdated
		st.CostUSD += l.CostUSD
		started := l.StartedAt.UTC()
		if st.LastRunAt == nil || started.After(*st.LastRunAt) {
			st.LastRunAt = &started
		}
		if !l.Success {
			st.Failures++
			continue
		}
		if st.LastSuccess == nil || started.After(*st.LastSuccess) {
			st.LastSuccess = &started
		}
	}

	for i := range snap.Agents {
		st := &snap.Agents[i]
		if st.Runs > 0 {
			st.FailureRate = float64(st.Failures) / float64(st.Runs)
		}
		snap.TotalRuns += st.Runs
		snap.TotalFailures += st.Failures
		snap.TotalCostUSD += st.CostUSD
	}
	return snap, nil
}
