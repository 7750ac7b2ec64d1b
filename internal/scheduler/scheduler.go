// Package scheduler runs the tracking agents on cron specs inside the
// serving process.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/config"
	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/tracker"
)

// AgentRunner runs one agent by type.
type AgentRunner interface {
	Run(ctx context.Context, t model.AgentType, trigger model.Trigger) (*model.RunResult, error)
}

// Scheduler fires agent runs with Trigger=cron.
type Scheduler struct {
	cron    *cron.Cron
	runner  AgentRunner
	baseCtx context.Context
	entries map[model.AgentType]cron.EntryID
}

// Specs maps the schedule config to agent types. Empty specs are dropped.
func Specs(cfg config.ScheduleConfig) map[model.AgentType]string {
	out := make(map[model.AgentType]string, len(model.AllAgents))
	for t, spec := range map[model.AgentType]string{
		model.AgentDetection: cfg.Detection,
		model.AgentMonitor:   cfg.Monitor,
		model.AgentRecap:     cfg.Recap,
		model.AgentCases:     cfg.Cases,
	} {
		if spec != "" {
			out[t] = spec
		}
	}
	return out
}

// New registers one job per non-empty spec. Specs carry a leading seconds
// field. Jobs run under baseCtx; cancelling it aborts in-flight runs.
func New(baseCtx context.Context, runner AgentRunner, specs map[model.AgentType]string) (*Scheduler, error) {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		runner:  runner,
		baseCtx: baseCtx,
		entries: make(map[model.AgentType]cron.EntryID, len(specs)),
	}
	for _, t := range model.AllAgents {
		spec, ok := specs[t]
		if !ok {
			continue
		}
		id, err := s.cron.AddFunc(spec, func() { s.runJob(t) })
		if err != nil {
			return nil, eris.Wrapf(err, "scheduler: invalid spec %q for %s", spec, t)
		}
		s.entries[t] = id
	}
	return s, nil
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	zap.L().Info("scheduler: started", zap.Int("jobs", len(s.entries)))
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	zap.L().Info("scheduler: stopped")
}

// Agents returns the scheduled agent types in canonical order.
func (s *Scheduler) Agents() []model.AgentType {
	var out []model.AgentType
	for _, t := range model.AllAgents {
		if _, ok := s.entries[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Next reports the next fire time of agent t. It is zero before Start or
// when t is not scheduled.
func (s *Scheduler) Next(t model.AgentType) time.Time {
	id, ok := s.entries[t]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

func (s *Scheduler) runJob(t model.AgentType) {
	log := zap.L().With(zap.String("agent", string(t)), zap.String("trigger", string(model.TriggerCron)))

	res, err := s.runner.Run(s.baseCtx, t, model.TriggerCron)
	switch {
	case errors.Is(err, tracker.ErrRunInProgress):
		log.Info("scheduler: previous run still in progress, skipping")
	case err != nil:
		log.Error("scheduler: run failed", zap.Error(err))
	case res != nil:
		log.Info("scheduler: run complete",
			zap.Bool("success", res.Success),
			zap.Int("items_found", res.ItemsFound),
			zap.Int("items_updated", res.ItemsUpdated),
			zap.Int64("duration_ms", res.DurationMs),
		)
	}
}
