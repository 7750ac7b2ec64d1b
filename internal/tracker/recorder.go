package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/config"
	"github.com/sells-group/policy-tracker/internal/lock"
	"github.com/sells-group/policy-tracker/internal/metrics"
	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/search"
	"github.com/sells-group/policy-tracker/internal/store"
)

// ErrRunInProgress is returned when another run of the same agent holds the lease.
var ErrRunInProgress = eris.New("tracker: run already in progress")

// DefaultLeaseTTL bounds how long a crashed run can block the next one.
const DefaultLeaseTTL = 15 * time.Minute

// maxRawResponse caps the raw model output stored with a run log.
const maxRawResponse = 256 << 10

// Deps are the collaborators shared by every agent.
type Deps struct {
	Store   store.Store
	Search  search.Service
	Locker  lock.Locker
	Metrics *metrics.Metrics
	Config  config.AgentsConfig
	// Links, when set, marks each new source as accessible or not.
	Links SourceChecker
	// LeaseTTL defaults to DefaultLeaseTTL.
	LeaseTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// SourceChecker verifies source URLs in place.
type SourceChecker interface {
	Annotate(ctx context.Context, sources []model.Source)
}

func (d *Deps) annotateSources(ctx context.Context, sources []model.Source) {
	if d.Links != nil && len(sources) > 0 {
		d.Links.Annotate(ctx, sources)
	}
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) marginDays() int {
	if d.Config.DedupMarginDays > 0 {
		return d.Config.DedupMarginDays
	}
	return DefaultDedupMarginDays
}

// recorder accumulates the outcome of one run. Methods are safe for
// concurrent use by monitoring workers.
type recorder struct {
	log *zap.Logger

	mu      sync.Mutex
	errs    []string
	found   int
	updated int
	usage   model.TokenUsage
	cost    float64
	raw     []string
	result  model.RunResult
	summary string
	details map[string]any
	// activity, when set, is written in place of the generic run summary.
	activity *model.ActivityLogEntry
}

func (r *recorder) addError(msg string) {
	r.mu.Lock()
	r.errs = append(r.errs, msg)
	r.mu.Unlock()
}

// itemError records a failure scoped to one candidate or announcement.
func (r *recorder) itemError(title string, err error) {
	r.log.Warn("tracker: item failed", zap.String("item", title), zap.Error(err))
	r.addError(fmt.Sprintf("%s: %v", title, err))
}

func (r *recorder) addFound(n int) {
	r.mu.Lock()
	r.found += n
	r.mu.Unlock()
}

func (r *recorder) addUpdated(n int) {
	r.mu.Lock()
	r.updated += n
	r.mu.Unlock()
}

// addResponse accounts for one search call. label prefixes the raw text when
// a run makes several calls.
func (r *recorder) addResponse(label string, resp *search.Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage.Add(resp.Usage)
	r.cost += resp.CostUSD
	if label != "" {
		r.raw = append(r.raw, "## "+label+"\n"+resp.Text)
		return
	}
	r.raw = append(r.raw, resp.Text)
}

func (r *recorder) rawResponse() string {
	s := strings.Join(r.raw, "\n\n")
	if len(s) > maxRawResponse {
		n := maxRawResponse
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n]
	}
	return s
}

// record runs fn under the agent's lease and persists exactly one run log
// and one summary activity entry, whether fn succeeds, fails or panics.
// A run that cannot take the lease returns ErrRunInProgress and writes nothing.
func (d *Deps) record(ctx context.Context, agent model.AgentType, trigger model.Trigger, fn func(context.Context, *recorder) error) (*model.RunResult, error) {
	runID := uuid.New().String()
	log := zap.L().With(
		zap.String("agent", string(agent)),
		zap.String("trigger", string(trigger)),
		zap.String("run_id", runID),
	)

	locker := d.Locker
	if locker == nil {
		locker = lock.Noop{}
	}
	ttl := d.LeaseTTL
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	lease, err := locker.Acquire(ctx, string(agent), ttl)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			d.Metrics.LeaseRejected(string(agent))
			log.Warn("tracker: run rejected, lease held")
			return nil, eris.Wrapf(ErrRunInProgress, "agent %s", agent)
		}
		return nil, eris.Wrapf(err, "tracker: acquire lease for %s", agent)
	}
	defer func() {
		if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil {
			log.Warn("tracker: release lease", zap.Error(relErr))
		}
	}()

	runCtx := ctx
	if d.Config.RunTimeoutMins > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(d.Config.RunTimeoutMins)*time.Minute)
		defer cancel()
	}

	rec := &recorder{log: log}
	started := d.now()
	log.Info("tracker: run started")

	fatal := safeCall(runCtx, rec, fn)

	finished := d.now()
	duration := finished.Sub(started)
	if duration < 0 {
		duration = 0
	}

	rec.mu.Lock()
	errs := append([]string(nil), rec.errs...)
	if fatal != nil {
		errs = append(errs, fatal.Error())
	}
	entry := &model.AgentRunLog{
		ID:           runID,
		Agent:        agent,
		Trigger:      trigger,
		StartedAt:    started.UTC(),
		DurationMs:   duration.Milliseconds(),
		Success:      fatal == nil,
		ItemsFound:   rec.found,
		ItemsUpdated: rec.updated,
		Errors:       errs,
		RawResponse:  rec.rawResponse(),
		Usage:        rec.usage,
		CostUSD:      rec.cost,
	}
	result := rec.result
	summary, details, own := rec.summary, rec.details, rec.activity
	rec.mu.Unlock()

	// The audit trail is written even when the run context expired.
	persistCtx := context.WithoutCancel(ctx)
	if err := d.Store.CreateAgentRunLog(persistCtx, entry); err != nil {
		log.Error("tracker: persist run log", zap.Error(err))
	}
	d.writeSummary(persistCtx, log, entry, summary, details, own)

	d.Metrics.ObserveRun(metrics.Run{
		Agent:        string(agent),
		Trigger:      string(trigger),
		Success:      entry.Success,
		Duration:     duration,
		ItemsFound:   entry.ItemsFound,
		ItemsUpdated: entry.ItemsUpdated,
		Errors:       len(errs),
		CostUSD:      entry.CostUSD,
		FinishedAt:   finished,
	})

	result.Agent = agent
	result.Success = entry.Success
	result.ItemsFound = entry.ItemsFound
	result.ItemsUpdated = entry.ItemsUpdated
	result.Errors = errs
	result.DurationMs = entry.DurationMs
	if result.Errors == nil {
		result.Errors = []string{}
	}

	fields := []zap.Field{
		zap.Bool("success", entry.Success),
		zap.Int("items_found", entry.ItemsFound),
		zap.Int("items_updated", entry.ItemsUpdated),
		zap.Int("errors", len(errs)),
		zap.Int64("duration_ms", entry.DurationMs),
		zap.Float64("cost_usd", entry.CostUSD),
	}
	if fatal != nil {
		log.Error("tracker: run failed", append(fields, zap.Error(fatal))...)
		return &result, fatal
	}
	log.Info("tracker: run complete", fields...)
	return &result, nil
}

// safeCall converts a panic in fn into an error.
func safeCall(ctx context.Context, rec *recorder, fn func(context.Context, *recorder) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("tracker: panic: %v", p)
		}
	}()
	return fn(ctx, rec)
}

var agentLabels = map[model.AgentType]string{
	model.AgentDetection: "detección",
	model.AgentMonitor:   "monitoreo",
	model.AgentRecap:     "recap mensual",
	model.AgentCases:     "casos judiciales",
}

// writeSummary writes the run's single activity entry. A successful run that
// set its own entry gets that one, carrying the run details.
func (d *Deps) writeSummary(ctx context.Context, log *zap.Logger, entry *model.AgentRunLog, summary string, details map[string]any, own *model.ActivityLogEntry) {
	if own != nil && entry.Success {
		if own.Details == nil {
			own.Details = map[string]any{}
		}
		runDetails(own.Details, entry)
		if err := d.Store.CreateActivity(ctx, own); err != nil {
			log.Error("tracker: persist run summary", zap.Error(err))
		}
		return
	}
	if summary == "" {
		summary = fmt.Sprintf("%d encontrados, %d actualizados", entry.ItemsFound, entry.ItemsUpdated)
	}
	msg := fmt.Sprintf("Agente de %s ejecutado: %s", agentLabels[entry.Agent], summary)
	if !entry.Success {
		msg = fmt.Sprintf("Agente de %s falló: %s", agentLabels[entry.Agent], summary)
	}
	if details == nil {
		details = map[string]any{}
	}
	runDetails(details, entry)

	act := &model.ActivityLogEntry{
		Type:     model.ActivityAgentRun,
		Message:  msg,
		EntityID: entry.ID,
		Details:  details,
	}
	if err := d.Store.CreateActivity(ctx, act); err != nil {
		log.Error("tracker: persist run summary", zap.Error(err))
	}
}

func runDetails(details map[string]any, entry *model.AgentRunLog) {
	details["run_id"] = entry.ID
	details["trigger"] = string(entry.Trigger)
	details["exito"] = entry.Success
	details["duracion_ms"] = entry.DurationMs
	details["errores"] = len(entry.Errors)
}

// activity writes a per-item activity entry, recording failures on rec.
func (d *Deps) activity(ctx context.Context, rec *recorder, title string, e *model.ActivityLogEntry) {
	if err := d.Store.CreateActivity(ctx, e); err != nil {
		rec.itemError(title, eris.Wrap(err, "activity"))
	}
}
