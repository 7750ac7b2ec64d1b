package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/parse"
	"github.com/sells-group/policy-tracker/internal/prompt"
	"github.com/sells-group/policy-tracker/internal/search"
	"github.com/sells-group/policy-tracker/internal/store"
)

// DefaultMonitorMaxTokens is the per-announcement token budget when none is configured.
const DefaultMonitorMaxTokens = 2000

// guardedEventTypes are update events the dedup window applies to. A second
// delay or non-fulfillment inside the window is the same development
// reported again.
var guardedEventTypes = map[model.EventType]bool{
	model.EventDelay:          true,
	model.EventNonFulfillment: true,
}

// MonitoringAgent reviews every tracked announcement for new developments.
type MonitoringAgent struct {
	deps     *Deps
	timeline *Timeline
}

// NewMonitoringAgent creates a MonitoringAgent.
func NewMonitoringAgent(d *Deps) *MonitoringAgent {
	return &MonitoringAgent{deps: d, timeline: newTimeline(d)}
}

// Type implements Agent.
func (a *MonitoringAgent) Type() model.AgentType { return model.AgentMonitor }

// Run checks each announcement independently. Up to monitor_concurrency
// announcements are in flight at once; each is handled by exactly one
// worker, so its writes stay serialized.
func (a *MonitoringAgent) Run(ctx context.Context, trigger model.Trigger) (*model.RunResult, error) {
	return a.deps.record(ctx, model.AgentMonitor, trigger, a.run)
}

func (a *MonitoringAgent) run(ctx context.Context, rec *recorder) error {
	d := a.deps
	items, err := d.Store.ListAnnouncements(ctx)
	if err != nil {
		return eris.Wrap(err, "monitor: load announcements")
	}

	byID := make(map[string]*model.Announcement, len(items))
	queue := make(chan string, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
		queue <- items[i].ID
	}
	close(queue)

	var (
		g       errgroup.Group
		checked int
		changes int
	)
	g.SetLimit(max(1, d.Config.MonitorConcurrency))
	for id := range queue {
		ann := byID[id]
		g.Go(func() error {
			if ctx.Err() != nil {
				rec.itemError(ann.Title, eris.Wrap(ctx.Err(), "monitor: not checked"))
				return nil
			}
			out := a.check(ctx, rec, ann)
			rec.mu.Lock()
			checked++
			if out.updated {
				rec.updated++
			}
			if out.changed {
				changes++
			}
			rec.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	rec.mu.Lock()
	rec.found = rec.updated
	rec.summary = fmt.Sprintf("%d anuncios revisados, %d actualizaciones, %d cambios de status", checked, rec.updated, changes)
	rec.details = map[string]any{
		"revisados":       checked,
		"actualizaciones": rec.updated,
		"cambios_status":  changes,
	}
	rec.mu.Unlock()
	return nil
}

type checkOutcome struct {
	updated bool
	changed bool
}

// check runs one announcement through search, parse, state machine and
// persistence. Every failure is recorded against the announcement's title.
func (a *MonitoringAgent) check(ctx context.Context, rec *recorder, ann *model.Announcement) checkOutcome {
	d := a.deps
	now := d.now()

	p := prompt.Monitoring(*ann, now)
	resp, err := d.Search.Search(ctx, search.Request{
		System:    p.System,
		Prompt:    p.User,
		MaxTokens: orDefault(d.Config.MonitorMaxTokens, DefaultMonitorMaxTokens),
	})
	if err != nil {
		rec.itemError(ann.Title, err)
		return checkOutcome{}
	}
	rec.addResponse(ann.Title, resp)

	mr, err := parse.Monitoring(resp.Text)
	if err != nil {
		rec.itemError(ann.Title, err)
		return checkOutcome{}
	}
	if !mr.Updated() {
		rec.log.Debug("monitor: no update", zap.String("id", ann.ID))
		return checkOutcome{}
	}

	date := mr.Update.Date.Time
	if date.IsZero() {
		date = now
	}
	date = date.UTC()

	var change *model.StatusChange
	if mr.RecommendChange {
		change, err = recommendedChange(ann.Status, mr)
		if err != nil {
			// Recorded as a plain update; the rejected change is surfaced.
			rec.itemError(ann.Title, err)
		}
	}

	update := model.Update{
		Date:         date,
		Description:  strings.TrimSpace(mr.Update.Description),
		SourceURL:    strings.TrimSpace(mr.Update.SourceURL),
		StatusChange: change,
	}
	err = d.Store.AppendAnnouncementUpdate(ctx, ann.ID, update)
	if change != nil && errors.Is(err, store.ErrConflict) {
		rec.itemError(ann.Title, eris.Wrapf(err, "status change %s -> %s dropped", change.From, change.To))
		change, update.StatusChange = nil, nil
		err = d.Store.AppendAnnouncementUpdate(ctx, ann.ID, update)
	}
	if err != nil {
		rec.itemError(ann.Title, err)
		return checkOutcome{}
	}

	in := UpdateEvent(ann, mr.Update, change, date)
	if a.recordEvent(ctx, rec, ann, in) {
		if _, err := a.timeline.CreateEvent(ctx, in); err != nil {
			rec.itemError(ann.Title, err)
		}
	}

	if change != nil {
		d.activity(ctx, rec, ann.Title, &model.ActivityLogEntry{
			Type:        model.ActivityStatusChange,
			Message:     fmt.Sprintf("Cambio de status en %s: %s → %s. %s", ann.Title, change.From, change.To, change.Justification),
			EntityID:    ann.ID,
			EntityTitle: ann.Title,
			Details: map[string]any{
				"anterior":      string(change.From),
				"nuevo":         string(change.To),
				"justificacion": change.Justification,
				"fuente":        update.SourceURL,
			},
		})
	} else {
		d.activity(ctx, rec, ann.Title, &model.ActivityLogEntry{
			Type:        model.ActivityUpdate,
			Message:     "Actualización detectada en " + ann.Title,
			EntityID:    ann.ID,
			EntityTitle: ann.Title,
			Details: map[string]any{
				"descripcion": update.Description,
				"fuente":      update.SourceURL,
			},
		})
	}

	rec.log.Info("monitor: update recorded",
		zap.String("id", ann.ID),
		zap.Bool("status_changed", change != nil),
	)
	return checkOutcome{updated: true, changed: change != nil}
}

// recordEvent reports whether in should be written. Delay and
// non-fulfillment events already present inside the dedup window are skipped.
func (a *MonitoringAgent) recordEvent(ctx context.Context, rec *recorder, ann *model.Announcement, in EventInput) bool {
	if !guardedEventTypes[in.Type] {
		return true
	}
	exists, err := a.timeline.EventExists(ctx, ann.ID, in.Type, in.Date, a.deps.marginDays())
	if err != nil {
		rec.itemError(ann.Title, err)
		return true
	}
	if exists {
		rec.log.Info("monitor: duplicate event skipped", zap.String("id", ann.ID), zap.String("type", string(in.Type)))
	}
	return !exists
}

// recommendedChange validates the model's recommended status against the
// transition table.
func recommendedChange(current model.Status, mr *parse.MonitoringResponse) (*model.StatusChange, error) {
	raw := strings.TrimSpace(mr.NewStatus)
	to, ok := model.ParseStatus(raw)
	if !ok {
		to = model.Status(raw)
	}
	if err := Transition(current, to); err != nil {
		return nil, err
	}
	return &model.StatusChange{
		From:          current,
		To:            to,
		Justification: strings.TrimSpace(mr.Justification),
	}, nil
}
