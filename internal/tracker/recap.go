package tracker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/parse"
	"github.com/sells-group/policy-tracker/internal/prompt"
	"github.com/sells-group/policy-tracker/internal/search"
)

// DefaultRecapMaxTokens is the recap token budget when none is configured.
const DefaultRecapMaxTokens = 6000

// RecapAggregator writes the editorial summary of the previous month.
type RecapAggregator struct {
	deps *Deps
}

// NewRecapAggregator creates a RecapAggregator.
func NewRecapAggregator(d *Deps) *RecapAggregator {
	return &RecapAggregator{deps: d}
}

// Type implements Agent.
func (a *RecapAggregator) Type() model.AgentType { return model.AgentRecap }

// Run generates the recap for the calendar month before now, unless one
// already exists. A response that cannot be parsed fails the run.
func (a *RecapAggregator) Run(ctx context.Context, trigger model.Trigger) (*model.RunResult, error) {
	return a.deps.record(ctx, model.AgentRecap, trigger, a.run)
}

func (a *RecapAggregator) run(ctx context.Context, rec *recorder) error {
	d := a.deps
	month, year, from, to := model.RecapPeriod(d.now().UTC())
	period := fmt.Sprintf("%s %d", prompt.MonthName(month), year)
	log := rec.log.With(zap.Int("month", month), zap.Int("year", year))

	existing, err := d.Store.GetMonthlyRecap(ctx, month, year)
	if err != nil {
		return eris.Wrapf(err, "recap: check existing %02d/%d", month, year)
	}
	if existing != nil {
		log.Info("recap: already exists", zap.String("recap_id", existing.ID))
		rec.skip(existing, "El recap de "+period+" ya existe")
		return nil
	}

	anns, err := d.Store.ListAnnouncements(ctx)
	if err != nil {
		return eris.Wrap(err, "recap: load announcements")
	}
	stats, updates := RecapStats(anns, from, to)

	if stats.InitiativesByStatus, err = d.Store.CountInitiativesByStatus(ctx); err != nil {
		return eris.Wrap(err, "recap: count initiatives")
	}
	stats.Initiatives = sumCounts(stats.InitiativesByStatus)
	if stats.CasesByStatus, err = d.Store.CountCasesByStatus(ctx); err != nil {
		return eris.Wrap(err, "recap: count cases")
	}
	stats.Cases = sumCounts(stats.CasesByStatus)

	p := prompt.Recap(month, year, stats, updates)
	resp, err := d.Search.Search(ctx, search.Request{
		System:    p.System,
		Prompt:    p.User,
		MaxTokens: orDefault(d.Config.RecapMaxTokens, DefaultRecapMaxTokens),
	})
	if err != nil {
		return eris.Wrap(err, "recap: search")
	}
	rec.addResponse("", resp)

	parsed, err := parse.Recap(resp.Text)
	if err != nil {
		return eris.Wrap(err, "recap: parse response")
	}

	recap := &model.MonthlyRecap{
		Month:      month,
		Year:       year,
		Title:      parsed.Title,
		Subtitle:   parsed.Subtitle,
		Body:       parsed.Body,
		KeyFigures: parsed.KeyFigures,
		Verdict:    parsed.Verdict,
		Sources:    parsed.Sources,
		Stats:      stats,
	}
	created, err := d.Store.CreateMonthlyRecapIfAbsent(ctx, recap)
	if err != nil {
		return eris.Wrapf(err, "recap: persist %02d/%d", month, year)
	}
	if !created {
		// Written by a concurrent run between the check and the insert.
		existing, err := d.Store.GetMonthlyRecap(ctx, month, year)
		if err != nil {
			return eris.Wrapf(err, "recap: reload %02d/%d", month, year)
		}
		if existing == nil {
			return eris.Errorf("recap: %02d/%d neither inserted nor found", month, year)
		}
		rec.skip(existing, "El recap de "+period+" ya existe")
		return nil
	}

	rec.mu.Lock()
	rec.activity = &model.ActivityLogEntry{
		Type:        model.ActivityRecap,
		Message:     "Recap mensual generado: " + recap.Title,
		EntityID:    recap.ID,
		EntityTitle: recap.Title,
		Details: map[string]any{
			"mes":             month,
			"anio":            year,
			"actualizaciones": stats.UpdatesInMonth,
		},
	}
	rec.found = 1
	rec.result.RecapID = recap.ID
	rec.result.Title = recap.Title
	rec.summary = "recap de " + period + " generado"
	rec.mu.Unlock()
	log.Info("recap: created", zap.String("recap_id", recap.ID))
	return nil
}

func (r *recorder) skip(existing *model.MonthlyRecap, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Skipped = true
	r.result.Message = msg
	r.result.RecapID = existing.ID
	r.result.Title = existing.Title
	r.summary = msg
}

// RecapStats aggregates announcements for the half-open range [from, to).
// The returned updates are ordered by date.
func RecapStats(anns []model.Announcement, from, to time.Time) (model.RecapStats, []model.AnnouncementUpdate) {
	stats := model.RecapStats{
		TotalAnnouncements: len(anns),
		ByStatus:           make(map[model.Status]int, len(model.AllStatuses)),
	}
	var updates []model.AnnouncementUpdate
	for _, a := range anns {
		stats.ByStatus[a.Status]++
		if inRange(a.AnnouncedAt, from, to) {
			stats.NewInMonth++
		}
		for _, u := range a.Updates {
			if !inRange(u.Date, from, to) {
				continue
			}
			stats.UpdatesInMonth++
			if u.StatusChange != nil {
				stats.StatusChanges++
			}
			updates = append(updates, model.AnnouncementUpdate{
				AnnouncementID:    a.ID,
				AnnouncementTitle: a.Title,
				Update:            u,
			})
		}
	}
	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].Date.Before(updates[j].Date)
	})
	return stats, updates
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func sumCounts(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
