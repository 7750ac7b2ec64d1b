package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/parse"
	"github.com/sells-group/policy-tracker/internal/prompt"
	"github.com/sells-group/policy-tracker/internal/search"
)

// DefaultDetectionMaxTokens is the detection token budget when none is configured.
const DefaultDetectionMaxTokens = 4000

// DetectionAgent finds newly announced government AI commitments.
type DetectionAgent struct {
	deps     *Deps
	timeline *Timeline
}

// NewDetectionAgent creates a DetectionAgent.
func NewDetectionAgent(d *Deps) *DetectionAgent {
	return &DetectionAgent{deps: d, timeline: newTimeline(d)}
}

// Type implements Agent.
func (a *DetectionAgent) Type() model.AgentType { return model.AgentDetection }

// Run searches for new announcements and records every one whose normalized
// title is not already tracked. Per-candidate failures are recorded and do
// not stop the run; the run fails only when nothing could be attempted.
func (a *DetectionAgent) Run(ctx context.Context, trigger model.Trigger) (*model.RunResult, error) {
	return a.deps.record(ctx, model.AgentDetection, trigger, a.run)
}

func (a *DetectionAgent) run(ctx context.Context, rec *recorder) error {
	d := a.deps
	titles, err := d.Store.ListAnnouncementTitles(ctx)
	if err != nil {
		return eris.Wrap(err, "detection: load existing titles")
	}
	known := NewTitleSet(titles)

	p := prompt.Detection(titles, d.now())
	resp, err := d.Search.Search(ctx, search.Request{
		System:    p.System,
		Prompt:    p.User,
		MaxTokens: orDefault(d.Config.DetectionMaxTokens, DefaultDetectionMaxTokens),
	})
	if err != nil {
		return eris.Wrap(err, "detection: search")
	}
	rec.addResponse("", resp)

	parsed, err := parse.Detection(resp.Text)
	if err != nil {
		rec.log.Warn("detection: unparseable response", zap.Error(err))
		rec.addError(err.Error())
		rec.summary = "0 nuevos anuncios (respuesta no interpretable)"
		return nil
	}
	for _, inv := range parsed.Invalid {
		rec.addError(fmt.Sprintf("candidato %d (%q) descartado: %v", inv.Index, inv.Title, inv.Err))
	}

	created, skipped := 0, 0
	for _, c := range parsed.Announcements {
		if ctx.Err() != nil {
			rec.addError(eris.Wrap(ctx.Err(), "detection: stopped").Error())
			break
		}
		if !known.Add(c.Title) {
			rec.log.Debug("detection: duplicate skipped", zap.String("title", c.Title))
			skipped++
			continue
		}
		if a.createAnnouncement(ctx, rec, c) {
			created++
		}
	}

	rec.addFound(created)
	rec.summary = fmt.Sprintf("%d nuevos anuncios, %d duplicados omitidos", created, skipped)
	rec.details = map[string]any{
		"candidatos": len(parsed.Announcements) + len(parsed.Invalid),
		"nuevos":     created,
		"duplicados": skipped,
	}
	return nil
}

// createAnnouncement persists one candidate with its initial timeline event
// and activity entry. It reports whether the announcement was created.
func (a *DetectionAgent) createAnnouncement(ctx context.Context, rec *recorder, c parse.Candidate) bool {
	d := a.deps
	ann := announcementFromCandidate(c, d.now())
	d.annotateSources(ctx, ann.Sources)

	created, err := d.Store.CreateAnnouncementIfAbsent(ctx, ann)
	if err != nil {
		rec.itemError(ann.Title, err)
		return false
	}
	if !created {
		// Another writer inserted the same title after we listed.
		rec.log.Info("detection: announcement already exists", zap.String("title", ann.Title))
		return false
	}

	if _, err := a.timeline.CreateEvent(ctx, InitialEvent(ann)); err != nil {
		rec.itemError(ann.Title, err)
	}
	d.activity(ctx, rec, ann.Title, &model.ActivityLogEntry{
		Type:        model.ActivityNewAnnouncement,
		Message:     "Nuevo anuncio detectado: " + ann.Title,
		EntityID:    ann.ID,
		EntityTitle: ann.Title,
		Details: map[string]any{
			"dependencia": ann.Agency,
			"responsable": ann.Official,
			"fuente":      ann.SourceURL,
		},
	})
	rec.log.Info("detection: announcement created", zap.String("id", ann.ID), zap.String("title", ann.Title))
	return true
}

// announcementFromCandidate builds a new announcement in the initial status.
// A missing announcement date falls back to now.
func announcementFromCandidate(c parse.Candidate, now time.Time) *model.Announcement {
	title := strings.TrimSpace(c.Title)
	announced := c.AnnouncedAt.Time
	if announced.IsZero() {
		announced = now
	}

	var sources []model.Source
	sourceURL := strings.TrimSpace(c.SourceURL)
	if sourceURL != "" {
		sources = append(sources, model.Source{
			URL:         sourceURL,
			Title:       title,
			Type:        model.SourceOriginal,
			PublishedAt: c.AnnouncedAt.Ptr(),
		})
	}
	for _, s := range parse.Sources(c.AdditionalSources) {
		if s.URL == sourceURL {
			continue
		}
		sources = append(sources, s)
	}

	return &model.Announcement{
		Title:           title,
		NormalizedTitle: NormalizeTitle(title),
		Description:     strings.TrimSpace(c.Description),
		AnnouncedAt:     announced.UTC(),
		PromisedAt:      c.PromisedAt.Ptr(),
		Official:        strings.TrimSpace(c.Official),
		Agency:          strings.TrimSpace(c.Agency),
		Status:          model.StatusPromised,
		SourceURL:       sourceURL,
		PromiseQuote:    strings.TrimSpace(c.PromiseQuote),
		Sources:         sources,
	}
}
