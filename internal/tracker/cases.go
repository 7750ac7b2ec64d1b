package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/parse"
	"github.com/sells-group/policy-tracker/internal/prompt"
	"github.com/sells-group/policy-tracker/internal/search"
)

// DefaultCasesMaxTokens is the case detection token budget when none is configured.
const DefaultCasesMaxTokens = 4000

// CaseDetectionAgent finds new judicial cases touching AI policy. It follows
// the detection agent's rules: exact normalized-title dedup and per-item
// failures that do not stop the run.
type CaseDetectionAgent struct {
	deps *Deps
}

// NewCaseDetectionAgent creates a CaseDetectionAgent.
func NewCaseDetectionAgent(d *Deps) *CaseDetectionAgent {
	return &CaseDetectionAgent{deps: d}
}

// Type implements Agent.
func (a *CaseDetectionAgent) Type() model.AgentType { return model.AgentCases }

// Run searches for new cases and records those not already tracked.
func (a *CaseDetectionAgent) Run(ctx context.Context, trigger model.Trigger) (*model.RunResult, error) {
	return a.deps.record(ctx, model.AgentCases, trigger, a.run)
}

func (a *CaseDetectionAgent) run(ctx context.Context, rec *recorder) error {
	d := a.deps
	titles, err := d.Store.ListCaseTitles(ctx)
	if err != nil {
		return eris.Wrap(err, "cases: load existing titles")
	}
	known := NewTitleSet(titles)

	p := prompt.Cases(titles, d.now())
	resp, err := d.Search.Search(ctx, search.Request{
		System:    p.System,
		Prompt:    p.User,
		MaxTokens: orDefault(d.Config.CasesMaxTokens, DefaultCasesMaxTokens),
	})
	if err != nil {
		return eris.Wrap(err, "cases: search")
	}
	rec.addResponse("", resp)

	parsed, err := parse.Cases(resp.Text)
	if err != nil {
		rec.log.Warn("cases: unparseable response", zap.Error(err))
		rec.addError(err.Error())
		rec.summary = "0 casos nuevos (respuesta no interpretable)"
		return nil
	}
	for _, inv := range parsed.Invalid {
		rec.addError(fmt.Sprintf("caso %d (%q) descartado: %v", inv.Index, inv.Title, inv.Err))
	}

	created := 0
	for _, c := range parsed.Cases {
		if ctx.Err() != nil {
			rec.addError(eris.Wrap(ctx.Err(), "cases: stopped").Error())
			break
		}
		if !known.Add(c.Title) {
			continue
		}
		jc := caseFromCandidate(c)
		d.annotateSources(ctx, jc.Sources)
		ok, err := d.Store.CreateCaseIfAbsent(ctx, jc)
		if err != nil {
			rec.itemError(jc.Title, err)
			continue
		}
		if !ok {
			continue
		}
		created++
		d.activity(ctx, rec, jc.Title, &model.ActivityLogEntry{
			Type:        model.ActivityNewCase,
			Message:     "Nuevo caso judicial detectado: " + jc.Title,
			EntityID:    jc.ID,
			EntityTitle: jc.Title,
			Details: map[string]any{
				"tribunal":   jc.Court,
				"expediente": jc.CaseNumber,
			},
		})
	}

	rec.addFound(created)
	rec.summary = fmt.Sprintf("%d casos nuevos", created)
	return nil
}

func caseFromCandidate(c parse.CaseCandidate) *model.JudicialCase {
	title := strings.TrimSpace(c.Title)
	sourceURL := strings.TrimSpace(c.SourceURL)
	var sources []model.Source
	if sourceURL != "" {
		sources = append(sources, model.Source{URL: sourceURL, Title: title, Type: model.SourceOriginal})
	}
	for _, s := range parse.Sources(c.AdditionalSources) {
		if s.URL != sourceURL {
			sources = append(sources, s)
		}
	}
	status := strings.TrimSpace(c.Status)
	if status == "" {
		status = model.DefaultCaseStatus
	}
	return &model.JudicialCase{
		Title:           title,
		NormalizedTitle: NormalizeTitle(title),
		Description:     strings.TrimSpace(c.Description),
		Court:           strings.TrimSpace(c.Court),
		CaseNumber:      strings.TrimSpace(c.CaseNumber),
		FiledAt:         c.FiledAt.Ptr(),
		Parties:         c.Parties,
		Status:          status,
		Topic:           strings.TrimSpace(c.Topic),
		SourceURL:       sourceURL,
		Sources:         sources,
	}
}
