package tracker

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/parse"
	"github.com/sells-group/policy-tracker/internal/store"
)

// EventInput describes a timeline event to create.
type EventInput struct {
	AnnouncementID string
	Date           time.Time
	Type           model.EventType
	Title          string
	Description    string
	Sources        []model.Source
	Quote          string
	Official       string
	Impact         model.Impact
}

// Timeline creates timeline events and answers dedup queries for them.
type Timeline struct {
	store store.Store
	guard *Guard
	now   func() time.Time
}

// NewTimeline creates a Timeline over st.
func NewTimeline(st store.Store) *Timeline {
	return &Timeline{store: st, guard: NewGuard(st), now: time.Now}
}

// CreateEvent persists in and returns the new event's ID. Every source gets
// a fresh ID regardless of any ID it carried before.
func (t *Timeline) CreateEvent(ctx context.Context, in EventInput) (string, error) {
	if in.AnnouncementID == "" {
		return "", eris.New("tracker: timeline event has no announcement")
	}
	if !in.Type.Valid() {
		return "", eris.Errorf("tracker: unknown event type %q", in.Type)
	}

	sources := make([]model.Source, len(in.Sources))
	for i, s := range in.Sources {
		s.ID = uuid.New().String()
		sources[i] = s
	}
	date := in.Date
	if date.IsZero() {
		date = t.now()
	}

	e := &model.TimelineEvent{
		ID:             uuid.New().String(),
		AnnouncementID: in.AnnouncementID,
		Date:           date.UTC(),
		Type:           in.Type,
		Title:          in.Title,
		Description:    in.Description,
		Sources:        sources,
		Quote:          in.Quote,
		Official:       in.Official,
		Impact:         model.ParseImpact(string(in.Impact)),
		CreatedAt:      t.now().UTC(),
	}
	if err := t.store.CreateTimelineEvent(ctx, e); err != nil {
		return "", eris.Wrapf(err, "tracker: create %s event for %s", in.Type, in.AnnouncementID)
	}
	return e.ID, nil
}

// EventExists delegates to the Guard.
func (t *Timeline) EventExists(ctx context.Context, announcementID string, typ model.EventType, date time.Time, marginDays int) (bool, error) {
	return t.guard.EventExists(ctx, announcementID, typ, date, marginDays)
}

// InitialEvent is the event recorded when an announcement is first detected.
// It carries the original source followed by any additional sources.
func InitialEvent(a *model.Announcement) EventInput {
	return EventInput{
		AnnouncementID: a.ID,
		Date:           a.AnnouncedAt,
		Type:           model.EventInitial,
		Title:          "Anuncio: " + a.Title,
		Description:    a.Description,
		Sources:        a.Sources,
		Quote:          a.PromiseQuote,
		Official:       a.Official,
		Impact:         model.ImpactNeutral,
	}
}

// UpdateEvent is the event recorded for a monitoring update. A non-nil
// change makes it a status change event.
func UpdateEvent(a *model.Announcement, u *parse.UpdatePayload, change *model.StatusChange, date time.Time) EventInput {
	typ := updateEventType(u.EventType)
	title := "Actualización: " + a.Title
	if change != nil {
		typ = model.EventStatusChange
		title = "Cambio de status: " + statusLabel(change.From) + " → " + statusLabel(change.To)
	}
	return EventInput{
		AnnouncementID: a.ID,
		Date:           date,
		Type:           typ,
		Title:          title,
		Description:    u.Description,
		Sources:        updateSources(u),
		Quote:          u.Quote,
		Official:       u.Official,
		Impact:         model.ParseImpact(strings.ToLower(strings.TrimSpace(u.Impact))),
	}
}

// updateEventType keeps the model's event type unless it is missing, invalid
// or claims to be the initial announcement.
func updateEventType(raw string) model.EventType {
	t := model.EventType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() || t == model.EventInitial {
		return model.EventUpdate
	}
	return t
}

func updateSources(u *parse.UpdatePayload) []model.Source {
	var out []model.Source
	if url := strings.TrimSpace(u.SourceURL); url != "" {
		out = append(out, model.Source{URL: url, Title: u.Description, Type: model.SourcePressNote})
	}
	for _, s := range parse.Sources(u.AdditionalSources) {
		if len(out) > 0 && s.URL == out[0].URL {
			continue
		}
		out = append(out, s)
	}
	return out
}

var statusLabels = map[model.Status]string{
	model.StatusPromised:      "Prometido",
	model.StatusInDevelopment: "En desarrollo",
	model.StatusOperating:     "Operando",
	model.StatusUnfulfilled:   "Incumplido",
	model.StatusAbandoned:     "Abandonado",
}

func statusLabel(s model.Status) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}
