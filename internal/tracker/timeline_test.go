package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/parse"
)

func TestTimeline_CreateEvent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	a := seedAnnouncement(t, st, "Laboratorio Nacional de IA", model.StatusPromised)
	tl := NewTimeline(st)

	sources := []model.Source{
		{ID: "keep-me-not", URL: "https://example.gob/a", Title: "A", Type: model.SourcePressNote},
		{URL: "https://example.gob/b", Title: "B", Type: model.SourceStatement},
	}
	id, err := tl.CreateEvent(ctx, EventInput{
		AnnouncementID: a.ID,
		Date:           time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		Type:           model.EventProgress,
		Title:          "Avance",
		Description:    "Se publicó la convocatoria",
		Sources:        sources,
		Quote:          "Vamos en tiempo",
		Official:       "Titular",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	events, err := st.ListTimelineEvents(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, id, e.ID)
	assert.Equal(t, model.EventProgress, e.Type)
	assert.Equal(t, model.ImpactNeutral, e.Impact)
	assert.Equal(t, "Vamos en tiempo", e.Quote)
	assert.False(t, e.CreatedAt.IsZero())
	require.Len(t, e.Sources, 2)
	assert.NotEqual(t, "keep-me-not", e.Sources[0].ID)
	assert.NotEmpty(t, e.Sources[1].ID)
	assert.NotEqual(t, e.Sources[0].ID, e.Sources[1].ID)
	assert.Equal(t, "keep-me-not", sources[0].ID, "input sources are not mutated")
}

func TestTimeline_CreateEvent_FreshSourceIDsPerEvent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	a := seedAnnouncement(t, st, "Laboratorio Nacional de IA", model.StatusPromised)
	tl := NewTimeline(st)

	in := EventInput{
		AnnouncementID: a.ID,
		Type:           model.EventUpdate,
		Title:          "Actualización",
		Sources:        []model.Source{{URL: "https://example.gob/a", Type: model.SourceOther}},
	}
	_, err := tl.CreateEvent(ctx, in)
	require.NoError(t, err)
	_, err = tl.CreateEvent(ctx, in)
	require.NoError(t, err)

	events, err := st.ListTimelineEvents(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].Sources[0].ID, events[1].Sources[0].ID)
}

func TestTimeline_CreateEvent_Validation(t *testing.T) {
	tl := NewTimeline(newTestStore(t))

	_, err := tl.CreateEvent(context.Background(), EventInput{Type: model.EventUpdate})
	assert.Error(t, err)

	_, err = tl.CreateEvent(context.Background(), EventInput{AnnouncementID: "a1", Type: "otro"})
	assert.Error(t, err)
}

func TestTimeline_CreateEvent_DefaultsDateToNow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	a := seedAnnouncement(t, st, "Laboratorio Nacional de IA", model.StatusPromised)
	tl := NewTimeline(st)
	tl.now = func() time.Time { return testNow }

	_, err := tl.CreateEvent(ctx, EventInput{AnnouncementID: a.ID, Type: model.EventUpdate, Title: "x"})
	require.NoError(t, err)

	exists, err := tl.EventExists(ctx, a.ID, model.EventUpdate, testNow, 0)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInitialEvent(t *testing.T) {
	a := &model.Announcement{
		ID:           "a1",
		Title:        "Laboratorio Nacional de IA",
		Description:  "Centro de investigación",
		AnnouncedAt:  time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
		Official:     "Titular",
		PromiseQuote: "Estará listo en diciembre",
		Sources: []model.Source{
			{URL: "https://example.gob/original", Type: model.SourceOriginal},
			{URL: "https://example.gob/nota", Type: model.SourcePressNote},
		},
	}
	in := InitialEvent(a)
	assert.Equal(t, "a1", in.AnnouncementID)
	assert.Equal(t, model.EventInitial, in.Type)
	assert.Equal(t, model.ImpactNeutral, in.Impact)
	assert.Equal(t, a.AnnouncedAt, in.Date)
	assert.Equal(t, "Estará listo en diciembre", in.Quote)
	require.Len(t, in.Sources, 2)
	assert.Equal(t, model.SourceOriginal, in.Sources[0].Type)
}

func TestUpdateEvent(t *testing.T) {
	a := &model.Announcement{ID: "a1", Title: "Laboratorio Nacional de IA"}
	date := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	u := &parse.UpdatePayload{
		Description: "Inició operaciones",
		SourceURL:   "https://example.gob/nota",
		EventType:   "AVANCE",
		Impact:      "Positivo",
		AdditionalSources: []parse.SourceRef{
			{Type: "declaracion", URL: "https://example.gob/declaracion"},
			{Type: "nota_prensa", URL: "https://example.gob/nota"},
			{Type: "otro", URL: ""},
		},
	}

	t.Run("plain update", func(t *testing.T) {
		in := UpdateEvent(a, u, nil, date)
		assert.Equal(t, model.EventProgress, in.Type)
		assert.Equal(t, model.ImpactPositive, in.Impact)
		assert.Contains(t, in.Title, "Actualización")
		require.Len(t, in.Sources, 2)
		assert.Equal(t, "https://example.gob/nota", in.Sources[0].URL)
		assert.Equal(t, model.SourceStatement, in.Sources[1].Type)
	})

	t.Run("status change", func(t *testing.T) {
		change := &model.StatusChange{From: model.StatusPromised, To: model.StatusOperating}
		in := UpdateEvent(a, u, change, date)
		assert.Equal(t, model.EventStatusChange, in.Type)
		assert.Contains(t, in.Title, "Prometido")
		assert.Contains(t, in.Title, "Operando")
	})

	t.Run("invalid or initial type falls back to update", func(t *testing.T) {
		for _, raw := range []string{"", "rumor", "anuncio_inicial"} {
			in := UpdateEvent(a, &parse.UpdatePayload{Description: "x", EventType: raw}, nil, date)
			assert.Equal(t, model.EventUpdate, in.Type, raw)
			assert.Equal(t, model.ImpactNeutral, in.Impact)
		}
	})
}
