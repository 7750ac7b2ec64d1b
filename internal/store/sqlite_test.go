package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-tracker/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedAnnouncement(t *testing.T, st *SQLiteStore, title, normalized string) *model.Announcement {
	t.Helper()
	promised := day(2025, time.December, 31)
	a := &model.Announcement{
		Title:           title,
		NormalizedTitle: normalized,
		Description:     "Centro de investigación en inteligencia artificial",
		AnnouncedAt:     day(2025, time.January, 15),
		PromisedAt:      &promised,
		Official:        "Titular de la agencia",
		Agency:          "Agencia de Transformación Digital",
		SourceURL:       "https://example.gob/anuncio",
		Sources: []model.Source{
			{URL: "https://example.gob/anuncio", Title: "Comunicado", Type: model.SourceOriginal},
		},
	}
	created, err := st.CreateAnnouncementIfAbsent(context.Background(), a)
	require.NoError(t, err)
	require.True(t, created)
	return a
}

// --- Announcements ---

func TestSQLite_CreateAndGetAnnouncement(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := seedAnnouncement(t, st, "Laboratorio Nacional de IA", "laboratorio nacional de ia")

	got, err := st.GetAnnouncement(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Laboratorio Nacional de IA", got.Title)
	assert.Equal(t, model.StatusPromised, got.Status)
	assert.True(t, got.AnnouncedAt.Equal(a.AnnouncedAt))
	require.NotNil(t, got.PromisedAt)
	assert.True(t, got.PromisedAt.Equal(*a.PromisedAt))
	require.Len(t, got.Sources, 1)
	assert.Equal(t, model.SourceOriginal, got.Sources[0].Type)
	assert.Empty(t, got.Updates)
}

func TestSQLite_GetAnnouncement_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetAnnouncement(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_CreateAnnouncementIfAbsent_DuplicateNormalizedTitle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedAnnouncement(t, st, "Laboratorio Nacional de IA", "laboratorio nacional de ia")

	created, err := st.CreateAnnouncementIfAbsent(ctx, &model.Announcement{
		Title:           "laboratorio nacional de ia ",
		NormalizedTitle: "laboratorio nacional de ia",
		AnnouncedAt:     day(2025, time.February, 1),
	})
	require.NoError(t, err)
	assert.False(t, created)

	titles, err := st.ListAnnouncementTitles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Laboratorio Nacional de IA"}, titles)
}

func TestSQLite_CreateAnnouncementIfAbsent_ConcurrentSingleWinner(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		wins    int
		wg      sync.WaitGroup
		attempt = 8
	)
	for i := 0; i < attempt; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := st.CreateAnnouncementIfAbsent(ctx, &model.Announcement{
				Title:           "Estrategia Nacional",
				NormalizedTitle: "estrategia nacional",
				AnnouncedAt:     day(2025, time.March, 1),
			})
			if err == nil && created {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestSQLite_AppendAnnouncementUpdate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	a := seedAnnouncement(t, st, "Laboratorio", "laboratorio")

	require.NoError(t, st.AppendAnnouncementUpdate(ctx, a.ID, model.Update{
		Date:        day(2025, time.March, 5),
		Description: "Se publicó la convocatoria",
		SourceURL:   "https://example.gob/convocatoria",
	}))
	require.NoError(t, st.AppendAnnouncementUpdate(ctx, a.ID, model.Update{
		Date:         day(2025, time.March, 20),
		Description:  "El laboratorio inició operaciones",
		StatusChange: &model.StatusChange{From: model.StatusPromised, To: model.StatusOperating, Justification: "Inauguración"},
	}))

	got, err := st.GetAnnouncement(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOperating, got.Status)
	require.Len(t, got.Updates, 2)
	assert.Equal(t, "Se publicó la convocatoria", got.Updates[0].Description)
	assert.Nil(t, got.Updates[0].StatusChange)
	require.NotNil(t, got.Updates[1].StatusChange)
	assert.Equal(t, model.StatusOperating, got.Updates[1].StatusChange.To)
	assert.True(t, got.UpdatedAt.After(a.UpdatedAt) || got.UpdatedAt.Equal(a.UpdatedAt))
}

func TestSQLite_AppendAnnouncementUpdate_StaleStatusConflicts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	a := seedAnnouncement(t, st, "Laboratorio", "laboratorio")

	err := st.AppendAnnouncementUpdate(ctx, a.ID, model.Update{
		Date:         day(2025, time.March, 5),
		StatusChange: &model.StatusChange{From: model.StatusInDevelopment, To: model.StatusOperating},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	got, err := st.GetAnnouncement(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPromised, got.Status)
	assert.Empty(t, got.Updates)
}

func TestSQLite_AppendAnnouncementUpdate_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.AppendAnnouncementUpdate(context.Background(), "missing", model.Update{Description: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ImportAnnouncements_Upserts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	existing := seedAnnouncement(t, st, "Laboratorio", "laboratorio")

	n, err := st.ImportAnnouncements(ctx, []model.Announcement{
		{Title: "Laboratorio", NormalizedTitle: "laboratorio", Status: model.StatusInDevelopment, AnnouncedAt: day(2025, time.January, 15), Manual: true},
		{Title: "Estrategia", NormalizedTitle: "estrategia", AnnouncedAt: day(2025, time.February, 2), Manual: true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := st.ListAnnouncements(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	got, err := st.GetAnnouncement(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInDevelopment, got.Status)
	assert.True(t, got.Manual)
}

func TestSQLite_ImportAnnouncements_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	n, err := st.ImportAnnouncements(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// --- Timeline ---

func TestSQLite_TimelineEvents(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	e := &model.TimelineEvent{
		AnnouncementID: "a1",
		Date:           day(2025, time.March, 10),
		Type:           model.EventNonFulfillment,
		Title:          "Fecha prometida vencida",
		Sources:        []model.Source{{ID: "s1", URL: "https://example.com", Type: model.SourcePressNote}},
	}
	require.NoError(t, st.CreateTimelineEvent(ctx, e))
	assert.Equal(t, model.ImpactNeutral, e.Impact)

	events, err := st.ListTimelineEvents(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, e.ID, events[0].ID)
	assert.True(t, events[0].Date.Equal(e.Date))
	require.Len(t, events[0].Sources, 1)
	assert.Equal(t, "s1", events[0].Sources[0].ID)
}

func TestSQLite_CountTimelineEvents_Range(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateTimelineEvent(ctx, &model.TimelineEvent{
		AnnouncementID: "a1", Date: day(2025, time.March, 10), Type: model.EventNonFulfillment, Title: "x",
	}))

	tests := []struct {
		name     string
		from, to time.Time
		typ      model.EventType
		want     int
	}{
		{"inclusive lower bound", day(2025, time.March, 10), day(2025, time.March, 20), model.EventNonFulfillment, 1},
		{"inclusive upper bound", day(2025, time.March, 3), day(2025, time.March, 10), model.EventNonFulfillment, 1},
		{"before window", day(2025, time.March, 11), day(2025, time.March, 20), model.EventNonFulfillment, 0},
		{"other type", day(2025, time.March, 1), day(2025, time.March, 31), model.EventDelay, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := st.CountTimelineEvents(ctx, "a1", tt.typ, tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestSQLite_ImportTimelineEvents(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.ImportTimelineEvents(ctx, []model.TimelineEvent{
		{AnnouncementID: "a1", Date: day(2025, time.January, 1), Type: model.EventInitial, Title: "uno"},
		{AnnouncementID: "a1", Date: day(2025, time.February, 1), Type: model.EventUpdate, Title: "dos"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	events, err := st.ListTimelineEvents(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "uno", events[0].Title)
}

// --- Activity and run logs ---

func TestSQLite_Activity(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateActivity(ctx, &model.ActivityLogEntry{
		Type: model.ActivityNewAnnouncement, Message: "Nuevo anuncio", EntityID: "a1",
		CreatedAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, st.CreateActivity(ctx, &model.ActivityLogEntry{
		Type: model.ActivityAgentRun, Message: "Agente ejecutado", Details: map[string]any{"items": float64(1)},
	}))

	entries, err := st.ListActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.ActivityAgentRun, entries[0].Type)
	assert.Equal(t, float64(1), entries[0].Details["items"])
	assert.Nil(t, entries[1].Details)
}

func TestSQLite_AgentRunLogs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, agent := range []model.AgentType{model.AgentDetection, model.AgentMonitor, model.AgentDetection} {
		require.NoError(t, st.CreateAgentRunLog(ctx, &model.AgentRunLog{
			Agent:      agent,
			Trigger:    model.TriggerCron,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			DurationMs: 1500,
			Success:    i != 2,
			ItemsFound: i,
			Errors:     []string{"uno"},
			Usage:      model.TokenUsage{InputTokens: 100, OutputTokens: 50, WebSearches: 2},
			CostUSD:    0.0123,
		}))
	}

	logs, err := st.ListAgentRunLogs(ctx, RunLogFilter{Agent: model.AgentDetection})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.False(t, logs[0].Success)
	assert.Equal(t, 2, logs[0].ItemsFound)
	assert.Equal(t, []string{"uno"}, logs[0].Errors)
	assert.Equal(t, 2, logs[0].Usage.WebSearches)
	assert.InDelta(t, 0.0123, logs[0].CostUSD, 1e-9)

	logs, err = st.ListAgentRunLogs(ctx, RunLogFilter{Since: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	logs, err = st.ListAgentRunLogs(ctx, RunLogFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

// --- Recaps ---

func TestSQLite_MonthlyRecap_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r, err := st.GetMonthlyRecap(ctx, 3, 2025)
	require.NoError(t, err)
	assert.Nil(t, r)

	recap := &model.MonthlyRecap{
		Month: 3, Year: 2025, Title: "Marzo", Body: "Resumen",
		KeyFigures: []string{"3 anuncios nuevos"},
		Sources:    []model.RecapSource{{URL: "https://example.com", Title: "Nota"}},
		Stats:      model.RecapStats{TotalAnnouncements: 4, ByStatus: map[model.Status]int{model.StatusPromised: 4}},
	}
	created, err := st.CreateMonthlyRecapIfAbsent(ctx, recap)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = st.CreateMonthlyRecapIfAbsent(ctx, &model.MonthlyRecap{Month: 3, Year: 2025, Title: "Otra", Body: "x"})
	require.NoError(t, err)
	assert.False(t, created)

	got, err := st.GetMonthlyRecap(ctx, 3, 2025)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, recap.ID, got.ID)
	assert.Equal(t, "Marzo", got.Title)
	assert.Equal(t, []string{"3 anuncios nuevos"}, got.KeyFigures)
	assert.Equal(t, 4, got.Stats.ByStatus[model.StatusPromised])
}

// --- Initiatives and cases ---

func TestSQLite_CountsAndCases(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.db.ExecContext(ctx,
		`INSERT INTO iniciativas (id, titulo, estado) VALUES ('i1', 'Ley IA', 'en_comision'), ('i2', 'Reforma', 'en_comision'), ('i3', 'Otra', 'aprobada')`)
	require.NoError(t, err)

	initiatives, err := st.CountInitiativesByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"en_comision": 2, "aprobada": 1}, initiatives)

	filed := day(2025, time.February, 3)
	created, err := st.CreateCaseIfAbsent(ctx, &model.JudicialCase{
		Title: "Amparo contra reconocimiento facial", NormalizedTitle: "amparo contra reconocimiento facial",
		Court: "Juzgado Tercero", FiledAt: &filed, Parties: []string{"Asociación civil", "Secretaría"},
	})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = st.CreateCaseIfAbsent(ctx, &model.JudicialCase{
		Title: "AMPARO contra reconocimiento facial", NormalizedTitle: "amparo contra reconocimiento facial",
	})
	require.NoError(t, err)
	assert.False(t, created)

	titles, err := st.ListCaseTitles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Amparo contra reconocimiento facial"}, titles)

	cases, err := st.CountCasesByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{model.DefaultCaseStatus: 1}, cases)
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}
