package tracker

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-tracker/internal/config"
	"github.com/sells-group/policy-tracker/internal/lock"
	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/search"
	"github.com/sells-group/policy-tracker/internal/store"
)

// --- Search Mock ---

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) Name() string { return "mock" }

func (m *mockSearch) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*search.Response), args.Error(1)
}

// promptContaining matches a search request whose prompt mentions s.
func promptContaining(s string) any {
	return mock.MatchedBy(func(r search.Request) bool { return strings.Contains(r.Prompt, s) })
}

func textResponse(text string) *search.Response {
	return &search.Response{
		Text:    text,
		Model:   "test-model",
		Usage:   model.TokenUsage{InputTokens: 100, OutputTokens: 50, WebSearches: 2},
		CostUSD: 0.02,
	}
}

// --- Store with injected faults ---

// faultyStore wraps a real store and fails selected calls.
type faultyStore struct {
	store.Store
	listTitlesErr error
	listErr       error
	createErr     map[string]error // by title
	appendErr     error
	eventErr      error
	runLogErr     error
	getRecapErr   error
	runLogs       int
}

func (f *faultyStore) ListAnnouncementTitles(ctx context.Context) ([]string, error) {
	if f.listTitlesErr != nil {
		return nil, f.listTitlesErr
	}
	return f.Store.ListAnnouncementTitles(ctx)
}

func (f *faultyStore) ListAnnouncements(ctx context.Context) ([]model.Announcement, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.ListAnnouncements(ctx)
}

func (f *faultyStore) CreateAnnouncementIfAbsent(ctx context.Context, a *model.Announcement) (bool, error) {
	if err := f.createErr[a.Title]; err != nil {
		return false, err
	}
	return f.Store.CreateAnnouncementIfAbsent(ctx, a)
}

func (f *faultyStore) AppendAnnouncementUpdate(ctx context.Context, id string, u model.Update) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	return f.Store.AppendAnnouncementUpdate(ctx, id, u)
}

func (f *faultyStore) CreateTimelineEvent(ctx context.Context, e *model.TimelineEvent) error {
	if f.eventErr != nil {
		return f.eventErr
	}
	return f.Store.CreateTimelineEvent(ctx, e)
}

func (f *faultyStore) CreateAgentRunLog(ctx context.Context, l *model.AgentRunLog) error {
	f.runLogs++
	if f.runLogErr != nil {
		return f.runLogErr
	}
	return f.Store.CreateAgentRunLog(ctx, l)
}

func (f *faultyStore) GetMonthlyRecap(ctx context.Context, month, year int) (*model.MonthlyRecap, error) {
	if f.getRecapErr != nil {
		return nil, f.getRecapErr
	}
	return f.Store.GetMonthlyRecap(ctx, month, year)
}

// --- Helpers ---

var testNow = time.Date(2025, time.April, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestDeps(st store.Store, svc search.Service) *Deps {
	return &Deps{
		Store:  st,
		Search: svc,
		Locker: lock.NewLocalLocker(),
		Config: config.AgentsConfig{MonitorConcurrency: 1, DedupMarginDays: 7},
		Now:    func() time.Time { return testNow },
	}
}

func seedAnnouncement(t *testing.T, st store.Store, title string, status model.Status) *model.Announcement {
	t.Helper()
	a := &model.Announcement{
		Title:           title,
		NormalizedTitle: NormalizeTitle(title),
		Description:     "Compromiso de " + title,
		AnnouncedAt:     time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
		Official:        "Titular",
		Agency:          "Agencia Digital",
		Status:          status,
		SourceURL:       "https://example.gob/" + strings.ReplaceAll(NormalizeTitle(title), " ", "-"),
	}
	created, err := st.CreateAnnouncementIfAbsent(context.Background(), a)
	require.NoError(t, err)
	require.True(t, created)
	return a
}

func runLogs(t *testing.T, st store.Store, agent model.AgentType) []model.AgentRunLog {
	t.Helper()
	logs, err := st.ListAgentRunLogs(context.Background(), store.RunLogFilter{Agent: agent})
	require.NoError(t, err)
	return logs
}

func activityOfType(t *testing.T, st store.Store, typ model.ActivityType) []model.ActivityLogEntry {
	t.Helper()
	all, err := st.ListActivity(context.Background(), 100)
	require.NoError(t, err)
	var out []model.ActivityLogEntry
	for _, e := range all {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
