package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-tracker/internal/model"
)

// Collection names shared by both backends.
const (
	TableAnnouncements = "anuncios"
	TableTimeline      = "eventos_timeline"
	TableActivity      = "actividad"
	TableAgentLogs     = "agente_logs"
	TableRecaps        = "recaps_mensuales"
	TableInitiatives   = "iniciativas"
	TableCases         = "casos_judiciales"
)

var (
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrConflict is returned when a conditional update matched no row
	// because the document changed underneath the caller.
	ErrConflict = eris.New("store: conflict")
)

// RunLogFilter specifies criteria for listing agent run logs.
type RunLogFilter struct {
	Agent model.AgentType `json:"agent,omitempty"`
	Since time.Time       `json:"since,omitempty"`
	Limit int             `json:"limit,omitempty"`
}

// Store is the document repository the tracking agents run against. Each
// orchestrator receives one explicitly; the process entry point owns its
// lifecycle.
type Store interface {
	// Announcements
	ListAnnouncementTitles(ctx context.Context) ([]string, error)
	ListAnnouncements(ctx context.Context) ([]model.Announcement, error)
	GetAnnouncement(ctx context.Context, id string) (*model.Announcement, error)
	// CreateAnnouncementIfAbsent inserts a unless an announcement with the
	// same normalized title exists. It reports whether a row was written.
	CreateAnnouncementIfAbsent(ctx context.Context, a *model.Announcement) (bool, error)
	// AppendAnnouncementUpdate appends u to the update log in one statement.
	// When u carries a status change the write only applies if the stored
	// status still equals u.StatusChange.From; otherwise ErrConflict.
	AppendAnnouncementUpdate(ctx context.Context, id string, u model.Update) error
	ImportAnnouncements(ctx context.Context, items []model.Announcement) (int64, error)

	// Timeline
	CreateTimelineEvent(ctx context.Context, e *model.TimelineEvent) error
	CountTimelineEvents(ctx context.Context, announcementID string, typ model.EventType, from, to time.Time) (int, error)
	ListTimelineEvents(ctx context.Context, announcementID string) ([]model.TimelineEvent, error)
	ImportTimelineEvents(ctx context.Context, events []model.TimelineEvent) (int64, error)

	// Activity
	CreateActivity(ctx context.Context, e *model.ActivityLogEntry) error
	ListActivity(ctx context.Context, limit int) ([]model.ActivityLogEntry, error)

	// Agent run logs
	CreateAgentRunLog(ctx context.Context, l *model.AgentRunLog) error
	ListAgentRunLogs(ctx context.Context, filter RunLogFilter) ([]model.AgentRunLog, error)

	// Monthly recaps
	// GetMonthlyRecap returns nil, nil when (month, year) has no recap.
	GetMonthlyRecap(ctx context.Context, month, year int) (*model.MonthlyRecap, error)
	// CreateMonthlyRecapIfAbsent inserts r unless (Month, Year) already has
	// a recap. It reports whether a row was written.
	CreateMonthlyRecapIfAbsent(ctx context.Context, r *model.MonthlyRecap) (bool, error)

	// Legislative initiatives and judicial cases
	CountInitiativesByStatus(ctx context.Context) (map[string]int, error)
	CountCasesByStatus(ctx context.Context) (map[string]int, error)
	ListCaseTitles(ctx context.Context) ([]string, error)
	CreateCaseIfAbsent(ctx context.Context, c *model.JudicialCase) (bool, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// defaultLimit caps list queries when the caller passes no limit.
const defaultLimit = 100

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	return n
}

// marshalList encodes a nil slice as an empty JSON array.
func marshalList[T any](v []T) ([]byte, error) {
	if v == nil {
		v = []T{}
	}
	return json.Marshal(v)
}

func unmarshalList[T any](b []byte, dst *[]T) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, dst)
}

func stampAnnouncement(a *model.Announcement) {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = model.StatusPromised
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
}

func stampEvent(e *model.TimelineEvent) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Impact == "" {
		e.Impact = model.ImpactNeutral
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}

func stampCase(c *model.JudicialCase) {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = model.DefaultCaseStatus
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
}
