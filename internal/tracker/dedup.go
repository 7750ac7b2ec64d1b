package tracker

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/store"
)

// DefaultDedupMarginDays is the event deduplication window when none is configured.
const DefaultDedupMarginDays = 7

// NormalizeTitle trims, collapses internal whitespace and lowercases s. Two
// titles are duplicates iff their normalized forms are equal.
func NormalizeTitle(s string) string {
	// A Caser carries state and must not be shared across goroutines.
	return cases.Lower(language.Und).String(strings.Join(strings.Fields(s), " "))
}

// TitleSet is a set of normalized titles.
type TitleSet struct {
	seen map[string]struct{}
}

// NewTitleSet builds a set from raw titles.
func NewTitleSet(titles []string) *TitleSet {
	s := &TitleSet{seen: make(map[string]struct{}, len(titles))}
	for _, t := range titles {
		s.Add(t)
	}
	return s
}

// Contains reports whether title, once normalized, is already in the set.
func (s *TitleSet) Contains(title string) bool {
	_, ok := s.seen[NormalizeTitle(title)]
	return ok
}

// Add inserts title and reports whether it was new.
func (s *TitleSet) Add(title string) bool {
	key := NormalizeTitle(title)
	if key == "" {
		return false
	}
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Len returns the number of distinct titles.
func (s *TitleSet) Len() int { return len(s.seen) }

// Guard checks for timeline events that already cover a date.
type Guard struct {
	store store.Store
}

// NewGuard creates a Guard backed by st.
func NewGuard(st store.Store) *Guard {
	return &Guard{store: st}
}

// EventExists reports whether announcementID has an event of typ dated
// within [date-marginDays, date+marginDays], compared by calendar day (UTC).
func (g *Guard) EventExists(ctx context.Context, announcementID string, typ model.EventType, date time.Time, marginDays int) (bool, error) {
	if marginDays < 0 {
		marginDays = 0
	}
	from, to := dedupWindow(date, marginDays)
	n, err := g.store.CountTimelineEvents(ctx, announcementID, typ, from, to)
	if err != nil {
		return false, eris.Wrapf(err, "tracker: check %s events for %s", typ, announcementID)
	}
	return n > 0, nil
}

func dedupWindow(date time.Time, marginDays int) (from, to time.Time) {
	d := date.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	from = start.AddDate(0, 0, -marginDays)
	to = start.AddDate(0, 0, marginDays+1).Add(-time.Nanosecond)
	return from, to
}
