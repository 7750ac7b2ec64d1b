package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/store"
	"github.com/sells-group/policy-tracker/internal/tracker"
)

// importFile is the JSON document accepted by `import`.
type importFile struct {
	Announcements []model.Announcement  `json:"anuncios"`
	Events        []model.TimelineEvent `json:"eventos_timeline"`
}

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import manually curated announcements and timeline events",
	Long:  `Reads {"anuncios": [...], "eventos_timeline": [...]} and upserts announcements by normalized title. Imported announcements are marked as manually created.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		doc, err := readImportFile(args[0])
		if err != nil {
			return err
		}

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		anns, events, err := importDocument(ctx, st, doc, time.Now().UTC())
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("file", args[0]),
			zap.Int64("announcements", anns),
			zap.Int64("events", events),
		)
		return nil
	},
}

func readImportFile(path string) (*importFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "import: read file")
	}
	var doc importFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "import: decode file")
	}
	return &doc, nil
}

// prepareImport normalizes and validates the document in place.
func prepareImport(doc *importFile, now time.Time) error {
	for i := range doc.Announcements {
		a := &doc.Announcements[i]
		a.Title = strings.TrimSpace(a.Title)
		if a.Title == "" {
			return eris.Errorf("import: announcement %d has no titulo", i)
		}
		a.NormalizedTitle = tracker.NormalizeTitle(a.Title)
		if a.Status == "" {
			a.Status = model.StatusPromised
		} else if s, ok := model.ParseStatus(string(a.Status)); ok {
			a.Status = s
		} else {
			return eris.Errorf("import: announcement %q has unknown status %q", a.Title, a.Status)
		}
		if a.AnnouncedAt.IsZero() {
			a.AnnouncedAt = now
		}
		for j := range a.Sources {
			a.Sources[j].Type = model.NormalizeSourceType(string(a.Sources[j].Type))
		}
		a.Manual = true
	}
	for i := range doc.Events {
		e := &doc.Events[i]
		if e.AnnouncementID == "" {
			return eris.Errorf("import: event %d has no anuncio_id", i)
		}
		if !e.Type.Valid() {
			return eris.Errorf("import: event %d has unknown tipo %q", i, e.Type)
		}
		if e.Date.IsZero() {
			e.Date = now
		}
	}
	return nil
}

func importDocument(ctx context.Context, st store.Store, doc *importFile, now time.Time) (int64, int64, error) {
	if err := prepareImport(doc, now); err != nil {
		return 0, 0, err
	}
	anns, err := st.ImportAnnouncements(ctx, doc.Announcements)
	if err != nil {
		return 0, 0, eris.Wrap(err, "import: announcements")
	}
	events, err := st.ImportTimelineEvents(ctx, doc.Events)
	if err != nil {
		return anns, 0, eris.Wrap(err, "import: timeline events")
	}
	return anns, events, nil
}

func init() {
	rootCmd.AddCommand(importCmd)
}
