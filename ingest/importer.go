// Package ingest pulls event and race data from ROBis and materializes
// it into the local store. The refresh is destructive: existing runners
// are cleared before the remote competitors are written.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"robis-bridge/oplog"
	"robis-bridge/robis"
	"robis-bridge/settings"
)

// Summary counts what one import did, for the operator log.
type Summary struct {
	Name              string `json:"name"`
	RunnersDeleted    int    `json:"runnersDeleted"`
	RunnersCreated    int    `json:"runnersCreated"`
	CategoriesCreated int    `json:"categoriesCreated"`
}

type Importer struct {
	App    core.App
	Source robis.Source
	Log    *oplog.Log
}

func NewImporter(app core.App, source robis.Source, log *oplog.Log) *Importer {
	return &Importer{App: app, Source: source, Log: log}
}

// startLayouts are the accepted shapes of race_start; the remote side
// is ISO-ish but not strict about the zone suffix.
var startLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseStart(raw string) (time.Time, error) {
	for _, layout := range startLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, &MalformedDataError{Field: "race_start", Value: raw}
}

// Import fetches the event and race exports for the API key and
// replaces the local slice inside a single transaction: either the full
// replacement commits or no local change is visible.
func (im *Importer) Import(ctx context.Context, apiKey string) (Summary, error) {
	if apiKey == "" {
		return Summary{}, robis.ErrLockedRace
	}
	slog.Debug("ingest.import.start")

	event, err := im.Source.EventExport(ctx, apiKey)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch event: %w", err)
	}
	race, err := im.Source.RaceExport(ctx, apiKey)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch race: %w", err)
	}

	band, err := ParseBand(race.Band)
	if err != nil {
		return Summary{}, err
	}
	start, err := parseStart(race.Start)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Name: event.Name + " - " + race.Name}
	err = im.App.RunInTransaction(func(tx core.App) error {
		if err := settings.SetAll(tx, map[string]string{
			settings.KeyName:      summary.Name,
			settings.KeyDateTZero: start.Format(time.RFC3339),
			settings.KeyOrganizer: event.Organiser,
			settings.KeyLimit:     fmt.Sprintf("%d", race.TimeLimit),
			settings.KeyBand:      string(band),
			settings.KeyAPIKey:    apiKey,
		}); err != nil {
			return err
		}

		deleted, err := clearRunners(tx)
		if err != nil {
			return err
		}
		summary.RunnersDeleted = deleted

		for _, cat := range race.Categories {
			created, err := ensureCategory(tx, cat.Name)
			if err != nil {
				return err
			}
			if created {
				summary.CategoriesCreated++
				im.Log.Appendf("Import", "adding category %s", cat.Name)
			}
		}

		for _, comp := range race.Competitors {
			if err := createRunner(tx, comp); err != nil {
				return err
			}
			summary.RunnersCreated++
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	slog.Info("ingest.import.done",
		"name", summary.Name,
		"runners", summary.RunnersCreated,
		"categories", summary.CategoriesCreated,
	)
	return summary, nil
}

func clearRunners(app core.App) (int, error) {
	records, err := app.FindAllRecords("runners")
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		if err := app.Delete(rec); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

// ensureCategory creates the category when no local one matches by
// name; imported categories start with an empty control list.
func ensureCategory(app core.App, name string) (bool, error) {
	existing, _ := app.FindFirstRecordByFilter("categories", "name = {:name}", dbx.Params{"name": name})
	if existing != nil {
		return false, nil
	}
	col, err := app.FindCollectionByNameOrId("categories")
	if err != nil {
		return false, err
	}
	rec := core.NewRecord(col)
	rec.Set("name", name)
	rec.Set("displayControls", "")
	return true, app.Save(rec)
}

func createRunner(app core.App, comp robis.Competitor) error {
	col, err := app.FindCollectionByNameOrId("runners")
	if err != nil {
		return err
	}
	rec := core.NewRecord(col)
	rec.Set("name", comp.LastName+", "+comp.FirstName)
	rec.Set("club", comp.Club)
	rec.Set("reg", comp.Index)
	rec.Set("call", "")
	si := 0
	if comp.SINumber != nil {
		si = *comp.SINumber
	}
	rec.Set("si", si)
	// first category matching by name; no match leaves the relation
	// empty, which is not an error
	if cat, _ := app.FindFirstRecordByFilter("categories", "name = {:name}", dbx.Params{"name": comp.Category}); cat != nil {
		rec.Set("category", cat.Id)
	}
	return app.Save(rec)
}
