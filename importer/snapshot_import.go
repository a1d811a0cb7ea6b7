// Package importer restores a race-day database snapshot from JSON.
// Intended for moving an event to a replacement machine: records merge
// by explicit id, so re-importing the same snapshot is safe.
package importer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
)

type collectionsPayload struct {
	Settings   []map[string]any `json:"settings"`
	Categories []map[string]any `json:"categories"`
	Controls   []map[string]any `json:"controls"`
	Runners    []map[string]any `json:"runners"`
	Punches    []map[string]any `json:"punches"`
	PluginKV   []map[string]any `json:"plugin_kv,omitempty"`
}

type Snapshot struct {
	Version      string             `json:"version"`
	SnapshotTime string             `json:"snapshotTime"`
	Collections  collectionsPayload `json:"collections"`
}

// ImportFromFile loads a snapshot JSON and merges it into the database.
// Collections are imported in referential order so relation fields
// resolve (categories before runners, runners before punches).
func ImportFromFile(app core.App, path string) error {
	start := time.Now()
	slog.Info("import.snapshot.start", "path", path)
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	if snap.Version == "" || !strings.HasPrefix(snap.Version, "robis-bridge@") {
		slog.Warn("import.snapshot.version.unexpected", "version", snap.Version)
	}

	ordered := []struct {
		name string
		rows []map[string]any
	}{
		{"settings", snap.Collections.Settings},
		{"categories", snap.Collections.Categories},
		{"controls", snap.Collections.Controls},
		{"runners", snap.Collections.Runners},
		{"punches", snap.Collections.Punches},
		{"plugin_kv", snap.Collections.PluginKV},
	}

	counts := map[string]int{}
	err = app.RunInTransaction(func(txApp core.App) error {
		for _, c := range ordered {
			if len(c.rows) == 0 {
				continue
			}
			n, err := importCollection(txApp, c.name, c.rows)
			if err != nil {
				return err
			}
			counts[c.name] = n
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("import.snapshot.done", "counts", counts, "duration", time.Since(start).String())
	return nil
}

func importCollection(app core.App, collection string, rows []map[string]any) (int, error) {
	for _, row := range rows {
		idVal, ok := row["id"]
		if !ok {
			return 0, fmt.Errorf("row missing id in %s", collection)
		}
		id := fmt.Sprintf("%v", idVal)
		delete(row, "id")
		if err := saveWithId(app, collection, id, row); err != nil {
			return 0, fmt.Errorf("save %s/%s: %w", collection, id, err)
		}
	}
	return len(rows), nil
}

func saveWithId(app core.App, colName, id string, fields map[string]any) error {
	col, err := app.FindCollectionByNameOrId(colName)
	if err != nil {
		return err
	}
	rec, err := app.FindRecordById(colName, id)
	if err != nil || rec == nil {
		rec = core.NewRecord(col)
		rec.Id = id
	}
	for k, v := range fields {
		rec.Set(k, v)
	}
	return app.Save(rec)
}
