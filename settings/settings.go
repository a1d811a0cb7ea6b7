// Package settings reads and writes the race basic info stored in the
// settings collection: event/race name, start time, organizer, time
// limit, band, and the active race API key.
package settings

import (
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// Keys of the basic info entries.
const (
	KeyName      = "name"
	KeyDateTZero = "date_tzero"
	KeyOrganizer = "organizer"
	KeyLimit     = "limit"
	KeyBand      = "band"
	KeyAPIKey    = "robis_api"
)

// Get returns the stored value for key, or "" when absent.
func Get(app core.App, key string) string {
	rec, err := app.FindFirstRecordByFilter("settings", "key = {:k}", dbx.Params{"k": key})
	if err != nil || rec == nil {
		return ""
	}
	return rec.GetString("value")
}

// Set upserts a single settings entry.
func Set(app core.App, key, value string) error {
	rec, _ := app.FindFirstRecordByFilter("settings", "key = {:k}", dbx.Params{"k": key})
	if rec == nil {
		col, err := app.FindCollectionByNameOrId("settings")
		if err != nil {
			return err
		}
		rec = core.NewRecord(col)
		rec.Set("key", key)
	}
	rec.Set("value", value)
	return app.Save(rec)
}

// SetAll upserts several entries; the caller decides transactionality.
func SetAll(app core.App, values map[string]string) error {
	for k, v := range values {
		if err := Set(app, k, v); err != nil {
			return err
		}
	}
	return nil
}

// APIKey returns the active race API key, "" when the race is locked or
// none was configured yet.
func APIKey(app core.App) string {
	return Get(app, KeyAPIKey)
}
