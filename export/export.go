// Package export pushes the local startlist, race plan, and computed
// final results to ROBis, keyed by the active race API key.
package export

import (
	"context"
	"log/slog"

	"github.com/pocketbase/pocketbase/core"

	"robis-bridge/oplog"
	"robis-bridge/results"
	"robis-bridge/robis"
	"robis-bridge/settings"
)

type Exporter struct {
	App    core.App
	Writer robis.Writer
	Log    *oplog.Log
}

func NewExporter(app core.App, writer robis.Writer, log *oplog.Log) *Exporter {
	return &Exporter{App: app, Writer: writer, Log: log}
}

func (e *Exporter) apiKey() (string, error) {
	key := settings.APIKey(e.App)
	if key == "" {
		e.Log.Append("Export", "race is locked, nothing sent")
		return "", robis.ErrLockedRace
	}
	return key, nil
}

// report logs one write call's raw outcome verbatim; a transport error
// is logged in its place. Remote failures never roll anything back and
// are never retried.
func (e *Exporter) report(label string, res robis.WriteResult, err error) {
	if err != nil {
		e.Log.Appendf(label, "ERROR: %v", err)
		slog.Warn("export.write.error", "label", label, "err", err)
		return
	}
	e.Log.Appendf(label, "%d %s", res.Status, res.Body)
}

// PushStartlist uploads the startlist and, independently, the race
// plan (categories + control aliases). A failure in one call does not
// block the other.
func (e *Exporter) PushStartlist(ctx context.Context) error {
	key, err := e.apiKey()
	if err != nil {
		return err
	}

	startlist, err := BuildStartlist(e.App)
	if err != nil {
		return err
	}
	res, werr := e.Writer.PostStartlist(ctx, key, startlist)
	e.report("Startlist", res, werr)

	plan, err := BuildRacePlan(e.App)
	if err != nil {
		return err
	}
	res, werr = e.Writer.PutRacePlan(ctx, key, plan)
	e.report("Controls", res, werr)
	return nil
}

// PushResults uploads the computed final results of every category.
func (e *Exporter) PushResults(ctx context.Context) error {
	key, err := e.apiKey()
	if err != nil {
		return err
	}

	names, err := results.CategoryNames(e.App)
	if err != nil {
		return err
	}
	var all []results.Result
	for _, name := range names {
		rs, err := results.ForCategory(e.App, name)
		if err != nil {
			return err
		}
		all = append(all, rs...)
	}

	res, werr := e.Writer.PostResults(ctx, key, Entries(all))
	e.report("Final results", res, werr)
	return nil
}
