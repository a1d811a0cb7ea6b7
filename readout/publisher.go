// Package readout incrementally pushes per-punch result snapshots to
// ROBis as readouts occur. Publications are fire-and-forget: dispatch
// is asynchronous, outcomes land in the operator log, failures are not
// retried and never block the next readout.
package readout

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"robis-bridge/export"
	"robis-bridge/oplog"
	"robis-bridge/results"
	"robis-bridge/robis"
	"robis-bridge/settings"
)

type Publisher struct {
	App    core.App
	Writer robis.Writer
	Log    *oplog.Log

	// wg tracks in-flight publications so tests and shutdown can wait
	// for the async sends to settle.
	wg sync.WaitGroup
}

func NewPublisher(app core.App, writer robis.Writer, log *oplog.Log) *Publisher {
	return &Publisher{App: app, Writer: writer, Log: log}
}

// Publish pushes the current result of the runner owning the SI chip.
// It is a no-op when no race API key is configured. Only the owning
// runner's category is recomputed, and the upload is filtered down to
// that runner's registration index; reg is the identity, SI numbers
// may be reassigned at check-in.
func (p *Publisher) Publish(si int) {
	key := settings.APIKey(p.App)
	if key == "" {
		return
	}

	runner, err := p.App.FindFirstRecordByFilter("runners", "si = {:si}", dbx.Params{"si": si})
	if err != nil || runner == nil {
		slog.Debug("readout.publish.unknown_si", "si", si)
		return
	}
	catID := runner.GetString("category")
	if catID == "" {
		return
	}
	cat, err := p.App.FindRecordById("categories", catID)
	if err != nil {
		slog.Warn("readout.publish.category.error", "si", si, "err", err)
		return
	}

	rs, err := results.ForCategory(p.App, cat.GetString("name"))
	if err != nil {
		slog.Warn("readout.publish.results.error", "si", si, "err", err)
		return
	}
	reg := runner.GetString("reg")
	filtered := rs[:0]
	for _, r := range rs {
		if r.Reg == reg {
			filtered = append(filtered, r)
		}
	}
	p.dispatch(key, export.Entries(filtered))
}

// PublishAll recomputes every category and pushes every competitor's
// current result. No-op without an API key.
func (p *Publisher) PublishAll() {
	key := settings.APIKey(p.App)
	if key == "" {
		return
	}
	names, err := results.CategoryNames(p.App)
	if err != nil {
		slog.Warn("readout.publishAll.categories.error", "err", err)
		return
	}
	for _, name := range names {
		rs, err := results.ForCategory(p.App, name)
		if err != nil {
			slog.Warn("readout.publishAll.results.error", "category", name, "err", err)
			continue
		}
		if len(rs) == 0 {
			continue
		}
		p.dispatch(key, export.Entries(rs))
	}
}

// dispatch sends one live payload in the background. No ordering is
// guaranteed between publications; the remote service orders by its
// own receipt time.
func (p *Publisher) dispatch(key string, entries []robis.ResultEntry) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		res, err := p.Writer.PostLiveResults(context.Background(), key, entries)
		if err != nil {
			p.Log.Appendf("Live results", "ERROR: %v", err)
			return
		}
		p.Log.Appendf("Live results", "%d %s", res.Status, res.Body)
	}()
}

// Wait blocks until all dispatched publications finished.
func (p *Publisher) Wait() { p.wg.Wait() }
