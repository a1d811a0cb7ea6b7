// Package oplog is the operator-visible action log: every export,
// import and readout outcome lands here with its raw remote response,
// mirrored to slog for the server console.
package oplog

import (
	"fmt"
	"log/slog"

	"github.com/pocketbase/pocketbase/core"
)

type Log struct {
	app core.App
}

func New(app core.App) *Log { return &Log{app: app} }

// Append records one entry. It never fails the calling operation; a
// storage error is only logged.
func (l *Log) Append(label, message string) {
	slog.Info("oplog.append", "label", label, "message", message)
	if l == nil || l.app == nil {
		return
	}
	col, err := l.app.FindCollectionByNameOrId("operator_log")
	if err != nil {
		slog.Warn("oplog.append.collection.error", "err", err)
		return
	}
	rec := core.NewRecord(col)
	rec.Set("label", label)
	rec.Set("message", message)
	if err := l.app.Save(rec); err != nil {
		slog.Warn("oplog.append.save.error", "err", err)
	}
}

// Appendf is Append with formatting.
func (l *Log) Appendf(label, format string, args ...any) {
	l.Append(label, fmt.Sprintf(format, args...))
}
