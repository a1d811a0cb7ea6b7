package robis

import "context"

// Source abstracts the read side of the ROBis API for consumers that
// should not care about transport (navigation tracker, import pipeline,
// tests).
type Source interface {
	Events(ctx context.Context, token string, year int) ([]Event, error)
	EventDetail(ctx context.Context, token string, id int) (EventDetail, error)
	EventExport(ctx context.Context, apiKey string) (EventExport, error)
	RaceExport(ctx context.Context, apiKey string) (RaceExport, error)
}

var _ Source = (*Client)(nil)

// Writer abstracts the write side for the export and readout paths.
type Writer interface {
	PostStartlist(ctx context.Context, apiKey string, entries []StartlistEntry) (WriteResult, error)
	PutRacePlan(ctx context.Context, apiKey string, plan RacePlan) (WriteResult, error)
	PostResults(ctx context.Context, apiKey string, entries []ResultEntry) (WriteResult, error)
	PostLiveResults(ctx context.Context, apiKey string, entries []ResultEntry) (WriteResult, error)
}

var _ Writer = (*Client)(nil)
