package nav

import (
	"context"
	"sort"
	"time"

	"robis-bridge/robis"
)

// EventItem is one selectable competition.
type EventItem struct {
	ID   int       `json:"id"`
	Name string    `json:"name"`
	Date time.Time `json:"date"`
}

// Candidates lists this year's events the organizer can pick from:
// closed events are dropped, the rest sorted ascending by start date.
func Candidates(ctx context.Context, source robis.Source, token string, year int) ([]EventItem, error) {
	events, err := source.Events(ctx, token, year)
	if err != nil {
		return nil, err
	}
	out := make([]EventItem, 0, len(events))
	for _, ev := range events {
		if ev.Closed {
			continue
		}
		date, err := time.Parse("2006-01-02", ev.DateStart)
		if err != nil {
			// tolerate a malformed date; the entry still lists, at the front
			date = time.Time{}
		}
		out = append(out, EventItem{ID: ev.ID, Name: ev.Name, Date: date})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
