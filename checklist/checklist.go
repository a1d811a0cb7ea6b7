// Package checklist runs the periodic O-Checklist consistency poll
// against ROBis. The response body is not interpreted yet; the poll
// keeps the server-side check-in view warm and surfaces connectivity
// problems early.
package checklist

import (
	"context"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase/core"

	"robis-bridge/settings"
)

// Fetcher is the one ROBis call the poller needs.
type Fetcher interface {
	OChecklist(ctx context.Context, apiKey string) ([]byte, error)
}

// StartLoop polls the O-Checklist endpoint on the given interval while
// a race API key is configured. Returns immediately; the loop stops on
// context cancellation.
func StartLoop(ctx context.Context, app core.App, fetcher Fetcher, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			pollOnce(ctx, app, fetcher)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func pollOnce(ctx context.Context, app core.App, fetcher Fetcher) {
	key := settings.APIKey(app)
	if key == "" {
		return
	}
	body, err := fetcher.OChecklist(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Debug("checklist.poll.error", "err", err)
		return
	}
	slog.Debug("checklist.poll.done", "bytes", len(body))
}
