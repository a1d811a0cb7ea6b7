// Package realtime pushes navigation-state changes to PocketBase
// realtime (SSE) subscribers so the operator UI can enable or disable
// the import button without polling.
package realtime

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/subscriptions"
	"golang.org/x/sync/errgroup"

	"robis-bridge/nav"
)

const (
	// NavStateTopic is the realtime subscription name carrying state frames.
	NavStateTopic = "nav_state"

	// clientsChunkSize mirrors the default PocketBase chunk size to avoid
	// sending a message to too many clients in a single goroutine.
	clientsChunkSize = 300
)

// Bind wires the tracker's change notifications to the broadcast.
func Bind(app core.App, tracker *nav.Tracker) {
	tracker.OnChange(func(st nav.State) {
		BroadcastState(app, st)
	})
}

// BroadcastState pushes one classification to all subscribed clients.
func BroadcastState(app core.App, st nav.State) {
	payload := map[string]any{
		"kind":      string(st.Kind),
		"eventId":   st.EventID,
		"raceId":    st.RaceID,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := notify(app, NavStateTopic, payload); err != nil {
		slog.Warn("realtime.navstate.broadcast_error", "err", err)
	}
}

func notify(app core.App, subscription string, data any) error {
	rawData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	message := subscriptions.Message{
		Name: subscription,
		Data: rawData,
	}

	chunks := app.SubscriptionsBroker().ChunkedClients(clientsChunkSize)

	group := new(errgroup.Group)
	for _, chunk := range chunks {
		group.Go(func() error {
			for _, client := range chunk {
				if !client.HasSubscription(subscription) {
					continue
				}
				client.Send(message)
			}
			return nil
		})
	}

	return group.Wait()
}
