package browserlink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pocketbase/pocketbase/tests"

	_ "robis-bridge/migrations"
	"robis-bridge/nav"
	"robis-bridge/robis"
	"robis-bridge/session"
)

type stubSource struct{}

func (stubSource) Events(ctx context.Context, token string, year int) ([]robis.Event, error) {
	return nil, nil
}

func (stubSource) EventDetail(ctx context.Context, token string, id int) (robis.EventDetail, error) {
	key := "key-11"
	return robis.EventDetail{Races: []robis.RaceRef{
		{ID: 0, Name: "placeholder"},
		{ID: 11, Name: "E1", APIKey: &key},
	}}, nil
}

func (stubSource) EventExport(ctx context.Context, apiKey string) (robis.EventExport, error) {
	return robis.EventExport{}, nil
}

func (stubSource) RaceExport(ctx context.Context, apiKey string) (robis.RaceExport, error) {
	return robis.RaceExport{}, nil
}

func dialServer(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = srv.Handle(w, r)
	}))
	t.Cleanup(hs.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) Frame {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := ws.ReadJSON(&f); err != nil {
		t.Fatal(err)
	}
	return f
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, ws *websocket.Conn, frameType string) Frame {
	t.Helper()
	for i := 0; i < 10; i++ {
		f := readFrame(t, ws)
		if f.Type == frameType {
			return f
		}
	}
	t.Fatalf("no %q frame received", frameType)
	return Frame{}
}

func TestConnectSendsInitialState(t *testing.T) {
	tracker := nav.NewTracker(stubSource{}, "https://robis.test", func() string { return "tok" })
	defer tracker.Close()
	srv := NewServer(tracker, nil)

	ws := dialServer(t, srv)

	f := readUntil(t, ws, TypeState)
	if f.State == nil || f.State.Kind != nav.KindOutside {
		t.Fatalf("expected initial outside state, got %+v", f.State)
	}
}

func TestURLFrameRepliesWithClassification(t *testing.T) {
	tracker := nav.NewTracker(stubSource{}, "https://robis.test", func() string { return "tok" })
	defer tracker.Close()
	srv := NewServer(tracker, nil)

	ws := dialServer(t, srv)
	readUntil(t, ws, TypeState)

	if err := ws.WriteJSON(Frame{Type: TypeURL, URL: "https://robis.test/event/5"}); err != nil {
		t.Fatal(err)
	}
	f := readUntil(t, ws, TypeState)
	if f.State.Kind != nav.KindEventSelected || f.State.EventID != 5 {
		t.Fatalf("expected event_selected for event 5, got %+v", f.State)
	}
}

func TestOffSiteURLTriggersNavigate(t *testing.T) {
	tracker := nav.NewTracker(stubSource{}, "https://robis.test", func() string { return "tok" })
	defer tracker.Close()
	srv := NewServer(tracker, nil)

	ws := dialServer(t, srv)
	readUntil(t, ws, TypeState)

	if err := ws.WriteJSON(Frame{Type: TypeURL, URL: "https://elsewhere.example/"}); err != nil {
		t.Fatal(err)
	}
	f := readUntil(t, ws, TypeNavigate)
	if f.URL != "https://robis.test" {
		t.Fatalf("expected redirect to site root, got %q", f.URL)
	}
}

func TestDisconnectDetachesConnection(t *testing.T) {
	tracker := nav.NewTracker(stubSource{}, "https://robis.test", func() string { return "tok" })
	defer tracker.Close()
	srv := NewServer(tracker, nil)

	ws := dialServer(t, srv)
	readUntil(t, ws, TypeState)
	ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		srv.mu.Lock()
		detached := srv.conn == nil
		srv.mu.Unlock()
		if detached {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("dead connection still attached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// a redirect after the disconnect has no browser to target and must
	// simply classify
	if s := tracker.Observe("https://elsewhere.example/"); s.Kind != nav.KindOutside {
		t.Fatalf("kind = %s", s.Kind)
	}

	// a fresh connection takes over redirects again
	ws2 := dialServer(t, srv)
	readUntil(t, ws2, TypeState)
	if err := ws2.WriteJSON(Frame{Type: TypeURL, URL: "https://robis.test/"}); err != nil {
		t.Fatal(err)
	}
	readUntil(t, ws2, TypeState)
	if err := ws2.WriteJSON(Frame{Type: TypeURL, URL: "https://elsewhere.example/"}); err != nil {
		t.Fatal(err)
	}
	f := readUntil(t, ws2, TypeNavigate)
	if f.URL != "https://robis.test" {
		t.Fatalf("redirect url = %q", f.URL)
	}
}

func TestStorageSnapshotReplayedOnConnect(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	store := session.NewStore(app)
	if err := store.Set(session.Credential{
		Token:   "tok",
		Storage: map[string]string{"userID": "42", "firstName": "Jan"},
	}); err != nil {
		t.Fatal(err)
	}

	tracker := nav.NewTracker(stubSource{}, "https://robis.test", func() string { return "tok" })
	defer tracker.Close()
	srv := NewServer(tracker, store)

	ws := dialServer(t, srv)

	f := readUntil(t, ws, TypeStorage)
	if f.Values["userID"] != "42" || f.Values["firstName"] != "Jan" {
		t.Fatalf("snapshot not replayed: %+v", f.Values)
	}
}
