package robis

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoginStoresTokenAndSnapshot(t *testing.T) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/login/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("email"); got != "org@example.com" {
			t.Errorf("email query mismatch: %s", got)
		}
		http.SetCookie(w, &http.Cookie{Name: "authToken", Value: "tok-123"})
		w.Write([]byte(`{"userId": 7, "first_name": "Jan", "last_name": "Novak", "roles": ["organiser"]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Login(context.Background(), "org@example.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token != "tok-123" {
		t.Fatalf("token mismatch: %s", res.Token)
	}
	if res.Storage["userID"] != "7" || res.Storage["firstName"] != "Jan" {
		t.Fatalf("storage snapshot mismatch: %+v", res.Storage)
	}
	if res.Storage["rolesByIndex"] != `["organiser"]` {
		t.Fatalf("roles snapshot mismatch: %s", res.Storage["rolesByIndex"])
	}
}

func TestLoginWithoutCookieIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`)) // 200 but no authToken cookie
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	if _, err := c.Login(context.Background(), "a", "b"); !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("expected ErrAuthRejected, got %v", err)
	}
}

func TestLoginNonOKIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	if _, err := c.Login(context.Background(), "a", "b"); !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("expected ErrAuthRejected, got %v", err)
	}
}

func TestEventDetailSendsCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("authToken")
		if err != nil || ck.Value != "tok" {
			t.Errorf("missing authToken cookie")
		}
		w.Write([]byte(`{"id": 5, "event_name": "MCR", "races": [{"id": 0, "race_name": "-"}, {"id": 11, "race_name": "E1", "race_date": "2026-06-01", "race_api_key": "k1"}, {"id": 12, "race_name": "E2", "race_date": "2026-06-02", "race_api_key": null}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	detail, err := c.EventDetail(context.Background(), "tok", 5)
	if err != nil {
		t.Fatalf("event detail: %v", err)
	}
	if len(detail.Races) != 3 {
		t.Fatalf("expected 3 race rows incl. placeholder, got %d", len(detail.Races))
	}
	if detail.Races[1].APIKey == nil || *detail.Races[1].APIKey != "k1" {
		t.Fatalf("race 11 key mismatch")
	}
	if detail.Races[2].APIKey != nil {
		t.Fatalf("race 12 should have a null key")
	}
}

func TestRaceExportSendsAPIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Race-Api-Key") != "secret" {
			t.Errorf("missing Race-Api-Key header")
		}
		q := r.URL.Query()
		if q.Get("type") != "json" || q.Get("name") != "race" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"race_name": "E1", "race_start": "2026-06-01T10:00:00", "race_time_limit": 120, "race_band": "M2", "categories": [], "competitors": []}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	race, err := c.RaceExport(context.Background(), "secret")
	if err != nil {
		t.Fatalf("race export: %v", err)
	}
	if race.Band != "M2" || race.TimeLimit != 120 {
		t.Fatalf("race export mismatch: %+v", race)
	}
}

func TestWriteReportsStatusAndBodyVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("duplicate category"))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	res, err := c.PutRacePlan(context.Background(), "k", RacePlan{})
	if err != nil {
		t.Fatalf("transport error: %v", err)
	}
	if res.OK() {
		t.Fatal("expected failed write")
	}
	if res.Status != 400 || res.Body != "duplicate category" {
		t.Fatalf("verbatim outcome lost: %+v", res)
	}
}

func TestOChecklistUsesKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ochecklist/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Key") != "k2" {
			t.Errorf("missing Key header")
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	if _, err := c.OChecklist(context.Background(), "k2"); err != nil {
		t.Fatalf("ochecklist: %v", err)
	}
}
