package nav

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"robis-bridge/robis"
)

const testSite = "https://rob-is.cz"

func strptr(s string) *string { return &s }

type fakeSource struct {
	mu      sync.Mutex
	details map[int]robis.EventDetail
	errors  map[int]error
	gates   map[int]chan struct{} // optional: fetch blocks until gate closes
	calls   []int
	events  []robis.Event
}

func (f *fakeSource) Events(ctx context.Context, token string, year int) ([]robis.Event, error) {
	return f.events, nil
}

func (f *fakeSource) EventDetail(ctx context.Context, token string, id int) (robis.EventDetail, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	gate := f.gates[id]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return robis.EventDetail{}, ctx.Err()
		}
	}
	if err := f.errors[id]; err != nil {
		return robis.EventDetail{}, err
	}
	return f.details[id], nil
}

func (f *fakeSource) EventExport(ctx context.Context, apiKey string) (robis.EventExport, error) {
	return robis.EventExport{}, nil
}

func (f *fakeSource) RaceExport(ctx context.Context, apiKey string) (robis.RaceExport, error) {
	return robis.RaceExport{}, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeBrowser struct {
	mu   sync.Mutex
	urls []string
}

func (b *fakeBrowser) NavigateTo(url string) {
	b.mu.Lock()
	b.urls = append(b.urls, url)
	b.mu.Unlock()
}

func (b *fakeBrowser) redirects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.urls)
}

// detailWithPlaceholder wraps candidate races with the index-0
// placeholder the remote API always prepends.
func detailWithPlaceholder(races ...robis.RaceRef) robis.EventDetail {
	all := append([]robis.RaceRef{{ID: 0, Name: "-"}}, races...)
	return robis.EventDetail{Races: all}
}

func newTestTracker(src robis.Source) (*Tracker, chan State) {
	tr := NewTracker(src, testSite, func() string { return "tok" })
	states := make(chan State, 16)
	tr.OnChange(func(s State) { states <- s })
	return tr, states
}

func waitKind(t *testing.T, states chan State, kind Kind) State {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-states:
			if s.Kind == kind {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", kind)
		}
	}
}

func TestParseLocation(t *testing.T) {
	cases := []struct {
		raw  string
		want Location
	}{
		{"https://example.com/whatever", Location{}},
		{"not a url at all ://", Location{}},
		{"https://rob-is.cz/", Location{OnSite: true}},
		{"https://rob-is.cz/news/42", Location{OnSite: true}},
		{"https://rob-is.cz/event/5", Location{OnSite: true, EventID: 5}},
		{"https://rob-is.cz/event/5/", Location{OnSite: true, EventID: 5}},
		{"https://rob-is.cz/event/5/race/11", Location{OnSite: true, EventID: 5, RaceID: 11}},
		{"https://rob-is.cz/event/5?race=12", Location{OnSite: true, EventID: 5, RaceID: 12}},
		{"https://rob-is.cz/event/5/startlist", Location{OnSite: true}},
	}
	for _, c := range cases {
		if got := ParseLocation(c.raw, "rob-is.cz"); got != c.want {
			t.Errorf("ParseLocation(%q) = %+v, want %+v", c.raw, got, c.want)
		}
	}
}

func TestOutsideRedirectsOncePerMismatch(t *testing.T) {
	src := &fakeSource{}
	tr, _ := newTestTracker(src)
	browser := &fakeBrowser{}
	tr.Attach(browser)

	if s := tr.Observe("https://elsewhere.example/start"); s.Kind != KindOutside {
		t.Fatalf("kind = %s", s.Kind)
	}
	tr.Observe("https://elsewhere.example/other")
	if got := browser.redirects(); got != 1 {
		t.Fatalf("expected a single redirect for one mismatch streak, got %d", got)
	}

	tr.Observe(testSite + "/")
	tr.Observe("https://elsewhere.example/again")
	if got := browser.redirects(); got != 2 {
		t.Fatalf("expected a new redirect after returning on-site, got %d", got)
	}
}

func TestRaceResolution(t *testing.T) {
	src := &fakeSource{details: map[int]robis.EventDetail{
		5: detailWithPlaceholder(
			robis.RaceRef{ID: 11, Name: "E1", APIKey: strptr("key-11")},
			robis.RaceRef{ID: 12, Name: "E2", APIKey: nil},
		),
	}}
	tr, states := newTestTracker(src)

	if s := tr.Observe(testSite + "/event/5/race/11"); s.Kind != KindEventSelected {
		t.Fatalf("pre-fetch kind = %s", s.Kind)
	}

	s := waitKind(t, states, KindRaceImportable)
	if s.RaceID != 11 {
		t.Fatalf("race id = %d", s.RaceID)
	}
	if key, ok := tr.DownloadKey(); !ok || key != "key-11" {
		t.Fatalf("download key = %q ok=%v", key, ok)
	}

	if s := tr.Observe(testSite + "/event/5/race/12"); s.Kind != KindRaceLocked {
		t.Fatalf("locked race kind = %s", s.Kind)
	}
	if _, ok := tr.DownloadKey(); ok {
		t.Fatal("locked race must not expose a download key")
	}

	// unknown race id falls back to event-selected
	if s := tr.Observe(testSite + "/event/5/race/99"); s.Kind != KindEventSelected {
		t.Fatalf("unknown race kind = %s", s.Kind)
	}

	if got := src.callCount(); got != 1 {
		t.Fatalf("race list refetched within the same event: %d calls", got)
	}
}

func TestSoleRaceAutoSelects(t *testing.T) {
	src := &fakeSource{details: map[int]robis.EventDetail{
		7: detailWithPlaceholder(robis.RaceRef{ID: 21, Name: "only", APIKey: strptr("key-21")}),
	}}
	tr, states := newTestTracker(src)

	tr.Observe(testSite + "/event/7")
	s := waitKind(t, states, KindRaceImportable)
	if s.RaceID != 21 || s.APIKey != "key-21" {
		t.Fatalf("sole race not auto-selected: %+v", s)
	}
}

func TestFetchFailureMeansNotAdministrator(t *testing.T) {
	src := &fakeSource{errors: map[int]error{9: fmt.Errorf("status 403")}}
	tr, states := newTestTracker(src)

	tr.Observe(testSite + "/event/9/race/1")
	s := waitKind(t, states, KindNotAdministrator)
	if s.EventID != 9 {
		t.Fatalf("event id = %d", s.EventID)
	}
	if _, ok := tr.DownloadKey(); ok {
		t.Fatal("not-administrator state must not authorize downloads")
	}
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	src := &fakeSource{
		details: map[int]robis.EventDetail{
			1: detailWithPlaceholder(robis.RaceRef{ID: 10, Name: "old", APIKey: strptr("old-key")}),
			2: detailWithPlaceholder(robis.RaceRef{ID: 20, Name: "new", APIKey: strptr("new-key")}),
		},
		gates: map[int]chan struct{}{1: gate},
	}
	tr, states := newTestTracker(src)

	tr.Observe(testSite + "/event/1/race/10")
	tr.Observe(testSite + "/event/2/race/20")

	s := waitKind(t, states, KindRaceImportable)
	if s.APIKey != "new-key" {
		t.Fatalf("expected the newer event's key, got %q", s.APIKey)
	}

	// release the superseded fetch; its result must be discarded
	close(gate)
	time.Sleep(50 * time.Millisecond)
	if key, ok := tr.DownloadKey(); !ok || key != "new-key" {
		t.Fatalf("stale fetch overwrote the selection: key=%q ok=%v", key, ok)
	}
	tr.Close()
}

func TestFetchAfterLeavingEventKeepsClassification(t *testing.T) {
	cases := []struct {
		name string
		url  string
		kind Kind
	}{
		{"off-site", "https://elsewhere.example/", KindOutside},
		{"on-site browsing", testSite + "/news/1", KindBrowsing},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			gate := make(chan struct{})
			src := &fakeSource{
				details: map[int]robis.EventDetail{
					1: detailWithPlaceholder(robis.RaceRef{ID: 10, Name: "sole", APIKey: strptr("sole-key")}),
				},
				gates: map[int]chan struct{}{1: gate},
			}
			tr, _ := newTestTracker(src)

			tr.Observe(testSite + "/event/1")
			if s := tr.Observe(c.url); s.Kind != c.kind {
				t.Fatalf("kind = %s", s.Kind)
			}

			// the fetch completes only after the browser left the event;
			// it must not reclassify, and above all must not authorize
			close(gate)
			time.Sleep(50 * time.Millisecond)
			if s := tr.State(); s.Kind != c.kind {
				t.Fatalf("late fetch reclassified to %s", s.Kind)
			}
			if key, ok := tr.DownloadKey(); ok {
				t.Fatalf("late fetch authorized a download: key=%q", key)
			}

			// the cached list still resolves on the next visit
			tr.Observe(testSite + "/event/1")
			if key, ok := tr.DownloadKey(); !ok || key != "sole-key" {
				t.Fatalf("cached race list lost: key=%q ok=%v", key, ok)
			}
			tr.Close()
		})
	}
}

func TestCandidatesFilterAndSort(t *testing.T) {
	src := &fakeSource{events: []robis.Event{
		{ID: 1, Name: "late", DateStart: "2026-09-01"},
		{ID: 2, Name: "closed", DateStart: "2026-01-01", Closed: true},
		{ID: 3, Name: "early", DateStart: "2026-03-15"},
	}}
	items, err := Candidates(context.Background(), src, "tok", 2026)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("closed event not filtered: %d items", len(items))
	}
	if items[0].Name != "early" || items[1].Name != "late" {
		t.Fatalf("events not sorted ascending by date: %+v", items)
	}
}
