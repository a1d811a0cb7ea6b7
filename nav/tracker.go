// Package nav tracks where the organizer currently is on the ROBis site
// and decides whether the download action is valid there. It is a small
// state machine driven by URL-change notifications from the embedded
// browser surface.
package nav

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"robis-bridge/robis"
)

// Kind enumerates the tracker states.
type Kind string

const (
	KindOutside          Kind = "outside"           // not on the ROBis site at all
	KindBrowsing         Kind = "browsing"          // on-site, no competition selected
	KindEventSelected    Kind = "event_selected"    // event page, race not resolved (yet)
	KindRaceImportable   Kind = "race_importable"   // race resolved with a usable API key
	KindRaceLocked       Kind = "race_locked"       // race resolved, API key null
	KindNotAdministrator Kind = "not_administrator" // race list fetch refused
)

// State is the tracker's published classification.
type State struct {
	Kind    Kind   `json:"kind"`
	EventID int    `json:"eventId,omitempty"`
	RaceID  int    `json:"raceId,omitempty"`
	APIKey  string `json:"-"`
}

// Race is one candidate race of the selected event (remote placeholder
// at index 0 already removed). A nil key means the race is locked.
type Race struct {
	ID   int
	Name string
	Date string
	Key  *string
}

// Browser is what the tracker may ask of the embedded browser surface.
type Browser interface {
	NavigateTo(url string)
}

// Tracker classifies observed URLs into download-gating states. Race
// lists are fetched in the background; each fetch carries a generation
// token and stale completions are discarded, so a superseded event can
// never authorize a download.
type Tracker struct {
	source   robis.Source
	token    func() string
	siteURL  string
	siteHost string

	mu       sync.Mutex
	browser  Browser
	listener func(State)
	gen      int
	cancel   context.CancelFunc
	eventID  int
	races    []Race
	fetched  bool
	notAdmin bool
	outside  bool
	last     Location
	state    State
}

// NewTracker builds a tracker for the given site. token supplies the
// current auth cookie on each fetch so re-logins take effect without
// rebuilding the tracker.
func NewTracker(source robis.Source, siteURL string, token func() string) *Tracker {
	host := ""
	if u, err := url.Parse(siteURL); err == nil {
		host = u.Host
	}
	return &Tracker{
		source:   source,
		token:    token,
		siteURL:  siteURL,
		siteHost: host,
		state:    State{Kind: KindOutside},
	}
}

// Attach sets the browser collaborator; a nil browser detaches.
func (t *Tracker) Attach(b Browser) {
	t.mu.Lock()
	t.browser = b
	t.mu.Unlock()
}

// OnChange registers the listener notified after every classification.
func (t *Tracker) OnChange(fn func(State)) {
	t.mu.Lock()
	t.listener = fn
	t.mu.Unlock()
}

// State returns the current classification.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// DownloadKey returns the API key authorized for download, and whether
// one is currently resolved. Only an importable race yields a key.
func (t *Tracker) DownloadKey() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Kind != KindRaceImportable || t.state.APIKey == "" {
		return "", false
	}
	return t.state.APIKey, true
}

// Observe feeds one URL-change notification through the state machine
// and returns the resulting classification.
func (t *Tracker) Observe(rawURL string) State {
	loc := ParseLocation(rawURL, t.siteHost)

	t.mu.Lock()
	var redirect Browser
	if !loc.OnSite {
		if !t.outside {
			// redirect to the site root exactly once per mismatch
			redirect = t.browser
		}
		t.outside = true
		t.last = loc
		t.state = State{Kind: KindOutside}
	} else {
		t.outside = false
		t.last = loc
		switch {
		case loc.EventID == 0:
			t.state = State{Kind: KindBrowsing}
		case loc.EventID != t.eventID:
			t.startFetchLocked(loc.EventID)
			t.state = State{Kind: KindEventSelected, EventID: loc.EventID}
		default:
			t.state = t.resolveLocked(loc)
		}
	}
	state := t.state
	listener := t.listener
	t.mu.Unlock()

	if redirect != nil {
		redirect.NavigateTo(t.siteURL)
	}
	if listener != nil {
		listener(state)
	}
	return state
}

// startFetchLocked begins a race-list fetch for a newly selected event.
// The previous in-flight fetch, if any, is cancelled; its late result
// would fail the generation check anyway.
func (t *Tracker) startFetchLocked(eventID int) {
	if t.cancel != nil {
		t.cancel()
	}
	t.gen++
	t.eventID = eventID
	t.races = nil
	t.fetched = false
	t.notAdmin = false

	gen := t.gen
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.fetchRaces(ctx, gen, eventID)
}

func (t *Tracker) fetchRaces(ctx context.Context, gen, eventID int) {
	detail, err := t.source.EventDetail(ctx, t.token(), eventID)

	t.mu.Lock()
	if gen != t.gen {
		// superseded by a newer event selection
		t.mu.Unlock()
		slog.Debug("nav.fetch.stale", "eventId", eventID, "gen", gen)
		return
	}
	t.fetched = true
	if err != nil {
		slog.Warn("nav.fetch.error", "eventId", eventID, "err", err)
		t.notAdmin = true
		t.races = nil
	} else {
		// index 0 is always a remote placeholder, never a candidate
		if len(detail.Races) > 0 {
			for _, r := range detail.Races[1:] {
				t.races = append(t.races, Race{ID: r.ID, Name: r.Name, Date: r.Date, Key: r.APIKey})
			}
		}
	}
	if !t.last.OnSite || t.last.EventID != eventID {
		// the browser moved on while the fetch was in flight; the list
		// stays cached for the next visit, but a completion must never
		// reclassify a location that no longer names this event
		t.mu.Unlock()
		return
	}
	t.state = t.resolveLocked(t.last)
	state := t.state
	listener := t.listener
	t.mu.Unlock()

	if listener != nil {
		listener(state)
	}
}

// resolveLocked classifies the last observed location against the
// cached race list of the current event.
func (t *Tracker) resolveLocked(loc Location) State {
	if t.notAdmin {
		return State{Kind: KindNotAdministrator, EventID: loc.EventID}
	}
	if !t.fetched {
		return State{Kind: KindEventSelected, EventID: loc.EventID}
	}
	race, ok := t.candidateLocked(loc.RaceID)
	if !ok {
		return State{Kind: KindEventSelected, EventID: loc.EventID}
	}
	if race.Key == nil {
		return State{Kind: KindRaceLocked, EventID: loc.EventID, RaceID: race.ID}
	}
	return State{Kind: KindRaceImportable, EventID: loc.EventID, RaceID: race.ID, APIKey: *race.Key}
}

// candidateLocked picks the race addressed by the URL. An event with a
// single candidate race resolves even without an explicit race segment.
func (t *Tracker) candidateLocked(raceID int) (Race, bool) {
	if raceID == 0 {
		if len(t.races) == 1 {
			return t.races[0], true
		}
		return Race{}, false
	}
	for _, r := range t.races {
		if r.ID == raceID {
			return r, true
		}
	}
	return Race{}, false
}

// Close cancels any in-flight race-list fetch. Called when the browser
// surface goes away.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}
