package nav

import (
	"net/url"
	"regexp"
	"strconv"
)

// Location is the parsed navigation value object the tracker consumes.
// Parsing happens once per URL-change notification; every transition
// after that works off these three fields.
type Location struct {
	OnSite  bool
	EventID int // 0 = no event page
	RaceID  int // 0 = no race segment
}

var eventPath = regexp.MustCompile(`^/event/(\d+)(?:/race/(\d+))?/?$`)

// ParseLocation classifies a raw browser URL against the site host.
// Race selection is carried either as a path segment or a ?race= query.
func ParseLocation(raw, siteHost string) Location {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}
	}
	if u.Host == "" || u.Host != siteHost {
		return Location{}
	}
	loc := Location{OnSite: true}
	m := eventPath.FindStringSubmatch(u.Path)
	if m == nil {
		return loc
	}
	loc.EventID, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		loc.RaceID, _ = strconv.Atoi(m[2])
	} else if q := u.Query().Get("race"); q != "" {
		loc.RaceID, _ = strconv.Atoi(q)
	}
	return loc
}
