package robis

// Wire structs aligned with the ROBis JSON schema.
// Field names match the remote payloads exactly.

// Event is one entry of GET /api/event/?year=&period=all.
type Event struct {
	ID        int    `json:"id"`
	Name      string `json:"event_name"`
	DateStart string `json:"event_date_start"` // YYYY-MM-DD
	Closed    bool   `json:"event_closed"`
}

// EventDetail is the admin view from GET /api/event/edit/?id=.
// Races always carries a placeholder entry at index 0 which is not a
// real race; callers must slice it off.
type EventDetail struct {
	ID    int       `json:"id"`
	Name  string    `json:"event_name"`
	Races []RaceRef `json:"races"`
}

// RaceRef is a race row inside EventDetail. APIKey is null for races
// the remote side has locked (null means locked, not absent).
type RaceRef struct {
	ID     int     `json:"id"`
	Name   string  `json:"race_name"`
	Date   string  `json:"race_date"` // YYYY-MM-DD
	APIKey *string `json:"race_api_key"`
}

// EventExport is GET /api/?type=json&name=event.
type EventExport struct {
	Name      string `json:"event_name"`
	Organiser string `json:"event_organiser"`
}

// RaceExport is GET /api/?type=json&name=race.
type RaceExport struct {
	Name        string           `json:"race_name"`
	Start       string           `json:"race_start"`
	TimeLimit   int              `json:"race_time_limit"`
	Band        string           `json:"race_band"`
	Categories  []CategoryExport `json:"categories"`
	Competitors []Competitor     `json:"competitors"`
}

type CategoryExport struct {
	Name string `json:"category_name"`
}

// Competitor is one remote entry inside RaceExport. SINumber may be
// null when no chip has been assigned yet.
type Competitor struct {
	Index     string `json:"competitor_index"`
	SINumber  *int   `json:"si_number"`
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name"`
	Club      string `json:"competitor_club"`
	Category  string `json:"competitor_category"`
}

// RacePlan is the PUT /api/race/ payload.
type RacePlan struct {
	Categories []PlanCategory `json:"categories"`
	Aliases    []Alias        `json:"aliases"`
}

type PlanCategory struct {
	Name          string         `json:"category_name"`
	ControlPoints []ControlPoint `json:"category_control_points"`
}

type ControlPoint struct {
	SICode      string `json:"si_code"`
	ControlType string `json:"control_type"`
}

// Alias is one deduplicated control entry; controls sharing a punch
// code merge into a single alias with "/"-joined names.
type Alias struct {
	SICode string `json:"alias_si_code"`
	Name   string `json:"alias_name"`
}

// StartlistEntry is one row of the POST /api/startlist/ payload.
type StartlistEntry struct {
	Index     string `json:"competitor_index"`
	SINumber  int    `json:"si_number"`
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name"`
	Club      string `json:"competitor_club"`
	Category  string `json:"category_name"`
	StartTime string `json:"start_time,omitempty"`
}

// ResultEntry is one competitor of the POST /api/results/ payloads,
// shared by the final and the live (name=json) variant.
type ResultEntry struct {
	Index     string       `json:"competitor_index"`
	SINumber  int          `json:"si_number"`
	LastName  string       `json:"last_name"`
	FirstName string       `json:"first_name"`
	Category  string       `json:"category_name"`
	Result    ResultDetail `json:"result"`
}

type ResultDetail struct {
	RunTime      string        `json:"run_time"`
	PunchCount   int           `json:"punch_count"`
	ResultStatus string        `json:"result_status"`
	Punches      []ResultPunch `json:"punches"`
}

type ResultPunch struct {
	Code        string `json:"code"`
	ControlType string `json:"control_type"`
	PunchStatus string `json:"punch_status"`
	SplitTime   string `json:"split_time"`
}

// LoginResult carries the session token plus the local-storage snapshot
// replayed into the embedded browser view on later opens.
type LoginResult struct {
	Token   string
	Storage map[string]string
}

// WriteResult reports a write call's raw HTTP outcome so the operator
// log can show status and body verbatim.
type WriteResult struct {
	Status int
	Body   string
}

// OK reports whether the remote accepted the write.
func (w WriteResult) OK() bool { return w.Status >= 200 && w.Status < 300 }
