package robis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the production ROBis instance.
const DefaultBaseURL = "https://rob-is.cz"

// ErrAuthRejected indicates a failed login: non-200 status or a
// response without the expected authToken cookie.
var ErrAuthRejected = errors.New("robis: login rejected")

// ErrLockedRace indicates that no race API key is available; every
// write to the race must be refused and surfaced as locked.
var ErrLockedRace = errors.New("robis: race locked, no api key")

// Client fetches the ROBis REST API via the configured base URL.
type Client struct {
	BaseURL *url.URL
	HTTP    *http.Client
}

func NewClient(base string) (*Client, error) {
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	return &Client{BaseURL: u, HTTP: &http.Client{
		Timeout: 10 * time.Second,
	}}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.BaseURL
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// getJSON performs an authenticated GET and decodes the response body.
// Authentication is either the authToken cookie or a raw header,
// depending on which value is non-empty.
func (c *Client) getJSON(ctx context.Context, target string, cookie string, header http.Header, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "authToken", Value: cookie})
	}
	for k, vals := range header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: status %d: %s", target, resp.StatusCode, snippet(b))
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %v; body: %s", target, err, snippet(b))
	}
	return nil
}

func snippet(b []byte) string {
	s := string(b)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// Login exchanges credentials for a session token. The token arrives as
// the authToken cookie; the response body provides the local-storage
// snapshot values for the embedded browser view.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	q := url.Values{"email": {email}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/login/", q), nil)
	if err != nil {
		return LoginResult{}, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return LoginResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return LoginResult{}, ErrAuthRejected
	}
	var token string
	for _, ck := range resp.Cookies() {
		if ck.Name == "authToken" {
			token = ck.Value
		}
	}
	if token == "" {
		return LoginResult{}, ErrAuthRejected
	}
	var body struct {
		UserID    int    `json:"userId"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Roles     any    `json:"roles"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return LoginResult{}, err
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return LoginResult{}, fmt.Errorf("decode login body: %v; body: %s", err, snippet(raw))
	}
	roles, _ := json.Marshal(body.Roles)
	return LoginResult{
		Token: token,
		Storage: map[string]string{
			"userID":       fmt.Sprintf("%d", body.UserID),
			"firstName":    body.FirstName,
			"last_name":    body.LastName,
			"rolesByIndex": string(roles),
		},
	}, nil
}

// Events lists the events of a year, closed ones included; candidate
// filtering happens in the nav package.
func (c *Client) Events(ctx context.Context, token string, year int) ([]Event, error) {
	q := url.Values{"year": {fmt.Sprintf("%d", year)}, "period": {"all"}}
	var out []Event
	err := c.getJSON(ctx, c.endpoint("/api/event/", q), token, nil, &out)
	return out, err
}

// EventDetail fetches the admin race list for an event. A non-success
// status usually means the account is not an administrator of it.
func (c *Client) EventDetail(ctx context.Context, token string, id int) (EventDetail, error) {
	q := url.Values{"id": {fmt.Sprintf("%d", id)}}
	var out EventDetail
	err := c.getJSON(ctx, c.endpoint("/api/event/edit/", q), token, nil, &out)
	return out, err
}

func raceKeyHeader(apiKey string) http.Header {
	return http.Header{"Race-Api-Key": {apiKey}}
}

// EventExport fetches the event detail used by the import pipeline.
func (c *Client) EventExport(ctx context.Context, apiKey string) (EventExport, error) {
	q := url.Values{"type": {"json"}, "name": {"event"}}
	var out EventExport
	err := c.getJSON(ctx, c.endpoint("/api/", q), "", raceKeyHeader(apiKey), &out)
	return out, err
}

// RaceExport fetches the race detail (categories and competitors).
func (c *Client) RaceExport(ctx context.Context, apiKey string) (RaceExport, error) {
	q := url.Values{"type": {"json"}, "name": {"race"}}
	var out RaceExport
	err := c.getJSON(ctx, c.endpoint("/api/", q), "", raceKeyHeader(apiKey), &out)
	return out, err
}

// write performs a JSON write call authenticated with the race API key
// and reports the raw outcome regardless of status, so callers can log
// it verbatim. The error is non-nil only for transport-level failures.
func (c *Client) write(ctx context.Context, method, target, apiKey string, payload any) (WriteResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return WriteResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return WriteResult{}, err
	}
	req.Header.Set("Race-Api-Key", apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return WriteResult{}, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return WriteResult{Status: resp.StatusCode}, err
	}
	return WriteResult{Status: resp.StatusCode, Body: string(b)}, nil
}

// PostStartlist uploads the current startlist.
func (c *Client) PostStartlist(ctx context.Context, apiKey string, entries []StartlistEntry) (WriteResult, error) {
	q := url.Values{"valid": {"True"}}
	return c.write(ctx, http.MethodPost, c.endpoint("/api/startlist/", q), apiKey, entries)
}

// PutRacePlan uploads categories with their control points plus the
// deduplicated control aliases.
func (c *Client) PutRacePlan(ctx context.Context, apiKey string, plan RacePlan) (WriteResult, error) {
	return c.write(ctx, http.MethodPut, c.endpoint("/api/race/", nil), apiKey, plan)
}

// PostResults uploads the final results.
func (c *Client) PostResults(ctx context.Context, apiKey string, entries []ResultEntry) (WriteResult, error) {
	q := url.Values{"valid": {"True"}}
	return c.write(ctx, http.MethodPost, c.endpoint("/api/results/", q), apiKey, entries)
}

// PostLiveResults uploads a live readout snapshot.
func (c *Client) PostLiveResults(ctx context.Context, apiKey string, entries []ResultEntry) (WriteResult, error) {
	q := url.Values{"name": {"json"}}
	return c.write(ctx, http.MethodPost, c.endpoint("/api/results/", q), apiKey, entries)
}

// OChecklist polls the background consistency endpoint. The payload is
// currently unused; only the fetch outcome matters.
func (c *Client) OChecklist(ctx context.Context, apiKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/ochecklist/", nil), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Key", apiKey)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GET /api/ochecklist/: status %d: %s", resp.StatusCode, snippet(b))
	}
	return io.ReadAll(resp.Body)
}
