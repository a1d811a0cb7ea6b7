// Package results computes per-category competitor results from the
// locally stored runners and punches. Export and readout both serialize
// from these snapshots; the store stays the source of truth.
package results

import (
	"fmt"
	"sort"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// Result statuses as ROBis expects them.
const (
	StatusOK  = "OK"
	StatusDNF = "DNF"
	StatusDNS = "DNS"
)

// Punch is one recorded control visit.
type Punch struct {
	Code   string
	Time   time.Time
	Status string
}

// Result is one runner's computed state within a category.
type Result struct {
	Reg        string
	SI         int
	Name       string
	Club       string
	Category   string
	Start      time.Time
	Finish     time.Time
	Punches    []Punch
	RunTime    time.Duration
	PunchCount int
	Status     string
}

// CategoryNames lists all category names in storage order.
func CategoryNames(app core.App) ([]string, error) {
	records, err := app.FindAllRecords("categories")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(records))
	for _, rec := range records {
		names = append(names, rec.GetString("name"))
	}
	return names, nil
}

// ForCategory recomputes results for every runner of the named category.
func ForCategory(app core.App, categoryName string) ([]Result, error) {
	cat, err := app.FindFirstRecordByFilter("categories", "name = {:name}", dbx.Params{"name": categoryName})
	if err != nil {
		return nil, fmt.Errorf("category %q: %w", categoryName, err)
	}
	runners, err := app.FindRecordsByFilter("runners", "category = {:cat}", "name", 0, 0, dbx.Params{"cat": cat.Id})
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(runners))
	for _, runner := range runners {
		res, err := forRunner(app, runner, categoryName)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func forRunner(app core.App, runner *core.Record, categoryName string) (Result, error) {
	punchRecords, err := app.FindRecordsByFilter("punches", "runner = {:r}", "time", 0, 0, dbx.Params{"r": runner.Id})
	if err != nil {
		return Result{}, err
	}
	punches := make([]Punch, 0, len(punchRecords))
	for _, rec := range punchRecords {
		punches = append(punches, Punch{
			Code:   rec.GetString("code"),
			Time:   rec.GetDateTime("time").Time(),
			Status: rec.GetString("status"),
		})
	}
	sort.Slice(punches, func(i, j int) bool { return punches[i].Time.Before(punches[j].Time) })

	res := Result{
		Reg:        runner.GetString("reg"),
		SI:         runner.GetInt("si"),
		Name:       runner.GetString("name"),
		Club:       runner.GetString("club"),
		Category:   categoryName,
		Start:      runner.GetDateTime("startTime").Time(),
		Finish:     runner.GetDateTime("finishTime").Time(),
		Punches:    punches,
		PunchCount: len(punches),
	}
	switch {
	case !res.Finish.IsZero():
		res.Status = StatusOK
		if !res.Start.IsZero() {
			res.RunTime = res.Finish.Sub(res.Start)
		}
	case len(punches) > 0:
		res.Status = StatusDNF
	default:
		res.Status = StatusDNS
	}
	return res, nil
}

// FormatDelta renders a duration the way ROBis expects splits and run
// times: H:MM:SS, negative values clamped to zero.
func FormatDelta(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, total%3600/60, total%60)
}
