package export

import (
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"robis-bridge/results"
	"robis-bridge/robis"
)

// splitName separates the stored "last, first" runner name.
func splitName(name string) (last, first string) {
	parts := strings.SplitN(name, ", ", 2)
	last = parts[0]
	if len(parts) > 1 {
		first = parts[1]
	}
	return last, first
}

// BuildStartlist serializes all runners into the startlist payload.
func BuildStartlist(app core.App) ([]robis.StartlistEntry, error) {
	runners, err := app.FindRecordsByFilter("runners", "id != ''", "name", 0, 0, nil)
	if err != nil {
		return nil, err
	}
	entries := make([]robis.StartlistEntry, 0, len(runners))
	for _, runner := range runners {
		last, first := splitName(runner.GetString("name"))
		entry := robis.StartlistEntry{
			Index:     runner.GetString("reg"),
			SINumber:  runner.GetInt("si"),
			LastName:  last,
			FirstName: first,
			Club:      runner.GetString("club"),
		}
		if catID := runner.GetString("category"); catID != "" {
			if cat, err := app.FindRecordById("categories", catID); err == nil {
				entry.Category = cat.GetString("name")
			}
		}
		if start := runner.GetDateTime("startTime").Time(); !start.IsZero() {
			entry.StartTime = start.Format(time.RFC3339)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// BuildRacePlan serializes categories (with their ordered control
// points) and the deduplicated control aliases. Controls sharing a
// punch code collapse into one alias with "/"-joined names.
func BuildRacePlan(app core.App) (robis.RacePlan, error) {
	plan := robis.RacePlan{
		Categories: []robis.PlanCategory{},
		Aliases:    []robis.Alias{},
	}

	categories, err := app.FindAllRecords("categories")
	if err != nil {
		return plan, err
	}
	for _, cat := range categories {
		controls, err := app.FindRecordsByFilter("controls", "category = {:cat}", "position", 0, 0, dbx.Params{"cat": cat.Id})
		if err != nil {
			return plan, err
		}
		pc := robis.PlanCategory{
			Name:          cat.GetString("name"),
			ControlPoints: []robis.ControlPoint{},
		}
		for _, control := range controls {
			controlType := "CONTROL"
			if control.GetBool("mandatory") {
				controlType = "BEACON"
			}
			pc.ControlPoints = append(pc.ControlPoints, robis.ControlPoint{
				SICode:      control.GetString("code"),
				ControlType: controlType,
			})
		}
		plan.Categories = append(plan.Categories, pc)
	}

	controls, err := app.FindAllRecords("controls")
	if err != nil {
		return plan, err
	}
	for _, control := range controls {
		code := control.GetString("code")
		name := control.GetString("name")
		merged := false
		for i := range plan.Aliases {
			if plan.Aliases[i].SICode == code {
				plan.Aliases[i].Name += "/" + name
				merged = true
				break
			}
		}
		if !merged {
			plan.Aliases = append(plan.Aliases, robis.Alias{SICode: code, Name: name})
		}
	}
	return plan, nil
}

// Entries serializes computed results into the ROBis result schema,
// shared by the final upload and the live readout. Split times are the
// deltas between consecutive punches, the first measured from the
// start; a synthetic FINISH entry closes the list when a finish time
// exists. Only the reserved code "M" maps to a BEACON control.
func Entries(rs []results.Result) []robis.ResultEntry {
	entries := make([]robis.ResultEntry, 0, len(rs))
	for _, r := range rs {
		last, first := splitName(r.Name)
		punches := make([]robis.ResultPunch, 0, len(r.Punches)+1)
		prev := r.Start
		for _, p := range r.Punches {
			controlType := "CONTROL"
			if p.Code == "M" {
				controlType = "BEACON"
			}
			punches = append(punches, robis.ResultPunch{
				Code:        p.Code,
				ControlType: controlType,
				PunchStatus: p.Status,
				SplitTime:   results.FormatDelta(p.Time.Sub(prev)),
			})
			prev = p.Time
		}
		if !r.Finish.IsZero() {
			punches = append(punches, robis.ResultPunch{
				Code:        "F",
				ControlType: "FINISH",
				PunchStatus: "OK",
				SplitTime:   results.FormatDelta(r.Finish.Sub(prev)),
			})
		}
		entries = append(entries, robis.ResultEntry{
			Index:     r.Reg,
			SINumber:  r.SI,
			LastName:  last,
			FirstName: first,
			Category:  r.Category,
			Result: robis.ResultDetail{
				RunTime:      results.FormatDelta(r.RunTime),
				PunchCount:   r.PunchCount,
				ResultStatus: r.Status,
				Punches:      punches,
			},
		})
	}
	return entries
}
