package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

// Creates the host-side competition slice mirrored to/from ROBis:
// categories, controls, runners, punches.
func init() {
	m.Register(func(app core.App) error {
		categories := core.NewBaseCollection("categories")
		categories.Fields.Add(
			&core.TextField{Name: "name", Required: true, Max: 128, Presentable: true},
			&core.TextField{Name: "displayControls", Max: 1024},
		)
		// category names are unique within the race scope
		categories.AddIndex("ux_categories_name", true, "name", "")
		categories.ListRule = types.Pointer("")
		categories.ViewRule = types.Pointer("")
		if err := app.Save(categories); err != nil {
			return err
		}

		controls := core.NewBaseCollection("controls")
		controls.Fields.Add(
			&core.TextField{Name: "code", Required: true, Max: 16, Presentable: true},
			&core.TextField{Name: "name", Max: 128},
			&core.BoolField{Name: "mandatory"},
			&core.RelationField{Name: "category", CollectionId: categories.Id, MaxSelect: 1},
			&core.NumberField{Name: "position"},
		)
		controls.ListRule = types.Pointer("")
		controls.ViewRule = types.Pointer("")
		if err := app.Save(controls); err != nil {
			return err
		}

		runners := core.NewBaseCollection("runners")
		runners.Fields.Add(
			&core.TextField{Name: "name", Required: true, Max: 255, Presentable: true},
			&core.TextField{Name: "club", Max: 128},
			&core.NumberField{Name: "si"},
			&core.TextField{Name: "reg", Max: 32},
			&core.RelationField{Name: "category", CollectionId: categories.Id, MaxSelect: 1},
			&core.TextField{Name: "call", Max: 32},
			&core.DateField{Name: "startTime"},
			&core.DateField{Name: "finishTime"},
		)
		runners.AddIndex("ix_runners_si", false, "si", "")
		runners.AddIndex("ix_runners_reg", false, "reg", "")
		runners.ListRule = types.Pointer("")
		runners.ViewRule = types.Pointer("")
		if err := app.Save(runners); err != nil {
			return err
		}

		punches := core.NewBaseCollection("punches")
		punches.Fields.Add(
			&core.RelationField{Name: "runner", CollectionId: runners.Id, MaxSelect: 1, Required: true},
			&core.TextField{Name: "code", Required: true, Max: 16, Presentable: true},
			&core.DateField{Name: "time", Required: true},
			&core.TextField{Name: "status", Max: 16},
		)
		punches.AddIndex("ix_punches_runner", false, "runner", "")
		punches.ListRule = types.Pointer("")
		punches.ViewRule = types.Pointer("")
		return app.Save(punches)
	}, func(app core.App) error {
		for _, name := range []string{"punches", "runners", "controls", "categories"} {
			col, _ := app.FindCollectionByNameOrId(name)
			if col != nil {
				if err := app.Delete(col); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
