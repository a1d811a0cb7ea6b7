package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

// Adds the supporting collections:
// - settings: race basic info (name, start, organizer, limit, band, API key)
// - plugin_kv: persisted plugin state (auth token, local-storage snapshot)
// - operator_log: operator-visible action log (startlist/results outcomes)
func init() {
	m.Register(func(app core.App) error {
		settings := core.NewBaseCollection("settings")
		settings.Fields.Add(
			&core.TextField{Name: "key", Required: true, Max: 128, Presentable: true},
			&core.TextField{Name: "value", Max: 8192},
		)
		settings.AddIndex("ux_settings_key", true, "key", "")
		settings.ListRule = types.Pointer("")
		settings.ViewRule = types.Pointer("")
		if err := app.Save(settings); err != nil {
			return err
		}

		pluginKV := core.NewBaseCollection("plugin_kv")
		pluginKV.Fields.Add(
			&core.TextField{Name: "key", Required: true, Max: 128, Presentable: true},
			// large enough for a serialized local-storage snapshot
			&core.TextField{Name: "value", Max: 65536},
		)
		pluginKV.AddIndex("ux_plugin_kv_key", true, "key", "")
		if err := app.Save(pluginKV); err != nil {
			return err
		}

		operatorLog := core.NewBaseCollection("operator_log")
		operatorLog.Fields.Add(
			&core.TextField{Name: "label", Required: true, Max: 64, Presentable: true},
			&core.TextField{Name: "message", Max: 8192},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		operatorLog.ListRule = types.Pointer("")
		operatorLog.ViewRule = types.Pointer("")
		return app.Save(operatorLog)
	}, func(app core.App) error {
		for _, name := range []string{"operator_log", "plugin_kv", "settings"} {
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
