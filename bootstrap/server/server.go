package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"robis-bridge/bootstrap/config"
	"robis-bridge/browserlink"
	"robis-bridge/checklist"
	"robis-bridge/export"
	"robis-bridge/importer"
	"robis-bridge/ingest"
	"robis-bridge/nav"
	"robis-bridge/readout"
	"robis-bridge/realtime"
	"robis-bridge/robis"
	"robis-bridge/session"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
)

// Deps bundles the wired components the HTTP surface exposes.
type Deps struct {
	Flags     config.Flags
	Client    *robis.Client
	Session   *session.Store
	Tracker   *nav.Tracker
	Importer  *ingest.Importer
	Exporter  *export.Exporter
	Publisher *readout.Publisher
}

func RegisterServe(app *pocketbase.PocketBase, deps Deps) {
	browserlink.Register(app, browserlink.NewServer(deps.Tracker, deps.Session))

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		if err := ensureSuperuser(app); err != nil {
			return fmt.Errorf("failed to ensure superuser: %w", err)
		}

		if deps.Flags.ImportSnapshot != "" {
			if err := importer.ImportFromFile(app, deps.Flags.ImportSnapshot); err != nil {
				return fmt.Errorf("import snapshot: %w", err)
			}
		}

		realtime.Bind(app, deps.Tracker)

		bgCtx, cancelBg := context.WithCancel(context.Background())
		if se.Server != nil {
			se.Server.RegisterOnShutdown(cancelBg)
		} else {
			defer cancelBg()
		}
		if deps.Flags.ChecklistEnabled {
			checklist.StartLoop(bgCtx, app, deps.Client, deps.Flags.ChecklistInterval)
		}

		registerRoutes(se, deps)

		se.Router.GET("/health", func(c *core.RequestEvent) error {
			return c.JSON(http.StatusOK, map[string]interface{}{
				"status":    "ok",
				"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
			})
		})

		printStartupBox(deps.Flags)
		return se.Next()
	})
}

// requireSuperuser guards mutating routes; the bridge is an operator
// tool, not a public API.
func requireSuperuser(c *core.RequestEvent) error {
	info, err := c.RequestInfo()
	if err != nil || info.Auth == nil || !info.Auth.IsSuperuser() {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "admin only"})
	}
	return nil
}

func registerRoutes(se *core.ServeEvent, deps Deps) {
	se.Router.POST("/robis/login", func(c *core.RequestEvent) error {
		if err := requireSuperuser(c); err != nil {
			return err
		}
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := c.BindBody(&body); err != nil {
			return c.BadRequestError("invalid body", err)
		}
		res, err := deps.Client.Login(c.Request.Context(), body.Email, body.Password)
		if err != nil {
			if errors.Is(err, robis.ErrAuthRejected) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "login rejected"})
			}
			return c.InternalServerError("login", err)
		}
		if err := deps.Session.Set(session.Credential{Token: res.Token, Storage: res.Storage}); err != nil {
			return c.InternalServerError("store credential", err)
		}
		return c.JSON(http.StatusOK, map[string]any{"ok": true})
	})

	se.Router.GET("/robis/events", func(c *core.RequestEvent) error {
		if err := requireSuperuser(c); err != nil {
			return err
		}
		cred, err := deps.Session.Get()
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not logged in"})
		}
		if session.IsExpired(cred.Token, time.Now()) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "session expired, log in again"})
		}
		year := deps.Flags.Year
		if v := c.Request.URL.Query().Get("year"); v != "" {
			if n, convErr := strconv.Atoi(v); convErr == nil {
				year = n
			}
		}
		items, err := nav.Candidates(c.Request.Context(), deps.Client, cred.Token, year)
		if err != nil {
			return c.InternalServerError("list events", err)
		}
		return c.JSON(http.StatusOK, items)
	})

	se.Router.GET("/robis/nav", func(c *core.RequestEvent) error {
		if err := requireSuperuser(c); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, deps.Tracker.State())
	})

	se.Router.POST("/robis/import", func(c *core.RequestEvent) error {
		if err := requireSuperuser(c); err != nil {
			return err
		}
		key, ok := deps.Tracker.DownloadKey()
		if !ok {
			return c.JSON(http.StatusConflict, map[string]string{"error": "no importable race selected"})
		}
		summary, err := deps.Importer.Import(c.Request.Context(), key)
		if err != nil {
			return c.InternalServerError("import", err)
		}
		return c.JSON(http.StatusOK, summary)
	})

	se.Router.POST("/robis/export/startlist", func(c *core.RequestEvent) error {
		if err := requireSuperuser(c); err != nil {
			return err
		}
		if err := deps.Exporter.PushStartlist(c.Request.Context()); err != nil {
			if errors.Is(err, robis.ErrLockedRace) {
				return c.JSON(http.StatusConflict, map[string]string{"error": "race is locked"})
			}
			return c.InternalServerError("export startlist", err)
		}
		return c.JSON(http.StatusOK, map[string]any{"ok": true})
	})

	se.Router.POST("/robis/export/results", func(c *core.RequestEvent) error {
		if err := requireSuperuser(c); err != nil {
			return err
		}
		if err := deps.Exporter.PushResults(c.Request.Context()); err != nil {
			if errors.Is(err, robis.ErrLockedRace) {
				return c.JSON(http.StatusConflict, map[string]string{"error": "race is locked"})
			}
			return c.InternalServerError("export results", err)
		}
		return c.JSON(http.StatusOK, map[string]any{"ok": true})
	})

	se.Router.POST("/robis/readout/{si}", func(c *core.RequestEvent) error {
		if err := requireSuperuser(c); err != nil {
			return err
		}
		si, err := strconv.Atoi(c.Request.PathValue("si"))
		if err != nil {
			return c.BadRequestError("invalid si number", err)
		}
		deps.Publisher.Publish(si)
		return c.JSON(http.StatusAccepted, map[string]any{"ok": true})
	})

	se.Router.POST("/robis/readout/all", func(c *core.RequestEvent) error {
		if err := requireSuperuser(c); err != nil {
			return err
		}
		deps.Publisher.PublishAll()
		return c.JSON(http.StatusAccepted, map[string]any{"ok": true})
	})
}

// RegisterHooks publishes a live readout whenever a punch record lands,
// the server-side equivalent of the station readout callback.
func RegisterHooks(app core.App, publisher *readout.Publisher) {
	app.OnRecordAfterCreateSuccess("punches").BindFunc(func(e *core.RecordEvent) error {
		runnerID := e.Record.GetString("runner")
		if runnerID != "" {
			runner, err := e.App.FindRecordById("runners", runnerID)
			if err == nil && runner.GetInt("si") > 0 {
				publisher.Publish(runner.GetInt("si"))
			}
		}
		return e.Next()
	})
}

func printStartupBox(flags config.Flags) {
	const contentWidth = 57

	formatLine := func(icon, label, value string) string {
		const labelWidth = 15
		paddedLabel := fmt.Sprintf("%-*s", labelWidth, label)
		content := fmt.Sprintf("  %s %s: %s", icon, paddedLabel, value)
		padding := ""
		if len(content) < contentWidth {
			padding = strings.Repeat(" ", contentWidth-len(content)+2)
		}
		return fmt.Sprintf("║%s%s║", content, padding)
	}

	fmt.Printf("\n")
	fmt.Printf("╔%s╗\n", strings.Repeat("═", contentWidth))
	fmt.Printf("║%s║\n", centerText("🧭 ROBIS BRIDGE", contentWidth))
	fmt.Printf("╠%s╣\n", strings.Repeat("═", contentWidth))

	fmt.Println(formatLine("🌐", "Operator UI", fmt.Sprintf("http://0.0.0.0:%d", flags.Port)))
	fmt.Println(formatLine("🔧", "DB Admin Panel", fmt.Sprintf("http://0.0.0.0:%d/_/", flags.Port)))
	fmt.Println(formatLine("🔗", "Browser Link", fmt.Sprintf("ws://0.0.0.0:%d/browser/link", flags.Port)))
	fmt.Println(formatLine("📡", "ROBis", flags.RobisURL))

	fmt.Printf("╚%s╝\n", strings.Repeat("═", contentWidth))
	fmt.Printf("\n")
}

func centerText(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	leftPad := strings.Repeat(" ", padding)
	rightPad := strings.Repeat(" ", width-len(text)-padding+2)
	return leftPad + text + rightPad
}

func ensureSuperuser(app core.App) error {
	email := os.Getenv("SUPERUSER_EMAIL")
	if email == "" {
		email = "admin@example.com"
	}
	password := os.Getenv("SUPERUSER_PASSWORD")
	generated := false
	if password == "" {
		if p, err := generatePassword(24); err == nil {
			password = p
			generated = true
		} else {
			return fmt.Errorf("failed to generate password: %w", err)
		}
	}

	superusers, err := app.FindCollectionByNameOrId(core.CollectionNameSuperusers)
	if err != nil {
		return fmt.Errorf("failed to find superusers collection: %w", err)
	}

	existingRecord, _ := app.FindAuthRecordByEmail(core.CollectionNameSuperusers, email)
	if existingRecord != nil {
		slog.Info("superuser.ensure.skipped",
			"reason", "superuser already exists",
			"email", email)
		return nil
	}

	record := core.NewRecord(superusers)
	record.Set("email", email)
	record.Set("password", password)

	if err := app.Save(record); err != nil {
		return fmt.Errorf("failed to save superuser: %w", err)
	}

	if generated {
		slog.Info("superuser.ensure.created",
			"email", email,
			"password", password,
			"note", "password generated because SUPERUSER_PASSWORD was not set")
	} else {
		slog.Info("superuser.ensure.created",
			"email", email)
	}
	return nil
}

func generatePassword(length int) (string, error) {
	const charset = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789_"
	max := big.NewInt(int64(len(charset)))
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}
