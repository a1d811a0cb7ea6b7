package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"

	"robis-bridge/robis"
)

// Flags is the resolved runtime configuration. Precedence, lowest to
// highest: built-in defaults, TOML config file, environment (a .env
// file is loaded first if present), command-line flags.
type Flags struct {
	RobisURL          string
	Port              int
	LogLevel          string
	Year              int
	DBDir             string
	ImportSnapshot    string
	ChecklistEnabled  bool
	ChecklistInterval time.Duration
}

// fileConfig mirrors the TOML config file shape.
type fileConfig struct {
	RobisURL  string `toml:"robis_url"`
	Port      int    `toml:"port"`
	LogLevel  string `toml:"log_level"`
	Year      int    `toml:"year"`
	DBDir     string `toml:"db_dir"`
	Checklist *bool  `toml:"checklist"`
}

func defaults() Flags {
	return Flags{
		RobisURL:          robis.DefaultBaseURL,
		Port:              3000,
		LogLevel:          "info",
		Year:              time.Now().Year(),
		ChecklistEnabled:  true,
		ChecklistInterval: time.Minute,
	}
}

func ParseFlags() Flags {
	out := defaults()

	// .env values become plain env vars; existing ones win
	_ = godotenv.Load()

	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configPath := fs.String("config", "", "Path to TOML config file")
	fs.StringVar(&out.RobisURL, "robis-url", out.RobisURL, "ROBis site base URL")
	fs.IntVar(&out.Port, "port", out.Port, "Server port")
	fs.StringVar(&out.LogLevel, "log-level", out.LogLevel, "Log level: error|warn|info|debug")
	fs.IntVar(&out.Year, "year", out.Year, "Season year for event listings")
	fs.StringVar(&out.DBDir, "db-dir", out.DBDir, "Directory for SQLite database files (empty = in-memory)")
	fs.StringVar(&out.ImportSnapshot, "import-snapshot", "", "Path to snapshot JSON to restore at startup")
	fs.BoolVar(&out.ChecklistEnabled, "checklist", out.ChecklistEnabled, "Enable the O-Checklist background poll")

	showHelp := fs.Bool("help", false, "Show help message")
	_ = fs.Parse(os.Args[1:])
	if *showHelp {
		fmt.Printf(helpText(), os.Args[0])
		os.Exit(0)
	}

	path := *configPath
	if path == "" {
		path = os.Getenv("ROBIS_BRIDGE_CONFIG")
	}
	if path != "" {
		applyFile(&out, path)
	}
	applyEnv(&out)

	// flags win over file and env
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "robis-url":
			out.RobisURL = f.Value.String()
		case "port":
			out.Port = atoiOr(f.Value.String(), out.Port)
		case "log-level":
			out.LogLevel = f.Value.String()
		case "year":
			out.Year = atoiOr(f.Value.String(), out.Year)
		case "db-dir":
			out.DBDir = f.Value.String()
		case "import-snapshot":
			out.ImportSnapshot = f.Value.String()
		case "checklist":
			out.ChecklistEnabled = f.Value.String() == "true"
		}
	})

	return out
}

func applyFile(out *Flags, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config file %s: %v\n", path, err)
		return
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		fmt.Fprintf(os.Stderr, "config file %s: %v\n", path, err)
		return
	}
	if fc.RobisURL != "" {
		out.RobisURL = fc.RobisURL
	}
	if fc.Port != 0 {
		out.Port = fc.Port
	}
	if fc.LogLevel != "" {
		out.LogLevel = fc.LogLevel
	}
	if fc.Year != 0 {
		out.Year = fc.Year
	}
	if fc.DBDir != "" {
		out.DBDir = fc.DBDir
	}
	if fc.Checklist != nil {
		out.ChecklistEnabled = *fc.Checklist
	}
}

func applyEnv(out *Flags) {
	if v := os.Getenv("ROBIS_URL"); v != "" {
		out.RobisURL = v
	}
	if v := os.Getenv("ROBIS_BRIDGE_PORT"); v != "" {
		out.Port = atoiOr(v, out.Port)
	}
	if v := os.Getenv("ROBIS_BRIDGE_LOG_LEVEL"); v != "" {
		out.LogLevel = v
	}
	if v := os.Getenv("ROBIS_BRIDGE_YEAR"); v != "" {
		out.Year = atoiOr(v, out.Year)
	}
	if v := os.Getenv("ROBIS_BRIDGE_DB_DIR"); v != "" {
		out.DBDir = v
	}
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func PreparePocketBaseArgs(flags Flags) []string {
	return []string{"serve", "--http", fmt.Sprintf("0.0.0.0:%d", flags.Port)}
}

func NewPocketBaseApp(flags Flags) *pocketbase.PocketBase {
	var app *pocketbase.PocketBase
	if flags.DBDir == "" {
		app = pocketbase.NewWithConfig(pocketbase.Config{
			HideStartBanner: true,
			DefaultDataDir:  ".",
			DBConnect: func(dbPath string) (*dbx.DB, error) {
				base := filepath.Base(dbPath)
				dsn := "file:" + base + "?mode=memory&cache=shared"
				db, err := dbx.Open("sqlite", dsn)
				if err != nil {
					return nil, err
				}
				if _, err := db.NewQuery("PRAGMA foreign_keys=ON;").Execute(); err != nil {
					return nil, err
				}
				if _, err := db.NewQuery("PRAGMA busy_timeout=1000;").Execute(); err != nil {
					return nil, err
				}
				return db, nil
			},
		})
	} else {
		app = pocketbase.NewWithConfig(pocketbase.Config{
			HideStartBanner: true,
			DefaultDataDir:  flags.DBDir,
		})
	}
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{Automigrate: true})
	return app
}

func helpText() string {
	return `
Usage: %s [OPTIONS]

Options:
  --robis-url string       ROBis site base URL (default: https://rob-is.cz)
  --port int               Server port (default: 3000)
  --log-level string       Log level: error|warn|info|debug
  --year int               Season year for event listings (default: current year)
  --config string          Path to TOML config file
  --db-dir string          Directory for SQLite database files (empty = in-memory)
  --import-snapshot string Path to snapshot JSON to restore at startup
  --checklist bool         Enable the O-Checklist background poll (default: true)
  --help                   Show this help message

Environment Variables:
  ROBIS_URL                ROBis site base URL
  ROBIS_BRIDGE_PORT        Server port
  ROBIS_BRIDGE_LOG_LEVEL   Log level
  ROBIS_BRIDGE_YEAR        Season year
  ROBIS_BRIDGE_DB_DIR      SQLite database directory
  ROBIS_BRIDGE_CONFIG      Path to TOML config file
  A .env file in the working directory is loaded if present.

Config file (TOML):
  robis_url = "https://rob-is.cz"
  port = 3000
  log_level = "info"
  year = 2026
  db_dir = "pb_data"
  checklist = true

Note: The server binds to all network interfaces (0.0.0.0)
      PocketBase API will be available at /api/* endpoints
      PocketBase Admin UI will be available at /_/
      The embedded browser connects to /browser/link

Examples:
  # In-memory database, current season
  robis-bridge

  # Persistent database and explicit season
  robis-bridge -db-dir=pb_data -year=2026

  # Config file
  robis-bridge -config=robis-bridge.toml
`
}
