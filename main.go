package main

import (
	"log"
	"log/slog"
	"time"

	"robis-bridge/bootstrap/config"
	"robis-bridge/bootstrap/server"
	"robis-bridge/export"
	"robis-bridge/ingest"
	"robis-bridge/logger"
	_ "robis-bridge/migrations"
	"robis-bridge/nav"
	"robis-bridge/oplog"
	"robis-bridge/readout"
	"robis-bridge/robis"
	"robis-bridge/session"
)

func main() {
	flags := config.ParseFlags()
	logger.Configure(flags.LogLevel)

	app := config.NewPocketBaseApp(flags)

	client, err := robis.NewClient(flags.RobisURL)
	if err != nil {
		log.Fatal("invalid ROBis URL:", err)
	}
	store := session.NewStore(app)
	opLog := oplog.New(app)

	tracker := nav.NewTracker(client, flags.RobisURL, func() string {
		cred, err := store.Get()
		if err != nil || session.IsExpired(cred.Token, time.Now()) {
			return ""
		}
		return cred.Token
	})
	defer tracker.Close()

	importer := ingest.NewImporter(app, client, opLog)
	exporter := export.NewExporter(app, client, opLog)
	publisher := readout.NewPublisher(app, client, opLog)

	server.RegisterHooks(app, publisher)
	server.RegisterServe(app, server.Deps{
		Flags:     flags,
		Client:    client,
		Session:   store,
		Tracker:   tracker,
		Importer:  importer,
		Exporter:  exporter,
		Publisher: publisher,
	})

	app.RootCmd.SetArgs(config.PreparePocketBaseArgs(flags))
	slog.Info("bridge.start", "robis", flags.RobisURL, "port", flags.Port, "year", flags.Year)
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}
