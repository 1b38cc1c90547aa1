package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-knxlink/internal/api"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-knxlink/internal/link"
	"github.com/nerrad567/gray-logic-knxlink/migrations"
)

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep the channel open and bridge it to MQTT",
		Long: `Run dials the configured gateway, keeps the channel open and redials
with backoff after every close. Received telegrams and datapoint values are
published to MQTT; commands arrive on knxlink/<link>/command.

Stop with SIGINT or SIGTERM. The channel is closed with a disconnect
request before the process exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Cancel on Ctrl+C and SIGTERM for graceful shutdown.
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, *configPath)
		},
	}
}

// run is the service logic, separated from the command for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML config file, or "" for defaults
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version).With("link", cfg.Link.ID)
	log.Info("starting knxlink",
		"version", version,
		"commit", commit,
		"build_date", date,
		"gateway", cfg.Link.Gateway,
		"transport", cfg.Link.Transport,
		"protocol", cfg.Link.Protocol,
	)

	// Session journal (optional)
	var journal *link.Journal
	if cfg.Database.Enabled {
		db, dbErr := openJournalDB(ctx, cfg.Database)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("session journal ready", "path", db.Path())
		journal = link.NewJournal(db.DB)
	}

	// MQTT bus (optional)
	var bus link.Bus
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT, cfg.Link.ID)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		bus = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB telemetry (optional)
	var telemetry link.Telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		telemetry = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// The collector reads the service on every scrape; scrapes only start
	// once the API server is up, after svc is assigned.
	var svc *link.Service
	m := metrics.New(func() metrics.Snapshot { return svc.Snapshot() },
		metrics.WithConstLabels(prometheus.Labels{"link": cfg.Link.ID}))

	qos := byte(cfg.MQTT.QoS) //nolint:gosec // G115: validated to 0..2
	// Event stream hub (optional); the API server disconnects its clients.
	var hub *api.Hub
	opts := link.Options{
		Config:    cfg.Link,
		Bus:       bus,
		QoS:       &qos,
		Journal:   journal,
		Telemetry: telemetry,
		Metrics:   m,
		Logger:    log,
		Version:   version,
	}
	if cfg.API.Enabled && cfg.API.Events.Enabled {
		hub = api.NewHub(cfg.API.Events, log)
		opts.Events = hub
	}

	svc, err = link.New(opts)
	if err != nil {
		return fmt.Errorf("creating link: %w", err)
	}

	// HTTP server (optional)
	if cfg.API.Enabled {
		server, apiErr := startAPI(ctx, cfg.API, log, svc, journal, m, hub)
		if apiErr != nil {
			return apiErr
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete")

	if err := svc.Run(ctx); err != nil {
		return fmt.Errorf("running link: %w", err)
	}

	// Deferred Close() calls run in reverse order:
	// API server, InfluxDB, MQTT, database.
	log.Info("knxlink stopped", "reconnects", svc.Reconnects())
	return nil
}

// openJournalDB opens the SQLite journal and applies pending migrations.
func openJournalDB(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// startAPI starts the HTTP server. A nil journal leaves the session
// endpoints answering 503 and a nil hub leaves the event stream unmounted.
func startAPI(ctx context.Context, cfg config.APIConfig, log *logging.Logger,
	svc *link.Service, journal *link.Journal, m *metrics.Metrics, hub *api.Hub) (*api.Server, error) {
	deps := api.Deps{
		Config:  cfg,
		Logger:  log,
		Link:    svc,
		Metrics: m.Handler(),
		Events:  hub,
		Version: version,
	}
	if journal != nil {
		deps.Journal = journal
	}

	server, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	return server, nil
}
