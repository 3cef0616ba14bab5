package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/clage-homeserver/migrations"

	"github.com/nerrad567/clage-homeserver/internal/api"
	"github.com/nerrad567/clage-homeserver/internal/audit"
	"github.com/nerrad567/clage-homeserver/internal/command"
	"github.com/nerrad567/clage-homeserver/internal/coordinator"
	"github.com/nerrad567/clage-homeserver/internal/device"
	"github.com/nerrad567/clage-homeserver/internal/homeserver"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/config"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/database"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/influxdb"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/logging"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/mqtt"
	"github.com/nerrad567/clage-homeserver/internal/publish"
	"github.com/nerrad567/clage-homeserver/internal/setup"
)

func serveCmd(configPath *string, info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the polling and command service until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(*configPath), info)
		},
	}
}

// run is the service itself, separated from the command for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML config file
//   - info: Build version, reported in logs, /health and MQTT health
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string, info BuildInfo) error {
	log := logging.Default()
	log.Info("starting CLAGE homeserver service",
		"version", info.Version,
		"commit", info.Commit,
		"build_date", info.Date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, info.Version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	checks := map[string]api.HealthChecker{"database": db}

	// Devices and polling
	registry := device.NewRegistry()
	registry.SetLogger(log.Component("registry"))

	coord := coordinator.New(registry, coordinator.Config{
		Interval:       cfg.EffectiveScanInterval(),
		RequestTimeout: cfg.Homeserver.RequestTimeout,
		MaxParallel:    cfg.Homeserver.MaxParallel,
	})
	coord.SetLogger(log.Component("coordinator"))

	dispatcher := command.NewDispatcher(registry, coord, command.NewEntityStates(registry, coord.Store()))
	dispatcher.SetLogger(log.Component("dispatcher"))
	dispatcher.SetRequestTimeout(cfg.Homeserver.RequestTimeout)

	auditRec := audit.NewRecorder(audit.NewSQLiteRepository(db.DB))
	auditRec.SetLogger(log.Component("audit"))
	dispatcher.AddListener(auditRec.HandleResult)

	flow := setup.NewFlow(registry, device.NewSQLiteRepository(db.DB), clientFactory(cfg.Homeserver), coord)
	flow.SetLogger(log.Component("setup"))
	flow.SetProbeTimeout(cfg.Homeserver.RequestTimeout)

	configured := flow.LoadConfigured(cfg.Homeserver.Devices)
	restored, err := flow.RestoreEntries(ctx)
	if err != nil {
		return fmt.Errorf("restoring entries: %w", err)
	}
	log.Info("device registry initialised",
		"configured", configured,
		"restored", restored,
		"devices", registry.Count(),
	)

	// State history
	historyRepo := device.NewSQLiteStateHistoryRepository(db.DB)
	history := publish.NewHistorySink(historyRepo, cfg.Homeserver.HistoryRetention)
	history.SetLogger(log.Component("history"))
	coord.AddListener(history.HandleUpdate)
	history.Start(ctx)
	defer history.Stop()

	// MQTT (optional)
	if cfg.MQTT.Enabled {
		stop, mqttClient, mqttErr := startMQTT(ctx, cfg, info, registry, coord, dispatcher, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer stop()
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		telemetry := publish.NewTelemetrySink(influxClient)
		coord.AddListener(telemetry.HandleUpdate)
		dispatcher.AddListener(telemetry.HandleResult)
		checks["influxdb"] = influxClient
	}

	// REST + WebSocket API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log.Component("api"),
			Registry:    registry,
			Coordinator: coord,
			Dispatcher:  dispatcher,
			Setup:       flow,
			History:     historyRepo,
			Audit:       auditRec,
			Checks:      checks,
			Version:     info.Version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Start polling last so every listener sees the first refresh. Until it
	// completes the API and MQTT commands are already live, state reads
	// return not_found and /health reports "starting".
	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}
	defer coord.Stop()
	log.Info("polling started",
		"interval", coord.Interval(),
		"devices", registry.Count(),
	)

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: coordinator, API, InfluxDB,
	// MQTT, history, database.

	log.Info("CLAGE homeserver service stopped")
	return nil
}

// startMQTT connects to the broker and wires the bridge and health reporter.
//
// Returns:
//   - func(): Stops the reporter and closes the client
//   - *mqtt.Client: Connected client, for /health
//   - error: If the connection or command subscription fails
func startMQTT(
	ctx context.Context,
	cfg *config.Config,
	info BuildInfo,
	registry *device.Registry,
	coord *coordinator.Coordinator,
	dispatcher *command.Dispatcher,
	log *logging.Logger,
) (func(), *mqtt.Client, error) {
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	topics := mqtt.Topics{DiscoveryPrefix: cfg.MQTT.Discovery.Prefix}

	bridge := publish.NewBridge(publish.BridgeConfig{
		Publisher: mqttClient,
		Devices:   registry,
		Health:    coord,
		Topics:    topics,
		QoS:       mqttClient.QoS(),
		Discovery: cfg.MQTT.Discovery.Enabled,
	})
	bridge.SetLogger(log.Component("bridge"))

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		bridge.HandleConnect()
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	coord.AddListener(bridge.HandleUpdate)
	coord.AddRefreshListener(bridge.HandleRefresh)
	dispatcher.AddListener(bridge.HandleResult)

	if err := bridge.SubscribeCommands(mqttClient, dispatcher.SetTemperature); err != nil {
		mqttClient.Close() //nolint:errcheck // Already failing
		return nil, nil, fmt.Errorf("subscribing to commands: %w", err)
	}
	bridge.HandleConnect()

	reporter := publish.NewHealthReporter(publish.HealthReporterConfig{
		Version:   info.Version,
		Publisher: mqttClient,
		Devices:   registry,
		Health:    coord,
		Topics:    topics,
	})
	reporter.SetLogger(log.Component("health"))
	reporter.Start(ctx)

	stop := func() {
		reporter.Stop()
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}
	return stop, mqttClient, nil
}

// clientFactory builds HTTP clients for newly registered devices using the
// shared credentials and TLS setting.
func clientFactory(cfg config.HomeserverConfig) device.ClientFactory {
	return func(d device.Device) (homeserver.Client, error) {
		c, err := newHTTPClient(cfg, d.Address, d.HeaterID)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func newHTTPClient(cfg config.HomeserverConfig, address, heaterID string) (*homeserver.HTTPClient, error) {
	return homeserver.NewHTTPClient(homeserver.Config{
		Address:     address,
		HeaterID:    heaterID,
		Username:    cfg.Username,
		Password:    cfg.Password,
		InsecureTLS: cfg.InsecureTLS,
		Timeout:     cfg.RequestTimeout,
	})
}

// healthCheck verifies every infrastructure connection is healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - checks: Named components (database, mqtt, influxdb)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for _, name := range []string{"database", "mqtt", "influxdb"} {
		c, ok := checks[name]
		if !ok {
			continue
		}
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
