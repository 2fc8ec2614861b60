// LED Controller - Home Assistant style integration host for TCP LED walls
//
// This is the main entry point for the LED controller service. It runs the
// "ha-ledcontroller" and "multivision_ha" integrations against LED
// controllers on the local network and exposes their lights:
//   - over MQTT, with Home Assistant discovery
//   - over an HTTP API with a WebSocket event stream
//
// Config entries live in SQLite; state changes are recorded locally and,
// optionally, in InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/api"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/audit"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/bridge"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/driver"
	ledintegration "github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/integrations/ledcontroller"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/integrations/multivision"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/infrastructure/config"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/infrastructure/database"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/infrastructure/influxdb"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/infrastructure/logging"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/infrastructure/mqtt"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/ledcontroller"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/platform"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Shutdown runs in reverse start order through defers: API, bridge, host,
// activity recorder, MQTT, InfluxDB, controller connections, database.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting LED controller",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Controller connections are shared by every integration and closed last,
	// after the host has unloaded every entry.
	registry := ledcontroller.NewRegistry(driver.TCPFactory(driver.TCPOptions{
		DialTimeout: cfg.Controller.ConnectTimeout,
		IOTimeout:   cfg.Controller.CommandTimeout,
		Logger:      log.Component("driver"),
	}))
	registry.SetLogger(log.Component("registry"))
	defer func() {
		log.Info("closing controller connections")
		if closeErr := registry.Close(); closeErr != nil {
			log.Error("error closing controller connections", "error", closeErr)
		}
	}()

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
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
	} else {
		log.Info("MQTT disabled")
	}

	// Integration host
	host, err := newHost(cfg, db, registry, log)
	if err != nil {
		return err
	}
	host.Subscribe(telemetryListener(influxClient))

	// Activity log. The recorder outlives the host so the unload
	// transitions at shutdown are written too.
	activity := audit.NewSQLiteRepository(db.DB)
	if cfg.Database.HistoryRetention > 0 {
		if n, pruneErr := activity.Prune(ctx, cfg.Database.HistoryRetention); pruneErr != nil {
			log.Warn("activity log prune failed", "error", pruneErr)
		} else if n > 0 {
			log.Info("activity log pruned", "removed", n)
		}
	}
	recorder := audit.NewRecorder(activity, 0, log.Component("audit"))
	host.Subscribe(recorder.Listen)
	recorderCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		recorder.Run(recorderCtx)
	}()
	defer func() {
		stopRecorder()
		<-recorderDone
		if n := recorder.Dropped(); n > 0 {
			log.Warn("activity records dropped", "count", n)
		}
	}()

	var mqttBridge *bridge.Bridge
	if mqttClient != nil {
		mqttBridge, err = bridge.New(bridge.Options{
			Publisher:      mqttClient,
			Host:           host,
			Handlers:       registry,
			Topics:         mqttClient.Topics(),
			QoS:            mqttClient.QoS(),
			HealthInterval: cfg.MQTT.HealthInterval,
			CommandTimeout: cfg.Controller.CommandTimeout + cfg.Controller.RefreshDelay + cfg.Controller.UpdateTimeout,
			Version:        version,
			Logger:         log.Component("bridge"),
		})
		if err != nil {
			return fmt.Errorf("creating MQTT bridge: %w", err)
		}
		host.Subscribe(mqttBridge.HandleEvent)
	}

	if err := host.Start(ctx); err != nil {
		return fmt.Errorf("starting integration host: %w", err)
	}
	defer func() {
		log.Info("stopping integration host")
		if stopErr := host.Stop(context.Background()); stopErr != nil {
			log.Error("error stopping integration host", "error", stopErr)
		}
	}()

	if err := seedEntries(ctx, host, cfg.Entries, log); err != nil {
		return fmt.Errorf("seeding config entries: %w", err)
	}

	if mqttBridge != nil {
		if err := mqttBridge.Start(ctx); err != nil {
			return fmt.Errorf("starting MQTT bridge: %w", err)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			mqttBridge.Stop()
		}()
	}

	if cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log.Component("api"),
			Host:     host,
			Handlers: registry,
			Activity: activity,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"entries", len(host.Entries()),
		"lights", len(host.States()),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LEDCONTROLLER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LEDCONTROLLER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newHost builds the integration host and registers both integrations on
// the shared registry.
func newHost(cfg *config.Config, db *database.DB, registry *ledcontroller.Registry, log *logging.Logger) (*platform.Host, error) {
	host := platform.NewHost(platform.Options{
		Entries:          platform.NewSQLiteEntryRepository(db.DB),
		History:          platform.NewSQLiteHistoryRepository(db.DB),
		HistoryRetention: cfg.Database.HistoryRetention,
		PollInterval:     cfg.Controller.PollInterval,
		SetupRetry: platform.RetryPolicy{
			InitialInterval: cfg.Controller.SetupRetry.InitialInterval,
			MaxInterval:     cfg.Controller.SetupRetry.MaxInterval,
			MaxElapsed:      cfg.Controller.SetupRetry.MaxElapsed,
		},
		Logger: log.Component("host"),
	})

	timing := controllerTiming(cfg.Controller)
	integrations := []platform.Integration{
		ledintegration.New(ledintegration.Options{
			Registry: registry,
			Timing:   timing,
			Logger:   log.Component(ledintegration.Domain),
		}),
		multivision.New(multivision.Options{
			Registry: registry,
			Timing:   timing,
			Logger:   log.Component(multivision.Domain),
		}),
	}
	for _, integ := range integrations {
		if err := host.RegisterIntegration(integ); err != nil {
			return nil, fmt.Errorf("registering integration: %w", err)
		}
	}
	return host, nil
}

// controllerTiming maps the controller config section onto integration timing.
func controllerTiming(c config.ControllerConfig) ledcontroller.Timing {
	return ledcontroller.Timing{
		ConnectTimeout:    c.ConnectTimeout,
		CommandTimeout:    c.CommandTimeout,
		UpdateTimeout:     c.UpdateTimeout,
		RefreshDelay:      c.RefreshDelay,
		RegistrationDelay: c.RegistrationDelay,
	}
}

// seedEntries creates the config entries declared in the YAML file that are
// not stored yet. An entry counts as stored when one with the same domain
// has every seeded data value.
//
// Returns:
//   - error: Only persistence failures; invalid seeds are logged and skipped
func seedEntries(ctx context.Context, host *platform.Host, seeds []config.EntryConfig, log *logging.Logger) error {
	existing := host.Entries()
	for _, seed := range seeds {
		if seededAlready(existing, seed) {
			continue
		}

		e, err := host.CreateEntry(ctx, seed.Domain, seed.Data)
		var fields platform.FieldErrors
		switch {
		case errors.As(err, &fields) && fields["base"] == platform.ReasonAlreadyConfigured:
			log.Info("config entry lights already configured, seed skipped",
				"domain", seed.Domain, "title", seed.Title)
			continue
		case errors.As(err, &fields), errors.Is(err, platform.ErrIntegrationNotFound):
			log.Error("invalid config entry in configuration file",
				"domain", seed.Domain, "title", seed.Title, "error", err)
			continue
		case err != nil:
			return err
		}
		existing = append(existing, e)
		log.Info("config entry seeded", "entry", e.ID, "domain", e.Domain, "state", e.State)
	}
	return nil
}

func seededAlready(existing []platform.Entry, seed config.EntryConfig) bool {
	for _, e := range existing {
		if e.Domain == seed.Domain && hasValues(e.Data, seed.Data) {
			return true
		}
	}
	return false
}

// hasValues reports whether data holds every value in want. Numbers compare
// by integer value; everything else by its printed form.
func hasValues(data, want map[string]any) bool {
	for k, wv := range want {
		dv, ok := data[k]
		if !ok {
			return false
		}
		if wi, ok := platform.ToInt(wv); ok {
			if di, ok := platform.ToInt(dv); ok && di == wi {
				continue
			}
			return false
		}
		if fmt.Sprint(dv) != fmt.Sprint(wv) {
			return false
		}
	}
	return true
}

// telemetryListener writes light state changes and command outcomes to
// InfluxDB. A nil client drops every write.
func telemetryListener(client *influxdb.Client) platform.Listener {
	return func(ev platform.Event) {
		switch {
		case ev.Type == platform.EventStateChanged && ev.State != nil:
			s := ev.State
			client.WriteLightState(influxdb.LightSample{
				UniqueID:     s.UniqueID,
				EntryID:      s.EntryID,
				Domain:       s.Domain,
				IsOn:         s.IsOn,
				Brightness:   s.Brightness,
				Available:    s.Available,
				UpdateFailed: s.UpdateFailed,
				Time:         s.LastUpdated,
			})
		case ev.Type == platform.EventCommand && ev.Command != nil:
			var cmdErr error
			if ev.Command.Error != "" {
				cmdErr = errors.New(ev.Command.Error)
			}
			client.WriteLightCommand(ev.Command.UniqueID, ev.Command.Action, ev.Command.Duration, cmdErr)
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Controller connections are not checked: an unreachable controller
	// leaves its entry in setup_retry without stopping the service.
	return nil
}
