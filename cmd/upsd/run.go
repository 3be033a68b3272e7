package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/upswatch/internal/api"
	"github.com/nerrad567/upswatch/internal/auth"
	"github.com/nerrad567/upswatch/internal/driver/dummy"
	"github.com/nerrad567/upswatch/internal/history"
	"github.com/nerrad567/upswatch/internal/infrastructure/config"
	"github.com/nerrad567/upswatch/internal/infrastructure/database"
	"github.com/nerrad567/upswatch/internal/infrastructure/influxdb"
	"github.com/nerrad567/upswatch/internal/infrastructure/logging"
	"github.com/nerrad567/upswatch/internal/infrastructure/mqtt"
	"github.com/nerrad567/upswatch/internal/panel"
	"github.com/nerrad567/upswatch/internal/sinks"
	"github.com/nerrad567/upswatch/internal/upsd"
	"github.com/nerrad567/upswatch/migrations"
)

const (
	// republishTimeout bounds the snapshot pushed to MQTT after a reconnect.
	republishTimeout = 10 * time.Second

	// pruneInterval spaces history retention passes.
	pruneInterval = time.Hour
)

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to config.yaml
//   - debug: Forces debug-level logging
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string, debug bool) error {
	log := logging.Default("upsd")
	log.Info("starting upsd", "version", version, "commit", commit, "build_date", date)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	log = logging.New(cfg.Logging, "upsd", version)
	log.Info("configuration loaded", "path", configPath, "devices", len(cfg.Devices))

	dispatcher := upsd.NewDispatcher(cfg.UPSD.EventQueueSize)
	dispatcher.SetLogger(log)

	daemon := upsd.New(daemonOptions(cfg), deviceConfigs(cfg))
	daemon.SetLogger(log)
	daemon.SetNotifier(dispatcher)

	users := auth.NewUsers(cfg.Users)
	health := make(map[string]api.HealthChecker)

	// Optional event history
	var repo *history.Repository
	if cfg.Database.Enabled {
		db, dbErr := database.Open(cfg.Database)
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("event history enabled", "path", db.Path())

		repo = history.NewRepository(db.DB)
		dispatcher.AddSink(sinks.NewHistorySink(repo, log))
		health["database"] = db
	}

	// Optional MQTT publishing and commands
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := connectMQTT(ctx, cfg, daemon, dispatcher, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		health["mqtt"] = mqttClient
	}

	// Optional InfluxDB time series
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
		dispatcher.AddSink(sinks.NewInfluxSink(influxClient))
		health["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	hub := api.NewHub(cfg.WebSocket, log)
	dispatcher.AddSink(hub)

	var srv *api.Server
	if cfg.API.Enabled {
		var historyReader api.HistoryReader
		if repo != nil {
			historyReader = repo
		}
		srv, err = api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log,
			UPS:      daemon,
			Users:    users,
			History:  historyReader,
			Hub:      hub,
			Panel:    panelHandler(cfg.API),
			Health:   health,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		log.Info("API server listening", "addr", srv.Addr())
	}

	dispatcher.Start()
	defer dispatcher.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return daemon.Run(gctx)
	})

	if srv != nil {
		g.Go(func() error {
			<-gctx.Done()
			return srv.Close()
		})
	}

	watcher := config.NewWatcher(configPath, cfg.UPSD.WatchConfig)
	watcher.SetLogger(log)
	g.Go(func() error {
		return watcher.Run(gctx, func(next *config.Config) {
			applyReload(gctx, daemon, users, next, log)
		})
	})

	if repo != nil && cfg.UPSD.HistoryRetentionDays > 0 {
		retention := time.Duration(cfg.UPSD.HistoryRetentionDays) * 24 * time.Hour
		g.Go(func() error {
			pruneHistory(gctx, repo, retention, log)
			return nil
		})
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("upsd stopped", "events_dropped", dispatcher.Dropped())
	return err
}

// connectMQTT connects to the broker and registers the publishing sink.
// Every (re)connect republishes the full state, and command topics are
// subscribed when commands_enabled is set.
func connectMQTT(ctx context.Context, cfg *config.Config, daemon *upsd.Daemon, dispatcher *upsd.Dispatcher, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)

	topics := client.Topics()
	sink := sinks.NewMQTTSink(client, topics, client.QoS(), log)
	dispatcher.AddSink(sink)

	client.SetOnConnect(func() {
		go func() {
			rctx, cancel := context.WithTimeout(ctx, republishTimeout)
			defer cancel()
			if err := sink.Republish(rctx, daemon); err != nil {
				log.Warn("MQTT republish failed", "error", err)
			}
		}()
	})

	if cfg.MQTT.Commands {
		handler := sinks.NewCommandHandler(daemon, topics, log)
		if err := client.Subscribe(topics.AllDeviceCommands(), client.QoS(), handler.Handle); err != nil {
			client.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("subscribing to MQTT commands: %w", err)
		}
	}

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"commands", cfg.MQTT.Commands,
	)
	return client, nil
}

// applyReload hands a re-read configuration to the running daemon. Only
// the device list and the users change at runtime; outputs and the API
// listener keep their startup settings.
func applyReload(ctx context.Context, daemon *upsd.Daemon, users *auth.Users, cfg *config.Config, log *logging.Logger) {
	if err := daemon.Reload(ctx, deviceConfigs(cfg)); err != nil {
		log.Error("applying device list failed", "error", err)
		return
	}
	users.Replace(cfg.Users)
	log.Info("configuration reloaded", "devices", len(cfg.Devices), "users", users.Len())
}

func pruneHistory(ctx context.Context, repo *history.Repository, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := repo.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("pruning event history failed", "error", err)
		case n > 0:
			log.Info("pruned event history", "removed", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func panelHandler(cfg config.APIConfig) http.Handler {
	if !cfg.Panel {
		return nil
	}
	return panel.Handler(cfg.PanelDir)
}

// daemonOptions maps the upsd section of the config onto daemon options.
func daemonOptions(cfg *config.Config) upsd.Options {
	return upsd.Options{
		StatePath:           cfg.StatePath,
		MaxAge:              config.Seconds(cfg.UPSD.MaxAge),
		PingInterval:        config.Seconds(cfg.UPSD.PingInterval),
		ReconnectInterval:   config.Seconds(cfg.UPSD.ReconnectInterval),
		ConnFailLogInterval: config.Seconds(cfg.UPSD.ConnFailLogInterval),
		Discover:            cfg.UPSD.Discover,
		KnownDrivers:        knownDrivers(cfg),
	}
}

func deviceConfigs(cfg *config.Config) []upsd.DeviceConfig {
	out := make([]upsd.DeviceConfig, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		out = append(out, upsd.DeviceConfig{
			Name:   d.Name,
			Driver: d.Driver,
			Port:   d.Port,
			Desc:   d.Desc,
		})
	}
	return out
}

// knownDrivers lists driver names used to split discovered socket names.
func knownDrivers(cfg *config.Config) []string {
	seen := map[string]bool{dummy.DriverName: true}
	out := []string{dummy.DriverName}
	for _, d := range cfg.Devices {
		if !seen[d.Driver] {
			seen[d.Driver] = true
			out = append(out, d.Driver)
		}
	}
	return out
}
