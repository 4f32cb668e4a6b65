// MCS Device Service - supervisor for remote proxy/controller services.
//
// The service keeps device configuration in SQLite, probes every enabled
// device in a loop, asks healthy devices to start, and publishes each
// evaluation on the MQTT event bus. An HTTP API exposes cached statuses,
// configuration CRUD and operator commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/mcs-device-service/migrations"

	"github.com/nerrad567/mcs-device-service/internal/api"
	"github.com/nerrad567/mcs-device-service/internal/controller"
	"github.com/nerrad567/mcs-device-service/internal/device"
	"github.com/nerrad567/mcs-device-service/internal/events"
	"github.com/nerrad567/mcs-device-service/internal/infrastructure/config"
	"github.com/nerrad567/mcs-device-service/internal/infrastructure/database"
	"github.com/nerrad567/mcs-device-service/internal/infrastructure/influxdb"
	"github.com/nerrad567/mcs-device-service/internal/infrastructure/logging"
	"github.com/nerrad567/mcs-device-service/internal/infrastructure/mqtt"
	"github.com/nerrad567/mcs-device-service/internal/monitor"
	"github.com/nerrad567/mcs-device-service/internal/status"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv names the environment variable holding the config path.
const configEnv = "DEVICE_SERVICE_CONFIG"

type options struct {
	configPath  string
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("device-service %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, getConfigPath(opts.configPath)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("deviceservice", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// getConfigPath resolves the config path: flag, then environment, then default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting device service",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	repo := device.NewSQLiteRepository(db.DB)
	statuses := status.NewCache()
	snapshot := device.NewSnapshot(statuses)
	snapshot.SetLogger(log)

	hub := api.NewHub(cfg.WebSocket, log, statuses)

	// A failed bus connection is not fatal: events are dropped and
	// monitoring continues.
	var bus events.Bus
	var busHealth api.HealthChecker
	mqttClient, err := mqtt.Connect(ctx, cfg.MQTT, mqtt.WithLogger(log))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("MQTT unavailable, events will be dropped", "error", err)
	} else {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT connection lost", "error", err)
		})
		bus, busHealth = mqttClient, mqttClient

		listener := events.NewListener(mqttClient, byte(cfg.MQTT.QoS), hub)
		listener.SetLogger(log)
		if err := listener.Start(); err != nil {
			log.Warn("event listener failed to subscribe", "error", err)
		}
	}

	publisher := events.NewPublisher(bus, byte(cfg.MQTT.QoS))
	publisher.SetLogger(log)

	deps := monitor.Deps{
		Snapshot:   snapshot,
		Statuses:   statuses,
		Devices:    repo,
		Controller: controller.NewClient(cfg.Controller),
		Events:     publisher,
		Config:     cfg.Monitor,
	}
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		log.Warn("InfluxDB unavailable, cycle telemetry off", "error", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		deps.Recorder = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	mon, err := monitor.New(deps)
	if err != nil {
		return fmt.Errorf("creating monitor: %w", err)
	}
	mon.SetLogger(log)

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Devices:  repo,
		Statuses: statuses,
		Monitor:  mon,
		Events:   publisher,
		DB:       db,
		MQTT:     busHealth,
		Hub:      hub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := server.Start(gctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return mon.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return server.Close()
	})

	log.Info("initialisation complete", "api", server.Addr())
	err = g.Wait()
	log.Info("device service stopped")
	return err
}
