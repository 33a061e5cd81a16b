// Fritz!Presence mirrors Fritz!Box host presence into Domoticz.
//
// Each watched device becomes a virtual switch that is On while the router
// reports the device as connected. Switching a device On in Domoticz sends
// wake-on-LAN, and an admin selector imports or removes devices in bulk.
//
// Usage:
//
//	fritzpresence                  run the service
//	fritzpresence hash-password    read a password from stdin, print its Argon2id hash
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/nerrad567/fritz-presence/migrations"

	"github.com/nerrad567/fritz-presence/internal/api"
	"github.com/nerrad567/fritz-presence/internal/auth"
	"github.com/nerrad567/fritz-presence/internal/bridge"
	"github.com/nerrad567/fritz-presence/internal/device"
	"github.com/nerrad567/fritz-presence/internal/domoticz"
	"github.com/nerrad567/fritz-presence/internal/fritzbox"
	"github.com/nerrad567/fritz-presence/internal/infrastructure/broker"
	"github.com/nerrad567/fritz-presence/internal/infrastructure/config"
	"github.com/nerrad567/fritz-presence/internal/infrastructure/database"
	"github.com/nerrad567/fritz-presence/internal/infrastructure/influxdb"
	"github.com/nerrad567/fritz-presence/internal/infrastructure/logging"
	"github.com/nerrad567/fritz-presence/internal/infrastructure/mqtt"
	"github.com/nerrad567/fritz-presence/internal/presence"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// hashPassword reads one line from r and writes its PHC hash to w.
func hashPassword(r io.Reader, w io.Writer) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return fmt.Errorf("empty password")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Fritz!Presence",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version, logging.WithDebug(cfg.Presence.Debug))
	log.Info("configuration loaded", "path", configPath, "debug", cfg.Presence.Debug)

	pollInterval, err := cfg.PollInterval()
	if err != nil {
		return err
	}

	macs, invalid := presence.ParseMACList(cfg.Presence.MACs)
	for _, m := range invalid {
		log.Warn("ignoring invalid MAC address", "value", m)
	}

	// Embedded broker first so the client below can reach it.
	if cfg.MQTT.Embedded.Enabled {
		b, brokerErr := broker.New(cfg.MQTT, log.With("component", "broker").Logger)
		if brokerErr != nil {
			return fmt.Errorf("creating embedded broker: %w", brokerErr)
		}
		if startErr := b.Start(); startErr != nil {
			return fmt.Errorf("starting embedded broker: %w", startErr)
		}
		defer func() {
			log.Info("stopping embedded MQTT broker")
			if closeErr := b.Close(); closeErr != nil {
				log.Error("error stopping broker", "error", closeErr)
			}
		}()
		log.Info("embedded MQTT broker started", "listen", cfg.MQTT.Embedded.Listen)
	}

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
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.With("component", "registry"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry loaded", "devices", registry.Count())

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	health := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}

	var metrics bridge.Metrics
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
		metrics = influxClient
		health["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	router := fritzbox.New(cfg.Router, fritzbox.WithLogger(log.With("component", "fritzbox")))
	defer router.Close()

	tracker, err := presence.NewTracker(router, macs, presence.Options{
		Filters:          cfg.Presence.Filters,
		LocalWOL:         cfg.Presence.LocalWOL.Enabled,
		BroadcastAddress: cfg.Presence.LocalWOL.BroadcastAddress,
		Logger:           log.With("component", "presence"),
	})
	if err != nil {
		return fmt.Errorf("creating presence tracker: %w", err)
	}

	domo := domoticz.New(cfg.Domoticz, domoticz.WithLogger(log.With("component", "domoticz")))
	if v, versionErr := domo.Version(ctx); versionErr != nil {
		log.Warn("Domoticz not reachable yet", "error", versionErr)
	} else {
		log.Info("Domoticz reachable", "version", v)
	}
	health["domoticz"] = domo

	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"))

	b, err := bridge.New(bridge.Options{
		Tracker:          tracker,
		Domoticz:         domo,
		Registry:         registry,
		MQTT:             mqttClient,
		Topics:           mqttClient.Topics(),
		QoS:              mqttClient.QoS(),
		Metrics:          metrics,
		Broadcaster:      hub,
		Logger:           log.With("component", "bridge"),
		PollInterval:     pollInterval,
		InitialMACs:      macs,
		HardwareIdx:      cfg.Domoticz.HardwareIdx,
		AdminName:        cfg.Domoticz.AdminName,
		HistoryRetention: time.Duration(cfg.Database.HistoryRetentionDays) * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if startErr := b.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer b.Stop()

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log.With("component", "api"),
			Registry: registry,
			Bridge:   b,
			Hosts:    tracker,
			Health:   health,
			Hub:      hub,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		// The hub still needs its shutdown loop.
		hubCtx, hubCancel := context.WithCancel(ctx)
		defer hubCancel()
		go hub.Run(hubCtx)
	}

	log.Info("initialisation complete",
		"poll_interval", pollInterval.String(),
		"watched_devices", len(registry.ListPresence()),
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns FRITZPRESENCE_CONFIG or the default path.
func getConfigPath() string {
	if path := os.Getenv("FRITZPRESENCE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
