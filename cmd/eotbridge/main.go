// Command eotbridge synchronizes EOT Home devices between the vendor
// cloud and local consumers: periodic REST polls, live MQTT push
// updates, and outbound device commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/eotlabs/eot-cloud-core/internal/auth"
	"github.com/eotlabs/eot-cloud-core/internal/cloud"
	"github.com/eotlabs/eot-cloud-core/internal/device"
	"github.com/eotlabs/eot-cloud-core/internal/infrastructure/config"
	"github.com/eotlabs/eot-cloud-core/internal/infrastructure/database"
	"github.com/eotlabs/eot-cloud-core/internal/infrastructure/influxdb"
	"github.com/eotlabs/eot-cloud-core/internal/infrastructure/logging"
	"github.com/eotlabs/eot-cloud-core/internal/push"
	"github.com/eotlabs/eot-cloud-core/internal/sync"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "eotbridge: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootLog := logging.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		bootLog.Error("configuration load failed", "path", configPath, "error", err)
		return err
	}

	logger := logging.New(cfg.Logging, version)
	logger.Info("starting eot cloud bridge", "config", configPath)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		logger.Error("database open failed", "error", err)
		return err
	}
	defer db.Close() //nolint:errcheck // Shutdown path

	if err := db.Migrate(ctx); err != nil {
		logger.Error("database migration failed", "error", err)
		return err
	}

	var telemetry *influxdb.Client
	switch tc, err := influxdb.Connect(cfg.InfluxDB); {
	case err == nil:
		telemetry = tc
		telemetry.SetOnError(func(err error) {
			logger.Warn("telemetry write failed", "error", err)
		})
		defer telemetry.Close() //nolint:errcheck // Shutdown path
		logger.Info("telemetry connected", "url", cfg.InfluxDB.URL)
	case errors.Is(err, influxdb.ErrDisabled):
		logger.Info("telemetry disabled")
	default:
		// Telemetry is optional; the bridge runs without it.
		logger.Warn("telemetry unavailable", "error", err)
	}

	tokens := auth.NewManager(cfg.Cloud, cfg.Auth)
	tokens.SetLogger(logger.With("component", "auth"))

	api := cloud.NewClient(cfg.Cloud, tokens)
	api.SetLogger(logger.With("component", "cloud"))

	store := device.NewStore()
	history := device.NewSQLiteStateHistoryRepository(db.DB)

	user := cfg.Auth.Username
	entryID := uuid.NewString()

	pusher := push.NewClient(cfg.MQTT, user, entryID, cfg.Sync.EventBuffer, tokens)
	pusher.SetLogger(logger.With("component", "push"))
	pusher.SetOnDrop(func() {
		telemetry.WritePushEvent(influxdb.PushOutcomeOverflow)
	})
	if err := pusher.Start(ctx); err != nil {
		logger.Error("push client start failed", "error", err)
		return err
	}
	defer pusher.Stop()

	coordinator := sync.NewCoordinator(cfg.Sync, user, api, pusher, store)
	coordinator.SetLogger(logger.With("component", "sync"))
	coordinator.SetTokenInvalidator(tokens)
	coordinator.SetHistory(history)
	coordinator.SetTelemetry(telemetry)
	coordinator.Start(ctx)
	defer coordinator.Stop()

	logger.Info("bridge running",
		"poll_interval", cfg.Sync.Interval,
		"broker", cfg.MQTT.Broker.Host,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
