// BioCard Core - authentication and transport security service.
//
// This is the main entry point for the BioCard Core application. It
// wires the SQLite-backed repositories, the end-to-end encryption
// manager, the security telemetry monitor and the HTTP API together,
// then waits for a shutdown signal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/openbiocards/biocard-core/migrations"

	"github.com/openbiocards/biocard-core/internal/api"
	"github.com/openbiocards/biocard-core/internal/auth"
	"github.com/openbiocards/biocard-core/internal/crypto"
	"github.com/openbiocards/biocard-core/internal/infrastructure/config"
	"github.com/openbiocards/biocard-core/internal/infrastructure/database"
	"github.com/openbiocards/biocard-core/internal/infrastructure/influxdb"
	"github.com/openbiocards/biocard-core/internal/infrastructure/logging"
	"github.com/openbiocards/biocard-core/internal/profile"
	"github.com/openbiocards/biocard-core/internal/system"
	"github.com/openbiocards/biocard-core/internal/telemetry"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded.
	log := logging.Default()
	log.Info("starting BioCard Core",
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

	// Reinitialise logger with config settings.
	log = logging.New(cfg.Logging, version)

	// Development fallback secrets are fine locally, loud in production.
	for _, name := range cfg.InsecureDefaults() {
		log.Warn("development default secret in use, set a real value before deploying",
			"setting", name)
	}

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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories share the one connection pool.
	users := auth.NewUserRepository(db.DB)
	profiles := profile.NewRepository(db.DB)
	systemCfg := system.NewConfigRepository(db.DB)

	systemSvc := system.NewService(systemCfg, users, log)
	if repairErr := systemSvc.Repair(ctx); repairErr != nil {
		return fmt.Errorf("checking system state: %w", repairErr)
	}
	status, err := systemSvc.Status(ctx)
	if err != nil {
		return fmt.Errorf("reading system state: %w", err)
	}
	log.Info("system state loaded", "initialized", status.IsInitialized)

	// Connect to InfluxDB (optional telemetry export).
	var exporter telemetry.Exporter
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case err == nil:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		exporter = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	default:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	monitor := telemetry.NewMonitor(0, log, exporter)

	// Key manager generates the first keypair and starts rotation.
	cryptoMgr := crypto.NewManager(crypto.Config{
		RotationInterval: cfg.RotationInterval(),
		KeyRetention:     cfg.Encryption.KeyRetention,
		FreshnessWindow:  cfg.FreshnessWindow(),
	}, log)
	if startErr := cryptoMgr.Start(); startErr != nil {
		return fmt.Errorf("starting key manager: %w", startErr)
	}
	defer func() {
		log.Info("stopping key manager")
		if closeErr := cryptoMgr.Close(); closeErr != nil {
			log.Error("error stopping key manager", "error", closeErr)
		}
	}()

	clientTokens := crypto.NewClientTokenIssuer(
		cfg.Security.ClientToken.Secret, cfg.ClientTokenTTL())

	server, err := api.New(api.Deps{
		Config:       cfg.API,
		Security:     cfg.Security,
		Logger:       log,
		Users:        users,
		System:       systemSvc,
		Profiles:     profiles,
		Crypto:       cryptoMgr,
		ClientTokens: clientTokens,
		Monitor:      monitor,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, server, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (drains in-flight requests)
	// 2. Key manager
	// 3. InfluxDB (if enabled)
	// 4. Database

	log.Info("BioCard Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses BIOCARD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BIOCARD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the infrastructure is healthy after startup.
// influxClient may be nil when the integration is disabled.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
