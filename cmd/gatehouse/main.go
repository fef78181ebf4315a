// Gatehouse - access-control service
//
// This is the main entry point for the gatehouse service. It owns session
// tokens, role-based permission checks and password resets for the
// accounts in its SQLite store, and exposes them over a REST API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gatehouse/migrations"

	"github.com/nerrad567/gatehouse/internal/api"
	"github.com/nerrad567/gatehouse/internal/audit"
	"github.com/nerrad567/gatehouse/internal/auth"
	"github.com/nerrad567/gatehouse/internal/infrastructure/config"
	"github.com/nerrad567/gatehouse/internal/infrastructure/database"
	"github.com/nerrad567/gatehouse/internal/infrastructure/influxdb"
	"github.com/nerrad567/gatehouse/internal/infrastructure/logging"
	"github.com/nerrad567/gatehouse/internal/infrastructure/mqtt"
	"github.com/nerrad567/gatehouse/internal/notify"
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

// startupHealthTimeout bounds the health check run before serving.
const startupHealthTimeout = 10 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting gatehouse",
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

	// Open database
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

	users := auth.NewCredentialStore(db.DB)
	resets := auth.NewResetStore(db.DB)

	if _, seedErr := auth.SeedSuperuser(ctx, users, auth.SuperuserSeed{
		Username: cfg.Security.Superuser.Username,
		Password: cfg.Security.Superuser.Password,
		Email:    cfg.Security.Superuser.Email,
	}, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding superuser: %w", seedErr)
	}

	health := map[string]api.HealthChecker{"database": db}

	// Connect to MQTT broker (optional): carries reset-link notifications
	var notifier notify.Dispatcher = notify.NewLogDispatcher(log.Logger)
	if cfg.MQTT.Enabled {
		mqttClient, connErr := mqtt.Connect(cfg.MQTT)
		if connErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", connErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		notifier = notify.NewMQTTDispatcher(mqttClient, mqttClient.Topics().ResetLink(),
			cfg.Security.Reset.LinkBaseURL, log.Logger)
		health["mqtt"] = mqttClient
	} else {
		log.Warn("MQTT disabled, reset links will only be logged")
	}

	// Audit trail: one drain goroutine, flushed after the API stops
	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, log.Logger)
	auditCtx, stopAudit := context.WithCancel(context.WithoutCancel(ctx))
	auditDone := make(chan struct{})
	go func() {
		recorder.Run(auditCtx)
		close(auditDone)
	}()
	defer func() {
		stopAudit()
		<-auditDone
		log.Info("audit log flushed", "dropped", recorder.Dropped())
	}()

	metrics := api.NewMetrics(db.DB)
	metrics.TrackAuditDrops(recorder.Dropped)
	recorders := auth.MultiRecorder{recorder, metrics}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
			log.Info("InfluxDB connection closed",
				"written", influxClient.Written(),
				"dropped", influxClient.Dropped(),
			)
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
			"measurement", cfg.InfluxDB.Measurement,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorders = append(recorders, influxRecorder{client: influxClient})
		health["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Access-control core
	authCfg := authConfig(cfg)
	opts := []auth.Option{auth.WithLogger(log.Logger), auth.WithRecorder(recorders)}

	sessions, err := auth.NewSessionAuthenticator(authCfg, users, opts...)
	if err != nil {
		return fmt.Errorf("creating session authenticator: %w", err)
	}
	gate := auth.NewPermissionGate(authCfg, sessions, auth.NewRoleResolver(users, authCfg.StoreTimeout), users, opts...)
	resetMgr := auth.NewResetManager(authCfg, users, resets, opts...)

	stopPurge := startPurge(ctx, resetMgr, cfg.ResetPurgeInterval(), log)
	defer stopPurge()

	// Verify all connections are healthy
	if err := healthCheck(ctx, health); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	server, err := api.New(api.Deps{
		Config:       cfg.API,
		Security:     cfg.Security,
		Logger:       log,
		Sessions:     sessions,
		Gate:         gate,
		Reset:        resetMgr,
		Users:        users,
		Notifier:     notifier,
		Audit:        recorder,
		AuditLogs:    auditRepo,
		Metrics:      metrics,
		Health:       health,
		StoreTimeout: authCfg.StoreTimeout,
		Version:      version,
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

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Reset credential purge
	// 3. InfluxDB (if enabled)
	// 4. Audit drain
	// 5. MQTT (if enabled)
	// 6. Database

	log.Info("gatehouse stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GATEHOUSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GATEHOUSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// authConfig builds the immutable core configuration from the loaded file.
func authConfig(cfg *config.Config) auth.Config {
	return auth.Config{
		SessionSecret:     []byte(cfg.Security.Session.Secret),
		SessionTTL:        cfg.SessionTTL(),
		Issuer:            cfg.Security.Session.Issuer,
		ResetWindow:       cfg.ResetWindow(),
		StoreTimeout:      cfg.StoreTimeout(),
		MinPasswordLength: cfg.Security.Password.MinLength,
	}
}

// healthCheck verifies every registered component, returning the first failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	ctx, cancel := context.WithTimeout(ctx, startupHealthTimeout)
	defer cancel()

	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
