package serve

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/metanexus/metadata-service/internal/config"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/metanexus/metadata-service/internal/plugin/cache/noop"
	_ "github.com/metanexus/metadata-service/internal/plugin/cache/redis"
	_ "github.com/metanexus/metadata-service/internal/plugin/cache/ristretto"
	_ "github.com/metanexus/metadata-service/internal/plugin/route/system"
	_ "github.com/metanexus/metadata-service/internal/plugin/store/memory"
	_ "github.com/metanexus/metadata-service/internal/plugin/store/mongo"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	var lockTimeoutSecs int = 30
	var cacheEntityTTLSecs int = 600
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the metadata service HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs, &lockTimeoutSecs, &cacheEntityTTLSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.LockTimeout = time.Duration(lockTimeoutSecs) * time.Second
			cfg.CacheEntityTTL = time.Duration(cacheEntityTTLSecs) * time.Second
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs, lockTimeoutSecs, cacheEntityTTLSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("METADATA_SERVICE_PORT"),
			Destination: &cfg.Port,
			Value:       cfg.Port,
			Usage:       "HTTP server port",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("METADATA_SERVICE_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.BoolFlag{
			Name:        "access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("METADATA_SERVICE_ACCESS_LOG"),
			Destination: &cfg.AccessLog,
			Usage:       "Enable HTTP access logging for all endpoints, including /health, /ready, /metrics",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("METADATA_SERVICE_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown drain timeout in seconds",
		},
		&cli.Int64Flag{
			Name:        "max-body-size",
			Category:    "Server:",
			Sources:     cli.EnvVars("METADATA_SERVICE_MAX_BODY_SIZE"),
			Destination: &cfg.MaxBodySize,
			Value:       cfg.MaxBodySize,
			Usage:       "Maximum request body size in bytes",
		},
		&cli.StringFlag{
			Name:        "export-dir",
			Category:    "Server:",
			Sources:     cli.EnvVars("METADATA_SERVICE_EXPORT_DIR"),
			Destination: &cfg.ExportDir,
			Usage:       "Directory for staged export files; defaults to OS temp directory",
		},

		// ── Database ──────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("METADATA_SERVICE_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Store backend (mongo|memory)",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("METADATA_SERVICE_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "MongoDB connection URL",
		},
		&cli.StringFlag{
			Name:        "db-name",
			Category:    "Database:",
			Sources:     cli.EnvVars("METADATA_SERVICE_DB_NAME"),
			Destination: &cfg.DBName,
			Value:       cfg.DBName,
			Usage:       "Database name",
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("METADATA_SERVICE_DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Run datastore migrations on startup",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("METADATA_SERVICE_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("METADATA_SERVICE_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Minimum pooled database connections",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("METADATA_SERVICE_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Entity cache backend (none|ristretto|redis)",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars("METADATA_SERVICE_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL for the redis cache backend",
		},
		&cli.IntFlag{
			Name:        "cache-entity-ttl-seconds",
			Category:    "Cache:",
			Sources:     cli.EnvVars("METADATA_SERVICE_CACHE_ENTITY_TTL_SECONDS"),
			Destination: cacheEntityTTLSecs,
			Value:       *cacheEntityTTLSecs,
			Usage:       "Cached entity TTL in seconds",
		},

		// ── Editing ───────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "lock-timeout-seconds",
			Category:    "Editing:",
			Sources:     cli.EnvVars("METADATA_SERVICE_LOCK_TIMEOUT_SECONDS"),
			Destination: lockTimeoutSecs,
			Value:       *lockTimeoutSecs,
			Usage:       "Edit lock auto-release timeout in seconds",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}
