package config

import (
	"context"
	"os"
	"strings"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the metadata service.
type Config struct {
	// Database
	DBURL  string
	DBName string

	// Datastore backend type: "mongo" or "memory".
	DatastoreType string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Cache backend type: "ristretto", "redis", or "none".
	CacheType string

	// Redis
	RedisURL string

	// Cached Entity TTL.
	CacheEntityTTL time.Duration

	// Edit-lock auto-release timeout.
	LockTimeout time.Duration

	// Server
	Port              int
	ReadHeaderTimeout time.Duration
	AccessLog         bool

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int

	// Body size limit (bytes)
	MaxBodySize int64

	// Directory for generated export files. Empty uses the platform default
	// temp directory.
	ExportDir string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DBName:                  "metadata_service",
		DatastoreType:           "mongo",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		CacheType:               "none",
		CacheEntityTTL:          10 * time.Minute,
		LockTimeout:             30 * time.Second,
		Port:                    8080,
		ReadHeaderTimeout:       5 * time.Second,
		DrainTimeout:            30,
		MaxBodySize:             20 * 1024 * 1024, // 20 MB
	}
}

// ResolvedExportDir returns the configured export directory or the platform
// default temp directory.
func (c *Config) ResolvedExportDir() string {
	if c == nil {
		return os.TempDir()
	}
	if dir := strings.TrimSpace(c.ExportDir); dir != "" {
		return dir
	}
	return os.TempDir()
}
