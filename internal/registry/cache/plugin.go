package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/metanexus/metadata-service/internal/model"
)

type entityCacheKey struct{}

// WithEntityCacheContext returns a new context carrying the given EntityCache.
func WithEntityCacheContext(ctx context.Context, c EntityCache) context.Context {
	return context.WithValue(ctx, entityCacheKey{}, c)
}

// EntityCacheFromContext retrieves the EntityCache from the context.
// Returns nil if none was set.
func EntityCacheFromContext(ctx context.Context) EntityCache {
	c, _ := ctx.Value(entityCacheKey{}).(EntityCache)
	return c
}

// EntityCache caches Entity documents by identifier. Lifecycle operations
// invalidate every identifier they touch, including reciprocal neighbors.
type EntityCache interface {
	Available() bool
	Get(ctx context.Context, id string) (*model.Entity, error)
	Set(ctx context.Context, entity model.Entity, ttl time.Duration) error
	Remove(ctx context.Context, ids ...string) error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (EntityCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
