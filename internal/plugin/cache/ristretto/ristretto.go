// Package ristretto provides an in-process EntityCache for single-instance
// deployments where a Redis round trip costs more than it saves.
package ristretto

import (
	"context"
	"time"

	dgristretto "github.com/dgraph-io/ristretto/v2"
	"github.com/metanexus/metadata-service/internal/config"
	"github.com/metanexus/metadata-service/internal/model"
	registrycache "github.com/metanexus/metadata-service/internal/registry/cache"
)

const defaultTTL = 10 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "ristretto",
		Loader: func(ctx context.Context) (registrycache.EntityCache, error) {
			ttl := defaultTTL
			if cfg := config.FromContext(ctx); cfg != nil && cfg.CacheEntityTTL > 0 {
				ttl = cfg.CacheEntityTTL
			}
			return New(ttl)
		},
	})
}

// New creates an EntityCache backed by a ristretto cache sized for roughly
// 100k tracked entities.
func New(ttl time.Duration) (registrycache.EntityCache, error) {
	inner, err := dgristretto.NewCache(&dgristretto.Config[string, model.Entity]{
		NumCounters: 1e5,
		MaxCost:     1 << 26,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &entityCache{inner: inner, ttl: ttl}, nil
}

type entityCache struct {
	inner *dgristretto.Cache[string, model.Entity]
	ttl   time.Duration
}

func (c *entityCache) Available() bool { return true }

func (c *entityCache) Get(_ context.Context, id string) (*model.Entity, error) {
	entity, ok := c.inner.Get(id)
	if !ok {
		return nil, nil
	}
	return &entity, nil
}

func (c *entityCache) Set(_ context.Context, entity model.Entity, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	c.inner.SetWithTTL(entity.ID, entity, 1, ttl)
	return nil
}

func (c *entityCache) Remove(_ context.Context, ids ...string) error {
	for _, id := range ids {
		c.inner.Del(id)
	}
	return nil
}

var _ registrycache.EntityCache = (*entityCache)(nil)
