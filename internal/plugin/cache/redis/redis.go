package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/metanexus/metadata-service/internal/config"
	"github.com/metanexus/metadata-service/internal/model"
	registrycache "github.com/metanexus/metadata-service/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.EntityCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: METADATA_SERVICE_REDIS_URL is required")
	}
	ttl := cfg.CacheEntityTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, ttl)
}

// LoadFromURLWithTTL creates an EntityCache with an explicit per-entry TTL.
// Exported so tests and embedded deployments can build a cache without config.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.EntityCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisEntityCache{client: client, ttl: ttl}, nil
}

type redisEntityCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func entityKey(id string) string {
	return "entity:" + id
}

func (c *redisEntityCache) Available() bool { return true }

func (c *redisEntityCache) Get(ctx context.Context, id string) (*model.Entity, error) {
	data, err := c.client.Get(ctx, entityKey(id)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entity model.Entity
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

func (c *redisEntityCache) Set(ctx context.Context, entity model.Entity, ttl time.Duration) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, entityKey(entity.ID), data, ttl).Err()
}

func (c *redisEntityCache) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = entityKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}

var _ registrycache.EntityCache = (*redisEntityCache)(nil)
