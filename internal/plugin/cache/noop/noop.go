package noop

import (
	"context"
	"time"

	"github.com/metanexus/metadata-service/internal/model"
	"github.com/metanexus/metadata-service/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.EntityCache, error) {
			return &noopEntityCache{}, nil
		},
	})
}

type noopEntityCache struct{}

func (n *noopEntityCache) Available() bool { return false }
func (n *noopEntityCache) Get(_ context.Context, _ string) (*model.Entity, error) {
	return nil, nil
}
func (n *noopEntityCache) Set(_ context.Context, _ model.Entity, _ time.Duration) error { return nil }
func (n *noopEntityCache) Remove(_ context.Context, _ ...string) error                  { return nil }

var _ cache.EntityCache = (*noopEntityCache)(nil)
