// Package service implements the lifecycle managers for entities, projects,
// collections, templates, and the activity log. All graph bookkeeping funnels
// through the reconcile package and the mutation applier here; handlers stay
// thin.
package service

import (
	"time"

	registrycache "github.com/metanexus/metadata-service/internal/registry/cache"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
)

// Services bundles the domain managers over one DocumentStore.
type Services struct {
	Entities    *EntityService
	Projects    *ProjectService
	Collections *CollectionService
	Templates   *TemplateService
	Activity    *ActivityService
	Locks       *LockManager
}

// Options tunes service construction.
type Options struct {
	// Cache is consulted on entity reads and invalidated on writes.
	// Nil disables caching.
	Cache registrycache.EntityCache

	// LockTimeout is the edit lock auto-release interval. Zero uses the
	// default of 30 seconds.
	LockTimeout time.Duration
}

// New wires the lifecycle managers over the given store.
func New(store registrystore.DocumentStore, opts Options) *Services {
	activity := &ActivityService{store: store}
	apply := &applier{store: store, cache: opts.Cache}
	locks := newKeyedMutex()

	return &Services{
		Entities: &EntityService{
			store:    store,
			cache:    opts.Cache,
			activity: activity,
			apply:    apply,
			locks:    locks,
		},
		Projects: &ProjectService{
			store:    store,
			activity: activity,
			apply:    apply,
			locks:    locks,
		},
		Collections: &CollectionService{
			store:    store,
			activity: activity,
			apply:    apply,
			locks:    locks,
		},
		Templates: &TemplateService{
			store:    store,
			activity: activity,
		},
		Activity: activity,
		Locks:    NewLockManager(opts.LockTimeout),
	}
}
