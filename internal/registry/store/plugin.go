package store

import (
	"context"
	"fmt"
)

// Collection names used across the service.
const (
	CollectionEntities    = "entities"
	CollectionProjects    = "projects"
	CollectionCollections = "collections"
	CollectionTemplates   = "templates"
	CollectionActivity    = "activity"
)

// DocumentStore is a thin adapter over a document database. It exposes
// per-collection get/find/insert/update/delete and carries no business logic;
// referential integrity between documents is maintained by the service layer.
type DocumentStore interface {
	// GetOne decodes the document with the given id into out.
	// Returns *NotFoundError when the document is absent.
	GetOne(ctx context.Context, collection string, id string, out any) error

	// GetMany decodes all documents matching the given ids into out, which
	// must be a pointer to a slice. Missing ids are skipped silently.
	GetMany(ctx context.Context, collection string, ids []string, out any) error

	// All decodes every document in the collection into out, which must be a
	// pointer to a slice.
	All(ctx context.Context, collection string, out any) error

	// InsertOne stores a new document. The document must carry its own id.
	InsertOne(ctx context.Context, collection string, doc any) error

	// UpdateOne applies a partial update to the named document. Keys may use
	// dotted paths (e.g. "associations.origins"). Returns true when a
	// document was modified, false when no document matched or the update was
	// a no-op.
	UpdateOne(ctx context.Context, collection string, id string, fields map[string]any) (bool, error)

	// DeleteOne physically removes a document. Lifecycle deletes are soft
	// (an update setting deleted=true); this is used by hard-delete paths.
	DeleteOne(ctx context.Context, collection string, id string) error

	// Exists reports whether a document with the given id is present.
	Exists(ctx context.Context, collection string, id string) (bool, error)
}

// Loader creates a DocumentStore from config.
type Loader func(ctx context.Context) (DocumentStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
