package service

import (
	"context"
	"strings"
	"time"

	"github.com/metanexus/metadata-service/internal/identifier"
	"github.com/metanexus/metadata-service/internal/metrics"
	"github.com/metanexus/metadata-service/internal/model"
	"github.com/metanexus/metadata-service/internal/reconcile"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
)

// CollectionService manages Collections. Collection.Entities and
// Entity.Collections are mirror sets, maintained the same way projects are.
type CollectionService struct {
	store    registrystore.DocumentStore
	activity *ActivityService
	apply    *applier
	locks    *keyedMutex
}

func collectionTarget(c model.Collection) model.ActivityTarget {
	return model.ActivityTarget{Type: "collection", ID: c.ID, Name: c.Name}
}

// Create persists a new Collection and adds it to each member Entity's
// collections list.
func (s *CollectionService) Create(ctx context.Context, draft model.Collection, actor string) (model.Collection, error) {
	draft.Name = strings.TrimSpace(draft.Name)
	draft.Description = strings.TrimSpace(draft.Description)
	if draft.Name == "" {
		return model.Collection{}, &registrystore.ValidationError{Field: "name", Message: "name is required"}
	}
	if draft.ID == "" {
		draft.ID = identifier.New(identifier.KindCollection)
	}
	if draft.Owner == "" {
		draft.Owner = actor
	}
	draft.Created = time.Now().UTC()
	draft.Deleted = false
	draft.History = nil

	plan := reconcile.GroupMembers(draft.ID, reconcile.FieldCollections, nil, draft.Entities)
	draft.Entities = plan.Merged

	if err := s.store.InsertOne(ctx, registrystore.CollectionCollections, draft); err != nil {
		return model.Collection{}, err
	}
	metrics.RecordWrite(registrystore.CollectionCollections, "create")

	if err := s.apply.Apply(ctx, plan.Mutations); err != nil {
		return draft, err
	}
	s.activity.record(ctx, model.ActivityCreate, actor, "Created Collection", collectionTarget(draft))
	return draft, nil
}

// GetOne returns the Collection with the given identifier.
func (s *CollectionService) GetOne(ctx context.Context, id string) (model.Collection, error) {
	var collection model.Collection
	if err := s.store.GetOne(ctx, registrystore.CollectionCollections, id, &collection); err != nil {
		return model.Collection{}, err
	}
	return collection, nil
}

// GetMany returns the Collections with the given identifiers; absent ones
// are skipped.
func (s *CollectionService) GetMany(ctx context.Context, ids []string) ([]model.Collection, error) {
	var collections []model.Collection
	if err := s.store.GetMany(ctx, registrystore.CollectionCollections, ids, &collections); err != nil {
		return nil, err
	}
	return collections, nil
}

// All returns every Collection.
func (s *CollectionService) All(ctx context.Context) ([]model.Collection, error) {
	var collections []model.Collection
	if err := s.store.All(ctx, registrystore.CollectionCollections, &collections); err != nil {
		return nil, err
	}
	return collections, nil
}

// Exists reports whether a Collection with the given identifier is stored.
func (s *CollectionService) Exists(ctx context.Context, id string) (bool, error) {
	return s.store.Exists(ctx, registrystore.CollectionCollections, id)
}

// Update replaces the mutable fields of a Collection, prepends a pre-update
// snapshot, and settles membership changes on both sides.
func (s *CollectionService) Update(ctx context.Context, desired model.Collection, actor string) (model.Collection, error) {
	if desired.ID == "" {
		return model.Collection{}, &registrystore.ValidationError{Field: "_id", Message: "id is required"}
	}
	desired.Name = strings.TrimSpace(desired.Name)
	if desired.Name == "" {
		return model.Collection{}, &registrystore.ValidationError{Field: "name", Message: "name is required"}
	}

	s.locks.Lock(desired.ID)
	defer s.locks.Unlock(desired.ID)

	var current model.Collection
	if err := s.store.GetOne(ctx, registrystore.CollectionCollections, desired.ID, &current); err != nil {
		return model.Collection{}, err
	}

	restoring := current.Deleted && !desired.Deleted
	baseEntities := current.Entities
	if restoring {
		baseEntities = nil
	}

	plan := reconcile.GroupMembers(desired.ID, reconcile.FieldCollections, baseEntities, desired.Entities)

	snapshot := model.CollectionSnapshot{
		Version:     identifier.Version(),
		Timestamp:   time.Now().UTC(),
		Author:      actor,
		Name:        current.Name,
		Description: current.Description,
		Entities:    current.Entities,
	}

	fields := map[string]any{
		"name":        desired.Name,
		"description": desired.Description,
		"archived":    desired.Archived,
		"deleted":     desired.Deleted,
		"entities":    plan.Merged,
		"history":     append([]model.CollectionSnapshot{snapshot}, current.History...),
	}
	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionCollections, desired.ID, fields); err != nil {
		return model.Collection{}, err
	}
	metrics.RecordWrite(registrystore.CollectionCollections, "update")

	if err := s.apply.Apply(ctx, plan.Mutations); err != nil {
		return model.Collection{}, err
	}

	details := "Updated Collection"
	if restoring {
		details = "Restored Collection"
	}
	s.activity.record(ctx, model.ActivityUpdate, actor, details, collectionTarget(desired))

	var updated model.Collection
	if err := s.store.GetOne(ctx, registrystore.CollectionCollections, desired.ID, &updated); err != nil {
		return model.Collection{}, err
	}
	return updated, nil
}

// SetArchived flips the archived flag, reporting a no-op without writing.
func (s *CollectionService) SetArchived(ctx context.Context, id string, archived bool, actor string) (string, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	var current model.Collection
	if err := s.store.GetOne(ctx, registrystore.CollectionCollections, id, &current); err != nil {
		return "", err
	}
	if current.Archived == archived {
		return "No changes made to Collection", nil
	}

	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionCollections, id, map[string]any{"archived": archived}); err != nil {
		return "", err
	}
	metrics.RecordWrite(registrystore.CollectionCollections, "archive")

	details := "Archived Collection"
	message := "Collection archived"
	if !archived {
		details = "Unarchived Collection"
		message = "Collection unarchived"
	}
	s.activity.record(ctx, model.ActivityArchived, actor, details, collectionTarget(current))
	return message, nil
}

// Delete soft-deletes a Collection, removing its identifier from each member
// Entity first.
func (s *CollectionService) Delete(ctx context.Context, id string, actor string) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	var current model.Collection
	if err := s.store.GetOne(ctx, registrystore.CollectionCollections, id, &current); err != nil {
		return err
	}
	if current.Deleted {
		return nil
	}

	plan := reconcile.GroupMembers(id, reconcile.FieldCollections, current.Entities, nil)
	if err := s.apply.Apply(ctx, plan.Mutations); err != nil {
		return err
	}

	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionCollections, id, map[string]any{"deleted": true}); err != nil {
		return err
	}
	metrics.RecordWrite(registrystore.CollectionCollections, "delete")

	s.activity.record(ctx, model.ActivityDelete, actor, "Deleted Collection", collectionTarget(current))
	return nil
}
