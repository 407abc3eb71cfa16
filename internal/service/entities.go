package service

import (
	"context"
	"time"

	"github.com/metanexus/metadata-service/internal/identifier"
	"github.com/metanexus/metadata-service/internal/metrics"
	"github.com/metanexus/metadata-service/internal/model"
	"github.com/metanexus/metadata-service/internal/reconcile"
	registrycache "github.com/metanexus/metadata-service/internal/registry/cache"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
)

// EntityService manages the Entity lifecycle and keeps the association graph
// consistent. Every relationship edit goes through the reconciler so both
// sides of an edge settle before the operation reports success.
type EntityService struct {
	store    registrystore.DocumentStore
	cache    registrycache.EntityCache
	activity *ActivityService
	apply    *applier
	locks    *keyedMutex
}

func entityTarget(e model.Entity) model.ActivityTarget {
	return model.ActivityTarget{Type: "entity", ID: e.ID, Name: e.Name}
}

// Create persists a new Entity and applies the reciprocal writes for any
// associations and memberships the draft already carries.
func (s *EntityService) Create(ctx context.Context, draft model.Entity, actor string) (model.Entity, error) {
	draft.CleanNames()
	if draft.Name == "" {
		return model.Entity{}, &registrystore.ValidationError{Field: "name", Message: "name is required"}
	}
	if draft.ID == "" {
		draft.ID = identifier.New(identifier.KindEntity)
	}
	if draft.Owner == "" {
		draft.Owner = actor
	}
	draft.Created = time.Now().UTC()
	draft.Deleted = false
	draft.History = nil

	local := draft.Ref()
	originPlan := reconcile.Associations(local, reconcile.FieldOrigins, nil, draft.Associations.Origins)
	productPlan := reconcile.Associations(local, reconcile.FieldProducts, nil, draft.Associations.Products)
	projectPlan := reconcile.EntityMemberships(draft.ID, reconcile.FieldProjects, nil, draft.Projects)
	collectionPlan := reconcile.EntityMemberships(draft.ID, reconcile.FieldCollections, nil, draft.Collections)

	draft.Associations.Origins = originPlan.Merged
	draft.Associations.Products = productPlan.Merged
	draft.Projects = projectPlan.Merged
	draft.Collections = collectionPlan.Merged

	if err := s.store.InsertOne(ctx, registrystore.CollectionEntities, draft); err != nil {
		return model.Entity{}, err
	}
	metrics.RecordWrite(registrystore.CollectionEntities, "create")

	mutations := concat(originPlan.Mutations, productPlan.Mutations, projectPlan.Mutations, collectionPlan.Mutations)
	if err := s.apply.Apply(ctx, mutations); err != nil {
		return draft, err
	}

	s.activity.record(ctx, model.ActivityCreate, actor, "Created Entity", entityTarget(draft))
	return draft, nil
}

// GetOne returns the Entity with the given identifier, consulting the cache
// first when one is configured.
func (s *EntityService) GetOne(ctx context.Context, id string) (model.Entity, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err == nil && cached != nil {
			metrics.RecordCacheLookup(true)
			return *cached, nil
		}
		metrics.RecordCacheLookup(false)
	}

	var entity model.Entity
	if err := s.store.GetOne(ctx, registrystore.CollectionEntities, id, &entity); err != nil {
		return model.Entity{}, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, entity, 0)
	}
	return entity, nil
}

// GetMany returns the Entities with the given identifiers; absent ones are
// skipped.
func (s *EntityService) GetMany(ctx context.Context, ids []string) ([]model.Entity, error) {
	var entities []model.Entity
	if err := s.store.GetMany(ctx, registrystore.CollectionEntities, ids, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// All returns every Entity, including soft-deleted ones.
func (s *EntityService) All(ctx context.Context) ([]model.Entity, error) {
	var entities []model.Entity
	if err := s.store.All(ctx, registrystore.CollectionEntities, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// Exists reports whether an Entity with the given identifier is stored.
func (s *EntityService) Exists(ctx context.Context, id string) (bool, error) {
	return s.store.Exists(ctx, registrystore.CollectionEntities, id)
}

// GetByName returns the first non-archived Entity with the given name.
func (s *EntityService) GetByName(ctx context.Context, name string) (model.Entity, error) {
	entities, err := s.All(ctx)
	if err != nil {
		return model.Entity{}, err
	}
	for _, e := range entities {
		if e.Name == name && !e.Archived {
			return e, nil
		}
	}
	return model.Entity{}, &registrystore.NotFoundError{Resource: registrystore.CollectionEntities, ID: name}
}

// ExistsByName reports whether a non-archived Entity with the given name is
// stored.
func (s *EntityService) ExistsByName(ctx context.Context, name string) (bool, error) {
	_, err := s.GetByName(ctx, name)
	if err != nil {
		if _, ok := err.(*registrystore.NotFoundError); ok {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Update replaces the mutable fields of an Entity with the desired state,
// prepends a pre-update snapshot to its history, and applies the reciprocal
// writes the relationship diffs require. Updating a soft-deleted Entity with
// deleted unset restores it: every stored association is replayed as an add so
// neighbors regain their mirror references.
func (s *EntityService) Update(ctx context.Context, desired model.Entity, actor, message string) (model.Entity, error) {
	if desired.ID == "" {
		return model.Entity{}, &registrystore.ValidationError{Field: "_id", Message: "id is required"}
	}
	desired.CleanNames()
	if desired.Name == "" {
		return model.Entity{}, &registrystore.ValidationError{Field: "name", Message: "name is required"}
	}

	s.locks.Lock(desired.ID)
	defer s.locks.Unlock(desired.ID)

	var current model.Entity
	if err := s.store.GetOne(ctx, registrystore.CollectionEntities, desired.ID, &current); err != nil {
		return model.Entity{}, err
	}

	restoring := current.Deleted && !desired.Deleted

	// The diff baseline: on restore the cascade already stripped this entity
	// from its neighbors, so every desired edge must replay as an add.
	base := current
	if restoring {
		base.Associations = model.Associations{}
		base.Projects = nil
		base.Collections = nil
	}

	local := model.Ref{ID: desired.ID, Name: desired.Name}
	originPlan := reconcile.Associations(local, reconcile.FieldOrigins, base.Associations.Origins, desired.Associations.Origins)
	productPlan := reconcile.Associations(local, reconcile.FieldProducts, base.Associations.Products, desired.Associations.Products)
	projectPlan := reconcile.EntityMemberships(desired.ID, reconcile.FieldProjects, base.Projects, desired.Projects)
	collectionPlan := reconcile.EntityMemberships(desired.ID, reconcile.FieldCollections, base.Collections, desired.Collections)

	mutations := concat(originPlan.Mutations, productPlan.Mutations, projectPlan.Mutations, collectionPlan.Mutations)

	// A rename must travel to kept neighbors too. Adds already carry the new
	// name; an add against a present ref refreshes it in place.
	if current.Name != desired.Name {
		for _, r := range originPlan.Merged {
			mutations = append(mutations, reconcile.Mutation{
				Collection: registrystore.CollectionEntities,
				DocID:      r.ID,
				Field:      reconcile.FieldProducts,
				Op:         reconcile.OpAdd,
				Ref:        local,
			})
		}
		for _, r := range productPlan.Merged {
			mutations = append(mutations, reconcile.Mutation{
				Collection: registrystore.CollectionEntities,
				DocID:      r.ID,
				Field:      reconcile.FieldOrigins,
				Op:         reconcile.OpAdd,
				Ref:        local,
			})
		}
	}

	snapshot := model.EntitySnapshot{
		Version:      identifier.Version(),
		Timestamp:    time.Now().UTC(),
		Author:       actor,
		Message:      message,
		Name:         current.Name,
		Description:  current.Description,
		Projects:     current.Projects,
		Collections:  current.Collections,
		Associations: current.Associations,
		Attributes:   current.Attributes,
	}

	fields := map[string]any{
		"name":                  desired.Name,
		"description":           desired.Description,
		"archived":              desired.Archived,
		"deleted":               desired.Deleted,
		"projects":              projectPlan.Merged,
		"collections":           collectionPlan.Merged,
		"associations.origins":  originPlan.Merged,
		"associations.products": productPlan.Merged,
		"attributes":            reconcile.MergeAttributes(desired.Attributes),
		"attachments":           reconcile.MergeRefs(current.Attachments, desired.Attachments),
		"history":               append([]model.EntitySnapshot{snapshot}, current.History...),
	}
	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionEntities, desired.ID, fields); err != nil {
		return model.Entity{}, err
	}
	metrics.RecordWrite(registrystore.CollectionEntities, "update")
	s.invalidate(ctx, desired.ID)

	if err := s.apply.Apply(ctx, mutations); err != nil {
		return model.Entity{}, err
	}

	details := "Updated Entity"
	if restoring {
		details = "Restored Entity"
	}
	s.activity.record(ctx, model.ActivityUpdate, actor, details, entityTarget(desired))

	var updated model.Entity
	if err := s.store.GetOne(ctx, registrystore.CollectionEntities, desired.ID, &updated); err != nil {
		return model.Entity{}, err
	}
	return updated, nil
}

// SetArchived flips the archived flag. A call that would not change anything
// reports so without writing.
func (s *EntityService) SetArchived(ctx context.Context, id string, archived bool, actor string) (string, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	var current model.Entity
	if err := s.store.GetOne(ctx, registrystore.CollectionEntities, id, &current); err != nil {
		return "", err
	}
	if current.Archived == archived {
		return "No changes made to Entity", nil
	}

	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionEntities, id, map[string]any{"archived": archived}); err != nil {
		return "", err
	}
	metrics.RecordWrite(registrystore.CollectionEntities, "archive")
	s.invalidate(ctx, id)

	details := "Archived Entity"
	message := "Entity archived"
	if !archived {
		details = "Unarchived Entity"
		message = "Entity unarchived"
	}
	s.activity.record(ctx, model.ActivityArchived, actor, details, entityTarget(current))
	return message, nil
}

// Delete soft-deletes an Entity. Its references are removed from every
// neighbor so no dangling edges remain, but the entity keeps its own
// relationship lists so a later restore can replay them. Already-deleted
// entities are left untouched.
func (s *EntityService) Delete(ctx context.Context, id string, actor string) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	var current model.Entity
	if err := s.store.GetOne(ctx, registrystore.CollectionEntities, id, &current); err != nil {
		return err
	}
	if current.Deleted {
		return nil
	}

	local := current.Ref()
	mutations := concat(
		reconcile.Associations(local, reconcile.FieldOrigins, current.Associations.Origins, nil).Mutations,
		reconcile.Associations(local, reconcile.FieldProducts, current.Associations.Products, nil).Mutations,
		reconcile.EntityMemberships(id, reconcile.FieldProjects, current.Projects, nil).Mutations,
		reconcile.EntityMemberships(id, reconcile.FieldCollections, current.Collections, nil).Mutations,
	)

	if err := s.apply.Apply(ctx, mutations); err != nil {
		return err
	}

	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionEntities, id, map[string]any{"deleted": true}); err != nil {
		return err
	}
	metrics.RecordWrite(registrystore.CollectionEntities, "delete")
	s.invalidate(ctx, id)

	s.activity.record(ctx, model.ActivityDelete, actor, "Deleted Entity", entityTarget(current))
	return nil
}

// Restore inserts a backed-up Entity verbatim, history included. No
// reciprocal writes run; backups are expected to carry both sides of every
// edge.
func (s *EntityService) Restore(ctx context.Context, entity model.Entity, actor string) (model.Entity, error) {
	if entity.ID == "" {
		return model.Entity{}, &registrystore.ValidationError{Field: "_id", Message: "id is required"}
	}
	if err := s.store.InsertOne(ctx, registrystore.CollectionEntities, entity); err != nil {
		return model.Entity{}, err
	}
	metrics.RecordWrite(registrystore.CollectionEntities, "restore")
	s.activity.record(ctx, model.ActivityCreate, actor, "Restored Entity", entityTarget(entity))
	return entity, nil
}

// AddProject adds an Entity to a Project and mirrors the membership on the
// Project document.
func (s *EntityService) AddProject(ctx context.Context, entityID, projectID, actor string) error {
	return s.editMembership(ctx, entityID, projectID, actor, reconcile.FieldProjects, registrystore.CollectionProjects, true)
}

// RemoveProject removes an Entity from a Project on both sides.
func (s *EntityService) RemoveProject(ctx context.Context, entityID, projectID, actor string) error {
	return s.editMembership(ctx, entityID, projectID, actor, reconcile.FieldProjects, registrystore.CollectionProjects, false)
}

// AddCollection adds an Entity to a Collection on both sides.
func (s *EntityService) AddCollection(ctx context.Context, entityID, collectionID, actor string) error {
	return s.editMembership(ctx, entityID, collectionID, actor, reconcile.FieldCollections, registrystore.CollectionCollections, true)
}

// RemoveCollection removes an Entity from a Collection on both sides.
func (s *EntityService) RemoveCollection(ctx context.Context, entityID, collectionID, actor string) error {
	return s.editMembership(ctx, entityID, collectionID, actor, reconcile.FieldCollections, registrystore.CollectionCollections, false)
}

func (s *EntityService) editMembership(ctx context.Context, entityID, groupID, actor string, field reconcile.Field, groupCollection string, add bool) error {
	s.locks.Lock(entityID)
	defer s.locks.Unlock(entityID)

	if add {
		ok, err := s.store.Exists(ctx, groupCollection, groupID)
		if err != nil {
			return err
		}
		if !ok {
			return &registrystore.NotFoundError{Resource: groupCollection, ID: groupID}
		}
	}

	var current model.Entity
	if err := s.store.GetOne(ctx, registrystore.CollectionEntities, entityID, &current); err != nil {
		return err
	}

	currentIDs := current.Projects
	if field == reconcile.FieldCollections {
		currentIDs = current.Collections
	}

	var desired []string
	if add {
		desired, _ = mutateIDList(currentIDs, groupID, reconcile.OpAdd)
	} else {
		desired, _ = mutateIDList(currentIDs, groupID, reconcile.OpRemove)
	}

	plan := reconcile.EntityMemberships(entityID, field, currentIDs, desired)
	if len(plan.Mutations) == 0 {
		return nil
	}

	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionEntities, entityID, map[string]any{
		string(field): plan.Merged,
	}); err != nil {
		return err
	}
	s.invalidate(ctx, entityID)

	if err := s.apply.Apply(ctx, plan.Mutations); err != nil {
		return err
	}
	s.activity.record(ctx, model.ActivityUpdate, actor, "Updated Entity", entityTarget(current))
	return nil
}

// AddAttachment records an attachment reference on the Entity. An existing
// reference with the same identifier has its name refreshed.
func (s *EntityService) AddAttachment(ctx context.Context, entityID string, attachment model.Ref, actor string) error {
	s.locks.Lock(entityID)
	defer s.locks.Unlock(entityID)

	var current model.Entity
	if err := s.store.GetOne(ctx, registrystore.CollectionEntities, entityID, &current); err != nil {
		return err
	}

	desired := make([]model.Ref, 0, len(current.Attachments)+1)
	replaced := false
	for _, r := range current.Attachments {
		if r.ID == attachment.ID {
			r = attachment
			replaced = true
		}
		desired = append(desired, r)
	}
	if !replaced {
		desired = append(desired, attachment)
	}
	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionEntities, entityID, map[string]any{
		"attachments": desired,
	}); err != nil {
		return err
	}
	s.invalidate(ctx, entityID)
	s.activity.record(ctx, model.ActivityUpdate, actor, "Updated Entity", entityTarget(current))
	return nil
}

// RemoveAttachment drops an attachment reference from the Entity.
func (s *EntityService) RemoveAttachment(ctx context.Context, entityID, attachmentID, actor string) error {
	s.locks.Lock(entityID)
	defer s.locks.Unlock(entityID)

	var current model.Entity
	if err := s.store.GetOne(ctx, registrystore.CollectionEntities, entityID, &current); err != nil {
		return err
	}

	kept := make([]model.Ref, 0, len(current.Attachments))
	for _, r := range current.Attachments {
		if r.ID != attachmentID {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(current.Attachments) {
		return nil
	}

	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionEntities, entityID, map[string]any{
		"attachments": kept,
	}); err != nil {
		return err
	}
	s.invalidate(ctx, entityID)
	s.activity.record(ctx, model.ActivityUpdate, actor, "Updated Entity", entityTarget(current))
	return nil
}

// SetDescription updates only the description text.
func (s *EntityService) SetDescription(ctx context.Context, id, description, actor string) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	var current model.Entity
	if err := s.store.GetOne(ctx, registrystore.CollectionEntities, id, &current); err != nil {
		return err
	}
	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionEntities, id, map[string]any{
		"description": description,
	}); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.activity.record(ctx, model.ActivityUpdate, actor, "Updated Entity", entityTarget(current))
	return nil
}

// AttachTemplate copies a Template onto the Entity as an inline attribute.
// The copy gets fresh attribute and value identifiers so later template edits
// never leak into entities that already attached it.
func (s *EntityService) AttachTemplate(ctx context.Context, entityID, templateID, actor string) (model.Attribute, error) {
	var tpl model.Attribute
	if err := s.store.GetOne(ctx, registrystore.CollectionTemplates, templateID, &tpl); err != nil {
		return model.Attribute{}, err
	}

	s.locks.Lock(entityID)
	defer s.locks.Unlock(entityID)

	var current model.Entity
	if err := s.store.GetOne(ctx, registrystore.CollectionEntities, entityID, &current); err != nil {
		return model.Attribute{}, err
	}

	attached := Instantiate(tpl)
	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionEntities, entityID, map[string]any{
		"attributes": append(current.Attributes, attached),
	}); err != nil {
		return model.Attribute{}, err
	}
	s.invalidate(ctx, entityID)
	s.activity.record(ctx, model.ActivityUpdate, actor, "Updated Entity", entityTarget(current))
	return attached, nil
}

func (s *EntityService) invalidate(ctx context.Context, ids ...string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Remove(ctx, ids...)
}

func concat(mutations ...[]reconcile.Mutation) []reconcile.Mutation {
	var all []reconcile.Mutation
	for _, m := range mutations {
		all = append(all, m...)
	}
	return all
}
