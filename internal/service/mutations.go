package service

import (
	"context"
	"errors"

	"github.com/metanexus/metadata-service/internal/metrics"
	"github.com/metanexus/metadata-service/internal/model"
	"github.com/metanexus/metadata-service/internal/reconcile"
	registrycache "github.com/metanexus/metadata-service/internal/registry/cache"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
)

// applier turns pending reciprocal mutations into neighbor document writes.
// Each write is idempotent: an add against a list already holding the ref
// refreshes its denormalized name, a remove against a list missing it is a
// no-op. That makes a retried operation converge instead of corrupting lists.
type applier struct {
	store registrystore.DocumentStore
	cache registrycache.EntityCache
}

// Apply executes mutations in order. The first failure stops the pass and is
// wrapped in a PartialReconciliationError; earlier writes are not rolled back.
// Re-running the originating operation with the same desired state completes
// the remainder.
func (a *applier) Apply(ctx context.Context, mutations []reconcile.Mutation) error {
	for _, m := range mutations {
		if err := a.applyOne(ctx, m); err != nil {
			metrics.RecordMutation(false)
			return &registrystore.PartialReconciliationError{
				Collection: m.Collection,
				DocID:      m.DocID,
				Field:      string(m.Field),
				Err:        err,
			}
		}
		metrics.RecordMutation(true)
		a.invalidate(ctx, m)
	}
	return nil
}

func (a *applier) applyOne(ctx context.Context, m reconcile.Mutation) error {
	switch m.Field {
	case reconcile.FieldOrigins, reconcile.FieldProducts:
		return a.applyRefList(ctx, m)
	case reconcile.FieldProjects, reconcile.FieldCollections, reconcile.FieldEntities:
		return a.applyIDList(ctx, m)
	}
	return &registrystore.ValidationError{Field: string(m.Field), Message: "unknown relationship field"}
}

// applyRefList handles the {id,name} association lists on entity documents.
func (a *applier) applyRefList(ctx context.Context, m reconcile.Mutation) error {
	var entity model.Entity
	if err := a.store.GetOne(ctx, m.Collection, m.DocID, &entity); err != nil {
		var notFound *registrystore.NotFoundError
		if m.Op == reconcile.OpRemove && errors.As(err, &notFound) {
			return nil // neighbor already gone, desired end state holds
		}
		return err
	}

	list := entity.Associations.Origins
	if m.Field == reconcile.FieldProducts {
		list = entity.Associations.Products
	}

	updated, changed := mutateRefList(list, m)
	if !changed {
		return nil
	}
	_, err := a.store.UpdateOne(ctx, m.Collection, m.DocID, map[string]any{
		string(m.Field): updated,
	})
	return err
}

// applyIDList handles the bare identifier membership lists: an entity's
// projects/collections and a group's entities.
func (a *applier) applyIDList(ctx context.Context, m reconcile.Mutation) error {
	var doc struct {
		Projects    []string `bson:"projects"    json:"projects"`
		Collections []string `bson:"collections" json:"collections"`
		Entities    []string `bson:"entities"    json:"entities"`
	}
	if err := a.store.GetOne(ctx, m.Collection, m.DocID, &doc); err != nil {
		var notFound *registrystore.NotFoundError
		if m.Op == reconcile.OpRemove && errors.As(err, &notFound) {
			return nil
		}
		return err
	}

	var list []string
	switch m.Field {
	case reconcile.FieldProjects:
		list = doc.Projects
	case reconcile.FieldCollections:
		list = doc.Collections
	case reconcile.FieldEntities:
		list = doc.Entities
	}

	updated, changed := mutateIDList(list, m.Ref.ID, m.Op)
	if !changed {
		return nil
	}
	_, err := a.store.UpdateOne(ctx, m.Collection, m.DocID, map[string]any{
		string(m.Field): updated,
	})
	return err
}

func mutateRefList(list []model.Ref, m reconcile.Mutation) ([]model.Ref, bool) {
	switch m.Op {
	case reconcile.OpAdd:
		for i, r := range list {
			if r.ID == m.Ref.ID {
				if r.Name == m.Ref.Name {
					return list, false
				}
				updated := append([]model.Ref{}, list...)
				updated[i].Name = m.Ref.Name
				return updated, true
			}
		}
		return append(append([]model.Ref{}, list...), m.Ref), true
	case reconcile.OpRemove:
		updated := make([]model.Ref, 0, len(list))
		for _, r := range list {
			if r.ID != m.Ref.ID {
				updated = append(updated, r)
			}
		}
		return updated, len(updated) != len(list)
	}
	return list, false
}

func mutateIDList(list []string, id string, op reconcile.Op) ([]string, bool) {
	switch op {
	case reconcile.OpAdd:
		for _, existing := range list {
			if existing == id {
				return list, false
			}
		}
		return append(append([]string{}, list...), id), true
	case reconcile.OpRemove:
		updated := make([]string, 0, len(list))
		for _, existing := range list {
			if existing != id {
				updated = append(updated, existing)
			}
		}
		return updated, len(updated) != len(list)
	}
	return list, false
}

func (a *applier) invalidate(ctx context.Context, m reconcile.Mutation) {
	if a.cache == nil || m.Collection != registrystore.CollectionEntities {
		return
	}
	_ = a.cache.Remove(ctx, m.DocID)
}
