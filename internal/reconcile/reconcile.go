// Package reconcile computes the set differences between the current and
// desired state of a document's relationship lists, and derives the
// reciprocal cross-document mutations needed to keep the graph consistent.
//
// Everything in this package is pure: diff computation performs no I/O and
// returns pending Mutation value objects. Applying them is the service
// layer's job, which keeps the algorithm unit-testable and the failure policy
// in one place.
package reconcile

import (
	"github.com/metanexus/metadata-service/internal/model"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
)

// Op is the direction of a reciprocal mutation.
type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
)

// Field names a relationship list on a document. Association fields use
// dotted paths matching their position in the stored document.
type Field string

const (
	FieldOrigins     Field = "associations.origins"
	FieldProducts    Field = "associations.products"
	FieldProjects    Field = "projects"
	FieldCollections Field = "collections"
	FieldEntities    Field = "entities"
)

// Mutation is one pending reciprocal write against a neighbor document:
// add or remove Ref in the named list field of Collection/DocID.
type Mutation struct {
	Collection string
	DocID      string
	Field      Field
	Op         Op
	Ref        model.Ref
}

// Plan is the outcome of reconciling one Ref-valued relationship field: the
// merged local list to persist, plus the reciprocal mutations to apply.
type Plan struct {
	Merged    []model.Ref
	Mutations []Mutation
}

// MembershipPlan is the outcome of reconciling one ID-valued membership field.
type MembershipPlan struct {
	Merged    []string
	Mutations []Mutation
}

// Diff splits current and desired reference lists into three disjoint sets,
// comparing by identifier only. Kept members carry the desired state's
// payload, so a rename travels with the freshest write (last-writer-wins on
// denormalized names). Relationship lists are sets: a duplicate identifier in
// the desired input collapses to its first occurrence, so the merged local
// list never holds an edge twice while the neighbor stores it once.
func Diff(current, desired []model.Ref) (keep, add, remove []model.Ref) {
	currentIDs := refSet(current)

	desiredIDs := make(map[string]bool, len(desired))
	for _, r := range desired {
		if desiredIDs[r.ID] {
			continue
		}
		desiredIDs[r.ID] = true
		if currentIDs[r.ID] {
			keep = append(keep, r)
		} else {
			add = append(add, r)
		}
	}
	for _, r := range current {
		if !desiredIDs[r.ID] {
			remove = append(remove, r)
		}
	}
	return keep, add, remove
}

// DiffStrings splits current and desired identifier lists into three
// disjoint sets. Duplicates in the desired input collapse like in Diff.
func DiffStrings(current, desired []string) (keep, add, remove []string) {
	currentIDs := stringSet(current)

	desiredIDs := make(map[string]bool, len(desired))
	for _, id := range desired {
		if desiredIDs[id] {
			continue
		}
		desiredIDs[id] = true
		if currentIDs[id] {
			keep = append(keep, id)
		} else {
			add = append(add, id)
		}
	}
	for _, id := range current {
		if !desiredIDs[id] {
			remove = append(remove, id)
		}
	}
	return keep, add, remove
}

// reciprocalOf maps an association field to its mirror on the neighbor Entity.
func reciprocalOf(field Field) Field {
	switch field {
	case FieldOrigins:
		return FieldProducts
	case FieldProducts:
		return FieldOrigins
	default:
		return field
	}
}

// Associations reconciles one origin/product list of the local Entity.
// Each added neighbor gains the local Entity in its mirror list; each removed
// neighbor loses it. Identical current and desired state yields an empty plan.
func Associations(local model.Ref, field Field, current, desired []model.Ref) Plan {
	keep, add, remove := Diff(current, desired)

	plan := Plan{Merged: append(keep, add...)}
	for _, r := range add {
		plan.Mutations = append(plan.Mutations, Mutation{
			Collection: registrystore.CollectionEntities,
			DocID:      r.ID,
			Field:      reciprocalOf(field),
			Op:         OpAdd,
			Ref:        local,
		})
	}
	for _, r := range remove {
		plan.Mutations = append(plan.Mutations, Mutation{
			Collection: registrystore.CollectionEntities,
			DocID:      r.ID,
			Field:      reciprocalOf(field),
			Op:         OpRemove,
			Ref:        local,
		})
	}
	return plan
}

// EntityMemberships reconciles an Entity's projects or collections list.
// The reciprocal write targets the group document's entities list.
func EntityMemberships(entityID string, field Field, current, desired []string) MembershipPlan {
	var groupCollection string
	switch field {
	case FieldProjects:
		groupCollection = registrystore.CollectionProjects
	case FieldCollections:
		groupCollection = registrystore.CollectionCollections
	}

	keep, add, remove := DiffStrings(current, desired)
	plan := MembershipPlan{Merged: append(keep, add...)}
	for _, id := range add {
		plan.Mutations = append(plan.Mutations, Mutation{
			Collection: groupCollection,
			DocID:      id,
			Field:      FieldEntities,
			Op:         OpAdd,
			Ref:        model.Ref{ID: entityID},
		})
	}
	for _, id := range remove {
		plan.Mutations = append(plan.Mutations, Mutation{
			Collection: groupCollection,
			DocID:      id,
			Field:      FieldEntities,
			Op:         OpRemove,
			Ref:        model.Ref{ID: entityID},
		})
	}
	return plan
}

// GroupMembers reconciles a Project's or Collection's entities list. The
// reciprocal write targets each member Entity's projects or collections list.
func GroupMembers(groupID string, memberField Field, current, desired []string) MembershipPlan {
	keep, add, remove := DiffStrings(current, desired)
	plan := MembershipPlan{Merged: append(keep, add...)}
	for _, id := range add {
		plan.Mutations = append(plan.Mutations, Mutation{
			Collection: registrystore.CollectionEntities,
			DocID:      id,
			Field:      memberField,
			Op:         OpAdd,
			Ref:        model.Ref{ID: groupID},
		})
	}
	for _, id := range remove {
		plan.Mutations = append(plan.Mutations, Mutation{
			Collection: registrystore.CollectionEntities,
			DocID:      id,
			Field:      memberField,
			Op:         OpRemove,
			Ref:        model.Ref{ID: groupID},
		})
	}
	return plan
}

// MergeAttributes reconciles an Entity's inline attribute list. Attributes
// have no neighbor document, so the desired state replaces the stored one
// wholesale, carrying its names, descriptions, and values. Duplicate
// identifiers collapse to their first occurrence.
func MergeAttributes(desired []model.Attribute) []model.Attribute {
	seen := make(map[string]bool, len(desired))
	merged := make([]model.Attribute, 0, len(desired))
	for _, a := range desired {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		merged = append(merged, a)
	}
	return merged
}

// MergeRefs reconciles a Ref list that has no reciprocal document
// (attachments): keeps carry the desired payload, adds are appended.
func MergeRefs(current, desired []model.Ref) []model.Ref {
	keep, add, _ := Diff(current, desired)
	return append(keep, add...)
}

func refSet(refs []model.Ref) map[string]bool {
	set := make(map[string]bool, len(refs))
	for _, r := range refs {
		set[r.ID] = true
	}
	return set
}

func stringSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
