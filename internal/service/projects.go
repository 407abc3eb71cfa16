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

// ProjectService manages Projects. Project.Entities and Entity.Projects are
// mirror sets; every membership edit here emits the reciprocal entity writes.
type ProjectService struct {
	store    registrystore.DocumentStore
	activity *ActivityService
	apply    *applier
	locks    *keyedMutex
}

func projectTarget(p model.Project) model.ActivityTarget {
	return model.ActivityTarget{Type: "project", ID: p.ID, Name: p.Name}
}

// Create persists a new Project and adds it to each member Entity's projects
// list.
func (s *ProjectService) Create(ctx context.Context, draft model.Project, actor string) (model.Project, error) {
	draft.Name = strings.TrimSpace(draft.Name)
	draft.Description = strings.TrimSpace(draft.Description)
	if draft.Name == "" {
		return model.Project{}, &registrystore.ValidationError{Field: "name", Message: "name is required"}
	}
	if draft.ID == "" {
		draft.ID = identifier.New(identifier.KindProject)
	}
	if draft.Owner == "" {
		draft.Owner = actor
	}
	draft.Created = time.Now().UTC()
	draft.Deleted = false
	draft.History = nil

	plan := reconcile.GroupMembers(draft.ID, reconcile.FieldProjects, nil, draft.Entities)
	draft.Entities = plan.Merged

	if err := s.store.InsertOne(ctx, registrystore.CollectionProjects, draft); err != nil {
		return model.Project{}, err
	}
	metrics.RecordWrite(registrystore.CollectionProjects, "create")

	if err := s.apply.Apply(ctx, plan.Mutations); err != nil {
		return draft, err
	}
	s.activity.record(ctx, model.ActivityCreate, actor, "Created Project", projectTarget(draft))
	return draft, nil
}

// GetOne returns the Project with the given identifier.
func (s *ProjectService) GetOne(ctx context.Context, id string) (model.Project, error) {
	var project model.Project
	if err := s.store.GetOne(ctx, registrystore.CollectionProjects, id, &project); err != nil {
		return model.Project{}, err
	}
	return project, nil
}

// GetMany returns the Projects with the given identifiers; absent ones are
// skipped.
func (s *ProjectService) GetMany(ctx context.Context, ids []string) ([]model.Project, error) {
	var projects []model.Project
	if err := s.store.GetMany(ctx, registrystore.CollectionProjects, ids, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// All returns every Project.
func (s *ProjectService) All(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	if err := s.store.All(ctx, registrystore.CollectionProjects, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// Exists reports whether a Project with the given identifier is stored.
func (s *ProjectService) Exists(ctx context.Context, id string) (bool, error) {
	return s.store.Exists(ctx, registrystore.CollectionProjects, id)
}

// Update replaces the mutable fields of a Project, prepends a pre-update
// snapshot, and settles membership changes on both sides. Updating a
// soft-deleted Project with deleted unset restores it and replays its
// memberships.
func (s *ProjectService) Update(ctx context.Context, desired model.Project, actor string) (model.Project, error) {
	if desired.ID == "" {
		return model.Project{}, &registrystore.ValidationError{Field: "_id", Message: "id is required"}
	}
	desired.Name = strings.TrimSpace(desired.Name)
	if desired.Name == "" {
		return model.Project{}, &registrystore.ValidationError{Field: "name", Message: "name is required"}
	}

	s.locks.Lock(desired.ID)
	defer s.locks.Unlock(desired.ID)

	var current model.Project
	if err := s.store.GetOne(ctx, registrystore.CollectionProjects, desired.ID, &current); err != nil {
		return model.Project{}, err
	}

	restoring := current.Deleted && !desired.Deleted
	baseEntities := current.Entities
	if restoring {
		baseEntities = nil
	}

	plan := reconcile.GroupMembers(desired.ID, reconcile.FieldProjects, baseEntities, desired.Entities)

	snapshot := model.ProjectSnapshot{
		Version:       identifier.Version(),
		Timestamp:     time.Now().UTC(),
		Author:        actor,
		Name:          current.Name,
		Description:   current.Description,
		Entities:      current.Entities,
		Collaborators: current.Collaborators,
	}

	fields := map[string]any{
		"name":          desired.Name,
		"description":   desired.Description,
		"archived":      desired.Archived,
		"deleted":       desired.Deleted,
		"entities":      plan.Merged,
		"collaborators": desired.Collaborators,
		"history":       append([]model.ProjectSnapshot{snapshot}, current.History...),
	}
	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionProjects, desired.ID, fields); err != nil {
		return model.Project{}, err
	}
	metrics.RecordWrite(registrystore.CollectionProjects, "update")

	if err := s.apply.Apply(ctx, plan.Mutations); err != nil {
		return model.Project{}, err
	}

	details := "Updated Project"
	if restoring {
		details = "Restored Project"
	}
	s.activity.record(ctx, model.ActivityUpdate, actor, details, projectTarget(desired))

	var updated model.Project
	if err := s.store.GetOne(ctx, registrystore.CollectionProjects, desired.ID, &updated); err != nil {
		return model.Project{}, err
	}
	return updated, nil
}

// SetArchived flips the archived flag, reporting a no-op without writing.
func (s *ProjectService) SetArchived(ctx context.Context, id string, archived bool, actor string) (string, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	var current model.Project
	if err := s.store.GetOne(ctx, registrystore.CollectionProjects, id, &current); err != nil {
		return "", err
	}
	if current.Archived == archived {
		return "No changes made to Project", nil
	}

	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionProjects, id, map[string]any{"archived": archived}); err != nil {
		return "", err
	}
	metrics.RecordWrite(registrystore.CollectionProjects, "archive")

	details := "Archived Project"
	message := "Project archived"
	if !archived {
		details = "Unarchived Project"
		message = "Project unarchived"
	}
	s.activity.record(ctx, model.ActivityArchived, actor, details, projectTarget(current))
	return message, nil
}

// Delete soft-deletes a Project, removing its identifier from each member
// Entity first. The Project keeps its entities list so a restore can replay
// the memberships.
func (s *ProjectService) Delete(ctx context.Context, id string, actor string) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	var current model.Project
	if err := s.store.GetOne(ctx, registrystore.CollectionProjects, id, &current); err != nil {
		return err
	}
	if current.Deleted {
		return nil
	}

	plan := reconcile.GroupMembers(id, reconcile.FieldProjects, current.Entities, nil)
	if err := s.apply.Apply(ctx, plan.Mutations); err != nil {
		return err
	}

	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionProjects, id, map[string]any{"deleted": true}); err != nil {
		return err
	}
	metrics.RecordWrite(registrystore.CollectionProjects, "delete")

	s.activity.record(ctx, model.ActivityDelete, actor, "Deleted Project", projectTarget(current))
	return nil
}

// AddCollaborator appends a collaborator, ignoring duplicates. Collaborators
// have no reciprocal document.
func (s *ProjectService) AddCollaborator(ctx context.Context, id, collaborator, actor string) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	var current model.Project
	if err := s.store.GetOne(ctx, registrystore.CollectionProjects, id, &current); err != nil {
		return err
	}
	updated, changed := mutateIDList(current.Collaborators, collaborator, reconcile.OpAdd)
	if !changed {
		return nil
	}
	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionProjects, id, map[string]any{"collaborators": updated}); err != nil {
		return err
	}
	s.activity.record(ctx, model.ActivityUpdate, actor, "Updated Project", projectTarget(current))
	return nil
}

// RemoveCollaborator drops a collaborator if present.
func (s *ProjectService) RemoveCollaborator(ctx context.Context, id, collaborator, actor string) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	var current model.Project
	if err := s.store.GetOne(ctx, registrystore.CollectionProjects, id, &current); err != nil {
		return err
	}
	updated, changed := mutateIDList(current.Collaborators, collaborator, reconcile.OpRemove)
	if !changed {
		return nil
	}
	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionProjects, id, map[string]any{"collaborators": updated}); err != nil {
		return err
	}
	s.activity.record(ctx, model.ActivityUpdate, actor, "Updated Project", projectTarget(current))
	return nil
}
