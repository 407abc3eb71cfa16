package service

import (
	"context"
	"strings"
	"time"

	"github.com/metanexus/metadata-service/internal/identifier"
	"github.com/metanexus/metadata-service/internal/metrics"
	"github.com/metanexus/metadata-service/internal/model"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
)

// TemplateService manages reusable attribute templates. Templates are plain
// Attribute documents; attaching one to an Entity always copies it, so
// editing a template never changes entities that already attached it.
type TemplateService struct {
	store    registrystore.DocumentStore
	activity *ActivityService
}

func templateTarget(t model.Attribute) model.ActivityTarget {
	return model.ActivityTarget{Type: "template", ID: t.ID, Name: t.Name}
}

// Instantiate copies a template with freshly allocated attribute and value
// identifiers, ready to be attached to an Entity.
func Instantiate(tpl model.Attribute) model.Attribute {
	copied := tpl
	copied.ID = identifier.New(identifier.KindAttribute)
	copied.Timestamp = time.Now().UTC()
	copied.Archived = false
	copied.Values = make([]model.Value, len(tpl.Values))
	for i, v := range tpl.Values {
		v.ID = identifier.New(identifier.KindValue)
		copied.Values[i] = v
	}
	return copied
}

// Create persists a new template, allocating identifiers for the template and
// each of its values.
func (s *TemplateService) Create(ctx context.Context, draft model.Attribute, actor string) (model.Attribute, error) {
	draft.Name = strings.TrimSpace(draft.Name)
	if draft.Name == "" {
		return model.Attribute{}, &registrystore.ValidationError{Field: "name", Message: "name is required"}
	}
	if draft.ID == "" {
		draft.ID = identifier.New(identifier.KindTemplate)
	}
	if draft.Owner == "" {
		draft.Owner = actor
	}
	draft.Timestamp = time.Now().UTC()
	for i := range draft.Values {
		if draft.Values[i].ID == "" {
			draft.Values[i].ID = identifier.New(identifier.KindValue)
		}
	}

	if err := s.store.InsertOne(ctx, registrystore.CollectionTemplates, draft); err != nil {
		return model.Attribute{}, err
	}
	metrics.RecordWrite(registrystore.CollectionTemplates, "create")
	s.activity.record(ctx, model.ActivityCreate, actor, "Created Template", templateTarget(draft))
	return draft, nil
}

// GetOne returns the template with the given identifier.
func (s *TemplateService) GetOne(ctx context.Context, id string) (model.Attribute, error) {
	var tpl model.Attribute
	if err := s.store.GetOne(ctx, registrystore.CollectionTemplates, id, &tpl); err != nil {
		return model.Attribute{}, err
	}
	return tpl, nil
}

// GetMany returns the templates with the given identifiers; absent ones are
// skipped.
func (s *TemplateService) GetMany(ctx context.Context, ids []string) ([]model.Attribute, error) {
	var templates []model.Attribute
	if err := s.store.GetMany(ctx, registrystore.CollectionTemplates, ids, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// All returns every template.
func (s *TemplateService) All(ctx context.Context) ([]model.Attribute, error) {
	var templates []model.Attribute
	if err := s.store.All(ctx, registrystore.CollectionTemplates, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// Exists reports whether a template with the given identifier is stored.
func (s *TemplateService) Exists(ctx context.Context, id string) (bool, error) {
	return s.store.Exists(ctx, registrystore.CollectionTemplates, id)
}

// Update replaces the template's name, description, and values. Entities that
// attached earlier copies are unaffected.
func (s *TemplateService) Update(ctx context.Context, desired model.Attribute, actor string) (model.Attribute, error) {
	if desired.ID == "" {
		return model.Attribute{}, &registrystore.ValidationError{Field: "_id", Message: "id is required"}
	}
	desired.Name = strings.TrimSpace(desired.Name)
	if desired.Name == "" {
		return model.Attribute{}, &registrystore.ValidationError{Field: "name", Message: "name is required"}
	}

	var current model.Attribute
	if err := s.store.GetOne(ctx, registrystore.CollectionTemplates, desired.ID, &current); err != nil {
		return model.Attribute{}, err
	}

	for i := range desired.Values {
		if desired.Values[i].ID == "" {
			desired.Values[i].ID = identifier.New(identifier.KindValue)
		}
	}

	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionTemplates, desired.ID, map[string]any{
		"name":        desired.Name,
		"description": desired.Description,
		"values":      desired.Values,
	}); err != nil {
		return model.Attribute{}, err
	}
	metrics.RecordWrite(registrystore.CollectionTemplates, "update")
	s.activity.record(ctx, model.ActivityUpdate, actor, "Updated Template", templateTarget(desired))

	var updated model.Attribute
	if err := s.store.GetOne(ctx, registrystore.CollectionTemplates, desired.ID, &updated); err != nil {
		return model.Attribute{}, err
	}
	return updated, nil
}

// SetArchived flips the archived flag, reporting a no-op without writing.
func (s *TemplateService) SetArchived(ctx context.Context, id string, archived bool, actor string) (string, error) {
	var current model.Attribute
	if err := s.store.GetOne(ctx, registrystore.CollectionTemplates, id, &current); err != nil {
		return "", err
	}
	if current.Archived == archived {
		return "No changes made to Template", nil
	}

	if _, err := s.store.UpdateOne(ctx, registrystore.CollectionTemplates, id, map[string]any{"archived": archived}); err != nil {
		return "", err
	}
	metrics.RecordWrite(registrystore.CollectionTemplates, "archive")

	details := "Archived Template"
	message := "Template archived"
	if !archived {
		details = "Unarchived Template"
		message = "Template unarchived"
	}
	s.activity.record(ctx, model.ActivityArchived, actor, details, templateTarget(current))
	return message, nil
}
