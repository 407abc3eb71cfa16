package service

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/metanexus/metadata-service/internal/identifier"
	"github.com/metanexus/metadata-service/internal/metrics"
	"github.com/metanexus/metadata-service/internal/model"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
)

// ActivityService maintains the append-only audit trail. Records are written
// as a side effect of lifecycle operations and never updated or removed.
type ActivityService struct {
	store registrystore.DocumentStore
}

// Create persists one activity record, allocating its identifier and
// timestamp if unset.
func (s *ActivityService) Create(ctx context.Context, activity model.Activity) (model.Activity, error) {
	if activity.ID == "" {
		activity.ID = identifier.New(identifier.KindActivity)
	}
	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now().UTC()
	}
	if err := s.store.InsertOne(ctx, registrystore.CollectionActivity, activity); err != nil {
		return model.Activity{}, err
	}
	metrics.RecordActivity()
	return activity, nil
}

// record writes an audit entry for a lifecycle operation. A failed write is
// logged and swallowed so bookkeeping never fails the operation it describes.
func (s *ActivityService) record(ctx context.Context, typ model.ActivityType, actor, details string, target model.ActivityTarget) {
	_, err := s.Create(ctx, model.Activity{
		Type:    typ,
		Actor:   actor,
		Details: details,
		Target:  target,
	})
	if err != nil {
		log.Error("Failed to write activity record", "type", typ, "target", target.ID, "error", err)
	}
}

// All returns every activity record, newest first.
func (s *ActivityService) All(ctx context.Context) ([]model.Activity, error) {
	var records []model.Activity
	if err := s.store.All(ctx, registrystore.CollectionActivity, &records); err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// GetMany returns the activity records with the given identifiers.
func (s *ActivityService) GetMany(ctx context.Context, ids []string) ([]model.Activity, error) {
	var records []model.Activity
	if err := s.store.GetMany(ctx, registrystore.CollectionActivity, ids, &records); err != nil {
		return nil, err
	}
	return records, nil
}
