package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/metanexus/metadata-service/internal/model"
	"github.com/metanexus/metadata-service/internal/plugin/store/memory"
	"github.com/metanexus/metadata-service/internal/reconcile"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// faultyStore fails UpdateOne for one document id, letting tests observe
// partial reconciliation behavior.
type faultyStore struct {
	registrystore.DocumentStore
	failID string
}

func (s *faultyStore) UpdateOne(ctx context.Context, collection, id string, fields map[string]any) (bool, error) {
	if id == s.failID {
		return false, errors.New("write refused")
	}
	return s.DocumentStore.UpdateOne(ctx, collection, id, fields)
}

func TestApply_PartialFailureSurfacesAndKeepsEarlierWrites(t *testing.T) {
	inner := memory.New()
	ctx := context.Background()
	require.NoError(t, inner.InsertOne(ctx, registrystore.CollectionEntities, model.Entity{ID: "ent_ok"}))
	require.NoError(t, inner.InsertOne(ctx, registrystore.CollectionEntities, model.Entity{ID: "ent_bad"}))

	a := &applier{store: &faultyStore{DocumentStore: inner, failID: "ent_bad"}}
	local := model.Ref{ID: "ent_src", Name: "Source"}

	err := a.Apply(ctx, []reconcile.Mutation{
		{Collection: registrystore.CollectionEntities, DocID: "ent_ok", Field: reconcile.FieldOrigins, Op: reconcile.OpAdd, Ref: local},
		{Collection: registrystore.CollectionEntities, DocID: "ent_bad", Field: reconcile.FieldOrigins, Op: reconcile.OpAdd, Ref: local},
	})

	var partial *registrystore.PartialReconciliationError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "ent_bad", partial.DocID)

	// The successful write before the failure stays applied.
	var ok model.Entity
	require.NoError(t, inner.GetOne(ctx, registrystore.CollectionEntities, "ent_ok", &ok))
	require.Len(t, ok.Associations.Origins, 1)
	assert.Equal(t, "ent_src", ok.Associations.Origins[0].ID)
}

func TestApply_RetryConverges(t *testing.T) {
	inner := memory.New()
	ctx := context.Background()
	require.NoError(t, inner.InsertOne(ctx, registrystore.CollectionEntities, model.Entity{ID: "ent_ok"}))
	require.NoError(t, inner.InsertOne(ctx, registrystore.CollectionEntities, model.Entity{ID: "ent_flaky"}))

	faulty := &faultyStore{DocumentStore: inner, failID: "ent_flaky"}
	a := &applier{store: faulty}
	local := model.Ref{ID: "ent_src", Name: "Source"}
	mutations := []reconcile.Mutation{
		{Collection: registrystore.CollectionEntities, DocID: "ent_ok", Field: reconcile.FieldOrigins, Op: reconcile.OpAdd, Ref: local},
		{Collection: registrystore.CollectionEntities, DocID: "ent_flaky", Field: reconcile.FieldOrigins, Op: reconcile.OpAdd, Ref: local},
	}

	require.Error(t, a.Apply(ctx, mutations))

	// Heal the store and retry the same mutations: the already-applied add is
	// a no-op, the failed one completes.
	faulty.failID = ""
	require.NoError(t, a.Apply(ctx, mutations))

	var ok, flaky model.Entity
	require.NoError(t, inner.GetOne(ctx, registrystore.CollectionEntities, "ent_ok", &ok))
	require.NoError(t, inner.GetOne(ctx, registrystore.CollectionEntities, "ent_flaky", &flaky))
	assert.Len(t, ok.Associations.Origins, 1)
	assert.Len(t, flaky.Associations.Origins, 1)
}

func TestApply_RemoveMissingNeighborIsNoOp(t *testing.T) {
	a := &applier{store: memory.New()}

	err := a.Apply(context.Background(), []reconcile.Mutation{
		{Collection: registrystore.CollectionEntities, DocID: "ent_gone", Field: reconcile.FieldProducts, Op: reconcile.OpRemove, Ref: model.Ref{ID: "ent_src"}},
	})
	require.NoError(t, err)
}

func TestApply_AddMissingNeighborFails(t *testing.T) {
	a := &applier{store: memory.New()}

	err := a.Apply(context.Background(), []reconcile.Mutation{
		{Collection: registrystore.CollectionEntities, DocID: "ent_gone", Field: reconcile.FieldProducts, Op: reconcile.OpAdd, Ref: model.Ref{ID: "ent_src"}},
	})
	var partial *registrystore.PartialReconciliationError
	require.ErrorAs(t, err, &partial)
}

func TestKeyedMutex_SerializesSameKeyOnly(t *testing.T) {
	k := newKeyedMutex()

	k.Lock("a")
	done := make(chan struct{})
	go func() {
		k.Lock("b") // different key, must not block
		k.Unlock("b")
		close(done)
	}()
	<-done
	k.Unlock("a")

	// Same key excludes: counter increments stay consistent under contention.
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("shared")
			counter++
			k.Unlock("shared")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
