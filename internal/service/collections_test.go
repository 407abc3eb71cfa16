package service

import (
	"context"
	"testing"

	"github.com/metanexus/metadata-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionCreate_LinksMemberEntities(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	a := createEntity(t, s, "A")
	col, err := s.Collections.Create(ctx, model.Collection{
		Name:     "Series 1",
		Entities: []string{a.ID},
	}, "alice")
	require.NoError(t, err)
	assert.Regexp(t, `^col_[0-9a-f]{10}$`, col.ID)

	stored, err := s.Entities.GetOne(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{col.ID}, stored.Collections)
}

func TestCollectionUpdate_SnapshotAndMirror(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	a := createEntity(t, s, "A")
	b := createEntity(t, s, "B")
	col, err := s.Collections.Create(ctx, model.Collection{Name: "Series 1", Entities: []string{a.ID}}, "alice")
	require.NoError(t, err)

	desired := col
	desired.Entities = []string{b.ID}
	desired.Description = "second pass"
	updated, err := s.Collections.Update(ctx, desired, "alice")
	require.NoError(t, err)

	require.Len(t, updated.History, 1)
	assert.Equal(t, []string{a.ID}, updated.History[0].Entities)
	assert.Equal(t, "second pass", updated.Description)

	aStored, err := s.Entities.GetOne(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, aStored.Collections)

	bStored, err := s.Entities.GetOne(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{col.ID}, bStored.Collections)
}

func TestCollectionDelete_CascadesToMembers(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	a := createEntity(t, s, "A")
	col, err := s.Collections.Create(ctx, model.Collection{Name: "Series 1", Entities: []string{a.ID}}, "alice")
	require.NoError(t, err)

	require.NoError(t, s.Collections.Delete(ctx, col.ID, "alice"))

	stored, err := s.Collections.GetOne(ctx, col.ID)
	require.NoError(t, err)
	assert.True(t, stored.Deleted)

	aStored, err := s.Entities.GetOne(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, aStored.Collections)
}

func TestCollectionSetArchived_NoOpMessage(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	col, err := s.Collections.Create(ctx, model.Collection{Name: "Series 1"}, "alice")
	require.NoError(t, err)

	msg, err := s.Collections.SetArchived(ctx, col.ID, true, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Collection archived", msg)

	msg, err = s.Collections.SetArchived(ctx, col.ID, true, "alice")
	require.NoError(t, err)
	assert.Equal(t, "No changes made to Collection", msg)
}
