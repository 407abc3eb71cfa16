package service

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/metanexus/metadata-service/internal/model"
	"github.com/metanexus/metadata-service/internal/plugin/store/memory"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServices(t *testing.T) *Services {
	t.Helper()
	return New(memory.New(), Options{})
}

func createEntity(t *testing.T, s *Services, name string) model.Entity {
	t.Helper()
	e, err := s.Entities.Create(context.Background(), model.Entity{Name: name}, "tester")
	require.NoError(t, err)
	return e
}

// requireSymmetric asserts the graph invariant: every origin edge has a
// matching product edge on the neighbor and vice versa.
func requireSymmetric(t *testing.T, s *Services) {
	t.Helper()
	ctx := context.Background()
	entities, err := s.Entities.All(ctx)
	require.NoError(t, err)

	byID := map[string]model.Entity{}
	for _, e := range entities {
		byID[e.ID] = e
	}
	for _, e := range entities {
		if e.Deleted {
			continue
		}
		for _, origin := range e.Associations.Origins {
			neighbor, ok := byID[origin.ID]
			require.True(t, ok, "origin %s of %s does not exist", origin.ID, e.ID)
			assert.True(t, model.ContainsRef(neighbor.Associations.Products, e.ID),
				"%s lists %s as origin but is not among its products", e.ID, origin.ID)
		}
		for _, product := range e.Associations.Products {
			neighbor, ok := byID[product.ID]
			require.True(t, ok, "product %s of %s does not exist", product.ID, e.ID)
			assert.True(t, model.ContainsRef(neighbor.Associations.Origins, e.ID),
				"%s lists %s as product but is not among its origins", e.ID, product.ID)
		}
	}
}

func TestCreate_AssignsIdentifierAndTrimsNames(t *testing.T) {
	s := newTestServices(t)

	e, err := s.Entities.Create(context.Background(), model.Entity{
		Name:        "  Compound A  ",
		Description: " first batch ",
	}, "alice")
	require.NoError(t, err)

	assert.Regexp(t, `^ent_[0-9a-f]{10}$`, e.ID)
	assert.Equal(t, "Compound A", e.Name)
	assert.Equal(t, "first batch", e.Description)
	assert.Equal(t, "alice", e.Owner)
	assert.False(t, e.Created.IsZero())
}

func TestCreate_EmptyNameRejected(t *testing.T) {
	s := newTestServices(t)

	_, err := s.Entities.Create(context.Background(), model.Entity{Name: "   "}, "alice")
	var validation *registrystore.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestCreate_WithAssociationsSettlesBothSides(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	parent := createEntity(t, s, "Parent")
	child, err := s.Entities.Create(ctx, model.Entity{
		Name:         "Child",
		Associations: model.Associations{Origins: []model.Ref{parent.Ref()}},
	}, "tester")
	require.NoError(t, err)

	stored, err := s.Entities.GetOne(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, stored.Associations.Products, 1)
	assert.Equal(t, child.ID, stored.Associations.Products[0].ID)
	assert.Equal(t, "Child", stored.Associations.Products[0].Name)

	requireSymmetric(t, s)
}

func TestCreate_DuplicateRelationshipsCollapse(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	prj, err := s.Projects.Create(ctx, model.Project{Name: "Study"}, "tester")
	require.NoError(t, err)

	parent := createEntity(t, s, "Parent")
	child, err := s.Entities.Create(ctx, model.Entity{
		Name:         "Child",
		Projects:     []string{prj.ID, prj.ID},
		Associations: model.Associations{Origins: []model.Ref{parent.Ref(), parent.Ref()}},
	}, "tester")
	require.NoError(t, err)

	stored, err := s.Entities.GetOne(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, stored.Associations.Origins, 1)
	assert.Equal(t, []string{prj.ID}, stored.Projects)

	parentStored, err := s.Entities.GetOne(ctx, parent.ID)
	require.NoError(t, err)
	assert.Len(t, parentStored.Associations.Products, 1)

	prjStored, err := s.Projects.GetOne(ctx, prj.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{child.ID}, prjStored.Entities)
	requireSymmetric(t, s)
}

func TestUpdate_SecondIdenticalUpdateOnlyGrowsHistory(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	a := createEntity(t, s, "A")
	b := createEntity(t, s, "B")

	desired := a
	desired.Associations.Products = []model.Ref{b.Ref()}

	first, err := s.Entities.Update(ctx, desired, "tester", "link b")
	require.NoError(t, err)
	require.Len(t, first.History, 1)
	requireSymmetric(t, s)

	second, err := s.Entities.Update(ctx, desired, "tester", "link b again")
	require.NoError(t, err)

	assert.Len(t, second.History, 2)
	assert.Len(t, second.Associations.Products, 1)

	neighbor, err := s.Entities.GetOne(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, neighbor.Associations.Origins, 1)
	requireSymmetric(t, s)
}

func TestUpdate_HistoryCapturesPreUpdateState(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	e := createEntity(t, s, "Original")

	desired := e
	desired.Name = "Renamed"
	updated, err := s.Entities.Update(ctx, desired, "bob", "rename")
	require.NoError(t, err)

	require.Len(t, updated.History, 1)
	snap := updated.History[0]
	assert.Equal(t, "Original", snap.Name)
	assert.Equal(t, "bob", snap.Author)
	assert.Equal(t, "rename", snap.Message)
	assert.NotEmpty(t, snap.Version)
	assert.False(t, snap.Timestamp.IsZero())
}

func TestUpdate_RenamePropagatesToKeptNeighbors(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	parent := createEntity(t, s, "Parent")
	child, err := s.Entities.Create(ctx, model.Entity{
		Name:         "Child",
		Associations: model.Associations{Origins: []model.Ref{parent.Ref()}},
	}, "tester")
	require.NoError(t, err)

	stored, err := s.Entities.GetOne(ctx, child.ID)
	require.NoError(t, err)
	stored.Name = "Child v2"
	_, err = s.Entities.Update(ctx, stored, "tester", "rename")
	require.NoError(t, err)

	neighbor, err := s.Entities.GetOne(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, neighbor.Associations.Products, 1)
	assert.Equal(t, "Child v2", neighbor.Associations.Products[0].Name)
}

func TestUpdate_SwapsAssociationAndCleansOldNeighbor(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	a := createEntity(t, s, "A")
	b := createEntity(t, s, "B")
	c := createEntity(t, s, "C")

	withB := a
	withB.Associations.Products = []model.Ref{b.Ref()}
	_, err := s.Entities.Update(ctx, withB, "tester", "")
	require.NoError(t, err)

	current, err := s.Entities.GetOne(ctx, a.ID)
	require.NoError(t, err)
	current.Associations.Products = []model.Ref{c.Ref()}
	_, err = s.Entities.Update(ctx, current, "tester", "")
	require.NoError(t, err)

	oldNeighbor, err := s.Entities.GetOne(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, oldNeighbor.Associations.Origins)

	newNeighbor, err := s.Entities.GetOne(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, newNeighbor.Associations.Origins, 1)
	assert.Equal(t, a.ID, newNeighbor.Associations.Origins[0].ID)
	requireSymmetric(t, s)
}

func TestDelete_CascadesAndKeepsOwnLists(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	prj, err := s.Projects.Create(ctx, model.Project{Name: "Study"}, "tester")
	require.NoError(t, err)

	parent := createEntity(t, s, "Parent")
	victim, err := s.Entities.Create(ctx, model.Entity{
		Name:         "Victim",
		Projects:     []string{prj.ID},
		Associations: model.Associations{Origins: []model.Ref{parent.Ref()}},
	}, "tester")
	require.NoError(t, err)

	require.NoError(t, s.Entities.Delete(ctx, victim.ID, "tester"))

	// Still retrievable, flagged deleted, relationship lists intact.
	stored, err := s.Entities.GetOne(ctx, victim.ID)
	require.NoError(t, err)
	assert.True(t, stored.Deleted)
	assert.Equal(t, []string{prj.ID}, stored.Projects)
	require.Len(t, stored.Associations.Origins, 1)

	// Neighbors no longer reference it.
	parentStored, err := s.Entities.GetOne(ctx, parent.ID)
	require.NoError(t, err)
	assert.Empty(t, parentStored.Associations.Products)

	prjStored, err := s.Projects.GetOne(ctx, prj.ID)
	require.NoError(t, err)
	assert.Empty(t, prjStored.Entities)
}

func TestDelete_AlreadyDeletedIsNoOp(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	e := createEntity(t, s, "E")
	require.NoError(t, s.Entities.Delete(ctx, e.ID, "tester"))
	require.NoError(t, s.Entities.Delete(ctx, e.ID, "tester"))
}

func TestUpdate_RestoreFromTrashReplaysAssociations(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	prj, err := s.Projects.Create(ctx, model.Project{Name: "Study"}, "tester")
	require.NoError(t, err)

	parent := createEntity(t, s, "Parent")
	victim, err := s.Entities.Create(ctx, model.Entity{
		Name:         "Victim",
		Projects:     []string{prj.ID},
		Associations: model.Associations{Origins: []model.Ref{parent.Ref()}},
	}, "tester")
	require.NoError(t, err)

	require.NoError(t, s.Entities.Delete(ctx, victim.ID, "tester"))

	trashed, err := s.Entities.GetOne(ctx, victim.ID)
	require.NoError(t, err)
	trashed.Deleted = false
	restored, err := s.Entities.Update(ctx, trashed, "tester", "restore")
	require.NoError(t, err)
	assert.False(t, restored.Deleted)

	parentStored, err := s.Entities.GetOne(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, parentStored.Associations.Products, 1)
	assert.Equal(t, victim.ID, parentStored.Associations.Products[0].ID)

	prjStored, err := s.Projects.GetOne(ctx, prj.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{victim.ID}, prjStored.Entities)
	requireSymmetric(t, s)
}

func TestSetArchived_NoOpMessage(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	e := createEntity(t, s, "E")

	msg, err := s.Entities.SetArchived(ctx, e.ID, true, "tester")
	require.NoError(t, err)
	assert.Equal(t, "Entity archived", msg)

	msg, err = s.Entities.SetArchived(ctx, e.ID, true, "tester")
	require.NoError(t, err)
	assert.Equal(t, "No changes made to Entity", msg)

	msg, err = s.Entities.SetArchived(ctx, e.ID, false, "tester")
	require.NoError(t, err)
	assert.Equal(t, "Entity unarchived", msg)
}

func TestAddRemoveProject_MaintainsMirrorSets(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	prj, err := s.Projects.Create(ctx, model.Project{Name: "Study"}, "tester")
	require.NoError(t, err)
	e := createEntity(t, s, "E")

	require.NoError(t, s.Entities.AddProject(ctx, e.ID, prj.ID, "tester"))
	// Adding twice is a no-op.
	require.NoError(t, s.Entities.AddProject(ctx, e.ID, prj.ID, "tester"))

	stored, err := s.Entities.GetOne(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{prj.ID}, stored.Projects)

	prjStored, err := s.Projects.GetOne(ctx, prj.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{e.ID}, prjStored.Entities)

	require.NoError(t, s.Entities.RemoveProject(ctx, e.ID, prj.ID, "tester"))
	stored, err = s.Entities.GetOne(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Projects)
	prjStored, err = s.Projects.GetOne(ctx, prj.ID)
	require.NoError(t, err)
	assert.Empty(t, prjStored.Entities)
}

func TestAddProject_UnknownProjectRejected(t *testing.T) {
	s := newTestServices(t)
	e := createEntity(t, s, "E")

	err := s.Entities.AddProject(context.Background(), e.ID, "prj_missing", "tester")
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestGetByName_SkipsArchived(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	e := createEntity(t, s, "Findable")
	found, err := s.Entities.GetByName(ctx, "Findable")
	require.NoError(t, err)
	assert.Equal(t, e.ID, found.ID)

	_, err = s.Entities.SetArchived(ctx, e.ID, true, "tester")
	require.NoError(t, err)

	exists, err := s.Entities.ExistsByName(ctx, "Findable")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAttachments(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	e := createEntity(t, s, "E")
	require.NoError(t, s.Entities.AddAttachment(ctx, e.ID, model.Ref{ID: "blob_1", Name: "scan.pdf"}, "tester"))
	require.NoError(t, s.Entities.AddAttachment(ctx, e.ID, model.Ref{ID: "blob_1", Name: "scan-v2.pdf"}, "tester"))

	stored, err := s.Entities.GetOne(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, stored.Attachments, 1)
	assert.Equal(t, "scan-v2.pdf", stored.Attachments[0].Name)

	require.NoError(t, s.Entities.RemoveAttachment(ctx, e.ID, "blob_1", "tester"))
	stored, err = s.Entities.GetOne(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Attachments)
}

func TestAttachTemplate_CopiesWithFreshIdentifiers(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	tpl, err := s.Templates.Create(ctx, model.Attribute{
		Name: "measurements",
		Values: []model.Value{
			{Name: "height", Type: model.ValueTypeNumber, Data: 0},
		},
	}, "tester")
	require.NoError(t, err)

	e := createEntity(t, s, "E")
	attached, err := s.Entities.AttachTemplate(ctx, e.ID, tpl.ID, "tester")
	require.NoError(t, err)

	assert.NotEqual(t, tpl.ID, attached.ID)
	require.Len(t, attached.Values, 1)
	assert.NotEqual(t, tpl.Values[0].ID, attached.Values[0].ID)
	assert.Equal(t, "height", attached.Values[0].Name)

	stored, err := s.Entities.GetOne(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, stored.Attributes, 1)
	assert.Equal(t, attached.ID, stored.Attributes[0].ID)
}

func TestRestore_InsertsVerbatim(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	backup := model.Entity{
		ID:       "ent_backup1234",
		Name:     "From backup",
		Projects: []string{"prj_gone"},
		History:  []model.EntitySnapshot{{Version: "abc", Name: "older"}},
	}
	restored, err := s.Entities.Restore(ctx, backup, "tester")
	require.NoError(t, err)
	assert.Equal(t, backup.ID, restored.ID)

	stored, err := s.Entities.GetOne(ctx, backup.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"prj_gone"}, stored.Projects)
	require.Len(t, stored.History, 1)
	assert.Equal(t, "older", stored.History[0].Name)
}

// TestRandomizedLifecycleKeepsGraphSymmetric drives a seeded sequence of
// create, rewire, delete, and project membership operations and asserts the
// bidirectional invariants after every step.
func TestRandomizedLifecycleKeepsGraphSymmetric(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(20260830))

	prj, err := s.Projects.Create(ctx, model.Project{Name: "Study"}, "tester")
	require.NoError(t, err)

	var live []string
	randomOrigins := func(exclude string) []model.Ref {
		var refs []model.Ref
		for _, id := range live {
			if id != exclude && rng.Intn(3) == 0 {
				refs = append(refs, model.Ref{ID: id})
			}
		}
		return refs
	}

	for i := 0; i < 150; i++ {
		op := rng.Intn(4)
		if len(live) < 3 {
			op = 0
		}
		switch op {
		case 0:
			e, err := s.Entities.Create(ctx, model.Entity{
				Name:         fmt.Sprintf("Sample %d", i),
				Associations: model.Associations{Origins: randomOrigins("")},
			}, "tester")
			require.NoError(t, err)
			live = append(live, e.ID)
		case 1:
			current, err := s.Entities.GetOne(ctx, live[rng.Intn(len(live))])
			require.NoError(t, err)
			current.Associations.Origins = randomOrigins(current.ID)
			_, err = s.Entities.Update(ctx, current, "tester", "rewire")
			require.NoError(t, err)
		case 2:
			idx := rng.Intn(len(live))
			require.NoError(t, s.Entities.Delete(ctx, live[idx], "tester"))
			live = append(live[:idx], live[idx+1:]...)
		case 3:
			id := live[rng.Intn(len(live))]
			if rng.Intn(2) == 0 {
				require.NoError(t, s.Entities.AddProject(ctx, id, prj.ID, "tester"))
			} else {
				require.NoError(t, s.Entities.RemoveProject(ctx, id, prj.ID, "tester"))
			}
		}
		requireSymmetric(t, s)
	}

	// The project's member list must mirror the live entities that list it.
	prjStored, err := s.Projects.GetOne(ctx, prj.ID)
	require.NoError(t, err)
	members := map[string]bool{}
	for _, id := range prjStored.Entities {
		members[id] = true
	}
	entities, err := s.Entities.All(ctx)
	require.NoError(t, err)
	for _, e := range entities {
		if e.Deleted {
			assert.False(t, members[e.ID], "deleted entity %s still listed by project", e.ID)
			continue
		}
		listed := false
		for _, p := range e.Projects {
			if p == prj.ID {
				listed = true
			}
		}
		assert.Equal(t, listed, members[e.ID], "project membership mirror broken for %s", e.ID)
	}
}

func TestLifecycleWritesActivityRecords(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	e := createEntity(t, s, "E")
	_, err := s.Entities.SetArchived(ctx, e.ID, true, "alice")
	require.NoError(t, err)
	require.NoError(t, s.Entities.Delete(ctx, e.ID, "alice"))

	records, err := s.Activity.All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first.
	assert.Equal(t, model.ActivityDelete, records[0].Type)
	assert.Equal(t, "Deleted Entity", records[0].Details)
	assert.Equal(t, model.ActivityArchived, records[1].Type)
	assert.Equal(t, model.ActivityCreate, records[2].Type)
	for _, r := range records {
		assert.Equal(t, e.ID, r.Target.ID)
	}
}
