package mapper

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/metanexus/metadata-service/internal/model"
	"github.com/metanexus/metadata-service/internal/plugin/store/memory"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedExportFixtures(t *testing.T) (*memory.Store, model.Entity) {
	t.Helper()
	s := memory.New()
	ctx := context.Background()

	parent := model.Entity{ID: "ent_parent0001", Name: "Parent"}
	require.NoError(t, s.InsertOne(ctx, registrystore.CollectionEntities, parent))
	require.NoError(t, s.InsertOne(ctx, registrystore.CollectionProjects, model.Project{ID: "prj_study00001", Name: "Study"}))

	entity := model.Entity{
		ID:          "ent_sample0001",
		Name:        "Sample",
		Owner:       "alice",
		Created:     time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Description: "first batch",
		Projects:    []string{"prj_study00001"},
		Associations: model.Associations{
			Origins: []model.Ref{{ID: "ent_parent0001", Name: "Parent"}},
		},
		Attributes: []model.Attribute{{
			ID:   "atr_0000000001",
			Name: "measurements",
			Values: []model.Value{
				{ID: "val_0000000001", Name: "height", Type: model.ValueTypeNumber, Data: 12.5},
				{ID: "val_0000000002", Name: "unit", Type: model.ValueTypeSelect, Data: model.SelectData{Options: []string{"cm"}, Selected: "cm"}},
			},
		}},
		History: []model.EntitySnapshot{{Version: "deadbeef00", Name: "older"}},
	}
	require.NoError(t, s.InsertOne(ctx, registrystore.CollectionEntities, entity))
	return s, entity
}

func TestExportCSV_DefaultFields(t *testing.T) {
	s, entity := seedExportFixtures(t)
	x := NewExporter(s, t.TempDir())

	rc, filename, err := x.Export(context.Background(), entity.ID, ExportSpec{Format: FormatCSV})
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "ent_sample0001.csv", filename)

	rows, err := csv.NewReader(rc).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	headers, row := rows[0], rows[1]
	assert.Equal(t, []string{"ID", "Name", "Created", "Owner", "Description", "Origin", "Project", "height (measurements)", "unit (measurements)"}, headers)
	assert.Equal(t, "ent_sample0001", row[0])
	assert.Equal(t, "Sample", row[1])
	assert.Equal(t, "14 Mar 2025", row[2])
	assert.Equal(t, "alice", row[3])
	assert.Equal(t, "Parent", row[5])
	assert.Equal(t, "Study", row[6])
	assert.Equal(t, "12.5", row[7])
	assert.Equal(t, "cm", row[8])
}

func TestExportCSV_SelectedFieldsOnly(t *testing.T) {
	s, entity := seedExportFixtures(t)
	x := NewExporter(s, t.TempDir())

	rc, _, err := x.Export(context.Background(), entity.ID, ExportSpec{
		Format: FormatCSV,
		Fields: []string{"owner", "origin_ent_parent0001"},
	})
	require.NoError(t, err)
	defer rc.Close()

	rows, err := csv.NewReader(rc).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Name", "Owner", "Origin"}, rows[0])
	assert.Equal(t, []string{"ent_sample0001", "Sample", "alice", "Parent"}, rows[1])
}

func TestExportJSON_StripsHistory(t *testing.T) {
	s, entity := seedExportFixtures(t)
	x := NewExporter(s, t.TempDir())

	rc, _, err := x.Export(context.Background(), entity.ID, ExportSpec{Format: FormatJSON})
	require.NoError(t, err)
	defer rc.Close()

	var exported model.Entity
	require.NoError(t, json.NewDecoder(rc).Decode(&exported))
	assert.Equal(t, entity.ID, exported.ID)
	assert.Empty(t, exported.History)
	require.Len(t, exported.Associations.Origins, 1)
}

func TestExportXLSX_RoundTrips(t *testing.T) {
	s, entity := seedExportFixtures(t)
	x := NewExporter(s, t.TempDir())

	rc, filename, err := x.Export(context.Background(), entity.ID, ExportSpec{Format: FormatXLSX})
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "ent_sample0001.xlsx", filename)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)

	rows, err := ReadXLSXRows(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Sample", rows[0]["Name"])
	assert.Equal(t, "Parent", rows[0]["Origin"])
}

func TestExport_UnsupportedFormat(t *testing.T) {
	s, entity := seedExportFixtures(t)
	x := NewExporter(s, t.TempDir())

	_, _, err := x.Export(context.Background(), entity.ID, ExportSpec{Format: "pdf"})
	var validation *registrystore.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestExportMany_BackupRoundTrip(t *testing.T) {
	s, entity := seedExportFixtures(t)
	x := NewExporter(s, t.TempDir())

	rc, filename, err := x.ExportMany(context.Background(), []string{"ent_parent0001", entity.ID})
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "entities.json", filename)

	restored, err := ParseBackup(rc)
	require.NoError(t, err)
	require.Len(t, restored, 2)
	for _, e := range restored {
		assert.Empty(t, e.History)
	}
}
