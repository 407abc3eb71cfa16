package mapper

import (
	"strings"
	"testing"

	"github.com/metanexus/metadata-service/internal/model"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `Name,Details,Collected,Height,Condition
Sample 1,first,2025-03-14,12.5,frozen
Sample 2,second,14/03/2025,not-a-number,thawed
,ignored,,,
`

func TestReadCSVRows(t *testing.T) {
	rows, err := ReadCSVRows(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Sample 1", rows[0]["Name"])
	assert.Equal(t, "second", rows[1]["Details"])
}

func TestMapRows_FullMapping(t *testing.T) {
	rows, err := ReadCSVRows(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	drafts, err := MapRows(rows, ColumnMapping{
		NameColumn:        "Name",
		DescriptionColumn: "Details",
		ProjectID:         "prj_study00001",
		Attributes: []AttributeMapping{{
			Name: "measurements",
			Values: []ValueMapping{
				{Column: "Collected", Name: "collected", Type: model.ValueTypeDate},
				{Column: "Height", Name: "height", Type: model.ValueTypeNumber},
				{Column: "Condition", Name: "condition", Type: model.ValueTypeSelect},
			},
		}},
	})
	require.NoError(t, err)
	require.Len(t, drafts, 2) // nameless row skipped

	first := drafts[0]
	assert.Equal(t, "Sample 1", first.Name)
	assert.Equal(t, "first", first.Description)
	assert.Equal(t, []string{"prj_study00001"}, first.Projects)
	require.Len(t, first.Attributes, 1)

	values := first.Attributes[0].Values
	require.Len(t, values, 3)
	assert.Equal(t, "2025-03-14", values[0].Data)
	assert.Equal(t, 12.5, values[1].Data)
	assert.Equal(t, model.SelectData{Options: []string{"frozen"}, Selected: "frozen"}, values[2].Data)

	// Ambiguous day/month layouts still land on an ISO date.
	second := drafts[1]
	assert.Equal(t, "2025-03-14", second.Attributes[0].Values[0].Data)
	// Non-numeric cells pass through as text.
	assert.Equal(t, "not-a-number", second.Attributes[0].Values[1].Data)
}

func TestMapRows_AllocatesFreshIdentifiers(t *testing.T) {
	rows := []map[string]string{{"Name": "A"}, {"Name": "B"}}
	drafts, err := MapRows(rows, ColumnMapping{
		NameColumn: "Name",
		Attributes: []AttributeMapping{{Name: "m", Values: []ValueMapping{{Column: "x", Name: "x", Type: model.ValueTypeText}}}},
	})
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.NotEqual(t, drafts[0].Attributes[0].ID, drafts[1].Attributes[0].ID)
	assert.NotEqual(t, drafts[0].Attributes[0].Values[0].ID, drafts[1].Attributes[0].Values[0].ID)
}

func TestMapRows_EmptyFileRejected(t *testing.T) {
	_, err := MapRows(nil, ColumnMapping{NameColumn: "Name"})
	var validation *registrystore.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "empty", validation.Message)

	// Rows that all lack a name are just as empty.
	_, err = MapRows([]map[string]string{{"Name": "  "}}, ColumnMapping{NameColumn: "Name"})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "empty", validation.Message)
}

func TestReadCSVRows_HeaderOnly(t *testing.T) {
	rows, err := ReadCSVRows(strings.NewReader("Name,Details\n"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseBackup(t *testing.T) {
	many := `[{"_id":"ent_a","name":"A"},{"_id":"ent_b","name":"B"}]`
	entities, err := ParseBackup(strings.NewReader(many))
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "ent_a", entities[0].ID)

	single := `{"_id":"ent_a","name":"A"}`
	entities, err = ParseBackup(strings.NewReader(single))
	require.NoError(t, err)
	require.Len(t, entities, 1)

	_, err = ParseBackup(strings.NewReader("not json"))
	var validation *registrystore.ValidationError
	require.ErrorAs(t, err, &validation)
}
