package mapper

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/metanexus/metadata-service/internal/identifier"
	"github.com/metanexus/metadata-service/internal/model"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
	"github.com/xuri/excelize/v2"
)

// ValueMapping binds one spreadsheet column to a typed value of an imported
// attribute.
type ValueMapping struct {
	Column string          `json:"column"`
	Name   string          `json:"name"`
	Type   model.ValueType `json:"type"`
}

// AttributeMapping describes one attribute assembled from mapped columns.
type AttributeMapping struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Values      []ValueMapping `json:"values"`
}

// ColumnMapping declares how spreadsheet columns become entity fields.
type ColumnMapping struct {
	NameColumn        string             `json:"name_column"`
	DescriptionColumn string             `json:"description_column"`
	OwnerColumn       string             `json:"owner_column"`
	ProjectID         string             `json:"project_id"`
	Attributes        []AttributeMapping `json:"attributes"`
}

// ReadXLSXRows extracts the first sheet of a workbook as one map per data
// row, keyed by the header row.
func ReadXLSXRows(r io.Reader) ([]map[string]string, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &registrystore.ValidationError{Field: "file", Message: "not a readable XLSX workbook"}
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, &registrystore.ValidationError{Field: "file", Message: "workbook has no sheets"}
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	return rowMaps(rows), nil
}

// ReadCSVRows extracts a CSV document as one map per data row, keyed by the
// header row.
func ReadCSVRows(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &registrystore.ValidationError{Field: "file", Message: "not a readable CSV document"}
	}
	return rowMaps(rows), nil
}

func rowMaps(rows [][]string) []map[string]string {
	if len(rows) < 2 {
		return nil
	}
	headers := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		m := map[string]string{}
		for i, cell := range row {
			if i < len(headers) {
				m[headers[i]] = cell
			}
		}
		out = append(out, m)
	}
	return out
}

// MapRows turns parsed rows into entity drafts per the mapping. Rows without
// a name are skipped; a file that yields no drafts at all is rejected before
// anything is created.
func MapRows(rows []map[string]string, mapping ColumnMapping) ([]model.Entity, error) {
	var drafts []model.Entity
	for _, row := range rows {
		name := strings.TrimSpace(row[mapping.NameColumn])
		if name == "" {
			continue
		}
		draft := model.Entity{
			Name:        name,
			Description: strings.TrimSpace(row[mapping.DescriptionColumn]),
			Owner:       strings.TrimSpace(row[mapping.OwnerColumn]),
		}
		if mapping.ProjectID != "" {
			draft.Projects = []string{mapping.ProjectID}
		}
		for _, am := range mapping.Attributes {
			attr := model.Attribute{
				ID:          identifier.New(identifier.KindAttribute),
				Name:        am.Name,
				Description: am.Description,
				Timestamp:   time.Now().UTC(),
			}
			for _, vm := range am.Values {
				attr.Values = append(attr.Values, model.Value{
					ID:   identifier.New(identifier.KindValue),
					Name: vm.Name,
					Type: vm.Type,
					Data: coerce(vm.Type, row[vm.Column]),
				})
			}
			draft.Attributes = append(draft.Attributes, attr)
		}
		drafts = append(drafts, draft)
	}
	if len(drafts) == 0 {
		return nil, &registrystore.ValidationError{Field: "file", Message: "empty"}
	}
	return drafts, nil
}

var importDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02 Jan 2006",
	time.RFC3339,
}

// coerce converts a raw cell into the payload shape the value type expects.
// Unparseable cells fall back to the raw text rather than failing the import.
func coerce(typ model.ValueType, raw string) any {
	raw = strings.TrimSpace(raw)
	switch typ {
	case model.ValueTypeDate:
		for _, layout := range importDateLayouts {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return parsed.Format("2006-01-02")
			}
		}
		return raw
	case model.ValueTypeSelect:
		return model.SelectData{Options: []string{raw}, Selected: raw}
	case model.ValueTypeNumber:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n
		}
		return raw
	}
	return raw
}

// ParseBackup reads a JSON backup produced by ExportMany (or a single-entity
// JSON export) back into entity documents.
func ParseBackup(r io.Reader) ([]model.Entity, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var entities []model.Entity
	if err := json.Unmarshal(data, &entities); err == nil {
		return entities, nil
	}

	var single model.Entity
	if err := json.Unmarshal(data, &single); err == nil && single.ID != "" {
		return []model.Entity{single}, nil
	}
	return nil, &registrystore.ValidationError{Field: "file", Message: "not a recognizable entity backup"}
}
