// Package mapper translates entities between their stored form and the flat
// file formats researchers exchange: CSV and XLSX tables plus JSON dumps for
// backup and restore.
package mapper

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/metanexus/metadata-service/internal/model"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
	"github.com/metanexus/metadata-service/internal/tempfiles"
	"github.com/xuri/excelize/v2"
)

// Format selects the export file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ExportSpec describes one export request. Nil Fields exports everything:
// the standard scalar fields plus one selector per origin, product, project,
// and attribute of the entity.
//
// Field selectors: "created", "owner", "description", "origin_<id>",
// "product_<id>", "project_<id>", "attribute_<id>".
type ExportSpec struct {
	Format Format   `json:"format"`
	Fields []string `json:"fields"`
}

const exportDateLayout = "02 Jan 2006"

// Exporter renders entities into downloadable files, resolving referenced
// identifiers to display names through the store. History is never exported.
type Exporter struct {
	store registrystore.DocumentStore
	dir   string
}

// NewExporter creates an Exporter staging files under dir.
func NewExporter(store registrystore.DocumentStore, dir string) *Exporter {
	return &Exporter{store: store, dir: dir}
}

// Export renders one entity. The returned reader deletes the staged file on
// close; the string is a suggested download filename.
func (x *Exporter) Export(ctx context.Context, id string, spec ExportSpec) (io.ReadCloser, string, error) {
	var entity model.Entity
	if err := x.store.GetOne(ctx, registrystore.CollectionEntities, id, &entity); err != nil {
		return nil, "", err
	}
	entity.History = nil

	fields := spec.Fields
	if fields == nil {
		fields = defaultFields(entity)
	}

	switch spec.Format {
	case FormatJSON:
		data, err := x.exportJSON(entity, spec.Fields)
		if err != nil {
			return nil, "", err
		}
		rc, err := x.stage("export-*.json", func(f *os.File) error {
			_, err := f.Write(data)
			return err
		})
		return rc, entity.ID + ".json", err
	case FormatCSV:
		headers, row := x.tabulate(ctx, entity, fields)
		rc, err := x.stage("export-*.csv", func(f *os.File) error {
			w := csv.NewWriter(f)
			if err := w.WriteAll([][]string{headers, row}); err != nil {
				return err
			}
			return w.Error()
		})
		return rc, entity.ID + ".csv", err
	case FormatXLSX:
		headers, row := x.tabulate(ctx, entity, fields)
		rc, err := x.stage("export-*.xlsx", func(f *os.File) error {
			return writeXLSX(f, headers, row)
		})
		return rc, entity.ID + ".xlsx", err
	}
	return nil, "", &registrystore.ValidationError{Field: "format", Message: fmt.Sprintf("unsupported format %q", spec.Format)}
}

// ExportMany renders a JSON array of entities, history stripped. Used for
// backups; ParseBackup reads the result back.
func (x *Exporter) ExportMany(ctx context.Context, ids []string) (io.ReadCloser, string, error) {
	var entities []model.Entity
	if err := x.store.GetMany(ctx, registrystore.CollectionEntities, ids, &entities); err != nil {
		return nil, "", err
	}
	for i := range entities {
		entities[i].History = nil
	}
	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return nil, "", err
	}
	rc, err := x.stage("export-*.json", func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
	return rc, "entities.json", err
}

func (x *Exporter) stage(pattern string, write func(*os.File) error) (io.ReadCloser, error) {
	f, err := tempfiles.Create(x.dir, pattern)
	if err != nil {
		return nil, err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return tempfiles.NewDeleteOnClose(f), nil
}

func defaultFields(entity model.Entity) []string {
	fields := []string{"created", "owner", "description"}
	for _, r := range entity.Associations.Origins {
		fields = append(fields, "origin_"+r.ID)
	}
	for _, r := range entity.Associations.Products {
		fields = append(fields, "product_"+r.ID)
	}
	for _, id := range entity.Projects {
		fields = append(fields, "project_"+id)
	}
	for _, a := range entity.Attributes {
		fields = append(fields, "attribute_"+a.ID)
	}
	return fields
}

// exportJSON renders either the whole entity or a partial document holding
// only the selected fields.
func (x *Exporter) exportJSON(entity model.Entity, fields []string) ([]byte, error) {
	if fields == nil {
		return json.MarshalIndent(entity, "", "  ")
	}

	partial := map[string]any{
		"_id":   entity.ID,
		"name":  entity.Name,
		"owner": entity.Owner,
	}
	var origins, products []model.Ref
	var attributes []model.Attribute
	for _, field := range fields {
		switch {
		case field == "created":
			partial["created"] = entity.Created.Format(exportDateLayout)
		case field == "description":
			partial["description"] = entity.Description
		case strings.HasPrefix(field, "origin_"):
			if r, ok := findRef(entity.Associations.Origins, strings.TrimPrefix(field, "origin_")); ok {
				origins = append(origins, r)
			}
		case strings.HasPrefix(field, "product_"):
			if r, ok := findRef(entity.Associations.Products, strings.TrimPrefix(field, "product_")); ok {
				products = append(products, r)
			}
		case strings.HasPrefix(field, "project_"):
			id := strings.TrimPrefix(field, "project_")
			for _, existing := range entity.Projects {
				if existing == id {
					partial["projects"] = appendString(partial["projects"], id)
				}
			}
		case strings.HasPrefix(field, "attribute_"):
			id := strings.TrimPrefix(field, "attribute_")
			for _, a := range entity.Attributes {
				if a.ID == id {
					attributes = append(attributes, a)
				}
			}
		}
	}
	if origins != nil || products != nil {
		partial["associations"] = model.Associations{Origins: origins, Products: products}
	}
	if attributes != nil {
		partial["attributes"] = attributes
	}
	return json.MarshalIndent(partial, "", "  ")
}

func appendString(existing any, value string) []string {
	list, _ := existing.([]string)
	return append(list, value)
}

func findRef(refs []model.Ref, id string) (model.Ref, bool) {
	for _, r := range refs {
		if r.ID == id {
			return r, true
		}
	}
	return model.Ref{}, false
}

// tabulate renders one header row and one data row for the selected fields.
// Identifier selectors resolve to current display names via the store; stale
// selectors are skipped rather than exported as blanks.
func (x *Exporter) tabulate(ctx context.Context, entity model.Entity, fields []string) (headers, row []string) {
	headers = []string{"ID", "Name"}
	row = []string{entity.ID, entity.Name}

	for _, field := range fields {
		switch {
		case field == "created":
			headers = append(headers, "Created")
			row = append(row, entity.Created.Format(exportDateLayout))
		case field == "owner":
			headers = append(headers, "Owner")
			row = append(row, entity.Owner)
		case field == "description":
			headers = append(headers, "Description")
			row = append(row, entity.Description)
		case strings.HasPrefix(field, "origin_"):
			if name, ok := x.entityName(ctx, strings.TrimPrefix(field, "origin_")); ok {
				headers = append(headers, "Origin")
				row = append(row, name)
			}
		case strings.HasPrefix(field, "product_"):
			if name, ok := x.entityName(ctx, strings.TrimPrefix(field, "product_")); ok {
				headers = append(headers, "Product")
				row = append(row, name)
			}
		case strings.HasPrefix(field, "project_"):
			if name, ok := x.documentName(ctx, registrystore.CollectionProjects, strings.TrimPrefix(field, "project_")); ok {
				headers = append(headers, "Project")
				row = append(row, name)
			}
		case strings.HasPrefix(field, "attribute_"):
			id := strings.TrimPrefix(field, "attribute_")
			for _, a := range entity.Attributes {
				if a.ID != id {
					continue
				}
				for _, v := range a.Values {
					headers = append(headers, fmt.Sprintf("%s (%s)", v.Name, a.Name))
					row = append(row, valueString(v))
				}
			}
		}
	}
	return headers, row
}

func (x *Exporter) entityName(ctx context.Context, id string) (string, bool) {
	return x.documentName(ctx, registrystore.CollectionEntities, id)
}

func (x *Exporter) documentName(ctx context.Context, collection, id string) (string, bool) {
	var doc struct {
		Name string `bson:"name" json:"name"`
	}
	if err := x.store.GetOne(ctx, collection, id, &doc); err != nil {
		return "", false
	}
	return doc.Name, true
}

// valueString flattens a typed value into one cell. Select values render the
// selected option, entity values the referenced name.
func valueString(v model.Value) string {
	switch v.Type {
	case model.ValueTypeSelect:
		if data, ok := v.Data.(map[string]any); ok {
			if selected, ok := data["selected"].(string); ok {
				return selected
			}
		}
		if data, ok := v.Data.(model.SelectData); ok {
			return data.Selected
		}
	case model.ValueTypeEntity:
		if data, ok := v.Data.(map[string]any); ok {
			if name, ok := data["name"].(string); ok {
				return name
			}
		}
	}
	if v.Data == nil {
		return ""
	}
	if s, ok := v.Data.(string); ok {
		return s
	}
	return fmt.Sprint(v.Data)
}

func writeXLSX(f *os.File, headers, row []string) error {
	wb := excelize.NewFile()
	defer wb.Close()

	sheet := wb.GetSheetName(0)
	if err := wb.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	if err := wb.SetSheetRow(sheet, "A2", &row); err != nil {
		return err
	}
	return wb.Write(f)
}
