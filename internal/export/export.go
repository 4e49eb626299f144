// Package export writes the reconciled dataset to the canonical
// delimited format consumed by the dashboard and by downstream tools.
//
// Flattening rule: one row per identifier; when a record carries nested
// one-to-many children, one row per child record with the parent's
// attributes duplicated onto each. Headers are raw source-field names so
// the export re-loads through the same schema it was produced with.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/seqlab/warehouse/internal/models"
	"github.com/seqlab/warehouse/internal/schema"
)

// Flatten expands reconciled records into flat attribute maps.
func Flatten(records []*models.ReconciledRecord) []map[string]any {
	var rows []map[string]any
	for _, rec := range records {
		if len(rec.Children) == 0 {
			rows = append(rows, cloneAttrs(rec.Attributes))
			continue
		}
		kinds := make([]models.TableKind, 0, len(rec.Children))
		for kind := range rec.Children {
			kinds = append(kinds, kind)
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

		for _, kind := range kinds {
			for _, child := range rec.Children[kind] {
				row := cloneAttrs(rec.Attributes)
				for attr, v := range child.Attributes {
					if v != nil {
						row[attr] = v
					}
				}
				rows = append(rows, row)
			}
		}
	}
	return rows
}

// WriteCSV writes rows using the given field specs for column order,
// header names and value formatting.
func WriteCSV(path string, fields []schema.FieldSpec, rows []map[string]any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := make([]string, len(fields))
	for i, spec := range fields {
		header[i] = spec.SourceField
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing export header: %w", err)
	}

	record := make([]string, len(fields))
	for _, row := range rows {
		for i, spec := range fields {
			record[i] = FormatValue(row[spec.Attribute], spec)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing export row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing export: %w", err)
	}
	return nil
}

// FormatValue renders a typed value so that re-parsing it with the same
// FieldSpec yields an identical value (round-trip property).
func FormatValue(v any, spec schema.FieldSpec) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case time.Time:
		return t.Format(spec.GoLayout())
	}
	return fmt.Sprintf("%v", v)
}

func cloneAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// CombineFields builds the export column list from several schemas,
// keeping declaration order and dropping repeated attributes.
func CombineFields(schemas ...*schema.Schema) []schema.FieldSpec {
	var fields []schema.FieldSpec
	seen := make(map[string]struct{})
	for _, s := range schemas {
		if s == nil {
			continue
		}
		for _, spec := range s.Fields() {
			if _, dup := seen[spec.Attribute]; dup {
				continue
			}
			seen[spec.Attribute] = struct{}{}
			fields = append(fields, spec)
		}
	}
	return fields
}
