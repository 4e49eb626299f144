// Package validate coerces raw rows against a schema, producing typed
// records plus a list of issues. Validation never aborts sibling rows:
// every row yields a record and zero or more issues.
package validate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/seqlab/warehouse/internal/models"
	"github.com/seqlab/warehouse/internal/schema"
	"github.com/seqlab/warehouse/internal/tabular"
)

// Validate maps every RawRow through the schema. Source fields are
// matched exactly — no fuzzy matching — and extra raw columns are
// ignored so operator notes in the spreadsheet don't break loads.
// loc carries the file path for error attribution; row/sheet come from
// each RawRow.
func Validate(rows []tabular.RawRow, s *schema.Schema, path string) ([]models.ValidatedRecord, []models.Issue) {
	records := make([]models.ValidatedRecord, 0, len(rows))
	var all []models.Issue

	idField := s.IdentifierField()

	for _, row := range rows {
		loc := models.SourceLocation{Path: path, Sheet: row.Sheet, Row: row.Line}
		rec := models.ValidatedRecord{
			Attributes: make(map[string]any, s.Len()),
			Location:   loc,
		}

		if row.ParseIssue != "" {
			rec.Issues = append(rec.Issues, models.Issue{
				Kind:     models.IssueMalformedRow,
				Location: loc,
				Detail:   row.ParseIssue,
			})
		}

		for _, spec := range s.Fields() {
			raw, present := row.Get(spec.SourceField)
			raw = strings.TrimSpace(raw)

			if !present || raw == "" {
				rec.Attributes[spec.Attribute] = nil
				if spec.Required {
					rec.Issues = append(rec.Issues, models.Issue{
						Kind:      models.IssueMissingRequiredField,
						Attribute: spec.Attribute,
						Location:  loc,
					})
				}
				continue
			}

			value, issueKind, detail := coerce(raw, spec)
			rec.Attributes[spec.Attribute] = value
			if issueKind != "" {
				rec.Issues = append(rec.Issues, models.Issue{
					Kind:      issueKind,
					Attribute: spec.Attribute,
					Location:  loc,
					Detail:    detail,
				})
			}
		}

		// A record without its identifier cannot be joined; it is
		// excluded from reconciliation but still reported.
		if idField != nil && rec.Attributes[idField.Attribute] == nil {
			rec.Issues = append(rec.Issues, models.Issue{
				Kind:      models.IssueMissingIdentifier,
				Attribute: idField.Attribute,
				Location:  loc,
			})
		}

		all = append(all, rec.Issues...)
		records = append(records, rec)
	}
	return records, all
}

// coerce parses one cell per the field's datatype. On failure the value
// becomes null and the issue kind says why.
func coerce(raw string, spec schema.FieldSpec) (any, models.IssueKind, string) {
	switch spec.Datatype {
	case schema.TypeStr:
		return raw, "", ""

	case schema.TypeInt:
		// Spreadsheets render integer cells as "1200.0" after a float
		// pass; accept that spelling when it is exact.
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v, "", ""
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f == float64(int64(f)) {
			return int64(f), "", ""
		}
		return nil, models.IssueTypeMismatch, fmt.Sprintf("%q is not an integer", raw)

	case schema.TypeFloat:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v, "", ""
		}
		return nil, models.IssueTypeMismatch, fmt.Sprintf("%q is not a number", raw)

	case schema.TypeDate:
		layout := spec.GoLayout()
		if t, err := time.Parse(layout, raw); err == nil {
			return t, "", ""
		}
		return nil, models.IssueDateFormatMismatch,
			fmt.Sprintf("%q does not match format %s", raw, spec.DateFormat)
	}
	return raw, "", ""
}

// Joinable filters records to those whose identifier is present, i.e.
// the subset reconciliation may consume.
func Joinable(records []models.ValidatedRecord, s *schema.Schema) []models.ValidatedRecord {
	idField := s.IdentifierField()
	if idField == nil {
		return records
	}
	out := make([]models.ValidatedRecord, 0, len(records))
	for _, r := range records {
		if r.Attributes[idField.Attribute] != nil {
			out = append(out, r)
		}
	}
	return out
}
