// Package reconcile joins validated tables by shared identifiers into
// one unified record per identifier value, reporting orphans, duplicate
// identifiers and attribute conflicts instead of dropping anything.
package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/seqlab/warehouse/internal/models"
)

// Cardinality declares how many records one identifier value may own
// within a table kind.
type Cardinality string

const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

// Table is one validated input to the join.
type Table struct {
	Kind models.TableKind
	// Records must already be joinable: rows with a null identifier are
	// excluded upstream by the validator.
	Records []models.ValidatedRecord
	// IdentifierAttr is the attribute whose value is the join key.
	IdentifierAttr string
	Cardinality    Cardinality
	// Primary tables contribute their identifier values to the union
	// the output is built over; non-primary tables only enrich ids that
	// already exist.
	Primary bool
}

// Options tune the join.
type Options struct {
	// Precedence decides which table's value lands in the canonical
	// attribute slot when contributors disagree. Earlier wins. Kinds
	// not listed rank after listed ones, in name order.
	Precedence []models.TableKind
}

// DefaultOptions returns the fixed lab precedence:
// experimental > sample > sequence.
func DefaultOptions() Options {
	return Options{Precedence: []models.TableKind{
		models.TableExperimental,
		models.TableSample,
		models.TableSequence,
	}}
}

// Reconcile merges the tables. The result is deterministic and
// independent of table order: output is sorted by identifier and merge
// order follows Options.Precedence, not input order.
func Reconcile(tables []Table, opts Options) ([]*models.ReconciledRecord, []models.Issue) {
	var issues []models.Issue

	// 1. Per-kind identifier index. Lists, not single records: a
	// reaction-level table may own many rows per experiment id.
	type kindIndex struct {
		table Table
		byID  map[string][]*models.ValidatedRecord
	}
	indexes := make(map[models.TableKind]*kindIndex, len(tables))
	var kinds []models.TableKind
	for i := range tables {
		t := tables[i]
		idx := &kindIndex{table: t, byID: make(map[string][]*models.ValidatedRecord)}
		for j := range t.Records {
			rec := &t.Records[j]
			id := rec.Identifier(t.IdentifierAttr)
			if id == "" {
				continue
			}
			idx.byID[id] = append(idx.byID[id], rec)
		}
		indexes[t.Kind] = idx
		kinds = append(kinds, t.Kind)
	}
	kinds = orderKinds(kinds, opts.Precedence)

	// 2. Union of identifier values across primary tables.
	idSet := make(map[string]struct{})
	for _, kind := range kinds {
		idx := indexes[kind]
		if !idx.table.Primary {
			continue
		}
		for id := range idx.byID {
			idSet[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// 3–5. Merge per identifier.
	out := make([]*models.ReconciledRecord, 0, len(ids))
	for _, id := range ids {
		rec := &models.ReconciledRecord{
			ID:         id,
			Attributes: make(map[string]any),
		}
		// Which kind supplied each canonical attribute value, for
		// conflict attribution.
		provenance := make(map[string]models.TableKind)
		var missing []string

		for _, kind := range kinds {
			idx := indexes[kind]
			contributors := idx.byID[id]
			if len(contributors) == 0 {
				missing = append(missing, string(kind))
				continue
			}
			rec.PresentIn = append(rec.PresentIn, kind)

			if idx.table.Cardinality == Many {
				// Keep the child rows nested; flattening is a
				// presentation-time transform done at export.
				if rec.Children == nil {
					rec.Children = make(map[models.TableKind][]*models.ValidatedRecord)
				}
				rec.Children[kind] = append(rec.Children[kind], contributors...)
				rec.Attributes[idx.table.IdentifierAttr] = id
				continue
			}

			if len(contributors) > 1 {
				issues = append(issues, models.Issue{
					Kind:       models.IssueDuplicateIdentifier,
					Identifier: id,
					Table:      kind,
					Location:   contributors[1].Location,
					Detail:     fmt.Sprintf("%d records share identifier %s", len(contributors), id),
				})
			}
			// First record wins within a kind; duplicates are reported
			// above, never silently merged.
			mergeOne(rec, kind, contributors[0], provenance, &issues)
		}

		if len(missing) > 0 {
			issues = append(issues, models.Issue{
				Kind:       models.IssueOrphanIdentifier,
				Identifier: id,
				Detail:     "missing from: " + strings.Join(missing, ", "),
			})
		}
		out = append(out, rec)
	}
	return out, issues
}

// mergeOne folds a single cardinality-one record into the reconciled
// record. Earlier kinds (higher precedence) already own the canonical
// slot; disagreement is kept on Conflicts and reported.
func mergeOne(rec *models.ReconciledRecord, kind models.TableKind, src *models.ValidatedRecord, provenance map[string]models.TableKind, issues *[]models.Issue) {
	attrs := make([]string, 0, len(src.Attributes))
	for attr := range src.Attributes {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	for _, attr := range attrs {
		val := src.Attributes[attr]
		if val == nil {
			continue
		}
		existing, taken := rec.Attributes[attr]
		if !taken || existing == nil {
			rec.Attributes[attr] = val
			provenance[attr] = kind
			continue
		}
		if valuesEqual(existing, val) {
			continue
		}
		if rec.Conflicts == nil {
			rec.Conflicts = make(map[string][]models.ConflictValue)
		}
		if len(rec.Conflicts[attr]) == 0 {
			// Record the winner first so both sides are visible.
			rec.Conflicts[attr] = append(rec.Conflicts[attr], models.ConflictValue{Table: provenance[attr], Value: existing})
		}
		rec.Conflicts[attr] = append(rec.Conflicts[attr], models.ConflictValue{Table: kind, Value: val})
		*issues = append(*issues, models.Issue{
			Kind:       models.IssueConflict,
			Attribute:  attr,
			Identifier: rec.ID,
			Table:      kind,
			Detail:     fmt.Sprintf("kept %v, rejected %v", existing, val),
		})
	}
}

func orderKinds(kinds []models.TableKind, precedence []models.TableKind) []models.TableKind {
	rank := make(map[models.TableKind]int, len(precedence))
	for i, k := range precedence {
		rank[k] = i
	}
	sorted := make([]models.TableKind, len(kinds))
	copy(sorted, kinds)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, iok := rank[sorted[i]]
		rj, jok := rank[sorted[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		default:
			return sorted[i] < sorted[j]
		}
	})
	return sorted
}

func valuesEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
		return false
	}
	return a == b
}
