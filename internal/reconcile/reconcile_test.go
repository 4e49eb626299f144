package reconcile

import (
	"testing"

	"github.com/seqlab/warehouse/internal/models"
)

func rec(attrs map[string]any) models.ValidatedRecord {
	return models.ValidatedRecord{Attributes: attrs}
}

func sampleTable(records ...models.ValidatedRecord) Table {
	return Table{
		Kind:           models.TableSample,
		Records:        records,
		IdentifierAttr: "SAMPLE_ID",
		Cardinality:    One,
		Primary:        true,
	}
}

func experimentalTable(records ...models.ValidatedRecord) Table {
	return Table{
		Kind:           models.TableExperimental,
		Records:        records,
		IdentifierAttr: "SAMPLE_ID",
		Cardinality:    One,
		Primary:        true,
	}
}

func sequenceTable(records ...models.ValidatedRecord) Table {
	return Table{
		Kind:           models.TableSequence,
		Records:        records,
		IdentifierAttr: "SAMPLE_ID",
		Cardinality:    Many,
		Primary:        true,
	}
}

func TestReconcileMergesAcrossTables(t *testing.T) {
	tables := []Table{
		sampleTable(rec(map[string]any{"SAMPLE_ID": "SW123", "LOCATION": "siteA"})),
		experimentalTable(rec(map[string]any{"SAMPLE_ID": "SW123", "WELL": "A1"})),
	}
	records, issues := Reconcile(tables, DefaultOptions())
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if r.ID != "SW123" {
		t.Errorf("ID = %s", r.ID)
	}
	if r.Attributes["LOCATION"] != "siteA" || r.Attributes["WELL"] != "A1" {
		t.Errorf("merged attrs = %v", r.Attributes)
	}
	if len(r.PresentIn) != 2 {
		t.Errorf("PresentIn = %v", r.PresentIn)
	}
	if len(issues) != 0 {
		t.Errorf("issues = %v", issues)
	}
}

func TestReconcileReportsOrphans(t *testing.T) {
	tables := []Table{
		sampleTable(rec(map[string]any{"SAMPLE_ID": "SW123"})),
		sequenceTable(rec(map[string]any{"SAMPLE_ID": "SW999", "COVERAGE": int64(30)})),
	}
	records, issues := Reconcile(tables, DefaultOptions())
	// Both ids survive; each is an orphan relative to the other table.
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	orphans := map[string]string{}
	for _, issue := range issues {
		if issue.Kind == models.IssueOrphanIdentifier {
			orphans[issue.Identifier] = issue.Detail
		}
	}
	if len(orphans) != 2 {
		t.Fatalf("orphan issues = %v", orphans)
	}
	if detail := orphans["SW999"]; detail != "missing from: sample" {
		t.Errorf("SW999 orphan detail = %q", detail)
	}
}

func TestReconcileConflictKeepsPrecedenceWinner(t *testing.T) {
	tables := []Table{
		sampleTable(rec(map[string]any{"SAMPLE_ID": "SW123", "DATE": "2024/01/15"})),
		experimentalTable(rec(map[string]any{"SAMPLE_ID": "SW123", "DATE": "2024/01/16"})),
	}
	records, issues := Reconcile(tables, DefaultOptions())
	r := records[0]

	// Experimental outranks sample, regardless of input order.
	if r.Attributes["DATE"] != "2024/01/16" {
		t.Errorf("canonical DATE = %v, want experimental's value", r.Attributes["DATE"])
	}
	conflicts := r.Conflicts["DATE"]
	if len(conflicts) != 2 {
		t.Fatalf("conflicts = %v", conflicts)
	}
	if conflicts[0].Table != models.TableExperimental || conflicts[0].Value != "2024/01/16" {
		t.Errorf("winner = %+v", conflicts[0])
	}
	if conflicts[1].Table != models.TableSample || conflicts[1].Value != "2024/01/15" {
		t.Errorf("loser = %+v", conflicts[1])
	}

	var found bool
	for _, issue := range issues {
		if issue.Kind == models.IssueConflict && issue.Attribute == "DATE" {
			found = true
		}
	}
	if !found {
		t.Error("expected a conflict issue for DATE")
	}
}

func TestReconcileNullNeverConflicts(t *testing.T) {
	tables := []Table{
		experimentalTable(rec(map[string]any{"SAMPLE_ID": "SW123", "DATE": nil})),
		sampleTable(rec(map[string]any{"SAMPLE_ID": "SW123", "DATE": "2024/01/15"})),
	}
	records, issues := Reconcile(tables, DefaultOptions())
	if records[0].Attributes["DATE"] != "2024/01/15" {
		t.Errorf("DATE = %v, null should never win a slot", records[0].Attributes["DATE"])
	}
	for _, issue := range issues {
		if issue.Kind == models.IssueConflict {
			t.Errorf("null vs value must not conflict: %v", issue)
		}
	}
}

func TestReconcileDuplicateIdentifier(t *testing.T) {
	tables := []Table{
		sampleTable(
			rec(map[string]any{"SAMPLE_ID": "SW123", "LOCATION": "siteA"}),
			rec(map[string]any{"SAMPLE_ID": "SW123", "LOCATION": "siteB"}),
		),
	}
	records, issues := Reconcile(tables, DefaultOptions())
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	// First record wins; the duplicate is reported, not merged.
	if records[0].Attributes["LOCATION"] != "siteA" {
		t.Errorf("LOCATION = %v", records[0].Attributes["LOCATION"])
	}
	var found bool
	for _, issue := range issues {
		if issue.Kind == models.IssueDuplicateIdentifier && issue.Identifier == "SW123" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected duplicate_identifier issue, got %v", issues)
	}
}

func TestReconcileNestsManyCardinality(t *testing.T) {
	tables := []Table{
		sampleTable(rec(map[string]any{"SAMPLE_ID": "SW123", "LOCATION": "siteA"})),
		sequenceTable(
			rec(map[string]any{"SAMPLE_ID": "SW123", "RUN": "run1"}),
			rec(map[string]any{"SAMPLE_ID": "SW123", "RUN": "run2"}),
		),
	}
	records, issues := Reconcile(tables, DefaultOptions())
	if len(issues) != 0 {
		t.Fatalf("issues = %v", issues)
	}
	children := records[0].Children[models.TableSequence]
	if len(children) != 2 {
		t.Fatalf("got %d sequence children, want 2", len(children))
	}
	// Child attributes stay nested, never promoted to canonical slots.
	if _, promoted := records[0].Attributes["RUN"]; promoted {
		t.Error("child attribute RUN leaked into canonical attributes")
	}
}

func TestReconcileOrderIndependent(t *testing.T) {
	a := sampleTable(rec(map[string]any{"SAMPLE_ID": "SW123", "DATE": "x"}))
	b := experimentalTable(rec(map[string]any{"SAMPLE_ID": "SW123", "DATE": "y"}))

	fwd, _ := Reconcile([]Table{a, b}, DefaultOptions())
	rev, _ := Reconcile([]Table{b, a}, DefaultOptions())

	if fwd[0].Attributes["DATE"] != rev[0].Attributes["DATE"] {
		t.Errorf("input order changed the outcome: %v vs %v",
			fwd[0].Attributes["DATE"], rev[0].Attributes["DATE"])
	}
}

func TestReconcileNonPrimaryOnlyEnriches(t *testing.T) {
	seq := sequenceTable(rec(map[string]any{"SAMPLE_ID": "SW999", "RUN": "run1"}))
	seq.Primary = false
	tables := []Table{
		sampleTable(rec(map[string]any{"SAMPLE_ID": "SW123"})),
		seq,
	}
	records, _ := Reconcile(tables, DefaultOptions())
	if len(records) != 1 || records[0].ID != "SW123" {
		t.Errorf("non-primary table must not mint ids: %v", records)
	}
}
