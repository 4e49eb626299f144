package validate

import (
	"testing"
	"time"

	"github.com/seqlab/warehouse/internal/models"
	"github.com/seqlab/warehouse/internal/schema"
	"github.com/seqlab/warehouse/internal/tabular"
)

const sampleDescriptor = `
sample_id:
  field: study_id
  datatype: str
  identifier: true
collection_date:
  field: collected_on
  datatype: date
  dateformat: "%Y/%m/%d"
  required: true
parasitaemia:
  field: parasitaemia_ul
  datatype: int
volume:
  field: volume_ml
  datatype: float
`

func sampleSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Parse("sample", "sample.yml", []byte(sampleDescriptor))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func row(line int, cells map[string]string) tabular.RawRow {
	return tabular.RawRow{Cells: cells, Line: line}
}

func TestValidateCleanRow(t *testing.T) {
	s := sampleSchema(t)
	records, issues := Validate([]tabular.RawRow{
		row(1, map[string]string{
			"study_id":        "SW123",
			"collected_on":    "2024/01/15",
			"parasitaemia_ul": "1200",
			"volume_ml":       "4.5",
		}),
	}, s, "samples.csv")

	if len(issues) != 0 {
		t.Fatalf("issues = %v, want none", issues)
	}
	rec := records[0]
	if rec.Attributes["SAMPLE_ID"] != "SW123" {
		t.Errorf("SAMPLE_ID = %v", rec.Attributes["SAMPLE_ID"])
	}
	if rec.Attributes["PARASITAEMIA"] != int64(1200) {
		t.Errorf("PARASITAEMIA = %v (%T)", rec.Attributes["PARASITAEMIA"], rec.Attributes["PARASITAEMIA"])
	}
	if rec.Attributes["VOLUME"] != 4.5 {
		t.Errorf("VOLUME = %v", rec.Attributes["VOLUME"])
	}
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if d, ok := rec.Attributes["COLLECTION_DATE"].(time.Time); !ok || !d.Equal(want) {
		t.Errorf("COLLECTION_DATE = %v, want %v", rec.Attributes["COLLECTION_DATE"], want)
	}
}

func TestValidateBadRowCollectsEveryIssue(t *testing.T) {
	s := sampleSchema(t)
	// Missing identifier, unparseable date, non-numeric count: one record,
	// all problems reported, none fatal.
	records, issues := Validate([]tabular.RawRow{
		row(3, map[string]string{
			"study_id":        "",
			"collected_on":    "15-01-2024",
			"parasitaemia_ul": "lots",
		}),
	}, s, "samples.csv")

	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	kinds := map[models.IssueKind]int{}
	for _, issue := range issues {
		kinds[issue.Kind]++
		if issue.Location.Row != 3 || issue.Location.Path != "samples.csv" {
			t.Errorf("issue %v has wrong location %v", issue.Kind, issue.Location)
		}
	}
	if kinds[models.IssueMissingRequiredField] != 1 {
		t.Errorf("missing_required_field count = %d", kinds[models.IssueMissingRequiredField])
	}
	if kinds[models.IssueDateFormatMismatch] != 1 {
		t.Errorf("date_format_mismatch count = %d", kinds[models.IssueDateFormatMismatch])
	}
	if kinds[models.IssueTypeMismatch] != 1 {
		t.Errorf("type_mismatch count = %d", kinds[models.IssueTypeMismatch])
	}
	if kinds[models.IssueMissingIdentifier] != 1 {
		t.Errorf("missing_identifier count = %d", kinds[models.IssueMissingIdentifier])
	}

	rec := records[0]
	if rec.Attributes["COLLECTION_DATE"] != nil {
		t.Errorf("bad date should coerce to null, got %v", rec.Attributes["COLLECTION_DATE"])
	}
	if rec.Attributes["PARASITAEMIA"] != nil {
		t.Errorf("bad int should coerce to null, got %v", rec.Attributes["PARASITAEMIA"])
	}
}

func TestValidateAcceptsSpreadsheetFloatIntegers(t *testing.T) {
	s := sampleSchema(t)
	records, issues := Validate([]tabular.RawRow{
		row(1, map[string]string{
			"study_id":        "SW125",
			"collected_on":    "2024/01/15",
			"parasitaemia_ul": "1200.0",
		}),
	}, s, "samples.csv")
	if len(issues) != 0 {
		t.Fatalf("issues = %v", issues)
	}
	if records[0].Attributes["PARASITAEMIA"] != int64(1200) {
		t.Errorf("PARASITAEMIA = %v", records[0].Attributes["PARASITAEMIA"])
	}
}

func TestValidateIgnoresExtraColumns(t *testing.T) {
	s := sampleSchema(t)
	_, issues := Validate([]tabular.RawRow{
		row(1, map[string]string{
			"study_id":     "SW126",
			"collected_on": "2024/01/15",
			"notes":        "operator scribble",
		}),
	}, s, "samples.csv")
	if len(issues) != 0 {
		t.Fatalf("extra columns must be ignored, got %v", issues)
	}
}

func TestValidateMalformedRow(t *testing.T) {
	s := sampleSchema(t)
	_, issues := Validate([]tabular.RawRow{
		{Cells: map[string]string{}, Line: 7, ParseIssue: "bare quote"},
	}, s, "samples.csv")

	var found bool
	for _, issue := range issues {
		if issue.Kind == models.IssueMalformedRow {
			found = true
		}
	}
	if !found {
		t.Error("expected a malformed_row issue")
	}
}

func TestJoinable(t *testing.T) {
	s := sampleSchema(t)
	records, _ := Validate([]tabular.RawRow{
		row(1, map[string]string{"study_id": "SW123", "collected_on": "2024/01/15"}),
		row(2, map[string]string{"study_id": "", "collected_on": "2024/01/16"}),
	}, s, "samples.csv")

	joinable := Joinable(records, s)
	if len(joinable) != 1 {
		t.Fatalf("got %d joinable records, want 1", len(joinable))
	}
	if joinable[0].Attributes["SAMPLE_ID"] != "SW123" {
		t.Errorf("joinable record = %v", joinable[0].Attributes)
	}
}
