package tabular

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDelimitedLoadCSV(t *testing.T) {
	path := writeFile(t, "samples.csv",
		"study_id,collected_on,parasitaemia_ul\n"+
			"SW123,2024/01/15,1200\n"+
			"SW124,2024/01/16,800\n")

	rows, err := NewDelimitedLoader().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if v, _ := rows[0].Get("study_id"); v != "SW123" {
		t.Errorf("row 0 study_id = %q, want SW123", v)
	}
	if rows[1].Line != 2 {
		t.Errorf("row 1 line = %d, want 2", rows[1].Line)
	}
}

func TestDelimitedLoadTSV(t *testing.T) {
	path := writeFile(t, "samples.tsv", "a\tb\n1\t2\n")
	rows, err := NewDelimitedLoader().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if v, _ := rows[0].Get("b"); v != "2" {
		t.Errorf("b = %q, want 2", v)
	}
}

func TestDelimitedSkipsBlankRows(t *testing.T) {
	path := writeFile(t, "blank.csv", "a,b\n1,2\n,\n3,4\n")
	rows, err := NewDelimitedLoader().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	// The dropped blank row still counts, so "3,4" stays at its physical
	// row number.
	if rows[1].Line != 3 {
		t.Errorf("second data row line = %d, want 3", rows[1].Line)
	}
}

func TestDelimitedDegradesMalformedRows(t *testing.T) {
	// A stray quote makes the middle row unparseable; the loader keeps
	// the row as a placeholder and carries on.
	path := writeFile(t, "bad.csv", "a,b\n1,2\n\"oops,3\n4,5\n")
	rows, err := NewDelimitedLoader().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var degraded int
	for _, row := range rows {
		if row.ParseIssue != "" {
			degraded++
		}
	}
	if degraded == 0 {
		t.Error("expected at least one row carrying a parse issue")
	}
}

func TestDelimitedExtraCellsFlagged(t *testing.T) {
	path := writeFile(t, "wide.csv", "a,b\n1,2,3\n")
	rows, err := NewDelimitedLoader().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rows) != 1 || rows[0].ParseIssue == "" {
		t.Errorf("expected flagged row, got %+v", rows)
	}
}

func TestDelimitedMissingFile(t *testing.T) {
	_, err := NewDelimitedLoader().Load(filepath.Join(t.TempDir(), "nope.csv"))
	var unreadable *SourceUnreadableError
	if !errors.As(err, &unreadable) {
		t.Fatalf("expected SourceUnreadableError, got %v", err)
	}
}

func TestRegistryFindLoader(t *testing.T) {
	r := NewRegistry(NewDelimitedLoader(), NewExcelLoader(""))

	l, err := r.FindLoader("samples.csv")
	if err != nil || l.Name() != "delimited" {
		t.Errorf("FindLoader(csv) = %v, %v", l, err)
	}
	l, err = r.FindLoader("book.xlsx")
	if err != nil || l.Name() != "excel:" {
		t.Errorf("FindLoader(xlsx) = %v, %v", l, err)
	}
	if _, err = r.FindLoader("notes.pdf"); err == nil {
		t.Error("FindLoader(pdf) should fail")
	}
}
