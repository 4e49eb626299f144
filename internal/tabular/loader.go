// Package tabular loads raw tables from delimited files and spreadsheet
// workbooks, normalizing both to untyped RawRows. It has no schema
// knowledge; typing happens downstream in validate.
package tabular

import "fmt"

// RawRow is one source record: raw column name → cell text, plus enough
// provenance for error attribution. A malformed line is degraded to a
// RawRow carrying ParseIssue rather than aborting the file.
type RawRow struct {
	Cells      map[string]string
	Columns    []string // header order, for diagnostics only
	Line       int      // 1-based data row number, header excluded
	Sheet      string   // set for workbook sources
	ParseIssue string   // non-empty when the source line was malformed
}

// Get returns the cell for an exact raw column name.
func (r RawRow) Get(column string) (string, bool) {
	v, ok := r.Cells[column]
	return v, ok
}

// SourceUnreadableError marks an input file that cannot be used at all.
// The file's contribution is dropped and the run continues.
type SourceUnreadableError struct {
	Path string
	Err  error
}

func (e *SourceUnreadableError) Error() string {
	return fmt.Sprintf("unreadable source %s: %v", e.Path, e.Err)
}

func (e *SourceUnreadableError) Unwrap() error { return e.Err }

// Loader reads one kind of tabular source. Load is restartable: calling
// it again with the same path re-reads the file from the start.
type Loader interface {
	// Name returns the unique name of the loader.
	Name() string
	// CanLoad reports whether this loader handles the given file.
	CanLoad(path string) (bool, error)
	// Load reads the whole table. Returns *SourceUnreadableError when
	// the file cannot be opened or is corrupt beyond row granularity.
	Load(path string) ([]RawRow, error)
}
