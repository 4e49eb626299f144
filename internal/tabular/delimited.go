package tabular

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DelimitedLoader reads CSV and TSV files. The delimiter follows the
// file extension; headers come from the first row.
type DelimitedLoader struct{}

func NewDelimitedLoader() *DelimitedLoader { return &DelimitedLoader{} }

func (l *DelimitedLoader) Name() string { return "delimited" }

func (l *DelimitedLoader) CanLoad(path string) (bool, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		return true, nil
	}
	return false, nil
}

func (l *DelimitedLoader) Load(path string) ([]RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SourceUnreadableError{Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	if strings.ToLower(filepath.Ext(path)) == ".tsv" {
		r.Comma = '\t'
	}
	// Ragged rows are handled per record below, not as a file error.
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, &SourceUnreadableError{Path: path, Err: err}
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	var rows []RawRow
	line := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rows = append(rows, RawRow{
					Cells:      map[string]string{},
					Columns:    columns,
					Line:       line,
					ParseIssue: err.Error(),
				})
				continue
			}
			return nil, &SourceUnreadableError{Path: path, Err: err}
		}
		// Blank rows are dropped but still counted, so Line keeps
		// matching the physical row the operator would look up.
		if isBlank(record) {
			continue
		}
		row := RawRow{Cells: make(map[string]string, len(columns)), Columns: columns, Line: line}
		for i, col := range columns {
			if col == "" {
				continue
			}
			if i < len(record) {
				row.Cells[col] = record[i]
			}
		}
		if len(record) > len(columns) {
			row.ParseIssue = "row has more cells than the header declares"
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isBlank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
