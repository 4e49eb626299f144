package tabular

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExcelLoader reads one named sheet of an xlsx workbook. Experiment
// templates keep experiment-level and reaction-level data on separate
// tabs, so callers construct one loader per tab. An empty sheet name
// selects the workbook's first sheet.
type ExcelLoader struct {
	sheet string
}

func NewExcelLoader(sheet string) *ExcelLoader { return &ExcelLoader{sheet: sheet} }

func (l *ExcelLoader) Name() string { return "excel:" + l.sheet }

func (l *ExcelLoader) CanLoad(path string) (bool, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return true, nil
	}
	return false, nil
}

func (l *ExcelLoader) Load(path string) ([]RawRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &SourceUnreadableError{Path: path, Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	sheet := l.sheet
	if sheet == "" && len(sheets) > 0 {
		sheet = sheets[0]
	}
	found := false
	for _, name := range sheets {
		if name == sheet {
			found = true
			break
		}
	}
	if !found {
		return nil, &SourceUnreadableError{Path: path, Err: fmt.Errorf("missing sheet %q", sheet)}
	}

	grid, err := f.GetRows(sheet)
	if err != nil {
		return nil, &SourceUnreadableError{Path: path, Err: err}
	}
	if len(grid) == 0 {
		return nil, nil
	}

	columns := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		columns[i] = strings.TrimSpace(h)
	}

	var rows []RawRow
	for i, record := range grid[1:] {
		// Blank rows are dropped but keep their place in the numbering.
		if isBlank(record) {
			continue
		}
		row := RawRow{
			Cells:   make(map[string]string, len(columns)),
			Columns: columns,
			Line:    i + 1,
			Sheet:   sheet,
		}
		for i, col := range columns {
			if col == "" {
				continue
			}
			if i < len(record) {
				row.Cells[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
