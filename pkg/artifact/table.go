package artifact

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Table is an in-memory spreadsheet: a header row plus data rows, all cells
// as strings. Callers are responsible for any type coercion; the Artifact
// Store never interprets cell contents beyond column lookup by header name.
type Table struct {
	Header []string
	Rows   [][]string
}

// ColumnIndex returns the zero-based index of a header, or -1 if absent.
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Get returns the value of a named column for a given row, or "" if the
// column or row index is out of range.
func (t *Table) Get(row int, column string) string {
	idx := t.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) {
		return ""
	}
	if idx >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][idx]
}

// Set assigns a named column's value for a given row, growing the row slice
// as needed. The column must already exist in the header.
func (t *Table) Set(row int, column, value string) {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return
	}
	for len(t.Rows[row]) <= idx {
		t.Rows[row] = append(t.Rows[row], "")
	}
	t.Rows[row][idx] = value
}

// AppendColumns adds new headers, each initialized to fill across all
// existing rows with the given default value.
func (t *Table) AppendColumns(defaultValue string, names ...string) {
	t.Header = append(t.Header, names...)
	for i := range t.Rows {
		for range names {
			t.Rows[i] = append(t.Rows[i], defaultValue)
		}
	}
}

const sheetName = "Sheet1"

// encodeTable renders a Table into xlsx bytes via excelize, written to the
// given path. Called only by the atomic-replace writer in store.go.
func encodeTable(path string, table *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	for col, h := range table.Header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("computing header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("writing header cell %s: %w", cell, err)
		}
	}

	for r, row := range table.Rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return fmt.Errorf("computing cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("writing cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving xlsx %s: %w", path, err)
	}
	return nil
}

// decodeTable reads a Table out of an xlsx file at path.
func decodeTable(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening xlsx %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Table{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading rows from %s: %w", path, err)
	}
	if len(rows) == 0 {
		return &Table{}, nil
	}

	t := &Table{Header: rows[0], Rows: rows[1:]}
	return t, nil
}
