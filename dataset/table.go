// Package dataset parses uploaded CSV files and annotates them with
// placeholder predictions for preview.
package dataset

import (
	"errors"
	"strconv"
)

// PredictionsColumn is the column appended by Annotate.
const PredictionsColumn = "Predictions"

// DefaultHeadRows is the number of rows shown in a preview.
const DefaultHeadRows = 5

// ErrEmptyDataset is returned for an upload without data rows.
var ErrEmptyDataset = errors.New("the uploaded dataset is empty")

// Table is an ordered set of string rows under a header.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Head returns a table with the first n rows.
func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// Truncate keeps only the first limit rows. A limit <= 0 keeps everything.
func (t *Table) Truncate(limit int) *Table {
	if limit <= 0 || limit >= len(t.Rows) {
		return t
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:limit]}
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the values of the named column.
func (t *Table) Column(name string) ([]string, bool) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values, true
}

// PlaceholderLabel is the demonstration prediction for row i.
func PlaceholderLabel(i int) string {
	return "Class " + strconv.Itoa(i%3)
}

// Annotate returns a copy of t with a Predictions column holding
// PlaceholderLabel(i) for every row. An existing Predictions column is overwritten.
func Annotate(t *Table) (*Table, error) {
	if t.Len() == 0 {
		return nil, ErrEmptyDataset
	}

	idx := t.ColumnIndex(PredictionsColumn)
	columns := append([]string(nil), t.Columns...)
	if idx < 0 {
		idx = len(columns)
		columns = append(columns, PredictionsColumn)
	}

	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out := make([]string, len(columns))
		copy(out, row)
		out[idx] = PlaceholderLabel(i)
		rows[i] = out
	}
	return &Table{Columns: columns, Rows: rows}, nil
}
