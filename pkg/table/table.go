// Package table holds the in-memory tabular data model: a row-mapped Table,
// cell value helpers, and the derived DatasetProfile used to ground command
// interpretation.
package table

import (
	"math"
	"sort"
)

// Row is a single table row mapping column name to a scalar cell value.
// Cell values are nil, float64, string, bool, or time.Time.
type Row = map[string]any

// Table is an ordered sequence of rows with a stable declared column order.
// Column names are unique within a table.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// New creates a table from an explicit column order and rows.
func New(columns []string, rows []Row) *Table {
	return &Table{
		Columns: append([]string(nil), columns...),
		Rows:    rows,
	}
}

// FromRecords creates a table from rows alone. Column order is the
// first-seen key order across rows; keys first appearing in the same row are
// ordered lexically so the result is deterministic regardless of map
// iteration order.
func FromRecords(rows []Row) *Table {
	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		var fresh []string
		for k := range row {
			if !seen[k] {
				seen[k] = true
				fresh = append(fresh, k)
			}
		}
		sort.Strings(fresh)
		columns = append(columns, fresh...)
	}
	return &Table{Columns: columns, Rows: rows}
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

// HasColumn reports whether the table declares the given column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Rows are copied map-by-map so the clone can be
// mutated without affecting views handed out earlier.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	rows := make([]Row, len(t.Rows))
	for i, row := range t.Rows {
		cp := make(Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		rows[i] = cp
	}
	return &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    rows,
	}
}

// SanitizeRows replaces NaN and Inf float values with nil so the rows are
// JSON-safe. Aggregations over empty or mismatched inputs can produce NaN,
// which encoding/json rejects.
func SanitizeRows(rows []Row) {
	for _, row := range rows {
		for key, val := range row {
			if f, ok := val.(float64); ok {
				if math.IsNaN(f) || math.IsInf(f, 0) {
					row[key] = nil
				}
			}
		}
	}
}
