package table

import "time"

const sampleRowCount = 3

// DatasetProfile is derived, read-only metadata about a table: shape, column
// names grouped by inferred kind, null counts, and a small row sample. It is
// recomputed whenever the underlying table changes, never mutated in place.
type DatasetProfile struct {
	Rows               int            `json:"rows"`
	Cols               int            `json:"cols"`
	Columns            []string       `json:"columns"`
	NumericColumns     []string       `json:"numeric_columns"`
	CategoricalColumns []string       `json:"categorical_columns"`
	DateColumns        []string       `json:"date_columns"`
	NullCounts         map[string]int `json:"null_counts"`
	SampleRows         []Row          `json:"sample_rows"`
}

// Profile computes a DatasetProfile from actual cell values. A column's kind
// is decided by majority over its non-null cells; all-null columns count as
// categorical.
func Profile(t *Table) *DatasetProfile {
	p := &DatasetProfile{
		Rows:       t.NumRows(),
		Cols:       t.NumColumns(),
		Columns:    append([]string(nil), t.Columns...),
		NullCounts: make(map[string]int, t.NumColumns()),
	}

	for _, col := range t.Columns {
		var numeric, date, other, nulls int
		for _, row := range t.Rows {
			switch v := row[col].(type) {
			case nil:
				nulls++
			case float64, float32, int, int32, int64:
				numeric++
			case time.Time:
				date++
			default:
				_ = v
				other++
			}
		}
		p.NullCounts[col] = nulls

		switch {
		case numeric > 0 && numeric >= date && numeric >= other:
			p.NumericColumns = append(p.NumericColumns, col)
		case date > 0 && date >= other:
			p.DateColumns = append(p.DateColumns, col)
		default:
			p.CategoricalColumns = append(p.CategoricalColumns, col)
		}
	}

	n := min(sampleRowCount, len(t.Rows))
	for i := range n {
		cp := make(Row, len(t.Rows[i]))
		for k, v := range t.Rows[i] {
			cp[k] = v
		}
		p.SampleRows = append(p.SampleRows, cp)
	}

	return p
}

// FirstNumericColumn returns the first numeric column, or the first column
// of any kind when the table has no numeric data, or "" for an empty table.
func (p *DatasetProfile) FirstNumericColumn() string {
	if len(p.NumericColumns) > 0 {
		return p.NumericColumns[0]
	}
	if len(p.Columns) > 0 {
		return p.Columns[0]
	}
	return ""
}

// FirstCategoricalColumn returns the first categorical column, falling back
// to the first column of any kind.
func (p *DatasetProfile) FirstCategoricalColumn() string {
	if len(p.CategoricalColumns) > 0 {
		return p.CategoricalColumns[0]
	}
	if len(p.Columns) > 0 {
		return p.Columns[0]
	}
	return ""
}
