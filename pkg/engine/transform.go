package engine

import (
	"sort"
	"strings"

	"github.com/marbledata/explorer/pkg/table"
)

func applyTopN(p *TopNParams, t *table.Table) (*table.Table, *StructuralError) {
	if !t.HasColumn(p.SortColumn) {
		return nil, columnNotFound(p.SortColumn)
	}

	rows := append([]table.Row(nil), t.Rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		return lessByColumn(rows[i], rows[j], p.SortColumn, p.Ascending)
	})

	n := min(p.N, len(rows))
	return table.New(t.Columns, rows[:n]), nil
}

func applyFilter(p *FilterParams, t *table.Table) (*table.Table, *StructuralError) {
	if !t.HasColumn(p.Column) {
		return nil, columnNotFound(p.Column)
	}

	var rows []table.Row
	for _, row := range t.Rows {
		if matchFilter(row[p.Column], p.Operator, p.Value) {
			rows = append(rows, row)
		}
	}
	return table.New(t.Columns, rows), nil
}

// matchFilter evaluates one cell against the filter. Nulls never match any
// operator. String operators compare case-insensitively on the string form
// of the cell; ordering operators on incomparable types exclude the row
// (mismatched types yield zero rows rather than an error).
func matchFilter(cell any, op FilterOperator, value any) bool {
	if cell == nil {
		return false
	}

	switch op {
	case FilterContains:
		return strings.Contains(lowerForm(cell), lowerForm(value))
	case FilterStartsWith:
		return strings.HasPrefix(lowerForm(cell), lowerForm(value))
	case FilterEndsWith:
		return strings.HasSuffix(lowerForm(cell), lowerForm(value))
	}

	cmp, comparable := table.Compare(cell, value)
	switch op {
	case FilterEquals:
		if comparable {
			return cmp == 0
		}
		return table.FormatValue(cell) == table.FormatValue(value)
	case FilterNotEquals:
		if comparable {
			return cmp != 0
		}
		return table.FormatValue(cell) != table.FormatValue(value)
	case FilterGreaterThan:
		return comparable && cmp > 0
	case FilterLessThan:
		return comparable && cmp < 0
	case FilterGreaterEqual:
		return comparable && cmp >= 0
	case FilterLessEqual:
		return comparable && cmp <= 0
	default:
		return false
	}
}

func lowerForm(v any) string {
	return strings.ToLower(table.FormatValue(v))
}

func applyGroupAggregate(p *GroupAggregateParams, t *table.Table) (*table.Table, *StructuralError) {
	if len(p.GroupColumns) == 0 {
		return nil, &StructuralError{Reason: ReasonEmptyGroupKey, Detail: "no group columns given"}
	}
	for _, col := range p.GroupColumns {
		if !t.HasColumn(col) {
			return nil, columnNotFound(col)
		}
	}
	for _, agg := range p.Aggregations {
		if agg.Func != AggSize && !t.HasColumn(agg.Column) {
			return nil, columnNotFound(agg.Column)
		}
	}

	// Group rows by the combination of group column values, preserving the
	// order of first occurrence.
	type group struct {
		key  []any
		rows []table.Row
	}
	index := make(map[string]*group)
	var groups []*group
	for _, row := range t.Rows {
		var kb strings.Builder
		key := make([]any, len(p.GroupColumns))
		for i, col := range p.GroupColumns {
			key[i] = row[col]
			kb.WriteString(table.FormatValue(row[col]))
			kb.WriteByte(0x1f)
		}
		g, ok := index[kb.String()]
		if !ok {
			g = &group{key: key}
			index[kb.String()] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, row)
	}

	columns := append([]string(nil), p.GroupColumns...)
	for _, agg := range p.Aggregations {
		columns = append(columns, agg.Column)
	}

	rows := make([]table.Row, 0, len(groups))
	for _, g := range groups {
		out := make(table.Row, len(columns))
		for i, col := range p.GroupColumns {
			out[col] = g.key[i]
		}
		for _, agg := range p.Aggregations {
			val, serr := aggregate(agg, g.rows)
			if serr != nil {
				return nil, serr
			}
			out[agg.Column] = val
		}
		rows = append(rows, out)
	}

	return table.New(columns, rows), nil
}

// aggregate computes a single aggregation over a group's rows. Sum and mean
// require at least one numeric cell in the column; min and max fall back to
// lexical ordering for non-numeric columns.
func aggregate(agg Aggregation, rows []table.Row) (any, *StructuralError) {
	switch agg.Func {
	case AggSize:
		return float64(len(rows)), nil

	case AggCount:
		n := 0
		for _, row := range rows {
			if row[agg.Column] != nil {
				n++
			}
		}
		return float64(n), nil

	case AggSum, AggMean:
		sum, n := 0.0, 0
		for _, row := range rows {
			if f, ok := table.AsFloat(row[agg.Column]); ok && row[agg.Column] != nil {
				sum += f
				n++
			}
		}
		if n == 0 {
			return nil, &StructuralError{Reason: ReasonTypeMismatch, Column: agg.Column, Detail: "no numeric values to aggregate"}
		}
		if agg.Func == AggMean {
			return sum / float64(n), nil
		}
		return sum, nil

	case AggMax, AggMin:
		var best any
		for _, row := range rows {
			v := row[agg.Column]
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			cmp, ok := table.Compare(v, best)
			if !ok {
				continue
			}
			if (agg.Func == AggMax && cmp > 0) || (agg.Func == AggMin && cmp < 0) {
				best = v
			}
		}
		return best, nil

	default:
		return nil, &StructuralError{Reason: ReasonBadParams, Detail: "unknown aggregator"}
	}
}

func applySort(p *SortParams, t *table.Table) (*table.Table, *StructuralError) {
	for _, col := range p.Columns {
		if !t.HasColumn(col) {
			return nil, columnNotFound(col)
		}
	}

	rows := append([]table.Row(nil), t.Rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		for k, col := range p.Columns {
			asc := k < len(p.Ascending) && p.Ascending[k]
			if less, equal := orderByColumn(rows[i], rows[j], col, asc); !equal {
				return less
			}
		}
		return false
	})
	return table.New(t.Columns, rows), nil
}

// orderByColumn compares two rows on one sort key. Nulls sort last in either
// direction; incomparable pairs are treated as equal so the stable sort
// preserves their original relative order.
func orderByColumn(a, b table.Row, col string, ascending bool) (less, equal bool) {
	av, bv := a[col], b[col]
	switch {
	case av == nil && bv == nil:
		return false, true
	case av == nil:
		return false, false
	case bv == nil:
		return true, false
	}
	cmp, ok := table.Compare(av, bv)
	if !ok || cmp == 0 {
		return false, true
	}
	if ascending {
		return cmp < 0, false
	}
	return cmp > 0, false
}

// lessByColumn is the top_n ordering: largest-first by default, smallest
// first when ascending, nulls always last.
func lessByColumn(a, b table.Row, col string, ascending bool) bool {
	less, equal := orderByColumn(a, b, col, ascending)
	return !equal && less
}

func applyPivot(p *PivotParams, t *table.Table) (*table.Table, *StructuralError) {
	for _, col := range []string{p.Index, p.Columns, p.Values} {
		if !t.HasColumn(col) {
			return nil, columnNotFound(col)
		}
	}

	// Distinct index values (output rows) and column values (output columns)
	// in first-seen order.
	var indexKeys, colKeys []string
	indexVals := make(map[string]any)
	seenCol := make(map[string]bool)
	cells := make(map[string][]table.Row)

	for _, row := range t.Rows {
		ik := table.FormatValue(row[p.Index])
		ck := table.FormatValue(row[p.Columns])
		if ck == p.Index {
			// A pivot value spelled like the index column name would
			// collide with it in the output columns.
			ck += "_"
		}
		if _, ok := indexVals[ik]; !ok {
			indexVals[ik] = row[p.Index]
			indexKeys = append(indexKeys, ik)
		}
		if !seenCol[ck] {
			seenCol[ck] = true
			colKeys = append(colKeys, ck)
		}
		cellKey := ik + "\x1f" + ck
		cells[cellKey] = append(cells[cellKey], row)
	}

	columns := append([]string{p.Index}, colKeys...)
	rows := make([]table.Row, 0, len(indexKeys))
	for _, ik := range indexKeys {
		out := make(table.Row, len(columns))
		out[p.Index] = indexVals[ik]
		for _, ck := range colKeys {
			group := cells[ik+"\x1f"+ck]
			if len(group) == 0 {
				// Missing combination fills with 0.
				out[ck] = float64(0)
				continue
			}
			val, serr := aggregate(Aggregation{Column: p.Values, Func: p.AggFunc}, group)
			if serr != nil {
				return nil, serr
			}
			out[ck] = val
		}
		rows = append(rows, out)
	}

	return table.New(columns, rows), nil
}

func applySelectColumns(p *SelectColumnsParams, t *table.Table) (*table.Table, *StructuralError) {
	for _, col := range p.Columns {
		if !t.HasColumn(col) {
			return nil, columnNotFound(col)
		}
	}

	rows := make([]table.Row, len(t.Rows))
	for i, row := range t.Rows {
		out := make(table.Row, len(p.Columns))
		for _, col := range p.Columns {
			out[col] = row[col]
		}
		rows[i] = out
	}
	return table.New(p.Columns, rows), nil
}
