package interpreter

import (
	"fmt"
	"strings"

	"github.com/marbledata/explorer/pkg/engine"
	"github.com/marbledata/explorer/pkg/table"
)

// templateExplanation synthesizes a user-facing explanation from the
// operation and keywords detected in the original command, used whenever
// the backend supplies none (or a trivial one).
func templateExplanation(op *engine.Op, command string) string {
	if op == nil {
		return "I'll help you analyze your data. Let me process your request."
	}

	var base string
	switch op.Type {
	case engine.OpTopN:
		kind := "items"
		if strings.Contains(strings.ToLower(command), "product") {
			kind = "products"
		}
		order := "top"
		tail := "identify the best performing " + kind + " in your data"
		if op.TopN.Ascending {
			order = "bottom"
			tail = "spot the weakest " + kind + " in your data"
		}
		base = fmt.Sprintf("I'll show you the %s %d %s by %s. This will help you %s.",
			order, op.TopN.N, kind, op.TopN.SortColumn, tail)

	case engine.OpGroupAggregate:
		base = fmt.Sprintf("I'll group your data by %s and show you the aggregated results. This will help you see patterns and trends.",
			strings.Join(op.GroupAggregate.GroupColumns, ", "))

	case engine.OpFilter:
		base = fmt.Sprintf("I'll filter your data to show only items where %s %s %s. This will help you focus on specific subsets of your data.",
			op.Filter.Column, strings.ReplaceAll(string(op.Filter.Operator), "_", " "), table.FormatValue(op.Filter.Value))

	case engine.OpSort:
		direction := "ascending"
		if len(op.Sort.Ascending) > 0 && !op.Sort.Ascending[0] {
			direction = "descending"
		}
		base = fmt.Sprintf("I'll sort your data by %s in %s order. This will help you see the data organized by your chosen criteria.",
			strings.Join(op.Sort.Columns, ", "), direction)

	case engine.OpPivot:
		base = fmt.Sprintf("I'll create a pivot table showing %s by %s and %s. This will help you see cross-tabulated data in a clear format.",
			op.Pivot.Values, op.Pivot.Index, op.Pivot.Columns)

	case engine.OpSelectColumns:
		base = fmt.Sprintf("I'll narrow the view to just %s.", strings.Join(op.SelectColumns.Columns, ", "))

	case engine.OpCorrelation:
		base = fmt.Sprintf("I'll compute the %s correlation between %s and %s.",
			op.Correlation.Method, op.Correlation.ColumnX, op.Correlation.ColumnY)

	default:
		return "I'll help you analyze your data. Let me process your request."
	}

	if hint := commandContext(command); hint != "" {
		base += " " + hint
	}
	return base
}

// commandContext turns detected keywords into a contextual clause so the
// explanation reads specific to the request rather than generic.
func commandContext(command string) string {
	lower := strings.ToLower(command)
	switch {
	case strings.Contains(lower, "region"):
		return "Looking at the regional breakdown you asked about."
	case strings.Contains(lower, "revenue"):
		return "Focusing on the revenue figures you mentioned."
	case strings.Contains(lower, "date") || strings.Contains(lower, "time"):
		return "Keeping the time dimension you mentioned in view."
	default:
		return ""
	}
}

// Enhance rewrites a result's explanation once actual result data is
// available, grounding it in row counts and observed value ranges. It is
// purely textual post-processing: the operation and its result are never
// altered. A structural failure gets reason-specific phrasing so "column
// not found" reads differently from a filter that matched nothing.
func Enhance(res *Result, before, after *table.Table, serr *engine.StructuralError) string {
	if serr != nil {
		switch serr.Reason {
		case engine.ReasonColumnNotFound:
			return fmt.Sprintf("I couldn't find a column named %q in the current view, so nothing was changed. Columns available: %s.",
				serr.Column, strings.Join(before.Columns, ", "))
		case engine.ReasonTypeMismatch:
			return fmt.Sprintf("The column %q doesn't hold the kind of values that operation needs, so the view is unchanged.", serr.Column)
		case engine.ReasonInsufficientData:
			return "There wasn't enough data to compute that, so the view is unchanged."
		default:
			return "That operation couldn't be applied to the current view, so nothing was changed."
		}
	}

	if res.Op == nil || after == nil {
		return res.Explanation
	}

	op := res.Op
	switch op.Type {
	case engine.OpTopN:
		lo, hi, ok := columnRange(after, op.TopN.SortColumn)
		if ok {
			return fmt.Sprintf("Showing the top %d rows by %s; %s ranges from %s to %s across them.",
				after.NumRows(), op.TopN.SortColumn, op.TopN.SortColumn, table.FormatValue(lo), table.FormatValue(hi))
		}
		return fmt.Sprintf("Showing the top %d rows by %s.", after.NumRows(), op.TopN.SortColumn)

	case engine.OpFilter:
		return fmt.Sprintf("%d of %d rows matched the filter on %s.", after.NumRows(), before.NumRows(), op.Filter.Column)

	case engine.OpGroupAggregate:
		return fmt.Sprintf("Grouped %d rows into %d groups by %s.",
			before.NumRows(), after.NumRows(), strings.Join(op.GroupAggregate.GroupColumns, ", "))

	case engine.OpPivot:
		return fmt.Sprintf("Pivoted into %d rows by %s with one column per distinct %s value.",
			after.NumRows(), op.Pivot.Index, op.Pivot.Columns)

	default:
		return res.Explanation
	}
}

// columnRange returns the smallest and largest comparable values in a column.
func columnRange(t *table.Table, col string) (lo, hi any, ok bool) {
	for _, row := range t.Rows {
		v := row[col]
		if v == nil {
			continue
		}
		if !ok {
			lo, hi, ok = v, v, true
			continue
		}
		if cmp, c := table.Compare(v, lo); c && cmp < 0 {
			lo = v
		}
		if cmp, c := table.Compare(v, hi); c && cmp > 0 {
			hi = v
		}
	}
	return lo, hi, ok
}
