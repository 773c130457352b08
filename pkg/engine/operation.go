// Package engine applies structured operations to an in-memory table and
// tracks the operation history that makes the current view reproducible
// from the original table.
package engine

import (
	"fmt"
	"strings"

	"github.com/marbledata/explorer/pkg/table"
)

// OpType identifies one of the supported operation kinds.
type OpType string

const (
	OpTopN           OpType = "top_n"
	OpFilter         OpType = "filter"
	OpGroupAggregate OpType = "group_aggregate"
	OpSort           OpType = "sort"
	OpPivot          OpType = "pivot"
	OpSelectColumns  OpType = "select_columns"
	OpCorrelation    OpType = "correlation"
)

// FilterOperator is the comparison applied by a filter operation.
type FilterOperator string

const (
	FilterEquals       FilterOperator = "equals"
	FilterNotEquals    FilterOperator = "not_equals"
	FilterGreaterThan  FilterOperator = "greater_than"
	FilterLessThan     FilterOperator = "less_than"
	FilterGreaterEqual FilterOperator = "greater_equal"
	FilterLessEqual    FilterOperator = "less_equal"
	FilterContains     FilterOperator = "contains"
	FilterStartsWith   FilterOperator = "starts_with"
	FilterEndsWith     FilterOperator = "ends_with"
)

// AggFunc is an aggregation function for group and pivot operations.
type AggFunc string

const (
	AggSum   AggFunc = "sum"
	AggMean  AggFunc = "mean"
	AggCount AggFunc = "count"
	AggMax   AggFunc = "max"
	AggMin   AggFunc = "min"
	// AggSize counts rows per group regardless of any column, writing the
	// result under the aggregation's target column name.
	AggSize AggFunc = "size"
)

// CorrMethod selects the correlation coefficient.
type CorrMethod string

const (
	CorrPearson  CorrMethod = "pearson"
	CorrSpearman CorrMethod = "spearman"
	CorrKendall  CorrMethod = "kendall"
)

// TopNParams selects the n rows with the largest (or smallest) value of a
// column, ties broken by original row order.
type TopNParams struct {
	N          int    `json:"n"`
	SortColumn string `json:"sort_column"`
	Ascending  bool   `json:"ascending"`
}

// FilterParams keeps rows whose column value satisfies operator/value.
type FilterParams struct {
	Column   string         `json:"column"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value"`
}

// Aggregation names one output column of a group operation. Order across a
// group operation's aggregations is preserved into the output.
type Aggregation struct {
	Column string  `json:"column"`
	Func   AggFunc `json:"func"`
}

// GroupAggregateParams groups rows by the distinct combination of group
// column values and computes one aggregate per listed aggregation.
type GroupAggregateParams struct {
	GroupColumns []string      `json:"group_columns"`
	Aggregations []Aggregation `json:"aggregations"`
}

// SortParams is a multi-key stable sort.
type SortParams struct {
	Columns   []string `json:"columns"`
	Ascending []bool   `json:"ascending"`
}

// PivotParams cross-tabulates values by index (rows) and columns.
type PivotParams struct {
	Index   string  `json:"index"`
	Columns string  `json:"columns"`
	Values  string  `json:"values"`
	AggFunc AggFunc `json:"aggfunc"`
}

// SelectColumnsParams projects the table to the given columns in order.
type SelectColumnsParams struct {
	Columns []string `json:"columns"`
}

// CorrelationParams requests a pairwise correlation coefficient between two
// numeric columns. Read-only: it never changes the current table.
type CorrelationParams struct {
	ColumnX string     `json:"column_x"`
	ColumnY string     `json:"column_y"`
	Method  CorrMethod `json:"method"`
}

// Op is a closed tagged variant over the supported operation kinds. Exactly
// one param field is non-nil, matching Type. Construct through the New*
// helpers or FromParams so the shape is validated up front; an Op is
// immutable once constructed.
type Op struct {
	Type           OpType                `json:"type"`
	TopN           *TopNParams           `json:"top_n,omitempty"`
	Filter         *FilterParams         `json:"filter,omitempty"`
	GroupAggregate *GroupAggregateParams `json:"group_aggregate,omitempty"`
	Sort           *SortParams           `json:"sort,omitempty"`
	Pivot          *PivotParams          `json:"pivot,omitempty"`
	SelectColumns  *SelectColumnsParams  `json:"select_columns,omitempty"`
	Correlation    *CorrelationParams    `json:"correlation,omitempty"`
}

// NewTopN validates and constructs a top_n operation.
func NewTopN(n int, sortColumn string, ascending bool) (Op, error) {
	if n <= 0 {
		return Op{}, fmt.Errorf("top_n: n must be positive, got %d", n)
	}
	if sortColumn == "" {
		return Op{}, fmt.Errorf("top_n: sort_column is required")
	}
	return Op{Type: OpTopN, TopN: &TopNParams{N: n, SortColumn: sortColumn, Ascending: ascending}}, nil
}

// NewFilter validates and constructs a filter operation.
func NewFilter(column string, operator FilterOperator, value any) (Op, error) {
	if column == "" {
		return Op{}, fmt.Errorf("filter: column is required")
	}
	switch operator {
	case FilterEquals, FilterNotEquals, FilterGreaterThan, FilterLessThan,
		FilterGreaterEqual, FilterLessEqual, FilterContains, FilterStartsWith, FilterEndsWith:
	default:
		return Op{}, fmt.Errorf("filter: unknown operator %q", operator)
	}
	return Op{Type: OpFilter, Filter: &FilterParams{Column: column, Operator: operator, Value: value}}, nil
}

// NewGroupAggregate validates and constructs a group_aggregate operation.
func NewGroupAggregate(groupColumns []string, aggregations []Aggregation) (Op, error) {
	if len(groupColumns) == 0 {
		return Op{}, fmt.Errorf("group_aggregate: group_columns is required")
	}
	if len(aggregations) == 0 {
		return Op{}, fmt.Errorf("group_aggregate: at least one aggregation is required")
	}
	for _, agg := range aggregations {
		switch agg.Func {
		case AggSum, AggMean, AggCount, AggMax, AggMin, AggSize:
		default:
			return Op{}, fmt.Errorf("group_aggregate: unknown aggregator %q", agg.Func)
		}
		if agg.Column == "" {
			return Op{}, fmt.Errorf("group_aggregate: aggregation column is required")
		}
	}
	return Op{Type: OpGroupAggregate, GroupAggregate: &GroupAggregateParams{
		GroupColumns: append([]string(nil), groupColumns...),
		Aggregations: append([]Aggregation(nil), aggregations...),
	}}, nil
}

// NewSort validates and constructs a sort operation. A short ascending list
// is padded with true; a long one is truncated.
func NewSort(columns []string, ascending []bool) (Op, error) {
	if len(columns) == 0 {
		return Op{}, fmt.Errorf("sort: columns is required")
	}
	asc := make([]bool, len(columns))
	for i := range asc {
		if i < len(ascending) {
			asc[i] = ascending[i]
		} else {
			asc[i] = true
		}
	}
	return Op{Type: OpSort, Sort: &SortParams{Columns: append([]string(nil), columns...), Ascending: asc}}, nil
}

// NewPivot validates and constructs a pivot operation. AggFunc defaults to sum.
func NewPivot(index, columns, values string, aggfunc AggFunc) (Op, error) {
	if index == "" || columns == "" || values == "" {
		return Op{}, fmt.Errorf("pivot: index, columns, and values are all required")
	}
	if aggfunc == "" {
		aggfunc = AggSum
	}
	switch aggfunc {
	case AggSum, AggMean, AggCount, AggMax, AggMin:
	default:
		return Op{}, fmt.Errorf("pivot: unknown aggfunc %q", aggfunc)
	}
	return Op{Type: OpPivot, Pivot: &PivotParams{Index: index, Columns: columns, Values: values, AggFunc: aggfunc}}, nil
}

// NewSelectColumns validates and constructs a select_columns operation.
func NewSelectColumns(columns []string) (Op, error) {
	if len(columns) == 0 {
		return Op{}, fmt.Errorf("select_columns: columns is required")
	}
	return Op{Type: OpSelectColumns, SelectColumns: &SelectColumnsParams{Columns: append([]string(nil), columns...)}}, nil
}

// NewCorrelation validates and constructs a correlation analysis. Method
// defaults to pearson.
func NewCorrelation(columnX, columnY string, method CorrMethod) (Op, error) {
	if columnX == "" || columnY == "" {
		return Op{}, fmt.Errorf("correlation: two columns are required")
	}
	if method == "" {
		method = CorrPearson
	}
	switch method {
	case CorrPearson, CorrSpearman, CorrKendall:
	default:
		return Op{}, fmt.Errorf("correlation: unknown method %q", method)
	}
	return Op{Type: OpCorrelation, Correlation: &CorrelationParams{ColumnX: columnX, ColumnY: columnY, Method: method}}, nil
}

// Describe returns a short human-readable description of the operation.
func (op Op) Describe() string {
	switch op.Type {
	case OpTopN:
		dir := "top"
		if op.TopN.Ascending {
			dir = "bottom"
		}
		return fmt.Sprintf("%s %d by %s", dir, op.TopN.N, op.TopN.SortColumn)
	case OpFilter:
		return fmt.Sprintf("filtered %s %s %s", op.Filter.Column, op.Filter.Operator, table.FormatValue(op.Filter.Value))
	case OpGroupAggregate:
		return fmt.Sprintf("grouped by %s and aggregated", strings.Join(op.GroupAggregate.GroupColumns, ", "))
	case OpSort:
		return fmt.Sprintf("sorted by %s", strings.Join(op.Sort.Columns, ", "))
	case OpPivot:
		return fmt.Sprintf("pivoted %s by %s and %s", op.Pivot.Values, op.Pivot.Index, op.Pivot.Columns)
	case OpSelectColumns:
		return fmt.Sprintf("selected columns: %s", strings.Join(op.SelectColumns.Columns, ", "))
	case OpCorrelation:
		return fmt.Sprintf("%s correlation between %s and %s", op.Correlation.Method, op.Correlation.ColumnX, op.Correlation.ColumnY)
	default:
		return string(op.Type)
	}
}

// Params returns the operation parameters in their wire form, keyed by the
// parameter names used in prompts, persistence, and API responses.
func (op Op) Params() map[string]any {
	switch op.Type {
	case OpTopN:
		return map[string]any{"n": op.TopN.N, "sort_column": op.TopN.SortColumn, "ascending": op.TopN.Ascending}
	case OpFilter:
		return map[string]any{"column": op.Filter.Column, "operator": string(op.Filter.Operator), "value": op.Filter.Value}
	case OpGroupAggregate:
		aggDict := map[string]any{}
		for _, agg := range op.GroupAggregate.Aggregations {
			aggDict[agg.Column] = string(agg.Func)
		}
		return map[string]any{"group_columns": op.GroupAggregate.GroupColumns, "agg_dict": aggDict}
	case OpSort:
		return map[string]any{"columns": op.Sort.Columns, "ascending": op.Sort.Ascending}
	case OpPivot:
		return map[string]any{"index": op.Pivot.Index, "columns": op.Pivot.Columns, "values": op.Pivot.Values, "aggfunc": string(op.Pivot.AggFunc)}
	case OpSelectColumns:
		return map[string]any{"columns": op.SelectColumns.Columns}
	case OpCorrelation:
		return map[string]any{"column_x": op.Correlation.ColumnX, "column_y": op.Correlation.ColumnY, "method": string(op.Correlation.Method)}
	default:
		return map[string]any{}
	}
}
