package engine

import (
	"fmt"
	"sort"
	"strconv"
)

// FromParams builds a validated Op from a loosely-typed parameter map, as
// produced by JSON decoding of a backend response or a persisted history
// entry. Numbers arrive as float64, lists as []any; alternate key spellings
// seen in the wild ("sort_columns" for sort, a two-element "columns" list
// for correlation) are accepted.
func FromParams(opType string, params map[string]any) (Op, error) {
	switch OpType(opType) {
	case OpTopN:
		n, ok := intParam(params, "n")
		if !ok {
			n = 5
		}
		col, _ := params["sort_column"].(string)
		return NewTopN(n, col, boolParam(params, "ascending"))

	case OpFilter:
		col, _ := params["column"].(string)
		operator, _ := params["operator"].(string)
		return NewFilter(col, FilterOperator(operator), params["value"])

	case OpGroupAggregate:
		groupCols := stringsParam(params, "group_columns")
		aggs, err := aggregationsParam(params["agg_dict"])
		if err != nil {
			return Op{}, err
		}
		return NewGroupAggregate(groupCols, aggs)

	case OpSort:
		cols := stringsParam(params, "columns")
		if len(cols) == 0 {
			cols = stringsParam(params, "sort_columns")
		}
		return NewSort(cols, boolsParam(params, "ascending"))

	case OpPivot:
		index, _ := params["index"].(string)
		columns, _ := params["columns"].(string)
		values, _ := params["values"].(string)
		aggfunc, _ := params["aggfunc"].(string)
		return NewPivot(index, columns, values, AggFunc(aggfunc))

	case OpSelectColumns:
		return NewSelectColumns(stringsParam(params, "columns"))

	case OpCorrelation:
		x, _ := params["column_x"].(string)
		y, _ := params["column_y"].(string)
		if x == "" && y == "" {
			if cols := stringsParam(params, "columns"); len(cols) >= 2 {
				x, y = cols[0], cols[1]
			}
		}
		method, _ := params["method"].(string)
		return NewCorrelation(x, y, CorrMethod(method))

	default:
		return Op{}, fmt.Errorf("unknown operation type %q", opType)
	}
}

func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func boolParam(params map[string]any, key string) bool {
	b, _ := params[key].(bool)
	return b
}

func boolsParam(params map[string]any, key string) []bool {
	switch v := params[key].(type) {
	case []bool:
		return v
	case bool:
		return []bool{v}
	case []any:
		out := make([]bool, 0, len(v))
		for _, item := range v {
			b, _ := item.(bool)
			out = append(out, b)
		}
		return out
	default:
		return nil
	}
}

func stringsParam(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// aggregationsParam converts an agg_dict mapping column->aggregator into an
// ordered aggregation list. JSON objects carry no order, so entries are
// sorted by column name to keep replay deterministic.
func aggregationsParam(v any) ([]Aggregation, error) {
	dict, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("group_aggregate: agg_dict must be an object")
	}
	cols := make([]string, 0, len(dict))
	for col := range dict {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	aggs := make([]Aggregation, 0, len(cols))
	for _, col := range cols {
		fn, ok := dict[col].(string)
		if !ok {
			return nil, fmt.Errorf("group_aggregate: aggregator for %q must be a string", col)
		}
		aggs = append(aggs, Aggregation{Column: col, Func: AggFunc(fn)})
	}
	return aggs, nil
}
