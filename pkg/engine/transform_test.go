package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marbledata/explorer/pkg/engine"
	"github.com/marbledata/explorer/pkg/table"
)

func salesTable() *table.Table {
	return table.New(
		[]string{"product", "region", "sales"},
		[]table.Row{
			{"product": "Widget", "region": "West", "sales": 100.0},
			{"product": "Gadget", "region": "East", "sales": 200.0},
			{"product": "Doohickey", "region": "West", "sales": 150.0},
			{"product": "Gizmo", "region": "East", "sales": 50.0},
		},
	)
}

func apply(t *testing.T, eng *engine.Engine, op engine.Op) *table.Table {
	t.Helper()
	result, serr := eng.Apply(op)
	require.Nil(t, serr)
	return result
}

func column(t *table.Table, col string) []any {
	out := make([]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, row[col])
	}
	return out
}

func TestTopN(t *testing.T) {
	eng := engine.New(salesTable())

	op, err := engine.NewTopN(2, "sales", false)
	require.NoError(t, err)
	result := apply(t, eng, op)

	assert.Equal(t, []any{"Gadget", "Doohickey"}, column(result, "product"))
	assert.Equal(t, []string{"product", "region", "sales"}, result.Columns)
}

func TestTopN_Ascending(t *testing.T) {
	eng := engine.New(salesTable())

	op, err := engine.NewTopN(2, "sales", true)
	require.NoError(t, err)
	result := apply(t, eng, op)

	assert.Equal(t, []any{"Gizmo", "Widget"}, column(result, "product"))
}

func TestTopN_NLargerThanTable(t *testing.T) {
	eng := engine.New(salesTable())

	op, err := engine.NewTopN(100, "sales", false)
	require.NoError(t, err)
	result := apply(t, eng, op)
	assert.Equal(t, 4, result.NumRows())
}

func TestTopN_NullsLast(t *testing.T) {
	tab := table.New([]string{"v"}, []table.Row{
		{"v": nil},
		{"v": 3.0},
		{"v": 1.0},
	})
	eng := engine.New(tab)

	op, err := engine.NewTopN(3, "v", false)
	require.NoError(t, err)
	result := apply(t, eng, op)
	assert.Equal(t, []any{3.0, 1.0, nil}, column(result, "v"))
}

func TestTopN_UnknownColumn(t *testing.T) {
	eng := engine.New(salesTable())

	op, err := engine.NewTopN(3, "missing", false)
	require.NoError(t, err)
	result, serr := eng.Apply(op)

	require.NotNil(t, serr)
	assert.Equal(t, engine.ReasonColumnNotFound, serr.Reason)
	assert.Equal(t, "missing", serr.Column)
	// No-op: the view and the history are untouched.
	assert.Equal(t, 4, result.NumRows())
	assert.Empty(t, eng.History())
}

func TestFilter_CaseInsensitiveContains(t *testing.T) {
	eng := engine.New(salesTable())

	op, err := engine.NewFilter("region", engine.FilterContains, "west")
	require.NoError(t, err)
	result := apply(t, eng, op)

	assert.Equal(t, []any{"Widget", "Doohickey"}, column(result, "product"))
}

func TestFilter_GreaterThan(t *testing.T) {
	eng := engine.New(salesTable())

	op, err := engine.NewFilter("sales", engine.FilterGreaterThan, 100.0)
	require.NoError(t, err)
	result := apply(t, eng, op)
	assert.Equal(t, []any{"Gadget", "Doohickey"}, column(result, "product"))
}

func TestFilter_NullNeverMatches(t *testing.T) {
	tab := table.New([]string{"v"}, []table.Row{
		{"v": nil},
		{"v": "x"},
	})

	for _, operator := range []engine.FilterOperator{
		engine.FilterEquals, engine.FilterNotEquals, engine.FilterContains,
	} {
		op, err := engine.NewFilter("v", operator, "x")
		require.NoError(t, err)
		result, serr := engine.New(tab).Apply(op)
		require.Nil(t, serr)
		for _, row := range result.Rows {
			assert.NotNil(t, row["v"], "operator %s matched a null cell", operator)
		}
	}
}

func TestFilter_TypeMismatchYieldsEmpty(t *testing.T) {
	eng := engine.New(salesTable())

	// Ordering comparison between a string column and a number matches no rows.
	op, err := engine.NewFilter("region", engine.FilterGreaterThan, 10.0)
	require.NoError(t, err)
	result := apply(t, eng, op)
	assert.Equal(t, 0, result.NumRows())
}

func TestGroupAggregate_Sum(t *testing.T) {
	eng := engine.New(salesTable())

	op, err := engine.NewGroupAggregate(
		[]string{"region"},
		[]engine.Aggregation{{Column: "sales", Func: engine.AggSum}},
	)
	require.NoError(t, err)
	result := apply(t, eng, op)

	// Groups come out in first-seen order.
	assert.Equal(t, []string{"region", "sales"}, result.Columns)
	assert.Equal(t, []any{"West", "East"}, column(result, "region"))
	assert.Equal(t, []any{250.0, 250.0}, column(result, "sales"))
}

func TestGroupAggregate_Size(t *testing.T) {
	eng := engine.New(salesTable())

	// size writes the group row count under the aggregation's target column
	// without requiring that column to exist.
	op, err := engine.NewGroupAggregate(
		[]string{"region"},
		[]engine.Aggregation{{Column: "count", Func: engine.AggSize}},
	)
	require.NoError(t, err)
	result := apply(t, eng, op)

	assert.Equal(t, []string{"region", "count"}, result.Columns)
	assert.Equal(t, []any{2.0, 2.0}, column(result, "count"))
}

func TestGroupAggregate_MeanAndExtremes(t *testing.T) {
	eng := engine.New(salesTable())

	op, err := engine.NewGroupAggregate(
		[]string{"region"},
		[]engine.Aggregation{{Column: "sales", Func: engine.AggMean}},
	)
	require.NoError(t, err)
	result := apply(t, eng, op)
	assert.Equal(t, []any{125.0, 125.0}, column(result, "sales"))

	op, err = engine.NewGroupAggregate(
		[]string{"region"},
		[]engine.Aggregation{{Column: "sales", Func: engine.AggMax}},
	)
	require.NoError(t, err)
	result, serr := engine.New(salesTable()).Apply(op)
	require.Nil(t, serr)
	assert.Equal(t, []any{150.0, 200.0}, column(result, "sales"))
}

func TestGroupAggregate_SumOverText(t *testing.T) {
	eng := engine.New(salesTable())

	op, err := engine.NewGroupAggregate(
		[]string{"region"},
		[]engine.Aggregation{{Column: "product", Func: engine.AggSum}},
	)
	require.NoError(t, err)
	_, serr := eng.Apply(op)

	require.NotNil(t, serr)
	assert.Equal(t, engine.ReasonTypeMismatch, serr.Reason)
	assert.Equal(t, "product", serr.Column)
	assert.Equal(t, 4, eng.Current().NumRows())
}

func TestSort_MultiKeyStable(t *testing.T) {
	eng := engine.New(salesTable())

	op, err := engine.NewSort([]string{"region", "sales"}, []bool{true, false})
	require.NoError(t, err)
	result := apply(t, eng, op)

	assert.Equal(t, []any{"East", "East", "West", "West"}, column(result, "region"))
	assert.Equal(t, []any{200.0, 50.0, 150.0, 100.0}, column(result, "sales"))
}

func TestSort_EqualKeysKeepOriginalOrder(t *testing.T) {
	tab := table.New(
		[]string{"region", "id"},
		[]table.Row{
			{"region": "West", "id": 1.0},
			{"region": "East", "id": 2.0},
			{"region": "West", "id": 3.0},
			{"region": "East", "id": 4.0},
		},
	)

	// Rows with equal keys keep their original relative order in either
	// direction.
	for _, tc := range []struct {
		asc  bool
		want []any
	}{
		{asc: true, want: []any{2.0, 4.0, 1.0, 3.0}},
		{asc: false, want: []any{1.0, 3.0, 2.0, 4.0}},
	} {
		op, err := engine.NewSort([]string{"region"}, []bool{tc.asc})
		require.NoError(t, err)
		result, serr := engine.New(tab).Apply(op)
		require.Nil(t, serr)
		assert.Equal(t, tc.want, column(result, "id"), "ascending=%v", tc.asc)
	}
}

func TestSort_IncomparableKeysKeepOriginalOrder(t *testing.T) {
	// A mixed-type key compares equal against every row, so sorting on it
	// leaves the row order untouched.
	tab := table.New(
		[]string{"v", "id"},
		[]table.Row{
			{"v": "A", "id": 1.0},
			{"v": 2.0, "id": 2.0},
			{"v": "A", "id": 3.0},
		},
	)

	op, err := engine.NewSort([]string{"v"}, []bool{true})
	require.NoError(t, err)
	result, serr := engine.New(tab).Apply(op)
	require.Nil(t, serr)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, column(result, "id"))
}

func TestSort_NullsLastBothDirections(t *testing.T) {
	tab := table.New([]string{"v"}, []table.Row{
		{"v": nil},
		{"v": 2.0},
		{"v": 1.0},
	})

	for _, asc := range []bool{true, false} {
		op, err := engine.NewSort([]string{"v"}, []bool{asc})
		require.NoError(t, err)
		result, serr := engine.New(tab).Apply(op)
		require.Nil(t, serr)
		assert.Nil(t, result.Rows[2]["v"], "ascending=%v", asc)
	}
}

func TestSort_AscendingNormalization(t *testing.T) {
	// A short ascending list pads with true; a long one truncates.
	op, err := engine.NewSort([]string{"a", "b", "c"}, []bool{false})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true}, op.Sort.Ascending)

	op, err = engine.NewSort([]string{"a"}, []bool{false, true, true})
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, op.Sort.Ascending)
}

func TestPivot(t *testing.T) {
	tab := table.New(
		[]string{"region", "quarter", "sales"},
		[]table.Row{
			{"region": "West", "quarter": "Q1", "sales": 10.0},
			{"region": "West", "quarter": "Q2", "sales": 20.0},
			{"region": "East", "quarter": "Q1", "sales": 30.0},
		},
	)
	eng := engine.New(tab)

	op, err := engine.NewPivot("region", "quarter", "sales", engine.AggSum)
	require.NoError(t, err)
	result := apply(t, eng, op)

	assert.Equal(t, []string{"region", "Q1", "Q2"}, result.Columns)
	require.Equal(t, 2, result.NumRows())
	assert.Equal(t, "West", result.Rows[0]["region"])
	assert.Equal(t, 10.0, result.Rows[0]["Q1"])
	assert.Equal(t, 20.0, result.Rows[0]["Q2"])
	// Missing combination fills with 0.
	assert.Equal(t, "East", result.Rows[1]["region"])
	assert.Equal(t, 30.0, result.Rows[1]["Q1"])
	assert.Equal(t, 0.0, result.Rows[1]["Q2"])
}

func TestPivot_ValueCollidesWithIndexName(t *testing.T) {
	tab := table.New(
		[]string{"region", "kind", "sales"},
		[]table.Row{
			{"region": "West", "kind": "region", "sales": 10.0},
			{"region": "West", "kind": "online", "sales": 20.0},
		},
	)
	eng := engine.New(tab)

	op, err := engine.NewPivot("region", "kind", "sales", engine.AggSum)
	require.NoError(t, err)
	result := apply(t, eng, op)

	// The "region" pivot value is renamed so the index column survives.
	assert.Equal(t, []string{"region", "region_", "online"}, result.Columns)
	require.Equal(t, 1, result.NumRows())
	assert.Equal(t, "West", result.Rows[0]["region"])
	assert.Equal(t, 10.0, result.Rows[0]["region_"])
	assert.Equal(t, 20.0, result.Rows[0]["online"])
}

func TestSelectColumns(t *testing.T) {
	eng := engine.New(salesTable())

	op, err := engine.NewSelectColumns([]string{"sales", "product"})
	require.NoError(t, err)
	result := apply(t, eng, op)

	assert.Equal(t, []string{"sales", "product"}, result.Columns)
	require.Equal(t, 4, result.NumRows())
	_, hasRegion := result.Rows[0]["region"]
	assert.False(t, hasRegion)
}

func TestConstructorValidation(t *testing.T) {
	_, err := engine.NewTopN(0, "sales", false)
	assert.Error(t, err)

	_, err = engine.NewTopN(5, "", false)
	assert.Error(t, err)

	_, err = engine.NewFilter("col", "like", "x")
	assert.Error(t, err)

	_, err = engine.NewGroupAggregate(nil, []engine.Aggregation{{Column: "a", Func: engine.AggSum}})
	assert.Error(t, err)

	_, err = engine.NewGroupAggregate([]string{"a"}, nil)
	assert.Error(t, err)

	_, err = engine.NewPivot("", "b", "c", engine.AggSum)
	assert.Error(t, err)

	_, err = engine.NewCorrelation("x", "y", "cosine")
	assert.Error(t, err)
}
