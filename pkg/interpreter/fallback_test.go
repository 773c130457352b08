package interpreter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marbledata/explorer/pkg/engine"
	"github.com/marbledata/explorer/pkg/interpreter"
	"github.com/marbledata/explorer/pkg/table"
)

func salesProfile() (*table.DatasetProfile, *table.Table) {
	tab := table.New(
		[]string{"product", "region", "revenue"},
		[]table.Row{
			{"product": "Widget", "region": "West", "revenue": 100.0},
			{"product": "Gadget", "region": "East", "revenue": 200.0},
			{"product": "Doohickey", "region": "West", "revenue": 150.0},
		},
	)
	return table.Profile(tab), tab
}

func TestFallback_TopWithNumber(t *testing.T) {
	profile, tab := salesProfile()
	interp := interpreter.NewFallbackInterpreter()

	res := interp.Interpret(context.Background(), "show me the top 2 by sales", profile, tab)

	require.NotNil(t, res.Op)
	assert.Equal(t, engine.OpTopN, res.Op.Type)
	assert.Equal(t, 2, res.Op.TopN.N)
	assert.Equal(t, "revenue", res.Op.TopN.SortColumn)
	assert.False(t, res.Op.TopN.Ascending)
	assert.Equal(t, 0.6, res.Confidence)
	assert.Equal(t, interpreter.StrategyFallback, res.Strategy)
	assert.NotEmpty(t, res.Explanation)
}

func TestFallback_TopLowest(t *testing.T) {
	profile, tab := salesProfile()
	interp := interpreter.NewFallbackInterpreter()

	res := interp.Interpret(context.Background(), "top 3 lowest performers", profile, tab)

	require.NotNil(t, res.Op)
	assert.True(t, res.Op.TopN.Ascending)
	assert.Equal(t, 3, res.Op.TopN.N)
}

func TestFallback_TopZeroIsUnclear(t *testing.T) {
	profile, tab := salesProfile()
	interp := interpreter.NewFallbackInterpreter()

	res := interp.Interpret(context.Background(), "top 0 rows", profile, tab)

	assert.Nil(t, res.Op)
	assert.Equal(t, 0.1, res.Confidence)
	assert.NotEmpty(t, res.Suggestions)
}

func TestFallback_GroupByNamedColumn(t *testing.T) {
	profile, tab := salesProfile()
	interp := interpreter.NewFallbackInterpreter()

	res := interp.Interpret(context.Background(), "group by region please", profile, tab)

	require.NotNil(t, res.Op)
	assert.Equal(t, engine.OpGroupAggregate, res.Op.Type)
	assert.Equal(t, []string{"region"}, res.Op.GroupAggregate.GroupColumns)
	require.Len(t, res.Op.GroupAggregate.Aggregations, 1)
	assert.Equal(t, "count", res.Op.GroupAggregate.Aggregations[0].Column)
	assert.Equal(t, engine.AggSize, res.Op.GroupAggregate.Aggregations[0].Func)
	assert.Equal(t, 0.6, res.Confidence)
}

func TestFallback_GroupByUnnamedColumn(t *testing.T) {
	profile, tab := salesProfile()
	interp := interpreter.NewFallbackInterpreter()

	res := interp.Interpret(context.Background(), "group by something", profile, tab)

	require.NotNil(t, res.Op)
	// No categorical column named in the text, so the first one is used.
	assert.Equal(t, []string{"product"}, res.Op.GroupAggregate.GroupColumns)
}

func TestFallback_BestSellingProducts(t *testing.T) {
	profile, tab := salesProfile()
	interp := interpreter.NewFallbackInterpreter()

	res := interp.Interpret(context.Background(), "what are the best selling products?", profile, tab)

	require.NotNil(t, res.Op)
	assert.Equal(t, engine.OpTopN, res.Op.Type)
	assert.Equal(t, 5, res.Op.TopN.N)
	assert.Equal(t, "revenue", res.Op.TopN.SortColumn)
	assert.Equal(t, 0.7, res.Confidence)
}

func TestFallback_Unclear(t *testing.T) {
	profile, tab := salesProfile()
	interp := interpreter.NewFallbackInterpreter()

	res := interp.Interpret(context.Background(), "make it pretty", profile, tab)

	assert.Nil(t, res.Op)
	assert.Equal(t, 0.1, res.Confidence)
	assert.Contains(t, res.Explanation, "more specific")
	assert.NotEmpty(t, res.Suggestions)
}

func TestFallback_Deterministic(t *testing.T) {
	profile, tab := salesProfile()
	interp := interpreter.NewFallbackInterpreter()

	first := interp.Interpret(context.Background(), "top 4 by revenue", profile, tab)
	second := interp.Interpret(context.Background(), "top 4 by revenue", profile, tab)

	require.NotNil(t, first.Op)
	require.NotNil(t, second.Op)
	assert.Equal(t, first.Op, second.Op)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Params, second.Params)
}

func TestFallback_SuggestionsFollowProfile(t *testing.T) {
	profile, tab := salesProfile()
	interp := interpreter.NewFallbackInterpreter()

	res := interp.Interpret(context.Background(), "hmm", profile, tab)

	require.NotEmpty(t, res.Suggestions)
	assert.LessOrEqual(t, len(res.Suggestions), 3)
	// The revenue-like numeric column anchors the first suggestion.
	assert.Contains(t, res.Suggestions[0].Description, "revenue")
}
