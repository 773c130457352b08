package interpreter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marbledata/explorer/pkg/engine"
	"github.com/marbledata/explorer/pkg/interpreter"
	"github.com/marbledata/explorer/pkg/table"
)

func topNResult(t *testing.T, n int, col string) *interpreter.Result {
	t.Helper()
	op, err := engine.NewTopN(n, col, false)
	require.NoError(t, err)
	return &interpreter.Result{
		Command:     "top rows",
		Op:          &op,
		OpType:      string(op.Type),
		Explanation: "original explanation",
	}
}

func TestEnhance_GroundsInResultData(t *testing.T) {
	_, tab := salesProfile()
	res := topNResult(t, 2, "revenue")

	after := table.New(tab.Columns, tab.Rows[:2])
	got := interpreter.Enhance(res, tab, after, nil)

	assert.Contains(t, got, "top 2")
	assert.Contains(t, got, "revenue")
	// The observed value range appears in the text.
	assert.Contains(t, got, "100")
	assert.Contains(t, got, "200")
}

func TestEnhance_FilterCounts(t *testing.T) {
	_, tab := salesProfile()
	op, err := engine.NewFilter("region", engine.FilterEquals, "West")
	require.NoError(t, err)
	res := &interpreter.Result{Op: &op, Explanation: "x"}

	after := table.New(tab.Columns, tab.Rows[:2])
	got := interpreter.Enhance(res, tab, after, nil)
	assert.Contains(t, got, "2 of 3 rows")
}

func TestEnhance_ColumnNotFound(t *testing.T) {
	_, tab := salesProfile()
	res := topNResult(t, 2, "profit")

	got := interpreter.Enhance(res, tab, tab, &engine.StructuralError{
		Reason: engine.ReasonColumnNotFound,
		Column: "profit",
	})

	assert.Contains(t, got, `"profit"`)
	assert.Contains(t, got, "nothing was changed")
	// The available columns are listed to steer the next command.
	assert.Contains(t, got, "revenue")
}

func TestEnhance_TypeMismatch(t *testing.T) {
	_, tab := salesProfile()
	res := topNResult(t, 2, "product")

	got := interpreter.Enhance(res, tab, tab, &engine.StructuralError{
		Reason: engine.ReasonTypeMismatch,
		Column: "product",
	})
	assert.Contains(t, got, "unchanged")
}

func TestEnhance_DoesNotAlterResult(t *testing.T) {
	_, tab := salesProfile()
	res := topNResult(t, 2, "revenue")
	opBefore := *res.Op

	interpreter.Enhance(res, tab, tab, nil)
	assert.Equal(t, opBefore, *res.Op)
	assert.Equal(t, "original explanation", res.Explanation)
}
