package engine

import (
	"github.com/marbledata/explorer/pkg/table"
)

// HistoryEntry records one applied operation with a human-readable
// description and the row counts around it. The history list is the source
// of truth for how the current view was reached: replaying it against the
// original table must reproduce the current table.
type HistoryEntry struct {
	Op          Op     `json:"op"`
	Description string `json:"description"`
	RowsBefore  int    `json:"rows_before"`
	RowsAfter   int    `json:"rows_after"`
}

// Engine holds an original table and the current working view. Each applied
// operation replaces the current table wholesale (replace-on-write), so a
// previously returned view is never mutated underneath a caller.
//
// Engine is not safe for concurrent use; callers serialize per session.
type Engine struct {
	original *table.Table
	current  *table.Table
	history  []HistoryEntry
}

// New creates an engine over a copy of the given table.
func New(t *table.Table) *Engine {
	return &Engine{
		original: t.Clone(),
		current:  t.Clone(),
	}
}

// Current returns the current working view.
func (e *Engine) Current() *table.Table { return e.current }

// Original returns the immutable baseline table.
func (e *Engine) Original() *table.Table { return e.original }

// History returns the applied operations in order.
func (e *Engine) History() []HistoryEntry {
	return append([]HistoryEntry(nil), e.history...)
}

// Reset restores the current table to the original and clears the history.
func (e *Engine) Reset() *table.Table {
	e.current = e.original.Clone()
	e.history = nil
	return e.current
}

// Apply runs a mutating operation against the current table. On success the
// new view replaces the current table and a history entry is appended. On
// structural failure the current table is unchanged, nothing is recorded,
// and the typed reason is returned; callers treat that as a no-op rather
// than a user-facing error.
//
// Correlation is read-only: use Correlate instead.
func (e *Engine) Apply(op Op) (*table.Table, *StructuralError) {
	if op.Type == OpCorrelation {
		return e.Correlate(op)
	}

	result, serr := transform(op, e.current)
	if serr != nil {
		return e.current, serr
	}

	before := e.current.NumRows()
	e.current = result
	e.history = append(e.history, HistoryEntry{
		Op:          op,
		Description: op.Describe(),
		RowsBefore:  before,
		RowsAfter:   result.NumRows(),
	})
	return e.current, nil
}

// Correlate computes a correlation coefficient over the current table and
// returns it as a derived one-row table. The current table and history are
// untouched.
func (e *Engine) Correlate(op Op) (*table.Table, *StructuralError) {
	if op.Type != OpCorrelation || op.Correlation == nil {
		return e.current, &StructuralError{Reason: ReasonBadParams, Detail: "not a correlation operation"}
	}
	return correlate(op.Correlation, e.current)
}

// Replay applies a recorded history against a table and returns the
// resulting view. Used to rehydrate a session's current table from durable
// state and to verify the history invariant in tests.
func Replay(original *table.Table, history []HistoryEntry) (*table.Table, *StructuralError) {
	current := original.Clone()
	for _, entry := range history {
		result, serr := transform(entry.Op, current)
		if serr != nil {
			return current, serr
		}
		current = result
	}
	return current, nil
}

// transform dispatches on the closed operation variant, producing a new
// table without touching the input.
func transform(op Op, t *table.Table) (*table.Table, *StructuralError) {
	switch op.Type {
	case OpTopN:
		return applyTopN(op.TopN, t)
	case OpFilter:
		return applyFilter(op.Filter, t)
	case OpGroupAggregate:
		return applyGroupAggregate(op.GroupAggregate, t)
	case OpSort:
		return applySort(op.Sort, t)
	case OpPivot:
		return applyPivot(op.Pivot, t)
	case OpSelectColumns:
		return applySelectColumns(op.SelectColumns, t)
	default:
		return nil, &StructuralError{Reason: ReasonBadParams, Detail: "unknown operation type"}
	}
}
