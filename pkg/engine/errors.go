package engine

import "fmt"

// Reason classifies a structural transform failure. The engine swallows
// these (the current table is left unchanged) but surfaces the reason so
// explanation synthesis can distinguish "column not found" from a filter
// that legitimately matched zero rows.
type Reason string

const (
	ReasonColumnNotFound   Reason = "column_not_found"
	ReasonTypeMismatch     Reason = "type_mismatch"
	ReasonEmptyGroupKey    Reason = "empty_group_key"
	ReasonBadParams        Reason = "bad_params"
	ReasonInsufficientData Reason = "insufficient_data"
)

// StructuralError reports why an operation could not be applied. It is never
// surfaced to the end user as a failure; the operation becomes a no-op.
type StructuralError struct {
	Reason Reason
	Column string
	Detail string
}

func (e *StructuralError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s: %s (column %q)", e.Reason, e.Detail, e.Column)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func columnNotFound(col string) *StructuralError {
	return &StructuralError{Reason: ReasonColumnNotFound, Column: col, Detail: "column does not exist in the current table"}
}
