// Package interpreter maps free-form natural-language commands onto
// structured table operations. Two interchangeable strategies implement the
// same interface: a language-model-backed interpreter and a deterministic
// pattern-matching fallback used whenever the backend is unavailable or
// returns output that cannot be parsed.
package interpreter

import (
	"context"

	"github.com/marbledata/explorer/pkg/engine"
	"github.com/marbledata/explorer/pkg/table"
)

// Strategy labels which interpretation path produced a result.
const (
	StrategyBackend  = "backend"
	StrategyFallback = "fallback"
)

// Suggestion is an alternative interpretation the user can run as-is:
// either a re-runnable command string or a concrete operation.
type Suggestion struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Command     string         `json:"command,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// Result is the structured outcome of interpreting one command. Op is nil
// when no intent could be determined; that is not an error, and a Result is
// always well-formed regardless of backend behavior.
type Result struct {
	Command     string         `json:"command"`
	Op          *engine.Op     `json:"-"`
	OpType      string         `json:"operation_type,omitempty"`
	Params      map[string]any `json:"operation_params,omitempty"`
	Confidence  float64        `json:"confidence"`
	Explanation string         `json:"explanation"`
	Suggestions []Suggestion   `json:"suggestions,omitempty"`
	Strategy    string         `json:"strategy"`
}

// Interpreter converts a command plus dataset context into a Result. It
// never returns an error: ambiguity and backend failure degrade confidence
// and explanation quality instead.
type Interpreter interface {
	Interpret(ctx context.Context, command string, profile *table.DatasetProfile, current *table.Table) *Result
}

// LLMClient is the language-understanding backend boundary. It accepts a
// prompt and returns free text; any error (including timeout) means the
// caller must fall back.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
