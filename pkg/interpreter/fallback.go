package interpreter

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/marbledata/explorer/pkg/engine"
	"github.com/marbledata/explorer/pkg/metrics"
	"github.com/marbledata/explorer/pkg/table"
)

var digitsRe = regexp.MustCompile(`\d+`)

// FallbackInterpreter resolves commands with deterministic, ordered pattern
// rules over the lowercased text. Given the same command and profile it
// always produces the same operation and parameters.
type FallbackInterpreter struct{}

// NewFallbackInterpreter creates the pattern-matching interpreter.
func NewFallbackInterpreter() *FallbackInterpreter {
	return &FallbackInterpreter{}
}

// Interpret applies the fallback rules. It never fails: an unrecognized
// command yields a nil operation at low confidence with clarifying
// suggestions.
func (f *FallbackInterpreter) Interpret(_ context.Context, command string, profile *table.DatasetProfile, _ *table.Table) *Result {
	lower := strings.ToLower(command)
	suggestions := generateSuggestions(profile)

	res := f.match(command, lower, profile)
	res.Suggestions = suggestions
	res.Strategy = StrategyFallback
	metrics.CommandsTotal.WithLabelValues(opLabel(res.Op), StrategyFallback).Inc()
	return res
}

func (f *FallbackInterpreter) match(command, lower string, profile *table.DatasetProfile) *Result {
	if strings.Contains(lower, "top") && digitsRe.MatchString(command) {
		// "top 0" asks for nothing; treat it as unclear rather than
		// substituting a default count.
		n, err := strconv.Atoi(digitsRe.FindString(command))
		if err != nil || n <= 0 {
			return unclearResult(command)
		}
		col := profile.FirstNumericColumn()
		ascending := strings.Contains(lower, "lowest") || strings.Contains(lower, "worst")
		op, err := engine.NewTopN(n, col, ascending)
		if err != nil {
			return unclearResult(command)
		}
		return &Result{
			Command:     command,
			Op:          &op,
			OpType:      string(op.Type),
			Params:      op.Params(),
			Confidence:  0.6,
			Explanation: templateExplanation(&op, command),
		}
	}

	if strings.Contains(lower, "group") && strings.Contains(lower, "by") {
		var groupCols []string
		for _, col := range profile.CategoricalColumns {
			if strings.Contains(lower, strings.ToLower(col)) {
				groupCols = append(groupCols, col)
			}
		}
		if len(groupCols) == 0 {
			groupCols = []string{profile.FirstCategoricalColumn()}
		}
		op, err := engine.NewGroupAggregate(groupCols, []engine.Aggregation{{Column: "count", Func: engine.AggSize}})
		if err != nil {
			return unclearResult(command)
		}
		return &Result{
			Command:     command,
			Op:          &op,
			OpType:      string(op.Type),
			Params:      op.Params(),
			Confidence:  0.6,
			Explanation: templateExplanation(&op, command),
		}
	}

	if strings.Contains(lower, "product") &&
		(strings.Contains(lower, "top") || strings.Contains(lower, "best") || strings.Contains(lower, "selling")) {
		col := revenueLikeColumn(profile)
		op, err := engine.NewTopN(5, col, false)
		if err != nil {
			return unclearResult(command)
		}
		return &Result{
			Command:     command,
			Op:          &op,
			OpType:      string(op.Type),
			Params:      op.Params(),
			Confidence:  0.7,
			Explanation: templateExplanation(&op, command),
		}
	}

	return unclearResult(command)
}

func unclearResult(command string) *Result {
	return &Result{
		Command:     command,
		Confidence:  0.1,
		Explanation: "I'm not sure what you'd like me to do. Could you be more specific?",
	}
}

// revenueLikeColumn prefers a numeric column whose name looks like a money
// measure, falling back to the first numeric column.
func revenueLikeColumn(profile *table.DatasetProfile) string {
	for _, col := range profile.NumericColumns {
		name := strings.ToLower(col)
		if strings.Contains(name, "revenue") || strings.Contains(name, "sales") ||
			strings.Contains(name, "amount") || strings.Contains(name, "total") {
			return col
		}
	}
	return profile.FirstNumericColumn()
}

// regionLikeColumn prefers a categorical column naming a place or product,
// falling back to the first categorical column.
func regionLikeColumn(profile *table.DatasetProfile) string {
	for _, col := range profile.CategoricalColumns {
		name := strings.ToLower(col)
		if strings.Contains(name, "region") || strings.Contains(name, "location") ||
			strings.Contains(name, "product") || strings.Contains(name, "category") {
			return col
		}
	}
	return profile.FirstCategoricalColumn()
}

// generateSuggestions derives 2-3 runnable suggestions from the dataset
// profile, favoring revenue-like numeric and region-like categorical
// columns when naming them.
func generateSuggestions(profile *table.DatasetProfile) []Suggestion {
	var out []Suggestion

	if len(profile.NumericColumns) > 0 {
		col := revenueLikeColumn(profile)
		out = append(out, Suggestion{
			Type:        string(engine.OpTopN),
			Description: "Show top 5 by " + col,
			Command:     "top 5 by " + col,
			Params:      map[string]any{"n": 5, "sort_column": col, "ascending": false},
		})
	}

	if len(profile.CategoricalColumns) > 0 {
		col := regionLikeColumn(profile)
		aggDict := map[string]any{"count": "size"}
		if len(profile.NumericColumns) > 0 {
			aggDict = map[string]any{revenueLikeColumn(profile): "sum"}
		}
		out = append(out, Suggestion{
			Type:        string(engine.OpGroupAggregate),
			Description: "Group by " + col,
			Command:     "group by " + col,
			Params:      map[string]any{"group_columns": []string{col}, "agg_dict": aggDict},
		})
	}

	if len(profile.NumericColumns) >= 2 {
		x, y := profile.NumericColumns[0], profile.NumericColumns[1]
		out = append(out, Suggestion{
			Type:        string(engine.OpCorrelation),
			Description: "Show correlation between " + x + " and " + y,
			Params:      map[string]any{"column_x": x, "column_y": y, "method": "pearson"},
		})
	}

	if len(out) > 3 {
		out = out[:3]
	}
	return out
}
