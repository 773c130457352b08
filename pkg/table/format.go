package table

import (
	"fmt"
	"strings"
)

// Format creates a human-readable rendering of the table, used as grounding
// context in prompts. Output is capped at maxRows rows.
func (t *Table) Format(maxRows int) string {
	if t == nil || len(t.Rows) == 0 {
		return "Table has no rows."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Results (%d rows):\n", len(t.Rows)))
	sb.WriteString("Columns: " + strings.Join(t.Columns, " | ") + "\n")
	sb.WriteString(strings.Repeat("-", 40) + "\n")

	n := min(maxRows, len(t.Rows))
	for i := range n {
		row := t.Rows[i]
		values := make([]string, 0, len(t.Columns))
		for _, col := range t.Columns {
			values = append(values, FormatValue(row[col]))
		}
		sb.WriteString(strings.Join(values, " | ") + "\n")
	}

	if len(t.Rows) > n {
		sb.WriteString(fmt.Sprintf("... and %d more rows\n", len(t.Rows)-n))
	}

	return sb.String()
}
