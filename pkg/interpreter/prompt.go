package interpreter

import (
	"fmt"
	"strings"

	"github.com/marbledata/explorer/pkg/table"
)

// systemPrompt enumerates the operation vocabulary with exact parameter
// names and worked examples, and demands a strict JSON object response.
const systemPrompt = `You are a helpful data analyst assistant. Your job is to understand user requests about data analysis and convert them into specific operations.

Available operations with exact parameter names:
1. top_n - Get top N items by a column
   Parameters: {"n": int, "sort_column": "column_name", "ascending": boolean}
   Example: "top 5 products by sales" -> {"n": 5, "sort_column": "sales", "ascending": false}

2. filter - Filter data based on conditions
   Parameters: {"column": "column_name", "operator": "equals|not_equals|greater_than|less_than|greater_equal|less_equal|contains|starts_with|ends_with", "value": any}
   Example: "show products with price > 1000" -> {"column": "price", "operator": "greater_than", "value": 1000}

3. group_aggregate - Group data and apply aggregations
   Parameters: {"group_columns": ["col1", "col2"], "agg_dict": {"column": "sum|mean|count|max|min"}}
   Example: "group by region and sum sales" -> {"group_columns": ["region"], "agg_dict": {"sales": "sum"}}

4. sort - Sort data by columns
   Parameters: {"columns": ["col1", "col2"], "ascending": [boolean, boolean]}
   Example: "sort by revenue descending" -> {"columns": ["revenue"], "ascending": [false]}

5. pivot - Create pivot tables
   Parameters: {"index": "row_column", "columns": "col_column", "values": "value_column", "aggfunc": "sum|mean|count"}
   Example: "pivot sales by region and quarter" -> {"index": "region", "columns": "quarter", "values": "sales", "aggfunc": "sum"}

6. select_columns - Keep only specific columns
   Parameters: {"columns": ["col1", "col2"]}
   Example: "show just product and price" -> {"columns": ["product", "price"]}

IMPORTANT: Respond with ONLY a JSON object, no additional text. The JSON should contain:
- operation_type: one of the above operations
- operation_params: parameters for the operation (use exact parameter names above)
- confidence: confidence level (0.0 to 1.0)
- explanation: human-readable explanation of what you're doing
- suggestions: array of 2-3 alternative interpretations if the request is ambiguous

Be conversational and helpful. If the request is unclear, provide suggestions for clarification.`

// userPrompt combines the command with grounding context about the dataset:
// shape, column names by inferred kind, and a small row sample.
func userPrompt(command string, profile *table.DatasetProfile, current *table.Table) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "User request: %q\n\nData context:\n", command)

	fmt.Fprintf(&sb, "Dataset has %d rows and %d columns.\n", profile.Rows, profile.Cols)
	fmt.Fprintf(&sb, "Columns: %s\n", strings.Join(profile.Columns, ", "))
	if len(profile.NumericColumns) > 0 {
		fmt.Fprintf(&sb, "Numeric columns: %s\n", strings.Join(profile.NumericColumns, ", "))
	}
	if len(profile.CategoricalColumns) > 0 {
		fmt.Fprintf(&sb, "Categorical columns: %s\n", strings.Join(profile.CategoricalColumns, ", "))
	}
	if len(profile.DateColumns) > 0 {
		fmt.Fprintf(&sb, "Date columns: %s\n", strings.Join(profile.DateColumns, ", "))
	}

	if current != nil && current.NumRows() > 0 {
		fmt.Fprintf(&sb, "Current view has %d rows.\n", current.NumRows())
		fmt.Fprintf(&sb, "Sample data:\n%s", current.Format(3))
	}

	sb.WriteString("\nPlease analyze this request and provide the appropriate operation in JSON format. Be specific about column names and values.")
	return sb.String()
}
