package query

import "context"

type Request struct {
	SQL      string
	RowLimit int
}

type Result struct {
	Columns     []string
	Rows        [][]any
	SQLExecuted string
}

// Records returns each row keyed by column name.
func (r Result) Records() []map[string]any {
	records := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		record := make(map[string]any, len(r.Columns))
		for i, column := range r.Columns {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}

// Engine runs a statement that already cleared the safety gate, returning at
// most RowLimit rows.
type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
