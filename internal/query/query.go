package query

import (
	"context"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Row maps column names to values in select-list order. It marshals to a
// JSON object with keys in that order.
type Row = *orderedmap.OrderedMap[string, any]

func NewRow(columns []string, values []any) Row {
	row := orderedmap.New[string, any]()
	for i, column := range columns {
		var value any
		if i < len(values) {
			value = values[i]
		}
		row.Set(column, value)
	}
	return row
}

type Request struct {
	SQL string
}

type Result struct {
	Columns   []string
	Rows      []Row
	Truncated bool
	Duration  time.Duration
}

// Engine runs one already-sanitized statement. Errors carry the engine's own
// message so callers can surface it verbatim.
type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
