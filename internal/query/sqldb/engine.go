// Package sqldb executes sanitized statements through database/sql and
// shapes the rows for JSON responses.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/askql/askql/internal/query"
)

type Options struct {
	Driver       string
	QueryTimeout time.Duration
	MaxRows      int
	// ReadOnlyTx wraps each query in a read-only transaction on drivers that
	// honour one (pgx, mysql).
	ReadOnlyTx bool
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Engine struct {
	db   *sql.DB
	opts Options
}

func NewEngine(db *sql.DB, opts Options) *Engine {
	return &Engine{db: db, opts: opts}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if e.db == nil {
		return query.Result{}, fmt.Errorf("database is not configured")
	}

	start := time.Now()
	if e.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.QueryTimeout)
		defer cancel()
	}

	var q queryer = e.db
	if e.opts.ReadOnlyTx && supportsReadOnlyTx(e.opts.Driver) {
		tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return query.Result{}, fmt.Errorf("begin read-only transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		q = tx
	}

	rows, err := q.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}
	typeNames := make([]string, len(columns))
	if columnTypes, err := rows.ColumnTypes(); err == nil {
		for i, columnType := range columnTypes {
			typeNames[i] = strings.ToUpper(columnType.DatabaseTypeName())
		}
	}

	result := query.Result{Columns: columns, Rows: make([]query.Row, 0)}
	for rows.Next() {
		if e.opts.MaxRows > 0 && len(result.Rows) >= e.opts.MaxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		result.Rows = append(result.Rows, query.NewRow(columns, normalizeValues(values, typeNames)))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	if e.db == nil {
		return fmt.Errorf("database is not configured")
	}
	return e.db.PingContext(ctx)
}

func supportsReadOnlyTx(driver string) bool {
	switch driver {
	case "pgx", "mysql":
		return true
	default:
		return false
	}
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
