package sqldb

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/askql/askql/internal/query"
)

func TestExecuteRunsInReadOnlyTransactionAndNormalizes(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("project_name").OfType("VARCHAR", ""),
		sqlmock.NewColumn("total_budget").OfType("DECIMAL", []byte{}),
		sqlmock.NewColumn("start_date").OfType("DATE", time.Time{}),
		sqlmock.NewColumn("episode_count").OfType("INT", int64(0)),
	).AddRow("赛博都市：觉醒", []byte("150000.50"), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), int64(12))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT project_name, total_budget, start_date, episode_count FROM ai_projects").WillReturnRows(rows)
	mock.ExpectRollback()

	engine := NewEngine(db, Options{Driver: "pgx", ReadOnlyTx: true, MaxRows: 10, QueryTimeout: time.Second})
	result, err := engine.Execute(context.Background(), query.Request{
		SQL: "SELECT project_name, total_budget, start_date, episode_count FROM ai_projects;",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	encoded, err := json.Marshal(result.Rows[0])
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"project_name":"赛博都市：觉醒","total_budget":150000.5,"start_date":"2024-01-15","episode_count":12}`
	if string(encoded) != want {
		t.Fatalf("row = %s, want %s", encoded, want)
	}
	if result.Truncated {
		t.Fatal("Truncated = true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet() error = %v", err)
	}
}

func TestExecuteCapsRows(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRowsWithColumnDefinition(sqlmock.NewColumn("id").OfType("INT", int64(0))).
		AddRow(int64(1)).
		AddRow(int64(2)).
		AddRow(int64(3))
	mock.ExpectQuery("SELECT id FROM ai_projects").WillReturnRows(rows)

	engine := NewEngine(db, Options{Driver: "sqlite", ReadOnlyTx: true, MaxRows: 2})
	result, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT id FROM ai_projects;"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 || !result.Truncated {
		t.Fatalf("rows = %d truncated = %v", len(result.Rows), result.Truncated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet() error = %v", err)
	}
}

func TestExecuteReturnsEngineErrorVerbatim(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT nope FROM ai_projects").
		WillReturnError(errors.New("Unknown column 'nope' in 'field list'"))

	engine := NewEngine(db, Options{Driver: "duckdb"})
	_, err = engine.Execute(context.Background(), query.Request{SQL: "SELECT nope FROM ai_projects;"})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "Unknown column 'nope' in 'field list'" {
		t.Fatalf("error = %q", err.Error())
	}
}

func TestExecuteRejectsEmptySQL(t *testing.T) {
	engine := NewEngine(nil, Options{})
	if _, err := engine.Execute(context.Background(), query.Request{SQL: " ; "}); err == nil {
		t.Fatal("expected error for empty sql")
	}
}

func TestExecuteAgainstSQLite(t *testing.T) {
	db, err := Open(context.Background(), DBConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE ai_projects (id INTEGER PRIMARY KEY, architect_name TEXT, start_date DATE)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO ai_projects (architect_name, start_date) VALUES ('张三', '2024-01-15'), ('李四', '2024-02-01')`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	engine := NewEngine(db, Options{Driver: "sqlite", MaxRows: 100})
	result, err := engine.Execute(ctx, query.Request{SQL: "SELECT architect_name, start_date FROM ai_projects ORDER BY id;"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if got, _ := result.Rows[0].Get("architect_name"); got != "张三" {
		t.Fatalf("architect_name = %#v", got)
	}
	if got, _ := result.Rows[0].Get("start_date"); got != "2024-01-15" {
		t.Fatalf("start_date = %#v", got)
	}

	if _, err := engine.Execute(ctx, query.Request{SQL: "SELECT missing FROM ai_projects;"}); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestOpenRequiresDSNAndDriver(t *testing.T) {
	if _, err := Open(context.Background(), DBConfig{Driver: "pgx"}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
	if _, err := Open(context.Background(), DBConfig{DSN: "file::memory:"}); err == nil {
		t.Fatal("expected error for empty driver")
	}
}
