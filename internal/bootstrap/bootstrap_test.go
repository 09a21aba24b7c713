package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/migrations"
	"github.com/askql/askql/internal/pipeline"
	"github.com/askql/askql/internal/sqlguard"
)

func TestBuildWithoutDatabaseIsGenerateOnly(t *testing.T) {
	cfg := loadConfig(t, map[string]string{})

	components, err := Build(context.Background(), cfg, discardLogger(), Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer components.Close()

	if components.Pipeline.ExecutionEnabled() {
		t.Fatal("ExecutionEnabled() = true without a DSN")
	}
	if components.Readiness != nil {
		t.Fatal("Readiness should be nil without a database")
	}
	generation, err := components.Pipeline.Generate(context.Background(), "list projects")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if generation.SQL != sqlguard.FallbackSQL {
		t.Fatalf("SQL = %q", generation.SQL)
	}
}

func TestBuildAgainstSQLiteRunsFallbackQuery(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "askql.db")
	redisServer := miniredis.RunT(t)
	cfg := loadConfig(t, map[string]string{
		"ASKQL_DB_DRIVER":        "sqlite",
		"ASKQL_DB_DSN":           dsn,
		"ASKQL_CACHE_REDIS_ADDR": redisServer.Addr(),
	})
	ctx := context.Background()

	db, err := DB(ctx, cfg)
	if err != nil {
		t.Fatalf("DB() error = %v", err)
	}
	runner, err := migrations.NewRunner(cfg.Database.Driver)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	if _, err := runner.Up(ctx, db, 0); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO ai_projects (architect_name, project_name, status) VALUES ('张三', '赛博都市：觉醒', '已交付')`); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	_ = db.Close()

	components, err := Build(ctx, cfg, discardLogger(), Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer components.Close()

	if err := components.Readiness(ctx); err != nil {
		t.Fatalf("Readiness() error = %v", err)
	}
	if err := components.Advisories["cache"](ctx); err != nil {
		t.Fatalf("cache advisory error = %v", err)
	}

	first, err := components.Pipeline.Handle(ctx, "随便看看")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if first.Status != pipeline.StatusSuccess || first.CacheHit {
		t.Fatalf("first = %+v", first)
	}
	if len(first.Rows) != 1 {
		t.Fatalf("rows = %d", len(first.Rows))
	}
	if name, _ := first.Rows[0].Get("architect_name"); name != "张三" {
		t.Fatalf("architect_name = %v", name)
	}

	second, err := components.Pipeline.Handle(ctx, "随便看看")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !second.CacheHit {
		t.Fatal("second call should be a cache hit")
	}
	if value, err := redisServer.Get(cfg.Cache.KeyPrefix + "随便看看"); err != nil || value != sqlguard.FallbackSQL {
		t.Fatalf("redis value = %q, %v", value, err)
	}
}

func TestBuildGenerateOnlyIgnoresDatabase(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"ASKQL_DB_DRIVER": "sqlite",
		"ASKQL_DB_DSN":    filepath.Join(t.TempDir(), "unused.db"),
	})

	components, err := Build(context.Background(), cfg, discardLogger(), Options{GenerateOnly: true})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer components.Close()

	if components.Pipeline.ExecutionEnabled() {
		t.Fatal("ExecutionEnabled() = true in generate-only mode")
	}
	if _, ok := components.Advisories["cache"]; ok {
		t.Fatal("generate-only mode should not report a cache advisory")
	}
}

func loadConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("askql-test", func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	})
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
