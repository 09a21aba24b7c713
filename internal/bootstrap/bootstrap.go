// Package bootstrap wires configuration into the pipeline and its
// collaborators for the askql binaries.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/askql/askql/internal/api"
	"github.com/askql/askql/internal/audit"
	"github.com/askql/askql/internal/cache"
	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/nl2sql"
	"github.com/askql/askql/internal/pipeline"
	"github.com/askql/askql/internal/query"
	"github.com/askql/askql/internal/query/sqldb"
	s3store "github.com/askql/askql/internal/storage/s3"
)

type Options struct {
	// GenerateOnly skips the database even when a DSN is configured.
	GenerateOnly bool
}

// Components owns every long-lived resource built from config. Close
// releases them in reverse order.
type Components struct {
	Pipeline   *pipeline.Service
	Schema     nl2sql.Schema
	Readiness  api.ReadinessCheck
	Advisories map[string]api.ReadinessCheck

	auditSink *audit.Sink
	closers   []func() error
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*Components, error) {
	c := &Components{
		Schema:     nl2sql.DefaultSchema,
		Advisories: map[string]api.ReadinessCheck{},
	}

	var engine query.Engine
	if cfg.ExecutionEnabled() && !opts.GenerateOnly {
		db, err := sqldb.Open(ctx, sqldb.DBConfig{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		c.closers = append(c.closers, db.Close)
		sqlEngine := sqldb.NewEngine(db, sqldb.Options{
			Driver:       cfg.Database.Driver,
			QueryTimeout: cfg.Database.QueryTimeout,
			MaxRows:      cfg.Database.MaxRows,
			ReadOnlyTx:   cfg.Database.ReadOnlyTx,
		})
		engine = sqlEngine
		c.Readiness = sqlEngine.Ping
		logger.InfoContext(ctx, "query execution enabled", slog.String("driver", cfg.Database.Driver))
	} else {
		logger.InfoContext(ctx, "query execution disabled")
	}

	var store cache.Store
	if opts.GenerateOnly {
		store = cache.NewDegrading(nil, nil, cfg.Cache.OpTimeout, logger)
	} else {
		promptCache := cache.Open(ctx, cache.Options{
			RedisAddr:     cfg.Cache.RedisAddr,
			RedisPassword: cfg.Cache.RedisPassword,
			RedisDB:       cfg.Cache.RedisDB,
			KeyPrefix:     cfg.Cache.KeyPrefix,
			OpTimeout:     cfg.Cache.OpTimeout,
		}, logger)
		c.closers = append(c.closers, promptCache.Close)
		c.Advisories["cache"] = promptCache.Ping
		store = promptCache
	}

	translator, err := newTranslator(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	generator := nl2sql.NewGenerator(translator, c.Schema, logger)

	var recorder audit.Recorder = audit.Discard{}
	if cfg.Audit.Enabled {
		objectStore, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("initialize audit object store: %w", err)
		}
		c.auditSink = audit.NewSink(objectStore, audit.Config{
			Service:       cfg.Service.Name,
			FlushInterval: cfg.Audit.FlushInterval,
			BatchSize:     cfg.Audit.BatchSize,
		}, logger)
		c.Advisories["object_store"] = objectStore.Check
		recorder = c.auditSink
	}

	c.Pipeline = pipeline.New(generator, store, engine, pipeline.Options{
		CacheTTL:       cfg.Cache.TTL,
		DedupeInflight: cfg.Cache.DedupeInflight,
		Logger:         logger,
		Recorder:       recorder,
	})
	return c, nil
}

func newTranslator(cfg config.Config, logger *slog.Logger) (nl2sql.Translator, error) {
	if !cfg.TranslationEnabled() {
		logger.Warn("ai translation not configured: every prompt resolves to the fallback query")
		return nil, nil
	}
	translator, err := nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize query translator: %w", err)
	}
	return translator, nil
}

// Start launches background workers. They stop when ctx is cancelled or
// Close is called.
func (c *Components) Start(ctx context.Context, logger *slog.Logger) {
	if c.auditSink == nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.auditSink.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("audit sink stopped", slog.Any("error", err))
		}
	}()
}

func (c *Components) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
	c.closers = nil
}

// DB opens a pool for tools that need raw access, such as migrations.
func DB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if !cfg.ExecutionEnabled() {
		return nil, errors.New("ASKQL_DB_DSN is required")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return sqldb.Open(pingCtx, sqldb.DBConfig{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: 1,
	})
}
