// Package pipeline sequences one prompt through the cache, the SQL generator
// and the query engine. It is the only place those side effects are ordered.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/askql/askql/internal/audit"
	"github.com/askql/askql/internal/cache"
	"github.com/askql/askql/internal/nl2sql"
	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/query"
	"github.com/askql/askql/internal/sqlguard"
)

var (
	ErrEmptyPrompt            = errors.New("prompt is required")
	ErrExecutionNotConfigured = errors.New("query execution is not configured")
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type Generator interface {
	Generate(ctx context.Context, prompt string) nl2sql.Generation
}

// Result is either a success carrying rows or an error carrying the engine
// message. An error result never reports a cache hit.
type Result struct {
	Status    Status
	SQL       string
	Columns   []string
	Rows      []query.Row
	Truncated bool
	CacheHit  bool
	Message   string
}

type Options struct {
	CacheTTL time.Duration
	// DedupeInflight collapses concurrent cache misses for the same prompt
	// into one generator call.
	DedupeInflight bool
	Logger         *slog.Logger
	Recorder       audit.Recorder
}

type Service struct {
	generator Generator
	cache     cache.Store
	engine    query.Engine
	ttl       time.Duration
	dedupe    bool
	group     singleflight.Group
	logger    *slog.Logger
	recorder  audit.Recorder
	clock     func() time.Time
}

// New wires the pipeline. engine may be nil, in which case only Generate is
// usable.
func New(generator Generator, store cache.Store, engine query.Engine, opts Options) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Recorder == nil {
		opts.Recorder = audit.Discard{}
	}
	return &Service{
		generator: generator,
		cache:     store,
		engine:    engine,
		ttl:       opts.CacheTTL,
		dedupe:    opts.DedupeInflight,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
		clock:     time.Now,
	}
}

func (s *Service) ExecutionEnabled() bool {
	return s.engine != nil
}

// Handle resolves prompt to SQL (cache first, then generation) and executes
// it. The returned error is ErrEmptyPrompt or ErrExecutionNotConfigured; every
// other failure is reported inside Result.
func (s *Service) Handle(ctx context.Context, prompt string) (Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Result{}, ErrEmptyPrompt
	}
	if s.engine == nil {
		return Result{}, ErrExecutionNotConfigured
	}

	start := s.clock()
	sqlText, cacheHit, outcome := s.resolve(ctx, prompt)

	execStart := s.clock()
	execution, err := s.engine.Execute(ctx, query.Request{SQL: sqlText})
	var result Result
	if err != nil {
		observability.ObserveExecution(string(StatusError), s.clock().Sub(execStart))
		s.logger.WarnContext(ctx, "query execution failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("sql", sqlText),
			slog.Any("error", err),
		)
		result = Result{
			Status:   StatusError,
			SQL:      sqlText,
			Rows:     []query.Row{},
			CacheHit: false,
			Message:  err.Error(),
		}
	} else {
		observability.ObserveExecution(string(StatusSuccess), s.clock().Sub(execStart))
		result = Result{
			Status:    StatusSuccess,
			SQL:       sqlText,
			Columns:   execution.Columns,
			Rows:      execution.Rows,
			Truncated: execution.Truncated,
			CacheHit:  cacheHit,
		}
	}

	s.recorder.Record(audit.Entry{
		TraceID:    observability.TraceIDFromContext(ctx),
		Kind:       audit.KindAsk,
		Prompt:     prompt,
		SQL:        result.SQL,
		Outcome:    outcome,
		CacheHit:   result.CacheHit,
		Status:     string(result.Status),
		Message:    result.Message,
		RowCount:   len(result.Rows),
		DurationMs: s.clock().Sub(start).Milliseconds(),
	})
	return result, nil
}

// Generate produces SQL for prompt without touching the cache or the
// database.
func (s *Service) Generate(ctx context.Context, prompt string) (nl2sql.Generation, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nl2sql.Generation{}, ErrEmptyPrompt
	}

	start := s.clock()
	generation := s.generator.Generate(ctx, prompt)
	s.recorder.Record(audit.Entry{
		TraceID:    observability.TraceIDFromContext(ctx),
		Kind:       audit.KindGenerate,
		Prompt:     prompt,
		SQL:        generation.SQL,
		Outcome:    string(generation.Outcome),
		Status:     string(StatusSuccess),
		DurationMs: s.clock().Sub(start).Milliseconds(),
	})
	return generation, nil
}

const outcomeCached = "cached"

func (s *Service) resolve(ctx context.Context, prompt string) (string, bool, string) {
	if sqlText, ok := s.lookup(ctx, prompt); ok {
		return sqlText, true, outcomeCached
	}
	generation := s.generateOnce(ctx, prompt)
	return generation.SQL, false, string(generation.Outcome)
}

// lookup treats cache errors and cached values that are not in sanitized
// form as misses.
func (s *Service) lookup(ctx context.Context, prompt string) (string, bool) {
	value, ok, err := s.cache.Get(ctx, prompt)
	if err != nil {
		observability.ObserveCacheLookup("miss")
		s.logger.WarnContext(ctx, "cache lookup failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Any("error", err),
		)
		return "", false
	}
	if !ok {
		observability.ObserveCacheLookup("miss")
		return "", false
	}
	if !sqlguard.IsTrusted(value) {
		observability.ObserveCacheLookup("untrusted")
		s.logger.WarnContext(ctx, "ignoring cached value that is not sanitized sql",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		)
		return "", false
	}
	observability.ObserveCacheLookup("hit")
	return value, true
}

func (s *Service) generateOnce(ctx context.Context, prompt string) nl2sql.Generation {
	if !s.dedupe {
		return s.generateAndStore(ctx, prompt)
	}
	// The shared call must outlive any single waiter's cancellation.
	shared := context.WithoutCancel(ctx)
	value, _, _ := s.group.Do(prompt, func() (any, error) {
		return s.generateAndStore(shared, prompt), nil
	})
	return value.(nl2sql.Generation)
}

func (s *Service) generateAndStore(ctx context.Context, prompt string) nl2sql.Generation {
	generation := s.generator.Generate(ctx, prompt)
	if err := s.cache.Set(ctx, prompt, generation.SQL, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "cache write failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Any("error", err),
		)
	}
	return generation
}
