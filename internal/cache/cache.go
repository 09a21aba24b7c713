// Package cache maps trimmed prompts to sanitized SQL. Backend failures are
// absorbed here: callers always get an answer from Redis or the in-process
// fallback and never see a cache error.
package cache

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/askql/askql/internal/cache/memory"
	"github.com/askql/askql/internal/cache/redis"
	"github.com/askql/askql/internal/observability"
)

const DefaultTTL = time.Hour

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
	OpTimeout     time.Duration
}

// Degrading serves every operation from the primary store when one is
// configured and healthy, and from the memory fallback otherwise.
type Degrading struct {
	primary   Store
	fallback  *memory.Store
	opTimeout time.Duration
	logger    *slog.Logger
	closer    io.Closer
}

func NewDegrading(primary Store, fallback *memory.Store, opTimeout time.Duration, logger *slog.Logger) *Degrading {
	if fallback == nil {
		fallback = memory.New()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Degrading{
		primary:   primary,
		fallback:  fallback,
		opTimeout: opTimeout,
		logger:    logger,
	}
}

// Open connects to Redis when an address is configured. A failed startup ping
// leaves the cache in memory-only mode for the life of the process.
func Open(ctx context.Context, opts Options, logger *slog.Logger) *Degrading {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.RedisAddr == "" {
		logger.InfoContext(ctx, "prompt cache using process memory")
		return NewDegrading(nil, memory.New(), opts.OpTimeout, logger)
	}

	store, err := redis.New(redis.Options{
		Addr:      opts.RedisAddr,
		Password:  opts.RedisPassword,
		DB:        opts.RedisDB,
		KeyPrefix: opts.KeyPrefix,
	})
	if err != nil {
		logger.WarnContext(ctx, "redis cache unavailable, using process memory", slog.Any("error", err))
		return NewDegrading(nil, memory.New(), opts.OpTimeout, logger)
	}

	pingCtx := ctx
	if opts.OpTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.OpTimeout)
		defer cancel()
	}
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		logger.WarnContext(ctx, "redis cache unavailable, using process memory",
			slog.String("addr", opts.RedisAddr),
			slog.Any("error", err),
		)
		return NewDegrading(nil, memory.New(), opts.OpTimeout, logger)
	}

	logger.InfoContext(ctx, "prompt cache using redis", slog.String("addr", opts.RedisAddr))
	degrading := NewDegrading(store, memory.New(), opts.OpTimeout, logger)
	degrading.closer = store
	return degrading
}

func (d *Degrading) Get(ctx context.Context, key string) (string, bool, error) {
	if d.primary != nil {
		opCtx, cancel := d.withTimeout(ctx)
		value, ok, err := d.primary.Get(opCtx, key)
		cancel()
		if err == nil {
			return value, ok, nil
		}
		d.degraded(ctx, "get", err)
	}
	return d.fallback.Get(ctx, key)
}

func (d *Degrading) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if d.primary != nil {
		opCtx, cancel := d.withTimeout(ctx)
		err := d.primary.Set(opCtx, key, value, ttl)
		cancel()
		if err == nil {
			return nil
		}
		d.degraded(ctx, "set", err)
	}
	return d.fallback.Set(ctx, key, value, ttl)
}

// Backend names the store currently serving as primary.
func (d *Degrading) Backend() string {
	if d.primary != nil {
		return "redis"
	}
	return "memory"
}

// Ping checks the primary store. Memory-only mode is always healthy.
func (d *Degrading) Ping(ctx context.Context) error {
	p, ok := d.primary.(pinger)
	if !ok {
		return nil
	}
	opCtx, cancel := d.withTimeout(ctx)
	defer cancel()
	return p.Ping(opCtx)
}

func (d *Degrading) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

func (d *Degrading) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.opTimeout)
}

func (d *Degrading) degraded(ctx context.Context, op string, err error) {
	observability.IncrementCacheDegraded(op)
	d.logger.WarnContext(ctx, "cache backend error, using process memory",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("op", op),
		slog.Any("error", err),
	)
}
