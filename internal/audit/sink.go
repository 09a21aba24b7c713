package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

type Config struct {
	Service       string
	FlushInterval time.Duration
	BatchSize     int
	// MaxBuffered bounds memory while the object store is unreachable.
	// Entries recorded beyond it are dropped.
	MaxBuffered int
}

// Sink buffers entries and uploads them from Run. Record never blocks on I/O.
type Sink struct {
	Store  storage.ObjectStore
	Config Config
	Logger *slog.Logger
	Clock  func() time.Time
	NewID  func() string

	mu      sync.Mutex
	pending []Entry
	dropped int64
}

func NewSink(store storage.ObjectStore, cfg Config, logger *slog.Logger) *Sink {
	s := &Sink{Store: store, Config: cfg, Logger: logger}
	s.ensureDefaults()
	return s
}

func (s *Sink) Record(entry Entry) {
	s.ensureDefaults()
	if entry.ID == "" {
		entry.ID = s.NewID()
	}
	if entry.Time.IsZero() {
		entry.Time = s.Clock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) >= s.Config.MaxBuffered {
		s.dropped++
		return
	}
	s.pending = append(s.pending, entry)
}

// Pending reports the number of buffered entries.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Run flushes on every tick until ctx is done, then makes a final flush with
// a short detached deadline.
func (s *Sink) Run(ctx context.Context) error {
	s.ensureDefaults()

	ticker := time.NewTicker(s.Config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			err := s.Flush(flushCtx)
			cancel()
			if err != nil {
				s.Logger.ErrorContext(ctx, "final audit flush failed", slog.Any("error", err))
			}
			return nil
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				s.Logger.ErrorContext(ctx, "audit flush failed", slog.Any("error", err))
			}
		}
	}
}

// Flush uploads everything buffered so far in batches of Config.BatchSize.
// A batch that fails to upload is put back at the front of the buffer.
func (s *Sink) Flush(ctx context.Context) error {
	s.ensureDefaults()

	s.mu.Lock()
	entries := s.pending
	s.pending = nil
	dropped := s.dropped
	s.dropped = 0
	s.mu.Unlock()

	if dropped > 0 {
		s.Logger.WarnContext(ctx, "audit entries dropped, buffer full", slog.Int64("dropped", dropped))
	}

	for start := 0; start < len(entries); start += s.Config.BatchSize {
		end := start + s.Config.BatchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := s.upload(ctx, entries[start:end]); err != nil {
			observability.ObserveAuditFlush("error")
			s.requeue(entries[start:])
			return err
		}
		observability.ObserveAuditFlush("ok")
	}
	return nil
}

func (s *Sink) upload(ctx context.Context, batch []Entry) error {
	if s.Store == nil {
		return fmt.Errorf("object store is required")
	}
	encoded, err := EncodeEntries(batch)
	if err != nil {
		return fmt.Errorf("encode audit batch: %w", err)
	}
	key, err := storage.BuildAuditFilePath(s.Config.Service, s.Clock(), s.NewID())
	if err != nil {
		return fmt.Errorf("build audit path: %w", err)
	}
	info, err := s.Store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: parquetContentType})
	if err != nil {
		return fmt.Errorf("upload audit batch: %w", err)
	}
	s.Logger.DebugContext(ctx, "audit batch uploaded",
		slog.String("key", info.Key),
		slog.Int64("records", encoded.RecordCount),
		slog.Int("bytes", len(encoded.Data)),
	)
	return nil
}

func (s *Sink) requeue(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make([]Entry, 0, len(entries)+len(s.pending))
	merged = append(merged, entries...)
	merged = append(merged, s.pending...)
	if len(merged) > s.Config.MaxBuffered {
		s.dropped += int64(len(merged) - s.Config.MaxBuffered)
		merged = merged[:s.Config.MaxBuffered]
	}
	s.pending = merged
}

func (s *Sink) ensureDefaults() {
	if s.Config.Service == "" {
		s.Config.Service = "askql"
	}
	if s.Config.FlushInterval <= 0 {
		s.Config.FlushInterval = time.Minute
	}
	if s.Config.BatchSize <= 0 {
		s.Config.BatchSize = 500
	}
	if s.Config.MaxBuffered <= 0 {
		s.Config.MaxBuffered = s.Config.BatchSize * 20
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.Clock == nil {
		s.Clock = func() time.Time { return time.Now().UTC() }
	}
	if s.NewID == nil {
		s.NewID = uuid.NewString
	}
}
