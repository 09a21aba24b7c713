package audit

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
)

type EncodeResult struct {
	Data        []byte
	RecordCount int64
	MinTime     *time.Time
	MaxTime     *time.Time
}

type parquetEntry struct {
	ID           string `parquet:"id"`
	RecordedAtMs int64  `parquet:"recorded_at_unix_ms"`
	TraceID      string `parquet:"trace_id"`
	Kind         string `parquet:"kind"`
	Prompt       string `parquet:"prompt"`
	SQL          string `parquet:"sql"`
	Outcome      string `parquet:"outcome"`
	CacheHit     bool   `parquet:"cache_hit"`
	Status       string `parquet:"status"`
	Message      string `parquet:"message"`
	RowCount     int64  `parquet:"row_count"`
	DurationMs   int64  `parquet:"duration_ms"`
}

func EncodeEntries(entries []Entry) (EncodeResult, error) {
	if len(entries) == 0 {
		return EncodeResult{}, fmt.Errorf("entries are required")
	}

	rows := make([]parquetEntry, 0, len(entries))
	var minTime *time.Time
	var maxTime *time.Time

	for _, entry := range entries {
		if entry.ID == "" {
			return EncodeResult{}, fmt.Errorf("entry id is required")
		}
		recordedAt := entry.Time.UTC()
		rows = append(rows, parquetEntry{
			ID:           entry.ID,
			RecordedAtMs: recordedAt.UnixMilli(),
			TraceID:      entry.TraceID,
			Kind:         entry.Kind,
			Prompt:       entry.Prompt,
			SQL:          entry.SQL,
			Outcome:      entry.Outcome,
			CacheHit:     entry.CacheHit,
			Status:       entry.Status,
			Message:      entry.Message,
			RowCount:     int64(entry.RowCount),
			DurationMs:   entry.DurationMs,
		})

		if !entry.Time.IsZero() {
			if minTime == nil || recordedAt.Before(*minTime) {
				copy := recordedAt
				minTime = &copy
			}
			if maxTime == nil || recordedAt.After(*maxTime) {
				copy := recordedAt
				maxTime = &copy
			}
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetEntry](buf)
	if _, err := writer.Write(rows); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return EncodeResult{
		Data:        buf.Bytes(),
		RecordCount: int64(len(rows)),
		MinTime:     minTime,
		MaxTime:     maxTime,
	}, nil
}
