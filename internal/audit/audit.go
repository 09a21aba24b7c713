// Package audit keeps a record of every handled prompt, outside the request
// path. Entries are buffered in memory and shipped to object storage as
// parquet batches.
package audit

import "time"

const (
	KindAsk      = "ask"
	KindGenerate = "generate"
)

type Entry struct {
	ID         string
	Time       time.Time
	TraceID    string
	Kind       string
	Prompt     string
	SQL        string
	Outcome    string
	CacheHit   bool
	Status     string
	Message    string
	RowCount   int
	DurationMs int64
}

// Recorder accepts entries without blocking the caller.
type Recorder interface {
	Record(entry Entry)
}

type Discard struct{}

func (Discard) Record(Entry) {}
