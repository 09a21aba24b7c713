package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/askql/askql/internal/config"
)

func TestNewLoggerAddsServiceAttributes(t *testing.T) {
	cfg := config.Config{
		Profile:       config.ProfileTest,
		Service:       config.ServiceConfig{Name: "askql-api"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo, LogJSON: true},
	}
	var buf bytes.Buffer
	logger := NewLogger(cfg, &buf)
	logger.DebugContext(context.Background(), "hidden")
	logger.InfoContext(context.Background(), "visible")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "visible" {
		t.Fatalf("msg = %v", entry["msg"])
	}
	if entry["service"] != "askql-api" || entry["profile"] != "test" {
		t.Fatalf("entry = %#v", entry)
	}
}

func TestNewLoggerToleratesNilWriter(t *testing.T) {
	logger := NewLogger(config.Config{}, nil)
	logger.Info("discarded")
}
