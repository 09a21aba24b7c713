package nl2sql

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/sqlguard"
)

type Outcome string

const (
	OutcomeGenerated      Outcome = "generated"
	OutcomeRejected       Outcome = "rejected"
	OutcomeUpstreamFailed Outcome = "upstream_failed"
)

// Generation always carries executable SQL. When Outcome is not
// OutcomeGenerated, SQL is sqlguard.FallbackSQL.
type Generation struct {
	SQL     string  `json:"sql"`
	Outcome Outcome `json:"outcome"`
	Model   string  `json:"model,omitempty"`
}

// Fallback reports whether the fallback statement was substituted.
func (g Generation) Fallback() bool {
	return g.Outcome != OutcomeGenerated
}

type Generator struct {
	translator Translator
	schema     Schema
	logger     *slog.Logger
	clock      func() time.Time
}

// NewGenerator returns a Generator over translator. A nil translator is
// allowed and makes every generation fall back.
func NewGenerator(translator Translator, schema Schema, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if schema.TableName == "" {
		schema = DefaultSchema
	}
	return &Generator{
		translator: translator,
		schema:     schema,
		logger:     logger,
		clock:      time.Now,
	}
}

// Generate never fails: upstream errors and rejected output both resolve to
// the fallback statement.
func (g *Generator) Generate(ctx context.Context, prompt string) Generation {
	start := g.clock()
	generation := g.generate(ctx, prompt)
	observability.ObserveGeneration(string(generation.Outcome), g.clock().Sub(start))
	return generation
}

func (g *Generator) generate(ctx context.Context, prompt string) Generation {
	traceID := observability.TraceIDFromContext(ctx)
	if g.translator == nil {
		g.logger.WarnContext(ctx, "sql generation skipped: no translator configured",
			slog.String("trace_id", traceID),
		)
		return Generation{SQL: sqlguard.FallbackSQL, Outcome: OutcomeUpstreamFailed}
	}

	result, err := g.translator.Translate(ctx, Request{
		NaturalLanguage: prompt,
		Schema:          g.schema,
	})
	if err != nil {
		g.logger.WarnContext(ctx, "sql generation failed, using fallback",
			slog.String("trace_id", traceID),
			slog.Any("error", err),
		)
		return Generation{SQL: sqlguard.FallbackSQL, Outcome: OutcomeUpstreamFailed}
	}

	sqlText, ok := sqlguard.Sanitize(result.Text)
	if !ok {
		g.logger.WarnContext(ctx, "model output rejected, using fallback",
			slog.String("trace_id", traceID),
			slog.String("model", result.Model),
			slog.String("output_head", head(result.Text, 50)),
		)
		return Generation{SQL: sqlText, Outcome: OutcomeRejected, Model: result.Model}
	}
	return Generation{SQL: sqlText, Outcome: OutcomeGenerated, Model: result.Model}
}

func head(value string, n int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= n {
		return value
	}
	return string(runes[:n]) + "..."
}
