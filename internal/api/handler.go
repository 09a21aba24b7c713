package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/nl2sql"
	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/pipeline"
)

type ReadinessCheck func(ctx context.Context) error

type Pipeline interface {
	Handle(ctx context.Context, prompt string) (pipeline.Result, error)
	Generate(ctx context.Context, prompt string) (nl2sql.Generation, error)
}

type Dependencies struct {
	Logger    *slog.Logger
	Readiness ReadinessCheck
	// Advisories are reported by /v1/ready but never make it fail.
	Advisories        map[string]ReadinessCheck
	DependencyTimeout time.Duration
	Pipeline          Pipeline
	Schema            nl2sql.Schema
	UI                http.Handler
	// GenerateOnly serves SQL generation without execution or the UI.
	GenerateOnly bool
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		handleReady(deps, w, r)
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/schema", func(w http.ResponseWriter, _ *http.Request) {
		schema := deps.Schema
		if schema.TableName == "" {
			schema = nl2sql.DefaultSchema
		}
		writeJSON(w, http.StatusOK, schema)
	})
	mux.HandleFunc("POST /v1/generate-sql", func(w http.ResponseWriter, r *http.Request) {
		handleGenerateSQL(deps, w, r)
	})

	if !deps.GenerateOnly {
		mux.HandleFunc("POST /v1/ask", func(w http.ResponseWriter, r *http.Request) {
			handleAsk(deps, w, r)
		})
		if deps.UI != nil {
			mux.Handle("GET /{path...}", deps.UI)
		}
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares,
			observability.LoggingMiddleware(deps.Logger),
			observability.RecoverMiddleware(deps.Logger),
		)
	}
	return chain(mux, middlewares...)
}

func handleReady(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	timeout := deps.DependencyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	if deps.Readiness != nil {
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
	}

	response := map[string]any{"status": "ready"}
	if len(deps.Advisories) > 0 {
		checks := make(map[string]string, len(deps.Advisories))
		for name, check := range deps.Advisories {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				checks[name] = "degraded: " + err.Error()
				continue
			}
			checks[name] = "ok"
		}
		response["checks"] = checks
	}
	writeJSON(w, http.StatusOK, response)
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
