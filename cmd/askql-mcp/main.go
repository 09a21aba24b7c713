package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askql/askql/internal/bootstrap"
	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/mcpserver"
	"github.com/askql/askql/internal/observability"
)

var version = "dev"

func main() {
	cfg, err := config.LoadFromEnv("askql-mcp")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	// stdout carries the JSON-RPC stream in stdio mode.
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Build(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("failed to initialize", slog.Any("error", err))
		os.Exit(1)
	}
	defer components.Close()
	components.Start(ctx, logger)

	srv := mcpserver.New(mcpserver.Config{
		Name:    cfg.Service.Name,
		Version: version,
		Logger:  logger,
	}, components.Pipeline)

	if cfg.MCP.Transport == config.MCPTransportStdio {
		if err := srv.ServeStdio(); err != nil {
			logger.Error("mcp stdio server failed", slog.Any("error", err))
		}
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", srv.HTTPHandler())
	httpServer := &http.Server{
		Addr:        cfg.MCP.Address,
		Handler:     observability.TraceMiddleware(mux),
		ReadTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout: cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting mcp server", slog.String("transport", "http"), slog.String("addr", cfg.MCP.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("mcp server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down mcp server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = httpServer.Close()
	}
}
