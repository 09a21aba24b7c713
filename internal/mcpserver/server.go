// Package mcpserver exposes SQL generation and, when a database is
// configured, the full ask pipeline as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/askql/askql/internal/nl2sql"
	"github.com/askql/askql/internal/pipeline"
	"github.com/askql/askql/internal/query"
)

const (
	ToolGenerateSQL = "generate_sql"
	ToolAsk         = "ask"
)

type Pipeline interface {
	Handle(ctx context.Context, prompt string) (pipeline.Result, error)
	Generate(ctx context.Context, prompt string) (nl2sql.Generation, error)
	ExecutionEnabled() bool
}

type Config struct {
	Name    string
	Version string
	Logger  *slog.Logger
}

type Server struct {
	mcp      *server.MCPServer
	pipeline Pipeline
	logger   *slog.Logger
}

type askResult struct {
	Status    string      `json:"status"`
	SQL       string      `json:"sql"`
	Data      []query.Row `json:"data"`
	Message   string      `json:"message,omitempty"`
	CacheHit  bool        `json:"cache_hit"`
	Truncated bool        `json:"truncated,omitempty"`
}

func New(cfg Config, p Pipeline) *Server {
	if cfg.Name == "" {
		cfg.Name = "askql"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		mcp: server.NewMCPServer(
			cfg.Name,
			cfg.Version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		pipeline: p,
		logger:   cfg.Logger,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool(ToolGenerateSQL,
		mcp.WithDescription("Translate a natural-language question about the ai_projects table into a single read-only SQL statement. The SQL is returned, not executed."),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("Question in natural language, for example 查询所有已交付项目的总预算"),
		),
	), s.handleGenerateSQL)

	if !s.pipeline.ExecutionEnabled() {
		return
	}
	s.mcp.AddTool(mcp.NewTool(ToolAsk,
		mcp.WithDescription("Answer a natural-language question about the ai_projects table by generating SQL and running it. Returns JSON with status, sql, data and cache_hit."),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("Question in natural language"),
		),
	), s.handleAsk)
}

// MCP returns the underlying server for custom transports.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks serving JSON-RPC over stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("starting mcp server", slog.String("transport", "stdio"))
	return server.ServeStdio(s.mcp)
}

// HTTPHandler serves the streamable HTTP transport. Mount it at /mcp.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

func (s *Server) handleGenerateSQL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	generation, err := s.pipeline.Generate(ctx, prompt)
	if err != nil {
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	s.logger.InfoContext(ctx, "mcp tool call",
		slog.String("tool", ToolGenerateSQL),
		slog.String("outcome", string(generation.Outcome)),
	)
	return mcp.NewToolResultText(generation.SQL), nil
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.pipeline.Handle(ctx, prompt)
	if err != nil {
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	s.logger.InfoContext(ctx, "mcp tool call",
		slog.String("tool", ToolAsk),
		slog.String("status", string(result.Status)),
		slog.Bool("cache_hit", result.CacheHit),
	)

	rows := result.Rows
	if rows == nil {
		rows = []query.Row{}
	}
	encoded, err := json.Marshal(askResult{
		Status:    string(result.Status),
		SQL:       result.SQL,
		Data:      rows,
		Message:   result.Message,
		CacheHit:  result.CacheHit,
		Truncated: result.Truncated,
	})
	if err != nil {
		return nil, err
	}
	toolResult := mcp.NewToolResultText(string(encoded))
	toolResult.IsError = result.Status != pipeline.StatusSuccess
	return toolResult, nil
}

func toolErrorMessage(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrEmptyPrompt):
		return "prompt must not be empty"
	case errors.Is(err, pipeline.ErrExecutionNotConfigured):
		return "query execution is not configured"
	default:
		return err.Error()
	}
}
