package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/askql/askql/internal/pipeline"
	"github.com/askql/askql/internal/query"
)

const maxPromptBodyBytes = 64 << 10

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type askResponse struct {
	Status    string      `json:"status"`
	SQL       string      `json:"sql"`
	Data      []query.Row `json:"data"`
	Message   string      `json:"message,omitempty"`
	CacheHit  bool        `json:"cache_hit"`
	Truncated bool        `json:"truncated,omitempty"`
}

type generateResponse struct {
	Status  string `json:"status"`
	SQL     string `json:"sql"`
	Message string `json:"message"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXECUTION_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return
	}
	prompt, ok := decodePrompt(w, r)
	if !ok {
		return
	}

	result, err := deps.Pipeline.Handle(r.Context(), prompt)
	if err != nil {
		writePipelineError(w, r, err)
		return
	}

	rows := result.Rows
	if rows == nil {
		rows = []query.Row{}
	}
	writeJSON(w, http.StatusOK, askResponse{
		Status:    string(result.Status),
		SQL:       result.SQL,
		Data:      rows,
		Message:   result.Message,
		CacheHit:  result.CacheHit,
		Truncated: result.Truncated,
	})
}

func handleGenerateSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "GENERATION_NOT_CONFIGURED", "sql generation is not configured", false, nil)
		return
	}
	prompt, ok := decodePrompt(w, r)
	if !ok {
		return
	}

	generation, err := deps.Pipeline.Generate(r.Context(), prompt)
	if err != nil {
		writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Status:  string(pipeline.StatusSuccess),
		SQL:     generation.SQL,
		Message: "",
	})
}

func decodePrompt(w http.ResponseWriter, r *http.Request) (string, bool) {
	var request promptRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPromptBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body is too large", false, map[string]any{"limit_bytes": tooLarge.Limit})
			return "", false
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid prompt request body", false, map[string]any{"details": err.Error()})
		return "", false
	}
	return request.Prompt, true
}

func writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyPrompt):
		writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", "prompt is required", false, nil)
	case errors.Is(err, pipeline.ErrExecutionNotConfigured):
		writeError(r.Context(), w, http.StatusNotImplemented, "EXECUTION_NOT_CONFIGURED", "query execution is not configured", false, nil)
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", "prompt handling failed", true, map[string]any{"details": err.Error()})
	}
}
