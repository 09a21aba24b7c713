package nl2sql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenAITranslatorSendsSchemaPrompt(t *testing.T) {
	var captured struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		authHeader = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeCompletion(w, "```sql\nSELECT * FROM ai_projects WHERE status = '已交付';\n```")
	}))
	defer server.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{
		BaseURL: server.URL + "/api/v3",
		APIKey:  "test-key",
		Model:   "doubao-pro",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}

	result, err := translator.Translate(context.Background(), Request{
		NaturalLanguage: "  已交付的项目  ",
		Schema:          DefaultSchema,
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if !strings.Contains(result.Text, "status = '已交付'") {
		t.Fatalf("Translate() text = %q", result.Text)
	}
	if result.Model != "doubao-pro" {
		t.Fatalf("Translate() model = %q", result.Model)
	}
	if authHeader != "Bearer test-key" {
		t.Fatalf("Authorization = %q", authHeader)
	}
	if captured.Model != "doubao-pro" {
		t.Fatalf("request model = %q", captured.Model)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("request messages = %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || !strings.Contains(captured.Messages[0].Content, "Table: ai_projects") {
		t.Fatalf("system message = %+v", captured.Messages[0])
	}
	if captured.Messages[1].Role != "user" || captured.Messages[1].Content != "已交付的项目" {
		t.Fatalf("user message = %+v", captured.Messages[1])
	}
}

func TestOpenAITranslatorReturnsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{BaseURL: server.URL, APIKey: "bad"})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}
	if _, err := translator.Translate(context.Background(), Request{NaturalLanguage: "list", Schema: DefaultSchema}); err == nil {
		t.Fatal("expected upstream error")
	}
}

func TestOpenAITranslatorRejectsEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(w, "   ")
	}))
	defer server.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}
	if _, err := translator.Translate(context.Background(), Request{NaturalLanguage: "list", Schema: DefaultSchema}); err == nil {
		t.Fatal("expected empty content error")
	}
}

func TestNewOpenAITranslatorRequiresCredentials(t *testing.T) {
	if _, err := NewOpenAITranslator(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected missing base URL error")
	}
	if _, err := NewOpenAITranslator(OpenAIConfig{BaseURL: "http://localhost"}); err == nil {
		t.Fatal("expected missing api key error")
	}
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role":    "assistant",
				"content": content,
			},
		}},
	})
}
