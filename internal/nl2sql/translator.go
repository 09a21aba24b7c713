package nl2sql

import "context"

// Schema describes the single table the model may query.
type Schema struct {
	TableName string   `json:"table_name"`
	Columns   []string `json:"columns"`
}

// DefaultSchema is the ai_projects table provisioned by askql-migrate.
var DefaultSchema = Schema{
	TableName: "ai_projects",
	Columns: []string{
		"id",
		"architect_name",
		"project_name",
		"client_industry",
		"tech_stack",
		"episode_count",
		"total_budget",
		"completion_rate",
		"start_date",
		"end_date",
		"status",
		"ai_tools_used",
		"performance_score",
	},
}

type Request struct {
	NaturalLanguage string `json:"natural_language"`
	Schema          Schema `json:"schema"`
}

// Result is the untrusted model output.
type Result struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
