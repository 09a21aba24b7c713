// Package askqlctl implements the askql command line client.
package askqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	NoColor    bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// exitError carries a process exit code for failures that happen after
// argument parsing succeeded.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func failed(format string, args ...any) error {
	return &exitError{code: 1, err: fmt.Errorf(format, args...)}
}

// Run executes one askqlctl invocation and returns the process exit code:
// 0 on success, 1 on request or server failure, 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	if defaults.Stdout == nil {
		defaults.Stdout = io.Discard
	}
	if defaults.Stderr == nil {
		defaults.Stderr = io.Discard
	}

	root := NewRootCommand(defaults)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintln(defaults.Stderr, err)
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return 2
}

type globalFlags struct {
	server  string
	timeout time.Duration
	output  string
}

func NewRootCommand(defaults Options) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "askqlctl",
		Short:         "Ask natural-language questions of an askql server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			switch flags.output {
			case OutputTable, OutputJSON, OutputYAML:
				return nil
			default:
				return fmt.Errorf("invalid --output %q: want table, json or yaml", flags.output)
			}
		},
	}
	root.SetOut(defaults.Stdout)
	root.SetErr(defaults.Stderr)

	root.PersistentFlags().StringVar(&flags.server, "server", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "askql API base URL")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout")
	root.PersistentFlags().StringVarP(&flags.output, "output", "o", OutputTable, "output format: table|json|yaml")

	newClient := func() *client {
		httpClient := defaults.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: flags.timeout}
		}
		return &client{baseURL: strings.TrimRight(flags.server, "/"), http: httpClient}
	}
	out := func(cmd *cobra.Command) *printer {
		return newPrinter(cmd.OutOrStdout(), flags.output, defaults.NoColor)
	}

	root.AddCommand(
		newAskCommand(newClient, out),
		newGenerateCommand(newClient, out),
		newStatusCommand("health", "Check server liveness", "/v1/health", newClient, out),
		newStatusCommand("ready", "Check server readiness", "/v1/ready", newClient, out),
		newStatusCommand("schema", "Show the table schema used for generation", "/v1/schema", newClient, out),
	)
	return root
}

func newAskCommand(newClient func() *client, out func(*cobra.Command) *printer) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Generate SQL for a prompt and run it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := newClient().postPrompt(cmd.Context(), "/v1/ask", strings.Join(args, " "))
			if err != nil {
				return err
			}
			var response askResponse
			if err := json.Unmarshal(body, &response); err != nil {
				return failed("decode ask response: %v", err)
			}
			if err := out(cmd).ask(body, response); err != nil {
				return failed("render ask response: %v", err)
			}
			if response.Status != "success" {
				return failed("query failed: %s", response.Message)
			}
			return nil
		},
	}
}

func newGenerateCommand(newClient func() *client, out func(*cobra.Command) *printer) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate SQL for a prompt without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := newClient().postPrompt(cmd.Context(), "/v1/generate-sql", strings.Join(args, " "))
			if err != nil {
				return err
			}
			var response generateResponse
			if err := json.Unmarshal(body, &response); err != nil {
				return failed("decode generate response: %v", err)
			}
			if err := out(cmd).generate(body, response); err != nil {
				return failed("render generate response: %v", err)
			}
			return nil
		},
	}
}

func newStatusCommand(use, short, path string, newClient func() *client, out func(*cobra.Command) *printer) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short + " (GET " + path + ")",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := newClient().get(cmd.Context(), path)
			if err != nil {
				return err
			}
			if err := out(cmd).document(body); err != nil {
				return failed("render response: %v", err)
			}
			return nil
		},
	}
}

type client struct {
	baseURL string
	http    *http.Client
}

func (c *client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *client) postPrompt(ctx context.Context, path, prompt string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return nil, failed("encode prompt: %v", err)
	}
	return c.do(ctx, http.MethodPost, path, payload)
}

func (c *client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, failed("build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, failed("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failed("read response: %v", err)
	}
	if resp.StatusCode >= 400 {
		return nil, failed("http %d: %s", resp.StatusCode, serverMessage(responseBody))
	}
	return responseBody, nil
}

func serverMessage(body []byte) string {
	var envelope struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.ErrorCode != "" {
		return envelope.ErrorCode + ": " + envelope.Message
	}
	return strings.TrimSpace(string(body))
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
