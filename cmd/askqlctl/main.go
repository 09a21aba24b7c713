package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/askql/askql/internal/cli/askqlctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("ASKQL_CLI_TIMEOUT")), 60*time.Second)
	options := askqlctl.Options{
		BaseURL: envOr("ASKQL_API_URL", "http://localhost:8080"),
		Timeout: timeout,
		NoColor: os.Getenv("NO_COLOR") != "",
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	code := askqlctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid ASKQL_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
