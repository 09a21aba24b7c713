package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	DriverPostgres = "pgx"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
	DriverDuckDB   = "duckdb"
)

const (
	MCPTransportStdio = "stdio"
	MCPTransportHTTP  = "http"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	AI            AIConfig
	Audit         AuditConfig
	ObjectStore   ObjectStoreConfig
	MCP           MCPConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig describes the store generated queries run against. An empty
// DSN disables execution.
type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	MaxRows         int
	ReadOnlyTx      bool
}

// CacheConfig selects the prompt cache. An empty RedisAddr keeps the cache
// in process memory.
type CacheConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	KeyPrefix      string
	TTL            time.Duration
	OpTimeout      time.Duration
	DedupeInflight bool
}

type AIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type AuditConfig struct {
	Enabled       bool
	FlushInterval time.Duration
	BatchSize     int
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type MCPConfig struct {
	Transport string
	Address   string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ASKQL_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ASKQL_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "ASKQL_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "ASKQL_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "ASKQL_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "ASKQL_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "ASKQL_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },

		func() error { return applyString(lookup, "ASKQL_DB_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "ASKQL_DB_DSN", &cfg.Database.DSN) },
		func() error { return applyInt(lookup, "ASKQL_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "ASKQL_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "ASKQL_DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "ASKQL_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)
		},
		func() error { return applyDuration(lookup, "ASKQL_DB_QUERY_TIMEOUT", &cfg.Database.QueryTimeout) },
		func() error { return applyInt(lookup, "ASKQL_DB_MAX_ROWS", &cfg.Database.MaxRows) },
		func() error { return applyBool(lookup, "ASKQL_DB_READ_ONLY_TX", &cfg.Database.ReadOnlyTx) },

		func() error { return applyString(lookup, "ASKQL_CACHE_REDIS_ADDR", &cfg.Cache.RedisAddr) },
		func() error { return applyString(lookup, "ASKQL_CACHE_REDIS_PASSWORD", &cfg.Cache.RedisPassword) },
		func() error { return applyInt(lookup, "ASKQL_CACHE_REDIS_DB", &cfg.Cache.RedisDB) },
		func() error { return applyString(lookup, "ASKQL_CACHE_KEY_PREFIX", &cfg.Cache.KeyPrefix) },
		func() error { return applyDuration(lookup, "ASKQL_CACHE_TTL", &cfg.Cache.TTL) },
		func() error { return applyDuration(lookup, "ASKQL_CACHE_OP_TIMEOUT", &cfg.Cache.OpTimeout) },
		func() error { return applyBool(lookup, "ASKQL_CACHE_DEDUPE_INFLIGHT", &cfg.Cache.DedupeInflight) },

		func() error { return applyString(lookup, "ASKQL_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "ASKQL_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "ASKQL_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "ASKQL_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "ASKQL_AI_TIMEOUT", &cfg.AI.Timeout) },

		func() error { return applyBool(lookup, "ASKQL_AUDIT_ENABLED", &cfg.Audit.Enabled) },
		func() error { return applyDuration(lookup, "ASKQL_AUDIT_FLUSH_INTERVAL", &cfg.Audit.FlushInterval) },
		func() error { return applyInt(lookup, "ASKQL_AUDIT_BATCH_SIZE", &cfg.Audit.BatchSize) },
		func() error { return applyString(lookup, "ASKQL_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "ASKQL_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "ASKQL_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "ASKQL_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "ASKQL_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "ASKQL_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "ASKQL_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "ASKQL_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},

		func() error { return applyString(lookup, "ASKQL_MCP_TRANSPORT", &cfg.MCP.Transport) },
		func() error { return applyString(lookup, "ASKQL_MCP_ADDR", &cfg.MCP.Address) },

		func() error { return applyBool(lookup, "ASKQL_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "ASKQL_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	cfg.MCP.Transport = strings.ToLower(cfg.MCP.Transport)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite, DriverDuckDB:
	default:
		return fmt.Errorf("invalid ASKQL_DB_DRIVER: %q", c.Database.Driver)
	}
	if c.Database.MaxRows <= 0 {
		return fmt.Errorf("ASKQL_DB_MAX_ROWS must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("ASKQL_CACHE_TTL must be positive")
	}
	if c.Audit.Enabled && c.Audit.BatchSize <= 0 {
		return fmt.Errorf("ASKQL_AUDIT_BATCH_SIZE must be positive")
	}
	switch c.MCP.Transport {
	case MCPTransportStdio, MCPTransportHTTP:
	default:
		return fmt.Errorf("invalid ASKQL_MCP_TRANSPORT: %q", c.MCP.Transport)
	}
	return nil
}

// ExecutionEnabled reports whether a database is configured for running
// generated queries.
func (c Config) ExecutionEnabled() bool {
	return strings.TrimSpace(c.Database.DSN) != ""
}

// TranslationEnabled reports whether an LLM endpoint is configured. Without
// one every generation resolves to the fallback statement.
func (c Config) TranslationEnabled() bool {
	return strings.TrimSpace(c.AI.BaseURL) != "" && strings.TrimSpace(c.AI.APIKey) != ""
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "askql-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          DriverPostgres,
			DSN:             "",
			MaxOpenConns:    20,
			MaxIdleConns:    20,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    10 * time.Second,
			MaxRows:         1000,
			ReadOnlyTx:      true,
		},
		Cache: CacheConfig{
			RedisAddr:      "",
			KeyPrefix:      "cache:",
			TTL:            time.Hour,
			OpTimeout:      500 * time.Millisecond,
			DedupeInflight: true,
		},
		AI: AIConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0,
			Timeout:     30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:       false,
			FlushInterval: time.Minute,
			BatchSize:     500,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "askql-audit",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		MCP: MCPConfig{
			Transport: MCPTransportStdio,
			Address:   ":8090",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
