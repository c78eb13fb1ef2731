package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Catalog backends accepted in CatalogConfig.Backend.
const (
	CatalogBackendHTTP     = "http"
	CatalogBackendPostgres = "postgres"
)

// Config holds all configuration for ekaya-mapper.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration (used by the serve command)
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Suggestion provider
	LLM LLMConfig `yaml:"llm"`

	// Target property catalog (schema provider, feedback sink, property creation)
	Catalog CatalogConfig `yaml:"catalog"`

	// Database configuration (PostgreSQL), used when catalog.backend is postgres
	Database DatabaseConfig `yaml:"database"`

	// Ingestion service the exported files are forwarded to
	Loader LoaderConfig `yaml:"loader"`

	Export  ExportConfig  `yaml:"export"`
	Suggest SuggestConfig `yaml:"suggest"`
}

// LLMConfig selects and configures the generative-text suggestion provider.
type LLMConfig struct {
	Provider       string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	BaseURL        string  `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model          string  `yaml:"model" env:"LLM_MODEL" env-default:""`
	APIKey         string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature    float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens      int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"2000"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"120"`
}

// Timeout returns the per-request timeout.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IsAvailable returns true if enough is configured to create a client.
func (c *LLMConfig) IsAvailable() bool {
	if c.Model == "" {
		return false
	}
	switch strings.ToLower(c.Provider) {
	case "", "openai":
		return c.BaseURL != ""
	default:
		return c.APIKey != ""
	}
}

// CatalogConfig configures where target properties are read from and written to.
type CatalogConfig struct {
	// Backend is http (REST property resource) or postgres (local table).
	Backend        string `yaml:"backend" env:"CATALOG_BACKEND" env-default:"http"`
	BaseURL        string `yaml:"base_url" env:"CATALOG_BASE_URL" env-default:""`
	Resource       string `yaml:"resource" env:"CATALOG_RESOURCE" env-default:"LineItemProperties"`
	APIKey         string `yaml:"-" env:"CATALOG_API_KEY"` // Secret - not in YAML
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"CATALOG_TIMEOUT_SECONDS" env-default:"30"`
}

// Timeout returns the per-request timeout.
func (c *CatalogConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_mapper"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// LoaderConfig configures the ingestion service.
type LoaderConfig struct {
	BaseURL string `yaml:"base_url" env:"LOADER_BASE_URL" env-default:"http://localhost:810/api/v2"`
	Token   string `yaml:"-" env:"LOADER_TOKEN"` // Secret - not in YAML
	// ClassificationUID selects the loader classification the job is created under.
	ClassificationUID string `yaml:"classification_uid" env:"LOADER_CLASSIFICATION_UID" env-default:"LDRC_Load_BoM_LineItem"`
	WorkflowName      string `yaml:"workflow_name" env:"LOADER_WORKFLOW_NAME" env-default:"HEX DTO Loader Workflow"`
	JobDescription    string `yaml:"job_description" env:"LOADER_JOB_DESCRIPTION" env-default:"ekaya-mapper export"`
	TenantID          string `yaml:"tenant_id" env:"LOADER_TENANT_ID" env-default:""`
	OrgID             string `yaml:"org_id" env:"LOADER_ORG_ID" env-default:""`
	TimeoutSeconds    int    `yaml:"timeout_seconds" env:"LOADER_TIMEOUT_SECONDS" env-default:"60"`
}

// Timeout returns the per-request timeout.
func (c *LoaderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ExportConfig controls the narrow/long export encodings.
type ExportConfig struct {
	// StandardColumnsStr is the comma-separated, ordered narrow-table column list.
	StandardColumnsStr string `yaml:"standard_columns" env:"EXPORT_STANDARD_COLUMNS" env-default:"Line Number,Tag Number,Description,Quantity,Unit"`
	// StandardColumns is parsed from StandardColumnsStr (not from config file).
	StandardColumns []string `yaml:"-"`
	// IdentifierTarget is the target whose mapped source column supplies long-table line ids.
	IdentifierTarget string `yaml:"identifier_target" env:"EXPORT_IDENTIFIER_TARGET" env-default:"Line Number"`
	// FallbackPrefix is prepended to derived property names when a target has no stored identifier.
	FallbackPrefix string `yaml:"fallback_prefix" env:"EXPORT_FALLBACK_PREFIX" env-default:"Prop_"`
	NarrowFileName string `yaml:"narrow_file_name" env:"EXPORT_NARROW_FILE_NAME" env-default:"common_properties.csv"`
	LongFileName   string `yaml:"long_file_name" env:"EXPORT_LONG_FILE_NAME" env-default:"long_properties.csv"`
}

// SuggestConfig tunes the suggestion run.
type SuggestConfig struct {
	HighlightMillis int `yaml:"highlight_ms" env:"SUGGEST_HIGHLIGHT_MS" env-default:"3000"`
}

// HighlightWindow returns how long automated assignments stay highlighted.
func (c *SuggestConfig) HighlightWindow() time.Duration {
	return time.Duration(c.HighlightMillis) * time.Millisecond
}

// Load reads configuration from path (config.yaml when empty) with environment
// variable overrides. A missing file is not an error; env and defaults apply.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		if !isNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.Export.StandardColumns = parseList(c.Export.StandardColumnsStr)
	if len(c.Export.StandardColumns) == 0 {
		return fmt.Errorf("export.standard_columns must name at least one column")
	}
	c.Database.Host = ResolveHostForDocker(c.Database.Host)
	c.LLM.BaseURL = ResolveURLForDocker(c.LLM.BaseURL)
	c.Catalog.BaseURL = ResolveURLForDocker(c.Catalog.BaseURL)
	c.Loader.BaseURL = ResolveURLForDocker(c.Loader.BaseURL)
	return nil
}

func (c *Config) validate() error {
	switch c.Catalog.Backend {
	case CatalogBackendHTTP, CatalogBackendPostgres:
	default:
		return fmt.Errorf("catalog.backend must be %q or %q, got %q", CatalogBackendHTTP, CatalogBackendPostgres, c.Catalog.Backend)
	}
	if c.Suggest.HighlightMillis < 0 {
		return fmt.Errorf("suggest.highlight_ms must not be negative")
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// parseList splits a comma-separated list, trimming entries and dropping empties.
func parseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
