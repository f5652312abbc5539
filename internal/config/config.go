// Package config loads server configuration from OBSIDIAN_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloo-solutions/obsidian/internal/chunker"
	"github.com/cloo-solutions/obsidian/internal/logging"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "OBSIDIAN"

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Empty DatabaseURL selects the in-memory store.
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"obsidian-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey         string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL        string  `envconfig:"OPENAI_BASE_URL"`
	OpenAIEmbeddingModel string  `envconfig:"OPENAI_EMBEDDING_MODEL"`
	OpenAIChatModel      string  `envconfig:"OPENAI_CHAT_MODEL"`
	OpenAIRPS            float64 `envconfig:"OPENAI_RPS" default:"5"`
	// EmbeddingDimension is the vector width of either embedder; 0 picks the
	// embedder's own default.
	EmbeddingDimension int `envconfig:"EMBEDDING_DIMENSION" default:"0"`

	ChunkWindowTokens  int `envconfig:"CHUNK_WINDOW_TOKENS" default:"600"`
	ChunkOverlapTokens int `envconfig:"CHUNK_OVERLAP_TOKENS" default:"100"`

	QueryTopK       int     `envconfig:"QUERY_TOP_K" default:"5"`
	QueryMinScore   float64 `envconfig:"QUERY_MIN_SCORE" default:"0.01"`
	PreviewChars    int     `envconfig:"PREVIEW_CHARS" default:"200"`
	MaxContextChars int     `envconfig:"MAX_CONTEXT_CHARS" default:"12000"`

	IndexPolicy     string        `envconfig:"INDEX_POLICY" default:"immediate"`
	IngestWorkers   int           `envconfig:"INGEST_WORKERS" default:"4"`
	RebuildInterval time.Duration `envconfig:"REBUILD_INTERVAL" default:"1m"`
	RebuildOnStart  bool          `envconfig:"REBUILD_ON_START" default:"false"`
	KeepVersions    int           `envconfig:"KEEP_VERSIONS" default:"2"`

	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"52428800"`
	MaxJSONBytes   int64 `envconfig:"MAX_JSON_BYTES" default:"1048576"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// EnvVar is one environment variable read by Load.
type EnvVar struct {
	Name    string
	Default string
}

// EnvVars lists the variables Load reads, prefixed, in declaration order.
func EnvVars() ([]EnvVar, error) {
	var buf bytes.Buffer
	format := "{{range .}}{{usage_key .}}\t{{usage_default .}}\n{{end}}"
	if err := envconfig.Usagef(envPrefix, &Config{}, &buf, format); err != nil {
		return nil, fmt.Errorf("failed to list config variables: %w", err)
	}

	var vars []EnvVar
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		name, def, _ := strings.Cut(line, "\t")
		vars = append(vars, EnvVar{Name: name, Default: def})
	}
	return vars, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if err := c.ChunkerConfig().Validate(); err != nil {
		return err
	}
	switch {
	case c.QueryTopK <= 0:
		return fmt.Errorf("QUERY_TOP_K must be positive, got %d", c.QueryTopK)
	case c.QueryMinScore < 0 || c.QueryMinScore > 1:
		return fmt.Errorf("QUERY_MIN_SCORE must be within [0, 1], got %v", c.QueryMinScore)
	case c.PreviewChars <= 0:
		return fmt.Errorf("PREVIEW_CHARS must be positive, got %d", c.PreviewChars)
	case c.MaxContextChars <= 0:
		return fmt.Errorf("MAX_CONTEXT_CHARS must be positive, got %d", c.MaxContextChars)
	case c.EmbeddingDimension < 0:
		return fmt.Errorf("EMBEDDING_DIMENSION cannot be negative, got %d", c.EmbeddingDimension)
	case c.KeepVersions < 1:
		return fmt.Errorf("KEEP_VERSIONS must be at least 1, got %d", c.KeepVersions)
	case c.RebuildInterval < 0:
		return fmt.Errorf("REBUILD_INTERVAL cannot be negative, got %s", c.RebuildInterval)
	}
	switch strings.ToLower(c.IndexPolicy) {
	case "immediate", "deferred":
	default:
		return fmt.Errorf("INDEX_POLICY must be immediate or deferred, got %q", c.IndexPolicy)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

func (c *Config) ChunkerConfig() chunker.Config {
	return chunker.Config{
		WindowTokens:  c.ChunkWindowTokens,
		OverlapTokens: c.ChunkOverlapTokens,
	}
}

func (c *Config) LoggingConfig() logging.Config {
	level := c.LogLevel
	if c.Debug {
		level = "debug"
	}
	return logging.Config{Level: level, Format: c.LogFormat}
}
