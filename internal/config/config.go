// Package config loads the runtime configuration: provider connections,
// pipeline limits, and ambient settings. Values come from defaults, then a
// YAML file, then environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	QueryGeneration QueryGenerationConfig `yaml:"query_generation"`
	QueryExecution  QueryExecutionConfig  `yaml:"query_execution"`
	RAG             RAGConfig             `yaml:"rag"`
	Narration       NarrationConfig       `yaml:"narration"`
	AutoSync        AutoSyncConfig        `yaml:"auto_sync"`

	Graph     GraphConfig     `yaml:"graph"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`

	// EntitiesPath and PatternsPath point to the entity-registry and
	// query-pattern YAML documents loaded at startup.
	EntitiesPath string `yaml:"entities_path"`
	PatternsPath string `yaml:"patterns_path"`

	Logging LoggingConfig `yaml:"logging"`
}

// QueryGenerationConfig bounds the generator.
type QueryGenerationConfig struct {
	DefaultLimit      int     `yaml:"default_limit" validate:"gt=0"`
	MaxLimit          int     `yaml:"max_limit" validate:"gt=0"`
	AllowWrite        bool    `yaml:"allow_write_operations"`
	MaxRetries        int     `yaml:"max_retries" validate:"gte=0"`
	Temperature       float64 `yaml:"temperature" validate:"gte=0,lte=1"`
	MaxComplexity     int     `yaml:"max_complexity" validate:"gt=0"`
	EnableTemplates   bool    `yaml:"enable_templates"`
	TemplateThreshold float64 `yaml:"template_confidence_threshold" validate:"gte=0,lte=1"`
	Timeout           string  `yaml:"timeout"`
	Explain           bool    `yaml:"explain"`
	ProjectContext    string  `yaml:"project_context"`
}

// QueryExecutionConfig bounds the executor.
type QueryExecutionConfig struct {
	DefaultTimeout       string `yaml:"default_timeout"`
	MaxTimeout           string `yaml:"max_timeout"`
	DefaultLimit         int    `yaml:"default_limit" validate:"gt=0"`
	MaxLimit             int    `yaml:"max_limit" validate:"gt=0"`
	ReadOnlyMode         bool   `yaml:"read_only_mode"`
	DefaultFormat        string `yaml:"default_format" validate:"oneof=table graph json"`
	EnableExplain        bool   `yaml:"enable_explain"`
	SlowQueryThresholdMs int64  `yaml:"slow_query_threshold_ms" validate:"gte=0"`
}

// RAGConfig bounds the context retriever.
type RAGConfig struct {
	Collection          string  `yaml:"collection"`
	VectorSearchLimit   int     `yaml:"vector_search_limit" validate:"gt=0"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gte=0,lte=1"`
	IncludeSchema       bool    `yaml:"include_schema"`
	IncludeExamples     bool    `yaml:"include_examples"`
	ExamplesPerLabel    int     `yaml:"examples_per_label" validate:"gt=0"`
	SchemaTTL           string  `yaml:"schema_ttl"`
}

// NarrationConfig bounds the answer narrator.
type NarrationConfig struct {
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=1"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gt=0"`
}

// AutoSyncOperations selects which lifecycle events dispatch ingestion.
type AutoSyncOperations struct {
	Create bool `yaml:"create"`
	Update bool `yaml:"update"`
	Delete bool `yaml:"delete"`
}

// AutoSyncConfig controls boundary-triggered ingestion. When Queue is set,
// operations are handed to a caller-supplied queue instead of running
// inline. FailSilently lets the dispatcher log-and-swallow consistency
// errors; critical inconsistencies are always surfaced regardless.
type AutoSyncConfig struct {
	Enabled      bool               `yaml:"enabled"`
	Queue        bool               `yaml:"queue"`
	Operations   AutoSyncOperations `yaml:"operations"`
	FailSilently bool               `yaml:"fail_silently"`
}

// GraphConfig selects and connects the graph store.
type GraphConfig struct {
	Provider string `yaml:"provider" validate:"oneof=neo4j sqlite memory"`
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Path     string `yaml:"path"` // sqlite
}

// VectorConfig selects and connects the vector store.
type VectorConfig struct {
	Provider string `yaml:"provider" validate:"oneof=qdrant sqlite"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	APIKey   string `yaml:"api_key"`
	UseTLS   bool   `yaml:"use_tls"`
	Path     string `yaml:"path"` // sqlite
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" validate:"oneof=genai ollama"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	CacheSize int    `yaml:"cache_size" validate:"gte=0"`
}

// LLMConfig selects the language-model provider.
type LLMConfig struct {
	Provider string `yaml:"provider" validate:"oneof=gemini openai"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// LoggingConfig controls the log sink.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "graphrag",
		Version: "0.1.0",

		QueryGeneration: QueryGenerationConfig{
			DefaultLimit:      25,
			MaxLimit:          1000,
			MaxRetries:        2,
			Temperature:       0.2,
			MaxComplexity:     10,
			EnableTemplates:   true,
			TemplateThreshold: 0.8,
			Timeout:           "60s",
		},

		QueryExecution: QueryExecutionConfig{
			DefaultTimeout:       "30s",
			MaxTimeout:           "5m",
			DefaultLimit:         25,
			MaxLimit:             1000,
			ReadOnlyMode:         true,
			DefaultFormat:        "table",
			EnableExplain:        true,
			SlowQueryThresholdMs: 1000,
		},

		RAG: RAGConfig{
			Collection:          "graphrag_questions",
			VectorSearchLimit:   5,
			SimilarityThreshold: 0.7,
			IncludeSchema:       true,
			IncludeExamples:     true,
			ExamplesPerLabel:    3,
			SchemaTTL:           "5m",
		},

		Narration: NarrationConfig{
			Temperature: 0.4,
			MaxTokens:   1024,
		},

		AutoSync: AutoSyncConfig{
			Operations: AutoSyncOperations{Create: true, Update: true, Delete: true},
		},

		Graph: GraphConfig{
			Provider: "sqlite",
			Database: "neo4j",
			Path:     "data/graphrag-graph.db",
		},

		Vector: VectorConfig{
			Provider: "sqlite",
			Host:     "localhost",
			Port:     6334,
			Path:     "data/graphrag-vectors.db",
		},

		Embedding: EmbeddingConfig{
			Provider:  "genai",
			Model:     "gemini-embedding-001",
			CacheSize: 1000,
		},

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			Timeout:  "120s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "graphrag.log",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment variables are applied last either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if c.LLM.Provider == "gemini" && c.LLM.APIKey == "" {
			c.LLM.APIKey = key
		}
		if c.Embedding.Provider == "genai" && c.Embedding.APIKey == "" {
			c.Embedding.APIKey = key
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("QDRANT_API_KEY"); key != "" {
		c.Vector.APIKey = key
	}
	if url := os.Getenv("NEO4J_URL"); url != "" {
		c.Graph.URL = url
	}
	if pw := os.Getenv("NEO4J_PASSWORD"); pw != "" {
		c.Graph.Password = pw
	}
	if path := os.Getenv("GRAPHRAG_DB"); path != "" {
		c.Graph.Path = path
	}
}

var validate = validator.New()

// Validate checks value ranges and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.QueryGeneration.DefaultLimit > c.QueryExecution.MaxLimit {
		return fmt.Errorf("query_generation.default_limit %d exceeds query_execution.max_limit %d",
			c.QueryGeneration.DefaultLimit, c.QueryExecution.MaxLimit)
	}
	for _, d := range []struct{ name, value string }{
		{"query_generation.timeout", c.QueryGeneration.Timeout},
		{"query_execution.default_timeout", c.QueryExecution.DefaultTimeout},
		{"query_execution.max_timeout", c.QueryExecution.MaxTimeout},
		{"rag.schema_ttl", c.RAG.SchemaTTL},
		{"llm.timeout", c.LLM.Timeout},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	return nil
}

// duration parses a duration string, falling back on parse failure.
func duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// ExecutionDefaultTimeout returns query_execution.default_timeout.
func (c *Config) ExecutionDefaultTimeout() time.Duration {
	return duration(c.QueryExecution.DefaultTimeout, 30*time.Second)
}

// ExecutionMaxTimeout returns query_execution.max_timeout.
func (c *Config) ExecutionMaxTimeout() time.Duration {
	return duration(c.QueryExecution.MaxTimeout, 5*time.Minute)
}

// LLMTimeout returns llm.timeout.
func (c *Config) LLMTimeout() time.Duration {
	return duration(c.LLM.Timeout, 2*time.Minute)
}

// SchemaTTL returns rag.schema_ttl.
func (c *Config) SchemaTTL() time.Duration {
	return duration(c.RAG.SchemaTTL, 5*time.Minute)
}
