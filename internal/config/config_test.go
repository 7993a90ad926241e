package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.QueryExecution.MaxLimit != 1000 || !cfg.QueryExecution.ReadOnlyMode {
		t.Errorf("defaults not applied: %+v", cfg.QueryExecution)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := []byte(`
query_generation:
  default_limit: 50
  template_confidence_threshold: 0.9
graph:
  provider: neo4j
  url: http://localhost:7474
rag:
  similarity_threshold: 0.85
`)
	if err := os.WriteFile(path, doc, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.QueryGeneration.DefaultLimit != 50 {
		t.Errorf("default_limit = %d", cfg.QueryGeneration.DefaultLimit)
	}
	if cfg.QueryGeneration.TemplateThreshold != 0.9 {
		t.Errorf("template threshold = %v", cfg.QueryGeneration.TemplateThreshold)
	}
	if cfg.Graph.Provider != "neo4j" || cfg.Graph.URL != "http://localhost:7474" {
		t.Errorf("graph config = %+v", cfg.Graph)
	}
	if cfg.RAG.SimilarityThreshold != 0.85 {
		t.Errorf("similarity threshold = %v", cfg.RAG.SimilarityThreshold)
	}
	// Untouched sections keep their defaults.
	if cfg.QueryExecution.DefaultFormat != "table" {
		t.Errorf("default_format = %q", cfg.QueryExecution.DefaultFormat)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GRAPHRAG_DB", "/tmp/override.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.APIKey != "test-key" || cfg.Embedding.APIKey != "test-key" {
		t.Errorf("GEMINI_API_KEY not applied: llm=%q embedding=%q", cfg.LLM.APIKey, cfg.Embedding.APIKey)
	}
	if cfg.Graph.Path != "/tmp/override.db" {
		t.Errorf("GRAPHRAG_DB not applied: %q", cfg.Graph.Path)
	}
}

func TestEnvDoesNotClobberExplicitKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  api_key: file-key\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.APIKey != "file-key" {
		t.Errorf("file key clobbered by env: %q", cfg.LLM.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad format", func(c *Config) { c.QueryExecution.DefaultFormat = "csv" }},
		{"threshold above one", func(c *Config) { c.QueryGeneration.TemplateThreshold = 1.5 }},
		{"unknown graph provider", func(c *Config) { c.Graph.Provider = "dgraph" }},
		{"limit above cap", func(c *Config) { c.QueryGeneration.DefaultLimit = 5000 }},
		{"bad duration", func(c *Config) { c.QueryExecution.DefaultTimeout = "soon" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted a bad value")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.RAG.Collection = "custom_questions"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.RAG.Collection != "custom_questions" {
		t.Errorf("round trip lost value: %q", loaded.RAG.Collection)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ExecutionDefaultTimeout().Seconds() != 30 {
		t.Errorf("default timeout = %v", cfg.ExecutionDefaultTimeout())
	}
	cfg.QueryExecution.MaxTimeout = "90s"
	if cfg.ExecutionMaxTimeout().Seconds() != 90 {
		t.Errorf("max timeout = %v", cfg.ExecutionMaxTimeout())
	}
	cfg.RAG.SchemaTTL = ""
	if cfg.SchemaTTL().Minutes() != 5 {
		t.Errorf("schema ttl fallback = %v", cfg.SchemaTTL())
	}
}
