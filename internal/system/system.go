// Package system wires provider adapters from configuration. It acts as
// the factory behind the façade so CLI and library callers get identical
// wiring.
package system

import (
	"errors"
	"fmt"

	"graphrag/internal/config"
	"graphrag/internal/embedding"
	"graphrag/internal/entity"
	"graphrag/internal/graph"
	"graphrag/internal/llm"
	"graphrag/internal/logging"
	"graphrag/internal/pattern"
	"graphrag/internal/vector"
)

// Providers is the explicit dependency container handed to the façade.
// There are no module-level singletons; callers own the lifecycle.
type Providers struct {
	Graph    graph.Store
	Vector   vector.Store
	Embedder embedding.Engine
	LLM      llm.Client

	Patterns *pattern.Library
	Registry *entity.Registry // nil when no entities file is configured
}

// Build constructs every provider from configuration.
//
// Pattern and entity documents load before the stores so a broken scope or
// pattern reference fails at startup, not at query time.
func Build(cfg *config.Config) (*Providers, error) {
	timer := logging.StartTimer(logging.CategorySystem, "Build")
	defer timer.Stop()

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	patterns := pattern.NewLibrary()
	if cfg.PatternsPath != "" {
		n, err := patterns.LoadFromYAML(cfg.PatternsPath)
		if err != nil {
			return nil, fmt.Errorf("pattern library: %w", err)
		}
		logging.System("Loaded %d query patterns from %s", n, cfg.PatternsPath)
	}

	var registry *entity.Registry
	if cfg.EntitiesPath != "" {
		r, err := entity.LoadRegistry(cfg.EntitiesPath, patterns)
		if err != nil {
			return nil, fmt.Errorf("entity registry: %w", err)
		}
		registry = r
		logging.System("Loaded entity registry from %s", cfg.EntitiesPath)
	}

	graphStore, err := buildGraph(cfg.Graph)
	if err != nil {
		return nil, fmt.Errorf("graph store: %w", err)
	}

	vectorStore, err := vector.NewStore(vector.Config{
		Provider: cfg.Vector.Provider,
		Host:     cfg.Vector.Host,
		Port:     cfg.Vector.Port,
		APIKey:   cfg.Vector.APIKey,
		UseTLS:   cfg.Vector.UseTLS,
		Path:     cfg.Vector.Path,
	})
	if err != nil {
		graphStore.Close()
		return nil, fmt.Errorf("vector store: %w", err)
	}

	embedder, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.BaseURL,
		OllamaModel:    cfg.Embedding.Model,
		GenAIAPIKey:    cfg.Embedding.APIKey,
		GenAIModel:     cfg.Embedding.Model,
		CacheSize:      cfg.Embedding.CacheSize,
	})
	if err != nil {
		graphStore.Close()
		vectorStore.Close()
		return nil, fmt.Errorf("embedding engine: %w", err)
	}

	client, err := llm.NewClient(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLMTimeout(),
	})
	if err != nil {
		graphStore.Close()
		vectorStore.Close()
		return nil, fmt.Errorf("llm client: %w", err)
	}

	return &Providers{
		Graph:    graphStore,
		Vector:   vectorStore,
		Embedder: embedder,
		LLM:      client,
		Patterns: patterns,
		Registry: registry,
	}, nil
}

func buildGraph(cfg config.GraphConfig) (graph.Store, error) {
	if cfg.Provider == "memory" {
		return graph.NewMemoryStore(), nil
	}
	return graph.NewStore(graph.Config{
		Provider: cfg.Provider,
		URL:      cfg.URL,
		Database: cfg.Database,
		Username: cfg.Username,
		Password: cfg.Password,
		Path:     cfg.Path,
	})
}

// Close releases every provider handle.
func (p *Providers) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.Graph != nil {
		errs = append(errs, p.Graph.Close())
	}
	if p.Vector != nil {
		errs = append(errs, p.Vector.Close())
	}
	return errors.Join(errs...)
}
