// Package graphrag answers natural-language questions over a bi-modal
// knowledge base: a labeled property graph plus a vector index. The answer
// pipeline is retrieve context, generate a query, validate and sanitize it,
// execute it read-only, and narrate the results. Ingestion writes every
// entity to both stores with compensating rollback on partial failure.
package graphrag

import (
	"context"
	"fmt"
	"time"

	"graphrag/internal/config"
	"graphrag/internal/entity"
	"graphrag/internal/executor"
	"graphrag/internal/generator"
	"graphrag/internal/ingest"
	"graphrag/internal/llm"
	"graphrag/internal/logging"
	"graphrag/internal/narrator"
	"graphrag/internal/rag"
	"graphrag/internal/system"
	"graphrag/internal/types"
)

// Answer is the outcome of one question pipeline.
type Answer struct {
	Question    string                   `json:"question"`
	Answer      string                   `json:"answer"`
	Cypher      string                   `json:"cypher"`
	Explanation string                   `json:"explanation,omitempty"`
	Confidence  float64                  `json:"confidence"`
	Data        []map[string]interface{} `json:"data"`
	Stats       types.ExecutionStats     `json:"stats"`
	Warnings    []string                 `json:"warnings,omitempty"`
	Metadata    map[string]interface{}   `json:"metadata,omitempty"`

	// ContextErrors lists retrieval sources that failed; the pipeline
	// proceeds without them.
	ContextErrors []types.SourceError `json:"context_errors,omitempty"`

	// Empty marks a successful query that matched nothing.
	Empty bool `json:"empty"`
}

// Engine is the façade over the four pipeline components plus ingestion.
type Engine struct {
	cfg       *config.Config
	providers *system.Providers
	owned     bool // Close tears down providers only when Engine built them

	retriever   *rag.Retriever
	generator   *generator.Generator
	executor    *executor.Executor
	narrator    *narrator.Narrator
	coordinator *ingest.Coordinator
	dispatcher  *ingest.Dispatcher
}

// Open builds every provider from configuration and wires an Engine that
// owns them. Close releases them.
func Open(cfg *config.Config) (*Engine, error) {
	providers, err := system.Build(cfg)
	if err != nil {
		return nil, err
	}
	e, err := New(providers, cfg)
	if err != nil {
		providers.Close()
		return nil, err
	}
	e.owned = true
	return e, nil
}

// New wires an Engine over caller-owned providers. The caller keeps
// responsibility for closing them.
func New(providers *system.Providers, cfg *config.Config) (*Engine, error) {
	if providers == nil {
		return nil, types.NewValidationError("providers", "provider container is required")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	retriever := rag.NewRetriever(providers.Graph, providers.Vector, providers.Embedder, rag.Options{
		Collection:       cfg.RAG.Collection,
		Limit:            cfg.RAG.VectorSearchLimit,
		ScoreThreshold:   cfg.RAG.SimilarityThreshold,
		IncludeSchema:    cfg.RAG.IncludeSchema,
		IncludeExamples:  cfg.RAG.IncludeExamples,
		ExamplesPerLabel: cfg.RAG.ExamplesPerLabel,
		SchemaTTL:        cfg.SchemaTTL(),
	})

	gen := generator.NewGenerator(providers.LLM, providers.Registry, providers.Patterns, generator.Options{
		Temperature:       cfg.QueryGeneration.Temperature,
		Explain:           cfg.QueryGeneration.Explain,
		AllowWrite:        cfg.QueryGeneration.AllowWrite,
		MaxComplexity:     cfg.QueryGeneration.MaxComplexity,
		EnableTemplates:   cfg.QueryGeneration.EnableTemplates,
		TemplateThreshold: cfg.QueryGeneration.TemplateThreshold,
		MaxRetries:        cfg.QueryGeneration.MaxRetries,
		DefaultLimit:      cfg.QueryGeneration.DefaultLimit,
		ProjectContext:    cfg.QueryGeneration.ProjectContext,
	})

	exec := executor.NewExecutor(providers.Graph, executor.Config{
		DefaultTimeout:       cfg.ExecutionDefaultTimeout(),
		MaxTimeout:           cfg.ExecutionMaxTimeout(),
		DefaultLimit:         cfg.QueryExecution.DefaultLimit,
		MaxLimit:             cfg.QueryExecution.MaxLimit,
		ReadOnlyMode:         cfg.QueryExecution.ReadOnlyMode,
		DefaultFormat:        cfg.QueryExecution.DefaultFormat,
		EnableExplain:        cfg.QueryExecution.EnableExplain,
		SlowQueryThresholdMs: cfg.QueryExecution.SlowQueryThresholdMs,
	})

	narr := narrator.NewNarrator(providers.LLM, narrator.Options{
		Temperature:    cfg.Narration.Temperature,
		MaxTokens:      cfg.Narration.MaxTokens,
		ProjectContext: cfg.QueryGeneration.ProjectContext,
	})

	coord := ingest.NewCoordinator(providers.Graph, providers.Vector, providers.Embedder)
	coord.OnCritical(func(critical *types.CriticalConsistencyError) {
		logging.Get(logging.CategorySystem).Error("Consistency escalation: %v", critical)
	})

	return &Engine{
		cfg:         cfg,
		providers:   providers,
		retriever:   retriever,
		generator:   gen,
		executor:    exec,
		narrator:    narr,
		coordinator: coord,
	}, nil
}

// Close releases provider handles when the Engine owns them.
func (e *Engine) Close() error {
	if e == nil || !e.owned {
		return nil
	}
	return e.providers.Close()
}

// Ask runs the full question pipeline: context retrieval, query
// generation, execution, narration, and a best-effort query-memory
// write-back.
func (e *Engine) Ask(ctx context.Context, question string) (*Answer, error) {
	timer := logging.StartTimer(logging.CategorySystem, "Ask")
	defer timer.Stop()

	bundle := e.retriever.RetrieveContext(ctx, question)

	gen, err := e.generator.Generate(ctx, question, bundle)
	if err != nil {
		return nil, err
	}

	res, err := e.executor.Execute(ctx, gen.Cypher, nil, executor.Options{
		ReadOnly: !e.cfg.QueryGeneration.AllowWrite,
	})
	if err != nil {
		return nil, err
	}

	narrated, err := e.narrator.Narrate(ctx, question, gen.Cypher, res.Data, &res.Stats)
	if err != nil {
		return nil, err
	}

	answer := &Answer{
		Question:      question,
		Answer:        narrated.Text,
		Cypher:        gen.Cypher,
		Explanation:   gen.Explanation,
		Confidence:    gen.Confidence,
		Data:          res.Data,
		Stats:         res.Stats,
		Warnings:      append(gen.Warnings, res.Warnings...),
		Metadata:      gen.Metadata,
		ContextErrors: bundle.Errors,
		Empty:         narrated.Empty,
	}

	// Remember the successful pair so future retrievals can suggest it.
	// Failure here never fails the answer.
	if !answer.Empty {
		if err := e.retriever.RememberQuery(ctx, question, gen.Cypher, gen.Confidence, map[string]interface{}{
			"answered_at": time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			logging.RAG("Query-memory write-back failed: %v", err)
		}
	}
	return answer, nil
}

// Query executes a caller-supplied query under the configured safety gate.
func (e *Engine) Query(ctx context.Context, query string, params map[string]interface{}) (*executor.Result, error) {
	return e.executor.Execute(ctx, query, params, executor.Options{})
}

// QueryPaginated executes a windowed query page.
func (e *Engine) QueryPaginated(ctx context.Context, query string, params map[string]interface{}, page, perPage int) (*executor.Result, error) {
	return e.executor.ExecutePaginated(ctx, query, params, page, perPage, executor.Options{})
}

// Validate checks a query against the read-only and shape rules without
// executing it.
func (e *Engine) Validate(query string) generator.Validation {
	return generator.Validate(query, e.cfg.QueryGeneration.AllowWrite, e.cfg.QueryGeneration.MaxComplexity)
}

// Schema returns the graph schema, served from the retriever's cache.
func (e *Engine) Schema(ctx context.Context) (*types.GraphSchema, error) {
	return e.retriever.GetSchema(ctx)
}

// Ingest writes one entity to both stores.
func (e *Engine) Ingest(ctx context.Context, d *entity.Descriptor) (*ingest.Result, error) {
	return e.coordinator.Ingest(ctx, d)
}

// IngestBatch writes a list of entities with per-collection embedding
// batches.
func (e *Engine) IngestBatch(ctx context.Context, descs []*entity.Descriptor) (*ingest.BatchResult, error) {
	return e.coordinator.IngestBatch(ctx, descs)
}

// Remove deletes an entity from both stores.
func (e *Engine) Remove(ctx context.Context, d *entity.Descriptor) (bool, error) {
	return e.coordinator.Remove(ctx, d)
}

// Sync creates or updates an entity in both stores.
func (e *Engine) Sync(ctx context.Context, d *entity.Descriptor) (*ingest.SyncResult, error) {
	return e.coordinator.Sync(ctx, d)
}

// SyncRelationships sweeps declared edges for entities already ingested.
func (e *Engine) SyncRelationships(ctx context.Context, descs []*entity.Descriptor) (*ingest.RelationshipSyncResult, error) {
	return e.coordinator.SyncRelationships(ctx, descs)
}

// Dispatcher returns the auto-sync dispatcher configured from auto_sync,
// building it on first use. queue may be nil unless queue mode is enabled.
func (e *Engine) Dispatcher(queue ingest.SyncQueue) (*ingest.Dispatcher, error) {
	if e.dispatcher != nil {
		return e.dispatcher, nil
	}
	d, err := ingest.NewDispatcher(e.coordinator, ingest.Policy{
		Enabled:      e.cfg.AutoSync.Enabled,
		Queue:        e.cfg.AutoSync.Queue,
		OnCreate:     e.cfg.AutoSync.Operations.Create,
		OnUpdate:     e.cfg.AutoSync.Operations.Update,
		OnDelete:     e.cfg.AutoSync.Operations.Delete,
		FailSilently: e.cfg.AutoSync.FailSilently,
	}, queue)
	if err != nil {
		return nil, err
	}
	e.dispatcher = d
	return d, nil
}

// LLM exposes the configured language-model client, for callers composing
// their own prompts.
func (e *Engine) LLM() llm.Client {
	return e.providers.LLM
}

// Describe summarizes the wiring, for diagnostics.
func (e *Engine) Describe() string {
	return fmt.Sprintf("graphrag: graph=%s vector=%s embedding=%s llm=%s",
		e.cfg.Graph.Provider, e.cfg.Vector.Provider, e.cfg.Embedding.Provider, e.cfg.LLM.Provider)
}
