// Package rag assembles the retrieval context handed to the query
// generator: similar past questions, the live graph schema, and sample
// entities. Every source is best-effort; a failed source contributes an
// error entry instead of aborting retrieval.
package rag

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"graphrag/internal/embedding"
	"graphrag/internal/graph"
	"graphrag/internal/logging"
	"graphrag/internal/types"
	"graphrag/internal/vector"
)

// Options tune a retrieval.
type Options struct {
	// Collection holding query-memory points.
	Collection string `yaml:"collection" json:"collection"`

	// Limit is the number of similar queries to fetch.
	Limit int `yaml:"vector_search_limit" json:"vector_search_limit"`

	// ScoreThreshold drops weak matches; [0,1].
	ScoreThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`

	IncludeSchema    bool `yaml:"include_schema" json:"include_schema"`
	IncludeExamples  bool `yaml:"include_examples" json:"include_examples"`
	ExamplesPerLabel int  `yaml:"examples_per_label" json:"examples_per_label"`

	// SchemaTTL bounds how long an introspected schema is reused.
	SchemaTTL time.Duration `yaml:"schema_ttl" json:"schema_ttl"`
}

// DefaultOptions mirror the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Collection:       "graphrag_questions",
		Limit:            5,
		ScoreThreshold:   0.7,
		IncludeSchema:    true,
		IncludeExamples:  true,
		ExamplesPerLabel: 3,
		SchemaTTL:        5 * time.Minute,
	}
}

// Retriever produces context bundles.
type Retriever struct {
	graph    graph.Store
	vector   vector.Store
	embedder embedding.Engine
	opts     Options

	mu          sync.Mutex
	schemaCache *types.GraphSchema
	schemaAt    time.Time
}

// NewRetriever wires the providers.
func NewRetriever(g graph.Store, v vector.Store, e embedding.Engine, opts Options) *Retriever {
	if opts.Collection == "" {
		opts.Collection = DefaultOptions().Collection
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultOptions().Limit
	}
	if opts.ExamplesPerLabel <= 0 {
		opts.ExamplesPerLabel = DefaultOptions().ExamplesPerLabel
	}
	return &Retriever{graph: g, vector: v, embedder: e, opts: opts}
}

// RetrieveContext gathers the three sources concurrently. Source failures
// land in the bundle's Errors list; the bundle itself is always returned.
func (r *Retriever) RetrieveContext(ctx context.Context, question string) *types.ContextBundle {
	timer := logging.StartTimer(logging.CategoryRAG, "RetrieveContext")
	defer timer.Stop()

	bundle := &types.ContextBundle{
		Question:         question,
		RelevantEntities: make(map[string][]types.SampleEntity),
		RetrievedAt:      time.Now(),
	}

	var mu sync.Mutex
	record := func(source string, err error) {
		mu.Lock()
		defer mu.Unlock()
		bundle.Errors = append(bundle.Errors, types.SourceError{Source: source, Message: err.Error()})
		logging.RAG("Context source %s failed: %v", source, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		similar, err := r.SearchSimilar(gctx, question, r.opts.Limit, r.opts.ScoreThreshold)
		if err != nil {
			record("similar_queries", err)
			return nil
		}
		mu.Lock()
		bundle.SimilarQueries = similar
		mu.Unlock()
		return nil
	})

	// Samples depend on the schema's label list, so the two graph-side
	// sources share one goroutine; the vector-side search runs alongside.
	g.Go(func() error {
		if !r.opts.IncludeSchema && !r.opts.IncludeExamples {
			return nil
		}
		schema, err := r.GetSchema(gctx)
		if err != nil {
			record("schema", err)
			return nil
		}
		if r.opts.IncludeSchema {
			mu.Lock()
			bundle.Schema = *schema
			mu.Unlock()
		}
		if !r.opts.IncludeExamples {
			return nil
		}
		for _, label := range schema.Labels {
			nodes, err := r.graph.Sample(gctx, label, r.opts.ExamplesPerLabel)
			if err != nil {
				record("samples", fmt.Errorf("label %s: %w", label, err))
				continue
			}
			samples := make([]types.SampleEntity, 0, len(nodes))
			for _, n := range nodes {
				samples = append(samples, types.SampleEntity{
					Label:      label,
					ID:         n.ID,
					Properties: n.Properties,
				})
			}
			if len(samples) > 0 {
				mu.Lock()
				bundle.RelevantEntities[label] = samples
				mu.Unlock()
			}
		}
		return nil
	})

	g.Wait()

	logging.RAG("Retrieved context for %q: %d similar, %d labels, %d errors",
		question, len(bundle.SimilarQueries), len(bundle.RelevantEntities), len(bundle.Errors))
	return bundle
}

// SearchSimilar embeds the question and returns past questions above the
// threshold, ordered by descending score with ascending-id tie break.
func (r *Retriever) SearchSimilar(ctx context.Context, question string, limit int, threshold float64) ([]types.SimilarQuery, error) {
	if question == "" {
		return nil, types.NewValidationError("question", "question must not be empty")
	}
	if limit <= 0 {
		limit = r.opts.Limit
	}

	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question failed: %w", err)
	}

	hits, err := r.vector.Search(ctx, r.opts.Collection, vec, limit, threshold, nil)
	if err != nil {
		return nil, fmt.Errorf("similar-query search failed: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	similar := make([]types.SimilarQuery, 0, len(hits))
	for _, h := range hits {
		sq := types.SimilarQuery{Score: h.Score}
		sq.Question = cast.ToString(h.Payload["question"])
		sq.Query = cast.ToString(h.Payload["query"])
		if meta, ok := h.Payload["metadata"].(map[string]interface{}); ok {
			sq.Metadata = meta
		}
		if sq.Question == "" || sq.Query == "" {
			continue // malformed point, not usable as an example
		}
		similar = append(similar, sq)
	}
	return similar, nil
}

// GetSchema introspects the graph schema, reusing a cached copy within
// the configured TTL.
func (r *Retriever) GetSchema(ctx context.Context) (*types.GraphSchema, error) {
	r.mu.Lock()
	if r.schemaCache != nil && r.opts.SchemaTTL > 0 && time.Since(r.schemaAt) < r.opts.SchemaTTL {
		cached := *r.schemaCache
		r.mu.Unlock()
		return &cached, nil
	}
	r.mu.Unlock()

	schema, err := r.graph.Schema(ctx)
	if err != nil {
		return nil, fmt.Errorf("schema introspection failed: %w", err)
	}
	sort.Strings(schema.Labels)
	sort.Strings(schema.RelationshipTypes)
	sort.Strings(schema.PropertyKeys)

	r.mu.Lock()
	r.schemaCache = schema
	r.schemaAt = time.Now()
	r.mu.Unlock()

	out := *schema
	return &out, nil
}

// InvalidateSchema drops the cached schema; the next GetSchema hits the
// store again.
func (r *Retriever) InvalidateSchema() {
	r.mu.Lock()
	r.schemaCache = nil
	r.mu.Unlock()
}

// RememberQuery upserts a query-memory point for a successfully answered
// question. The point ID is a stable hash of (question, query), so
// remembering the same pair twice overwrites rather than duplicates.
func (r *Retriever) RememberQuery(ctx context.Context, question, query string, confidence float64, metadata map[string]interface{}) error {
	if question == "" || query == "" {
		return types.NewValidationError("query_memory", "question and query are required")
	}

	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return fmt.Errorf("embedding question failed: %w", err)
	}
	if err := r.vector.EnsureCollection(ctx, r.opts.Collection, r.embedder.Dimensions()); err != nil {
		return fmt.Errorf("collection %s: %w", r.opts.Collection, err)
	}

	payload := map[string]interface{}{
		"question":   question,
		"query":      query,
		"confidence": confidence,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}

	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(question+"\x00"+query)).String()
	err = r.vector.Upsert(ctx, r.opts.Collection, []vector.Point{{
		ID:      id,
		Vector:  vec,
		Payload: payload,
	}})
	if err != nil {
		return fmt.Errorf("query-memory upsert failed: %w", err)
	}

	logging.RAGDebug("Remembered query for %q (confidence=%.2f)", question, confidence)
	return nil
}
