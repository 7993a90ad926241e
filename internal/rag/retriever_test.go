package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"graphrag/internal/graph"
	"graphrag/internal/types"
	"graphrag/internal/vector"
)

// fakeEmbedder returns a fixed vector.
type fakeEmbedder struct {
	fail  bool
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedding provider down")
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Model() string   { return "fake" }
func (f *fakeEmbedder) MaxLength() int  { return 0 }

// fakeVector returns canned hits.
type fakeVector struct {
	hits        []vector.ScoredPoint
	fail        bool
	upserted    []vector.Point
	searchCalls int
}

func (f *fakeVector) EnsureCollection(ctx context.Context, name string, dims int) error { return nil }
func (f *fakeVector) CollectionExists(ctx context.Context, name string) (bool, error)   { return true, nil }

func (f *fakeVector) Upsert(ctx context.Context, collection string, pts []vector.Point) error {
	f.upserted = append(f.upserted, pts...)
	return nil
}

func (f *fakeVector) Search(ctx context.Context, collection string, vec []float32, limit int, threshold float64, filter map[string]interface{}) ([]vector.ScoredPoint, error) {
	f.searchCalls++
	if f.fail {
		return nil, errors.New("vector store down")
	}
	var out []vector.ScoredPoint
	for _, h := range f.hits {
		if threshold > 0 && h.Score < threshold {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (f *fakeVector) Delete(ctx context.Context, collection string, ids []string) error { return nil }
func (f *fakeVector) Count(ctx context.Context, collection string) (uint64, error)      { return 0, nil }
func (f *fakeVector) Close() error                                                      { return nil }

func hit(id, question, query string, score float64) vector.ScoredPoint {
	return vector.ScoredPoint{
		ID:    id,
		Score: score,
		Payload: map[string]interface{}{
			"question": question,
			"query":    query,
		},
	}
}

func seededGraph(t *testing.T) *graph.MemoryStore {
	t.Helper()
	g := graph.NewMemoryStore()
	ctx := context.Background()
	for _, n := range []graph.Node{
		{ID: "c1", Label: "Client", Properties: map[string]interface{}{"name": "Acme"}},
		{ID: "c2", Label: "Client", Properties: map[string]interface{}{"name": "Globex"}},
		{ID: "p1", Label: "Project", Properties: map[string]interface{}{"name": "Rollout"}},
	} {
		require.NoError(t, g.CreateNode(ctx, n))
	}
	return g
}

func TestRetrieveContextAllSources(t *testing.T) {
	v := &fakeVector{hits: []vector.ScoredPoint{
		hit("a", "Show all clients", "MATCH (c:Client) RETURN c LIMIT 25", 0.92),
	}}
	r := NewRetriever(seededGraph(t), v, &fakeEmbedder{}, DefaultOptions())

	bundle := r.RetrieveContext(context.Background(), "Which clients are active?")
	require.Empty(t, bundle.Errors)
	require.Len(t, bundle.SimilarQueries, 1)
	require.True(t, bundle.Schema.HasLabel("Client"))
	require.Len(t, bundle.RelevantEntities["Client"], 2)
	require.Len(t, bundle.RelevantEntities["Project"], 1)
}

func TestRetrieveContextEmbeddingFailureIsolated(t *testing.T) {
	v := &fakeVector{}
	r := NewRetriever(seededGraph(t), v, &fakeEmbedder{fail: true}, DefaultOptions())

	bundle := r.RetrieveContext(context.Background(), "anything")
	require.Empty(t, bundle.SimilarQueries)
	require.True(t, bundle.Schema.HasLabel("Client"), "schema must survive an embedding failure")
	require.NotEmpty(t, bundle.RelevantEntities)

	require.Len(t, bundle.Errors, 1)
	require.Equal(t, "similar_queries", bundle.Errors[0].Source)
}

func TestRetrieveContextVectorFailureIsolated(t *testing.T) {
	v := &fakeVector{fail: true}
	r := NewRetriever(seededGraph(t), v, &fakeEmbedder{}, DefaultOptions())

	bundle := r.RetrieveContext(context.Background(), "anything")
	require.Empty(t, bundle.SimilarQueries)
	require.True(t, bundle.Schema.HasLabel("Client"))
	require.Len(t, bundle.Errors, 1)
}

func TestSearchSimilarOrdering(t *testing.T) {
	v := &fakeVector{hits: []vector.ScoredPoint{
		hit("b", "q-b", "MATCH (b) RETURN b", 0.8),
		hit("a", "q-a", "MATCH (a) RETURN a", 0.8),
		hit("c", "q-c", "MATCH (c) RETURN c", 0.95),
	}}
	r := NewRetriever(graph.NewMemoryStore(), v, &fakeEmbedder{}, DefaultOptions())

	similar, err := r.SearchSimilar(context.Background(), "q", 5, 0)
	require.NoError(t, err)
	require.Len(t, similar, 3)
	require.Equal(t, "q-c", similar[0].Question, "highest score first")
	require.Equal(t, "q-a", similar[1].Question, "ties broken by ascending id")
	require.Equal(t, "q-b", similar[2].Question)
}

func TestSearchSimilarThresholdOne(t *testing.T) {
	v := &fakeVector{hits: []vector.ScoredPoint{
		hit("a", "close", "MATCH (a) RETURN a", 0.99),
		hit("b", "exact", "MATCH (b) RETURN b", 1.0),
	}}
	r := NewRetriever(graph.NewMemoryStore(), v, &fakeEmbedder{}, DefaultOptions())

	similar, err := r.SearchSimilar(context.Background(), "q", 5, 1.0)
	require.NoError(t, err)
	require.Len(t, similar, 1, "threshold 1.0 admits only perfect matches")
	require.Equal(t, "exact", similar[0].Question)
}

func TestSearchSimilarSkipsMalformedPoints(t *testing.T) {
	v := &fakeVector{hits: []vector.ScoredPoint{
		{ID: "junk", Score: 0.9, Payload: map[string]interface{}{"other": 1}},
		hit("a", "good", "MATCH (a) RETURN a", 0.85),
	}}
	r := NewRetriever(graph.NewMemoryStore(), v, &fakeEmbedder{}, DefaultOptions())

	similar, err := r.SearchSimilar(context.Background(), "q", 5, 0)
	require.NoError(t, err)
	require.Len(t, similar, 1)
}

func TestSearchSimilarRejectsEmptyQuestion(t *testing.T) {
	r := NewRetriever(graph.NewMemoryStore(), &fakeVector{}, &fakeEmbedder{}, DefaultOptions())
	_, err := r.SearchSimilar(context.Background(), "", 5, 0)
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestSchemaCaching(t *testing.T) {
	g := seededGraph(t)
	opts := DefaultOptions()
	opts.SchemaTTL = time.Hour
	r := NewRetriever(g, &fakeVector{}, &fakeEmbedder{}, opts)
	ctx := context.Background()

	first, err := r.GetSchema(ctx)
	require.NoError(t, err)

	// A node added after the first introspection is invisible until the
	// cache is invalidated.
	require.NoError(t, g.CreateNode(ctx, graph.Node{ID: "x", Label: "Invoice", Properties: map[string]interface{}{}}))

	second, err := r.GetSchema(ctx)
	require.NoError(t, err)
	require.Equal(t, first.Labels, second.Labels)

	r.InvalidateSchema()
	third, err := r.GetSchema(ctx)
	require.NoError(t, err)
	require.True(t, third.HasLabel("Invoice"))
}

func TestRememberQueryStableID(t *testing.T) {
	v := &fakeVector{}
	r := NewRetriever(graph.NewMemoryStore(), v, &fakeEmbedder{}, DefaultOptions())
	ctx := context.Background()

	require.NoError(t, r.RememberQuery(ctx, "q", "MATCH (n) RETURN n LIMIT 25", 0.9, nil))
	require.NoError(t, r.RememberQuery(ctx, "q", "MATCH (n) RETURN n LIMIT 25", 0.9, nil))
	require.Len(t, v.upserted, 2)
	require.Equal(t, v.upserted[0].ID, v.upserted[1].ID, "same (question, query) must map to the same point")

	require.NoError(t, r.RememberQuery(ctx, "q", "MATCH (m) RETURN m LIMIT 25", 0.9, nil))
	require.NotEqual(t, v.upserted[0].ID, v.upserted[2].ID)

	require.Error(t, r.RememberQuery(ctx, "", "x", 0, nil))
}
