package vector

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"graphrag/internal/logging"
)

// =============================================================================
// QDRANT STORE
// =============================================================================

// QdrantStore adapts the official Qdrant gRPC client to the Store interface.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore connects to a Qdrant instance.
func NewQdrantStore(cfg Config) (*QdrantStore, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	logging.Vector("Connected to Qdrant at %s:%d", host, port)
	return &QdrantStore{client: client}, nil
}

// EnsureCollection creates the collection with cosine distance if absent.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dims int) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	logging.Vector("Creating collection %s (dims=%d)", name, dims)
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

// CollectionExists reports whether the collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	return s.client.CollectionExists(ctx, name)
}

// Upsert inserts or replaces points, waiting for the write to be applied.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qpoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(p.Payload),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qpoints,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert into %s failed: %w", collection, err)
	}

	logging.VectorDebug("Upserted %d points into %s", len(points), collection)
	return nil
}

// Search returns the top hits above threshold, ordered by descending score.
func (s *QdrantStore) Search(ctx context.Context, collection string, vec []float32, limit int, threshold float64, filter map[string]interface{}) ([]ScoredPoint, error) {
	query := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if threshold > 0 {
		t := float32(threshold)
		query.ScoreThreshold = &t
	}
	if len(filter) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			conditions = append(conditions, qdrant.NewMatch(k, fmt.Sprintf("%v", v)))
		}
		query.Filter = &qdrant.Filter{Must: conditions}
	}

	hits, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant search in %s failed: %w", collection, err)
	}

	results := make([]ScoredPoint, 0, len(hits))
	for _, hit := range hits {
		results = append(results, ScoredPoint{
			ID:      hit.GetId().GetUuid(),
			Score:   float64(hit.GetScore()),
			Payload: payloadToMap(hit.GetPayload()),
		})
	}

	logging.VectorDebug("Search in %s returned %d hits (limit=%d, threshold=%.2f)", collection, len(results), limit, threshold)
	return results, nil
}

// Delete removes points by ID.
func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete from %s failed: %w", collection, err)
	}
	return nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context, collection string) (uint64, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count in %s failed: %w", collection, err)
	}
	return count, nil
}

// Close shuts down the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]interface{} {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) interface{} {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		list := make([]interface{}, len(items))
		for i, item := range items {
			list[i] = valueToAny(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return payloadToMap(kind.StructValue.GetFields())
	default:
		return nil
	}
}
