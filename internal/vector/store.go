// Package vector abstracts the vector index used for semantic retrieval.
// Two backends are provided: a Qdrant gRPC adapter for deployments and an
// embedded SQLite adapter (sqlite-vec) for single-binary installs.
package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Point is one entry in a collection: a deterministic ID, an embedding, and
// a retrieval payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint is a search hit with its similarity score.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]interface{}
}

// Store defines the operations the ingestion coordinator and the context
// retriever need from a vector index.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, name string, dims int) error

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// Upsert inserts or replaces points. Re-upserting the same ID overwrites
	// the previous vector and payload.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to limit points ordered by descending similarity.
	// Hits scoring below threshold are dropped. A non-nil filter restricts
	// results to points whose payload matches every key exactly.
	Search(ctx context.Context, collection string, vec []float32, limit int, threshold float64, filter map[string]interface{}) ([]ScoredPoint, error)

	// Delete removes points by ID. Deleting an absent ID is not an error.
	Delete(ctx context.Context, collection string, ids []string) error

	// Count returns the number of points in the collection.
	Count(ctx context.Context, collection string) (uint64, error)

	// Close releases the underlying connection.
	Close() error
}

// PointID derives a stable point identifier from a collection and entity ID.
// The same entity always maps to the same point, which makes ingestion
// idempotent: re-ingesting overwrites rather than duplicates.
func PointID(collection, entityID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(collection+"/"+entityID)).String()
}

// Config selects and configures a vector store backend.
type Config struct {
	// Provider: "qdrant" or "sqlite"
	Provider string `yaml:"provider" json:"provider"`

	// Qdrant settings.
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	APIKey string `yaml:"api_key" json:"api_key"`
	UseTLS bool   `yaml:"use_tls" json:"use_tls"`

	// SQLite settings.
	Path string `yaml:"path" json:"path"`
}

// DefaultConfig returns a local Qdrant configuration.
func DefaultConfig() Config {
	return Config{
		Provider: "qdrant",
		Host:     "localhost",
		Port:     6334,
	}
}

// NewStore creates a vector store from configuration.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Provider {
	case "qdrant":
		return NewQdrantStore(cfg)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported vector provider: %s (use 'qdrant' or 'sqlite')", cfg.Provider)
	}
}

// payloadMatches reports whether payload satisfies every filter key with an
// exact value match. Used by the SQLite backend, which filters in process.
func payloadMatches(payload, filter map[string]interface{}) bool {
	for k, want := range filter {
		got, ok := payload[k]
		if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}
