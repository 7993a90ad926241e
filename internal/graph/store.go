// Package graph abstracts the labeled property graph that holds entity
// nodes and their relationships. The Neo4j adapter speaks the transactional
// Cypher HTTP API; the SQLite adapter and the in-memory store execute a
// Cypher subset sufficient for the built-in query patterns.
package graph

import (
	"context"
	"fmt"

	"graphrag/internal/types"
)

// Node is one entity node: stable ID, label, and a flat property map.
type Node struct {
	ID         string                 `json:"id"`
	Label      string                 `json:"label"`
	Properties map[string]interface{} `json:"properties"`
}

// Relationship is a directed, typed edge between two nodes.
type Relationship struct {
	SourceLabel string                 `json:"source_label"`
	SourceID    string                 `json:"source_id"`
	Type        string                 `json:"type"`
	TargetLabel string                 `json:"target_label"`
	TargetID    string                 `json:"target_id"`
	Properties  map[string]interface{} `json:"properties,omitempty"`
}

// Store defines the operations the ingestion coordinator, the context
// retriever, and the query executor need from the graph database.
type Store interface {
	// CreateNode creates or replaces the node identified by (label, id).
	CreateNode(ctx context.Context, n Node) error

	// UpdateNode merges properties into an existing node.
	UpdateNode(ctx context.Context, n Node) error

	// DeleteNode removes the node and its attached relationships.
	DeleteNode(ctx context.Context, label, id string) error

	// NodeExists reports whether the node exists.
	NodeExists(ctx context.Context, label, id string) (bool, error)

	// GetNode fetches a node, or nil if absent.
	GetNode(ctx context.Context, label, id string) (*Node, error)

	// CreateRelationship creates the edge if both endpoints exist and
	// reports whether a new edge was written. An edge that already
	// exists is left untouched and reported false.
	CreateRelationship(ctx context.Context, r Relationship) (bool, error)

	// DeleteRelationship removes the edge if present.
	DeleteRelationship(ctx context.Context, r Relationship) error

	// Query executes a read query and returns one map per result row,
	// keyed by the query's return aliases.
	Query(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error)

	// Schema introspects labels, relationship types, and property keys.
	Schema(ctx context.Context) (*types.GraphSchema, error)

	// Sample returns up to limit nodes of the given label.
	Sample(ctx context.Context, label string, limit int) ([]Node, error)

	// Close releases the underlying connection.
	Close() error
}

// Config selects and configures a graph store backend.
type Config struct {
	// Provider: "neo4j" or "sqlite"
	Provider string `yaml:"provider" json:"provider"`

	// Neo4j settings.
	URL      string `yaml:"url" json:"url"`
	Database string `yaml:"database" json:"database"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`

	// SQLite settings.
	Path string `yaml:"path" json:"path"`
}

// DefaultConfig returns a local Neo4j configuration.
func DefaultConfig() Config {
	return Config{
		Provider: "neo4j",
		URL:      "http://localhost:7474",
		Database: "neo4j",
		Username: "neo4j",
	}
}

// NewStore creates a graph store from configuration.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Provider {
	case "neo4j":
		return NewNeo4jStore(cfg)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported graph provider: %s (use 'neo4j' or 'sqlite')", cfg.Provider)
	}
}
