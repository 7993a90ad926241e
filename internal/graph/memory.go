package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"graphrag/internal/types"
)

// =============================================================================
// IN-MEMORY STORE
// =============================================================================

// MemoryStore is a process-local graph used in tests and throwaway setups.
// It executes the same query subset as the SQLite backend.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]map[string]Node // label -> id -> node
	order map[string][]string        // label -> insertion order
	edges []Relationship
}

// NewMemoryStore creates an empty in-memory graph.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]map[string]Node),
		order: make(map[string][]string),
	}
}

// CreateNode creates or replaces the node.
func (s *MemoryStore) CreateNode(ctx context.Context, n Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nodes[n.Label] == nil {
		s.nodes[n.Label] = make(map[string]Node)
	}
	if _, exists := s.nodes[n.Label][n.ID]; !exists {
		s.order[n.Label] = append(s.order[n.Label], n.ID)
	}
	s.nodes[n.Label][n.ID] = copyNode(n)
	return nil
}

// UpdateNode merges properties into an existing node.
func (s *MemoryStore) UpdateNode(ctx context.Context, n Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.nodes[n.Label][n.ID]
	if !ok {
		return fmt.Errorf("node %s:%s not found", n.Label, n.ID)
	}
	for k, v := range n.Properties {
		existing.Properties[k] = v
	}
	s.nodes[n.Label][n.ID] = existing
	return nil
}

// DeleteNode removes the node and its attached edges.
func (s *MemoryStore) DeleteNode(ctx context.Context, label, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[label][id]; !ok {
		return nil
	}
	delete(s.nodes[label], id)
	ids := s.order[label]
	for i, v := range ids {
		if v == id {
			s.order[label] = append(ids[:i], ids[i+1:]...)
			break
		}
	}

	kept := s.edges[:0]
	for _, e := range s.edges {
		if (e.SourceLabel == label && e.SourceID == id) || (e.TargetLabel == label && e.TargetID == id) {
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	return nil
}

// NodeExists reports whether the node exists.
func (s *MemoryStore) NodeExists(ctx context.Context, label, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[label][id]
	return ok, nil
}

// GetNode fetches a node, or nil if absent.
func (s *MemoryStore) GetNode(ctx context.Context, label, id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[label][id]
	if !ok {
		return nil, nil
	}
	out := copyNode(n)
	return &out, nil
}

// CreateRelationship creates the edge if both endpoints exist. An existing
// edge is left untouched and reported false.
func (s *MemoryStore) CreateRelationship(ctx context.Context, r Relationship) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[r.SourceLabel][r.SourceID]; !ok {
		return false, fmt.Errorf("source node %s:%s not found", r.SourceLabel, r.SourceID)
	}
	if _, ok := s.nodes[r.TargetLabel][r.TargetID]; !ok {
		return false, fmt.Errorf("target node %s:%s not found", r.TargetLabel, r.TargetID)
	}
	for _, e := range s.edges {
		if e.SourceID == r.SourceID && e.Type == r.Type && e.TargetID == r.TargetID {
			return false, nil
		}
	}
	s.edges = append(s.edges, r)
	return true, nil
}

// DeleteRelationship removes the edge if present.
func (s *MemoryStore) DeleteRelationship(ctx context.Context, r Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.edges {
		if e.SourceID == r.SourceID && e.Type == r.Type && e.TargetID == r.TargetID {
			s.edges = append(s.edges[:i], s.edges[i+1:]...)
			return nil
		}
	}
	return nil
}

// Query executes a read query from the supported subset.
func (s *MemoryStore) Query(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	spec, err := parseSubsetQuery(query, params)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return evalSubsetQuery(s, spec)
}

// Schema collects labels, relationship types, and property keys.
func (s *MemoryStore) Schema(ctx context.Context) (*types.GraphSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schema := &types.GraphSchema{}
	propKeys := make(map[string]bool)
	for label, byID := range s.nodes {
		if len(byID) == 0 {
			continue
		}
		schema.Labels = append(schema.Labels, label)
		for _, n := range byID {
			for k := range n.Properties {
				propKeys[k] = true
			}
		}
	}
	relTypes := make(map[string]bool)
	for _, e := range s.edges {
		relTypes[e.Type] = true
	}
	for t := range relTypes {
		schema.RelationshipTypes = append(schema.RelationshipTypes, t)
	}
	for k := range propKeys {
		schema.PropertyKeys = append(schema.PropertyKeys, k)
	}
	sort.Strings(schema.Labels)
	sort.Strings(schema.RelationshipTypes)
	sort.Strings(schema.PropertyKeys)
	return schema, nil
}

// Sample returns up to limit nodes of the given label ordered by id, the
// same ordering the SQLite backend produces.
func (s *MemoryStore) Sample(ctx context.Context, label string, limit int) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 3
	}
	ids := make([]string, len(s.order[label]))
	copy(ids, s.order[label])
	sort.Strings(ids)

	var out []Node
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		out = append(out, copyNode(s.nodes[label][id]))
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// graphData implementation; callers hold the read lock.

func (s *MemoryStore) nodesByLabel(label string) []Node {
	out := make([]Node, 0, len(s.order[label]))
	for _, id := range s.order[label] {
		out = append(out, s.nodes[label][id])
	}
	return out
}

func (s *MemoryStore) edgesFrom(sourceID, relType string) []Relationship {
	var out []Relationship
	for _, e := range s.edges {
		if e.SourceID == sourceID && e.Type == relType {
			out = append(out, e)
		}
	}
	return out
}

func (s *MemoryStore) edgesTo(targetID, relType string) []Relationship {
	var out []Relationship
	for _, e := range s.edges {
		if e.TargetID == targetID && e.Type == relType {
			out = append(out, e)
		}
	}
	return out
}

func copyNode(n Node) Node {
	props := make(map[string]interface{}, len(n.Properties))
	for k, v := range n.Properties {
		props[k] = v
	}
	return Node{ID: n.ID, Label: n.Label, Properties: props}
}
