package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"graphrag/internal/logging"
	"graphrag/internal/types"
)

// =============================================================================
// SQLITE GRAPH STORE
// =============================================================================

// SQLiteStore is an embedded property graph backed by SQLite: one table of
// nodes with JSON properties, one table of typed edges. Queries from the
// supported subset are evaluated in process.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the graph at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "graphrag-graph.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph store: %w", err)
	}

	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		label      TEXT NOT NULL,
		id         TEXT NOT NULL,
		properties TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (label, id)
	);
	CREATE TABLE IF NOT EXISTS edges (
		source_label TEXT NOT NULL,
		source_id    TEXT NOT NULL,
		type         TEXT NOT NULL,
		target_label TEXT NOT NULL,
		target_id    TEXT NOT NULL,
		properties   TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (source_id, type, target_id)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id, type);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id, type);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create graph schema: %w", err)
	}

	logging.Store("SQLite graph store opened at %s", path)
	return &SQLiteStore{db: db}, nil
}

// CreateNode creates or replaces the node.
func (s *SQLiteStore) CreateNode(ctx context.Context, n Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	props, err := json.Marshal(n.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal properties for %s: %w", n.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO nodes (label, id, properties) VALUES (?, ?, ?)",
		n.Label, n.ID, string(props))
	return err
}

// UpdateNode merges properties into an existing node.
func (s *SQLiteStore) UpdateNode(ctx context.Context, n Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing string
	err := s.db.QueryRowContext(ctx,
		"SELECT properties FROM nodes WHERE label = ? AND id = ?", n.Label, n.ID).Scan(&existing)
	if err == sql.ErrNoRows {
		return fmt.Errorf("node %s:%s not found", n.Label, n.ID)
	}
	if err != nil {
		return err
	}

	props := map[string]interface{}{}
	json.Unmarshal([]byte(existing), &props)
	for k, v := range n.Properties {
		props[k] = v
	}
	merged, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE nodes SET properties = ? WHERE label = ? AND id = ?", string(merged), n.Label, n.ID)
	return err
}

// DeleteNode removes the node and its attached edges.
func (s *SQLiteStore) DeleteNode(ctx context.Context, label, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM edges WHERE (source_label = ? AND source_id = ?) OR (target_label = ? AND target_id = ?)",
		label, id, label, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM nodes WHERE label = ? AND id = ?", label, id); err != nil {
		return err
	}
	return tx.Commit()
}

// NodeExists reports whether the node exists.
func (s *SQLiteStore) NodeExists(ctx context.Context, label, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM nodes WHERE label = ? AND id = ?", label, id).Scan(&n)
	return n > 0, err
}

// GetNode fetches a node, or nil if absent.
func (s *SQLiteStore) GetNode(ctx context.Context, label, id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var propsJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT properties FROM nodes WHERE label = ? AND id = ?", label, id).Scan(&propsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var props map[string]interface{}
	json.Unmarshal([]byte(propsJSON), &props)
	return &Node{ID: id, Label: label, Properties: props}, nil
}

// CreateRelationship creates the edge if both endpoints exist. An existing
// edge is left untouched and reported false.
func (s *SQLiteStore) CreateRelationship(ctx context.Context, r Relationship) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ep := range []struct{ label, id string }{
		{r.SourceLabel, r.SourceID},
		{r.TargetLabel, r.TargetID},
	} {
		var n int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM nodes WHERE label = ? AND id = ?", ep.label, ep.id).Scan(&n); err != nil {
			return false, err
		}
		if n == 0 {
			return false, fmt.Errorf("relationship endpoint %s:%s not found", ep.label, ep.id)
		}
	}

	var existing int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM edges WHERE source_id = ? AND type = ? AND target_id = ?",
		r.SourceID, r.Type, r.TargetID).Scan(&existing); err != nil {
		return false, err
	}
	if existing > 0 {
		return false, nil
	}

	props, err := json.Marshal(r.Properties)
	if err != nil {
		return false, err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO edges (source_label, source_id, type, target_label, target_id, properties) VALUES (?, ?, ?, ?, ?, ?)",
		r.SourceLabel, r.SourceID, r.Type, r.TargetLabel, r.TargetID, string(props))
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteRelationship removes the edge if present.
func (s *SQLiteStore) DeleteRelationship(ctx context.Context, r Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM edges WHERE source_id = ? AND type = ? AND target_id = ?",
		r.SourceID, r.Type, r.TargetID)
	return err
}

// Query executes a read query from the supported subset.
func (s *SQLiteStore) Query(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SQLiteStore.Query")
	defer timer.Stop()

	spec, err := parseSubsetQuery(query, params)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return evalSubsetQuery(&sqliteData{s: s, ctx: ctx}, spec)
}

// Schema collects labels, relationship types, and property keys.
func (s *SQLiteStore) Schema(ctx context.Context) (*types.GraphSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schema := &types.GraphSchema{}

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT label FROM nodes ORDER BY label")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err == nil {
			schema.Labels = append(schema.Labels, label)
		}
	}

	relRows, err := s.db.QueryContext(ctx, "SELECT DISTINCT type FROM edges ORDER BY type")
	if err != nil {
		return nil, err
	}
	defer relRows.Close()
	for relRows.Next() {
		var t string
		if err := relRows.Scan(&t); err == nil {
			schema.RelationshipTypes = append(schema.RelationshipTypes, t)
		}
	}

	propKeys := make(map[string]bool)
	propRows, err := s.db.QueryContext(ctx, "SELECT properties FROM nodes")
	if err != nil {
		return nil, err
	}
	defer propRows.Close()
	for propRows.Next() {
		var propsJSON string
		if err := propRows.Scan(&propsJSON); err != nil {
			continue
		}
		var props map[string]interface{}
		if json.Unmarshal([]byte(propsJSON), &props) == nil {
			for k := range props {
				propKeys[k] = true
			}
		}
	}
	for k := range propKeys {
		schema.PropertyKeys = append(schema.PropertyKeys, k)
	}
	sort.Strings(schema.PropertyKeys)

	return schema, nil
}

// Sample returns up to limit nodes of the given label.
func (s *SQLiteStore) Sample(ctx context.Context, label string, limit int) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 3
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, properties FROM nodes WHERE label = ? ORDER BY id LIMIT ?", label, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var id, propsJSON string
		if err := rows.Scan(&id, &propsJSON); err != nil {
			continue
		}
		var props map[string]interface{}
		json.Unmarshal([]byte(propsJSON), &props)
		nodes = append(nodes, Node{ID: id, Label: label, Properties: props})
	}
	return nodes, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// sqliteData adapts the tables to the subset evaluator. The caller holds
// the store's read lock for the duration of the evaluation.
type sqliteData struct {
	s   *SQLiteStore
	ctx context.Context
}

func (d *sqliteData) nodesByLabel(label string) []Node {
	rows, err := d.s.db.QueryContext(d.ctx,
		"SELECT id, properties FROM nodes WHERE label = ? ORDER BY id", label)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Node scan failed: %v", err)
		return nil
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var id, propsJSON string
		if err := rows.Scan(&id, &propsJSON); err != nil {
			continue
		}
		var props map[string]interface{}
		json.Unmarshal([]byte(propsJSON), &props)
		nodes = append(nodes, Node{ID: id, Label: label, Properties: props})
	}
	return nodes
}

func (d *sqliteData) edgesFrom(sourceID, relType string) []Relationship {
	return d.scanEdges("SELECT source_label, source_id, type, target_label, target_id FROM edges WHERE source_id = ? AND type = ?", sourceID, relType)
}

func (d *sqliteData) edgesTo(targetID, relType string) []Relationship {
	return d.scanEdges("SELECT source_label, source_id, type, target_label, target_id FROM edges WHERE target_id = ? AND type = ?", targetID, relType)
}

func (d *sqliteData) scanEdges(query string, args ...interface{}) []Relationship {
	rows, err := d.s.db.QueryContext(d.ctx, query, args...)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Edge scan failed: %v", err)
		return nil
	}
	defer rows.Close()

	var edges []Relationship
	for rows.Next() {
		var e Relationship
		if err := rows.Scan(&e.SourceLabel, &e.SourceID, &e.Type, &e.TargetLabel, &e.TargetID); err == nil {
			edges = append(edges, e)
		}
	}
	return edges
}
