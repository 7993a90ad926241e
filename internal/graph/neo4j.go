package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"graphrag/internal/logging"
	"graphrag/internal/types"
)

// =============================================================================
// NEO4J STORE
// =============================================================================

// Neo4jStore talks to Neo4j over the transactional Cypher HTTP endpoint.
type Neo4jStore struct {
	baseURL  string
	database string
	username string
	password string
	client   *http.Client
}

// NewNeo4jStore creates a Neo4j adapter. It does not dial eagerly; the
// first operation surfaces connectivity errors.
func NewNeo4jStore(cfg Config) (*Neo4jStore, error) {
	url := cfg.URL
	if url == "" {
		url = "http://localhost:7474"
	}
	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}

	return &Neo4jStore{
		baseURL:  strings.TrimSuffix(url, "/"),
		database: database,
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type cypherStatement struct {
	Statement  string                 `json:"statement"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

type cypherRequest struct {
	Statements []cypherStatement `json:"statements"`
}

type cypherResponse struct {
	Results []struct {
		Columns []string `json:"columns"`
		Data    []struct {
			Row []json.RawMessage `json:"row"`
		} `json:"data"`
	} `json:"results"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// run executes statements in one auto-commit transaction and returns the
// per-statement results.
func (s *Neo4jStore) run(ctx context.Context, statements ...cypherStatement) (*cypherResponse, error) {
	body, err := json.Marshal(cypherRequest{Statements: statements})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cypher request: %w", err)
	}

	url := fmt.Sprintf("%s/db/%s/tx/commit", s.baseURL, s.database)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if s.username != "" {
		httpReq.SetBasicAuth(s.username, s.password)
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("neo4j request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read neo4j response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("neo4j returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result cypherResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode neo4j response: %w", err)
	}
	if len(result.Errors) > 0 {
		e := result.Errors[0]
		return nil, fmt.Errorf("neo4j error %s: %s", e.Code, e.Message)
	}

	logging.StoreDebug("Neo4j executed %d statement(s) in %v", len(statements), time.Since(start))
	return &result, nil
}

// escapeIdentifier backtick-quotes a label or relationship type so it can
// be spliced into a query. Identifiers come from the entity registry, not
// from user input, but quoting keeps unusual names safe.
func escapeIdentifier(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// CreateNode creates or replaces the node identified by (label, id).
func (s *Neo4jStore) CreateNode(ctx context.Context, n Node) error {
	props := make(map[string]interface{}, len(n.Properties)+1)
	for k, v := range n.Properties {
		props[k] = v
	}
	props["id"] = n.ID

	query := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n = $props", escapeIdentifier(n.Label))
	_, err := s.run(ctx, cypherStatement{
		Statement:  query,
		Parameters: map[string]interface{}{"id": n.ID, "props": props},
	})
	return err
}

// UpdateNode merges properties into an existing node.
func (s *Neo4jStore) UpdateNode(ctx context.Context, n Node) error {
	query := fmt.Sprintf("MATCH (n:%s {id: $id}) SET n += $props RETURN n.id", escapeIdentifier(n.Label))
	resp, err := s.run(ctx, cypherStatement{
		Statement:  query,
		Parameters: map[string]interface{}{"id": n.ID, "props": n.Properties},
	})
	if err != nil {
		return err
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Data) == 0 {
		return fmt.Errorf("node %s:%s not found", n.Label, n.ID)
	}
	return nil
}

// DeleteNode removes the node and its attached relationships.
func (s *Neo4jStore) DeleteNode(ctx context.Context, label, id string) error {
	query := fmt.Sprintf("MATCH (n:%s {id: $id}) DETACH DELETE n", escapeIdentifier(label))
	_, err := s.run(ctx, cypherStatement{
		Statement:  query,
		Parameters: map[string]interface{}{"id": id},
	})
	return err
}

// NodeExists reports whether the node exists.
func (s *Neo4jStore) NodeExists(ctx context.Context, label, id string) (bool, error) {
	query := fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN count(n) AS c", escapeIdentifier(label))
	resp, err := s.run(ctx, cypherStatement{
		Statement:  query,
		Parameters: map[string]interface{}{"id": id},
	})
	if err != nil {
		return false, err
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Data) == 0 {
		return false, nil
	}
	var count int
	if err := json.Unmarshal(resp.Results[0].Data[0].Row[0], &count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetNode fetches a node, or nil if absent.
func (s *Neo4jStore) GetNode(ctx context.Context, label, id string) (*Node, error) {
	query := fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN n", escapeIdentifier(label))
	resp, err := s.run(ctx, cypherStatement{
		Statement:  query,
		Parameters: map[string]interface{}{"id": id},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Data) == 0 {
		return nil, nil
	}

	var props map[string]interface{}
	if err := json.Unmarshal(resp.Results[0].Data[0].Row[0], &props); err != nil {
		return nil, fmt.Errorf("failed to decode node: %w", err)
	}
	return &Node{ID: id, Label: label, Properties: props}, nil
}

// CreateRelationship creates the edge if both endpoints exist. MERGE keeps
// the operation idempotent; the ON CREATE marker tells matched-vs-created
// apart so an existing edge is left untouched and reported false.
func (s *Neo4jStore) CreateRelationship(ctx context.Context, r Relationship) (bool, error) {
	query := fmt.Sprintf(
		"MATCH (a:%s {id: $sid}) MATCH (b:%s {id: $tid}) "+
			"MERGE (a)-[rel:%s]->(b) ON CREATE SET rel += $props, rel._created = true "+
			"WITH rel, coalesce(rel._created, false) AS created "+
			"REMOVE rel._created RETURN created",
		escapeIdentifier(r.SourceLabel), escapeIdentifier(r.TargetLabel), escapeIdentifier(r.Type),
	)
	props := r.Properties
	if props == nil {
		props = map[string]interface{}{}
	}
	resp, err := s.run(ctx, cypherStatement{
		Statement:  query,
		Parameters: map[string]interface{}{"sid": r.SourceID, "tid": r.TargetID, "props": props},
	})
	if err != nil {
		return false, err
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Data) == 0 {
		return false, fmt.Errorf("relationship endpoints not found: %s:%s -[%s]-> %s:%s",
			r.SourceLabel, r.SourceID, r.Type, r.TargetLabel, r.TargetID)
	}
	var created bool
	if row := resp.Results[0].Data[0].Row; len(row) > 0 {
		json.Unmarshal(row[0], &created)
	}
	return created, nil
}

// DeleteRelationship removes the edge if present.
func (s *Neo4jStore) DeleteRelationship(ctx context.Context, r Relationship) error {
	query := fmt.Sprintf(
		"MATCH (a:%s {id: $sid})-[rel:%s]->(b:%s {id: $tid}) DELETE rel",
		escapeIdentifier(r.SourceLabel), escapeIdentifier(r.Type), escapeIdentifier(r.TargetLabel),
	)
	_, err := s.run(ctx, cypherStatement{
		Statement:  query,
		Parameters: map[string]interface{}{"sid": r.SourceID, "tid": r.TargetID},
	})
	return err
}

// Query executes a read query and maps each row onto its return aliases.
func (s *Neo4jStore) Query(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Neo4jStore.Query")
	defer timer.Stop()

	resp, err := s.run(ctx, cypherStatement{Statement: query, Parameters: params})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	result := resp.Results[0]
	rows := make([]map[string]interface{}, 0, len(result.Data))
	for _, d := range result.Data {
		row := make(map[string]interface{}, len(result.Columns))
		for i, col := range result.Columns {
			if i >= len(d.Row) {
				break
			}
			var v interface{}
			if err := json.Unmarshal(d.Row[i], &v); err != nil {
				return nil, fmt.Errorf("failed to decode column %s: %w", col, err)
			}
			row[col] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Schema introspects labels, relationship types, and property keys in a
// single round trip.
func (s *Neo4jStore) Schema(ctx context.Context) (*types.GraphSchema, error) {
	resp, err := s.run(ctx,
		cypherStatement{Statement: "CALL db.labels()"},
		cypherStatement{Statement: "CALL db.relationshipTypes()"},
		cypherStatement{Statement: "CALL db.propertyKeys()"},
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) < 3 {
		return nil, fmt.Errorf("incomplete schema response: %d results", len(resp.Results))
	}

	collect := func(idx int) []string {
		var out []string
		for _, d := range resp.Results[idx].Data {
			if len(d.Row) == 0 {
				continue
			}
			var v string
			if err := json.Unmarshal(d.Row[0], &v); err == nil {
				out = append(out, v)
			}
		}
		return out
	}

	return &types.GraphSchema{
		Labels:            collect(0),
		RelationshipTypes: collect(1),
		PropertyKeys:      collect(2),
	}, nil
}

// Sample returns up to limit nodes of the given label.
func (s *Neo4jStore) Sample(ctx context.Context, label string, limit int) ([]Node, error) {
	if limit <= 0 {
		limit = 3
	}
	query := fmt.Sprintf("MATCH (n:%s) RETURN n LIMIT %d", escapeIdentifier(label), limit)
	resp, err := s.run(ctx, cypherStatement{Statement: query})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	var nodes []Node
	for _, d := range resp.Results[0].Data {
		if len(d.Row) == 0 {
			continue
		}
		var props map[string]interface{}
		if err := json.Unmarshal(d.Row[0], &props); err != nil {
			continue
		}
		id, _ := props["id"].(string)
		nodes = append(nodes, Node{ID: id, Label: label, Properties: props})
	}
	return nodes, nil
}

// Close is a no-op; the HTTP client holds no persistent connection state.
func (s *Neo4jStore) Close() error {
	return nil
}
