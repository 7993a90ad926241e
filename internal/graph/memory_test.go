package graph

import (
	"context"
	"testing"
)

func seedGraph(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	ctx := context.Background()

	nodes := []Node{
		{ID: "c1", Label: "Client", Properties: map[string]interface{}{"name": "Acme", "status": "active", "revenue": 100}},
		{ID: "c2", Label: "Client", Properties: map[string]interface{}{"name": "Globex", "status": "active", "revenue": 250}},
		{ID: "c3", Label: "Client", Properties: map[string]interface{}{"name": "Initech", "status": "archived", "revenue": 50}},
		{ID: "p1", Label: "Project", Properties: map[string]interface{}{"name": "Rollout"}},
		{ID: "p2", Label: "Project", Properties: map[string]interface{}{"name": "Migration"}},
	}
	for _, n := range nodes {
		if err := s.CreateNode(ctx, n); err != nil {
			t.Fatalf("CreateNode(%s) failed: %v", n.ID, err)
		}
	}

	rels := []Relationship{
		{SourceLabel: "Client", SourceID: "c1", Type: "HAS_PROJECT", TargetLabel: "Project", TargetID: "p1"},
		{SourceLabel: "Client", SourceID: "c2", Type: "HAS_PROJECT", TargetLabel: "Project", TargetID: "p2"},
	}
	for _, r := range rels {
		if _, err := s.CreateRelationship(ctx, r); err != nil {
			t.Fatalf("CreateRelationship failed: %v", err)
		}
	}
	return s
}

func TestNodeCRUD(t *testing.T) {
	s := seedGraph(t)
	ctx := context.Background()

	exists, err := s.NodeExists(ctx, "Client", "c1")
	if err != nil || !exists {
		t.Fatalf("Expected c1 to exist, got %v err=%v", exists, err)
	}

	if err := s.UpdateNode(ctx, Node{ID: "c1", Label: "Client", Properties: map[string]interface{}{"status": "dormant"}}); err != nil {
		t.Fatalf("UpdateNode failed: %v", err)
	}
	n, err := s.GetNode(ctx, "Client", "c1")
	if err != nil || n == nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if n.Properties["status"] != "dormant" {
		t.Errorf("Update did not merge: %v", n.Properties["status"])
	}
	if n.Properties["name"] != "Acme" {
		t.Errorf("Update clobbered unrelated property: %v", n.Properties["name"])
	}

	if err := s.UpdateNode(ctx, Node{ID: "nope", Label: "Client"}); err == nil {
		t.Error("Expected error updating absent node")
	}

	if err := s.DeleteNode(ctx, "Client", "c1"); err != nil {
		t.Fatalf("DeleteNode failed: %v", err)
	}
	n, _ = s.GetNode(ctx, "Client", "c1")
	if n != nil {
		t.Error("Node still present after delete")
	}

	// Edges attached to the node must be gone too.
	rows, err := s.Query(ctx, "MATCH (c:Client)-[:HAS_PROJECT]->(p:Project) RETURN c", nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("Expected 1 remaining relationship, got %d", len(rows))
	}
}

func TestRelationshipIdempotent(t *testing.T) {
	s := seedGraph(t)
	ctx := context.Background()

	r := Relationship{SourceLabel: "Client", SourceID: "c1", Type: "HAS_PROJECT", TargetLabel: "Project", TargetID: "p1"}
	created, err := s.CreateRelationship(ctx, r)
	if err != nil {
		t.Fatalf("Re-creating existing relationship must succeed: %v", err)
	}
	if created {
		t.Error("Pre-existing edge must be reported as not created")
	}

	fresh := Relationship{SourceLabel: "Client", SourceID: "c3", Type: "HAS_PROJECT", TargetLabel: "Project", TargetID: "p1"}
	created, err = s.CreateRelationship(ctx, fresh)
	if err != nil {
		t.Fatalf("CreateRelationship failed: %v", err)
	}
	if !created {
		t.Error("New edge must be reported as created")
	}

	rows, err := s.Query(ctx, "MATCH (c:Client)-[:HAS_PROJECT]->(p:Project) WHERE c.id = 'c1' RETURN p", nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("Duplicate edge created: %d rows", len(rows))
	}

	bad := Relationship{SourceLabel: "Client", SourceID: "ghost", Type: "HAS_PROJECT", TargetLabel: "Project", TargetID: "p1"}
	if _, err := s.CreateRelationship(ctx, bad); err == nil {
		t.Error("Expected error for missing endpoint")
	}
}

func TestQueryFilterAndOrder(t *testing.T) {
	s := seedGraph(t)
	ctx := context.Background()

	rows, err := s.Query(ctx, "MATCH (c:Client) WHERE c.status = 'active' RETURN c ORDER BY c.revenue DESC", nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 active clients, got %d", len(rows))
	}
	first := rows[0]["c"].(map[string]interface{})
	if first["name"] != "Globex" {
		t.Errorf("Expected Globex first by revenue DESC, got %v", first["name"])
	}
}

func TestQueryCount(t *testing.T) {
	s := seedGraph(t)

	rows, err := s.Query(context.Background(), "MATCH (c:Client) RETURN count(c) AS total", nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 || rows[0]["total"] != 3 {
		t.Errorf("Expected count 3, got %v", rows)
	}
}

func TestQueryNumericComparison(t *testing.T) {
	s := seedGraph(t)

	rows, err := s.Query(context.Background(),
		"MATCH (c:Client) WHERE c.revenue >= 100 RETURN c.name LIMIT 10", nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("Expected 2 clients with revenue >= 100, got %d", len(rows))
	}
}

func TestQueryParameters(t *testing.T) {
	s := seedGraph(t)

	rows, err := s.Query(context.Background(),
		"MATCH (c:Client) WHERE c.name = $name RETURN c",
		map[string]interface{}{"name": "Acme"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}

	if _, err := s.Query(context.Background(),
		"MATCH (c:Client) WHERE c.name = $missing RETURN c", nil); err == nil {
		t.Error("Expected error for missing parameter")
	}
}

func TestQuerySkipLimit(t *testing.T) {
	s := seedGraph(t)

	rows, err := s.Query(context.Background(),
		"MATCH (c:Client) RETURN c ORDER BY c.name SKIP 1 LIMIT 1", nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	node := rows[0]["c"].(map[string]interface{})
	if node["name"] != "Globex" {
		t.Errorf("Expected Globex (second by name), got %v", node["name"])
	}
}

func TestQueryIncomingRelationship(t *testing.T) {
	s := seedGraph(t)

	rows, err := s.Query(context.Background(),
		"MATCH (p:Project)<-[:HAS_PROJECT]-(c:Client) WHERE c.name = 'Acme' RETURN p.name", nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 || rows[0]["p.name"] != "Rollout" {
		t.Errorf("Expected Rollout, got %v", rows)
	}
}

func TestQueryUnsupportedShape(t *testing.T) {
	s := seedGraph(t)

	unsupported := []string{
		"CREATE (n:Client {id: 'x'})",
		"MATCH (a:Client)-[:R*1..3]->(b:Client) RETURN a",
		"MATCH (c:Client) RETURN c UNION MATCH (p:Project) RETURN p",
	}
	for _, q := range unsupported {
		if _, err := s.Query(context.Background(), q, nil); err == nil {
			t.Errorf("Expected unsupported-query error for %q", q)
		}
	}
}

func TestSchemaIntrospection(t *testing.T) {
	s := seedGraph(t)

	schema, err := s.Schema(context.Background())
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	if !schema.HasLabel("Client") || !schema.HasLabel("Project") {
		t.Errorf("Missing labels: %v", schema.Labels)
	}
	if len(schema.RelationshipTypes) != 1 || schema.RelationshipTypes[0] != "HAS_PROJECT" {
		t.Errorf("Unexpected relationship types: %v", schema.RelationshipTypes)
	}
}

func TestSampleRespectsLimit(t *testing.T) {
	s := seedGraph(t)

	nodes, err := s.Sample(context.Background(), "Client", 2)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if len(nodes) != 2 {
		t.Errorf("Expected 2 samples, got %d", len(nodes))
	}
}

func TestSampleOrderedByID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// Insertion order deliberately differs from id order.
	for _, id := range []string{"c3", "c1", "c2"} {
		if err := s.CreateNode(ctx, Node{ID: id, Label: "Client", Properties: map[string]interface{}{}}); err != nil {
			t.Fatalf("CreateNode failed: %v", err)
		}
	}

	nodes, err := s.Sample(ctx, "Client", 2)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if len(nodes) != 2 || nodes[0].ID != "c1" || nodes[1].ID != "c2" {
		got := make([]string, len(nodes))
		for i, n := range nodes {
			got[i] = n.ID
		}
		t.Errorf("Sample order = %v, want [c1 c2]", got)
	}
}
