package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"graphrag/internal/graph"
	"graphrag/internal/types"
)

// recordingStore wraps the in-memory graph store and records every query
// that reaches it.
type recordingStore struct {
	*graph.MemoryStore
	queries []string
	fail    error
	block   bool
}

func (r *recordingStore) Query(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	r.queries = append(r.queries, query)
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.fail != nil {
		return nil, r.fail
	}
	return r.MemoryStore.Query(ctx, query, params)
}

func customerStore(t *testing.T, n int) *recordingStore {
	t.Helper()
	s := &recordingStore{MemoryStore: graph.NewMemoryStore()}
	ctx := context.Background()
	for i := 0; i < n; i++ {
		err := s.CreateNode(ctx, graph.Node{
			ID:    fmt.Sprintf("c%d", i),
			Label: "Customer",
			Properties: map[string]interface{}{
				"name": fmt.Sprintf("customer-%d", i),
			},
		})
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	return s
}

func TestExecuteReadOnlyRejection(t *testing.T) {
	s := customerStore(t, 3)
	e := NewExecutor(s, DefaultConfig())

	_, err := e.Execute(context.Background(), "MATCH (n:Customer) DELETE n", nil, Options{ReadOnly: true})
	var violation *types.ReadOnlyViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected ReadOnlyViolation, got %v", err)
	}
	if !strings.Contains(violation.Error(), "DELETE") {
		t.Errorf("violation does not name DELETE: %v", violation)
	}
	if len(s.queries) != 0 {
		t.Errorf("store received %d queries after a read-only rejection", len(s.queries))
	}
}

func TestExecuteRejectsEmptyQuery(t *testing.T) {
	e := NewExecutor(customerStore(t, 0), DefaultConfig())
	_, err := e.Execute(context.Background(), "   ", nil, Options{})
	var vErr *types.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestExecuteInjectsLimit(t *testing.T) {
	s := customerStore(t, 3)
	cfg := DefaultConfig()
	cfg.DefaultLimit = 7
	e := NewExecutor(s, cfg)

	res, err := e.Execute(context.Background(), "MATCH (n:Customer) RETURN n", nil, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.Success {
		t.Error("result not marked successful")
	}
	if len(s.queries) != 1 || !strings.Contains(s.queries[0], "LIMIT 7") {
		t.Errorf("dispatched query missing injected limit: %v", s.queries)
	}
}

func TestExecuteClampsRequestedLimit(t *testing.T) {
	s := customerStore(t, 3)
	cfg := DefaultConfig()
	cfg.MaxLimit = 50
	e := NewExecutor(s, cfg)

	res, err := e.Execute(context.Background(), "MATCH (n:Customer) RETURN n", nil, Options{Limit: 500})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(s.queries[0], "LIMIT 50") {
		t.Errorf("limit not clamped: %q", s.queries[0])
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "clamped") {
		t.Errorf("no clamp warning: %v", res.Warnings)
	}
}

func TestExecuteClampsExistingLimitClause(t *testing.T) {
	s := customerStore(t, 3)
	cfg := DefaultConfig()
	cfg.MaxLimit = 10
	e := NewExecutor(s, cfg)

	res, err := e.Execute(context.Background(), "MATCH (n:Customer) RETURN n LIMIT 9999", nil, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(s.queries[0], "LIMIT 10") || strings.Contains(s.queries[0], "9999") {
		t.Errorf("existing limit not clamped: %q", s.queries[0])
	}
	if len(res.Warnings) == 0 {
		t.Error("no clamp warning")
	}
}

func TestExecuteTimeout(t *testing.T) {
	s := &recordingStore{MemoryStore: graph.NewMemoryStore(), block: true}
	e := NewExecutor(s, DefaultConfig())

	_, err := e.Execute(context.Background(), "MATCH (n:Customer) RETURN n", nil, Options{Timeout: 30 * time.Millisecond})
	var timeout *types.QueryTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("expected QueryTimeout, got %v", err)
	}
}

func TestExecuteWrapsStoreErrors(t *testing.T) {
	s := &recordingStore{MemoryStore: graph.NewMemoryStore(), fail: errors.New("connection reset")}
	e := NewExecutor(s, DefaultConfig())

	_, err := e.Execute(context.Background(), "MATCH (n:Customer) RETURN n", nil, Options{})
	var execErr *types.QueryExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected QueryExecutionError, got %v", err)
	}
	if !strings.Contains(execErr.Error(), "connection reset") {
		t.Errorf("original message lost: %v", execErr)
	}
}

func TestExecuteTableFormatFlattens(t *testing.T) {
	s := customerStore(t, 1)
	e := NewExecutor(s, DefaultConfig())

	res, err := e.Execute(context.Background(), "MATCH (n:Customer) RETURN n", nil, Options{Format: "table"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(res.Data) != 1 {
		t.Fatalf("rows = %d, want 1", len(res.Data))
	}
	if res.Data[0]["n.name"] != "customer-0" {
		t.Errorf("table row not flattened: %v", res.Data[0])
	}
}

func TestExecuteGraphFormatPreservesShape(t *testing.T) {
	s := customerStore(t, 1)
	e := NewExecutor(s, DefaultConfig())

	res, err := e.Execute(context.Background(), "MATCH (n:Customer) RETURN n", nil, Options{Format: "graph"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if _, ok := res.Data[0]["n"].(map[string]interface{}); !ok {
		t.Errorf("graph row flattened: %v", res.Data[0])
	}
}

func TestExecuteCount(t *testing.T) {
	s := customerStore(t, 42)
	e := NewExecutor(s, DefaultConfig())

	total, err := e.ExecuteCount(context.Background(), "MATCH (n:Customer) RETURN n", nil, Options{})
	if err != nil {
		t.Fatalf("ExecuteCount failed: %v", err)
	}
	if total != 42 {
		t.Errorf("total = %d, want 42", total)
	}
	if !strings.Contains(s.queries[0], "count(*)") {
		t.Errorf("count rewrite missing: %q", s.queries[0])
	}
}

func TestExecutePaginated(t *testing.T) {
	s := customerStore(t, 100)
	e := NewExecutor(s, DefaultConfig())

	res, err := e.ExecutePaginated(context.Background(), "MATCH (n:Customer) RETURN n", nil, 2, 20, Options{})
	if err != nil {
		t.Fatalf("ExecutePaginated failed: %v", err)
	}
	// Second query is the windowed one; the first is the count.
	windowed := s.queries[1]
	if !strings.Contains(windowed, "SKIP 20") || !strings.Contains(windowed, "LIMIT 20") {
		t.Errorf("windowed query = %q", windowed)
	}
	want := types.Pagination{CurrentPage: 2, PerPage: 20, Total: 100, LastPage: 5}
	if *res.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", *res.Pagination, want)
	}
	if len(res.Data) > 20 {
		t.Errorf("page carries %d rows, per-page is 20", len(res.Data))
	}
}

func TestExecutePaginatedCoercesPage(t *testing.T) {
	s := customerStore(t, 10)
	e := NewExecutor(s, DefaultConfig())

	res, err := e.ExecutePaginated(context.Background(), "MATCH (n:Customer) RETURN n", nil, -3, 5, Options{})
	if err != nil {
		t.Fatalf("ExecutePaginated failed: %v", err)
	}
	if res.Pagination.CurrentPage != 1 {
		t.Errorf("current_page = %d, want 1", res.Pagination.CurrentPage)
	}
	if !strings.Contains(s.queries[1], "SKIP 0") {
		t.Errorf("windowed query = %q", s.queries[1])
	}
}

func TestTestReportsExplainOutcome(t *testing.T) {
	good := customerStore(t, 1)
	e := NewExecutor(good, DefaultConfig())
	// The in-memory store does not understand EXPLAIN, so a failure path is
	// what we can assert deterministically.
	if e.Test(context.Background(), "MATCH (n:Customer) RETURN n", nil) {
		t.Error("Test succeeded against a store without EXPLAIN support")
	}

	cfg := DefaultConfig()
	cfg.EnableExplain = false
	e = NewExecutor(customerStore(t, 1), cfg)
	if _, err := e.Explain(context.Background(), "MATCH (n) RETURN n", nil); err == nil {
		t.Error("Explain succeeded while disabled")
	}
}
