package prompt

import (
	"strings"
	"testing"
	"time"

	"graphrag/internal/types"
)

func testInputs() Inputs {
	return Inputs{
		Question: "Which clients are active?",
		Context: &types.ContextBundle{
			Schema: types.GraphSchema{
				Labels:            []string{"Client", "Project"},
				RelationshipTypes: []string{"HAS_PROJECT"},
				PropertyKeys:      []string{"name", "status"},
			},
			SimilarQueries: []types.SimilarQuery{
				{Question: "Show all clients", Query: "MATCH (c:Client) RETURN c LIMIT 25", Score: 0.91},
			},
			RelevantEntities: map[string][]types.SampleEntity{
				"Client": {{Label: "Client", ID: "c1", Properties: map[string]interface{}{"name": "Acme"}}},
			},
		},
		DetectedEntities: []string{"Client"},
		Today:            time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
	}
}

func TestQueryBuilderSectionOrder(t *testing.T) {
	b := NewQueryBuilder()
	out := b.Build(testInputs())

	ordered := []string{
		"Today's date is 2026-08-24",
		"Graph schema:",
		"Example entities:",
		"Previously answered questions",
		"entity types: Client",
		"Rules:",
		"Question: Which clients are active?",
		"Output only the query",
	}
	last := -1
	for _, marker := range ordered {
		idx := strings.Index(out, marker)
		if idx < 0 {
			t.Fatalf("Prompt missing %q:\n%s", marker, out)
		}
		if idx < last {
			t.Errorf("Section %q out of order", marker)
		}
		last = idx
	}
}

func TestBuilderSkipsEmptySections(t *testing.T) {
	b := NewQueryBuilder()
	out := b.Build(Inputs{Question: "anything"})

	for _, absent := range []string{"Graph schema:", "Example entities:", "Previously answered", "Context:"} {
		if strings.Contains(out, absent) {
			t.Errorf("Empty inputs must not emit %q", absent)
		}
	}
	if !strings.Contains(out, "Question: anything") {
		t.Error("Question section must always be present")
	}
}

func TestBuilderDeterministic(t *testing.T) {
	b := NewQueryBuilder()
	in := testInputs()
	if b.Build(in) != b.Build(in) {
		t.Error("Same inputs must produce identical prompts")
	}
}

func TestAddRemoveReplace(t *testing.T) {
	b := NewQueryBuilder()

	if err := b.Add(Section{Name: "question", Priority: 5, Format: func(Inputs) string { return "x" }}); err == nil {
		t.Error("Duplicate name must be rejected")
	}

	if err := b.Remove("pattern_library"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := b.Remove("pattern_library"); err == nil {
		t.Error("Removing twice must fail")
	}

	err := b.Replace("query_rules", Section{Format: func(Inputs) string { return "CUSTOM RULES" }})
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	out := b.Build(Inputs{Question: "q"})
	if !strings.Contains(out, "CUSTOM RULES") {
		t.Error("Replaced section not emitted")
	}
	if strings.Contains(out, "Rules:") {
		t.Error("Old section body still emitted after replace")
	}

	// Replacement keeps the position: custom rules stay before the question.
	if strings.Index(out, "CUSTOM RULES") > strings.Index(out, "Question: q") {
		t.Error("Replace must preserve ordering")
	}
}

func TestExtendBeforeAfter(t *testing.T) {
	b := NewQueryBuilder()

	name, err := b.ExtendBefore("question", func(Inputs) string { return "BEFORE-MARKER" })
	if err != nil {
		t.Fatalf("ExtendBefore failed: %v", err)
	}
	if _, err := b.ExtendAfter("question", func(Inputs) string { return "AFTER-MARKER" }); err != nil {
		t.Fatalf("ExtendAfter failed: %v", err)
	}

	out := b.Build(Inputs{Question: "q"})
	bi := strings.Index(out, "BEFORE-MARKER")
	qi := strings.Index(out, "Question: q")
	ai := strings.Index(out, "AFTER-MARKER")
	if bi < 0 || ai < 0 {
		t.Fatal("Synthetic sections not emitted")
	}
	if !(bi < qi && qi < ai) {
		t.Errorf("Synthetic ordering wrong: before=%d question=%d after=%d", bi, qi, ai)
	}

	// Synthetic sections are addressable for removal.
	if err := b.Remove(name); err != nil {
		t.Errorf("Synthetic section must be removable: %v", err)
	}

	if _, err := b.ExtendBefore("no_such_section", func(Inputs) string { return "" }); err == nil {
		t.Error("Extending an unknown section must fail")
	}
}

func TestNarrationBuilder(t *testing.T) {
	b := NewNarrationBuilder()
	out := b.Build(Inputs{
		Question: "How many projects?",
		Query:    "MATCH (p:Project) RETURN count(p) AS total LIMIT 1",
		Rows:     []map[string]interface{}{{"total": 2}},
		Stats:    &types.ExecutionStats{ExecutionTimeMs: 12, RowsReturned: 1},
	})

	for _, marker := range []string{"precise assistant", "Question: How many projects?", "Query executed:", `"total": 2`, "1 rows in 12ms", "Guidelines:"} {
		if !strings.Contains(out, marker) {
			t.Errorf("Narration prompt missing %q", marker)
		}
	}
}

func TestNarrationEmptyResults(t *testing.T) {
	b := NewNarrationBuilder()
	out := b.Build(Inputs{Question: "q", Query: "MATCH (n:X) RETURN n LIMIT 1"})
	if !strings.Contains(out, "Results: none.") {
		t.Error("Empty result set must be stated explicitly")
	}
}

func TestBuildWithStats(t *testing.T) {
	b := NewQueryBuilder()
	out, stats := b.BuildWithStats(testInputs())
	if stats.Chars != len(out) {
		t.Errorf("Char count mismatch: %d vs %d", stats.Chars, len(out))
	}
	if stats.Tokens <= 0 {
		t.Error("Token estimate must be positive")
	}
}
