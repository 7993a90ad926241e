package narrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"graphrag/internal/llm"
	"graphrag/internal/types"
)

type fakeLLM struct {
	reply   string
	prompts []string
	calls   int
	err     error
}

func (f *fakeLLM) Chat(_ context.Context, _ []llm.Message, _ llm.Options) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeLLM) Complete(_ context.Context, prompt, _ string, _ llm.Options) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.calls++
	return f.reply, f.err
}

func (f *fakeLLM) Model() string { return "fake-model" }

func TestNarrateEmptyResultSkipsLLM(t *testing.T) {
	fake := &fakeLLM{}
	n := NewNarrator(fake, DefaultOptions())

	ans, err := n.Narrate(context.Background(), "Which customers churned?", "MATCH (n:Customer) RETURN n LIMIT 25", nil, nil)
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}
	if !ans.Empty || ans.UsedLLM {
		t.Errorf("answer flags = %+v, want Empty without LLM", ans)
	}
	if !strings.Contains(ans.Text, "No results") {
		t.Errorf("answer does not say no results: %q", ans.Text)
	}
	if fake.calls != 0 {
		t.Errorf("LLM invoked %d times for an empty result", fake.calls)
	}
}

func TestNarrateBuildsPromptFromRows(t *testing.T) {
	fake := &fakeLLM{reply: "Acme is your largest customer."}
	n := NewNarrator(fake, DefaultOptions())

	rows := []map[string]interface{}{{"n.name": "Acme", "n.revenue": 100}}
	stats := &types.ExecutionStats{ExecutionTimeMs: 12, RowsReturned: 1}
	ans, err := n.Narrate(context.Background(), "Who is our largest customer?", "MATCH (n:Customer) RETURN n LIMIT 1", rows, stats)
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}
	if ans.Text != "Acme is your largest customer." {
		t.Errorf("answer = %q", ans.Text)
	}
	if !ans.UsedLLM || ans.Empty {
		t.Errorf("answer flags = %+v", ans)
	}

	p := fake.prompts[0]
	for _, want := range []string{"Who is our largest customer?", "MATCH (n:Customer)", "Acme", "1 rows in 12ms"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	// Section order: question before query before data.
	if strings.Index(p, "Question:") > strings.Index(p, "Query executed:") {
		t.Error("question section does not precede query section")
	}
}

func TestNarrateSurfacesLLMFailure(t *testing.T) {
	fake := &fakeLLM{err: errors.New("provider unreachable")}
	n := NewNarrator(fake, DefaultOptions())

	_, err := n.Narrate(context.Background(), "Who?", "MATCH (n) RETURN n", []map[string]interface{}{{"n": 1}}, nil)
	if err == nil || !strings.Contains(err.Error(), "narration failed") {
		t.Fatalf("expected wrapped narration error, got %v", err)
	}
}

func TestNarrateRejectsEmptyQuestion(t *testing.T) {
	n := NewNarrator(&fakeLLM{}, DefaultOptions())
	_, err := n.Narrate(context.Background(), " ", "", nil, nil)
	var vErr *types.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
