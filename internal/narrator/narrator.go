// Package narrator turns executed query results into a natural-language
// answer.
package narrator

import (
	"context"
	"fmt"
	"strings"

	"graphrag/internal/llm"
	"graphrag/internal/logging"
	"graphrag/internal/prompt"
	"graphrag/internal/types"
)

// Options bound one narration call.
type Options struct {
	Temperature    float64 `yaml:"temperature" json:"temperature"`
	MaxTokens      int     `yaml:"max_tokens" json:"max_tokens"`
	ProjectContext string  `yaml:"project_context" json:"project_context"`
}

// DefaultOptions mirror the configuration defaults.
func DefaultOptions() Options {
	return Options{Temperature: 0.4, MaxTokens: 1024}
}

// Answer is a narrated result.
type Answer struct {
	Text    string `json:"text"`
	Empty   bool   `json:"empty"`    // the query returned no rows
	UsedLLM bool   `json:"used_llm"` // false for the canned empty-result answer
}

// Narrator renders answers through the narration prompt and the LLM.
type Narrator struct {
	llm     llm.Client
	builder *prompt.Builder
	opts    Options
}

// NewNarrator wires a narrator.
func NewNarrator(client llm.Client, opts Options) *Narrator {
	def := DefaultOptions()
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = def.Temperature
	}
	return &Narrator{llm: client, builder: prompt.NewNarrationBuilder(), opts: opts}
}

// Builder exposes the narration prompt builder for startup-time
// reconfiguration. Callers must not mutate it once traffic is flowing.
func (n *Narrator) Builder() *prompt.Builder {
	return n.builder
}

// Narrate answers a question from executed rows. An empty result set is a
// normal outcome and is answered deterministically without an LLM call.
func (n *Narrator) Narrate(ctx context.Context, question, query string, rows []map[string]interface{}, stats *types.ExecutionStats) (*Answer, error) {
	timer := logging.StartTimer(logging.CategoryRAG, "Narrate")
	defer timer.Stop()

	if strings.TrimSpace(question) == "" {
		return nil, types.NewValidationError("question", "question must not be empty")
	}

	if len(rows) == 0 {
		return &Answer{
			Text:  fmt.Sprintf("No results were found for %q. The query ran successfully but matched nothing in the knowledge base.", question),
			Empty: true,
		}, nil
	}

	p := n.builder.Build(prompt.Inputs{
		Question:       question,
		Query:          query,
		Rows:           rows,
		Stats:          stats,
		ProjectContext: n.opts.ProjectContext,
	})

	text, err := n.llm.Complete(ctx, p, "", llm.Options{
		Temperature: n.opts.Temperature,
		MaxTokens:   n.opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("narration failed: %w", err)
	}
	logging.RAG("Narrated answer for %q from %d rows", question, len(rows))
	return &Answer{Text: strings.TrimSpace(text), UsedLLM: true}, nil
}
