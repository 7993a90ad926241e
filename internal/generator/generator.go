// Package generator converts a question plus retrieval context into a
// validated, read-only, bounded graph query.
package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"graphrag/internal/entity"
	"graphrag/internal/llm"
	"graphrag/internal/logging"
	"graphrag/internal/pattern"
	"graphrag/internal/prompt"
	"graphrag/internal/types"
)

// Options bound one generation call.
type Options struct {
	Temperature       float64 `yaml:"temperature" json:"temperature"`
	Explain           bool    `yaml:"explain" json:"explain"`
	AllowWrite        bool    `yaml:"allow_write_operations" json:"allow_write_operations"`
	MaxComplexity     int     `yaml:"max_complexity" json:"max_complexity"`
	EnableTemplates   bool    `yaml:"enable_templates" json:"enable_templates"`
	TemplateThreshold float64 `yaml:"template_confidence_threshold" json:"template_confidence_threshold"`
	MaxRetries        int     `yaml:"max_retries" json:"max_retries"`
	DefaultLimit      int     `yaml:"default_limit" json:"default_limit"`
	MaxTokens         int     `yaml:"max_tokens" json:"max_tokens"`
	ProjectContext    string  `yaml:"project_context" json:"project_context"`
}

// DefaultOptions mirror the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Temperature:       0.2,
		MaxComplexity:     10,
		EnableTemplates:   true,
		TemplateThreshold: 0.8,
		MaxRetries:        2,
		DefaultLimit:      25,
		MaxTokens:         1024,
	}
}

// Generated is the outcome of a generation call.
type Generated struct {
	Cypher      string                 `json:"cypher"`
	Explanation string                 `json:"explanation,omitempty"`
	Confidence  float64                `json:"confidence"`
	Warnings    []string               `json:"warnings,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Generator drives the template/LLM pipeline.
type Generator struct {
	llm      llm.Client
	builder  *prompt.Builder
	registry *entity.Registry // may be nil
	patterns *pattern.Library
	opts     Options
}

// NewGenerator wires the generator. registry may be nil when no entity
// metadata is configured; detection then falls back to schema labels.
func NewGenerator(client llm.Client, registry *entity.Registry, patterns *pattern.Library, opts Options) *Generator {
	if patterns == nil {
		patterns = pattern.NewLibrary()
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultOptions().DefaultLimit
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultOptions().MaxTokens
	}
	return &Generator{
		llm:      client,
		builder:  prompt.NewQueryBuilder(),
		registry: registry,
		patterns: patterns,
		opts:     opts,
	}
}

// Builder exposes the prompt builder for startup-time reconfiguration.
// Callers must not mutate it once generation traffic is flowing.
func (g *Generator) Builder() *prompt.Builder {
	return g.builder
}

// Generate runs the full pipeline: template short-circuit, entity and
// scope detection, prompt assembly, LLM call with validation retries,
// sanitization, optional explanation.
func (g *Generator) Generate(ctx context.Context, question string, bundle *types.ContextBundle) (*Generated, error) {
	timer := logging.StartTimer(logging.CategoryGenerator, "Generate")
	defer timer.Stop()

	if strings.TrimSpace(question) == "" {
		return nil, types.NewValidationError("question", "question must not be empty")
	}
	if bundle == nil {
		bundle = &types.ContextBundle{Question: question}
	}

	// Template short-circuit.
	if g.opts.EnableTemplates {
		if m := DetectTemplate(question, bundle.Schema); m.Template != "" && m.Score >= g.opts.TemplateThreshold {
			if cypher := m.Render(g.opts.DefaultLimit); cypher != "" {
				logging.Generator("Template %q matched %q (score=%.2f), skipping LLM", m.Template, question, m.Score)
				return &Generated{
					Cypher:     Sanitize(cypher, g.opts.DefaultLimit),
					Confidence: m.Score,
					Metadata: map[string]interface{}{
						"template_used": m.Template,
						"retry_count":   0,
					},
				}, nil
			}
		}
	}

	detectedEntities, detectedScopes := g.detect(question, bundle)

	in := prompt.Inputs{
		Question:          question,
		Context:           bundle,
		DetectedEntities:  detectedEntities,
		DetectedScopes:    detectedScopes,
		Patterns:          g.patterns.All(),
		RelationshipHints: g.relationshipHints(),
		ProjectContext:    g.opts.ProjectContext,
		Today:             time.Now(),
	}
	basePrompt, stats := g.builder.BuildWithStats(in)
	logging.GeneratorDebug("Prompt assembled: %d chars, ~%d tokens", stats.Chars, stats.Tokens)

	llmOpts := llm.Options{Temperature: g.opts.Temperature, MaxTokens: g.opts.MaxTokens}

	var (
		lastQuery string
		issues    []string
	)
	attempts := g.opts.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		p := basePrompt
		if attempt > 0 {
			p = refinePrompt(basePrompt, lastQuery, issues)
		}

		raw, err := g.llm.Complete(ctx, p, "", llmOpts)
		if err != nil {
			return nil, fmt.Errorf("query generation failed: %w", err)
		}
		query := ExtractQuery(raw)
		lastQuery = query

		v := Validate(query, g.opts.AllowWrite, g.opts.MaxComplexity)
		if !v.Valid {
			issues = append(issues, v.Errors...)
			logging.Generator("Attempt %d rejected: %s", attempt+1, strings.Join(v.Errors, "; "))
			continue
		}

		out := &Generated{
			Cypher:     Sanitize(query, g.opts.DefaultLimit),
			Confidence: confidence(attempt),
			Warnings:   v.Warnings,
			Metadata: map[string]interface{}{
				"retry_count":   attempt,
				"prompt_tokens": stats.Tokens,
				"complexity":    v.Complexity,
			},
		}
		if g.opts.Explain {
			out.Explanation = g.explain(ctx, question, out.Cypher)
		}
		logging.Generator("Generated query for %q on attempt %d", question, attempt+1)
		return out, nil
	}

	return nil, &types.QueryGenerationError{
		Question: question,
		Attempts: attempts,
		Issues:   lo.Uniq(issues),
	}
}

// detect matches the question against registry aliases and scope names,
// falling back to bare schema labels when no registry is configured.
func (g *Generator) detect(question string, bundle *types.ContextBundle) (entities, scopes []string) {
	if g.registry != nil {
		for _, key := range g.registry.DetectAliases(question) {
			if def, ok := g.registry.Get(key); ok {
				entities = append(entities, def.Graph.Label)
			}
		}
		for _, sc := range g.registry.DetectScopes(question) {
			scopes = append(scopes, sc.Name)
		}
	}
	if len(entities) == 0 {
		if label, _ := matchLabel(tokenize(question), bundle.Schema.Labels); label != "" {
			entities = append(entities, label)
		}
	}
	return lo.Uniq(entities), scopes
}

// relationshipHints renders the registry's declared edges as pattern
// strings for the prompt.
func (g *Generator) relationshipHints() []string {
	if g.registry == nil {
		return nil
	}
	var hints []string
	for _, key := range g.registry.Keys() {
		def, ok := g.registry.Get(key)
		if !ok {
			continue
		}
		for _, rel := range def.Graph.Relationships {
			hints = append(hints, fmt.Sprintf("(:%s)-[:%s]->(:%s)", def.Graph.Label, rel.Type, rel.TargetLabel))
		}
	}
	return lo.Uniq(hints)
}

// refinePrompt appends the rejected query and validator feedback so the
// model can correct itself.
func refinePrompt(base, lastQuery string, issues []string) string {
	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\nYour previous attempt was rejected.\nPrevious query:\n")
	sb.WriteString(lastQuery)
	sb.WriteString("\nProblems:\n")
	for _, issue := range lo.Uniq(issues) {
		sb.WriteString("- " + issue + "\n")
	}
	sb.WriteString("Produce a corrected query that fixes every problem. Output only the query.")
	return sb.String()
}

func confidence(retries int) float64 {
	c := 0.9 - 0.2*float64(retries)
	if c < 0.1 {
		c = 0.1
	}
	return c
}

// explain issues a short second call describing the query; failures only
// cost the explanation.
func (g *Generator) explain(ctx context.Context, question, cypher string) string {
	p := fmt.Sprintf("In one short paragraph, describe in plain language what this graph query does and how it answers the question %q:\n%s", question, cypher)
	text, err := g.llm.Complete(ctx, p, "", llm.Options{Temperature: 0.3, MaxTokens: 256})
	if err != nil {
		logging.Generator("Explanation call failed: %v", err)
		return ""
	}
	return strings.TrimSpace(text)
}
