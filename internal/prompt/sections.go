package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Section priorities are a contract between the generator, the narrator,
// and anything that extends the builders: extensions anchor on these names
// and orders.

const queryRules = `Rules:
- Produce exactly one read-only query. Never use CREATE, MERGE, DELETE, SET, REMOVE, DROP, or DETACH.
- Match nodes by their declared labels and filter on declared property keys only.
- String comparisons are case-sensitive; use CONTAINS for substring matching.
- Always end the query with an explicit LIMIT clause.
- Return nodes or properties, not paths.`

const narrationGuidelines = `Guidelines:
- Answer using only the data provided above. Do not invent values.
- If the data is empty, say that nothing matched; do not speculate why.
- Mention counts exactly as given.
- Keep the answer short and direct.`

// maxNarrationRows bounds how much result data is inlined into the
// narration prompt.
const maxNarrationRows = 50

// NewQueryBuilder returns the section set used to ask the LLM for a graph
// query.
func NewQueryBuilder() *Builder {
	b := NewBuilder()
	mustAdd := func(s Section) {
		if err := b.Add(s); err != nil {
			panic(err)
		}
	}

	mustAdd(Section{
		Name:     "project_context",
		Priority: 10,
		Include:  func(in Inputs) bool { return in.ProjectContext != "" },
		Format:   func(in Inputs) string { return "Context:\n" + in.ProjectContext },
	})
	mustAdd(Section{
		Name:     "generic_context",
		Priority: 15,
		Include:  func(in Inputs) bool { return !in.Today.IsZero() },
		Format: func(in Inputs) string {
			return fmt.Sprintf("Today's date is %s.", in.Today.Format("2006-01-02"))
		},
	})
	mustAdd(Section{
		Name:     "schema",
		Priority: 20,
		Include:  func(in Inputs) bool { return in.Context != nil && !in.Context.Schema.IsEmpty() },
		Format: func(in Inputs) string {
			s := in.Context.Schema
			var sb strings.Builder
			sb.WriteString("Graph schema:\n")
			sb.WriteString("Node labels: " + strings.Join(s.Labels, ", ") + "\n")
			if len(s.RelationshipTypes) > 0 {
				sb.WriteString("Relationship types: " + strings.Join(s.RelationshipTypes, ", ") + "\n")
			}
			if len(s.PropertyKeys) > 0 {
				sb.WriteString("Property keys: " + strings.Join(s.PropertyKeys, ", "))
			}
			return sb.String()
		},
	})
	mustAdd(Section{
		Name:     "relationships",
		Priority: 30,
		Include:  func(in Inputs) bool { return len(in.RelationshipHints) > 0 },
		Format: func(in Inputs) string {
			return "Known relationships:\n" + bulleted(in.RelationshipHints)
		},
	})
	mustAdd(Section{
		Name:     "example_entities",
		Priority: 40,
		Include:  func(in Inputs) bool { return in.Context != nil && len(in.Context.RelevantEntities) > 0 },
		Format: func(in Inputs) string {
			var sb strings.Builder
			sb.WriteString("Example entities:\n")
			for _, label := range sortedKeys(in.Context.RelevantEntities) {
				for _, e := range in.Context.RelevantEntities[label] {
					props, _ := json.Marshal(e.Properties)
					sb.WriteString(fmt.Sprintf("- (:%s) %s\n", label, string(props)))
				}
			}
			return sb.String()
		},
	})
	mustAdd(Section{
		Name:     "similar_queries",
		Priority: 50,
		Include:  func(in Inputs) bool { return in.Context != nil && len(in.Context.SimilarQueries) > 0 },
		Format: func(in Inputs) string {
			var sb strings.Builder
			sb.WriteString("Previously answered questions and their queries:\n")
			for _, q := range in.Context.SimilarQueries {
				sb.WriteString(fmt.Sprintf("Q: %s\nA: %s\n", q.Question, q.Query))
			}
			return sb.String()
		},
	})
	mustAdd(Section{
		Name:     "detected_entities",
		Priority: 60,
		Include:  func(in Inputs) bool { return len(in.DetectedEntities) > 0 },
		Format: func(in Inputs) string {
			return "The question mentions these entity types: " + strings.Join(in.DetectedEntities, ", ")
		},
	})
	mustAdd(Section{
		Name:     "detected_scopes",
		Priority: 65,
		Include:  func(in Inputs) bool { return len(in.DetectedScopes) > 0 },
		Format: func(in Inputs) string {
			return "The question matches these query scopes: " + strings.Join(in.DetectedScopes, ", ")
		},
	})
	mustAdd(Section{
		Name:     "pattern_library",
		Priority: 70,
		Include:  func(in Inputs) bool { return len(in.Patterns) > 0 },
		Format: func(in Inputs) string {
			var sb strings.Builder
			sb.WriteString("Query patterns you can follow:\n")
			for _, p := range in.Patterns {
				sb.WriteString(fmt.Sprintf("- %s: %s\n  %s\n", p.Name, p.Description, p.SemanticTemplate))
			}
			return sb.String()
		},
	})
	mustAdd(Section{
		Name:     "query_rules",
		Priority: 75,
		Format:   func(in Inputs) string { return queryRules },
	})
	mustAdd(Section{
		Name:     "question",
		Priority: 80,
		Format:   func(in Inputs) string { return "Question: " + in.Question },
	})
	mustAdd(Section{
		Name:     "task_instructions",
		Priority: 90,
		Format: func(in Inputs) string {
			return "Write the single graph query that answers the question. Output only the query, no explanation and no code fences."
		},
	})

	return b
}

// NewNarrationBuilder returns the section set used to turn query results
// into a natural-language answer.
func NewNarrationBuilder() *Builder {
	b := NewBuilder()
	mustAdd := func(s Section) {
		if err := b.Add(s); err != nil {
			panic(err)
		}
	}

	mustAdd(Section{
		Name:     "system",
		Priority: 10,
		Format: func(in Inputs) string {
			return "You are a precise assistant that answers questions about a knowledge base using query results."
		},
	})
	mustAdd(Section{
		Name:     "project_context",
		Priority: 20,
		Include:  func(in Inputs) bool { return in.ProjectContext != "" },
		Format:   func(in Inputs) string { return "Context:\n" + in.ProjectContext },
	})
	mustAdd(Section{
		Name:     "question",
		Priority: 30,
		Format:   func(in Inputs) string { return "Question: " + in.Question },
	})
	mustAdd(Section{
		Name:     "query",
		Priority: 40,
		Include:  func(in Inputs) bool { return in.Query != "" },
		Format:   func(in Inputs) string { return "Query executed:\n" + in.Query },
	})
	mustAdd(Section{
		Name:     "data",
		Priority: 50,
		Format: func(in Inputs) string {
			if len(in.Rows) == 0 {
				return "Results: none."
			}
			rows := in.Rows
			truncated := false
			if len(rows) > maxNarrationRows {
				rows = rows[:maxNarrationRows]
				truncated = true
			}
			data, _ := json.MarshalIndent(rows, "", "  ")
			out := "Results:\n" + string(data)
			if truncated {
				out += fmt.Sprintf("\n(%d more rows omitted)", len(in.Rows)-maxNarrationRows)
			}
			return out
		},
	})
	mustAdd(Section{
		Name:     "statistics",
		Priority: 60,
		Include:  func(in Inputs) bool { return in.Stats != nil },
		Format: func(in Inputs) string {
			return fmt.Sprintf("The query returned %d rows in %dms.", in.Stats.RowsReturned, in.Stats.ExecutionTimeMs)
		},
	})
	mustAdd(Section{
		Name:     "guidelines",
		Priority: 70,
		Format:   func(in Inputs) string { return narrationGuidelines },
	})
	mustAdd(Section{
		Name:     "task",
		Priority: 80,
		Format: func(in Inputs) string {
			return "Answer the question in plain language based on the results above."
		},
	})

	return b
}

func bulleted(items []string) string {
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString("- " + it + "\n")
	}
	return sb.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
