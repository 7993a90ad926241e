// Package types provides shared type definitions used across graphrag packages.
// This package exists to break import cycles between the retriever, generator,
// executor, and ingestion coordinator. Types here are foundational data
// structures with no complex dependencies.
package types

import "time"

// =============================================================================
// GRAPH SCHEMA
// =============================================================================

// GraphSchema describes the labels, relationship types, and property keys
// present in the graph store. Lists are sorted for deterministic prompts.
type GraphSchema struct {
	Labels            []string `json:"labels"`
	RelationshipTypes []string `json:"relationship_types"`
	PropertyKeys      []string `json:"property_keys"`
}

// IsEmpty reports whether schema discovery found anything at all.
func (s GraphSchema) IsEmpty() bool {
	return len(s.Labels) == 0 && len(s.RelationshipTypes) == 0 && len(s.PropertyKeys) == 0
}

// HasLabel reports whether a label exists in the schema (exact match).
func (s GraphSchema) HasLabel(label string) bool {
	for _, l := range s.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// =============================================================================
// SIMILAR QUERIES (query memory)
// =============================================================================

// SimilarQuery is a past question/query pair recalled from the query-memory
// collection, with its similarity score against the current question.
type SimilarQuery struct {
	Question string                 `json:"question"`
	Query    string                 `json:"query"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// =============================================================================
// CONTEXT BUNDLE
// =============================================================================

// SampleEntity is one example node read from the graph during retrieval.
type SampleEntity struct {
	Label      string                 `json:"label"`
	ID         interface{}            `json:"id"`
	Properties map[string]interface{} `json:"properties"`
}

// ContextBundle is the record the retriever hands to the generator: similar
// past questions, the live graph schema, sample entities per label, and the
// errors of any sources that failed. Partial failure is normal; an error entry
// never aborts retrieval.
type ContextBundle struct {
	Question         string                    `json:"question"`
	SimilarQueries   []SimilarQuery            `json:"similar_queries"`
	Schema           GraphSchema               `json:"graph_schema"`
	RelevantEntities map[string][]SampleEntity `json:"relevant_entities"`
	Errors           []SourceError             `json:"errors,omitempty"`
	RetrievedAt      time.Time                 `json:"retrieved_at"`
}

// SourceError records a partially failed retrieval source.
type SourceError struct {
	Source  string `json:"source"` // similar_queries | schema | samples
	Message string `json:"message"`
}

// =============================================================================
// QUERY RESULTS
// =============================================================================

// ResultFormat selects how executor rows are shaped.
type ResultFormat string

const (
	FormatTable ResultFormat = "table" // flat maps, one per row
	FormatGraph ResultFormat = "graph" // preserve node/edge shape
	FormatJSON  ResultFormat = "json"  // pass-through
)

// ExecutionStats carries timing and size information for an executed query.
type ExecutionStats struct {
	ExecutionTimeMs int64 `json:"execution_time_ms"`
	RowsReturned    int   `json:"rows_returned"`
}

// Pagination describes the page window of a paginated execution.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
}
