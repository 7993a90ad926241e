// Package entity defines the canonical descriptor for domain objects presented
// to the core: a stable identifier, a flat attribute map, and the per-entity
// specifications of how the object maps onto the graph store and vector store.
// The registry that maps entity-type keys to their configs is read-only at
// runtime; it is populated from configuration at startup.
package entity

import (
	"fmt"
	"strings"
)

// Relationship declares one edge the entity owns in the graph: the edge type,
// the target label, and the attribute holding the target's id.
type Relationship struct {
	Type        string                 `yaml:"type" json:"type"`
	TargetLabel string                 `yaml:"target_label" json:"target_label"`
	ForeignKey  string                 `yaml:"foreign_key" json:"foreign_key"`
	Properties  map[string]interface{} `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// GraphConfig specifies how an entity maps to graph nodes and edges.
type GraphConfig struct {
	Label         string         `yaml:"label" json:"label"`
	Properties    []string       `yaml:"properties" json:"properties"`
	Relationships []Relationship `yaml:"relationships,omitempty" json:"relationships,omitempty"`
}

// VectorConfig specifies how an entity maps to a vector point: which
// collection it lives in, which fields are embedded (joined in order), and
// which fields are persisted as filterable payload.
type VectorConfig struct {
	Collection    string   `yaml:"collection" json:"collection"`
	EmbedFields   []string `yaml:"embed_fields" json:"embed_fields"`
	PayloadFields []string `yaml:"payload_fields" json:"payload_fields"`
}

// ScopeKind enumerates the three scope specification kinds.
type ScopeKind string

const (
	ScopePropertyFilter        ScopeKind = "property_filter"
	ScopeRelationshipTraversal ScopeKind = "relationship_traversal"
	ScopePattern               ScopeKind = "pattern"
)

// TraversalStep is one hop in a relationship-traversal scope.
type TraversalStep struct {
	Relationship string `yaml:"relationship" json:"relationship"`
	Direction    string `yaml:"direction" json:"direction"` // out | in | both
	TargetLabel  string `yaml:"target_label" json:"target_label"`
	Filter       string `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// Scope is a named, reusable filter attached to an entity's metadata. Scopes
// are read-only data: prompt hints and shortcut query fragments, never code.
type Scope struct {
	Name string    `yaml:"name" json:"name"`
	Kind ScopeKind `yaml:"kind" json:"kind"`

	// property_filter
	Property string      `yaml:"property,omitempty" json:"property,omitempty"`
	Operator string      `yaml:"operator,omitempty" json:"operator,omitempty"`
	Value    interface{} `yaml:"value,omitempty" json:"value,omitempty"`

	// relationship_traversal
	StartLabel string          `yaml:"start_label,omitempty" json:"start_label,omitempty"`
	Path       []TraversalStep `yaml:"path,omitempty" json:"path,omitempty"`
	Distinct   bool            `yaml:"distinct,omitempty" json:"distinct,omitempty"`

	// pattern
	Pattern    string                 `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Parameters map[string]interface{} `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// Validate checks the scope's shape for its declared kind.
func (s *Scope) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scope name must not be empty")
	}
	switch s.Kind {
	case ScopePropertyFilter:
		if s.Property == "" || s.Operator == "" {
			return fmt.Errorf("scope %s: property_filter requires property and operator", s.Name)
		}
	case ScopeRelationshipTraversal:
		if len(s.Path) == 0 {
			return fmt.Errorf("scope %s: relationship_traversal requires a non-empty path", s.Name)
		}
		for i, step := range s.Path {
			if step.Relationship == "" {
				return fmt.Errorf("scope %s: path step %d has no relationship", s.Name, i)
			}
			switch step.Direction {
			case "", "out", "in", "both":
			default:
				return fmt.Errorf("scope %s: path step %d has invalid direction %q", s.Name, i, step.Direction)
			}
		}
	case ScopePattern:
		if s.Pattern == "" {
			return fmt.Errorf("scope %s: pattern scope requires a pattern name", s.Name)
		}
	default:
		return fmt.Errorf("scope %s: unknown kind %q", s.Name, s.Kind)
	}
	return nil
}

// Metadata carries per-entity hints for detection and prompting.
type Metadata struct {
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Scopes      []Scope  `yaml:"scopes,omitempty" json:"scopes,omitempty"`
}

// Descriptor is the canonical input record for a domain object.
type Descriptor struct {
	ID         interface{}            `json:"id"`
	Attributes map[string]interface{} `json:"attributes"`
	Graph      GraphConfig            `json:"graph"`
	Vector     VectorConfig           `json:"vector"`
	Meta       Metadata               `json:"metadata"`
}

// Valid reports whether the descriptor can be ingested at all: it needs an
// identifier, a graph label, and a vector collection.
func (d *Descriptor) Valid() bool {
	return d != nil && d.ID != nil && d.Graph.Label != "" && d.Vector.Collection != ""
}

// IDString renders the identifier in its canonical string form, used as
// the graph node identity and in vector point derivation.
func (d *Descriptor) IDString() string {
	return fmt.Sprintf("%v", d.ID)
}

// GraphProperties extracts the property subset declared in GraphConfig, always
// including the identifier under "id". The identifier attribute of the
// persisted map equals the node identity used in all cross-references.
func (d *Descriptor) GraphProperties() map[string]interface{} {
	props := make(map[string]interface{}, len(d.Graph.Properties)+1)
	for _, name := range d.Graph.Properties {
		if v, ok := d.Attributes[name]; ok {
			props[name] = v
		}
	}
	props["id"] = d.ID
	return props
}

// EmbedText joins the configured embed fields in order with a single space.
// Missing or empty fields are skipped; an empty result means the entity has
// nothing to embed.
func (d *Descriptor) EmbedText() string {
	parts := make([]string, 0, len(d.Vector.EmbedFields))
	for _, field := range d.Vector.EmbedFields {
		v, ok := d.Attributes[field]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprintf("%v", v))
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// Payload extracts the payload field subset plus the fixed entity_id field.
func (d *Descriptor) Payload() map[string]interface{} {
	payload := make(map[string]interface{}, len(d.Vector.PayloadFields)+1)
	for _, field := range d.Vector.PayloadFields {
		if v, ok := d.Attributes[field]; ok {
			payload[field] = v
		}
	}
	payload["entity_id"] = d.ID
	return payload
}
