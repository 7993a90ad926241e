package entity

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"graphrag/internal/logging"
	"graphrag/internal/pattern"
)

// Definition is one entity type in the registry: its configs plus metadata.
// The registry key (entity-type name) comes from the YAML map key.
type Definition struct {
	Graph  GraphConfig  `yaml:"graph"`
	Vector VectorConfig `yaml:"vector"`
	Meta   Metadata     `yaml:"metadata"`
}

// Registry maps entity-type keys to their definitions. Populated at startup
// and never mutated afterwards; the core only reads it.
type Registry struct {
	defs  map[string]*Definition
	order []string
}

// registryFile is the YAML shape of an entity registry.
type registryFile struct {
	Entities map[string]*Definition `yaml:"entities"`
}

// NewRegistry builds a registry from definitions, validating every entry.
// Scope specifications of kind "pattern" must reference a pattern present in
// the library; a missing reference fails here, at load time, not at query
// time.
func NewRegistry(defs map[string]*Definition, patterns *pattern.Library) (*Registry, error) {
	order := make([]string, 0, len(defs))
	for key, def := range defs {
		if err := validateDefinition(key, def, patterns); err != nil {
			return nil, err
		}
		order = append(order, key)
	}
	sort.Strings(order)

	return &Registry{defs: defs, order: order}, nil
}

// LoadRegistry reads an entity registry from a YAML file.
func LoadRegistry(path string, patterns *pattern.Library) (*Registry, error) {
	timer := logging.StartTimer(logging.CategorySystem, "entity.LoadRegistry")
	defer timer.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity registry %s: %w", path, err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse entity registry %s: %w", path, err)
	}
	if len(file.Entities) == 0 {
		return nil, fmt.Errorf("entity registry %s declares no entities", path)
	}

	reg, err := NewRegistry(file.Entities, patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid entity registry %s: %w", path, err)
	}

	logging.System("Loaded entity registry: %d entity types from %s", len(file.Entities), path)
	return reg, nil
}

func validateDefinition(key string, def *Definition, patterns *pattern.Library) error {
	if def == nil {
		return fmt.Errorf("entity %s: empty definition", key)
	}
	if def.Graph.Label == "" {
		return fmt.Errorf("entity %s: graph label must not be empty", key)
	}
	if def.Vector.Collection == "" {
		return fmt.Errorf("entity %s: vector collection must not be empty", key)
	}
	if len(def.Vector.EmbedFields) == 0 {
		return fmt.Errorf("entity %s: at least one embed field is required", key)
	}
	for _, rel := range def.Graph.Relationships {
		if rel.Type == "" || rel.TargetLabel == "" || rel.ForeignKey == "" {
			return fmt.Errorf("entity %s: relationship requires type, target_label, and foreign_key", key)
		}
	}
	seen := make(map[string]bool, len(def.Meta.Scopes))
	for i := range def.Meta.Scopes {
		scope := &def.Meta.Scopes[i]
		if err := scope.Validate(); err != nil {
			return fmt.Errorf("entity %s: %w", key, err)
		}
		if seen[scope.Name] {
			return fmt.Errorf("entity %s: duplicate scope %s", key, scope.Name)
		}
		seen[scope.Name] = true
		if scope.Kind == ScopePattern && patterns != nil && !patterns.Has(scope.Pattern) {
			return fmt.Errorf("entity %s: scope %s references unknown pattern %s", key, scope.Name, scope.Pattern)
		}
	}
	return nil
}

// Get returns the definition for an entity-type key.
func (r *Registry) Get(key string) (*Definition, bool) {
	def, ok := r.defs[key]
	return def, ok
}

// Keys returns the registered entity-type keys, sorted.
func (r *Registry) Keys() []string {
	return r.order
}

// ByLabel returns the definition whose graph label matches, if any.
func (r *Registry) ByLabel(label string) (*Definition, bool) {
	for _, key := range r.order {
		if r.defs[key].Graph.Label == label {
			return r.defs[key], true
		}
	}
	return nil, false
}

// Describe builds a descriptor for concrete entity data using the registered
// definition for its type key.
func (r *Registry) Describe(key string, id interface{}, attributes map[string]interface{}) (*Descriptor, error) {
	def, ok := r.Get(key)
	if !ok {
		return nil, fmt.Errorf("unknown entity type: %s", key)
	}
	if id == nil {
		return nil, fmt.Errorf("entity %s: id must not be nil", key)
	}
	return &Descriptor{
		ID:         id,
		Attributes: attributes,
		Graph:      def.Graph,
		Vector:     def.Vector,
		Meta:       def.Meta,
	}, nil
}

// DetectAliases scans a question (case-insensitive, word-boundary matches)
// against every entity's aliases and label, returning the matched entity-type
// keys in registry order.
func (r *Registry) DetectAliases(question string) []string {
	lower := " " + strings.ToLower(question) + " "
	var matched []string
	for _, key := range r.order {
		def := r.defs[key]
		candidates := append([]string{def.Graph.Label}, def.Meta.Aliases...)
		for _, alias := range candidates {
			if alias == "" {
				continue
			}
			if containsWord(lower, strings.ToLower(alias)) {
				matched = append(matched, key)
				break
			}
		}
	}
	return matched
}

// DetectScopes scans a question for configured scope names across all
// entities, returning matched scopes.
func (r *Registry) DetectScopes(question string) []Scope {
	lower := " " + strings.ToLower(question) + " "
	var matched []Scope
	for _, key := range r.order {
		for _, scope := range r.defs[key].Meta.Scopes {
			name := strings.ToLower(strings.ReplaceAll(scope.Name, "_", " "))
			if containsWord(lower, name) || containsWord(lower, strings.ToLower(scope.Name)) {
				matched = append(matched, scope)
			}
		}
	}
	return matched
}

// containsWord reports whether needle occurs in haystack at word boundaries.
// haystack must be lowercased and padded with spaces by the caller.
func containsWord(haystack, needle string) bool {
	idx := 0
	for {
		pos := strings.Index(haystack[idx:], needle)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(needle)
		beforeOK := start == 0 || !isWordChar(haystack[start-1])
		afterOK := end >= len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
