// Package pattern provides the query pattern library: named, parameterized
// query templates with semantic sentences and worked examples. Patterns are
// domain-agnostic; the generator instantiates them with concrete parameters.
package pattern

import (
	"fmt"
	"sort"
	"sync"
)

// Parameter describes one parameter of a pattern.
type Parameter struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Required    bool   `yaml:"required" json:"required"`
}

// Example is a worked example of a pattern: a concrete parameter set plus a
// human description of what it means.
type Example struct {
	Parameters  map[string]interface{} `yaml:"parameters" json:"parameters"`
	Description string                 `yaml:"description" json:"description"`
}

// Pattern is a named query template.
type Pattern struct {
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description" json:"description"`
	Parameters  []Parameter `yaml:"parameters" json:"parameters"`
	// SemanticTemplate is a natural-language sentence with {param}
	// placeholders, used in prompts to teach the LLM what the pattern means.
	SemanticTemplate string    `yaml:"semantic_template" json:"semantic_template"`
	Examples         []Example `yaml:"examples" json:"examples"`
}

// Validate checks structural integrity of a pattern definition.
func (p *Pattern) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pattern name must not be empty")
	}
	if p.Description == "" {
		return fmt.Errorf("pattern %s: description must not be empty", p.Name)
	}
	seen := make(map[string]bool, len(p.Parameters))
	for _, param := range p.Parameters {
		if param.Name == "" {
			return fmt.Errorf("pattern %s: parameter with empty name", p.Name)
		}
		if seen[param.Name] {
			return fmt.Errorf("pattern %s: duplicate parameter %s", p.Name, param.Name)
		}
		seen[param.Name] = true
	}
	for i, ex := range p.Examples {
		for name := range ex.Parameters {
			if !seen[name] {
				return fmt.Errorf("pattern %s: example %d references unknown parameter %s", p.Name, i, name)
			}
		}
	}
	return nil
}

// ParameterNames returns the declared parameter names in order.
func (p *Pattern) ParameterNames() []string {
	names := make([]string, len(p.Parameters))
	for i, param := range p.Parameters {
		names[i] = param.Name
	}
	return names
}

// Library holds the pattern catalog. Populated at startup, read-mostly after.
type Library struct {
	mu       sync.RWMutex
	patterns map[string]*Pattern
}

// NewLibrary creates a library preloaded with the built-in patterns.
func NewLibrary() *Library {
	lib := &Library{patterns: make(map[string]*Pattern)}
	for _, p := range builtinPatterns() {
		lib.patterns[p.Name] = p
	}
	return lib
}

// Register adds or replaces a pattern. Invalid patterns are rejected.
func (l *Library) Register(p *Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.patterns[p.Name] = p
	return nil
}

// Get returns a pattern by name.
func (l *Library) Get(name string) (*Pattern, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.patterns[name]
	return p, ok
}

// Has reports whether a pattern exists.
func (l *Library) Has(name string) bool {
	_, ok := l.Get(name)
	return ok
}

// Names returns all pattern names, sorted.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.patterns))
	for name := range l.patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the patterns in name order.
func (l *Library) All() []*Pattern {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.patterns))
	for name := range l.patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Pattern, len(names))
	for i, name := range names {
		out[i] = l.patterns[name]
	}
	return out
}
