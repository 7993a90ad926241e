// Package prompt assembles LLM prompts from ordered, named sections.
// The generator and the narrator each own a section set; both go through
// the same builder so extension behaves identically everywhere.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"graphrag/internal/logging"
	"graphrag/internal/pattern"
	"graphrag/internal/types"
)

// Inputs carries everything a section may draw on. Sections must treat it
// as read-only; formatting the same inputs twice must yield the same text.
type Inputs struct {
	Question string
	Context  *types.ContextBundle

	// Query generation.
	DetectedEntities  []string
	DetectedScopes    []string
	Patterns          []*pattern.Pattern
	RelationshipHints []string

	// Narration.
	Query string
	Rows  []map[string]interface{}
	Stats *types.ExecutionStats

	ProjectContext string
	Today          time.Time
}

// Section is one prompt fragment with a stable position.
type Section struct {
	Name     string
	Priority int // lower = earlier
	Include  func(in Inputs) bool
	Format   func(in Inputs) string
}

type entry struct {
	Section
	seq int // insertion tiebreaker within a priority
}

// Builder holds an ordered set of sections. Not safe for concurrent
// mutation; build a Builder once at startup and share it read-only, or
// clone per pipeline.
type Builder struct {
	entries []entry
	nextSeq int
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add registers a section. Names must be unique.
func (b *Builder) Add(s Section) error {
	if s.Name == "" {
		return fmt.Errorf("section name is required")
	}
	if s.Format == nil {
		return fmt.Errorf("section %s has no format function", s.Name)
	}
	if b.indexOf(s.Name) >= 0 {
		return fmt.Errorf("section %s already registered", s.Name)
	}
	b.insert(entry{Section: s, seq: b.seq()})
	return nil
}

// Remove deletes a section by name.
func (b *Builder) Remove(name string) error {
	i := b.indexOf(name)
	if i < 0 {
		return fmt.Errorf("section %s not found", name)
	}
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	return nil
}

// Replace swaps the behavior of an existing section, keeping its position.
func (b *Builder) Replace(name string, s Section) error {
	i := b.indexOf(name)
	if i < 0 {
		return fmt.Errorf("section %s not found", name)
	}
	if s.Name == "" {
		s.Name = name
	}
	if s.Name != name && b.indexOf(s.Name) >= 0 {
		return fmt.Errorf("section %s already registered", s.Name)
	}
	s.Priority = b.entries[i].Priority
	b.entries[i].Section = s
	return nil
}

// ExtendBefore injects a synthetic section immediately before an existing
// one, without disturbing the priorities of anything else. The synthetic
// section's generated name is returned so it can later be removed.
func (b *Builder) ExtendBefore(name string, format func(in Inputs) string) (string, error) {
	return b.extend(name, format, true)
}

// ExtendAfter injects a synthetic section immediately after an existing one.
func (b *Builder) ExtendAfter(name string, format func(in Inputs) string) (string, error) {
	return b.extend(name, format, false)
}

func (b *Builder) extend(name string, format func(in Inputs) string, before bool) (string, error) {
	i := b.indexOf(name)
	if i < 0 {
		return "", fmt.Errorf("section %s not found", name)
	}
	suffix := "after"
	if before {
		suffix = "before"
	}
	synthetic := entry{
		Section: Section{
			Name:     fmt.Sprintf("%s.%s.%d", name, suffix, b.seq()),
			Priority: b.entries[i].Priority,
			Format:   format,
		},
		seq: b.entries[i].seq,
	}
	if before {
		b.entries = append(b.entries[:i], append([]entry{synthetic}, b.entries[i:]...)...)
	} else {
		b.entries = append(b.entries[:i+1], append([]entry{synthetic}, b.entries[i+1:]...)...)
	}
	return synthetic.Name, nil
}

// Names returns section names in emission order.
func (b *Builder) Names() []string {
	out := make([]string, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.Name
	}
	return out
}

// Build assembles the prompt: sections in ascending priority, skipping
// those whose Include predicate rejects the inputs, joined by blank lines.
func (b *Builder) Build(in Inputs) string {
	var parts []string
	for _, e := range b.entries {
		if e.Include != nil && !e.Include(in) {
			continue
		}
		text := strings.TrimSpace(e.Format(in))
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	out := strings.Join(parts, "\n\n")
	logging.PromptDebug("Assembled prompt: %d/%d sections, %d chars", len(parts), len(b.entries), len(out))
	return out
}

func (b *Builder) indexOf(name string) int {
	for i, e := range b.entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

func (b *Builder) seq() int {
	b.nextSeq++
	return b.nextSeq
}

// insert keeps entries sorted by (priority, seq).
func (b *Builder) insert(e entry) {
	i := sort.Search(len(b.entries), func(i int) bool {
		if b.entries[i].Priority != e.Priority {
			return b.entries[i].Priority > e.Priority
		}
		return b.entries[i].seq > e.seq
	})
	b.entries = append(b.entries[:i], append([]entry{e}, b.entries[i:]...)...)
}
