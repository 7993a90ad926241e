package pattern

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinCatalogComplete(t *testing.T) {
	lib := NewLibrary()

	expected := []string{
		"property_filter",
		"property_range",
		"relationship_traversal",
		"entity_with_relationship",
		"entity_without_relationship",
		"entity_with_aggregated_relationship",
		"temporal_filter",
		"multi_hop_traversal",
		"multiple_property_filter",
		"relationship_with_property_filter",
		"composed",
	}
	for _, name := range expected {
		if !lib.Has(name) {
			t.Errorf("Expected built-in pattern %s to exist", name)
		}
	}
}

func TestBuiltinPatternsValid(t *testing.T) {
	for _, p := range NewLibrary().All() {
		if err := p.Validate(); err != nil {
			t.Errorf("Built-in pattern %s is invalid: %v", p.Name, err)
		}
	}
}

func TestInstantiate(t *testing.T) {
	lib := NewLibrary()

	sentence, err := lib.Instantiate("property_filter", map[string]interface{}{
		"label":    "Customer",
		"property": "status",
		"operator": "=",
		"value":    "active",
	})
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	if sentence != "find Customer entities where status = active" {
		t.Errorf("Unexpected sentence: %q", sentence)
	}
}

func TestInstantiateMissingRequired(t *testing.T) {
	lib := NewLibrary()

	_, err := lib.Instantiate("property_filter", map[string]interface{}{"label": "Customer"})
	if err == nil {
		t.Fatal("Expected error for missing required parameters")
	}
}

func TestInstantiateUnknownParameter(t *testing.T) {
	lib := NewLibrary()

	_, err := lib.Instantiate("count", nil)
	if err == nil {
		t.Fatal("Expected error for unknown pattern")
	}

	_, err = lib.Instantiate("entity_with_relationship", map[string]interface{}{
		"label":        "Customer",
		"relationship": "PLACED",
		"bogus":        true,
	})
	if err == nil {
		t.Fatal("Expected error for unknown parameter")
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	content := `patterns:
  - name: recent_activity
    description: Entities touched in the last week
    parameters:
      - name: label
        description: Node label
        required: true
    semantic_template: "find {label} entities touched in the last week"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	lib := NewLibrary()
	n, err := lib.LoadFromYAML(path)
	if err != nil {
		t.Fatalf("LoadFromYAML failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 loaded pattern, got %d", n)
	}
	if !lib.Has("recent_activity") {
		t.Error("Expected recent_activity to be registered")
	}
}

func TestLoadFromYAMLRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	content := `patterns:
  - name: ""
    description: broken
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	lib := NewLibrary()
	if _, err := lib.LoadFromYAML(path); err == nil {
		t.Fatal("Expected invalid pattern file to fail loading")
	}
}
