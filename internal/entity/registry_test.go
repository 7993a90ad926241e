package entity

import (
	"os"
	"path/filepath"
	"testing"

	"graphrag/internal/pattern"
)

func testDefinitions() map[string]*Definition {
	return map[string]*Definition{
		"customer": {
			Graph: GraphConfig{Label: "Customer", Properties: []string{"name"}},
			Vector: VectorConfig{
				Collection:  "customers",
				EmbedFields: []string{"name"},
			},
			Meta: Metadata{
				Aliases: []string{"customer", "customers", "client"},
				Scopes: []Scope{
					{Name: "active", Kind: ScopePropertyFilter, Property: "status", Operator: "=", Value: "active"},
				},
			},
		},
		"order": {
			Graph: GraphConfig{Label: "Order", Properties: []string{"total"}},
			Vector: VectorConfig{
				Collection:  "orders",
				EmbedFields: []string{"summary"},
			},
			Meta: Metadata{Aliases: []string{"order", "orders", "purchase"}},
		},
	}
}

func TestNewRegistryValidates(t *testing.T) {
	reg, err := NewRegistry(testDefinitions(), pattern.NewLibrary())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	if _, ok := reg.Get("customer"); !ok {
		t.Error("Expected customer definition")
	}
	if def, ok := reg.ByLabel("Order"); !ok || def.Graph.Label != "Order" {
		t.Error("Expected ByLabel to find Order")
	}
	keys := reg.Keys()
	if len(keys) != 2 || keys[0] != "customer" || keys[1] != "order" {
		t.Errorf("Expected sorted keys [customer order], got %v", keys)
	}
}

func TestRegistryRejectsMissingPatternReference(t *testing.T) {
	defs := testDefinitions()
	defs["customer"].Meta.Scopes = append(defs["customer"].Meta.Scopes, Scope{
		Name:    "big_spenders",
		Kind:    ScopePattern,
		Pattern: "no_such_pattern",
	})

	if _, err := NewRegistry(defs, pattern.NewLibrary()); err == nil {
		t.Fatal("Expected registry load to fail loud on missing pattern reference")
	}
}

func TestDetectAliasesWordBoundary(t *testing.T) {
	reg, err := NewRegistry(testDefinitions(), pattern.NewLibrary())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	got := reg.DetectAliases("Show all CUSTOMERS with open orders")
	if len(got) != 2 {
		t.Fatalf("Expected both entity types detected, got %v", got)
	}

	// "clientele" must not match alias "client" (word boundary).
	got = reg.DetectAliases("describe the clientele")
	if len(got) != 0 {
		t.Errorf("Expected no match for substring alias, got %v", got)
	}
}

func TestDetectScopes(t *testing.T) {
	reg, err := NewRegistry(testDefinitions(), pattern.NewLibrary())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	got := reg.DetectScopes("How many active customers are there")
	if len(got) != 1 || got[0].Name != "active" {
		t.Errorf("Expected active scope detected, got %v", got)
	}
}

func TestDescribe(t *testing.T) {
	reg, err := NewRegistry(testDefinitions(), pattern.NewLibrary())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	d, err := reg.Describe("customer", 7, map[string]interface{}{"name": "Ada"})
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if d.Graph.Label != "Customer" || d.ID != 7 {
		t.Errorf("Unexpected descriptor: %+v", d)
	}

	if _, err := reg.Describe("ghost", 1, nil); err == nil {
		t.Error("Expected error for unknown entity type")
	}
	if _, err := reg.Describe("customer", nil, nil); err == nil {
		t.Error("Expected error for nil id")
	}
}

func TestLoadRegistryFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entities.yaml")
	content := `entities:
  customer:
    graph:
      label: Customer
      properties: [name, email]
      relationships:
        - type: BELONGS_TO
          target_label: Company
          foreign_key: company_id
    vector:
      collection: customers
      embed_fields: [name, email]
      payload_fields: [status]
    metadata:
      aliases: [customer, customers]
      scopes:
        - name: active
          kind: property_filter
          property: status
          operator: "="
          value: active
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	reg, err := LoadRegistry(path, pattern.NewLibrary())
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	def, ok := reg.Get("customer")
	if !ok {
		t.Fatal("Expected customer definition")
	}
	if len(def.Graph.Relationships) != 1 || def.Graph.Relationships[0].ForeignKey != "company_id" {
		t.Errorf("Unexpected relationships: %+v", def.Graph.Relationships)
	}
}
