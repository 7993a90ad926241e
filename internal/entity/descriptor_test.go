package entity

import (
	"reflect"
	"testing"
)

func customerDescriptor() *Descriptor {
	return &Descriptor{
		ID: 1,
		Attributes: map[string]interface{}{
			"name":   "Ada",
			"email":  "ada@example.com",
			"status": "active",
			"notes":  "",
		},
		Graph: GraphConfig{
			Label:      "Customer",
			Properties: []string{"name", "email", "status"},
			Relationships: []Relationship{
				{Type: "BELONGS_TO", TargetLabel: "Company", ForeignKey: "company_id"},
			},
		},
		Vector: VectorConfig{
			Collection:    "customers",
			EmbedFields:   []string{"name", "notes", "email"},
			PayloadFields: []string{"status"},
		},
	}
}

func TestGraphPropertiesIncludesID(t *testing.T) {
	d := customerDescriptor()

	props := d.GraphProperties()
	if props["id"] != 1 {
		t.Errorf("Expected id 1 in graph properties, got %v", props["id"])
	}
	if props["name"] != "Ada" {
		t.Errorf("Expected name Ada, got %v", props["name"])
	}
	if _, ok := props["notes"]; ok {
		t.Error("notes is not a declared graph property and must not be persisted")
	}
}

func TestEmbedTextJoinsConfiguredFieldsInOrder(t *testing.T) {
	d := customerDescriptor()

	// notes is empty and must be skipped; order follows EmbedFields.
	if got := d.EmbedText(); got != "Ada ada@example.com" {
		t.Errorf("Unexpected embed text: %q", got)
	}
}

func TestEmbedTextEmptyWhenNothingToEmbed(t *testing.T) {
	d := customerDescriptor()
	d.Attributes = map[string]interface{}{"status": "active"}

	if got := d.EmbedText(); got != "" {
		t.Errorf("Expected empty embed text, got %q", got)
	}
}

func TestPayloadCarriesEntityID(t *testing.T) {
	d := customerDescriptor()

	payload := d.Payload()
	want := map[string]interface{}{"status": "active", "entity_id": 1}
	if !reflect.DeepEqual(payload, want) {
		t.Errorf("Unexpected payload: %v", payload)
	}
}

func TestValid(t *testing.T) {
	d := customerDescriptor()
	if !d.Valid() {
		t.Error("Expected complete descriptor to be valid")
	}

	var nilDesc *Descriptor
	if nilDesc.Valid() {
		t.Error("nil descriptor must be invalid")
	}

	d.Graph.Label = ""
	if d.Valid() {
		t.Error("Descriptor without graph label must be invalid")
	}
}

func TestScopeValidate(t *testing.T) {
	cases := []struct {
		name    string
		scope   Scope
		wantErr bool
	}{
		{"property filter ok", Scope{Name: "active", Kind: ScopePropertyFilter, Property: "status", Operator: "=", Value: "active"}, false},
		{"property filter missing operator", Scope{Name: "active", Kind: ScopePropertyFilter, Property: "status"}, true},
		{"traversal ok", Scope{Name: "with_orders", Kind: ScopeRelationshipTraversal, StartLabel: "Customer", Path: []TraversalStep{{Relationship: "PLACED", Direction: "out", TargetLabel: "Order"}}}, false},
		{"traversal empty path", Scope{Name: "with_orders", Kind: ScopeRelationshipTraversal}, true},
		{"traversal bad direction", Scope{Name: "x", Kind: ScopeRelationshipTraversal, Path: []TraversalStep{{Relationship: "PLACED", Direction: "sideways"}}}, true},
		{"pattern ok", Scope{Name: "big_spenders", Kind: ScopePattern, Pattern: "property_filter"}, false},
		{"pattern missing name", Scope{Name: "big_spenders", Kind: ScopePattern}, true},
		{"unknown kind", Scope{Name: "odd", Kind: "regex"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.scope.Validate()
			if tc.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}
