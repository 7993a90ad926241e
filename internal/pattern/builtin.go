package pattern

// builtinPatterns returns the built-in pattern catalog. Every installation
// carries these; configuration can add more but not remove them.
func builtinPatterns() []*Pattern {
	return []*Pattern{
		{
			Name:        "property_filter",
			Description: "Match entities whose property compares against a value",
			Parameters: []Parameter{
				{Name: "label", Description: "Node label to match", Required: true},
				{Name: "property", Description: "Property name to filter on", Required: true},
				{Name: "operator", Description: "Comparison operator (=, <>, <, <=, >, >=, CONTAINS, STARTS WITH)", Required: true},
				{Name: "value", Description: "Value to compare against", Required: true},
			},
			SemanticTemplate: "find {label} entities where {property} {operator} {value}",
			Examples: []Example{
				{
					Parameters:  map[string]interface{}{"label": "Customer", "property": "status", "operator": "=", "value": "active"},
					Description: "Active customers",
				},
			},
		},
		{
			Name:        "property_range",
			Description: "Match entities whose numeric or date property falls in a range",
			Parameters: []Parameter{
				{Name: "label", Description: "Node label to match", Required: true},
				{Name: "property", Description: "Property name to range over", Required: true},
				{Name: "min", Description: "Inclusive lower bound", Required: true},
				{Name: "max", Description: "Inclusive upper bound", Required: true},
			},
			SemanticTemplate: "find {label} entities where {property} is between {min} and {max}",
			Examples: []Example{
				{
					Parameters:  map[string]interface{}{"label": "Order", "property": "total", "min": 100, "max": 500},
					Description: "Orders worth between 100 and 500",
				},
			},
		},
		{
			Name:        "relationship_traversal",
			Description: "Walk a relationship from one label to another",
			Parameters: []Parameter{
				{Name: "from_label", Description: "Starting node label", Required: true},
				{Name: "relationship", Description: "Relationship type to traverse", Required: true},
				{Name: "to_label", Description: "Target node label", Required: true},
				{Name: "direction", Description: "Traversal direction (out, in, both)", Required: false},
			},
			SemanticTemplate: "find {to_label} entities connected to {from_label} via {relationship}",
			Examples: []Example{
				{
					Parameters:  map[string]interface{}{"from_label": "Customer", "relationship": "PLACED", "to_label": "Order"},
					Description: "Orders placed by customers",
				},
			},
		},
		{
			Name:        "entity_with_relationship",
			Description: "Match entities that have at least one relationship of a type",
			Parameters: []Parameter{
				{Name: "label", Description: "Node label to match", Required: true},
				{Name: "relationship", Description: "Relationship type that must exist", Required: true},
			},
			SemanticTemplate: "find {label} entities that have a {relationship} relationship",
			Examples: []Example{
				{
					Parameters:  map[string]interface{}{"label": "Customer", "relationship": "PLACED"},
					Description: "Customers who placed at least one order",
				},
			},
		},
		{
			Name:        "entity_without_relationship",
			Description: "Match entities that lack any relationship of a type",
			Parameters: []Parameter{
				{Name: "label", Description: "Node label to match", Required: true},
				{Name: "relationship", Description: "Relationship type that must be absent", Required: true},
			},
			SemanticTemplate: "find {label} entities without any {relationship} relationship",
			Examples: []Example{
				{
					Parameters:  map[string]interface{}{"label": "Customer", "relationship": "PLACED"},
					Description: "Customers who never placed an order",
				},
			},
		},
		{
			Name:        "entity_with_aggregated_relationship",
			Description: "Group entities and aggregate over a relationship (count, sum, avg)",
			Parameters: []Parameter{
				{Name: "label", Description: "Node label to group", Required: true},
				{Name: "relationship", Description: "Relationship type to aggregate over", Required: true},
				{Name: "aggregate", Description: "Aggregate function (count, sum, avg, min, max)", Required: true},
				{Name: "target_property", Description: "Property of the related node to aggregate", Required: false},
			},
			SemanticTemplate: "for each {label}, compute {aggregate} over its {relationship} relationships",
			Examples: []Example{
				{
					Parameters:  map[string]interface{}{"label": "Customer", "relationship": "PLACED", "aggregate": "count"},
					Description: "Number of orders per customer",
				},
			},
		},
		{
			Name:        "temporal_filter",
			Description: "Match entities by a time window on a date property",
			Parameters: []Parameter{
				{Name: "label", Description: "Node label to match", Required: true},
				{Name: "property", Description: "Date/timestamp property", Required: true},
				{Name: "window", Description: "Time window expression (e.g. last 30 days, 2024)", Required: true},
			},
			SemanticTemplate: "find {label} entities where {property} falls within {window}",
			Examples: []Example{
				{
					Parameters:  map[string]interface{}{"label": "Order", "property": "created_at", "window": "last 30 days"},
					Description: "Recent orders",
				},
			},
		},
		{
			Name:        "multi_hop_traversal",
			Description: "Traverse a path of two or more relationships",
			Parameters: []Parameter{
				{Name: "from_label", Description: "Starting node label", Required: true},
				{Name: "path", Description: "Ordered list of relationship/label hops", Required: true},
				{Name: "distinct", Description: "Deduplicate terminal entities", Required: false},
			},
			SemanticTemplate: "starting from {from_label}, follow the path {path}",
			Examples: []Example{
				{
					Parameters:  map[string]interface{}{"from_label": "Customer", "path": "PLACED>Order CONTAINS>Product"},
					Description: "Products bought by customers",
				},
			},
		},
		{
			Name:        "multiple_property_filter",
			Description: "Match entities on a conjunction of property predicates",
			Parameters: []Parameter{
				{Name: "label", Description: "Node label to match", Required: true},
				{Name: "filters", Description: "List of property/operator/value triples, AND-combined", Required: true},
			},
			SemanticTemplate: "find {label} entities satisfying all of {filters}",
			Examples: []Example{
				{
					Parameters: map[string]interface{}{
						"label":   "Customer",
						"filters": []interface{}{"status = active", "country = DE"},
					},
					Description: "Active German customers",
				},
			},
		},
		{
			Name:        "relationship_with_property_filter",
			Description: "Traverse a relationship and filter on the related entity's properties",
			Parameters: []Parameter{
				{Name: "from_label", Description: "Starting node label", Required: true},
				{Name: "relationship", Description: "Relationship type to traverse", Required: true},
				{Name: "to_label", Description: "Target node label", Required: true},
				{Name: "property", Description: "Property on the target to filter", Required: true},
				{Name: "operator", Description: "Comparison operator", Required: true},
				{Name: "value", Description: "Value to compare against", Required: true},
			},
			SemanticTemplate: "find {from_label} entities whose {relationship} target {to_label} has {property} {operator} {value}",
			Examples: []Example{
				{
					Parameters: map[string]interface{}{
						"from_label": "Customer", "relationship": "PLACED", "to_label": "Order",
						"property": "total", "operator": ">", "value": 1000,
					},
					Description: "Customers with an order above 1000",
				},
			},
		},
		{
			Name:        "composed",
			Description: "A base pattern AND-combined with additional property filters",
			Parameters: []Parameter{
				{Name: "base", Description: "Name of the base pattern", Required: true},
				{Name: "base_parameters", Description: "Parameters for the base pattern", Required: true},
				{Name: "filters", Description: "Additional property filters, each AND-combined with the base result set", Required: false},
			},
			SemanticTemplate: "apply {base} with {base_parameters}, then keep only results matching {filters}",
			Examples: []Example{
				{
					Parameters: map[string]interface{}{
						"base":            "relationship_traversal",
						"base_parameters": map[string]interface{}{"from_label": "Customer", "relationship": "PLACED", "to_label": "Order"},
						"filters":         []interface{}{"Order.total > 100"},
					},
					Description: "Orders above 100 placed by customers",
				},
			},
		},
	}
}
