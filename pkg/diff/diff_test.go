package diff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chinmayajena/sundaygraph/pkg/odl"
)

func parseIR(t *testing.T, payload string) *odl.IR {
	t.Helper()
	ir, err := odl.ParseAndValidate([]byte(payload))
	require.NoError(t, err)
	return odl.Normalize(ir)
}

const baseODL = `{
  "version": "1.0",
  "objects": [
    {
      "name": "Customer",
      "identifiers": ["customer_id"],
      "properties": [
        {"name": "customer_id", "type": "string", "nullable": false, "required": true},
        {"name": "email", "type": "string"},
        {"name": "full_name", "type": "string"},
        {"name": "created_at", "type": "timestamp"}
      ]
    },
    {
      "name": "Order",
      "identifiers": ["order_id"],
      "properties": [
        {"name": "order_id", "type": "string", "nullable": false, "required": true},
        {"name": "customer_id", "type": "string"},
        {"name": "order_total", "type": "decimal"}
      ]
    }
  ],
  "relationships": [
    {"name": "placed_by", "from": "Order", "to": "Customer",
     "joinKeys": [["customer_id", "customer_id"]], "cardinality": "many_to_one"}
  ],
  "metrics": [
    {"name": "TotalRevenue", "expression": "SUM(order_total)", "grain": ["Order"], "type": "sum"}
  ],
  "dimensions": [
    {"name": "customer_email", "sourceProperty": "Customer.email"}
  ]
}`

func mutate(t *testing.T, fn func(doc map[string]any)) *odl.IR {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(baseODL), &doc))
	fn(doc)
	payload, err := json.Marshal(doc)
	require.NoError(t, err)
	return parseIR(t, string(payload))
}

func findChange(result *Result, kind Kind) *Change {
	for i := range result.Changes {
		if result.Changes[i].Kind == kind {
			return &result.Changes[i]
		}
	}
	return nil
}

func TestDiffIdentical(t *testing.T) {
	a := parseIR(t, baseODL)
	b := parseIR(t, baseODL)

	result := Compute(a, b)
	assert.Empty(t, result.Changes)
	assert.False(t, result.Summary.HasBreaking)
	assert.Equal(t, 0, result.Summary.TotalChanges)
}

func TestDiffDeterministic(t *testing.T) {
	a := parseIR(t, baseODL)
	b := mutate(t, func(doc map[string]any) {
		objs := doc["objects"].([]any)
		customer := objs[0].(map[string]any)
		props := customer["properties"].([]any)
		customer["properties"] = append(props, map[string]any{"name": "phone", "type": "string"})
		doc["metrics"] = append(doc["metrics"].([]any),
			map[string]any{"name": "AvgOrder", "expression": "AVG(order_total)", "grain": []any{"Order"}})
	})

	r1, err := json.Marshal(Compute(a, b))
	require.NoError(t, err)
	r2, err := json.Marshal(Compute(a, b))
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestNullablePropertyAddedNonBreaking(t *testing.T) {
	a := parseIR(t, baseODL)
	b := mutate(t, func(doc map[string]any) {
		customer := doc["objects"].([]any)[0].(map[string]any)
		customer["properties"] = append(customer["properties"].([]any),
			map[string]any{"name": "phone", "type": "string", "nullable": true})
	})

	result := Compute(a, b)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, PropertyAdded, result.Changes[0].Kind)
	assert.Equal(t, NonBreaking, result.Changes[0].Severity)
	assert.Equal(t, "objects/Customer/properties/phone", result.Changes[0].Path)
	assert.False(t, result.Summary.HasBreaking)
}

func TestRequiredNonNullablePropertyAddedBreaking(t *testing.T) {
	a := parseIR(t, baseODL)
	b := mutate(t, func(doc map[string]any) {
		customer := doc["objects"].([]any)[0].(map[string]any)
		customer["properties"] = append(customer["properties"].([]any),
			map[string]any{"name": "ssn", "type": "string", "nullable": false, "required": true})
	})

	result := Compute(a, b)
	change := findChange(result, PropertyAdded)
	require.NotNil(t, change)
	assert.Equal(t, Breaking, change.Severity)
}

func TestPropertyRemovedBreaking(t *testing.T) {
	a := parseIR(t, baseODL)
	b := mutate(t, func(doc map[string]any) {
		customer := doc["objects"].([]any)[0].(map[string]any)
		props := customer["properties"].([]any)
		customer["properties"] = props[:len(props)-1] // drop created_at
	})

	result := Compute(a, b)
	change := findChange(result, PropertyRemoved)
	require.NotNil(t, change)
	assert.Equal(t, Breaking, change.Severity)
	assert.True(t, result.Summary.HasBreaking)
}

func TestRenameHeuristicFailsOnLowOverlap(t *testing.T) {
	// Removing email and adding contact_email keeps overlap below the
	// threshold only at the property level; the object itself is intact,
	// so we get property.removed + property.added instead of a rename.
	a := parseIR(t, baseODL)
	b := mutate(t, func(doc map[string]any) {
		customer := doc["objects"].([]any)[0].(map[string]any)
		props := customer["properties"].([]any)
		kept := make([]any, 0, len(props))
		for _, p := range props {
			if p.(map[string]any)["name"] != "email" {
				kept = append(kept, p)
			}
		}
		kept = append(kept, map[string]any{"name": "contact_email", "type": "string"})
		customer["properties"] = kept
		// The dimension must follow the property it references.
		doc["dimensions"] = []any{map[string]any{"name": "customer_email", "sourceProperty": "Customer.contact_email"}}
	})

	result := Compute(a, b)
	removed := findChange(result, PropertyRemoved)
	added := findChange(result, PropertyAdded)
	require.NotNil(t, removed)
	require.NotNil(t, added)
	assert.Equal(t, Breaking, removed.Severity)
	assert.Equal(t, NonBreaking, added.Severity)
	assert.True(t, result.Summary.HasBreaking)
}

func TestObjectRenameDetected(t *testing.T) {
	a := parseIR(t, baseODL)
	b := mutate(t, func(doc map[string]any) {
		customer := doc["objects"].([]any)[0].(map[string]any)
		customer["name"] = "Client"
		// References must follow the renamed object.
		rel := doc["relationships"].([]any)[0].(map[string]any)
		rel["to"] = "Client"
		doc["dimensions"] = []any{map[string]any{"name": "customer_email", "sourceProperty": "Client.email"}}
	})

	result := Compute(a, b)
	rename := findChange(result, ObjectRenamed)
	require.NotNil(t, rename)
	assert.Equal(t, Breaking, rename.Severity)
	assert.Equal(t, "Customer", rename.OldValue)
	assert.Equal(t, "Client", rename.NewValue)
	assert.Nil(t, findChange(result, ObjectRemoved))
	assert.Nil(t, findChange(result, ObjectAdded))
}

func TestObjectRenameRefusedOnTie(t *testing.T) {
	twoTwins := `{
	  "version": "1.0",
	  "objects": [
	    {"name": "Alpha", "identifiers": ["id"], "properties": [
	      {"name": "id", "type": "string"}, {"name": "value", "type": "decimal"}]}
	  ]
	}`
	renamedBoth := `{
	  "version": "1.0",
	  "objects": [
	    {"name": "Beta", "identifiers": ["id"], "properties": [
	      {"name": "id", "type": "string"}, {"name": "value", "type": "decimal"}]},
	    {"name": "Gamma", "identifiers": ["id"], "properties": [
	      {"name": "id", "type": "string"}, {"name": "value", "type": "decimal"}]}
	  ]
	}`

	result := Compute(parseIR(t, twoTwins), parseIR(t, renamedBoth))
	assert.Nil(t, findChange(result, ObjectRenamed))
	assert.NotNil(t, findChange(result, ObjectRemoved))
	assert.Equal(t, 2, result.Summary.CountsByKind[ObjectAdded])
}

func TestTypeWidening(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		want     Severity
	}{
		{"integer to decimal safe", "integer", "decimal", NonBreaking},
		{"integer to number safe", "integer", "number", NonBreaking},
		{"decimal to number safe", "decimal", "number", NonBreaking},
		{"date to timestamp safe", "date", "timestamp", NonBreaking},
		{"number to integer breaking", "number", "integer", Breaking},
		{"string to integer breaking", "string", "integer", Breaking},
		{"timestamp to date breaking", "timestamp", "date", Breaking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mutate(t, func(doc map[string]any) {
				order := doc["objects"].([]any)[1].(map[string]any)
				order["properties"].([]any)[2].(map[string]any)["type"] = tt.from
			})
			b := mutate(t, func(doc map[string]any) {
				order := doc["objects"].([]any)[1].(map[string]any)
				order["properties"].([]any)[2].(map[string]any)["type"] = tt.to
			})

			result := Compute(a, b)
			change := findChange(result, PropertyTypeChanged)
			require.NotNil(t, change)
			assert.Equal(t, tt.want, change.Severity)
		})
	}
}

func TestNullableAndRequiredTransitions(t *testing.T) {
	setFlags := func(nullable, required bool) *odl.IR {
		return mutate(t, func(doc map[string]any) {
			customer := doc["objects"].([]any)[0].(map[string]any)
			email := customer["properties"].([]any)[1].(map[string]any)
			email["nullable"] = nullable
			email["required"] = required
		})
	}

	// nullable true -> false is breaking
	result := Compute(setFlags(true, false), setFlags(false, false))
	change := findChange(result, PropertyNullableChanged)
	require.NotNil(t, change)
	assert.Equal(t, Breaking, change.Severity)

	// nullable false -> true is non-breaking
	result = Compute(setFlags(false, false), setFlags(true, false))
	change = findChange(result, PropertyNullableChanged)
	require.NotNil(t, change)
	assert.Equal(t, NonBreaking, change.Severity)

	// required false -> true is breaking
	result = Compute(setFlags(true, false), setFlags(true, true))
	change = findChange(result, PropertyRequiredChanged)
	require.NotNil(t, change)
	assert.Equal(t, Breaking, change.Severity)

	// required true -> false is non-breaking
	result = Compute(setFlags(true, true), setFlags(true, false))
	change = findChange(result, PropertyRequiredChanged)
	require.NotNil(t, change)
	assert.Equal(t, NonBreaking, change.Severity)
}

func TestIdentifierChanges(t *testing.T) {
	// Full replacement is breaking.
	b := mutate(t, func(doc map[string]any) {
		customer := doc["objects"].([]any)[0].(map[string]any)
		customer["identifiers"] = []any{"email"}
	})
	result := Compute(parseIR(t, baseODL), b)
	change := findChange(result, IdentifierChanged)
	require.NotNil(t, change)
	assert.Equal(t, Breaking, change.Severity)

	// Pure addition with the old key surviving is non-breaking.
	b = mutate(t, func(doc map[string]any) {
		customer := doc["objects"].([]any)[0].(map[string]any)
		customer["identifiers"] = []any{"customer_id", "email"}
	})
	result = Compute(parseIR(t, baseODL), b)
	assert.Nil(t, findChange(result, IdentifierChanged))
	added := findChange(result, IdentifierAdded)
	require.NotNil(t, added)
	assert.Equal(t, NonBreaking, added.Severity)
}

func TestRelationshipChanges(t *testing.T) {
	t.Run("removed is breaking", func(t *testing.T) {
		b := mutate(t, func(doc map[string]any) {
			doc["relationships"] = []any{}
		})
		result := Compute(parseIR(t, baseODL), b)
		change := findChange(result, RelationshipRemoved)
		require.NotNil(t, change)
		assert.Equal(t, Breaking, change.Severity)
	})

	t.Run("join keys changed is breaking", func(t *testing.T) {
		b := mutate(t, func(doc map[string]any) {
			rel := doc["relationships"].([]any)[0].(map[string]any)
			rel["joinKeys"] = []any{[]any{"order_id", "customer_id"}}
		})
		result := Compute(parseIR(t, baseODL), b)
		change := findChange(result, RelationshipJoinKeysChanged)
		require.NotNil(t, change)
		assert.Equal(t, Breaking, change.Severity)
	})

	t.Run("cardinality tightened is breaking", func(t *testing.T) {
		b := mutate(t, func(doc map[string]any) {
			rel := doc["relationships"].([]any)[0].(map[string]any)
			rel["cardinality"] = "one_to_one"
		})
		result := Compute(parseIR(t, baseODL), b)
		change := findChange(result, RelationshipCardinalityChanged)
		require.NotNil(t, change)
		assert.Equal(t, Breaking, change.Severity)
	})

	t.Run("cardinality relaxed is non-breaking", func(t *testing.T) {
		b := mutate(t, func(doc map[string]any) {
			rel := doc["relationships"].([]any)[0].(map[string]any)
			rel["cardinality"] = "many_to_many"
		})
		result := Compute(parseIR(t, baseODL), b)
		change := findChange(result, RelationshipCardinalityChanged)
		require.NotNil(t, change)
		assert.Equal(t, NonBreaking, change.Severity)
	})
}

func TestMetricChanges(t *testing.T) {
	t.Run("expression changed is breaking", func(t *testing.T) {
		b := mutate(t, func(doc map[string]any) {
			metric := doc["metrics"].([]any)[0].(map[string]any)
			metric["expression"] = "SUM(order_total) - SUM(discount)"
		})
		result := Compute(parseIR(t, baseODL), b)
		change := findChange(result, MetricExpressionChanged)
		require.NotNil(t, change)
		assert.Equal(t, Breaking, change.Severity)
	})

	t.Run("grain changed is breaking", func(t *testing.T) {
		b := mutate(t, func(doc map[string]any) {
			metric := doc["metrics"].([]any)[0].(map[string]any)
			metric["grain"] = []any{"Order", "Customer"}
		})
		result := Compute(parseIR(t, baseODL), b)
		change := findChange(result, MetricGrainChanged)
		require.NotNil(t, change)
		assert.Equal(t, Breaking, change.Severity)
	})

	t.Run("added is non-breaking", func(t *testing.T) {
		b := mutate(t, func(doc map[string]any) {
			doc["metrics"] = append(doc["metrics"].([]any),
				map[string]any{"name": "OrderCount", "expression": "COUNT(order_id)", "grain": []any{"Order"}})
		})
		result := Compute(parseIR(t, baseODL), b)
		change := findChange(result, MetricAdded)
		require.NotNil(t, change)
		assert.Equal(t, NonBreaking, change.Severity)
	})
}

func TestDimensionChanges(t *testing.T) {
	t.Run("source changed is breaking", func(t *testing.T) {
		b := mutate(t, func(doc map[string]any) {
			dim := doc["dimensions"].([]any)[0].(map[string]any)
			dim["sourceProperty"] = "Customer.full_name"
		})
		result := Compute(parseIR(t, baseODL), b)
		change := findChange(result, DimensionSourceChanged)
		require.NotNil(t, change)
		assert.Equal(t, Breaking, change.Severity)
	})

	t.Run("removed is breaking, added is non-breaking", func(t *testing.T) {
		b := mutate(t, func(doc map[string]any) {
			doc["dimensions"] = []any{map[string]any{"name": "customer_name", "sourceProperty": "Customer.full_name"}}
		})
		result := Compute(parseIR(t, baseODL), b)
		assert.Equal(t, Breaking, findChange(result, DimensionRemoved).Severity)
		assert.Equal(t, NonBreaking, findChange(result, DimensionAdded).Severity)
	})
}

func TestDescriptionChangesNonBreaking(t *testing.T) {
	b := mutate(t, func(doc map[string]any) {
		customer := doc["objects"].([]any)[0].(map[string]any)
		customer["description"] = "A paying customer"
	})
	result := Compute(parseIR(t, baseODL), b)
	change := findChange(result, ObjectDescriptionChanged)
	require.NotNil(t, change)
	assert.Equal(t, NonBreaking, change.Severity)
	assert.False(t, result.Summary.HasBreaking)
}

func TestSummaryCounts(t *testing.T) {
	b := mutate(t, func(doc map[string]any) {
		customer := doc["objects"].([]any)[0].(map[string]any)
		customer["properties"] = append(customer["properties"].([]any),
			map[string]any{"name": "phone", "type": "string"})
		doc["relationships"] = []any{}
	})

	result := Compute(parseIR(t, baseODL), b)
	assert.Equal(t, 1, result.Summary.CountsByKind[PropertyAdded])
	assert.Equal(t, 1, result.Summary.CountsByKind[RelationshipRemoved])
	assert.Equal(t, 1, result.Summary.TotalBreaking)
	assert.Equal(t, 1, result.Summary.TotalNonBreaking)
	assert.Equal(t, 2, result.Summary.TotalChanges)
	assert.True(t, result.Summary.HasBreaking)
}
