package llm

import (
	"context"
	"testing"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type cannedClient struct {
	response string
	request  *anthropic.MessagesRequest
}

func (c *cannedClient) CreateMessages(ctx context.Context, request anthropic.MessagesRequest) (anthropic.MessagesResponse, error) {
	c.request = &request
	text := c.response
	return anthropic.MessagesResponse{
		Content: []anthropic.MessageContent{{Type: "text", Text: &text}},
	}, nil
}

var sampleTables = []SchemaTable{
	{Name: "customers", Columns: map[string]string{"customer_id": "VARCHAR", "email": "VARCHAR"}},
	{Name: "orders", Columns: map[string]string{"order_id": "VARCHAR", "customer_id": "VARCHAR", "order_total": "NUMBER"}},
}

const draftResponse = "Here is the ontology:\n```json\n" + `{
  "version": "1.0",
  "name": "retail",
  "objects": [
    {"name": "Customer", "identifiers": ["customer_id"],
     "properties": [
       {"name": "customer_id", "type": "string", "nullable": false, "required": true},
       {"name": "email", "type": "string"}]},
    {"name": "Order", "identifiers": ["order_id"],
     "properties": [
       {"name": "order_id", "type": "string", "nullable": false, "required": true},
       {"name": "customer_id", "type": "string"},
       {"name": "order_total", "type": "decimal"}]}
  ],
  "relationships": [
    {"name": "placed_by", "from": "Order", "to": "Customer",
     "joinKeys": [["customer_id", "customer_id"]], "cardinality": "many_to_one"}
  ]
}` + "\n```\nLet me know if you need changes."

func TestDraftParsesAndRepairs(t *testing.T) {
	client := &cannedClient{response: draftResponse}
	g := newGeneratorWithClient(client, "test-model", zap.NewNop())

	payload, ir, err := g.Draft(context.Background(), "retail analytics", "RETAIL_DB", "PUBLIC", sampleTables)
	require.NoError(t, err)
	require.NotNil(t, ir)
	assert.NotEmpty(t, payload)

	// The request carried the ontology-design system prompt.
	require.NotNil(t, client.request)
	assert.Contains(t, client.request.System, "ontologies")

	// The repair step filled targetMapping with pluralized table names
	// that exist in the sample.
	require.NotNil(t, ir.TargetMapping)
	assert.Equal(t, "RETAIL_DB", ir.TargetMapping.Database)
	assert.Equal(t, "PUBLIC", ir.TargetMapping.Schema)
	assert.Equal(t, "customers", ir.TargetMapping.TableMappings["Customer"])
	assert.Equal(t, "orders", ir.TargetMapping.TableMappings["Order"])
}

func TestDraftRejectsNonJSONResponse(t *testing.T) {
	client := &cannedClient{response: "I cannot produce an ontology for this schema."}
	g := newGeneratorWithClient(client, "test-model", zap.NewNop())

	_, _, err := g.Draft(context.Background(), "", "DB", "PUBLIC", sampleTables)
	assert.Error(t, err)
}

func TestDraftRejectsInvalidOntology(t *testing.T) {
	// References an unknown object; validation must fail.
	client := &cannedClient{response: `{
		"version": "1.0",
		"objects": [{"name": "Customer", "identifiers": ["id"],
			"properties": [{"name": "id", "type": "string"}]}],
		"relationships": [{"name": "r", "from": "Customer", "to": "Ghost",
			"joinKeys": [["id", "id"]]}]
	}`}
	g := newGeneratorWithClient(client, "test-model", zap.NewNop())

	_, _, err := g.Draft(context.Background(), "", "DB", "PUBLIC", sampleTables)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestDraftRequiresTables(t *testing.T) {
	g := newGeneratorWithClient(&cannedClient{}, "test-model", zap.NewNop())
	_, _, err := g.Draft(context.Background(), "", "DB", "PUBLIC", nil)
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose around", `Sure! {"a": {"b": 2}} Done.`, `{"a": {"b": 2}}`},
		{"braces in strings", `{"expr": "if {x} then }"}`, `{"expr": "if {x} then }"}`},
		{"no json", "nothing here", ""},
		{"unbalanced", `{"a": 1`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.text))
		})
	}
}
