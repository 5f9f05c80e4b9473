// Package llm holds the ontology draft generator, a collaborator that
// sits outside the core pipeline: it turns a warehouse schema sample
// into a typed ODL document. The core only ever consumes the returned
// document and stays fully testable without network access.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/chinmayajena/sundaygraph/pkg/jsonutil"
	"github.com/chinmayajena/sundaygraph/pkg/odl"
)

// SchemaTable is one sampled table handed to the generator.
type SchemaTable struct {
	Name    string            `json:"name"`
	Columns map[string]string `json:"columns"` // column -> warehouse type
}

// messagesClient is the slice of the Anthropic client the generator
// needs; tests substitute a canned implementation.
type messagesClient interface {
	CreateMessages(ctx context.Context, request anthropic.MessagesRequest) (anthropic.MessagesResponse, error)
}

// Generator drafts ODL documents from schema samples.
type Generator struct {
	client messagesClient
	model  string
	logger *zap.Logger
}

// NewGenerator creates a generator against the Anthropic API.
func NewGenerator(apiKey, model string, logger *zap.Logger) *Generator {
	return &Generator{
		client: anthropic.NewClient(apiKey),
		model:  model,
		logger: logger.Named("generator"),
	}
}

// newGeneratorWithClient is the test seam.
func newGeneratorWithClient(client messagesClient, model string, logger *zap.Logger) *Generator {
	return &Generator{client: client, model: model, logger: logger}
}

const draftSystemPrompt = `You design analytics ontologies. Given warehouse tables and columns,
produce an ODL JSON document with objects, identifiers, properties,
relationships (with joinKeys), and a small set of useful metrics and
dimensions. Property types must be one of: string, number, integer,
decimal, boolean, date, timestamp, time. Return ONLY the JSON document.`

// Draft asks the model for an ODL document covering the sampled tables,
// then repairs and validates the result. The returned payload is
// guaranteed to pass ODL validation.
func (g *Generator) Draft(ctx context.Context, description, database, schema string, tables []SchemaTable) ([]byte, *odl.IR, error) {
	prompt, err := buildPrompt(description, database, schema, tables)
	if err != nil {
		return nil, nil, err
	}

	resp, err := g.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(g.model),
		MaxTokens: 4000,
		System:    draftSystemPrompt,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("draft generation failed: %w", err)
	}

	text := extractText(resp)
	payload := extractJSON(text)
	if payload == "" {
		return nil, nil, fmt.Errorf("draft response contained no JSON document")
	}

	repaired, err := repairDraft([]byte(payload), database, schema, tables)
	if err != nil {
		return nil, nil, err
	}

	ir, err := odl.ParseAndValidate(repaired)
	if err != nil {
		return nil, nil, fmt.Errorf("generated draft failed validation: %w", err)
	}

	g.logger.Info("ontology draft generated",
		zap.Int("objects", len(ir.Objects)),
		zap.Int("relationships", len(ir.Relationships)))
	return repaired, ir, nil
}

func buildPrompt(description, database, schema string, tables []SchemaTable) (string, error) {
	if len(tables) == 0 {
		return "", fmt.Errorf("no tables to draft from")
	}

	var sb strings.Builder
	sb.WriteString("Draft an ODL ontology.\n\n")
	if description != "" {
		fmt.Fprintf(&sb, "Business context: %s\n\n", description)
	}
	fmt.Fprintf(&sb, "Warehouse location: %s.%s\n\nTables:\n", database, schema)
	for _, table := range tables {
		fmt.Fprintf(&sb, "- %s\n", table.Name)
		for column, colType := range table.Columns {
			fmt.Fprintf(&sb, "    %s %s\n", column, colType)
		}
	}
	return sb.String(), nil
}

// repairDraft fills the gaps models commonly leave: loose scalar types,
// a missing targetMapping block, and missing table mappings (suggested
// by pluralizing the object name, matching warehouse convention).
func repairDraft(payload []byte, database, schema string, tables []SchemaTable) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("draft is not a JSON object: %w", err)
	}

	if _, ok := doc["version"]; !ok {
		doc["version"] = json.RawMessage(`"1.0"`)
	} else {
		// Models sometimes emit version as a number.
		version := jsonutil.FlexibleStringValue(doc["version"])
		encoded, _ := json.Marshal(version)
		doc["version"] = encoded
	}

	tableNames := map[string]bool{}
	for _, t := range tables {
		tableNames[t.Name] = true
	}

	var mapping struct {
		Database      string            `json:"database"`
		Schema        string            `json:"schema"`
		Warehouse     string            `json:"warehouse,omitempty"`
		TableMappings map[string]string `json:"tableMappings"`
	}
	if raw, ok := doc["targetMapping"]; ok {
		_ = json.Unmarshal(raw, &mapping)
	}
	if mapping.Database == "" {
		mapping.Database = database
	}
	if mapping.Schema == "" {
		mapping.Schema = schema
	}
	if mapping.TableMappings == nil {
		mapping.TableMappings = map[string]string{}
	}

	var objects []struct {
		Name string `json:"name"`
	}
	if raw, ok := doc["objects"]; ok {
		_ = json.Unmarshal(raw, &objects)
	}
	for _, obj := range objects {
		if _, ok := mapping.TableMappings[obj.Name]; ok {
			continue
		}
		suggested := inflection.Plural(odl.SnakeCase(obj.Name))
		if tableNames[suggested] {
			mapping.TableMappings[obj.Name] = suggested
		} else if tableNames[odl.SnakeCase(obj.Name)] {
			mapping.TableMappings[obj.Name] = odl.SnakeCase(obj.Name)
		}
	}

	encodedMapping, err := json.Marshal(mapping)
	if err != nil {
		return nil, err
	}
	doc["targetMapping"] = encodedMapping

	return json.Marshal(doc)
}

func extractText(resp anthropic.MessagesResponse) string {
	var sb strings.Builder
	for _, content := range resp.Content {
		if content.Text != nil {
			sb.WriteString(*content.Text)
		}
	}
	return sb.String()
}

// extractJSON pulls the first top-level JSON object out of a response
// that may wrap it in prose or code fences.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
