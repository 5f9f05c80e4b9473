package compiler

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chinmayajena/sundaygraph/pkg/odl"
)

// Snowflake semantic-model YAML shape. Struct field order fixes the key
// order of the emitted document.

type semanticModelDoc struct {
	SemanticModel semanticModel `yaml:"semantic_model"`
}

type semanticModel struct {
	Name          string             `yaml:"name"`
	Version       string             `yaml:"version"`
	Description   string             `yaml:"description,omitempty"`
	LogicalTables []logicalTable     `yaml:"logical_tables,omitempty"`
	Relationships []relationshipYAML `yaml:"relationships,omitempty"`
	Facts         []factYAML         `yaml:"facts,omitempty"`
	Dimensions    []dimensionYAML    `yaml:"dimensions,omitempty"`
}

type physicalTable struct {
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
	Table    string `yaml:"table"`
}

type columnYAML struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
	Nullable    bool   `yaml:"nullable"`
}

type logicalTable struct {
	Name          string        `yaml:"name"`
	Description   string        `yaml:"description,omitempty"`
	PhysicalTable physicalTable `yaml:"physical_table"`
	PrimaryKey    []string      `yaml:"primary_key"`
	Columns       []columnYAML  `yaml:"columns,omitempty"`
}

type joinKeyYAML struct {
	FromColumn string `yaml:"from_column"`
	ToColumn   string `yaml:"to_column"`
}

type relationshipYAML struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	FromTable   string        `yaml:"from_table"`
	ToTable     string        `yaml:"to_table"`
	JoinType    string        `yaml:"join_type"`
	Cardinality string        `yaml:"cardinality"`
	JoinKeys    []joinKeyYAML `yaml:"join_keys"`
}

type factYAML struct {
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description,omitempty"`
	Expression      string   `yaml:"expression"`
	Grain           []string `yaml:"grain"`
	AggregationType string   `yaml:"aggregation_type"`
	Format          string   `yaml:"format,omitempty"`
}

type dimensionYAML struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Table       string `yaml:"table"`
	Column      string `yaml:"column"`
	Type        string `yaml:"type"`
}

// snowflakeTypeOf maps ODL property types to Snowflake column types.
func snowflakeTypeOf(t odl.PropertyType) string {
	switch t {
	case odl.TypeString:
		return "VARCHAR"
	case odl.TypeNumber:
		return "NUMBER"
	case odl.TypeInteger:
		return "INTEGER"
	case odl.TypeDecimal:
		return "DECIMAL"
	case odl.TypeBoolean:
		return "BOOLEAN"
	case odl.TypeDate:
		return "DATE"
	case odl.TypeTimestamp:
		return "TIMESTAMP_NTZ"
	case odl.TypeTime:
		return "TIME"
	default:
		return "VARIANT"
	}
}

// joinTypeOf maps cardinality to the emitted join type.
func joinTypeOf(c odl.Cardinality) string {
	if c == odl.OneToOne {
		return "INNER"
	}
	return "LEFT"
}

// aggregationOf maps metric types to the target aggregation hint.
func aggregationOf(t odl.MetricType) string {
	switch t {
	case odl.MetricSum:
		return "SUM"
	case odl.MetricCount:
		return "COUNT"
	case odl.MetricAverage:
		return "AVG"
	case odl.MetricMin:
		return "MIN"
	case odl.MetricMax:
		return "MAX"
	case odl.MetricDistinctCount:
		return "COUNT_DISTINCT"
	default:
		return "CUSTOM"
	}
}

// buildSemanticModel lowers a normalized IR into the YAML document shape.
// database/schema override the IR's targetMapping when non-empty.
func buildSemanticModel(ir *odl.IR, modelName, database, schema string) semanticModelDoc {
	model := semanticModel{
		Name:        modelName,
		Version:     ir.Version,
		Description: ir.Description,
	}

	for i := range ir.Objects {
		obj := &ir.Objects[i]

		db := ir.DatabaseFor(obj)
		sch := ir.SchemaFor(obj)
		if database != "" {
			db = database
		}
		if schema != "" {
			sch = schema
		}

		table := logicalTable{
			Name:        obj.Name,
			Description: obj.Description,
			PhysicalTable: physicalTable{
				Database: db,
				Schema:   sch,
				Table:    ir.TableFor(obj),
			},
			PrimaryKey: append([]string(nil), obj.Identifiers...),
		}
		for _, prop := range obj.Properties {
			table.Columns = append(table.Columns, columnYAML{
				Name:        prop.Name,
				Type:        snowflakeTypeOf(prop.Type),
				Description: prop.Description,
				Nullable:    prop.Nullable,
			})
		}
		model.LogicalTables = append(model.LogicalTables, table)
	}

	for i := range ir.Relationships {
		rel := &ir.Relationships[i]
		r := relationshipYAML{
			Name:        rel.Name,
			Description: rel.Description,
			FromTable:   rel.From,
			ToTable:     rel.To,
			JoinType:    joinTypeOf(rel.Cardinality),
			Cardinality: string(rel.Cardinality),
		}
		for _, key := range rel.JoinKeys {
			r.JoinKeys = append(r.JoinKeys, joinKeyYAML{FromColumn: key[0], ToColumn: key[1]})
		}
		model.Relationships = append(model.Relationships, r)
	}

	for i := range ir.Metrics {
		metric := &ir.Metrics[i]
		model.Facts = append(model.Facts, factYAML{
			Name:            metric.Name,
			Description:     metric.Description,
			Expression:      metric.Expression,
			Grain:           append([]string(nil), metric.Grain...),
			AggregationType: aggregationOf(metric.Type),
			Format:          metric.Format,
		})
	}

	for i := range ir.Dimensions {
		dim := &ir.Dimensions[i]
		objName, propName, _ := strings.Cut(dim.SourceProperty, ".")
		table := ""
		if obj := ir.Object(objName); obj != nil {
			table = ir.TableFor(obj)
		}
		model.Dimensions = append(model.Dimensions, dimensionYAML{
			Name:        dim.Name,
			Description: dim.Description,
			Table:       table,
			Column:      propName,
			Type:        dim.Type,
		})
	}

	return semanticModelDoc{SemanticModel: model}
}

// renderSemanticModelYAML emits the byte-stable YAML with its header
// comment: source ontology, version number, and content hash.
func renderSemanticModelYAML(doc semanticModelDoc, opts Options) (string, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Semantic model compiled from ontology %q\n", opts.SourceOntology)
	fmt.Fprintf(&buf, "# Version: %d\n", opts.VersionNumber)
	fmt.Fprintf(&buf, "# Content hash: %s\n", opts.ContentHash)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to encode semantic model YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize semantic model YAML: %w", err)
	}
	return buf.String(), nil
}
