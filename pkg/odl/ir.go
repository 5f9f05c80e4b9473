package odl

// PropertyType is the closed set of scalar and structured property types
// an object may declare.
type PropertyType string

const (
	TypeString    PropertyType = "string"
	TypeNumber    PropertyType = "number"
	TypeInteger   PropertyType = "integer"
	TypeDecimal   PropertyType = "decimal"
	TypeBoolean   PropertyType = "boolean"
	TypeDate      PropertyType = "date"
	TypeTimestamp PropertyType = "timestamp"
	TypeTime      PropertyType = "time"
	TypeArray     PropertyType = "array"
	TypeObject    PropertyType = "object"
)

// ValidPropertyTypes contains all recognized property types.
var ValidPropertyTypes = map[PropertyType]bool{
	TypeString: true, TypeNumber: true, TypeInteger: true, TypeDecimal: true,
	TypeBoolean: true, TypeDate: true, TypeTimestamp: true, TypeTime: true,
	TypeArray: true, TypeObject: true,
}

// Cardinality describes relationship multiplicity.
type Cardinality string

const (
	OneToOne   Cardinality = "one_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToOne  Cardinality = "many_to_one"
	ManyToMany Cardinality = "many_to_many"
)

// ValidCardinalities contains all recognized cardinalities.
var ValidCardinalities = map[Cardinality]bool{
	OneToOne: true, OneToMany: true, ManyToOne: true, ManyToMany: true,
}

// MetricType is the aggregation hint surfaced to the target system.
type MetricType string

const (
	MetricSum           MetricType = "sum"
	MetricCount         MetricType = "count"
	MetricAverage       MetricType = "average"
	MetricMin           MetricType = "min"
	MetricMax           MetricType = "max"
	MetricDistinctCount MetricType = "distinct_count"
	MetricCustom        MetricType = "custom"
)

// ValidMetricTypes contains all recognized metric types.
var ValidMetricTypes = map[MetricType]bool{
	MetricSum: true, MetricCount: true, MetricAverage: true, MetricMin: true,
	MetricMax: true, MetricDistinctCount: true, MetricCustom: true,
}

// Property is a typed attribute on an object.
type Property struct {
	Name        string       `json:"name"`
	Type        PropertyType `json:"type"`
	Description string       `json:"description,omitempty"`
	Nullable    bool         `json:"nullable"`
	Required    bool         `json:"required"`
}

// ObjectMapping overrides the warehouse location of one object.
type ObjectMapping struct {
	Table    string `json:"table,omitempty"`
	Schema   string `json:"schema,omitempty"`
	Database string `json:"database,omitempty"`
}

// Object is an entity in the ontology with identifiers and typed properties.
type Object struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Identifiers []string       `json:"identifiers"`
	Properties  []Property     `json:"properties"`
	Mapping     *ObjectMapping `json:"mapping,omitempty"`
}

// Property returns the named property, or nil.
func (o *Object) Property(name string) *Property {
	for i := range o.Properties {
		if o.Properties[i].Name == name {
			return &o.Properties[i]
		}
	}
	return nil
}

// JoinKey is an ordered (from-property, to-property) pair. Pair order is
// semantic and preserved through normalization.
type JoinKey [2]string

// Relationship joins two objects over ordered key pairs.
type Relationship struct {
	Name        string      `json:"name"`
	From        string      `json:"from"`
	To          string      `json:"to"`
	JoinKeys    []JoinKey   `json:"joinKeys"`
	Cardinality Cardinality `json:"cardinality"`
	Description string      `json:"description,omitempty"`
}

// Metric is a measure declared at a grain of one or more objects.
type Metric struct {
	Name        string     `json:"name"`
	Expression  string     `json:"expression"`
	Grain       []string   `json:"grain"`
	Type        MetricType `json:"type"`
	Format      string     `json:"format,omitempty"`
	Description string     `json:"description,omitempty"`
}

// Dimension exposes Object.property as an analysis axis.
type Dimension struct {
	Name           string `json:"name"`
	SourceProperty string `json:"sourceProperty"`
	Type           string `json:"type,omitempty"`
	Description    string `json:"description,omitempty"`
}

// TargetMapping holds warehouse defaults plus per-object table names.
type TargetMapping struct {
	Database      string            `json:"database"`
	Schema        string            `json:"schema"`
	Warehouse     string            `json:"warehouse,omitempty"`
	TableMappings map[string]string `json:"tableMappings"`
}

// IR is the validated, in-memory form of an ODL document. Field order
// here fixes the canonical key order of the serialized form.
type IR struct {
	Version       string         `json:"version"`
	Name          string         `json:"name,omitempty"`
	Description   string         `json:"description,omitempty"`
	Objects       []Object       `json:"objects"`
	Relationships []Relationship `json:"relationships,omitempty"`
	Metrics       []Metric       `json:"metrics,omitempty"`
	Dimensions    []Dimension    `json:"dimensions,omitempty"`
	TargetMapping *TargetMapping `json:"targetMapping,omitempty"`
}

// Object returns the named object, or nil.
func (ir *IR) Object(name string) *Object {
	for i := range ir.Objects {
		if ir.Objects[i].Name == name {
			return &ir.Objects[i]
		}
	}
	return nil
}

// TableFor resolves the physical table for an object: per-object mapping
// first, then the global tableMappings entry, then snake_case of the name.
func (ir *IR) TableFor(obj *Object) string {
	if obj.Mapping != nil && obj.Mapping.Table != "" {
		return obj.Mapping.Table
	}
	if ir.TargetMapping != nil {
		if t, ok := ir.TargetMapping.TableMappings[obj.Name]; ok && t != "" {
			return t
		}
	}
	return SnakeCase(obj.Name)
}

// DatabaseFor resolves the database for an object, falling back to the
// global default. Empty when neither is set.
func (ir *IR) DatabaseFor(obj *Object) string {
	if obj.Mapping != nil && obj.Mapping.Database != "" {
		return obj.Mapping.Database
	}
	if ir.TargetMapping != nil {
		return ir.TargetMapping.Database
	}
	return ""
}

// SchemaFor resolves the schema for an object, falling back to the
// global default. Empty when neither is set.
func (ir *IR) SchemaFor(obj *Object) string {
	if obj.Mapping != nil && obj.Mapping.Schema != "" {
		return obj.Mapping.Schema
	}
	if ir.TargetMapping != nil {
		return ir.TargetMapping.Schema
	}
	return ""
}

// SnakeCase converts CamelCase object names to snake_case table names.
func SnakeCase(name string) string {
	out := make([]rune, 0, len(name)+4)
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				prev := rune(name[i-1])
				if prev >= 'a' && prev <= 'z' || prev >= '0' && prev <= '9' {
					out = append(out, '_')
				}
			}
			out = append(out, r+('a'-'A'))
		} else {
			out = append(out, r)
		}
	}
	return string(out)
}
