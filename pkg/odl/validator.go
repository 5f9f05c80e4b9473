package odl

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
)

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidationIssue pins one problem to a JSON-pointer-style location.
type ValidationIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a parsed document in two layers - structural shape
// first, then cross-references - and builds the IR with defaults applied.
// It returns either a fully-populated IR or an error carrying every issue
// found in the failing layer; never a partial IR.
func Validate(doc *Document) (*IR, error) {
	if issues := validateStructure(doc); len(issues) > 0 {
		return nil, issueError(apperrors.CodeInvalidStructure, issues)
	}

	ir := buildIR(doc)

	if issues := validateReferences(ir); len(issues) > 0 {
		return nil, issueError(apperrors.CodeInvalidReference, issues)
	}

	return ir, nil
}

// ParseAndValidate is the single entry point from payload bytes to IR.
func ParseAndValidate(payload []byte) (*IR, error) {
	doc, err := ParseDocument(payload)
	if err != nil {
		return nil, err
	}
	return Validate(doc)
}

func issueError(code apperrors.Code, issues []ValidationIssue) error {
	err := apperrors.Newf(code, "%d validation error(s)", len(issues))
	for _, issue := range issues {
		err = err.WithDetails(issue.String())
	}
	return err
}

func validateStructure(doc *Document) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if doc.Version == "" {
		add("/version", "missing required field 'version'")
	}
	if len(doc.Objects) == 0 {
		add("/objects", "at least one object is required")
	}

	for i, obj := range doc.Objects {
		base := fmt.Sprintf("/objects/%d", i)
		if obj.Name == "" {
			add(base+"/name", "missing required field 'name'")
		} else if !namePattern.MatchString(obj.Name) {
			add(base+"/name", "name %q must match ^[A-Za-z][A-Za-z0-9_]*$", obj.Name)
		}
		if len(obj.Identifiers) == 0 {
			add(base+"/identifiers", "object must declare at least one identifier")
		}
		for j, prop := range obj.Properties {
			pbase := fmt.Sprintf("%s/properties/%d", base, j)
			if prop.Name == "" {
				add(pbase+"/name", "missing required field 'name'")
			} else if !namePattern.MatchString(prop.Name) {
				add(pbase+"/name", "name %q must match ^[A-Za-z][A-Za-z0-9_]*$", prop.Name)
			}
			if prop.Type == "" {
				add(pbase+"/type", "missing required field 'type'")
			} else if !ValidPropertyTypes[PropertyType(prop.Type)] {
				add(pbase+"/type", "unknown property type %q", prop.Type)
			}
		}
	}

	for i, rel := range doc.Relationships {
		base := fmt.Sprintf("/relationships/%d", i)
		if rel.Name == "" {
			add(base+"/name", "missing required field 'name'")
		} else if !namePattern.MatchString(rel.Name) {
			add(base+"/name", "name %q must match ^[A-Za-z][A-Za-z0-9_]*$", rel.Name)
		}
		if rel.From == "" {
			add(base+"/from", "missing required field 'from'")
		}
		if rel.To == "" {
			add(base+"/to", "missing required field 'to'")
		}
		if len(rel.JoinKeys) == 0 {
			add(base+"/joinKeys", "at least one join key pair is required")
		}
		for j, pair := range rel.JoinKeys {
			if len(pair) != 2 {
				add(fmt.Sprintf("%s/joinKeys/%d", base, j), "join key must be a [from, to] pair")
			}
		}
		if rel.Cardinality != "" && !ValidCardinalities[Cardinality(rel.Cardinality)] {
			add(base+"/cardinality", "unknown cardinality %q", rel.Cardinality)
		}
	}

	for i, metric := range doc.Metrics {
		base := fmt.Sprintf("/metrics/%d", i)
		if metric.Name == "" {
			add(base+"/name", "missing required field 'name'")
		} else if !namePattern.MatchString(metric.Name) {
			add(base+"/name", "name %q must match ^[A-Za-z][A-Za-z0-9_]*$", metric.Name)
		}
		if metric.Expression == "" {
			add(base+"/expression", "missing required field 'expression'")
		}
		if metric.Type != "" && !ValidMetricTypes[MetricType(metric.Type)] {
			add(base+"/type", "unknown metric type %q", metric.Type)
		}
	}

	for i, dim := range doc.Dimensions {
		base := fmt.Sprintf("/dimensions/%d", i)
		if dim.Name == "" {
			add(base+"/name", "missing required field 'name'")
		} else if !namePattern.MatchString(dim.Name) {
			add(base+"/name", "name %q must match ^[A-Za-z][A-Za-z0-9_]*$", dim.Name)
		}
		if dim.SourceProperty == "" {
			add(base+"/sourceProperty", "missing required field 'sourceProperty'")
		} else if !strings.Contains(dim.SourceProperty, ".") {
			add(base+"/sourceProperty", "sourceProperty %q must have the form 'Object.property'", dim.SourceProperty)
		}
	}

	if tm := doc.TargetMapping; tm != nil {
		if tm.Database == "" {
			add("/targetMapping/database", "missing required field 'database'")
		}
		if tm.Schema == "" {
			add("/targetMapping/schema", "missing required field 'schema'")
		}
	}

	return issues
}

// buildIR converts a structurally-valid document into the IR, applying
// defaults: nullable true, required false, cardinality many_to_one,
// metric type custom, dimension type categorical.
func buildIR(doc *Document) *IR {
	ir := &IR{
		Version:     doc.Version,
		Name:        doc.Name,
		Description: doc.Description,
	}

	for _, obj := range doc.Objects {
		o := Object{
			Name:        obj.Name,
			Description: obj.Description,
			Identifiers: append([]string(nil), obj.Identifiers...),
			Mapping:     obj.Mapping,
		}
		for _, prop := range obj.Properties {
			p := Property{
				Name:        prop.Name,
				Type:        PropertyType(prop.Type),
				Description: prop.Description,
				Nullable:    true,
				Required:    false,
			}
			if prop.Nullable != nil {
				p.Nullable = *prop.Nullable
			}
			if prop.Required != nil {
				p.Required = *prop.Required
			}
			o.Properties = append(o.Properties, p)
		}
		ir.Objects = append(ir.Objects, o)
	}

	for _, rel := range doc.Relationships {
		r := Relationship{
			Name:        rel.Name,
			From:        rel.From,
			To:          rel.To,
			Cardinality: ManyToOne,
			Description: rel.Description,
		}
		if rel.Cardinality != "" {
			r.Cardinality = Cardinality(rel.Cardinality)
		}
		for _, pair := range rel.JoinKeys {
			r.JoinKeys = append(r.JoinKeys, JoinKey{pair[0], pair[1]})
		}
		ir.Relationships = append(ir.Relationships, r)
	}

	for _, metric := range doc.Metrics {
		m := Metric{
			Name:        metric.Name,
			Expression:  metric.Expression,
			Grain:       append([]string(nil), metric.Grain...),
			Type:        MetricCustom,
			Format:      metric.Format,
			Description: metric.Description,
		}
		if metric.Type != "" {
			m.Type = MetricType(metric.Type)
		}
		ir.Metrics = append(ir.Metrics, m)
	}

	for _, dim := range doc.Dimensions {
		d := Dimension{
			Name:           dim.Name,
			SourceProperty: dim.SourceProperty,
			Type:           dim.Type,
			Description:    dim.Description,
		}
		if d.Type == "" {
			d.Type = "categorical"
		}
		ir.Dimensions = append(ir.Dimensions, d)
	}

	if tm := doc.TargetMapping; tm != nil {
		mappings := make(map[string]string, len(tm.TableMappings))
		for k, v := range tm.TableMappings {
			mappings[k] = v
		}
		ir.TargetMapping = &TargetMapping{
			Database:      tm.Database,
			Schema:        tm.Schema,
			Warehouse:     tm.Warehouse,
			TableMappings: mappings,
		}
	}

	return ir
}

// typesCompatible reports whether a join between two property types is
// allowed: exact matches always, plus decimal and number interchangeably.
func typesCompatible(a, b PropertyType) bool {
	if a == b {
		return true
	}
	numeric := func(t PropertyType) bool { return t == TypeDecimal || t == TypeNumber }
	return numeric(a) && numeric(b)
}

func validateReferences(ir *IR) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	objects := make(map[string]*Object, len(ir.Objects))
	for i := range ir.Objects {
		objects[ir.Objects[i].Name] = &ir.Objects[i]
	}

	for i, rel := range ir.Relationships {
		base := fmt.Sprintf("/relationships/%d", i)
		from, fromOK := objects[rel.From]
		to, toOK := objects[rel.To]
		if !fromOK {
			add(base+"/from", "relationship %q references unknown object %q", rel.Name, rel.From)
		}
		if !toOK {
			add(base+"/to", "relationship %q references unknown object %q", rel.Name, rel.To)
		}
		if !fromOK || !toOK {
			continue
		}
		for j, pair := range rel.JoinKeys {
			kbase := fmt.Sprintf("%s/joinKeys/%d", base, j)
			fromProp := from.Property(pair[0])
			toProp := to.Property(pair[1])
			if fromProp == nil {
				add(kbase+"/0", "object %q has no property %q", rel.From, pair[0])
			}
			if toProp == nil {
				add(kbase+"/1", "object %q has no property %q", rel.To, pair[1])
			}
			if fromProp != nil && toProp != nil && !typesCompatible(fromProp.Type, toProp.Type) {
				add(kbase, "join key types %s and %s are incompatible", fromProp.Type, toProp.Type)
			}
		}
	}

	for i, metric := range ir.Metrics {
		for j, grain := range metric.Grain {
			if _, ok := objects[grain]; !ok {
				add(fmt.Sprintf("/metrics/%d/grain/%d", i, j),
					"metric %q grain references unknown object %q", metric.Name, grain)
			}
		}
	}

	for i, dim := range ir.Dimensions {
		base := fmt.Sprintf("/dimensions/%d/sourceProperty", i)
		objName, propName, _ := strings.Cut(dim.SourceProperty, ".")
		obj, ok := objects[objName]
		if !ok {
			add(base, "dimension %q references unknown object %q", dim.Name, objName)
			continue
		}
		if obj.Property(propName) == nil {
			add(base, "dimension %q references unknown property %q on object %q", dim.Name, propName, objName)
		}
	}

	if ir.TargetMapping != nil {
		for objName := range ir.TargetMapping.TableMappings {
			if _, ok := objects[objName]; !ok {
				add("/targetMapping/tableMappings/"+objName,
					"table mapping references unknown object %q", objName)
			}
		}
	}

	// Mapping issues surface in a deterministic order.
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return issues
}
