// Package eval applies rule bundles (gates) to a validated ontology
// before it may be compiled or promoted. Determinism replaces reasoning:
// every gate is a pure predicate over the IR.
package eval

import (
	"fmt"
	"strings"

	"github.com/chinmayajena/sundaygraph/pkg/odl"
)

// Category groups gates into the three bundles.
type Category string

const (
	Structural    Category = "structural"
	Semantic      Category = "semantic"
	Deployability Category = "deployability"
)

// Status is the outcome of one gate.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusWarning Status = "warning"
)

// GateResult is the outcome of evaluating a single gate.
type GateResult struct {
	GateID   string   `json:"gate_id"`
	Category Category `json:"category"`
	Status   Status   `json:"status"`
	Message  string   `json:"message"`
	Details  []string `json:"details,omitempty"`
}

// gate is a named, categorized predicate. check returns the offending
// element descriptions; empty means pass. warnOnly gates never fail, they
// degrade to warnings.
type gate struct {
	id       string
	category Category
	message  string
	warnOnly bool
	check    func(ir *odl.IR) []string
}

// expressionDenylist rejects metric expressions that could smuggle DDL
// through the compiled view.
var expressionDenylist = []string{";", "DROP ", "GRANT "}

// gates lists every gate in evaluation order. Order is part of the
// contract: FirstFailure is the first entry whose status sinks the run.
var gates = []gate{
	{
		id:       "no_duplicate_names",
		category: Structural,
		message:  "entity names must be unique within their kind",
		check:    checkDuplicateNames,
	},
	{
		id:       "identifiers_present",
		category: Structural,
		message:  "every object must declare at least one identifier",
		check: func(ir *odl.IR) []string {
			var bad []string
			for i := range ir.Objects {
				if len(ir.Objects[i].Identifiers) == 0 {
					bad = append(bad, ir.Objects[i].Name)
				}
			}
			return bad
		},
	},
	{
		id:       "identifiers_resolve",
		category: Structural,
		message:  "every identifier must name a declared property",
		check: func(ir *odl.IR) []string {
			var bad []string
			for i := range ir.Objects {
				obj := &ir.Objects[i]
				for _, id := range obj.Identifiers {
					if obj.Property(id) == nil {
						bad = append(bad, fmt.Sprintf("%s.%s", obj.Name, id))
					}
				}
			}
			return bad
		},
	},
	{
		id:       "property_types_present",
		category: Structural,
		message:  "every property must carry a type",
		check: func(ir *odl.IR) []string {
			var bad []string
			for i := range ir.Objects {
				for _, p := range ir.Objects[i].Properties {
					if p.Type == "" {
						bad = append(bad, fmt.Sprintf("%s.%s", ir.Objects[i].Name, p.Name))
					}
				}
			}
			return bad
		},
	},
	{
		id:       "join_keys_compatible",
		category: Semantic,
		message:  "relationship join keys must reference compatible property types",
		check:    checkJoinKeys,
	},
	{
		id:       "dimensions_resolve",
		category: Semantic,
		message:  "every dimension must resolve to a declared object property",
		check: func(ir *odl.IR) []string {
			var bad []string
			for _, dim := range ir.Dimensions {
				objName, propName, ok := strings.Cut(dim.SourceProperty, ".")
				if !ok {
					bad = append(bad, dim.Name)
					continue
				}
				obj := ir.Object(objName)
				if obj == nil || obj.Property(propName) == nil {
					bad = append(bad, fmt.Sprintf("%s -> %s", dim.Name, dim.SourceProperty))
				}
			}
			return bad
		},
	},
	{
		id:       "metric_grains_valid",
		category: Semantic,
		message:  "every metric needs a non-empty grain of declared objects",
		check: func(ir *odl.IR) []string {
			var bad []string
			for _, m := range ir.Metrics {
				if len(m.Grain) == 0 {
					bad = append(bad, m.Name+" (empty grain)")
					continue
				}
				for _, g := range m.Grain {
					if ir.Object(g) == nil {
						bad = append(bad, fmt.Sprintf("%s (unknown object %s)", m.Name, g))
					}
				}
			}
			return bad
		},
	},
	{
		id:       "metric_expressions_safe",
		category: Semantic,
		message:  "metric expressions must be non-empty and free of forbidden tokens",
		check: func(ir *odl.IR) []string {
			var bad []string
			for _, m := range ir.Metrics {
				if strings.TrimSpace(m.Expression) == "" {
					bad = append(bad, m.Name+" (empty expression)")
					continue
				}
				upper := strings.ToUpper(m.Expression)
				for _, token := range expressionDenylist {
					if strings.Contains(upper, strings.ToUpper(token)) {
						bad = append(bad, fmt.Sprintf("%s (forbidden token %q)", m.Name, strings.TrimSpace(token)))
					}
				}
			}
			return bad
		},
	},
	{
		id:       "table_mappings_complete",
		category: Deployability,
		message:  "every object needs a table mapping",
		check: func(ir *odl.IR) []string {
			var bad []string
			for i := range ir.Objects {
				obj := &ir.Objects[i]
				if obj.Mapping != nil && obj.Mapping.Table != "" {
					continue
				}
				if ir.TargetMapping != nil {
					if t, ok := ir.TargetMapping.TableMappings[obj.Name]; ok && t != "" {
						continue
					}
				}
				bad = append(bad, obj.Name)
			}
			return bad
		},
	},
	{
		id:       "database_schema_set",
		category: Deployability,
		message:  "database and schema must be set globally or per object",
		check: func(ir *odl.IR) []string {
			var bad []string
			for i := range ir.Objects {
				obj := &ir.Objects[i]
				if ir.DatabaseFor(obj) == "" {
					bad = append(bad, obj.Name+" (no database)")
				}
				if ir.SchemaFor(obj) == "" {
					bad = append(bad, obj.Name+" (no schema)")
				}
			}
			return bad
		},
	},
	{
		id:       "warehouse_specified",
		category: Deployability,
		message:  "no warehouse specified; deployment will use the session default",
		warnOnly: true,
		check: func(ir *odl.IR) []string {
			if ir.TargetMapping == nil || ir.TargetMapping.Warehouse == "" {
				return []string{"targetMapping.warehouse unset"}
			}
			return nil
		},
	},
}

func checkDuplicateNames(ir *odl.IR) []string {
	var bad []string
	dup := func(kind string, names []string) {
		seen := map[string]bool{}
		for _, n := range names {
			if seen[n] {
				bad = append(bad, fmt.Sprintf("%s %q", kind, n))
			}
			seen[n] = true
		}
	}

	objNames := make([]string, 0, len(ir.Objects))
	for i := range ir.Objects {
		objNames = append(objNames, ir.Objects[i].Name)
		propNames := make([]string, 0, len(ir.Objects[i].Properties))
		for _, p := range ir.Objects[i].Properties {
			propNames = append(propNames, p.Name)
		}
		dup("property "+ir.Objects[i].Name, propNames)
	}
	dup("object", objNames)

	relNames := make([]string, 0, len(ir.Relationships))
	for i := range ir.Relationships {
		relNames = append(relNames, ir.Relationships[i].Name)
	}
	dup("relationship", relNames)

	metricNames := make([]string, 0, len(ir.Metrics))
	for i := range ir.Metrics {
		metricNames = append(metricNames, ir.Metrics[i].Name)
	}
	dup("metric", metricNames)

	dimNames := make([]string, 0, len(ir.Dimensions))
	for i := range ir.Dimensions {
		dimNames = append(dimNames, ir.Dimensions[i].Name)
	}
	dup("dimension", dimNames)

	return bad
}

func checkJoinKeys(ir *odl.IR) []string {
	var bad []string
	for i := range ir.Relationships {
		rel := &ir.Relationships[i]
		from := ir.Object(rel.From)
		to := ir.Object(rel.To)
		if from == nil || to == nil {
			bad = append(bad, rel.Name+" (unresolved endpoint)")
			continue
		}
		for _, key := range rel.JoinKeys {
			fp := from.Property(key[0])
			tp := to.Property(key[1])
			if fp == nil || tp == nil {
				bad = append(bad, fmt.Sprintf("%s [%s=%s] (missing property)", rel.Name, key[0], key[1]))
				continue
			}
			if !compatibleJoinTypes(fp.Type, tp.Type) {
				bad = append(bad, fmt.Sprintf("%s [%s:%s vs %s:%s]", rel.Name, key[0], fp.Type, key[1], tp.Type))
			}
		}
	}
	return bad
}

func compatibleJoinTypes(a, b odl.PropertyType) bool {
	if a == b {
		return true
	}
	numeric := func(t odl.PropertyType) bool { return t == odl.TypeDecimal || t == odl.TypeNumber }
	return numeric(a) && numeric(b)
}
