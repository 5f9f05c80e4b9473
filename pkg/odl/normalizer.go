package odl

import (
	"sort"
	"strings"
)

// Normalize produces the canonical form of an IR: entity lists sorted
// lexicographically by name, identifiers and grains sorted, the joinKeys
// outer list sorted by (from, to) with inner pair order preserved,
// strings trimmed of surrounding whitespace, and boolean defaults
// already explicit from validation. Normalize(Normalize(x)) == Normalize(x).
func Normalize(ir *IR) *IR {
	out := &IR{
		Version:     strings.TrimSpace(ir.Version),
		Name:        strings.TrimSpace(ir.Name),
		Description: ir.Description,
	}

	for _, obj := range ir.Objects {
		o := Object{
			Name:        strings.TrimSpace(obj.Name),
			Description: obj.Description,
			Identifiers: append([]string(nil), obj.Identifiers...),
		}
		sort.Strings(o.Identifiers)

		o.Properties = append([]Property(nil), obj.Properties...)
		for i := range o.Properties {
			o.Properties[i].Name = strings.TrimSpace(o.Properties[i].Name)
		}
		sort.Slice(o.Properties, func(i, j int) bool {
			return o.Properties[i].Name < o.Properties[j].Name
		})

		if obj.Mapping != nil {
			mapping := *obj.Mapping
			o.Mapping = &mapping
		}
		out.Objects = append(out.Objects, o)
	}
	sort.Slice(out.Objects, func(i, j int) bool {
		return out.Objects[i].Name < out.Objects[j].Name
	})

	for _, rel := range ir.Relationships {
		r := Relationship{
			Name:        strings.TrimSpace(rel.Name),
			From:        strings.TrimSpace(rel.From),
			To:          strings.TrimSpace(rel.To),
			JoinKeys:    append([]JoinKey(nil), rel.JoinKeys...),
			Cardinality: rel.Cardinality,
			Description: rel.Description,
		}
		sort.Slice(r.JoinKeys, func(i, j int) bool {
			if r.JoinKeys[i][0] != r.JoinKeys[j][0] {
				return r.JoinKeys[i][0] < r.JoinKeys[j][0]
			}
			return r.JoinKeys[i][1] < r.JoinKeys[j][1]
		})
		out.Relationships = append(out.Relationships, r)
	}
	sort.Slice(out.Relationships, func(i, j int) bool {
		return out.Relationships[i].Name < out.Relationships[j].Name
	})

	for _, metric := range ir.Metrics {
		m := Metric{
			Name:        strings.TrimSpace(metric.Name),
			Expression:  strings.TrimSpace(metric.Expression),
			Grain:       append([]string(nil), metric.Grain...),
			Type:        metric.Type,
			Format:      strings.TrimSpace(metric.Format),
			Description: metric.Description,
		}
		sort.Strings(m.Grain)
		out.Metrics = append(out.Metrics, m)
	}
	sort.Slice(out.Metrics, func(i, j int) bool {
		return out.Metrics[i].Name < out.Metrics[j].Name
	})

	for _, dim := range ir.Dimensions {
		d := Dimension{
			Name:           strings.TrimSpace(dim.Name),
			SourceProperty: strings.TrimSpace(dim.SourceProperty),
			Type:           dim.Type,
			Description:    dim.Description,
		}
		out.Dimensions = append(out.Dimensions, d)
	}
	sort.Slice(out.Dimensions, func(i, j int) bool {
		return out.Dimensions[i].Name < out.Dimensions[j].Name
	})

	if tm := ir.TargetMapping; tm != nil {
		mappings := make(map[string]string, len(tm.TableMappings))
		for k, v := range tm.TableMappings {
			mappings[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		out.TargetMapping = &TargetMapping{
			Database:      strings.TrimSpace(tm.Database),
			Schema:        strings.TrimSpace(tm.Schema),
			Warehouse:     strings.TrimSpace(tm.Warehouse),
			TableMappings: mappings,
		}
	}

	return out
}
