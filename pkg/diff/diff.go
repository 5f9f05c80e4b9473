// Package diff classifies the structural differences between two
// normalized ontology versions as breaking or non-breaking. Given
// identical inputs it always produces identical output bytes.
package diff

import (
	"sort"

	"github.com/chinmayajena/sundaygraph/pkg/odl"
)

// Severity tags a change's compatibility impact.
type Severity string

const (
	Breaking    Severity = "breaking"
	NonBreaking Severity = "non_breaking"
)

// Kind identifies the change taxonomy entry.
type Kind string

const (
	ObjectAdded              Kind = "object.added"
	ObjectRemoved            Kind = "object.removed"
	ObjectRenamed            Kind = "object.renamed"
	ObjectDescriptionChanged Kind = "object.description_changed"

	PropertyAdded              Kind = "property.added"
	PropertyRemoved            Kind = "property.removed"
	PropertyTypeChanged        Kind = "property.type_changed"
	PropertyNullableChanged    Kind = "property.nullable_changed"
	PropertyRequiredChanged    Kind = "property.required_changed"
	PropertyDescriptionChanged Kind = "property.description_changed"

	IdentifierChanged Kind = "identifier.changed"
	IdentifierAdded   Kind = "identifier.added"

	RelationshipAdded              Kind = "relationship.added"
	RelationshipRemoved            Kind = "relationship.removed"
	RelationshipJoinKeysChanged    Kind = "relationship.joinkeys_changed"
	RelationshipCardinalityChanged Kind = "relationship.cardinality_changed"
	RelationshipDescriptionChanged Kind = "relationship.description_changed"

	MetricAdded              Kind = "metric.added"
	MetricRemoved            Kind = "metric.removed"
	MetricExpressionChanged  Kind = "metric.expression_changed"
	MetricGrainChanged       Kind = "metric.grain_changed"
	MetricDescriptionChanged Kind = "metric.description_changed"

	DimensionAdded              Kind = "dimension.added"
	DimensionRemoved            Kind = "dimension.removed"
	DimensionSourceChanged      Kind = "dimension.source_changed"
	DimensionDescriptionChanged Kind = "dimension.description_changed"
)

// Change is a single classified difference.
type Change struct {
	Path     string   `json:"path"`
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	OldValue string   `json:"old_value,omitempty"`
	NewValue string   `json:"new_value,omitempty"`
}

// Summary aggregates a diff's change list.
type Summary struct {
	CountsByKind     map[Kind]int `json:"counts_by_kind"`
	TotalBreaking    int          `json:"total_breaking"`
	TotalNonBreaking int          `json:"total_non_breaking"`
	TotalChanges     int          `json:"total_changes"`
	HasBreaking      bool         `json:"has_breaking"`
}

// Result is the full diff between two versions.
type Result struct {
	Changes []Change `json:"changes"`
	Summary Summary  `json:"summary"`
}

// renameOverlapThreshold is the minimum property-name overlap for the
// object-rename heuristic.
const renameOverlapThreshold = 0.8

// Compute diffs two normalized IRs. Inputs must already be normalized so
// iteration order, and therefore output order, is stable.
func Compute(oldIR, newIR *odl.IR) *Result {
	d := &differ{}
	d.objects(oldIR, newIR)
	d.relationships(oldIR, newIR)
	d.metrics(oldIR, newIR)
	d.dimensions(oldIR, newIR)

	result := &Result{Changes: d.changes}
	result.Summary = summarize(d.changes)
	if result.Changes == nil {
		result.Changes = []Change{}
	}
	return result
}

func summarize(changes []Change) Summary {
	s := Summary{CountsByKind: map[Kind]int{}}
	for _, c := range changes {
		s.CountsByKind[c.Kind]++
		if c.Severity == Breaking {
			s.TotalBreaking++
		} else {
			s.TotalNonBreaking++
		}
	}
	s.TotalChanges = len(changes)
	s.HasBreaking = s.TotalBreaking > 0
	return s
}

type differ struct {
	changes []Change
}

func (d *differ) add(path string, kind Kind, severity Severity, oldV, newV string) {
	d.changes = append(d.changes, Change{
		Path: path, Kind: kind, Severity: severity, OldValue: oldV, NewValue: newV,
	})
}

// sortedUnion returns the sorted union of two name sets.
func sortedUnion(a, b map[string]bool) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var names []string
	for n := range a {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for n := range b {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}
