// Package drift compares the declared ontology against the live
// warehouse: mapping drift probes the table catalog, view drift probes
// the deployed semantic-view YAML.
package drift

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/chinmayajena/sundaygraph/pkg/adapters/warehouse"
	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
	"github.com/chinmayajena/sundaygraph/pkg/compiler"
	"github.com/chinmayajena/sundaygraph/pkg/odl"
)

// EventType classifies one observed divergence.
type EventType string

const (
	ColumnAdded       EventType = "COLUMN_ADDED"
	ColumnDropped     EventType = "COLUMN_DROPPED"
	ColumnRenamed     EventType = "COLUMN_RENAMED"
	ColumnTypeChanged EventType = "COLUMN_TYPE_CHANGED"
	TableMissing      EventType = "TABLE_MISSING"
	YAMLDiverged      EventType = "YAML_DIVERGED"
)

// renameDistanceMax bounds the Levenshtein distance for inferring that a
// dropped + added column pair is really a rename.
const renameDistanceMax = 2

// Event is a single observed divergence, ready to persist.
type Event struct {
	Type    EventType         `json:"event_type"`
	Element string            `json:"element"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// DetailsHash fingerprints the event for open-event deduplication.
func (e Event) DetailsHash() string {
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", e.Type, e.Element)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\n", k, e.Details[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Detector runs both drift probes through a warehouse adapter.
type Detector struct {
	adapter warehouse.Adapter
	logger  *zap.Logger
}

// NewDetector creates a drift detector.
func NewDetector(adapter warehouse.Adapter, logger *zap.Logger) *Detector {
	return &Detector{adapter: adapter, logger: logger.Named("drift")}
}

// coarseOf buckets ODL property types for catalog comparison. date and
// timestamp share a bucket; number and decimal share a bucket.
func coarseOf(t odl.PropertyType) warehouse.CoarseType {
	switch t {
	case odl.TypeString:
		return warehouse.CoarseString
	case odl.TypeNumber, odl.TypeDecimal:
		return warehouse.CoarseDecimal
	case odl.TypeInteger:
		return warehouse.CoarseInteger
	case odl.TypeBoolean:
		return warehouse.CoarseBoolean
	case odl.TypeDate, odl.TypeTimestamp:
		return warehouse.CoarseTimestamp
	case odl.TypeTime:
		return warehouse.CoarseTime
	default:
		return warehouse.CoarseOther
	}
}

// liveCoarse folds the catalog's buckets the same way declared types are
// folded, so date vs timestamp never reads as a type change.
func liveCoarse(t warehouse.CoarseType) warehouse.CoarseType {
	if t == warehouse.CoarseDate {
		return warehouse.CoarseTimestamp
	}
	return t
}

// DetectMappingDrift compares each declared object's property set with
// the live columns of its mapped table.
func (d *Detector) DetectMappingDrift(ctx context.Context, ir *odl.IR) ([]Event, error) {
	if ir.TargetMapping == nil {
		return nil, nil
	}

	var events []Event

	// Objects can override database/schema, so catalogs are fetched per
	// distinct location, once.
	catalogs := map[string]warehouse.Catalog{}

	for i := range ir.Objects {
		obj := &ir.Objects[i]
		database := ir.DatabaseFor(obj)
		schema := ir.SchemaFor(obj)
		table := ir.TableFor(obj)

		key := database + "." + schema
		catalog, ok := catalogs[key]
		if !ok {
			var err error
			catalog, err = d.adapter.ListCatalog(ctx, database, schema)
			if err != nil {
				return nil, err
			}
			catalogs[key] = catalog
		}

		columns, exists := catalog[table]
		if !exists {
			events = append(events, Event{
				Type:    TableMissing,
				Element: obj.Name,
				Message: fmt.Sprintf("table %q not found in %s.%s", table, database, schema),
				Details: map[string]string{
					"table":    table,
					"database": database,
					"schema":   schema,
				},
			})
			continue
		}

		events = append(events, compareColumns(obj, table, columns)...)
	}

	d.logger.Info("mapping drift probe complete", zap.Int("events", len(events)))
	return events, nil
}

// compareColumns diffs one object's declared properties against live
// columns, inferring renames for close drop+add pairs of identical type.
func compareColumns(obj *odl.Object, table string, live map[string]warehouse.CoarseType) []Event {
	var events []Event

	declared := map[string]warehouse.CoarseType{}
	var declaredNames []string
	for _, p := range obj.Properties {
		declared[p.Name] = coarseOf(p.Type)
		declaredNames = append(declaredNames, p.Name)
	}
	sort.Strings(declaredNames)

	var liveNames []string
	for name := range live {
		liveNames = append(liveNames, name)
	}
	sort.Strings(liveNames)

	var dropped, added []string
	for _, name := range declaredNames {
		if _, ok := live[name]; !ok {
			dropped = append(dropped, name)
		}
	}
	for _, name := range liveNames {
		if _, ok := declared[name]; !ok {
			added = append(added, name)
		}
	}

	// Rename inference: a dropped and an added column within edit
	// distance 2 sharing a type collapse into one COLUMN_RENAMED event.
	// Ambiguous matches stay as separate drop + add events.
	consumed := map[string]bool{}
	renamed := map[string]string{}
	for _, oldName := range dropped {
		var candidates []string
		for _, newName := range added {
			if consumed[newName] {
				continue
			}
			if live[newName] != declared[oldName] {
				continue
			}
			if levenshtein.ComputeDistance(oldName, newName) <= renameDistanceMax {
				candidates = append(candidates, newName)
			}
		}
		if len(candidates) == 1 {
			renamed[oldName] = candidates[0]
			consumed[candidates[0]] = true
		}
	}

	for _, name := range dropped {
		if newName, ok := renamed[name]; ok {
			events = append(events, Event{
				Type:    ColumnRenamed,
				Element: obj.Name,
				Message: fmt.Sprintf("column %q appears renamed to %q in table %q", name, newName, table),
				Details: map[string]string{
					"table":      table,
					"old_column": name,
					"new_column": newName,
				},
			})
			continue
		}
		events = append(events, Event{
			Type:    ColumnDropped,
			Element: obj.Name,
			Message: fmt.Sprintf("column %q missing from table %q", name, table),
			Details: map[string]string{
				"table":  table,
				"column": name,
			},
		})
	}

	for _, name := range added {
		if consumed[name] {
			continue
		}
		events = append(events, Event{
			Type:    ColumnAdded,
			Element: obj.Name,
			Message: fmt.Sprintf("column %q exists in table %q but is not declared", name, table),
			Details: map[string]string{
				"table":  table,
				"column": name,
			},
		})
	}

	for _, name := range declaredNames {
		liveType, ok := live[name]
		if !ok {
			continue
		}
		if liveCoarse(liveType) != liveCoarse(declared[name]) {
			events = append(events, Event{
				Type:    ColumnTypeChanged,
				Element: obj.Name,
				Message: fmt.Sprintf("column %q in table %q is %s, ontology declares %s", name, table, liveType, declared[name]),
				Details: map[string]string{
					"table":         table,
					"column":        name,
					"live_type":     string(liveType),
					"declared_type": string(declared[name]),
				},
			})
		}
	}

	return events
}

// DetectViewDrift exports the live semantic-view YAML and compares it,
// under normalization, to the YAML the compiler would emit for the
// deployed version. A view that does not exist yields no events.
func (d *Detector) DetectViewDrift(ctx context.Context, ir *odl.IR, viewFQN string, opts compiler.Options) ([]Event, error) {
	liveYAML, err := d.adapter.ExportExisting(ctx, viewFQN)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	bundle, err := compiler.Compile(ir, opts)
	if err != nil {
		return nil, err
	}
	expectedYAML := bundle.File("semantic_model.yaml").Content

	equal, detail, err := yamlEquivalent(liveYAML, expectedYAML)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDriftDetected, "failed to compare semantic view YAML", err)
	}
	if equal {
		return nil, nil
	}

	return []Event{{
		Type:    YAMLDiverged,
		Element: viewFQN,
		Message: fmt.Sprintf("live semantic view diverges from compiled definition: %s", detail),
		Details: map[string]string{
			"view_fqn": viewFQN,
			"diff":     detail,
		},
	}}, nil
}

// yamlEquivalent parses both documents and compares their normalized
// structure, ignoring formatting and comments. Returns a short diff
// description when they differ.
func yamlEquivalent(liveYAML, expectedYAML string) (bool, string, error) {
	var live, expected any
	if err := yaml.Unmarshal([]byte(liveYAML), &live); err != nil {
		return false, "", fmt.Errorf("live YAML: %w", err)
	}
	if err := yaml.Unmarshal([]byte(expectedYAML), &expected); err != nil {
		return false, "", fmt.Errorf("expected YAML: %w", err)
	}

	// Round-tripping through canonical JSON gives order-insensitive,
	// byte-comparable forms.
	liveJSON, err := canonicalForm(live)
	if err != nil {
		return false, "", err
	}
	expectedJSON, err := canonicalForm(expected)
	if err != nil {
		return false, "", err
	}

	if liveJSON == expectedJSON {
		return true, "", nil
	}
	return false, firstDivergence(liveJSON, expectedJSON), nil
}

func canonicalForm(v any) (string, error) {
	// yaml.v3 decodes mappings as map[string]any, which encoding/json
	// serializes with sorted keys.
	encoded, err := json.Marshal(normalizeYAMLValue(v))
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// normalizeYAMLValue rewrites map[any]any nodes (possible for non-string
// keys) into map[string]any so json.Marshal accepts them.
func normalizeYAMLValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAMLValue(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAMLValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAMLValue(item)
		}
		return out
	default:
		return v
	}
}

// firstDivergence points at the first differing byte region to keep the
// event payload small.
func firstDivergence(a, b string) string {
	limit := len(a)
	if len(b) < limit {
		limit = len(b)
	}
	i := 0
	for i < limit && a[i] == b[i] {
		i++
	}
	start := i - 30
	if start < 0 {
		start = 0
	}
	endA, endB := i+30, i+30
	if endA > len(a) {
		endA = len(a)
	}
	if endB > len(b) {
		endB = len(b)
	}
	return fmt.Sprintf("live ...%s... vs expected ...%s...", a[start:endA], b[start:endB])
}
