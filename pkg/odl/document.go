package odl

import (
	"encoding/json"

	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
)

// Document is the raw, trusted-shape-only form of an ODL payload.
// Pointer fields distinguish "absent" from zero values so the validator
// can report missing fields and the normalizer can apply defaults.
type Document struct {
	Version       string             `json:"version"`
	Name          string             `json:"name,omitempty"`
	Description   string             `json:"description,omitempty"`
	Objects       []ObjectDoc        `json:"objects"`
	Relationships []RelationshipDoc  `json:"relationships,omitempty"`
	Metrics       []MetricDoc        `json:"metrics,omitempty"`
	Dimensions    []DimensionDoc     `json:"dimensions,omitempty"`
	TargetMapping *TargetMappingDoc  `json:"targetMapping,omitempty"`
}

// ObjectDoc mirrors an object entry as submitted.
type ObjectDoc struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Identifiers []string       `json:"identifiers"`
	Properties  []PropertyDoc  `json:"properties"`
	Mapping     *ObjectMapping `json:"mapping,omitempty"`
}

// PropertyDoc mirrors a property entry as submitted. Nullable defaults to
// true and Required to false when absent.
type PropertyDoc struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Nullable    *bool  `json:"nullable,omitempty"`
	Required    *bool  `json:"required,omitempty"`
}

// RelationshipDoc mirrors a relationship entry as submitted.
type RelationshipDoc struct {
	Name        string     `json:"name"`
	From        string     `json:"from"`
	To          string     `json:"to"`
	JoinKeys    [][]string `json:"joinKeys"`
	Cardinality string     `json:"cardinality,omitempty"`
	Description string     `json:"description,omitempty"`
}

// MetricDoc mirrors a metric entry as submitted.
type MetricDoc struct {
	Name        string   `json:"name"`
	Expression  string   `json:"expression"`
	Grain       []string `json:"grain"`
	Type        string   `json:"type,omitempty"`
	Format      string   `json:"format,omitempty"`
	Description string   `json:"description,omitempty"`
}

// DimensionDoc mirrors a dimension entry as submitted.
type DimensionDoc struct {
	Name           string `json:"name"`
	SourceProperty string `json:"sourceProperty"`
	Type           string `json:"type,omitempty"`
	Description    string `json:"description,omitempty"`
}

// TargetMappingDoc mirrors the targetMapping block as submitted.
type TargetMappingDoc struct {
	Database      string            `json:"database"`
	Schema        string            `json:"schema"`
	Warehouse     string            `json:"warehouse,omitempty"`
	TableMappings map[string]string `json:"tableMappings,omitempty"`
}

// ParseDocument decodes an ODL JSON payload. Decode failures are
// INVALID_STRUCTURE; semantic checks happen in Validate.
func ParseDocument(payload []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidStructure, "malformed ODL document", err)
	}
	return &doc, nil
}
