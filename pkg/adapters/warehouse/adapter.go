// Package warehouse abstracts the analytics warehouse the engine deploys
// semantic views into. The core only ever talks to the Adapter interface;
// concrete implementations live behind it.
package warehouse

import "context"

// VerifyResult is the outcome of a verify-only call.
type VerifyResult struct {
	OK       bool     `json:"ok"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// DeployResult is the outcome of a create/replace call.
type DeployResult struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

// AskResult is one natural-language round trip against a deployed view.
type AskResult struct {
	SQL       string   `json:"sql"`
	Answer    string   `json:"answer"`
	Tables    []string `json:"tables,omitempty"`
	LatencyMS float64  `json:"latency_ms"`
}

// CoarseType is the warehouse-side type bucket used for drift comparison.
type CoarseType string

const (
	CoarseString    CoarseType = "string"
	CoarseDecimal   CoarseType = "decimal"
	CoarseInteger   CoarseType = "integer"
	CoarseBoolean   CoarseType = "boolean"
	CoarseDate      CoarseType = "date"
	CoarseTimestamp CoarseType = "timestamp"
	CoarseTime      CoarseType = "time"
	CoarseOther     CoarseType = "other"
)

// Catalog maps table name -> column name -> coarse type for one
// database.schema.
type Catalog map[string]map[string]CoarseType

// Adapter is the warehouse contract consumed by the verifier/deployer,
// drift detector, and regression runner. Implementations are stateless
// per call; connections come from a bounded pool.
type Adapter interface {
	// Verify runs the warehouse's verify-only path against the YAML.
	Verify(ctx context.Context, yaml, database, schema string) (*VerifyResult, error)

	// Deploy creates or replaces the semantic view.
	Deploy(ctx context.Context, yaml, database, schema, viewName string) (*DeployResult, error)

	// ExportExisting returns the YAML of a live view, or
	// apperrors.ErrNotFound when the view does not exist.
	ExportExisting(ctx context.Context, viewFQN string) (string, error)

	// ListCatalog returns the live table/column/type catalog for a
	// database.schema.
	ListCatalog(ctx context.Context, database, schema string) (Catalog, error)

	// Ask sends a natural-language question to the analytics endpoint
	// bound to a deployed view.
	Ask(ctx context.Context, viewFQN, question string) (*AskResult, error)
}
