package compiler

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
	"github.com/chinmayajena/sundaygraph/pkg/odl"
)

// Target is the warehouse dialect this compiler emits.
const Target = "SNOWFLAKE"

// Options parameterizes one compile. Everything that varies between runs
// flows in here so the compiler itself holds no state.
type Options struct {
	SourceOntology string
	VersionNumber  int
	ContentHash    string
	ModelName      string
	ViewName       string
	Database       string // override; defaults to the IR's targetMapping
	Schema         string // override; defaults to the IR's targetMapping
	RollbackYAML   string // pre-deploy export of the live view, if any
	CreatedAt      time.Time
}

// Compile lowers a normalized, gate-passed IR into an artifact bundle:
// semantic_model.yaml, verify.sql, deploy.sql, rollback.sql, export.sql,
// instructions.md, rollback.md, metadata.json, and optionally
// rollback_semantic_model.yaml.
func Compile(ir *odl.IR, opts Options) (*Bundle, error) {
	if opts.ViewName == "" {
		opts.ViewName = "semantic_view"
	}
	if opts.ModelName == "" {
		opts.ModelName = ir.Name
		if opts.ModelName == "" {
			opts.ModelName = "semantic_model"
		}
	}

	database := opts.Database
	schema := opts.Schema
	if database == "" && ir.TargetMapping != nil {
		database = ir.TargetMapping.Database
	}
	if schema == "" && ir.TargetMapping != nil {
		schema = ir.TargetMapping.Schema
	}
	if database == "" || schema == "" {
		return nil, apperrors.New(apperrors.CodeCompileFailed,
			"no target database/schema: set targetMapping or compile options")
	}

	doc := buildSemanticModel(ir, opts.ModelName, database, schema)
	modelYAML, err := renderSemanticModelYAML(doc, opts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCompileFailed, "semantic model emission failed", err)
	}

	viewFQN := fmt.Sprintf("%s.%s.%s", database, schema, opts.ViewName)

	bundle := &Bundle{}
	bundle.SetFile("semantic_model.yaml", modelYAML)
	bundle.SetFile("verify.sql", VerifySQL(database, schema, modelYAML))
	bundle.SetFile("deploy.sql", DeploySQL(database, schema, opts.ViewName, modelYAML))
	bundle.SetFile("rollback.sql", RollbackSQL(database, schema, opts.ViewName, opts.RollbackYAML))
	bundle.SetFile("export.sql", ExportSQL(viewFQN))
	bundle.SetFile("instructions.md", instructionsMD(database, schema, opts.ViewName))
	bundle.SetFile("rollback.md", rollbackMD(database, schema, opts.ViewName, opts.RollbackYAML != ""))
	if opts.RollbackYAML != "" {
		bundle.SetFile("rollback_semantic_model.yaml", opts.RollbackYAML)
	}

	writeMetadata(bundle, ir, opts, []string{})
	return bundle, nil
}

// AttachRollback writes a pre-deploy export into an existing bundle and
// regenerates rollback.sql so it restores the captured view.
func AttachRollback(bundle *Bundle, rollbackYAML, database, schema, viewName string) {
	bundle.SetFile("rollback_semantic_model.yaml", rollbackYAML)
	bundle.SetFile("rollback.sql", RollbackSQL(database, schema, viewName, rollbackYAML))
	refreshMetadataHash(bundle)
}

// VerifySQL renders the verify-only call.
func VerifySQL(database, schema, modelYAML string) string {
	return fmt.Sprintf(`-- Verify semantic model
-- Validates the model against %[1]s.%[2]s without creating the view.
-- Run this before deploy.sql.

CALL SYSTEM$CREATE_SEMANTIC_VIEW_FROM_YAML(
  '%[1]s.%[2]s',
  $$%[3]s$$,
  verify_only => TRUE
);
`, database, schema, modelYAML)
}

// DeploySQL renders the create/replace call plus a post-deploy check.
func DeploySQL(database, schema, viewName, modelYAML string) string {
	return fmt.Sprintf(`-- Deploy semantic view %[1]s.%[2]s.%[3]s
-- Run verify.sql first.

CALL SYSTEM$CREATE_SEMANTIC_VIEW_FROM_YAML(
  '%[1]s.%[2]s',
  $$%[4]s$$,
  verify_only => FALSE
);

-- Confirm deployment
SELECT * FROM %[1]s.INFORMATION_SCHEMA.VIEWS
WHERE TABLE_SCHEMA = '%[2]s' AND TABLE_NAME = '%[3]s';
`, database, schema, viewName, modelYAML)
}

// RollbackSQL renders the two-step rollback: drop the current view, then
// recreate the previous one when a captured YAML is available.
func RollbackSQL(database, schema, viewName, rollbackYAML string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- Rollback semantic view %s.%s.%s\n\n", database, schema, viewName)
	fmt.Fprintf(&sb, "DROP SEMANTIC VIEW IF EXISTS %s.%s.%s;\n", database, schema, viewName)

	if rollbackYAML != "" {
		sb.WriteString("\n-- Restore the previous view captured in rollback_semantic_model.yaml\n")
		fmt.Fprintf(&sb, `CALL SYSTEM$CREATE_SEMANTIC_VIEW_FROM_YAML(
  '%s.%s',
  $$%s$$,
  verify_only => FALSE
);
`, database, schema, rollbackYAML)
	} else {
		sb.WriteString("\n-- No previous view existed; rollback is drop-only.\n")
	}
	return sb.String()
}

// ExportSQL renders the query that extracts YAML from a live view.
func ExportSQL(viewFQN string) string {
	return fmt.Sprintf(`-- Export semantic view YAML
-- Extracts the YAML definition of the live view for drift checks and
-- rollback capture.

SELECT SYSTEM$READ_YAML_FROM_SEMANTIC_VIEW('%s') AS semantic_model_yaml;
`, viewFQN)
}

func instructionsMD(database, schema, viewName string) string {
	return fmt.Sprintf(`# Deployment Instructions

## Prerequisites

- Snowflake account with access to %[1]s.%[2]s
- Permission to create semantic views
- Cortex Analyst enabled for the target schema

## Apply Steps

1. Review semantic_model.yaml
2. Run verify.sql to validate the model without creating the view
3. If verification passes, run deploy.sql
4. Confirm: SELECT * FROM %[1]s.INFORMATION_SCHEMA.VIEWS WHERE TABLE_SCHEMA = '%[2]s' AND TABLE_NAME = '%[3]s'
`, database, schema, viewName)
}

func rollbackMD(database, schema, viewName string, hasCapture bool) string {
	var sb strings.Builder
	sb.WriteString("# Rollback Instructions\n\n")
	if hasCapture {
		sb.WriteString("The previous view definition was captured before deploy.\n\n")
		sb.WriteString("1. Run rollback.sql - it drops the current view and restores the captured definition from rollback_semantic_model.yaml\n")
	} else {
		sb.WriteString("No previous view existed at deploy time.\n\n")
		fmt.Fprintf(&sb, "1. Run rollback.sql - it drops %s.%s.%s\n", database, schema, viewName)
		sb.WriteString("2. To restore manually, run export.sql against a known-good environment and recreate from that YAML\n")
	}
	return sb.String()
}

// bundleMetadata is the metadata.json document.
type bundleMetadata struct {
	Target         string   `json:"target"`
	SourceOntology string   `json:"source_ontology"`
	VersionNumber  int      `json:"version_number"`
	ContentHash    string   `json:"content_hash"`
	BundleHash     string   `json:"bundle_hash"`
	CreatedAt      string   `json:"created_at,omitempty"`
	Environments   []string `json:"environments,omitempty"`
	ObjectCount    int      `json:"object_count"`
	RelCount       int      `json:"relationship_count"`
	MetricCount    int      `json:"metric_count"`
	DimensionCount int      `json:"dimension_count"`
}

func writeMetadata(bundle *Bundle, ir *odl.IR, opts Options, environments []string) {
	meta := bundleMetadata{
		Target:         Target,
		SourceOntology: opts.SourceOntology,
		VersionNumber:  opts.VersionNumber,
		ContentHash:    opts.ContentHash,
		BundleHash:     bundle.Hash(),
		Environments:   environments,
		ObjectCount:    len(ir.Objects),
		RelCount:       len(ir.Relationships),
		MetricCount:    len(ir.Metrics),
		DimensionCount: len(ir.Dimensions),
	}
	if !opts.CreatedAt.IsZero() {
		meta.CreatedAt = opts.CreatedAt.UTC().Format(time.RFC3339)
	}
	encoded, _ := json.MarshalIndent(meta, "", "  ")
	bundle.SetFile(MetadataPath, string(encoded)+"\n")
}

// refreshMetadataHash recomputes bundle_hash after post-compile edits
// such as rollback capture.
func refreshMetadataHash(bundle *Bundle) {
	metaFile := bundle.File(MetadataPath)
	if metaFile == nil {
		return
	}
	var meta bundleMetadata
	if err := json.Unmarshal([]byte(metaFile.Content), &meta); err != nil {
		return
	}
	meta.BundleHash = bundle.Hash()
	encoded, _ := json.MarshalIndent(meta, "", "  ")
	bundle.SetFile(MetadataPath, string(encoded)+"\n")
}
