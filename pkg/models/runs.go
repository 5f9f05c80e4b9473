package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle of a persisted run row.
type RunStatus string

const (
	RunPending RunStatus = "PENDING"
	RunRunning RunStatus = "RUNNING"
	RunSuccess RunStatus = "SUCCESS"
	RunFailed  RunStatus = "FAILED"
)

// CompileRun is one attempt to compile a version to a target.
// PENDING on enqueue, RUNNING on pick-up, terminal on success or failure;
// terminal rows are never updated again.
type CompileRun struct {
	ID               uuid.UUID       `json:"id"`
	VersionID        int64           `json:"version_id"`
	Target           string          `json:"target"`
	Options          json.RawMessage `json:"options,omitempty"`
	Status           RunStatus       `json:"status"`
	ArtifactPath     string          `json:"artifact_path,omitempty"`
	ArtifactHash     string          `json:"artifact_hash,omitempty"`
	RollbackCaptured bool            `json:"rollback_captured"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// EvalRun is one evaluation of a version against a threshold profile.
type EvalRun struct {
	ID               uuid.UUID       `json:"id"`
	VersionID        int64           `json:"version_id"`
	ThresholdProfile string          `json:"threshold_profile"`
	Metrics          json.RawMessage `json:"metrics,omitempty"`
	Passed           *bool           `json:"passed,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// DriftStatus is the review state of a drift event. OPEN events may move
// to RESOLVED or IGNORED; nothing else about a drift row changes.
type DriftStatus string

const (
	DriftOpen     DriftStatus = "OPEN"
	DriftResolved DriftStatus = "RESOLVED"
	DriftIgnored  DriftStatus = "IGNORED"
)

// DriftEvent is one observed divergence between the declared ontology
// and the live warehouse.
type DriftEvent struct {
	ID          int64           `json:"id"`
	OntologyID  int64           `json:"ontology_id"`
	EventType   string          `json:"event_type"`
	Details     json.RawMessage `json:"details"`
	DetailsHash string          `json:"details_hash"`
	Status      DriftStatus     `json:"status"`
	DetectedAt  time.Time       `json:"detected_at"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RegressionRun is one natural-language regression pass against a
// deployed view.
type RegressionRun struct {
	ID             uuid.UUID       `json:"id"`
	VersionID      int64           `json:"version_id"`
	ViewFQN        string          `json:"view_fqn"`
	TotalQuestions int             `json:"total_questions"`
	PassedCount    int             `json:"passed_count"`
	FailedCount    int             `json:"failed_count"`
	OverallPass    *bool           `json:"overall_pass,omitempty"`
	TotalLatencyMS float64         `json:"total_latency_ms"`
	Results        json.RawMessage `json:"results,omitempty"`
	JUnitPath      string          `json:"junit_path,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
