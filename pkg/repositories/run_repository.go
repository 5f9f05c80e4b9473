package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
	"github.com/chinmayajena/sundaygraph/pkg/database"
	"github.com/chinmayajena/sundaygraph/pkg/models"
)

// RunRepository persists compile, eval, and regression run records.
type RunRepository interface {
	CreateCompileRun(ctx context.Context, run *models.CompileRun) error
	StartCompileRun(ctx context.Context, id uuid.UUID) error
	CompleteCompileRun(ctx context.Context, id uuid.UUID, status models.RunStatus, artifactPath, artifactHash, errorMessage string, rollbackCaptured bool) error
	GetCompileRun(ctx context.Context, id uuid.UUID) (*models.CompileRun, error)

	CreateEvalRun(ctx context.Context, run *models.EvalRun) error
	CompleteEvalRun(ctx context.Context, id uuid.UUID, passed bool, metrics []byte) error
	GetEvalRun(ctx context.Context, id uuid.UUID) (*models.EvalRun, error)

	CreateRegressionRun(ctx context.Context, run *models.RegressionRun) error
	CompleteRegressionRun(ctx context.Context, run *models.RegressionRun) error
	GetRegressionRun(ctx context.Context, id uuid.UUID) (*models.RegressionRun, error)

	RecordDeployment(ctx context.Context, versionID int64, viewFQN string) (*models.Deployment, error)
	LatestDeployment(ctx context.Context, versionID int64) (*models.Deployment, error)
	LatestDeploymentForView(ctx context.Context, viewFQN string) (*models.Deployment, error)
	LatestDeploymentForOntology(ctx context.Context, ontologyID int64) (*models.Deployment, error)
}

type runRepository struct{}

// NewRunRepository creates a new RunRepository.
func NewRunRepository() RunRepository {
	return &runRepository{}
}

var _ RunRepository = (*runRepository)(nil)

func (r *runRepository) CreateCompileRun(ctx context.Context, run *models.CompileRun) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no workspace scope in context")
	}

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = models.RunPending
	run.CreatedAt = time.Now()

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO compile_runs (id, version_id, target, options, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.VersionID, run.Target, run.Options, run.Status, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create compile run: %w", err)
	}
	return nil
}

func (r *runRepository) StartCompileRun(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no workspace scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE compile_runs SET status = $2, started_at = now()
		WHERE id = $1 AND status = $3`,
		id, models.RunRunning, models.RunPending)
	if err != nil {
		return fmt.Errorf("failed to start compile run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

func (r *runRepository) CompleteCompileRun(ctx context.Context, id uuid.UUID, status models.RunStatus, artifactPath, artifactHash, errorMessage string, rollbackCaptured bool) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no workspace scope in context")
	}

	// Terminal rows are never updated again: the guard only moves
	// RUNNING rows.
	result, err := scope.Conn.Exec(ctx, `
		UPDATE compile_runs
		SET status = $2, artifact_path = $3, artifact_hash = $4,
		    error_message = NULLIF($5, ''), rollback_captured = $6, completed_at = now()
		WHERE id = $1 AND status = $7`,
		id, status, artifactPath, artifactHash, errorMessage, rollbackCaptured, models.RunRunning)
	if err != nil {
		return fmt.Errorf("failed to complete compile run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

func (r *runRepository) GetCompileRun(ctx context.Context, id uuid.UUID) (*models.CompileRun, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	var run models.CompileRun
	var artifactPath, artifactHash, errorMessage *string
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, version_id, target, options, status, artifact_path, artifact_hash,
		       rollback_captured, error_message, started_at, completed_at, created_at
		FROM compile_runs WHERE id = $1`, id).
		Scan(&run.ID, &run.VersionID, &run.Target, &run.Options, &run.Status,
			&artifactPath, &artifactHash, &run.RollbackCaptured, &errorMessage,
			&run.StartedAt, &run.CompletedAt, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get compile run: %w", err)
	}
	if artifactPath != nil {
		run.ArtifactPath = *artifactPath
	}
	if artifactHash != nil {
		run.ArtifactHash = *artifactHash
	}
	if errorMessage != nil {
		run.ErrorMessage = *errorMessage
	}
	return &run, nil
}

func (r *runRepository) CreateEvalRun(ctx context.Context, run *models.EvalRun) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no workspace scope in context")
	}

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.CreatedAt = time.Now()
	started := run.CreatedAt
	run.StartedAt = &started

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO eval_runs (id, version_id, threshold_profile, started_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.VersionID, run.ThresholdProfile, run.StartedAt, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create eval run: %w", err)
	}
	return nil
}

func (r *runRepository) CompleteEvalRun(ctx context.Context, id uuid.UUID, passed bool, metrics []byte) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no workspace scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE eval_runs SET passed = $2, metrics = $3, completed_at = now()
		WHERE id = $1 AND completed_at IS NULL`,
		id, passed, metrics)
	if err != nil {
		return fmt.Errorf("failed to complete eval run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

func (r *runRepository) GetEvalRun(ctx context.Context, id uuid.UUID) (*models.EvalRun, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	var run models.EvalRun
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, version_id, threshold_profile, metrics, passed, started_at, completed_at, created_at
		FROM eval_runs WHERE id = $1`, id).
		Scan(&run.ID, &run.VersionID, &run.ThresholdProfile, &run.Metrics, &run.Passed,
			&run.StartedAt, &run.CompletedAt, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get eval run: %w", err)
	}
	return &run, nil
}

func (r *runRepository) CreateRegressionRun(ctx context.Context, run *models.RegressionRun) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no workspace scope in context")
	}

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.CreatedAt = time.Now()
	started := run.CreatedAt
	run.StartedAt = &started

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO regression_runs (id, version_id, view_fqn, started_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.VersionID, run.ViewFQN, run.StartedAt, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create regression run: %w", err)
	}
	return nil
}

func (r *runRepository) CompleteRegressionRun(ctx context.Context, run *models.RegressionRun) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no workspace scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE regression_runs
		SET total_questions = $2, passed_count = $3, failed_count = $4, overall_pass = $5,
		    total_latency_ms = $6, results = $7, junit_path = NULLIF($8, ''), completed_at = now()
		WHERE id = $1 AND completed_at IS NULL`,
		run.ID, run.TotalQuestions, run.PassedCount, run.FailedCount, run.OverallPass,
		run.TotalLatencyMS, run.Results, run.JUnitPath)
	if err != nil {
		return fmt.Errorf("failed to complete regression run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

func (r *runRepository) GetRegressionRun(ctx context.Context, id uuid.UUID) (*models.RegressionRun, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	var run models.RegressionRun
	var junitPath *string
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, version_id, view_fqn, total_questions, passed_count, failed_count,
		       overall_pass, total_latency_ms, results, junit_path, started_at, completed_at, created_at
		FROM regression_runs WHERE id = $1`, id).
		Scan(&run.ID, &run.VersionID, &run.ViewFQN, &run.TotalQuestions, &run.PassedCount,
			&run.FailedCount, &run.OverallPass, &run.TotalLatencyMS, &run.Results, &junitPath,
			&run.StartedAt, &run.CompletedAt, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get regression run: %w", err)
	}
	if junitPath != nil {
		run.JUnitPath = *junitPath
	}
	return &run, nil
}

func (r *runRepository) RecordDeployment(ctx context.Context, versionID int64, viewFQN string) (*models.Deployment, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	d := &models.Deployment{VersionID: versionID, ViewFQN: viewFQN}
	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO deployments (version_id, view_fqn)
		VALUES ($1, $2)
		RETURNING id, deployed_at, created_at`,
		versionID, viewFQN).Scan(&d.ID, &d.DeployedAt, &d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record deployment: %w", err)
	}
	return d, nil
}

func (r *runRepository) LatestDeployment(ctx context.Context, versionID int64) (*models.Deployment, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	var d models.Deployment
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, version_id, view_fqn, deployed_at, created_at
		FROM deployments
		WHERE version_id = $1
		ORDER BY deployed_at DESC
		LIMIT 1`, versionID).
		Scan(&d.ID, &d.VersionID, &d.ViewFQN, &d.DeployedAt, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	return &d, nil
}

func (r *runRepository) LatestDeploymentForOntology(ctx context.Context, ontologyID int64) (*models.Deployment, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	var d models.Deployment
	err := scope.Conn.QueryRow(ctx, `
		SELECT d.id, d.version_id, d.view_fqn, d.deployed_at, d.created_at
		FROM deployments d
		JOIN ontology_versions v ON v.id = d.version_id
		WHERE v.ontology_id = $1
		ORDER BY d.deployed_at DESC
		LIMIT 1`, ontologyID).
		Scan(&d.ID, &d.VersionID, &d.ViewFQN, &d.DeployedAt, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment for ontology: %w", err)
	}
	return &d, nil
}

func (r *runRepository) LatestDeploymentForView(ctx context.Context, viewFQN string) (*models.Deployment, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	var d models.Deployment
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, version_id, view_fqn, deployed_at, created_at
		FROM deployments
		WHERE view_fqn = $1
		ORDER BY deployed_at DESC
		LIMIT 1`, viewFQN).
		Scan(&d.ID, &d.VersionID, &d.ViewFQN, &d.DeployedAt, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment for view: %w", err)
	}
	return &d, nil
}
