package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
	"github.com/chinmayajena/sundaygraph/pkg/compiler"
	"github.com/chinmayajena/sundaygraph/pkg/cortex"
	"github.com/chinmayajena/sundaygraph/pkg/deploy"
	"github.com/chinmayajena/sundaygraph/pkg/drift"
	"github.com/chinmayajena/sundaygraph/pkg/eval"
	"github.com/chinmayajena/sundaygraph/pkg/models"
	"github.com/chinmayajena/sundaygraph/pkg/odl"
	"github.com/chinmayajena/sundaygraph/pkg/repositories"
)

// LifecycleService drives the pipeline stages downstream of the version
// store: evaluate, compile, deploy, drift detection, and regression.
type LifecycleService interface {
	// Evaluate runs the gate bundles on a version under a profile and
	// persists the eval run.
	Evaluate(ctx context.Context, workspaceID, ontologyName string, versionNumber int, profile eval.Profile) (*eval.Result, error)

	// Compile gates the version, emits the artifact bundle, writes it to
	// the artifact store as a zip, and persists the compile run. Gate
	// failures surface as GATE_FAILED without creating a run row.
	Compile(ctx context.Context, workspaceID, ontologyName string, versionNumber int, profile eval.Profile, viewName string, environments []compiler.Environment) (*models.CompileRun, *compiler.Bundle, error)

	// Deploy compiles the version and runs the verify-then-deploy policy
	// with pre-deploy rollback capture, recording the live view.
	Deploy(ctx context.Context, workspaceID, ontologyName string, versionNumber int, profile eval.Profile, viewName string) (*deploy.Result, error)

	// DetectDrift probes mapping drift and view drift for the currently
	// deployed version and persists deduplicated OPEN events.
	DetectDrift(ctx context.Context, workspaceID, ontologyName string) ([]*models.DriftEvent, error)

	// RunRegression executes a question set against the deployed view of
	// this ontology and persists the run with its JUnit report. Running
	// against an ontology with no recorded deployment is refused.
	RunRegression(ctx context.Context, workspaceID, ontologyName string, questionSet []byte) (*cortex.RunResult, error)
}

type lifecycleService struct {
	db           Scoper
	ontologyRepo repositories.OntologyRepository
	versionRepo  repositories.VersionRepository
	runRepo      repositories.RunRepository
	driftRepo    repositories.DriftRepository
	deployer     *deploy.Deployer
	detector     *drift.Detector
	regression   *cortex.Runner
	artifactsDir string
	logger       *zap.Logger
}

// LifecycleServiceDeps contains dependencies for LifecycleService.
type LifecycleServiceDeps struct {
	DB           Scoper
	OntologyRepo repositories.OntologyRepository
	VersionRepo  repositories.VersionRepository
	RunRepo      repositories.RunRepository
	DriftRepo    repositories.DriftRepository
	Deployer     *deploy.Deployer
	Detector     *drift.Detector
	Regression   *cortex.Runner
	ArtifactsDir string
	Logger       *zap.Logger
}

// NewLifecycleService creates a new LifecycleService.
func NewLifecycleService(deps *LifecycleServiceDeps) LifecycleService {
	return &lifecycleService{
		db:           deps.DB,
		ontologyRepo: deps.OntologyRepo,
		versionRepo:  deps.VersionRepo,
		runRepo:      deps.RunRepo,
		driftRepo:    deps.DriftRepo,
		deployer:     deps.Deployer,
		detector:     deps.Detector,
		regression:   deps.Regression,
		artifactsDir: deps.ArtifactsDir,
		logger:       deps.Logger.Named("lifecycle"),
	}
}

var _ LifecycleService = (*lifecycleService)(nil)

// resolveVersion loads ontology + version + parsed, normalized IR.
func (s *lifecycleService) resolveVersion(ctx context.Context, workspaceID, ontologyName string, versionNumber int) (*models.Ontology, *models.OntologyVersion, *odl.IR, error) {
	onto, err := s.ontologyRepo.GetByName(ctx, workspaceID, ontologyName)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("ontology %q: %w", ontologyName, err)
	}
	version, err := s.versionRepo.Get(ctx, onto.ID, versionNumber)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("version %d: %w", versionNumber, err)
	}
	ir, err := odl.ParseAndValidate(version.ODLJSON)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stored version %d no longer parses: %w", versionNumber, err)
	}
	return onto, version, odl.Normalize(ir), nil
}

func compileOptions(ontologyName string, version *models.OntologyVersion, viewName string) compiler.Options {
	return compiler.Options{
		SourceOntology: ontologyName,
		VersionNumber:  version.VersionNumber,
		ContentHash:    version.ContentHash,
		ViewName:       viewName,
	}
}

func (s *lifecycleService) Evaluate(ctx context.Context, workspaceID, ontologyName string, versionNumber int, profile eval.Profile) (*eval.Result, error) {
	ctx, done, err := scoped(ctx, s.db, workspaceID)
	if err != nil {
		return nil, err
	}
	defer done()

	_, version, ir, err := s.resolveVersion(ctx, workspaceID, ontologyName, versionNumber)
	if err != nil {
		return nil, err
	}

	run := &models.EvalRun{VersionID: version.ID, ThresholdProfile: string(profile)}
	if err := s.runRepo.CreateEvalRun(ctx, run); err != nil {
		return nil, err
	}

	result := eval.Evaluate(ir, profile)

	metrics, err := json.Marshal(result.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gate metrics: %w", err)
	}
	if err := s.runRepo.CompleteEvalRun(ctx, run.ID, result.Passed, metrics); err != nil {
		return nil, err
	}

	s.logger.Info("evaluation complete",
		zap.String("ontology", ontologyName),
		zap.Int("version", versionNumber),
		zap.String("profile", string(profile)),
		zap.Bool("passed", result.Passed))
	return result, nil
}

func (s *lifecycleService) Compile(ctx context.Context, workspaceID, ontologyName string, versionNumber int, profile eval.Profile, viewName string, environments []compiler.Environment) (*models.CompileRun, *compiler.Bundle, error) {
	ctx, done, err := scoped(ctx, s.db, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	defer done()

	_, version, ir, err := s.resolveVersion(ctx, workspaceID, ontologyName, versionNumber)
	if err != nil {
		return nil, nil, err
	}

	// The evaluator gates compilation: a failed gate is an input error
	// and no RUNNING row is created.
	gateResult := eval.Evaluate(ir, profile)
	if !gateResult.Passed {
		msg := "evaluation gates failed"
		if gateResult.FirstFailure != nil {
			msg = fmt.Sprintf("gate %s failed: %s", gateResult.FirstFailure.GateID, gateResult.FirstFailure.Message)
		}
		return nil, nil, apperrors.New(apperrors.CodeGateFailed, msg)
	}

	opts := compileOptions(ontologyName, version, viewName)
	optionsJSON, err := json.Marshal(map[string]any{
		"view_name":    viewName,
		"profile":      string(profile),
		"environments": environments,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode compile options: %w", err)
	}

	run := &models.CompileRun{VersionID: version.ID, Target: compiler.Target, Options: optionsJSON}
	if err := s.runRepo.CreateCompileRun(ctx, run); err != nil {
		return nil, nil, err
	}
	if err := s.runRepo.StartCompileRun(ctx, run.ID); err != nil {
		return nil, nil, err
	}

	var bundle *compiler.Bundle
	var compileErr error
	if len(environments) > 0 {
		bundle, compileErr = compiler.CompilePromotion(ir, opts, environments)
	} else {
		bundle, compileErr = compiler.Compile(ir, opts)
	}
	if compileErr != nil {
		if err := s.runRepo.CompleteCompileRun(ctx, run.ID, models.RunFailed, "", "", compileErr.Error(), false); err != nil {
			s.logger.Error("failed to persist compile failure", zap.Error(err))
		}
		return nil, nil, compileErr
	}

	artifactPath, err := s.writeBundle(bundle)
	if err != nil {
		if persistErr := s.runRepo.CompleteCompileRun(ctx, run.ID, models.RunFailed, "", "", err.Error(), false); persistErr != nil {
			s.logger.Error("failed to persist compile failure", zap.Error(persistErr))
		}
		return nil, nil, apperrors.Wrap(apperrors.CodeCompileFailed, "failed to write artifact bundle", err)
	}

	if err := s.runRepo.CompleteCompileRun(ctx, run.ID, models.RunSuccess, artifactPath, bundle.Hash(), "", false); err != nil {
		return nil, nil, err
	}

	run, err = s.runRepo.GetCompileRun(ctx, run.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("compile complete",
		zap.String("ontology", ontologyName),
		zap.Int("version", versionNumber),
		zap.String("bundle_hash", bundle.Hash()),
		zap.String("artifact_path", artifactPath))
	return run, bundle, nil
}

// writeBundle stores the zipped bundle content-addressed by its hash.
func (s *lifecycleService) writeBundle(bundle *compiler.Bundle) (string, error) {
	if err := os.MkdirAll(s.artifactsDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.artifactsDir, bundle.Hash()+".zip")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := bundle.WriteZip(f); err != nil {
		return "", err
	}
	return path, nil
}

func (s *lifecycleService) Deploy(ctx context.Context, workspaceID, ontologyName string, versionNumber int, profile eval.Profile, viewName string) (*deploy.Result, error) {
	run, bundle, err := s.Compile(ctx, workspaceID, ontologyName, versionNumber, profile, viewName, nil)
	if err != nil {
		return nil, err
	}

	ctx, done, err := scoped(ctx, s.db, workspaceID)
	if err != nil {
		return nil, err
	}
	defer done()

	_, version, ir, err := s.resolveVersion(ctx, workspaceID, ontologyName, versionNumber)
	if err != nil {
		return nil, err
	}

	database := ""
	schema := ""
	if ir.TargetMapping != nil {
		database = ir.TargetMapping.Database
		schema = ir.TargetMapping.Schema
	}

	result, err := s.deployer.Deploy(ctx, bundle, database, schema, viewName)
	if err != nil {
		return nil, err
	}

	// Rollback capture changed the bundle; re-store the final artifact.
	if result.RollbackCaptured {
		if _, err := s.writeBundle(bundle); err != nil {
			s.logger.Warn("failed to store post-capture bundle", zap.Error(err))
		}
	}

	if _, err := s.runRepo.RecordDeployment(ctx, version.ID, result.ViewFQN); err != nil {
		return nil, err
	}

	s.logger.Info("deployment recorded",
		zap.String("view", result.ViewFQN),
		zap.Int("version", versionNumber),
		zap.String("compile_run", run.ID.String()),
		zap.Bool("rollback_captured", result.RollbackCaptured))
	return result, nil
}

func (s *lifecycleService) DetectDrift(ctx context.Context, workspaceID, ontologyName string) ([]*models.DriftEvent, error) {
	ctx, done, err := scoped(ctx, s.db, workspaceID)
	if err != nil {
		return nil, err
	}
	defer done()

	onto, err := s.ontologyRepo.GetByName(ctx, workspaceID, ontologyName)
	if err != nil {
		return nil, err
	}
	if !onto.IsActive {
		return nil, apperrors.Newf(apperrors.CodeDriftDetected, "ontology %q is not active", ontologyName)
	}

	deployment, err := s.runRepo.LatestDeploymentForOntology(ctx, onto.ID)
	if err != nil {
		return nil, fmt.Errorf("ontology %q has no recorded deployment: %w", ontologyName, err)
	}
	version, err := s.versionRepo.GetByID(ctx, deployment.VersionID)
	if err != nil {
		return nil, err
	}
	ir, err := odl.ParseAndValidate(version.ODLJSON)
	if err != nil {
		return nil, fmt.Errorf("deployed version no longer parses: %w", err)
	}
	normalized := odl.Normalize(ir)

	mappingEvents, err := s.detector.DetectMappingDrift(ctx, normalized)
	if err != nil {
		return nil, err
	}

	viewName := viewNameFromFQN(deployment.ViewFQN)
	viewEvents, err := s.detector.DetectViewDrift(ctx, normalized, deployment.ViewFQN,
		compileOptions(ontologyName, version, viewName))
	if err != nil {
		return nil, err
	}

	var recorded []*models.DriftEvent
	for _, event := range append(mappingEvents, viewEvents...) {
		details, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to encode drift event: %w", err)
		}
		row := &models.DriftEvent{
			OntologyID:  onto.ID,
			EventType:   string(event.Type),
			Details:     details,
			DetailsHash: event.DetailsHash(),
		}
		saved, inserted, err := s.driftRepo.RecordEvent(ctx, row)
		if err != nil {
			return nil, err
		}
		if inserted {
			recorded = append(recorded, saved)
		}
	}

	s.logger.Info("drift detection complete",
		zap.String("ontology", ontologyName),
		zap.Int("new_events", len(recorded)))
	return recorded, nil
}

func (s *lifecycleService) RunRegression(ctx context.Context, workspaceID, ontologyName string, questionSet []byte) (*cortex.RunResult, error) {
	set, err := cortex.LoadQuestionSet(questionSet)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRegressionFailed, "invalid question set", err)
	}

	ctx, done, err := scoped(ctx, s.db, workspaceID)
	if err != nil {
		return nil, err
	}
	defer done()

	onto, err := s.ontologyRepo.GetByName(ctx, workspaceID, ontologyName)
	if err != nil {
		return nil, err
	}

	// Regression against a non-deployed view is refused.
	deployment, err := s.runRepo.LatestDeploymentForOntology(ctx, onto.ID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRegressionFailed,
			fmt.Sprintf("ontology %q has no deployed view", ontologyName), err)
	}

	run := &models.RegressionRun{VersionID: deployment.VersionID, ViewFQN: deployment.ViewFQN}
	if err := s.runRepo.CreateRegressionRun(ctx, run); err != nil {
		return nil, err
	}

	result, err := s.regression.Run(ctx, deployment.ViewFQN, set)
	if err != nil {
		return nil, err
	}

	junitPath := ""
	if report, err := cortex.JUnitXML(result); err == nil {
		junitPath = filepath.Join(s.artifactsDir, fmt.Sprintf("regression-%s.xml", run.ID))
		if err := os.MkdirAll(s.artifactsDir, 0o755); err == nil {
			if err := os.WriteFile(junitPath, report, 0o644); err != nil {
				s.logger.Warn("failed to write junit report", zap.Error(err))
				junitPath = ""
			}
		}
	}

	resultsJSON, err := json.Marshal(result.Results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode regression results: %w", err)
	}
	overall := result.OverallPass
	run.TotalQuestions = result.TotalQuestions
	run.PassedCount = result.Passed
	run.FailedCount = result.Failed
	run.OverallPass = &overall
	run.TotalLatencyMS = result.TotalLatencyMS
	run.Results = resultsJSON
	run.JUnitPath = junitPath
	if err := s.runRepo.CompleteRegressionRun(ctx, run); err != nil {
		return nil, err
	}

	return result, nil
}

// viewNameFromFQN extracts the view name from database.schema.view.
func viewNameFromFQN(fqn string) string {
	for i := len(fqn) - 1; i >= 0; i-- {
		if fqn[i] == '.' {
			return fqn[i+1:]
		}
	}
	return fqn
}
