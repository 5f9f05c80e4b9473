package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chinmayajena/sundaygraph/pkg/adapters/warehouse"
	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
	"github.com/chinmayajena/sundaygraph/pkg/cortex"
	"github.com/chinmayajena/sundaygraph/pkg/deploy"
	"github.com/chinmayajena/sundaygraph/pkg/drift"
	"github.com/chinmayajena/sundaygraph/pkg/eval"
	"github.com/chinmayajena/sundaygraph/pkg/models"
)

type lifecycleFixture struct {
	svc         LifecycleService
	versionSvc  VersionService
	mock        *warehouse.Mock
	driftRepo   *fakeDriftRepo
	runRepo     *fakeRunRepo
	versionRepo *fakeVersionRepo
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()

	ontoRepo := newFakeOntologyRepo()
	versionRepo := newFakeVersionRepo()
	runRepo := newFakeRunRepo(versionRepo)
	driftRepo := newFakeDriftRepo()
	mock := warehouse.NewMock()
	logger := zap.NewNop()
	artifactsDir := t.TempDir()

	versionSvc := NewVersionService(&VersionServiceDeps{
		DB:               fakeScoper{},
		OntologyRepo:     ontoRepo,
		VersionRepo:      versionRepo,
		RejectDuplicates: true,
		Logger:           logger,
	})

	svc := NewLifecycleService(&LifecycleServiceDeps{
		DB:           fakeScoper{},
		OntologyRepo: ontoRepo,
		VersionRepo:  versionRepo,
		RunRepo:      runRepo,
		DriftRepo:    driftRepo,
		Deployer:     deploy.NewDeployer(mock, time.Second, time.Second, logger),
		Detector:     drift.NewDetector(mock, logger),
		Regression:   cortex.NewRunner(mock, time.Minute, logger),
		ArtifactsDir: artifactsDir,
		Logger:       logger,
	})

	ctx := context.Background()
	_, err := versionSvc.CreateOntology(ctx, "ws1", "retail", "")
	require.NoError(t, err)
	_, err = versionSvc.CreateVersion(ctx, "ws1", "retail", []byte(retailV1), "alice", "")
	require.NoError(t, err)

	// Live tables matching version 1.
	mock.SetTable("RETAIL_DB", "PUBLIC", "customers", map[string]warehouse.CoarseType{
		"customer_id": warehouse.CoarseString,
		"email":       warehouse.CoarseString,
	})
	mock.SetTable("RETAIL_DB", "PUBLIC", "orders", map[string]warehouse.CoarseType{
		"order_id":    warehouse.CoarseString,
		"customer_id": warehouse.CoarseString,
		"order_total": warehouse.CoarseDecimal,
	})

	return &lifecycleFixture{
		svc:         svc,
		versionSvc:  versionSvc,
		mock:        mock,
		driftRepo:   driftRepo,
		runRepo:     runRepo,
		versionRepo: versionRepo,
	}
}

func TestEvaluatePersistsRun(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	result, err := f.svc.Evaluate(ctx, "ws1", "retail", 1, eval.ProfileStandard)
	require.NoError(t, err)
	assert.True(t, result.Passed)

	require.Len(t, f.runRepo.evalRuns, 1)
	for _, run := range f.runRepo.evalRuns {
		require.NotNil(t, run.Passed)
		assert.True(t, *run.Passed)
		assert.NotNil(t, run.CompletedAt)
		assert.NotEmpty(t, run.Metrics)
	}
}

func TestCompileWritesArtifact(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	run, bundle, err := f.svc.Compile(ctx, "ws1", "retail", 1, eval.ProfileStandard, "retail_view", nil)
	require.NoError(t, err)

	assert.Equal(t, models.RunSuccess, run.Status)
	assert.Equal(t, bundle.Hash(), run.ArtifactHash)
	assert.FileExists(t, run.ArtifactPath)

	info, err := os.Stat(run.ArtifactPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestCompileGateFailureCreatesNoRun(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	// Version without table mappings fails deployability gates.
	unmapped := `{"version": "1.0", "name": "retail",
		"objects": [{"name": "Thing", "identifiers": ["id"],
			"properties": [{"name": "id", "type": "string"}]}]}`
	_, err := f.versionSvc.CreateVersion(ctx, "ws1", "retail", []byte(unmapped), "alice", "")
	require.NoError(t, err)

	_, _, err = f.svc.Compile(ctx, "ws1", "retail", 2, eval.ProfileStandard, "retail_view", nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeGateFailed), "got %v", err)
	assert.Empty(t, f.runRepo.compileRuns, "gate failure must not create a run row")
}

func TestDeployRecordsDeployment(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	result, err := f.svc.Deploy(ctx, "ws1", "retail", 1, eval.ProfileStandard, "retail_view")
	require.NoError(t, err)
	assert.Equal(t, "RETAIL_DB.PUBLIC.retail_view", result.ViewFQN)
	assert.False(t, result.RollbackCaptured)

	deployment, err := f.runRepo.LatestDeploymentForView(ctx, "RETAIL_DB.PUBLIC.retail_view")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deployment.VersionID)

	// Deploying again captures the now-live view for rollback.
	result, err = f.svc.Deploy(ctx, "ws1", "retail", 1, eval.ProfileStandard, "retail_view")
	require.NoError(t, err)
	assert.True(t, result.RollbackCaptured)
}

func TestDriftDetectionPersistsAndDeduplicates(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	_, err := f.svc.Deploy(ctx, "ws1", "retail", 1, eval.ProfileStandard, "retail_view")
	require.NoError(t, err)

	// No drift right after deploy.
	events, err := f.svc.DetectDrift(ctx, "ws1", "retail")
	require.NoError(t, err)
	assert.Empty(t, events)

	// Drop a live column out-of-band.
	f.mock.DropColumn("RETAIL_DB", "PUBLIC", "customers", "email")

	events, err = f.svc.DetectDrift(ctx, "ws1", "retail")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(drift.ColumnDropped), events[0].EventType)
	assert.Equal(t, models.DriftOpen, events[0].Status)

	// Re-running without changes coalesces into the existing open event.
	events, err = f.svc.DetectDrift(ctx, "ws1", "retail")
	require.NoError(t, err)
	assert.Empty(t, events)

	open, err := f.driftRepo.ListOpen(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestDriftRequiresDeployment(t *testing.T) {
	f := newLifecycleFixture(t)
	_, err := f.svc.DetectDrift(context.Background(), "ws1", "retail")
	assert.Error(t, err)
}

func TestRegressionRunAgainstDeployedView(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	_, err := f.svc.Deploy(ctx, "ws1", "retail", 1, eval.ProfileStandard, "retail_view")
	require.NoError(t, err)

	f.mock.SetAnswer("What is total revenue?", warehouse.AskResult{
		SQL:       "SELECT SUM(order_total) FROM RETAIL_DB.PUBLIC.orders",
		Answer:    "Total revenue is $99",
		LatencyMS: 10,
	})

	questionSet := []byte(`questions:
  - question: "What is total revenue?"
    expected_tables: [orders]
    expected_sql_patterns: ["SUM"]
`)
	result, err := f.svc.RunRegression(ctx, "ws1", "retail", questionSet)
	require.NoError(t, err)
	assert.True(t, result.OverallPass)
	assert.Equal(t, 1, result.Passed)

	require.Len(t, f.runRepo.regRuns, 1)
	for _, run := range f.runRepo.regRuns {
		require.NotNil(t, run.OverallPass)
		assert.True(t, *run.OverallPass)
		assert.NotEmpty(t, run.JUnitPath)
		assert.FileExists(t, run.JUnitPath)
	}
}

func TestRegressionRefusedWithoutDeployment(t *testing.T) {
	f := newLifecycleFixture(t)

	questionSet := []byte("questions:\n  - question: \"anything\"\n")
	_, err := f.svc.RunRegression(context.Background(), "ws1", "retail", questionSet)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeRegressionFailed))
}
