package deploy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chinmayajena/sundaygraph/pkg/adapters/warehouse"
	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
	"github.com/chinmayajena/sundaygraph/pkg/compiler"
	"github.com/chinmayajena/sundaygraph/pkg/odl"
)

const deployODL = `{
  "version": "1.0",
  "name": "retail",
  "objects": [
    {
      "name": "Customer",
      "identifiers": ["customer_id"],
      "properties": [
        {"name": "customer_id", "type": "string", "nullable": false, "required": true},
        {"name": "email", "type": "string"}
      ]
    }
  ],
  "targetMapping": {
    "database": "RETAIL_DB",
    "schema": "PUBLIC",
    "tableMappings": {"Customer": "customers"}
  }
}`

func buildBundle(t *testing.T) *compiler.Bundle {
	t.Helper()
	ir, err := odl.ParseAndValidate([]byte(deployODL))
	require.NoError(t, err)
	bundle, err := compiler.Compile(odl.Normalize(ir), compiler.Options{
		SourceOntology: "retail",
		VersionNumber:  2,
		ContentHash:    "feedface",
		ViewName:       "retail_view",
	})
	require.NoError(t, err)
	return bundle
}

func newDeployer(m *warehouse.Mock) *Deployer {
	return NewDeployer(m, time.Second, time.Second, zap.NewNop())
}

func TestDeployFreshView(t *testing.T) {
	m := warehouse.NewMock()
	bundle := buildBundle(t)

	result, err := newDeployer(m).Deploy(context.Background(), bundle, "RETAIL_DB", "PUBLIC", "retail_view")
	require.NoError(t, err)

	assert.False(t, result.RollbackCaptured)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "ROLLBACK_UNAVAILABLE")
	assert.Nil(t, bundle.File("rollback_semantic_model.yaml"))

	// The view is live afterwards.
	yaml, err := m.ExportExisting(context.Background(), "RETAIL_DB.PUBLIC.retail_view")
	require.NoError(t, err)
	assert.Contains(t, yaml, "semantic_model")
}

func TestDeployCapturesRollbackFromExistingView(t *testing.T) {
	m := warehouse.NewMock()
	oldYAML := "semantic_model:\n  name: retail_v1\n"
	m.SetView("RETAIL_DB.PUBLIC.retail_view", oldYAML)
	bundle := buildBundle(t)

	result, err := newDeployer(m).Deploy(context.Background(), bundle, "RETAIL_DB", "PUBLIC", "retail_view")
	require.NoError(t, err)

	assert.True(t, result.RollbackCaptured)
	assert.Empty(t, result.Warnings)

	captured := bundle.File("rollback_semantic_model.yaml")
	require.NotNil(t, captured)
	assert.Equal(t, oldYAML, captured.Content)
	assert.Contains(t, bundle.File("rollback.sql").Content, "retail_v1")
}

func TestVerifyFailureLeavesViewUntouched(t *testing.T) {
	m := warehouse.NewMock()
	m.SetView("RETAIL_DB.PUBLIC.retail_view", "semantic_model:\n  name: old\n")
	m.VerifyErrors = []string{"unknown column order_totall"}
	bundle := buildBundle(t)

	_, err := newDeployer(m).Deploy(context.Background(), bundle, "RETAIL_DB", "PUBLIC", "retail_view")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeVerifyFailed), "got %v", err)
	assert.Equal(t, 0, m.DeployCalls())

	// Live view still holds the old definition.
	yaml, exportErr := m.ExportExisting(context.Background(), "RETAIL_DB.PUBLIC.retail_view")
	require.NoError(t, exportErr)
	assert.Contains(t, yaml, "old")
}

func TestVerifyRetriesTransportErrors(t *testing.T) {
	m := warehouse.NewMock()
	m.TransportFailures = 2
	bundle := buildBundle(t)

	result, err := newDeployer(m).Deploy(context.Background(), bundle, "RETAIL_DB", "PUBLIC", "retail_view")
	require.NoError(t, err)
	assert.NotNil(t, result.Verify)
	assert.Equal(t, 3, m.VerifyCalls())
	assert.Equal(t, 1, m.DeployCalls())
}

func TestVerifyExhaustsRetries(t *testing.T) {
	m := warehouse.NewMock()
	m.TransportFailures = 10
	bundle := buildBundle(t)

	_, err := newDeployer(m).Deploy(context.Background(), bundle, "RETAIL_DB", "PUBLIC", "retail_view")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeTimeout))
	// 1 attempt + 3 retries, deploy never reached.
	assert.Equal(t, 4, m.VerifyCalls())
	assert.Equal(t, 0, m.DeployCalls())

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.IsRetryable(), "transport failures surface as retryable")
}

func TestDeployRejectionIsNotRetried(t *testing.T) {
	m := warehouse.NewMock()
	m.DeployErrors = []string{"insufficient privileges"}
	bundle := buildBundle(t)

	_, err := newDeployer(m).Deploy(context.Background(), bundle, "RETAIL_DB", "PUBLIC", "retail_view")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeDeployFailed))
	assert.Equal(t, 1, m.DeployCalls())

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.False(t, appErr.IsRetryable())
	assert.Contains(t, appErr.Details, "insufficient privileges")
}

func TestVerifyOnly(t *testing.T) {
	m := warehouse.NewMock()
	bundle := buildBundle(t)

	result, err := newDeployer(m).VerifyOnly(context.Background(), bundle, "RETAIL_DB", "PUBLIC")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 0, m.DeployCalls())
}

// Rollback safety: the YAML captured before deploying equals what export
// returned pre-deploy, so replaying rollback.sql restores that exact view.
func TestRollbackRoundTrip(t *testing.T) {
	m := warehouse.NewMock()
	oldYAML := "semantic_model:\n  name: retail_v1\n  version: \"1.0\"\n"
	m.SetView("RETAIL_DB.PUBLIC.retail_view", oldYAML)
	bundle := buildBundle(t)

	_, err := newDeployer(m).Deploy(context.Background(), bundle, "RETAIL_DB", "PUBLIC", "retail_view")
	require.NoError(t, err)

	// Simulate running rollback.sql: drop, then recreate from capture.
	captured := bundle.File("rollback_semantic_model.yaml").Content
	m.SetView("RETAIL_DB.PUBLIC.retail_view", captured)

	restored, err := m.ExportExisting(context.Background(), "RETAIL_DB.PUBLIC.retail_view")
	require.NoError(t, err)
	assert.Equal(t, oldYAML, restored)
}
