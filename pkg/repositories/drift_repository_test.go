package repositories

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chinmayajena/sundaygraph/pkg/models"
	"github.com/chinmayajena/sundaygraph/pkg/testhelpers"
)

func TestDriftEventDeduplication(t *testing.T) {
	ontoID, tdb := setupOntology(t, "drift")
	ctx := testhelpers.Scoped(t, tdb.DB, "ws-drift")
	repo := NewDriftRepository()

	event := func() *models.DriftEvent {
		return &models.DriftEvent{
			OntologyID:  ontoID,
			EventType:   "COLUMN_DROPPED",
			Details:     json.RawMessage(`{"table": "customers", "column": "email"}`),
			DetailsHash: "abc123",
		}
	}

	first, inserted, err := repo.RecordEvent(ctx, event())
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, models.DriftOpen, first.Status)

	// Identical open event coalesces.
	_, inserted, err = repo.RecordEvent(ctx, event())
	require.NoError(t, err)
	assert.False(t, inserted)

	open, err := repo.ListOpen(ctx, ontoID)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	// Once resolved, the same observation may reopen.
	require.NoError(t, repo.UpdateStatus(ctx, first.ID, models.DriftResolved))

	_, inserted, err = repo.RecordEvent(ctx, event())
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestDriftStatusTransitions(t *testing.T) {
	ontoID, tdb := setupOntology(t, "drift-status")
	ctx := testhelpers.Scoped(t, tdb.DB, "ws-drift-status")
	repo := NewDriftRepository()

	event := &models.DriftEvent{
		OntologyID:  ontoID,
		EventType:   "TABLE_MISSING",
		Details:     json.RawMessage(`{"table": "orders"}`),
		DetailsHash: "def456",
	}
	saved, inserted, err := repo.RecordEvent(ctx, event)
	require.NoError(t, err)
	require.True(t, inserted)

	// OPEN -> RESOLVED is allowed once; the row is then immutable.
	require.NoError(t, repo.UpdateStatus(ctx, saved.ID, models.DriftResolved))
	assert.Error(t, repo.UpdateStatus(ctx, saved.ID, models.DriftIgnored))

	// Arbitrary transitions are rejected outright.
	assert.Error(t, repo.UpdateStatus(ctx, saved.ID, models.DriftOpen))
}
