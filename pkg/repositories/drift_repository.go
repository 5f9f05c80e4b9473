package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
	"github.com/chinmayajena/sundaygraph/pkg/database"
	"github.com/chinmayajena/sundaygraph/pkg/models"
)

// DriftRepository persists drift events with open-event deduplication.
type DriftRepository interface {
	// RecordEvent inserts an event unless an identical OPEN event exists
	// for the ontology. Returns (event, true) when inserted, (nil, false)
	// when coalesced into an existing open event.
	RecordEvent(ctx context.Context, event *models.DriftEvent) (*models.DriftEvent, bool, error)
	ListOpen(ctx context.Context, ontologyID int64) ([]*models.DriftEvent, error)
	// UpdateStatus moves an OPEN event to RESOLVED or IGNORED. No other
	// transition is allowed.
	UpdateStatus(ctx context.Context, id int64, status models.DriftStatus) error
}

type driftRepository struct{}

// NewDriftRepository creates a new DriftRepository.
func NewDriftRepository() DriftRepository {
	return &driftRepository{}
}

var _ DriftRepository = (*driftRepository)(nil)

func (r *driftRepository) RecordEvent(ctx context.Context, event *models.DriftEvent) (*models.DriftEvent, bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, false, fmt.Errorf("no workspace scope in context")
	}

	// The partial unique index on (ontology_id, event_type, details_hash)
	// WHERE status = 'OPEN' makes the dedup atomic under concurrency.
	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO drift_events (ontology_id, event_type, details, details_hash, status)
		VALUES ($1, $2, $3, $4, 'OPEN')
		ON CONFLICT (ontology_id, event_type, details_hash) WHERE status = 'OPEN'
		DO NOTHING
		RETURNING id, status, detected_at, created_at`,
		event.OntologyID, event.EventType, event.Details, event.DetailsHash).
		Scan(&event.ID, &event.Status, &event.DetectedAt, &event.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict: an identical open event already exists.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to record drift event: %w", err)
	}
	return event, true, nil
}

func (r *driftRepository) ListOpen(ctx context.Context, ontologyID int64) ([]*models.DriftEvent, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, ontology_id, event_type, details, details_hash, status, detected_at, resolved_at, created_at
		FROM drift_events
		WHERE ontology_id = $1 AND status = 'OPEN'
		ORDER BY detected_at DESC, id DESC`, ontologyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list drift events: %w", err)
	}
	defer rows.Close()

	var events []*models.DriftEvent
	for rows.Next() {
		var e models.DriftEvent
		if err := rows.Scan(&e.ID, &e.OntologyID, &e.EventType, &e.Details, &e.DetailsHash,
			&e.Status, &e.DetectedAt, &e.ResolvedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan drift event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *driftRepository) UpdateStatus(ctx context.Context, id int64, status models.DriftStatus) error {
	if status != models.DriftResolved && status != models.DriftIgnored {
		return fmt.Errorf("invalid drift status transition to %q", status)
	}

	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no workspace scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE drift_events SET status = $2, resolved_at = now()
		WHERE id = $1 AND status = 'OPEN'`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update drift status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
