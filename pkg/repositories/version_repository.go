package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
	"github.com/chinmayajena/sundaygraph/pkg/database"
	"github.com/chinmayajena/sundaygraph/pkg/models"
)

// VersionRepository persists immutable ontology versions and their diffs.
type VersionRepository interface {
	// Create inserts the canonical payload as the next version. Version
	// numbering is linearized per ontology; concurrent creates serialize.
	// When rejectDuplicates is set and the hash already exists for this
	// ontology, the insert fails with DUPLICATE_CONTENT.
	Create(ctx context.Context, ontologyID int64, canonicalPayload []byte, contentHash, author, notes string, rejectDuplicates bool) (*models.OntologyVersion, error)
	Get(ctx context.Context, ontologyID int64, versionNumber int) (*models.OntologyVersion, error)
	GetByID(ctx context.Context, id int64) (*models.OntologyVersion, error)
	GetLatest(ctx context.Context, ontologyID int64) (*models.OntologyVersion, error)
	List(ctx context.Context, ontologyID int64) ([]*models.OntologyVersion, error)
	SaveDiff(ctx context.Context, diff *models.OntologyDiff) error
	GetDiff(ctx context.Context, ontologyID int64, oldVersion, newVersion int) (*models.OntologyDiff, error)
}

type versionRepository struct{}

// NewVersionRepository creates a new VersionRepository.
func NewVersionRepository() VersionRepository {
	return &versionRepository{}
}

var _ VersionRepository = (*versionRepository)(nil)

func (r *versionRepository) Create(ctx context.Context, ontologyID int64, canonicalPayload []byte, contentHash, author, notes string, rejectDuplicates bool) (*models.OntologyVersion, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	// Serialize concurrent version creation for this ontology. The lock
	// is released at commit/rollback, linearizing version numbering.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ontologyID); err != nil {
		return nil, fmt.Errorf("failed to acquire version lock: %w", err)
	}

	if rejectDuplicates {
		var existing int
		err := tx.QueryRow(ctx, `
			SELECT version_number FROM ontology_versions
			WHERE ontology_id = $1 AND content_hash = $2
			LIMIT 1`, ontologyID, contentHash).Scan(&existing)
		if err == nil {
			return nil, apperrors.Newf(apperrors.CodeDuplicateContent,
				"content hash %s already stored as version %d", contentHash, existing)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to check duplicate content: %w", err)
		}
	}

	version := &models.OntologyVersion{
		OntologyID:  ontologyID,
		ODLJSON:     canonicalPayload,
		ContentHash: contentHash,
		Author:      author,
		Notes:       notes,
		CreatedAt:   time.Now(),
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO ontology_versions (ontology_id, version_number, odl_json, content_hash, author, notes, created_at)
		SELECT $1, COALESCE(MAX(version_number), 0) + 1, $2, $3, $4, $5, $6
		FROM ontology_versions WHERE ontology_id = $1
		RETURNING id, version_number`,
		ontologyID, canonicalPayload, contentHash, author, notes, version.CreatedAt).
		Scan(&version.ID, &version.VersionNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit version: %w", err)
	}
	return version, nil
}

func (r *versionRepository) Get(ctx context.Context, ontologyID int64, versionNumber int) (*models.OntologyVersion, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT id, ontology_id, version_number, odl_json, content_hash, author, notes, created_at
		FROM ontology_versions
		WHERE ontology_id = $1 AND version_number = $2`,
		ontologyID, versionNumber)
	return scanVersion(row)
}

func (r *versionRepository) GetByID(ctx context.Context, id int64) (*models.OntologyVersion, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT id, ontology_id, version_number, odl_json, content_hash, author, notes, created_at
		FROM ontology_versions
		WHERE id = $1`, id)
	return scanVersion(row)
}

func (r *versionRepository) GetLatest(ctx context.Context, ontologyID int64) (*models.OntologyVersion, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT id, ontology_id, version_number, odl_json, content_hash, author, notes, created_at
		FROM ontology_versions
		WHERE ontology_id = $1
		ORDER BY version_number DESC
		LIMIT 1`, ontologyID)
	return scanVersion(row)
}

func (r *versionRepository) List(ctx context.Context, ontologyID int64) ([]*models.OntologyVersion, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, ontology_id, version_number, odl_json, content_hash, author, notes, created_at
		FROM ontology_versions
		WHERE ontology_id = $1
		ORDER BY created_at DESC`, ontologyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.OntologyVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (r *versionRepository) SaveDiff(ctx context.Context, diff *models.OntologyDiff) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no workspace scope in context")
	}

	if diff.Changes == nil {
		diff.Changes = json.RawMessage("[]")
	}
	if diff.Summary == nil {
		diff.Summary = json.RawMessage("{}")
	}

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO ontology_diffs (ontology_id, old_version, new_version, changes, summary)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ontology_id, old_version, new_version) DO UPDATE
		SET changes = ontology_diffs.changes
		RETURNING id, created_at`,
		diff.OntologyID, diff.OldVersion, diff.NewVersion, diff.Changes, diff.Summary).
		Scan(&diff.ID, &diff.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save diff: %w", err)
	}
	return nil
}

func (r *versionRepository) GetDiff(ctx context.Context, ontologyID int64, oldVersion, newVersion int) (*models.OntologyDiff, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	var d models.OntologyDiff
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, ontology_id, old_version, new_version, changes, summary, created_at
		FROM ontology_diffs
		WHERE ontology_id = $1 AND old_version = $2 AND new_version = $3`,
		ontologyID, oldVersion, newVersion).
		Scan(&d.ID, &d.OntologyID, &d.OldVersion, &d.NewVersion, &d.Changes, &d.Summary, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get diff: %w", err)
	}
	return &d, nil
}

func scanVersion(row pgx.Row) (*models.OntologyVersion, error) {
	var v models.OntologyVersion
	var author, notes *string
	err := row.Scan(&v.ID, &v.OntologyID, &v.VersionNumber, &v.ODLJSON, &v.ContentHash, &author, &notes, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan version: %w", err)
	}
	if author != nil {
		v.Author = *author
	}
	if notes != nil {
		v.Notes = *notes
	}
	return &v, nil
}
