package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
	"github.com/chinmayajena/sundaygraph/pkg/database"
	"github.com/chinmayajena/sundaygraph/pkg/models"
)

// OntologyRepository provides data access for workspaces and ontologies.
type OntologyRepository interface {
	EnsureWorkspace(ctx context.Context, id, name string) (*models.Workspace, error)
	GetWorkspace(ctx context.Context, id string) (*models.Workspace, error)
	Create(ctx context.Context, workspaceID, name, description string) (*models.Ontology, error)
	GetByName(ctx context.Context, workspaceID, name string) (*models.Ontology, error)
	GetByID(ctx context.Context, id int64) (*models.Ontology, error)
	List(ctx context.Context, workspaceID string) ([]*models.Ontology, error)
	Deactivate(ctx context.Context, id int64) error
}

type ontologyRepository struct{}

// NewOntologyRepository creates a new OntologyRepository.
func NewOntologyRepository() OntologyRepository {
	return &ontologyRepository{}
}

var _ OntologyRepository = (*ontologyRepository)(nil)

func (r *ontologyRepository) EnsureWorkspace(ctx context.Context, id, name string) (*models.Workspace, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	ws := &models.Workspace{ID: id, Name: name}
	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO workspaces (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING name, created_at`,
		id, name).Scan(&ws.Name, &ws.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure workspace: %w", err)
	}
	return ws, nil
}

func (r *ontologyRepository) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	var ws models.Workspace
	err := scope.Conn.QueryRow(ctx,
		`SELECT id, name, created_at FROM workspaces WHERE id = $1`, id).
		Scan(&ws.ID, &ws.Name, &ws.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return &ws, nil
}

func (r *ontologyRepository) Create(ctx context.Context, workspaceID, name, description string) (*models.Ontology, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	now := time.Now()
	onto := &models.Ontology{
		WorkspaceID: workspaceID,
		Name:        name,
		Description: description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO ontologies (workspace_id, name, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, true, $4, $4)
		ON CONFLICT (workspace_id, name) DO UPDATE
		SET description = EXCLUDED.description, is_active = true, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`,
		workspaceID, name, description, now).Scan(&onto.ID, &onto.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create ontology: %w", err)
	}
	return onto, nil
}

func (r *ontologyRepository) GetByName(ctx context.Context, workspaceID, name string) (*models.Ontology, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT id, workspace_id, name, description, is_active, created_at, updated_at
		FROM ontologies
		WHERE workspace_id = $1 AND name = $2`,
		workspaceID, name)
	return scanOntology(row)
}

func (r *ontologyRepository) GetByID(ctx context.Context, id int64) (*models.Ontology, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT id, workspace_id, name, description, is_active, created_at, updated_at
		FROM ontologies
		WHERE id = $1`, id)
	return scanOntology(row)
}

func (r *ontologyRepository) List(ctx context.Context, workspaceID string) ([]*models.Ontology, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, workspace_id, name, description, is_active, created_at, updated_at
		FROM ontologies
		WHERE workspace_id = $1 AND is_active = true
		ORDER BY name`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ontologies: %w", err)
	}
	defer rows.Close()

	var ontologies []*models.Ontology
	for rows.Next() {
		onto, err := scanOntology(rows)
		if err != nil {
			return nil, err
		}
		ontologies = append(ontologies, onto)
	}
	return ontologies, rows.Err()
}

func (r *ontologyRepository) Deactivate(ctx context.Context, id int64) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no workspace scope in context")
	}

	result, err := scope.Conn.Exec(ctx,
		`UPDATE ontologies SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate ontology: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanOntology(row pgx.Row) (*models.Ontology, error) {
	var o models.Ontology
	var description *string
	err := row.Scan(&o.ID, &o.WorkspaceID, &o.Name, &description, &o.IsActive, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ontology: %w", err)
	}
	if description != nil {
		o.Description = *description
	}
	return &o, nil
}
