package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/chinmayajena/sundaygraph/pkg/diff"
	"github.com/chinmayajena/sundaygraph/pkg/models"
	"github.com/chinmayajena/sundaygraph/pkg/odl"
	"github.com/chinmayajena/sundaygraph/pkg/repositories"
)

// VersionService owns the write path for ontologies and versions: every
// save is validated, normalized, hashed and linearized, and diffs between
// stored versions are computed and persisted.
type VersionService interface {
	CreateOntology(ctx context.Context, workspaceID, name, description string) (*models.Ontology, error)
	ListOntologies(ctx context.Context, workspaceID string) ([]*models.Ontology, error)
	DeleteOntology(ctx context.Context, workspaceID, name string) error

	// CreateVersion validates and normalizes the payload, computes its
	// content hash, and inserts the next version. Invalid payloads fail
	// with INVALID_STRUCTURE / INVALID_REFERENCE; identical content
	// fails with DUPLICATE_CONTENT when rejection is configured.
	CreateVersion(ctx context.Context, workspaceID, ontologyName string, payload []byte, author, notes string) (*models.OntologyVersion, error)
	GetVersion(ctx context.Context, workspaceID, ontologyName string, versionNumber int) (*models.OntologyVersion, error)
	GetLatest(ctx context.Context, workspaceID, ontologyName string) (*models.OntologyVersion, error)
	ListVersions(ctx context.Context, workspaceID, ontologyName string) ([]*models.OntologyVersion, error)

	// Diff classifies the changes between two stored versions. Results
	// are persisted per (old, new) pair and reused on repeat calls.
	Diff(ctx context.Context, workspaceID, ontologyName string, oldVersion, newVersion int) (*diff.Result, error)
}

type versionService struct {
	db               Scoper
	ontologyRepo     repositories.OntologyRepository
	versionRepo      repositories.VersionRepository
	rejectDuplicates bool
	logger           *zap.Logger
}

// VersionServiceDeps contains dependencies for VersionService.
type VersionServiceDeps struct {
	DB               Scoper
	OntologyRepo     repositories.OntologyRepository
	VersionRepo      repositories.VersionRepository
	RejectDuplicates bool
	Logger           *zap.Logger
}

// NewVersionService creates a new VersionService.
func NewVersionService(deps *VersionServiceDeps) VersionService {
	return &versionService{
		db:               deps.DB,
		ontologyRepo:     deps.OntologyRepo,
		versionRepo:      deps.VersionRepo,
		rejectDuplicates: deps.RejectDuplicates,
		logger:           deps.Logger.Named("versions"),
	}
}

var _ VersionService = (*versionService)(nil)

func (s *versionService) CreateOntology(ctx context.Context, workspaceID, name, description string) (*models.Ontology, error) {
	ctx, done, err := scoped(ctx, s.db, workspaceID)
	if err != nil {
		return nil, err
	}
	defer done()

	if _, err := s.ontologyRepo.EnsureWorkspace(ctx, workspaceID, workspaceID); err != nil {
		return nil, err
	}
	return s.ontologyRepo.Create(ctx, workspaceID, name, description)
}

func (s *versionService) ListOntologies(ctx context.Context, workspaceID string) ([]*models.Ontology, error) {
	ctx, done, err := scoped(ctx, s.db, workspaceID)
	if err != nil {
		return nil, err
	}
	defer done()

	return s.ontologyRepo.List(ctx, workspaceID)
}

func (s *versionService) DeleteOntology(ctx context.Context, workspaceID, name string) error {
	ctx, done, err := scoped(ctx, s.db, workspaceID)
	if err != nil {
		return err
	}
	defer done()

	onto, err := s.ontologyRepo.GetByName(ctx, workspaceID, name)
	if err != nil {
		return err
	}
	return s.ontologyRepo.Deactivate(ctx, onto.ID)
}

func (s *versionService) CreateVersion(ctx context.Context, workspaceID, ontologyName string, payload []byte, author, notes string) (*models.OntologyVersion, error) {
	// Validation and normalization run before any scope or row is
	// touched: input errors never leave persisted state behind.
	_, canonical, contentHash, err := odl.Canonicalize(payload)
	if err != nil {
		return nil, err
	}

	ctx, done, err := scoped(ctx, s.db, workspaceID)
	if err != nil {
		return nil, err
	}
	defer done()

	onto, err := s.ontologyRepo.GetByName(ctx, workspaceID, ontologyName)
	if err != nil {
		return nil, fmt.Errorf("ontology %q: %w", ontologyName, err)
	}

	version, err := s.versionRepo.Create(ctx, onto.ID, canonical, contentHash, author, notes, s.rejectDuplicates)
	if err != nil {
		return nil, err
	}

	s.logger.Info("version created",
		zap.String("workspace", workspaceID),
		zap.String("ontology", ontologyName),
		zap.Int("version", version.VersionNumber),
		zap.String("content_hash", contentHash))
	return version, nil
}

func (s *versionService) GetVersion(ctx context.Context, workspaceID, ontologyName string, versionNumber int) (*models.OntologyVersion, error) {
	ctx, done, err := scoped(ctx, s.db, workspaceID)
	if err != nil {
		return nil, err
	}
	defer done()

	onto, err := s.ontologyRepo.GetByName(ctx, workspaceID, ontologyName)
	if err != nil {
		return nil, err
	}
	return s.versionRepo.Get(ctx, onto.ID, versionNumber)
}

func (s *versionService) GetLatest(ctx context.Context, workspaceID, ontologyName string) (*models.OntologyVersion, error) {
	ctx, done, err := scoped(ctx, s.db, workspaceID)
	if err != nil {
		return nil, err
	}
	defer done()

	onto, err := s.ontologyRepo.GetByName(ctx, workspaceID, ontologyName)
	if err != nil {
		return nil, err
	}
	return s.versionRepo.GetLatest(ctx, onto.ID)
}

func (s *versionService) ListVersions(ctx context.Context, workspaceID, ontologyName string) ([]*models.OntologyVersion, error) {
	ctx, done, err := scoped(ctx, s.db, workspaceID)
	if err != nil {
		return nil, err
	}
	defer done()

	onto, err := s.ontologyRepo.GetByName(ctx, workspaceID, ontologyName)
	if err != nil {
		return nil, err
	}
	return s.versionRepo.List(ctx, onto.ID)
}

func (s *versionService) Diff(ctx context.Context, workspaceID, ontologyName string, oldVersion, newVersion int) (*diff.Result, error) {
	ctx, done, err := scoped(ctx, s.db, workspaceID)
	if err != nil {
		return nil, err
	}
	defer done()

	onto, err := s.ontologyRepo.GetByName(ctx, workspaceID, ontologyName)
	if err != nil {
		return nil, err
	}

	if stored, err := s.versionRepo.GetDiff(ctx, onto.ID, oldVersion, newVersion); err == nil {
		var result diff.Result
		if err := json.Unmarshal(stored.Changes, &result.Changes); err == nil {
			if err := json.Unmarshal(stored.Summary, &result.Summary); err == nil {
				return &result, nil
			}
		}
	}

	oldV, err := s.versionRepo.Get(ctx, onto.ID, oldVersion)
	if err != nil {
		return nil, fmt.Errorf("old version %d: %w", oldVersion, err)
	}
	newV, err := s.versionRepo.Get(ctx, onto.ID, newVersion)
	if err != nil {
		return nil, fmt.Errorf("new version %d: %w", newVersion, err)
	}

	oldIR, err := odl.ParseAndValidate(oldV.ODLJSON)
	if err != nil {
		return nil, fmt.Errorf("stored version %d no longer parses: %w", oldVersion, err)
	}
	newIR, err := odl.ParseAndValidate(newV.ODLJSON)
	if err != nil {
		return nil, fmt.Errorf("stored version %d no longer parses: %w", newVersion, err)
	}

	result := diff.Compute(odl.Normalize(oldIR), odl.Normalize(newIR))

	changes, err := json.Marshal(result.Changes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode diff changes: %w", err)
	}
	summary, err := json.Marshal(result.Summary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode diff summary: %w", err)
	}
	record := &models.OntologyDiff{
		OntologyID: onto.ID,
		OldVersion: oldVersion,
		NewVersion: newVersion,
		Changes:    changes,
		Summary:    summary,
	}
	if err := s.versionRepo.SaveDiff(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("diff computed",
		zap.String("ontology", ontologyName),
		zap.Int("old", oldVersion),
		zap.Int("new", newVersion),
		zap.Bool("has_breaking", result.Summary.HasBreaking))
	return result, nil
}
