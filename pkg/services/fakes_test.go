package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
	"github.com/chinmayajena/sundaygraph/pkg/database"
	"github.com/chinmayajena/sundaygraph/pkg/models"
)

// fakeScoper satisfies Scoper without a database; repositories used in
// these tests are in-memory and never touch the scope's connection.
type fakeScoper struct{}

func (fakeScoper) WithWorkspace(ctx context.Context, workspaceID string) (*database.WorkspaceScope, error) {
	return &database.WorkspaceScope{WorkspaceID: workspaceID}, nil
}

type fakeOntologyRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]*models.Ontology // workspace/name -> ontology
}

func newFakeOntologyRepo() *fakeOntologyRepo {
	return &fakeOntologyRepo{rows: map[string]*models.Ontology{}}
}

func ontoKey(workspaceID, name string) string { return workspaceID + "/" + name }

func (f *fakeOntologyRepo) EnsureWorkspace(ctx context.Context, id, name string) (*models.Workspace, error) {
	return &models.Workspace{ID: id, Name: name, CreatedAt: time.Now()}, nil
}

func (f *fakeOntologyRepo) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	return &models.Workspace{ID: id, Name: id}, nil
}

func (f *fakeOntologyRepo) Create(ctx context.Context, workspaceID, name, description string) (*models.Ontology, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.rows[ontoKey(workspaceID, name)]; ok {
		existing.Description = description
		existing.IsActive = true
		return existing, nil
	}
	f.nextID++
	onto := &models.Ontology{
		ID: f.nextID, WorkspaceID: workspaceID, Name: name,
		Description: description, IsActive: true,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	f.rows[ontoKey(workspaceID, name)] = onto
	return onto, nil
}

func (f *fakeOntologyRepo) GetByName(ctx context.Context, workspaceID, name string) (*models.Ontology, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	onto, ok := f.rows[ontoKey(workspaceID, name)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return onto, nil
}

func (f *fakeOntologyRepo) GetByID(ctx context.Context, id int64) (*models.Ontology, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, onto := range f.rows {
		if onto.ID == id {
			return onto, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeOntologyRepo) List(ctx context.Context, workspaceID string) ([]*models.Ontology, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Ontology
	for _, onto := range f.rows {
		if onto.WorkspaceID == workspaceID && onto.IsActive {
			out = append(out, onto)
		}
	}
	return out, nil
}

func (f *fakeOntologyRepo) Deactivate(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, onto := range f.rows {
		if onto.ID == id {
			onto.IsActive = false
			return nil
		}
	}
	return apperrors.ErrNotFound
}

type fakeVersionRepo struct {
	mu       sync.Mutex
	nextID   int64
	versions map[int64][]*models.OntologyVersion // ontologyID -> versions in order
	diffs    map[string]*models.OntologyDiff
}

func newFakeVersionRepo() *fakeVersionRepo {
	return &fakeVersionRepo{
		versions: map[int64][]*models.OntologyVersion{},
		diffs:    map[string]*models.OntologyDiff{},
	}
}

func (f *fakeVersionRepo) Create(ctx context.Context, ontologyID int64, payload []byte, contentHash, author, notes string, rejectDuplicates bool) (*models.OntologyVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if rejectDuplicates {
		for _, v := range f.versions[ontologyID] {
			if v.ContentHash == contentHash {
				return nil, apperrors.Newf(apperrors.CodeDuplicateContent,
					"content hash %s already stored as version %d", contentHash, v.VersionNumber)
			}
		}
	}

	f.nextID++
	version := &models.OntologyVersion{
		ID: f.nextID, OntologyID: ontologyID,
		VersionNumber: len(f.versions[ontologyID]) + 1,
		ODLJSON:       payload, ContentHash: contentHash,
		Author: author, Notes: notes, CreatedAt: time.Now(),
	}
	f.versions[ontologyID] = append(f.versions[ontologyID], version)
	return version, nil
}

func (f *fakeVersionRepo) Get(ctx context.Context, ontologyID int64, versionNumber int) (*models.OntologyVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.versions[ontologyID] {
		if v.VersionNumber == versionNumber {
			return v, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeVersionRepo) GetByID(ctx context.Context, id int64) (*models.OntologyVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, versions := range f.versions {
		for _, v := range versions {
			if v.ID == id {
				return v, nil
			}
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeVersionRepo) GetLatest(ctx context.Context, ontologyID int64) (*models.OntologyVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	versions := f.versions[ontologyID]
	if len(versions) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return versions[len(versions)-1], nil
}

func (f *fakeVersionRepo) List(ctx context.Context, ontologyID int64) ([]*models.OntologyVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	versions := f.versions[ontologyID]
	out := make([]*models.OntologyVersion, len(versions))
	for i := range versions {
		out[len(versions)-1-i] = versions[i]
	}
	return out, nil
}

func diffKey(ontologyID int64, oldV, newV int) string {
	return fmt.Sprintf("%d/%d/%d", ontologyID, oldV, newV)
}

func (f *fakeVersionRepo) SaveDiff(ctx context.Context, diff *models.OntologyDiff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	diff.CreatedAt = time.Now()
	f.diffs[diffKey(diff.OntologyID, diff.OldVersion, diff.NewVersion)] = diff
	return nil
}

func (f *fakeVersionRepo) GetDiff(ctx context.Context, ontologyID int64, oldVersion, newVersion int) (*models.OntologyDiff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.diffs[diffKey(ontologyID, oldVersion, newVersion)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return d, nil
}

type fakeRunRepo struct {
	mu          sync.Mutex
	compileRuns map[uuid.UUID]*models.CompileRun
	evalRuns    map[uuid.UUID]*models.EvalRun
	regRuns     map[uuid.UUID]*models.RegressionRun
	deployments []*models.Deployment
	nextDeploy  int64
	versions    *fakeVersionRepo
}

func newFakeRunRepo(versions *fakeVersionRepo) *fakeRunRepo {
	return &fakeRunRepo{
		compileRuns: map[uuid.UUID]*models.CompileRun{},
		evalRuns:    map[uuid.UUID]*models.EvalRun{},
		regRuns:     map[uuid.UUID]*models.RegressionRun{},
		versions:    versions,
	}
}

func (f *fakeRunRepo) CreateCompileRun(ctx context.Context, run *models.CompileRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = models.RunPending
	run.CreatedAt = time.Now()
	f.compileRuns[run.ID] = run
	return nil
}

func (f *fakeRunRepo) StartCompileRun(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.compileRuns[id]
	if !ok || run.Status != models.RunPending {
		return apperrors.ErrConflict
	}
	now := time.Now()
	run.Status = models.RunRunning
	run.StartedAt = &now
	return nil
}

func (f *fakeRunRepo) CompleteCompileRun(ctx context.Context, id uuid.UUID, status models.RunStatus, artifactPath, artifactHash, errorMessage string, rollbackCaptured bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.compileRuns[id]
	if !ok || run.Status != models.RunRunning {
		return apperrors.ErrConflict
	}
	now := time.Now()
	run.Status = status
	run.ArtifactPath = artifactPath
	run.ArtifactHash = artifactHash
	run.ErrorMessage = errorMessage
	run.RollbackCaptured = rollbackCaptured
	run.CompletedAt = &now
	return nil
}

func (f *fakeRunRepo) GetCompileRun(ctx context.Context, id uuid.UUID) (*models.CompileRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.compileRuns[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return run, nil
}

func (f *fakeRunRepo) CreateEvalRun(ctx context.Context, run *models.EvalRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.CreatedAt = time.Now()
	started := run.CreatedAt
	run.StartedAt = &started
	f.evalRuns[run.ID] = run
	return nil
}

func (f *fakeRunRepo) CompleteEvalRun(ctx context.Context, id uuid.UUID, passed bool, metrics []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.evalRuns[id]
	if !ok || run.CompletedAt != nil {
		return apperrors.ErrConflict
	}
	now := time.Now()
	run.Passed = &passed
	run.Metrics = metrics
	run.CompletedAt = &now
	return nil
}

func (f *fakeRunRepo) GetEvalRun(ctx context.Context, id uuid.UUID) (*models.EvalRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.evalRuns[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return run, nil
}

func (f *fakeRunRepo) CreateRegressionRun(ctx context.Context, run *models.RegressionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.CreatedAt = time.Now()
	started := run.CreatedAt
	run.StartedAt = &started
	f.regRuns[run.ID] = run
	return nil
}

func (f *fakeRunRepo) CompleteRegressionRun(ctx context.Context, run *models.RegressionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.regRuns[run.ID]
	if !ok || stored.CompletedAt != nil {
		return apperrors.ErrConflict
	}
	now := time.Now()
	*stored = *run
	stored.CompletedAt = &now
	return nil
}

func (f *fakeRunRepo) GetRegressionRun(ctx context.Context, id uuid.UUID) (*models.RegressionRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.regRuns[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return run, nil
}

func (f *fakeRunRepo) RecordDeployment(ctx context.Context, versionID int64, viewFQN string) (*models.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextDeploy++
	d := &models.Deployment{
		ID: f.nextDeploy, VersionID: versionID, ViewFQN: viewFQN,
		DeployedAt: time.Now(), CreatedAt: time.Now(),
	}
	f.deployments = append(f.deployments, d)
	return d, nil
}

func (f *fakeRunRepo) LatestDeployment(ctx context.Context, versionID int64) (*models.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.deployments) - 1; i >= 0; i-- {
		if f.deployments[i].VersionID == versionID {
			return f.deployments[i], nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeRunRepo) LatestDeploymentForView(ctx context.Context, viewFQN string) (*models.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.deployments) - 1; i >= 0; i-- {
		if f.deployments[i].ViewFQN == viewFQN {
			return f.deployments[i], nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeRunRepo) LatestDeploymentForOntology(ctx context.Context, ontologyID int64) (*models.Deployment, error) {
	f.mu.Lock()
	deployments := append([]*models.Deployment(nil), f.deployments...)
	f.mu.Unlock()

	for i := len(deployments) - 1; i >= 0; i-- {
		v, err := f.versions.GetByID(ctx, deployments[i].VersionID)
		if err == nil && v.OntologyID == ontologyID {
			return deployments[i], nil
		}
	}
	return nil, apperrors.ErrNotFound
}

type fakeDriftRepo struct {
	mu     sync.Mutex
	nextID int64
	events []*models.DriftEvent
}

func newFakeDriftRepo() *fakeDriftRepo {
	return &fakeDriftRepo{}
}

func (f *fakeDriftRepo) RecordEvent(ctx context.Context, event *models.DriftEvent) (*models.DriftEvent, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.events {
		if existing.Status == models.DriftOpen &&
			existing.OntologyID == event.OntologyID &&
			existing.EventType == event.EventType &&
			existing.DetailsHash == event.DetailsHash {
			return nil, false, nil
		}
	}
	f.nextID++
	event.ID = f.nextID
	event.Status = models.DriftOpen
	event.DetectedAt = time.Now()
	event.CreatedAt = event.DetectedAt
	f.events = append(f.events, event)
	return event, true, nil
}

func (f *fakeDriftRepo) ListOpen(ctx context.Context, ontologyID int64) ([]*models.DriftEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.DriftEvent
	for _, e := range f.events {
		if e.OntologyID == ontologyID && e.Status == models.DriftOpen {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeDriftRepo) UpdateStatus(ctx context.Context, id int64, status models.DriftStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id && e.Status == models.DriftOpen {
			now := time.Now()
			e.Status = status
			e.ResolvedAt = &now
			return nil
		}
	}
	return apperrors.ErrNotFound
}
