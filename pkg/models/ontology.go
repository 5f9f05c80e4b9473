package models

import (
	"encoding/json"
	"time"
)

// Ontology is a named definition within a workspace. It holds no content
// itself; content lives in immutable versions.
type Ontology struct {
	ID          int64     `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OntologyVersion is an immutable snapshot: the canonical ODL payload,
// its content hash, and provenance. Once written it is never mutated.
type OntologyVersion struct {
	ID            int64           `json:"id"`
	OntologyID    int64           `json:"ontology_id"`
	VersionNumber int             `json:"version_number"`
	ODLJSON       json.RawMessage `json:"odl_json"`
	ContentHash   string          `json:"content_hash"`
	Author        string          `json:"author,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OntologyDiff links two versions with their classified change list.
// Immutable once computed.
type OntologyDiff struct {
	ID         int64           `json:"id"`
	OntologyID int64           `json:"ontology_id"`
	OldVersion int             `json:"old_version"`
	NewVersion int             `json:"new_version"`
	Changes    json.RawMessage `json:"changes"`
	Summary    json.RawMessage `json:"summary"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Deployment records that a version is live as a semantic view. Drift
// and regression consult this registry.
type Deployment struct {
	ID         int64     `json:"id"`
	VersionID  int64     `json:"version_id"`
	ViewFQN    string    `json:"view_fqn"`
	DeployedAt time.Time `json:"deployed_at"`
	CreatedAt  time.Time `json:"created_at"`
}
