package models

import "time"

// Workspace is the tenant boundary. Its id is supplied by the caller;
// creating an ontology registers the row for an unseen id
// (EnsureWorkspace). The engine never destroys one.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
