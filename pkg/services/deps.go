package services

import (
	"context"

	"github.com/chinmayajena/sundaygraph/pkg/database"
)

// Scoper acquires workspace-scoped connections. *database.DB satisfies
// it; tests substitute a fake so services run without Postgres.
type Scoper interface {
	WithWorkspace(ctx context.Context, workspaceID string) (*database.WorkspaceScope, error)
}

// scoped acquires a workspace scope and threads it through the context
// for repository calls. The returned closer must be deferred.
func scoped(ctx context.Context, db Scoper, workspaceID string) (context.Context, func(), error) {
	scope, err := db.WithWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	return database.WithScope(ctx, scope), scope.Close, nil
}
