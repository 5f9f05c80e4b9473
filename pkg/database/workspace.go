package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WorkspaceScope wraps a connection with workspace context and ensures
// cleanup. The connection has app.current_workspace_id set for RLS
// policy evaluation.
type WorkspaceScope struct {
	Conn        *pgxpool.Conn
	WorkspaceID string
}

// Close resets workspace context and releases connection to pool.
// This MUST be called to prevent workspace context from leaking to the
// next request.
func (s *WorkspaceScope) Close() {
	if s.Conn == nil {
		return
	}
	// Reset the workspace context before returning connection to pool
	_, _ = s.Conn.Exec(context.Background(), "RESET app.current_workspace_id")
	s.Conn.Release()
}

// WithWorkspace acquires a connection and sets the workspace context.
// The returned WorkspaceScope MUST be closed with defer scope.Close().
func (db *DB) WithWorkspace(ctx context.Context, workspaceID string) (*WorkspaceScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	_, err = conn.Exec(ctx, "SELECT set_config('app.current_workspace_id', $1, false)", workspaceID)
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &WorkspaceScope{Conn: conn, WorkspaceID: workspaceID}, nil
}

type scopeKey struct{}

// WithScope returns a context carrying the workspace scope for
// repository calls further down the stack.
func WithScope(ctx context.Context, scope *WorkspaceScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// GetScope extracts the workspace scope from the context.
func GetScope(ctx context.Context) (*WorkspaceScope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(*WorkspaceScope)
	return scope, ok
}
