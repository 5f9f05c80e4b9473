package main

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chinmayajena/sundaygraph/pkg/config"
	"github.com/chinmayajena/sundaygraph/pkg/logging"
)

// sqlExecutor runs statements over database/sql using the "snowflake"
// driver name. The driver itself is linked by the deployment build with
// a blank import; the core never depends on it directly.
type sqlExecutor struct {
	dsn    string
	maxConns int
	logger *zap.Logger

	mu sync.Mutex
	db *sql.DB
}

func newSnowflakeExecutor(cfg *config.Config, logger *zap.Logger) *sqlExecutor {
	dsn := fmt.Sprintf("%s:%s@%s", cfg.Warehouse.User, cfg.Warehouse.Password, cfg.Warehouse.Account)
	return &sqlExecutor{
		dsn:      dsn,
		maxConns: cfg.Warehouse.MaxConnections,
		logger:   logger.Named("snowflake-exec"),
	}
}

func (e *sqlExecutor) conn() (*sql.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.db != nil {
		return e.db, nil
	}
	db, err := sql.Open("snowflake", e.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snowflake connection (is the driver linked?): %w", err)
	}
	db.SetMaxOpenConns(e.maxConns)
	e.db = db
	return db, nil
}

// ExecStatement implements warehouse.StatementExecutor.
func (e *sqlExecutor) ExecStatement(ctx context.Context, stmt string) (string, error) {
	db, err := e.conn()
	if err != nil {
		return "", err
	}

	e.logger.Debug("executing statement", zap.String("statement", logging.SanitizeStatement(stmt)))

	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var out string
	if rows.Next() {
		if err := rows.Scan(&out); err != nil {
			return "", err
		}
	}
	return out, rows.Err()
}
