package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
	"github.com/chinmayajena/sundaygraph/pkg/logging"
)

// StatementExecutor runs one SQL statement against Snowflake and returns
// the single-cell result, if any. The concrete driver (ODBC, REST, gosnowflake)
// is injected by the host process; the adapter itself stays driver-neutral.
type StatementExecutor interface {
	ExecStatement(ctx context.Context, stmt string) (string, error)
}

// Snowflake renders SYSTEM$ semantic-view calls and executes them through
// an injected StatementExecutor.
type Snowflake struct {
	exec   StatementExecutor
	logger *zap.Logger
}

// NewSnowflake creates a Snowflake adapter over the given executor.
func NewSnowflake(exec StatementExecutor, logger *zap.Logger) *Snowflake {
	return &Snowflake{exec: exec, logger: logger.Named("snowflake")}
}

var _ Adapter = (*Snowflake)(nil)

func (s *Snowflake) Verify(ctx context.Context, yaml, database, schema string) (*VerifyResult, error) {
	stmt := fmt.Sprintf(
		"CALL SYSTEM$CREATE_SEMANTIC_VIEW_FROM_YAML('%s.%s', $$%s$$, verify_only => TRUE);",
		database, schema, yaml)

	s.logger.Debug("verifying semantic model",
		zap.String("target", database+"."+schema),
		zap.String("statement", logging.SanitizeStatement(stmt)))

	out, err := s.exec.ExecStatement(ctx, stmt)
	if err != nil {
		return nil, classifyTransport(err)
	}
	if failureOutput(out) {
		return &VerifyResult{OK: false, Errors: []string{out}}, nil
	}
	return &VerifyResult{OK: true}, nil
}

func (s *Snowflake) Deploy(ctx context.Context, yaml, database, schema, viewName string) (*DeployResult, error) {
	stmt := fmt.Sprintf(
		"CALL SYSTEM$CREATE_SEMANTIC_VIEW_FROM_YAML('%s.%s', $$%s$$, verify_only => FALSE);",
		database, schema, yaml)

	s.logger.Info("deploying semantic view",
		zap.String("view", fmt.Sprintf("%s.%s.%s", database, schema, viewName)))

	out, err := s.exec.ExecStatement(ctx, stmt)
	if err != nil {
		return nil, classifyTransport(err)
	}
	if failureOutput(out) {
		return &DeployResult{OK: false, Errors: []string{out}}, nil
	}
	return &DeployResult{OK: true}, nil
}

func (s *Snowflake) ExportExisting(ctx context.Context, viewFQN string) (string, error) {
	stmt := fmt.Sprintf("SELECT SYSTEM$READ_YAML_FROM_SEMANTIC_VIEW('%s');", viewFQN)

	out, err := s.exec.ExecStatement(ctx, stmt)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "does not exist") {
			return "", apperrors.ErrNotFound
		}
		return "", classifyTransport(err)
	}
	if strings.TrimSpace(out) == "" {
		return "", apperrors.ErrNotFound
	}
	return out, nil
}

func (s *Snowflake) ListCatalog(ctx context.Context, database, schema string) (Catalog, error) {
	stmt := fmt.Sprintf(
		"SELECT TABLE_NAME || '|' || COLUMN_NAME || '|' || DATA_TYPE FROM %s.INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = '%s' ORDER BY TABLE_NAME, ORDINAL_POSITION;",
		database, schema)

	out, err := s.exec.ExecStatement(ctx, stmt)
	if err != nil {
		return nil, classifyTransport(err)
	}

	catalog := Catalog{}
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), "|", 3)
		if len(parts) != 3 || parts[0] == "" {
			continue
		}
		table, column, dataType := parts[0], parts[1], parts[2]
		if catalog[table] == nil {
			catalog[table] = map[string]CoarseType{}
		}
		catalog[table][column] = CoarseTypeOf(dataType)
	}
	return catalog, nil
}

func (s *Snowflake) Ask(ctx context.Context, viewFQN, question string) (*AskResult, error) {
	// Cortex Analyst rides the SQL surface through SNOWFLAKE.CORTEX.
	stmt := fmt.Sprintf("SELECT SNOWFLAKE.CORTEX.ANALYST('%s', $$%s$$);", viewFQN, question)

	started := time.Now()
	out, err := s.exec.ExecStatement(ctx, stmt)
	if err != nil {
		return nil, classifyTransport(err)
	}

	// The analyst returns "sql\n--\nanswer"; keep the whole blob as the
	// answer when the separator is absent.
	sql, answer, found := strings.Cut(out, "\n--\n")
	if !found {
		sql, answer = "", out
	}
	return &AskResult{
		SQL:       sql,
		Answer:    answer,
		LatencyMS: float64(time.Since(started).Milliseconds()),
	}, nil
}

// CoarseTypeOf buckets a warehouse DATA_TYPE into the coarse equivalence
// classes used for drift comparison.
func CoarseTypeOf(dataType string) CoarseType {
	upper := strings.ToUpper(strings.TrimSpace(dataType))
	switch {
	case strings.HasPrefix(upper, "VARCHAR"), strings.HasPrefix(upper, "CHAR"),
		strings.HasPrefix(upper, "STRING"), strings.HasPrefix(upper, "TEXT"):
		return CoarseString
	case strings.HasPrefix(upper, "NUMBER"), strings.HasPrefix(upper, "DECIMAL"),
		strings.HasPrefix(upper, "NUMERIC"), strings.HasPrefix(upper, "FLOAT"),
		strings.HasPrefix(upper, "DOUBLE"):
		return CoarseDecimal
	case strings.HasPrefix(upper, "INT"), strings.HasPrefix(upper, "BIGINT"),
		strings.HasPrefix(upper, "SMALLINT"):
		return CoarseInteger
	case strings.HasPrefix(upper, "BOOLEAN"), strings.HasPrefix(upper, "BOOL"):
		return CoarseBoolean
	case upper == "DATE":
		return CoarseDate
	case strings.HasPrefix(upper, "TIMESTAMP"), strings.HasPrefix(upper, "DATETIME"):
		return CoarseTimestamp
	case strings.HasPrefix(upper, "TIME"):
		return CoarseTime
	default:
		return CoarseOther
	}
}

func failureOutput(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "error") || strings.Contains(lower, "invalid")
}

func classifyTransport(err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "deadline exceeded") {
		return apperrors.Retryable(apperrors.CodeTimeout, "warehouse call timed out", err)
	}
	return err
}
