package warehouse

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
)

// Mock is an in-memory warehouse for tests and local mode. Mutation
// helpers simulate out-of-band schema changes (column drops, renames,
// manual view edits) so drift scenarios can be exercised without a
// warehouse account.
type Mock struct {
	mu sync.Mutex

	// catalogs: "database.schema" -> table -> column -> coarse type
	catalogs map[string]Catalog
	// views: fully-qualified view name -> YAML
	views map[string]string
	// answers: question -> canned response
	answers map[string]AskResult

	// VerifyErrors, when set, makes Verify fail with these errors.
	VerifyErrors []string
	// DeployErrors, when set, makes Deploy fail with these errors.
	DeployErrors []string
	// TransportFailures makes the next N Verify calls fail with a
	// retryable transport error before succeeding.
	TransportFailures int

	verifyCalls int
	deployCalls int
}

// NewMock creates an empty mock warehouse.
func NewMock() *Mock {
	return &Mock{
		catalogs: map[string]Catalog{},
		views:    map[string]string{},
		answers:  map[string]AskResult{},
	}
}

var _ Adapter = (*Mock)(nil)

func catalogKey(database, schema string) string {
	return database + "." + schema
}

// SetTable installs or replaces a table's column set.
func (m *Mock) SetTable(database, schema, table string, columns map[string]CoarseType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := catalogKey(database, schema)
	if m.catalogs[key] == nil {
		m.catalogs[key] = Catalog{}
	}
	cols := make(map[string]CoarseType, len(columns))
	for k, v := range columns {
		cols[k] = v
	}
	m.catalogs[key][table] = cols
}

// DropTable removes a table (simulates a table going missing).
func (m *Mock) DropTable(database, schema, table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.catalogs[catalogKey(database, schema)], table)
}

// DropColumn removes a column (simulates a column drop).
func (m *Mock) DropColumn(database, schema, table, column string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cols, ok := m.catalogs[catalogKey(database, schema)][table]; ok {
		delete(cols, column)
	}
}

// RenameColumn renames a column keeping its type (simulates a rename).
func (m *Mock) RenameColumn(database, schema, table, oldName, newName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cols, ok := m.catalogs[catalogKey(database, schema)][table]; ok {
		if t, exists := cols[oldName]; exists {
			delete(cols, oldName)
			cols[newName] = t
		}
	}
}

// AddColumn adds a column (simulates an out-of-band column addition).
func (m *Mock) AddColumn(database, schema, table, column string, coarse CoarseType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cols, ok := m.catalogs[catalogKey(database, schema)][table]; ok {
		cols[column] = coarse
	}
}

// SetView installs a live semantic view YAML (simulates a manual deploy
// or edit).
func (m *Mock) SetView(viewFQN, yaml string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[viewFQN] = yaml
}

// SetAnswer wires a canned response for a question.
func (m *Mock) SetAnswer(question string, result AskResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[question] = result
}

// VerifyCalls reports how many Verify calls were made.
func (m *Mock) VerifyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifyCalls
}

// DeployCalls reports how many Deploy calls were made.
func (m *Mock) DeployCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deployCalls
}

func (m *Mock) Verify(ctx context.Context, yaml, database, schema string) (*VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.verifyCalls++
	if m.TransportFailures > 0 {
		m.TransportFailures--
		return nil, apperrors.Retryable(apperrors.CodeTimeout, "mock transport failure",
			fmt.Errorf("connection reset"))
	}
	if len(m.VerifyErrors) > 0 {
		return &VerifyResult{OK: false, Errors: m.VerifyErrors}, nil
	}
	if strings.TrimSpace(yaml) == "" {
		return &VerifyResult{OK: false, Errors: []string{"empty semantic model YAML"}}, nil
	}
	return &VerifyResult{OK: true}, nil
}

func (m *Mock) Deploy(ctx context.Context, yaml, database, schema, viewName string) (*DeployResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deployCalls++
	if len(m.DeployErrors) > 0 {
		return &DeployResult{OK: false, Errors: m.DeployErrors}, nil
	}
	fqn := fmt.Sprintf("%s.%s.%s", database, schema, viewName)
	m.views[fqn] = yaml
	return &DeployResult{OK: true}, nil
}

func (m *Mock) ExportExisting(ctx context.Context, viewFQN string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	yaml, ok := m.views[viewFQN]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	return yaml, nil
}

func (m *Mock) ListCatalog(ctx context.Context, database, schema string) (Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.catalogs[catalogKey(database, schema)]
	out := make(Catalog, len(src))
	for table, cols := range src {
		copied := make(map[string]CoarseType, len(cols))
		for name, typ := range cols {
			copied[name] = typ
		}
		out[table] = copied
	}
	return out, nil
}

func (m *Mock) Ask(ctx context.Context, viewFQN, question string) (*AskResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.views[viewFQN]; !ok {
		return nil, fmt.Errorf("semantic view %s: %w", viewFQN, apperrors.ErrNotFound)
	}
	if result, ok := m.answers[question]; ok {
		return &result, nil
	}
	return &AskResult{
		SQL:       "SELECT 1",
		Answer:    "no data",
		LatencyMS: 1,
	}, nil
}
