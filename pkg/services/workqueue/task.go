package workqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle of a task:
// PENDING -> RUNNING -> (SUCCESS | FAILED | CANCELED).
type State string

const (
	StatePending  State = "PENDING"
	StateRunning  State = "RUNNING"
	StateSuccess  State = "SUCCESS"
	StateFailed   State = "FAILED"
	StateCanceled State = "CANCELED"
)

// Terminal reports whether a state is final.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed || s == StateCanceled
}

// Task is the unit of work the runner schedules. Execute must observe
// ctx at its stage checkpoints; an in-flight warehouse call is not
// interrupted, the next checkpoint terminates with CANCELED.
type Task interface {
	// ID returns a unique identifier for this task.
	ID() string

	// Kind names the operation (compile, eval, deploy, drift, regression).
	Kind() string

	// WorkspaceID scopes scheduling: tasks in one workspace run FIFO.
	WorkspaceID() string

	// Execute runs the task and returns its result.
	Execute(ctx context.Context) (any, error)
}

// BaseTask provides common task identity.
// Embed this in concrete task implementations.
type BaseTask struct {
	id          string
	kind        string
	workspaceID string
}

// NewBaseTask creates a new base task with a random id.
func NewBaseTask(kind, workspaceID string) BaseTask {
	return BaseTask{
		id:          uuid.New().String(),
		kind:        kind,
		workspaceID: workspaceID,
	}
}

// ID returns the task id.
func (t BaseTask) ID() string { return t.id }

// Kind returns the operation name.
func (t BaseTask) Kind() string { return t.kind }

// WorkspaceID returns the scheduling scope.
func (t BaseTask) WorkspaceID() string { return t.workspaceID }

// FuncTask wraps a closure as a Task.
type FuncTask struct {
	BaseTask
	Fn func(ctx context.Context) (any, error)
}

// NewFuncTask creates a task from a closure.
func NewFuncTask(kind, workspaceID string, fn func(ctx context.Context) (any, error)) *FuncTask {
	return &FuncTask{BaseTask: NewBaseTask(kind, workspaceID), Fn: fn}
}

// Execute runs the wrapped closure.
func (t *FuncTask) Execute(ctx context.Context) (any, error) {
	return t.Fn(ctx)
}

// taskState holds the runtime state of one submitted task.
type taskState struct {
	task Task

	mu          sync.RWMutex
	state       State
	startedAt   *time.Time
	completedAt *time.Time
	result      any
	err         error
	retryable   bool
	cancel      context.CancelFunc
	done        chan struct{}
}

func newTaskState(task Task) *taskState {
	return &taskState{
		task:  task,
		state: StatePending,
		done:  make(chan struct{}),
	}
}

func (ts *taskState) setState(state State) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.state = state
	now := time.Now()
	switch state {
	case StateRunning:
		ts.startedAt = &now
	case StateSuccess, StateFailed, StateCanceled:
		ts.completedAt = &now
	}
}

func (ts *taskState) getState() State {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.state
}

func (ts *taskState) finish(state State, result any, err error, retryable bool) {
	ts.mu.Lock()
	ts.state = state
	now := time.Now()
	ts.completedAt = &now
	ts.result = result
	ts.err = err
	ts.retryable = retryable
	ts.mu.Unlock()
	close(ts.done)
}

// Snapshot is an immutable view of a task for status queries.
type Snapshot struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	WorkspaceID string     `json:"workspace_id"`
	State       State      `json:"state"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Retryable   bool       `json:"retryable,omitempty"`
}

func (ts *taskState) snapshot() Snapshot {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	snap := Snapshot{
		ID:          ts.task.ID(),
		Kind:        ts.task.Kind(),
		WorkspaceID: ts.task.WorkspaceID(),
		State:       ts.state,
		StartedAt:   ts.startedAt,
		CompletedAt: ts.completedAt,
		Result:      ts.result,
		Retryable:   ts.retryable,
	}
	if ts.err != nil {
		snap.Error = ts.err.Error()
	}
	return snap
}
