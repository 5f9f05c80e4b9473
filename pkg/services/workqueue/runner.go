// Package workqueue schedules long pipeline operations (compile, eval,
// deploy, drift, regression) so callers never block. Submissions within
// one workspace run FIFO one at a time; workspaces run in parallel under
// a global concurrency cap.
package workqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
	"github.com/chinmayajena/sundaygraph/pkg/retry"
)

// Runner is the async execution substrate.
type Runner struct {
	mu sync.Mutex

	tasks   map[string]*taskState
	queues  map[string][]*taskState // per-workspace FIFO of pending tasks
	running map[string]bool         // workspaces with a task in flight

	runningTotal  int
	maxConcurrent int
	shutdown      bool

	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewRunner creates a runner with the given global concurrency cap.
func NewRunner(maxConcurrent int, logger *zap.Logger) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Runner{
		tasks:         map[string]*taskState{},
		queues:        map[string][]*taskState{},
		running:       map[string]bool{},
		maxConcurrent: maxConcurrent,
		logger:        logger.Named("workqueue"),
	}
}

// Submit enqueues a task and returns its id. Tasks for the same
// workspace execute in submission order.
func (r *Runner) Submit(task Task) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return "", fmt.Errorf("runner is shut down")
	}

	ts := newTaskState(task)
	r.tasks[task.ID()] = ts
	r.queues[task.WorkspaceID()] = append(r.queues[task.WorkspaceID()], ts)

	r.logger.Info("task submitted",
		zap.String("task_id", task.ID()),
		zap.String("kind", task.Kind()),
		zap.String("workspace", task.WorkspaceID()))

	r.tryStartLocked()
	return task.ID(), nil
}

// Status returns a snapshot of one task.
func (r *Runner) Status(taskID string) (Snapshot, error) {
	r.mu.Lock()
	ts, ok := r.tasks[taskID]
	r.mu.Unlock()
	if !ok {
		return Snapshot{}, apperrors.ErrNotFound
	}
	return ts.snapshot(), nil
}

// Cancel requests cooperative cancellation. Pending tasks move straight
// to CANCELED; running tasks get their context canceled and terminate at
// their next checkpoint.
func (r *Runner) Cancel(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.tasks[taskID]
	if !ok {
		return apperrors.ErrNotFound
	}

	switch ts.getState() {
	case StatePending:
		r.removeFromQueueLocked(ts)
		ts.finish(StateCanceled, nil, apperrors.New(apperrors.CodeCanceled, "canceled before start"), false)
		r.logger.Info("pending task canceled", zap.String("task_id", taskID))
		return nil
	case StateRunning:
		ts.mu.RLock()
		cancel := ts.cancel
		ts.mu.RUnlock()
		if cancel != nil {
			cancel()
		}
		r.logger.Info("cancellation requested for running task", zap.String("task_id", taskID))
		return nil
	default:
		// Already terminal.
		return nil
	}
}

// Wait blocks until the task reaches a terminal state or ctx expires.
func (r *Runner) Wait(ctx context.Context, taskID string) (Snapshot, error) {
	r.mu.Lock()
	ts, ok := r.tasks[taskID]
	r.mu.Unlock()
	if !ok {
		return Snapshot{}, apperrors.ErrNotFound
	}

	select {
	case <-ts.done:
		return ts.snapshot(), nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Shutdown cancels everything and waits for running tasks to finish.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	r.shutdown = true
	for _, ts := range r.tasks {
		switch ts.getState() {
		case StatePending:
			r.removeFromQueueLocked(ts)
			ts.finish(StateCanceled, nil, apperrors.New(apperrors.CodeCanceled, "runner shut down"), false)
		case StateRunning:
			ts.mu.RLock()
			cancel := ts.cancel
			ts.mu.RUnlock()
			if cancel != nil {
				cancel()
			}
		}
	}
	r.mu.Unlock()

	r.wg.Wait()
}

// tryStartLocked starts eligible tasks: one per idle workspace, oldest
// first, while the global cap allows. Must be called with lock held.
func (r *Runner) tryStartLocked() {
	if r.runningTotal >= r.maxConcurrent {
		return
	}

	// Deterministic workspace scan order.
	workspaces := make([]string, 0, len(r.queues))
	for ws := range r.queues {
		workspaces = append(workspaces, ws)
	}
	sort.Strings(workspaces)

	for _, ws := range workspaces {
		if r.runningTotal >= r.maxConcurrent {
			return
		}
		if r.running[ws] || len(r.queues[ws]) == 0 {
			continue
		}

		ts := r.queues[ws][0]
		r.queues[ws] = r.queues[ws][1:]
		if len(r.queues[ws]) == 0 {
			delete(r.queues, ws)
		}

		r.running[ws] = true
		r.runningTotal++

		ctx, cancel := context.WithCancel(context.Background())
		ts.mu.Lock()
		ts.cancel = cancel
		ts.mu.Unlock()
		ts.setState(StateRunning)

		r.logger.Info("task started",
			zap.String("task_id", ts.task.ID()),
			zap.String("kind", ts.task.Kind()),
			zap.String("workspace", ws))

		r.wg.Add(1)
		go r.run(ctx, cancel, ts)
	}
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, ts *taskState) {
	defer r.wg.Done()
	defer cancel()

	result, err := ts.task.Execute(ctx)

	switch {
	case err == nil:
		ts.finish(StateSuccess, result, nil, false)
		r.logger.Info("task succeeded", zap.String("task_id", ts.task.ID()))
	case errors.Is(err, context.Canceled) || apperrors.IsCode(err, apperrors.CodeCanceled):
		ts.finish(StateCanceled, nil, apperrors.Wrap(apperrors.CodeCanceled, "task canceled", err), false)
		r.logger.Info("task canceled", zap.String("task_id", ts.task.ID()))
	default:
		// The runner never auto-retries tasks; it records the terminal
		// failure with a retryable flag and callers decide.
		ts.finish(StateFailed, nil, err, retry.IsRetryable(err))
		r.logger.Error("task failed",
			zap.String("task_id", ts.task.ID()),
			zap.String("kind", ts.task.Kind()),
			zap.Bool("retryable", retry.IsRetryable(err)),
			zap.Error(err))
	}

	r.mu.Lock()
	delete(r.running, ts.task.WorkspaceID())
	r.runningTotal--
	if !r.shutdown {
		r.tryStartLocked()
	}
	r.mu.Unlock()
}

// removeFromQueueLocked drops a pending task from its workspace queue.
// Must be called with lock held.
func (r *Runner) removeFromQueueLocked(ts *taskState) {
	ws := ts.task.WorkspaceID()
	queue := r.queues[ws]
	for i, queued := range queue {
		if queued == ts {
			r.queues[ws] = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(r.queues[ws]) == 0 {
		delete(r.queues, ws)
	}
}
