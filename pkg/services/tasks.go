package services

import (
	"context"

	"github.com/chinmayajena/sundaygraph/pkg/compiler"
	"github.com/chinmayajena/sundaygraph/pkg/eval"
	"github.com/chinmayajena/sundaygraph/pkg/services/workqueue"
)

// TaskService submits long pipeline operations to the async runner so
// API callers get a task id immediately and poll for status.
type TaskService struct {
	lifecycle LifecycleService
	runner    *workqueue.Runner
}

// NewTaskService creates a TaskService.
func NewTaskService(lifecycle LifecycleService, runner *workqueue.Runner) *TaskService {
	return &TaskService{lifecycle: lifecycle, runner: runner}
}

// SubmitEvaluate queues an evaluation.
func (s *TaskService) SubmitEvaluate(workspaceID, ontologyName string, versionNumber int, profile eval.Profile) (string, error) {
	return s.runner.Submit(workqueue.NewFuncTask("eval", workspaceID, func(ctx context.Context) (any, error) {
		return s.lifecycle.Evaluate(ctx, workspaceID, ontologyName, versionNumber, profile)
	}))
}

// SubmitCompile queues a compilation.
func (s *TaskService) SubmitCompile(workspaceID, ontologyName string, versionNumber int, profile eval.Profile, viewName string, environments []compiler.Environment) (string, error) {
	return s.runner.Submit(workqueue.NewFuncTask("compile", workspaceID, func(ctx context.Context) (any, error) {
		run, _, err := s.lifecycle.Compile(ctx, workspaceID, ontologyName, versionNumber, profile, viewName, environments)
		if err != nil {
			return nil, err
		}
		return run, nil
	}))
}

// SubmitDeploy queues a deployment.
func (s *TaskService) SubmitDeploy(workspaceID, ontologyName string, versionNumber int, profile eval.Profile, viewName string) (string, error) {
	return s.runner.Submit(workqueue.NewFuncTask("deploy", workspaceID, func(ctx context.Context) (any, error) {
		return s.lifecycle.Deploy(ctx, workspaceID, ontologyName, versionNumber, profile, viewName)
	}))
}

// SubmitDriftDetection queues a drift probe.
func (s *TaskService) SubmitDriftDetection(workspaceID, ontologyName string) (string, error) {
	return s.runner.Submit(workqueue.NewFuncTask("drift", workspaceID, func(ctx context.Context) (any, error) {
		return s.lifecycle.DetectDrift(ctx, workspaceID, ontologyName)
	}))
}

// SubmitRegression queues a regression run.
func (s *TaskService) SubmitRegression(workspaceID, ontologyName string, questionSet []byte) (string, error) {
	return s.runner.Submit(workqueue.NewFuncTask("regression", workspaceID, func(ctx context.Context) (any, error) {
		return s.lifecycle.RunRegression(ctx, workspaceID, ontologyName, questionSet)
	}))
}

// Status returns the state of a submitted task.
func (s *TaskService) Status(taskID string) (workqueue.Snapshot, error) {
	return s.runner.Status(taskID)
}

// Cancel requests cooperative cancellation of a task.
func (s *TaskService) Cancel(taskID string) error {
	return s.runner.Cancel(taskID)
}
