// Package deploy drives the two-phase verify-then-deploy flow against a
// warehouse adapter, capturing rollback YAML before touching the live
// view.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chinmayajena/sundaygraph/pkg/adapters/warehouse"
	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
	"github.com/chinmayajena/sundaygraph/pkg/compiler"
	"github.com/chinmayajena/sundaygraph/pkg/retry"
)

// Result reports a completed deployment.
type Result struct {
	ViewFQN          string                   `json:"view_fqn"`
	RollbackCaptured bool                     `json:"rollback_captured"`
	Verify           *warehouse.VerifyResult  `json:"verify"`
	Warnings         []string                 `json:"warnings,omitempty"`
}

// Deployer executes bundles against a warehouse.
type Deployer struct {
	adapter       warehouse.Adapter
	logger        *zap.Logger
	verifyTimeout time.Duration
	deployTimeout time.Duration
}

// NewDeployer creates a deployer with per-stage timeouts.
func NewDeployer(adapter warehouse.Adapter, verifyTimeout, deployTimeout time.Duration, logger *zap.Logger) *Deployer {
	if verifyTimeout <= 0 {
		verifyTimeout = 30 * time.Second
	}
	if deployTimeout <= 0 {
		deployTimeout = 120 * time.Second
	}
	return &Deployer{
		adapter:       adapter,
		logger:        logger.Named("deploy"),
		verifyTimeout: verifyTimeout,
		deployTimeout: deployTimeout,
	}
}

// VerifyOnly runs just the verification phase of a bundle.
func (d *Deployer) VerifyOnly(ctx context.Context, bundle *compiler.Bundle, database, schema string) (*warehouse.VerifyResult, error) {
	modelFile := bundle.File("semantic_model.yaml")
	if modelFile == nil {
		return nil, apperrors.New(apperrors.CodeVerifyFailed, "bundle has no semantic_model.yaml")
	}
	return d.verify(ctx, modelFile.Content, database, schema)
}

// Deploy runs the full policy: capture rollback YAML from the live view,
// verify the model, then create/replace the view. Any failure leaves the
// live view untouched. Verification is retried up to 3 times on
// transport errors; deploy itself is never auto-retried.
func (d *Deployer) Deploy(ctx context.Context, bundle *compiler.Bundle, database, schema, viewName string) (*Result, error) {
	modelFile := bundle.File("semantic_model.yaml")
	if modelFile == nil {
		return nil, apperrors.New(apperrors.CodeDeployFailed, "bundle has no semantic_model.yaml")
	}
	modelYAML := modelFile.Content
	viewFQN := fmt.Sprintf("%s.%s.%s", database, schema, viewName)

	result := &Result{ViewFQN: viewFQN}

	// Rollback capture happens before anything else so a failed deploy
	// can always be reverted to what was live at this moment.
	existingYAML, err := d.adapter.ExportExisting(ctx, viewFQN)
	switch {
	case err == nil:
		compiler.AttachRollback(bundle, existingYAML, database, schema, viewName)
		result.RollbackCaptured = true
		d.logger.Info("captured rollback YAML", zap.String("view", viewFQN))
	case errors.Is(err, apperrors.ErrNotFound):
		// ROLLBACK_UNAVAILABLE is a warning, never a failure: rollback.sql
		// stays drop-only.
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s: no existing view at %s; rollback will drop only", apperrors.CodeRollbackUnavailable, viewFQN))
		d.logger.Warn("no existing view to capture for rollback", zap.String("view", viewFQN))
	default:
		return nil, apperrors.Wrap(apperrors.CodeDeployFailed, "rollback capture failed", err)
	}

	verifyResult, err := d.verify(ctx, modelYAML, database, schema)
	if err != nil {
		return nil, err
	}
	result.Verify = verifyResult

	deployCtx, cancel := context.WithTimeout(ctx, d.deployTimeout)
	defer cancel()

	deployResult, err := d.adapter.Deploy(deployCtx, modelYAML, database, schema, viewName)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.Retryable(apperrors.CodeTimeout, "deploy call timed out", err)
		}
		return nil, apperrors.Wrap(apperrors.CodeDeployFailed, "deploy call failed", err)
	}
	if !deployResult.OK {
		return nil, apperrors.New(apperrors.CodeDeployFailed, "warehouse rejected deployment").
			WithDetails(deployResult.Errors...)
	}

	d.logger.Info("semantic view deployed",
		zap.String("view", viewFQN),
		zap.Bool("rollback_captured", result.RollbackCaptured))
	return result, nil
}

// verify calls the verify-only path with the stage retry policy:
// up to 3 retries (4 attempts in all) with 100ms, 400ms, 1600ms backoff,
// transport errors only.
func (d *Deployer) verify(ctx context.Context, modelYAML, database, schema string) (*warehouse.VerifyResult, error) {
	var verifyResult *warehouse.VerifyResult

	err := retry.DoIfRetryable(ctx, retry.VerifyConfig(), func() error {
		verifyCtx, cancel := context.WithTimeout(ctx, d.verifyTimeout)
		defer cancel()

		vr, callErr := d.adapter.Verify(verifyCtx, modelYAML, database, schema)
		if callErr != nil {
			if errors.Is(callErr, context.DeadlineExceeded) {
				return apperrors.Retryable(apperrors.CodeTimeout, "verify call timed out", callErr)
			}
			return callErr
		}
		verifyResult = vr
		return nil
	})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeTimeout || retry.IsRetryable(err) {
			return nil, apperrors.Retryable(apperrors.CodeTimeout, "verification transport failed", err)
		}
		return nil, apperrors.Wrap(apperrors.CodeVerifyFailed, "verification call failed", err)
	}

	if !verifyResult.OK {
		return nil, apperrors.New(apperrors.CodeVerifyFailed,
			"semantic model failed verification: "+strings.Join(verifyResult.Errors, "; ")).
			WithDetails(verifyResult.Errors...)
	}
	return verifyResult, nil
}
