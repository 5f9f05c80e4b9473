package cortex

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chinmayajena/sundaygraph/pkg/adapters/warehouse"
)

// QuestionResult records one judged question.
type QuestionResult struct {
	Question      string   `json:"question"`
	Passed        bool     `json:"passed"`
	SQL           string   `json:"sql,omitempty"`
	Answer        string   `json:"answer,omitempty"`
	LatencyMS     float64  `json:"latency_ms"`
	FailureReason string   `json:"failure_reason,omitempty"`
	MissingTables []string `json:"missing_tables,omitempty"`
}

// RunResult aggregates a full regression pass.
type RunResult struct {
	ViewFQN        string           `json:"view_fqn"`
	TotalQuestions int              `json:"total_questions"`
	Passed         int              `json:"passed"`
	Failed         int              `json:"failed"`
	OverallPass    bool             `json:"overall_pass"`
	TotalLatencyMS float64          `json:"total_latency_ms"`
	Results        []QuestionResult `json:"results"`
}

// Runner executes question sets through the warehouse's analytics
// endpoint.
type Runner struct {
	adapter         warehouse.Adapter
	logger          *zap.Logger
	questionTimeout time.Duration
}

// NewRunner creates a regression runner. questionTimeout bounds each
// individual ask call.
func NewRunner(adapter warehouse.Adapter, questionTimeout time.Duration, logger *zap.Logger) *Runner {
	if questionTimeout <= 0 {
		questionTimeout = 60 * time.Second
	}
	return &Runner{adapter: adapter, logger: logger.Named("cortex"), questionTimeout: questionTimeout}
}

// Run executes every question sequentially. Cancellation is observed
// between questions: an in-flight ask call completes, then the loop
// stops with ctx.Err().
func (r *Runner) Run(ctx context.Context, viewFQN string, set *QuestionSet) (*RunResult, error) {
	result := &RunResult{
		ViewFQN:        viewFQN,
		TotalQuestions: len(set.Questions),
		OverallPass:    true,
	}

	for _, question := range set.Questions {
		// Cancellation checkpoint between questions.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		qr := r.runQuestion(ctx, viewFQN, question)
		result.Results = append(result.Results, qr)
		result.TotalLatencyMS += qr.LatencyMS
		if qr.Passed {
			result.Passed++
		} else {
			result.Failed++
			result.OverallPass = false
		}
	}

	r.logger.Info("regression run complete",
		zap.String("view", viewFQN),
		zap.Int("passed", result.Passed),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (r *Runner) runQuestion(ctx context.Context, viewFQN string, q Question) QuestionResult {
	askCtx, cancel := context.WithTimeout(ctx, r.questionTimeout)
	defer cancel()

	started := time.Now()
	response, err := r.adapter.Ask(askCtx, viewFQN, q.Question)
	elapsed := float64(time.Since(started).Milliseconds())

	if err != nil {
		return QuestionResult{
			Question:      q.Question,
			Passed:        false,
			LatencyMS:     elapsed,
			FailureReason: fmt.Sprintf("ask failed: %v", err),
		}
	}

	latency := response.LatencyMS
	if latency == 0 {
		latency = elapsed
	}

	qr := QuestionResult{
		Question:  q.Question,
		Passed:    true,
		SQL:       response.SQL,
		Answer:    response.Answer,
		LatencyMS: latency,
	}

	var reasons []string

	if len(q.ExpectedTables) > 0 {
		sqlLower := strings.ToLower(response.SQL)
		for _, table := range q.ExpectedTables {
			if !strings.Contains(sqlLower, strings.ToLower(table)) {
				qr.MissingTables = append(qr.MissingTables, table)
			}
		}
		if len(qr.MissingTables) > 0 {
			reasons = append(reasons, fmt.Sprintf("missing expected tables: %s", strings.Join(qr.MissingTables, ", ")))
		}
	}

	if len(q.ExpectedSQLPatterns) > 0 {
		var missing []string
		for _, pattern := range q.ExpectedSQLPatterns {
			if !strings.Contains(response.SQL, pattern) {
				missing = append(missing, pattern)
			}
		}
		if len(missing) > 0 {
			reasons = append(reasons, fmt.Sprintf("missing SQL patterns: %s", strings.Join(missing, ", ")))
		}
	}

	if q.ExpectedAnswerSnippet != "" {
		if !strings.Contains(strings.ToLower(response.Answer), strings.ToLower(q.ExpectedAnswerSnippet)) {
			reasons = append(reasons, fmt.Sprintf("answer snippet %q not found", q.ExpectedAnswerSnippet))
		}
	}

	if len(reasons) > 0 {
		qr.Passed = false
		qr.FailureReason = strings.Join(reasons, "; ")
	}
	return qr
}
