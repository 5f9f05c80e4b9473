package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsRetries(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return boom
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 4, calls) // initial attempt + 3 retries
}

func TestDoRecoversAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := &Config{
		MaxRetries:   5,
		InitialDelay: time.Hour, // never elapses; cancellation must win
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func() error {
		calls++
		return errors.New("always fails")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(2), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestDoIfRetryableStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := apperrors.New(apperrors.CodeVerifyFailed, "bad model")
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		calls++
		return permanent
	})
	assert.Equal(t, 1, calls)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeVerifyFailed))
}

func TestDoIfRetryableRetriesTransientError(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(2), func() error {
		calls++
		return apperrors.Retryable(apperrors.CodeTimeout, "verify timed out", errors.New("i/o timeout"))
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limited", errors.New("HTTP 429 too many requests"), true},
		{"timeout string", errors.New("operation timed out"), true},
		{"permanent", errors.New("invalid yaml: line 3"), false},
		{"tagged retryable", apperrors.Retryable(apperrors.CodeTimeout, "t", nil), true},
		{"tagged permanent", apperrors.New(apperrors.CodeDeployFailed, "d"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestVerifyConfigSchedule(t *testing.T) {
	cfg := VerifyConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	// 100ms * 4 = 400ms, * 4 = 1600ms
	assert.Equal(t, 4.0, cfg.Multiplier)
}
