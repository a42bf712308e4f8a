package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/boardwatch/boardwatch/pkg/errors"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()

	opts := DefaultOptions()
	opts.Breaker = BreakerConfig{
		FailureThreshold:  3,
		RollingPeriod:     time.Second,
		CoolDown:          50 * time.Millisecond,
		HalfOpenMaxTrials: 1,
	}
	opts.Executor = ExecutorConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		MaxDelay:          10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
	return NewRuntime(opts)
}

func TestExecutor_Success(t *testing.T) {
	rt := newTestRuntime(t)

	calls := 0
	err := rt.Executor.Execute(context.Background(), "fetch", "scraper:ptt", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	stats := rt.Collector.GetStats("operation_success", 0)
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Count)
	assert.NotNil(t, rt.Collector.GetStats("operation_duration_ms", 0))

	breaker := rt.Breakers.Get("scraper:ptt").Stats()
	assert.Equal(t, 1, breaker.SuccessCount)
	assert.Equal(t, 0, breaker.FailureCount)
}

func TestExecutor_RetryableFailuresThenSuccess(t *testing.T) {
	rt := newTestRuntime(t)

	calls := 0
	err := rt.Executor.Execute(context.Background(), "send", "telegram:send", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperrors.NewTimeoutError("send")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	// Exactly one success metric, zero breaker failures: intermediate
	// retries are transparent to the breaker
	success := rt.Collector.GetStats("operation_success", 0)
	require.NotNil(t, success)
	assert.Equal(t, 1, success.Count)
	assert.Nil(t, rt.Collector.GetStats("operation_failure", 0))

	breaker := rt.Breakers.Get("telegram:send").Stats()
	assert.Equal(t, 0, breaker.FailureCount)
	assert.Equal(t, StateClosed, breaker.State)

	// The recovered call is visible to operators through the attempts series
	attempts := rt.Collector.GetStats("operation_attempts", 0)
	require.NotNil(t, attempts)
	assert.Equal(t, float64(3), attempts.Latest)
}

func TestExecutor_FatalErrorSingleAttempt(t *testing.T) {
	rt := newTestRuntime(t)

	calls := 0
	cause := apperrors.NewValidationError("bad chat id")
	err := rt.Executor.Execute(context.Background(), "send", "telegram:send", func(ctx context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var fatal *FatalOperationError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "telegram:send", fatal.Category)
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, 1, rt.Breakers.Get("telegram:send").Stats().FailureCount)
	failure := rt.Collector.GetStats("operation_failure", 0)
	require.NotNil(t, failure)
	assert.Equal(t, 1, failure.Count)

	// Fatal failures do not raise exhaustion alerts
	assert.Empty(t, rt.Alerts.List(AlertFilter{}))
}

func TestExecutor_RetryExhaustionRaisesAlert(t *testing.T) {
	rt := newTestRuntime(t)

	calls := 0
	err := rt.Executor.Execute(context.Background(), "fetch", "scraper:ptt", func(ctx context.Context) error {
		calls++
		return apperrors.NewExternalError("ptt", "503 from board index")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Contains(t, err.Error(), "after 3 attempts")

	// One breaker failure for the whole call, not one per attempt
	assert.Equal(t, 1, rt.Breakers.Get("scraper:ptt").Stats().FailureCount)

	alerts := rt.Alerts.List(AlertFilter{})
	require.Len(t, alerts, 1)
	assert.Equal(t, LevelError, alerts[0].Level)
	assert.Equal(t, "scraper:ptt", alerts[0].Source)
}

func TestExecutor_OpenCircuitRejectsWithoutInvoking(t *testing.T) {
	rt := newTestRuntime(t)

	cb := rt.Breakers.Get("store:configurations")
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, StateOpen, cb.State())

	calls := 0
	err := rt.Executor.Execute(context.Background(), "list configs", "store:configurations", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.Contains(t, err.Error(), "store:configurations")
	assert.Equal(t, 0, calls)

	rejected := rt.Collector.GetStats("operation_rejected", 0)
	require.NotNil(t, rejected)
	assert.Equal(t, 1, rejected.Count)
}

func TestExecutor_ContextCancellationStopsRetries(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := rt.Executor.Execute(ctx, "fetch", "scraper:ptt", func(ctx context.Context) error {
		calls++
		cancel()
		return apperrors.NewTimeoutError("fetch")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)

	// An abandoned call records no misleading outcome
	assert.Nil(t, rt.Collector.GetStats("operation_success", 0))
	assert.Nil(t, rt.Collector.GetStats("operation_failure", 0))
	assert.Equal(t, 0, rt.Breakers.Get("scraper:ptt").Stats().FailureCount)
}

func TestExecutor_AbandonedHalfOpenTrialDoesNotWedgeBreaker(t *testing.T) {
	rt := newTestRuntime(t)

	cb := rt.Breakers.Get("scraper:ptt")
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond)

	// The admitted trial is abandoned before the operation runs
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := rt.Executor.Execute(cancelled, "fetch", "scraper:ptt", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, calls)
	require.Equal(t, StateHalfOpen, cb.State())

	// The slot was returned: a healthy call is admitted and closes
	// the circuit instead of being rejected forever
	err = rt.Executor.Execute(context.Background(), "fetch", "scraper:ptt", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecutor_MidAttemptCancellationReleasesHalfOpenTrial(t *testing.T) {
	rt := newTestRuntime(t)

	cb := rt.Breakers.Get("telegram:send")
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(60 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	err := rt.Executor.Execute(ctx, "send", "telegram:send", func(ctx context.Context) error {
		cancel()
		return apperrors.NewTimeoutError("send")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateHalfOpen, cb.State())

	err = rt.Executor.Execute(context.Background(), "send", "telegram:send", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecutor_NestedCategoryFaultLeavesOuterBreakerAlone(t *testing.T) {
	rt := newTestRuntime(t)

	inner := rt.Breakers.Get("secrets:telegram-token")
	for i := 0; i < 3; i++ {
		inner.RecordFailure()
	}
	require.Equal(t, StateOpen, inner.State())

	// The delivery operation fails only because its nested token
	// lookup was rejected by the secrets breaker
	err := rt.Executor.Execute(context.Background(), "send articles", "telegram:send", func(ctx context.Context) error {
		_, err := rt.Executor.ExecuteWithResult(ctx, "get token", "secrets:telegram-token", func(ctx context.Context) (interface{}, error) {
			return "token", nil
		})
		return err
	})

	var fatal *FatalOperationError
	require.ErrorAs(t, err, &fatal)
	assert.True(t, IsCircuitOpen(err))

	// The fault belongs to the secrets category; the delivery breaker
	// records nothing and stays closed
	outer := rt.Breakers.Get("telegram:send").Stats()
	assert.Equal(t, 0, outer.FailureCount)
	assert.Equal(t, StateClosed, outer.State)
}

func TestExecutor_CustomClassifier(t *testing.T) {
	rt := newTestRuntime(t)
	sentinel := errors.New("flaky but plain")

	config := ExecutorConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Classifier: func(err error) bool {
			return errors.Is(err, sentinel)
		},
	}
	executor := NewExecutor(config, rt.Breakers, rt.Collector, rt.Alerts)

	calls := 0
	err := executor.Execute(context.Background(), "probe", "custom", func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return sentinel
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestExecutor_ExecuteWithResult(t *testing.T) {
	rt := newTestRuntime(t)

	result, err := rt.Executor.ExecuteWithResult(context.Background(), "fetch token", "secrets:telegram-token", func(ctx context.Context) (interface{}, error) {
		return "bot-token", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "bot-token", result)

	_, err = rt.Executor.ExecuteWithResult(context.Background(), "fetch token", "secrets:telegram-token", func(ctx context.Context) (interface{}, error) {
		return nil, apperrors.NewValidationError("no source configured")
	})
	require.Error(t, err)
}

func TestExecutor_BackoffCappedAtMaxDelay(t *testing.T) {
	executor := NewExecutor(ExecutorConfig{
		MaxAttempts:       5,
		InitialDelay:      10 * time.Millisecond,
		MaxDelay:          25 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}, NewBreakerRegistry(DefaultBreakerConfig("")), NewCollector(0), NewAlertManager())

	assert.Equal(t, 10*time.Millisecond, executor.calculateDelay(1))
	assert.Equal(t, 20*time.Millisecond, executor.calculateDelay(2))
	assert.Equal(t, 25*time.Millisecond, executor.calculateDelay(3))
	assert.Equal(t, 25*time.Millisecond, executor.calculateDelay(4))
}
