package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/boardwatch/boardwatch/pkg/errors"
)

// flakyDependency simulates an external dependency that can be forced
// to fail and tracks how many times it was invoked.
type flakyDependency struct {
	mutex        sync.Mutex
	calls        int
	forceFailure bool
}

func (d *flakyDependency) call(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.calls++
	if d.forceFailure {
		return apperrors.NewUnavailableError("test-store")
	}
	return nil
}

func (d *flakyDependency) setFailing(failing bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.forceFailure = failing
}

func (d *flakyDependency) callCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.calls
}

// TestIntegration_BreakerLifecycle walks the full trip/cool-down/recover
// cycle through the executor against a single category.
func TestIntegration_BreakerLifecycle(t *testing.T) {
	opts := DefaultOptions()
	opts.Breaker = BreakerConfig{
		FailureThreshold:  3,
		RollingPeriod:     time.Second,
		CoolDown:          50 * time.Millisecond,
		HalfOpenMaxTrials: 1,
	}
	opts.Executor = ExecutorConfig{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
	}
	rt := NewRuntime(opts)

	dep := &flakyDependency{}
	dep.setFailing(true)

	execute := func() error {
		return rt.Executor.Execute(context.Background(), "store op", "test-store", dep.call)
	}

	// Three consecutive failed calls trip the breaker
	for i := 0; i < 3; i++ {
		require.Error(t, execute())
	}
	cb := rt.Breakers.Get("test-store")
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	// While open the dependency is never invoked
	callsBefore := dep.callCount()
	err := execute()
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.Equal(t, callsBefore, dep.callCount())

	// Past the cool-down a trial goes through and recovery closes the circuit
	dep.setFailing(false)
	time.Sleep(60 * time.Millisecond)

	require.NoError(t, execute())
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Stats().FailureCount)
}

// TestIntegration_CategoriesDoNotInterfere verifies that one failing
// category neither blocks nor slows an independent one.
func TestIntegration_CategoriesDoNotInterfere(t *testing.T) {
	rt := newTestRuntime(t)

	failing := &flakyDependency{}
	failing.setFailing(true)
	healthy := &flakyDependency{}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rt.Executor.Execute(context.Background(), "op", "firestore:executions", failing.call)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rt.Executor.Execute(context.Background(), "op", "secret-manager", healthy.call))
		}()
	}
	wg.Wait()

	assert.Equal(t, StateOpen, rt.Breakers.Get("firestore:executions").State())
	assert.Equal(t, StateClosed, rt.Breakers.Get("secret-manager").State())
	assert.Equal(t, 5, healthy.callCount())
}

// TestIntegration_ExhaustionAlertFlow checks the executor-to-alerts
// wiring end to end, including operator resolution.
func TestIntegration_ExhaustionAlertFlow(t *testing.T) {
	rt := newTestRuntime(t)

	dep := &flakyDependency{}
	dep.setFailing(true)

	err := rt.Executor.Execute(context.Background(), "deliver digest", "telegram:send", dep.call)
	require.Error(t, err)
	assert.Equal(t, 3, dep.callCount())

	unresolved := false
	alerts := rt.Alerts.List(AlertFilter{Source: "telegram:send", Resolved: &unresolved})
	require.Len(t, alerts, 1)
	assert.Equal(t, LevelError, alerts[0].Level)

	require.True(t, rt.Alerts.Resolve(alerts[0].ID, "telegram reachable again"))

	summary := rt.Alerts.Summary(AlertFilter{Source: "telegram:send"})
	assert.Equal(t, 1, summary.Resolved)
	assert.Equal(t, 0, summary.Unresolved)
}

// TestIntegration_MetricsReflectMixedTraffic drives concurrent
// successes and failures and cross-checks the export surfaces.
func TestIntegration_MetricsReflectMixedTraffic(t *testing.T) {
	rt := newTestRuntime(t)

	healthy := &flakyDependency{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, rt.Executor.Execute(context.Background(), "op", "store:executions", healthy.call))
		}()
	}
	wg.Wait()

	success := rt.Collector.GetStats("operation_success", 0)
	require.NotNil(t, success)
	assert.Equal(t, 10, success.Count)
	assert.Equal(t, float64(10), success.Sum)

	text := rt.Exporter.Text(0)
	assert.Contains(t, text, "operation_success_count 10\n")
	assert.Contains(t, text, "circuit_breaker_store_executions_state 0\n")
}
