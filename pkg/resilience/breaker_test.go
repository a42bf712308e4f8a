package resilience

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:              name,
		FailureThreshold:  3,
		RollingPeriod:     time.Second,
		CoolDown:          50 * time.Millisecond,
		HalfOpenMaxTrials: 1,
	}
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig("test"))

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())

	// Allow in closed state consumes nothing
	for i := 0; i < 10; i++ {
		assert.True(t, cb.Allow())
	}
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	var transitions []string
	config := testBreakerConfig("test")
	config.OnStateChange = func(name string, from, to CircuitState) {
		transitions = append(transitions, from.String()+">"+to.String())
	}
	cb := NewCircuitBreaker(config)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	// The transition fired exactly once
	assert.Equal(t, []string{"CLOSED>OPEN"}, transitions)
}

func TestCircuitBreaker_FailuresAgeOutOfRollingPeriod(t *testing.T) {
	config := testBreakerConfig("test")
	config.RollingPeriod = 60 * time.Millisecond
	cb := NewCircuitBreaker(config)

	cb.RecordFailure()
	cb.RecordFailure()
	time.Sleep(80 * time.Millisecond)

	// The two earlier failures no longer count toward the threshold
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_CoolDownToHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig("test"))

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	time.Sleep(60 * time.Millisecond)

	// First query after the cool-down admits a trial and moves to half-open
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	// Further queries before any record call are rejected, state unchanged
	assert.False(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig("test"))

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(60 * time.Millisecond)
	require.True(t, cb.Allow())
	require.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Stats().FailureCount)
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_ReleaseTrialReadmits(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig("test"))

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(60 * time.Millisecond)
	require.True(t, cb.Allow())
	require.Equal(t, StateHalfOpen, cb.State())
	require.False(t, cb.Allow())

	// Returning the abandoned slot admits the next caller without a
	// state change
	cb.ReleaseTrial()
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ReleaseTrialWhileClosedIsNoOp(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig("test"))

	cb.ReleaseTrial()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig("test"))

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(60 * time.Millisecond)
	require.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	// Cool-down restarted; a second wait admits another trial
	time.Sleep(60 * time.Millisecond)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_Stats(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig("secret-manager"))

	stats := cb.Stats()
	assert.Equal(t, "secret-manager", stats.Name)
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, "CLOSED", stats.StateName)
	assert.Nil(t, stats.LastFailureTime)

	cb.RecordSuccess()
	cb.RecordFailure()

	stats = cb.Stats()
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
	require.NotNil(t, stats.LastFailureTime)
	assert.WithinDuration(t, time.Now(), *stats.LastFailureTime, time.Second)
}

func TestCircuitBreaker_ConcurrentRecordsOpenOnce(t *testing.T) {
	transitions := 0
	config := testBreakerConfig("test")
	config.FailureThreshold = 10
	config.OnStateChange = func(name string, from, to CircuitState) {
		if to == StateOpen {
			transitions++
		}
	}
	cb := NewCircuitBreaker(config)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb.RecordFailure()
		}()
	}
	wg.Wait()

	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, 1, transitions)
}

func TestBreakerRegistry_IndependentCategories(t *testing.T) {
	registry := NewBreakerRegistry(testBreakerConfig(""))

	store := registry.Get("firestore:executions")
	secrets := registry.Get("secret-manager")
	require.NotSame(t, store, secrets)

	// Same category returns the same instance
	assert.Same(t, store, registry.Get("firestore:executions"))

	for i := 0; i < 3; i++ {
		store.RecordFailure()
	}
	assert.Equal(t, StateOpen, store.State())
	assert.Equal(t, StateClosed, secrets.State())
	assert.True(t, secrets.Allow())

	snapshot := registry.Snapshot()
	assert.Len(t, snapshot, 2)
	assert.Equal(t, "OPEN", snapshot["firestore:executions"].StateName)
	assert.Equal(t, "CLOSED", snapshot["secret-manager"].StateName)
}
