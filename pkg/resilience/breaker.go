package resilience

import (
	"sync"
	"time"

	"github.com/boardwatch/boardwatch/pkg/logging"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - circuit is closed, operations are attempted
	StateClosed CircuitState = iota
	// StateOpen - circuit is open, operations are rejected
	StateOpen
	// StateHalfOpen - circuit is half-open, limited trial operations are allowed
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig holds configuration for a circuit breaker
type BreakerConfig struct {
	// Name of the breaker for logging and export, usually the operation category
	Name string
	// FailureThreshold is the number of failures within RollingPeriod that opens the circuit
	FailureThreshold int
	// RollingPeriod is the window over which failures are counted toward the threshold
	RollingPeriod time.Duration
	// CoolDown is how long the circuit stays open before permitting a trial
	CoolDown time.Duration
	// HalfOpenMaxTrials is the number of trial operations admitted while half-open
	HalfOpenMaxTrials int
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from, to CircuitState)
}

// DefaultBreakerConfig returns a breaker configuration with conservative defaults.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:              name,
		FailureThreshold:  5,
		RollingPeriod:     time.Minute,
		CoolDown:          30 * time.Second,
		HalfOpenMaxTrials: 1,
	}
}

// BreakerStats is a read-only snapshot of a breaker's state.
type BreakerStats struct {
	Name            string       `json:"name"`
	State           CircuitState `json:"-"`
	StateName       string       `json:"state"`
	FailureCount    int          `json:"failure_count"`
	SuccessCount    int          `json:"success_count"`
	LastFailureTime *time.Time   `json:"last_failure_time,omitempty"`
	LastStateChange time.Time    `json:"last_state_change"`
}

// CircuitBreaker is a per-category state machine that decides whether
// an operation against an unreliable dependency may be attempted.
// All state is guarded by one exclusive lock per instance; breakers
// for different categories never contend with each other.
type CircuitBreaker struct {
	name              string
	failureThreshold  int
	rollingPeriod     time.Duration
	coolDown          time.Duration
	halfOpenMaxTrials int
	onStateChange     func(name string, from, to CircuitState)

	mutex           sync.Mutex
	state           CircuitState
	failures        []time.Time
	successCount    int
	lastFailureTime time.Time
	lastStateChange time.Time
	halfOpenTrials  int

	logger *logging.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RollingPeriod <= 0 {
		config.RollingPeriod = time.Minute
	}
	if config.CoolDown <= 0 {
		config.CoolDown = 30 * time.Second
	}
	if config.HalfOpenMaxTrials <= 0 {
		config.HalfOpenMaxTrials = 1
	}

	return &CircuitBreaker{
		name:              config.Name,
		failureThreshold:  config.FailureThreshold,
		rollingPeriod:     config.RollingPeriod,
		coolDown:          config.CoolDown,
		halfOpenMaxTrials: config.HalfOpenMaxTrials,
		onStateChange:     config.OnStateChange,
		state:             StateClosed,
		lastStateChange:   time.Now(),
		logger:            logging.GetLogger(),
	}
}

// Allow reports whether an attempt may proceed under the current state.
// While open, the elapsed cool-down moves the breaker to half-open as a
// side effect; the transition happens at most once per open period no
// matter how many callers query concurrently. While half-open, at most
// HalfOpenMaxTrials callers are admitted until a record call settles
// the state.
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(cb.lastStateChange) < cb.coolDown {
			return false
		}
		cb.setState(StateHalfOpen, now)
		cb.halfOpenTrials++
		return true
	case StateHalfOpen:
		if cb.halfOpenTrials >= cb.halfOpenMaxTrials {
			return false
		}
		cb.halfOpenTrials++
		return true
	default:
		return false
	}
}

// ReleaseTrial returns an admitted trial slot that will never be
// settled by a record call, such as an attempt abandoned by context
// cancellation. Without the release an abandoned trial would hold its
// half-open slot forever and the breaker could never close again.
func (cb *CircuitBreaker) ReleaseTrial() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateHalfOpen && cb.halfOpenTrials > 0 {
		cb.halfOpenTrials--
	}
}

// RecordSuccess records a successful attempt. A success while
// half-open closes the circuit and resets the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.successCount++

	if cb.state == StateHalfOpen {
		cb.setState(StateClosed, time.Now())
	}
}

// RecordFailure records a failed attempt. Enough failures within the
// rolling period open the circuit; a failure while half-open reopens
// it and restarts the cool-down.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	cb.lastFailureTime = now

	switch cb.state {
	case StateClosed:
		cb.failures = append(cb.failures, now)
		cb.pruneFailures(now)
		if len(cb.failures) >= cb.failureThreshold {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.failures = append(cb.failures, now)
		cb.setState(StateOpen, now)
	case StateOpen:
		cb.failures = append(cb.failures, now)
		cb.pruneFailures(now)
	}
}

// Stats returns a read-only snapshot for external reporting.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	stats := BreakerStats{
		Name:            cb.name,
		State:           cb.state,
		StateName:       cb.state.String(),
		FailureCount:    len(cb.failures),
		SuccessCount:    cb.successCount,
		LastStateChange: cb.lastStateChange,
	}
	if !cb.lastFailureTime.IsZero() {
		t := cb.lastFailureTime
		stats.LastFailureTime = &t
	}
	return stats
}

// State returns the current state without consuming a trial slot.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// pruneFailures drops failure timestamps outside the rolling period.
// Caller must hold the mutex.
func (cb *CircuitBreaker) pruneFailures(now time.Time) {
	cutoff := now.Add(-cb.rollingPeriod)
	idx := 0
	for idx < len(cb.failures) && cb.failures[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		cb.failures = append(cb.failures[:0], cb.failures[idx:]...)
	}
}

// setState transitions the breaker. Caller must hold the mutex.
func (cb *CircuitBreaker) setState(state CircuitState, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.lastStateChange = now
	cb.halfOpenTrials = 0

	if state == StateClosed {
		cb.failures = cb.failures[:0]
	}

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, state)
	}

	cb.logger.Info("Circuit breaker state changed",
		"name", cb.name,
		"from", prev.String(),
		"to", state.String(),
	)
}

// BreakerRegistry owns one circuit breaker per operation category.
// Breakers are created on first use from a shared base configuration.
type BreakerRegistry struct {
	mutex    sync.RWMutex
	breakers map[string]*CircuitBreaker
	base     BreakerConfig
}

// NewBreakerRegistry creates a registry whose breakers inherit the base
// configuration (the Name field is replaced per category).
func NewBreakerRegistry(base BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		base:     base,
	}
}

// Get returns the breaker for a category, creating it if needed.
func (r *BreakerRegistry) Get(category string) *CircuitBreaker {
	r.mutex.RLock()
	cb, ok := r.breakers[category]
	r.mutex.RUnlock()
	if ok {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if cb, ok = r.breakers[category]; ok {
		return cb
	}

	config := r.base
	config.Name = category
	cb = NewCircuitBreaker(config)
	r.breakers[category] = cb
	return cb
}

// Snapshot returns stats for every registered breaker keyed by category.
func (r *BreakerRegistry) Snapshot() map[string]BreakerStats {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make(map[string]BreakerStats, len(r.breakers))
	for category, cb := range r.breakers {
		out[category] = cb.Stats()
	}
	return out
}
