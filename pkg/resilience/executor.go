package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	apperrors "github.com/boardwatch/boardwatch/pkg/errors"
	"github.com/boardwatch/boardwatch/pkg/logging"
)

// CircuitOpenError indicates the breaker for a category rejected the
// call before any attempt was made. Safe to treat as temporary
// backpressure.
type CircuitOpenError struct {
	Category string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker for '%s' is open; operation rejected", e.Category)
}

// IsCircuitOpen checks if an error is a circuit-open rejection
func IsCircuitOpen(err error) bool {
	var coErr *CircuitOpenError
	return errors.As(err, &coErr)
}

// RetryExhaustedError wraps an error that stayed retryable through the
// whole attempt budget.
type RetryExhaustedError struct {
	OperationName string
	Category      string
	Attempts      int
	Cause         error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("operation '%s' failed after %d attempts: %v", e.OperationName, e.Attempts, e.Cause)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Cause
}

// FatalOperationError wraps an error classified as non-retryable,
// propagated after exactly one attempt.
type FatalOperationError struct {
	OperationName string
	Category      string
	Cause         error
}

func (e *FatalOperationError) Error() string {
	return fmt.Sprintf("operation '%s' failed: %v", e.OperationName, e.Cause)
}

func (e *FatalOperationError) Unwrap() error {
	return e.Cause
}

// Classifier decides whether an error is worth retrying.
type Classifier func(error) bool

// ExecutorConfig holds retry and classification configuration
type ExecutorConfig struct {
	// MaxAttempts is the total attempt budget per call, including the first
	MaxAttempts int
	// InitialDelay is the backoff base delay
	InitialDelay time.Duration
	// MaxDelay caps the backoff delay
	MaxDelay time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64
	// Jitter adds randomness to delays to avoid thundering herd
	Jitter bool
	// Classifier determines if an error is retryable; defaults to the
	// error-kind tags in pkg/errors
	Classifier Classifier
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultExecutorConfig returns the default retry configuration.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		Classifier:        apperrors.IsRetryable,
	}
}

// Executor is the single choke point through which calling code
// invokes operations against unreliable dependencies. Each call
// consults the category's circuit breaker, attempts the operation,
// classifies failures, retries transient ones with backoff, and feeds
// the outcome into the metrics collector, the breaker, and (on
// exhaustion) the alert manager.
type Executor struct {
	config    ExecutorConfig
	breakers  *BreakerRegistry
	collector *Collector
	alerts    *AlertManager
	logger    *logging.Logger
}

// NewExecutor creates an executor wired to the given registry,
// collector, and alert manager.
func NewExecutor(config ExecutorConfig, breakers *BreakerRegistry, collector *Collector, alerts *AlertManager) *Executor {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 10 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}
	if config.Classifier == nil {
		config.Classifier = apperrors.IsRetryable
	}

	return &Executor{
		config:    config,
		breakers:  breakers,
		collector: collector,
		alerts:    alerts,
		logger:    logging.GetLogger(),
	}
}

// Execute runs an operation against the named category. The breaker is
// consulted first; a rejected call returns CircuitOpenError without
// invoking the operation. Retryable failures are retried with
// exponential backoff up to the attempt budget. The breaker sees one
// failure per ultimately failed call, never one per attempt.
func (e *Executor) Execute(ctx context.Context, operationName, category string, operation func(context.Context) error) error {
	cb := e.breakers.Get(category)
	labels := map[string]string{"operation": operationName, "category": category}

	if !cb.Allow() {
		e.collector.Increment("operation_rejected", 1, labels)
		e.logger.Warn("Operation rejected by open circuit",
			"operation", operationName,
			"category", category,
		)
		return &CircuitOpenError{Category: category}
	}

	var lastErr error

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			// Abandoned before the attempt ran: no outcome to record,
			// but any half-open trial slot must be returned
			cb.ReleaseTrial()
			return ctx.Err()
		}

		start := time.Now()
		err := operation(ctx)
		duration := time.Since(start)

		if err == nil {
			cb.RecordSuccess()
			e.collector.Increment("operation_success", 1, labels)
			e.collector.Record("operation_duration_ms", float64(duration.Milliseconds()), labels, "ms")
			e.collector.Record("operation_attempts", float64(attempt), labels, "count")
			if attempt > 1 {
				e.logger.Info("Operation succeeded after retry",
					"operation", operationName,
					"category", category,
					"attempt", attempt,
				)
			}
			return nil
		}

		if ctx.Err() != nil {
			// The attempt was cut short by cancellation; recording it as a
			// dependency failure would be misleading
			cb.ReleaseTrial()
			return ctx.Err()
		}

		lastErr = err

		if !e.config.Classifier(err) {
			e.chargeBreaker(cb, category, err)
			e.collector.Increment("operation_failure", 1, withOutcome(labels, "fatal"))
			e.logger.Error("Operation failed with non-retryable error",
				"operation", operationName,
				"category", category,
				"error", err.Error(),
			)
			return &FatalOperationError{OperationName: operationName, Category: category, Cause: err}
		}

		if attempt == e.config.MaxAttempts {
			break
		}

		delay := e.calculateDelay(attempt)

		e.logger.Debug("Operation failed, retrying",
			"operation", operationName,
			"category", category,
			"error", err.Error(),
			"attempt", attempt,
			"max_attempts", e.config.MaxAttempts,
			"delay", delay,
		)

		if e.config.OnRetry != nil {
			e.config.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			cb.ReleaseTrial()
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	// Retries exhausted: one breaker failure for the whole call
	e.chargeBreaker(cb, category, lastErr)
	e.collector.Increment("operation_failure", 1, withOutcome(labels, "exhausted"))

	e.logger.Error("Operation failed after all retry attempts",
		"operation", operationName,
		"category", category,
		"attempts", e.config.MaxAttempts,
		"error", lastErr.Error(),
	)

	e.raiseExhaustionAlert(operationName, category, lastErr)

	return &RetryExhaustedError{
		OperationName: operationName,
		Category:      category,
		Attempts:      e.config.MaxAttempts,
		Cause:         lastErr,
	}
}

// ExecuteWithResult executes an operation that returns a result.
func (e *Executor) ExecuteWithResult(ctx context.Context, operationName, category string, operation func(context.Context) (interface{}, error)) (interface{}, error) {
	var result interface{}
	err := e.Execute(ctx, operationName, category, func(ctx context.Context) error {
		var opErr error
		result, opErr = operation(ctx)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// chargeBreaker records a failure on the category's breaker unless a
// nested executor call already attributed it to another category. A
// secrets outage inside a delivery operation must not open the
// delivery breaker; the nested call charged its own breaker.
func (e *Executor) chargeBreaker(cb *CircuitBreaker, category string, err error) {
	if foreignCategory(err, category) {
		cb.ReleaseTrial()
		return
	}
	cb.RecordFailure()
}

// foreignCategory reports whether the error chain carries a resilience
// error attributed to a different category.
func foreignCategory(err error, category string) bool {
	var coErr *CircuitOpenError
	if errors.As(err, &coErr) {
		return coErr.Category != category
	}
	var reErr *RetryExhaustedError
	if errors.As(err, &reErr) {
		return reErr.Category != category
	}
	var foErr *FatalOperationError
	if errors.As(err, &foErr) {
		return foErr.Category != category
	}
	return false
}

// raiseExhaustionAlert is best-effort: an alerting failure is logged
// and never masks the operation error being propagated.
func (e *Executor) raiseExhaustionAlert(operationName, category string, cause error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Failed to raise exhaustion alert",
				"operation", operationName,
				"category", category,
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()

	e.alerts.Trigger(LevelError,
		fmt.Sprintf("Operation '%s' exhausted retries", operationName),
		cause.Error(),
		category,
		Metadata{
			"operation": MetaString(operationName),
			"attempts":  MetaNumber(float64(e.config.MaxAttempts)),
		},
	)
}

func (e *Executor) calculateDelay(attempt int) time.Duration {
	delay := float64(e.config.InitialDelay) * math.Pow(e.config.BackoffMultiplier, float64(attempt-1))

	if delay > float64(e.config.MaxDelay) {
		delay = float64(e.config.MaxDelay)
	}

	if e.config.Jitter {
		jitter := rand.Float64() * 0.1 * delay // 10% jitter
		delay += jitter
	}

	return time.Duration(delay)
}

func withOutcome(labels map[string]string, outcome string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out["outcome"] = outcome
	return out
}
