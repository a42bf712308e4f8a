// Package resilience makes every call to an unreliable external
// dependency safe, observable, and self-protecting.
//
// This package implements the following patterns:
//
// # Circuit Breaker Pattern
//
// One breaker per operation category prevents repeated attempts
// against a dependency that is currently failing and probes for
// recovery with half-open trial requests.
//
//	cb := resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig("scraper:ptt"))
//	if cb.Allow() {
//		err := callDependency()
//		if err != nil {
//			cb.RecordFailure()
//		} else {
//			cb.RecordSuccess()
//		}
//	}
//
// # Resilient Execution
//
// The Executor is the choke point callers go through: it consults the
// breaker, classifies failures by error-kind tag, retries transient
// ones with exponential backoff and jitter, records metrics, and
// raises an alert when retries are exhausted.
//
//	err := rt.Executor.Execute(ctx, "fetch board index", "scraper:ptt", func(ctx context.Context) error {
//		return scraper.Fetch(ctx, board)
//	})
//
// # Metrics Collection
//
// The Collector keeps a bounded ring buffer of recent points per
// metric name and answers windowed aggregate queries without ever
// blocking writers on readers.
//
//	rt.Collector.Record("articles_found", 12, map[string]string{"board": "Gossiping"}, "")
//	stats := rt.Collector.GetStats("articles_found", 5*time.Minute)
//
// # Alert Lifecycle
//
// The AlertManager owns triggered alerts for the process lifetime.
// Unknown IDs and double resolves are ordinary return values, not
// errors.
//
//	id := rt.Alerts.Trigger(resilience.LevelError, "Scrape failing", msg, "scraper:ptt", nil)
//	rt.Alerts.Resolve(id, "board back up")
//
// Construct everything through NewRuntime and pass the Runtime down;
// the package keeps no global state. All components are safe under
// true parallelism, with independent locks per breaker and per metric
// series so categories never contend with each other.
package resilience
