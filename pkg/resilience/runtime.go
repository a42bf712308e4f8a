package resilience

// Options configures a Runtime.
type Options struct {
	// Breaker is the base configuration inherited by every category's breaker
	Breaker BreakerConfig
	// Executor is the retry and classification configuration
	Executor ExecutorConfig
	// MetricCapacity bounds each metric series; non-positive uses the default
	MetricCapacity int
}

// DefaultOptions returns options with the package defaults.
func DefaultOptions() Options {
	return Options{
		Breaker:        DefaultBreakerConfig(""),
		Executor:       DefaultExecutorConfig(),
		MetricCapacity: DefaultMetricCapacity,
	}
}

// Runtime bundles the layer's components. It is constructed explicitly
// and passed down to callers; there is no package-level instance.
type Runtime struct {
	Collector *Collector
	Breakers  *BreakerRegistry
	Alerts    *AlertManager
	Executor  *Executor
	Exporter  *Exporter
}

// NewRuntime wires a collector, breaker registry, alert manager,
// executor, and exporter from one set of options.
func NewRuntime(opts Options) *Runtime {
	collector := NewCollector(opts.MetricCapacity)
	breakers := NewBreakerRegistry(opts.Breaker)
	alerts := NewAlertManager()

	return &Runtime{
		Collector: collector,
		Breakers:  breakers,
		Alerts:    alerts,
		Executor:  NewExecutor(opts.Executor, breakers, collector, alerts),
		Exporter:  NewExporter(collector, breakers),
	}
}
