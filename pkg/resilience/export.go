package resilience

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Exporter renders the collector's series and the breaker registry's
// snapshots for the reporting views a collaborator may expose.
type Exporter struct {
	collector *Collector
	breakers  *BreakerRegistry
}

// NewExporter creates an exporter over a collector and registry.
func NewExporter(collector *Collector, breakers *BreakerRegistry) *Exporter {
	return &Exporter{collector: collector, breakers: breakers}
}

// MetricExport is the JSON export shape for one metric name.
type MetricExport struct {
	Points []Metric     `json:"points"`
	Stats  *MetricStats `json:"stats"`
}

// Export is the JSON export shape for the whole layer.
type Export struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Metrics     map[string]MetricExport `json:"metrics"`
	Breakers    map[string]BreakerStats `json:"breakers"`
}

// JSON renders the recent points and computed stats per metric name
// plus a snapshot of every breaker. recentLimit bounds the points per
// name; window, when positive, restricts the stats computation.
func (e *Exporter) JSON(recentLimit int, window time.Duration) ([]byte, error) {
	export := Export{
		GeneratedAt: time.Now(),
		Metrics:     make(map[string]MetricExport),
		Breakers:    e.breakers.Snapshot(),
	}

	for _, name := range e.collector.MetricNames() {
		export.Metrics[name] = MetricExport{
			Points: e.collector.GetMetrics(name, recentLimit),
			Stats:  e.collector.GetStats(name, window),
		}
	}

	return json.MarshalIndent(export, "", "  ")
}

// Text renders a line-oriented view: one block per metric name with
// _count/_sum/_avg/_min/_max/_latest suffixed series, then one block
// per breaker with a numeric state (0=closed, 1=half-open, 2=open) and
// its failure count.
func (e *Exporter) Text(window time.Duration) string {
	var b strings.Builder

	for _, name := range e.collector.MetricNames() {
		stats := e.collector.GetStats(name, window)
		if stats == nil {
			continue
		}
		base := sanitizeMetricName(name)
		fmt.Fprintf(&b, "%s_count %d\n", base, stats.Count)
		fmt.Fprintf(&b, "%s_sum %s\n", base, formatValue(stats.Sum))
		fmt.Fprintf(&b, "%s_avg %s\n", base, formatValue(stats.Avg))
		fmt.Fprintf(&b, "%s_min %s\n", base, formatValue(stats.Min))
		fmt.Fprintf(&b, "%s_max %s\n", base, formatValue(stats.Max))
		fmt.Fprintf(&b, "%s_latest %s\n", base, formatValue(stats.Latest))
		b.WriteString("\n")
	}

	snapshot := e.breakers.Snapshot()
	categories := make([]string, 0, len(snapshot))
	for category := range snapshot {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		stats := snapshot[category]
		base := "circuit_breaker_" + sanitizeMetricName(category)
		fmt.Fprintf(&b, "%s_state %d\n", base, stateCode(stats.State))
		fmt.Fprintf(&b, "%s_failure_count %d\n", base, stats.FailureCount)
		b.WriteString("\n")
	}

	return b.String()
}

// stateCode is the wire encoding of breaker states. It is pinned
// independently of the CircuitState values: 0=closed, 1=half-open,
// 2=open.
func stateCode(state CircuitState) int {
	switch state {
	case StateClosed:
		return 0
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return -1
	}
}

func sanitizeMetricName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func formatValue(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", v), "0"), ".")
}
