package resilience

import (
	"sort"
	"sync"
	"time"
)

// DefaultMetricCapacity is the per-name retention bound when none is configured.
const DefaultMetricCapacity = 1000

// Metric is a single recorded observation. Immutable once recorded.
type Metric struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Labels    map[string]string `json:"labels,omitempty"`
	Unit      string            `json:"unit,omitempty"`
}

// MetricStats holds aggregate values computed over a metric series.
// Derived on each query, never stored.
type MetricStats struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Avg    float64 `json:"avg"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Latest float64 `json:"latest"`
}

// series is a fixed-capacity ring buffer of metric points.
type series struct {
	mutex  sync.Mutex
	points []Metric
	head   int
	size   int
}

func newSeries(capacity int) *series {
	return &series{points: make([]Metric, capacity)}
}

func (s *series) append(m Metric) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.size < len(s.points) {
		s.points[(s.head+s.size)%len(s.points)] = m
		s.size++
		return
	}

	// Full: overwrite the oldest point
	s.points[s.head] = m
	s.head = (s.head + 1) % len(s.points)
}

// snapshot returns a chronological copy of the buffered points.
func (s *series) snapshot() []Metric {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make([]Metric, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.points[(s.head+i)%len(s.points)]
	}
	return out
}

// Collector is a process-local append-only time series store with
// per-name bounded retention. Writers never block on readers: reads
// operate on a point-in-time copy of the one series being touched.
type Collector struct {
	mutex    sync.RWMutex
	series   map[string]*series
	capacity int
}

// NewCollector creates a metrics collector. A non-positive capacity
// falls back to DefaultMetricCapacity.
func NewCollector(capacity int) *Collector {
	if capacity <= 0 {
		capacity = DefaultMetricCapacity
	}
	return &Collector{
		series:   make(map[string]*series),
		capacity: capacity,
	}
}

func (c *Collector) getOrCreate(name string) *series {
	c.mutex.RLock()
	s, ok := c.series[name]
	c.mutex.RUnlock()
	if ok {
		return s
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if s, ok = c.series[name]; ok {
		return s
	}
	s = newSeries(c.capacity)
	c.series[name] = s
	return s
}

// Record appends an observation to the named series. Once the series
// exceeds its retention capacity the oldest points are dropped.
func (c *Collector) Record(name string, value float64, labels map[string]string, unit string) {
	c.getOrCreate(name).append(Metric{
		Name:      name,
		Value:     value,
		Timestamp: time.Now(),
		Labels:    copyLabels(labels),
		Unit:      unit,
	})
}

// Increment records a counter-style observation.
func (c *Collector) Increment(name string, amount float64, labels map[string]string) {
	c.Record(name, amount, labels, "count")
}

// GetMetrics returns the retained points for a name in chronological
// order (oldest first). A positive limit keeps only the most recent
// points, still in chronological order.
func (c *Collector) GetMetrics(name string, limit int) []Metric {
	c.mutex.RLock()
	s, ok := c.series[name]
	c.mutex.RUnlock()
	if !ok {
		return nil
	}

	points := s.snapshot()
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	return points
}

// GetStats computes aggregate statistics over a series. A positive
// window restricts the computation to points with timestamps in
// [now-window, now]. Returns nil when no points qualify.
func (c *Collector) GetStats(name string, window time.Duration) *MetricStats {
	c.mutex.RLock()
	s, ok := c.series[name]
	c.mutex.RUnlock()
	if !ok {
		return nil
	}

	points := s.snapshot()

	var cutoff time.Time
	if window > 0 {
		cutoff = time.Now().Add(-window)
	}

	stats := &MetricStats{}
	for _, p := range points {
		if window > 0 && p.Timestamp.Before(cutoff) {
			continue
		}
		if stats.Count == 0 {
			stats.Min = p.Value
			stats.Max = p.Value
		} else {
			if p.Value < stats.Min {
				stats.Min = p.Value
			}
			if p.Value > stats.Max {
				stats.Max = p.Value
			}
		}
		stats.Count++
		stats.Sum += p.Value
		stats.Latest = p.Value
	}

	if stats.Count == 0 {
		return nil
	}
	stats.Avg = stats.Sum / float64(stats.Count)
	return stats
}

// MetricNames returns all names with at least one recorded point,
// sorted for stable output.
func (c *Collector) MetricNames() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	names := make([]string, 0, len(c.series))
	for name := range c.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
