package resilience

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordAndStats(t *testing.T) {
	c := NewCollector(100)

	for _, v := range []float64{1, 2, 3, 4} {
		c.Record("x", v, nil, "")
	}

	stats := c.GetStats("x", 0)
	require.NotNil(t, stats)
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, float64(10), stats.Sum)
	assert.Equal(t, 2.5, stats.Avg)
	assert.Equal(t, float64(1), stats.Min)
	assert.Equal(t, float64(4), stats.Max)
	assert.Equal(t, float64(4), stats.Latest)
}

func TestCollector_StatsNilForUnknownName(t *testing.T) {
	c := NewCollector(100)
	assert.Nil(t, c.GetStats("never-recorded", 0))
	assert.Nil(t, c.GetMetrics("never-recorded", 0))
}

func TestCollector_ChronologicalOrderAndLimit(t *testing.T) {
	c := NewCollector(100)
	for i := 1; i <= 5; i++ {
		c.Record("seq", float64(i), nil, "")
	}

	points := c.GetMetrics("seq", 0)
	require.Len(t, points, 5)
	for i, p := range points {
		assert.Equal(t, float64(i+1), p.Value)
	}

	// Limit keeps the most recent points, still oldest-first
	limited := c.GetMetrics("seq", 2)
	require.Len(t, limited, 2)
	assert.Equal(t, float64(4), limited[0].Value)
	assert.Equal(t, float64(5), limited[1].Value)
}

func TestCollector_RetentionBound(t *testing.T) {
	c := NewCollector(10)
	for i := 1; i <= 11; i++ {
		c.Record("bounded", float64(i), nil, "")
	}

	points := c.GetMetrics("bounded", 0)
	require.Len(t, points, 10)
	// Oldest point evicted
	assert.Equal(t, float64(2), points[0].Value)
	assert.Equal(t, float64(11), points[9].Value)

	stats := c.GetStats("bounded", 0)
	require.NotNil(t, stats)
	assert.Equal(t, 10, stats.Count)
	assert.Equal(t, float64(2), stats.Min)
}

func TestCollector_WindowedStats(t *testing.T) {
	c := NewCollector(100)

	c.Record("windowed", 100, nil, "")
	time.Sleep(60 * time.Millisecond)
	c.Record("windowed", 1, nil, "")
	c.Record("windowed", 3, nil, "")

	recent := c.GetStats("windowed", 50*time.Millisecond)
	require.NotNil(t, recent)
	assert.Equal(t, 2, recent.Count)
	assert.Equal(t, float64(4), recent.Sum)
	assert.Equal(t, float64(3), recent.Latest)

	all := c.GetStats("windowed", 0)
	require.NotNil(t, all)
	assert.Equal(t, 3, all.Count)

	// A window that excludes every point yields nil
	time.Sleep(60 * time.Millisecond)
	assert.Nil(t, c.GetStats("windowed", time.Millisecond))
}

func TestCollector_IncrementAndLabels(t *testing.T) {
	c := NewCollector(100)
	c.Increment("ops", 1, map[string]string{"category": "scraper:ptt"})
	c.Increment("ops", 1, map[string]string{"category": "telegram:send"})

	points := c.GetMetrics("ops", 0)
	require.Len(t, points, 2)
	assert.Equal(t, "scraper:ptt", points[0].Labels["category"])
	assert.Equal(t, "count", points[0].Unit)

	// Labels are copied, not aliased
	labels := map[string]string{"k": "v"}
	c.Record("aliased", 1, labels, "")
	labels["k"] = "mutated"
	assert.Equal(t, "v", c.GetMetrics("aliased", 0)[0].Labels["k"])
}

func TestCollector_MetricNames(t *testing.T) {
	c := NewCollector(100)
	assert.Empty(t, c.MetricNames())

	c.Record("b", 1, nil, "")
	c.Record("a", 1, nil, "")
	c.Record("a", 2, nil, "")

	assert.Equal(t, []string{"a", "b"}, c.MetricNames())
}

func TestCollector_ConcurrentWriters(t *testing.T) {
	c := NewCollector(50)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			name := fmt.Sprintf("series_%d", worker%2)
			for j := 0; j < 100; j++ {
				c.Record(name, float64(j), nil, "")
				if j%10 == 0 {
					c.GetStats(name, 0)
					c.GetMetrics(name, 5)
				}
			}
		}(i)
	}
	wg.Wait()

	for _, name := range []string{"series_0", "series_1"} {
		points := c.GetMetrics(name, 0)
		assert.Len(t, points, 50)
		stats := c.GetStats(name, 0)
		require.NotNil(t, stats)
		assert.Equal(t, 50, stats.Count)
	}
}
