package metrics

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing atomic counter.
type Counter struct {
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Add increments the counter by n.
func (c *Counter) Add(n int64) {
	c.value.Add(n)
}

// Load returns the current value.
func (c *Counter) Load() int64 {
	return c.value.Load()
}

// Gauge is an atomic value that can move in both directions.
type Gauge struct {
	value atomic.Int64
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.value.Add(1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.value.Add(-1)
}

// Set stores v.
func (g *Gauge) Set(v int64) {
	g.value.Store(v)
}

// Load returns the current value.
func (g *Gauge) Load() int64 {
	return g.value.Load()
}

// Sampler keeps the most recent duration samples in a ring for quantile
// snapshots. Safe for concurrent use.
type Sampler struct {
	mu      sync.Mutex
	samples []int64
	index   int
	full    bool
}

// NewSampler creates a sampler holding the last size samples.
func NewSampler(size int) *Sampler {
	if size <= 0 {
		size = 128
	}
	return &Sampler{
		samples: make([]int64, size),
	}
}

// Observe records one duration sample.
func (s *Sampler) Observe(d time.Duration) {
	s.mu.Lock()
	s.samples[s.index] = d.Nanoseconds()
	s.index++
	if s.index >= len(s.samples) {
		s.index = 0
		s.full = true
	}
	s.mu.Unlock()
}

// Count returns the number of stored samples.
func (s *Sampler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return len(s.samples)
	}
	return s.index
}

// Quantiles returns the value at each requested quantile over the stored
// window. The result is empty when no samples have been observed.
func (s *Sampler) Quantiles(quantiles []float64) map[float64]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.index
	if s.full {
		count = len(s.samples)
	}
	if count == 0 {
		return map[float64]time.Duration{}
	}

	values := make([]int64, count)
	copy(values, s.samples[:count])
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	results := make(map[float64]time.Duration, len(quantiles))
	for _, q := range quantiles {
		if q <= 0 {
			results[q] = time.Duration(values[0])
			continue
		}
		if q >= 1 {
			results[q] = time.Duration(values[count-1])
			continue
		}
		pos := int(math.Ceil(q*float64(count))) - 1
		if pos < 0 {
			pos = 0
		}
		if pos >= count {
			pos = count - 1
		}
		results[q] = time.Duration(values[pos])
	}

	return results
}
