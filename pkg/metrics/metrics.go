// Package metrics implements the runtime's metric primitives (§4.12):
// Counter, Gauge, and Histogram, each a prometheus.Collector backed by its
// own atomics rather than client_golang's internal storage, so Get/Reset
// have exactly the semantics called for here. Serialization to Prometheus
// text format is delegated to client_golang's registry + expfmt via the
// HTTP handler in server.go.
package metrics

import (
	"math"
	"sort"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter is a monotonically increasing u64 counter with an optional fixed
// label set.
type Counter struct {
	desc   *prometheus.Desc
	value  atomic.Uint64
	labels []string
}

// NewCounter creates a Counter named name (expected to follow the mxrc_*_total
// convention) with the given help text and label values (labelNames and
// labelValues must be the same length).
func NewCounter(name, help string, labelNames, labelValues []string) *Counter {
	return &Counter{
		desc:   prometheus.NewDesc(name, help, labelNames, nil),
		labels: labelValues,
	}
}

func (c *Counter) Inc()            { c.value.Add(1) }
func (c *Counter) Add(delta uint64) { c.value.Add(delta) }
func (c *Counter) Get() uint64     { return c.value.Load() }
func (c *Counter) Reset()          { c.value.Store(0) }

func (c *Counter) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *Counter) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(c.Get()), c.labels...)
}

// Gauge is a settable f64 value with an optional fixed label set.
type Gauge struct {
	desc   *prometheus.Desc
	bits   atomic.Uint64 // math.Float64bits
	labels []string
}

func NewGauge(name, help string, labelNames, labelValues []string) *Gauge {
	return &Gauge{
		desc:   prometheus.NewDesc(name, help, labelNames, nil),
		labels: labelValues,
	}
}

func (g *Gauge) Set(v float64) { g.bits.Store(math.Float64bits(v)) }
func (g *Gauge) Get() float64  { return math.Float64frombits(g.bits.Load()) }

func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (g *Gauge) Describe(ch chan<- *prometheus.Desc) { ch <- g.desc }

func (g *Gauge) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, g.Get(), g.labels...)
}

// Histogram tracks {sum, count, bucket_counts} against user-supplied
// ascending bucket bounds, with an implicit terminal +Inf bucket.
type Histogram struct {
	desc    *prometheus.Desc
	bounds  []float64
	buckets []atomic.Uint64 // cumulative count at/under bounds[i]; len == len(bounds)+1 (+Inf)
	count   atomic.Uint64
	sumBits atomic.Uint64
	labels  []string
}

// NewHistogram creates a Histogram over the given ascending bucket bounds
// (e.g. latency buckets in seconds). bounds must already be sorted
// ascending; NewHistogram sorts defensively.
func NewHistogram(name, help string, bounds []float64, labelNames, labelValues []string) *Histogram {
	b := make([]float64, len(bounds))
	copy(b, bounds)
	sort.Float64s(b)
	return &Histogram{
		desc:    prometheus.NewDesc(name, help, labelNames, nil),
		bounds:  b,
		buckets: make([]atomic.Uint64, len(b)+1),
		labels:  labelValues,
	}
}

// Observe records v into the histogram, incrementing every bucket whose
// bound is >= v (and the +Inf bucket, always).
func (h *Histogram) Observe(v float64) {
	h.count.Add(1)
	for {
		old := h.sumBits.Load()
		next := math.Float64bits(math.Float64frombits(old) + v)
		if h.sumBits.CompareAndSwap(old, next) {
			break
		}
	}
	idx := sort.SearchFloat64s(h.bounds, v)
	for i := idx; i < len(h.buckets); i++ {
		h.buckets[i].Add(1)
	}
}

func (h *Histogram) Count() uint64 { return h.count.Load() }
func (h *Histogram) Sum() float64  { return math.Float64frombits(h.sumBits.Load()) }

// BucketCounts returns the cumulative count for each configured bound, in
// the same order as bounds, followed by the +Inf bucket's count.
func (h *Histogram) BucketCounts() []uint64 {
	out := make([]uint64, len(h.buckets))
	for i := range h.buckets {
		out[i] = h.buckets[i].Load()
	}
	return out
}

func (h *Histogram) Describe(ch chan<- *prometheus.Desc) { ch <- h.desc }

func (h *Histogram) Collect(ch chan<- prometheus.Metric) {
	cumulative := make(map[float64]uint64, len(h.bounds))
	for i, bound := range h.bounds {
		cumulative[bound] = h.buckets[i].Load()
	}
	ch <- prometheus.MustNewConstHistogram(h.desc, h.Count(), h.Sum(), cumulative, h.labels...)
}
