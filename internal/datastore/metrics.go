package datastore

import "sync/atomic"

// MetricsCollector tracks lock-free per-operation counters for the store.
type MetricsCollector struct {
	getCalls         atomic.Uint64
	setCalls         atomic.Uint64
	pollCalls        atomic.Uint64
	deleteCalls      atomic.Uint64
	memoryUsageBytes atomic.Int64
}

func NewMetricsCollector() *MetricsCollector { return &MetricsCollector{} }

func (m *MetricsCollector) IncrementGet()    { m.getCalls.Add(1) }
func (m *MetricsCollector) IncrementSet()    { m.setCalls.Add(1) }
func (m *MetricsCollector) IncrementPoll()   { m.pollCalls.Add(1) }
func (m *MetricsCollector) IncrementDelete() { m.deleteCalls.Add(1) }

// UpdateMemoryUsage applies a signed delta to the tracked memory usage.
func (m *MetricsCollector) UpdateMemoryUsage(delta int64) { m.memoryUsageBytes.Add(delta) }

// Snapshot returns the current counter values.
type MetricsSnapshot struct {
	GetCalls         uint64
	SetCalls         uint64
	PollCalls        uint64
	DeleteCalls      uint64
	MemoryUsageBytes int64
}

func (m *MetricsCollector) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		GetCalls:         m.getCalls.Load(),
		SetCalls:         m.setCalls.Load(),
		PollCalls:        m.pollCalls.Load(),
		DeleteCalls:      m.deleteCalls.Load(),
		MemoryUsageBytes: m.memoryUsageBytes.Load(),
	}
}

func (m *MetricsCollector) Reset() {
	m.getCalls.Store(0)
	m.setCalls.Store(0)
	m.pollCalls.Store(0)
	m.deleteCalls.Store(0)
	m.memoryUsageBytes.Store(0)
}
