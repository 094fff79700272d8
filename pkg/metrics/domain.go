package metrics

// RTMetrics is the RT cycle engine's metric set (§4.5 / C5): worst-case
// execution time and jitter histograms plus deadline-miss counters.
type RTMetrics struct {
	CycleDurationSeconds *Histogram
	JitterSeconds        *Histogram
	DeadlineMissesTotal  *Counter
	ConsecutiveMisses    *Gauge
	CyclesTotal          *Counter
}

// NewRTMetrics builds an RTMetrics set registered against reg.
func NewRTMetrics(reg *Registry) *RTMetrics {
	m := &RTMetrics{
		CycleDurationSeconds: NewHistogram(
			"mxrc_rt_cycle_duration_seconds",
			"RT cycle wall-clock duration",
			[]float64{50e-6, 100e-6, 250e-6, 500e-6, 1e-3, 2e-3, 5e-3},
			nil, nil,
		),
		JitterSeconds: NewHistogram(
			"mxrc_rt_cycle_jitter_seconds",
			"RT cycle wakeup jitter against the expected period",
			[]float64{10e-6, 25e-6, 50e-6, 100e-6, 250e-6, 500e-6},
			nil, nil,
		),
		DeadlineMissesTotal: NewCounter("mxrc_rt_deadline_misses_total", "RT cycle deadline misses", nil, nil),
		ConsecutiveMisses:   NewGauge("mxrc_rt_consecutive_misses", "Current consecutive RT deadline miss streak", nil, nil),
		CyclesTotal:         NewCounter("mxrc_rt_cycles_total", "RT cycles executed", nil, nil),
	}
	reg.MustRegister(m.CycleDurationSeconds, m.JitterSeconds, m.DeadlineMissesTotal, m.ConsecutiveMisses, m.CyclesTotal)
	return m
}

// NonRTMetrics is the watchdog/supervisor-facing metric set (§4.10 / C10):
// host resource properties sampled by the ResourceCollector.
type NonRTMetrics struct {
	CPUPercent         *Gauge
	MemUsedPercent     *Gauge
	MemUsedBytes       *Gauge
	UptimeSeconds      *Gauge
	KeepAlivesSent     *Counter
	KeepAlivesDropped  *Counter
}

func NewNonRTMetrics(reg *Registry) *NonRTMetrics {
	m := &NonRTMetrics{
		CPUPercent:        NewGauge("mxrc_host_cpu_percent", "Host CPU utilization percent", nil, nil),
		MemUsedPercent:    NewGauge("mxrc_host_mem_used_percent", "Host memory utilization percent", nil, nil),
		MemUsedBytes:      NewGauge("mxrc_host_mem_used_bytes", "Host memory used in bytes", nil, nil),
		UptimeSeconds:     NewGauge("mxrc_host_uptime_seconds", "Host uptime in seconds", nil, nil),
		KeepAlivesSent:    NewCounter("mxrc_watchdog_keepalives_total", "Watchdog keep-alives sent", nil, nil),
		KeepAlivesDropped: NewCounter("mxrc_watchdog_keepalives_dropped_total", "Watchdog keep-alives dropped (IPC queue full)", nil, nil),
	}
	reg.MustRegister(m.CPUPercent, m.MemUsedPercent, m.MemUsedBytes, m.UptimeSeconds, m.KeepAlivesSent, m.KeepAlivesDropped)
	return m
}

// DataStoreMetrics mirrors internal/datastore's lock-free counters (§4.2)
// in Prometheus form for export via pkg/metrics's HTTP surface.
type DataStoreMetrics struct {
	GetCalls         *Counter
	SetCalls         *Counter
	PollCalls        *Counter
	DeleteCalls      *Counter
	MemoryUsageBytes *Gauge
}

func NewDataStoreMetrics(reg *Registry) *DataStoreMetrics {
	m := &DataStoreMetrics{
		GetCalls:         NewCounter("mxrc_datastore_get_calls_total", "DataStore Get calls", nil, nil),
		SetCalls:         NewCounter("mxrc_datastore_set_calls_total", "DataStore Set calls", nil, nil),
		PollCalls:        NewCounter("mxrc_datastore_poll_calls_total", "DataStore Poll calls", nil, nil),
		DeleteCalls:      NewCounter("mxrc_datastore_delete_calls_total", "DataStore Delete calls", nil, nil),
		MemoryUsageBytes: NewGauge("mxrc_datastore_memory_usage_bytes", "DataStore estimated memory usage", nil, nil),
	}
	reg.MustRegister(m.GetCalls, m.SetCalls, m.PollCalls, m.DeleteCalls, m.MemoryUsageBytes)
	return m
}

// Sync copies a datastore.MetricsSnapshot-shaped set of counters into m.
// Defined with plain scalar args (rather than importing internal/datastore,
// which would create an import cycle risk from pkg -> internal) so the
// orchestrator wires the two together at the call site.
func (m *DataStoreMetrics) Sync(getCalls, setCalls, pollCalls, deleteCalls uint64, memoryUsageBytes int64) {
	syncCounter(m.GetCalls, getCalls)
	syncCounter(m.SetCalls, setCalls)
	syncCounter(m.PollCalls, pollCalls)
	syncCounter(m.DeleteCalls, deleteCalls)
	m.MemoryUsageBytes.Set(float64(memoryUsageBytes))
}

func syncCounter(c *Counter, want uint64) {
	if have := c.Get(); want > have {
		c.Add(want - have)
	}
}
