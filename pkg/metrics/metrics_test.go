package metrics

import (
	"testing"
)

func TestCounter_IncAddGetReset(t *testing.T) {
	c := NewCounter("mxrc_test_total", "test counter", nil, nil)

	c.Inc()
	c.Inc()
	c.Add(3)
	if got := c.Get(); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}

	c.Reset()
	if got := c.Get(); got != 0 {
		t.Fatalf("expected 0 after reset, got %d", got)
	}
}

func TestGauge_SetAddGet(t *testing.T) {
	g := NewGauge("mxrc_test_gauge", "test gauge", nil, nil)

	g.Set(12.5)
	if got := g.Get(); got != 12.5 {
		t.Fatalf("expected 12.5, got %v", got)
	}

	g.Add(-2.5)
	if got := g.Get(); got != 10.0 {
		t.Fatalf("expected 10.0, got %v", got)
	}
}

func TestHistogram_ObserveBucketsCumulative(t *testing.T) {
	h := NewHistogram("mxrc_test_duration_seconds", "test histogram", []float64{0.1, 0.5, 1.0}, nil, nil)

	h.Observe(0.05)
	h.Observe(0.3)
	h.Observe(0.3)
	h.Observe(2.0)

	if got := h.Count(); got != 4 {
		t.Fatalf("expected count 4, got %d", got)
	}

	counts := h.BucketCounts()
	// bounds: [0.1, 0.5, 1.0], buckets: [<=0.1, <=0.5, <=1.0, +Inf]
	if counts[0] != 1 {
		t.Errorf("expected 1 observation <=0.1, got %d", counts[0])
	}
	if counts[1] != 3 {
		t.Errorf("expected 3 observations <=0.5, got %d", counts[1])
	}
	if counts[2] != 3 {
		t.Errorf("expected 3 observations <=1.0, got %d", counts[2])
	}
	if counts[3] != 4 {
		t.Errorf("expected 4 observations in +Inf bucket, got %d", counts[3])
	}
}

func TestScopedTimer_ObservesIntoHistogram(t *testing.T) {
	h := NewHistogram("mxrc_test_scoped_seconds", "scoped timer test", []float64{0.001, 1}, nil, nil)

	func() {
		timer := NewScopedTimer(h)
		defer timer.Observe()
	}()

	if got := h.Count(); got != 1 {
		t.Fatalf("expected 1 observation, got %d", got)
	}
}

func TestRegistry_GatherExposesRegisteredCollectors(t *testing.T) {
	reg := NewRegistry()
	c := NewCounter("mxrc_test_registry_total", "registry test", nil, nil)
	reg.MustRegister(c)
	c.Inc()

	families, err := reg.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) != 1 {
		t.Fatalf("expected 1 metric family, got %d", len(families))
	}
	if families[0].GetName() != "mxrc_test_registry_total" {
		t.Errorf("unexpected metric name: %s", families[0].GetName())
	}
}

func TestDomainMetrics_RegisterWithoutPanicking(t *testing.T) {
	reg := NewRegistry()
	rt := NewRTMetrics(reg)
	nonRT := NewNonRTMetrics(reg)
	ds := NewDataStoreMetrics(reg)

	rt.CyclesTotal.Inc()
	rt.DeadlineMissesTotal.Inc()
	nonRT.CPUPercent.Set(42.0)
	ds.Sync(10, 5, 2, 1, 4096)

	if ds.GetCalls.Get() != 10 {
		t.Errorf("expected GetCalls synced to 10, got %d", ds.GetCalls.Get())
	}
	if ds.MemoryUsageBytes.Get() != 4096 {
		t.Errorf("expected memory usage synced to 4096, got %v", ds.MemoryUsageBytes.Get())
	}

	// Sync is monotonic: a lower snapshot value must not move the counter
	// backwards (Prometheus counters never decrease).
	ds.Sync(3, 5, 2, 1, 4096)
	if ds.GetCalls.Get() != 10 {
		t.Errorf("expected GetCalls to stay at 10 after a lower sync, got %d", ds.GetCalls.Get())
	}
}
