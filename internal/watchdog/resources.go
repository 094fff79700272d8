package watchdog

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mxrc-robotics/mxrc/pkg/metrics"
)

// ResourceSnapshot is one point-in-time read of supervisor-reported host
// properties (§2 C10 "metrics collector over supervisor-reported properties").
type ResourceSnapshot struct {
	Timestamp      time.Time
	CPUPercent     float64
	MemUsedPercent float64
	MemUsedBytes   uint64
	Uptime         time.Duration
}

// ResourceCollector samples host-level CPU/memory/uptime via gopsutil. It
// holds no state between calls; callers decide their own sampling cadence
// (typically tied to the watchdog's keep-alive interval).
type ResourceCollector struct{}

func NewResourceCollector() *ResourceCollector { return &ResourceCollector{} }

// Collect samples current host resource usage. sampleWindow bounds how long
// the CPU percentage measurement blocks (cpu.PercentWithContext averages
// over that window); pass 0 for a non-blocking since-last-call estimate.
func (c *ResourceCollector) Collect(ctx context.Context, sampleWindow time.Duration) (ResourceSnapshot, error) {
	percents, err := cpu.PercentWithContext(ctx, sampleWindow, false)
	if err != nil {
		return ResourceSnapshot{}, err
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return ResourceSnapshot{}, err
	}

	info, err := host.InfoWithContext(ctx)
	var uptime time.Duration
	if err == nil {
		uptime = time.Duration(info.Uptime) * time.Second
	}

	return ResourceSnapshot{
		Timestamp:      time.Now(),
		CPUPercent:     cpuPct,
		MemUsedPercent: vm.UsedPercent,
		MemUsedBytes:   vm.Used,
		Uptime:         uptime,
	}, nil
}

// ApplyTo writes the snapshot into a NonRTMetrics set.
func (s ResourceSnapshot) ApplyTo(m *metrics.NonRTMetrics) {
	m.CPUPercent.Set(s.CPUPercent)
	m.MemUsedPercent.Set(s.MemUsedPercent)
	m.MemUsedBytes.Set(float64(s.MemUsedBytes))
	m.UptimeSeconds.Set(s.Uptime.Seconds())
}
