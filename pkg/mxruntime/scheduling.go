package mxruntime

import (
	"os"
	"strings"
	"sync"
)

// schedulingHintsOnce caches the parsed RT scheduling hints at first use.
var (
	schedulingHintsOnce sync.Once
	schedulingHintsVal  SchedulingHints
)

// SchedulingHints describes the RT process's requested CPU affinity and
// FIFO priority. The runtime does not apply these itself — cgroup/affinity
// and sched_setscheduler calls are owned by the supervisor per the external
// interfaces contract — but components read them to decide whether to warn
// when running outside the requested configuration.
type SchedulingHints struct {
	// CPUSet is the requested CPU affinity list, e.g. "2,3" for two dedicated cores.
	CPUSet string
	// FIFOPriority is the requested SCHED_FIFO priority, typically in 80-99.
	FIFOPriority int
	// Requested reports whether RT scheduling was explicitly requested via env.
	Requested bool
}

// SchedulingHintsFromEnv reads MXRC_RT_CPUSET and MXRC_RT_PRIORITY, caching
// the result for the lifetime of the process.
func SchedulingHintsFromEnv() SchedulingHints {
	schedulingHintsOnce.Do(func() {
		cpuset := strings.TrimSpace(os.Getenv("MXRC_RT_CPUSET"))
		prio, hasPrio := ParseEnvInt("MXRC_RT_PRIORITY")
		if !hasPrio {
			prio = 80
		}
		schedulingHintsVal = SchedulingHints{
			CPUSet:       cpuset,
			FIFOPriority: prio,
			Requested:    cpuset != "" || hasPrio,
		}
	})
	return schedulingHintsVal
}

// ResetSchedulingHintsCache resets the cached hints. Test-only.
func ResetSchedulingHintsCache() {
	schedulingHintsOnce = sync.Once{}
	schedulingHintsVal = SchedulingHints{}
}
