// Package rtcycle implements the fixed-period RT control loop (§4.5): read
// sensors, run the control function, write actuators, publish state, update
// metrics, sleep until the next absolute wakeup.
package rtcycle

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mxrc-robotics/mxrc/pkg/metrics"
	"github.com/mxrc-robotics/mxrc/pkg/mxlog"
)

// ControlFunc computes actuator commands from sensor readings. It must not
// allocate and must not block.
type ControlFunc func(cycleIndex uint64, sensors []float64, actuators []float64)

// Exchanger performs the fieldbus read/write half of a cycle; normally a
// fieldbus.Driver (rtcycled wraps one in a circuit breaker), abstracted here
// so the engine can be tested without a real driver.
type Exchanger interface {
	ReadSensors(out []float64) error
	WriteActuators(in []float64) error
}

// PublishFunc is invoked once per cycle after the fieldbus exchange,
// typically to write robot_state.* keys into the DataStore.
type PublishFunc func(cycleIndex uint64, sensors []float64, actuators []float64)

// DeadlineMissHandler is invoked when a cycle's wall-clock wakeup slipped
// past its deadline budget, with the number of consecutive misses observed
// so far.
type DeadlineMissHandler func(cycleIndex uint64, overrun time.Duration, consecutiveMisses int)

// Config configures an Engine.
type Config struct {
	Period             time.Duration
	SensorWidth        int
	ActuatorWidth      int
	ConsecutiveMissLim int // N consecutive misses before CRITICAL escalation
	Exchanger          Exchanger
	Control            ControlFunc
	Publish            PublishFunc
	OnDeadlineMiss     DeadlineMissHandler
	OnCriticalMiss     func(cycleIndex uint64, consecutiveMisses int)
	Logger             *mxlog.Logger
	Metrics            *metrics.RTMetrics // optional; nil disables cycle-duration/jitter reporting
}

// Engine drives the fixed-period loop. All buffers are allocated once at
// construction; Run never allocates.
type Engine struct {
	cfg       Config
	sensors   []float64
	actuators []float64

	cycleIndex        atomic.Uint64
	consecutiveMisses atomic.Uint64
	totalMisses        atomic.Uint64
}

func New(cfg Config) *Engine {
	if cfg.ConsecutiveMissLim <= 0 {
		cfg.ConsecutiveMissLim = 5
	}
	return &Engine{
		cfg:       cfg,
		sensors:   make([]float64, cfg.SensorWidth),
		actuators: make([]float64, cfg.ActuatorWidth),
	}
}

// Run executes the cycle loop until ctx is cancelled. now is injectable for
// deterministic testing; production callers pass time.Now.
func (e *Engine) Run(ctx context.Context, now func() time.Time, sleep func(time.Duration)) error {
	next := now().Add(e.cfg.Period)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		cycleIndex := e.cycleIndex.Add(1) - 1
		cycleStart := now()

		if err := e.cfg.Exchanger.ReadSensors(e.sensors); err != nil {
			if e.cfg.Logger != nil {
				e.cfg.Logger.WithComponent("rtcycle").WithError(err).Error("sensor read failed")
			}
		} else {
			e.cfg.Control(cycleIndex, e.sensors, e.actuators)
			if err := e.cfg.Exchanger.WriteActuators(e.actuators); err != nil {
				if e.cfg.Logger != nil {
					e.cfg.Logger.WithComponent("rtcycle").WithError(err).Error("actuator write failed")
				}
			}
		}

		if e.cfg.Publish != nil {
			e.cfg.Publish(cycleIndex, e.sensors, e.actuators)
		}

		wake := now()

		if e.cfg.Metrics != nil {
			e.cfg.Metrics.CyclesTotal.Inc()
			e.cfg.Metrics.CycleDurationSeconds.Observe(wake.Sub(cycleStart).Seconds())
			jitter := wake.Sub(next)
			if jitter < 0 {
				jitter = -jitter
			}
			e.cfg.Metrics.JitterSeconds.Observe(jitter.Seconds())
		}

		if wake.After(next) {
			overrun := wake.Sub(next)
			if overrun >= e.cfg.Period {
				misses := e.consecutiveMisses.Add(1)
				e.totalMisses.Add(1)
				if e.cfg.Metrics != nil {
					e.cfg.Metrics.DeadlineMissesTotal.Inc()
					e.cfg.Metrics.ConsecutiveMisses.Set(float64(misses))
				}
				if e.cfg.OnDeadlineMiss != nil {
					e.cfg.OnDeadlineMiss(cycleIndex, overrun, int(misses))
				}
				if int(misses) >= e.cfg.ConsecutiveMissLim && e.cfg.OnCriticalMiss != nil {
					e.cfg.OnCriticalMiss(cycleIndex, int(misses))
				}
			}
		} else {
			e.consecutiveMisses.Store(0)
			if e.cfg.Metrics != nil {
				e.cfg.Metrics.ConsecutiveMisses.Set(0)
			}
		}

		next = next.Add(e.cfg.Period)
		sleepFor := next.Sub(now())
		if sleepFor > 0 {
			sleep(sleepFor)
		}
	}
}

func (e *Engine) CycleIndex() uint64         { return e.cycleIndex.Load() }
func (e *Engine) TotalMisses() uint64        { return e.totalMisses.Load() }
func (e *Engine) ConsecutiveMisses() uint64  { return e.consecutiveMisses.Load() }
