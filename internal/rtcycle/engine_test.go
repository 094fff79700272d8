package rtcycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxrc-robotics/mxrc/pkg/metrics"
)

type fakeExchanger struct {
	sensorWidth, actuatorWidth int
	readErr, writeErr          error
}

func (f *fakeExchanger) ReadSensors(out []float64) error {
	if f.readErr != nil {
		return f.readErr
	}
	if len(out) != f.sensorWidth {
		return assert.AnError
	}
	return nil
}

func (f *fakeExchanger) WriteActuators(in []float64) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	if len(in) != f.actuatorWidth {
		return assert.AnError
	}
	return nil
}

// fakeClock advances in fixed steps each time Now is called, letting tests
// simulate drift without real sleeping.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func TestEngine_RunsFixedCycles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var controlCalls int

	ex := &fakeExchanger{sensorWidth: 2, actuatorWidth: 2}
	eng := New(Config{
		Period:        time.Millisecond,
		SensorWidth:   2,
		ActuatorWidth: 2,
		Exchanger:     ex,
		Control: func(cycleIndex uint64, sensors, actuators []float64) {
			controlCalls++
			if controlCalls >= 5 {
				cancel()
			}
		},
	})

	clock := &fakeClock{t: time.Now(), step: time.Microsecond}
	sleeps := 0
	err := eng.Run(ctx, clock.Now, func(d time.Duration) { sleeps++ })

	require.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, controlCalls, 5)
	assert.Equal(t, uint64(controlCalls), eng.CycleIndex())
}

func TestEngine_DetectsConsecutiveMisses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ex := &fakeExchanger{sensorWidth: 1, actuatorWidth: 1}

	var missEvents []int
	eng := New(Config{
		Period:             time.Millisecond,
		ConsecutiveMissLim: 3,
		SensorWidth:        1,
		ActuatorWidth:      1,
		Exchanger:          ex,
		Control:            func(uint64, []float64, []float64) {},
		OnDeadlineMiss: func(cycleIndex uint64, overrun time.Duration, consecutive int) {
			missEvents = append(missEvents, consecutive)
		},
		OnCriticalMiss: func(cycleIndex uint64, consecutive int) {
			cancel()
		},
	})

	// Each Now() call advances by 5x the period, guaranteeing a miss every cycle.
	clock := &fakeClock{t: time.Now(), step: 5 * time.Millisecond}
	_ = eng.Run(ctx, clock.Now, func(time.Duration) {})

	require.NotEmpty(t, missEvents)
	assert.Equal(t, 3, missEvents[len(missEvents)-1])
}

func TestEngine_RecordsCycleMetrics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ex := &fakeExchanger{sensorWidth: 1, actuatorWidth: 1}
	reg := metrics.NewRegistry()
	rtMetrics := metrics.NewRTMetrics(reg)

	var cycles int
	eng := New(Config{
		Period:        time.Millisecond,
		SensorWidth:   1,
		ActuatorWidth: 1,
		Exchanger:     ex,
		Metrics:       rtMetrics,
		Control: func(uint64, []float64, []float64) {
			cycles++
			if cycles >= 10 {
				cancel()
			}
		},
	})

	clock := &fakeClock{t: time.Now(), step: time.Microsecond}
	_ = eng.Run(ctx, clock.Now, func(time.Duration) {})

	assert.Equal(t, uint64(cycles), rtMetrics.CyclesTotal.Get())
	assert.Equal(t, uint64(cycles), rtMetrics.CycleDurationSeconds.Count())
}
