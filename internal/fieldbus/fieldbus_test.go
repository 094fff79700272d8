package fieldbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_LifecycleHappyPath(t *testing.T) {
	driver := NewMockDriver(2, 2)
	bus := New(driver, time.Millisecond)

	assert.Equal(t, StateUninitialized, bus.State())
	require.NoError(t, bus.Init())
	assert.Equal(t, StateInitialized, bus.State())
	require.NoError(t, bus.Start())
	assert.Equal(t, StateRunning, bus.State())
	require.NoError(t, bus.Stop())
	assert.Equal(t, StateStopped, bus.State())
}

func TestBus_InvalidTransitionRejected(t *testing.T) {
	bus := New(NewMockDriver(1, 1), time.Millisecond)
	err := bus.Start() // skip Init
	assert.Error(t, err)
}

func TestBus_ResetErrorsFromErrorState(t *testing.T) {
	driver := NewMockDriver(1, 1)
	bus := New(driver, time.Millisecond)
	require.NoError(t, bus.Init())

	err := bus.RunCycle(make([]float64, 5), make([]float64, 1), make([]bool, 1), make([]bool, 1), time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, StateError, bus.State())

	require.NoError(t, bus.ResetErrors())
	assert.Equal(t, StateInitialized, bus.State())
}

func TestBus_SizeMismatchSetsLastError(t *testing.T) {
	driver := NewMockDriver(2, 2)
	bus := New(driver, time.Millisecond)
	require.NoError(t, bus.Init())

	err := bus.RunCycle(make([]float64, 3), make([]float64, 2), make([]bool, 2), make([]bool, 2), time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, err, bus.LastError())
}

func TestBus_MissedCycleDetection(t *testing.T) {
	driver := NewMockDriver(1, 1)
	period := 10 * time.Millisecond
	bus := New(driver, period)
	require.NoError(t, bus.Init())

	require.NoError(t, bus.RunCycle(make([]float64, 1), make([]float64, 1), make([]bool, 1), make([]bool, 1), 5*time.Millisecond))
	require.NoError(t, bus.RunCycle(make([]float64, 1), make([]float64, 1), make([]bool, 1), make([]bool, 1), 20*time.Millisecond))

	stats := bus.Stats()
	assert.Equal(t, uint64(1), stats.MissedCycles)
	assert.Equal(t, uint64(2), stats.TotalCycles)
}

func TestBus_EmergencyStopZeroesActuators(t *testing.T) {
	driver := NewMockDriver(1, 2)
	bus := New(driver, time.Millisecond)
	require.NoError(t, bus.Init())
	require.NoError(t, bus.RunCycle(make([]float64, 1), []float64{1, 2}, make([]bool, 1), []bool{true, true}, time.Millisecond))
	assert.Equal(t, []float64{1, 2}, driver.LastActuatorValues())
	assert.Equal(t, []bool{true, true}, driver.LastDigitalOutputValues())

	bus.EmergencyStop()
	assert.Equal(t, []float64{0, 0}, driver.LastActuatorValues())
	assert.Equal(t, []bool{false, false}, driver.LastDigitalOutputValues())
}

func TestBus_RunCycleExchangesDigitalVectors(t *testing.T) {
	driver := NewMockDriver(2, 1)
	driver.SetDigitalInputValue(0, true)
	driver.SetDigitalInputValue(1, false)
	bus := New(driver, time.Millisecond)
	require.NoError(t, bus.Init())

	digitalIn := make([]bool, 2)
	require.NoError(t, bus.RunCycle(make([]float64, 2), make([]float64, 1), digitalIn, []bool{true}, time.Millisecond))
	assert.Equal(t, []bool{true, false}, digitalIn)
	assert.Equal(t, []bool{true}, driver.LastDigitalOutputValues())
}

func TestFactory_DuplicateRegistrationRejected(t *testing.T) {
	f := NewFactory(nil)
	require.NoError(t, f.Register("mock", NewMockConstructor()))
	err := f.Register("mock", NewMockConstructor())
	assert.Error(t, err)
}

func TestFactory_UnknownProtocolFails(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.Create("nonexistent", nil)
	assert.Error(t, err)
}

func TestFactory_CreateKnownProtocol(t *testing.T) {
	f := NewFactory(nil)
	require.NoError(t, f.Register("mock", NewMockConstructor()))
	driver, err := f.Create("mock", map[string]string{"a": "1"})
	require.NoError(t, err)
	assert.Equal(t, "mock", driver.Protocol())
}
