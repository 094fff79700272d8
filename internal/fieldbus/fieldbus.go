// Package fieldbus implements the fieldbus driver abstraction (§4.4): a
// lifecycle state machine, a name->constructor factory registry, and
// EMA-based cycle statistics.
package fieldbus

import (
	"fmt"
	"sync"
	"time"
)

// State is a fieldbus driver's lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInitialized:
		return "INITIALIZED"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var validTransitions = map[State]map[State]bool{
	StateUninitialized: {StateInitialized: true},
	StateInitialized:   {StateRunning: true},
	StateRunning:       {StateStopped: true},
	StateStopped:       {StateUninitialized: true},
}

// Driver is the interface every fieldbus implementation (Mock, EtherCAT,
// future CANopen) satisfies.
type Driver interface {
	// Protocol identifies the driver ("mock", "ethercat", ...).
	Protocol() string
	// Init performs any one-time setup. Called on UNINITIALIZED->INITIALIZED.
	Init() error
	// Start begins cyclic exchange. Called on INITIALIZED->RUNNING.
	Start() error
	// Stop ends cyclic exchange. Called on RUNNING->STOPPED.
	Stop() error
	// ReadSensors fills out with the current input values. Fails on size
	// mismatch against the driver's configured input width.
	ReadSensors(out []float64) error
	// WriteActuators pushes in as the current output values. Fails on size
	// mismatch against the driver's configured output width.
	WriteActuators(in []float64) error
	// ReadDigitalInputs fills out with the current digital input states.
	// Fails on size mismatch against the driver's configured digital input
	// width.
	ReadDigitalInputs(out []bool) error
	// WriteDigitalOutputs pushes in as the current digital output states.
	// Fails on size mismatch against the driver's configured digital
	// output width.
	WriteDigitalOutputs(in []bool) error
	// EmergencyStop zeros actuator and digital outputs without allocation.
	// Callable from RT context at any state.
	EmergencyStop()
}

// Bus wraps a Driver with the lifecycle state machine, last-error tracking,
// and EMA cycle-time statistics.
type Bus struct {
	mu        sync.Mutex
	driver    Driver
	state     State
	lastError error

	emaAlpha      float64
	period        time.Duration
	emaCycleTime  time.Duration
	haveEMA       bool
	missedCycles  uint64
	totalCycles   uint64
}

// New wraps driver with the given configured period. alpha defaults to 0.1
// per §4.4.
func New(driver Driver, period time.Duration) *Bus {
	return &Bus{driver: driver, period: period, emaAlpha: 0.1}
}

func (b *Bus) Protocol() string { return b.driver.Protocol() }

func (b *Bus) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bus) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastError
}

func (b *Bus) transition(to State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if to == StateError {
		b.state = StateError
		return nil
	}
	if !validTransitions[b.state][to] {
		return fmt.Errorf("fieldbus: invalid transition %s -> %s", b.state, to)
	}
	b.state = to
	return nil
}

func (b *Bus) Init() error {
	if err := b.driver.Init(); err != nil {
		b.setError(err)
		return err
	}
	return b.transition(StateInitialized)
}

func (b *Bus) Start() error {
	if err := b.driver.Start(); err != nil {
		b.setError(err)
		return err
	}
	return b.transition(StateRunning)
}

func (b *Bus) Stop() error {
	if err := b.driver.Stop(); err != nil {
		b.setError(err)
		return err
	}
	return b.transition(StateStopped)
}

// ResetErrors re-enters INITIALIZED from ERROR.
func (b *Bus) ResetErrors() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateError {
		return fmt.Errorf("fieldbus: reset_errors called outside ERROR state (state=%s)", b.state)
	}
	b.state = StateInitialized
	b.lastError = nil
	return nil
}

func (b *Bus) setError(err error) {
	b.mu.Lock()
	b.lastError = err
	b.state = StateError
	b.mu.Unlock()
}

// EmergencyStop is callable from RT context at any state.
func (b *Bus) EmergencyStop() { b.driver.EmergencyStop() }

// RunCycle performs one analog+digital read/write exchange and updates
// cycle statistics. cycleTime is the caller-measured wall-clock duration of
// the exchange.
func (b *Bus) RunCycle(sensorsOut []float64, actuatorsIn []float64, digitalInputsOut []bool, digitalOutputsIn []bool, cycleTime time.Duration) error {
	if err := b.driver.ReadSensors(sensorsOut); err != nil {
		b.setError(err)
		return err
	}
	if err := b.driver.ReadDigitalInputs(digitalInputsOut); err != nil {
		b.setError(err)
		return err
	}
	if err := b.driver.WriteActuators(actuatorsIn); err != nil {
		b.setError(err)
		return err
	}
	if err := b.driver.WriteDigitalOutputs(digitalOutputsIn); err != nil {
		b.setError(err)
		return err
	}
	b.recordCycleTime(cycleTime)
	return nil
}

func (b *Bus) recordCycleTime(ct time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalCycles++
	if !b.haveEMA {
		b.emaCycleTime = ct
		b.haveEMA = true
	} else {
		alpha := b.emaAlpha
		b.emaCycleTime = time.Duration(alpha*float64(ct) + (1-alpha)*float64(b.emaCycleTime))
	}
	if b.period > 0 && float64(ct) > 1.1*float64(b.period) {
		b.missedCycles++
	}
}

// Stats is a snapshot of cycle-time statistics.
type Stats struct {
	EMACycleTime time.Duration
	MissedCycles uint64
	TotalCycles  uint64
}

func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{EMACycleTime: b.emaCycleTime, MissedCycles: b.missedCycles, TotalCycles: b.totalCycles}
}

// SizeMismatchError is a convenience constructor drivers can use for
// ReadSensors/WriteActuators length checks.
func SizeMismatchError(want, got int) error {
	return fmt.Errorf("fieldbus: size mismatch: want %d, got %d", want, got)
}
