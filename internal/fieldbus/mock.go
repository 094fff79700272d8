package fieldbus

import "strconv"

// MockDriver is a deterministic in-memory Driver used in tests and in
// development deployments without real hardware attached. Digital I/O
// widths mirror the analog widths, matching a device that reports the same
// device_count for both vector kinds.
type MockDriver struct {
	InputWidth  int
	OutputWidth int

	sensors        []float64
	actuators      []float64
	digitalInputs  []bool
	digitalOutputs []bool
}

// NewMockDriver constructs a MockDriver sized to inputWidth/outputWidth.
func NewMockDriver(inputWidth, outputWidth int) *MockDriver {
	return &MockDriver{
		InputWidth:     inputWidth,
		OutputWidth:    outputWidth,
		sensors:        make([]float64, inputWidth),
		actuators:      make([]float64, outputWidth),
		digitalInputs:  make([]bool, inputWidth),
		digitalOutputs: make([]bool, outputWidth),
	}
}

// NewMockConstructor adapts NewMockDriver to the Factory's Constructor
// signature, reading "input_width"/"output_width" from config (falling
// back to len(config) for bare registration in tests that pass neither
// key).
func NewMockConstructor() Constructor {
	return func(config map[string]string) (Driver, error) {
		inputWidth := len(config)
		outputWidth := len(config)
		if v, ok := config["input_width"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, err
			}
			inputWidth = n
		}
		if v, ok := config["output_width"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, err
			}
			outputWidth = n
		}
		return NewMockDriver(inputWidth, outputWidth), nil
	}
}

func (m *MockDriver) Protocol() string { return "mock" }
func (m *MockDriver) Init() error      { return nil }
func (m *MockDriver) Start() error     { return nil }
func (m *MockDriver) Stop() error      { return nil }

// SetSensorValue lets tests inject a sensor reading for index i.
func (m *MockDriver) SetSensorValue(i int, v float64) { m.sensors[i] = v }

// SetDigitalInputValue lets tests inject a digital input reading for index i.
func (m *MockDriver) SetDigitalInputValue(i int, v bool) { m.digitalInputs[i] = v }

func (m *MockDriver) ReadSensors(out []float64) error {
	if len(out) != len(m.sensors) {
		return SizeMismatchError(len(m.sensors), len(out))
	}
	copy(out, m.sensors)
	return nil
}

func (m *MockDriver) WriteActuators(in []float64) error {
	if len(in) != len(m.actuators) {
		return SizeMismatchError(len(m.actuators), len(in))
	}
	copy(m.actuators, in)
	return nil
}

func (m *MockDriver) ReadDigitalInputs(out []bool) error {
	if len(out) != len(m.digitalInputs) {
		return SizeMismatchError(len(m.digitalInputs), len(out))
	}
	copy(out, m.digitalInputs)
	return nil
}

func (m *MockDriver) WriteDigitalOutputs(in []bool) error {
	if len(in) != len(m.digitalOutputs) {
		return SizeMismatchError(len(m.digitalOutputs), len(in))
	}
	copy(m.digitalOutputs, in)
	return nil
}

// LastActuatorValues returns the most recently written actuator vector.
func (m *MockDriver) LastActuatorValues() []float64 {
	out := make([]float64, len(m.actuators))
	copy(out, m.actuators)
	return out
}

// LastDigitalOutputValues returns the most recently written digital output
// vector.
func (m *MockDriver) LastDigitalOutputValues() []bool {
	out := make([]bool, len(m.digitalOutputs))
	copy(out, m.digitalOutputs)
	return out
}

func (m *MockDriver) EmergencyStop() {
	for i := range m.actuators {
		m.actuators[i] = 0
	}
	for i := range m.digitalOutputs {
		m.digitalOutputs[i] = false
	}
}
