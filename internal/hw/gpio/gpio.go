package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/PenGo/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Pull selects the internal resistor of an input pin.
type Pull int

const (
	PullNone Pull = iota
	PullDown
	PullUp
)

func (p Pull) String() string {
	switch p {
	case PullDown:
		return "down"
	case PullUp:
		return "up"
	default:
		return "none"
	}
}

// Backend names accepted by NewDriver.
const (
	BackendRPIO   = "rpio"
	BackendPeriph = "periph"
)

// Driver defines the abstract interface for controlling GPIOs.
// A Driver is the hardware context of the process: it is opened once by
// the application, handed to every actuator, pen and switch constructor,
// and released with Close when the application exits.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	SetPull(pin int, pull Pull) error
	// SetPWM drives pin with a hardware PWM signal. duty is a fraction in [0, 1].
	SetPWM(pin int, freqHz int, duty float64) error
	Close() error
}

// FaultError reports a pin-level hardware failure. Motion code treats it as
// fatal for the current plot.
type FaultError struct {
	Op  string
	Pin int
	Err error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("gpio %s pin %d: %v", e.Op, e.Pin, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// Otherwise backend selects go-rpio ("rpio", the default) or periph.io ("periph").
func NewDriver(mock bool, backend string) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	}
	switch backend {
	case "", BackendRPIO:
		return NewRPiRealDriver()
	case BackendPeriph:
		return NewPeriphDriver()
	default:
		return nil, fmt.Errorf("unknown gpio backend %q", backend)
	}
}

// MockDriver logs actions and remembers the last written state of every pin.
// Inputs read back whatever was last written to them, Low otherwise.
// Used for development on PC or dry runs.
type MockDriver struct {
	mu     sync.Mutex
	levels map[int]Level
	duty   map[int]float64
}

// NewMockDriver returns an empty MockDriver.
func NewMockDriver() *MockDriver {
	return &MockDriver{levels: make(map[int]Level), duty: make(map[int]float64)}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	m.levels[pin] = level
	m.mu.Unlock()
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

func (m *MockDriver) SetPull(pin int, pull Pull) error {
	debug.GPIO("SetPull", pin, pull)
	return nil
}

func (m *MockDriver) SetPWM(pin int, freqHz int, duty float64) error {
	debug.GPIO("SetPWM", pin, fmt.Sprintf("%dHz %.2f%%", freqHz, duty*100))
	m.mu.Lock()
	m.duty[pin] = duty
	m.mu.Unlock()
	return nil
}

// Duty returns the last duty cycle set on pin.
func (m *MockDriver) Duty(pin int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duty[pin]
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
