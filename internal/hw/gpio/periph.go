package gpio

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/cjeanneret/PenGo/internal/debug"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// PeriphDriver drives pins through periph.io. Pin numbers are BCM numbers,
// looked up by their "GPIO<n>" name.
type PeriphDriver struct {
	mu   sync.Mutex
	pins map[int]gpio.PinIO
	pull map[int]gpio.Pull
}

// NewPeriphDriver initializes the periph host drivers.
func NewPeriphDriver() (*PeriphDriver, error) {
	debug.Info("Initializing real GPIO driver (periph.io)")
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	return &PeriphDriver{
		pins: make(map[int]gpio.PinIO),
		pull: make(map[int]gpio.Pull),
	}, nil
}

func (d *PeriphDriver) lookup(pin int) (gpio.PinIO, error) {
	if p, ok := d.pins[pin]; ok {
		return p, nil
	}
	p := gpioreg.ByName("GPIO" + strconv.Itoa(pin))
	if p == nil {
		return nil, &FaultError{Op: "lookup", Pin: pin, Err: fmt.Errorf("no such pin")}
	}
	d.pins[pin] = p
	return p, nil
}

func (d *PeriphDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	switch mode {
	case Input:
		err = p.In(d.pull[pin], gpio.NoEdge)
	case Output:
		err = p.Out(gpio.Low)
	default:
		err = fmt.Errorf("unknown pin mode: %d", mode)
	}
	if err != nil {
		return &FaultError{Op: "setup", Pin: pin, Err: err}
	}
	return nil
}

func (d *PeriphDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	if err := p.Out(gpio.Level(level)); err != nil {
		return &FaultError{Op: "write", Pin: pin, Err: err}
	}
	return nil
}

func (d *PeriphDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.lookup(pin)
	if err != nil {
		return Low, err
	}
	return Level(p.Read()), nil
}

func (d *PeriphDriver) SetPull(pin int, pull Pull) error {
	debug.GPIO("SetPull", pin, pull)

	var pp gpio.Pull
	switch pull {
	case PullUp:
		pp = gpio.PullUp
	case PullDown:
		pp = gpio.PullDown
	default:
		pp = gpio.Float
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	d.pull[pin] = pp
	if err := p.In(pp, gpio.NoEdge); err != nil {
		return &FaultError{Op: "pull", Pin: pin, Err: err}
	}
	return nil
}

func (d *PeriphDriver) SetPWM(pin int, freqHz int, duty float64) error {
	debug.GPIO("SetPWM", pin, fmt.Sprintf("%dHz %.2f%%", freqHz, duty*100))
	if freqHz <= 0 || duty < 0 || duty > 1 {
		return &FaultError{Op: "pwm", Pin: pin, Err: fmt.Errorf("invalid pwm %d Hz duty %v", freqHz, duty)}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	if err := p.PWM(gpio.Duty(duty*float64(gpio.DutyMax)), physic.Frequency(freqHz)*physic.Hertz); err != nil {
		return &FaultError{Op: "pwm", Pin: pin, Err: err}
	}
	return nil
}

func (d *PeriphDriver) Close() error {
	debug.Trace("GPIO Close (periph)")

	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for pin, p := range d.pins {
		if err := p.Halt(); err != nil && first == nil {
			first = &FaultError{Op: "halt", Pin: pin, Err: err}
		}
		// Leave the pin as a floating input.
		_ = p.In(gpio.Float, gpio.NoEdge)
	}
	return first
}
