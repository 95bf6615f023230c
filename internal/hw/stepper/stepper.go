package stepper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/PenGo/internal/debug"
	"github.com/cjeanneret/PenGo/internal/hw/gpio"
)

var (
	// ErrCalibration is returned when the physical distance per step is not positive.
	ErrCalibration = errors.New("stepper: calibration constant must be positive")
	// ErrMicrostepping is returned when the driver cannot run at the requested microstep count.
	ErrMicrostepping = errors.New("stepper: unsupported microstep count")
	// ErrBusy is returned when a move is requested while another one is running.
	ErrBusy = errors.New("stepper: move already in progress")
)

// Soft start ramp: the first rampSteps delays decay linearly from
// rampFactor times the step delay down to the step delay.
const (
	rampSteps  = 200
	rampFactor = 5
)

// Actuator is a single motor axis. Position is expressed in physical units
// (string length in mm for a V-plotter) and derived from an absolute step
// counter.
type Actuator interface {
	// Position returns steps * StepSize.
	Position() float64
	// SetPosition rewrites the step counter so Position matches pos.
	SetPosition(pos float64)
	// Steps returns the absolute step counter.
	Steps() int64
	// StepSize returns the physical distance of one step.
	StepSize() float64
	// RelativeMove starts a move of distance units in the background and returns immediately.
	RelativeMove(distance float64, delay time.Duration) error
	// AbsoluteMove starts a background move to target.
	AbsoluteMove(target float64, delay time.Duration) error
	// Running reports whether a background move is in progress.
	Running() bool
	// Stop asks the background move to end after its current step.
	Stop()
	// Err returns the error that ended the last background move, if any.
	Err() error
	// Step takes a single step synchronously. dir is +1 or -1.
	Step(dir int) error
	// Off de-energizes the motor. The step counter is kept.
	Off() error
}

// Config holds the hardware configuration for a stepper motor.
type Config struct {
	Name          string
	Driver        string // a4988 (default), tmc2130 or l9110
	StepPin       int
	DirPin        int
	EnablePin     int   // ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	MicrostepPins []int // MS1..MS3, optional
	CoilPins      []int // l9110 inputs [B-1A, B-1B, A-1A, A-1B]
	Sequence      string
	StepsPerRev   int
	Microstepping int
	// SpoolCircumference is the string length wound per motor revolution.
	SpoolCircumference float64
	// PerStep overrides the calibration derived from the spool when non-zero.
	PerStep    float64
	InvertDir  bool
	SoftStart  bool
	PulseWidth time.Duration // STEP high time. Defaults to 2µs.
}

// Stepper drives one motor through a gpio.Driver. The step sequence and
// calibration come from Config; move, ramp and cancellation logic is shared
// by every driver chip.
type Stepper struct {
	gpio    gpio.Driver
	cfg     Config
	prof    profile
	perStep float64
	pulse   time.Duration

	steps     atomic.Int64
	running   atomic.Bool
	energized atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Calibration returns the physical distance per step for cfg.
func Calibration(cfg Config) (float64, error) {
	prof, err := resolveProfile(cfg.Driver, cfg.Sequence)
	if err != nil {
		return 0, err
	}
	micro := cfg.Microstepping
	if micro == 0 {
		micro = prof.microsteps[0]
	}
	if !prof.supports(micro) {
		return 0, fmt.Errorf("%w: %d (driver %q supports %v)", ErrMicrostepping, micro, cfg.Driver, prof.microsteps)
	}
	perStep := cfg.PerStep
	if perStep == 0 {
		if cfg.StepsPerRev <= 0 {
			return 0, fmt.Errorf("%w: steps_per_rev must be positive", ErrCalibration)
		}
		perStep = cfg.SpoolCircumference / float64(cfg.StepsPerRev*micro)
	}
	if !(perStep > 0) || math.IsInf(perStep, 0) {
		return 0, fmt.Errorf("%w: got %v", ErrCalibration, perStep)
	}
	return perStep, nil
}

// NewStepper creates a new stepper motor controller. Pins are configured
// as outputs and the motor starts energized.
func NewStepper(g gpio.Driver, cfg Config) (*Stepper, error) {
	prof, err := resolveProfile(cfg.Driver, cfg.Sequence)
	if err != nil {
		return nil, err
	}
	perStep, err := Calibration(cfg)
	if err != nil {
		return nil, err
	}
	if prof.coils != nil && len(cfg.CoilPins) != len(prof.coils[0]) {
		return nil, fmt.Errorf("stepper %s: %d coil pins configured, need %d", cfg.Name, len(cfg.CoilPins), len(prof.coils[0]))
	}

	pulse := cfg.PulseWidth
	if pulse <= 0 {
		pulse = 2 * time.Microsecond
	}
	s := &Stepper{
		gpio:    g,
		cfg:     cfg,
		prof:    prof,
		perStep: perStep,
		pulse:   pulse,
	}

	if prof.coils != nil {
		for _, pin := range cfg.CoilPins {
			if err := setupLow(g, pin); err != nil {
				return nil, err
			}
		}
		return s, nil
	}

	for _, pin := range []int{cfg.StepPin, cfg.DirPin} {
		if err := setupLow(g, pin); err != nil {
			return nil, err
		}
	}
	if len(cfg.MicrostepPins) == 3 {
		micro := cfg.Microstepping
		if micro == 0 {
			micro = prof.microsteps[0]
		}
		levels := microstepTable[micro]
		for i, pin := range cfg.MicrostepPins {
			if err := g.SetupPin(pin, gpio.Output); err != nil {
				return nil, err
			}
			if err := g.WritePin(pin, levels[i]); err != nil {
				return nil, err
			}
		}
	}
	// ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		if err := g.SetupPin(cfg.EnablePin, gpio.Output); err != nil {
			return nil, err
		}
	}
	if err := s.Enable(); err != nil {
		return nil, err
	}
	return s, nil
}

func setupLow(g gpio.Driver, pin int) error {
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return err
	}
	return g.WritePin(pin, gpio.Low)
}

func (s *Stepper) Position() float64 { return float64(s.steps.Load()) * s.perStep }

func (s *Stepper) SetPosition(pos float64) {
	s.steps.Store(int64(math.Round(pos / s.perStep)))
}

func (s *Stepper) Steps() int64 { return s.steps.Load() }

func (s *Stepper) StepSize() float64 { return s.perStep }

func (s *Stepper) Running() bool { return s.running.Load() }

func (s *Stepper) Name() string { return s.cfg.Name }

func (s *Stepper) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// RelativeMove starts a move of distance physical units, rounded to whole steps.
func (s *Stepper) RelativeMove(distance float64, delay time.Duration) error {
	return s.start(int64(math.Round(distance/s.perStep)), delay)
}

// AbsoluteMove starts a move to the target position.
func (s *Stepper) AbsoluteMove(target float64, delay time.Duration) error {
	return s.RelativeMove(target-s.Position(), delay)
}

func (s *Stepper) start(steps int64, delay time.Duration) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.err = nil
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer s.running.Store(false)
		defer cancel()
		err := s.move(ctx, steps, delay)
		if err != nil {
			debug.Error(fmt.Errorf("stepper %s: %w", s.cfg.Name, err))
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}()
	return nil
}

// move runs steps one at a time until done or ctx is cancelled. A cancelled
// move is not an error.
func (s *Stepper) move(ctx context.Context, steps int64, delay time.Duration) error {
	dir := 1
	direction := "forward"
	if steps < 0 {
		dir, direction = -1, "backward"
		steps = -steps
	}
	debug.Move(s.cfg.Name, steps, direction)

	var ramp []time.Duration
	if s.cfg.SoftStart {
		ramp = Ramp(delay)
	}
	for i := int64(0); i < steps; i++ {
		if ctx.Err() != nil {
			debug.Live("Motor %s: stopped after %d/%d steps", s.cfg.Name, i, steps)
			return nil
		}
		if err := s.Step(dir); err != nil {
			return err
		}
		d := delay
		if i < int64(len(ramp)) {
			d = ramp[i]
		}
		if !sleep(ctx, d) {
			debug.Live("Motor %s: stopped after %d/%d steps", s.cfg.Name, i+1, steps)
			return nil
		}
	}
	return nil
}

// Ramp returns the soft start delays for a steady state step delay.
func Ramp(delay time.Duration) []time.Duration {
	ramp := make([]time.Duration, rampSteps)
	start := float64(delay) * rampFactor
	for i := range ramp {
		frac := float64(i) / float64(rampSteps-1)
		ramp[i] = time.Duration(start + frac*(float64(delay)-start))
	}
	return ramp
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Wait blocks until the current background move has ended.
func (s *Stepper) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop asks the running move to end. It returns immediately.
func (s *Stepper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Step takes one step in direction dir (+1 lengthens, -1 shortens) and
// updates the step counter.
func (s *Stepper) Step(dir int) error {
	if dir == 0 {
		return nil
	}
	if dir > 0 {
		dir = 1
	} else {
		dir = -1
	}
	if !s.energized.Load() {
		if err := s.Enable(); err != nil {
			return err
		}
	}
	wire := dir
	if s.cfg.InvertDir {
		wire = -dir
	}

	if s.prof.coils != nil {
		next := s.steps.Load() + int64(dir)
		if err := s.writeCoils(next, wire*dir); err != nil {
			return err
		}
	} else {
		level := gpio.High
		if wire < 0 {
			level = gpio.Low
		}
		if err := s.gpio.WritePin(s.cfg.DirPin, level); err != nil {
			return err
		}
		if err := s.stepPulse(); err != nil {
			return err
		}
	}
	s.steps.Add(int64(dir))
	return nil
}

// writeCoils energizes the coil row for absolute step count n. sign flips
// the walk direction through the table for inverted motors.
func (s *Stepper) writeCoils(n int64, sign int) error {
	rows := int64(len(s.prof.coils))
	idx := (n*int64(sign))%rows + rows
	row := s.prof.coils[idx%rows]
	for j, pin := range s.cfg.CoilPins {
		if err := s.gpio.WritePin(pin, row[j]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stepper) stepPulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.pulse)
	return s.gpio.WritePin(s.cfg.StepPin, gpio.Low)
}

// Enable turns on the motor driver (ENABLE=LOW). Motors hold position.
// H-bridge drivers are energized by their next coil write.
func (s *Stepper) Enable() error {
	s.energized.Store(true)
	if s.prof.coils != nil || s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Off stops any running move and de-energizes the coils (ENABLE=HIGH, or all
// H-bridge inputs LOW). The step counter is kept.
func (s *Stepper) Off() error {
	s.Stop()
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
	s.energized.Store(false)
	if s.prof.coils != nil {
		for _, pin := range s.cfg.CoilPins {
			if err := s.gpio.WritePin(pin, gpio.Low); err != nil {
				return err
			}
		}
		return nil
	}
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
