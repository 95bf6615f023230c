package pen

import (
	"fmt"
	"time"

	"github.com/cjeanneret/PenGo/internal/debug"
	"github.com/cjeanneret/PenGo/internal/hw/gpio"
)

// ServoConfig describes a hobby servo on a hardware PWM pin.
// The duty cycle maps linearly from LowDuty at 0° to HighDuty at RangeDeg.
type ServoConfig struct {
	Pin       int
	FreqHz    int     // 50 for most hobby servos
	LowDuty   float64 // percent, e.g. 2.75
	HighDuty  float64 // percent, e.g. 12.5
	RangeDeg  float64 // 180
	UpDeg     float64
	DownDeg   float64
	SettleFor time.Duration // wait after each movement
}

// DefaultServoConfig returns the values used for an SG90 style servo on pin 18.
func DefaultServoConfig() ServoConfig {
	return ServoConfig{
		Pin:       18,
		FreqHz:    50,
		LowDuty:   2.75,
		HighDuty:  12.5,
		RangeDeg:  180,
		UpDeg:     180,
		DownDeg:   90,
		SettleFor: time.Second,
	}
}

// Servo is a Lifter driven by a servo horn.
type Servo struct {
	gpio gpio.Driver
	cfg  ServoConfig
}

// NewServo validates cfg and returns a Servo. The pen is not moved until
// the first Up or Down.
func NewServo(g gpio.Driver, cfg ServoConfig) (*Servo, error) {
	if cfg.FreqHz <= 0 {
		return nil, fmt.Errorf("pen servo: frequency must be positive, got %d", cfg.FreqHz)
	}
	if cfg.RangeDeg <= 0 {
		return nil, fmt.Errorf("pen servo: range must be positive, got %v", cfg.RangeDeg)
	}
	if cfg.LowDuty < 0 || cfg.HighDuty > 100 || cfg.LowDuty >= cfg.HighDuty {
		return nil, fmt.Errorf("pen servo: invalid duty bounds %v%%..%v%%", cfg.LowDuty, cfg.HighDuty)
	}
	return &Servo{gpio: g, cfg: cfg}, nil
}

// Duty returns the duty cycle fraction for an angle in degrees.
func (s *Servo) Duty(deg float64) float64 {
	pct := s.cfg.LowDuty + deg/s.cfg.RangeDeg*(s.cfg.HighDuty-s.cfg.LowDuty)
	return pct / 100
}

// SetAngle turns the servo horn to deg and waits for it to settle.
func (s *Servo) SetAngle(deg float64) error {
	if deg < 0 || deg > s.cfg.RangeDeg {
		return fmt.Errorf("pen servo: angle %v outside 0..%v", deg, s.cfg.RangeDeg)
	}
	debug.Verbose("Pen: servo pin %d -> %.1f°", s.cfg.Pin, deg)
	if err := s.gpio.SetPWM(s.cfg.Pin, s.cfg.FreqHz, s.Duty(deg)); err != nil {
		return err
	}
	time.Sleep(s.cfg.SettleFor)
	return nil
}

func (s *Servo) Up() error {
	debug.Live("Pen up")
	return s.SetAngle(s.cfg.UpDeg)
}

func (s *Servo) Down() error {
	debug.Live("Pen down")
	return s.SetAngle(s.cfg.DownDeg)
}
