package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/cjeanneret/PenGo/internal/config"
	"github.com/cjeanneret/PenGo/internal/debug"
	"github.com/cjeanneret/PenGo/internal/hw/gpio"
	"github.com/cjeanneret/PenGo/internal/hw/limit"
	"github.com/cjeanneret/PenGo/internal/hw/pen"
	"github.com/cjeanneret/PenGo/internal/hw/stepper"
	"github.com/cjeanneret/PenGo/internal/logic/kinematics"
	"github.com/cjeanneret/PenGo/internal/logic/motion"
	"github.com/cjeanneret/PenGo/internal/logic/plot"
	"github.com/cjeanneret/PenGo/internal/logic/trajectory"
)

// machine is the assembled plotter hardware.
type machine struct {
	gpio   gpio.Driver
	motion *motion.Controller
	seq    *plot.Sequence
	homing *motion.Homing
}

// newMachine initializes the GPIO driver, motors, pen and limit switches
// described by cfg.
func newMachine(cfg *config.Config) (*machine, error) {
	debug.Step(1, "Initializing GPIO driver")
	g, err := gpio.NewDriver(cfg.Defaults.MockGPIO, cfg.Defaults.GPIOBackend)
	if err != nil {
		return nil, fmt.Errorf("init GPIO: %w", err)
	}
	m, err := assemble(g, cfg)
	if err != nil {
		return nil, errors.Join(err, g.Close())
	}
	return m, nil
}

func assemble(g gpio.Driver, cfg *config.Config) (*machine, error) {
	debug.Step(2, "Initializing stepper motors")
	left, err := stepper.NewStepper(g, cfg.LeftMotor.Stepper("left"))
	if err != nil {
		return nil, fmt.Errorf("left motor: %w", err)
	}
	debug.PrintStruct("Left stepper config", cfg.LeftMotor)
	right, err := stepper.NewStepper(g, cfg.RightMotor.Stepper("right"))
	if err != nil {
		return nil, fmt.Errorf("right motor: %w", err)
	}
	debug.PrintStruct("Right stepper config", cfg.RightMotor)

	debug.Step(3, "Initializing pen servo")
	servo, err := pen.NewServo(g, cfg.Pen.Servo())
	if err != nil {
		return nil, err
	}
	debug.Value("Pen pin", cfg.Pen.Pin)

	v := cfg.Plotter.VPlotter()
	ctrl := motion.NewController(left, right, v, motion.Options{
		MoveDelay:    cfg.Plotter.MoveDelay(),
		PollInterval: cfg.Plotter.PollInterval(),
	})
	planner, err := kinematics.NewPlanner(v, left.StepSize(), right.StepSize(), cfg.Plotter.MinSegmentDelay())
	if err != nil {
		return nil, err
	}
	debug.Value("Step size left", left.StepSize())
	debug.Value("Step size right", right.StepSize())

	m := &machine{gpio: g, motion: ctrl, seq: plot.NewSequence(ctrl, servo, planner)}
	if cfg.Homing.Enabled {
		debug.Step(4, "Initializing limit switches")
		h := cfg.Homing
		axes := [2]motion.HomingAxis{}
		for i, sw := range []config.SwitchConfig{h.Left, h.Right} {
			s, err := limit.New(g, sw.Pin, limit.Contact(sw.Contact), limit.Load(sw.Load))
			if err != nil {
				return nil, err
			}
			debug.Value(kinematics.Motor(i).String()+" switch pin", s.Pin())
			axes[i] = motion.HomingAxis{Switch: s, Direction: h.Direction}
		}
		axes[kinematics.Left].Home = h.LeftHomeMm
		axes[kinematics.Right].Home = h.RightHomeMm
		m.homing = &motion.Homing{Axes: axes, StepDelay: h.StepDelay(), MaxTravel: h.MaxTravelMm}
	}
	return m, nil
}

// Plot draws t with the drawing parameters of cfg.
func (m *machine) Plot(ctx context.Context, t *trajectory.Trajectory, cfg *config.Config) error {
	debug.Section("Starting plot")
	return m.seq.Plot(ctx, t, plot.Params{
		Velocity: cfg.Plotter.VelocityMmS,
		FlipY:    *cfg.Plotter.FlipY,
		Homing:   m.homing,
		Start:    cfg.Plotter.Start(),
	})
}

// Close stops the motors, de-energizes them and releases the GPIO driver.
func (m *machine) Close() error {
	m.motion.Stop()
	return errors.Join(m.motion.Off(), m.gpio.Close())
}
