package motion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/PenGo/internal/debug"
	"github.com/cjeanneret/PenGo/internal/hw/stepper"
	"github.com/cjeanneret/PenGo/internal/logic/geometry"
	"github.com/cjeanneret/PenGo/internal/logic/kinematics"
)

// Options tunes the controller. Zero values select the defaults.
type Options struct {
	// MoveDelay is the step delay of the faster axis during repositioning.
	MoveDelay time.Duration
	// PollInterval is how often Running is polled while waiting.
	PollInterval time.Duration
}

const (
	defaultMoveDelay    = 2 * time.Millisecond
	defaultPollInterval = 5 * time.Millisecond
)

// Controller drives the two string motors of a V-plotter.
// It's an intermediate layer between the plot sequence and the actuators:
// background repositioning moves, idle waits, waveform execution and homing.
type Controller struct {
	motors  [2]stepper.Actuator
	plotter kinematics.VPlotter
	opts    Options
}

func NewController(left, right stepper.Actuator, plotter kinematics.VPlotter, opts Options) *Controller {
	if opts.MoveDelay <= 0 {
		opts.MoveDelay = defaultMoveDelay
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Controller{
		motors:  [2]stepper.Actuator{left, right},
		plotter: plotter,
		opts:    opts,
	}
}

// Motor returns the actuator of motor m.
func (c *Controller) Motor(m kinematics.Motor) stepper.Actuator { return c.motors[m] }

// Plotter returns the machine geometry.
func (c *Controller) Plotter() kinematics.VPlotter { return c.plotter }

// Position returns the pen position derived from the step counters.
func (c *Controller) Position() geometry.Point {
	return c.plotter.Forward(c.motors[kinematics.Left].Position(), c.motors[kinematics.Right].Position())
}

// SetPosition declares the current pen position without moving.
func (c *Controller) SetPosition(p geometry.Point) {
	m1, m2 := c.plotter.Inverse(p)
	c.motors[kinematics.Left].SetPosition(m1)
	c.motors[kinematics.Right].SetPosition(m2)
	debug.Verbose("Position set to (%.2f, %.2f): strings %.2f / %.2f", p.X, p.Y, m1, m2)
}

// MoveTo starts a background move of both strings to the lengths of p and
// returns immediately. The slower axis gets a longer step delay so both
// finish together.
func (c *Controller) MoveTo(p geometry.Point) error {
	if !c.plotter.Contains(p, 1e-6) {
		return fmt.Errorf("%w: move to (%.2f, %.2f)", kinematics.ErrOutsideEnvelope, p.X, p.Y)
	}
	var target, steps [2]float64
	target[0], target[1] = c.plotter.Inverse(p)
	for i, m := range c.motors {
		steps[i] = math.Abs(math.Round((target[i] - m.Position()) / m.StepSize()))
	}
	longest := math.Max(steps[0], steps[1])
	if longest == 0 {
		return nil
	}
	debug.Live("Moving to (%.2f, %.2f)", p.X, p.Y)
	for i, m := range c.motors {
		if steps[i] == 0 {
			continue
		}
		delay := time.Duration(float64(c.opts.MoveDelay) * longest / steps[i])
		if err := m.AbsoluteMove(target[i], delay); err != nil {
			return fmt.Errorf("move %s: %w", kinematics.Motor(i), err)
		}
	}
	return nil
}

// Running reports whether either motor has a background move in progress.
func (c *Controller) Running() bool {
	return c.motors[0].Running() || c.motors[1].Running()
}

// WaitIdle polls until both motors report they are not running, then
// returns the error of their last moves.
func (c *Controller) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for c.Running() {
		select {
		case <-ctx.Done():
			c.Stop()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return errors.Join(c.motors[0].Err(), c.motors[1].Err())
}

// Stop asks both background moves to end after their current step.
func (c *Controller) Stop() {
	for _, m := range c.motors {
		m.Stop()
	}
}

// Off de-energizes both motors. Step counters are kept.
func (c *Controller) Off() error {
	return errors.Join(c.motors[0].Off(), c.motors[1].Off())
}

// Execute plays a waveform: it sleeps each entry's delay, then issues one
// step to the addressed motor. Deadlines are measured from the start so
// step overhead does not accumulate. A cancelled context stops between
// steps and is returned as is.
func (c *Controller) Execute(ctx context.Context, w kinematics.Waveform) error {
	if c.Running() {
		return stepper.ErrBusy
	}
	debug.Live("Executing %d steps over %v", len(w.Steps), w.Duration)
	start := time.Now()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	var at time.Duration
	for i, s := range w.Steps {
		at += s.Delay
		if wait := time.Until(start.Add(at)); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				debug.Live("Waveform cancelled after %d/%d steps", i, len(w.Steps))
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.motors[s.Motor].Step(s.Dir); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, s.Motor, err)
		}
		debug.Trace("step %s %+d at %v", s.Motor, s.Dir, at)
	}
	return nil
}
