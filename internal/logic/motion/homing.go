package motion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/PenGo/internal/debug"
	"github.com/cjeanneret/PenGo/internal/logic/kinematics"
)

// ErrHomingFailed is returned when an axis finishes its homing travel
// without reaching its switch.
var ErrHomingFailed = errors.New("motion: limit switch not reached")

// Switch is a limit switch.
type Switch interface {
	Triggered() (bool, error)
}

// HomingAxis describes how one string finds its reference.
type HomingAxis struct {
	Switch Switch
	// Direction is -1 to shorten the string towards the switch, +1 to lengthen it.
	Direction int
	// Home is the string length when the switch triggers.
	Home float64
}

// Homing parameters for both axes.
type Homing struct {
	Axes      [2]HomingAxis
	StepDelay time.Duration
	// MaxTravel bounds the string length moved while looking for a switch.
	MaxTravel float64
}

type homingState int

const (
	seeking homingState = iota
	stopping
	homed
)

// Home moves every axis towards its switch at once. Each axis is stopped
// when its own switch triggers and its counter reset to the home length.
// Homing completes once all axes have triggered. The home lengths must
// put the pen inside the drawing area; they are checked before any motion.
func (c *Controller) Home(ctx context.Context, h Homing) error {
	debug.Section("Homing")
	if h.MaxTravel <= 0 {
		return fmt.Errorf("motion: homing travel must be positive, got %v", h.MaxTravel)
	}
	home, err := c.plotter.Meet(h.Axes[kinematics.Left].Home, h.Axes[kinematics.Right].Home)
	if err != nil {
		return fmt.Errorf("motion: home lengths: %w", err)
	}
	if !c.plotter.Contains(home, 1e-6) {
		return fmt.Errorf("motion: home position (%.2f, %.2f): %w", home.X, home.Y, kinematics.ErrOutsideEnvelope)
	}
	delay := h.StepDelay
	if delay <= 0 {
		delay = c.opts.MoveDelay
	}

	var state [2]homingState
	for i, ax := range h.Axes {
		if ax.Switch == nil {
			return fmt.Errorf("motion: no limit switch for %s motor", kinematics.Motor(i))
		}
		hit, err := ax.Switch.Triggered()
		if err != nil {
			return err
		}
		if hit {
			c.motors[i].SetPosition(ax.Home)
			state[i] = homed
			debug.Live("Motor %s already on its switch", kinematics.Motor(i))
			continue
		}
		dir := 1.0
		if ax.Direction < 0 {
			dir = -1
		}
		if err := c.motors[i].RelativeMove(dir*h.MaxTravel, delay); err != nil {
			c.Stop()
			return fmt.Errorf("homing %s: %w", kinematics.Motor(i), err)
		}
	}

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for state[0] != homed || state[1] != homed {
		for i, ax := range h.Axes {
			m := c.motors[i]
			switch state[i] {
			case seeking:
				hit, err := ax.Switch.Triggered()
				if err != nil {
					c.Stop()
					return err
				}
				if hit {
					m.Stop()
					state[i] = stopping
					continue
				}
				if !m.Running() {
					c.Stop()
					if err := m.Err(); err != nil {
						return fmt.Errorf("homing %s: %w", kinematics.Motor(i), err)
					}
					return fmt.Errorf("%w: %s motor", ErrHomingFailed, kinematics.Motor(i))
				}
			case stopping:
				// The counter must not change after it is reset.
				if !m.Running() {
					m.SetPosition(ax.Home)
					state[i] = homed
					debug.Live("Motor %s homed at %.2f", kinematics.Motor(i), ax.Home)
				}
			}
		}
		if state[0] == homed && state[1] == homed {
			break
		}
		select {
		case <-ctx.Done():
			c.Stop()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	p := c.Position()
	debug.Info("Homed: pen at (%.2f, %.2f)", p.X, p.Y)
	return nil
}
