// Package plot drives a whole drawing job: homing, per-path planning,
// repositioning, pen control and waveform execution.
package plot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/PenGo/internal/debug"
	"github.com/cjeanneret/PenGo/internal/hw/pen"
	"github.com/cjeanneret/PenGo/internal/logic/geometry"
	"github.com/cjeanneret/PenGo/internal/logic/kinematics"
	"github.com/cjeanneret/PenGo/internal/logic/motion"
	"github.com/cjeanneret/PenGo/internal/logic/trajectory"
)

// State of the plot sequence.
type State int

const (
	Idle State = iota
	Homing
	Planning
	WaitingForIdle
	PenDown
	Executing
	PenUp
)

var stateNames = [...]string{"idle", "homing", "planning", "waiting for idle", "pen down", "executing", "pen up"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Progress is a snapshot of the sequence.
type Progress struct {
	State State `json:"-"`
	Name  string `json:"state"`
	Path  int    `json:"path"`
	Paths int    `json:"paths"`
}

// Params defines a plot job.
type Params struct {
	// Velocity is the drawing speed in plotter units per second.
	Velocity float64
	// FlipY mirrors the drawing vertically after fitting. Images and SVG
	// files have y pointing up, the plotter has y pointing down.
	FlipY bool
	// Stretch fills both axes instead of keeping the aspect ratio.
	Stretch bool
	// Homing is used on the first plot. When nil the pen is assumed to
	// be at Start.
	Homing *motion.Homing
	Start  geometry.Point
}

// Sequence contains high-level logic for plotting a trajectory.
type Sequence struct {
	motion  *motion.Controller
	pen     pen.Lifter
	planner *kinematics.Planner

	mu       sync.Mutex
	progress Progress
	homed    bool
	observer func(Progress)
}

func NewSequence(m *motion.Controller, p pen.Lifter, planner *kinematics.Planner) *Sequence {
	return &Sequence{
		motion:   m,
		pen:      p,
		planner:  planner,
		progress: Progress{State: Idle, Name: Idle.String()},
	}
}

// OnProgress registers fn to be called on every state change.
func (s *Sequence) OnProgress(fn func(Progress)) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// Progress returns the current state.
func (s *Sequence) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *Sequence) set(state State, path int) {
	s.mu.Lock()
	from := s.progress.State
	s.progress.State = state
	s.progress.Name = state.String()
	s.progress.Path = path
	p, fn := s.progress, s.observer
	s.mu.Unlock()
	if from != state {
		debug.State(from.String(), state.String())
	}
	if fn != nil {
		fn(p)
	}
}

// Prepare returns a copy of t fitted into the drawing area. Every point is
// checked against the envelope so a bad job fails before any motion.
func (s *Sequence) Prepare(t *trajectory.Trajectory, p Params) (*trajectory.Trajectory, error) {
	v := s.motion.Plotter()
	out := t.Clone()
	if err := out.Fit(v.XRange, v.YRange, !p.Stretch); err != nil {
		return nil, err
	}
	if p.FlipY {
		if err := out.YFlip(); err != nil {
			return nil, err
		}
	}
	for i, path := range out.Paths() {
		for _, pt := range path {
			if !v.Contains(pt, 1e-6) {
				return nil, fmt.Errorf("path %d: %w: (%.2f, %.2f)", i, kinematics.ErrOutsideEnvelope, pt.X, pt.Y)
			}
		}
	}
	return out, nil
}

// Plot draws t. Each path is drawn as: start the move to its first point,
// plan its waveform, wait for the move to finish, pen down, execute, pen
// up. On any error, including cancellation, the pen is lifted and both
// motors are de-energized.
func (s *Sequence) Plot(ctx context.Context, t *trajectory.Trajectory, p Params) (err error) {
	if !(p.Velocity > 0) {
		return fmt.Errorf("plot: velocity must be positive, got %v", p.Velocity)
	}
	job, err := s.Prepare(t, p)
	if err != nil {
		return err
	}
	n := job.Len()
	s.mu.Lock()
	s.progress.Paths = n
	s.mu.Unlock()

	defer func() {
		if err != nil {
			debug.Error(err)
			err = errors.Join(err, s.safeStop())
		}
		s.set(Idle, 0)
	}()

	if err := s.home(ctx, p); err != nil {
		return err
	}
	if err := s.pen.Up(); err != nil {
		return err
	}

	debug.Summary(fmt.Sprintf("Plotting %d paths, %d points", n, job.Points()))
	for i, path := range job.Paths() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.set(Planning, i+1)
		if err := s.motion.MoveTo(path[0]); err != nil {
			return fmt.Errorf("path %d: %w", i+1, err)
		}
		w, err := s.planner.PlanPath(path, p.Velocity)
		if err != nil {
			return fmt.Errorf("path %d: %w", i+1, err)
		}

		s.set(WaitingForIdle, i+1)
		if err := s.motion.WaitIdle(ctx); err != nil {
			return fmt.Errorf("path %d: %w", i+1, err)
		}

		s.set(PenDown, i+1)
		if err := s.pen.Down(); err != nil {
			return err
		}
		s.set(Executing, i+1)
		if err := s.motion.Execute(ctx, w); err != nil {
			return fmt.Errorf("path %d: %w", i+1, err)
		}
		s.set(PenUp, i+1)
		if err := s.pen.Up(); err != nil {
			return err
		}
		debug.PathProgress(i+1, n, len(path))
	}
	debug.Info("Plot complete")
	return nil
}

func (s *Sequence) home(ctx context.Context, p Params) error {
	s.mu.Lock()
	homed := s.homed
	s.mu.Unlock()
	if homed {
		return nil
	}
	if p.Homing != nil {
		s.set(Homing, 0)
		if err := s.motion.Home(ctx, *p.Homing); err != nil {
			return err
		}
	} else {
		debug.Live("Homing disabled, assuming pen at (%.2f, %.2f)", p.Start.X, p.Start.Y)
		s.motion.SetPosition(p.Start)
	}
	s.mu.Lock()
	s.homed = true
	s.mu.Unlock()
	return nil
}

// safeStop lifts the pen and de-energizes the motors. Released motors
// lose their position, so the next plot homes again.
func (s *Sequence) safeStop() error {
	s.motion.Stop()
	s.mu.Lock()
	s.homed = false
	s.mu.Unlock()
	return errors.Join(s.pen.Up(), s.motion.Off())
}
