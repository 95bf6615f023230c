package kinematics

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/cjeanneret/PenGo/internal/debug"
	"github.com/cjeanneret/PenGo/internal/logic/geometry"
)

// tieTolerance is the cosine between string and velocity under which a
// string is considered neither lengthening nor shortening.
const tieTolerance = 1e-9

// envelopeTolerance is the slack allowed when checking points against the
// drawing area.
const envelopeTolerance = 1e-6

// Event is one planned step, T seconds after the start of its segment.
type Event struct {
	T     float64
	Motor Motor
	Dir   int
}

// Segment is the step schedule of one straight line.
type Segment struct {
	From, To geometry.Point
	Duration float64 // seconds
	// Events are sorted by T. Steps of both motors at the same time keep
	// the left motor first.
	Events []Event
	// End is the position actually reached after all steps, which differs
	// from To by less than a step.
	End geometry.Point
}

// Planner computes step schedules for a V-plotter.
type Planner struct {
	Plotter VPlotter
	// StepSize is the string length of one step of each motor.
	StepSize [2]float64
	// MinSegmentDelay is added before the first step of every segment
	// after the first one.
	MinSegmentDelay time.Duration
}

// NewPlanner validates the machine description and returns a planner.
func NewPlanner(v VPlotter, left, right float64, minSegmentDelay time.Duration) (*Planner, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if !(left > 0) || !(right > 0) {
		return nil, fmt.Errorf("kinematics: step sizes must be positive, got %v and %v", left, right)
	}
	return &Planner{Plotter: v, StepSize: [2]float64{left, right}, MinSegmentDelay: minSegmentDelay}, nil
}

// PlanSegment schedules the steps of both motors that move the pen from
// from to to at constant speed in duration seconds.
func (p *Planner) PlanSegment(from, to geometry.Point, duration float64) Segment {
	seg := Segment{From: from, To: to, Duration: duration, End: from}
	if !(duration > 0) || from == to {
		return seg
	}
	left, m1 := p.planAxis(Left, from, to, duration)
	right, m2 := p.planAxis(Right, from, to, duration)

	seg.Events = append(left, right...)
	slices.SortStableFunc(seg.Events, func(a, b Event) int { return cmp.Compare(a.T, b.T) })
	seg.End = p.Plotter.Forward(m1, m2)
	return seg
}

// planAxis returns the steps of motor m for the segment and the string
// length reached at its end.
//
// With the pen moving as from + v·t, the squared string length is the
// quadratic s²(t) = a·t² + b·t + c. Each step is placed at the time s(t)
// crosses the next length quantum: the larger root when lengthening, the
// smaller root while shortening. s(t) has at most one minimum, at
// t* = -b/2a, so a string shortens until t* and lengthens afterwards.
func (p *Planner) planAxis(m Motor, from, to geometry.Point, duration float64) ([]Event, float64) {
	ax := p.Plotter.anchor(m)
	x0, y0 := from.X-ax, from.Y
	vx, vy := (to.X-from.X)/duration, (to.Y-from.Y)/duration
	a := vx*vx + vy*vy
	b := 2 * (x0*vx + y0*vy)
	c := x0*x0 + y0*y0
	speed := math.Sqrt(a)
	step := p.StepSize[m]

	length := math.Sqrt(c)
	// The string changes by at most the distance travelled.
	limit := int(speed*duration/step) + 8

	var events []Event
	t := 0.0
	for len(events) < limit {
		s := math.Sqrt(math.Max(0, (a*t+b)*t+c))
		dir := 1
		// ds/dt = (a·t + b/2) / s. At a tie the second derivative
		// (a - (ds/dt)²) / s is never negative, so the string lengthens.
		if s > 0 && (a*t+b/2)/(speed*s) < -tieTolerance {
			dir = -1
		}
		target := length + float64(dir)*step
		disc := b*b - 4*a*(c-target*target)

		if dir < 0 && (target < 0 || disc < 0) {
			// The minimum of s lies above the next quantum: no shortening
			// step, the string starts lengthening at t*.
			tmin := -b / (2 * a)
			if tmin > duration {
				break
			}
			t = math.Max(t, tmin)
			dir = 1
			target = length + step
			disc = b*b - 4*a*(c-target*target)
		}

		root := (-b + float64(dir)*math.Sqrt(math.Max(0, disc))) / (2 * a)
		root = math.Max(root, t)
		if root > duration {
			// The next quantum is crossed after the segment ends.
			break
		}
		t = root
		length = target
		events = append(events, Event{T: t, Motor: m, Dir: dir})
	}
	return events, length
}

// Step is one entry of a waveform: wait Delay, then step Motor in Dir.
type Step struct {
	Delay time.Duration
	Motor Motor
	Dir   int
}

// Waveform is the merged step stream of a whole path.
type Waveform struct {
	Steps    []Step
	Duration time.Duration
	Start    geometry.Point
	End      geometry.Point
	Segments int
}

// Counts returns the net step count of each motor.
func (w Waveform) Counts() [2]int {
	var n [2]int
	for _, s := range w.Steps {
		n[s.Motor] += s.Dir
	}
	return n
}

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

// PlanPath plans a polyline drawn at velocity (units per second). Each
// segment starts where the previous one actually ended. Delays carry the
// time between the last step of a segment and its end, plus
// MinSegmentDelay, into the next segment.
func (p *Planner) PlanPath(path []geometry.Point, velocity float64) (Waveform, error) {
	if !(velocity > 0) {
		return Waveform{}, fmt.Errorf("kinematics: velocity must be positive, got %v", velocity)
	}
	if len(path) < 2 {
		return Waveform{}, errors.New("kinematics: path needs at least two points")
	}
	for i, pt := range path {
		if !p.Plotter.Contains(pt, envelopeTolerance) {
			return Waveform{}, fmt.Errorf("%w: point %d (%.2f, %.2f)", ErrOutsideEnvelope, i, pt.X, pt.Y)
		}
	}

	w := Waveform{Start: path[0]}
	cur := path[0]
	var carry float64 // seconds since the last emitted step
	var total float64
	for i := 1; i < len(path); i++ {
		duration := geometry.Dist(cur, path[i]) / velocity
		seg := p.PlanSegment(cur, path[i], duration)
		if w.Segments > 0 {
			carry += p.MinSegmentDelay.Seconds()
			total += p.MinSegmentDelay.Seconds()
		}
		prev := 0.0
		for _, e := range seg.Events {
			w.Steps = append(w.Steps, Step{Delay: seconds(carry + e.T - prev), Motor: e.Motor, Dir: e.Dir})
			carry = 0
			prev = e.T
		}
		carry += seg.Duration - prev
		total += seg.Duration
		cur = seg.End
		w.Segments++
	}
	w.End = cur
	w.Duration = seconds(total)
	debug.Verbose("Planned %d segments: %d steps over %v, end (%.2f, %.2f)", w.Segments, len(w.Steps), w.Duration, cur.X, cur.Y)
	return w, nil
}
