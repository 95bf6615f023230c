// Package kinematics turns Cartesian pen motion into step schedules for a
// two-string V-plotter.
//
// The anchors sit at (0, 0) and (L, 0) and y grows downwards, so every
// reachable pen position has y > 0. Motor 1 (Left) winds the string to the
// left anchor, motor 2 (Right) the string to the right anchor. A positive
// step lengthens a string.
package kinematics

import (
	"errors"
	"fmt"
	"math"

	"github.com/cjeanneret/PenGo/internal/logic/geometry"
)

var (
	// ErrOutsideEnvelope is returned when a point lies outside the drawing area.
	ErrOutsideEnvelope = errors.New("kinematics: point outside drawing envelope")
	// ErrUnreachable is returned for string lengths that cannot meet below the anchors.
	ErrUnreachable = errors.New("kinematics: strings cannot meet below the anchors")
)

// Motor identifies one of the two string motors.
type Motor int

const (
	Left Motor = iota
	Right
)

func (m Motor) String() string {
	if m == Left {
		return "left"
	}
	return "right"
}

// VPlotter holds the geometry of the machine.
type VPlotter struct {
	// Separation is the distance L between the two anchors.
	Separation float64
	// XRange and YRange bound the usable drawing area.
	XRange, YRange geometry.Range
}

// Validate checks that the drawing area lies between and below the anchors.
func (v VPlotter) Validate() error {
	if !(v.Separation > 0) {
		return fmt.Errorf("kinematics: anchor separation must be positive, got %v", v.Separation)
	}
	if !v.XRange.Valid() || !v.YRange.Valid() {
		return fmt.Errorf("kinematics: invalid drawing ranges x=%+v y=%+v", v.XRange, v.YRange)
	}
	if v.XRange.Min < 0 || v.XRange.Max > v.Separation {
		return fmt.Errorf("kinematics: x range [%g, %g] not between the anchors [0, %g]", v.XRange.Min, v.XRange.Max, v.Separation)
	}
	if v.YRange.Min <= 0 {
		return fmt.Errorf("kinematics: y range [%g, %g] must lie below the anchor line (y > 0)", v.YRange.Min, v.YRange.Max)
	}
	return nil
}

// Inverse returns the string lengths for pen position p.
func (v VPlotter) Inverse(p geometry.Point) (m1, m2 float64) {
	return math.Hypot(p.X, p.Y), math.Hypot(v.Separation-p.X, p.Y)
}

// Forward returns the pen position for string lengths m1 and m2. Lengths
// that cannot meet (rounding at the anchor line) give y = 0.
func (v VPlotter) Forward(m1, m2 float64) geometry.Point {
	l := v.Separation
	x := (m2*m2 - l*l - m1*m1) / (-2 * l)
	y2 := m2*m2 - (l-x)*(l-x)
	return geometry.Point{X: x, Y: math.Sqrt(math.Max(0, y2))}
}

// Meet returns the pen position hanging from strings m1 and m2. The two
// strings and the anchor line must form a proper triangle.
func (v VPlotter) Meet(m1, m2 float64) (geometry.Point, error) {
	l := v.Separation
	if !(m1 > 0 && m2 > 0) || m1+m2 <= l || math.Abs(m1-m2) >= l {
		return geometry.Point{}, fmt.Errorf("%w: lengths %g and %g with separation %g", ErrUnreachable, m1, m2, l)
	}
	return v.Forward(m1, m2), nil
}

// Contains reports whether p lies in the drawing area, with tol slack.
func (v VPlotter) Contains(p geometry.Point, tol float64) bool {
	return v.XRange.Contains(p.X, tol) && v.YRange.Contains(p.Y, tol)
}

// anchor returns the x coordinate of the anchor of motor m.
func (v VPlotter) anchor(m Motor) float64 {
	if m == Left {
		return 0
	}
	return v.Separation
}
