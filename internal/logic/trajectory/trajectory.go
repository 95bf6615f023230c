// Package trajectory holds the ordered set of polylines that make up one
// drawing, with the transforms and analysis used between vectorization and
// plotting.
package trajectory

import (
	"errors"
	"fmt"
	"math"

	"github.com/cjeanneret/PenGo/internal/debug"
	"github.com/cjeanneret/PenGo/internal/logic/geometry"
)

var (
	// ErrEmpty is returned when an operation needs the bounding box of a
	// trajectory without paths.
	ErrEmpty = errors.New("trajectory: empty trajectory")
	// ErrDegenerate is returned when a trajectory has no extent to scale.
	ErrDegenerate = errors.New("trajectory: degenerate bounding box")
)

// Path is one continuous pen-down polyline.
type Path []geometry.Point

// Length returns the drawing length of the path.
func (p Path) Length() float64 { return geometry.PolylineLength(p) }

// Reverse reverses the point order in place.
func (p Path) Reverse() {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}

// Trajectory is an ordered list of paths. The order is the drawing order.
// Every stored path has at least two points.
type Trajectory struct {
	paths []Path
}

// New returns a trajectory holding the valid paths among paths.
func New(paths ...Path) *Trajectory {
	t := &Trajectory{}
	for _, p := range paths {
		t.Append(p)
	}
	return t
}

// Append stores p at the end. Paths with fewer than two points are
// rejected and Append returns false.
func (t *Trajectory) Append(p Path) bool {
	if len(p) < 2 {
		return false
	}
	t.paths = append(t.paths, p)
	return true
}

// Prepend stores p at the front so it is drawn first.
func (t *Trajectory) Prepend(p Path) bool {
	if len(p) < 2 {
		return false
	}
	t.paths = append([]Path{p}, t.paths...)
	return true
}

// Concat appends every path of other.
func (t *Trajectory) Concat(other *Trajectory) {
	for _, p := range other.paths {
		t.Append(p)
	}
}

// Len returns the number of paths.
func (t *Trajectory) Len() int { return len(t.paths) }

// Path returns path i. The returned slice aliases the trajectory.
func (t *Trajectory) Path(i int) Path { return t.paths[i] }

// Paths returns the paths in drawing order. The slice aliases the trajectory.
func (t *Trajectory) Paths() []Path { return t.paths }

// Points returns the total number of points.
func (t *Trajectory) Points() int {
	n := 0
	for _, p := range t.paths {
		n += len(p)
	}
	return n
}

// Clone returns a deep copy.
func (t *Trajectory) Clone() *Trajectory {
	c := &Trajectory{paths: make([]Path, len(t.paths))}
	for i, p := range t.paths {
		c.paths[i] = append(Path(nil), p...)
	}
	return c
}

func (t *Trajectory) each(f func(*geometry.Point)) {
	for _, p := range t.paths {
		for i := range p {
			f(&p[i])
		}
	}
}

// Ranges returns the x and y extent of all points.
func (t *Trajectory) Ranges() (x, y geometry.Range, err error) {
	if len(t.paths) == 0 {
		return x, y, ErrEmpty
	}
	x, y = geometry.EmptyRange(), geometry.EmptyRange()
	t.each(func(p *geometry.Point) {
		x = x.Extend(p.X)
		y = y.Extend(p.Y)
	})
	return x, y, nil
}

// XRange returns the x extent of all points.
func (t *Trajectory) XRange() (geometry.Range, error) {
	x, _, err := t.Ranges()
	return x, err
}

// YRange returns the y extent of all points.
func (t *Trajectory) YRange() (geometry.Range, error) {
	_, y, err := t.Ranges()
	return y, err
}

// Shift translates every point by d.
func (t *Trajectory) Shift(d geometry.Point) {
	t.each(func(p *geometry.Point) { *p = p.Add(d) })
}

// Scale multiplies every coordinate by sx and sy. With keepCenter the
// bounding box center stays where it was.
func (t *Trajectory) Scale(sx, sy float64, keepCenter bool) error {
	if !keepCenter {
		t.each(func(p *geometry.Point) { p.X *= sx; p.Y *= sy })
		return nil
	}
	x, y, err := t.Ranges()
	if err != nil {
		return err
	}
	cx, cy := x.Center(), y.Center()
	t.each(func(p *geometry.Point) {
		p.X = (p.X-cx)*sx + cx
		p.Y = (p.Y-cy)*sy + cy
	})
	return nil
}

// XFlip mirrors the trajectory horizontally within its own x range.
func (t *Trajectory) XFlip() error {
	x, err := t.XRange()
	if err != nil {
		return err
	}
	t.each(func(p *geometry.Point) { p.X = x.Min + x.Max - p.X })
	return nil
}

// YFlip mirrors the trajectory vertically within its own y range.
func (t *Trajectory) YFlip() error {
	y, err := t.YRange()
	if err != nil {
		return err
	}
	t.each(func(p *geometry.Point) { p.Y = y.Min + y.Max - p.Y })
	return nil
}

// Rotate90 rotates the trajectory a quarter turn clockwise about its
// bounding box center.
func (t *Trajectory) Rotate90() error {
	x, y, err := t.Ranges()
	if err != nil {
		return err
	}
	cx, cy := x.Center(), y.Center()
	t.each(func(p *geometry.Point) {
		p.X, p.Y = p.Y-cy+cx, -p.X+cx+cy
	})
	return nil
}

// Fit scales and shifts the trajectory so its bounding box is centered in
// the target ranges. With keepAspect the smaller of the two axis factors is
// used for both axes.
func (t *Trajectory) Fit(xr, yr geometry.Range, keepAspect bool) error {
	if !xr.Valid() || !yr.Valid() {
		return fmt.Errorf("trajectory: invalid target ranges %+v %+v", xr, yr)
	}
	x, y, err := t.Ranges()
	if err != nil {
		return err
	}
	if x.Span() == 0 && y.Span() == 0 {
		return ErrDegenerate
	}
	sx, sy := xr.Span()/x.Span(), yr.Span()/y.Span()
	// A straight horizontal or vertical drawing takes the factor of the
	// axis that has an extent.
	if x.Span() == 0 {
		sx = sy
	}
	if y.Span() == 0 {
		sy = sx
	}
	if keepAspect {
		s := math.Min(sx, sy)
		sx, sy = s, s
	}
	cx, cy := x.Center(), y.Center()
	tx, ty := xr.Center(), yr.Center()
	t.each(func(p *geometry.Point) {
		p.X = (p.X-cx)*sx + tx
		p.Y = (p.Y-cy)*sy + ty
	})
	debug.Verbose("Fit: scale (%.4g, %.4g), center (%.1f, %.1f)", sx, sy, tx, ty)
	return nil
}

// PathLength returns the drawing length of path i.
func (t *Trajectory) PathLength(i int) float64 { return t.paths[i].Length() }

// ContourLength returns the drawing length and the drawing length plus the
// pen-up travel between consecutive paths.
func (t *Trajectory) ContourLength() (drawing, total float64) {
	for _, p := range t.paths {
		drawing += p.Length()
	}
	return drawing, drawing + t.Travel()
}

// Travel returns the pen-up distance between consecutive paths.
func (t *Trajectory) Travel() float64 {
	var travel float64
	for i := 1; i < len(t.paths); i++ {
		prev := t.paths[i-1]
		travel += geometry.Dist(prev[len(prev)-1], t.paths[i][0])
	}
	return travel
}

// Clean removes every path shorter than minLength and returns how many
// were removed. Order is preserved.
func (t *Trajectory) Clean(minLength float64) int {
	kept := t.paths[:0]
	for _, p := range t.paths {
		if p.Length() >= minLength {
			kept = append(kept, p)
		}
	}
	removed := len(t.paths) - len(kept)
	for i := len(kept); i < len(t.paths); i++ {
		t.paths[i] = nil
	}
	t.paths = kept
	if removed > 0 {
		debug.Verbose("Clean: removed %d paths shorter than %g", removed, minLength)
	}
	return removed
}

// AddFrame draws a rectangle around the trajectory first. The frame is
// offset outward by margin times the larger bounding box dimension.
func (t *Trajectory) AddFrame(margin float64) error {
	x, y, err := t.Ranges()
	if err != nil {
		return err
	}
	m := math.Max(x.Span(), y.Span()) * margin
	x0, x1, y0, y1 := x.Min-m, x.Max+m, y.Min-m, y.Max+m
	t.Prepend(Path{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}})
	return nil
}

// AddBrackets draws four L-shaped corner marks first, offset like AddFrame.
// Each leg is bracket times the larger bounding box dimension.
func (t *Trajectory) AddBrackets(margin, bracket float64) error {
	x, y, err := t.Ranges()
	if err != nil {
		return err
	}
	size := math.Max(x.Span(), y.Span())
	m, b := size*margin, size*bracket
	x0, x1, y0, y1 := x.Min-m, x.Max+m, y.Min-m, y.Max+m
	corners := []Path{
		{{X: x0, Y: y0 + b}, {X: x0, Y: y0}, {X: x0 + b, Y: y0}},
		{{X: x1 - b, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y0 + b}},
		{{X: x1, Y: y1 - b}, {X: x1, Y: y1}, {X: x1 - b, Y: y1}},
		{{X: x0 + b, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y1 - b}},
	}
	for i := len(corners) - 1; i >= 0; i-- {
		t.Prepend(corners[i])
	}
	return nil
}
