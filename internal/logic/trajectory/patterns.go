package trajectory

import (
	"math"

	"github.com/cjeanneret/PenGo/internal/logic/geometry"
)

// Rose returns the rose curve r = cos(n/d·θ) of unit radius sampled with
// the given number of points per petal period.
func Rose(n, d, samples int) *Trajectory {
	if n <= 0 || d <= 0 || samples < 2 {
		return &Trajectory{}
	}
	k := float64(n) / float64(d)
	turns := float64(d)
	if (n*d)%2 == 1 {
		// Odd n·d closes after half the turns.
		turns /= 2
	}
	total := int(float64(samples) * turns * 2)
	p := make(Path, 0, total+1)
	for i := 0; i <= total; i++ {
		theta := 2 * math.Pi * turns * float64(i) / float64(total)
		r := math.Cos(k * theta)
		p = append(p, geometry.Point{X: r * math.Cos(theta), Y: r * math.Sin(theta)})
	}
	return New(p)
}

// TestPattern returns a calibration drawing of the given size: five nested
// squares, each inset by a tenth of size, and a centered cross.
func TestPattern(size float64) *Trajectory {
	t := &Trajectory{}
	for i := 0; i < 5; i++ {
		m := size * float64(i) / 10
		a, b := m, size-m
		t.Append(Path{{X: a, Y: a}, {X: b, Y: a}, {X: b, Y: b}, {X: a, Y: b}, {X: a, Y: a}})
	}
	c := size / 2
	t.Append(Path{{X: c, Y: 0}, {X: c, Y: size}})
	t.Append(Path{{X: 0, Y: c}, {X: size, Y: c}})
	return t
}
