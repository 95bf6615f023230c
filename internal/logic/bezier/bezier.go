// Package bezier flattens Bézier curves of any order into polylines.
package bezier

import "github.com/cjeanneret/PenGo/internal/logic/geometry"

// Default flattening parameters.
const (
	DefaultTolerance = 0.002
	DefaultMaxDepth  = 10
)

// Split divides the curve with control points pts at parameter t using
// de Casteljau's construction. Both halves have len(pts) control points and
// share the split point.
func Split(pts []geometry.Point, t float64) (left, right []geometry.Point) {
	n := len(pts)
	left = make([]geometry.Point, n)
	right = make([]geometry.Point, n)
	work := append([]geometry.Point(nil), pts...)
	for level := 0; level < n; level++ {
		left[level] = work[0]
		right[n-1-level] = work[n-1-level]
		for i := 0; i < n-1-level; i++ {
			work[i] = geometry.Lerp(work[i], work[i+1], t)
		}
	}
	return left, right
}

// Eval returns the point of the curve at parameter t.
func Eval(pts []geometry.Point, t float64) geometry.Point {
	work := append([]geometry.Point(nil), pts...)
	for n := len(work) - 1; n > 0; n-- {
		for i := 0; i < n; i++ {
			work[i] = geometry.Lerp(work[i], work[i+1], t)
		}
	}
	return work[0]
}

// IsFlat reports whether the control polygon is no longer than (1+tol)
// times the chord.
func IsFlat(pts []geometry.Point, tol float64) bool {
	chord := geometry.Dist(pts[0], pts[len(pts)-1])
	return geometry.PolylineLength(pts) <= (1+tol)*chord
}

// Flatten approximates the curve by a polyline, halving it recursively
// until every piece is flat within tol or maxDepth halvings were done.
// The returned points start with pts[0] and end with the last control
// point. limited is true when some piece hit the depth limit before
// becoming flat.
func Flatten(pts []geometry.Point, tol float64, maxDepth int) (out []geometry.Point, limited bool) {
	if len(pts) == 0 {
		return nil, false
	}
	out = []geometry.Point{pts[0]}
	if len(pts) == 1 {
		return out, false
	}
	return flatten(out, pts, tol, maxDepth)
}

func flatten(out, pts []geometry.Point, tol float64, depth int) ([]geometry.Point, bool) {
	if IsFlat(pts, tol) {
		return append(out, pts[len(pts)-1]), false
	}
	if depth <= 0 {
		return append(out, pts[len(pts)-1]), true
	}
	left, right := Split(pts, 0.5)
	out, l1 := flatten(out, left, tol, depth-1)
	out, l2 := flatten(out, right, tol, depth-1)
	return out, l1 || l2
}
