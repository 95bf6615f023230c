package geometry

import "math"

// Range is a closed interval [Min, Max].
type Range struct {
	Min, Max float64
}

// EmptyRange returns a range that any Extend call will replace.
func EmptyRange() Range {
	return Range{Min: math.Inf(1), Max: math.Inf(-1)}
}

// Extend grows r to include v.
func (r Range) Extend(v float64) Range {
	return Range{Min: math.Min(r.Min, v), Max: math.Max(r.Max, v)}
}

// Span returns Max - Min.
func (r Range) Span() float64 { return r.Max - r.Min }

// Center returns the middle of the range.
func (r Range) Center() float64 { return (r.Min + r.Max) / 2 }

// Contains reports whether v lies in the range, with tol slack on both ends.
func (r Range) Contains(v, tol float64) bool {
	return v >= r.Min-tol && v <= r.Max+tol
}

// Valid reports whether Min <= Max and both are finite.
func (r Range) Valid() bool {
	return r.Min <= r.Max && !math.IsInf(r.Min, 0) && !math.IsInf(r.Max, 0) && !math.IsNaN(r.Min) && !math.IsNaN(r.Max)
}
