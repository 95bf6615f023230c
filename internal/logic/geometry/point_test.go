package geometry

import (
	"math"
	"testing"
)

func TestDist(t *testing.T) {
	cases := []struct {
		name string
		p, q Point
		want float64
	}{
		{"same point", Pt(1, 1), Pt(1, 1), 0},
		{"3-4-5", Pt(0, 0), Pt(3, 4), 5},
		{"negative", Pt(-1, -1), Pt(2, 3), 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Dist(tc.p, tc.q); math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("Dist = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLerp(t *testing.T) {
	p, q := Pt(0, 10), Pt(10, 20)
	if got := Lerp(p, q, 0.5); got != Pt(5, 15) {
		t.Errorf("Lerp(0.5) = %v, want (5, 15)", got)
	}
	if got := Lerp(p, q, 0); got != p {
		t.Errorf("Lerp(0) = %v, want %v", got, p)
	}
}

func TestPolylineLength(t *testing.T) {
	pts := []Point{Pt(0, 0), Pt(3, 4), Pt(3, 10)}
	if got := PolylineLength(pts); got != 11 {
		t.Errorf("length = %v, want 11", got)
	}
	if got := PolylineLength(pts[:1]); got != 0 {
		t.Errorf("single point length = %v, want 0", got)
	}
}

func TestRange(t *testing.T) {
	r := EmptyRange()
	if r.Valid() {
		t.Error("empty range should be invalid")
	}
	for _, v := range []float64{3, -1, 7} {
		r = r.Extend(v)
	}
	if r != (Range{Min: -1, Max: 7}) {
		t.Errorf("range = %+v, want [-1, 7]", r)
	}
	if r.Span() != 8 || r.Center() != 3 {
		t.Errorf("span %v center %v, want 8 and 3", r.Span(), r.Center())
	}
	if !r.Contains(7.05, 0.1) || r.Contains(7.2, 0.1) {
		t.Error("Contains tolerance not honored")
	}
}
