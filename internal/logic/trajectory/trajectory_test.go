package trajectory

import (
	"errors"
	"math"
	"testing"

	"github.com/cjeanneret/PenGo/internal/logic/geometry"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func pt(x, y float64) geometry.Point { return geometry.Point{X: x, Y: y} }

// twoLines is the trajectory of the contour length example.
func twoLines() *Trajectory {
	return New(
		Path{pt(0, 0), pt(1, 0)},
		Path{pt(5, 5), pt(6, 5)},
	)
}

func square(size float64) *Trajectory {
	return New(Path{pt(0, 0), pt(size, 0), pt(size, size), pt(0, size), pt(0, 0)})
}

// ---------- Append ----------

func TestAppend_RejectsShortPaths(t *testing.T) {
	tr := &Trajectory{}
	if tr.Append(nil) || tr.Append(Path{pt(1, 1)}) {
		t.Error("paths with fewer than two points must be rejected")
	}
	if !tr.Append(Path{pt(0, 0), pt(1, 1)}) {
		t.Error("two point path rejected")
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
}

// ---------- Ranges ----------

func TestRanges_Empty(t *testing.T) {
	tr := &Trajectory{}
	if _, _, err := tr.Ranges(); !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
	if err := tr.Fit(geometry.Range{Min: 0, Max: 1}, geometry.Range{Min: 0, Max: 1}, true); !errors.Is(err, ErrEmpty) {
		t.Errorf("Fit err = %v, want ErrEmpty", err)
	}
	if err := tr.AddFrame(0.1); !errors.Is(err, ErrEmpty) {
		t.Errorf("AddFrame err = %v, want ErrEmpty", err)
	}
}

func TestRanges(t *testing.T) {
	x, y, err := twoLines().Ranges()
	if err != nil {
		t.Fatal(err)
	}
	if x != (geometry.Range{Min: 0, Max: 6}) || y != (geometry.Range{Min: 0, Max: 5}) {
		t.Errorf("ranges = %+v %+v", x, y)
	}
}

// ---------- Contour length ----------

func TestContourLength_TwoLines(t *testing.T) {
	drawing, total := twoLines().ContourLength()
	if drawing != 2 {
		t.Errorf("drawing = %v, want 2", drawing)
	}
	want := 2 + math.Hypot(4, 5)
	if math.Abs(total-want) > 1e-12 {
		t.Errorf("total = %v, want %v", total, want)
	}
	if math.Abs(total-8.40) > 0.01 {
		t.Errorf("total = %v, want about 8.40", total)
	}
}

// ---------- Transforms ----------

func TestFit_KeepAspect(t *testing.T) {
	tr := square(10)
	if err := tr.Fit(geometry.Range{Min: 100, Max: 200}, geometry.Range{Min: 100, Max: 300}, true); err != nil {
		t.Fatal(err)
	}
	x, y, _ := tr.Ranges()
	if diff := cmp.Diff(geometry.Range{Min: 100, Max: 200}, x, approx); diff != "" {
		t.Errorf("x range (-want +got):\n%s", diff)
	}
	// Scaled by 10 and centered on 200: a 50 unit margin on both y ends.
	if diff := cmp.Diff(geometry.Range{Min: 150, Max: 250}, y, approx); diff != "" {
		t.Errorf("y range (-want +got):\n%s", diff)
	}
}

func TestFit_Stretch(t *testing.T) {
	tr := square(10)
	if err := tr.Fit(geometry.Range{Min: 100, Max: 200}, geometry.Range{Min: 100, Max: 300}, false); err != nil {
		t.Fatal(err)
	}
	_, y, _ := tr.Ranges()
	if diff := cmp.Diff(geometry.Range{Min: 100, Max: 300}, y, approx); diff != "" {
		t.Errorf("y range (-want +got):\n%s", diff)
	}
}

func TestFit_HorizontalLine(t *testing.T) {
	tr := New(Path{pt(0, 3), pt(10, 3)})
	if err := tr.Fit(geometry.Range{Min: 0, Max: 100}, geometry.Range{Min: 0, Max: 50}, true); err != nil {
		t.Fatal(err)
	}
	want := Path{pt(0, 25), pt(100, 25)}
	if diff := cmp.Diff(want, tr.Path(0), approx); diff != "" {
		t.Errorf("fitted line (-want +got):\n%s", diff)
	}
}

func TestFit_SinglePoint(t *testing.T) {
	tr := New(Path{pt(1, 1), pt(1, 1)})
	err := tr.Fit(geometry.Range{Min: 0, Max: 1}, geometry.Range{Min: 0, Max: 1}, true)
	if !errors.Is(err, ErrDegenerate) {
		t.Errorf("err = %v, want ErrDegenerate", err)
	}
}

func TestScale_KeepCenter(t *testing.T) {
	tr := square(10)
	tr.Shift(pt(5, 5))
	if err := tr.Scale(2, 0.5, true); err != nil {
		t.Fatal(err)
	}
	x, y, _ := tr.Ranges()
	if x.Center() != 10 || y.Center() != 10 {
		t.Errorf("center = (%v, %v), want (10, 10)", x.Center(), y.Center())
	}
	if x.Span() != 20 || y.Span() != 5 {
		t.Errorf("span = (%v, %v), want (20, 5)", x.Span(), y.Span())
	}
}

func TestScale_Origin(t *testing.T) {
	tr := New(Path{pt(1, 2), pt(3, 4)})
	if err := tr.Scale(2, 3, false); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Path{pt(2, 6), pt(6, 12)}, tr.Path(0)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFlips(t *testing.T) {
	tr := New(Path{pt(0, 0), pt(4, 1)}, Path{pt(1, 3), pt(2, 2)})
	if err := tr.XFlip(); err != nil {
		t.Fatal(err)
	}
	want := []Path{{pt(4, 0), pt(0, 1)}, {pt(3, 3), pt(2, 2)}}
	if diff := cmp.Diff(want, tr.Paths()); diff != "" {
		t.Errorf("XFlip (-want +got):\n%s", diff)
	}
	if err := tr.YFlip(); err != nil {
		t.Fatal(err)
	}
	want = []Path{{pt(4, 3), pt(0, 2)}, {pt(3, 0), pt(2, 1)}}
	if diff := cmp.Diff(want, tr.Paths()); diff != "" {
		t.Errorf("YFlip (-want +got):\n%s", diff)
	}
}

func TestRotate90(t *testing.T) {
	// Bounding box [0,4]x[0,2], center (2,1).
	tr := New(Path{pt(0, 0), pt(4, 2)})
	if err := tr.Rotate90(); err != nil {
		t.Fatal(err)
	}
	want := Path{pt(1, 3), pt(3, -1)}
	if diff := cmp.Diff(want, tr.Path(0), approx); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	// Four quarter turns are the identity.
	for i := 0; i < 3; i++ {
		if err := tr.Rotate90(); err != nil {
			t.Fatal(err)
		}
	}
	if diff := cmp.Diff(Path{pt(0, 0), pt(4, 2)}, tr.Path(0), approx); diff != "" {
		t.Errorf("after four turns (-want +got):\n%s", diff)
	}
}

// ---------- Clean ----------

func TestClean(t *testing.T) {
	tr := New(
		Path{pt(0, 0), pt(10, 0)},
		Path{pt(0, 1), pt(0.5, 1)},
		Path{pt(0, 2), pt(3, 2)},
		Path{pt(0, 3), pt(0.1, 3), pt(0.2, 3)},
	)
	if removed := tr.Clean(1); removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	want := []Path{{pt(0, 0), pt(10, 0)}, {pt(0, 2), pt(3, 2)}}
	if diff := cmp.Diff(want, tr.Paths()); diff != "" {
		t.Errorf("kept paths (-want +got):\n%s", diff)
	}
}

// ---------- Frame ----------

func TestAddFrame(t *testing.T) {
	tr := New(Path{pt(0, 0), pt(10, 5)})
	if err := tr.AddFrame(0.1); err != nil {
		t.Fatal(err)
	}
	if tr.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tr.Len())
	}
	frame := tr.Path(0)
	want := Path{pt(-1, -1), pt(11, -1), pt(11, 6), pt(-1, 6), pt(-1, -1)}
	if diff := cmp.Diff(want, frame, approx); diff != "" {
		t.Errorf("frame (-want +got):\n%s", diff)
	}
}

func TestAddBrackets(t *testing.T) {
	tr := New(Path{pt(0, 0), pt(10, 10)})
	if err := tr.AddBrackets(0, 0.2); err != nil {
		t.Fatal(err)
	}
	if tr.Len() != 5 {
		t.Fatalf("Len = %d, want 4 brackets + drawing", tr.Len())
	}
	first := tr.Path(0)
	if diff := cmp.Diff(Path{pt(0, 2), pt(0, 0), pt(2, 0)}, first, approx); diff != "" {
		t.Errorf("first bracket (-want +got):\n%s", diff)
	}
	for i := 0; i < 4; i++ {
		if len(tr.Path(i)) != 3 {
			t.Errorf("bracket %d has %d points", i, len(tr.Path(i)))
		}
		if l := tr.PathLength(i); math.Abs(l-4) > 1e-9 {
			t.Errorf("bracket %d length = %v, want 4", i, l)
		}
	}
}

// ---------- Smoothing ----------

func TestSmooth_PreservesPolynomials(t *testing.T) {
	p := make(Path, 20)
	for i := range p {
		x := float64(i)
		p[i] = pt(x, 0.5*x*x-3*x+1)
	}
	tr := New(append(Path(nil), p...))
	if err := tr.Smooth(7, 2); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(p, tr.Path(0), cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("quadratic changed by order 2 smoothing (-want +got):\n%s", diff)
	}
}

func TestSmooth_ReducesNoise(t *testing.T) {
	p := make(Path, 41)
	for i := range p {
		noise := 0.5
		if i%2 == 1 {
			noise = -0.5
		}
		p[i] = pt(float64(i), noise)
	}
	tr := New(p)
	if err := tr.Smooth(5, 1); err != nil {
		t.Fatal(err)
	}
	for i, q := range tr.Path(0)[2:39] {
		if math.Abs(q.Y) > 0.11 {
			t.Errorf("point %d y = %v, want close to 0", i+2, q.Y)
		}
	}
}

func TestSavgolWeights(t *testing.T) {
	for _, tc := range []struct {
		name        string
		half, order int
		u           float64
		want        []float64
	}{
		{"quadratic centre", 2, 2, 0, []float64{-3.0 / 35, 12.0 / 35, 17.0 / 35, 12.0 / 35, -3.0 / 35}},
		{"linear centre", 2, 1, 0, []float64{0.2, 0.2, 0.2, 0.2, 0.2}},
		{"linear edge", 1, 1, 1, []float64{-1.0 / 6, 1.0 / 3, 5.0 / 6}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := savgolWeights(tc.half, tc.order, tc.u)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got, approx); diff != "" {
				t.Errorf("weights (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSmooth_InvalidWindow(t *testing.T) {
	tr := square(1)
	for _, w := range []int{0, 2, 4} {
		if err := tr.Smooth(w, 1); err == nil {
			t.Errorf("window %d: expected error", w)
		}
	}
	if err := tr.Smooth(5, 5); err == nil {
		t.Error("order equal to window: expected error")
	}
}

// ---------- Patterns ----------

func TestRose_Closed(t *testing.T) {
	for _, tc := range []struct{ n, d int }{{3, 1}, {2, 1}, {5, 3}} {
		tr := Rose(tc.n, tc.d, 50)
		if tr.Len() != 1 {
			t.Fatalf("rose %d/%d: %d paths", tc.n, tc.d, tr.Len())
		}
		p := tr.Path(0)
		if !geometry.Near(p[0], p[len(p)-1], 1e-9) {
			t.Errorf("rose %d/%d does not close: %v -> %v", tc.n, tc.d, p[0], p[len(p)-1])
		}
	}
}

func TestTestPattern(t *testing.T) {
	tr := TestPattern(100)
	if tr.Len() != 7 {
		t.Errorf("Len = %d, want 7", tr.Len())
	}
	x, y, _ := tr.Ranges()
	if x != (geometry.Range{Min: 0, Max: 100}) || y != (geometry.Range{Min: 0, Max: 100}) {
		t.Errorf("ranges = %+v %+v", x, y)
	}
}
