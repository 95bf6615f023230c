package trajectory

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/cjeanneret/PenGo/internal/logic/geometry"
	"github.com/google/go-cmp/cmp"
)

func readSVG(t *testing.T, body string) (*Trajectory, ImportStats) {
	t.Helper()
	doc := `<svg xmlns="http://www.w3.org/2000/svg">` + body + `</svg>`
	tr, stats, err := ReadSVG(strings.NewReader(doc), SVGOptions{})
	if err != nil {
		t.Fatalf("ReadSVG: %v", err)
	}
	return tr, stats
}

func TestReadSVG_LinesAndSubpaths(t *testing.T) {
	tr, _ := readSVG(t, `<path d="M 0,0 L 10,0 h 5 v 5 M 20 20 l 1 1"/>`)
	want := []Path{
		{pt(0, 0), pt(10, 0), pt(15, 0), pt(15, -5)},
		{pt(20, -20), pt(21, -21)},
	}
	if diff := cmp.Diff(want, tr.Paths()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestReadSVG_ImplicitCommands(t *testing.T) {
	tr, _ := readSVG(t, `<path d="m1-1 2 0 0-2"/>`)
	want := []Path{{pt(1, 1), pt(3, 1), pt(3, 3)}}
	if diff := cmp.Diff(want, tr.Paths()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestReadSVG_CollapsesRetracedLine(t *testing.T) {
	tr, _ := readSVG(t, `<path d="M 0 0 L 10 0 Z"/>`)
	want := []Path{{pt(0, 0), pt(10, 0)}}
	if diff := cmp.Diff(want, tr.Paths()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestReadSVG_ClosedTriangle(t *testing.T) {
	tr, _ := readSVG(t, `<polygon points="0,0 10,0 0,10"/>`)
	want := []Path{{pt(0, 0), pt(10, 0), pt(0, -10), pt(0, 0)}}
	if diff := cmp.Diff(want, tr.Paths()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestReadSVG_SkipsNullSegments(t *testing.T) {
	tr, stats := readSVG(t, `<path d="M 5 5 L 5 5 L 6 5 C 6 5 6 5 6 5"/>`)
	if stats.Segments != 1 {
		t.Errorf("Segments = %d, want 1", stats.Segments)
	}
	if diff := cmp.Diff([]Path{{pt(5, -5), pt(6, -5)}}, tr.Paths()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestReadSVG_CubicFlattened(t *testing.T) {
	tr, stats := readSVG(t, `<path d="M 0 0 C 0 -10 10 -10 10 0"/>`)
	if tr.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tr.Len())
	}
	p := tr.Path(0)
	if len(p) < 5 {
		t.Errorf("cubic flattened to %d points", len(p))
	}
	if p[0] != pt(0, 0) || p[len(p)-1] != pt(10, 0) {
		t.Errorf("endpoints %v %v", p[0], p[len(p)-1])
	}
	// The arch bulges to y = 7.5 once y is negated.
	_, y, _ := tr.Ranges()
	if math.Abs(y.Max-7.5) > 0.05 {
		t.Errorf("max y = %v, want about 7.5", y.Max)
	}
	if stats.DepthLimited != 0 {
		t.Errorf("DepthLimited = %d", stats.DepthLimited)
	}
}

func TestReadSVG_SmoothCurves(t *testing.T) {
	tr, _ := readSVG(t, `<path d="M0 0 Q 5 -5 10 0 T 20 0 M 0 20 C 0 10 10 10 10 20 S 20 30 20 20"/>`)
	if tr.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tr.Len())
	}
	last := tr.Path(0)[len(tr.Path(0))-1]
	if last != pt(20, 0) {
		t.Errorf("quadratic chain ends at %v", last)
	}
	_, y, _ := New(tr.Path(0)).Ranges()
	if y.Min >= 0 || y.Max <= 0 {
		t.Errorf("reflected control point should dip below the axis, y range %+v", y)
	}
}

func TestReadSVG_Arc(t *testing.T) {
	tr, _ := readSVG(t, `<path d="M 0 0 A 5 5 0 0 1 10 0"/>`)
	p := tr.Path(0)
	for _, q := range p {
		if r := geometry.Dist(q, pt(5, 0)); math.Abs(r-5) > 0.01 {
			t.Fatalf("point %v is %v from the center, want 5", q, r)
		}
	}
	if !geometry.Near(p[len(p)-1], pt(10, 0), 1e-9) {
		t.Errorf("arc ends at %v", p[len(p)-1])
	}
}

func TestReadSVG_LineElement(t *testing.T) {
	tr, _ := readSVG(t, `<g><line x1="1" y1="2" x2="3" y2="4"/></g>`)
	if diff := cmp.Diff([]Path{{pt(1, -2), pt(3, -4)}}, tr.Paths()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestReadSVG_ElementsStaySeparate(t *testing.T) {
	tr, _ := readSVG(t, `<path d="M0,0 L10,0"/><path d="M10,0 L10,10"/>`)
	want := []Path{
		{pt(0, 0), pt(10, 0)},
		{pt(10, 0), pt(10, -10)},
	}
	if diff := cmp.Diff(want, tr.Paths()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestReadSVG_Rect(t *testing.T) {
	tr, stats := readSVG(t, `<rect x="1" y="2" width="4" height="3" rx="1"/><rect width="0" height="5"/>`)
	want := []Path{{pt(1, -2), pt(5, -2), pt(5, -5), pt(1, -5), pt(1, -2)}}
	if diff := cmp.Diff(want, tr.Paths()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if stats.Elements != 2 || stats.Segments != 4 {
		t.Errorf("stats = %+v, want 2 elements and 4 segments", stats)
	}

	doc := `<svg><rect width="-1" height="2"/></svg>`
	if _, _, err := ReadSVG(strings.NewReader(doc), SVGOptions{}); !errors.Is(err, ErrMalformedPath) {
		t.Errorf("negative width: err = %v, want ErrMalformedPath", err)
	}
}

func TestReadSVG_Malformed(t *testing.T) {
	for _, d := range []string{"L 1 1", "M 1", "M 0 0 X 1 1", "M 0 0 Z 4"} {
		doc := `<svg><path d="` + d + `"/></svg>`
		_, _, err := ReadSVG(strings.NewReader(doc), SVGOptions{})
		if !errors.Is(err, ErrMalformedPath) {
			t.Errorf("d=%q: err = %v, want ErrMalformedPath", d, err)
		}
	}
}

func TestReadSVG_DepthLimitCounted(t *testing.T) {
	doc := `<svg><path d="M 0 0 C 10 10 -10 10 0 0.001"/></svg>`
	_, stats, err := ReadSVG(strings.NewReader(doc), SVGOptions{MaxDepth: 1})
	if err != nil {
		t.Fatal(err)
	}
	if stats.DepthLimited != 1 {
		t.Errorf("DepthLimited = %d, want 1 for a near loop flattened at depth 1", stats.DepthLimited)
	}
}

func TestWriteSVG_RoundTrip(t *testing.T) {
	tr := New(
		Path{pt(0.5, 1.25), pt(3, 4), pt(-2, 7.125)},
		Path{pt(10, 10), pt(11, 12)},
	)
	var buf bytes.Buffer
	if err := tr.WriteSVG(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `d="M 0.5,-1.25 L 3,-4 -2,-7.125"`) {
		t.Errorf("unexpected path data:\n%s", buf.String())
	}
	got, _, err := ReadSVG(&buf, SVGOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(tr.Paths(), got.Paths()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
