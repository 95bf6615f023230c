package trajectory

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cjeanneret/PenGo/internal/debug"
	"github.com/cjeanneret/PenGo/internal/logic/bezier"
	"github.com/cjeanneret/PenGo/internal/logic/geometry"
)

// joinTolerance is the distance under which a segment start is considered
// to continue the previous segment.
const joinTolerance = 1e-6

type svgDoc struct {
	XMLName xml.Name  `xml:"svg"`
	Xmlns   string    `xml:"xmlns,attr"`
	ViewBox string    `xml:"viewBox,attr,omitempty"`
	Paths   []svgPath `xml:"path"`
}

type svgPath struct {
	D           string `xml:"d,attr"`
	Fill        string `xml:"fill,attr"`
	Stroke      string `xml:"stroke,attr"`
	StrokeWidth string `xml:"stroke-width,attr"`
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// WriteSVG writes one <path> per trajectory path. SVG has y pointing down,
// so y is negated.
func (t *Trajectory) WriteSVG(w io.Writer) error {
	doc := svgDoc{Xmlns: "http://www.w3.org/2000/svg"}
	if x, y, err := t.Ranges(); err == nil {
		doc.ViewBox = strings.Join([]string{
			formatFloat(x.Min), formatFloat(-y.Max), formatFloat(x.Span()), formatFloat(y.Span()),
		}, " ")
	}
	for _, p := range t.paths {
		var b strings.Builder
		for i, pt := range p {
			if i == 0 {
				b.WriteString("M ")
			} else if i == 1 {
				b.WriteString(" L ")
			} else {
				b.WriteByte(' ')
			}
			b.WriteString(formatFloat(pt.X))
			b.WriteByte(',')
			b.WriteString(formatFloat(-pt.Y))
		}
		doc.Paths = append(doc.Paths, svgPath{D: b.String(), Fill: "none", Stroke: "black", StrokeWidth: "1"})
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode svg: %w", err)
	}
	return enc.Flush()
}

// SVGOptions tunes Bézier flattening on import. Zero values select the
// bezier package defaults.
type SVGOptions struct {
	Tolerance float64
	MaxDepth  int
}

// ImportStats summarizes an SVG import.
type ImportStats struct {
	Elements int
	Segments int
	// DepthLimited counts curve segments whose flattening stopped at the
	// recursion limit before reaching the tolerance.
	DepthLimited int
}

// ReadSVG imports <path>, <polyline>, <polygon> and <line> elements.
// Curves are flattened, y is negated back, null segments are dropped and a
// new path starts wherever a segment does not continue the previous one.
// Element transforms are not applied.
func ReadSVG(r io.Reader, opts SVGOptions) (*Trajectory, ImportStats, error) {
	var stats ImportStats
	if opts.Tolerance <= 0 {
		opts.Tolerance = bezier.DefaultTolerance
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = bezier.DefaultMaxDepth
	}

	// Segments are joined into paths within an element, never across.
	var elems [][][]geometry.Point
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read svg: %w", err)
		}
		el, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		var elSegs [][]geometry.Point
		switch el.Name.Local {
		case "path":
			elSegs, err = parsePathData(attr(el, "d"))
		case "polyline", "polygon":
			elSegs, err = parsePoints(attr(el, "points"), el.Name.Local == "polygon")
		case "line":
			elSegs, err = parseLine(el)
		case "rect":
			elSegs, err = parseRect(el)
		default:
			continue
		}
		if err != nil {
			return nil, stats, fmt.Errorf("svg <%s>: %w", el.Name.Local, err)
		}
		stats.Elements++
		elems = append(elems, elSegs)
	}

	t := &Trajectory{}
	var cur Path
	flush := func() {
		// A closed two-segment path retraces a single line.
		if len(cur) == 3 && geometry.Near(cur[0], cur[2], joinTolerance) {
			cur = cur[:2]
		}
		t.Append(cur)
		cur = nil
	}
	for _, segs := range elems {
		for _, seg := range segs {
			if isNull(seg) {
				continue
			}
			stats.Segments++
			pts, limited := bezier.Flatten(seg, opts.Tolerance, opts.MaxDepth)
			if limited {
				stats.DepthLimited++
			}
			for i := range pts {
				pts[i].Y = -pts[i].Y
			}
			if len(cur) > 0 && geometry.Near(cur[len(cur)-1], pts[0], joinTolerance) {
				cur = append(cur, pts[1:]...)
				continue
			}
			if len(cur) > 0 {
				flush()
			}
			cur = pts
		}
		if len(cur) > 0 {
			flush()
		}
	}
	if stats.DepthLimited > 0 {
		debug.Warn("SVG import: %d curve segments hit the flattening depth limit (%d)", stats.DepthLimited, opts.MaxDepth)
	}
	debug.Verbose("SVG import: %d elements, %d segments, %d paths", stats.Elements, stats.Segments, t.Len())
	return t, stats, nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func isNull(seg []geometry.Point) bool {
	for _, p := range seg[1:] {
		if p != seg[0] {
			return false
		}
	}
	return true
}

func parsePoints(s string, closed bool) ([][]geometry.Point, error) {
	sc := &pathScanner{s: s}
	var pts []geometry.Point
	for !sc.done() {
		v, err := sc.numbers(2)
		if err != nil {
			return nil, err
		}
		pts = append(pts, geometry.Point{X: v[0], Y: v[1]})
	}
	if closed && len(pts) > 1 && pts[0] != pts[len(pts)-1] {
		pts = append(pts, pts[0])
	}
	segs := make([][]geometry.Point, 0, len(pts))
	for i := 1; i < len(pts); i++ {
		segs = append(segs, []geometry.Point{pts[i-1], pts[i]})
	}
	return segs, nil
}

// numAttrs reads numeric attributes. Missing ones are zero.
func numAttrs(el xml.StartElement, names ...string) ([]float64, error) {
	v := make([]float64, len(names))
	for i, name := range names {
		s := attr(el, name)
		if s == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrMalformedPath, name, s)
		}
		v[i] = f
	}
	return v, nil
}

func parseLine(el xml.StartElement) ([][]geometry.Point, error) {
	v, err := numAttrs(el, "x1", "y1", "x2", "y2")
	if err != nil {
		return nil, err
	}
	return [][]geometry.Point{{{X: v[0], Y: v[1]}, {X: v[2], Y: v[3]}}}, nil
}

// parseRect returns the outline of a rect element. Rounded corners are
// drawn square. A zero width or height draws nothing.
func parseRect(el xml.StartElement) ([][]geometry.Point, error) {
	v, err := numAttrs(el, "x", "y", "width", "height")
	if err != nil {
		return nil, err
	}
	x, y, w, h := v[0], v[1], v[2], v[3]
	if w < 0 || h < 0 {
		return nil, fmt.Errorf("%w: negative rect size %gx%g", ErrMalformedPath, w, h)
	}
	if w == 0 || h == 0 {
		return nil, nil
	}
	corners := []geometry.Point{{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h}, {X: x, Y: y}}
	segs := make([][]geometry.Point, 0, 4)
	for i := 1; i < len(corners); i++ {
		segs = append(segs, []geometry.Point{corners[i-1], corners[i]})
	}
	return segs, nil
}
