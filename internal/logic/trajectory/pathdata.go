package trajectory

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/cjeanneret/PenGo/internal/logic/geometry"
)

// ErrMalformedPath is returned for SVG path data that cannot be parsed.
var ErrMalformedPath = errors.New("trajectory: malformed svg path data")

// pathScanner tokenizes SVG path data ("M 10,20 l5-5.5e1z").
type pathScanner struct {
	s   string
	pos int
}

func isSep(c byte) bool {
	return c == ' ' || c == ',' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func (p *pathScanner) skipSep() {
	for p.pos < len(p.s) && isSep(p.s[p.pos]) {
		p.pos++
	}
}

func (p *pathScanner) done() bool {
	p.skipSep()
	return p.pos >= len(p.s)
}

// peekNumber reports whether a number starts at the current position.
func (p *pathScanner) peekNumber() bool {
	p.skipSep()
	if p.pos >= len(p.s) {
		return false
	}
	c := p.s[p.pos]
	return c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9')
}

func (p *pathScanner) command() (byte, error) {
	p.skipSep()
	c := p.s[p.pos]
	if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
		return 0, fmt.Errorf("%w: unexpected %q at %d", ErrMalformedPath, c, p.pos)
	}
	p.pos++
	return c, nil
}

func (p *pathScanner) number() (float64, error) {
	p.skipSep()
	start := p.pos
	i := p.pos
	if i < len(p.s) && (p.s[i] == '-' || p.s[i] == '+') {
		i++
	}
	digits, dot := 0, false
mantissa:
	for i < len(p.s) {
		c := p.s[i]
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !dot:
			dot = true
		default:
			break mantissa
		}
		i++
	}
	if digits > 0 && i < len(p.s) && (p.s[i] == 'e' || p.s[i] == 'E') {
		j := i + 1
		if j < len(p.s) && (p.s[j] == '-' || p.s[j] == '+') {
			j++
		}
		if j < len(p.s) && p.s[j] >= '0' && p.s[j] <= '9' {
			for j < len(p.s) && p.s[j] >= '0' && p.s[j] <= '9' {
				j++
			}
			i = j
		}
	}
	if digits == 0 {
		return 0, fmt.Errorf("%w: expected number at %d", ErrMalformedPath, start)
	}
	v, err := strconv.ParseFloat(p.s[start:i], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedPath, err)
	}
	p.pos = i
	return v, nil
}

// flag reads an arc flag, which may be written without a separator.
func (p *pathScanner) flag() (bool, error) {
	p.skipSep()
	if p.pos < len(p.s) && (p.s[p.pos] == '0' || p.s[p.pos] == '1') {
		p.pos++
		return p.s[p.pos-1] == '1', nil
	}
	return false, fmt.Errorf("%w: expected arc flag at %d", ErrMalformedPath, p.pos)
}

func (p *pathScanner) numbers(n int) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		v, err := p.number()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// parsePathData converts SVG path data into Bézier control polygons in
// document coordinates: two points for a line, three for a quadratic, four
// for a cubic. Arcs are converted to cubics.
func parsePathData(d string) ([][]geometry.Point, error) {
	var segs [][]geometry.Point
	var cur, start, ctrl geometry.Point
	var cmd, prevCmd byte
	sc := &pathScanner{s: d}
	pt := func(x, y float64, rel bool) geometry.Point {
		if rel {
			return geometry.Point{X: cur.X + x, Y: cur.Y + y}
		}
		return geometry.Point{X: x, Y: y}
	}

	for !sc.done() {
		if !sc.peekNumber() {
			c, err := sc.command()
			if err != nil {
				return nil, err
			}
			if prevCmd == 0 && c != 'M' && c != 'm' {
				return nil, fmt.Errorf("%w: path data must start with a move-to", ErrMalformedPath)
			}
			cmd = c
		} else if cmd == 0 {
			return nil, fmt.Errorf("%w: path data must start with a command", ErrMalformedPath)
		}
		rel := cmd >= 'a'
		switch cmd {
		case 'M', 'm':
			v, err := sc.numbers(2)
			if err != nil {
				return nil, err
			}
			cur = pt(v[0], v[1], rel)
			start = cur
			// Further coordinate pairs are implicit line-tos.
			if rel {
				cmd = 'l'
			} else {
				cmd = 'L'
			}
			prevCmd = 'M'
			continue
		case 'L', 'l':
			v, err := sc.numbers(2)
			if err != nil {
				return nil, err
			}
			next := pt(v[0], v[1], rel)
			segs = append(segs, []geometry.Point{cur, next})
			cur = next
		case 'H', 'h':
			v, err := sc.number()
			if err != nil {
				return nil, err
			}
			next := geometry.Point{X: v, Y: cur.Y}
			if rel {
				next.X = cur.X + v
			}
			segs = append(segs, []geometry.Point{cur, next})
			cur = next
		case 'V', 'v':
			v, err := sc.number()
			if err != nil {
				return nil, err
			}
			next := geometry.Point{X: cur.X, Y: v}
			if rel {
				next.Y = cur.Y + v
			}
			segs = append(segs, []geometry.Point{cur, next})
			cur = next
		case 'C', 'c':
			v, err := sc.numbers(6)
			if err != nil {
				return nil, err
			}
			c1, c2, next := pt(v[0], v[1], rel), pt(v[2], v[3], rel), pt(v[4], v[5], rel)
			segs = append(segs, []geometry.Point{cur, c1, c2, next})
			ctrl, cur = c2, next
		case 'S', 's':
			v, err := sc.numbers(4)
			if err != nil {
				return nil, err
			}
			c1 := cur
			if prevCmd == 'C' || prevCmd == 'c' || prevCmd == 'S' || prevCmd == 's' {
				c1 = cur.Mul(2).Sub(ctrl)
			}
			c2, next := pt(v[0], v[1], rel), pt(v[2], v[3], rel)
			segs = append(segs, []geometry.Point{cur, c1, c2, next})
			ctrl, cur = c2, next
		case 'Q', 'q':
			v, err := sc.numbers(4)
			if err != nil {
				return nil, err
			}
			c1, next := pt(v[0], v[1], rel), pt(v[2], v[3], rel)
			segs = append(segs, []geometry.Point{cur, c1, next})
			ctrl, cur = c1, next
		case 'T', 't':
			v, err := sc.numbers(2)
			if err != nil {
				return nil, err
			}
			c1 := cur
			if prevCmd == 'Q' || prevCmd == 'q' || prevCmd == 'T' || prevCmd == 't' {
				c1 = cur.Mul(2).Sub(ctrl)
			}
			next := pt(v[0], v[1], rel)
			segs = append(segs, []geometry.Point{cur, c1, next})
			ctrl, cur = c1, next
		case 'A', 'a':
			v, err := sc.numbers(3)
			if err != nil {
				return nil, err
			}
			large, err := sc.flag()
			if err != nil {
				return nil, err
			}
			sweep, err := sc.flag()
			if err != nil {
				return nil, err
			}
			e, err := sc.numbers(2)
			if err != nil {
				return nil, err
			}
			next := pt(e[0], e[1], rel)
			segs = append(segs, arcToCubics(cur, next, v[0], v[1], v[2], large, sweep)...)
			cur = next
		case 'Z', 'z':
			if cur != start {
				segs = append(segs, []geometry.Point{cur, start})
			}
			cur = start
			prevCmd = cmd
			// Z takes no arguments; a following number is an error.
			if sc.peekNumber() {
				return nil, fmt.Errorf("%w: number after close path", ErrMalformedPath)
			}
			cmd = 0
			continue
		default:
			return nil, fmt.Errorf("%w: unknown command %q", ErrMalformedPath, cmd)
		}
		prevCmd = cmd
	}
	return segs, nil
}

// arcToCubics approximates an SVG elliptical arc by cubic Béziers of at
// most a quarter turn each (SVG 1.1 implementation notes, F.6).
func arcToCubics(p0, p1 geometry.Point, rx, ry, phiDeg float64, large, sweep bool) [][]geometry.Point {
	rx, ry = math.Abs(rx), math.Abs(ry)
	if rx == 0 || ry == 0 {
		return [][]geometry.Point{{p0, p1}}
	}
	if p0 == p1 {
		return nil
	}
	phi := phiDeg * math.Pi / 180
	cos, sin := math.Cos(phi), math.Sin(phi)

	dx, dy := (p0.X-p1.X)/2, (p0.Y-p1.Y)/2
	x1 := cos*dx + sin*dy
	y1 := -sin*dx + cos*dy

	// Scale up radii that are too small to reach the end point.
	if lambda := x1*x1/(rx*rx) + y1*y1/(ry*ry); lambda > 1 {
		s := math.Sqrt(lambda)
		rx, ry = rx*s, ry*s
	}

	num := rx*rx*ry*ry - rx*rx*y1*y1 - ry*ry*x1*x1
	den := rx*rx*y1*y1 + ry*ry*x1*x1
	coef := math.Sqrt(math.Max(0, num/den))
	if large == sweep {
		coef = -coef
	}
	cx1 := coef * rx * y1 / ry
	cy1 := -coef * ry * x1 / rx
	cx := cos*cx1 - sin*cy1 + (p0.X+p1.X)/2
	cy := sin*cx1 + cos*cy1 + (p0.Y+p1.Y)/2

	angle := func(ux, uy, vx, vy float64) float64 {
		return math.Atan2(ux*vy-uy*vx, ux*vx+uy*vy)
	}
	theta := angle(1, 0, (x1-cx1)/rx, (y1-cy1)/ry)
	delta := angle((x1-cx1)/rx, (y1-cy1)/ry, (-x1-cx1)/rx, (-y1-cy1)/ry)
	if !sweep && delta > 0 {
		delta -= 2 * math.Pi
	} else if sweep && delta < 0 {
		delta += 2 * math.Pi
	}

	n := int(math.Ceil(math.Abs(delta) / (math.Pi / 2)))
	step := delta / float64(n)
	k := 4.0 / 3 * math.Tan(step/4)
	on := func(a float64) (geometry.Point, geometry.Point) {
		ca, sa := math.Cos(a), math.Sin(a)
		p := geometry.Point{X: cx + rx*ca*cos - ry*sa*sin, Y: cy + rx*ca*sin + ry*sa*cos}
		d := geometry.Point{X: -rx*sa*cos - ry*ca*sin, Y: -rx*sa*sin + ry*ca*cos}
		return p, d
	}

	segs := make([][]geometry.Point, 0, n)
	a := theta
	from := p0
	_, dFrom := on(a)
	for i := 0; i < n; i++ {
		b := a + step
		to, dTo := on(b)
		if i == n-1 {
			to = p1
		}
		segs = append(segs, []geometry.Point{from, from.Add(dFrom.Mul(k)), to.Sub(dTo.Mul(k)), to})
		from, dFrom, a = to, dTo, b
	}
	return segs
}
