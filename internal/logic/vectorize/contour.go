package vectorize

import (
	"cmp"
	"fmt"
	"image"
	"slices"

	"github.com/cjeanneret/PenGo/internal/debug"
	"github.com/cjeanneret/PenGo/internal/logic/geometry"
	"github.com/cjeanneret/PenGo/internal/logic/trajectory"
)

// maxWalk bounds the number of pixels followed in one walk.
const maxWalk = 1000

// ContourParams configures Contour.
type ContourParams struct {
	// Filters are OR-ed into the ridge mask. Empty selects DefaultDoG.
	Filters []Filter
	// MinBlobSize is the smallest 8-connected ridge area kept, in pixels.
	MinBlobSize int
	// Smooth runs a Savitzky-Golay filter over the traced paths.
	Smooth       bool
	SmoothWindow int
	SmoothOrder  int
}

// bitmap is a binary raster, row major.
type bitmap struct {
	w, h int
	v    []bool
}

func (b *bitmap) at(x, y int) bool {
	if x < 0 || y < 0 || x >= b.w || y >= b.h {
		return false
	}
	return b.v[y*b.w+x]
}

func (b *bitmap) count() int {
	n := 0
	for _, on := range b.v {
		if on {
			n++
		}
	}
	return n
}

// Contour traces the ridges of g: filter to a ridge mask, drop small blobs,
// thin to one pixel and walk each skeleton into a path. Paths are ordered
// from the top of the image down.
func Contour(g *image.Gray, p ContourParams) (*trajectory.Trajectory, error) {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	if w < 3 || h < 3 {
		return nil, fmt.Errorf("%w: image %dx%d too small to trace", ErrInvalidParams, w, h)
	}
	filters := p.Filters
	if len(filters) == 0 {
		filters = []Filter{DefaultDoG}
	}

	m := &bitmap{w: w, h: h, v: make([]bool, w*h)}
	for _, flt := range filters {
		for i, on := range flt.mask(g) {
			m.v[i] = m.v[i] || on
		}
	}
	debug.Verbose("Contour: %d ridge pixels", m.count())

	removed := removeSmallObjects(m, p.MinBlobSize)
	debug.Verbose("Contour: removed %d small blobs", removed)
	skeletonize(m)
	debug.Verbose("Contour: %d skeleton pixels", m.count())

	t := trace(m)
	if p.Smooth {
		if err := t.Smooth(p.SmoothWindow, p.SmoothOrder); err != nil {
			return nil, err
		}
	}
	debug.Verbose("Contour: %d paths, %d points", t.Len(), t.Points())
	return t, nil
}

var neighbours = [8][2]int{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}

// removeSmallObjects clears 8-connected components smaller than minSize
// and returns how many were removed.
func removeSmallObjects(m *bitmap, minSize int) int {
	if minSize <= 1 {
		return 0
	}
	seen := make([]bool, len(m.v))
	removed := 0
	var stack, comp []int
	for start, on := range m.v {
		if !on || seen[start] {
			continue
		}
		comp = comp[:0]
		stack = append(stack[:0], start)
		seen[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, i)
			x, y := i%m.w, i/m.w
			for _, d := range neighbours {
				nx, ny := x+d[0], y+d[1]
				if !m.at(nx, ny) {
					continue
				}
				if j := ny*m.w + nx; !seen[j] {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}
		if len(comp) < minSize {
			for _, i := range comp {
				m.v[i] = false
			}
			removed++
		}
	}
	return removed
}

// skeletonize thins m in place to one pixel wide lines (Zhang-Suen).
func skeletonize(m *bitmap) {
	var del []int
	for {
		changed := false
		for pass := 0; pass < 2; pass++ {
			del = del[:0]
			for y := 0; y < m.h; y++ {
				for x := 0; x < m.w; x++ {
					if m.v[y*m.w+x] && thinnable(m, x, y, pass) {
						del = append(del, y*m.w+x)
					}
				}
			}
			for _, i := range del {
				m.v[i] = false
			}
			changed = changed || len(del) > 0
		}
		if !changed {
			return
		}
	}
}

func thinnable(m *bitmap, x, y, pass int) bool {
	// Clockwise from north: P2 .. P9.
	var p [8]bool
	p[0] = m.at(x, y-1)
	p[1] = m.at(x+1, y-1)
	p[2] = m.at(x+1, y)
	p[3] = m.at(x+1, y+1)
	p[4] = m.at(x, y+1)
	p[5] = m.at(x-1, y+1)
	p[6] = m.at(x-1, y)
	p[7] = m.at(x-1, y-1)

	b, a := 0, 0
	for i, on := range p {
		if on {
			b++
		}
		if !on && p[(i+1)%8] {
			a++
		}
	}
	if b < 2 || b > 6 || a != 1 {
		return false
	}
	n, e, s, w := p[0], p[2], p[4], p[6]
	if pass == 0 {
		return !(n && e && s) && !(e && s && w)
	}
	return !(n && e && w) && !(n && s && w)
}

// trace walks the skeleton into paths, consuming it. Each component is
// first walked to one of its ends, then walked again from there while
// clearing the pixels passed.
func trace(m *bitmap) *trajectory.Trajectory {
	for x := 0; x < m.w; x++ {
		m.v[x] = false
		m.v[(m.h-1)*m.w+x] = false
	}
	for y := 0; y < m.h; y++ {
		m.v[y*m.w] = false
		m.v[y*m.w+m.w-1] = false
	}

	var paths []trajectory.Path
	cursor := 0
	for {
		for cursor < len(m.v) && !m.v[cursor] {
			cursor++
		}
		if cursor == len(m.v) {
			break
		}
		ex, ey := walk(m, cursor%m.w, cursor/m.w, false, nil)
		var path trajectory.Path
		walk(m, ex, ey, true, func(x, y int) {
			path = append(path, geometry.Pt(float64(x), float64(m.h-y)))
		})
		paths = append(paths, path)
	}

	top := func(p trajectory.Path) float64 {
		y := p[0].Y
		for _, pt := range p[1:] {
			y = max(y, pt.Y)
		}
		return y
	}
	slices.SortStableFunc(paths, func(a, b trajectory.Path) int { return cmp.Compare(top(b), top(a)) })
	// Isolated pixels give one point paths, which New drops.
	return trajectory.New(paths...)
}

// walk follows foreground pixels from (x, y), never stepping straight back
// to the previous pixel, and returns the last pixel reached. With consume
// set, visited pixels are cleared.
func walk(m *bitmap, x, y int, consume bool, visit func(x, y int)) (int, int) {
	var back [2]int
	hasBack := false
	for step := 0; step < maxWalk; step++ {
		if visit != nil {
			visit(x, y)
		}
		if consume {
			m.v[y*m.w+x] = false
		}
		next := -1
		for i, d := range neighbours {
			if hasBack && d == back {
				continue
			}
			if m.at(x+d[0], y+d[1]) {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		d := neighbours[next]
		back = [2]int{-d[0], -d[1]}
		hasBack = true
		x, y = x+d[0], y+d[1]
	}
	return x, y
}
