package vectorize

import (
	"fmt"
	"image"

	"github.com/cjeanneret/PenGo/internal/debug"
	"github.com/cjeanneret/PenGo/internal/logic/geometry"
	"github.com/cjeanneret/PenGo/internal/logic/trajectory"
)

// Waveform is the shape of a scan line.
type Waveform string

const (
	Square   Waveform = "square"
	Sawtooth Waveform = "sawtooth"
)

func (w Waveform) valid() bool { return w == Square || w == Sawtooth }

// AmplitudeParams configures AmplitudeScan.
type AmplitudeParams struct {
	Lines int
	// PixelsPerPeriod is the horizontal period of the zig-zag. It must be
	// even: each half period is one bin.
	PixelsPerPeriod int
	Gain            float64
	Waveform        Waveform
	Snake           bool
}

// FrequencyParams configures FrequencyScan.
type FrequencyParams struct {
	Lines int
	// PixelsPerPeriod is the period of the zig-zag over a mid-gray area.
	PixelsPerPeriod float64
	Gain            float64
	Waveform        Waveform
	Snake           bool
}

// ShiftedParams configures ShiftedLinesScan.
type ShiftedParams struct {
	Lines int
	// Scans is the number of overlapping passes. Their offsets spread
	// evenly over [-Gain, Gain].
	Scans int
	Gain  float64
	Snake bool
}

// lineWidth returns the band height in pixels.
func lineWidth(g *image.Gray, lines int) (int, error) {
	if lines <= 0 {
		return 0, fmt.Errorf("%w: %d lines", ErrInvalidParams, lines)
	}
	lw := g.Bounds().Dy() / lines
	if lw == 0 {
		return 0, fmt.Errorf("%w: %d lines for an image %d pixels high", ErrInvalidParams, lines, g.Bounds().Dy())
	}
	return lw, nil
}

// bandY returns the drawing y of value v (in half band heights) on band line.
func bandY(v float64, line, lw, lines int) float64 {
	h := float64(lw)
	return float64(lines*lw) - (v*h/2 + h*float64(line) + h/2)
}

// AmplitudeScan draws each band as a zig-zag whose amplitude follows the
// darkness of the image. The period is checked before the image is read.
func AmplitudeScan(g *image.Gray, p AmplitudeParams) (*trajectory.Trajectory, error) {
	if p.PixelsPerPeriod%2 != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrOddPeriod, p.PixelsPerPeriod)
	}
	if p.PixelsPerPeriod <= 0 {
		return nil, fmt.Errorf("%w: pixels per period %d", ErrInvalidParams, p.PixelsPerPeriod)
	}
	if !p.Waveform.valid() {
		return nil, fmt.Errorf("%w: waveform %q", ErrInvalidParams, p.Waveform)
	}
	lw, err := lineWidth(g, p.Lines)
	if err != nil {
		return nil, err
	}
	half := p.PixelsPerPeriod / 2
	d := bands(g, lw, half)
	if len(d[0]) < 2 {
		return nil, fmt.Errorf("%w: image narrower than one period", ErrInvalidParams)
	}

	t := trajectory.New()
	for line := 0; line < p.Lines; line++ {
		path := make(trajectory.Path, len(d[line]))
		for k, dark := range d[line] {
			sign := float64((k%2)*2 - 1)
			path[k] = geometry.Pt(float64(k*half), bandY(sign*p.Gain*dark, line, lw, p.Lines))
		}
		if p.Waveform == Square {
			path = squareWave(path)
		}
		t.Append(path)
	}
	if p.Snake {
		Snake(t)
	}
	debug.Verbose("Amplitude scan: %d lines, %d points", t.Len(), t.Points())
	return t, nil
}

// squareWave turns sawtooth vertices into a square wave: a vertical edge at
// each vertex followed by a flat run to the next one.
func squareWave(pts trajectory.Path) trajectory.Path {
	out := make(trajectory.Path, 0, 2*len(pts)-1)
	out = append(out, pts[0])
	for k := 1; k < len(pts); k++ {
		out = append(out, geometry.Pt(pts[k-1].X, pts[k].Y), pts[k])
	}
	return out
}

// FrequencyScan draws each band as a constant amplitude zig-zag that flips
// every time the darkness accumulated along the row exceeds half a period.
// Darker areas get denser lines.
func FrequencyScan(g *image.Gray, p FrequencyParams) (*trajectory.Trajectory, error) {
	if !(p.PixelsPerPeriod > 0) {
		return nil, fmt.Errorf("%w: pixels per period %v", ErrInvalidParams, p.PixelsPerPeriod)
	}
	if !p.Waveform.valid() {
		return nil, fmt.Errorf("%w: waveform %q", ErrInvalidParams, p.Waveform)
	}
	lw, err := lineWidth(g, p.Lines)
	if err != nil {
		return nil, err
	}
	d := bands(g, lw, 1)
	width := len(d[0])
	if width < 2 {
		return nil, fmt.Errorf("%w: image narrower than two pixels", ErrInvalidParams)
	}
	threshold := p.PixelsPerPeriod / 2

	t := trajectory.New()
	for line := 0; line < p.Lines; line++ {
		row := d[line]
		xs, signs := []int{0}, []float64{-1}
		acc := row[0]
		for x := 1; x < width; x++ {
			acc += row[x]
			if acc <= threshold {
				continue
			}
			last := signs[len(signs)-1]
			if p.Waveform == Square {
				xs = append(xs, x, x)
				signs = append(signs, last, -last)
			} else {
				xs = append(xs, x)
				signs = append(signs, -last)
			}
			acc = 0
		}
		// Run to the right edge so every band spans the image.
		if xs[len(xs)-1] != width-1 {
			xs = append(xs, width-1)
			signs = append(signs, signs[len(signs)-1])
		}
		path := make(trajectory.Path, len(xs))
		for k := range xs {
			path[k] = geometry.Pt(float64(xs[k]), bandY(signs[k]*p.Gain, line, lw, p.Lines))
		}
		t.Append(path)
	}
	if p.Snake {
		Snake(t)
	}
	debug.Verbose("Frequency scan: %d lines, %d points", t.Len(), t.Points())
	return t, nil
}

// ShiftedLinesScan overlays several straight-ish line scans. In each pass
// a line is shifted vertically by its darkness times the pass offset, so
// dark areas spread the passes apart.
func ShiftedLinesScan(g *image.Gray, p ShiftedParams) (*trajectory.Trajectory, error) {
	if p.Scans <= 0 {
		return nil, fmt.Errorf("%w: %d scans", ErrInvalidParams, p.Scans)
	}
	lw, err := lineWidth(g, p.Lines)
	if err != nil {
		return nil, err
	}
	d := bands(g, lw, 1)
	if len(d[0]) < 2 {
		return nil, fmt.Errorf("%w: image narrower than two pixels", ErrInvalidParams)
	}

	t := trajectory.New()
	for s := 0; s < p.Scans; s++ {
		offset := -p.Gain
		if p.Scans > 1 {
			offset += 2 * p.Gain * float64(s) / float64(p.Scans-1)
		}
		pass := trajectory.New()
		for line := 0; line < p.Lines; line++ {
			path := make(trajectory.Path, len(d[line]))
			for x, dark := range d[line] {
				path[x] = geometry.Pt(float64(x), bandY(offset*dark, line, lw, p.Lines))
			}
			pass.Append(path)
		}
		if p.Snake {
			Snake(pass)
		}
		t.Concat(pass)
	}
	debug.Verbose("Shifted lines scan: %d passes, %d lines", p.Scans, t.Len())
	return t, nil
}

// Snake reverses every odd path in place so consecutive scan lines join
// at the same side. Applying it twice restores the input.
func Snake(t *trajectory.Trajectory) {
	for i := 1; i < t.Len(); i += 2 {
		t.Path(i).Reverse()
	}
}
