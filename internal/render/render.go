// Package render draws a trajectory preview into a raster image.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/srwiley/rasterx"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/fixed"

	"github.com/cjeanneret/PenGo/internal/logic/geometry"
	"github.com/cjeanneret/PenGo/internal/logic/trajectory"
)

// Options controls the preview.
type Options struct {
	// Size is the length in pixels of the longer image side.
	Size   int
	Margin int
	// Stroke is the pen width in pixels.
	Stroke float64
	// Travel also draws the pen-up moves between paths, in light red.
	Travel bool
	// YUp treats y as pointing up, as in vectorized images.
	YUp bool
}

// DefaultOptions returns a 1000 px preview with a 1.5 px pen.
func DefaultOptions() Options {
	return Options{Size: 1000, Margin: 20, Stroke: 1.5, YUp: true}
}

var travelColor = color.NRGBA{R: 230, G: 60, B: 60, A: 160}

// Image rasterizes t.
func Image(t *trajectory.Trajectory, opts Options) (*image.RGBA, error) {
	xr, yr, err := t.Ranges()
	if err != nil {
		return nil, err
	}
	if opts.Size <= 2*opts.Margin {
		return nil, fmt.Errorf("render: size %d too small for margin %d", opts.Size, opts.Margin)
	}
	if opts.Stroke <= 0 {
		opts.Stroke = 1
	}
	span := max(xr.Span(), yr.Span())
	scale := 1.0
	if span > 0 {
		scale = float64(opts.Size-2*opts.Margin) / span
	}
	w := int(math.Round(xr.Span()*scale)) + 2*opts.Margin + 1
	h := int(math.Round(yr.Span()*scale)) + 2*opts.Margin + 1
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	toPixel := func(p geometry.Point) fixed.Point26_6 {
		x := (p.X-xr.Min)*scale + float64(opts.Margin)
		y := (p.Y-yr.Min)*scale + float64(opts.Margin)
		if opts.YUp {
			y = float64(h-1) - y
		}
		return rasterx.ToFixedP(x, y)
	}
	newDasher := func(c color.Color, width float64) *rasterx.Dasher {
		scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
		d := rasterx.NewDasher(w, h, scanner)
		d.SetStroke(fixed.Int26_6(width*64), 0, rasterx.RoundCap, rasterx.RoundCap, rasterx.RoundGap, rasterx.ArcClip, nil, 0)
		d.SetColor(c)
		return d
	}

	if opts.Travel && t.Len() > 1 {
		d := newDasher(travelColor, max(opts.Stroke/2, 0.5))
		for i := 1; i < t.Len(); i++ {
			prev := t.Path(i - 1)
			d.Start(toPixel(prev[len(prev)-1]))
			d.Line(toPixel(t.Path(i)[0]))
			d.Stop(false)
		}
		d.Draw()
	}

	d := newDasher(color.Black, opts.Stroke)
	for _, p := range t.Paths() {
		d.Start(toPixel(p[0]))
		for _, pt := range p[1:] {
			d.Line(toPixel(pt))
		}
		d.Stop(false)
	}
	d.Draw()
	return img, nil
}

// PNG writes the preview of t as a PNG image.
func PNG(w io.Writer, t *trajectory.Trajectory, opts Options) error {
	img, err := Image(t, opts)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}
