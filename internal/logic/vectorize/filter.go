package vectorize

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/convolution"
)

// reflect maps an out of range index back into [0, n) by mirroring about
// the edges, repeating the edge sample (d c b a | a b c d | d c b a).
func reflect(i, n int) int {
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		} else {
			i = 2*n - i - 1
		}
	}
	return i
}

// padded returns g grown by r pixels on every side with mirrored borders,
// so a kernel of radius r never reads outside the image.
func padded(g *image.Gray, r int) *image.Gray {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w+2*r, h+2*r))
	for y := 0; y < h+2*r; y++ {
		sy := b.Min.Y + reflect(y-r, h)
		for x := 0; x < w+2*r; x++ {
			out.Pix[y*out.Stride+x] = g.Pix[g.PixOffset(b.Min.X+reflect(x-r, w), sy)]
		}
	}
	return out
}

// channel reads the red channel of the w×h window of img starting at (r, r).
func channel(img *image.RGBA, r, w, h int) []float64 {
	v := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v[y*w+x] = float64(img.Pix[img.PixOffset(x+r, y+r)])
		}
	}
	return v
}

var noWrap = &convolution.Options{Bias: 0, Wrap: false, KeepAlpha: true}

// gaussian blurs g with a separable kernel truncated at four sigmas and
// returns the result row major.
func gaussian(g *image.Gray, sigma float64) []float64 {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	if sigma <= 0 {
		v := make([]float64, 0, w*h)
		for y := 0; y < h; y++ {
			off := g.PixOffset(g.Bounds().Min.X, g.Bounds().Min.Y+y)
			for _, p := range g.Pix[off : off+w] {
				v = append(v, float64(p))
			}
		}
		return v
	}
	radius := int(4*sigma + 0.5)
	n := 2*radius + 1
	row := convolution.NewKernel(n, 1)
	col := convolution.NewKernel(1, n)
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(i - radius)
		row.Matrix[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += row.Matrix[i]
	}
	for i := range row.Matrix {
		row.Matrix[i] /= sum
		col.Matrix[i] = row.Matrix[i]
	}
	blurred := convolution.Convolve(convolution.Convolve(padded(g, radius), row, noWrap), col, noWrap)
	return channel(blurred, radius, w, h)
}

// Filter marks ridge pixels of an image.
type Filter interface {
	mask(g *image.Gray) []bool
}

// DoG is a difference of Gaussians ridge filter. A pixel is a ridge when
// the image blurred with Large exceeds the image blurred with Small by more
// than Threshold, which picks out dark lines on a light background.
type DoG struct {
	Large, Small float64
	Threshold    float64
}

// DefaultDoG is the filter used when none is given.
var DefaultDoG = DoG{Large: 3, Small: 1, Threshold: 3}

func (d DoG) mask(g *image.Gray) []bool {
	large, small := gaussian(g, d.Large), gaussian(g, d.Small)
	m := make([]bool, len(large))
	for i := range m {
		m[i] = large[i]-small[i] > d.Threshold
	}
	return m
}

// Sobel marks pixels whose gradient magnitude exceeds Threshold.
type Sobel struct {
	Threshold float64
}

// The kernels are scaled by 1/8 and biased to mid gray so both signs of a
// gradient survive the 8 bit output of the convolution.
const (
	sobelScale = 8
	sobelBias  = 128
)

var (
	sobelX = &convolution.Kernel{Width: 3, Height: 3, Matrix: scaled(-1, 0, 1, -2, 0, 2, -1, 0, 1)}
	sobelY = &convolution.Kernel{Width: 3, Height: 3, Matrix: scaled(-1, -2, -1, 0, 0, 0, 1, 2, 1)}
)

func scaled(v ...float64) []float64 {
	for i := range v {
		v[i] /= sobelScale
	}
	return v
}

func (s Sobel) mask(g *image.Gray) []bool {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	src := padded(g, 1)
	opts := &convolution.Options{Bias: sobelBias, Wrap: false, KeepAlpha: true}
	gx := channel(convolution.Convolve(src, sobelX, opts), 1, w, h)
	gy := channel(convolution.Convolve(src, sobelY, opts), 1, w, h)
	m := make([]bool, w*h)
	for i := range m {
		m[i] = math.Hypot((gx[i]-sobelBias)*sobelScale, (gy[i]-sobelBias)*sobelScale) > s.Threshold
	}
	return m
}
