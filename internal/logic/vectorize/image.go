// Package vectorize turns grayscale images into trajectories: amplitude,
// frequency and shifted-line scans, and contour tracing.
//
// Images are 8-bit intensity rasters, 0 black to 255 white. Output
// coordinates are in pixels with y pointing up, so row 0 of the image is at
// the top of the drawing.
package vectorize

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/cjeanneret/PenGo/internal/debug"
)

var (
	// ErrOddPeriod is returned when an amplitude scan is asked for a period
	// that is not an even number of pixels.
	ErrOddPeriod = errors.New("vectorize: pixels per period must be even")
	// ErrInvalidParams is returned for scan parameters that cannot produce
	// a drawing.
	ErrInvalidParams = errors.New("vectorize: invalid parameters")
)

// LoadImage decodes an image file and returns it as grayscale, downscaled
// so that its larger side is at most maxSize pixels (0 keeps the size).
func LoadImage(path string, maxSize int) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	b := img.Bounds()
	debug.Verbose("Loaded %s image %dx%d", format, b.Dx(), b.Dy())
	g := Grayscale(img)
	if maxSize > 0 {
		g = Resize(g, maxSize)
	}
	return g, nil
}

// Grayscale averages the color channels of img. Alpha is ignored.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			v := (uint32(c.R) + uint32(c.G) + uint32(c.B)) / 3
			g.Pix[(y-b.Min.Y)*g.Stride+(x-b.Min.X)] = uint8(v)
		}
	}
	return g
}

// Resize scales g so its larger side is maxSize pixels.
func Resize(g *image.Gray, maxSize int) *image.Gray {
	b := g.Bounds()
	side := max(b.Dx(), b.Dy())
	if side == 0 || side == maxSize {
		return g
	}
	scale := float64(maxSize) / float64(side)
	w := max(1, int(float64(b.Dx())*scale+0.5))
	h := max(1, int(float64(b.Dy())*scale+0.5))
	out := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(out, out.Bounds(), g, b, draw.Src, nil)
	debug.Verbose("Resized image %dx%d -> %dx%d", b.Dx(), b.Dy(), w, h)
	return out
}

// bands averages the darkness of g over blocks of rows x cols pixels.
// Darkness is 0 for white and 1 for black. Pixels that do not fill a whole
// block on the bottom or right are dropped.
func bands(g *image.Gray, rows, cols int) [][]float64 {
	b := g.Bounds()
	nr, nc := b.Dy()/rows, b.Dx()/cols
	out := make([][]float64, nr)
	for i := range out {
		out[i] = make([]float64, nc)
		for j := range out[i] {
			var sum int
			for y := i * rows; y < (i+1)*rows; y++ {
				off := g.PixOffset(b.Min.X+j*cols, b.Min.Y+y)
				for _, v := range g.Pix[off : off+cols] {
					sum += int(v)
				}
			}
			mean := float64(sum) / float64(rows*cols)
			out[i][j] = (255 - mean) / 255
		}
	}
	return out
}
