package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"

	"github.com/cjeanneret/PenGo/internal/config"
	"github.com/cjeanneret/PenGo/internal/debug"
	"github.com/cjeanneret/PenGo/internal/logic/kinematics"
	"github.com/cjeanneret/PenGo/internal/logic/trajectory"
	"github.com/cjeanneret/PenGo/internal/logic/vectorize"
	"github.com/cjeanneret/PenGo/internal/render"
)

// source is the drawing input. Exactly one field is set.
type source struct {
	image   string
	svg     string
	load    string
	pattern string
}

func (s source) validate(web bool) error {
	n := 0
	for _, v := range []string{s.image, s.svg, s.load, s.pattern} {
		if v != "" {
			n++
		}
	}
	switch {
	case n > 1:
		return errors.New("use only one of -image, -svg, -load and -pattern")
	case n == 0 && web:
		return errors.New("-web needs an input (-image, -svg, -load or -pattern)")
	case n == 0:
		return errors.New("one of -image, -svg, -load or -pattern is required")
	}
	if s.pattern != "" && s.pattern != "test" && s.pattern != "rose" {
		return fmt.Errorf("unknown pattern %q (test or rose)", s.pattern)
	}
	return nil
}

type method int

const (
	amplitude method = iota
	frequency
	shifted
	contour
)

func methodOf(name string) (method, error) {
	switch name {
	case "amplitude":
		return amplitude, nil
	case "frequency":
		return frequency, nil
	case "shifted":
		return shifted, nil
	case "contour":
		return contour, nil
	default:
		return 0, fmt.Errorf("unknown vectorization method %q (amplitude, frequency, shifted, contour)", name)
	}
}

// buildTrajectory produces the drawing described by cfg: vectorize, import
// or load the input, then drop short paths, optimize travel and add the frame.
func buildTrajectory(ctx context.Context, cfg *config.Config, src source) (*trajectory.Trajectory, error) {
	debug.Section("Building trajectory")
	var (
		t   *trajectory.Trajectory
		err error
	)
	switch {
	case src.image != "":
		var g *image.Gray
		g, err = vectorize.LoadImage(src.image, cfg.Vectorize.MaxImageSize)
		if err != nil {
			return nil, fmt.Errorf("load image: %w", err)
		}
		t, err = vectorizeImage(g, cfg.Vectorize)
	case src.svg != "":
		t, err = importSVG(src.svg)
	case src.load != "":
		t, err = trajectory.LoadFile(src.load)
	case src.pattern == "rose":
		t = trajectory.Rose(5, 3, 400)
	default:
		t = trajectory.TestPattern(100)
	}
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, fmt.Errorf("input has no drawable path: %w", trajectory.ErrEmpty)
	}

	if mm := cfg.Vectorize.CleanMm; mm > 0 {
		if n := t.Clean(cleanThreshold(t, cfg.Plotter.VPlotter(), mm)); n > 0 {
			debug.Info("Removed %d paths shorter than %.2f mm", n, mm)
		}
		if t.Len() == 0 {
			return nil, fmt.Errorf("every path is shorter than clean_mm=%g: %w", mm, trajectory.ErrEmpty)
		}
	}
	if d := cfg.Vectorize.OptimizeTime(); d > 0 {
		t.Optimize(ctx, d, nil)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if m := cfg.Vectorize.FrameMarginMm; m > 0 {
		x, y, err := t.Ranges()
		if err != nil {
			return nil, err
		}
		// Margin and bracket are relative to the larger side once fitted.
		size := math.Max(1e-9, fittedSize(x.Span(), y.Span(), cfg.Plotter.VPlotter()))
		if b := cfg.Vectorize.FrameBracketMm; b > 0 {
			err = t.AddBrackets(m/size, b/size)
		} else {
			err = t.AddFrame(m / size)
		}
		if err != nil {
			return nil, err
		}
	}
	drawing, total := t.ContourLength()
	debug.Info("Trajectory: %d paths, %d points, drawing %.1f, travel %.1f", t.Len(), t.Points(), drawing, total-drawing)
	return t, nil
}

func vectorizeImage(g *image.Gray, v config.VectorizeConfig) (*trajectory.Trajectory, error) {
	m, err := methodOf(v.Method)
	if err != nil {
		return nil, err
	}
	snake := v.Snake == nil || *v.Snake
	debug.Value("Method", v.Method)
	debug.Value("Lines", v.Lines)
	switch m {
	case amplitude:
		return vectorize.AmplitudeScan(g, vectorize.AmplitudeParams{
			Lines:           v.Lines,
			PixelsPerPeriod: int(math.Round(v.PixelsPerPeriod)),
			Gain:            v.Gain,
			Waveform:        vectorize.Waveform(v.Waveform),
			Snake:           snake,
		})
	case frequency:
		return vectorize.FrequencyScan(g, vectorize.FrequencyParams{
			Lines:           v.Lines,
			PixelsPerPeriod: v.PixelsPerPeriod,
			Gain:            v.Gain,
			Waveform:        vectorize.Waveform(v.Waveform),
			Snake:           snake,
		})
	case shifted:
		return vectorize.ShiftedLinesScan(g, vectorize.ShiftedParams{
			Lines: v.Lines,
			Scans: v.Scans,
			Gain:  v.Gain,
			Snake: snake,
		})
	default:
		filters := []vectorize.Filter{vectorize.DoG{Large: v.DoGLarge, Small: v.DoGSmall, Threshold: v.DoGThreshold}}
		if v.SobelThreshold > 0 {
			filters = append(filters, vectorize.Sobel{Threshold: v.SobelThreshold})
		}
		return vectorize.Contour(g, vectorize.ContourParams{
			Filters:      filters,
			MinBlobSize:  v.MinBlobSize,
			Smooth:       v.Smooth,
			SmoothWindow: v.SmoothWindow,
			SmoothOrder:  v.SmoothOrder,
		})
	}
}

func importSVG(path string) (*trajectory.Trajectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, stats, err := trajectory.ReadSVG(f, trajectory.SVGOptions{})
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	debug.Info("SVG: %d elements, %d segments", stats.Elements, stats.Segments)
	if stats.DepthLimited > 0 {
		debug.Warn("SVG: %d curves hit the flattening depth limit", stats.DepthLimited)
	}
	return t, nil
}

// fittedSize returns the larger side, in mm, of a w×h drawing once fitted
// into the plotter area with its aspect ratio kept.
func fittedSize(w, h float64, v kinematics.VPlotter) float64 {
	xr, yr := v.XRange.Span(), v.YRange.Span()
	scale := math.Inf(1)
	if w > 0 {
		scale = xr / w
	}
	if h > 0 {
		scale = math.Min(scale, yr/h)
	}
	if math.IsInf(scale, 1) {
		return 0
	}
	return math.Max(w, h) * scale
}

// cleanThreshold converts a length in mm on paper to trajectory units.
func cleanThreshold(t *trajectory.Trajectory, v kinematics.VPlotter, mm float64) float64 {
	x, y, err := t.Ranges()
	if err != nil {
		return 0
	}
	size := math.Max(x.Span(), y.Span())
	fitted := fittedSize(x.Span(), y.Span(), v)
	if fitted == 0 {
		return 0
	}
	return mm * size / fitted
}

// writeOutputs saves the trajectory and its preview when asked to.
func writeOutputs(t *trajectory.Trajectory, cfg *config.Config, dumpPath, previewPath string) error {
	if dumpPath != "" {
		if err := t.SaveFile(dumpPath); err != nil {
			return fmt.Errorf("dump trajectory: %w", err)
		}
		debug.Info("Trajectory saved to %s", dumpPath)
	}
	if previewPath != "" {
		f, err := os.Create(previewPath)
		if err != nil {
			return err
		}
		opts := render.DefaultOptions()
		opts.Travel = true
		opts.YUp = *cfg.Plotter.FlipY
		if err := render.PNG(f, t, opts); err != nil {
			f.Close()
			return fmt.Errorf("render preview: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		debug.Info("Preview saved to %s", previewPath)
	}
	return nil
}
