package trajectory

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Smooth applies a Savitzky–Golay filter of the given odd window and
// polynomial order to the x and y coordinates of every path. The first and
// last half window are evaluated on the polynomial fitted to the edge
// window. Paths shorter than the window are left untouched.
func (t *Trajectory) Smooth(window, order int) error {
	if window < 3 || window%2 == 0 {
		return fmt.Errorf("trajectory: smoothing window must be odd and >= 3, got %d", window)
	}
	if order < 0 || order >= window {
		return fmt.Errorf("trajectory: smoothing order %d must be below window %d", order, window)
	}
	half := window / 2
	weights := make([][]float64, window)
	for u := -half; u <= half; u++ {
		w, err := savgolWeights(half, order, float64(u))
		if err != nil {
			return err
		}
		weights[u+half] = w
	}

	xs, ys := []float64{}, []float64{}
	for _, p := range t.paths {
		if len(p) < window {
			continue
		}
		xs, ys = xs[:0], ys[:0]
		for _, pt := range p {
			xs = append(xs, pt.X)
			ys = append(ys, pt.Y)
		}
		sx := savgol(xs, weights, half)
		sy := savgol(ys, weights, half)
		for i := range p {
			p[i].X, p[i].Y = sx[i], sy[i]
		}
	}
	return nil
}

// savgol filters v. weights[half+u] evaluates the window fit at offset u
// from the window center.
func savgol(v []float64, weights [][]float64, half int) []float64 {
	n, window := len(v), 2*half+1
	out := make([]float64, n)
	apply := func(w []float64, start int) float64 {
		var s float64
		for j, c := range w {
			s += c * v[start+j]
		}
		return s
	}
	for i := half; i < n-half; i++ {
		out[i] = apply(weights[half], i-half)
	}
	for i := 0; i < half; i++ {
		out[i] = apply(weights[i], 0)
		out[n-1-i] = apply(weights[window-1-i], n-window)
	}
	return out
}

// savgolWeights returns the least squares weights that evaluate, at offset u,
// the polynomial of the given order fitted to samples at -half..half.
func savgolWeights(half, order int, u float64) ([]float64, error) {
	m, window := order+1, 2*half+1
	// Normal equations G z = e(u), G = AᵀA with A the Vandermonde matrix.
	a := mat.NewDense(window, m, nil)
	for x := -half; x <= half; x++ {
		for p := 0; p < m; p++ {
			a.Set(x+half, p, math.Pow(float64(x), float64(p)))
		}
	}
	var g mat.Dense
	g.Mul(a.T(), a)
	e := mat.NewVecDense(m, nil)
	for p := 0; p < m; p++ {
		e.SetVec(p, math.Pow(u, float64(p)))
	}
	var z mat.VecDense
	if err := z.SolveVec(&g, e); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("trajectory: smoothing system: %w", err)
		}
	}
	var w mat.VecDense
	w.MulVec(a, &z)
	return w.RawVector().Data, nil
}
