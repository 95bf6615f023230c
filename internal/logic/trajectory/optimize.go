package trajectory

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cjeanneret/PenGo/internal/debug"
	"github.com/cjeanneret/PenGo/internal/logic/geometry"
)

// reverseRange reverses the order of paths[from:to] and the point order of
// each of them, so the sub-sequence is drawn backwards.
func (t *Trajectory) reverseRange(from, to int) {
	seg := t.paths[from:to]
	for i, j := 0, len(seg)-1; i < j; i, j = i+1, j-1 {
		seg[i], seg[j] = seg[j], seg[i]
	}
	for _, p := range seg {
		p.Reverse()
	}
}

// OptimizeJunction applies the best of the four ways to orient the paths
// before and after junction k (between path k-1 and path k): each side is
// either kept or drawn backwards. It returns true when the order changed.
// Only the travel into path k can change, so the total travel never grows.
func (t *Trajectory) OptimizeJunction(k int) bool {
	n := len(t.paths)
	if k < 1 || k >= n {
		return false
	}
	before := func(flip bool) geometry.Point {
		if flip {
			return t.paths[0][0]
		}
		prev := t.paths[k-1]
		return prev[len(prev)-1]
	}
	after := func(flip bool) geometry.Point {
		if flip {
			last := t.paths[n-1]
			return last[len(last)-1]
		}
		return t.paths[k][0]
	}

	bestBefore, bestAfter := false, false
	best := geometry.Dist(before(false), after(false))
	for _, c := range [][2]bool{{false, true}, {true, false}, {true, true}} {
		if d := geometry.Dist(before(c[0]), after(c[1])); d < best {
			best, bestBefore, bestAfter = d, c[0], c[1]
		}
	}
	if bestBefore {
		t.reverseRange(0, k)
	}
	if bestAfter {
		t.reverseRange(k, n)
	}
	return bestBefore || bestAfter
}

// Optimize runs random 1-opt steps until timeout elapses or ctx is done and
// returns the number of steps that changed the order. rng picks the
// junctions; pass nil for a time-seeded source.
func (t *Trajectory) Optimize(ctx context.Context, timeout time.Duration, rng *rand.Rand) int {
	n := len(t.paths)
	if n < 2 {
		return 0
	}
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}

	_, before := t.ContourLength()
	deadline := time.Now().Add(timeout)
	improved, iterations := 0, 0
	for time.Now().Before(deadline) && ctx.Err() == nil {
		// Junctions are 1..n-1.
		if t.OptimizeJunction(rng.IntN(n-1) + 1) {
			improved++
		}
		iterations++
	}
	_, after := t.ContourLength()
	debug.Info("Optimize: %d/%d improving steps, total length %.1f -> %.1f", improved, iterations, before, after)
	return improved
}
