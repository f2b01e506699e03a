// Package hedge sizes positions in designated hedge instruments so that a
// long/short pair carries no exposure to the dominant curve factors.
package hedge

import (
	"math"
)

// Config bounds the solver. Near-degenerate loadings can imply unbounded
// hedge quantities; clipping to Bound is the stability control, not an
// error condition.
type Config struct {
	// Bound is the maximum absolute hedge quantity.
	Bound float64
	// Epsilon is the loading magnitude below which a denominator counts as
	// degenerate.
	Epsilon float64
}

// DefaultConfig mirrors the production guards: quantities clipped to +-10,
// loadings below 1e-4 treated as degenerate.
func DefaultConfig() Config {
	return Config{Bound: 10.0, Epsilon: 1e-4}
}

// Result carries the solved quantities, one per hedge instrument, and
// whether any of them hit the clip bound or a degenerate denominator.
type Result struct {
	Quantities []float64
	Clipped    bool
	Degenerate bool
}

// Exposure is the equal-notional long/short portfolio's loading difference
// on the targeted components: loadings(long) - loadings(short).
func Exposure(long, short []float64, components int) []float64 {
	out := make([]float64, components)
	for c := 0; c < components; c++ {
		out[c] = long[c] - short[c]
	}
	return out
}

// SolveSingle neutralizes the first-component exposure with one hedge
// instrument: q = -E1 / loading. A loading inside Epsilon clips the
// quantity at the bound instead of letting it diverge.
func SolveSingle(exposure float64, hedgeLoading float64, cfg Config) Result {
	if math.Abs(hedgeLoading) < cfg.Epsilon {
		if exposure == 0 {
			return Result{Quantities: []float64{0}, Degenerate: true}
		}
		// Pin the sign to the limit of -exposure/loading as the loading
		// shrinks, treating an exactly-zero loading as positive.
		q := cfg.Bound
		if (exposure > 0) == (hedgeLoading >= 0) {
			q = -cfg.Bound
		}
		return Result{Quantities: []float64{q}, Clipped: true, Degenerate: true}
	}
	q, clipped := clip(-exposure/hedgeLoading, cfg.Bound)
	return Result{Quantities: []float64{q}, Clipped: clipped}
}

// SolveDouble neutralizes the first two components with two hedge
// instruments by solving the 2x2 system
//
//	[h1[0] h2[0]] [q1]   [-E1]
//	[h1[1] h2[1]] [q2] = [-E2]
//
// via Cramer's rule. A singular system returns zero quantities flagged
// degenerate, so the day trades unhedged rather than with a corrupt hedge.
func SolveDouble(exposure [2]float64, h1, h2 [2]float64, cfg Config) Result {
	det := h1[0]*h2[1] - h2[0]*h1[1]
	if math.Abs(det) < cfg.Epsilon*cfg.Epsilon {
		return Result{Quantities: []float64{0, 0}, Degenerate: true}
	}
	q1Raw := (-exposure[0]*h2[1] - h2[0]*(-exposure[1])) / det
	q2Raw := (h1[0]*(-exposure[1]) - (-exposure[0])*h1[1]) / det
	q1, c1 := clip(q1Raw, cfg.Bound)
	q2, c2 := clip(q2Raw, cfg.Bound)
	return Result{Quantities: []float64{q1, q2}, Clipped: c1 || c2}
}

func clip(q, bound float64) (float64, bool) {
	if math.IsNaN(q) {
		return 0, true
	}
	if q > bound {
		return bound, true
	}
	if q < -bound {
		return -bound, true
	}
	return q, false
}
