package curve

import (
	"fmt"
	"math"
)

// cubicSpline is a natural cubic spline through (xs, ys). Outside the fitted
// range it extends linearly using the boundary slope, which for a spline on
// log discount factors keeps the instantaneous forward rate flat beyond the
// last pillar.
type cubicSpline struct {
	xs, ys []float64
	m      []float64 // second derivatives at the knots
}

func newCubicSpline(xs, ys []float64) (*cubicSpline, error) {
	n := len(xs)
	if n != len(ys) {
		return nil, fmt.Errorf("spline: %d xs vs %d ys", n, len(ys))
	}
	if n < 2 {
		return nil, fmt.Errorf("spline: need at least 2 knots, got %d", n)
	}
	for i := 1; i < n; i++ {
		if xs[i] <= xs[i-1] {
			return nil, fmt.Errorf("spline: knots not strictly increasing at %d", i)
		}
	}

	s := &cubicSpline{
		xs: append([]float64(nil), xs...),
		ys: append([]float64(nil), ys...),
		m:  make([]float64, n),
	}
	if n == 2 {
		return s, nil
	}

	// Tridiagonal system for the interior second derivatives, natural
	// boundary conditions m[0] = m[n-1] = 0. Thomas algorithm.
	h := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		h[i] = xs[i+1] - xs[i]
	}
	diag := make([]float64, n)
	rhs := make([]float64, n)
	for i := 1; i < n-1; i++ {
		diag[i] = 2 * (h[i-1] + h[i])
		rhs[i] = 6 * ((ys[i+1]-ys[i])/h[i] - (ys[i]-ys[i-1])/h[i-1])
	}
	for i := 2; i < n-1; i++ {
		w := h[i-1] / diag[i-1]
		diag[i] -= w * h[i-1]
		rhs[i] -= w * rhs[i-1]
	}
	for i := n - 2; i >= 1; i-- {
		s.m[i] = (rhs[i] - h[i]*s.m[i+1]) / diag[i]
	}
	for _, v := range s.m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("spline: singular fit")
		}
	}
	return s, nil
}

// eval returns the spline value at x, extending linearly outside the range.
func (s *cubicSpline) eval(x float64) float64 {
	n := len(s.xs)
	if x <= s.xs[0] {
		return s.ys[0] + s.derivAt(0)*(x-s.xs[0])
	}
	if x >= s.xs[n-1] {
		return s.ys[n-1] + s.derivAt(n-1)*(x-s.xs[n-1])
	}
	i := s.segment(x)
	h := s.xs[i+1] - s.xs[i]
	a := s.xs[i+1] - x
	b := x - s.xs[i]
	return s.m[i]*a*a*a/(6*h) + s.m[i+1]*b*b*b/(6*h) +
		(s.ys[i]/h-s.m[i]*h/6)*a + (s.ys[i+1]/h-s.m[i+1]*h/6)*b
}

// derivAt returns the first derivative at knot i.
func (s *cubicSpline) derivAt(i int) float64 {
	n := len(s.xs)
	if i < n-1 {
		h := s.xs[i+1] - s.xs[i]
		return -s.m[i]*h/3 - s.m[i+1]*h/6 + (s.ys[i+1]-s.ys[i])/h
	}
	h := s.xs[n-1] - s.xs[n-2]
	return s.m[n-2]*h/6 + s.m[n-1]*h/3 + (s.ys[n-1]-s.ys[n-2])/h
}

// segment finds i such that xs[i] <= x < xs[i+1]. Caller guarantees x is
// inside the fitted range.
func (s *cubicSpline) segment(x float64) int {
	lo, hi := 0, len(s.xs)-2
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if s.xs[mid] <= x {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
