package factor

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Snapshot is one date's fitted factor structure: the window's
// standardization statistics, the full loadings matrix, explained-variance
// ratios, and the latest row's 3-component reconstruction in rate units.
type Snapshot struct {
	Date time.Time
	Rows int

	Mean  []float64
	Scale []float64

	// loadings has instruments as rows and components as columns,
	// ordered by explained variance descending.
	loadings *mat.Dense
	// Explained holds the explained-variance ratios, non-increasing and
	// summing to at most 1.
	Explained []float64

	// Actual, Reconstructed and Residual refer to the window's latest row,
	// all in rate units. Residual = Actual - Reconstructed; positive means
	// the instrument yields above its factor-implied fair value (cheap).
	Actual        []float64
	Reconstructed []float64
	Residual      []float64
}

func (m *Model) fit(date time.Time, window [][]float64) (*Snapshot, error) {
	n := len(window)
	if n == 0 {
		return nil, fmt.Errorf("%w: no complete rows", ErrInsufficientWindow)
	}
	p := len(window[0])
	if n < p {
		return nil, fmt.Errorf("%w: %d rows for %d columns", ErrInsufficientWindow, n, p)
	}

	mean := make([]float64, p)
	scale := make([]float64, p)
	for c := 0; c < p; c++ {
		s := 0.0
		for r := 0; r < n; r++ {
			s += window[r][c]
		}
		mean[c] = s / float64(n)
		ss := 0.0
		for r := 0; r < n; r++ {
			d := window[r][c] - mean[c]
			ss += d * d
		}
		scale[c] = math.Sqrt(ss / float64(n))
		if scale[c] < 1e-12 {
			return nil, fmt.Errorf("%w: column %d is constant over the window", ErrInsufficientWindow, c)
		}
	}

	x := mat.NewDense(n, p, nil)
	for r := 0; r < n; r++ {
		for c := 0; c < p; c++ {
			x.Set(r, c, (window[r][c]-mean[c])/scale[c])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return nil, fmt.Errorf("%w: svd did not converge", ErrInsufficientWindow)
	}
	var v mat.Dense
	svd.VTo(&v)
	sv := svd.Values(nil)

	total := 0.0
	for _, s := range sv {
		total += s * s
	}
	explained := make([]float64, len(sv))
	if total > 0 {
		for i, s := range sv {
			explained[i] = s * s / total
		}
	}

	snap := &Snapshot{
		Date:      date,
		Rows:      n,
		Mean:      mean,
		Scale:     scale,
		loadings:  &v,
		Explained: explained,
		Actual:    append([]float64(nil), window[n-1]...),
	}
	recon, err := snap.reconstruct(window[n-1], ReconstructionComponents)
	if err != nil {
		return nil, err
	}
	snap.Reconstructed = recon
	snap.Residual = make([]float64, p)
	for c := 0; c < p; c++ {
		snap.Residual[c] = snap.Actual[c] - recon[c]
	}
	return snap, nil
}

// Components returns the number of fitted components.
func (s *Snapshot) Components() int {
	_, k := s.loadings.Dims()
	return k
}

// Loading returns instrument col's loading on component comp (0-based).
func (s *Snapshot) Loading(col, comp int) float64 {
	return s.loadings.At(col, comp)
}

// Loadings returns instrument col's loadings on the first k components.
func (s *Snapshot) Loadings(col, k int) []float64 {
	out := make([]float64, k)
	for c := 0; c < k; c++ {
		out[c] = s.loadings.At(col, c)
	}
	return out
}

// ReconstructLatest rebuilds the latest row from the top k components, in
// rate units. With k equal to the number of instruments the reconstruction
// is exact up to floating point.
func (s *Snapshot) ReconstructLatest(k int) ([]float64, error) {
	return s.reconstruct(s.Actual, k)
}

// ResidualFor computes the top-3-component residual of an arbitrary complete
// row under this snapshot's factors, in rate units.
func (s *Snapshot) ResidualFor(row []float64) ([]float64, error) {
	recon, err := s.reconstruct(row, ReconstructionComponents)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(row))
	for c := range row {
		out[c] = row[c] - recon[c]
	}
	return out, nil
}

// reconstruct standardizes row with the window statistics, projects it on
// the top k components, inverts the projection and maps back to rate units.
func (s *Snapshot) reconstruct(row []float64, k int) ([]float64, error) {
	p := len(s.Mean)
	if len(row) != p {
		return nil, fmt.Errorf("reconstruct: row has %d values, model has %d instruments", len(row), p)
	}
	if kMax := s.Components(); k > kMax {
		k = kMax
	}

	z := make([]float64, p)
	for c := 0; c < p; c++ {
		z[c] = (row[c] - s.Mean[c]) / s.Scale[c]
	}

	scores := make([]float64, k)
	for comp := 0; comp < k; comp++ {
		for c := 0; c < p; c++ {
			scores[comp] += z[c] * s.loadings.At(c, comp)
		}
	}

	out := make([]float64, p)
	for c := 0; c < p; c++ {
		zhat := 0.0
		for comp := 0; comp < k; comp++ {
			zhat += scores[comp] * s.loadings.At(c, comp)
		}
		out[c] = zhat*s.Scale[c] + s.Mean[c]
	}
	return out, nil
}

func rowComplete(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
