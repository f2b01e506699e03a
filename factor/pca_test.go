package factor_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/meenmo/tonarv/factor"
	"github.com/meenmo/tonarv/rates"
)

// syntheticPanel builds a forward panel driven by three deterministic
// factors (level, slope, curvature) plus small noise across p tenors.
func syntheticPanel(t *testing.T, n, p int) *rates.ForwardPanel {
	t.Helper()

	starts := make([]int, p)
	for i := range starts {
		starts[i] = i + 1
	}
	panel := rates.NewForwardPanel(starts)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for r := 0; r < n; r++ {
		if err := panel.Append(base.AddDate(0, 0, r), syntheticRow(r, p)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return panel
}

func syntheticRow(r, p int) []float64 {
	level := 0.8 * math.Sin(0.11*float64(r))
	slope := 0.5 * math.Cos(0.07*float64(r))
	curv := 0.3 * math.Sin(0.045*float64(r)+1.3)
	row := make([]float64, p)
	for c := 0; c < p; c++ {
		x := float64(c)/float64(p-1)*2 - 1 // -1..1 across tenors
		noise := 0.004 * math.Sin(17.3*float64(r)+7.9*float64(c))
		row[c] = 1.5 + level + slope*x + curv*(x*x-0.5) + noise
	}
	return row
}

func TestFit_ExactReconstructionFullRank(t *testing.T) {
	t.Parallel()

	p := syntheticPanel(t, 60, 6)
	m := factor.NewModel(factor.Config{Window: 60})
	snap, err := m.FitAt(p, 59)
	if err != nil {
		t.Fatalf("FitAt error: %v", err)
	}

	recon, err := snap.ReconstructLatest(6)
	if err != nil {
		t.Fatalf("ReconstructLatest error: %v", err)
	}
	for c := range recon {
		if math.Abs(recon[c]-snap.Actual[c]) > 1e-8 {
			t.Fatalf("full-rank reconstruction differs at %d: %.12f vs %.12f",
				c, recon[c], snap.Actual[c])
		}
	}
}

func TestFit_ExplainedVarianceOrdering(t *testing.T) {
	t.Parallel()

	p := syntheticPanel(t, 80, 8)
	m := factor.NewModel(factor.Config{Window: 80})
	snap, err := m.FitAt(p, 79)
	if err != nil {
		t.Fatalf("FitAt error: %v", err)
	}

	sum := 0.0
	for i, v := range snap.Explained {
		if v < 0 {
			t.Fatalf("Explained[%d] = %g, want non-negative", i, v)
		}
		if i > 0 && v > snap.Explained[i-1]+1e-12 {
			t.Fatalf("Explained not non-increasing at %d: %g > %g", i, v, snap.Explained[i-1])
		}
		sum += v
	}
	if sum > 1+1e-9 {
		t.Fatalf("Explained ratios sum to %g > 1", sum)
	}
}

func TestFit_ThreeFactorsDominate(t *testing.T) {
	t.Parallel()

	p := syntheticPanel(t, 120, 10)
	m := factor.NewModel(factor.Config{Window: 120})
	snap, err := m.FitAt(p, 119)
	if err != nil {
		t.Fatalf("FitAt error: %v", err)
	}

	top3 := snap.Explained[0] + snap.Explained[1] + snap.Explained[2]
	if top3 < 0.95 {
		t.Fatalf("top-3 explained variance = %.4f, want > 0.95", top3)
	}
}

func TestFit_ShiftedInstrumentHasPositiveResidual(t *testing.T) {
	t.Parallel()

	// Shift one instrument's final observation 50bp above the
	// factor-consistent value: its residual must be positive and the
	// largest in the cross-section (cheap).
	const shifted = 4
	starts := make([]int, 10)
	for i := range starts {
		starts[i] = i + 1
	}
	p := rates.NewForwardPanel(starts)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for r := 0; r < 100; r++ {
		row := syntheticRow(r, 10)
		if r == 99 {
			row[shifted] += 0.50
		}
		if err := p.Append(base.AddDate(0, 0, r), row); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	m := factor.NewModel(factor.Config{Window: 100})
	snap, err := m.FitAt(p, 99)
	if err != nil {
		t.Fatalf("FitAt error: %v", err)
	}
	if snap.Residual[shifted] <= 0 {
		t.Fatalf("shifted residual = %.6f, want positive", snap.Residual[shifted])
	}
	for c, v := range snap.Residual {
		if c != shifted && v >= snap.Residual[shifted] {
			t.Fatalf("instrument %d residual %.6f >= shifted %.6f", c, v, snap.Residual[shifted])
		}
	}
}

func TestFitAt_NoLookahead(t *testing.T) {
	t.Parallel()

	p := syntheticPanel(t, 90, 6)
	m := factor.NewModel(factor.Config{Window: 50})

	before, err := m.FitAt(p, 70)
	if err != nil {
		t.Fatalf("FitAt error: %v", err)
	}

	// Corrupt every row after day 70; the fit for day 70 must not move.
	for r := 71; r < p.Len(); r++ {
		for c := range p.Values[r] {
			p.Values[r][c] += 100
		}
	}
	after, err := m.FitAt(p, 70)
	if err != nil {
		t.Fatalf("FitAt after mutation error: %v", err)
	}

	for c := range before.Residual {
		if before.Residual[c] != after.Residual[c] {
			t.Fatalf("residual %d changed after future mutation: %.15f vs %.15f",
				c, before.Residual[c], after.Residual[c])
		}
	}
	for i := range before.Explained {
		if before.Explained[i] != after.Explained[i] {
			t.Fatalf("explained %d changed after future mutation", i)
		}
	}
}

func TestFitAt_InsufficientWindow(t *testing.T) {
	t.Parallel()

	p := syntheticPanel(t, 40, 6)
	m := factor.NewModel(factor.Config{Window: 50})
	if _, err := m.FitAt(p, 39); !errors.Is(err, factor.ErrInsufficientWindow) {
		t.Fatalf("expected ErrInsufficientWindow for short history, got %v", err)
	}
}

func TestFitAt_SparseWindow(t *testing.T) {
	t.Parallel()

	starts := []int{1, 2, 3, 4, 5, 6}
	p := rates.NewForwardPanel(starts)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for r := 0; r < 50; r++ {
		row := syntheticRow(r, 6)
		// Poke NaNs into enough rows to undercut the completeness ratio.
		if r%3 == 0 && r < 48 {
			row[2] = math.NaN()
		}
		if err := p.Append(base.AddDate(0, 0, r), row); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	m := factor.NewModel(factor.Config{Window: 50, MinCompleteRatio: 0.9})
	if _, err := m.FitAt(p, 49); !errors.Is(err, factor.ErrInsufficientWindow) {
		t.Fatalf("expected ErrInsufficientWindow for sparse window, got %v", err)
	}
}

func TestFitAt_IncompleteCurrentRow(t *testing.T) {
	t.Parallel()

	p := syntheticPanel(t, 60, 6)
	p.Values[59][1] = math.NaN()
	m := factor.NewModel(factor.Config{Window: 50})
	if _, err := m.FitAt(p, 59); !errors.Is(err, factor.ErrInsufficientWindow) {
		t.Fatalf("expected ErrInsufficientWindow for incomplete current row, got %v", err)
	}
}

func TestFitRows_FewerRowsThanColumns(t *testing.T) {
	t.Parallel()

	rows := [][]float64{syntheticRow(0, 8), syntheticRow(1, 8), syntheticRow(2, 8)}
	m := factor.NewModel(factor.Config{Window: 3})
	_, err := m.FitRows(time.Now(), rows)
	if !errors.Is(err, factor.ErrInsufficientWindow) {
		t.Fatalf("expected ErrInsufficientWindow with 3 rows for 8 columns, got %v", err)
	}
}
