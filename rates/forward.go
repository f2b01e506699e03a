package rates

import (
	"fmt"
	"math"
	"time"
)

// ForwardLabel renders the column name for the 1Y forward starting in
// `start` years, e.g. Fwd_7Y_1Y.
func ForwardLabel(start int) string {
	return fmt.Sprintf("Fwd_%dY_1Y", start)
}

// ForwardPanel is the dates x forward-tenors matrix of 1Y forward rates in
// percent. Columns are a fixed, index-addressed layout: column i holds the
// forward starting in Starts[i] years. Missing values are NaN.
type ForwardPanel struct {
	Starts []int
	Dates  []time.Time
	Values [][]float64

	index map[int]int
}

// NewForwardPanel allocates an empty panel with the given forward start
// years as columns. Starts must be ascending.
func NewForwardPanel(starts []int) *ForwardPanel {
	idx := make(map[int]int, len(starts))
	for i, s := range starts {
		idx[s] = i
	}
	return &ForwardPanel{
		Starts: append([]int(nil), starts...),
		index:  idx,
	}
}

// Columns returns the number of forward tenors.
func (p *ForwardPanel) Columns() int { return len(p.Starts) }

// Len returns the number of date rows.
func (p *ForwardPanel) Len() int { return len(p.Dates) }

// ColumnOf maps a forward start year to its column index.
func (p *ForwardPanel) ColumnOf(start int) (int, bool) {
	i, ok := p.index[start]
	return i, ok
}

// Labels returns the column labels in index order.
func (p *ForwardPanel) Labels() []string {
	out := make([]string, len(p.Starts))
	for i, s := range p.Starts {
		out[i] = ForwardLabel(s)
	}
	return out
}

// Append adds one date row. vals must have exactly Columns() entries in
// column order; absent forwards are NaN. Dates must be appended in
// ascending order.
func (p *ForwardPanel) Append(date time.Time, vals []float64) error {
	if len(vals) != len(p.Starts) {
		return fmt.Errorf("forward row has %d values, panel has %d columns", len(vals), len(p.Starts))
	}
	if n := len(p.Dates); n > 0 && !p.Dates[n-1].Before(date) {
		return fmt.Errorf("forward rows must be appended in date order: %s after %s",
			date.Format("2006-01-02"), p.Dates[n-1].Format("2006-01-02"))
	}
	p.Dates = append(p.Dates, date)
	p.Values = append(p.Values, append([]float64(nil), vals...))
	return nil
}

// RowComplete reports whether row i has a finite value in every column.
func (p *ForwardPanel) RowComplete(i int) bool {
	for _, v := range p.Values[i] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// NearestColumn returns the index of the column whose forward start year is
// closest to target among columns with a finite value in row i. ok is false
// when no column qualifies.
func (p *ForwardPanel) NearestColumn(i, target int) (int, bool) {
	best, bestDist := -1, math.MaxFloat64
	for col, s := range p.Starts {
		v := p.Values[i][col]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if d := math.Abs(float64(s - target)); d < bestDist {
			best, bestDist = col, d
		}
	}
	return best, best >= 0
}
