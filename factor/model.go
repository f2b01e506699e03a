// Package factor fits the rolling principal-component model of the forward
// rate panel. Every snapshot is recomputed from its own trailing window with
// that window's statistics only, so no fit can see past its evaluation date.
package factor

import (
	"errors"
	"fmt"
	"time"

	"github.com/meenmo/tonarv/rates"
)

// ErrInsufficientWindow marks a date whose trailing window is too short or
// too sparse for a stable fit. Callers skip the date and move on.
var ErrInsufficientWindow = errors.New("insufficient window data")

// ReconstructionComponents is the number of components behind the fair-value
// reconstruction: level, slope and curvature.
const ReconstructionComponents = 3

// Config controls the rolling model.
type Config struct {
	// Window is the trailing window length in rows.
	Window int
	// DiagComponents is how many components the diagnostics report covers.
	DiagComponents int
	// MinCompleteRatio is the minimum fraction of the window that must
	// survive NaN-dropping for a fit to proceed.
	MinCompleteRatio float64
}

// DefaultConfig mirrors the production parameters: 50-day window, 5
// diagnostic components, 80% completeness.
func DefaultConfig() Config {
	return Config{Window: 50, DiagComponents: 5, MinCompleteRatio: 0.8}
}

// Model fits per-date snapshots of the factor structure.
type Model struct {
	cfg Config
}

// NewModel builds a model, filling zero config fields with defaults.
func NewModel(cfg Config) *Model {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.DiagComponents <= 0 {
		cfg.DiagComponents = def.DiagComponents
	}
	if cfg.MinCompleteRatio <= 0 {
		cfg.MinCompleteRatio = def.MinCompleteRatio
	}
	return &Model{cfg: cfg}
}

// Config returns the effective configuration.
func (m *Model) Config() Config { return m.cfg }

// FitAt fits the model for panel row i using the trailing window of the
// last Window rows ending at (and including) i. Rows with any NaN are
// dropped before fitting; row i itself must be complete. Too short or too
// sparse a window yields ErrInsufficientWindow.
func (m *Model) FitAt(p *rates.ForwardPanel, i int) (*Snapshot, error) {
	if i < 0 || i >= p.Len() {
		return nil, fmt.Errorf("fit at row %d: panel has %d rows", i, p.Len())
	}
	if i+1 < m.cfg.Window {
		return nil, fmt.Errorf("%w: only %d rows before %s", ErrInsufficientWindow,
			i+1, p.Dates[i].Format("2006-01-02"))
	}
	if !p.RowComplete(i) {
		return nil, fmt.Errorf("%w: row %s is incomplete", ErrInsufficientWindow,
			p.Dates[i].Format("2006-01-02"))
	}

	window := make([][]float64, 0, m.cfg.Window)
	for j := i - m.cfg.Window + 1; j <= i; j++ {
		if p.RowComplete(j) {
			window = append(window, p.Values[j])
		}
	}
	minRows := int(float64(m.cfg.Window) * m.cfg.MinCompleteRatio)
	if len(window) < minRows {
		return nil, fmt.Errorf("%w: %d complete rows of %d in window ending %s",
			ErrInsufficientWindow, len(window), m.cfg.Window, p.Dates[i].Format("2006-01-02"))
	}
	return m.fit(p.Dates[i], window)
}

// FitRows fits a single snapshot over an explicit set of rows, dropping
// incomplete ones. This is the full-sample variant used by the diagnostics
// report; the last row of the input is the one reconstructed.
func (m *Model) FitRows(date time.Time, rows [][]float64) (*Snapshot, error) {
	window := make([][]float64, 0, len(rows))
	for _, r := range rows {
		if rowComplete(r) {
			window = append(window, r)
		}
	}
	return m.fit(date, window)
}
