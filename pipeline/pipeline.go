// Package pipeline wires the full flow: quote panel -> per-date curves ->
// forward-rate panel -> factor model -> signals, diagnostics and backtest.
// Per-date failures are contained and logged; a single bad day never aborts
// a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meenmo/tonarv/backtest"
	"github.com/meenmo/tonarv/calendar"
	"github.com/meenmo/tonarv/config"
	"github.com/meenmo/tonarv/curve"
	"github.com/meenmo/tonarv/factor"
	"github.com/meenmo/tonarv/rates"
	"github.com/meenmo/tonarv/signal"
	"github.com/meenmo/tonarv/store"
)

// Pipeline runs the analytics over a quote panel.
type Pipeline struct {
	cfg *config.Config
	log zerolog.Logger
}

// New builds a pipeline from configuration.
func New(cfg *config.Config, log zerolog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, log: log}
}

// BuildForwardPanel bootstraps one curve per evaluation date and extracts
// the 1Y forward strip from each. Dates are independent, so curves build on
// a bounded worker pool; the output panel is reassembled in date order.
// Dates whose curve fails to build are dropped and logged.
func (pl *Pipeline) BuildForwardPanel(ctx context.Context, panel *rates.Panel) (*rates.ForwardPanel, error) {
	tenors := panel.Tenors()
	if len(tenors) < 2 {
		return nil, fmt.Errorf("build forward panel: only %d tenors in input", len(tenors))
	}
	maxTenor := tenors[len(tenors)-1]
	starts := make([]int, 0, maxTenor-1)
	for s := 1; s < maxTenor; s++ {
		starts = append(starts, s)
	}

	opts := []curve.Option{
		curve.WithCalendar(calendar.ID(pl.cfg.Curve.Calendar)),
		curve.WithSettlementLag(pl.cfg.Curve.SettlementLag),
	}

	rows := make([][]float64, len(panel.Rows))
	var wg sync.WaitGroup
	sem := make(chan struct{}, pl.cfg.Workers)
	var failures int
	var mu sync.Mutex

	for i := range panel.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			row := panel.Rows[i]
			c, err := curve.Build(row.Date, row.ValidQuotes(), opts...)
			if err != nil {
				var be *curve.BuildError
				if errors.As(err, &be) {
					pl.log.Debug().Str("date", row.Date.Format("2006-01-02")).
						Str("reason", be.Reason).Msg("curve build skipped")
				} else {
					pl.log.Warn().Str("date", row.Date.Format("2006-01-02")).
						Err(err).Msg("curve build failed")
				}
				mu.Lock()
				failures++
				mu.Unlock()
				return
			}

			vals := make([]float64, len(starts))
			for j := range vals {
				vals[j] = math.NaN()
			}
			for _, f := range curve.ExtractForwards(c) {
				if f.Start >= 1 && f.Start <= len(starts) {
					vals[f.Start-1] = f.RatePercent
				}
			}
			rows[i] = vals
		}(i)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fwd := rates.NewForwardPanel(starts)
	for i, row := range panel.Rows {
		if rows[i] == nil {
			continue
		}
		if err := fwd.Append(row.Date, rows[i]); err != nil {
			return nil, err
		}
	}

	pl.log.Info().
		Int("dates", fwd.Len()).
		Int("skipped", failures).
		Int("tenors", len(starts)).
		Msg("forward panel built")
	return fwd, nil
}

// Report is the full-sample diagnostics output: explained variance per
// component, the latest date's extremes, and the residual history table.
type Report struct {
	Date      time.Time
	Rows      int
	Explained []float64
	Cheapest  []signal.Entry
	Richest   []signal.Entry
	Residuals *store.ResidualTable
}

// Analyze fits one factor model over the entire forward panel (complete
// rows only) and reports explained variance, the latest extremes and the
// residual history. This is the static diagnostics view; the backtest uses
// the rolling model instead.
func (pl *Pipeline) Analyze(fwd *rates.ForwardPanel) (*Report, error) {
	last := -1
	for i := fwd.Len() - 1; i >= 0; i-- {
		if fwd.RowComplete(i) {
			last = i
			break
		}
	}
	if last < 0 {
		return nil, fmt.Errorf("analyze: no complete rows in forward panel")
	}

	model := factor.NewModel(pl.cfg.FactorModelConfig())
	snap, err := model.FitRows(fwd.Dates[last], fwd.Values[:last+1])
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	labels := fwd.Labels()
	table := &store.ResidualTable{Labels: labels}
	for i := 0; i <= last; i++ {
		if !fwd.RowComplete(i) {
			continue
		}
		resid, err := snap.ResidualFor(fwd.Values[i])
		if err != nil {
			return nil, fmt.Errorf("analyze residual %s: %w", fwd.Dates[i].Format("2006-01-02"), err)
		}
		table.Dates = append(table.Dates, fwd.Dates[i])
		table.Values = append(table.Values, resid)
	}

	ranking := signal.Rank(snap.Date, labels, snap.Residual)
	topN := pl.cfg.Factor.TopN
	explained := snap.Explained
	if k := pl.cfg.Factor.DiagComponents; k < len(explained) {
		explained = explained[:k]
	}

	return &Report{
		Date:      snap.Date,
		Rows:      snap.Rows,
		Explained: explained,
		Cheapest:  ranking.Cheapest(topN),
		Richest:   ranking.Richest(topN),
		Residuals: table,
	}, nil
}

// Backtest runs the rolling-model strategy over the forward panel.
func (pl *Pipeline) Backtest(fwd *rates.ForwardPanel) (*backtest.Result, error) {
	model := factor.NewModel(pl.cfg.FactorModelConfig())
	engine := backtest.NewEngine(pl.cfg.BacktestConfig(), model, pl.log)
	res, err := engine.Run(fwd)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	pl.log.Info().
		Int("days", res.Summary.Days).
		Int("skipped", res.Summary.SkippedDays).
		Float64("total_no_hedge_bp", res.Summary.TotalNoHedgeBP).
		Float64("total_hedged_bp", res.Summary.TotalHedgedBP).
		Msg("backtest complete")
	return res, nil
}
