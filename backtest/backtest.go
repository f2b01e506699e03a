// Package backtest sequences the rolling factor model day by day, opens
// long/short pairs from the residual ranking, hedges them in designated
// instruments and accumulates P&L. The loop is inherently sequential:
// position and hedge identity carry forward across days in strict
// chronological order.
package backtest

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/meenmo/tonarv/factor"
	"github.com/meenmo/tonarv/hedge"
	"github.com/meenmo/tonarv/rates"
	"github.com/meenmo/tonarv/signal"
)

// Config controls strategy variant and guards.
type Config struct {
	// HedgeMode is the number of hedge instruments: 1 neutralizes PC1 with
	// one instrument, 2 neutralizes PC1 and PC2 with two.
	HedgeMode int
	// HedgeTenors are the target forward start years the hedge instruments
	// are resolved nearest to at entry, e.g. [7, 10].
	HedgeTenors []int
	// HoldingDays is the fixed holding horizon per position.
	HoldingDays int
	// EntryThresholdBP gates entry: the cheapest residual must exceed it
	// and the richest must be below its negative (0 keeps the plain
	// straddle-zero rule: trade whenever residuals span both signs).
	EntryThresholdBP float64
	// SwingThresholdBP is the absolute daily P&L above which a diagnostic
	// warning is logged. Large swings usually mean stale hedge identity or
	// data gaps, not necessarily a bug.
	SwingThresholdBP float64
	// Hedge bounds the hedge-quantity solver.
	Hedge hedge.Config
}

// DefaultConfig mirrors the production setup: single 7Y hedge, one-day
// holding, trade every straddling day, warn above 20bp.
func DefaultConfig() Config {
	return Config{
		HedgeMode:        1,
		HedgeTenors:      []int{7, 10},
		HoldingDays:      1,
		SwingThresholdBP: 20,
		Hedge:            hedge.DefaultConfig(),
	}
}

// Position is an open trade. All legs are pinned to stable instrument names
// at entry; daily P&L looks those names up rather than re-resolving
// nearest-tenor instruments, whose identity can drift over the holding
// period.
type Position struct {
	EntryDate     time.Time
	LongName      string
	ShortName     string
	HedgeNames    []string
	HedgeQtys     []float64
	EntrySpreadBP float64

	longCol   int
	shortCol  int
	hedgeCols []int
	age       int
}

// Record is one day's P&L, in basis points.
type Record struct {
	Date         time.Time
	LongName     string
	ShortName    string
	HedgeNames   []string
	HedgeQtys    []float64
	NoHedgePnLBP float64
	HedgePnLBP   float64
	HedgedPnLBP  float64
	CumNoHedgeBP float64
	CumHedgedBP  float64
}

// Summary aggregates a run.
type Summary struct {
	Days              int
	SkippedDays       int
	TotalNoHedgeBP    float64
	TotalHedgedBP     float64
	DailyVolNoHedgeBP float64
	DailyVolHedgedBP  float64
}

// Result is the full backtest output.
type Result struct {
	Records []Record
	Summary Summary
}

// Engine runs the strategy over a forward-rate panel.
type Engine struct {
	cfg   Config
	model *factor.Model
	log   zerolog.Logger
}

// NewEngine wires a configured engine. Zero config fields fall back to
// DefaultConfig values.
func NewEngine(cfg Config, model *factor.Model, log zerolog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.HedgeMode != 1 && cfg.HedgeMode != 2 {
		cfg.HedgeMode = def.HedgeMode
	}
	if len(cfg.HedgeTenors) < cfg.HedgeMode {
		cfg.HedgeTenors = def.HedgeTenors
	}
	if cfg.HoldingDays <= 0 {
		cfg.HoldingDays = def.HoldingDays
	}
	if cfg.SwingThresholdBP <= 0 {
		cfg.SwingThresholdBP = def.SwingThresholdBP
	}
	if cfg.Hedge.Bound <= 0 {
		cfg.Hedge.Bound = def.Hedge.Bound
	}
	if cfg.Hedge.Epsilon <= 0 {
		cfg.Hedge.Epsilon = def.Hedge.Epsilon
	}
	return &Engine{cfg: cfg, model: model, log: log}
}

// Run walks the panel in date order. Each day with a fit and a qualifying
// signal opens the extreme residual pair with hedges sized off that day's
// loadings; open positions accrue day-over-day P&L by instrument name and
// close after the holding horizon. Days without a usable fit are skipped
// and excluded from P&L accumulation.
func (e *Engine) Run(p *rates.ForwardPanel) (*Result, error) {
	labels := p.Labels()
	res := &Result{}
	var open []*Position
	cumNoHedge, cumHedged := 0.0, 0.0

	for i := 0; i < p.Len()-1; i++ {
		pos, skipped := e.tryEnter(p, i, labels)
		if skipped {
			res.Summary.SkippedDays++
		}
		if pos != nil {
			open = append(open, pos)
		}
		if len(open) == 0 {
			continue
		}

		rec := Record{Date: p.Dates[i]}
		if pos != nil {
			rec.LongName = pos.LongName
			rec.ShortName = pos.ShortName
			rec.HedgeNames = pos.HedgeNames
			rec.HedgeQtys = pos.HedgeQtys
		}
		for _, op := range open {
			noHedge, hedgePnL := e.dailyPnL(p, i, op)
			rec.NoHedgePnLBP += noHedge
			rec.HedgePnLBP += hedgePnL
			op.age++
		}
		rec.HedgedPnLBP = rec.NoHedgePnLBP + rec.HedgePnLBP

		if math.Abs(rec.HedgedPnLBP) > e.cfg.SwingThresholdBP {
			e.log.Warn().
				Str("date", p.Dates[i].Format("2006-01-02")).
				Float64("no_hedge_bp", rec.NoHedgePnLBP).
				Float64("hedge_bp", rec.HedgePnLBP).
				Float64("hedged_bp", rec.HedgedPnLBP).
				Msg("large daily P&L swing")
		}

		cumNoHedge += rec.NoHedgePnLBP
		cumHedged += rec.HedgedPnLBP
		rec.CumNoHedgeBP = cumNoHedge
		rec.CumHedgedBP = cumHedged
		res.Records = append(res.Records, rec)

		kept := open[:0]
		for _, op := range open {
			if op.age < e.cfg.HoldingDays {
				kept = append(kept, op)
			}
		}
		open = kept
	}

	res.Summary.Days = len(res.Records)
	res.Summary.TotalNoHedgeBP = cumNoHedge
	res.Summary.TotalHedgedBP = cumHedged
	res.Summary.DailyVolNoHedgeBP = dailyVol(res.Records, func(r Record) float64 { return r.NoHedgePnLBP })
	res.Summary.DailyVolHedgedBP = dailyVol(res.Records, func(r Record) float64 { return r.HedgedPnLBP })
	return res, nil
}

// tryEnter fits the day's snapshot and opens a position when the residual
// ranking qualifies. skipped reports a day lost to insufficient window data.
func (e *Engine) tryEnter(p *rates.ForwardPanel, i int, labels []string) (*Position, bool) {
	snap, err := e.model.FitAt(p, i)
	if err != nil {
		if errors.Is(err, factor.ErrInsufficientWindow) {
			e.log.Debug().Str("date", p.Dates[i].Format("2006-01-02")).Err(err).Msg("factor fit skipped")
			return nil, i+1 >= e.model.Config().Window
		}
		e.log.Warn().Str("date", p.Dates[i].Format("2006-01-02")).Err(err).Msg("factor fit failed")
		return nil, true
	}

	ranking := signal.Rank(snap.Date, labels, snap.Residual)
	if !ranking.StraddlesZero() {
		return nil, false
	}
	long, short := ranking.Pair()
	if thr := e.cfg.EntryThresholdBP / 100; thr > 0 &&
		(long.Residual < thr || short.Residual > -thr) {
		return nil, false
	}

	pos := &Position{
		EntryDate:     p.Dates[i],
		LongName:      long.Name,
		ShortName:     short.Name,
		EntrySpreadBP: (long.Residual - short.Residual) * 100,
		longCol:       long.Column,
		shortCol:      short.Column,
	}

	exposure := hedge.Exposure(
		snap.Loadings(long.Column, e.cfg.HedgeMode),
		snap.Loadings(short.Column, e.cfg.HedgeMode),
		e.cfg.HedgeMode,
	)

	// Hedge instruments are resolved nearest to the target tenors today,
	// then pinned by name for the life of the position.
	cols := make([]int, 0, e.cfg.HedgeMode)
	for h := 0; h < e.cfg.HedgeMode; h++ {
		col, ok := p.NearestColumn(i, e.cfg.HedgeTenors[h])
		if !ok {
			e.log.Warn().Str("date", p.Dates[i].Format("2006-01-02")).Msg("no hedge instrument available")
			return nil, false
		}
		cols = append(cols, col)
	}

	var sol hedge.Result
	if e.cfg.HedgeMode == 1 {
		sol = hedge.SolveSingle(exposure[0], snap.Loading(cols[0], 0), e.cfg.Hedge)
	} else {
		h1 := [2]float64{snap.Loading(cols[0], 0), snap.Loading(cols[0], 1)}
		h2 := [2]float64{snap.Loading(cols[1], 0), snap.Loading(cols[1], 1)}
		sol = hedge.SolveDouble([2]float64{exposure[0], exposure[1]}, h1, h2, e.cfg.Hedge)
	}
	if sol.Degenerate || sol.Clipped {
		e.log.Debug().
			Str("date", p.Dates[i].Format("2006-01-02")).
			Bool("clipped", sol.Clipped).
			Bool("degenerate", sol.Degenerate).
			Floats64("quantities", sol.Quantities).
			Msg("hedge solve hit guard")
	}

	for h, col := range cols {
		pos.HedgeNames = append(pos.HedgeNames, labels[col])
		pos.HedgeQtys = append(pos.HedgeQtys, sol.Quantities[h])
		pos.hedgeCols = append(pos.hedgeCols, col)
	}
	return pos, false
}

// dailyPnL computes one open position's P&L from day i to i+1 in basis
// points. A leg with a missing rate on either day contributes zero.
func (e *Engine) dailyPnL(p *rates.ForwardPanel, i int, pos *Position) (noHedge, hedgePnL float64) {
	// Long earns when its yield falls, short when its yield rises.
	noHedge = legChangeBP(p, i, pos.longCol) - legChangeBP(p, i, pos.shortCol)
	for h, col := range pos.hedgeCols {
		hedgePnL += pos.HedgeQtys[h] * legChangeBP(p, i, col)
	}
	return noHedge, hedgePnL
}

// legChangeBP is (today - next) * 100 for a column, zero when either side
// is missing.
func legChangeBP(p *rates.ForwardPanel, i, col int) float64 {
	today := p.Values[i][col]
	next := p.Values[i+1][col]
	if math.IsNaN(today) || math.IsNaN(next) || math.IsInf(today, 0) || math.IsInf(next, 0) {
		return 0
	}
	return (today - next) * 100
}

func dailyVol(records []Record, pick func(Record) float64) float64 {
	n := len(records)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range records {
		mean += pick(r)
	}
	mean /= float64(n)
	ss := 0.0
	for _, r := range records {
		d := pick(r) - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
