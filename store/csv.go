// Package store persists pipeline results: residual and P&L tables to CSV
// files and, when a DSN is configured, to Postgres.
package store

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/meenmo/tonarv/backtest"
	"github.com/meenmo/tonarv/rates"
	"github.com/meenmo/tonarv/utils"
)

// WriteForwardCSV writes the forward-rate panel with a date column followed
// by one column per forward tenor, rates in percent.
func WriteForwardCSV(path string, fwd *rates.ForwardPanel) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create forward csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"date"}, fwd.Labels()...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write forward header: %w", err)
	}
	for i, d := range fwd.Dates {
		rec := make([]string, 0, len(header))
		rec = append(rec, utils.FormatDate(d))
		for _, v := range fwd.Values[i] {
			rec = append(rec, formatRate(v))
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write forward row %s: %w", utils.FormatDate(d), err)
		}
	}
	w.Flush()
	return w.Error()
}

// ResidualTable is the dates x instruments residual history in rate units.
type ResidualTable struct {
	Labels []string
	Dates  []time.Time
	Values [][]float64
}

// WriteResidualCSV writes the residual table with a date column followed by
// one column per instrument. Missing residuals render as empty cells.
func WriteResidualCSV(path string, table *ResidualTable) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create residual csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"date"}, table.Labels...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write residual header: %w", err)
	}
	for i, d := range table.Dates {
		rec := make([]string, 0, len(header))
		rec = append(rec, utils.FormatDate(d))
		for _, v := range table.Values[i] {
			rec = append(rec, formatRate(v))
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write residual row %s: %w", utils.FormatDate(d), err)
		}
	}
	w.Flush()
	return w.Error()
}

// WritePnLCSV writes the daily and cumulative P&L series in basis points.
func WritePnLCSV(path string, res *backtest.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pnl csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"date", "long", "short",
		"no_hedge_pnl_bp", "hedge_pnl_bp", "hedged_pnl_bp",
		"cum_no_hedge_bp", "cum_hedged_bp",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write pnl header: %w", err)
	}
	for _, r := range res.Records {
		rec := []string{
			utils.FormatDate(r.Date),
			r.LongName,
			r.ShortName,
			formatRate(r.NoHedgePnLBP),
			formatRate(r.HedgePnLBP),
			formatRate(r.HedgedPnLBP),
			formatRate(r.CumNoHedgeBP),
			formatRate(r.CumHedgedBP),
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write pnl row %s: %w", utils.FormatDate(r.Date), err)
		}
	}
	w.Flush()
	return w.Error()
}

func formatRate(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(utils.RoundTo(v, 8), 'f', -1, 64)
}
