// Package rates holds the quote and forward-rate panels shared by the curve,
// factor and backtest layers. The ingestion side owns how panels are filled;
// everything downstream treats them as read-only, date-ordered input.
package rates

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/meenmo/tonarv/utils"
)

// Quote is a single par-rate observation for one evaluation date.
// Rates are in percent; TenorYears is a whole number of years >= 1.
type Quote struct {
	TenorYears  int
	RatePercent float64
}

// Row is one business day of par quotes, keyed by tenor in years.
// Missing tenors are absent from the map; unusable values are NaN.
type Row struct {
	Date   time.Time
	Quotes map[int]float64
}

// ValidQuotes returns the finite subset of the row's quotes.
func (r Row) ValidQuotes() map[int]float64 {
	out := make(map[int]float64, len(r.Quotes))
	for tenor, rate := range r.Quotes {
		if tenor >= 1 && !math.IsNaN(rate) && !math.IsInf(rate, 0) {
			out[tenor] = rate
		}
	}
	return out
}

// Panel is a date-ordered sequence of quote rows.
type Panel struct {
	Rows []Row
}

// Tenors returns the sorted union of tenors seen anywhere in the panel.
func (p *Panel) Tenors() []int {
	seen := map[int]struct{}{}
	for _, r := range p.Rows {
		for tenor := range r.Quotes {
			seen[tenor] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for tenor := range seen {
		out = append(out, tenor)
	}
	sort.Ints(out)
	return out
}

// LoadCSV reads a quote panel from CSV. The expected layout is a header row
// "date,1,2,...,N" with tenor years as column names, then one row per
// business day. Empty cells and "NaN" mark missing quotes. Rows are sorted
// by date; duplicate dates keep the last occurrence.
func LoadCSV(path string) (*Panel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open panel: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses a quote panel from r. See LoadCSV for the layout.
func ReadCSV(r io.Reader) (*Panel, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read panel header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("panel header needs a date column and at least one tenor, got %d columns", len(header))
	}

	tenors := make([]int, len(header))
	for i := 1; i < len(header); i++ {
		tenor, err := strconv.Atoi(header[i])
		if err != nil || tenor < 1 {
			return nil, fmt.Errorf("panel header column %q is not a tenor in years", header[i])
		}
		tenors[i] = tenor
	}

	byDate := map[time.Time]Row{}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read panel line %d: %w", line, err)
		}
		date, err := utils.ParseDate(rec[0])
		if err != nil {
			return nil, fmt.Errorf("panel line %d: bad date %q: %w", line, rec[0], err)
		}
		row := Row{Date: date, Quotes: make(map[int]float64, len(rec)-1)}
		for i := 1; i < len(rec) && i < len(header); i++ {
			row.Quotes[tenors[i]] = parseRate(rec[i])
		}
		byDate[date] = row
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	utils.SortDates(dates)

	p := &Panel{Rows: make([]Row, 0, len(dates))}
	for _, d := range dates {
		p.Rows = append(p.Rows, byDate[d])
	}
	return p, nil
}

func parseRate(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
