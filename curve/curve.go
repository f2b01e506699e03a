// Package curve bootstraps an overnight-index discount curve from par swap
// quotes for a single evaluation date and derives forward rates from it.
// Curves carry no cross-date state: each one is a pure function of that
// day's quotes and is discarded after use.
package curve

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/meenmo/tonarv/calendar"
	"github.com/meenmo/tonarv/utils"
)

// BuildError reports a failed curve construction. The date is skipped by
// callers; a build failure is never fatal to a run.
type BuildError struct {
	Date   time.Time
	Reason string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("curve build failed on %s: %s", e.Date.Format("2006-01-02"), e.Reason)
}

// Curve is a bootstrapped discount curve anchored at its settlement date
// (DF(settlement) = 1). Discount factors between pillars follow a natural
// cubic spline on log discount factors; beyond the last pillar the spline
// extends with a flat instantaneous forward.
type Curve struct {
	evalDate   time.Time
	settlement time.Time
	cal        calendar.ID
	dayCount   string

	pillarTenors []int
	pillarDates  []time.Time
	times        []float64 // year fractions from settlement, times[0] = 0
	logDF        []float64 // logDF[0] = 0

	spline *cubicSpline
}

type buildConfig struct {
	cal           calendar.ID
	settlementLag int
	dayCount      string
}

// Option adjusts curve construction conventions.
type Option func(*buildConfig)

// WithCalendar sets the holiday calendar (default JPN).
func WithCalendar(cal calendar.ID) Option {
	return func(c *buildConfig) { c.cal = cal }
}

// WithSettlementLag sets the spot lag in business days (default 2).
func WithSettlementLag(days int) Option {
	return func(c *buildConfig) { c.settlementLag = days }
}

const (
	solverTolerance = 1e-12
	solverMaxIter   = 50
)

// Build bootstraps a discount curve from tenor (whole years) -> par rate
// (percent) quotes. NaN and non-positive-tenor entries are dropped. Fewer
// than two usable quotes, or a non-converging pillar solve, yields a
// *BuildError and no curve.
func Build(evalDate time.Time, quotes map[int]float64, opts ...Option) (*Curve, error) {
	cfg := buildConfig{cal: calendar.JPN, settlementLag: 2, dayCount: "ACT/365F"}
	for _, opt := range opts {
		opt(&cfg)
	}

	tenors := make([]int, 0, len(quotes))
	for tenor, rate := range quotes {
		if tenor >= 1 && !math.IsNaN(rate) && !math.IsInf(rate, 0) {
			tenors = append(tenors, tenor)
		}
	}
	if len(tenors) < 2 {
		return nil, &BuildError{Date: evalDate, Reason: fmt.Sprintf("only %d usable quotes", len(tenors))}
	}
	sort.Ints(tenors)

	settlement := calendar.AddBusinessDays(cfg.cal, evalDate, cfg.settlementLag)
	maxTenor := tenors[len(tenors)-1]

	// Anniversary schedule shared by every pillar's fixed leg: annual
	// coupons on the adjusted anniversaries of settlement, ACT/365F accrual,
	// paid on the accrual end date.
	annDates := make([]time.Time, maxTenor+1)
	annTimes := make([]float64, maxTenor+1)
	annDates[0] = settlement
	for j := 1; j <= maxTenor; j++ {
		annDates[j] = calendar.AddYearsWithRoll(cfg.cal, settlement, j)
		annTimes[j] = utils.YearFraction(settlement, annDates[j], cfg.dayCount)
	}
	accruals := make([]float64, maxTenor+1)
	for j := 1; j <= maxTenor; j++ {
		accruals[j] = utils.YearFraction(annDates[j-1], annDates[j], cfg.dayCount)
	}

	c := &Curve{
		evalDate:   evalDate,
		settlement: settlement,
		cal:        cfg.cal,
		dayCount:   cfg.dayCount,
		times:      []float64{0},
		logDF:      []float64{0},
	}

	// Sequential pillar bootstrap: each quoted tenor adds one node, solved
	// so the par swap of that maturity reprices to zero against the nodes
	// solved so far.
	prevTime := 0.0
	prevDF := 1.0
	for _, tenor := range tenors {
		rate := quotes[tenor] / 100.0
		matTime := annTimes[tenor]
		df, ok := c.solvePillar(rate, tenor, annTimes, accruals, prevTime, prevDF, matTime)
		if !ok {
			return nil, &BuildError{
				Date:   evalDate,
				Reason: fmt.Sprintf("pillar solve did not converge at %dY", tenor),
			}
		}
		c.pillarTenors = append(c.pillarTenors, tenor)
		c.pillarDates = append(c.pillarDates, annDates[tenor])
		c.times = append(c.times, matTime)
		c.logDF = append(c.logDF, math.Log(df))
		prevTime, prevDF = matTime, df
	}

	// The seed pass prices intermediate coupons log-linearly; the finished
	// curve prices them off the log-cubic spline. Re-solve the pillars
	// against the spline until the nodes stop moving so every quoted tenor
	// reprices exactly, gapped grids included.
	if err := c.refine(tenors, quotes, annTimes, accruals); err != nil {
		return nil, &BuildError{Date: evalDate, Reason: err.Error()}
	}
	return c, nil
}

const refineMaxIter = 100

// refine iterates the bootstrap to a fixed point of the final interpolation:
// each pass rebuilds the spline on the current nodes and re-solves each
// pillar with spline-discounted intermediate coupons. On contiguous tenor
// grids every coupon date is a knot, so the seed pass is already the fixed
// point and one pass confirms it.
func (c *Curve) refine(tenors []int, quotes map[int]float64, annTimes, accruals []float64) error {
	for iter := 0; iter < refineMaxIter; iter++ {
		spline, err := newCubicSpline(c.times, c.logDF)
		if err != nil {
			return err
		}
		c.spline = spline

		maxShift := 0.0
		logDF := append([]float64(nil), c.logDF...)
		for i, tenor := range tenors {
			rate := quotes[tenor] / 100.0
			pv := 0.0
			for j := 1; j < tenor; j++ {
				pv += accruals[j] * rate * math.Exp(spline.eval(annTimes[j]))
			}
			df := (1.0 - pv) / (1.0 + accruals[tenor]*rate)
			if df <= 0 {
				return fmt.Errorf("non-positive discount factor at %dY", tenor)
			}
			l := math.Log(df)
			if shift := math.Abs(l - logDF[i+1]); shift > maxShift {
				maxShift = shift
			}
			logDF[i+1] = l
		}
		c.logDF = logDF

		if maxShift < solverTolerance {
			spline, err := newCubicSpline(c.times, c.logDF)
			if err != nil {
				return err
			}
			c.spline = spline
			return nil
		}
	}
	return fmt.Errorf("bootstrap did not converge to an interpolation-consistent fit")
}

// solvePillar finds DF(maturity) for one quoted tenor by Newton-Raphson on
// the par condition sum(alpha_j * R * DF(t_j)) + DF(maturity) = 1. Coupon
// dates at or before the previous pillar discount off the solved nodes;
// dates past it interpolate log-linearly against the unknown.
func (c *Curve) solvePillar(rate float64, tenor int, annTimes, accruals []float64, prevTime, prevDF, matTime float64) (float64, bool) {
	guess := prevDF
	for iter := 0; iter < solverMaxIter; iter++ {
		pv := 0.0
		deriv := 0.0
		for j := 1; j <= tenor; j++ {
			t := annTimes[j]
			var df, dfPrime float64
			if t <= prevTime+1e-12 {
				df = c.solvedDF(t)
			} else {
				df, dfPrime = interpUnknownDF(t, prevTime, prevDF, matTime, guess)
			}
			pv += accruals[j] * rate * df
			deriv += accruals[j] * rate * dfPrime
		}

		f := pv + guess - 1.0
		fPrime := deriv + 1.0
		if math.Abs(f) < solverTolerance {
			return guess, true
		}
		if math.Abs(fPrime) < 1e-15 || math.IsNaN(f) {
			return 0, false
		}
		guess -= f / fPrime
		if math.IsNaN(guess) || guess <= 1e-9 {
			guess = 1e-9
		}
	}
	return 0, false
}

// solvedDF interpolates log-linearly over the nodes solved so far.
func (c *Curve) solvedDF(t float64) float64 {
	n := len(c.times)
	i := sort.SearchFloat64s(c.times, t)
	if i < n && c.times[i] == t {
		return math.Exp(c.logDF[i])
	}
	if i == 0 {
		return 1.0
	}
	if i >= n {
		i = n - 1
	}
	t1, t2 := c.times[i-1], c.times[i]
	l1, l2 := c.logDF[i-1], c.logDF[i]
	return math.Exp(l1 + (l2-l1)*(t-t1)/(t2-t1))
}

// interpUnknownDF interpolates DF at t between the previous pillar and the
// unknown maturity DF x, returning the value and its derivative in x.
// Log-linear: DF(t) = prevDF^(1-r) * x^r with r the time ratio.
func interpUnknownDF(t, prevTime, prevDF, matTime, x float64) (float64, float64) {
	if matTime == prevTime {
		return prevDF, 0
	}
	r := (t - prevTime) / (matTime - prevTime)
	if x <= 1e-9 {
		x = 1e-9
	}
	df := math.Pow(prevDF, 1-r) * math.Pow(x, r)
	return df, r * df / x
}

// EvalDate returns the evaluation date the curve was built for.
func (c *Curve) EvalDate() time.Time { return c.evalDate }

// Settlement returns the curve's anchor date (evaluation date + spot lag).
func (c *Curve) Settlement() time.Time { return c.settlement }

// PillarTenors returns the quoted tenors used in the bootstrap, ascending.
func (c *Curve) PillarTenors() []int { return c.pillarTenors }

// MaxTenorYears returns the longest quoted tenor.
func (c *Curve) MaxTenorYears() int { return c.pillarTenors[len(c.pillarTenors)-1] }

// DiscountFactor returns DF(d) relative to the settlement anchor.
func (c *Curve) DiscountFactor(d time.Time) float64 {
	return c.df(utils.YearFraction(c.settlement, d, c.dayCount))
}

func (c *Curve) df(t float64) float64 {
	if t <= 0 {
		return 1.0
	}
	return math.Exp(c.spline.eval(t))
}

// ForwardRate returns the simple-compounding forward rate (decimal) between
// two dates implied by the curve's discount factors.
func (c *Curve) ForwardRate(d1, d2 time.Time) (float64, error) {
	tau := utils.YearFraction(d1, d2, c.dayCount)
	if tau <= 0 {
		return 0, fmt.Errorf("forward rate: non-positive accrual between %s and %s",
			d1.Format("2006-01-02"), d2.Format("2006-01-02"))
	}
	df1 := c.DiscountFactor(d1)
	df2 := c.DiscountFactor(d2)
	if df2 <= 0 {
		return 0, fmt.Errorf("forward rate: non-positive discount factor at %s", d2.Format("2006-01-02"))
	}
	return (df1/df2 - 1) / tau, nil
}

// ParRate reprices the par swap rate (percent) for a whole-year tenor off
// the finished curve. Feeding back a quoted tenor recovers its input rate up
// to solver tolerance; this is the bootstrap consistency check.
func (c *Curve) ParRate(tenor int) (float64, error) {
	if tenor < 1 {
		return 0, fmt.Errorf("par rate: tenor %d out of range", tenor)
	}
	annuity := 0.0
	prev := c.settlement
	var last float64
	for j := 1; j <= tenor; j++ {
		d := calendar.AddYearsWithRoll(c.cal, c.settlement, j)
		alpha := utils.YearFraction(prev, d, c.dayCount)
		last = c.DiscountFactor(d)
		annuity += alpha * last
		prev = d
	}
	if annuity == 0 {
		return 0, fmt.Errorf("par rate: zero annuity at %dY", tenor)
	}
	return (1 - last) / annuity * 100, nil
}
