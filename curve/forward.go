package curve

import (
	"github.com/meenmo/tonarv/calendar"
)

// Forward is a 1Y simple-compounding forward rate starting in Start years,
// in percent.
type Forward struct {
	Start       int
	RatePercent float64
}

// ExtractForwards derives the 1Y forward strip from a built curve: for every
// start year s from 1 to the last quoted tenor minus one, the simple forward
// between evalDate+s years and evalDate+s+1 years. Forwards beyond the last
// pillar's reach are omitted rather than filled. The strip is not forced to
// be monotonic; kinks in a smooth curve are expected output, not errors.
func ExtractForwards(c *Curve) []Forward {
	maxTenor := c.MaxTenorYears()
	out := make([]Forward, 0, maxTenor-1)
	for s := 1; s < maxTenor; s++ {
		d1 := calendar.AddYearsWithRoll(c.cal, c.evalDate, s)
		d2 := calendar.AddYearsWithRoll(c.cal, c.evalDate, s+1)
		f, err := c.ForwardRate(d1, d2)
		if err != nil {
			continue
		}
		out = append(out, Forward{Start: s, RatePercent: f * 100})
	}
	return out
}
