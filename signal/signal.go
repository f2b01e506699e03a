// Package signal ranks instruments by their deviation from the
// factor-implied fair rate. The ranking is purely cross-sectional: one
// date, across tenors, no temporal state.
package signal

import (
	"sort"
	"time"
)

// Entry pairs an instrument with its residual in rate units. A positive
// residual means the actual rate sits above the factor model's fair rate:
// the instrument yields too much, so its price is too low and it screens
// cheap. Negative residuals screen rich.
type Entry struct {
	Name     string
	Column   int
	Residual float64
}

// Ranking is one date's instruments ordered by residual, descending
// (cheapest first).
type Ranking struct {
	Date    time.Time
	Entries []Entry
}

// Rank orders instruments by residual descending. names and residuals are
// parallel slices in panel column order.
func Rank(date time.Time, names []string, residuals []float64) Ranking {
	entries := make([]Entry, len(residuals))
	for i := range residuals {
		entries[i] = Entry{Name: names[i], Column: i, Residual: residuals[i]}
	}
	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].Residual > entries[b].Residual
	})
	return Ranking{Date: date, Entries: entries}
}

// Cheapest returns the top n entries (largest positive residuals).
func (r Ranking) Cheapest(n int) []Entry {
	if n > len(r.Entries) {
		n = len(r.Entries)
	}
	return r.Entries[:n]
}

// Richest returns the bottom n entries, most negative residual first.
func (r Ranking) Richest(n int) []Entry {
	if n > len(r.Entries) {
		n = len(r.Entries)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = r.Entries[len(r.Entries)-1-i]
	}
	return out
}

// StraddlesZero reports whether the ranking has both a positive and a
// negative residual, i.e. whether a long/short pair exists.
func (r Ranking) StraddlesZero() bool {
	if len(r.Entries) == 0 {
		return false
	}
	return r.Entries[0].Residual > 0 && r.Entries[len(r.Entries)-1].Residual < 0
}

// Pair returns the extreme long/short candidates: the cheapest entry to
// long and the richest to short.
func (r Ranking) Pair() (long, short Entry) {
	return r.Entries[0], r.Entries[len(r.Entries)-1]
}
