package signal_test

import (
	"testing"
	"time"

	"github.com/meenmo/tonarv/signal"
)

func testDate() time.Time {
	return time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
}

func TestRank_OrdersResidualsDescending(t *testing.T) {
	t.Parallel()

	names := []string{"Fwd_1Y_1Y", "Fwd_2Y_1Y", "Fwd_3Y_1Y", "Fwd_4Y_1Y"}
	residuals := []float64{-0.02, 0.05, 0.01, -0.07}

	r := signal.Rank(testDate(), names, residuals)
	want := []string{"Fwd_2Y_1Y", "Fwd_3Y_1Y", "Fwd_1Y_1Y", "Fwd_4Y_1Y"}
	for i, e := range r.Entries {
		if e.Name != want[i] {
			t.Fatalf("rank %d = %s, want %s", i, e.Name, want[i])
		}
	}
}

func TestRank_CheapestAndRichest(t *testing.T) {
	t.Parallel()

	names := []string{"a", "b", "c", "d", "e"}
	residuals := []float64{0.01, 0.04, -0.03, 0.02, -0.01}

	r := signal.Rank(testDate(), names, residuals)

	cheap := r.Cheapest(2)
	if cheap[0].Name != "b" || cheap[1].Name != "d" {
		t.Fatalf("Cheapest(2) = %v", cheap)
	}
	rich := r.Richest(2)
	if rich[0].Name != "c" || rich[1].Name != "e" {
		t.Fatalf("Richest(2) = %v", rich)
	}

	// Requesting more than available truncates.
	if got := len(r.Cheapest(10)); got != 5 {
		t.Fatalf("Cheapest(10) returned %d entries", got)
	}
}

func TestRank_PairAndStraddle(t *testing.T) {
	t.Parallel()

	r := signal.Rank(testDate(), []string{"a", "b", "c"}, []float64{0.03, -0.01, 0.01})
	if !r.StraddlesZero() {
		t.Fatal("expected straddling residuals")
	}
	long, short := r.Pair()
	if long.Name != "a" || short.Name != "b" {
		t.Fatalf("Pair = %s/%s, want a/b", long.Name, short.Name)
	}

	// All one sign: no tradeable pair.
	r = signal.Rank(testDate(), []string{"a", "b"}, []float64{0.02, 0.01})
	if r.StraddlesZero() {
		t.Fatal("one-sided residuals must not straddle zero")
	}
}

func TestRank_ColumnTracksInput(t *testing.T) {
	t.Parallel()

	r := signal.Rank(testDate(), []string{"a", "b", "c"}, []float64{-0.01, 0.02, 0.0})
	for _, e := range r.Entries {
		switch e.Name {
		case "a":
			if e.Column != 0 {
				t.Fatalf("a column = %d", e.Column)
			}
		case "b":
			if e.Column != 1 {
				t.Fatalf("b column = %d", e.Column)
			}
		case "c":
			if e.Column != 2 {
				t.Fatalf("c column = %d", e.Column)
			}
		}
	}
}
