package calendar_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/meenmo/tonarv/calendar"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsBusinessDay_Weekends(t *testing.T) {
	if calendar.IsBusinessDay(calendar.JPN, date(2025, 6, 7)) {
		t.Fatal("Saturday is not a business day")
	}
	if calendar.IsBusinessDay(calendar.JPN, date(2025, 6, 8)) {
		t.Fatal("Sunday is not a business day")
	}
	if !calendar.IsBusinessDay(calendar.JPN, date(2025, 6, 9)) {
		t.Fatal("Monday is a business day")
	}
}

func TestRegisterHolidays(t *testing.T) {
	const cal = calendar.ID("TEST-REG")
	calendar.RegisterHolidays(cal, []string{"2025-06-09"})

	if calendar.IsBusinessDay(cal, date(2025, 6, 9)) {
		t.Fatal("registered holiday still a business day")
	}
	// Other calendars are untouched.
	if !calendar.IsBusinessDay(calendar.JPN, date(2025, 6, 9)) {
		t.Fatal("holiday leaked across calendars")
	}
	// Following rolls over the holiday to Tuesday.
	if got := calendar.AdjustFollowing(cal, date(2025, 6, 7)); !got.Equal(date(2025, 6, 10)) {
		t.Fatalf("AdjustFollowing = %v", got)
	}
}

func TestLoadHolidaysCSV(t *testing.T) {
	const cal = calendar.ID("TEST-CSV")
	path := filepath.Join(t.TempDir(), "holidays.csv")
	data := "date\n2025-01-01\n2025-05-05\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write holidays: %v", err)
	}

	if err := calendar.LoadHolidaysCSV(cal, path); err != nil {
		t.Fatalf("LoadHolidaysCSV: %v", err)
	}
	if calendar.IsBusinessDay(cal, date(2025, 1, 1)) {
		t.Fatal("2025-01-01 loaded but still a business day")
	}
	if calendar.IsBusinessDay(cal, date(2025, 5, 5)) {
		t.Fatal("2025-05-05 loaded but still a business day")
	}
	if !calendar.IsBusinessDay(cal, date(2025, 1, 2)) {
		t.Fatal("unlisted weekday marked as holiday")
	}
}

func TestLoadHolidaysCSV_BadInput(t *testing.T) {
	const cal = calendar.ID("TEST-CSV-BAD")
	path := filepath.Join(t.TempDir(), "holidays.csv")
	if err := os.WriteFile(path, []byte("2025-01-01\nnot-a-date\n"), 0o644); err != nil {
		t.Fatalf("write holidays: %v", err)
	}
	if err := calendar.LoadHolidaysCSV(cal, path); err == nil {
		t.Fatal("malformed date accepted")
	}
	if err := calendar.LoadHolidaysCSV(cal, filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestRegisterHolidays_Concurrent(t *testing.T) {
	const cal = calendar.ID("TEST-CONC")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			calendar.RegisterHolidays(cal, []string{fmt.Sprintf("2025-01-%02d", i+2)})
			for d := 1; d <= 28; d++ {
				calendar.IsBusinessDay(cal, date(2025, 1, d))
			}
		}(i)
	}
	wg.Wait()
	for i := 0; i < 8; i++ {
		if calendar.IsBusinessDay(cal, date(2025, 1, i+2)) {
			t.Fatalf("2025-01-%02d registered but still a business day", i+2)
		}
	}
}

func TestAdjust_ModifiedFollowing(t *testing.T) {
	// Saturday 2025-08-30: Following would land in September, so Modified
	// Following rolls back to Friday the 29th.
	if got := calendar.Adjust(calendar.JPN, date(2025, 8, 30)); !got.Equal(date(2025, 8, 29)) {
		t.Fatalf("Adjust = %v, want 2025-08-29", got)
	}
	// Mid-month weekend rolls forward.
	if got := calendar.Adjust(calendar.JPN, date(2025, 6, 7)); !got.Equal(date(2025, 6, 9)) {
		t.Fatalf("Adjust = %v, want 2025-06-09", got)
	}
}

func TestAddBusinessDays(t *testing.T) {
	// Friday + 2 business days skips the weekend.
	if got := calendar.AddBusinessDays(calendar.JPN, date(2025, 6, 6), 2); !got.Equal(date(2025, 6, 10)) {
		t.Fatalf("AddBusinessDays = %v, want 2025-06-10", got)
	}
	if got := calendar.AddBusinessDays(calendar.JPN, date(2025, 6, 9), -1); !got.Equal(date(2025, 6, 6)) {
		t.Fatalf("AddBusinessDays back = %v, want 2025-06-06", got)
	}
}

func TestAddYearsWithRoll(t *testing.T) {
	// Month-end dates stay pinned to month end.
	if got := calendar.AddYearsWithRoll(calendar.JPN, date(2024, 2, 29), 1); !got.Equal(date(2025, 2, 28)) {
		t.Fatalf("AddYearsWithRoll EOM = %v, want 2025-02-28", got)
	}
	// Plain anniversary, adjusted when it lands on a weekend.
	if got := calendar.AddYearsWithRoll(calendar.JPN, date(2025, 6, 2), 2); !got.Equal(date(2027, 6, 2)) {
		t.Fatalf("AddYearsWithRoll = %v, want 2027-06-02", got)
	}
}
