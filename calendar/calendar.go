package calendar

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ID identifies a holiday calendar.
type ID string

const (
	JPN    ID = "JPN"
	TARGET ID = "TARGET"
	USD    ID = "USD"
)

var (
	holidayMu   sync.RWMutex
	holidaySets = map[ID]map[string]struct{}{
		JPN:    {},
		TARGET: {},
		USD:    {},
	}
)

// RegisterHolidays installs holiday dates (YYYY-MM-DD) for a calendar.
// The library ships with weekend-only calendars; callers that need exchange
// holiday data load it here before building curves. Safe for concurrent use.
func RegisterHolidays(cal ID, dates []string) {
	holidayMu.Lock()
	defer holidayMu.Unlock()
	set, ok := holidaySets[cal]
	if !ok {
		set = make(map[string]struct{}, len(dates))
		holidaySets[cal] = set
	}
	for _, d := range dates {
		set[d] = struct{}{}
	}
}

// LoadHolidaysCSV registers holidays for cal from a CSV file with one
// YYYY-MM-DD date per row in the first column. A leading "date" header row
// is allowed.
func LoadHolidaysCSV(cal ID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open holidays: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var dates []string
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return fmt.Errorf("read holidays line %d: %w", line, err)
		}
		if len(rec) == 0 || rec[0] == "" || (line == 1 && rec[0] == "date") {
			continue
		}
		if _, err := time.Parse("2006-01-02", rec[0]); err != nil {
			return fmt.Errorf("holidays line %d: bad date %q: %w", line, rec[0], err)
		}
		dates = append(dates, rec[0])
	}
	RegisterHolidays(cal, dates)
	return nil
}

func isHoliday(cal ID, t time.Time) bool {
	holidayMu.RLock()
	defer holidayMu.RUnlock()
	set, ok := holidaySets[cal]
	if !ok {
		return false
	}
	_, hit := set[t.Format("2006-01-02")]
	return hit
}

// IsBusinessDay checks weekends and holiday sets.
func IsBusinessDay(cal ID, t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !isHoliday(cal, t)
}

// Adjust applies Modified Following.
func Adjust(cal ID, t time.Time) time.Time {
	origMonth := t.Month()
	for !IsBusinessDay(cal, t) {
		t = t.AddDate(0, 0, 1)
	}
	if t.Month() != origMonth {
		t = t.AddDate(0, 0, -1)
		for !IsBusinessDay(cal, t) {
			t = t.AddDate(0, 0, -1)
		}
	}
	return t
}

// AdjustFollowing applies a simple Following convention (no month preservation).
func AdjustFollowing(cal ID, t time.Time) time.Time {
	for !IsBusinessDay(cal, t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// AddBusinessDays advances n business days (n can be negative).
func AddBusinessDays(cal ID, t time.Time, n int) time.Time {
	step := 1
	if n < 0 {
		step = -1
	}
	for n != 0 {
		t = t.AddDate(0, 0, step)
		if IsBusinessDay(cal, t) {
			n -= step
		}
	}
	return t
}

// AddYearsWithRoll adds years and applies backward EOM adjustment then Modified Following.
// Month-end dates stay pinned to month end in the target year.
func AddYearsWithRoll(cal ID, t time.Time, years int) time.Time {
	y, m := t.Year()+years, t.Month()
	day := t.Day()
	if last := daysInMonth(y, m); day >= daysInMonth(t.Year(), t.Month()) || day > last {
		day = last
	}
	return Adjust(cal, time.Date(y, m, day, 0, 0, 0, 0, time.UTC))
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
