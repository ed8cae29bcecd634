package core

import (
	"math"
	"strings"
	"time"
)

// NowFunc returns the current time; mockable in tests.
var NowFunc = func() time.Time { return time.Now().UTC() }

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last nanosecond of t's day (UTC).
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Nanosecond)
}

// DaysBetween lists every calendar day touched by [from, to].
func DaysBetween(from, to time.Time) []time.Time {
	if to.Before(from) {
		return nil
	}
	last := StartOfDay(to)
	days := make([]time.Time, 0, int(last.Sub(StartOfDay(from)).Hours()/24)+1)
	for d := StartOfDay(from); !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Round2 rounds f to two decimals.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}
