package models

import "time"

// DateLayout is the canonical date format used throughout.
const DateLayout = "2006-01-02"

// DateOnly truncates t to UTC midnight. All stored and compared dates pass
// through this so that time-of-day and zone never affect (symbol, date) keys.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsBusinessDay reports whether d falls Mon-Fri. Market holidays are not
// modelled; a holiday counts as an expected business day, which over-reports
// gaps and at worst triggers a fetch that returns no rows.
func IsBusinessDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// BusinessDaysBetween counts Mon-Fri days in [from, to] inclusive.
// Returns 0 when to precedes from.
func BusinessDaysBetween(from, to time.Time) int {
	from, to = DateOnly(from), DateOnly(to)
	if to.Before(from) {
		return 0
	}
	days := int(to.Sub(from).Hours()/24) + 1
	weeks := days / 7
	count := weeks * 5
	for d := from.AddDate(0, 0, weeks*7); !d.After(to); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			count++
		}
	}
	return count
}

// LatestBusinessDayOnOrBefore walks back from d to the nearest Mon-Fri day.
func LatestBusinessDayOnOrBefore(d time.Time) time.Time {
	d = DateOnly(d)
	for !IsBusinessDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// MinDate returns the earlier of a and b.
func MinDate(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// MaxDate returns the later of a and b.
func MaxDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
