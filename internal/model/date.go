package model

import (
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date format used for markers and stat keys.
const DateLayout = "2006-01-02"

// Date is a calendar day in ISO form (YYYY-MM-DD). The zero value means "no date".
type Date string

// DateOf returns the calendar day of t in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	return Date(t.Format(DateLayout))
}

// ParseDate validates an ISO date string.
func ParseDate(raw string) (Date, error) {
	if _, err := time.Parse(DateLayout, raw); err != nil {
		return "", fmt.Errorf("parse date %q: %w", raw, err)
	}
	return Date(raw), nil
}

// IsZero reports whether d is unset.
func (d Date) IsZero() bool {
	return d == ""
}

// Before reports whether d is an earlier day than other. ISO dates order lexically.
func (d Date) Before(other Date) bool {
	return d < other
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, string(d), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (d Date) String() string {
	return string(d)
}

// MonthRange returns the first and last day of the given month.
func MonthRange(year int, month time.Month) (Date, Date) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return Date(first.Format(DateLayout)), Date(last.Format(DateLayout))
}
