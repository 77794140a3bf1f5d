package core

import (
	"fmt"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02 Jan 2006",
}

// ParseDate parses a date-like string from a source system and normalizes it
// to a UTC-naive business date (midnight UTC). Time-of-day and zone
// information present in the input is discarded.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return BusinessDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidDate, s)
}

// BusinessDate truncates t to midnight UTC.
func BusinessDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Period is a half-open [Start, End) range of business days. The half-open
// convention avoids boundary double-counting between adjacent periods.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod builds a period from two calendar dates, truncating both to
// business dates. End must be strictly after Start.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: BusinessDate(start), End: BusinessDate(end)}
	if !p.End.After(p.Start) {
		return Period{}, fmt.Errorf("period end %s must be after start %s",
			p.End.Format("2006-01-02"), p.Start.Format("2006-01-02"))
	}
	return p, nil
}

// MonthPeriod returns the period covering one calendar month.
func MonthPeriod(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// Contains reports whether the business date d falls inside the period.
func (p Period) Contains(d time.Time) bool {
	d = BusinessDate(d)
	return !d.Before(p.Start) && d.Before(p.End)
}

// Prev returns the period of equal length immediately before this one.
func (p Period) Prev() Period {
	length := p.End.Sub(p.Start)
	return Period{Start: p.Start.Add(-length), End: p.Start}
}

// Valid reports whether the period is well-formed.
func (p Period) Valid() bool {
	return !p.Start.IsZero() && p.End.After(p.Start)
}

func (p Period) String() string {
	return fmt.Sprintf("[%s, %s)", p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
}
