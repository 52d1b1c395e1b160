package dates

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"deskquant/derivs/internal/types"
)

// Unit is the unit of a Period.
type Unit int

const (
	Days Unit = iota
	Weeks
	Months
	Years
)

// Period is a tenor such as 7D, 3M or 10Y.
type Period struct {
	N    int
	Unit Unit
}

func (p Period) String() string {
	return strconv.Itoa(p.N) + [...]string{"D", "W", "M", "Y"}[p.Unit]
}

// ParsePeriod parses tenors like "1D", "2W", "3M", "10Y".
func ParsePeriod(s string) (Period, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return Period{}, fmt.Errorf("%w: %q", types.ErrInvalidTenor, s)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return Period{}, fmt.Errorf("%w: %q", types.ErrInvalidTenor, s)
	}

	switch s[len(s)-1] {
	case 'D':
		return Period{N: n, Unit: Days}, nil
	case 'W':
		return Period{N: n, Unit: Weeks}, nil
	case 'M':
		return Period{N: n, Unit: Months}, nil
	case 'Y':
		return Period{N: n, Unit: Years}, nil
	}
	return Period{}, fmt.Errorf("%w: %q", types.ErrInvalidTenor, s)
}

// ParsePeriods parses a list of tenors.
func ParsePeriods(ss []string) ([]Period, error) {
	out := make([]Period, 0, len(ss))
	for _, s := range ss {
		p, err := ParsePeriod(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Date returns midnight UTC on the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the time of day and location.
func Truncate(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(s))
}

// DaysBetween returns the number of calendar days from start to end.
func DaysBetween(start, end time.Time) int {
	return int(math.Round(Truncate(end).Sub(Truncate(start)).Hours() / 24))
}

// AddMonths behaves like Excel's EDATE: the day is clamped to the end of
// the target month instead of spilling into the next one.
func AddMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
