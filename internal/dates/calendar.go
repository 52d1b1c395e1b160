package dates

import (
	"fmt"
	"strings"
	"time"

	"deskquant/derivs/internal/types"
)

// Convention is a business-day adjustment rule.
type Convention int

const (
	Unadjusted Convention = iota
	Following
	ModifiedFollowing
	Preceding
)

// Calendar is a weekend plus holiday-list business-day calendar.
type Calendar struct {
	name     string
	holidays map[string]struct{}
}

func newCalendar(name string, holidays []string) *Calendar {
	c := &Calendar{name: name, holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		c.holidays[h] = struct{}{}
	}
	return c
}

var (
	// China follows the Shanghai Stock Exchange closures. Weekend make-up
	// working days are not trading days and are not listed.
	China = newCalendar("China", chinaHolidays)
	// UK follows England & Wales bank holidays.
	UK = newCalendar("UK", ukHolidays)
	// Weekends only treats Saturday and Sunday as holidays.
	Weekends = newCalendar("Weekends", nil)
)

// ParseCalendar looks a calendar up by name.
func ParseCalendar(name string) (*Calendar, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "china", "cn", "sse":
		return China, nil
	case "uk", "gb", "london":
		return UK, nil
	case "weekends", "none", "":
		return Weekends, nil
	}
	return nil, fmt.Errorf("%w: %q", types.ErrUnknownCalendar, name)
}

func (c *Calendar) Name() string {
	return c.name
}

// IsBusinessDay checks weekends and the holiday set.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	_, holiday := c.holidays[t.Format("2006-01-02")]
	return !holiday
}

// Adjust rolls t onto a business day.
func (c *Calendar) Adjust(t time.Time, conv Convention) time.Time {
	switch conv {
	case Following:
		for !c.IsBusinessDay(t) {
			t = t.AddDate(0, 0, 1)
		}
	case ModifiedFollowing:
		adjusted := c.Adjust(t, Following)
		if adjusted.Month() != t.Month() {
			return c.Adjust(t, Preceding)
		}
		return adjusted
	case Preceding:
		for !c.IsBusinessDay(t) {
			t = t.AddDate(0, 0, -1)
		}
	}
	return t
}

// AddBusinessDays advances n business days (n can be negative).
func (c *Calendar) AddBusinessDays(t time.Time, n int) time.Time {
	step := 1
	if n < 0 {
		step = -1
	}
	for n != 0 {
		t = t.AddDate(0, 0, step)
		if c.IsBusinessDay(t) {
			n -= step
		}
	}
	return t
}

// Advance moves t by p. Day periods count business days, a zero period
// just rolls t forward; longer periods add calendar time and then adjust.
func (c *Calendar) Advance(t time.Time, p Period, conv Convention) time.Time {
	switch p.Unit {
	case Days:
		if p.N == 0 {
			return c.Adjust(t, conv)
		}
		return c.AddBusinessDays(c.Adjust(t, Following), p.N)
	case Weeks:
		return c.Adjust(t.AddDate(0, 0, 7*p.N), conv)
	case Months:
		return c.Adjust(AddMonths(t, p.N), conv)
	case Years:
		return c.Adjust(AddMonths(t, 12*p.N), conv)
	}
	return t
}

// BusinessDays lists the business days from start to end inclusive, after
// rolling both ends forward onto business days.
func (c *Calendar) BusinessDays(start, end time.Time) []time.Time {
	start = c.Adjust(start, Following)
	end = c.Adjust(end, Following)
	var out []time.Time
	for d := start; !d.After(end); d = c.AddBusinessDays(d, 1) {
		out = append(out, d)
	}
	return out
}

// BusinessDaysBetween counts business days in (start, end].
func (c *Calendar) BusinessDaysBetween(start, end time.Time) int {
	n := 0
	for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			n++
		}
	}
	return n
}

var chinaHolidays = []string{
	"2016-01-01", "2016-02-08", "2016-02-09", "2016-02-10", "2016-02-11", "2016-02-12",
	"2016-04-04", "2016-05-02", "2016-06-09", "2016-06-10", "2016-09-15", "2016-09-16",
	"2016-10-03", "2016-10-04", "2016-10-05", "2016-10-06", "2016-10-07",
	"2017-01-02", "2017-01-27", "2017-01-30", "2017-01-31", "2017-02-01", "2017-02-02",
	"2017-04-03", "2017-04-04", "2017-05-01", "2017-05-29", "2017-05-30",
	"2017-10-02", "2017-10-03", "2017-10-04", "2017-10-05", "2017-10-06",
	"2018-01-01", "2018-02-15", "2018-02-16", "2018-02-19", "2018-02-20", "2018-02-21",
	"2018-04-05", "2018-04-06", "2018-04-30", "2018-05-01", "2018-06-18", "2018-09-24",
	"2018-10-01", "2018-10-02", "2018-10-03", "2018-10-04", "2018-10-05",
	"2018-12-31",
	"2019-01-01", "2019-02-04", "2019-02-05", "2019-02-06", "2019-02-07", "2019-02-08",
	"2019-04-05", "2019-05-01", "2019-05-02", "2019-05-03", "2019-06-07", "2019-09-13",
	"2019-10-01", "2019-10-02", "2019-10-03", "2019-10-04", "2019-10-07",
	"2020-01-01", "2020-01-24", "2020-01-27", "2020-01-28", "2020-01-29", "2020-01-30",
	"2020-01-31", "2020-04-06", "2020-05-01", "2020-05-04", "2020-05-05", "2020-06-25",
	"2020-06-26", "2020-10-01", "2020-10-02", "2020-10-05", "2020-10-06", "2020-10-07",
	"2020-10-08",
	"2021-01-01", "2021-02-11", "2021-02-12", "2021-02-15", "2021-02-16", "2021-02-17",
	"2021-04-05", "2021-05-03", "2021-05-04", "2021-05-05", "2021-06-14", "2021-09-20",
	"2021-09-21", "2021-10-01", "2021-10-04", "2021-10-05", "2021-10-06", "2021-10-07",
}

var ukHolidays = []string{
	"2024-01-01", "2024-03-29", "2024-04-01", "2024-05-06", "2024-05-27", "2024-08-26",
	"2024-12-25", "2024-12-26",
	"2025-01-01", "2025-04-18", "2025-04-21", "2025-05-05", "2025-05-26", "2025-08-25",
	"2025-12-25", "2025-12-26",
	"2026-01-01", "2026-04-03", "2026-04-06", "2026-05-04", "2026-05-25", "2026-08-31",
	"2026-12-25", "2026-12-28",
}
