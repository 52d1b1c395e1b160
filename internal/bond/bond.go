// Package bond builds fixed-rate and zero-coupon bond cashflows and prices
// them off a discount curve or a flat yield.
package bond

import (
	"fmt"
	"time"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/types"
)

// Face is the notional all prices are quoted against.
const Face = 100.0

// Discounter is anything that returns a discount factor for a date.
type Discounter interface {
	DF(d time.Time) float64
}

// Cashflow is a single dated payment per 100 face.
type Cashflow struct {
	Date         time.Time
	AccrualStart time.Time
	AccrualEnd   time.Time
	Amount       float64
	Redemption   bool
}

// FixedRateBond is a bullet bond with a regular coupon schedule. A zero
// frequency gives a zero-coupon bond paying Face at maturity.
type FixedRateBond struct {
	Terms     types.BondTerms
	DayCount  dates.DayCount
	Schedule  []time.Time
	Cashflows []Cashflow
}

// New builds the bond's cashflows. Bonds with an issue date are scheduled
// forward from issue; without one the schedule runs backward from maturity
// and starts at the last coupon date on or before settle.
func New(terms types.BondTerms, cal *dates.Calendar, settle time.Time) (*FixedRateBond, error) {
	if terms.MaturityDate.IsZero() {
		return nil, fmt.Errorf("%s: %w", terms.Code, types.ErrInvalidMaturityDate)
	}
	if terms.Coupon < 0 {
		return nil, fmt.Errorf("%s: %w", terms.Code, types.ErrInvalidCoupon)
	}
	if _, err := types.ParseFrequency(int(terms.Frequency)); err != nil {
		return nil, fmt.Errorf("%s: %w", terms.Code, err)
	}

	dc, err := dates.ParseDayCount(terms.DayCount)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", terms.Code, err)
	}

	if cal == nil {
		cal = dates.Weekends
	}

	b := &FixedRateBond{Terms: terms, DayCount: dc}

	start := terms.IssueDate
	rule := dates.Forward
	if start.IsZero() {
		rule = dates.Backward
	}

	if terms.Frequency == types.ZeroCoupon {
		maturity := cal.Adjust(terms.MaturityDate, dates.Following)
		b.Schedule = []time.Time{start, maturity}
		b.Cashflows = []Cashflow{{
			Date:         maturity,
			AccrualStart: start,
			AccrualEnd:   maturity,
			Amount:       Face,
			Redemption:   true,
		}}
		return b, nil
	}

	months := terms.Frequency.Months()
	b.Schedule = dates.GenerateSchedule(start, terms.MaturityDate, settle, months, cal, dates.Following, rule)

	freq := int(terms.Frequency)
	last := len(b.Schedule) - 1
	for i := 1; i <= last; i++ {
		s, e := b.Schedule[i-1], b.Schedule[i]
		refStart, refEnd := referencePeriod(s, e, months, cal, rule, i == 1, i == last)
		frac := dc.PeriodFraction(s, e, refStart, refEnd, freq)
		b.Cashflows = append(b.Cashflows, Cashflow{
			Date:         e,
			AccrualStart: s,
			AccrualEnd:   e,
			Amount:       Face * terms.Coupon / 100 * frac,
		})
	}

	maturity := b.Schedule[len(b.Schedule)-1]
	b.Cashflows = append(b.Cashflows, Cashflow{
		Date:         maturity,
		AccrualStart: maturity,
		AccrualEnd:   maturity,
		Amount:       Face,
		Redemption:   true,
	})

	return b, nil
}

// referencePeriod returns the notional period a coupon accrues against. Only
// the stub end of a schedule can differ from the accrual period itself.
func referencePeriod(s, e time.Time, months int, cal *dates.Calendar, rule dates.Rule, first, last bool) (time.Time, time.Time) {
	const slack = 7
	switch {
	case rule == dates.Forward && last:
		refEnd := cal.Adjust(dates.AddMonths(s, months), dates.Following)
		if abs(dates.DaysBetween(refEnd, e)) > slack {
			return s, refEnd
		}
	case rule == dates.Backward && first:
		refStart := cal.Adjust(dates.AddMonths(e, -months), dates.Following)
		if abs(dates.DaysBetween(refStart, s)) > slack {
			return refStart, e
		}
	}
	return s, e
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Maturity is the adjusted redemption date.
func (b *FixedRateBond) Maturity() time.Time {
	return b.Cashflows[len(b.Cashflows)-1].Date
}

// Remaining returns the cashflows paid strictly after settle.
func (b *FixedRateBond) Remaining(settle time.Time) []Cashflow {
	var out []Cashflow
	for _, cf := range b.Cashflows {
		if cf.Date.After(settle) {
			out = append(out, cf)
		}
	}
	return out
}

// DirtyPrice discounts the remaining cashflows on curve c and rolls the
// value forward to settle.
func (b *FixedRateBond) DirtyPrice(c Discounter, settle time.Time) float64 {
	pv := 0.0
	for _, cf := range b.Remaining(settle) {
		pv += cf.Amount * c.DF(cf.Date)
	}
	return pv / c.DF(settle)
}

// AccruedAmount is the coupon accrued from the current period start to settle.
func (b *FixedRateBond) AccruedAmount(settle time.Time) float64 {
	for _, cf := range b.Cashflows {
		if cf.Redemption {
			continue
		}
		if !settle.Before(cf.AccrualStart) && settle.Before(cf.AccrualEnd) {
			full := b.DayCount.YearFraction(cf.AccrualStart, cf.AccrualEnd)
			if full <= 0 {
				return 0
			}
			return cf.Amount * b.DayCount.YearFraction(cf.AccrualStart, settle) / full
		}
	}
	return 0
}

// CleanPrice is the curve dirty price less accrued interest.
func (b *FixedRateBond) CleanPrice(c Discounter, settle time.Time) float64 {
	return b.DirtyPrice(c, settle) - b.AccruedAmount(settle)
}

// CurrentPeriod returns the coupon period that contains settle.
func (b *FixedRateBond) CurrentPeriod(settle time.Time) (prev, next time.Time, ok bool) {
	for _, cf := range b.Cashflows {
		if cf.Redemption {
			continue
		}
		if !settle.Before(cf.AccrualStart) && settle.Before(cf.AccrualEnd) {
			return cf.AccrualStart, cf.AccrualEnd, true
		}
	}
	return time.Time{}, time.Time{}, false
}
