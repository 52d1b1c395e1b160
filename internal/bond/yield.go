package bond

import (
	"math"
	"time"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/types"
)

const (
	defaultYieldTolerance  = 1e-8
	defaultYieldIterations = 1_000
)

// flows returns the remaining cashflow amounts and their distance from
// settle measured in coupon periods, plus the compounding frequency.
//
// For coupon bonds the first distance is the fraction of the current period
// left to run (days to next coupon over days in the period) and each later
// coupon date adds one. Zero-coupon bonds compound annually over the year
// fraction to maturity.
func (b *FixedRateBond) flows(settle time.Time) ([]float64, []float64, float64) {
	remaining := b.Remaining(settle)
	amounts := make([]float64, 0, len(remaining))
	periods := make([]float64, 0, len(remaining))

	if b.Terms.Frequency == types.ZeroCoupon {
		for _, cf := range remaining {
			amounts = append(amounts, cf.Amount)
			periods = append(periods, b.DayCount.YearFraction(settle, cf.Date))
		}
		return amounts, periods, 1
	}

	f := float64(b.Terms.Frequency)

	r := 0.0
	if prev, next, ok := b.CurrentPeriod(settle); ok {
		tb := float64(dates.DaysBetween(prev, next))
		if tb > 0 {
			r = float64(dates.DaysBetween(settle, next)) / tb
		}
	} else if len(remaining) > 0 {
		r = f * b.DayCount.YearFraction(settle, remaining[0].Date)
	}

	j := -1
	var last time.Time
	for _, cf := range remaining {
		if !cf.Date.Equal(last) {
			j++
			last = cf.Date
		}
		amounts = append(amounts, cf.Amount)
		periods = append(periods, r+float64(j))
	}

	return amounts, periods, f
}

// PriceFromYield is the dirty price per 100 face for a yield given as a
// percentage compounded at the coupon frequency.
func (b *FixedRateBond) PriceFromYield(y float64, settle time.Time) float64 {
	amounts, periods, f := b.flows(settle)
	return yieldPrice(amounts, periods, f, y/100)
}

func yieldPrice(amounts, periods []float64, f, y float64) float64 {
	price := 0.0
	for i, a := range amounts {
		price += a / math.Pow(1+y/f, periods[i])
	}
	return price
}

func yieldPriceDerivative(amounts, periods []float64, f, y float64) float64 {
	d := 0.0
	for i, a := range amounts {
		d += -periods[i] / f * a / math.Pow(1+y/f, periods[i]+1)
	}
	return d
}

// YieldToMaturity solves for the yield (percent) that reprices the bond to
// the given dirty price per 100 face, starting from EstimatedYieldToMaturity.
func (b *FixedRateBond) YieldToMaturity(dirty float64, settle time.Time) (float64, error) {
	if !b.Maturity().After(settle) {
		return 0, types.ErrMaturityDateBeforeSettlement
	}
	if dirty <= 0 {
		return 0, types.ErrInvalidDirtyPrice
	}

	years := b.DayCount.YearFraction(settle, b.Maturity())
	guess := EstimatedYieldToMaturity(b.Terms.Coupon, Face, dirty-b.AccruedAmount(settle), years)

	return b.SolveYield(dirty, settle, guess, defaultYieldTolerance, defaultYieldIterations)
}

// SolveYield runs Newton-Raphson on the remaining cashflows.
//
// Parameters:
//
//	P:		Dirty price per 100 face.
//	settle:	Settlement date.
//	y:		Initial guess as a percentage.
//	t:		Price tolerance for convergence.
//	i:		Maximum number of iterations.
//
// Returns:
//
//	Yield to maturity as a percentage.
func (b *FixedRateBond) SolveYield(P float64, settle time.Time, y, t float64, i int) (float64, error) {
	amounts, periods, f := b.flows(settle)
	if len(amounts) == 0 {
		return 0, types.ErrMaturityDateBeforeSettlement
	}

	y = y / 100

	for iter := 0; iter < i; iter++ {
		dp := yieldPrice(amounts, periods, f, y) - P
		if math.Abs(dp) < t {
			return y * 100, nil
		}

		d := yieldPriceDerivative(amounts, periods, f, y)
		if math.Abs(d) < 1e-12 {
			return 0, types.ErrYieldToMaturityDerivativeTooSmall
		}

		y = y - dp/d
		if y <= -f {
			y = -f / 2
		}
	}

	return 0, types.ErrYieldToMaturityNoConvergence
}

// EstimatedYieldToMaturity is the textbook approximation used to seed the
// solver.
//
//	C: Annual coupon rate (percent).
//	F: Face value of the bond.
//	P: Clean price of the bond.
//	n: Years to maturity.
//
// Returns:
//
//	Estimated yield to maturity as a percentage.
func EstimatedYieldToMaturity(C, F, P, n float64) float64 {
	if n <= 0 {
		n = 1.0 / 365.0
	}
	CP := C / 100 * F
	y := (CP + (F-P)/n) / ((F + P) / 2)
	return y * 100
}
