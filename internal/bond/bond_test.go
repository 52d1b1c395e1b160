package bond

import (
	"errors"
	"math"
	"testing"
	"time"

	"deskquant/derivs/internal/curve"
	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/types"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func annualFive() types.BondTerms {
	return types.BondTerms{
		Code:         "TEST5",
		Coupon:       5,
		IssueDate:    dates.Date(2020, time.January, 15),
		MaturityDate: dates.Date(2025, time.January, 15),
		Frequency:    types.Annual,
		DayCount:     "ACT/ACT ISMA",
	}
}

func TestNew_ZeroCouponOnFlatZeroCurve(t *testing.T) {
	settle := dates.Date(2021, time.March, 1)
	terms := types.BondTerms{
		Code:         "ZCB",
		MaturityDate: dates.Date(2026, time.March, 2),
		Frequency:    types.ZeroCoupon,
	}

	b, err := New(terms, dates.Weekends, settle)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if len(b.Cashflows) != 1 || !b.Cashflows[0].Redemption {
		t.Fatalf("expected a single redemption, got %+v", b.Cashflows)
	}

	flat := curve.Flat(settle, dates.Act365F, 0)
	if p := b.DirtyPrice(flat, settle); !almostEqual(p, 100, 1e-9) {
		t.Fatalf("zero-coupon price on 0%% curve: got=%v", p)
	}
	if a := b.AccruedAmount(settle); a != 0 {
		t.Fatalf("zero-coupon accrued: got=%v", a)
	}
}

func TestNew_RegularCouponAmounts(t *testing.T) {
	settle := dates.Date(2022, time.June, 1)
	b, err := New(annualFive(), dates.Weekends, settle)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if len(b.Schedule) != 6 {
		t.Fatalf("schedule length: got=%d want=6", len(b.Schedule))
	}
	if len(b.Cashflows) != 6 {
		t.Fatalf("cashflow count: got=%d want=6", len(b.Cashflows))
	}
	for _, cf := range b.Cashflows[:5] {
		if !almostEqual(cf.Amount, 5, 1e-12) {
			t.Fatalf("coupon on %s: got=%v want=5", cf.Date.Format("2006-01-02"), cf.Amount)
		}
	}

	// 2022-01-15 is a Saturday
	if got := b.Schedule[2]; !got.Equal(dates.Date(2022, time.January, 17)) {
		t.Fatalf("adjusted coupon date: got=%s", got.Format("2006-01-02"))
	}

	if n := len(b.Remaining(settle)); n != 4 {
		t.Fatalf("remaining after settle: got=%d want=4", n)
	}
}

func TestNew_InvalidTerms(t *testing.T) {
	settle := dates.Date(2022, time.June, 1)

	terms := annualFive()
	terms.Frequency = 3
	if _, err := New(terms, nil, settle); !errors.Is(err, types.ErrUnknownFrequency) {
		t.Fatalf("expected ErrUnknownFrequency, got %v", err)
	}

	terms = annualFive()
	terms.DayCount = "BUS/252"
	if _, err := New(terms, nil, settle); !errors.Is(err, types.ErrUnknownDayCount) {
		t.Fatalf("expected ErrUnknownDayCount, got %v", err)
	}

	terms = annualFive()
	terms.MaturityDate = time.Time{}
	if _, err := New(terms, nil, settle); !errors.Is(err, types.ErrInvalidMaturityDate) {
		t.Fatalf("expected ErrInvalidMaturityDate, got %v", err)
	}
}

func TestPriceFromYield_ParOnCouponDate(t *testing.T) {
	b, err := New(annualFive(), dates.Weekends, dates.Date(2021, time.January, 1))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	settle := b.Schedule[2]
	if p := b.PriceFromYield(5, settle); !almostEqual(p, 100, 1e-9) {
		t.Fatalf("par price: got=%v", p)
	}
	if a := b.AccruedAmount(settle); a != 0 {
		t.Fatalf("accrued on coupon date: got=%v", a)
	}
}

func TestYieldToMaturity_RoundTrip(t *testing.T) {
	settle := dates.Date(2022, time.June, 1)
	b, err := New(annualFive(), dates.Weekends, settle)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for _, y := range []float64{0.5, 2, 4, 7.5} {
		dirty := b.PriceFromYield(y, settle)
		got, err := b.YieldToMaturity(dirty, settle)
		if err != nil {
			t.Fatalf("ytm at %v: %v", y, err)
		}
		if !almostEqual(got, y, 1e-6) {
			t.Fatalf("ytm round trip: got=%v want=%v", got, y)
		}
	}
}

func TestYieldToMaturity_Errors(t *testing.T) {
	settle := dates.Date(2022, time.June, 1)
	b, err := New(annualFive(), dates.Weekends, settle)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, err := b.YieldToMaturity(100, dates.Date(2026, time.January, 1)); !errors.Is(err, types.ErrMaturityDateBeforeSettlement) {
		t.Fatalf("expected ErrMaturityDateBeforeSettlement, got %v", err)
	}
	if _, err := b.YieldToMaturity(0, settle); !errors.Is(err, types.ErrInvalidDirtyPrice) {
		t.Fatalf("expected ErrInvalidDirtyPrice, got %v", err)
	}
	if _, err := b.SolveYield(100, settle, 5, 1e-12, 0); !errors.Is(err, types.ErrYieldToMaturityNoConvergence) {
		t.Fatalf("expected ErrYieldToMaturityNoConvergence, got %v", err)
	}
}

func TestCleanPrice_DirtyLessAccrued(t *testing.T) {
	settle := dates.Date(2022, time.June, 1)
	b, err := New(annualFive(), dates.Weekends, settle)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	c := curve.Flat(settle, dates.ActActISDA, 0.03)
	accrued := b.AccruedAmount(settle)
	if accrued <= 0 || accrued >= 5 {
		t.Fatalf("accrued out of range: got=%v", accrued)
	}
	if !almostEqual(b.CleanPrice(c, settle)+accrued, b.DirtyPrice(c, settle), 1e-12) {
		t.Fatalf("clean + accrued != dirty")
	}
}

func TestEstimatedYieldToMaturity(t *testing.T) {
	// 3 1/2% Treasury Gilt 2025, 197 days to maturity at 99.60
	ey := EstimatedYieldToMaturity(3.5, 100, 99.60, 197.0/365.0)
	if ey < 4.2 || ey > 4.3 {
		t.Fatalf("estimated ytm: got=%v", ey)
	}
}
