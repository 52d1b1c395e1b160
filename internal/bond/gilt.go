package bond

import (
	"math"
	"time"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/types"
)

type BondType string

var (
	UKGilt BondType = "UK Gilt"
)

// Gilt is a quoted conventional gilt as collected from the DMO or a price
// page. Whichever of clean price, dirty price or yield is known, CompleteGilt
// fills in the rest.
type Gilt struct {
	Type             BondType
	Source           string
	ISIN             string
	Ticker           string
	Desc             string
	FacePrice        float64
	Coupon           float64
	SettlementDate   time.Time
	PrevCouponDate   time.Time
	NextCouponDate   time.Time
	RemainingDays    int
	AccruedDays      int
	CouponPeriodDays int
	CouponPeriods    int
	MaturityDate     time.Time
	MaturityYears    int
	MaturityDays     int
	CleanPrice       float64
	DirtyPrice       float64
	AccruedAmount    float64
	YieldToMaturity  float64
}

func NewUKGilt(source string, settlementDate time.Time) *Gilt {
	return &Gilt{
		Type:           UKGilt,
		FacePrice:      Face,
		Source:         source,
		SettlementDate: settlementDate,
	}
}

// Code is the ISIN, or the ticker when no ISIN was collected.
func (g *Gilt) Code() string {
	if g.ISIN != "" {
		return g.ISIN
	}
	return g.Ticker
}

// Terms are the conventional gilt terms: semi-annual, ACT/ACT ISMA, coupon
// dates running back from maturity.
func (g *Gilt) Terms() types.BondTerms {
	return types.BondTerms{
		Code:         g.Code(),
		Desc:         g.Desc,
		Coupon:       g.Coupon,
		MaturityDate: g.MaturityDate,
		Frequency:    types.Semiannual,
		DayCount:     string(dates.ActActISMA),
	}
}

// Benchmark turns a completed gilt into a calibration benchmark. Gilt price
// pages carry no traded volume so every gilt gets the same weight.
func (g *Gilt) Benchmark() types.BenchmarkBond {
	return types.BenchmarkBond{
		BondTerms:  g.Terms(),
		DirtyPrice: g.DirtyPrice * Face / g.FacePrice,
		Volume:     1,
	}
}

// MaturityYears splits the time to maturity into whole years and the
// remaining days.
func MaturityYears(settlementDate, maturityDate time.Time) (int, int, error) {
	if maturityDate.Before(settlementDate) {
		return 0, 0, types.ErrMaturityDateBeforeSettlement
	}

	years := maturityDate.Year() - settlementDate.Year()
	start := dates.Date(maturityDate.Year(), settlementDate.Month(), settlementDate.Day())
	end := dates.Truncate(maturityDate)

	if start.After(end) {
		years--
		start = start.AddDate(-1, 0, 0)
	}

	return years, dates.DaysBetween(start, end), nil
}

func CompleteGilt(g *Gilt) error {
	if g == nil {
		return types.ErrNilBond
	}

	if g.SettlementDate.IsZero() {
		return types.ErrInvalidSettlementDate
	}

	if g.MaturityDate.IsZero() {
		return types.ErrInvalidMaturityDate
	}

	if g.Coupon <= 0 {
		return types.ErrInvalidCoupon
	}

	if g.FacePrice <= 0 {
		return types.ErrInvalidFacePrice
	}

	if g.CleanPrice < 0 {
		return types.ErrInvalidCleanPrice
	}

	if g.DirtyPrice < 0 {
		return types.ErrInvalidDirtyPrice
	}

	if g.YieldToMaturity < 0 {
		return types.ErrInvalidYieldToMaturity
	}

	// requires either a price or yield to maturity to calculate the other
	if g.CleanPrice == 0 && g.DirtyPrice == 0 && g.YieldToMaturity == 0 {
		return types.ErrMissingPriceAndYield
	}

	settle := dates.Truncate(g.SettlementDate)

	years, days, err := MaturityYears(settle, g.MaturityDate)
	if err != nil {
		return err
	}
	g.MaturityYears = years
	g.MaturityDays = days

	b, err := New(g.Terms(), dates.UK, settle)
	if err != nil {
		return err
	}

	if prev, next, ok := b.CurrentPeriod(settle); ok {
		g.PrevCouponDate = prev
		g.NextCouponDate = next
	}

	g.RemainingDays = dates.DaysBetween(settle, g.NextCouponDate)
	g.AccruedDays = dates.DaysBetween(g.PrevCouponDate, settle)
	g.CouponPeriodDays = dates.DaysBetween(g.PrevCouponDate, g.NextCouponDate)

	g.CouponPeriods = 0
	for _, cf := range b.Remaining(settle) {
		if !cf.Redemption {
			g.CouponPeriods++
		}
	}

	// bond maths is per 100 face
	scale := g.FacePrice / Face
	g.AccruedAmount = b.AccruedAmount(settle) * scale

	if g.DirtyPrice == 0 && g.CleanPrice > 0 {
		g.DirtyPrice = g.CleanPrice + g.AccruedAmount
	}

	if g.YieldToMaturity == 0 {
		ytm, err := b.YieldToMaturity(g.DirtyPrice/scale, settle)
		if err != nil {
			return err
		}
		g.YieldToMaturity = ytm
	}

	if g.DirtyPrice == 0 {
		g.DirtyPrice = b.PriceFromYield(g.YieldToMaturity, settle) * scale
	}

	if g.CleanPrice == 0 {
		g.CleanPrice = g.DirtyPrice - g.AccruedAmount
	}

	g.CleanPrice = round(g.CleanPrice, 6)
	g.DirtyPrice = round(g.DirtyPrice, 6)

	return nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
