package types

import (
	"fmt"
	"time"
)

// Frequency is the number of coupon payments per year.
type Frequency int

const (
	ZeroCoupon Frequency = 0
	Annual     Frequency = 1
	Semiannual Frequency = 2
	Quarterly  Frequency = 4
	Monthly    Frequency = 12
)

// ParseFrequency maps a vendor payment count to a Frequency.
func ParseFrequency(n int) (Frequency, error) {
	switch Frequency(n) {
	case ZeroCoupon, Annual, Semiannual, Quarterly, Monthly:
		return Frequency(n), nil
	}
	return ZeroCoupon, fmt.Errorf("%w: %d", ErrUnknownFrequency, n)
}

// Months is the length of one coupon period. Zero for zero-coupon bonds.
func (f Frequency) Months() int {
	if f <= 0 {
		return 0
	}
	return 12 / int(f)
}

func (f Frequency) String() string {
	switch f {
	case ZeroCoupon:
		return "zero"
	case Annual:
		return "annual"
	case Semiannual:
		return "semiannual"
	case Quarterly:
		return "quarterly"
	case Monthly:
		return "monthly"
	}
	return fmt.Sprintf("frequency(%d)", int(f))
}

// Quote is a single vendor observation. Immutable once fetched.
type Quote struct {
	Symbol string
	Field  string
	AsOf   time.Time
	Value  float64
}

// BondTerms are the static terms needed to build a bond's cashflows.
type BondTerms struct {
	Code         string    `parquet:"code"`
	Desc         string    `parquet:"desc"`
	Coupon       float64   `parquet:"coupon"` // annual rate, percent
	IssueDate    time.Time `parquet:"issue_date"`
	MaturityDate time.Time `parquet:"maturity_date"`
	Frequency    Frequency `parquet:"frequency"`
	DayCount     string    `parquet:"day_count"`
}

// BenchmarkBond is an observed benchmark used to calibrate a curve.
type BenchmarkBond struct {
	BondTerms
	DirtyPrice float64 `parquet:"dirty_price"`
	Volume     float64 `parquet:"volume"`
}

// RepoQuote is a short-dated deposit quote. Rate is in percent.
type RepoQuote struct {
	Symbol string
	Days   int
	Rate   float64
}
