// Package curve holds discount curves interpolated on log discount factors.
package curve

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/interp"

	"deskquant/derivs/internal/dates"
)

var (
	ErrNoPillars         = errors.New("curve: no pillars after reference date")
	ErrDuplicatePillar   = errors.New("curve: more than one pillar on the same date")
	ErrNonPositiveFactor = errors.New("curve: non-positive discount factor")
)

// Interpolation selects how log discount factors are joined between pillars.
type Interpolation int

const (
	LogLinear Interpolation = iota
	LogCubic
)

func (m Interpolation) String() string {
	if m == LogCubic {
		return "log-cubic"
	}
	return "log-linear"
}

// ParseInterpolation accepts "log-linear" and "log-cubic".
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "loglinear", "log-linear", "linear":
		return LogLinear, nil
	case "logcubic", "log-cubic", "cubic":
		return LogCubic, nil
	}
	return LogLinear, fmt.Errorf("curve: unknown interpolation %q", s)
}

// Compounding selects the zero rate convention.
type Compounding int

const (
	Continuous Compounding = iota
	Annual
	Simple
)

func (c Compounding) String() string {
	switch c {
	case Annual:
		return "annual"
	case Simple:
		return "simple"
	}
	return "continuous"
}

// ParseCompounding accepts "continuous", "annual" and "simple".
func ParseCompounding(s string) (Compounding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "continuous":
		return Continuous, nil
	case "", "annual", "compounded":
		return Annual, nil
	case "simple":
		return Simple, nil
	}
	return Annual, fmt.Errorf("curve: unknown compounding %q", s)
}

// Pillar is a known discount factor on a date.
type Pillar struct {
	Date time.Time
	DF   float64
}

// Discount is a discount curve anchored at ref with DF(ref) = 1. Beyond the
// last pillar the last segment's log slope is continued.
type Discount struct {
	ref     time.Time
	dc      dates.DayCount
	method  Interpolation
	pillars []Pillar
	times   []float64
	logDF   []float64
	pred    interp.Predictor
}

// NewDiscount builds a curve from pillars. Pillars on or before ref are ignored.
func NewDiscount(ref time.Time, dc dates.DayCount, pillars []Pillar, method Interpolation) (*Discount, error) {
	sorted := make([]Pillar, 0, len(pillars))
	for _, p := range pillars {
		if !p.Date.After(ref) {
			continue
		}
		if !(p.DF > 0) {
			return nil, fmt.Errorf("%w: %v on %s", ErrNonPositiveFactor, p.DF, p.Date.Format("2006-01-02"))
		}
		sorted = append(sorted, p)
	}
	if len(sorted) == 0 {
		return nil, ErrNoPillars
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	c := &Discount{
		ref:     ref,
		dc:      dc,
		method:  method,
		pillars: sorted,
		times:   []float64{0},
		logDF:   []float64{0},
	}

	for i, p := range sorted {
		if i > 0 && p.Date.Equal(sorted[i-1].Date) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePillar, p.Date.Format("2006-01-02"))
		}
		c.times = append(c.times, dc.YearFraction(ref, p.Date))
		c.logDF = append(c.logDF, math.Log(p.DF))
	}

	var fp interp.FittablePredictor = &interp.PiecewiseLinear{}
	if method == LogCubic && len(c.times) >= 3 {
		fp = &interp.NaturalCubic{}
	}
	if err := fp.Fit(c.times, c.logDF); err != nil {
		return nil, fmt.Errorf("curve: fitting %s: %w", method, err)
	}
	c.pred = fp

	return c, nil
}

func (c *Discount) Reference() time.Time {
	return c.ref
}

func (c *Discount) DayCount() dates.DayCount {
	return c.dc
}

// Pillars returns the sorted pillars the curve was built from.
func (c *Discount) Pillars() []Pillar {
	out := make([]Pillar, len(c.pillars))
	copy(out, c.pillars)
	return out
}

// Time is the curve time of d in years.
func (c *Discount) Time(d time.Time) float64 {
	return c.dc.YearFraction(c.ref, d)
}

// DF is the discount factor from d back to the reference date.
func (c *Discount) DF(d time.Time) float64 {
	return c.DiscountAt(c.Time(d))
}

// DiscountAt is the discount factor at curve time t.
func (c *Discount) DiscountAt(t float64) float64 {
	n := len(c.times) - 1
	switch {
	case t <= 0:
		slope := (c.logDF[1] - c.logDF[0]) / (c.times[1] - c.times[0])
		return math.Exp(slope * t)
	case t > c.times[n]:
		slope := (c.logDF[n] - c.logDF[n-1]) / (c.times[n] - c.times[n-1])
		return math.Exp(c.logDF[n] + slope*(t-c.times[n]))
	}
	return math.Exp(c.pred.Predict(t))
}

// ZeroRate is the zero rate to d in the given compounding.
func (c *Discount) ZeroRate(d time.Time, comp Compounding) float64 {
	t := c.Time(d)
	if t <= 0 {
		t = 1.0 / 365.0
	}
	return zeroFromDF(c.DiscountAt(t), t, comp)
}

// ForwardRate is the continuously compounded forward between d1 and d2.
func (c *Discount) ForwardRate(d1, d2 time.Time) float64 {
	t1, t2 := c.Time(d1), c.Time(d2)
	if t2 <= t1 {
		t2 = t1 + 1.0/365.0
	}
	return (math.Log(c.DiscountAt(t1)) - math.Log(c.DiscountAt(t2))) / (t2 - t1)
}

func zeroFromDF(df, t float64, comp Compounding) float64 {
	switch comp {
	case Annual:
		return math.Pow(df, -1/t) - 1
	case Simple:
		return (1/df - 1) / t
	default:
		return -math.Log(df) / t
	}
}

// DepositDF is the discount factor implied by a simple-interest deposit.
// Rate is a decimal.
func DepositDF(rate float64, start, end time.Time, dc dates.DayCount) float64 {
	return 1 / (1 + rate*dc.YearFraction(start, end))
}

// Flat is a constant continuously compounded curve, mostly useful in tests
// and for option pricing inputs.
func Flat(ref time.Time, dc dates.DayCount, rate float64) *Discount {
	end := ref.AddDate(100, 0, 0)
	c, _ := NewDiscount(ref, dc, []Pillar{{Date: end, DF: math.Exp(-rate * dc.YearFraction(ref, end))}}, LogLinear)
	return c
}
