package curve

import (
	"errors"
	"math"
	"testing"
	"time"

	"deskquant/derivs/internal/dates"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

var ref = dates.Date(2021, time.March, 1)

func TestDiscount_PillarsAreRepriced(t *testing.T) {
	pillars := []Pillar{
		{Date: dates.Date(2022, time.March, 1), DF: 0.975},
		{Date: dates.Date(2026, time.March, 2), DF: 0.86},
		{Date: dates.Date(2031, time.March, 3), DF: 0.72},
	}

	for _, method := range []Interpolation{LogLinear, LogCubic} {
		c, err := NewDiscount(ref, dates.ActActISDA, pillars, method)
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		if df := c.DF(ref); !almostEqual(df, 1, 1e-15) {
			t.Fatalf("%s: DF(ref)=%v", method, df)
		}
		for _, p := range pillars {
			if df := c.DF(p.Date); !almostEqual(df, p.DF, 1e-12) {
				t.Fatalf("%s: DF(%s)=%v want=%v", method, p.Date.Format("2006-01-02"), df, p.DF)
			}
		}
	}
}

func TestDiscount_LogLinearIsFlatForwardBetweenPillars(t *testing.T) {
	c, err := NewDiscount(ref, dates.Act365F, []Pillar{
		{Date: ref.AddDate(0, 0, 365), DF: math.Exp(-0.02)},
		{Date: ref.AddDate(0, 0, 730), DF: math.Exp(-0.05)},
	}, LogLinear)
	if err != nil {
		t.Fatalf("curve: %v", err)
	}

	// 3% forward in the second year, carried past the last pillar
	f := c.ForwardRate(ref.AddDate(0, 0, 400), ref.AddDate(0, 0, 600))
	if !almostEqual(f, 0.03, 1e-12) {
		t.Fatalf("forward: got=%v", f)
	}
	if df := c.DiscountAt(3); !almostEqual(df, math.Exp(-0.08), 1e-12) {
		t.Fatalf("extrapolated DF: got=%v", df)
	}
}

func TestDiscount_ZeroRateCompounding(t *testing.T) {
	c := Flat(ref, dates.Act365F, 0.04)
	d := ref.AddDate(0, 0, 730)

	if z := c.ZeroRate(d, Continuous); !almostEqual(z, 0.04, 1e-12) {
		t.Fatalf("continuous: got=%v", z)
	}
	if z := c.ZeroRate(d, Annual); !almostEqual(z, math.Exp(0.04)-1, 1e-12) {
		t.Fatalf("annual: got=%v", z)
	}
	if z := c.ZeroRate(d, Simple); !almostEqual(z, (math.Exp(0.08)-1)/2, 1e-12) {
		t.Fatalf("simple: got=%v", z)
	}
}

func TestNewDiscount_Errors(t *testing.T) {
	if _, err := NewDiscount(ref, dates.Act365F, nil, LogLinear); !errors.Is(err, ErrNoPillars) {
		t.Fatalf("expected ErrNoPillars, got %v", err)
	}

	d := ref.AddDate(1, 0, 0)
	if _, err := NewDiscount(ref, dates.Act365F, []Pillar{{d, 0.9}, {d, 0.91}}, LogLinear); !errors.Is(err, ErrDuplicatePillar) {
		t.Fatalf("expected ErrDuplicatePillar, got %v", err)
	}
	if _, err := NewDiscount(ref, dates.Act365F, []Pillar{{d, 0}}, LogLinear); !errors.Is(err, ErrNonPositiveFactor) {
		t.Fatalf("expected ErrNonPositiveFactor, got %v", err)
	}
}

func TestDepositDF(t *testing.T) {
	end := ref.AddDate(0, 0, 7)
	want := 1 / (1 + 0.021*7.0/365.0)
	if df := DepositDF(0.021, ref, end, dates.Act365F); !almostEqual(df, want, 1e-15) {
		t.Fatalf("deposit DF: got=%v want=%v", df, want)
	}
}

func TestParseCompounding(t *testing.T) {
	for in, want := range map[string]Compounding{"": Annual, "Continuous": Continuous, "simple": Simple} {
		got, err := ParseCompounding(in)
		if err != nil || got != want {
			t.Errorf("ParseCompounding(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseCompounding("quarterly"); err == nil {
		t.Error("expected an error")
	}
}
