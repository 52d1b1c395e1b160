package pricing

import (
	"errors"
	"math"
	"testing"
	"time"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/types"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// one year on both the rate and variance clocks
var (
	evalDate = dates.Date(2021, time.January, 1)
	expiry   = dates.Date(2022, time.January, 1)
)

func evalContext() dates.EvalContext {
	return dates.NewEvalContext(evalDate, dates.China)
}

func atm(typ OptionType, style Style) Option {
	return Option{Type: typ, Style: style, Strike: 100, Expiry: expiry}
}

func flatMarket() Market {
	return Market{Spot: 100, Rate: 0.05, Vol: 0.2}
}

func TestAnalytic_ReferenceValues(t *testing.T) {
	tests := []struct {
		name string
		typ  OptionType
		want float64
	}{
		{"call", Call, 10.4506},
		{"put", Put, 5.5735},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Analytic{}.Price(atm(tt.typ, European), flatMarket(), evalContext())
			if err != nil {
				t.Fatalf("Price() error = %v", err)
			}
			if !almostEqual(res.Price, tt.want, 1e-4) {
				t.Errorf("Price() = %.6f, want %.4f", res.Price, tt.want)
			}
		})
	}
}

func TestAnalytic_Greeks(t *testing.T) {
	res, err := Analytic{}.Price(atm(Call, European), flatMarket(), evalContext())
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}

	// N(d1) with d1 = 0.35
	if !almostEqual(res.Delta, 0.636831, 1e-5) {
		t.Errorf("Delta = %.6f, want 0.636831", res.Delta)
	}
	if !almostEqual(res.Vega, 37.5240, 1e-3) {
		t.Errorf("Vega = %.4f, want 37.5240", res.Vega)
	}
	if !almostEqual(res.Gamma, 0.018762, 1e-5) {
		t.Errorf("Gamma = %.6f, want 0.018762", res.Gamma)
	}
	if res.Theta >= 0 {
		t.Errorf("Theta = %.6f, want negative for a long call", res.Theta)
	}
	if res.Rho <= 0 {
		t.Errorf("Rho = %.6f, want positive for a call", res.Rho)
	}
}

func TestAnalytic_PutCallParity(t *testing.T) {
	mkt := flatMarket()
	mkt.Dividend = 0.03
	eval := evalContext()

	for _, strike := range []float64{80, 100, 125} {
		call := Option{Type: Call, Strike: strike, Expiry: expiry}
		put := Option{Type: Put, Strike: strike, Expiry: expiry}

		c, err := Analytic{}.Price(call, mkt, eval)
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		p, err := Analytic{}.Price(put, mkt, eval)
		if err != nil {
			t.Fatalf("put: %v", err)
		}

		want := mkt.Spot*math.Exp(-mkt.Dividend) - strike*math.Exp(-mkt.Rate)
		if got := c.Price - p.Price; !almostEqual(got, want, 1e-9) {
			t.Errorf("K=%v: C-P = %.10f, want %.10f", strike, got, want)
		}
	}
}

func TestAnalytic_RejectsAmerican(t *testing.T) {
	_, err := Analytic{}.Price(atm(Put, American), flatMarket(), evalContext())
	if !errors.Is(err, ErrAmericanUnsupported) {
		t.Errorf("error = %v, want ErrAmericanUnsupported", err)
	}
}

func TestAnalytic_ExpiredAndZeroVol(t *testing.T) {
	mkt := flatMarket()
	mkt.Spot = 110

	opt := atm(Call, European)
	opt.Expiry = evalDate
	res, err := Analytic{}.Price(opt, mkt, evalContext())
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}
	if !almostEqual(res.Price, 10, 1e-12) {
		t.Errorf("expiry-day price = %v, want intrinsic 10", res.Price)
	}

	mkt.Vol = 0
	res, err = Analytic{}.Price(atm(Call, European), mkt, evalContext())
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}
	want := 110 - 100*math.Exp(-0.05)
	if !almostEqual(res.Price, want, 1e-9) {
		t.Errorf("zero-vol price = %v, want %v", res.Price, want)
	}
}

func TestEngines_MatchAnalytic(t *testing.T) {
	eval := evalContext()
	mkt := flatMarket()
	mkt.Dividend = 0.02

	engines := []struct {
		engine Engine
		tol    float64
	}{
		{Binomial{}, 0.02},
		{FiniteDifference{}, 0.02},
	}

	for _, typ := range []OptionType{Call, Put} {
		want, err := Analytic{}.Price(atm(typ, European), mkt, eval)
		if err != nil {
			t.Fatalf("analytic: %v", err)
		}
		for _, e := range engines {
			t.Run(e.engine.Name()+"/"+typ.String(), func(t *testing.T) {
				got, err := e.engine.Price(atm(typ, European), mkt, eval)
				if err != nil {
					t.Fatalf("Price() error = %v", err)
				}
				if !almostEqual(got.Price, want.Price, e.tol) {
					t.Errorf("Price = %.5f, want %.5f", got.Price, want.Price)
				}
				if !almostEqual(got.Delta, want.Delta, 0.01) {
					t.Errorf("Delta = %.5f, want %.5f", got.Delta, want.Delta)
				}
				if !almostEqual(got.Vega, want.Vega, 0.5) {
					t.Errorf("Vega = %.4f, want %.4f", got.Vega, want.Vega)
				}
			})
		}
	}
}

func TestMonteCarlo_WithinStandardErrors(t *testing.T) {
	eval := evalContext()
	mc := MonteCarlo{Paths: 100_000, Seed: 7, Antithetic: true}

	for _, typ := range []OptionType{Call, Put} {
		want, err := Analytic{}.Price(atm(typ, European), flatMarket(), eval)
		if err != nil {
			t.Fatalf("analytic: %v", err)
		}
		got, err := mc.Price(atm(typ, European), flatMarket(), eval)
		if err != nil {
			t.Fatalf("Price() error = %v", err)
		}
		if got.StdErr <= 0 {
			t.Fatalf("StdErr = %v, want positive", got.StdErr)
		}
		if math.Abs(got.Price-want.Price) > 4*got.StdErr {
			t.Errorf("%v: Price = %.4f ± %.4f, want %.4f", typ, got.Price, got.StdErr, want.Price)
		}
		if !almostEqual(got.Delta, want.Delta, 0.01) {
			t.Errorf("%v: Delta = %.4f, want %.4f", typ, got.Delta, want.Delta)
		}
	}
}

func TestMonteCarlo_SeedIsDeterministic(t *testing.T) {
	mc := MonteCarlo{Paths: 5_000, Seed: 42}
	a, err := mc.Price(atm(Call, European), flatMarket(), evalContext())
	if err != nil {
		t.Fatal(err)
	}
	b, err := mc.Price(atm(Call, European), flatMarket(), evalContext())
	if err != nil {
		t.Fatal(err)
	}
	if a.Price != b.Price {
		t.Errorf("same seed gave %v and %v", a.Price, b.Price)
	}
}

func TestAmerican_EarlyExercise(t *testing.T) {
	eval := evalContext()
	mkt := flatMarket()

	euro, err := Binomial{}.Price(atm(Put, European), mkt, eval)
	if err != nil {
		t.Fatal(err)
	}

	for _, e := range []Engine{Binomial{}, FiniteDifference{}} {
		am, err := e.Price(atm(Put, American), mkt, eval)
		if err != nil {
			t.Fatalf("%s: %v", e.Name(), err)
		}
		// the early exercise premium for this put is about 0.5
		if am.Price <= euro.Price+0.2 {
			t.Errorf("%s: american put %.4f, european %.4f", e.Name(), am.Price, euro.Price)
		}
	}

	// without dividends an american call is never exercised early
	amCall, err := Binomial{}.Price(atm(Call, American), mkt, eval)
	if err != nil {
		t.Fatal(err)
	}
	euCall, err := Analytic{}.Price(atm(Call, European), mkt, eval)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(amCall.Price, euCall.Price, 0.02) {
		t.Errorf("american call %.4f, european %.4f", amCall.Price, euCall.Price)
	}
}

func TestEscrowedDividends(t *testing.T) {
	eval := evalContext()
	payDate := dates.Date(2021, time.July, 1)

	mkt := flatMarket()
	mkt.Dividends = []CashDividend{
		{Date: payDate, Amount: 2},
		{Date: dates.Date(2022, time.March, 1), Amount: 5}, // after expiry
	}

	got, err := Analytic{}.Price(atm(Call, European), mkt, eval)
	if err != nil {
		t.Fatal(err)
	}

	stripped := flatMarket()
	stripped.Spot -= 2 * math.Exp(-0.05*dates.ActActISDA.YearFraction(evalDate, payDate))
	want, err := Analytic{}.Price(atm(Call, European), stripped, eval)
	if err != nil {
		t.Fatal(err)
	}

	if !almostEqual(got.Price, want.Price, 1e-12) {
		t.Errorf("Price = %v, want %v", got.Price, want.Price)
	}

	mkt.Dividends = []CashDividend{{Date: payDate, Amount: 150}}
	if _, err := (Analytic{}).Price(atm(Call, European), mkt, eval); err == nil {
		t.Error("expected an error when dividends exceed spot")
	}
}

func TestInvalidInputs(t *testing.T) {
	eval := evalContext()
	tests := []struct {
		name string
		opt  Option
		mkt  Market
	}{
		{"zero spot", atm(Call, European), Market{Spot: 0, Rate: 0.05, Vol: 0.2}},
		{"negative strike", Option{Type: Call, Strike: -1, Expiry: expiry}, flatMarket()},
		{"negative vol", atm(Call, European), Market{Spot: 100, Rate: 0.05, Vol: -0.1}},
		{"nan rate", atm(Call, European), Market{Spot: 100, Rate: math.NaN(), Vol: 0.2}},
		{"expired", Option{Type: Call, Strike: 100, Expiry: evalDate.AddDate(0, 0, -1)}, flatMarket()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Analytic{}.Price(tt.opt, tt.mkt, eval)
			var verr *types.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("error = %v, want ValidationError", err)
			}
		})
	}
}

func TestParseOptionType(t *testing.T) {
	tests := []struct {
		in      string
		want    OptionType
		wantErr bool
	}{
		{"call", Call, false},
		{" Put ", Put, false},
		{"认购", Call, false},
		{"认沽", Put, false},
		{"straddle", Call, true},
	}

	for _, tt := range tests {
		got, err := ParseOptionType(tt.in)
		if tt.wantErr {
			if !errors.Is(err, types.ErrInvalidOptionType) {
				t.Errorf("ParseOptionType(%q) error = %v, want ErrInvalidOptionType", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseOptionType(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}

	if _, err := ParseStyle("bermudan"); !errors.Is(err, types.ErrInvalidStyle) {
		t.Errorf("ParseStyle error = %v, want ErrInvalidStyle", err)
	}
}

func TestImpliedVol_RoundTrip(t *testing.T) {
	eval := evalContext()
	for _, vol := range []float64{0.1, 0.2, 0.65} {
		for _, strike := range []float64{80, 100, 120} {
			opt := Option{Type: Put, Strike: strike, Expiry: expiry}
			mkt := flatMarket()
			mkt.Vol = vol

			res, err := Analytic{}.Price(opt, mkt, eval)
			if err != nil {
				t.Fatal(err)
			}
			got, err := ImpliedVol(res.Price, opt, mkt, eval)
			if err != nil {
				t.Fatalf("ImpliedVol() error = %v", err)
			}
			if !almostEqual(got, vol, 1e-6) {
				t.Errorf("vol=%v K=%v: ImpliedVol = %v", vol, strike, got)
			}
		}
	}

	if _, err := ImpliedVol(200, atm(Call, European), flatMarket(), eval); !errors.Is(err, ErrNoImpliedVol) {
		t.Errorf("error = %v, want ErrNoImpliedVol", err)
	}
}

func TestAsianGeometric_SingleFixingIsEuropean(t *testing.T) {
	eval := evalContext()
	mkt := flatMarket()
	mkt.Dividend = 0.01

	asian := AsianOption{Option: atm(Call, European), Fixings: []time.Time{expiry}}
	got, err := AsianGeometric{}.PriceAsian(asian, mkt, eval)
	if err != nil {
		t.Fatal(err)
	}
	want, err := Analytic{}.Price(atm(Call, European), mkt, eval)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(got.Price, want.Price, 1e-9) {
		t.Errorf("Price = %v, want %v", got.Price, want.Price)
	}
}

func monthlyFixings() []time.Time {
	var out []time.Time
	for m := 1; m <= 12; m++ {
		out = append(out, evalDate.AddDate(0, m, 0))
	}
	return out
}

func TestAsianArithmetic_AboveGeometric(t *testing.T) {
	eval := evalContext()
	asian := AsianOption{Option: atm(Call, European), Fixings: monthlyFixings()}

	geo, err := AsianGeometric{}.PriceAsian(asian, flatMarket(), eval)
	if err != nil {
		t.Fatal(err)
	}
	arith, err := AsianArithmeticMC{Paths: 5_000, Seed: 3}.PriceAsian(asian, flatMarket(), eval)
	if err != nil {
		t.Fatal(err)
	}

	if arith.Price < geo.Price {
		t.Errorf("arithmetic %.4f below geometric %.4f", arith.Price, geo.Price)
	}
	european, _ := Analytic{}.Price(atm(Call, European), flatMarket(), eval)
	if arith.Price >= european.Price {
		t.Errorf("arithmetic asian %.4f not below european %.4f", arith.Price, european.Price)
	}
	if arith.Delta <= 0 || arith.Delta >= 1 {
		t.Errorf("Delta = %v, want in (0, 1)", arith.Delta)
	}
}

func TestAsian_RejectsBadFixings(t *testing.T) {
	eval := evalContext()
	asian := AsianOption{Option: atm(Call, European)}
	if _, err := (AsianGeometric{}).PriceAsian(asian, flatMarket(), eval); err == nil {
		t.Error("expected an error without fixings")
	}

	asian.Fixings = []time.Time{expiry.AddDate(0, 1, 0)}
	if _, err := (AsianGeometric{}).PriceAsian(asian, flatMarket(), eval); err == nil {
		t.Error("expected an error for a fixing after expiry")
	}
}

func TestNewEngine(t *testing.T) {
	for name, want := range map[string]string{
		"":        "analytic",
		"BSM":     "analytic",
		"crr":     "binomial",
		"fd":      "finite-difference",
		"mc":      "monte-carlo",
		"unknown": "",
	} {
		e, err := NewEngine(name, 7)
		if want == "" {
			if err == nil {
				t.Errorf("NewEngine(%q) should fail", name)
			}
			continue
		}
		if err != nil || e.Name() != want {
			t.Errorf("NewEngine(%q) = %v, %v", name, e, err)
		}
	}
}
