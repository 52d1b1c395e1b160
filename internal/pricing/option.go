// Package pricing prices equity and ETF options under Black-Scholes-Merton
// with analytic, lattice, finite-difference and Monte Carlo engines.
package pricing

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/types"
)

type OptionType int

const (
	Call OptionType = iota
	Put
)

func (t OptionType) String() string {
	if t == Put {
		return "put"
	}
	return "call"
}

// ParseOptionType accepts English names and the exchange's exercise mode
// labels (认购 for calls, 认沽 for puts).
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c", "认购":
		return Call, nil
	case "put", "p", "认沽":
		return Put, nil
	}
	return Call, fmt.Errorf("%w: %q", types.ErrInvalidOptionType, s)
}

type Style int

const (
	European Style = iota
	American
)

func (s Style) String() string {
	if s == American {
		return "american"
	}
	return "european"
}

func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "european", "eu", "e", "欧式":
		return European, nil
	case "american", "am", "a", "美式":
		return American, nil
	}
	return European, fmt.Errorf("%w: %q", types.ErrInvalidStyle, s)
}

// Option is a vanilla option contract.
type Option struct {
	Type   OptionType
	Style  Style
	Strike float64
	Expiry time.Time
}

// Payoff is the exercise value at spot s.
func (o Option) Payoff(s float64) float64 {
	if o.Type == Put {
		return math.Max(o.Strike-s, 0)
	}
	return math.Max(s-o.Strike, 0)
}

// CashDividend is a discrete dividend paid on Date.
type CashDividend struct {
	Date   time.Time
	Amount float64
}

// Market holds the flat model inputs. Rate and Dividend are continuously
// compounded decimals; Vol is annualised.
type Market struct {
	Spot      float64
	Rate      float64
	Dividend  float64
	Vol       float64
	Dividends []CashDividend
}

// Result is a price with its sensitivities. Vega and Rho are per unit of
// vol and rate, Theta per calendar day. StdErr is only set by simulation.
type Result struct {
	Price  float64
	Delta  float64
	Gamma  float64
	Vega   float64
	Theta  float64
	Rho    float64
	StdErr float64
}

// Engine prices a vanilla option.
type Engine interface {
	Name() string
	Price(opt Option, mkt Market, eval dates.EvalContext) (Result, error)
}

// NewEngine looks an engine up by name. seed only affects Monte Carlo.
func NewEngine(name string, seed uint64) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "analytic", "bs", "bsm":
		return Analytic{}, nil
	case "binomial", "crr":
		return Binomial{}, nil
	case "fd", "finite-difference":
		return FiniteDifference{}, nil
	case "mc", "monte-carlo":
		return MonteCarlo{Seed: seed, Antithetic: true}, nil
	}
	return nil, types.NewValidationError("engine", name, "expected analytic, binomial, fd or mc", nil)
}

// inputs are the numbers every engine works from. Rates discount over
// ACT/ACT time while volatility and dividend yield accrue over ACT/365F.
type inputs struct {
	S, K         float64
	r, q, sigma  float64
	tr, tq, tv   float64
	dfR, dfQ     float64
	escrowedCash float64
	cash         []cashPoint
}

// cashPoint is an escrowed dividend on the variance clock.
type cashPoint struct {
	t      float64
	amount float64
}

// cashAt is the value at variance time t of the dividends still to be paid,
// discounted at carry rate r.
func (in inputs) cashAt(t, r float64) float64 {
	v := 0.0
	for _, c := range in.cash {
		if c.t > t {
			v += c.amount * math.Exp(-r*(c.t-t))
		}
	}
	return v
}

// forward is the forward price to expiry.
func (in inputs) forward() float64 {
	return in.S * in.dfQ / in.dfR
}

// drift is the annualised cost of carry in variance time, so lattice and
// PDE engines can run on a single clock.
func (in inputs) drift() (r, q float64) {
	if in.tv <= 0 {
		return in.r, in.q
	}
	return in.r * in.tr / in.tv, in.q * in.tq / in.tv
}

func newInputs(opt Option, mkt Market, eval dates.EvalContext) (inputs, error) {
	if !(mkt.Spot > 0) || math.IsInf(mkt.Spot, 0) {
		return inputs{}, types.NewValidationError("spot", mkt.Spot, "spot must be positive", nil)
	}
	if !(opt.Strike > 0) || math.IsInf(opt.Strike, 0) {
		return inputs{}, types.NewValidationError("strike", opt.Strike, "strike must be positive", nil)
	}
	if mkt.Vol < 0 || math.IsNaN(mkt.Vol) {
		return inputs{}, types.NewValidationError("vol", mkt.Vol, "volatility must be non-negative", nil)
	}
	if math.IsNaN(mkt.Rate) || math.IsNaN(mkt.Dividend) {
		return inputs{}, types.NewValidationError("rate", mkt.Rate, "rates must be numbers", nil)
	}
	if opt.Expiry.Before(eval.Date) {
		return inputs{}, types.NewValidationError("expiry", opt.Expiry, "expiry is before the evaluation date", types.ErrMaturityDateBeforeSettlement)
	}

	in := inputs{
		S:     mkt.Spot,
		K:     opt.Strike,
		r:     mkt.Rate,
		q:     mkt.Dividend,
		sigma: mkt.Vol,
		tr:    dates.ActActISDA.YearFraction(eval.Date, opt.Expiry),
		tq:    dates.Act365F.YearFraction(eval.Date, opt.Expiry),
		tv:    dates.Act365F.YearFraction(eval.Date, opt.Expiry),
	}
	in.dfR = math.Exp(-in.r * in.tr)
	in.dfQ = math.Exp(-in.q * in.tq)

	// escrowed dividend model: the spot that diffuses excludes the present
	// value of dividends paid before expiry
	for _, d := range dividendsBefore(mkt.Dividends, eval.Date, opt.Expiry) {
		pv := d.Amount * math.Exp(-in.r*dates.ActActISDA.YearFraction(eval.Date, d.Date))
		in.escrowedCash += pv
		in.cash = append(in.cash, cashPoint{t: dates.Act365F.YearFraction(eval.Date, d.Date), amount: d.Amount})
	}
	in.S -= in.escrowedCash
	if !(in.S > 0) {
		return inputs{}, types.NewValidationError("dividends", in.escrowedCash, "dividends exceed spot", nil)
	}

	return in, nil
}

func dividendsBefore(divs []CashDividend, from, to time.Time) []CashDividend {
	var out []CashDividend
	for _, d := range divs {
		if d.Date.After(from) && !d.Date.After(to) && d.Amount != 0 {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// pricer is an engine's price-only entry point.
type pricer func(opt Option, mkt Market, eval dates.EvalContext) (float64, error)

// numericGreeks fills vega, rho and theta by bumping the inputs and, when
// asked, delta and gamma by bumping spot.
func numericGreeks(price pricer, opt Option, mkt Market, eval dates.EvalContext, res *Result, spot bool) error {
	if spot {
		h := mkt.Spot * 1e-3
		up, down := mkt, mkt
		up.Spot += h
		down.Spot -= h
		pu, err := price(opt, up, eval)
		if err != nil {
			return err
		}
		pd, err := price(opt, down, eval)
		if err != nil {
			return err
		}
		res.Delta = (pu - pd) / (2 * h)
		res.Gamma = (pu - 2*res.Price + pd) / (h * h)
	}

	const dv = 1e-4
	if mkt.Vol > dv {
		up, down := mkt, mkt
		up.Vol += dv
		down.Vol -= dv
		pu, err := price(opt, up, eval)
		if err != nil {
			return err
		}
		pd, err := price(opt, down, eval)
		if err != nil {
			return err
		}
		res.Vega = (pu - pd) / (2 * dv)
	}

	const dr = 1e-4
	up, down := mkt, mkt
	up.Rate += dr
	down.Rate -= dr
	pu, err := price(opt, up, eval)
	if err != nil {
		return err
	}
	pd, err := price(opt, down, eval)
	if err != nil {
		return err
	}
	res.Rho = (pu - pd) / (2 * dr)

	if tomorrow := eval.Date.AddDate(0, 0, 1); !tomorrow.After(opt.Expiry) {
		pt, err := price(opt, mkt, dates.EvalContext{Date: tomorrow, Calendar: eval.Calendar})
		if err != nil {
			return err
		}
		res.Theta = pt - res.Price
	}

	return nil
}
