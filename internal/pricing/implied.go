package pricing

import (
	"errors"
	"math"

	"deskquant/derivs/internal/dates"
)

var ErrNoImpliedVol = errors.New("pricing: price is outside the no-arbitrage bounds")

// ImpliedVol backs out the Black-Scholes volatility of a European option.
// Newton steps on vega are used while they stay inside the bracket,
// bisection otherwise.
func ImpliedVol(price float64, opt Option, mkt Market, eval dates.EvalContext) (float64, error) {
	const (
		tolerance  = 1e-10
		iterations = 200
	)

	opt.Style = European
	value := func(vol float64) (Result, error) {
		m := mkt
		m.Vol = vol
		in, err := newInputs(opt, m, eval)
		if err != nil {
			return Result{}, err
		}
		return black(opt.Type, in), nil
	}

	lo, hi := 1e-6, 5.0
	low, err := value(lo)
	if err != nil {
		return 0, err
	}
	high, err := value(hi)
	if err != nil {
		return 0, err
	}
	if price < low.Price-tolerance || price > high.Price+tolerance {
		return 0, ErrNoImpliedVol
	}

	vol := 0.3
	for iter := 0; iter < iterations; iter++ {
		res, err := value(vol)
		if err != nil {
			return 0, err
		}
		diff := res.Price - price
		if math.Abs(diff) < tolerance {
			return vol, nil
		}
		if diff > 0 {
			hi = vol
		} else {
			lo = vol
		}

		next := vol - diff/res.Vega
		if res.Vega < 1e-12 || next <= lo || next >= hi || math.IsNaN(next) {
			next = 0.5 * (lo + hi)
		}
		vol = next

		if hi-lo < 1e-14 {
			return vol, nil
		}
	}
	return vol, nil
}
