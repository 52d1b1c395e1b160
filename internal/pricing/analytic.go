package pricing

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"deskquant/derivs/internal/dates"
)

// ErrAmericanUnsupported is returned by engines that only exercise at expiry.
var ErrAmericanUnsupported = errors.New("pricing: engine does not support american exercise")

func normCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

func normPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}

// Analytic is the closed-form Black-Scholes engine. With a dividend yield it
// is Black-Scholes-Merton.
type Analytic struct{}

func (Analytic) Name() string {
	return "analytic"
}

func (a Analytic) Price(opt Option, mkt Market, eval dates.EvalContext) (Result, error) {
	if opt.Style == American {
		return Result{}, ErrAmericanUnsupported
	}
	in, err := newInputs(opt, mkt, eval)
	if err != nil {
		return Result{}, err
	}

	res := black(opt.Type, in)

	if tomorrow := eval.Date.AddDate(0, 0, 1); !tomorrow.After(opt.Expiry) {
		next, err := a.value(opt, mkt, dates.EvalContext{Date: tomorrow, Calendar: eval.Calendar})
		if err != nil {
			return Result{}, err
		}
		res.Theta = next - res.Price
	}

	return res, nil
}

func (Analytic) value(opt Option, mkt Market, eval dates.EvalContext) (float64, error) {
	in, err := newInputs(opt, mkt, eval)
	if err != nil {
		return 0, err
	}
	return black(opt.Type, in).Price, nil
}

// black prices off the forward so that the rate and volatility clocks can
// differ.
func black(typ OptionType, in inputs) Result {
	F := in.forward()
	v := in.sigma * math.Sqrt(in.tv)

	if v == 0 {
		var res Result
		if typ == Call {
			res.Price = in.dfR * math.Max(F-in.K, 0)
			if F > in.K {
				res.Delta = in.dfQ
				res.Rho = in.tr * in.dfR * in.K
			}
		} else {
			res.Price = in.dfR * math.Max(in.K-F, 0)
			if F < in.K {
				res.Delta = -in.dfQ
				res.Rho = -in.tr * in.dfR * in.K
			}
		}
		return res
	}

	d1 := (math.Log(F/in.K) + 0.5*v*v) / v
	d2 := d1 - v

	res := Result{
		Gamma: in.dfQ * normPDF(d1) / (in.S * v),
		Vega:  in.S * in.dfQ * normPDF(d1) * math.Sqrt(in.tv),
	}

	if typ == Call {
		res.Price = in.dfR * (F*normCDF(d1) - in.K*normCDF(d2))
		res.Delta = in.dfQ * normCDF(d1)
		res.Rho = in.tr * in.dfR * in.K * normCDF(d2)
	} else {
		res.Price = in.dfR * (in.K*normCDF(-d2) - F*normCDF(-d1))
		res.Delta = -in.dfQ * normCDF(-d1)
		res.Rho = -in.tr * in.dfR * in.K * normCDF(-d2)
	}

	return res
}
