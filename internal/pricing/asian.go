package pricing

import (
	"math"
	"sort"
	"time"

	"golang.org/x/exp/rand"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/types"
)

// AsianOption pays on the average of the spot over the fixing dates.
type AsianOption struct {
	Option
	Fixings []time.Time
}

// AsianEngine prices average-rate options.
type AsianEngine interface {
	Name() string
	PriceAsian(opt AsianOption, mkt Market, eval dates.EvalContext) (Result, error)
}

// fixingTimes are the fixings on the variance clock, sorted. Fixings must
// fall after the evaluation date and no later than expiry.
func fixingTimes(opt AsianOption, eval dates.EvalContext) ([]float64, error) {
	if len(opt.Fixings) == 0 {
		return nil, types.NewValidationError("fixings", 0, "an asian option needs at least one fixing", nil)
	}
	fixings := append([]time.Time(nil), opt.Fixings...)
	sort.Slice(fixings, func(i, j int) bool {
		return fixings[i].Before(fixings[j])
	})

	ts := make([]float64, len(fixings))
	for i, f := range fixings {
		if !f.After(eval.Date) || f.After(opt.Expiry) {
			return nil, types.NewValidationError("fixing", f.Format("2006-01-02"), "fixings must fall after the evaluation date and by expiry", nil)
		}
		ts[i] = dates.Act365F.YearFraction(eval.Date, f)
	}
	return ts, nil
}

// AsianGeometric is the closed form for a discretely sampled geometric
// average (Kemna-Vorst).
type AsianGeometric struct{}

func (AsianGeometric) Name() string {
	return "asian-geometric"
}

func (g AsianGeometric) PriceAsian(opt AsianOption, mkt Market, eval dates.EvalContext) (Result, error) {
	price, err := g.value(opt, mkt, eval)
	if err != nil {
		return Result{}, err
	}

	res := Result{Price: price}
	err = numericGreeks(func(o Option, m Market, ev dates.EvalContext) (float64, error) {
		return g.value(AsianOption{Option: o, Fixings: opt.Fixings}, m, ev)
	}, opt.Option, mkt, eval, &res, true)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (AsianGeometric) value(opt AsianOption, mkt Market, eval dates.EvalContext) (float64, error) {
	if opt.Style == American {
		return 0, ErrAmericanUnsupported
	}
	in, err := newInputs(opt.Option, mkt, eval)
	if err != nil {
		return 0, err
	}
	ts, err := fixingTimes(opt, eval)
	if err != nil {
		return 0, err
	}
	return in.dfR * geometricPayoff(opt.Type, in, ts), nil
}

// geometricPayoff is the undiscounted expected payoff on the geometric
// average, from the lognormal moments of the average.
func geometricPayoff(typ OptionType, in inputs, ts []float64) float64 {
	r, q := in.drift()
	n := float64(len(ts))

	mu := math.Log(in.S)
	for _, t := range ts {
		mu += (r - q - 0.5*in.sigma*in.sigma) * t / n
	}

	variance := 0.0
	for i := range ts {
		for j := range ts {
			variance += math.Min(ts[i], ts[j])
		}
	}
	variance *= in.sigma * in.sigma / (n * n)

	mean := math.Exp(mu + 0.5*variance)
	if variance <= 0 {
		if typ == Call {
			return math.Max(mean-in.K, 0)
		}
		return math.Max(in.K-mean, 0)
	}

	sd := math.Sqrt(variance)
	d1 := (mu - math.Log(in.K) + variance) / sd
	d2 := d1 - sd

	if typ == Call {
		return mean*normCDF(d1) - in.K*normCDF(d2)
	}
	return in.K*normCDF(-d2) - mean*normCDF(-d1)
}

// AsianArithmeticMC simulates the arithmetic average with the geometric
// average as a control variate.
type AsianArithmeticMC struct {
	Paths int
	Seed  uint64
}

func (AsianArithmeticMC) Name() string {
	return "asian-arithmetic-mc"
}

func (a AsianArithmeticMC) PriceAsian(opt AsianOption, mkt Market, eval dates.EvalContext) (Result, error) {
	res, err := a.simulate(opt, mkt, eval)
	if err != nil {
		return Result{}, err
	}

	err = numericGreeks(func(o Option, m Market, ev dates.EvalContext) (float64, error) {
		r, err := a.simulate(AsianOption{Option: o, Fixings: opt.Fixings}, m, ev)
		return r.Price, err
	}, opt.Option, mkt, eval, &res, true)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (a AsianArithmeticMC) simulate(opt AsianOption, mkt Market, eval dates.EvalContext) (Result, error) {
	if opt.Style == American {
		return Result{}, ErrAmericanUnsupported
	}
	in, err := newInputs(opt.Option, mkt, eval)
	if err != nil {
		return Result{}, err
	}
	ts, err := fixingTimes(opt, eval)
	if err != nil {
		return Result{}, err
	}

	exact := geometricPayoff(opt.Type, in, ts)

	paths := a.Paths
	if paths <= 0 {
		paths = 50_000
	}

	r, q := in.drift()
	mu := r - q - 0.5*in.sigma*in.sigma
	rng := rand.New(rand.NewSource(a.Seed))
	n := float64(len(ts))

	run := func(z []float64, sign float64) float64 {
		logS := math.Log(in.S)
		prev := 0.0
		arith, logSum := 0.0, 0.0
		for i, t := range ts {
			dt := t - prev
			logS += mu*dt + in.sigma*math.Sqrt(dt)*sign*z[i]
			prev = t
			arith += math.Exp(logS)
			logSum += logS
		}
		arith /= n
		geo := math.Exp(logSum / n)
		if opt.Type == Call {
			return math.Max(arith-in.K, 0) - math.Max(geo-in.K, 0)
		}
		return math.Max(in.K-arith, 0) - math.Max(in.K-geo, 0)
	}

	z := make([]float64, len(ts))
	var sum, sumSq float64
	for p := 0; p < paths; p++ {
		for i := range z {
			z[i] = rng.NormFloat64()
		}
		x := 0.5 * (run(z, 1) + run(z, -1))
		sum += x
		sumSq += x * x
	}

	count := float64(paths)
	mean := sum / count
	variance := math.Max(sumSq/count-mean*mean, 0)

	return Result{
		Price:  in.dfR * (mean + exact),
		StdErr: in.dfR * math.Sqrt(variance/count),
	}, nil
}
