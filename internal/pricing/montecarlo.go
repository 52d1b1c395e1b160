package pricing

import (
	"math"

	"golang.org/x/exp/rand"

	"deskquant/derivs/internal/dates"
)

// MonteCarlo simulates terminal prices under geometric Brownian motion.
// The same seed gives the same estimate, which keeps bumped greeks smooth.
type MonteCarlo struct {
	Paths      int
	Seed       uint64
	Antithetic bool
}

func (MonteCarlo) Name() string {
	return "monte-carlo"
}

func (m MonteCarlo) paths() int {
	if m.Paths <= 0 {
		return 100_000
	}
	return m.Paths
}

func (m MonteCarlo) Price(opt Option, mkt Market, eval dates.EvalContext) (Result, error) {
	if opt.Style == American {
		return Result{}, ErrAmericanUnsupported
	}
	in, err := newInputs(opt, mkt, eval)
	if err != nil {
		return Result{}, err
	}

	res := m.simulate(opt, in)
	if err := numericGreeks(m.value, opt, mkt, eval, &res, false); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (m MonteCarlo) value(opt Option, mkt Market, eval dates.EvalContext) (float64, error) {
	in, err := newInputs(opt, mkt, eval)
	if err != nil {
		return 0, err
	}
	return m.simulate(opt, in).Price, nil
}

// simulate returns the discounted mean payoff with pathwise delta and the
// likelihood-ratio gamma estimator.
func (m MonteCarlo) simulate(opt Option, in inputs) Result {
	if in.tv <= 0 || in.sigma <= 0 {
		return black(opt.Type, in)
	}

	r, q := in.drift()
	sqrtT := math.Sqrt(in.tv)
	drift := (r - q - 0.5*in.sigma*in.sigma) * in.tv
	rng := rand.New(rand.NewSource(m.Seed))

	n := m.paths()
	var sum, sumSq, delta, gamma float64
	samples := 0

	sample := func(z float64) float64 {
		sT := in.S * math.Exp(drift+in.sigma*sqrtT*z)
		pay := opt.Payoff(sT)
		switch {
		case opt.Type == Call && sT > in.K:
			delta += sT / in.S
		case opt.Type == Put && sT < in.K:
			delta -= sT / in.S
		}
		if sT > in.K {
			gamma += in.K * z / (in.S * in.S * in.sigma * sqrtT)
		}
		return pay
	}

	for samples < n {
		z := rng.NormFloat64()
		x := sample(z)
		if m.Antithetic {
			x = 0.5 * (x + sample(-z))
		}
		sum += x
		sumSq += x * x
		samples++
	}

	count := float64(samples)
	mean := sum / count
	variance := math.Max(sumSq/count-mean*mean, 0)

	draws := count
	if m.Antithetic {
		draws *= 2
	}

	return Result{
		Price:  in.dfR * mean,
		Delta:  in.dfR * delta / draws,
		Gamma:  in.dfR * gamma / draws,
		StdErr: in.dfR * math.Sqrt(variance/count),
	}
}
