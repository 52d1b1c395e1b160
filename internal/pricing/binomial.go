package pricing

import (
	"math"

	"deskquant/derivs/internal/dates"
)

// Binomial is a Cox-Ross-Rubinstein tree. Delta and gamma come from the
// first two layers of the tree.
type Binomial struct {
	Steps int
}

func (Binomial) Name() string {
	return "binomial"
}

func (b Binomial) steps() int {
	if b.Steps < 2 {
		return 500
	}
	return b.Steps
}

func (b Binomial) Price(opt Option, mkt Market, eval dates.EvalContext) (Result, error) {
	in, err := newInputs(opt, mkt, eval)
	if err != nil {
		return Result{}, err
	}

	res, ok := b.tree(opt, in)
	if !ok {
		return black(opt.Type, in), nil
	}

	if err := numericGreeks(b.value, opt, mkt, eval, &res, false); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (b Binomial) value(opt Option, mkt Market, eval dates.EvalContext) (float64, error) {
	in, err := newInputs(opt, mkt, eval)
	if err != nil {
		return 0, err
	}
	res, ok := b.tree(opt, in)
	if !ok {
		return black(opt.Type, in).Price, nil
	}
	return res.Price, nil
}

// tree rolls back the lattice. It reports false when there is no time or
// no volatility left, where the tree degenerates to the closed form.
func (b Binomial) tree(opt Option, in inputs) (Result, bool) {
	if in.tv <= 0 || in.sigma <= 0 {
		return Result{}, false
	}

	n := b.steps()
	r, q := in.drift()
	dt := in.tv / float64(n)
	u := math.Exp(in.sigma * math.Sqrt(dt))
	d := 1 / u
	disc := math.Exp(-r * dt)
	p := (math.Exp((r-q)*dt) - d) / (u - d)

	values := make([]float64, n+1)
	for i := 0; i <= n; i++ {
		s := in.S * math.Pow(u, float64(i)) * math.Pow(d, float64(n-i))
		values[i] = opt.Payoff(s)
	}

	var layer1, layer2 []float64
	for step := n - 1; step >= 0; step-- {
		for i := 0; i <= step; i++ {
			v := disc * (p*values[i+1] + (1-p)*values[i])
			// exercise against the full spot, escrowed cash included
			if opt.Style == American {
				s := in.S*math.Pow(u, float64(i))*math.Pow(d, float64(step-i)) + in.cashAt(dt*float64(step), r)
				v = math.Max(v, opt.Payoff(s))
			}
			values[i] = v
		}
		switch step {
		case 2:
			layer2 = append([]float64(nil), values[:3]...)
		case 1:
			layer1 = append([]float64(nil), values[:2]...)
		}
	}

	res := Result{Price: values[0]}

	s0 := in.S
	if layer1 != nil {
		su, sd := s0*u, s0*d
		res.Delta = (layer1[1] - layer1[0]) / (su - sd)
	}
	if layer2 != nil {
		suu, sud, sdd := s0*u*u, s0, s0*d*d
		du := (layer2[2] - layer2[1]) / (suu - sud)
		dd := (layer2[1] - layer2[0]) / (sud - sdd)
		res.Gamma = (du - dd) / (0.5 * (suu - sdd))
	}

	return res, true
}
