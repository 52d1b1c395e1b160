package pricing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"deskquant/derivs/internal/dates"
)

// FiniteDifference solves the Black-Scholes PDE in log spot with
// Crank-Nicolson steps. American exercise is handled by projecting onto the
// payoff after each step.
type FiniteDifference struct {
	TimeSteps  int
	SpaceSteps int
}

func (FiniteDifference) Name() string {
	return "finite-difference"
}

func (f FiniteDifference) grid() (nt, nx int) {
	nt, nx = f.TimeSteps, f.SpaceSteps
	if nt < 10 {
		nt = 400
	}
	if nx < 10 {
		nx = 400
	}
	// odd so that spot sits on the middle node
	if nx%2 == 0 {
		nx++
	}
	return nt, nx
}

func (f FiniteDifference) Price(opt Option, mkt Market, eval dates.EvalContext) (Result, error) {
	in, err := newInputs(opt, mkt, eval)
	if err != nil {
		return Result{}, err
	}

	res, err := f.solve(opt, in)
	if err != nil {
		return Result{}, err
	}

	if err := numericGreeks(f.value, opt, mkt, eval, &res, false); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (f FiniteDifference) value(opt Option, mkt Market, eval dates.EvalContext) (float64, error) {
	in, err := newInputs(opt, mkt, eval)
	if err != nil {
		return 0, err
	}
	res, err := f.solve(opt, in)
	return res.Price, err
}

func (f FiniteDifference) solve(opt Option, in inputs) (Result, error) {
	if in.tv <= 0 || in.sigma <= 0 {
		res := black(opt.Type, in)
		if opt.Style == American {
			res.Price = math.Max(res.Price, opt.Payoff(in.S+in.escrowedCash))
		}
		return res, nil
	}

	nt, nx := f.grid()
	r, q := in.drift()
	T := in.tv
	sig2 := in.sigma * in.sigma

	x0 := math.Log(in.S)
	half := 5 * in.sigma * math.Sqrt(T)
	if k := math.Abs(math.Log(in.K / in.S)); half < 1.5*k {
		half = 1.5 * k
	}
	dx := 2 * half / float64(nx-1)
	dt := T / float64(nt)
	c := (nx - 1) / 2

	spots := make([]float64, nx)
	for i := range spots {
		spots[i] = math.Exp(x0 + float64(i-c)*dx)
	}

	// V(tau) with tau the time remaining; start from the payoff at expiry
	v := make([]float64, nx)
	for i, s := range spots {
		v[i] = opt.Payoff(s)
	}

	a := 0.5 * sig2 / (dx * dx)
	b := (r - q - 0.5*sig2) / (2 * dx)
	lo, di, up := a-b, -2*a-r, a+b

	m := nx - 2
	A := mat.NewDense(m, m, nil)
	for j := 0; j < m; j++ {
		A.Set(j, j, 1-0.5*dt*di)
		if j > 0 {
			A.Set(j, j-1, -0.5*dt*lo)
		}
		if j < m-1 {
			A.Set(j, j+1, -0.5*dt*up)
		}
	}

	var lu mat.LU
	lu.Factorize(A)
	if lu.Cond() > 1e12 {
		return Result{}, fmt.Errorf("pricing: finite difference system is ill-conditioned")
	}

	rhs := mat.NewVecDense(m, nil)
	sol := mat.NewVecDense(m, nil)

	boundary := func(tau float64) (float64, float64) {
		sMin, sMax := spots[0], spots[nx-1]
		dr, dq := math.Exp(-r*tau), math.Exp(-q*tau)
		if opt.Type == Call {
			hi := sMax*dq - in.K*dr
			if opt.Style == American {
				hi = math.Max(hi, sMax-in.K)
			}
			return 0, hi
		}
		low := in.K*dr - sMin*dq
		if opt.Style == American {
			low = math.Max(low, in.K-sMin)
		}
		return low, 0
	}

	for n := 1; n <= nt; n++ {
		tau := dt * float64(n)
		prevLo, prevHi := v[0], v[nx-1]
		nextLo, nextHi := boundary(tau)

		for j := 0; j < m; j++ {
			i := j + 1
			val := v[i] + 0.5*dt*(lo*v[i-1]+di*v[i]+up*v[i+1])
			if j == 0 {
				val += 0.5 * dt * lo * (prevLo + nextLo)
			}
			if j == m-1 {
				val += 0.5 * dt * up * (prevHi + nextHi)
			}
			rhs.SetVec(j, val)
		}

		if err := lu.SolveVecTo(sol, false, rhs); err != nil {
			return Result{}, fmt.Errorf("pricing: finite difference step %d: %w", n, err)
		}

		v[0], v[nx-1] = nextLo, nextHi
		for j := 0; j < m; j++ {
			v[j+1] = sol.AtVec(j)
		}

		if opt.Style == American {
			cash := in.cashAt(T-tau, r)
			for i, s := range spots {
				v[i] = math.Max(v[i], opt.Payoff(s+cash))
			}
		}
	}

	vx := (v[c+1] - v[c-1]) / (2 * dx)
	vxx := (v[c+1] - 2*v[c] + v[c-1]) / (dx * dx)
	s := spots[c]

	return Result{
		Price: v[c],
		Delta: vx / s,
		Gamma: (vxx - vx) / (s * s),
	}, nil
}
