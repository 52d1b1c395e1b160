package calibrate

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"deskquant/derivs/internal/curve"
	"deskquant/derivs/internal/logging"
)

// Result is a fitted curve.
type Result struct {
	AsOf        time.Time
	Nodes       []Node
	ZeroRates   []float64 // per node, decimal, in Options.Compounding
	Objective   float64
	Converged   bool
	Status      string
	Iterations  int
	Evaluations int
	Residuals   []Residual
	Curve       *curve.Discount
}

// Prices returns the fitted node prices in grid order.
func (r *Result) Prices() []float64 {
	x := make([]float64, len(r.Nodes))
	for i, n := range r.Nodes {
		x[i] = n.Price
	}
	return x
}

// NodeRecord is a flattened node for storage.
type NodeRecord struct {
	AsOf     time.Time `parquet:"as_of"`
	Tenor    string    `parquet:"tenor"`
	Date     time.Time `parquet:"date"`
	Price    float64   `parquet:"price"`
	DF       float64   `parquet:"df"`
	ZeroRate float64   `parquet:"zero_rate"`
	// Forward is the continuously compounded forward from the previous node,
	// or from AsOf for the first.
	Forward  float64   `parquet:"forward"`
}

func (r *Result) Records() []NodeRecord {
	out := make([]NodeRecord, len(r.Nodes))
	prev := r.AsOf
	for i, n := range r.Nodes {
		out[i] = NodeRecord{
			AsOf:     r.AsOf,
			Tenor:    n.Tenor.String(),
			Date:     n.Date,
			Price:    n.Price,
			DF:       n.Price / 100,
			ZeroRate: r.ZeroRates[i],
		}
		if r.Curve != nil {
			out[i].Forward = r.Curve.ForwardRate(prev, n.Date)
		}
		prev = n.Date
	}
	return out
}

// Fit minimises the objective with BFGS from par, using a central finite
// difference gradient. A fit that stops without converging is still
// returned, flagged with Converged false.
func Fit(ctx context.Context, p *Problem) (*Result, error) {
	logger := logging.FromContext(ctx)
	p.logDropped(logger)

	evaluations := 0
	objective := func(x []float64) float64 {
		evaluations++
		f := p.Objective(x)
		logger.Debug().
			Int("evaluation", evaluations).
			Float64("objective", f).
			Msg("Objective evaluated")
		return f
	}

	problem := optimize.Problem{
		Func: objective,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, p.Objective, x, &fd.Settings{Formula: fd.Central})
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   p.opts.MaxIterations,
		GradientThreshold: p.opts.GradientThreshold,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Iterations: 50,
		},
	}

	res, err := optimize.Minimize(problem, p.InitialPrices(), settings, &optimize.BFGS{})
	if err != nil && res == nil {
		return nil, fmt.Errorf("calibrate: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	out, buildErr := p.result(res.X)
	if buildErr != nil {
		return nil, buildErr
	}
	out.Status = res.Status.String()
	out.Iterations = res.MajorIterations
	out.Evaluations = evaluations
	out.Converged = err == nil && converged(res.Status) && !math.IsInf(res.F, 0)
	if err != nil {
		out.Status = fmt.Sprintf("%s: %v", out.Status, err)
	}

	logging.LogCurveFit(logger, out.AsOf, out.Objective, out.Iterations, out.Converged, out.Status)

	return out, nil
}

// Evaluate builds a Result at the given prices without optimising, which is
// how a stored fit is re-checked.
func Evaluate(p *Problem, prices []float64) (*Result, error) {
	out, err := p.result(prices)
	if err != nil {
		return nil, err
	}
	out.Status = "evaluated"
	out.Converged = true
	return out, nil
}

func (p *Problem) result(prices []float64) (*Result, error) {
	c, err := p.Curve(prices)
	if err != nil {
		return nil, err
	}

	residuals, err := p.Residuals(prices)
	if err != nil {
		return nil, err
	}

	out := &Result{
		AsOf:      p.eval.Date,
		Nodes:     p.Nodes(),
		ZeroRates: make([]float64, len(p.nodes)),
		Objective: p.Objective(prices),
		Residuals: residuals,
		Curve:     c,
	}
	for i := range out.Nodes {
		out.Nodes[i].Price = prices[i]
		out.ZeroRates[i] = c.ZeroRate(out.Nodes[i].Date, p.opts.Compounding)
	}
	return out, nil
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success,
		optimize.FunctionThreshold,
		optimize.FunctionConvergence,
		optimize.GradientThreshold,
		optimize.StepConvergence,
		optimize.MethodConverge:
		return true
	}
	return false
}
