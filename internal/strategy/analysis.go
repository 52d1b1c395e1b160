package strategy

import (
	"gonum.org/v1/gonum/floats"
)

// Grid sets the price range of an analysis: from Lower times the lowest of
// the strikes and spot to Upper times the highest, in Points steps. EpsDiff
// is the edge slope above which profit or loss is taken as unbounded.
type Grid struct {
	Lower   float64
	Upper   float64
	Points  int
	EpsDiff float64
}

func DefaultGrid() Grid {
	return Grid{Lower: 0.9, Upper: 1.1, Points: 1001, EpsDiff: 0.01}
}

// StrikeProfit is the expiry profit with the underlying at a strike.
type StrikeProfit struct {
	Strike float64
	Profit float64
}

// Analysis is the expiry profit profile of a strategy.
type Analysis struct {
	Prices     []float64
	Profits    []float64
	Breakevens []float64
	// MaxProfit and MaxLoss are nil when unbounded.
	MaxProfit  *float64
	MaxLoss    *float64
	Strikes    []StrikeProfit
	SpotProfit float64
}

// Analyze evaluates the profit on the grid.
func (s *Strategy) Analyze(g Grid) *Analysis {
	if g.Points < 3 {
		g.Points = DefaultGrid().Points
	}

	strikes := s.Strikes()
	lo := floats.Min(append([]float64{s.Spot}, strikes...)) * g.Lower
	hi := floats.Max(append([]float64{s.Spot}, strikes...)) * g.Upper

	a := &Analysis{
		Prices:     floats.Span(make([]float64, g.Points), lo, hi),
		Profits:    make([]float64, g.Points),
		SpotProfit: s.Profit(s.Spot),
	}
	for i, p := range a.Prices {
		a.Profits[i] = s.Profit(p)
	}

	a.Breakevens = zeros(a.Prices, a.Profits)
	a.MaxLoss, a.MaxProfit = extremes(a.Prices, a.Profits, g.EpsDiff)

	for _, k := range strikes {
		a.Strikes = append(a.Strikes, StrikeProfit{Strike: k, Profit: s.Profit(k)})
	}
	return a
}

// zeros finds the sign changes of y, interpolating linearly in x.
func zeros(x, y []float64) []float64 {
	var out []float64
	for i := 0; i < len(y)-1; i++ {
		switch {
		case y[i] == 0:
			out = append(out, x[i])
		case y[i]*y[i+1] < 0:
			alpha := y[i+1] / (y[i+1] - y[i])
			out = append(out, alpha*x[i]+(1-alpha)*x[i+1])
		}
	}
	return out
}

// extremes returns the minimum and maximum of y, or nil for a side whose
// edge slope keeps growing past the grid.
func extremes(x, y []float64, eps float64) (lowest, highest *float64) {
	n := len(y)
	minV, maxV := floats.Min(y), floats.Max(y)
	left := (y[1] - y[0]) / (x[1] - x[0])
	right := (y[n-1] - y[n-2]) / (x[n-1] - x[n-2])

	if !(left > eps || right < -eps) {
		lowest = &minV
	}
	if !(left < -eps || right > eps) {
		highest = &maxV
	}
	return lowest, highest
}
