package backtest

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Levels are the reported percentiles of the total P&L.
var Levels = []float64{10, 25, 50, 75, 90}

// Summary describes the distribution of total P&L across paths.
type Summary struct {
	Paths       int
	Mean        float64
	Std         float64
	Percentiles []float64 // at Levels
	Payoff      float64   // mean payoff
}

// Summarize computes the summary of a run. Percentiles interpolate linearly
// between order statistics.
func Summarize(r *Result) Summary {
	sorted := append([]float64(nil), r.Total...)
	sort.Float64s(sorted)

	s := Summary{Paths: len(sorted)}
	if len(sorted) == 0 {
		return s
	}

	s.Mean, s.Std = stat.MeanStdDev(sorted, nil)
	if len(sorted) == 1 {
		s.Std = 0
	}
	s.Payoff = stat.Mean(r.Payoff, nil)

	for _, p := range Levels {
		s.Percentiles = append(s.Percentiles, percentile(sorted, p/100))
	}
	return s
}

// percentile interpolates linearly at rank p*(n-1).
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
