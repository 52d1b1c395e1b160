package paths

import (
	"context"
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultTradingDays annualises Brownian drift and volatility.
const DefaultTradingDays = 240

// Brownian draws normal daily log returns. Drift and Vol are annualised
// over TradingDays.
type Brownian struct {
	Drift       float64
	Vol         float64
	TradingDays int
	Seed        uint64
}

func (Brownian) Name() string {
	return "brownian"
}

func (b Brownian) Returns(_ context.Context, days []time.Time, n int) (*mat.Dense, *mat.Dense, error) {
	td := b.TradingDays
	if td <= 0 {
		td = DefaultTradingDays
	}

	dist := distuv.Normal{
		Mu:    b.Drift / float64(td),
		Sigma: b.Vol / math.Sqrt(float64(td)),
		Src:   rand.New(rand.NewSource(b.Seed)),
	}

	r := mat.NewDense(len(days), n, nil)
	for i := 1; i < len(days); i++ {
		for j := 0; j < n; j++ {
			r.Set(i, j, dist.Rand())
		}
	}
	return r, r, nil
}
