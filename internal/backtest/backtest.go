// Package backtest replays delta hedging of a sold European option over
// simulated price paths.
package backtest

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/paths"
	"deskquant/derivs/internal/pricing"
	"deskquant/derivs/internal/types"
)

// DeltaPricer gives the hedge ratio for a spot on a date.
type DeltaPricer interface {
	Delta(spot float64, date time.Time) (float64, error)
}

// OptionDelta reprices Option with Engine on every date. Market.Spot is
// replaced by the path price.
type OptionDelta struct {
	Option   pricing.Option
	Market   pricing.Market
	Calendar *dates.Calendar
	Engine   pricing.Engine
}

func (p OptionDelta) Delta(spot float64, date time.Time) (float64, error) {
	engine := p.Engine
	if engine == nil {
		engine = pricing.Analytic{}
	}
	mkt := p.Market
	mkt.Spot = spot
	res, err := engine.Price(p.Option, mkt, dates.NewEvalContext(date, p.Calendar))
	if err != nil {
		return 0, err
	}
	return res.Delta, nil
}

// Costs are charged on the traded notional, as fractions.
type Costs struct {
	Slippage   float64
	Commission float64
}

func (c Costs) rate() float64 {
	return c.Slippage + c.Commission
}

// Result holds the per-date deltas and P&L. Rows are dates, columns paths.
type Result struct {
	Dates  []time.Time
	Delta  *mat.Dense
	PnL    *mat.Dense
	Payoff []float64
	// Total is the summed P&L of each path.
	Total []float64
}

// Progress is called after each date is priced.
type Progress func(done, total int)

// Run hedges opt on every path of set. The hedge starts flat, holds
// delta[d-1] of the hedging asset over day d and is closed on the last date,
// where the option payoff is paid.
func Run(ctx context.Context, set *paths.Set, opt pricing.Option, pricer DeltaPricer, costs Costs, progress Progress) (*Result, error) {
	logger := logging.FromContext(ctx)

	rows, cols := set.Asset.Dims()
	if hr, hc := set.Hedging.Dims(); hr != rows || hc != cols {
		return nil, types.NewValidationError("hedging", hc, "hedging paths do not match the asset paths", nil)
	}
	if opt.Style != pricing.European {
		return nil, types.NewValidationError("style", opt.Style, "only European options can be backtested", types.ErrInvalidStyle)
	}

	delta := mat.NewDense(rows, cols, nil)
	for d := 0; d < rows-1; d++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := 0; j < cols; j++ {
			v, err := pricer.Delta(set.Asset.At(d, j), set.Dates[d])
			if err != nil {
				return nil, err
			}
			delta.Set(d, j, v)
		}
		if progress != nil {
			progress(d+1, rows)
		}
	}
	if progress != nil {
		progress(rows, rows)
	}

	pnl := mat.NewDense(rows, cols, nil)
	payoff := make([]float64, cols)
	total := make([]float64, cols)
	rate := costs.rate()

	for j := 0; j < cols; j++ {
		prev := 0.0
		for d := 0; d < rows; d++ {
			h := set.Hedging.At(d, j)
			v := 0.0
			if d > 0 {
				v = (h - set.Hedging.At(d-1, j)) * delta.At(d-1, j)
			}
			v -= math.Abs(h*(delta.At(d, j)-prev)) * rate
			prev = delta.At(d, j)
			pnl.Set(d, j, v)
		}

		payoff[j] = opt.Payoff(set.Asset.At(rows-1, j))
		pnl.Set(rows-1, j, pnl.At(rows-1, j)-payoff[j])

		for d := 0; d < rows; d++ {
			total[j] += pnl.At(d, j)
		}
	}

	logger.Info().Int("dates", rows).Int("paths", cols).Msg("Backtest complete")

	return &Result{
		Dates:  set.Dates,
		Delta:  delta,
		PnL:    pnl,
		Payoff: payoff,
		Total:  total,
	}, nil
}
