// Package paths generates simulated daily price paths for backtests. Every
// path starts at 1.0 on the first trading day.
package paths

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/types"
)

// Set is a generated path set. Rows are dates, columns are paths. Asset is
// the priced underlying, Hedging the instrument traded against it; they are
// the same matrix unless the generator hedges with a different asset.
type Set struct {
	Dates   []time.Time
	Asset   *mat.Dense
	Hedging *mat.Dense
}

// Paths is the number of paths in the set.
func (s *Set) Paths() int {
	_, c := s.Asset.Dims()
	return c
}

// Generator produces daily log returns for a list of trading days.
type Generator interface {
	Name() string
	// Returns gives the asset and hedging log returns, len(days) rows by n
	// columns. The first row is zero.
	Returns(ctx context.Context, days []time.Time, n int) (asset, hedging *mat.Dense, err error)
}

// TradingDays lists the trading days from start to end inclusive. Both ends
// roll forward onto the next trading day.
func TradingDays(cal *dates.Calendar, start, end time.Time) ([]time.Time, error) {
	if end.Before(start) {
		return nil, types.NewValidationError("end", end, "end is before start", nil)
	}
	days := cal.BusinessDays(dates.Truncate(start), dates.Truncate(end))
	if len(days) < 2 {
		return nil, types.NewValidationError("end", end, "need at least two trading days", nil)
	}
	return days, nil
}

// Generate runs g over the trading days between start and end and turns the
// returns into price paths.
func Generate(ctx context.Context, g Generator, cal *dates.Calendar, start, end time.Time, n int) (*Set, error) {
	if n <= 0 {
		return nil, types.NewValidationError("paths", n, "path count must be positive", nil)
	}

	days, err := TradingDays(cal, start, end)
	if err != nil {
		return nil, err
	}

	asset, hedging, err := g.Returns(ctx, days, n)
	if err != nil {
		return nil, fmt.Errorf("%s paths: %w", g.Name(), err)
	}

	set := &Set{Dates: days, Asset: cumulate(asset)}
	if hedging == asset {
		set.Hedging = set.Asset
	} else {
		set.Hedging = cumulate(hedging)
	}

	logger := logging.FromContext(ctx)
	logger.Debug().Str("generator", g.Name()).Int("days", len(days)).Int("paths", n).Msg("Generated paths")

	return set, nil
}

// cumulate turns log returns into prices: exp of the running sum down each
// column.
func cumulate(returns *mat.Dense) *mat.Dense {
	r, c := returns.Dims()
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += returns.At(i, j)
			out.Set(i, j, math.Exp(sum))
		}
	}
	return out
}

// Flat keeps every price at 1.
type Flat struct{}

func (Flat) Name() string {
	return "flat"
}

func (Flat) Returns(_ context.Context, days []time.Time, n int) (*mat.Dense, *mat.Dense, error) {
	r := mat.NewDense(len(days), n, nil)
	return r, r, nil
}
