package paths

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/types"
)

// Sampling is how far back each successive historical window starts.
type Sampling int

const (
	// Chained windows end where the previous one started.
	Chained Sampling = iota
	Yearly
	Monthly
	Quarterly
	Weekly
)

func (s Sampling) String() string {
	return [...]string{"chained", "yearly", "monthly", "quarterly", "weekly"}[s]
}

// ParseSampling accepts the names above or their codes 0 to 4.
func ParseSampling(s string) (Sampling, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "chained":
		return Chained, nil
	case "1", "yearly":
		return Yearly, nil
	case "2", "monthly":
		return Monthly, nil
	case "3", "quarterly":
		return Quarterly, nil
	case "4", "weekly":
		return Weekly, nil
	}
	return Chained, fmt.Errorf("unknown history sampling %q", s)
}

func (s Sampling) step() dates.Period {
	switch s {
	case Yearly:
		return dates.Period{N: -1, Unit: dates.Years}
	case Monthly:
		return dates.Period{N: -1, Unit: dates.Months}
	case Quarterly:
		return dates.Period{N: -3, Unit: dates.Months}
	case Weekly:
		return dates.Period{N: -1, Unit: dates.Weeks}
	}
	return dates.Period{}
}

// ReturnField is the terminal field holding the daily percentage change.
const ReturnField = "pct_chg"

// Historical replays past daily returns of Asset. Path j uses the window of
// len(days) trading days ending at HistoryEnd stepped back j times by
// Sampling.
type Historical struct {
	Terminal   marketdata.Terminal
	Calendar   *dates.Calendar
	Asset      string
	HistoryEnd time.Time
	Sampling   Sampling
}

func (h Historical) Name() string {
	return "historical"
}

func (h Historical) Returns(ctx context.Context, days []time.Time, n int) (*mat.Dense, *mat.Dense, error) {
	r, err := h.returns(ctx, h.Asset, len(days), n)
	if err != nil {
		return nil, nil, err
	}
	return r, r, nil
}

func (h Historical) returns(ctx context.Context, asset string, rows, n int) (*mat.Dense, error) {
	logger := logging.FromContext(ctx)
	out := mat.NewDense(rows, n, nil)

	end := h.Calendar.Adjust(dates.Truncate(h.HistoryEnd), dates.Preceding)
	start := h.Calendar.AddBusinessDays(end, -(rows - 1))

	for j := 0; j < n; j++ {
		logger.Info().
			Str("asset", asset).
			Int("path", j+1).
			Int("of", n).
			Time("from", start).
			Time("to", end).
			Msg("Fetching historical path")

		obs, err := h.Terminal.Series(ctx, asset, ReturnField, start, end, marketdata.Options{})
		if err != nil {
			return nil, err
		}
		if len(obs) != rows {
			return nil, fmt.Errorf("%w: %s has %d returns from %s to %s, want %d", types.ErrDataUnavailable,
				asset, len(obs), start.Format("2006-01-02"), end.Format("2006-01-02"), rows)
		}

		// the first close is the start of the path
		for i := 1; i < rows; i++ {
			out.Set(i, j, math.Log1p(obs[i].Value/100))
		}

		if h.Sampling == Chained {
			end = start
		} else {
			end = h.Calendar.Advance(end, h.Sampling.step(), dates.Preceding)
		}
		start = h.Calendar.AddBusinessDays(end, -(rows - 1))
	}

	return out, nil
}

// HistoricalDiffHedging replays Asset for pricing and HedgingAsset over the
// same windows for the hedge.
type HistoricalDiffHedging struct {
	Historical
	HedgingAsset string
}

func (h HistoricalDiffHedging) Name() string {
	return "historical-diff-hedging"
}

func (h HistoricalDiffHedging) Returns(ctx context.Context, days []time.Time, n int) (*mat.Dense, *mat.Dense, error) {
	asset, err := h.returns(ctx, h.Asset, len(days), n)
	if err != nil {
		return nil, nil, err
	}
	hedging, err := h.returns(ctx, h.HedgingAsset, len(days), n)
	if err != nil {
		return nil, nil, err
	}
	return asset, hedging, nil
}
