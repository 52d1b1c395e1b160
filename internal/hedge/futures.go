package hedge

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/types"
)

// FutureIndex maps a stock-index future prefix to its underlying index.
var FutureIndex = map[string]string{
	"IF": "000300.SH",
	"IH": "000016.SH",
	"IC": "000905.SH",
	"IM": "000852.SH",
}

// ContinuousContract is the terminal code of the main contract series for a
// prefix, e.g. IF.CFE.
func ContinuousContract(prefix string) string {
	return prefix + ".CFE"
}

// MultiplierField is the snapshot field holding the contract multiplier.
const MultiplierField = "contractmultiplier"

// Basis compares a future with its index at one close.
type Basis struct {
	Future      string
	Index       string
	FutureClose float64
	IndexClose  float64
	// Ratio is the discount of the future to the index, floored at zero.
	Ratio float64
}

// PremiumDiscount computes the basis of a contract such as IF1701.CFE at the
// close of date.
func PremiumDiscount(ctx context.Context, term marketdata.Terminal, futureCode string, date time.Time) (*Basis, error) {
	if len(futureCode) < 2 {
		return nil, fmt.Errorf("%w: %q", types.ErrSymbolNotFound, futureCode)
	}
	index, ok := FutureIndex[futureCode[:2]]
	if !ok {
		return nil, fmt.Errorf("%w: no index for future %s", types.ErrSymbolNotFound, futureCode)
	}

	m, err := term.Snapshot(ctx, []string{futureCode, index}, []string{"close"}, marketdata.Daily(date))
	if err != nil {
		return nil, err
	}
	fc, err := m.Float(futureCode, "close")
	if err != nil {
		return nil, err
	}
	ic, err := m.Float(index, "close")
	if err != nil {
		return nil, err
	}
	if !(ic > 0) {
		return nil, types.NewValidationError("close", ic, "index close must be positive", nil)
	}

	return &Basis{
		Future:      futureCode,
		Index:       index,
		FutureClose: fc,
		IndexClose:  ic,
		Ratio:       math.Max((ic-fc)/ic, 0),
	}, nil
}

// Ratio is a regression hedge ratio.
type Ratio struct {
	// Contracts is the optimal number of futures per portfolio.
	Contracts float64
	Intercept float64
	RSquared  float64
	// Observations is the number of daily changes regressed.
	Observations int
}

// OptimalContracts regresses daily changes of the portfolio value on daily
// changes of one contract's value (price times multiplier), with an
// intercept. The slope is the minimum variance number of contracts.
func OptimalContracts(ctx context.Context, term marketdata.Terminal, p Portfolio, prefix string, start, end, base time.Time) (*Ratio, error) {
	portfolio, err := values(ctx, term, p, start, end, base)
	if err != nil {
		return nil, err
	}

	contract := ContinuousContract(prefix)
	future, err := term.Series(ctx, contract, "close", start, end, marketdata.Options{})
	if err != nil {
		return nil, err
	}

	m, err := term.Snapshot(ctx, []string{contract}, []string{MultiplierField}, marketdata.Options{})
	if err != nil {
		return nil, err
	}
	multiplier, err := m.Float(contract, MultiplierField)
	if err != nil {
		return nil, err
	}

	futureAt := make(map[time.Time]float64, len(future))
	for _, o := range future {
		futureAt[o.Date] = o.Value * multiplier
	}

	var pv, fv []float64
	for _, o := range portfolio {
		if f, ok := futureAt[o.Date]; ok {
			pv = append(pv, o.Value)
			fv = append(fv, f)
		}
	}
	if len(pv) < 3 {
		return nil, fmt.Errorf("%w: %d common closes", types.ErrTooFewPoints, len(pv))
	}

	y := diff(pv)
	x := diff(fv)

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(beta) {
		return nil, fmt.Errorf("%w: future value did not change", types.ErrTooFewPoints)
	}

	return &Ratio{
		Contracts:    beta,
		Intercept:    alpha,
		RSquared:     stat.RSquared(x, y, nil, alpha, beta),
		Observations: len(x),
	}, nil
}

func diff(v []float64) []float64 {
	out := make([]float64, len(v)-1)
	for i := 1; i < len(v); i++ {
		out[i-1] = v[i] - v[i-1]
	}
	return out
}
