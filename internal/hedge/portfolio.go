// Package hedge sizes stock-index futures hedges for a stock portfolio.
package hedge

import (
	"context"
	"fmt"
	"time"

	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/sheet"
	"deskquant/derivs/internal/types"
)

// PortfolioSheet is the workbook sheet listing the holdings.
const PortfolioSheet = "投资组合"

// PriceField is the adjusted close used to value holdings.
const PriceField = "close2"

// Holding is a position in one stock.
type Holding struct {
	Code     string
	Quantity float64
}

// Portfolio is a list of holdings in workbook order.
type Portfolio []Holding

// Codes lists the stock codes.
func (p Portfolio) Codes() []string {
	out := make([]string, len(p))
	for i, h := range p {
		out[i] = h.Code
	}
	return out
}

// OpenPortfolio reads the portfolio sheet of the workbook at path.
func OpenPortfolio(path string) (Portfolio, error) {
	wb, err := sheet.Open(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	rows, err := wb.Rows(PortfolioSheet)
	if err != nil {
		return nil, err
	}
	return ReadPortfolio(rows)
}

// ReadPortfolio reads code and quantity from the first two columns, skipping
// the header row. A repeated code replaces the earlier quantity.
func ReadPortfolio(rows [][]string) (Portfolio, error) {
	var p Portfolio
	index := map[string]int{}

	for i := 1; i < len(rows); i++ {
		code := sheet.Cell(rows[i], 0)
		if code == "" {
			continue
		}
		qty, err := sheet.Float(rows[i], 1)
		if err != nil {
			return nil, fmt.Errorf("portfolio row %d: %w", i+1, err)
		}
		if j, ok := index[code]; ok {
			p[j].Quantity = qty
			continue
		}
		index[code] = len(p)
		p = append(p, Holding{Code: code, Quantity: qty})
	}

	if len(p) == 0 {
		return nil, fmt.Errorf("%w: portfolio has no holdings", types.ErrMissingField)
	}
	return p, nil
}

// PL is the market value of a portfolio at the start and end closes.
type PL struct {
	Start float64
	End   float64
}

// Change is End minus Start.
func (pl PL) Change() float64 {
	return pl.End - pl.Start
}

// values is the portfolio value on every date where all holdings have a
// price, in date order.
func values(ctx context.Context, term marketdata.Terminal, p Portfolio, start, end, base time.Time) ([]marketdata.Observation, error) {
	opts := marketdata.Adjusted(base)

	var dates []time.Time
	total := map[time.Time]float64{}
	count := map[time.Time]int{}

	for i, h := range p {
		obs, err := term.Series(ctx, h.Code, PriceField, start, end, opts)
		if err != nil {
			return nil, err
		}
		for _, o := range obs {
			if i == 0 {
				dates = append(dates, o.Date)
			}
			total[o.Date] += o.Value * h.Quantity
			count[o.Date]++
		}
	}

	var out []marketdata.Observation
	for _, d := range dates {
		if count[d] == len(p) {
			out = append(out, marketdata.Observation{Date: d, Value: total[d]})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no common prices for the portfolio", types.ErrDataUnavailable)
	}
	return out, nil
}

// PortfolioPL values p at the closes of start and end, with prices adjusted
// to base.
func PortfolioPL(ctx context.Context, term marketdata.Terminal, p Portfolio, start, end, base time.Time) (PL, error) {
	v, err := values(ctx, term, p, start, end, base)
	if err != nil {
		return PL{}, err
	}
	pl := PL{Start: v[0].Value, End: v[len(v)-1].Value}

	logger := logging.FromContext(ctx)
	logger.Info().
		Float64("start_value", pl.Start).
		Float64("end_value", pl.End).
		Msg("Portfolio P&L")

	return pl, nil
}
