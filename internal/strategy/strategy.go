// Package strategy analyses the expiry profit of a listed option strategy,
// optionally with units of the underlying fund.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/pricing"
	"deskquant/derivs/internal/types"
)

// Terminal fields read for each option and for the underlying.
var (
	TermFields  = []string{"exe_mode", "exe_price", "exe_ratio", "lasttradingdate"}
	QuoteFields = []string{"rt_latest", "rt_ask1", "rt_bid1"}
)

// Position is a signed number of contracts; negative is sold.
type Position struct {
	Code  string
	Count float64
}

// Leg is a loaded option position. Volume is contracts times the exercise
// ratio, signed.
type Leg struct {
	Code            string
	Option          pricing.Option
	Volume          float64
	LastTradingDate time.Time
}

// Strategy is a set of option legs plus Units of the underlying, all
// expressed per Unit of the underlying.
type Strategy struct {
	Underlying string
	Legs       []Leg
	Units      float64
	Unit       float64
	Spot       float64
	// Cost is the premium paid per Unit, buying at the ask and selling at
	// the bid.
	Cost float64
}

// Expiry is the last trading date of the legs.
func (s *Strategy) Expiry() time.Time {
	var last time.Time
	for _, l := range s.Legs {
		if l.LastTradingDate.After(last) {
			last = l.LastTradingDate
		}
	}
	return last
}

// Strikes lists the strikes in ascending order.
func (s *Strategy) Strikes() []float64 {
	out := make([]float64, len(s.Legs))
	for i, l := range s.Legs {
		out[i] = l.Option.Strike
	}
	sort.Float64s(out)
	return out
}

// Payoff is the expiry value per Unit when the underlying settles at price.
func (s *Strategy) Payoff(price float64) float64 {
	v := s.Units * price
	for _, l := range s.Legs {
		v += l.Option.Payoff(price) * l.Volume
	}
	return v / s.Unit
}

// Profit is Payoff less Cost.
func (s *Strategy) Profit(price float64) float64 {
	return s.Payoff(price) - s.Cost
}

// Load reads the option terms and live quotes for the positions.
func Load(ctx context.Context, term marketdata.Terminal, underlying string, positions []Position, units, unit float64, date time.Time) (*Strategy, error) {
	if len(positions) == 0 {
		return nil, types.NewValidationError("positions", positions, "strategy has no options", nil)
	}
	if !(unit > 0) {
		return nil, types.NewValidationError("unit", unit, "unit must be positive", nil)
	}

	codes := make([]string, len(positions))
	for i, p := range positions {
		codes[i] = p.Code
	}

	opts := marketdata.Options{TradeDate: date}
	terms, err := term.Snapshot(ctx, codes, TermFields, opts)
	if err != nil {
		return nil, err
	}
	quotes, err := term.Snapshot(ctx, append(codes, underlying), QuoteFields, opts)
	if err != nil {
		return nil, err
	}

	s := &Strategy{Underlying: underlying, Units: units, Unit: unit}

	for _, p := range positions {
		mode, err := terms.Value(p.Code, "exe_mode")
		if err != nil {
			return nil, err
		}
		typ, err := pricing.ParseOptionType(mode)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Code, err)
		}
		strike, err := terms.Float(p.Code, "exe_price")
		if err != nil {
			return nil, err
		}
		ratio, err := terms.Float(p.Code, "exe_ratio")
		if err != nil {
			return nil, err
		}
		last, err := terms.Date(p.Code, "lasttradingdate")
		if err != nil {
			return nil, err
		}

		leg := Leg{
			Code:            p.Code,
			Option:          pricing.Option{Type: typ, Style: pricing.European, Strike: strike, Expiry: last},
			Volume:          ratio * p.Count,
			LastTradingDate: last,
		}
		price, err := tradePrice(quotes, p.Code, leg.Volume)
		if err != nil {
			return nil, err
		}
		s.Cost += price * leg.Volume
		s.Legs = append(s.Legs, leg)
	}

	if s.Spot, err = quotes.Float(underlying, "rt_latest"); err != nil {
		return nil, err
	}
	if units != 0 {
		price, err := tradePrice(quotes, underlying, units)
		if err != nil {
			return nil, err
		}
		s.Cost += price * units
	}
	s.Cost /= unit

	return s, nil
}

// tradePrice is the ask for a purchase and the bid for a sale.
func tradePrice(quotes *marketdata.Matrix, code string, volume float64) (float64, error) {
	if volume >= 0 {
		return quotes.Float(code, "rt_ask1")
	}
	return quotes.Float(code, "rt_bid1")
}
