// Package certificate prices an income certificate that guarantees a base
// rate and pays extra through an embedded listed option spread.
package certificate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/types"
)

// SpreadType is the direction of the embedded spread.
type SpreadType string

const (
	Bull SpreadType = "BULL"
	Bear SpreadType = "BEAR"
)

// Exercise modes as reported by the terminal.
const (
	ModeCall = "认购"
	ModePut  = "认沽"
)

// LegFields are the snapshot fields read for each option leg.
var LegFields = []string{"close", "exe_ratio", "exe_price", "exe_mode"}

var (
	daysInYear = decimal.NewFromInt(365)
	one        = decimal.NewFromInt(1)
)

// Spread is a vertical spread: Buy is the long leg, Sell the short one.
type Spread struct {
	Buy  string
	Sell string
}

// SpreadValue is one spread unit at a close.
type SpreadValue struct {
	Type SpreadType
	// Value is the premium of one spread, long minus short.
	Value decimal.Decimal
	// Units is the number of underlying units per contract.
	Units decimal.Decimal
	Lower decimal.Decimal
	Upper decimal.Decimal
}

func snapshotDecimal(m *marketdata.Matrix, symbol, field string) (decimal.Decimal, error) {
	s, err := m.Value(symbol, field)
	if err != nil {
		return decimal.Zero, err
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: %s.%s", types.ErrMissingField, symbol, field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s.%s: %w", symbol, field, err)
	}
	return d, nil
}

// ValueSpread reads both legs at the close of date. A long call makes a bull
// spread and a long put a bear spread.
func ValueSpread(ctx context.Context, term marketdata.Terminal, spread Spread, date time.Time) (*SpreadValue, error) {
	m, err := term.Snapshot(ctx, []string{spread.Buy, spread.Sell}, LegFields, marketdata.Daily(date))
	if err != nil {
		return nil, err
	}

	leg := func(code string) (closePx, ratio, strike decimal.Decimal, mode string, err error) {
		if closePx, err = snapshotDecimal(m, code, "close"); err != nil {
			return
		}
		if ratio, err = snapshotDecimal(m, code, "exe_ratio"); err != nil {
			return
		}
		if strike, err = snapshotDecimal(m, code, "exe_price"); err != nil {
			return
		}
		mode, err = m.Value(code, "exe_mode")
		return
	}

	bClose, bRatio, bStrike, mode, err := leg(spread.Buy)
	if err != nil {
		return nil, err
	}
	sClose, sRatio, sStrike, _, err := leg(spread.Sell)
	if err != nil {
		return nil, err
	}

	v := &SpreadValue{
		Value: bClose.Mul(bRatio).Sub(sClose.Mul(sRatio)),
		Units: bRatio,
	}
	switch strings.TrimSpace(mode) {
	case ModeCall:
		v.Type, v.Lower, v.Upper = Bull, bStrike, sStrike
	case ModePut:
		v.Type, v.Lower, v.Upper = Bear, sStrike, bStrike
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidOptionType, mode)
	}
	return v, nil
}

// Terms describe one certificate.
type Terms struct {
	Start time.Time
	End   time.Time
	// Index is the linked index, Asset the fund the options are written on.
	Index     string
	Asset     string
	BaseRate  decimal.Decimal
	Spread    Spread
	Principal decimal.Decimal
	// FixedRate is the yield of a fixed income product of the same term.
	FixedRate decimal.Decimal
}

// Result is the certificate analysis. Rates are annualised fractions.
type Result struct {
	Type         SpreadType
	Days         int
	OptionBudget decimal.Decimal
	SpreadValue  decimal.Decimal
	Units        decimal.Decimal
	Spreads      decimal.Decimal
	IndexStart   decimal.Decimal
	// The floating band in index points and as a ratio of IndexStart.
	FloorPoint    decimal.Decimal
	FloorRatio    decimal.Decimal
	CapPoint      decimal.Decimal
	CapRatio      decimal.Decimal
	FloorReturn   decimal.Decimal
	CapReturn     decimal.Decimal
	Participation decimal.Decimal
	IndexEnd      decimal.Decimal
	ReturnEnd     decimal.Decimal
	HedgeIncome   decimal.Decimal
}

// OptionBudget is what is left to buy options after funding the base rate
// from the fixed income rate, on simple interest over days.
func OptionBudget(principal, baseRate, fixedRate decimal.Decimal, days int) decimal.Decimal {
	n := decimal.NewFromInt(int64(days)).Div(daysInYear)
	owed := principal.Mul(one.Add(baseRate.Mul(n)))
	return principal.Sub(owed.Div(one.Add(fixedRate.Mul(n))))
}

func (t Terms) validate() error {
	if !t.End.After(t.Start) {
		return types.NewValidationError("end", t.End, "end must be after start", nil)
	}
	if !t.Principal.IsPositive() {
		return types.NewValidationError("principal", t.Principal, "principal must be positive", nil)
	}
	if t.Spread.Buy == "" || t.Spread.Sell == "" {
		return types.NewValidationError("spread", t.Spread, "both spread legs are required", types.ErrMissingField)
	}
	return nil
}

func (t Terms) close(ctx context.Context, term marketdata.Terminal, code string, date time.Time) (decimal.Decimal, error) {
	m, err := term.Snapshot(ctx, []string{code}, []string{"close"}, marketdata.Daily(date))
	if err != nil {
		return decimal.Zero, err
	}
	return snapshotDecimal(m, code, "close")
}

// Evaluate prices the certificate at Start and settles it at End.
func Evaluate(ctx context.Context, term marketdata.Terminal, t Terms) (*Result, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx)

	r := &Result{Days: dates.DaysBetween(t.Start, t.End)}
	days := decimal.NewFromInt(int64(r.Days))
	r.OptionBudget = OptionBudget(t.Principal, t.BaseRate, t.FixedRate, r.Days)

	sv, err := ValueSpread(ctx, term, t.Spread, t.Start)
	if err != nil {
		return nil, err
	}
	if !sv.Value.IsPositive() {
		return nil, types.NewValidationError("spread", sv.Value, "spread premium must be positive", nil)
	}
	r.Type, r.SpreadValue, r.Units = sv.Type, sv.Value, sv.Units
	r.Spreads = r.OptionBudget.Div(sv.Value)

	if r.IndexStart, err = t.close(ctx, term, t.Index, t.Start); err != nil {
		return nil, err
	}
	assetStart, err := t.close(ctx, term, t.Asset, t.Start)
	if err != nil {
		return nil, err
	}
	if !assetStart.IsPositive() || !r.IndexStart.IsPositive() {
		return nil, types.NewValidationError("close", assetStart, "closes must be positive", nil)
	}

	indexLower := r.IndexStart.Mul(sv.Lower).Div(assetStart)
	indexUpper := r.IndexStart.Mul(sv.Upper).Div(assetStart)
	width := indexUpper.Sub(indexLower)
	if !width.IsPositive() {
		return nil, types.NewValidationError("spread", width, "spread strikes must differ", nil)
	}

	if sv.Type == Bull {
		r.FloorPoint, r.CapPoint = indexLower, indexUpper
	} else {
		r.FloorPoint, r.CapPoint = indexUpper, indexLower
	}
	r.FloorRatio = r.FloorPoint.Div(r.IndexStart)
	r.CapRatio = r.CapPoint.Div(r.IndexStart)

	maxPayout := sv.Upper.Sub(sv.Lower).Mul(sv.Units).Mul(r.Spreads)
	maxReturn := maxPayout.Div(t.Principal).Mul(daysInYear).Div(days)
	r.FloorReturn = t.BaseRate
	r.CapReturn = maxReturn.Add(t.BaseRate)
	r.Participation = maxReturn.Div(width.Div(r.IndexStart))

	if r.IndexEnd, err = t.close(ctx, term, t.Index, t.End); err != nil {
		return nil, err
	}

	// share of the band reached, in the direction the spread pays
	moved := r.IndexEnd.Sub(indexLower)
	if sv.Type == Bear {
		moved = indexUpper.Sub(r.IndexEnd)
	}
	reached := decimal.Min(decimal.Max(moved.Div(width), decimal.Zero), one)
	extra := reached.Mul(maxReturn)
	r.ReturnEnd = extra.Add(t.BaseRate)

	payout := extra.Mul(t.Principal).Mul(days).Div(daysInYear)
	endValue, err := ValueSpread(ctx, term, t.Spread, t.End)
	if err != nil {
		return nil, err
	}
	r.HedgeIncome = r.Spreads.Mul(endValue.Value).Sub(payout)

	logger.Info().
		Str("type", string(r.Type)).
		Int("days", r.Days).
		Str("option_budget", r.OptionBudget.StringFixed(2)).
		Str("hedge_income", r.HedgeIncome.StringFixed(2)).
		Msg("Certificate evaluated")

	return r, nil
}
