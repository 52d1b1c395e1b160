// Package marketdata pulls quotes and static data from the market-data
// terminal and from the public gilt price sources.
package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/types"
)

// Options are the per-request flags understood by the terminal.
type Options struct {
	TradeDate time.Time
	// PriceAdj is the price adjustment, U for unadjusted.
	PriceAdj string
	// Cycle is the bar period, D for daily.
	Cycle string
	// AdjDate anchors adjusted prices when PriceAdj is T.
	AdjDate time.Time
}

// Daily is the unadjusted daily request for a trade date.
func Daily(tradeDate time.Time) Options {
	return Options{TradeDate: tradeDate, PriceAdj: "U", Cycle: "D"}
}

// Adjusted asks for prices adjusted to the base date.
func Adjusted(base time.Time) Options {
	return Options{PriceAdj: "T", AdjDate: base}
}

func (o Options) String() string {
	var parts []string
	if !o.TradeDate.IsZero() {
		parts = append(parts, "tradeDate="+o.TradeDate.Format("20060102"))
	}
	if o.PriceAdj != "" {
		parts = append(parts, "priceAdj="+o.PriceAdj)
	}
	if o.Cycle != "" {
		parts = append(parts, "cycle="+o.Cycle)
	}
	if !o.AdjDate.IsZero() {
		parts = append(parts, "adjDate="+o.AdjDate.Format("20060102"))
	}
	return strings.Join(parts, ";")
}

// Observation is one point of a time series.
type Observation struct {
	Date  time.Time
	Value float64
}

// Terminal is the market-data vendor. Calls block and are not retried.
type Terminal interface {
	// Snapshot returns one value per symbol and field.
	Snapshot(ctx context.Context, symbols, fields []string, opts Options) (*Matrix, error)
	// Series returns the observations of one field between from and to
	// inclusive, in date order.
	Series(ctx context.Context, symbol, field string, from, to time.Time, opts Options) ([]Observation, error)
}

// Matrix is a snapshot: Data[i][j] is field j of symbol i, as text.
type Matrix struct {
	Symbols []string
	Fields  []string
	Data    [][]string
}

func (m *Matrix) index(symbol, field string) (int, int, error) {
	row, col := -1, -1
	for i, s := range m.Symbols {
		if s == symbol {
			row = i
			break
		}
	}
	if row < 0 {
		return 0, 0, fmt.Errorf("%w: %s", types.ErrSymbolNotFound, symbol)
	}
	for j, f := range m.Fields {
		if strings.EqualFold(f, field) {
			col = j
			break
		}
	}
	if col < 0 || col >= len(m.Data[row]) {
		return 0, 0, fmt.Errorf("%w: %s.%s", types.ErrMissingField, symbol, field)
	}
	return row, col, nil
}

// Value is the raw text of a cell.
func (m *Matrix) Value(symbol, field string) (string, error) {
	i, j, err := m.index(symbol, field)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(m.Data[i][j]), nil
}

// Float parses a numeric cell. Blank cells are missing, not zero.
func (m *Matrix) Float(symbol, field string) (float64, error) {
	s, err := m.Value(symbol, field)
	if err != nil {
		return 0, err
	}
	if s == "" {
		return 0, fmt.Errorf("%w: %s.%s", types.ErrMissingField, symbol, field)
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %w", symbol, field, err)
	}
	return v, nil
}

// Date parses a date cell.
func (m *Matrix) Date(symbol, field string) (time.Time, error) {
	s, err := m.Value(symbol, field)
	if err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: %s.%s", types.ErrMissingField, symbol, field)
	}
	d, err := ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s.%s: %w", symbol, field, err)
	}
	return d, nil
}

var dateLayouts = []string{"2006-01-02", "20060102", "2006/01/02", "2006/1/2", "01-02-06", "2006-01-02 15:04:05"}

// ParseDate accepts the date layouts found in vendor exports, including
// spreadsheet serial day numbers.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dates.Truncate(t), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 1 && serial < 100_000 {
		return dates.Date(1899, time.December, 30).AddDate(0, 0, int(serial)), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
