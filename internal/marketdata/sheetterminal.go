package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/sheet"
	"deskquant/derivs/internal/types"
)

const (
	SnapshotSheet = "snapshot"
	SeriesSheet   = "series"
	SourceSheet   = "sheet"
)

type snapshotRow struct {
	date   time.Time
	values map[string]string
}

// SheetTerminal serves terminal requests from an exported workbook.
//
// The snapshot sheet has a header row "code, <field>, ..." and optionally a
// "date" column holding the trade date of each row. The series sheet has the
// columns "code, field, date, value".
type SheetTerminal struct {
	snapshot map[string][]snapshotRow
	series   map[string]map[string][]Observation
}

// OpenSheetTerminal loads both sheets of the workbook at path. A missing
// series sheet leaves the terminal with snapshots only.
func OpenSheetTerminal(path string) (*SheetTerminal, error) {
	wb, err := sheet.Open(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	snap, err := wb.Rows(SnapshotSheet)
	if err != nil {
		return nil, err
	}
	series, err := wb.Rows(SeriesSheet)
	if err != nil && !errors.Is(err, sheet.ErrSheetNotFound) {
		return nil, err
	}
	return NewSheetTerminal(snap, series)
}

// NewSheetTerminal builds a terminal from the rows of the two sheets.
func NewSheetTerminal(snapshot, series [][]string) (*SheetTerminal, error) {
	t := &SheetTerminal{
		snapshot: map[string][]snapshotRow{},
		series:   map[string]map[string][]Observation{},
	}

	if len(snapshot) > 0 {
		header := snapshot[0]
		code, ok := sheet.Header(snapshot)["code"]
		if !ok {
			return nil, fmt.Errorf("%w: snapshot sheet has no code column", types.ErrMissingField)
		}
		dateCol, hasDate := sheet.Header(snapshot)["date"]

		for i, row := range snapshot[1:] {
			symbol := sheet.Cell(row, code)
			if symbol == "" {
				continue
			}
			r := snapshotRow{values: map[string]string{}}
			if hasDate {
				d, err := ParseDate(sheet.Cell(row, dateCol))
				if err != nil {
					return nil, fmt.Errorf("snapshot row %d: %w", i+2, err)
				}
				r.date = d
			}
			for j, name := range header {
				name = strings.ToLower(strings.TrimSpace(name))
				if j == code || (hasDate && j == dateCol) || name == "" {
					continue
				}
				r.values[name] = sheet.Cell(row, j)
			}
			t.snapshot[symbol] = append(t.snapshot[symbol], r)
		}
	}

	if len(series) > 0 {
		h := sheet.Header(series)
		for _, col := range []string{"code", "field", "date", "value"} {
			if _, ok := h[col]; !ok {
				return nil, fmt.Errorf("%w: series sheet has no %s column", types.ErrMissingField, col)
			}
		}
		for i, row := range series[1:] {
			symbol := sheet.Cell(row, h["code"])
			if symbol == "" {
				continue
			}
			field := strings.ToLower(sheet.Cell(row, h["field"]))
			d, err := ParseDate(sheet.Cell(row, h["date"]))
			if err != nil {
				return nil, fmt.Errorf("series row %d: %w", i+2, err)
			}
			v, err := sheet.Float(row, h["value"])
			if err != nil {
				return nil, fmt.Errorf("series row %d: %w", i+2, err)
			}
			if t.series[symbol] == nil {
				t.series[symbol] = map[string][]Observation{}
			}
			t.series[symbol][field] = append(t.series[symbol][field], Observation{Date: d, Value: v})
		}
		for _, fields := range t.series {
			for _, obs := range fields {
				sort.SliceStable(obs, func(i, j int) bool {
					return obs[i].Date.Before(obs[j].Date)
				})
			}
		}
	}

	return t, nil
}

// pick chooses the row for the trade date: an exact match first, then an
// undated row. Without a trade date the latest row wins.
func pick(rows []snapshotRow, tradeDate time.Time) (snapshotRow, bool) {
	var undated, latest *snapshotRow
	for i := range rows {
		r := &rows[i]
		if r.date.IsZero() {
			undated = r
			continue
		}
		if !tradeDate.IsZero() && r.date.Equal(tradeDate) {
			return *r, true
		}
		if latest == nil || r.date.After(latest.date) {
			latest = r
		}
	}
	if undated != nil {
		return *undated, true
	}
	if tradeDate.IsZero() && latest != nil {
		return *latest, true
	}
	return snapshotRow{}, false
}

func (t *SheetTerminal) Snapshot(ctx context.Context, symbols, fields []string, opts Options) (m *Matrix, err error) {
	start := time.Now()
	defer func() {
		logging.LogDataPull(logging.FromContext(ctx), SourceSheet, len(symbols), time.Since(start), err)
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	m = &Matrix{Symbols: symbols, Fields: fields, Data: make([][]string, len(symbols))}
	tradeDate := opts.TradeDate
	if !tradeDate.IsZero() {
		tradeDate = dates.Truncate(tradeDate)
	}

	for i, symbol := range symbols {
		rows, ok := t.snapshot[symbol]
		if !ok {
			return nil, fmt.Errorf("%w: %s", types.ErrSymbolNotFound, symbol)
		}
		row, ok := pick(rows, tradeDate)
		if !ok {
			return nil, fmt.Errorf("%w: %s on %s", types.ErrDataUnavailable, symbol, tradeDate.Format("2006-01-02"))
		}
		m.Data[i] = make([]string, len(fields))
		for j, f := range fields {
			v, ok := row.values[strings.ToLower(strings.TrimSpace(f))]
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s", types.ErrMissingField, symbol, f)
			}
			m.Data[i][j] = v
		}
	}
	return m, nil
}

func (t *SheetTerminal) Series(ctx context.Context, symbol, field string, from, to time.Time, opts Options) (out []Observation, err error) {
	start := time.Now()
	defer func() {
		logging.LogDataPull(logging.FromContext(ctx), SourceSheet, 1, time.Since(start), err)
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	fields, ok := t.series[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrSymbolNotFound, symbol)
	}
	obs, ok := fields[strings.ToLower(field)]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", types.ErrMissingField, symbol, field)
	}

	for _, o := range obs {
		if o.Date.Before(from) || o.Date.After(to) {
			continue
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s.%s from %s to %s", types.ErrDataUnavailable, symbol, field,
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return out, nil
}
