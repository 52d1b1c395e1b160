package hedge

import (
	"context"
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/types"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

var (
	day0    = dates.Date(2016, time.December, 12)
	futures = []float64{3300, 3320, 3290, 3350, 3340}
)

func day(i int) time.Time {
	return dates.China.AddBusinessDays(day0, i)
}

func series(code, field string, vals []float64, skip int) [][]string {
	var rows [][]string
	for i, v := range vals {
		if i == skip {
			continue
		}
		rows = append(rows, []string{code, field, day(i).Format("2006-01-02"), strconv.FormatFloat(v, 'f', -1, 64)})
	}
	return rows
}

func scale(v []float64, k float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = v[i] * k
	}
	return out
}

func testTerminal(t *testing.T, skipB int) marketdata.Terminal {
	t.Helper()
	snapshot := [][]string{
		{"code", "date", "close", "contractmultiplier"},
		{"IF1701.CFE", "2016-12-12", "3300", "300"},
		{"IH1701.CFE", "2016-12-12", "2300", "300"},
		{"000300.SH", "2016-12-12", "3330", ""},
		{"000016.SH", "2016-12-12", "2250", ""},
		{"IF.CFE", "2016-12-12", "3300", "300"},
	}
	s := [][]string{{"code", "field", "date", "value"}}
	s = append(s, series("600000.SH", PriceField, scale(futures, 1.0/100), -1)...)
	s = append(s, series("600036.SH", PriceField, scale(futures, 1.0/200), skipB)...)
	s = append(s, series("IF.CFE", "close", futures, -1)...)

	term, err := marketdata.NewSheetTerminal(snapshot, s)
	if err != nil {
		t.Fatalf("NewSheetTerminal() error = %v", err)
	}
	return term
}

var portfolio = Portfolio{{Code: "600000.SH", Quantity: 100}, {Code: "600036.SH", Quantity: 200}}

func TestReadPortfolio(t *testing.T) {
	rows := [][]string{
		{"股票", "数量"},
		{"600000.SH", "100"},
		{"", ""},
		{"600036.SH", "1,000"},
		{"600000.SH", "300"},
	}
	p, err := ReadPortfolio(rows)
	if err != nil {
		t.Fatalf("ReadPortfolio() error = %v", err)
	}
	if len(p) != 2 || p[0] != (Holding{Code: "600000.SH", Quantity: 300}) || p[1] != (Holding{Code: "600036.SH", Quantity: 1000}) {
		t.Errorf("portfolio = %+v", p)
	}
	if codes := p.Codes(); codes[1] != "600036.SH" {
		t.Errorf("Codes() = %v", codes)
	}

	if _, err := ReadPortfolio(rows[:1]); !errors.Is(err, types.ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
	if _, err := ReadPortfolio([][]string{{"h"}, {"600000.SH", "lots"}}); err == nil {
		t.Error("expected an error for a bad quantity")
	}
}

func TestPortfolioPL(t *testing.T) {
	pl, err := PortfolioPL(context.Background(), testTerminal(t, -1), portfolio, day(0), day(4), day(0))
	if err != nil {
		t.Fatalf("PortfolioPL() error = %v", err)
	}
	if !almostEqual(pl.Start, 6600, 1e-9) || !almostEqual(pl.End, 6680, 1e-9) || !almostEqual(pl.Change(), 80, 1e-9) {
		t.Errorf("pl = %+v", pl)
	}
}

func TestPremiumDiscount(t *testing.T) {
	term := testTerminal(t, -1)

	b, err := PremiumDiscount(context.Background(), term, "IF1701.CFE", day0)
	if err != nil {
		t.Fatalf("PremiumDiscount() error = %v", err)
	}
	if b.Index != "000300.SH" || !almostEqual(b.Ratio, 30.0/3330, 1e-12) {
		t.Errorf("basis = %+v", b)
	}

	b, err = PremiumDiscount(context.Background(), term, "IH1701.CFE", day0)
	if err != nil {
		t.Fatalf("PremiumDiscount() error = %v", err)
	}
	if b.Ratio != 0 {
		t.Errorf("a premium should floor at zero, got %v", b.Ratio)
	}

	if _, err := PremiumDiscount(context.Background(), term, "TF1703.CFE", day0); !errors.Is(err, types.ErrSymbolNotFound) {
		t.Errorf("expected ErrSymbolNotFound, got %v", err)
	}
}

func TestOptimalContracts(t *testing.T) {
	r, err := OptimalContracts(context.Background(), testTerminal(t, -1), portfolio, "IF", day(0), day(4), day(0))
	if err != nil {
		t.Fatalf("OptimalContracts() error = %v", err)
	}
	// the portfolio is worth twice the index, one contract 300 times it
	if !almostEqual(r.Contracts, 2.0/300, 1e-12) {
		t.Errorf("contracts = %v, want %v", r.Contracts, 2.0/300)
	}
	if !almostEqual(r.RSquared, 1, 1e-9) || r.Observations != 4 {
		t.Errorf("ratio = %+v", r)
	}
}

func TestOptimalContractsAlignsDates(t *testing.T) {
	r, err := OptimalContracts(context.Background(), testTerminal(t, 2), portfolio, "IF", day(0), day(4), day(0))
	if err != nil {
		t.Fatalf("OptimalContracts() error = %v", err)
	}
	if r.Observations != 3 {
		t.Errorf("observations = %d, want 3", r.Observations)
	}
	if !almostEqual(r.Contracts, 2.0/300, 1e-12) {
		t.Errorf("contracts = %v", r.Contracts)
	}
}
