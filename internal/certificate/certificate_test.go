package certificate

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/types"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func f(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

var (
	start = dates.Date(2021, time.September, 24)
	end   = dates.Date(2021, time.October, 25)
)

func testTerminal(t *testing.T) marketdata.Terminal {
	t.Helper()
	snapshot := [][]string{
		{"code", "date", "close", "exe_ratio", "exe_price", "exe_mode"},
		{"000300.SH", "2021-09-24", "4850", "", "", ""},
		{"000300.SH", "2021-10-25", "5000", "", "", ""},
		{"000905.SH", "2021-09-24", "4850", "", "", ""},
		{"000905.SH", "2021-10-25", "4950", "", "", ""},
		{"510300.SH", "2021-09-24", "4.85", "", "", ""},
		// bull call spread
		{"10003600.SH", "2021-09-24", "0.0500", "10000", "4.9", "认购"},
		{"10003604.SH", "2021-09-24", "0.0200", "10000", "5.1", "认购"},
		{"10003600.SH", "2021-10-25", "0.1200", "10000", "4.9", "认购"},
		{"10003604.SH", "2021-10-25", "0.0300", "10000", "5.1", "认购"},
		// bear put spread
		{"10003613.SH", "2021-09-24", "0.0500", "10000", "5.1", "认沽"},
		{"10003609.SH", "2021-09-24", "0.0200", "10000", "4.9", "认沽"},
		{"10003613.SH", "2021-10-25", "0.1000", "10000", "5.1", "认沽"},
		{"10003609.SH", "2021-10-25", "0.0100", "10000", "4.9", "认沽"},
		// bad exercise mode
		{"10009999.SH", "2021-09-24", "0.0500", "10000", "4.9", "其他"},
	}
	term, err := marketdata.NewSheetTerminal(snapshot, nil)
	if err != nil {
		t.Fatalf("NewSheetTerminal() error = %v", err)
	}
	return term
}

func terms(index string, spread Spread) Terms {
	return Terms{
		Start:     start,
		End:       end,
		Index:     index,
		Asset:     "510300.SH",
		BaseRate:  decimal.RequireFromString("0.015"),
		Spread:    spread,
		Principal: decimal.NewFromInt(10_000_000),
		FixedRate: decimal.RequireFromString("0.032"),
	}
}

func TestOptionBudget(t *testing.T) {
	got := OptionBudget(decimal.NewFromInt(10_000_000), decimal.RequireFromString("0.015"), decimal.RequireFromString("0.032"), 31)
	if !almostEqual(f(got), 14399.221840914339, 1e-6) {
		t.Errorf("OptionBudget() = %v", got)
	}

	if !OptionBudget(decimal.NewFromInt(100), decimal.RequireFromString("0.03"), decimal.RequireFromString("0.03"), 90).IsZero() {
		t.Error("equal rates leave nothing for options")
	}
}

func TestEvaluateBull(t *testing.T) {
	r, err := Evaluate(context.Background(), testTerminal(t), terms("000300.SH", Spread{Buy: "10003600.SH", Sell: "10003604.SH"}))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	checks := []struct {
		name      string
		got, want float64
		tol       float64
	}{
		{"days", float64(r.Days), 31, 0},
		{"spread value", f(r.SpreadValue), 300, 1e-12},
		{"spreads", f(r.Spreads), 47.99740613638113, 1e-9},
		{"floor point", f(r.FloorPoint), 4900, 1e-9},
		{"cap point", f(r.CapPoint), 5100, 1e-9},
		{"floor ratio", f(r.FloorRatio), 4900.0 / 4850, 1e-12},
		{"floor return", f(r.FloorReturn), 0.015, 0},
		{"cap return", f(r.CapReturn), 0.1130261499340584 + 0.015, 1e-12},
		{"participation", f(r.Participation), 2.7408841359009166, 1e-10},
		{"index end", f(r.IndexEnd), 5000, 0},
		{"return end", f(r.ReturnEnd), 0.0715130749670292, 1e-12},
		{"hedge income", f(r.HedgeIncome), -4799.740613637943, 1e-6},
	}
	for _, c := range checks {
		if !almostEqual(c.got, c.want, c.tol) {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if r.Type != Bull {
		t.Errorf("type = %s", r.Type)
	}
}

func TestEvaluateBear(t *testing.T) {
	r, err := Evaluate(context.Background(), testTerminal(t), terms("000905.SH", Spread{Buy: "10003613.SH", Sell: "10003609.SH"}))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if r.Type != Bear {
		t.Fatalf("type = %s", r.Type)
	}
	// a bear band is quoted from the upper strike down
	if !almostEqual(f(r.FloorPoint), 5100, 1e-9) || !almostEqual(f(r.CapPoint), 4900, 1e-9) {
		t.Errorf("band = %v to %v", r.FloorPoint, r.CapPoint)
	}

	maxReturn := f(r.CapReturn) - 0.015
	if want := 0.015 + 0.75*maxReturn; !almostEqual(f(r.ReturnEnd), want, 1e-12) {
		t.Errorf("return end = %v, want %v", r.ReturnEnd, want)
	}
}

func TestEvaluateErrors(t *testing.T) {
	term := testTerminal(t)

	_, err := Evaluate(context.Background(), term, terms("000300.SH", Spread{Buy: "10009999.SH", Sell: "10003604.SH"}))
	if !errors.Is(err, types.ErrInvalidOptionType) {
		t.Errorf("expected ErrInvalidOptionType, got %v", err)
	}
	if err != nil && err.Error() != `invalid option type: "其他"` {
		t.Errorf("message = %q", err.Error())
	}

	bad := terms("000300.SH", Spread{Buy: "10003600.SH", Sell: "10003604.SH"})
	bad.End = bad.Start
	var verr *types.ValidationError
	if _, err := Evaluate(context.Background(), term, bad); !errors.As(err, &verr) {
		t.Errorf("expected a ValidationError, got %v", err)
	}

	// selling the dearer leg leaves no premium to buy spreads with
	_, err = Evaluate(context.Background(), term, terms("000300.SH", Spread{Buy: "10003604.SH", Sell: "10003600.SH"}))
	if !errors.As(err, &verr) {
		t.Errorf("expected a ValidationError, got %v", err)
	}
}

func TestBatch(t *testing.T) {
	rows := [][]string{
		{"产品起始日", "产品到期日", "挂钩标的指数", "标的指数对应可投资资产资产", "产品保底利率", "价差组合买入期权（B)", "价差组合卖出期权（S)", "本金（元）", "相同期限固定收益可比利率"},
		{"2021-09-24", "2021-10-25", "000300.SH", "510300.SH", "0.015", "10003600.SH", "10003604.SH", "10,000,000", "0.032"},
		{"2021-09-24", "", "000300.SH", "510300.SH", "0.015", "10003600.SH", "10003604.SH", "10000000", "0.032"},
		{"2021-09-24", "2021-10-25", "000300.SH", "510300.SH", "0.015", "10009999.SH", "10003604.SH", "10000000", "0.032"},
	}

	batch, err := ReadBatch(rows)
	if err != nil {
		t.Fatalf("ReadBatch() error = %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("got %d certificates, want 2", len(batch))
	}
	if !batch[0].Principal.Equal(decimal.NewFromInt(10_000_000)) || !batch[0].End.Equal(end) {
		t.Errorf("terms = %+v", batch[0])
	}

	records, err := EvaluateBatch(context.Background(), testTerminal(t), batch)
	if err != nil {
		t.Fatalf("EvaluateBatch() error = %v", err)
	}
	if records[0].Type != "BULL" || records[0].Error != "" || !almostEqual(records[0].CapPoint, 5100, 1e-9) {
		t.Errorf("record 0 = %+v", records[0])
	}
	if records[1].Error == "" {
		t.Error("record 1 should carry its error")
	}

	if _, err := ReadBatch(rows[:1]); err != nil {
		t.Errorf("header only batch: %v", err)
	}
	if _, err := ReadBatch([][]string{{"产品起始日"}}); !errors.Is(err, types.ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
}
