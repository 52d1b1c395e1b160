package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/sheet"
	"deskquant/derivs/internal/types"
)

var tradeDate = dates.Date(2019, time.January, 21)

func repoSnapshot() [][]string {
	rows := [][]string{{"code", "close", "date"}}
	for i, c := range shanghaiRepos {
		rows = append(rows, []string{c.symbol, fmt.Sprintf("%.3f", 2.5+0.1*float64(i)), "2019-01-21"})
	}
	// a stale row for the day before
	rows = append(rows, []string{"204001.SH", "9.999", "2019-01-18"})
	return rows
}

func mustTerminal(t *testing.T, snapshot, series [][]string) *SheetTerminal {
	t.Helper()
	term, err := NewSheetTerminal(snapshot, series)
	if err != nil {
		t.Fatalf("NewSheetTerminal() error = %v", err)
	}
	return term
}

func TestShanghaiRepo(t *testing.T) {
	term := mustTerminal(t, repoSnapshot(), nil)

	quotes, err := ShanghaiRepo(context.Background(), term, tradeDate, FullRepoSet)
	if err != nil {
		t.Fatalf("ShanghaiRepo() error = %v", err)
	}
	if len(quotes) != 8 {
		t.Fatalf("got %d quotes, want 8", len(quotes))
	}
	if quotes[0].Symbol != "204001.SH" || quotes[0].Days != 1 || quotes[0].Rate != 2.5 {
		t.Errorf("first quote = %+v", quotes[0])
	}
	if quotes[7].Days != 91 {
		t.Errorf("last quote = %+v, want 91 days", quotes[7])
	}

	quotes, err = ShanghaiRepo(context.Background(), term, tradeDate, OneMonthRepoSet)
	if err != nil {
		t.Fatalf("ShanghaiRepo(1M) error = %v", err)
	}
	var days []int
	for _, q := range quotes {
		days = append(days, q.Days)
	}
	if fmt.Sprint(days) != "[1 2 7 14 28]" {
		t.Errorf("one month tenors = %v", days)
	}
	// each tenor keeps its own rate
	if quotes[2].Symbol != "204007.SH" || !almostEqual(quotes[2].Rate, 2.9) {
		t.Errorf("7D quote = %+v", quotes[2])
	}

	if _, err := ShanghaiRepo(context.Background(), term, tradeDate.AddDate(0, 0, 1), FullRepoSet); !errors.Is(err, types.ErrDataUnavailable) {
		t.Errorf("missing date error = %v, want ErrDataUnavailable", err)
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSheetTerminal_SnapshotErrors(t *testing.T) {
	term := mustTerminal(t, [][]string{{"Code", "Close"}, {"510050.SH", "2.95"}}, nil)
	ctx := context.Background()

	m, err := term.Snapshot(ctx, []string{"510050.SH"}, []string{"close"}, Options{})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if v, err := m.Float("510050.SH", "CLOSE"); err != nil || v != 2.95 {
		t.Errorf("Float() = %v, %v", v, err)
	}

	if _, err := term.Snapshot(ctx, []string{"000300.SH"}, []string{"close"}, Options{}); !errors.Is(err, types.ErrSymbolNotFound) {
		t.Errorf("unknown symbol error = %v", err)
	}
	if _, err := term.Snapshot(ctx, []string{"510050.SH"}, []string{"open"}, Options{}); !errors.Is(err, types.ErrMissingField) {
		t.Errorf("unknown field error = %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := term.Snapshot(cancelled, []string{"510050.SH"}, []string{"close"}, Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled error = %v", err)
	}

	if _, err := NewSheetTerminal([][]string{{"symbol", "close"}}, nil); !errors.Is(err, types.ErrMissingField) {
		t.Errorf("missing code column error = %v", err)
	}
}

func TestSheetTerminal_Series(t *testing.T) {
	series := [][]string{
		{"code", "field", "date", "value"},
		{"000300.SH", "pct_chg", "2018-09-18", "1.5"},
		{"000300.SH", "pct_chg", "2018-09-17", "-0.5"},
		{"000300.SH", "pct_chg", "2018-09-19", "0.25"},
		{"000300.SH", "close", "2018-09-17", "3200"},
	}
	term := mustTerminal(t, nil, series)

	obs, err := term.Series(context.Background(), "000300.SH", "PCT_CHG",
		dates.Date(2018, time.September, 17), dates.Date(2018, time.September, 18), Options{})
	if err != nil {
		t.Fatalf("Series() error = %v", err)
	}
	if len(obs) != 2 || obs[0].Value != -0.5 || obs[1].Value != 1.5 {
		t.Errorf("Series() = %+v", obs)
	}

	_, err = term.Series(context.Background(), "000300.SH", "pct_chg",
		dates.Date(2019, time.January, 1), dates.Date(2019, time.February, 1), Options{})
	if !errors.Is(err, types.ErrDataUnavailable) {
		t.Errorf("empty window error = %v", err)
	}
}

func TestBenchmarks(t *testing.T) {
	snapshot := [][]string{
		{"code", "couponrate", "carrydate", "maturitydate", "interestfrequency", "actualbenchmark"},
		{"019547.SH", "3.29", "2016-10-20", "2026-10-20", "2", "ACT/ACT"},
		{"019593.SH", "", "2018-07-05", "2019-07-05", "", "A/365"},
		{"019611.SH", "2.75", "2019-01-10", "2029-01-10", "1", "weird"},
	}
	term := mustTerminal(t, snapshot, nil)

	quotes := []sheet.DailyQuote{
		{Code: "019547.SH", DirtyClose: 101.2, Volume: 500},
		{Code: "019593.SH", DirtyClose: 98.9, Volume: 20},
		{Code: "019611.SH", DirtyClose: 100.4, Volume: 75},
	}

	got, err := Benchmarks(context.Background(), term, quotes, tradeDate)
	if err != nil {
		t.Fatalf("Benchmarks() error = %v", err)
	}

	if got[0].Frequency != types.Semiannual || got[0].Coupon != 3.29 || got[0].DayCount != string(dates.ActActISDA) {
		t.Errorf("semiannual bond = %+v", got[0])
	}
	if !got[0].IssueDate.Equal(dates.Date(2016, time.October, 20)) || got[0].DirtyPrice != 101.2 || got[0].Volume != 500 {
		t.Errorf("semiannual bond = %+v", got[0])
	}
	if got[1].Frequency != types.ZeroCoupon || got[1].DayCount != string(dates.Act365F) {
		t.Errorf("zero coupon bill = %+v", got[1])
	}
	if got[2].DayCount != string(dates.ActActISDA) {
		t.Errorf("unknown basis should fall back to ACT/ACT, got %q", got[2].DayCount)
	}

	if _, err := Benchmarks(context.Background(), term, nil, tradeDate); !errors.Is(err, types.ErrEmptyBasket) {
		t.Errorf("empty quotes error = %v", err)
	}
}

func TestParseDate(t *testing.T) {
	want := dates.Date(2019, time.January, 21)
	for _, s := range []string{"2019-01-21", "20190121", "2019/01/21", "2019/1/21", "43486"} {
		got, err := ParseDate(s)
		if err != nil || !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParseDate("next week"); err == nil {
		t.Error("expected an error")
	}
}

func TestOptionsString(t *testing.T) {
	if got := Daily(tradeDate).String(); got != "tradeDate=20190121;priceAdj=U;cycle=D" {
		t.Errorf("String() = %q", got)
	}
	if got := Adjusted(tradeDate).String(); got != "priceAdj=T;adjDate=20190121" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseCouponPercentage(t *testing.T) {
	tests := []struct {
		desc string
		want float64
	}{
		{"0 5/8% Treasury Gilt 2025", 0.625},
		{"2% Treasury Gilt 2025", 2},
		{"3½% Treasury Gilt 2025", 3.5},
		{"4¼% Treasury Stock 2027", 4.25},
		{"1/8% Treasury Gilt 2028", 0.125},
		{"4 3/4% Treasury Stock 2030", 4.75},
	}
	for _, tt := range tests {
		got, err := parseCouponPercentage(tt.desc)
		if err != nil || !almostEqual(got, tt.want) {
			t.Errorf("parseCouponPercentage(%q) = %v, %v, want %v", tt.desc, got, err, tt.want)
		}
	}
	if _, err := parseCouponPercentage("Treasury Gilt 2025"); !errors.Is(err, types.ErrInvalidCoupon) {
		t.Errorf("error = %v, want ErrInvalidCoupon", err)
	}
}

func TestDMOCollector_ParseRows(t *testing.T) {
	date := dates.Date(2025, time.June, 2)
	rows := [][]string{
		{"ISIN", "Description", "Clean", "Dirty", "", "", "", "Maturity"},
		{"GB00BL68HJ26", "4¼% Treasury Gilt 2030", "101.50", "102.26", "", "", "", "07-Mar-2030"},
		{"GB00B3MYD345", "0 1/8% Index-linked Treasury Gilt 2029", "99.0", "99.1", "", "", "", "22-Mar-2029"},
		{"GB0009997999", "Treasury Gilt 2031", "98.0", "98.5", "", "", "", "07-Jun-2031"},
	}

	c := NewDMOCollector()
	collected, err := c.parseRows(date, rows)
	if err != nil {
		t.Fatalf("parseRows() error = %v", err)
	}
	if len(collected.Bonds) != 1 || len(collected.Failures) != 1 {
		t.Fatalf("bonds = %d, failures = %d", len(collected.Bonds), len(collected.Failures))
	}
	g := collected.Bonds[0]
	if g.Coupon != 4.25 || g.YieldToMaturity <= 0 || g.CouponPeriods != 10 {
		t.Errorf("gilt = %+v", g)
	}
	if !errors.Is(collected.Failures[0].Err, types.ErrInvalidCoupon) {
		t.Errorf("failure error = %v", collected.Failures[0].Err)
	}

	basket, err := collected.Benchmarks()
	if err != nil {
		t.Fatalf("Benchmarks() error = %v", err)
	}
	if basket[0].Code != "GB00BL68HJ26" || basket[0].Volume != 1 || basket[0].DirtyPrice != 102.26 {
		t.Errorf("benchmark = %+v", basket[0])
	}

	if _, err := c.parseRows(date, rows[:1]); !errors.Is(err, types.ErrDataUnavailable) {
		t.Errorf("header only error = %v", err)
	}
}

const giltPage = `<html><body>
<label>Last updated: 02 Jun 2025</label>
<div id="mainbody"><table>
<tr><th>Ticker</th><th>Name</th><th>Coupon</th><th>Maturity</th><th>Years</th><th>Price</th><th>Yield</th></tr>
<tr><td>TN30</td><td>4¼% Treasury Gilt 2030</td><td>4.25%</td><td>07-Mar-2030</td><td>4.8</td><td>£101.50</td><td>3.90%</td></tr>
<tr><td>T31</td><td>Treasury Gilt 2031</td><td>n/a</td><td>07-Jun-2031</td><td>6.0</td><td>£98.00</td><td>4.10%</td></tr>
</table></div>
</body></html>`

func TestDividendDataCollector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, giltPage)
	}))
	defer srv.Close()

	c := &DividendDataCollector{URL: srv.URL}

	collected, err := c.Collect(context.Background(), dates.Date(2025, time.June, 2))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(collected.Bonds) != 1 || len(collected.Failures) != 1 {
		t.Fatalf("bonds = %d, failures = %d", len(collected.Bonds), len(collected.Failures))
	}
	g := collected.Bonds[0]
	if g.Ticker != "TN30" || g.CleanPrice != 101.5 || g.YieldToMaturity != 3.9 {
		t.Errorf("gilt = %+v", g)
	}
	if g.DirtyPrice <= g.CleanPrice {
		t.Errorf("dirty %v should include accrued interest over clean %v", g.DirtyPrice, g.CleanPrice)
	}

	_, err = c.Collect(context.Background(), dates.Date(2025, time.June, 3))
	if !errors.Is(err, types.ErrDataUnavailable) {
		t.Errorf("stale page error = %v, want ErrDataUnavailable", err)
	}
}

func TestNewCollector(t *testing.T) {
	if c, err := NewCollector("dmo"); err != nil || c.Source() != SourceDMO {
		t.Errorf("NewCollector(dmo) = %v, %v", c, err)
	}
	if c, err := NewCollector("dividenddata"); err != nil || c.Source() != SourceDividendData {
		t.Errorf("NewCollector(dividenddata) = %v, %v", c, err)
	}
	if _, err := NewCollector("bloomberg"); err == nil {
		t.Error("expected an error for an unknown source")
	}
}
