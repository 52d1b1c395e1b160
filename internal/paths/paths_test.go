package paths

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
	start = dates.Date(2021, time.January, 4)
	end   = dates.Date(2021, time.January, 8)
)

func TestTradingDays(t *testing.T) {
	days, err := TradingDays(dates.Weekends, dates.Date(2021, time.January, 2), dates.Date(2021, time.January, 10))
	if err != nil {
		t.Fatalf("TradingDays() error = %v", err)
	}
	if len(days) != 6 {
		t.Fatalf("got %d days, want 6", len(days))
	}
	if !days[0].Equal(start) || !days[5].Equal(dates.Date(2021, time.January, 11)) {
		t.Errorf("days run %v to %v", days[0], days[5])
	}

	if _, err := TradingDays(dates.Weekends, end, start); err == nil {
		t.Error("expected an error for end before start")
	}
}

func TestFlat(t *testing.T) {
	set, err := Generate(context.Background(), Flat{}, dates.Weekends, start, end, 3)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	r, c := set.Asset.Dims()
	if r != 5 || c != 3 || set.Paths() != 3 {
		t.Fatalf("dims = %d x %d", r, c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if set.Asset.At(i, j) != 1 {
				t.Fatalf("price[%d][%d] = %v", i, j, set.Asset.At(i, j))
			}
		}
	}
	if set.Hedging != set.Asset {
		t.Error("flat paths should hedge with the asset itself")
	}

	if _, err := Generate(context.Background(), Flat{}, dates.Weekends, start, end, 0); err == nil {
		t.Error("expected an error for zero paths")
	}
}

func TestBrownian(t *testing.T) {
	g := Brownian{Drift: 0.05, Vol: 0.3, Seed: 11}
	set, err := Generate(context.Background(), g, dates.Weekends, start, dates.Date(2021, time.December, 31), 200)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	for j := 0; j < set.Paths(); j++ {
		if set.Asset.At(0, j) != 1 {
			t.Fatalf("path %d starts at %v", j, set.Asset.At(0, j))
		}
	}

	again, _ := Generate(context.Background(), g, dates.Weekends, start, dates.Date(2021, time.December, 31), 200)
	rows, _ := set.Asset.Dims()
	if set.Asset.At(rows-1, 7) != again.Asset.At(rows-1, 7) {
		t.Error("same seed should give the same paths")
	}

	// daily log returns have sd vol/sqrt(240)
	var sum, sumSq float64
	n := 0
	for i := 1; i < rows; i++ {
		for j := 0; j < set.Paths(); j++ {
			x := math.Log(set.Asset.At(i, j) / set.Asset.At(i-1, j))
			sum += x
			sumSq += x * x
			n++
		}
	}
	mean := sum / float64(n)
	sd := math.Sqrt(sumSq/float64(n) - mean*mean)
	if !almostEqual(sd, 0.3/math.Sqrt(240), 0.001) {
		t.Errorf("daily sd = %v, want %v", sd, 0.3/math.Sqrt(240))
	}
}

func TestBrownianNoVol(t *testing.T) {
	set, err := Generate(context.Background(), Brownian{Drift: 0.24}, dates.Weekends, start, end, 2)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := set.Asset.At(4, 1); !almostEqual(got, math.Exp(4*0.001), 1e-12) {
		t.Errorf("price = %v, want %v", got, math.Exp(0.004))
	}
}

func seriesRows(asset string, from, to time.Time, pct func(time.Time) float64) [][]string {
	rows := [][]string{{"code", "field", "date", "value"}}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if !dates.Weekends.IsBusinessDay(d) {
			continue
		}
		rows = append(rows, []string{asset, ReturnField, d.Format("2006-01-02"), strconv.FormatFloat(pct(d), 'f', -1, 64)})
	}
	return rows
}

func TestHistoricalChained(t *testing.T) {
	pct := func(d time.Time) float64 {
		switch {
		case d.Before(dates.Date(2020, time.December, 9)):
			return 50
		case d.After(dates.Date(2020, time.December, 14)):
			return 1
		}
		return 2
	}
	term, err := marketdata.NewSheetTerminal(nil, seriesRows("000300.SH", dates.Date(2020, time.December, 1), dates.Date(2020, time.December, 18), pct))
	if err != nil {
		t.Fatalf("NewSheetTerminal() error = %v", err)
	}

	g := Historical{
		Terminal:   term,
		Calendar:   dates.Weekends,
		Asset:      "000300.SH",
		HistoryEnd: dates.Date(2020, time.December, 18),
	}
	set, err := Generate(context.Background(), g, dates.Weekends, start, end, 2)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	// window 1 is 14 to 18 Dec, window 2 is 8 to 14 Dec
	if got, want := set.Asset.At(4, 0), math.Pow(1.01, 4); !almostEqual(got, want, 1e-12) {
		t.Errorf("path 1 ends at %v, want %v", got, want)
	}
	if got, want := set.Asset.At(4, 1), math.Pow(1.02, 4); !almostEqual(got, want, 1e-12) {
		t.Errorf("path 2 ends at %v, want %v", got, want)
	}
	if set.Asset.At(0, 1) != 1 {
		t.Error("the first return of each window is dropped")
	}

	// a third window runs out of data
	if _, err := Generate(context.Background(), g, dates.Weekends, start, end, 4); !errors.Is(err, types.ErrDataUnavailable) {
		t.Errorf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestHistoricalDiffHedging(t *testing.T) {
	rows := seriesRows("000300.SH", dates.Date(2020, time.December, 1), dates.Date(2020, time.December, 18), func(time.Time) float64 { return 1 })
	hedge := seriesRows("000016.SH", dates.Date(2020, time.December, 1), dates.Date(2020, time.December, 18), func(time.Time) float64 { return 2 })
	term, err := marketdata.NewSheetTerminal(nil, append(rows, hedge[1:]...))
	if err != nil {
		t.Fatalf("NewSheetTerminal() error = %v", err)
	}

	g := HistoricalDiffHedging{
		Historical: Historical{
			Terminal:   term,
			Calendar:   dates.Weekends,
			Asset:      "000300.SH",
			HistoryEnd: dates.Date(2020, time.December, 18),
			Sampling:   Weekly,
		},
		HedgingAsset: "000016.SH",
	}
	set, err := Generate(context.Background(), g, dates.Weekends, start, end, 2)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if set.Hedging == set.Asset {
		t.Fatal("hedging paths should be separate")
	}
	if got := set.Hedging.At(4, 1); !almostEqual(got, math.Pow(1.02, 4), 1e-12) {
		t.Errorf("hedging path ends at %v", got)
	}
	if got := set.Asset.At(4, 1); !almostEqual(got, math.Pow(1.01, 4), 1e-12) {
		t.Errorf("asset path ends at %v", got)
	}
}

func TestParseSampling(t *testing.T) {
	for in, want := range map[string]Sampling{"": Chained, "1": Yearly, "monthly": Monthly, "3": Quarterly, "Weekly": Weekly} {
		got, err := ParseSampling(in)
		if err != nil || got != want {
			t.Errorf("ParseSampling(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseSampling("daily"); err == nil {
		t.Error("expected an error")
	}
}
