package marketdata

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/sheet"
	"deskquant/derivs/internal/types"
)

// RepoSet selects which Shanghai pledged repo tenors feed the short end.
type RepoSet int

const (
	// FullRepoSet is 1D to 91D.
	FullRepoSet RepoSet = iota
	// OneMonthRepoSet keeps the liquid tenors up to 28D.
	OneMonthRepoSet
)

func ParseRepoSet(s string) (RepoSet, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full":
		return FullRepoSet, nil
	case "1m", "onemonth", "one-month":
		return OneMonthRepoSet, nil
	}
	return FullRepoSet, types.NewValidationError("repo set", s, "expected full or 1m", nil)
}

type repoContract struct {
	symbol string
	days   int
}

var shanghaiRepos = []repoContract{
	{"204001.SH", 1},
	{"204002.SH", 2},
	{"204003.SH", 3},
	{"204004.SH", 4},
	{"204007.SH", 7},
	{"204014.SH", 14},
	{"204028.SH", 28},
	{"204091.SH", 91},
}

func (s RepoSet) contracts() []repoContract {
	if s != OneMonthRepoSet {
		return shanghaiRepos
	}
	var out []repoContract
	for _, c := range shanghaiRepos {
		switch c.days {
		case 1, 2, 7, 14, 28:
			out = append(out, c)
		}
	}
	return out
}

// ShanghaiRepo pulls the closing rates of the Shanghai pledged repo
// contracts on date.
func ShanghaiRepo(ctx context.Context, term Terminal, date time.Time, set RepoSet) ([]types.RepoQuote, error) {
	contracts := set.contracts()
	symbols := make([]string, len(contracts))
	for i, c := range contracts {
		symbols[i] = c.symbol
	}

	m, err := term.Snapshot(ctx, symbols, []string{"close"}, Daily(date))
	if err != nil {
		return nil, fmt.Errorf("repo snapshot: %w", err)
	}

	quotes := make([]types.RepoQuote, 0, len(contracts))
	for _, c := range contracts {
		rate, err := m.Float(c.symbol, "close")
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, types.RepoQuote{Symbol: c.symbol, Days: c.days, Rate: rate})
	}
	return quotes, nil
}

// BondTermFields are the static fields pulled for each benchmark bond.
var BondTermFields = []string{"couponrate", "carrydate", "maturitydate", "interestfrequency", "actualbenchmark"}

// BondTerms pulls the static terms of the bonds. A blank payment frequency
// is a zero-coupon bond, and an unrecognised day count basis falls back to
// ACT/ACT.
func BondTerms(ctx context.Context, term Terminal, codes []string, date time.Time) ([]types.BondTerms, error) {
	m, err := term.Snapshot(ctx, codes, BondTermFields, Daily(date))
	if err != nil {
		return nil, fmt.Errorf("bond terms snapshot: %w", err)
	}

	logger := logging.FromContext(ctx)
	out := make([]types.BondTerms, 0, len(codes))
	for _, code := range codes {
		t := types.BondTerms{Code: code}

		if t.IssueDate, err = m.Date(code, "carrydate"); err != nil {
			return nil, err
		}
		if t.MaturityDate, err = m.Date(code, "maturitydate"); err != nil {
			return nil, err
		}

		freq, _ := m.Value(code, "interestfrequency")
		if freq == "" {
			t.Frequency = types.ZeroCoupon
		} else {
			n, err := m.Float(code, "interestfrequency")
			if err != nil {
				return nil, err
			}
			if t.Frequency, err = types.ParseFrequency(int(math.Round(n))); err != nil {
				return nil, fmt.Errorf("%s: %w", code, err)
			}
		}

		if t.Frequency != types.ZeroCoupon {
			if t.Coupon, err = m.Float(code, "couponrate"); err != nil {
				return nil, err
			}
		}

		basis, _ := m.Value(code, "actualbenchmark")
		dc, err := dates.ParseDayCount(basis)
		if err != nil {
			logger.Warn().Str("code", code).Str("basis", basis).Msg("Unknown day count basis, using ACT/ACT")
			dc = dates.ActActISDA
		}
		t.DayCount = string(dc)

		out = append(out, t)
	}
	return out, nil
}

// Benchmarks joins the daily quotes with their static terms.
func Benchmarks(ctx context.Context, term Terminal, quotes []sheet.DailyQuote, date time.Time) ([]types.BenchmarkBond, error) {
	if len(quotes) == 0 {
		return nil, types.ErrEmptyBasket
	}

	codes := make([]string, len(quotes))
	for i, q := range quotes {
		codes[i] = q.Code
	}

	terms, err := BondTerms(ctx, term, codes, date)
	if err != nil {
		return nil, err
	}

	out := make([]types.BenchmarkBond, len(quotes))
	for i, q := range quotes {
		out[i] = types.BenchmarkBond{
			BondTerms:  terms[i],
			DirtyPrice: q.DirtyClose,
			Volume:     q.Volume,
		}
	}
	return out, nil
}
