package marketdata

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"deskquant/derivs/internal/bond"
	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/types"
)

var SourceDividendData = "DividendData"

// DividendDataCollector scrapes the gilt price table from dividenddata.co.uk.
// The page only ever shows the latest close.
type DividendDataCollector struct {
	URL string
}

func NewDividendDataCollector() *DividendDataCollector {
	return &DividendDataCollector{URL: "https://www.dividenddata.co.uk/uk-gilts-prices-yields.py"}
}

func (c *DividendDataCollector) Source() string {
	return SourceDividendData
}

const (
	ddColTicker = iota
	ddColDesc
	ddColCoupon
	ddColMaturityDate
	ddColMaturityDuration
	ddColPrice
	ddColMaturityYield
)

const ddDatePrefix = "Last updated: "

func (c *DividendDataCollector) Collect(ctx context.Context, date time.Time) (collected *CollectedBonds, err error) {
	logger := logging.FromContext(ctx)
	start := time.Now()
	defer func() {
		n := 0
		if collected != nil {
			n = len(collected.Bonds)
		}
		logging.LogDataPull(logger, SourceDividendData, n, time.Since(start), err)
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	x := colly.NewCollector()

	var pageDate time.Time
	x.OnHTML("label", func(e *colly.HTMLElement) {
		if s, ok := strings.CutPrefix(strings.TrimSpace(e.Text), ddDatePrefix); ok {
			pageDate, _ = time.Parse("02 Jan 2006", strings.TrimSpace(s))
		}
	})

	settle := dates.Truncate(date)
	result := NewCollectedBonds(SourceDividendData, settle)

	x.OnHTML("#mainbody tr", func(e *colly.HTMLElement) {
		if cg := c.readGilt(settle, e); cg != nil {
			result.AddBond(cg)
		}
	})

	if err = x.Visit(c.URL); err != nil {
		return nil, err
	}

	// the page is refreshed daily but may still show the previous close
	if pageDate.IsZero() {
		return nil, types.ErrMissingSettlementDate
	}
	if !pageDate.Equal(settle) {
		logger.Warn().Time("page_date", pageDate).Time("date", settle).Msg("Gilt prices are not for the requested date")
		return nil, types.ErrDataUnavailable
	}

	return result, nil
}

// readGilt parses one table row. Header rows without cells are skipped.
func (c *DividendDataCollector) readGilt(settle time.Time, e *colly.HTMLElement) *CollectedGilt {
	if e.DOM.Find("td").Length() == 0 {
		return nil
	}

	g := bond.NewUKGilt(SourceDividendData, settle)
	cg := &CollectedGilt{Gilt: g}

	percent := func(s string) (float64, error) {
		return strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	}

	e.ForEach("td", func(col int, el *colly.HTMLElement) {
		text := strings.TrimSpace(el.Text)
		switch col {
		case ddColTicker:
			g.Ticker = text
			if g.Ticker == "" {
				cg.SetError(types.ErrInvalidTicker)
			}
		case ddColDesc:
			g.Desc = text
			if g.Desc == "" {
				cg.SetError(types.ErrInvalidDesc)
			}
		case ddColCoupon:
			if v, err := percent(text); err == nil {
				g.Coupon = v
			} else {
				cg.SetError(types.ErrInvalidCoupon)
			}
		case ddColMaturityDate:
			if ts, err := time.Parse("02-Jan-2006", text); err == nil {
				g.MaturityDate = ts
			} else {
				cg.SetError(types.ErrInvalidMaturityDate)
			}
		case ddColMaturityDuration:
			// derived from the maturity date
		case ddColPrice:
			s := strings.TrimPrefix(strings.TrimPrefix(text, "Â"), "£")
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				g.CleanPrice = v
			} else {
				cg.SetError(types.ErrInvalidCleanPrice)
			}
		case ddColMaturityYield:
			if v, err := percent(text); err == nil {
				g.YieldToMaturity = v
			} else {
				cg.SetError(types.ErrInvalidYieldToMaturity)
			}
		}
	})

	if cg.Err == nil {
		cg.Err = bond.CompleteGilt(g)
	}
	return cg
}
