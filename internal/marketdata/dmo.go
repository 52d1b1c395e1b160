package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"deskquant/derivs/internal/bond"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/sheet"
	"deskquant/derivs/internal/types"
)

var SourceDMO = "DMO"

// DMOCollector downloads the D10B gilt price report from the Debt
// Management Office.
type DMOCollector struct {
	BaseURL string
	Client  *http.Client
}

func NewDMOCollector() *DMOCollector {
	return &DMOCollector{
		BaseURL: "https://www.dmo.gov.uk/umbraco/surface/DataExport/GetDataExport",
		Client:  &http.Client{Timeout: time.Minute},
	}
}

func (c *DMOCollector) Source() string {
	return SourceDMO
}

func (c *DMOCollector) reportURL(date time.Time) string {
	params := fmt.Sprintf("&Trade Date=%02d-%02d-%04d", date.Day(), date.Month(), date.Year())
	return c.BaseURL + "?reportCode=D10B&exportFormatValue=xls&parameters=" + url.QueryEscape(params)
}

func (c *DMOCollector) Collect(ctx context.Context, date time.Time) (collected *CollectedBonds, err error) {
	logger := logging.FromContext(ctx)
	start := time.Now()
	defer func() {
		n := 0
		if collected != nil {
			n = len(collected.Bonds)
		}
		logging.LogDataPull(logger, SourceDMO, n, time.Since(start), err)
	}()

	reportURL := c.reportURL(date)
	logger.Info().Str("url", reportURL).Msg("Fetching DMO report")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reportURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get data: http %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "gilt-*.xls")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, resp.Body)
	tmp.Close()
	if err != nil {
		return nil, err
	}
	logger.Debug().Int64("bytes", size).Str("file", tmp.Name()).Msg("Downloaded DMO report")

	wb, err := sheet.Open(tmp.Name())
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	names, err := wb.Sheets()
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for _, name := range names {
		r, err := wb.Rows(name)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r...)
	}

	return c.parseRows(date, rows)
}

func (c *DMOCollector) parseRows(date time.Time, rows [][]string) (*CollectedBonds, error) {
	collected := NewCollectedBonds(SourceDMO, date)
	parsed := 0
	for _, row := range rows {
		cg, err := c.parseRow(date, row)
		if err == nil {
			collected.AddBond(cg)
			parsed++
		}
	}

	if parsed == 0 {
		return nil, types.ErrDataUnavailable
	}
	return collected, nil
}

// parseRow reads ISIN, description, clean price, dirty price and maturity
// from a D10B row. Rows that are not conventional gilts are skipped with an
// error; rows with bad values are returned with Err set.
func (c *DMOCollector) parseRow(date time.Time, row []string) (*CollectedGilt, error) {
	isin := sheet.Cell(row, 0)
	if !strings.HasPrefix(isin, "GB") {
		return nil, ErrInvalidRow
	}

	g := bond.NewUKGilt(SourceDMO, date)
	g.ISIN = isin
	g.Desc = sheet.Cell(row, 1)

	if strings.Contains(strings.ToLower(g.Desc), "index-linked") {
		return nil, types.ErrUnsupportedBond
	}

	cg := &CollectedGilt{Gilt: g}

	if coupon, err := parseCouponPercentage(g.Desc); err == nil {
		g.Coupon = coupon
	} else {
		cg.SetError(types.ErrInvalidCoupon)
	}

	if v, err := strconv.ParseFloat(sheet.Cell(row, 2), 64); err == nil {
		g.CleanPrice = v
	} else {
		cg.SetError(types.ErrInvalidCleanPrice)
	}

	if v, err := strconv.ParseFloat(sheet.Cell(row, 3), 64); err == nil {
		g.DirtyPrice = v
	} else {
		cg.SetError(types.ErrInvalidDirtyPrice)
	}

	if ts, err := time.Parse("02-Jan-2006", sheet.Cell(row, 7)); err == nil {
		g.MaturityDate = ts
	} else {
		cg.SetError(types.ErrInvalidMaturityDate)
	}

	if cg.Err == nil {
		cg.Err = bond.CompleteGilt(g)
	}

	return cg, nil
}

var couponPattern = regexp.MustCompile(`^(\d+(?:\s+\d+/\d+)?|\d+/\d+|\d[¼½¾])%`)

var vulgarFractions = map[string]float64{"¼": 0.25, "½": 0.5, "¾": 0.75}

// parseCouponPercentage reads the coupon from a gilt description such as
//
//	0 5/8% Treasury Gilt 2025
//	2% Treasury Gilt 2025
//	3½% Treasury Gilt 2025
func parseCouponPercentage(desc string) (float64, error) {
	match := couponPattern.FindStringSubmatch(desc)
	if len(match) < 2 {
		return 0, types.ErrInvalidCoupon
	}
	m := match[1]

	for glyph, frac := range vulgarFractions {
		if whole, ok := strings.CutSuffix(m, glyph); ok {
			n, err := strconv.Atoi(whole)
			if err != nil {
				return 0, types.ErrInvalidCoupon
			}
			return float64(n) + frac, nil
		}
	}

	total := 0.0
	for _, part := range strings.Fields(m) {
		num, den, isFraction := strings.Cut(part, "/")
		if !isFraction {
			n, err := strconv.Atoi(part)
			if err != nil {
				return 0, types.ErrInvalidCoupon
			}
			total += float64(n)
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, types.ErrInvalidCoupon
		}
		d, err := strconv.Atoi(den)
		if err != nil || d == 0 {
			return 0, types.ErrInvalidCoupon
		}
		total += float64(n) / float64(d)
	}
	return total, nil
}
