package sheet

import (
	"fmt"
	"math"
)

// QuoteLayout is the column map of a daily bond quote export.
type QuoteLayout struct {
	Code         int
	DirtyClose   int
	Volume       int
	BondType     int
	SpecialTerms int
	RateType     int
	// data rows are [FirstRow, len(rows)-TrailingRows)
	FirstRow     int
	TrailingRows int
}

// DefaultQuoteLayout matches the vendor's daily treasury quote sheet, which
// carries two header rows and two footer rows.
func DefaultQuoteLayout() QuoteLayout {
	return QuoteLayout{
		Code:         0,
		DirtyClose:   3,
		Volume:       4,
		BondType:     22,
		SpecialTerms: 29,
		RateType:     30,
		FirstRow:     2,
		TrailingRows: 2,
	}
}

// QuoteFilter selects rows by bond type and rate type. Rows with any special
// terms are always excluded.
type QuoteFilter struct {
	BondType string
	RateType string
}

func DefaultQuoteFilter() QuoteFilter {
	return QuoteFilter{BondType: "国债", RateType: "固定利率"}
}

// DailyQuote is one kept row of the quote sheet.
type DailyQuote struct {
	Code       string  `parquet:"code"`
	DirtyClose float64 `parquet:"dirty_close"`
	Volume     float64 `parquet:"volume"`
}

// ParseBondDailyQuotes extracts treasury quotes with no special terms and a
// fixed rate. Rows that match the filter but carry an unparsable price or
// volume are reported as errors.
func ParseBondDailyQuotes(rows [][]string, layout QuoteLayout, filter QuoteFilter) ([]DailyQuote, error) {
	var quotes []DailyQuote

	end := len(rows) - layout.TrailingRows
	for i := layout.FirstRow; i < end; i++ {
		row := rows[i]
		if Cell(row, layout.BondType) != filter.BondType ||
			Cell(row, layout.SpecialTerms) != "" ||
			Cell(row, layout.RateType) != filter.RateType {
			continue
		}

		code := Cell(row, layout.Code)
		if code == "" {
			return nil, fmt.Errorf("row %d: empty code", i)
		}
		price, err := Float(row, layout.DirtyClose)
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): dirty close: %w", i, code, err)
		}
		if math.IsNaN(price) || price <= 0 {
			return nil, fmt.Errorf("row %d (%s): dirty close %v is not a price", i, code, price)
		}
		volume, err := Float(row, layout.Volume)
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): volume: %w", i, code, err)
		}

		quotes = append(quotes, DailyQuote{Code: code, DirtyClose: price, Volume: volume})
	}

	return quotes, nil
}
