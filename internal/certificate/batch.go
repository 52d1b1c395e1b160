package certificate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/sheet"
	"deskquant/derivs/internal/types"
)

// BatchSheet is the workbook sheet with one certificate per row.
const BatchSheet = "测算使用"

// Batch sheet column headers.
const (
	ColStart     = "产品起始日"
	ColEnd       = "产品到期日"
	ColIndex     = "挂钩标的指数"
	ColAsset     = "标的指数对应可投资资产资产"
	ColBaseRate  = "产品保底利率"
	ColBuy       = "价差组合买入期权（b)"
	ColSell      = "价差组合卖出期权（s)"
	ColPrincipal = "本金（元）"
	ColFixedRate = "相同期限固定收益可比利率"
)

var batchColumns = []string{ColStart, ColEnd, ColIndex, ColAsset, ColBaseRate, ColBuy, ColSell, ColPrincipal, ColFixedRate}

// OpenBatch reads the certificate terms from the workbook at path.
func OpenBatch(path string) ([]Terms, error) {
	wb, err := sheet.Open(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	rows, err := wb.Rows(BatchSheet)
	if err != nil {
		return nil, err
	}
	return ReadBatch(rows)
}

// ReadBatch parses the batch sheet. Rows with an empty cell are skipped.
func ReadBatch(rows [][]string) ([]Terms, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty batch sheet", types.ErrMissingField)
	}
	h := sheet.Header(rows)
	for _, c := range batchColumns {
		if _, ok := h[c]; !ok {
			return nil, fmt.Errorf("%w: batch sheet has no %s column", types.ErrMissingField, c)
		}
	}

	var out []Terms
next:
	for i, row := range rows[1:] {
		for _, c := range batchColumns {
			if sheet.Cell(row, h[c]) == "" {
				continue next
			}
		}

		t, err := readTerms(row, h)
		if err != nil {
			return nil, fmt.Errorf("batch row %d: %w", i+2, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func readTerms(row []string, h map[string]int) (Terms, error) {
	var t Terms
	var err error

	if t.Start, err = marketdata.ParseDate(sheet.Cell(row, h[ColStart])); err != nil {
		return t, err
	}
	if t.End, err = marketdata.ParseDate(sheet.Cell(row, h[ColEnd])); err != nil {
		return t, err
	}
	t.Index = sheet.Cell(row, h[ColIndex])
	t.Asset = sheet.Cell(row, h[ColAsset])
	t.Spread = Spread{Buy: sheet.Cell(row, h[ColBuy]), Sell: sheet.Cell(row, h[ColSell])}

	num := func(col string) (decimal.Decimal, error) {
		v, err := sheet.Float(row, h[col])
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", col, err)
		}
		return decimal.NewFromFloat(v), nil
	}
	if t.BaseRate, err = num(ColBaseRate); err != nil {
		return t, err
	}
	if t.Principal, err = num(ColPrincipal); err != nil {
		return t, err
	}
	if t.FixedRate, err = num(ColFixedRate); err != nil {
		return t, err
	}
	return t, nil
}

// Record is one evaluated certificate for storage.
type Record struct {
	Start         time.Time `parquet:"start"`
	End           time.Time `parquet:"end"`
	Index         string    `parquet:"index"`
	Buy           string    `parquet:"buy"`
	Sell          string    `parquet:"sell"`
	Type          string    `parquet:"type"`
	FloorPoint    float64   `parquet:"floor_point"`
	FloorRatio    float64   `parquet:"floor_ratio"`
	CapPoint      float64   `parquet:"cap_point"`
	CapRatio      float64   `parquet:"cap_ratio"`
	FloorReturn   float64   `parquet:"floor_return"`
	CapReturn     float64   `parquet:"cap_return"`
	Participation float64   `parquet:"participation"`
	IndexEnd      float64   `parquet:"index_end"`
	ReturnEnd     float64   `parquet:"return_end"`
	HedgeIncome   float64   `parquet:"hedge_income"`
	Error         string    `parquet:"error,optional"`
}

// NewRecord flattens a result. r may be nil when err is set.
func NewRecord(t Terms, r *Result, err error) Record {
	rec := Record{
		Start: t.Start,
		End:   t.End,
		Index: t.Index,
		Buy:   t.Spread.Buy,
		Sell:  t.Spread.Sell,
	}
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	rec.Type = string(r.Type)
	rec.FloorPoint = r.FloorPoint.InexactFloat64()
	rec.FloorRatio = r.FloorRatio.InexactFloat64()
	rec.CapPoint = r.CapPoint.InexactFloat64()
	rec.CapRatio = r.CapRatio.InexactFloat64()
	rec.FloorReturn = r.FloorReturn.InexactFloat64()
	rec.CapReturn = r.CapReturn.InexactFloat64()
	rec.Participation = r.Participation.InexactFloat64()
	rec.IndexEnd = r.IndexEnd.InexactFloat64()
	rec.ReturnEnd = r.ReturnEnd.InexactFloat64()
	rec.HedgeIncome = r.HedgeIncome.InexactFloat64()
	return rec
}

// EvaluateBatch evaluates every certificate. A failed row is recorded with
// its error and does not stop the batch.
func EvaluateBatch(ctx context.Context, term marketdata.Terminal, batch []Terms) ([]Record, error) {
	logger := logging.FromContext(ctx)

	out := make([]Record, 0, len(batch))
	for i, t := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := Evaluate(ctx, term, t)
		if err != nil {
			logger.Warn().Err(err).Int("row", i+1).Str("buy", t.Spread.Buy).Msg("Certificate failed")
		}
		out = append(out, NewRecord(t, r, err))
	}
	return out, nil
}
