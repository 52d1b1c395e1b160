package marketdata

import (
	"context"
	"errors"
	"time"

	"deskquant/derivs/internal/bond"
	"deskquant/derivs/internal/types"
)

var ErrInvalidRow = errors.New("invalid row")

type CollectedGilt struct {
	Gilt *bond.Gilt
	Err  error
}

// SetError keeps the first error seen for the row.
func (c *CollectedGilt) SetError(err error) {
	if c.Err == nil {
		c.Err = err
	}
}

type CollectedBonds struct {
	Bonds          []*bond.Gilt
	Failures       []*CollectedGilt
	Source         string
	SettlementDate time.Time
}

func NewCollectedBonds(source string, date time.Time) *CollectedBonds {
	return &CollectedBonds{
		Source:         source,
		SettlementDate: date,
		Bonds:          []*bond.Gilt{},
		Failures:       []*CollectedGilt{},
	}
}

func (c *CollectedBonds) AddBond(cg *CollectedGilt) {
	if cg.Err == nil {
		c.Bonds = append(c.Bonds, cg.Gilt)
	} else {
		c.Failures = append(c.Failures, cg)
	}
}

// Benchmarks turns the collected gilts into a calibration basket.
func (c *CollectedBonds) Benchmarks() ([]types.BenchmarkBond, error) {
	if len(c.Bonds) == 0 {
		return nil, types.ErrEmptyBasket
	}
	out := make([]types.BenchmarkBond, len(c.Bonds))
	for i, g := range c.Bonds {
		out[i] = g.Benchmark()
	}
	return out, nil
}

// Collector pulls one day of gilt prices from a public source.
type Collector interface {
	Collect(ctx context.Context, date time.Time) (*CollectedBonds, error)
	Source() string
}

// NewCollector looks a collector up by source name.
func NewCollector(source string) (Collector, error) {
	switch source {
	case SourceDMO, "dmo", "":
		return NewDMOCollector(), nil
	case SourceDividendData, "dividenddata":
		return NewDividendDataCollector(), nil
	}
	return nil, types.NewValidationError("source", source, "expected DMO or DividendData", nil)
}
