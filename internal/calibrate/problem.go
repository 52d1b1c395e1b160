// Package calibrate fits a discount curve to benchmark bond prices by
// solving for the prices of fictitious zero-coupon bonds on a maturity grid.
package calibrate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"deskquant/derivs/internal/bond"
	"deskquant/derivs/internal/curve"
	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/types"
)

// DefaultGrid is the 3M to 30Y node grid used for treasury curves.
var DefaultGrid = []string{"3M", "6M", "9M", "1Y", "2Y", "3Y", "4Y", "5Y", "7Y", "10Y", "15Y", "20Y", "30Y"}

// DefaultGridPeriods parses DefaultGrid.
func DefaultGridPeriods() []dates.Period {
	grid, _ := dates.ParsePeriods(DefaultGrid)
	return grid
}

// Basket is the set of observed instruments the curve is fitted to.
type Basket struct {
	Repos []types.RepoQuote
	Bonds []types.BenchmarkBond
}

// Options control curve construction and the optimiser.
type Options struct {
	Interpolation curve.Interpolation
	// DayCount measures curve time.
	DayCount dates.DayCount
	// RepoDayCount accrues the deposit quotes.
	RepoDayCount dates.DayCount
	// Compounding of the reported zero rates.
	Compounding curve.Compounding
	// Smoothing penalises the squared second difference of node zero rates.
	// Zero disables it.
	Smoothing         float64
	MaxIterations     int
	GradientThreshold float64
}

func DefaultOptions() Options {
	return Options{
		Interpolation:     curve.LogLinear,
		DayCount:          dates.ActActISDA,
		RepoDayCount:      dates.Act365F,
		Compounding:       curve.Annual,
		MaxIterations:     1_000,
		GradientThreshold: 1e-8,
	}
}

// Node is a fictitious zero-coupon bond on the grid. Price is per 100 face.
type Node struct {
	Tenor dates.Period
	Date  time.Time
	Price float64
}

type benchmark struct {
	code     string
	maturity time.Time
	observed float64
	volume   float64
	weight   float64
	bond     *bond.FixedRateBond
}

// Problem is a calibration set up for one evaluation date. It is immutable
// once built: Curve and Objective are pure functions of the price vector.
type Problem struct {
	eval    dates.EvalContext
	opts    Options
	nodes   []Node
	repos   []curve.Pillar
	dropped []types.RepoQuote
	bonds   []benchmark
}

// NewProblem validates the basket and fixes the node dates.
//
// Benchmarks are sorted by maturity then code so that the objective does not
// depend on input order. Repo quotes maturing on or after the first node are
// dropped since the node owns that part of the curve.
func NewProblem(eval dates.EvalContext, basket Basket, grid []dates.Period, opts Options) (*Problem, error) {
	if len(grid) == 0 {
		return nil, types.ErrEmptyGrid
	}
	if len(basket.Bonds) == 0 {
		return nil, types.ErrEmptyBasket
	}
	if opts.Smoothing < 0 || math.IsNaN(opts.Smoothing) {
		return nil, types.NewValidationError("smoothing", opts.Smoothing, "smoothing must be non-negative", nil)
	}
	if opts.DayCount == "" {
		opts.DayCount = dates.ActActISDA
	}
	if opts.RepoDayCount == "" {
		opts.RepoDayCount = dates.Act365F
	}

	p := &Problem{eval: eval, opts: opts}

	for _, tenor := range grid {
		d := eval.Calendar.Advance(eval.Date, tenor, dates.Following)
		if !d.After(eval.Date) {
			return nil, fmt.Errorf("%w: %s does not fall after %s", types.ErrInvalidTenor, tenor, eval.Date.Format("2006-01-02"))
		}
		p.nodes = append(p.nodes, Node{Tenor: tenor, Date: d, Price: bond.Face})
	}
	sort.SliceStable(p.nodes, func(i, j int) bool {
		return p.nodes[i].Date.Before(p.nodes[j].Date)
	})
	for i := 1; i < len(p.nodes); i++ {
		if p.nodes[i].Date.Equal(p.nodes[i-1].Date) {
			return nil, fmt.Errorf("%w: %s", curve.ErrDuplicatePillar, p.nodes[i].Date.Format("2006-01-02"))
		}
	}

	repos := append([]types.RepoQuote(nil), basket.Repos...)
	sort.SliceStable(repos, func(i, j int) bool {
		return repos[i].Days < repos[j].Days
	})
	first := p.nodes[0].Date
	seen := map[time.Time]bool{}
	for _, r := range repos {
		if r.Days <= 0 {
			return nil, types.NewValidationError("repo.days", r.Days, "repo tenor must be positive", types.ErrInvalidTenor)
		}
		if math.IsNaN(r.Rate) || math.IsInf(r.Rate, 0) {
			return nil, types.NewValidationError("repo.rate", r.Rate, "repo rate must be finite", nil)
		}
		end := eval.Calendar.Advance(eval.Date, dates.Period{N: r.Days, Unit: dates.Days}, dates.Following)
		if !end.Before(first) || seen[end] {
			p.dropped = append(p.dropped, r)
			continue
		}
		seen[end] = true
		p.repos = append(p.repos, curve.Pillar{
			Date: end,
			DF:   curve.DepositDF(r.Rate/100, eval.Date, end, opts.RepoDayCount),
		})
	}

	volumes := make([]float64, 0, len(basket.Bonds))
	for _, bm := range basket.Bonds {
		if !(bm.DirtyPrice > 0) || math.IsInf(bm.DirtyPrice, 0) {
			return nil, types.NewValidationError("dirty_price", bm.DirtyPrice, bm.Code+": dirty price must be positive", types.ErrInvalidDirtyPrice)
		}
		fb, err := bond.New(bm.BondTerms, eval.Calendar, eval.Date)
		if err != nil {
			return nil, err
		}
		if len(fb.Remaining(eval.Date)) == 0 {
			return nil, fmt.Errorf("%s: %w", bm.Code, types.ErrMaturityDateBeforeSettlement)
		}
		p.bonds = append(p.bonds, benchmark{
			code:     bm.Code,
			maturity: fb.Maturity(),
			observed: bm.DirtyPrice,
			volume:   bm.Volume,
			bond:     fb,
		})
	}
	sort.SliceStable(p.bonds, func(i, j int) bool {
		a, b := p.bonds[i], p.bonds[j]
		switch {
		case !a.maturity.Equal(b.maturity):
			return a.maturity.Before(b.maturity)
		case a.code != b.code:
			return a.code < b.code
		case a.observed != b.observed:
			return a.observed < b.observed
		}
		return a.volume < b.volume
	})

	// weights are summed in canonical order too
	for _, b := range p.bonds {
		volumes = append(volumes, b.volume)
	}
	weights, err := Weights(volumes)
	if err != nil {
		return nil, err
	}
	for i := range p.bonds {
		p.bonds[i].weight = weights[i]
	}

	return p, nil
}

func (p *Problem) Eval() dates.EvalContext {
	return p.eval
}

func (p *Problem) Options() Options {
	return p.opts
}

// Nodes returns the grid at the par starting point.
func (p *Problem) Nodes() []Node {
	out := make([]Node, len(p.nodes))
	copy(out, p.nodes)
	return out
}

// DroppedRepos are the repo quotes that overlapped the node grid.
func (p *Problem) DroppedRepos() []types.RepoQuote {
	return p.dropped
}

// Weights returns the benchmark weights in canonical order.
func (p *Problem) Weights() []float64 {
	w := make([]float64, len(p.bonds))
	for i, b := range p.bonds {
		w[i] = b.weight
	}
	return w
}

// InitialPrices is the par starting point, 100 per node.
func (p *Problem) InitialPrices() []float64 {
	x := make([]float64, len(p.nodes))
	for i := range x {
		x[i] = bond.Face
	}
	return x
}

// Curve builds the discount curve implied by a vector of node prices.
func (p *Problem) Curve(prices []float64) (*curve.Discount, error) {
	if len(prices) != len(p.nodes) {
		return nil, fmt.Errorf("calibrate: %d prices for %d nodes", len(prices), len(p.nodes))
	}

	pillars := make([]curve.Pillar, 0, len(p.repos)+len(p.nodes))
	pillars = append(pillars, p.repos...)
	for i, n := range p.nodes {
		pillars = append(pillars, curve.Pillar{Date: n.Date, DF: prices[i] / bond.Face})
	}

	return curve.NewDiscount(p.eval.Date, p.opts.DayCount, pillars, p.opts.Interpolation)
}

// Objective is the volume-weighted sum of squared dirty price errors, plus
// the smoothing penalty when enabled. Prices the curve cannot be built from
// give +Inf.
func (p *Problem) Objective(prices []float64) float64 {
	for _, x := range prices {
		if !(x > 0) || math.IsInf(x, 0) {
			return math.Inf(1)
		}
	}

	c, err := p.Curve(prices)
	if err != nil {
		return math.Inf(1)
	}

	sum := 0.0
	for _, b := range p.bonds {
		diff := b.observed - b.bond.DirtyPrice(c, p.eval.Date)
		sum += b.weight * diff * diff
	}

	if p.opts.Smoothing > 0 {
		sum += p.opts.Smoothing * p.roughness(c)
	}

	return sum
}

// roughness is the sum of squared second differences of the continuously
// compounded node zero rates, in percent.
func (p *Problem) roughness(c *curve.Discount) float64 {
	z := make([]float64, len(p.nodes))
	for i, n := range p.nodes {
		z[i] = 100 * c.ZeroRate(n.Date, curve.Continuous)
	}
	r := 0.0
	for i := 1; i+1 < len(z); i++ {
		d2 := z[i+1] - 2*z[i] + z[i-1]
		r += d2 * d2
	}
	return r
}

// Residual is one benchmark repriced on a fitted curve.
type Residual struct {
	Code     string    `parquet:"code"`
	Maturity time.Time `parquet:"maturity"`
	Weight   float64   `parquet:"weight"`
	Observed float64   `parquet:"observed"`
	Model    float64   `parquet:"model"`
	Error    float64   `parquet:"error"`
}

// Residuals reprices every benchmark on the curve implied by prices.
func (p *Problem) Residuals(prices []float64) ([]Residual, error) {
	c, err := p.Curve(prices)
	if err != nil {
		return nil, err
	}

	out := make([]Residual, 0, len(p.bonds))
	for _, b := range p.bonds {
		model := b.bond.DirtyPrice(c, p.eval.Date)
		out = append(out, Residual{
			Code:     b.code,
			Maturity: b.maturity,
			Weight:   b.weight,
			Observed: b.observed,
			Model:    model,
			Error:    b.observed - model,
		})
	}
	return out, nil
}

// logDropped reports repo quotes that were not used.
func (p *Problem) logDropped(logger zerolog.Logger) {
	for _, r := range p.dropped {
		logger.Info().
			Str("symbol", r.Symbol).
			Int("days", r.Days).
			Msg("Repo quote overlaps the node grid, dropped")
	}
}
