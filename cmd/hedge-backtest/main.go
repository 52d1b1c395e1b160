package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"deskquant/derivs/internal/backtest"
	"deskquant/derivs/internal/cli"
	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/paths"
	"deskquant/derivs/internal/pricing"
	"deskquant/derivs/internal/store"
	"deskquant/derivs/internal/types"
)

func main() {
	app := cli.NewApp("hedge-backtest")
	cmd := app.Command("Backtest delta hedging a sold European option over generated paths", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		return run(ctx, app, cmd)
	})

	f := cmd.Flags()
	f.String("generator", "brownian", "path generator: flat, brownian, historical or historical-diff")
	f.String("start", "", "first hedging date, YYYY-MM-DD")
	f.String("end", "", "option expiry and last hedging date, YYYY-MM-DD")
	f.String("calendar", "", "trading calendar: china, uk, weekends")
	f.Int("paths", 0, "number of paths")
	f.Uint64("seed", 0, "seed for the brownian generator")
	f.Int("trading-days", 0, "trading days per year for brownian drift and volatility")
	f.Float64("drift", 0, "annualised drift of the brownian generator")
	f.Float64("path-vol", 0.2, "annualised volatility of the brownian generator")
	f.String("asset", "", "terminal code of the asset (historical generators)")
	f.String("hedging-asset", "", "terminal code of the hedging asset (historical-diff)")
	f.String("history-end", "", "last date of the most recent history window, YYYY-MM-DD (default: start)")
	f.String("sampling", "chained", "history window step: chained, yearly, monthly, quarterly, weekly")
	f.String("terminal", "", "terminal snapshot workbook (historical generators)")
	f.String("type", "call", "option type: call or put")
	f.Float64("strike", 1.0, "strike relative to the starting price")
	f.Float64("rate", 0, "risk free rate")
	f.Float64("dividend", 0, "dividend yield")
	f.Float64("vol", 0.2, "pricing volatility")
	f.String("engine", "analytic", "delta engine: analytic, binomial, fd or mc")
	f.Float64("slippage", 0, "slippage as a fraction of traded notional")
	f.Float64("commission", 0, "commission as a fraction of traded notional")
	f.Bool("save", false, "record the summary in the run history")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	app.Bind(cmd, "curve.calendar", "calendar")
	app.Bind(cmd, "backtest.paths", "paths")
	app.Bind(cmd, "backtest.seed", "seed")
	app.Bind(cmd, "backtest.trading_days", "trading-days")
	app.Bind(cmd, "backtest.slippage", "slippage")
	app.Bind(cmd, "backtest.commission", "commission")
	app.Bind(cmd, "terminal.workbook", "terminal")
	app.Bind(cmd, "store.enabled", "save")

	app.Execute(cmd)
}

func run(ctx context.Context, app *cli.App, cmd *cobra.Command) error {
	cfg := app.Config
	logger := logging.FromContext(ctx)
	f := cmd.Flags()

	start, err := cli.Date(cmd, "start")
	if err != nil {
		return err
	}
	end, err := cli.Date(cmd, "end")
	if err != nil {
		return err
	}
	cal, err := cfg.Curve.CalendarValue()
	if err != nil {
		return err
	}

	gen, err := generator(app, cmd, cal, start)
	if err != nil {
		return err
	}
	set, err := paths.Generate(ctx, gen, cal, start, end, cfg.Backtest.Paths)
	if err != nil {
		return err
	}

	typ, _ := f.GetString("type")
	opt := pricing.Option{Style: pricing.European, Expiry: set.Dates[len(set.Dates)-1]}
	if opt.Type, err = pricing.ParseOptionType(typ); err != nil {
		return err
	}
	opt.Strike, _ = f.GetFloat64("strike")

	var mkt pricing.Market
	mkt.Rate, _ = f.GetFloat64("rate")
	mkt.Dividend, _ = f.GetFloat64("dividend")
	mkt.Vol, _ = f.GetFloat64("vol")

	engineName, _ := f.GetString("engine")
	engine, err := pricing.NewEngine(engineName, cfg.Backtest.Seed)
	if err != nil {
		return err
	}
	pricer := backtest.OptionDelta{Option: opt, Market: mkt, Calendar: cal, Engine: engine}
	costs := backtest.Costs{Slippage: cfg.Backtest.Slippage, Commission: cfg.Backtest.Commission}

	logger.Info().
		Str("generator", gen.Name()).
		Int("paths", set.Paths()).
		Int("days", len(set.Dates)).
		Msg("Paths generated")

	out := cli.NewOutput(cmd)
	bar := cli.NewProgress(out, "Hedging", len(set.Dates))
	res, err := backtest.Run(ctx, set, opt, pricer, costs, bar.Update)
	bar.Wait()
	if err != nil {
		return err
	}

	sum := backtest.Summarize(res)

	st, err := app.Store()
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
		rec := &store.BacktestRun{
			Generator: gen.Name(),
			Start:     set.Dates[0],
			End:       opt.Expiry,
			Strike:    opt.Strike,
			Paths:     sum.Paths,
			Mean:      sum.Mean,
			Std:       sum.Std,
			P10:       sum.Percentiles[0],
			P25:       sum.Percentiles[1],
			P50:       sum.Percentiles[2],
			P75:       sum.Percentiles[3],
			P90:       sum.Percentiles[4],
		}
		if err := st.SaveBacktest(ctx, rec); err != nil {
			return err
		}
		logger.Info().Str("backtest_id", rec.RunID).Msg("Backtest recorded")
	}

	if out.IsJSON() {
		return out.JSON(sum)
	}

	out.Bold("Short %s %s strike %s, %s to %s, %d paths (%s)",
		opt.Style, opt.Type, cli.F(opt.Strike, 4),
		set.Dates[0].Format("2006-01-02"), opt.Expiry.Format("2006-01-02"),
		sum.Paths, gen.Name())
	out.KeyValues([][2]string{
		{"Mean P&L", out.PnL(sum.Mean, 6)},
		{"Std P&L", cli.F(sum.Std, 6)},
		{"Mean payoff", cli.F(sum.Payoff, 6)},
	})

	headers := make([]string, len(backtest.Levels))
	cells := make([]string, len(backtest.Levels))
	for i, l := range backtest.Levels {
		headers[i] = fmt.Sprintf("P%.0f", l)
		cells[i] = out.PnL(sum.Percentiles[i], 6)
	}
	t := cli.NewTable(out, headers...)
	t.AddRow(cells...)
	t.Render()
	return nil
}

func generator(app *cli.App, cmd *cobra.Command, cal *dates.Calendar, start time.Time) (paths.Generator, error) {
	f := cmd.Flags()
	cfg := app.Config
	name, _ := f.GetString("generator")

	switch strings.ToLower(name) {
	case "flat":
		return paths.Flat{}, nil
	case "brownian":
		drift, _ := f.GetFloat64("drift")
		vol, _ := f.GetFloat64("path-vol")
		return paths.Brownian{Drift: drift, Vol: vol, TradingDays: cfg.Backtest.TradingDays, Seed: cfg.Backtest.Seed}, nil
	case "historical", "historical-diff":
	default:
		return nil, types.NewValidationError("generator", name, "expected flat, brownian, historical or historical-diff", nil)
	}

	term, err := app.Terminal()
	if err != nil {
		return nil, err
	}
	samplingName, _ := f.GetString("sampling")
	sampling, err := paths.ParseSampling(samplingName)
	if err != nil {
		return nil, err
	}
	asset, _ := f.GetString("asset")
	if asset == "" {
		return nil, fmt.Errorf("--asset is required for the %s generator", name)
	}
	historyEnd := start
	if s, _ := f.GetString("history-end"); s != "" {
		if historyEnd, err = marketdata.ParseDate(s); err != nil {
			return nil, err
		}
	}

	h := paths.Historical{Terminal: term, Calendar: cal, Asset: asset, HistoryEnd: historyEnd, Sampling: sampling}
	if strings.ToLower(name) == "historical" {
		return h, nil
	}

	hedging, _ := f.GetString("hedging-asset")
	if hedging == "" {
		return nil, fmt.Errorf("--hedging-asset is required for the historical-diff generator")
	}
	return paths.HistoricalDiffHedging{Historical: h, HedgingAsset: hedging}, nil
}
