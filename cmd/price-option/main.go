package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"deskquant/derivs/internal/cli"
	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/pricing"
	"deskquant/derivs/internal/types"
)

func main() {
	app := cli.NewApp("price-option")
	cmd := app.Command("Price a vanilla or average rate option and its greeks", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		return run(app, cmd)
	})

	f := cmd.Flags()
	f.String("type", "call", "call or put (认购/认沽)")
	f.String("style", "european", "european or american")
	f.Float64("strike", 0, "strike price")
	f.String("expiry", "", "exercise date, YYYY-MM-DD")
	f.String("date", "", "evaluation date, YYYY-MM-DD (default: today)")
	f.String("calendar", "", "business day calendar: china, uk, weekends")
	f.Float64("spot", 0, "underlying price")
	f.Float64("rate", 0, "risk free rate, continuously compounded decimal")
	f.Float64("dividend", 0, "dividend yield, continuously compounded decimal")
	f.Float64("vol", 0, "annualised volatility")
	f.StringSlice("cash-dividend", nil, "discrete dividend as YYYY-MM-DD:amount, repeatable")
	f.String("engine", "analytic", "analytic, binomial, fd or mc")
	f.Uint64("seed", 1, "seed for simulation engines")
	f.String("asian", "", "price an average rate option: geometric or arithmetic")
	f.StringSlice("fixing", nil, "average fixing date (default: every business day to expiry)")
	f.Float64("price", 0, "market price to back out implied volatility from")
	_ = cmd.MarkFlagRequired("strike")
	_ = cmd.MarkFlagRequired("expiry")
	_ = cmd.MarkFlagRequired("spot")

	app.Bind(cmd, "curve.calendar", "calendar")

	app.Execute(cmd)
}

func run(app *cli.App, cmd *cobra.Command) error {
	f := cmd.Flags()

	opt, err := readOption(cmd)
	if err != nil {
		return err
	}
	mkt, err := readMarket(cmd)
	if err != nil {
		return err
	}

	date, err := cli.Date(cmd, "date")
	if err != nil {
		return err
	}
	cal, err := app.Config.Curve.CalendarValue()
	if err != nil {
		return err
	}
	eval := dates.NewEvalContext(date, cal)

	seed, _ := f.GetUint64("seed")
	asian, _ := f.GetString("asian")

	var (
		res    pricing.Result
		engine string
	)
	if asian != "" {
		fixings, err := readFixings(cmd, eval, opt.Expiry)
		if err != nil {
			return err
		}
		var e pricing.AsianEngine
		switch strings.ToLower(asian) {
		case "geometric":
			e = pricing.AsianGeometric{}
		case "arithmetic":
			e = pricing.AsianArithmeticMC{Seed: seed}
		default:
			return types.NewValidationError("asian", asian, "expected geometric or arithmetic", nil)
		}
		engine = e.Name()
		if res, err = e.PriceAsian(pricing.AsianOption{Option: opt, Fixings: fixings}, mkt, eval); err != nil {
			return err
		}
	} else {
		name, _ := f.GetString("engine")
		e, err := pricing.NewEngine(name, seed)
		if err != nil {
			return err
		}
		engine = e.Name()
		if res, err = e.Price(opt, mkt, eval); err != nil {
			return err
		}
	}

	var implied *float64
	if price, _ := f.GetFloat64("price"); price > 0 {
		vol, err := pricing.ImpliedVol(price, opt, mkt, eval)
		if err != nil {
			return err
		}
		implied = &vol
	}

	out := cli.NewOutput(cmd)
	if out.IsJSON() {
		return out.JSON(struct {
			Engine     string         `json:"engine"`
			Result     pricing.Result `json:"result"`
			ImpliedVol *float64       `json:"implied_vol,omitempty"`
		}{engine, res, implied})
	}

	out.Bold("%s %s %s, strike %s, expiry %s (%s)", opt.Style, opt.Type, label(asian), cli.F(opt.Strike, 4), opt.Expiry.Format("2006-01-02"), engine)
	t := cli.NewTable(out, "Price", "Delta", "Gamma", "Vega", "Theta", "Rho", "Std Err")
	t.AddRow(cli.F(res.Price, 6), cli.F(res.Delta, 6), cli.F(res.Gamma, 6), cli.F(res.Vega, 6), cli.F(res.Theta, 6), cli.F(res.Rho, 6), cli.F(res.StdErr, 6))
	t.Render()
	if implied != nil {
		out.Printf("Implied volatility: %s%%\n", cli.F(*implied*100, 4))
	}
	return nil
}

func label(asian string) string {
	if asian == "" {
		return "option"
	}
	return asian + " average option"
}

func readOption(cmd *cobra.Command) (pricing.Option, error) {
	f := cmd.Flags()
	var opt pricing.Option
	var err error

	s, _ := f.GetString("type")
	if opt.Type, err = pricing.ParseOptionType(s); err != nil {
		return opt, err
	}
	s, _ = f.GetString("style")
	if opt.Style, err = pricing.ParseStyle(s); err != nil {
		return opt, err
	}
	opt.Strike, _ = f.GetFloat64("strike")
	s, _ = f.GetString("expiry")
	if opt.Expiry, err = marketdata.ParseDate(s); err != nil {
		return opt, fmt.Errorf("invalid expiry: %w", err)
	}
	return opt, nil
}

func readMarket(cmd *cobra.Command) (pricing.Market, error) {
	f := cmd.Flags()
	var mkt pricing.Market
	mkt.Spot, _ = f.GetFloat64("spot")
	mkt.Rate, _ = f.GetFloat64("rate")
	mkt.Dividend, _ = f.GetFloat64("dividend")
	mkt.Vol, _ = f.GetFloat64("vol")

	cash, _ := f.GetStringSlice("cash-dividend")
	for _, c := range cash {
		d, a, ok := strings.Cut(c, ":")
		if !ok {
			return mkt, types.NewValidationError("cash-dividend", c, "expected YYYY-MM-DD:amount", nil)
		}
		date, err := marketdata.ParseDate(d)
		if err != nil {
			return mkt, err
		}
		amount, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return mkt, types.NewValidationError("cash-dividend", c, "invalid amount", err)
		}
		mkt.Dividends = append(mkt.Dividends, pricing.CashDividend{Date: date, Amount: amount})
	}
	return mkt, nil
}

// readFixings parses --fixing or defaults to every business day after the
// evaluation date up to expiry.
func readFixings(cmd *cobra.Command, eval dates.EvalContext, expiry time.Time) ([]time.Time, error) {
	given, _ := cmd.Flags().GetStringSlice("fixing")
	if len(given) == 0 {
		var out []time.Time
		for _, d := range eval.Calendar.BusinessDays(eval.Date.AddDate(0, 0, 1), expiry) {
			if !d.After(expiry) {
				out = append(out, d)
			}
		}
		return out, nil
	}

	out := make([]time.Time, len(given))
	for i, s := range given {
		d, err := marketdata.ParseDate(s)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}
