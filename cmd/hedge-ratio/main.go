package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"deskquant/derivs/internal/cli"
	"deskquant/derivs/internal/hedge"
	"deskquant/derivs/internal/logging"
)

func main() {
	app := cli.NewApp("hedge-ratio")
	cmd := app.Command("Size a stock index futures hedge for a stock portfolio", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		return run(ctx, app, cmd)
	})

	f := cmd.Flags()
	f.String("portfolio", "", "portfolio workbook with a 投资组合 sheet of code and quantity")
	f.String("terminal", "", "terminal snapshot workbook")
	f.String("start", "", "hedge start date, YYYY-MM-DD")
	f.String("end", "", "hedge end date, YYYY-MM-DD")
	f.String("base", "", "price adjustment base date (default: start)")
	f.String("ratio-start", "", "first date of the regression sample, YYYY-MM-DD")
	f.String("ratio-end", "", "last date of the regression sample (default: start)")
	f.String("future-index", "IF", "futures product: IF, IH, IC or IM")
	f.String("future", "", "contract for the premium/discount, e.g. IF1701.CFE (default: main contract)")
	_ = cmd.MarkFlagRequired("portfolio")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	_ = cmd.MarkFlagRequired("ratio-start")

	app.Bind(cmd, "terminal.workbook", "terminal")

	app.Execute(cmd)
}

func run(ctx context.Context, app *cli.App, cmd *cobra.Command) error {
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
	base, ratioEnd := start, start
	if s, _ := f.GetString("base"); s != "" {
		if base, err = cli.Date(cmd, "base"); err != nil {
			return err
		}
	}
	if s, _ := f.GetString("ratio-end"); s != "" {
		if ratioEnd, err = cli.Date(cmd, "ratio-end"); err != nil {
			return err
		}
	}
	ratioStart, err := cli.Date(cmd, "ratio-start")
	if err != nil {
		return err
	}

	prefix, _ := f.GetString("future-index")
	prefix = strings.ToUpper(prefix)
	future, _ := f.GetString("future")
	if future == "" {
		future = hedge.ContinuousContract(prefix)
	}

	path, _ := f.GetString("portfolio")
	portfolio, err := hedge.OpenPortfolio(path)
	if err != nil {
		return err
	}
	logger.Info().Int("holdings", len(portfolio)).Msg("Portfolio loaded")

	term, err := app.Terminal()
	if err != nil {
		return err
	}

	pl, err := hedge.PortfolioPL(ctx, term, portfolio, start, end, base)
	if err != nil {
		return fmt.Errorf("portfolio P&L: %w", err)
	}
	basis, err := hedge.PremiumDiscount(ctx, term, future, base)
	if err != nil {
		return fmt.Errorf("premium/discount: %w", err)
	}
	ratio, err := hedge.OptimalContracts(ctx, term, portfolio, prefix, ratioStart, ratioEnd, base)
	if err != nil {
		return fmt.Errorf("optimal contracts: %w", err)
	}

	out := cli.NewOutput(cmd)
	if out.IsJSON() {
		return out.JSON(struct {
			PL    hedge.PL     `json:"pl"`
			Basis *hedge.Basis `json:"basis"`
			Ratio *hedge.Ratio `json:"ratio"`
		}{pl, basis, ratio})
	}

	out.Bold("Portfolio %s to %s (prices adjusted to %s)", start.Format("2006-01-02"), end.Format("2006-01-02"), base.Format("2006-01-02"))
	out.KeyValues([][2]string{
		{"Start value", cli.F(pl.Start, 2)},
		{"End value", cli.F(pl.End, 2)},
		{"P&L", out.PnL(pl.Change(), 2)},
	})

	out.Println()
	out.Bold("Basis of %s against %s on %s", basis.Future, basis.Index, base.Format("2006-01-02"))
	out.KeyValues([][2]string{
		{"Future close", cli.F(basis.FutureClose, 2)},
		{"Index close", cli.F(basis.IndexClose, 2)},
		{"Discount ratio", cli.F(basis.Ratio*100, 4) + "%"},
	})

	out.Println()
	out.Bold("Optimal %s contracts from %s to %s", prefix, ratioStart.Format("2006-01-02"), ratioEnd.Format("2006-01-02"))
	out.KeyValues([][2]string{
		{"Contracts", cli.F(ratio.Contracts, 4)},
		{"Intercept", cli.F(ratio.Intercept, 2)},
		{"R squared", cli.F(ratio.RSquared, 4)},
		{"Observations", fmt.Sprint(ratio.Observations)},
	})
	return nil
}
