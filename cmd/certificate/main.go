package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"deskquant/derivs/internal/certificate"
	"deskquant/derivs/internal/cli"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/output"
)

func main() {
	app := cli.NewApp("certificate")
	cmd := app.Command("Analyse a principal protected certificate embedding an option spread", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		return run(ctx, app, cmd)
	})

	f := cmd.Flags()
	f.String("terminal", "", "terminal snapshot workbook")
	f.String("batch", "", "workbook with a 测算使用 sheet of certificates")
	f.String("out", "", "store batch results to a directory or s3://bucket/prefix")
	f.String("profile", "", "AWS profile for s3 output")
	f.String("start", "", "certificate start date, YYYY-MM-DD")
	f.String("end", "", "certificate end date, YYYY-MM-DD")
	f.String("index", "000300.SH", "linked index")
	f.String("asset", "510300.SH", "fund the options are written on")
	f.String("buy", "", "option bought in the spread")
	f.String("sell", "", "option sold in the spread")
	f.String("base-rate", "0", "guaranteed annual rate")
	f.String("principal", "10000000", "principal")
	f.String("fixed-rate", "0", "fixed income rate of the same term")

	app.Bind(cmd, "terminal.workbook", "terminal")
	app.Bind(cmd, "output.destination", "out")
	app.Bind(cmd, "output.profile", "profile")

	app.Execute(cmd)
}

func run(ctx context.Context, app *cli.App, cmd *cobra.Command) error {
	term, err := app.Terminal()
	if err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("batch"); path != "" {
		return runBatch(ctx, app, cmd, term, path)
	}

	t, err := readTerms(cmd)
	if err != nil {
		return err
	}
	r, err := certificate.Evaluate(ctx, term, t)
	if err != nil {
		return err
	}

	out := cli.NewOutput(cmd)
	if out.IsJSON() {
		return out.JSON(certificate.NewRecord(t, r, nil))
	}

	pct := func(d decimal.Decimal) string { return d.Mul(decimal.NewFromInt(100)).StringFixed(4) + "%" }
	out.Bold("%s spread %s / %s on %s, %s to %s (%d days)", r.Type, t.Spread.Buy, t.Spread.Sell, t.Index,
		t.Start.Format("2006-01-02"), t.End.Format("2006-01-02"), r.Days)
	out.KeyValues([][2]string{
		{"Option budget", r.OptionBudget.StringFixed(2)},
		{"Spread value", r.SpreadValue.StringFixed(4)},
		{"Spreads bought", r.Spreads.StringFixed(4)},
		{"Index start", r.IndexStart.StringFixed(2)},
		{"Floor", r.FloorPoint.StringFixed(2) + " (" + pct(r.FloorRatio) + ")"},
		{"Cap", r.CapPoint.StringFixed(2) + " (" + pct(r.CapRatio) + ")"},
		{"Floor return", pct(r.FloorReturn)},
		{"Cap return", pct(r.CapReturn)},
		{"Participation", r.Participation.StringFixed(4)},
		{"Index end", r.IndexEnd.StringFixed(2)},
		{"Return at end", pct(r.ReturnEnd)},
		{"Hedge income", out.PnL(r.HedgeIncome.InexactFloat64(), 2)},
	})
	return nil
}

func runBatch(ctx context.Context, app *cli.App, cmd *cobra.Command, term marketdata.Terminal, path string) error {
	logger := logging.FromContext(ctx)

	batch, err := certificate.OpenBatch(path)
	if err != nil {
		return err
	}
	logger.Info().Int("certificates", len(batch)).Str("path", path).Msg("Batch loaded")

	records, err := certificate.EvaluateBatch(ctx, term, batch)
	if err != nil {
		return err
	}

	if dst := app.Config.Output.Destination; dst != "" {
		b := output.Batch[certificate.Record]{Name: "certificates", Date: time.Now(), Records: records}
		stored, err := output.Store(ctx, b, dst, app.Config.Output.Profile)
		if err != nil {
			return fmt.Errorf("failed to store results: %w", err)
		}
		logger.Info().Str("path", stored).Msg("Stored certificate results")
	}

	out := cli.NewOutput(cmd)
	if out.IsJSON() {
		return out.JSON(records)
	}

	t := cli.NewTable(out, "Start", "End", "Buy", "Sell", "Type", "Floor", "Cap", "Cap Return", "Participation", "Return End", "Hedge Income", "Error")
	for _, r := range records {
		t.AddRow(r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), r.Buy, r.Sell, r.Type,
			cli.F(r.FloorPoint, 2), cli.F(r.CapPoint, 2), cli.F(r.CapReturn*100, 4), cli.F(r.Participation, 4),
			cli.F(r.ReturnEnd*100, 4), out.PnL(r.HedgeIncome, 2), r.Error)
	}
	t.Render()
	return nil
}

func readTerms(cmd *cobra.Command) (certificate.Terms, error) {
	f := cmd.Flags()
	var t certificate.Terms
	var err error

	if t.Start, err = cli.Date(cmd, "start"); err != nil {
		return t, err
	}
	if t.End, err = cli.Date(cmd, "end"); err != nil {
		return t, err
	}
	t.Index, _ = f.GetString("index")
	t.Asset, _ = f.GetString("asset")
	t.Spread.Buy, _ = f.GetString("buy")
	t.Spread.Sell, _ = f.GetString("sell")
	if t.Spread.Buy == "" || t.Spread.Sell == "" {
		return t, fmt.Errorf("--buy and --sell are required without --batch")
	}

	for flag, dst := range map[string]*decimal.Decimal{
		"base-rate":  &t.BaseRate,
		"principal":  &t.Principal,
		"fixed-rate": &t.FixedRate,
	} {
		s, _ := f.GetString(flag)
		if *dst, err = decimal.NewFromString(s); err != nil {
			return t, fmt.Errorf("invalid --%s: %w", flag, err)
		}
	}
	return t, nil
}
