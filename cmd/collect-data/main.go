package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"deskquant/derivs/internal/bond"
	"deskquant/derivs/internal/cli"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/output"
	"deskquant/derivs/internal/types"
)

func main() {
	app := cli.NewApp("collect-data")
	cmd := app.Command("Collect gilt prices and store them as parquet", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		return run(ctx, app, cmd, args)
	})
	cmd.Use = "collect-data <destination>"
	cmd.Args = cobra.ExactArgs(1)

	f := cmd.Flags()
	f.String("source", marketdata.SourceDMO, "gilt price source: DMO or DividendData")
	f.String("date", "", "settlement date, YYYY-MM-DD (default: today)")
	f.String("profile", "", "the AWS profile to use")
	app.Bind(cmd, "output.profile", "profile")

	app.Execute(cmd)
}

func run(ctx context.Context, app *cli.App, cmd *cobra.Command, args []string) error {
	logger := logging.FromContext(ctx)

	date, err := cli.Date(cmd, "date")
	if err != nil {
		return err
	}
	source, _ := cmd.Flags().GetString("source")
	collector, err := marketdata.NewCollector(source)
	if err != nil {
		return err
	}

	collected, err := collector.Collect(ctx, date)
	if err != nil {
		if errors.Is(err, types.ErrDataUnavailable) {
			return fmt.Errorf("no %s prices for %s: %w", collector.Source(), date.Format("2006-01-02"), err)
		}
		return fmt.Errorf("failed to collect data: %w", err)
	}
	for _, f := range collected.Failures {
		logger.Warn().Err(f.Err).Msg("Gilt skipped")
	}

	batch := output.Batch[*bond.Gilt]{
		Name:    collected.Source,
		Date:    collected.SettlementDate,
		Records: collected.Bonds,
	}
	outPath, err := output.Store(ctx, batch, args[0], app.Config.Output.Profile)
	if err != nil {
		return fmt.Errorf("failed to store data: %w", err)
	}

	out := cli.NewOutput(cmd)
	if out.IsJSON() {
		return out.JSON(map[string]interface{}{"path": outPath, "bonds": len(collected.Bonds), "failures": len(collected.Failures)})
	}
	out.Printf("Stored %d gilts to %s\n", len(collected.Bonds), outPath)
	return nil
}
