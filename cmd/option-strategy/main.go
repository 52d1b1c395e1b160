package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"deskquant/derivs/internal/cli"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/strategy"
	"deskquant/derivs/internal/types"
)

func main() {
	app := cli.NewApp("option-strategy")
	cmd := app.Command("Analyse the expiry profit of an option strategy", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		return run(ctx, app, cmd)
	})

	f := cmd.Flags()
	f.String("underlying", "510050.SH", "underlying code")
	f.StringSlice("position", nil, "option position as code:count, negative count for sold, repeatable")
	f.Float64("units", 0, "units of the underlying held, per unit")
	f.Float64("unit", 10000, "underlying quantity the strategy is expressed per")
	f.String("date", "", "quote date, YYYY-MM-DD (default: today)")
	f.String("terminal", "", "terminal snapshot workbook")
	f.Float64("lower", strategy.DefaultGrid().Lower, "grid low as a multiple of the lowest strike or spot")
	f.Float64("upper", strategy.DefaultGrid().Upper, "grid high as a multiple of the highest strike or spot")
	_ = cmd.MarkFlagRequired("position")

	app.Bind(cmd, "terminal.workbook", "terminal")

	app.Execute(cmd)
}

func run(ctx context.Context, app *cli.App, cmd *cobra.Command) error {
	f := cmd.Flags()

	raw, _ := f.GetStringSlice("position")
	positions, err := parsePositions(raw)
	if err != nil {
		return err
	}
	underlying, _ := f.GetString("underlying")
	units, _ := f.GetFloat64("units")
	unit, _ := f.GetFloat64("unit")
	date, err := cli.Date(cmd, "date")
	if err != nil {
		return err
	}

	term, err := app.Terminal()
	if err != nil {
		return err
	}
	s, err := strategy.Load(ctx, term, underlying, positions, units, unit, date)
	if err != nil {
		return err
	}

	grid := strategy.DefaultGrid()
	grid.Lower, _ = f.GetFloat64("lower")
	grid.Upper, _ = f.GetFloat64("upper")
	a := s.Analyze(grid)

	logger := logging.FromContext(ctx)
	logger.Debug().
		Int("legs", len(s.Legs)).
		Float64("cost", s.Cost).
		Int("breakevens", len(a.Breakevens)).
		Msg("Strategy analysed")

	out := cli.NewOutput(cmd)
	if out.IsJSON() {
		return out.JSON(struct {
			Underlying string                  `json:"underlying"`
			Spot       float64                 `json:"spot"`
			Cost       float64                 `json:"cost"`
			Expiry     string                  `json:"expiry"`
			Breakevens []float64               `json:"breakevens"`
			MaxProfit  *float64                `json:"max_profit"`
			MaxLoss    *float64                `json:"max_loss"`
			SpotProfit float64                 `json:"spot_profit"`
			Strikes    []strategy.StrikeProfit `json:"strikes"`
		}{s.Underlying, s.Spot, s.Cost, s.Expiry().Format("2006-01-02"), a.Breakevens, a.MaxProfit, a.MaxLoss, a.SpotProfit, a.Strikes})
	}

	out.Bold("%s at %s, %d legs expiring %s (per %s)", s.Underlying, cli.F(s.Spot, 4), len(s.Legs), s.Expiry().Format("2006-01-02"), cli.F(s.Unit, 0))
	be := make([]string, len(a.Breakevens))
	for i, b := range a.Breakevens {
		be[i] = cli.F(b, 4)
	}
	if len(be) == 0 {
		be = []string{"none"}
	}
	out.KeyValues([][2]string{
		{"Cost", cli.F(s.Cost, 2)},
		{"Breakevens", strings.Join(be, ", ")},
		{"Max profit", bound(out, a.MaxProfit)},
		{"Max loss", bound(out, a.MaxLoss)},
		{"Profit at spot", out.PnL(a.SpotProfit, 2)},
	})

	t := cli.NewTable(out, "Strike", "Profit")
	for _, sp := range a.Strikes {
		t.AddRow(cli.F(sp.Strike, 4), out.PnL(sp.Profit, 2))
	}
	t.Render()
	return nil
}

func bound(out *cli.Output, v *float64) string {
	if v == nil {
		return "unbounded"
	}
	return out.PnL(*v, 2)
}

func parsePositions(raw []string) ([]strategy.Position, error) {
	positions := make([]strategy.Position, 0, len(raw))
	for _, p := range raw {
		code, count, ok := strings.Cut(p, ":")
		if !ok {
			return nil, types.NewValidationError("position", p, "expected code:count", nil)
		}
		n, err := strconv.ParseFloat(count, 64)
		if err != nil || n == 0 {
			return nil, types.NewValidationError("position", p, "count must be a non-zero number", err)
		}
		positions = append(positions, strategy.Position{Code: strings.TrimSpace(code), Count: n})
	}
	return positions, nil
}
