package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"deskquant/derivs/internal/bond"
	"deskquant/derivs/internal/cli"
	"deskquant/derivs/internal/marketdata"
)

func main() {
	app := cli.NewApp("calc-ytm")
	cmd := app.Command("Complete the clean price, dirty price and yield of a gilt", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		return run(cmd)
	})

	f := cmd.Flags()
	f.Float64("coupon", 0.0, "coupon rate (%) of the bond")
	f.Float64("facevalue", 100, "face value of the bond")
	f.Float64("cleanprice", 0.0, "clean price of the bond")
	f.Float64("ytm", 0.0, "yield to maturity (%) of the bond")
	f.String("settlementdate", "", "settlement date, YYYY-MM-DD (default: today)")
	f.String("maturitydate", "", "maturity date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("coupon")
	_ = cmd.MarkFlagRequired("maturitydate")
	cmd.MarkFlagsOneRequired("cleanprice", "ytm")

	app.Execute(cmd)
}

func run(cmd *cobra.Command) error {
	f := cmd.Flags()
	coupon, _ := f.GetFloat64("coupon")
	faceValue, _ := f.GetFloat64("facevalue")
	cleanPrice, _ := f.GetFloat64("cleanprice")
	ytm, _ := f.GetFloat64("ytm")

	settlementDate, err := cli.Date(cmd, "settlementdate")
	if err != nil {
		return fmt.Errorf("invalid settlement date: %w", err)
	}
	maturityStr, _ := f.GetString("maturitydate")
	maturityDate, err := marketdata.ParseDate(maturityStr)
	if err != nil {
		return fmt.Errorf("invalid maturity date: %w", err)
	}

	if maturityDate.Before(settlementDate) {
		return fmt.Errorf("maturity date cannot be before settlement date")
	}
	if coupon < 0.0 || coupon > 100.0 {
		return fmt.Errorf("coupon rate must be between 0.0 and 100.0")
	}

	g := bond.NewUKGilt("calc-ytm", settlementDate)
	g.FacePrice = faceValue
	g.Coupon = coupon
	g.MaturityDate = maturityDate
	g.CleanPrice = cleanPrice
	g.YieldToMaturity = ytm

	if err := bond.CompleteGilt(g); err != nil {
		return fmt.Errorf("completing bond: %w", err)
	}

	out := cli.NewOutput(cmd)
	if out.IsJSON() {
		return out.JSON(g)
	}

	out.Bold("Bond Details")
	out.KeyValues([][2]string{
		{"Type", string(g.Type)},
		{"Face Value", cli.F(g.FacePrice, 3)},
		{"Coupon Rate", cli.F(g.Coupon, 3) + "%"},
		{"Settlement Date", g.SettlementDate.Format("2006-01-02")},
		{"Maturity Date", g.MaturityDate.Format("2006-01-02")},
		{"Clean Price", cli.F(g.CleanPrice, 3)},
		{"Dirty Price", cli.F(g.DirtyPrice, 3)},
		{"Remaining Days", fmt.Sprint(g.RemainingDays)},
		{"Accrued Days", fmt.Sprint(g.AccruedDays)},
		{"Accrued Amount", cli.F(g.AccruedAmount, 3)},
		{"Coupon Period Days", fmt.Sprint(g.CouponPeriodDays)},
		{"Coupon Periods", fmt.Sprint(g.CouponPeriods)},
		{"Next Coupon Date", g.NextCouponDate.Format("2006-01-02")},
		{"Previous Coupon Date", g.PrevCouponDate.Format("2006-01-02")},
		{"Maturity", fmt.Sprintf("%dy %dd", g.MaturityYears, g.MaturityDays)},
		{"Yield to Maturity", cli.F(g.YieldToMaturity, 6) + "%"},
	})
	return nil
}
