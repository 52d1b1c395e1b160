package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"deskquant/derivs/internal/calibrate"
	"deskquant/derivs/internal/cli"
	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/output"
	"deskquant/derivs/internal/sheet"
	"deskquant/derivs/internal/store"
	"deskquant/derivs/internal/types"
)

// inputs opens the terminal and quote workbooks of the workbook source.
type inputs struct {
	terminal func() (marketdata.Terminal, error)
	quotes   func(path, sheet string) ([][]string, error)
}

func main() {
	app := cli.NewApp("fit-curve")
	cmd := newCommand(app, inputs{terminal: app.Terminal, quotes: sheet.ReadFile})
	app.Execute(cmd)
}

func newCommand(app *cli.App, in inputs) *cobra.Command {
	cmd := app.Command("Calibrate a zero curve to benchmark bond prices", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		return run(ctx, app, in, cmd)
	})

	f := cmd.Flags()
	f.String("source", "workbook", "quote source: workbook, DMO or DividendData")
	f.String("quotes", "", "daily bond quote workbook (workbook source)")
	f.String("sheet", "", "sheet of the quote workbook (default: first sheet)")
	f.String("terminal", "", "terminal snapshot workbook for bond terms and repo rates")
	f.String("date", "", "evaluation date, YYYY-MM-DD (default: today)")
	f.String("calendar", "", "business day calendar: china, uk, weekends")
	f.String("interpolation", "", "log-linear or log-cubic")
	f.Float64("smoothing", 0, "zero rate curvature penalty, 0 disables")
	f.String("repo-set", "", "short end repo tenors: full or 1m")
	f.String("out", "", "store node prices and residuals to a directory or s3://bucket/prefix")
	f.String("profile", "", "AWS profile for s3 output")
	f.Bool("save", false, "record the fit in the run history")
	f.Bool("recheck", false, "re-evaluate the latest recorded fit of the date against today's basket instead of fitting")

	app.Bind(cmd, "terminal.workbook", "terminal")
	app.Bind(cmd, "curve.calendar", "calendar")
	app.Bind(cmd, "curve.interpolation", "interpolation")
	app.Bind(cmd, "curve.smoothing", "smoothing")
	app.Bind(cmd, "curve.repo_set", "repo-set")
	app.Bind(cmd, "output.destination", "out")
	app.Bind(cmd, "output.profile", "profile")
	app.Bind(cmd, "store.enabled", "save")
	return cmd
}

func run(ctx context.Context, app *cli.App, in inputs, cmd *cobra.Command) error {
	cfg := app.Config
	logger := logging.FromContext(ctx)

	date, err := cli.Date(cmd, "date")
	if err != nil {
		return err
	}
	grid, err := cfg.Curve.GridPeriods()
	if err != nil {
		return err
	}
	opts, err := cfg.Curve.Options()
	if err != nil {
		return err
	}

	source, _ := cmd.Flags().GetString("source")
	var (
		basket calibrate.Basket
		cal    *dates.Calendar
	)
	if strings.EqualFold(source, "workbook") {
		if cal, err = cfg.Curve.CalendarValue(); err != nil {
			return err
		}
		basket, err = workbookBasket(ctx, app, in, cmd, date)
	} else {
		// gilt prices settle on the UK calendar
		cal = dates.UK
		basket, err = giltBasket(ctx, source, date)
	}
	if err != nil {
		return err
	}

	logger.Info().
		Int("bonds", len(basket.Bonds)).
		Int("repos", len(basket.Repos)).
		Str("source", source).
		Msg("Benchmark basket loaded")

	problem, err := calibrate.NewProblem(dates.NewEvalContext(date, cal), basket, grid, opts)
	if err != nil {
		return err
	}

	out := cli.NewOutput(cmd)
	if recheck, _ := cmd.Flags().GetBool("recheck"); recheck {
		cfg.Store.Enabled = true
		st, err := app.Store()
		if err != nil {
			return err
		}
		defer st.Close()
		return recheckFit(ctx, out, st, problem)
	}

	res, err := calibrate.Fit(ctx, problem)
	if err != nil {
		return err
	}

	if out.IsJSON() {
		if err := out.JSON(struct {
			AsOf         time.Time              `json:"as_of"`
			Objective    float64                `json:"objective"`
			Converged    bool                   `json:"converged"`
			Iterations   int                    `json:"iterations"`
			Nodes        []calibrate.NodeRecord `json:"nodes"`
			Residuals    []calibrate.Residual   `json:"residuals"`
			DroppedRepos []types.RepoQuote      `json:"dropped_repos"`
		}{res.AsOf, res.Objective, res.Converged, res.Iterations, res.Records(), res.Residuals, problem.DroppedRepos()}); err != nil {
			return err
		}
	} else {
		printFit(out, problem, res)
	}

	if dst := cfg.Output.Destination; dst != "" {
		nodes := output.Batch[calibrate.NodeRecord]{Name: "curve-nodes", Date: res.AsOf, Records: res.Records()}
		path, err := output.Store(ctx, nodes, dst, cfg.Output.Profile)
		if err != nil {
			return fmt.Errorf("failed to store nodes: %w", err)
		}
		logger.Info().Str("path", path).Msg("Stored curve nodes")

		residuals := output.Batch[calibrate.Residual]{Name: "curve-residuals", Date: res.AsOf, Records: res.Residuals}
		if path, err = output.Store(ctx, residuals, dst, cfg.Output.Profile); err != nil {
			return fmt.Errorf("failed to store residuals: %w", err)
		}
		logger.Info().Str("path", path).Msg("Stored curve residuals")
	}

	st, err := app.Store()
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
		runID, err := st.SaveCurveFit(ctx, res)
		if err != nil {
			return err
		}
		logger.Info().Str("fit_id", runID).Msg("Curve fit recorded")
	}
	return nil
}

// recheckFit reprices the basket on the node prices of the latest recorded
// fit of the problem's date.
func recheckFit(ctx context.Context, out *cli.Output, st *store.SQLiteStore, problem *calibrate.Problem) error {
	date := problem.Eval().Date
	fits, err := st.CurveFits(ctx, date, date)
	if err != nil {
		return err
	}
	if len(fits) == 0 {
		return fmt.Errorf("no recorded curve fit on %s", date.Format("2006-01-02"))
	}
	fit := fits[len(fits)-1]

	prices, err := storedPrices(problem, fit)
	if err != nil {
		return err
	}
	res, err := calibrate.Evaluate(problem, prices)
	if err != nil {
		return err
	}
	logger := logging.FromContext(ctx)
	logger.Info().
		Str("fit_id", fit.RunID).
		Float64("recorded", fit.Objective).
		Float64("objective", res.Objective).
		Msg("Curve fit re-checked")

	if out.IsJSON() {
		return out.JSON(struct {
			FitID        string                 `json:"fit_id"`
			AsOf         time.Time              `json:"as_of"`
			Recorded     float64                `json:"recorded_objective"`
			Objective    float64                `json:"objective"`
			Nodes        []calibrate.NodeRecord `json:"nodes"`
			Residuals    []calibrate.Residual   `json:"residuals"`
			DroppedRepos []types.RepoQuote      `json:"dropped_repos"`
		}{fit.RunID, res.AsOf, fit.Objective, res.Objective, res.Records(), res.Residuals, problem.DroppedRepos()})
	}

	out.Bold("Recorded fit %s from %s", fit.RunID, fit.CreatedAt.Format("2006-01-02 15:04"))
	out.KeyValues([][2]string{
		{"Recorded objective", fmt.Sprintf("%.6g", fit.Objective)},
		{"Objective now", fmt.Sprintf("%.6g", res.Objective)},
	})
	out.Println()
	printFit(out, problem, res)
	return nil
}

// storedPrices lines the recorded node prices up with the problem's grid.
func storedPrices(problem *calibrate.Problem, fit store.CurveFit) ([]float64, error) {
	byTenor := make(map[string]float64, len(fit.Nodes))
	for _, n := range fit.Nodes {
		byTenor[n.Tenor] = n.Price
	}

	nodes := problem.Nodes()
	prices := make([]float64, len(nodes))
	for i, n := range nodes {
		price, ok := byTenor[n.Tenor.String()]
		if !ok {
			return nil, fmt.Errorf("recorded fit %s has no %s node", fit.RunID, n.Tenor)
		}
		prices[i] = price
	}
	return prices, nil
}

// workbookBasket reads the daily quote export and joins it with bond terms
// and repo closes from the terminal.
func workbookBasket(ctx context.Context, app *cli.App, in inputs, cmd *cobra.Command, date time.Time) (calibrate.Basket, error) {
	path, _ := cmd.Flags().GetString("quotes")
	if path == "" {
		return calibrate.Basket{}, fmt.Errorf("--quotes is required for the workbook source")
	}
	name, _ := cmd.Flags().GetString("sheet")

	rows, err := in.quotes(path, name)
	if err != nil {
		return calibrate.Basket{}, err
	}
	quotes, err := sheet.ParseBondDailyQuotes(rows, sheet.DefaultQuoteLayout(), sheet.DefaultQuoteFilter())
	if err != nil {
		return calibrate.Basket{}, err
	}

	term, err := in.terminal()
	if err != nil {
		return calibrate.Basket{}, err
	}
	bonds, err := marketdata.Benchmarks(ctx, term, quotes, date)
	if err != nil {
		return calibrate.Basket{}, err
	}

	set, err := app.Config.Curve.RepoSetValue()
	if err != nil {
		return calibrate.Basket{}, err
	}
	repos, err := marketdata.ShanghaiRepo(ctx, term, date, set)
	if err != nil {
		return calibrate.Basket{}, err
	}
	return calibrate.Basket{Repos: repos, Bonds: bonds}, nil
}

func giltBasket(ctx context.Context, source string, date time.Time) (calibrate.Basket, error) {
	collector, err := marketdata.NewCollector(source)
	if err != nil {
		return calibrate.Basket{}, err
	}
	collected, err := collector.Collect(ctx, date)
	if err != nil {
		return calibrate.Basket{}, err
	}
	logger := logging.FromContext(ctx)
	for _, f := range collected.Failures {
		logger.Warn().Err(f.Err).Msg("Gilt skipped")
	}
	bonds, err := collected.Benchmarks()
	if err != nil {
		return calibrate.Basket{}, err
	}
	return calibrate.Basket{Bonds: bonds}, nil
}

func printFit(out *cli.Output, problem *calibrate.Problem, res *calibrate.Result) {
	status := "converged"
	if !res.Converged {
		status = "NOT converged: " + res.Status
	}
	out.Bold("Curve as of %s (%s, objective %.6g, %d iterations)", res.AsOf.Format("2006-01-02"), status, res.Objective, res.Iterations)
	for _, r := range problem.DroppedRepos() {
		out.Warning("Repo %s (%dD) dropped: matures on or after the first node", r.Symbol, r.Days)
	}

	nodes := cli.NewTable(out, "Tenor", "Date", "Price", "DF", "Zero %", "Fwd %")
	for _, r := range res.Records() {
		nodes.AddRow(r.Tenor, r.Date.Format("2006-01-02"), cli.F(r.Price, 4), cli.F(r.DF, 6), cli.F(r.ZeroRate*100, 4), cli.F(r.Forward*100, 4))
	}
	nodes.Render()

	out.Println()
	residuals := cli.NewTable(out, "Code", "Maturity", "Weight", "Observed", "Model", "Error")
	for _, r := range res.Residuals {
		residuals.AddRow(r.Code, r.Maturity.Format("2006-01-02"), cli.F(r.Weight, 4), cli.F(r.Observed, 4), cli.F(r.Model, 4), out.PnL(r.Error, 4))
	}
	residuals.Render()
}
